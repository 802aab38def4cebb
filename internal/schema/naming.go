package schema

import "strings"

// CanonicalName derives the display name of an advertised tool name.
//
// Some servers generate names as <segment>_<segment>_..._<method>. When the
// name has at least three underscore-separated segments the last one is the
// canonical name; otherwise the name is used unchanged. This is a naming
// heuristic, not a protocol rule, which is why lookups also accept the raw
// advertised name.
func CanonicalName(raw string) string {
	segments := strings.Split(raw, "_")
	if len(segments) < 3 {
		return raw
	}
	return segments[len(segments)-1]
}
