package schema

import (
	"github.com/sahilm/fuzzy"

	"github.com/Bigsy/mcpcli/internal/mcp"
)

// maxSuggestions bounds "did you mean" candidates.
const maxSuggestions = 3

// Index is an immutable lookup table over a server's tools. It is rebuilt
// wholesale on every discovery.
type Index struct {
	tools       []Tool
	byCanonical map[string]int
	byRaw       map[string]int
	collisions  map[string][]string
}

// Build indexes tools in advertised order. A tool whose schema cannot be
// parsed is indexed with no parameters and SchemaErr set.
func Build(tools []mcp.Tool) *Index {
	idx := &Index{
		tools:       make([]Tool, 0, len(tools)),
		byCanonical: make(map[string]int, len(tools)),
		byRaw:       make(map[string]int, len(tools)),
		collisions:  make(map[string][]string),
	}

	for _, t := range tools {
		entry := Tool{
			Name:        CanonicalName(t.Name),
			RawName:     t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
		params, err := ParseParams(t.InputSchema)
		if err != nil {
			entry.SchemaErr = err
		} else {
			entry.Params = params
		}

		i := len(idx.tools)
		idx.tools = append(idx.tools, entry)

		if _, ok := idx.byRaw[entry.RawName]; !ok {
			idx.byRaw[entry.RawName] = i
		}
		if first, ok := idx.byCanonical[entry.Name]; ok {
			if len(idx.collisions[entry.Name]) == 0 {
				idx.collisions[entry.Name] = []string{idx.tools[first].RawName}
			}
			idx.collisions[entry.Name] = append(idx.collisions[entry.Name], entry.RawName)
			continue
		}
		idx.byCanonical[entry.Name] = i
	}
	return idx
}

// Lookup finds a tool by canonical name, then by raw advertised name. Both
// matches are exact and case-sensitive.
func (idx *Index) Lookup(name string) (Tool, bool) {
	if idx == nil {
		return Tool{}, false
	}
	if i, ok := idx.byCanonical[name]; ok {
		return idx.tools[i], true
	}
	if i, ok := idx.byRaw[name]; ok {
		return idx.tools[i], true
	}
	return Tool{}, false
}

// Tools returns a copy of the indexed tools in advertised order.
func (idx *Index) Tools() []Tool {
	if idx == nil {
		return nil
	}
	return append([]Tool(nil), idx.tools...)
}

// Len returns the number of indexed tools.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.tools)
}

// Names returns canonical names in advertised order.
func (idx *Index) Names() []string {
	if idx == nil {
		return nil
	}
	names := make([]string, len(idx.tools))
	for i, t := range idx.tools {
		names[i] = t.Name
	}
	return names
}

// Collisions maps each canonical name shared by several tools to their raw
// names. Lookup by canonical name returns the first one advertised.
func (idx *Index) Collisions() map[string][]string {
	if idx == nil {
		return nil
	}
	out := make(map[string][]string, len(idx.collisions))
	for k, v := range idx.collisions {
		out[k] = append([]string(nil), v...)
	}
	return out
}

// Suggest returns up to three tool names resembling name, best first.
func (idx *Index) Suggest(name string) []string {
	if idx.Len() == 0 || name == "" {
		return nil
	}

	candidates := make([]string, 0, 2*len(idx.tools))
	seen := make(map[string]bool)
	for _, t := range idx.tools {
		for _, n := range []string{t.Name, t.RawName} {
			if !seen[n] {
				seen[n] = true
				candidates = append(candidates, n)
			}
		}
	}

	var out []string
	for _, match := range fuzzy.Find(name, candidates) {
		out = append(out, match.Str)
		if len(out) == maxSuggestions {
			break
		}
	}
	return out
}
