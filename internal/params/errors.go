package params

import "github.com/cockroachdb/errors"

// ErrInvalidFormat is returned when tokens match neither accepted form.
var ErrInvalidFormat = errors.New("invalid parameter format")

const formatHint = `parameters are either key=value pairs (path=/tmp/x count=3 force=true) ` +
	`or a single JSON object ('{"path":"/tmp/x","count":3}')`

func invalidf(format string, args ...any) error {
	return errors.WithHint(errors.Wrapf(ErrInvalidFormat, format, args...), formatHint)
}
