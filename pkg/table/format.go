package table

import (
	"fmt"
	"strings"
	"time"

	"github.com/memtensor/userdesk/pkg/types"
)

// Layouts used by the date formatters
const (
	DateLayout     = "2006-01-02"
	DateTimeLayout = "2006-01-02 15:04"
)

var formatters = map[string]RenderFunc{
	"date":     timeFormatter(DateLayout),
	"datetime": timeFormatter(DateTimeLayout),
	"yesno":    yesNo,
	"upper":    upper,
}

// Formatter returns the built-in render function registered under name
func Formatter(name string) (RenderFunc, bool) {
	fn, ok := formatters[name]
	return fn, ok
}

// timeFormatter renders RFC 3339 strings and unix seconds in layout.
// Nil stays nil so that "never" is left to the renderer.
func timeFormatter(layout string) RenderFunc {
	return func(v interface{}, _ types.Record) (interface{}, error) {
		if v == nil {
			return nil, nil
		}
		if s, ok := v.(string); ok {
			if s == "" {
				return "", nil
			}
			t, err := time.Parse(time.RFC3339, s)
			if err != nil {
				return nil, fmt.Errorf("not an RFC 3339 time: %q", s)
			}
			return t.UTC().Format(layout), nil
		}
		if secs, ok := types.AsNumber(v); ok {
			return time.Unix(int64(secs), 0).UTC().Format(layout), nil
		}
		return nil, fmt.Errorf("cannot format %T as time", v)
	}
}

func yesNo(v interface{}, _ types.Record) (interface{}, error) {
	switch b := v.(type) {
	case nil:
		return "No", nil
	case bool:
		if b {
			return "Yes", nil
		}
		return "No", nil
	default:
		return nil, fmt.Errorf("cannot format %T as yes/no", v)
	}
}

func upper(v interface{}, _ types.Record) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	return strings.ToUpper(types.FormatValue(v)), nil
}
