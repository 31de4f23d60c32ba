package table

import (
	"strings"

	"github.com/memtensor/userdesk/pkg/types"
)

// Filter keeps the records matching query, in their original order.
//
// A blank or whitespace-only query returns records itself. Otherwise a record
// is kept when any of its string-typed values contains the query, compared
// case-insensitively. Numbers, booleans and nulls never match and are not
// converted to text. The input is never modified.
func Filter(records []types.Record, query string) []types.Record {
	if strings.TrimSpace(query) == "" {
		return records
	}

	needle := strings.ToLower(query)
	out := make([]types.Record, 0, len(records))
	for _, rec := range records {
		if matches(rec, needle) {
			out = append(out, rec)
		}
	}
	return out
}

func matches(rec types.Record, needle string) bool {
	for _, v := range rec {
		s, ok := v.(string)
		if !ok {
			continue
		}
		if strings.Contains(strings.ToLower(s), needle) {
			return true
		}
	}
	return false
}
