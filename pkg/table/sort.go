package table

import (
	"cmp"
	"slices"
	"strings"

	"github.com/memtensor/userdesk/pkg/types"
)

// Direction is a sort direction
type Direction string

const (
	Ascending  Direction = "asc"
	Descending Direction = "desc"
)

// Valid reports whether d is asc or desc
func (d Direction) Valid() bool {
	return d == Ascending || d == Descending
}

// Toggle flips asc and desc
func (d Direction) Toggle() Direction {
	if d == Ascending {
		return Descending
	}
	return Ascending
}

// SortDirective orders records by one field. A nil *SortDirective means
// insertion order.
type SortDirective struct {
	Key       string    `json:"key"`
	Direction Direction `json:"direction"`
}

// CompareValues orders two record values:
//   - nil sorts before every defined value, and two nils are equal
//   - numbers compare numerically, strings by byte order, false before true
//   - values of different kinds compare by their string forms
func CompareValues(a, b interface{}) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	ka, kb := types.KindOf(a), types.KindOf(b)
	if ka == kb {
		switch ka {
		case types.KindNumber:
			fa, okA := types.AsNumber(a)
			fb, okB := types.AsNumber(b)
			if okA && okB {
				return cmp.Compare(fa, fb)
			}
		case types.KindString:
			return strings.Compare(a.(string), b.(string))
		case types.KindBool:
			ba, bb := a.(bool), b.(bool)
			switch {
			case ba == bb:
				return 0
			case !ba:
				return -1
			default:
				return 1
			}
		}
	}

	return strings.Compare(types.FormatValue(a), types.FormatValue(b))
}

// Sort returns records ordered by d. A nil directive returns records itself.
// The sort is stable, and descending order negates the comparison rather than
// reversing the result, so equal records keep their input order either way.
func Sort(records []types.Record, d *SortDirective) []types.Record {
	if d == nil {
		return records
	}

	out := slices.Clone(records)
	desc := d.Direction == Descending
	slices.SortStableFunc(out, func(a, b types.Record) int {
		c := CompareValues(a[d.Key], b[d.Key])
		if desc {
			return -c
		}
		return c
	})
	return out
}
