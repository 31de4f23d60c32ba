package table

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memtensor/userdesk/pkg/errors"
	"github.com/memtensor/userdesk/pkg/types"
)

func userColumns() []Column {
	return []Column{
		{Key: "id", Label: "ID", Sortable: true},
		{Key: "name", Label: "Name", Sortable: true},
		{Key: "email", Label: "Email", Sortable: true},
		{Key: "actions", Label: "Actions"},
	}
}

func stateWith(t *testing.T, records []types.Record, pageSize int) ViewState {
	t.Helper()
	store, err := NewStore(records)
	require.NoError(t, err)
	s, err := Reduce(NewViewState(userColumns(), pageSize), ReplaceRecords{Store: store})
	require.NoError(t, err)
	return s
}

func apply(t *testing.T, s ViewState, events ...Event) ViewState {
	t.Helper()
	for _, ev := range events {
		var err error
		s, err = Reduce(s, ev)
		require.NoError(t, err, "event %s", EventName(ev))
	}
	return s
}

func TestEndToEnd(t *testing.T) {
	s := stateWith(t, people(), 10)

	s = apply(t, s, SetQuery{Query: "ann"})
	assert.Equal(t, []string{"2"}, ids(s.Filtered()))

	s = apply(t, s, ClickSort{Key: "name"})
	require.NotNil(t, s.Sort)
	assert.Equal(t, SortDirective{Key: "name", Direction: Ascending}, *s.Sort)

	s = apply(t, s, Navigate{Op: NavGoto, Page: 1})
	page := s.CurrentPage()
	assert.Equal(t, []string{"2"}, ids(page.Items))
	assert.Equal(t, 1, page.TotalPages)
	assert.Equal(t, 1, page.Number)
}

func TestReduceQuery(t *testing.T) {
	s := stateWith(t, numbered(25), 10)
	s = apply(t, s, Navigate{Op: NavLast})
	assert.Equal(t, 3, s.Pagination.CurrentPage)

	s = apply(t, s, SetQuery{Query: "user2"})
	assert.Equal(t, 1, s.Pagination.CurrentPage)
	assert.Equal(t, "user2", s.Query)
}

func TestReduceSort(t *testing.T) {
	t.Run("same key toggles, new key resets to asc", func(t *testing.T) {
		s := stateWith(t, people(), 10)

		s = apply(t, s, ClickSort{Key: "name"})
		assert.Equal(t, Ascending, s.Sort.Direction)
		s = apply(t, s, ClickSort{Key: "name"})
		assert.Equal(t, Descending, s.Sort.Direction)
		s = apply(t, s, ClickSort{Key: "name"})
		assert.Equal(t, Ascending, s.Sort.Direction)

		s = apply(t, s, ClickSort{Key: "name"}, ClickSort{Key: "email"})
		assert.Equal(t, SortDirective{Key: "email", Direction: Ascending}, *s.Sort)
	})

	t.Run("sort keeps the page", func(t *testing.T) {
		s := stateWith(t, numbered(25), 10)
		s = apply(t, s, Navigate{Op: NavNext}, ClickSort{Key: "name"})
		assert.Equal(t, 2, s.Pagination.CurrentPage)
	})

	t.Run("non sortable column is ignored", func(t *testing.T) {
		s := stateWith(t, people(), 10)
		next, err := Reduce(s, ClickSort{Key: "actions"})
		require.NoError(t, err)
		assert.Nil(t, next.Sort)
	})

	t.Run("unknown key is a violation with a suggestion", func(t *testing.T) {
		s := stateWith(t, people(), 10)
		next, err := Reduce(s, ClickSort{Key: "emial"})
		require.Error(t, err)
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvariantViolation))
		assert.Equal(t, "email", errors.GetAppError(err).Details["suggestion"])
		assert.Nil(t, next.Sort)
	})

	t.Run("views without columns sort by any key", func(t *testing.T) {
		store, err := NewStore(people())
		require.NoError(t, err)
		s := apply(t, NewViewState(nil, 10), ReplaceRecords{Store: store}, ClickSort{Key: "name"})
		assert.Equal(t, []string{"2", "1"}, ids(s.CurrentPage().Items))
	})

	t.Run("reduce does not share the directive", func(t *testing.T) {
		s := stateWith(t, people(), 10)
		s = apply(t, s, ClickSort{Key: "name"})
		next := apply(t, s, ClickSort{Key: "name"})
		assert.Equal(t, Ascending, s.Sort.Direction)
		assert.Equal(t, Descending, next.Sort.Direction)
	})
}

func TestReduceNavigate(t *testing.T) {
	s := stateWith(t, numbered(25), 10)

	tests := []struct {
		name string
		from int
		ev   Navigate
		want int
	}{
		{"first", 3, Navigate{Op: NavFirst}, 1},
		{"prev", 2, Navigate{Op: NavPrev}, 1},
		{"prev at first is a no-op", 1, Navigate{Op: NavPrev}, 1},
		{"next", 1, Navigate{Op: NavNext}, 2},
		{"next at last is a no-op", 3, Navigate{Op: NavNext}, 3},
		{"last", 1, Navigate{Op: NavLast}, 3},
		{"goto", 1, Navigate{Op: NavGoto, Page: 2}, 2},
		{"goto clamps high", 1, Navigate{Op: NavGoto, Page: 10}, 3},
		{"goto clamps low", 2, Navigate{Op: NavGoto, Page: -1}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			from := s
			from.Pagination.CurrentPage = tt.from
			next := apply(t, from, tt.ev)
			assert.Equal(t, tt.want, next.Pagination.CurrentPage)
		})
	}

	t.Run("unknown op", func(t *testing.T) {
		_, err := Reduce(s, Navigate{Op: NavOp(42)})
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvariantViolation))
	})
}

func TestParseNavOp(t *testing.T) {
	for _, name := range []string{"first", "prev", "next", "last", "goto"} {
		op, ok := ParseNavOp(name)
		require.True(t, ok)
		assert.Equal(t, name, op.String())
	}
	op, ok := ParseNavOp("Previous")
	assert.True(t, ok)
	assert.Equal(t, NavPrev, op)

	_, ok = ParseNavOp("sideways")
	assert.False(t, ok)
}

func TestReducePageSize(t *testing.T) {
	s := stateWith(t, numbered(25), 10)
	s = apply(t, s, Navigate{Op: NavLast}, SetPageSize{Size: 5})
	assert.Equal(t, Pagination{PageSize: 5, CurrentPage: 1}, s.Pagination)

	next, err := Reduce(s, SetPageSize{Size: -1})
	require.Error(t, err)
	assert.Equal(t, s.Pagination, next.Pagination)

	t.Run("largest page size", func(t *testing.T) {
		huge := apply(t, stateWith(t, numbered(25), 10), SetPageSize{Size: math.MaxInt}, Navigate{Op: NavLast})
		assert.Equal(t, 1, huge.Pagination.CurrentPage)

		v := Derive(huge)
		assert.Equal(t, 1, v.TotalPages)
		assert.Equal(t, 1, v.Page)
		assert.Len(t, v.Rows, 25)
		assert.False(t, v.HasNext)
	})
}

func TestReduceSelection(t *testing.T) {
	t.Run("toggle row", func(t *testing.T) {
		s := stateWith(t, people(), 10)
		s = apply(t, s, ToggleRow{ID: "1"})
		assert.Equal(t, []string{"1"}, s.Selection.IDs())
		s = apply(t, s, ToggleRow{ID: "1"})
		assert.Equal(t, 0, s.Selection.Len())
	})

	t.Run("toggle of unknown id is a violation", func(t *testing.T) {
		s := stateWith(t, people(), 10)
		next, err := Reduce(s, ToggleRow{ID: "99"})
		require.Error(t, err)
		assert.Equal(t, 0, next.Selection.Len())
	})

	t.Run("select page covers only the visible page", func(t *testing.T) {
		s := stateWith(t, numbered(25), 10)
		s = apply(t, s, Navigate{Op: NavNext}, SelectPage{})
		assert.Equal(t, 10, s.Selection.Len())
		assert.True(t, s.Selection.IsSelected("11"))
		assert.False(t, s.Selection.IsSelected("1"))
		assert.False(t, s.Selection.IsSelected("21"))

		s = apply(t, s, DeselectAll{})
		assert.Equal(t, 0, s.Selection.Len())
	})

	t.Run("toggle page flips the whole page", func(t *testing.T) {
		s := stateWith(t, numbered(15), 10)
		s = apply(t, s, Navigate{Op: NavLast}, ToggleRow{ID: "12"}, Navigate{Op: NavFirst}, ToggleRow{ID: "3"})

		s = apply(t, s, TogglePage{})
		assert.Equal(t, 11, s.Selection.Len())

		s = apply(t, s, TogglePage{})
		assert.Equal(t, []string{"12"}, s.Selection.IDs())
	})

	t.Run("toggle page on an empty page does nothing", func(t *testing.T) {
		s := stateWith(t, nil, 10)
		s = apply(t, s, TogglePage{})
		assert.Equal(t, 0, s.Selection.Len())
	})

	t.Run("selection survives filter sort and paging", func(t *testing.T) {
		s := stateWith(t, numbered(25), 10)
		s = apply(t, s, ToggleRow{ID: "4"}, ToggleRow{ID: "23"},
			SetQuery{Query: "user2"}, ClickSort{Key: "name"}, ClickSort{Key: "name"},
			Navigate{Op: NavLast}, SetPageSize{Size: 3})
		assert.Equal(t, []string{"23", "4"}, s.Selection.IDs())
	})

	t.Run("reduce never mutates the previous selection", func(t *testing.T) {
		s := stateWith(t, people(), 10)
		next := apply(t, s, ToggleRow{ID: "2"})
		assert.False(t, s.Selection.IsSelected("2"))
		assert.True(t, next.Selection.IsSelected("2"))
	})
}

func TestReduceReplaceRecords(t *testing.T) {
	s := stateWith(t, numbered(25), 10)
	s = apply(t, s, Navigate{Op: NavLast}, ToggleRow{ID: "22"}, ToggleRow{ID: "3"})

	smaller, err := NewStore(numbered(12))
	require.NoError(t, err)
	s = apply(t, s, ReplaceRecords{Store: smaller})

	assert.Equal(t, []string{"3"}, s.Selection.IDs())
	assert.Equal(t, 2, s.Pagination.CurrentPage)
	assert.Equal(t, 12, s.Store.Len())

	s = apply(t, s, ReplaceRecords{})
	assert.Equal(t, 0, s.Store.Len())
	assert.Equal(t, 0, s.Selection.Len())
	assert.Equal(t, 1, s.Pagination.CurrentPage)
}

func TestReduceUnsupportedEvent(t *testing.T) {
	s := stateWith(t, people(), 10)
	_, err := Reduce(s, nil)
	assert.True(t, errors.IsCode(err, errors.ErrCodeInvariantViolation))
	assert.Equal(t, "nil", EventName(nil))
}

// Invariants hold after any event sequence.
func TestReduceInvariants(t *testing.T) {
	events := []Event{
		SetQuery{Query: "user1"}, Navigate{Op: NavLast}, ToggleRow{ID: "14"}, SelectPage{},
		SetPageSize{Size: 3}, Navigate{Op: NavNext}, ClickSort{Key: "name"}, TogglePage{},
		SetQuery{Query: ""}, Navigate{Op: NavGoto, Page: 100}, ClickSort{Key: "email"},
	}

	s := stateWith(t, numbered(40), 10)
	for i, ev := range events {
		next, err := Reduce(s, ev)
		if err == nil {
			s = next
		}

		total := TotalPages(len(s.Filtered()), s.Pagination.PageSize)
		assert.GreaterOrEqual(t, s.Pagination.CurrentPage, 1, "step %d", i)
		assert.LessOrEqual(t, s.Pagination.CurrentPage, total, "step %d", i)
		for _, id := range s.Selection.IDs() {
			assert.True(t, s.Store.Has(id), fmt.Sprintf("step %d: stale id %s", i, id))
		}
	}
}
