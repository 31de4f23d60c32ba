package table

import (
	"fmt"
	"strings"

	"github.com/agnivade/levenshtein"

	"github.com/memtensor/userdesk/pkg/errors"
	"github.com/memtensor/userdesk/pkg/types"
)

// DefaultPageSize is used when a view is created without a page size
const DefaultPageSize = 10

// Pagination holds the page size and the 1-based current page
type Pagination struct {
	PageSize    int `json:"page_size"`
	CurrentPage int `json:"current_page"`
}

// ViewState is the single source of truth for a table view
type ViewState struct {
	Store      *Store
	Columns    []Column
	Query      string
	Sort       *SortDirective
	Pagination Pagination
	Selection  Selection
}

// NewViewState returns an empty view over columns
func NewViewState(columns []Column, pageSize int) ViewState {
	if pageSize < 1 {
		pageSize = DefaultPageSize
	}
	return ViewState{
		Store:      EmptyStore(),
		Columns:    columns,
		Pagination: Pagination{PageSize: pageSize, CurrentPage: 1},
		Selection:  NewSelection(),
	}
}

// Clone returns a copy whose selection can be changed independently
func (s ViewState) Clone() ViewState {
	out := s
	out.Selection = s.Selection.Clone()
	if s.Sort != nil {
		d := *s.Sort
		out.Sort = &d
	}
	return out
}

// Filtered returns the records matching the current query
func (s ViewState) Filtered() []types.Record {
	return Filter(s.Store.Records(), s.Query)
}

// CurrentPage runs the filter, sort and paginate pipeline
func (s ViewState) CurrentPage() Page {
	size := s.Pagination.PageSize
	if size < 1 {
		size = DefaultPageSize
	}
	page, _ := Paginate(Sort(s.Filtered(), s.Sort), size, s.Pagination.CurrentPage)
	return page
}

// PageIDs returns the ids of the records on the current page, in display order
func (s ViewState) PageIDs() []string {
	page := s.CurrentPage()
	ids := make([]string, 0, len(page.Items))
	for _, rec := range page.Items {
		ids = append(ids, rec.ID())
	}
	return ids
}

// Event is a user action or data arrival applied by Reduce
type Event interface {
	eventName() string
}

// SetQuery replaces the filter query and returns to the first page
type SetQuery struct {
	Query string
}

// ClickSort is a click on a column header: the same key flips the
// direction, a different key sorts ascending by it.
type ClickSort struct {
	Key string
}

// NavOp selects a pagination move
type NavOp int

const (
	NavFirst NavOp = iota
	NavPrev
	NavNext
	NavLast
	NavGoto
)

func (op NavOp) String() string {
	switch op {
	case NavFirst:
		return "first"
	case NavPrev:
		return "prev"
	case NavNext:
		return "next"
	case NavLast:
		return "last"
	case NavGoto:
		return "goto"
	default:
		return fmt.Sprintf("NavOp(%d)", int(op))
	}
}

// ParseNavOp maps first, prev, next, last and goto to a NavOp
func ParseNavOp(name string) (NavOp, bool) {
	switch strings.ToLower(name) {
	case "first":
		return NavFirst, true
	case "prev", "previous":
		return NavPrev, true
	case "next":
		return NavNext, true
	case "last":
		return NavLast, true
	case "goto":
		return NavGoto, true
	}
	return 0, false
}

// Navigate moves between pages. Page is used only with NavGoto.
type Navigate struct {
	Op   NavOp
	Page int
}

// SetPageSize changes the page size and returns to the first page
type SetPageSize struct {
	Size int
}

// ToggleRow flips the selection of one record
type ToggleRow struct {
	ID string
}

// SelectPage selects every record on the current page
type SelectPage struct{}

// TogglePage is the header checkbox: it clears the page when the whole
// page is selected and selects the page otherwise.
type TogglePage struct{}

// DeselectAll clears the selection
type DeselectAll struct{}

// ReplaceRecords installs a refreshed store
type ReplaceRecords struct {
	Store *Store
}

func (SetQuery) eventName() string       { return "set_query" }
func (ClickSort) eventName() string      { return "click_sort" }
func (Navigate) eventName() string       { return "navigate" }
func (SetPageSize) eventName() string    { return "set_page_size" }
func (ToggleRow) eventName() string      { return "toggle_row" }
func (SelectPage) eventName() string     { return "select_page" }
func (TogglePage) eventName() string     { return "toggle_page" }
func (DeselectAll) eventName() string    { return "deselect_all" }
func (ReplaceRecords) eventName() string { return "replace_records" }

// EventName returns a stable name for logs and metrics
func EventName(ev Event) string {
	if ev == nil {
		return "nil"
	}
	return ev.eventName()
}

// Reduce applies ev to s and returns the next state. s is never modified.
// An invariant violation returns s unchanged together with the error.
// The returned state always has its current page clamped into range.
func Reduce(s ViewState, ev Event) (ViewState, error) {
	next := s.Clone()

	switch e := ev.(type) {
	case SetQuery:
		next.Query = e.Query
		next.Pagination.CurrentPage = 1

	case ClickSort:
		sortable, err := sortableKey(s.Columns, e.Key)
		if err != nil {
			return s, err
		}
		if !sortable {
			return s, nil
		}
		if s.Sort != nil && s.Sort.Key == e.Key {
			next.Sort = &SortDirective{Key: e.Key, Direction: s.Sort.Direction.Toggle()}
		} else {
			next.Sort = &SortDirective{Key: e.Key, Direction: Ascending}
		}

	case Navigate:
		total := TotalPages(len(s.Filtered()), s.Pagination.PageSize)
		cur := ClampPage(s.Pagination.CurrentPage, total)
		switch e.Op {
		case NavFirst:
			cur = 1
		case NavPrev:
			if cur > 1 {
				cur--
			}
		case NavNext:
			if cur < total {
				cur++
			}
		case NavLast:
			cur = total
		case NavGoto:
			cur = ClampPage(e.Page, total)
		default:
			return s, errors.NewInvariantViolation(fmt.Sprintf("unknown navigation %s", e.Op))
		}
		next.Pagination.CurrentPage = cur

	case SetPageSize:
		if e.Size < 1 {
			return s, errors.NewInvariantViolation(fmt.Sprintf("page size must be positive, got %d", e.Size)).
				WithDetail("page_size", e.Size)
		}
		next.Pagination = Pagination{PageSize: e.Size, CurrentPage: 1}

	case ToggleRow:
		if !s.Store.Has(e.ID) {
			return s, errors.NewInvariantViolation(fmt.Sprintf("no record with id %s", e.ID)).
				WithDetail("id", e.ID)
		}
		next.Selection.Toggle(e.ID)

	case SelectPage:
		next.Selection.SelectAll(s.PageIDs())

	case TogglePage:
		ids := s.PageIDs()
		if s.Selection.ContainsAll(ids) {
			next.Selection.Deselect(ids)
		} else {
			next.Selection.SelectAll(ids)
		}

	case DeselectAll:
		next.Selection.DeselectAll()

	case ReplaceRecords:
		store := e.Store
		if store == nil {
			store = EmptyStore()
		}
		next.Store = store
		next.Selection.Prune(store.IDs())

	default:
		return s, errors.NewInvariantViolation(fmt.Sprintf("unsupported event %T", ev))
	}

	return normalize(next), nil
}

// normalize restores the pagination invariants after a change
func normalize(s ViewState) ViewState {
	if s.Pagination.PageSize < 1 {
		s.Pagination.PageSize = DefaultPageSize
	}
	total := TotalPages(len(s.Filtered()), s.Pagination.PageSize)
	s.Pagination.CurrentPage = ClampPage(s.Pagination.CurrentPage, total)
	if s.Store == nil {
		s.Store = EmptyStore()
	}
	return s
}

// sortableKey looks key up in columns. A view without columns sorts by any
// key. Unknown keys are a violation, with the nearest column key suggested.
func sortableKey(columns []Column, key string) (bool, error) {
	if len(columns) == 0 {
		return key != "", nil
	}
	if col, ok := findColumn(columns, key); ok {
		return col.Sortable, nil
	}

	err := errors.NewInvariantViolation(fmt.Sprintf("unknown sort key %q", key)).WithDetail("key", key)
	if near := nearestKey(columns, key); near != "" {
		err = err.WithDetail("suggestion", near)
	}
	return false, err
}

func nearestKey(columns []Column, key string) string {
	best, bestDist := "", 4
	for _, c := range columns {
		if d := levenshtein.ComputeDistance(strings.ToLower(key), strings.ToLower(c.Key)); d < bestDist {
			best, bestDist = c.Key, d
		}
	}
	return best
}
