package table

import (
	"github.com/memtensor/userdesk/pkg/types"
)

// Row is one rendered record on the current page
type Row struct {
	ID       string       `json:"id"`
	Record   types.Record `json:"record"`
	Cells    []Cell       `json:"cells"`
	Selected bool         `json:"selected"`
}

// ColumnHeader is a column as shown in the header row
type ColumnHeader struct {
	Key       string    `json:"key"`
	Label     string    `json:"label"`
	Sortable  bool      `json:"sortable"`
	Direction Direction `json:"direction,omitempty"`
}

// View is everything a table renderer needs, derived from a ViewState
type View struct {
	Columns       []ColumnHeader `json:"columns"`
	Rows          []Row          `json:"rows"`
	Query         string         `json:"query"`
	Sort          *SortDirective `json:"sort,omitempty"`
	Page          int            `json:"page"`
	PageSize      int            `json:"page_size"`
	TotalPages    int            `json:"total_pages"`
	MatchCount    int            `json:"match_count"`
	TotalRecords  int            `json:"total_records"`
	SelectedCount int            `json:"selected_count"`
	PageSelected  bool           `json:"page_selected"`
	HasPrev       bool           `json:"has_prev"`
	HasNext       bool           `json:"has_next"`
	Loading       bool           `json:"loading"`
	FetchError    string         `json:"fetch_error,omitempty"`
	RenderErrors  []error        `json:"-"`
}

// Derive computes the view of s. Only rows on the current page are rendered.
func Derive(s ViewState) View {
	filtered := s.Filtered()
	page := s.CurrentPage()

	v := View{
		Columns:       headers(s),
		Rows:          make([]Row, 0, len(page.Items)),
		Query:         s.Query,
		Sort:          s.Sort,
		Page:          page.Number,
		PageSize:      s.Pagination.PageSize,
		TotalPages:    page.TotalPages,
		MatchCount:    len(filtered),
		TotalRecords:  s.Store.Len(),
		SelectedCount: s.Selection.Len(),
		HasPrev:       page.Number > 1,
		HasNext:       page.Number < page.TotalPages,
	}

	allSelected := len(page.Items) > 0
	for _, rec := range page.Items {
		id := rec.ID()
		row := Row{
			ID:       id,
			Record:   rec,
			Cells:    make([]Cell, 0, len(s.Columns)),
			Selected: s.Selection.IsSelected(id),
		}
		for _, col := range s.Columns {
			cell := RenderCell(col, rec)
			if cell.Err != nil {
				v.RenderErrors = append(v.RenderErrors, cell.Err)
			}
			row.Cells = append(row.Cells, cell)
		}
		if !row.Selected {
			allSelected = false
		}
		v.Rows = append(v.Rows, row)
	}
	v.PageSelected = allSelected

	return v
}

func headers(s ViewState) []ColumnHeader {
	out := make([]ColumnHeader, 0, len(s.Columns))
	for _, c := range s.Columns {
		h := ColumnHeader{Key: c.Key, Label: c.Label, Sortable: c.Sortable}
		if s.Sort != nil && s.Sort.Key == c.Key {
			h.Direction = s.Sort.Direction
		}
		out = append(out, h)
	}
	return out
}
