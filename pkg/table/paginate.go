package table

import (
	"fmt"

	"github.com/memtensor/userdesk/pkg/errors"
	"github.com/memtensor/userdesk/pkg/types"
)

// Page is one slice of an ordered record sequence
type Page struct {
	Items      []types.Record
	Number     int // requested page after clamping
	TotalPages int
	TotalItems int
}

// TotalPages returns max(1, ceil(count/pageSize))
func TotalPages(count, pageSize int) int {
	if pageSize < 1 || count <= 0 {
		return 1
	}
	total := count / pageSize
	if count%pageSize != 0 {
		total++
	}
	return max(total, 1)
}

// ClampPage moves page into [1, totalPages]
func ClampPage(page, totalPages int) int {
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}

// Paginate returns the page of records at the requested 1-based index,
// clamping the index into range first. Callers must use Page.Number rather
// than the page they asked for. A page size below 1 is an invariant violation.
func Paginate(records []types.Record, pageSize, page int) (Page, error) {
	if pageSize < 1 {
		return Page{Items: []types.Record{}, Number: 1, TotalPages: 1, TotalItems: len(records)},
			errors.NewInvariantViolation(fmt.Sprintf("page size must be positive, got %d", pageSize)).
				WithDetail("page_size", pageSize)
	}

	total := TotalPages(len(records), pageSize)
	number := ClampPage(page, total)

	start := (number - 1) * pageSize
	end := min(start+pageSize, len(records))
	items := []types.Record{}
	if start < end {
		items = records[start:end:end]
	}

	return Page{
		Items:      items,
		Number:     number,
		TotalPages: total,
		TotalItems: len(records),
	}, nil
}
