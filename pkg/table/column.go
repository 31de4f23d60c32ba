package table

import (
	"fmt"

	"github.com/memtensor/userdesk/pkg/errors"
	"github.com/memtensor/userdesk/pkg/types"
)

// RenderFunc turns a raw field value into its display value
type RenderFunc func(value interface{}, rec types.Record) (interface{}, error)

// Column describes one table column
type Column struct {
	Key      string     `json:"key"`
	Label    string     `json:"label"`
	Sortable bool       `json:"sortable"`
	Render   RenderFunc `json:"-"`
}

// Cell is the display value of one column for one record
type Cell struct {
	Key   string      `json:"key"`
	Value interface{} `json:"value"`
	Err   error       `json:"-"`
}

// RenderCell renders rec's value for col. A failing or panicking render
// function does not abort the row: the cell falls back to the raw value
// and carries a render error.
func RenderCell(col Column, rec types.Record) (cell Cell) {
	raw := rec[col.Key]
	cell = Cell{Key: col.Key, Value: raw}
	if col.Render == nil {
		return cell
	}

	defer func() {
		if r := recover(); r != nil {
			cell.Value = raw
			cell.Err = errors.NewRenderError(col.Key, rec.ID(), fmt.Errorf("panic: %v", r))
		}
	}()

	v, err := col.Render(raw, rec)
	if err != nil {
		cell.Err = errors.NewRenderError(col.Key, rec.ID(), err)
		return cell
	}
	cell.Value = v
	return cell
}

func findColumn(columns []Column, key string) (Column, bool) {
	for _, c := range columns {
		if c.Key == key {
			return c, true
		}
	}
	return Column{}, false
}
