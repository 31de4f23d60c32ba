package table

import (
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memtensor/userdesk/pkg/errors"
	"github.com/memtensor/userdesk/pkg/types"
)

func TestRenderCell(t *testing.T) {
	rec := types.Record{"id": 7, "name": "ann"}

	t.Run("raw value without render", func(t *testing.T) {
		cell := RenderCell(Column{Key: "name"}, rec)
		assert.Equal(t, "ann", cell.Value)
		assert.NoError(t, cell.Err)
	})

	t.Run("render function", func(t *testing.T) {
		col := Column{Key: "name", Render: func(v interface{}, r types.Record) (interface{}, error) {
			return strings.ToUpper(v.(string)) + "#" + r.ID(), nil
		}}
		cell := RenderCell(col, rec)
		assert.Equal(t, "ANN#7", cell.Value)
		assert.NoError(t, cell.Err)
	})

	t.Run("failing render falls back to raw", func(t *testing.T) {
		col := Column{Key: "name", Render: func(interface{}, types.Record) (interface{}, error) {
			return "partial", fmt.Errorf("bad format")
		}}
		cell := RenderCell(col, rec)
		assert.Equal(t, "ann", cell.Value)
		require.Error(t, cell.Err)
		assert.True(t, errors.IsCode(cell.Err, errors.ErrCodeRender))
		assert.Equal(t, "7", errors.GetAppError(cell.Err).Details["record_id"])
	})

	t.Run("panicking render falls back to raw", func(t *testing.T) {
		col := Column{Key: "missing", Render: func(v interface{}, _ types.Record) (interface{}, error) {
			return v.(string), nil
		}}
		cell := RenderCell(col, rec)
		assert.Nil(t, cell.Value)
		require.Error(t, cell.Err)
		assert.Contains(t, cell.Err.Error(), "render failed for column missing")
	})
}

func TestDerive(t *testing.T) {
	boom := func(v interface{}, r types.Record) (interface{}, error) {
		if r.ID() == "2" {
			panic("boom")
		}
		return fmt.Sprintf("<%v>", v), nil
	}
	columns := []Column{
		{Key: "id", Label: "ID", Sortable: true},
		{Key: "name", Label: "Name", Sortable: true, Render: boom},
	}

	store, err := NewStore(numbered(25))
	require.NoError(t, err)
	s, err := Reduce(NewViewState(columns, 10), ReplaceRecords{Store: store})
	require.NoError(t, err)

	t.Run("renders only the current page", func(t *testing.T) {
		v := Derive(s)
		assert.Len(t, v.Rows, 10)
		assert.Equal(t, 1, v.Page)
		assert.Equal(t, 3, v.TotalPages)
		assert.Equal(t, 25, v.MatchCount)
		assert.Equal(t, 25, v.TotalRecords)
		assert.False(t, v.HasPrev)
		assert.True(t, v.HasNext)

		assert.Equal(t, "<user01>", v.Rows[0].Cells[1].Value)
		assert.Equal(t, "user02", v.Rows[1].Cells[1].Value)
		assert.Len(t, v.RenderErrors, 1)
	})

	t.Run("headers carry the sort direction", func(t *testing.T) {
		next, err := Reduce(s, ClickSort{Key: "name"})
		require.NoError(t, err)
		v := Derive(next)
		assert.Equal(t, Ascending, v.Columns[1].Direction)
		assert.Empty(t, v.Columns[0].Direction)
	})

	t.Run("selection flags", func(t *testing.T) {
		next, err := Reduce(s, SelectPage{})
		require.NoError(t, err)
		v := Derive(next)
		assert.True(t, v.PageSelected)
		assert.Equal(t, 10, v.SelectedCount)
		for _, row := range v.Rows {
			assert.True(t, row.Selected)
		}

		next, err = Reduce(next, Navigate{Op: NavLast})
		require.NoError(t, err)
		v = Derive(next)
		assert.False(t, v.PageSelected)
		assert.False(t, v.HasNext)
		assert.True(t, v.HasPrev)
	})

	t.Run("empty view", func(t *testing.T) {
		v := Derive(NewViewState(columns, 10))
		assert.NotNil(t, v.Rows)
		assert.Empty(t, v.Rows)
		assert.False(t, v.PageSelected)
		assert.Equal(t, 1, v.TotalPages)
	})

	t.Run("encodes as json", func(t *testing.T) {
		data, err := json.Marshal(Derive(s))
		require.NoError(t, err)

		var decoded map[string]interface{}
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.EqualValues(t, 3, decoded["total_pages"])
		assert.Len(t, decoded["rows"], 10)
		assert.NotContains(t, decoded, "fetch_error")
	})
}

func TestFormatters(t *testing.T) {
	tests := []struct {
		format  string
		in      interface{}
		want    interface{}
		wantErr bool
	}{
		{"date", "2024-03-05T10:20:30Z", "2024-03-05", false},
		{"datetime", "2024-03-05T10:20:30+02:00", "2024-03-05 08:20", false},
		{"datetime", int64(0), "1970-01-01 00:00", false},
		{"date", nil, nil, false},
		{"date", "yesterday", nil, true},
		{"yesno", true, "Yes", false},
		{"yesno", false, "No", false},
		{"yesno", nil, "No", false},
		{"yesno", "maybe", nil, true},
		{"upper", "admin", "ADMIN", false},
		{"upper", 7, "7", false},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s %v", tt.format, tt.in), func(t *testing.T) {
			fn, ok := Formatter(tt.format)
			require.True(t, ok)
			got, err := fn(tt.in, types.Record{"id": 1})
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, ok := Formatter("sparkle")
	assert.False(t, ok)
}
