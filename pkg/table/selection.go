package table

import (
	"encoding/json"
	"sort"

	"github.com/memtensor/userdesk/pkg/types"
)

// Selection is the set of selected record ids. It is independent of the
// filter, sort and page: ids stay selected while their records exist.
//
// Copies of a Selection share storage; Clone before mutating a copy.
type Selection struct {
	ids map[string]struct{}
}

// NewSelection returns a selection holding ids
func NewSelection(ids ...string) Selection {
	s := Selection{ids: make(map[string]struct{}, len(ids))}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return s
}

// Clone returns an independent copy
func (s Selection) Clone() Selection {
	out := Selection{ids: make(map[string]struct{}, len(s.ids))}
	for id := range s.ids {
		out.ids[id] = struct{}{}
	}
	return out
}

// Toggle adds id when absent and removes it when present
func (s *Selection) Toggle(id string) {
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	if _, ok := s.ids[id]; ok {
		delete(s.ids, id)
		return
	}
	s.ids[id] = struct{}{}
}

// SelectAll adds exactly the given ids, which the caller takes from the
// visible page. Records on other pages are never selected by it, and ids
// selected earlier stay selected.
func (s *Selection) SelectAll(ids []string) {
	if s.ids == nil {
		s.ids = make(map[string]struct{}, len(ids))
	}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
}

// Deselect removes the given ids
func (s *Selection) Deselect(ids []string) {
	for _, id := range ids {
		delete(s.ids, id)
	}
}

// DeselectAll empties the selection
func (s *Selection) DeselectAll() {
	s.ids = make(map[string]struct{})
}

// IsSelected reports whether id is selected
func (s Selection) IsSelected(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// ContainsAll reports whether every id is selected. It is false for no ids.
func (s Selection) ContainsAll(ids []string) bool {
	if len(ids) == 0 {
		return false
	}
	for _, id := range ids {
		if !s.IsSelected(id) {
			return false
		}
	}
	return true
}

// Prune drops ids missing from valid and returns how many were dropped.
// It runs after each record refresh, never as part of Toggle.
func (s *Selection) Prune(valid types.IDSet) int {
	dropped := 0
	for id := range s.ids {
		if !valid.Has(id) {
			delete(s.ids, id)
			dropped++
		}
	}
	return dropped
}

// Len returns the number of selected ids
func (s Selection) Len() int {
	return len(s.ids)
}

// IDs returns the selected ids in sorted order
func (s Selection) IDs() []string {
	ids := make([]string, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Equal reports whether both selections hold the same ids
func (s Selection) Equal(other Selection) bool {
	if s.Len() != other.Len() {
		return false
	}
	for id := range s.ids {
		if !other.IsSelected(id) {
			return false
		}
	}
	return true
}

// MarshalJSON encodes the selection as a sorted id array
func (s Selection) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.IDs())
}
