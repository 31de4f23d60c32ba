package table

import (
	"fmt"

	"github.com/memtensor/userdesk/pkg/errors"
	"github.com/memtensor/userdesk/pkg/types"
)

// Store is an immutable snapshot of the raw record collection
type Store struct {
	records []types.Record
	index   map[string]int
}

// EmptyStore returns a store with no records
func EmptyStore() *Store {
	return &Store{index: map[string]int{}}
}

// NewStore builds a snapshot from records, copying each record so later
// changes by the caller do not leak in. Records without an id, or repeating
// an id already seen, are left out; in that case the store is still returned
// together with an error listing every rejected record.
func NewStore(records []types.Record) (*Store, error) {
	s := &Store{
		records: make([]types.Record, 0, len(records)),
		index:   make(map[string]int, len(records)),
	}

	rejected := errors.NewErrorList()
	for i, rec := range records {
		id := rec.ID()
		if id == "" {
			rejected.Add(errors.NewInvariantViolation(fmt.Sprintf("record at position %d has no id", i)).
				WithDetail("position", i))
			continue
		}
		if _, dup := s.index[id]; dup {
			rejected.Add(errors.NewInvariantViolation(fmt.Sprintf("duplicate record id %s", id)).
				WithDetail("position", i).WithDetail("id", id))
			continue
		}
		s.index[id] = len(s.records)
		s.records = append(s.records, rec.Clone())
	}

	return s, rejected.ToError()
}

// Records returns the records in insertion order. The slice is shared and
// must not be modified.
func (s *Store) Records() []types.Record {
	if s == nil {
		return nil
	}
	return s.records
}

// Len returns the number of records
func (s *Store) Len() int {
	if s == nil {
		return 0
	}
	return len(s.records)
}

// Has reports whether a record with id exists
func (s *Store) Has(id string) bool {
	if s == nil {
		return false
	}
	_, ok := s.index[id]
	return ok
}

// Get returns the record with the given id
func (s *Store) Get(id string) (types.Record, bool) {
	if s == nil {
		return nil, false
	}
	i, ok := s.index[id]
	if !ok {
		return nil, false
	}
	return s.records[i], true
}

// IDs returns the set of ids in the store
func (s *Store) IDs() types.IDSet {
	ids := make(types.IDSet, s.Len())
	if s == nil {
		return ids
	}
	for id := range s.index {
		ids[id] = struct{}{}
	}
	return ids
}
