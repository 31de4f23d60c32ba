package users

import (
	"context"

	"github.com/memtensor/userdesk/pkg/table"
	"github.com/memtensor/userdesk/pkg/types"
)

// UserLister is the part of Client a RecordFetcher needs
type UserLister interface {
	ListUsers(ctx context.Context, page, limit int) (*UserPage, error)
}

// RecordFetcher loads users as table records
type RecordFetcher struct {
	users    UserLister
	maxLimit int
}

// NewRecordFetcher creates a fetcher over users. Hint limits above
// maxLimit are clamped; maxLimit <= 0 means DefaultMaxListLimit.
func NewRecordFetcher(users UserLister, maxLimit int) *RecordFetcher {
	if maxLimit <= 0 {
		maxLimit = DefaultMaxListLimit
	}
	return &RecordFetcher{users: users, maxLimit: maxLimit}
}

// FetchRecords implements table.Fetcher
func (f *RecordFetcher) FetchRecords(ctx context.Context, hint table.FetchHint) ([]types.Record, error) {
	page, limit := hint.Page, hint.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > f.maxLimit {
		limit = f.maxLimit
	}
	result, err := f.users.ListUsers(ctx, page, limit)
	if err != nil {
		return nil, err
	}
	return result.Records(), nil
}
