package session

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testStores returns every store available in this environment. Redis is
// included when USERDESK_TEST_REDIS_ADDR is set.
func testStores(t *testing.T) map[string]Store {
	t.Helper()
	stores := map[string]Store{"memory": NewMemoryStore()}

	db, err := NewDBStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	stores["sqlite"] = db

	if addr := os.Getenv("USERDESK_TEST_REDIS_ADDR"); addr != "" {
		rs, err := NewRedisStore(context.Background(), RedisConfig{Addr: addr, DB: 15})
		require.NoError(t, err)
		t.Cleanup(func() { _ = rs.Close() })
		stores["redis"] = rs
	}
	return stores
}

func TestStores(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			prefix := "test:" + NewSessionID() + ":"
			key := func(k string) string { return prefix + k }

			_, err := store.Get(ctx, key("missing"))
			assert.True(t, IsNotFound(err))

			require.NoError(t, store.Set(ctx, key("a"), "1", 0))
			v, err := store.Get(ctx, key("a"))
			require.NoError(t, err)
			assert.Equal(t, "1", v)

			require.NoError(t, store.Set(ctx, key("a"), "2", time.Hour))
			v, err = store.Get(ctx, key("a"))
			require.NoError(t, err)
			assert.Equal(t, "2", v)

			n, err := store.Incr(ctx, key("n"), time.Hour)
			require.NoError(t, err)
			assert.Equal(t, int64(1), n)
			n, err = store.Incr(ctx, key("n"), time.Hour)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			_, err = store.Incr(ctx, key("a"), 0)
			assert.NoError(t, err, "numeric strings increment")
			require.NoError(t, store.Set(ctx, key("word"), "abc", 0))
			_, err = store.Incr(ctx, key("word"), 0)
			assert.Error(t, err)

			require.NoError(t, store.Delete(ctx, key("a"), key("n"), key("never-set")))
			_, err = store.Get(ctx, key("a"))
			assert.True(t, IsNotFound(err))
			require.NoError(t, store.Delete(ctx))
		})
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	_, err := s.Incr(ctx, "c", time.Minute)
	require.NoError(t, err)

	now = now.Add(59 * time.Second)
	_, err = s.Get(ctx, "k")
	assert.NoError(t, err)
	n, err := s.Incr(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	now = now.Add(time.Second)
	_, err = s.Get(ctx, "k")
	assert.True(t, IsNotFound(err))
	n, err = s.Incr(ctx, "c", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n, "expiry is not extended by increments")
}

func TestDBStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "sessions.db")
	s, err := NewDBStore(path)
	require.NoError(t, err)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	require.NoError(t, s.Set(ctx, "short", "v", time.Minute))
	require.NoError(t, s.Set(ctx, "long", "v", time.Hour))
	require.NoError(t, s.Set(ctx, "forever", "v", 0))

	now = now.Add(2 * time.Minute)
	_, err = s.Get(ctx, "short")
	assert.True(t, IsNotFound(err))

	require.NoError(t, s.Set(ctx, "short2", "v", time.Minute))
	now = now.Add(2 * time.Minute)
	purged, err := s.Purge(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	require.NoError(t, s.Close())

	reopened, err := NewDBStore(path)
	require.NoError(t, err)
	defer reopened.Close()
	v, err := reopened.Get(ctx, "forever")
	require.NoError(t, err)
	assert.Equal(t, "v", v)
}

func TestStoreConcurrentIncr(t *testing.T) {
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			key := "test:" + NewSessionID() + ":count"
			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := store.Incr(ctx, key, time.Minute)
					assert.NoError(t, err)
				}()
			}
			wg.Wait()
			v, err := store.Get(ctx, key)
			require.NoError(t, err)
			assert.Equal(t, "20", v)
		})
	}
}
