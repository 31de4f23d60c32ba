package notify

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memtensor/userdesk/pkg/errors"
	"github.com/memtensor/userdesk/pkg/interfaces"
	"github.com/memtensor/userdesk/pkg/logger"
	"github.com/memtensor/userdesk/pkg/metrics"
)

type fakeSub struct{ unsubscribed bool }

func (s *fakeSub) Unsubscribe() error {
	s.unsubscribed = true
	return nil
}

type fakeConn struct {
	mu       sync.Mutex
	handlers map[string]func(string, []byte)
	sub      *fakeSub
	closed   bool
}

func (c *fakeConn) Subscribe(subject string, handler func(string, []byte)) (Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers[subject] = handler
	c.sub = &fakeSub{}
	return c.sub, nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) publish(subject string, data []byte) {
	c.mu.Lock()
	h := c.handlers[subject]
	c.mu.Unlock()
	if h != nil {
		h(subject, data)
	}
}

// flakyDialer fails the first failures dials
func flakyDialer(failures int, conn *fakeConn) (Dialer, *int) {
	calls := 0
	return func(string, interfaces.Logger) (Conn, error) {
		calls++
		if calls <= failures {
			return nil, fmt.Errorf("connection refused")
		}
		return conn, nil
	}, &calls
}

func TestListener(t *testing.T) {
	conn := &fakeConn{handlers: map[string]func(string, []byte){}}
	dial, calls := flakyDialer(2, conn)
	m := metrics.NewTestMetrics()

	var mu sync.Mutex
	var got []Change
	l := NewListener(Options{
		Dial:           dial,
		ConnectTimeout: 10 * time.Second,
		Logger:         logger.NewTestLogger(),
		Metrics:        m,
	}, func(ctx context.Context, c Change) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, c)
	})

	require.NoError(t, l.Start(context.Background()))
	assert.Equal(t, 3, *calls)
	assert.Equal(t, 2.0, m.CounterValue("notify_connect_retries_total", nil))

	err := l.Start(context.Background())
	assert.True(t, errors.IsCode(err, errors.ErrCodeConflict))

	conn.publish(DefaultSubject, []byte(`{"op":"deleted","ids":["1","2"]}`))
	conn.publish(DefaultSubject, []byte(`not json`))
	conn.publish(DefaultSubject, nil)
	conn.publish("other.subject", []byte(`{}`))

	mu.Lock()
	require.Len(t, got, 3)
	assert.Equal(t, Change{Op: "deleted", IDs: []string{"1", "2"}}, got[0])
	assert.Equal(t, Change{}, got[1])
	mu.Unlock()
	assert.Equal(t, 1.0, m.CounterValue("notify_changes_total", map[string]string{"op": "deleted"}))

	require.NoError(t, l.Stop())
	assert.True(t, conn.sub.unsubscribed)
	assert.True(t, conn.closed)
	require.NoError(t, l.Stop())
}

func TestListenerGivesUp(t *testing.T) {
	dial, _ := flakyDialer(1000, nil)
	l := NewListener(Options{
		Dial:           dial,
		ConnectTimeout: 300 * time.Millisecond,
		Logger:         logger.NewTestLogger(),
	}, func(context.Context, Change) {})

	err := l.Start(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeServiceUnavailable))
}

func TestListenerCancelledStart(t *testing.T) {
	dial, _ := flakyDialer(1000, nil)
	l := NewListener(Options{Dial: dial, Logger: logger.NewTestLogger()}, func(context.Context, Change) {})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, l.Start(ctx))
}

func TestListenerNATS(t *testing.T) {
	url := os.Getenv("USERDESK_TEST_NATS_URL")
	if url == "" {
		t.Skip("USERDESK_TEST_NATS_URL not set")
	}

	changes := make(chan Change, 1)
	l := NewListener(Options{URL: url, Subject: "userdesk.test.changed", Logger: logger.NewTestLogger()},
		func(_ context.Context, c Change) { changes <- c })
	require.NoError(t, l.Start(context.Background()))
	defer l.Stop()

	pub, err := DialNATS(url, logger.NewTestLogger())
	require.NoError(t, err)
	defer pub.Close()
	require.NoError(t, pub.(*natsConn).nc.Publish("userdesk.test.changed", []byte(`{"op":"updated"}`)))

	select {
	case c := <-changes:
		assert.Equal(t, "updated", c.Op)
	case <-time.After(5 * time.Second):
		t.Fatal("no change received")
	}
}
