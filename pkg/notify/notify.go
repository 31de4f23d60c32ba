// Package notify listens on a NATS subject for user-change events and
// turns each one into a table refresh.
package notify

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/nats-io/nats.go"

	"github.com/memtensor/userdesk/pkg/errors"
	"github.com/memtensor/userdesk/pkg/interfaces"
	"github.com/memtensor/userdesk/pkg/logger"
	"github.com/memtensor/userdesk/pkg/metrics"
	"github.com/memtensor/userdesk/pkg/types"
)

// DefaultSubject is the subject user changes are published on
const DefaultSubject = "users.changed"

// Change is a published user change. Payloads that do not decode still
// count as a change with no detail.
type Change struct {
	Op  string   `json:"op,omitempty"`
	IDs []string `json:"ids,omitempty"`
}

// Subscription is an active subject subscription
type Subscription interface {
	Unsubscribe() error
}

// Conn is the part of a NATS connection the listener uses
type Conn interface {
	Subscribe(subject string, handler func(subject string, data []byte)) (Subscription, error)
	Close()
}

// Dialer opens a connection to url
type Dialer func(url string, log interfaces.Logger) (Conn, error)

// Options configures a Listener
type Options struct {
	URL     string
	Subject string
	// ConnectTimeout bounds the total time spent retrying the first connect
	ConnectTimeout time.Duration
	Dial           Dialer
	Logger         interfaces.Logger
	Metrics        interfaces.Metrics
}

// Listener subscribes to the change subject and calls a handler for every
// message
type Listener struct {
	url      string
	subject  string
	timeout  time.Duration
	dial     Dialer
	onChange func(context.Context, Change)
	logger   interfaces.Logger
	metrics  interfaces.Metrics

	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	conn   Conn
	sub    Subscription
}

// NewListener creates a listener that calls onChange for each change
func NewListener(opts Options, onChange func(context.Context, Change)) *Listener {
	if opts.Subject == "" {
		opts.Subject = DefaultSubject
	}
	if opts.URL == "" {
		opts.URL = nats.DefaultURL
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 30 * time.Second
	}
	if opts.Dial == nil {
		opts.Dial = DialNATS
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoOpMetrics()
	}
	return &Listener{
		url:      opts.URL,
		subject:  opts.Subject,
		timeout:  opts.ConnectTimeout,
		dial:     opts.Dial,
		onChange: onChange,
		logger:   opts.Logger.WithFields(map[string]interface{}{"component": "notify", "subject": opts.Subject}),
		metrics:  opts.Metrics,
	}
}

// Start connects with exponential backoff and subscribes. Handlers run
// with a context that is cancelled by Stop.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn != nil {
		return errors.NewConflictError("listener already started")
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	policy.MaxInterval = 5 * time.Second
	policy.MaxElapsedTime = l.timeout

	var conn Conn
	connect := func() error {
		c, err := l.dial(l.url, l.logger)
		if err != nil {
			return err
		}
		conn = c
		return nil
	}
	notify := func(err error, wait time.Duration) {
		l.metrics.Counter("notify_connect_retries_total", 1, nil)
		l.logger.Warn("NATS connect failed, retrying", map[string]interface{}{
			"error": err.Error(),
			"wait":  wait.String(),
		})
	}
	if err := backoff.RetryNotify(connect, backoff.WithContext(policy, ctx), notify); err != nil {
		return errors.WrapError(err, types.ErrorTypeExternal, errors.ErrCodeServiceUnavailable, "failed to connect to NATS")
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	sub, err := conn.Subscribe(l.subject, func(_ string, data []byte) {
		l.handle(runCtx, data)
	})
	if err != nil {
		cancel()
		conn.Close()
		return errors.WrapError(err, types.ErrorTypeExternal, errors.ErrCodeServiceUnavailable, "failed to subscribe")
	}

	l.ctx, l.cancel, l.conn, l.sub = runCtx, cancel, conn, sub
	l.logger.Info("listening for user changes")
	return nil
}

func (l *Listener) handle(ctx context.Context, data []byte) {
	if ctx.Err() != nil {
		return
	}
	var change Change
	if len(data) > 0 {
		if err := json.Unmarshal(data, &change); err != nil {
			l.logger.Debug("change payload not understood", map[string]interface{}{"error": err.Error()})
			change = Change{}
		}
	}
	l.metrics.Counter("notify_changes_total", 1, map[string]string{"op": change.Op})
	l.logger.Debug("user change received", map[string]interface{}{"op": change.Op, "ids": len(change.IDs)})
	l.onChange(ctx, change)
}

// Stop unsubscribes and closes the connection. It is safe to call more
// than once.
func (l *Listener) Stop() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.conn == nil {
		return nil
	}
	l.cancel()
	err := l.sub.Unsubscribe()
	l.conn.Close()
	l.conn, l.sub = nil, nil
	l.logger.Info("stopped listening for user changes")
	return err
}

// natsConn adapts *nats.Conn to Conn
type natsConn struct {
	nc *nats.Conn
}

// DialNATS connects to a NATS server with reconnects enabled
func DialNATS(url string, log interfaces.Logger) (Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("userdesk"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("NATS disconnected", map[string]interface{}{"error": err.Error()})
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected", map[string]interface{}{"url": nc.ConnectedUrl()})
		}),
	)
	if err != nil {
		return nil, err
	}
	return &natsConn{nc: nc}, nil
}

func (c *natsConn) Subscribe(subject string, handler func(string, []byte)) (Subscription, error) {
	sub, err := c.nc.Subscribe(subject, func(msg *nats.Msg) {
		handler(msg.Subject, msg.Data)
	})
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func (c *natsConn) Close() {
	c.nc.Close()
}
