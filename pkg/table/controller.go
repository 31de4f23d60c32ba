package table

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/memtensor/userdesk/pkg/errors"
	"github.com/memtensor/userdesk/pkg/interfaces"
	"github.com/memtensor/userdesk/pkg/logger"
	"github.com/memtensor/userdesk/pkg/metrics"
	"github.com/memtensor/userdesk/pkg/types"
)

const tracerName = "github.com/memtensor/userdesk/pkg/table"

// FetchHint tells a fetcher which slice of the backend to load. The view
// engine still filters, sorts and pages locally over whatever is returned.
type FetchHint struct {
	Page  int
	Limit int
}

// Fetcher loads the record set for a refresh
type Fetcher interface {
	FetchRecords(ctx context.Context, hint FetchHint) ([]types.Record, error)
}

// FetcherFunc adapts a function to Fetcher
type FetcherFunc func(ctx context.Context, hint FetchHint) ([]types.Record, error)

// FetchRecords calls f
func (f FetcherFunc) FetchRecords(ctx context.Context, hint FetchHint) ([]types.Record, error) {
	return f(ctx, hint)
}

// Options configures a Controller
type Options struct {
	Columns  []Column
	PageSize int
	Hint     FetchHint
	// Strict returns invariant violations to the caller. Otherwise they are
	// logged and the offending event is ignored.
	Strict  bool
	Logger  interfaces.Logger
	Metrics interfaces.Metrics
	Tracer  trace.Tracer
}

// RefreshOutcome is how a refresh ended
type RefreshOutcome int

const (
	RefreshPending RefreshOutcome = iota
	RefreshApplied
	RefreshDiscarded
	RefreshFailed
)

func (o RefreshOutcome) String() string {
	switch o {
	case RefreshApplied:
		return "applied"
	case RefreshDiscarded:
		return "discarded"
	case RefreshFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Pending tracks one issued refresh
type Pending struct {
	Seq     uint64
	done    chan struct{}
	outcome RefreshOutcome
	err     error
}

// Done is closed when the refresh has been applied, discarded or has failed
func (p *Pending) Done() <-chan struct{} {
	return p.done
}

// Wait blocks until the refresh completes or ctx ends
func (p *Pending) Wait(ctx context.Context) (RefreshOutcome, error) {
	select {
	case <-p.done:
		return p.outcome, p.err
	case <-ctx.Done():
		return RefreshPending, ctx.Err()
	}
}

// Controller owns a ViewState and serializes the events and refresh
// completions applied to it
type Controller struct {
	mu      sync.Mutex
	state   ViewState
	fetcher Fetcher
	hint    FetchHint
	strict  bool

	issued   uint64
	loading  bool
	fetchErr error

	// version counts state changes; reported is the version whose render
	// errors were last logged
	version  uint64
	reported uint64

	logger  interfaces.Logger
	metrics interfaces.Metrics
	tracer  trace.Tracer
}

// NewController creates a controller with an empty store
func NewController(fetcher Fetcher, opts Options) *Controller {
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger()
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewNoOpMetrics()
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}
	return &Controller{
		version: 1,
		state:   NewViewState(opts.Columns, opts.PageSize),
		fetcher: fetcher,
		hint:    opts.Hint,
		strict:  opts.Strict,
		logger:  opts.Logger.WithFields(map[string]interface{}{"component": "table"}),
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
	}
}

// Dispatch applies ev
func (c *Controller) Dispatch(ev Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	next, err := Reduce(c.state, ev)
	if err != nil {
		return c.violation(EventName(ev), err)
	}
	c.setState(next)
	c.metrics.Counter("table_events_total", 1, map[string]string{"event": EventName(ev)})
	return nil
}

func (c *Controller) SetQuery(q string) error    { return c.Dispatch(SetQuery{Query: q}) }
func (c *Controller) ClickSort(key string) error { return c.Dispatch(ClickSort{Key: key}) }
func (c *Controller) SetPageSize(n int) error    { return c.Dispatch(SetPageSize{Size: n}) }
func (c *Controller) ToggleRow(id string) error  { return c.Dispatch(ToggleRow{ID: id}) }
func (c *Controller) SelectPage() error          { return c.Dispatch(SelectPage{}) }
func (c *Controller) TogglePage() error          { return c.Dispatch(TogglePage{}) }
func (c *Controller) DeselectAll() error         { return c.Dispatch(DeselectAll{}) }
func (c *Controller) Navigate(op NavOp, page int) error {
	return c.Dispatch(Navigate{Op: op, Page: page})
}

// Load installs records directly, as initial data. Any refresh still in
// flight is superseded by it.
func (c *Controller) Load(records []types.Record) error {
	store, storeErr := NewStore(records)

	c.mu.Lock()
	defer c.mu.Unlock()

	if storeErr != nil {
		if err := c.violation("load", storeErr); err != nil {
			return err
		}
	}
	c.issued++
	c.loading = false
	c.fetchErr = nil
	next, _ := Reduce(c.state, ReplaceRecords{Store: store})
	c.setState(next)
	return nil
}

// Refresh starts loading a new record set and returns at once. Only the
// most recently issued refresh is applied; earlier ones run to completion
// and their results are dropped. Events dispatched while loading are
// applied immediately.
func (c *Controller) Refresh(ctx context.Context) *Pending {
	c.mu.Lock()
	c.issued++
	seq := c.issued
	c.loading = true
	c.mu.Unlock()

	p := &Pending{Seq: seq, done: make(chan struct{})}
	go c.runRefresh(ctx, p)
	return p
}

func (c *Controller) runRefresh(ctx context.Context, p *Pending) {
	defer close(p.done)

	ctx, span := c.tracer.Start(ctx, "table.refresh",
		trace.WithAttributes(attribute.Int64("refresh.seq", int64(p.Seq))))
	defer span.End()

	start := time.Now()
	records, err := c.fetcher.FetchRecords(ctx, c.hint)
	c.metrics.Timer("table_refresh_duration_seconds", time.Since(start).Seconds(), nil)

	c.mu.Lock()
	defer c.mu.Unlock()

	if p.Seq != c.issued {
		p.outcome = RefreshDiscarded
		span.SetAttributes(attribute.String("refresh.outcome", p.outcome.String()))
		c.metrics.Counter("table_refresh_total", 1, map[string]string{"outcome": p.outcome.String()})
		c.logger.Debug("Discarded superseded refresh", map[string]interface{}{
			"seq":    p.Seq,
			"latest": c.issued,
		})
		return
	}
	c.loading = false

	if err == nil {
		store, storeErr := NewStore(records)
		if storeErr != nil {
			if c.strict {
				err = storeErr
			} else {
				c.logger.Warn("Dropped invalid records from refresh", map[string]interface{}{
					"seq":   p.Seq,
					"error": storeErr.Error(),
				})
			}
		}
		if err == nil {
			next, _ := Reduce(c.state, ReplaceRecords{Store: store})
			c.setState(next)
			c.fetchErr = nil
			p.outcome = RefreshApplied
			c.metrics.Gauge("table_records", float64(store.Len()), nil)
		}
	}

	if err != nil {
		c.fetchErr = errors.NewDataFetchError(err)
		p.outcome = RefreshFailed
		p.err = c.fetchErr
		span.RecordError(err)
		span.SetStatus(codes.Error, "refresh failed")
		c.logger.Error("Failed to refresh records", err, map[string]interface{}{"seq": p.Seq})
	}

	span.SetAttributes(attribute.String("refresh.outcome", p.outcome.String()))
	c.metrics.Counter("table_refresh_total", 1, map[string]string{"outcome": p.outcome.String()})
}

// setState installs next; callers hold c.mu
func (c *Controller) setState(next ViewState) {
	c.state = next
	c.version++
}

// State returns a copy of the current state
func (c *Controller) State() ViewState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state.Clone()
}

// View derives the current view, including refresh status
func (c *Controller) View() View {
	c.mu.Lock()
	state := c.state.Clone()
	version := c.version
	loading, fetchErr := c.loading, c.fetchErr
	c.mu.Unlock()

	v := Derive(state)
	v.Loading = loading
	if fetchErr != nil {
		v.FetchError = fetchErr.Error()
	}
	if len(v.RenderErrors) > 0 {
		c.reportRenderErrors(version, v.RenderErrors)
	}
	return v
}

// reportRenderErrors logs the render errors of a state version once
func (c *Controller) reportRenderErrors(version uint64, errs []error) {
	c.mu.Lock()
	if c.reported == version {
		c.mu.Unlock()
		return
	}
	c.reported = version
	c.mu.Unlock()

	c.metrics.Counter("table_render_errors_total", float64(len(errs)), nil)
	for _, err := range errs {
		c.logger.Warn("Cell render failed", map[string]interface{}{"error": err.Error()})
	}
}

// FetchError returns the error of the last refresh, or nil if it succeeded
func (c *Controller) FetchError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.fetchErr
}

// Selected returns the selected records in store order
func (c *Controller) Selected() []types.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]types.Record, 0, c.state.Selection.Len())
	for _, rec := range c.state.Store.Records() {
		if c.state.Selection.IsSelected(rec.ID()) {
			out = append(out, rec)
		}
	}
	return out
}

func (c *Controller) violation(op string, err error) error {
	c.metrics.Counter("table_invariant_violations_total", 1, map[string]string{"op": op})
	if c.strict {
		return err
	}
	c.logger.Warn("Ignored invalid table operation", map[string]interface{}{
		"op":    op,
		"error": err.Error(),
	})
	return nil
}
