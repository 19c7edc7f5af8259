package orch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/johnbchron/openai-orch/dispatcher"
	"github.com/johnbchron/openai-orch/hook"
	"github.com/johnbchron/openai-orch/id"
	"github.com/johnbchron/openai-orch/keys"
	"github.com/johnbchron/openai-orch/ledger"
	"github.com/johnbchron/openai-orch/middleware"
	"github.com/johnbchron/openai-orch/request"
)

// Orchestrator is the central interface for bulk request submission. It
// combines the Policies, the credentials, the shared request ledger, and
// the bounded-concurrency dispatcher behind two operations: Submit and
// Response (or its typed wrapper GetResponse).
//
// An *Orchestrator is a shareable handle: pass the same pointer to any
// number of goroutines. All handles are peers over the same ledger,
// dispatcher, and policies, and every method is safe for concurrent use.
type Orchestrator struct {
	policies Policies
	creds    keys.Keys
	ledger   *ledger.Ledger
	pool     *dispatcher.Pool
	hooks    *hook.Registry
	logger   *slog.Logger

	retention time.Duration
	janitorWG sync.WaitGroup
	stopCh    chan struct{}

	closed atomic.Bool
}

// Option configures an Orchestrator.
type Option func(*options)

type options struct {
	logger    *slog.Logger
	hooks     []hook.Hook
	mws       []middleware.Middleware
	retention time.Duration
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithHook registers a lifecycle hook (see the hook package).
func WithHook(h hook.Hook) Option {
	return func(o *options) { o.hooks = append(o.hooks, h) }
}

// WithMiddleware appends middleware to the per-attempt chain. The default
// chain is Recover → Tracing → Metrics → Logging; appended middleware run
// innermost, closest to the capability call.
func WithMiddleware(m middleware.Middleware) Option {
	return func(o *options) { o.mws = append(o.mws, m) }
}

// WithRetention bounds how long terminal ledger entries are retained. A
// janitor sweeps entries whose completion is older than d; a swept ID
// reads as ledger.ErrUnknownRequest afterwards. Zero (the default) retains
// terminal entries for the life of the Orchestrator.
func WithRetention(d time.Duration) Option {
	return func(o *options) { o.retention = d }
}

// New creates an Orchestrator with the given policies and credentials and
// starts its dispatcher. It fails with ErrInvalidPolicy if the policies
// are malformed.
func New(policies Policies, creds keys.Keys, opts ...Option) (*Orchestrator, error) {
	if err := policies.Validate(); err != nil {
		return nil, err
	}

	o := &options{logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}

	hooks := hook.NewRegistry(o.logger)
	for _, h := range o.hooks {
		hooks.Register(h)
	}

	mws := make([]middleware.Middleware, 0, len(o.mws)+3)
	mws = append(mws, middleware.Tracing(), middleware.Metrics(), middleware.Logging(o.logger))
	mws = append(mws, o.mws...)

	l := ledger.New()
	pool := dispatcher.NewPool(l, creds, dispatcher.Config{
		Concurrency:    policies.MaxConcurrency,
		AttemptTimeout: policies.AttemptTimeout,
		MaxRetries:     policies.MaxRetries,
		Backoff:        policies.Backoff,
		RateLimit:      policies.RateLimit,
		RateBurst:      policies.RateBurst,
	}, hooks, o.logger, mws...)

	orch := &Orchestrator{
		policies:  policies,
		creds:     creds,
		ledger:    l,
		pool:      pool,
		hooks:     hooks,
		logger:    o.logger,
		retention: o.retention,
		stopCh:    make(chan struct{}),
	}

	if err := pool.Start(context.Background()); err != nil {
		return nil, err
	}

	if orch.retention > 0 {
		orch.janitorWG.Add(1)
		go orch.janitorLoop()
	}

	return orch, nil
}

// Policies returns a copy of the orchestrator's policy bundle.
func (o *Orchestrator) Policies() Policies { return o.policies }

// Ledger returns the shared request ledger. Callers may read entries and
// await terminal states directly; only the dispatcher mutates entries.
func (o *Orchestrator) Ledger() *ledger.Ledger { return o.ledger }

// Submit creates a ledger entry for req and hands it to the dispatcher.
// It returns as soon as the entry exists, without waiting for execution.
// After Close it fails with ErrClosed.
func (o *Orchestrator) Submit(ctx context.Context, req request.Request) (id.RequestID, error) {
	if o.closed.Load() {
		return id.Nil, ErrClosed
	}

	rid := o.ledger.Create()
	if snap, err := o.ledger.Read(rid); err == nil {
		o.hooks.EmitRequestSubmitted(ctx, snap)
	}

	if !o.pool.Submit(rid, req) {
		return id.Nil, ErrClosed
	}

	o.logger.Debug("request submitted", slog.String("request_id", rid.String()))
	return rid, nil
}

// Response blocks until the request settles and returns its payload.
// A Failed entry yields its terminal error, a Cancelled entry yields
// ledger.ErrCancelled. Await errors (ledger.ErrUnknownRequest,
// ledger.ErrAwaitTimeout) propagate as-is; set a context deadline to bound
// the wait.
func (o *Orchestrator) Response(ctx context.Context, rid id.RequestID) (any, error) {
	e, err := o.ledger.AwaitTerminal(ctx, rid, 0)
	if err != nil {
		return nil, err
	}

	switch e.State {
	case ledger.StateSucceeded:
		return e.Payload, nil
	case ledger.StateCancelled:
		return nil, ledger.ErrCancelled
	default:
		return nil, e.Err
	}
}

// GetResponse awaits the terminal result for rid and decodes the payload
// into T. It fails with ErrDecodeMismatch if the stored payload is not a T.
func GetResponse[T any](ctx context.Context, o *Orchestrator, rid id.RequestID) (T, error) {
	var zero T

	payload, err := o.Response(ctx, rid)
	if err != nil {
		return zero, err
	}

	typed, ok := payload.(T)
	if !ok {
		return zero, fmt.Errorf("%w: have %T, want %T", ErrDecodeMismatch, payload, zero)
	}
	return typed, nil
}

// Gather awaits every ID in rids concurrently and returns the decoded
// payloads in the same order. The first error cancels the remaining waits.
func Gather[T any](ctx context.Context, o *Orchestrator, rids []id.RequestID) ([]T, error) {
	results := make([]T, len(rids))

	g, ctx := errgroup.WithContext(ctx)
	for i, rid := range rids {
		g.Go(func() error {
			res, err := GetResponse[T](ctx, o, rid)
			if err != nil {
				return fmt.Errorf("request %s: %w", rid.String(), err)
			}
			results[i] = res
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Cancel aborts a request that has not yet settled: its entry moves to the
// terminal Cancelled state, a pending retry is unscheduled, and a running
// attempt's context is cancelled. Cancelling a settled request fails with
// ledger.ErrInvalidTransition.
func (o *Orchestrator) Cancel(rid id.RequestID) error {
	return o.pool.Cancel(rid)
}

// Close gracefully shuts down the orchestrator: workers finish the attempt
// they are on (cancelled if ctx expires first), queued work is dropped,
// and shutdown hooks fire. Close is idempotent; Submit fails with
// ErrClosed afterwards.
func (o *Orchestrator) Close(ctx context.Context) error {
	if o.closed.Swap(true) {
		return nil
	}

	close(o.stopCh)
	o.janitorWG.Wait()

	err := o.pool.Stop(ctx)
	o.hooks.EmitShutdown(ctx)
	return err
}

// janitorLoop periodically evicts terminal entries older than the
// configured retention.
func (o *Orchestrator) janitorLoop() {
	defer o.janitorWG.Done()

	ticker := time.NewTicker(o.retention)
	defer ticker.Stop()

	for {
		select {
		case <-o.stopCh:
			return
		case <-ticker.C:
			if swept := o.ledger.SweepTerminal(o.retention); swept > 0 {
				o.logger.Debug("swept terminal entries", slog.Int("count", swept))
			}
		}
	}
}
