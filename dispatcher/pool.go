// Package dispatcher implements the bounded-concurrency execution engine:
// a pool of worker goroutines pulling work items from a FIFO admission
// queue and driving the per-request retry/timeout state machine against
// the ledger.
//
// The worker pool is the concurrency gate. Exactly Concurrency workers
// exist, each executing at most one attempt at a time, so at no instant do
// more than Concurrency capability calls run. A failed attempt schedules
// its retry with a timer and returns the worker to the queue immediately,
// so no concurrency slot is held during a backoff wait.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/johnbchron/openai-orch/backoff"
	"github.com/johnbchron/openai-orch/hook"
	"github.com/johnbchron/openai-orch/id"
	"github.com/johnbchron/openai-orch/keys"
	"github.com/johnbchron/openai-orch/ledger"
	"github.com/johnbchron/openai-orch/middleware"
	"github.com/johnbchron/openai-orch/request"
)

var (
	// ErrAttemptTimeout marks an attempt that exceeded its deadline. It is
	// distinct from a capability-reported failure so the terminal cause of
	// a Failed entry reveals which kind of failure ended the request.
	ErrAttemptTimeout = errors.New("dispatcher: attempt deadline exceeded")

	// ErrRetriesExhausted marks the terminal failure recorded once the
	// retry budget is spent. It wraps the last attempt's error.
	ErrRetriesExhausted = errors.New("dispatcher: max retries exceeded")
)

// item is a transient work item: a request paired with its ledger ID and
// the number of attempts completed so far. It is not retained after the
// entry settles.
type item struct {
	id      id.RequestID
	req     request.Request
	attempt int
}

// Config holds the dispatcher's share of the orchestrator policies.
type Config struct {
	// Concurrency is the number of worker goroutines (the concurrency
	// ceiling). Must be at least 1.
	Concurrency int

	// AttemptTimeout is the deadline for each attempt.
	AttemptTimeout time.Duration

	// MaxRetries is the number of retries after the initial attempt.
	MaxRetries int

	// Backoff computes retry delays. Nil means backoff.DefaultStrategy().
	Backoff backoff.Strategy

	// RateLimit/RateBurst configure an optional token-bucket limiter on
	// attempt starts. Zero RateLimit disables it.
	RateLimit float64
	RateBurst int
}

// Pool manages the worker goroutines and the retry/timeout state machine.
type Pool struct {
	ledger  *ledger.Ledger
	creds   keys.Keys
	cfg     Config
	hooks   *hook.Registry
	mw      middleware.Middleware
	logger  *slog.Logger
	limiter *rate.Limiter

	queue *fifo

	baseCtx    context.Context
	baseCancel context.CancelFunc

	mu      sync.Mutex
	running bool
	wg      sync.WaitGroup

	// Pending retry timers, keyed by request ID.
	timerMu sync.Mutex
	timers  map[string]*time.Timer

	// Cancel funcs for attempts currently executing, keyed by request ID.
	activeMu sync.Mutex
	active   map[string]context.CancelFunc
}

// NewPool creates a dispatcher pool writing outcomes into l. The given
// middleware wrap every attempt; a Recover middleware is always installed
// outermost so a panicking capability counts as an attempt failure rather
// than killing a worker.
func NewPool(
	l *ledger.Ledger,
	creds keys.Keys,
	cfg Config,
	hooks *hook.Registry,
	logger *slog.Logger,
	mws ...middleware.Middleware,
) *Pool {
	if cfg.Backoff == nil {
		cfg.Backoff = backoff.DefaultStrategy()
	}

	p := &Pool{
		ledger: l,
		creds:  creds,
		cfg:    cfg,
		hooks:  hooks,
		logger: logger,
		queue:  newFIFO(),
		timers: make(map[string]*time.Timer),
		active: make(map[string]context.CancelFunc),
	}
	p.baseCtx, p.baseCancel = context.WithCancel(context.Background())

	chain := make([]middleware.Middleware, 0, len(mws)+1)
	chain = append(chain, middleware.Recover(logger))
	chain = append(chain, mws...)
	p.mw = middleware.Chain(chain...)

	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		p.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	return p
}

// Start launches the worker goroutines. It returns immediately.
func (p *Pool) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("dispatcher starting",
		slog.Int("concurrency", p.cfg.Concurrency),
		slog.Int("max_retries", p.cfg.MaxRetries),
		slog.Duration("attempt_timeout", p.cfg.AttemptTimeout),
	)

	for range p.cfg.Concurrency {
		p.wg.Add(1)
		go p.workerLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish the
// attempt they are on. If the context has a deadline, in-flight attempts
// are cancelled when time runs out. Queued and retrying items are dropped;
// their entries stay non-terminal (process shutdown).
func (p *Pool) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("dispatcher stopping")

	// Stop pending retry timers before closing the queue so nothing is
	// re-enqueued mid-shutdown.
	p.timerMu.Lock()
	for key, t := range p.timers {
		t.Stop()
		delete(p.timers, key)
	}
	p.timerMu.Unlock()

	p.queue.Close()

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("dispatcher stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("dispatcher shutdown timed out, cancelling active attempts")
		p.baseCancel()
		p.wg.Wait()
	}

	p.baseCancel()
	return nil
}

// Submit enqueues a work item for rid. The ledger entry must already exist
// (in Pending state). Submit reports false if the pool is shut down.
func (p *Pool) Submit(rid id.RequestID, req request.Request) bool {
	return p.queue.Push(&item{id: rid, req: req})
}

// Cancel moves a non-terminal request to the Cancelled state, stops its
// pending retry timer, and aborts its running attempt if one is executing.
// It fails with ledger.ErrUnknownRequest for unknown IDs and
// ledger.ErrInvalidTransition if the entry is already terminal.
func (p *Pool) Cancel(rid id.RequestID) error {
	if err := p.ledger.MarkCancelled(rid); err != nil {
		return err
	}

	key := rid.String()

	p.timerMu.Lock()
	if t, ok := p.timers[key]; ok {
		t.Stop()
		delete(p.timers, key)
	}
	p.timerMu.Unlock()

	p.activeMu.Lock()
	if cancel, ok := p.active[key]; ok {
		cancel()
	}
	p.activeMu.Unlock()

	if snap, err := p.ledger.Read(rid); err == nil {
		p.hooks.EmitRequestCancelled(p.baseCtx, snap)
	}

	p.logger.Info("request cancelled", slog.String("request_id", key))
	return nil
}

// workerLoop is run by each worker goroutine.
func (p *Pool) workerLoop() {
	defer p.wg.Done()

	for {
		it, ok := p.queue.Pop()
		if !ok {
			return
		}
		p.process(it)
	}
}

// process runs one attempt for the item and applies the retry/timeout
// state machine. Transition failures mean the entry settled concurrently
// (cancellation); the item is dropped without further work.
func (p *Pool) process(it *item) {
	if p.limiter != nil {
		if err := p.limiter.Wait(p.baseCtx); err != nil {
			return
		}
	}

	attempt := it.attempt + 1
	if err := p.ledger.MarkInFlight(it.id, attempt); err != nil {
		p.logger.Debug("dropping work item",
			slog.String("request_id", it.id.String()),
			slog.String("reason", err.Error()),
		)
		return
	}

	snap, err := p.ledger.Read(it.id)
	if err != nil {
		return
	}
	p.hooks.EmitRequestStarted(p.baseCtx, snap)

	start := time.Now()
	payload, execErr := p.runAttempt(snap, it)
	elapsed := time.Since(start)

	if execErr == nil {
		p.settleSucceeded(it, payload, elapsed)
		return
	}

	if attempt > p.cfg.MaxRetries {
		p.settleFailed(it, attempt, execErr)
		return
	}

	p.scheduleRetry(it, attempt, execErr)
}

func (p *Pool) settleSucceeded(it *item, payload any, elapsed time.Duration) {
	if err := p.ledger.MarkSucceeded(it.id, payload); err != nil {
		// Settled concurrently (cancelled); the attempt result is dropped.
		p.logger.Debug("discarding attempt result",
			slog.String("request_id", it.id.String()),
			slog.String("reason", err.Error()),
		)
		return
	}

	snap, err := p.ledger.Read(it.id)
	if err != nil {
		return
	}
	p.hooks.EmitRequestCompleted(p.baseCtx, snap, elapsed)

	p.logger.Info("request succeeded",
		slog.String("request_id", it.id.String()),
		slog.Int("attempts", snap.Attempt),
		slog.Duration("elapsed", elapsed),
	)
}

func (p *Pool) settleFailed(it *item, attempt int, execErr error) {
	cause := fmt.Errorf("%w after %d attempts: %w", ErrRetriesExhausted, attempt, execErr)
	if err := p.ledger.MarkFailed(it.id, cause); err != nil {
		return
	}

	snap, err := p.ledger.Read(it.id)
	if err != nil {
		return
	}
	p.hooks.EmitRequestFailed(p.baseCtx, snap, cause)

	p.logger.Warn("request failed, retries exhausted",
		slog.String("request_id", it.id.String()),
		slog.Int("attempts", attempt),
		slog.String("error", execErr.Error()),
	)
}

// scheduleRetry marks the entry Retrying and re-enqueues the item when the
// backoff delay elapses. The worker returns to the queue immediately, so
// the concurrency slot is free for other work during the wait.
func (p *Pool) scheduleRetry(it *item, attempt int, execErr error) {
	delay := p.cfg.Backoff.Delay(attempt)
	nextAt := time.Now().UTC().Add(delay)

	if err := p.ledger.MarkRetrying(it.id, attempt, nextAt, execErr); err != nil {
		return
	}

	snap, err := p.ledger.Read(it.id)
	if err != nil {
		return
	}
	p.hooks.EmitRequestRetrying(p.baseCtx, snap, attempt, nextAt)

	p.logger.Info("retry scheduled",
		slog.String("request_id", it.id.String()),
		slog.Int("attempt", attempt),
		slog.Int("max_retries", p.cfg.MaxRetries),
		slog.Duration("delay", delay),
		slog.String("error", execErr.Error()),
	)

	it.attempt = attempt
	key := it.id.String()

	p.timerMu.Lock()
	p.timers[key] = time.AfterFunc(delay, func() {
		p.timerMu.Lock()
		delete(p.timers, key)
		p.timerMu.Unlock()
		p.queue.Push(it)
	})
	p.timerMu.Unlock()
}

func (p *Pool) trackActive(key string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.active[key] = cancel
	p.activeMu.Unlock()
}

func (p *Pool) untrackActive(key string) {
	p.activeMu.Lock()
	delete(p.active, key)
	p.activeMu.Unlock()
}
