package orch_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	orch "github.com/johnbchron/openai-orch"
	"github.com/johnbchron/openai-orch/backoff"
	"github.com/johnbchron/openai-orch/id"
	"github.com/johnbchron/openai-orch/keys"
	"github.com/johnbchron/openai-orch/ledger"
	"github.com/johnbchron/openai-orch/request"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestOrchestrator builds an orchestrator with fast-retry policies and
// closes it at test cleanup.
func newTestOrchestrator(t *testing.T, policies orch.Policies, opts ...orch.Option) *orch.Orchestrator {
	t.Helper()

	opts = append([]orch.Option{orch.WithLogger(testLogger())}, opts...)
	o, err := orch.New(policies, keys.New("sk-test", ""), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = o.Close(ctx)
	})

	return o
}

func fastPolicies() orch.Policies {
	return orch.Policies{
		MaxConcurrency: 4,
		AttemptTimeout: 5 * time.Second,
		MaxRetries:     2,
		Backoff:        backoff.NewImmediate(),
	}
}

func TestNew_RejectsInvalidPolicies(t *testing.T) {
	_, err := orch.New(orch.Policies{}, keys.New("sk-test", ""))
	if !errors.Is(err, orch.ErrInvalidPolicy) {
		t.Errorf("New error = %v, want ErrInvalidPolicy", err)
	}
}

func TestSubmitAndResponse_Roundtrip(t *testing.T) {
	o := newTestOrchestrator(t, fastPolicies())

	rid, err := o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
		return "result", nil
	}))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if rid.IsNil() {
		t.Fatal("Submit returned a nil ID")
	}

	payload, err := o.Response(context.Background(), rid)
	if err != nil {
		t.Fatalf("Response failed: %v", err)
	}
	if payload != "result" {
		t.Errorf("payload = %v, want %q", payload, "result")
	}
}

func TestSubmit_ReturnsBeforeExecution(t *testing.T) {
	o := newTestOrchestrator(t, fastPolicies())

	release := make(chan struct{})
	rid, err := o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
		<-release
		return nil, nil
	}))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	// The entry must exist and be live even though execution is blocked.
	e, err := o.Ledger().Read(rid)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if e.State.Terminal() {
		t.Errorf("entry settled before the request ran: %q", e.State)
	}

	close(release)
	if _, err := o.Response(context.Background(), rid); err != nil {
		t.Fatalf("Response failed: %v", err)
	}
}

func TestGetResponse_TypedPayload(t *testing.T) {
	o := newTestOrchestrator(t, fastPolicies())

	rid, err := o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
		return 42, nil
	}))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	n, err := orch.GetResponse[int](context.Background(), o, rid)
	if err != nil {
		t.Fatalf("GetResponse failed: %v", err)
	}
	if n != 42 {
		t.Errorf("GetResponse = %d, want 42", n)
	}
}

func TestGetResponse_DecodeMismatch(t *testing.T) {
	o := newTestOrchestrator(t, fastPolicies())

	rid, err := o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
		return "a string", nil
	}))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	_, err = orch.GetResponse[int](context.Background(), o, rid)
	if !errors.Is(err, orch.ErrDecodeMismatch) {
		t.Errorf("GetResponse error = %v, want ErrDecodeMismatch", err)
	}
}

func TestResponse_FailedRequestYieldsCause(t *testing.T) {
	o := newTestOrchestrator(t, fastPolicies())

	boom := errors.New("permanently broken")
	rid, err := o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
		return nil, boom
	}))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	_, err = o.Response(context.Background(), rid)
	if !errors.Is(err, boom) {
		t.Errorf("Response error = %v, should wrap the attempt error", err)
	}
}

func TestResponse_UnknownRequest(t *testing.T) {
	o := newTestOrchestrator(t, fastPolicies())

	_, err := o.Response(context.Background(), id.NewRequestID())
	if !errors.Is(err, ledger.ErrUnknownRequest) {
		t.Errorf("Response error = %v, want ErrUnknownRequest", err)
	}
}

func TestResponse_ContextDeadline(t *testing.T) {
	o := newTestOrchestrator(t, fastPolicies())

	rid, err := o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
		time.Sleep(2 * time.Second)
		return nil, nil
	}))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = o.Response(ctx, rid)
	if !errors.Is(err, ledger.ErrAwaitTimeout) {
		t.Errorf("Response error = %v, want ErrAwaitTimeout", err)
	}
}

func TestResponse_ManyAwaitersOneRequest(t *testing.T) {
	o := newTestOrchestrator(t, fastPolicies())

	rid, err := o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
		time.Sleep(50 * time.Millisecond)
		return "shared", nil
	}))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	const awaiters = 8
	var wg sync.WaitGroup
	errs := make([]error, awaiters)
	for i := range awaiters {
		wg.Add(1)
		go func() {
			defer wg.Done()
			payload, err := o.Response(context.Background(), rid)
			if err == nil && payload != "shared" {
				err = errors.New("wrong payload")
			}
			errs[i] = err
		}()
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("awaiter %d: %v", i, err)
		}
	}
}

func TestGather_CollectsInOrder(t *testing.T) {
	o := newTestOrchestrator(t, fastPolicies())

	rids := make([]id.RequestID, 5)
	for i := range rids {
		rid, err := o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
			return i, nil
		}))
		if err != nil {
			t.Fatalf("Submit %d failed: %v", i, err)
		}
		rids[i] = rid
	}

	results, err := orch.Gather[int](context.Background(), o, rids)
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for i, got := range results {
		if got != i {
			t.Errorf("results[%d] = %d, want %d", i, got, i)
		}
	}
}

func TestGather_PropagatesFailure(t *testing.T) {
	o := newTestOrchestrator(t, fastPolicies())

	okID, err := o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
		return 1, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	boom := errors.New("broken")
	badID, err := o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
		return nil, boom
	}))
	if err != nil {
		t.Fatal(err)
	}

	_, err = orch.Gather[int](context.Background(), o, []id.RequestID{okID, badID})
	if !errors.Is(err, boom) {
		t.Errorf("Gather error = %v, should wrap the failing request's cause", err)
	}
}

func TestCancel_SettlesCancelled(t *testing.T) {
	o := newTestOrchestrator(t, fastPolicies())

	var started atomic.Bool
	rid, err := o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
		started.Store(true)
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	if err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for !started.Load() {
		select {
		case <-deadline:
			t.Fatal("attempt never started")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	if err := o.Cancel(rid); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}

	_, err = o.Response(context.Background(), rid)
	if !errors.Is(err, ledger.ErrCancelled) {
		t.Errorf("Response error = %v, want ErrCancelled", err)
	}
}

func TestClose_RejectsFurtherSubmits(t *testing.T) {
	o, err := orch.New(fastPolicies(), keys.New("sk-test", ""), orch.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	_, err = o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
		return nil, nil
	}))
	if !errors.Is(err, orch.ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}

	// Close is idempotent.
	if err := o.Close(ctx); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}

func TestClose_WaitsForInFlightAttempts(t *testing.T) {
	o, err := orch.New(fastPolicies(), keys.New("sk-test", ""), orch.WithLogger(testLogger()))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	var started, finished atomic.Bool
	rid, err := o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
		started.Store(true)
		time.Sleep(100 * time.Millisecond)
		finished.Store(true)
		return "done", nil
	}))
	if err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for !started.Load() {
		select {
		case <-deadline:
			t.Fatal("attempt never started")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := o.Close(ctx); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if !finished.Load() {
		t.Error("Close returned before the in-flight attempt finished")
	}
	e, err := o.Ledger().Read(rid)
	if err != nil {
		t.Fatal(err)
	}
	if e.State != ledger.StateSucceeded {
		t.Errorf("State = %q, want succeeded", e.State)
	}
}

func TestWithRetention_SweepsTerminalEntries(t *testing.T) {
	o := newTestOrchestrator(t, fastPolicies(), orch.WithRetention(50*time.Millisecond))

	rid, err := o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
		return nil, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Response(context.Background(), rid); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for {
		if _, err := o.Ledger().Read(rid); errors.Is(err, ledger.ErrUnknownRequest) {
			return
		}
		select {
		case <-deadline:
			t.Fatal("terminal entry was never swept")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func TestWithHook_ObservesLifecycle(t *testing.T) {
	h := &lifecycleHook{}
	o := newTestOrchestrator(t, fastPolicies(), orch.WithHook(h))

	rid, err := o.Submit(context.Background(), request.Func(func(ctx context.Context, creds keys.Keys) (any, error) {
		return nil, nil
	}))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := o.Response(context.Background(), rid); err != nil {
		t.Fatal(err)
	}

	deadline := time.After(5 * time.Second)
	for h.completed.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("completed hook never fired")
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	if h.submitted.Load() != 1 {
		t.Errorf("submitted = %d, want 1", h.submitted.Load())
	}
	if h.started.Load() != 1 {
		t.Errorf("started = %d, want 1", h.started.Load())
	}
}

type lifecycleHook struct {
	submitted atomic.Int64
	started   atomic.Int64
	completed atomic.Int64
}

func (h *lifecycleHook) Name() string { return "lifecycle-counter" }

func (h *lifecycleHook) OnRequestSubmitted(ctx context.Context, e ledger.Entry) error {
	h.submitted.Add(1)
	return nil
}

func (h *lifecycleHook) OnRequestStarted(ctx context.Context, e ledger.Entry) error {
	h.started.Add(1)
	return nil
}

func (h *lifecycleHook) OnRequestCompleted(ctx context.Context, e ledger.Entry, elapsed time.Duration) error {
	h.completed.Add(1)
	return nil
}
