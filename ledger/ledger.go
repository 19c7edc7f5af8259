// Package ledger implements the shared request ledger: the authoritative
// per-request state store that decouples submission from result retrieval.
//
// Every submitted request owns exactly one Entry, keyed by its RequestID.
// Entries move through a monotonic state machine (Pending → InFlight →
// Retrying → … → Succeeded | Failed | Cancelled); terminal states are
// immutable once reached. All transitions for a given ID are linearized
// under the ledger lock, so concurrent submitters, workers, and awaiters
// never observe an out-of-order state.
package ledger

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/johnbchron/openai-orch/id"
)

var (
	// ErrUnknownRequest is returned when an ID was never created in this
	// ledger (or its terminal entry has already been swept).
	ErrUnknownRequest = errors.New("ledger: unknown request")

	// ErrInvalidTransition is returned when a state change would violate
	// the entry state machine, including any write to a terminal entry.
	ErrInvalidTransition = errors.New("ledger: invalid state transition")

	// ErrAwaitTimeout is returned by AwaitTerminal when the caller's wait
	// budget elapses before the entry reaches a terminal state.
	ErrAwaitTimeout = errors.New("ledger: await timed out")

	// ErrCancelled is the terminal cause recorded for cancelled requests.
	ErrCancelled = errors.New("ledger: request cancelled")
)

// State is the lifecycle state of a ledger entry.
type State string

const (
	// StatePending means the request has been submitted but no attempt
	// has started.
	StatePending State = "pending"
	// StateInFlight means an attempt is currently executing.
	StateInFlight State = "in_flight"
	// StateRetrying means the last attempt failed and the next one is
	// scheduled for NextAttemptAt.
	StateRetrying State = "retrying"
	// StateSucceeded means an attempt completed with a payload. Terminal.
	StateSucceeded State = "succeeded"
	// StateFailed means the retry budget is exhausted. Terminal.
	StateFailed State = "failed"
	// StateCancelled means the request was cancelled before completing.
	// Terminal.
	StateCancelled State = "cancelled"
)

// Terminal reports whether s is a terminal state.
func (s State) Terminal() bool {
	return s == StateSucceeded || s == StateFailed || s == StateCancelled
}

// Entry is a snapshot of a single request's ledger state.
type Entry struct {
	ID    id.RequestID
	State State

	// Attempt is the 1-based number of the current (or last) attempt.
	// Zero while Pending.
	Attempt int

	// NextAttemptAt is set while Retrying: the earliest instant the next
	// attempt may start.
	NextAttemptAt time.Time

	// Payload holds the success result once Succeeded.
	Payload any

	// Err holds the last observed attempt error. For Failed entries it is
	// the terminal cause; for Retrying entries it is the error that
	// triggered the retry.
	Err error

	CreatedAt   time.Time
	UpdatedAt   time.Time
	CompletedAt *time.Time
}

// entry is the ledger-internal record: the public snapshot plus the
// notification channel closed exactly once on terminal transition.
type entry struct {
	Entry
	done chan struct{}
}

// Ledger is a concurrency-safe in-memory request state store. The zero
// value is not usable; create one with New.
type Ledger struct {
	mu      sync.RWMutex
	entries map[string]*entry
}

// New returns an empty Ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[string]*entry)}
}

// Create allocates a fresh RequestID, inserts a Pending entry for it, and
// returns the ID. It never blocks on execution.
func (l *Ledger) Create() id.RequestID {
	rid := id.NewRequestID()
	now := time.Now().UTC()

	l.mu.Lock()
	l.entries[rid.String()] = &entry{
		Entry: Entry{
			ID:        rid,
			State:     StatePending,
			CreatedAt: now,
			UpdatedAt: now,
		},
		done: make(chan struct{}),
	}
	l.mu.Unlock()

	return rid
}

// Read returns a snapshot of the entry for rid, or ErrUnknownRequest.
func (l *Ledger) Read(rid id.RequestID) (Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	e, ok := l.entries[rid.String()]
	if !ok {
		return Entry{}, ErrUnknownRequest
	}
	return e.Entry, nil
}

// Len returns the number of entries currently retained.
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// validTransition encodes the entry state machine. Terminal states have no
// outgoing edges, which makes terminal immutability a structural property
// rather than a special case.
var validTransition = map[State]map[State]bool{
	StatePending: {
		StateInFlight:  true,
		StateSucceeded: true, // single synchronous-step completion
		StateFailed:    true,
		StateCancelled: true,
	},
	StateInFlight: {
		StateRetrying:  true,
		StateSucceeded: true,
		StateFailed:    true,
		StateCancelled: true,
	},
	StateRetrying: {
		StateInFlight:  true,
		StateFailed:    true,
		StateCancelled: true,
	},
}

// transition applies mutate to the entry for rid if moving to next is legal
// from its current state. It closes the done channel when next is terminal.
func (l *Ledger) transition(rid id.RequestID, next State, mutate func(*entry)) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[rid.String()]
	if !ok {
		return ErrUnknownRequest
	}
	if !validTransition[e.State][next] {
		return ErrInvalidTransition
	}

	e.State = next
	e.UpdatedAt = time.Now().UTC()
	if mutate != nil {
		mutate(e)
	}

	if next.Terminal() {
		now := e.UpdatedAt
		e.CompletedAt = &now
		close(e.done)
	}
	return nil
}

// MarkInFlight records the start of the given 1-based attempt.
func (l *Ledger) MarkInFlight(rid id.RequestID, attempt int) error {
	return l.transition(rid, StateInFlight, func(e *entry) {
		e.Attempt = attempt
		e.NextAttemptAt = time.Time{}
	})
}

// MarkRetrying records a failed attempt and the instant the next attempt
// may start. cause becomes the entry's last observed error.
func (l *Ledger) MarkRetrying(rid id.RequestID, attempt int, nextAttemptAt time.Time, cause error) error {
	return l.transition(rid, StateRetrying, func(e *entry) {
		e.Attempt = attempt
		e.NextAttemptAt = nextAttemptAt
		e.Err = cause
	})
}

// MarkSucceeded records the success payload and wakes all awaiters.
func (l *Ledger) MarkSucceeded(rid id.RequestID, payload any) error {
	return l.transition(rid, StateSucceeded, func(e *entry) {
		e.Payload = payload
	})
}

// MarkFailed records the terminal failure cause and wakes all awaiters.
func (l *Ledger) MarkFailed(rid id.RequestID, cause error) error {
	return l.transition(rid, StateFailed, func(e *entry) {
		e.Err = cause
	})
}

// MarkCancelled moves a non-terminal entry to Cancelled and wakes all
// awaiters. The entry's error is set to ErrCancelled.
func (l *Ledger) MarkCancelled(rid id.RequestID) error {
	return l.transition(rid, StateCancelled, func(e *entry) {
		e.Err = ErrCancelled
	})
}

// AwaitTerminal blocks until the entry for rid reaches a terminal state and
// returns its snapshot. If timeout is positive and elapses first it returns
// ErrAwaitTimeout; a cancelled ctx propagates ctx.Err(), except that a
// context deadline is also reported as ErrAwaitTimeout. A timed-out await
// does not disturb the entry: a later call still observes the terminal
// result. Any number of goroutines may await the same ID concurrently; all
// are woken on the terminal transition.
func (l *Ledger) AwaitTerminal(ctx context.Context, rid id.RequestID, timeout time.Duration) (Entry, error) {
	l.mu.RLock()
	e, ok := l.entries[rid.String()]
	l.mu.RUnlock()
	if !ok {
		return Entry{}, ErrUnknownRequest
	}

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case <-e.done:
		return l.Read(rid)
	case <-timer:
		return Entry{}, ErrAwaitTimeout
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Entry{}, ErrAwaitTimeout
		}
		return Entry{}, ctx.Err()
	}
}

// SweepTerminal removes terminal entries whose completion is older than
// olderThan and returns how many were evicted. Non-terminal entries are
// never swept. A swept ID subsequently reads as ErrUnknownRequest.
func (l *Ledger) SweepTerminal(olderThan time.Duration) int {
	cutoff := time.Now().UTC().Add(-olderThan)

	l.mu.Lock()
	defer l.mu.Unlock()

	swept := 0
	for key, e := range l.entries {
		if !e.State.Terminal() || e.CompletedAt == nil {
			continue
		}
		if e.CompletedAt.Before(cutoff) {
			delete(l.entries, key)
			swept++
		}
	}
	return swept
}
