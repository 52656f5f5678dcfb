package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Decision is the outcome of a manual approval gate.
type Decision int

const (
	DecisionApproved Decision = iota
	DecisionRejected
)

// ApprovalGate suspends runs awaiting an external go-ahead. It is the
// in-process stand-in for a CI platform's manual approval feature: a
// blocking wait keyed by run ID, resolved by an asynchronous Approve or
// Reject signal.
type ApprovalGate struct {
	mu      sync.Mutex
	waiters map[string]chan Decision
}

func NewApprovalGate() *ApprovalGate {
	return &ApprovalGate{
		waiters: make(map[string]chan Decision),
	}
}

// Register opens the gate for runID so Approve/Reject signals are
// accepted. The orchestrator registers before announcing the
// awaiting-approval state, so no signal can slip between the two.
func (g *ApprovalGate) Register(runID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.waiters[runID]; !ok {
		g.waiters[runID] = make(chan Decision, 1)
	}
}

// Wait blocks until a decision arrives for runID. A zero timeout waits
// indefinitely. Context cancellation aborts the wait with an error.
func (g *ApprovalGate) Wait(ctx context.Context, runID string, timeout time.Duration) (Decision, error) {
	g.Register(runID)
	g.mu.Lock()
	ch := g.waiters[runID]
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		delete(g.waiters, runID)
		g.mu.Unlock()
	}()

	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	select {
	case d := <-ch:
		return d, nil
	case <-timer:
		return DecisionRejected, fmt.Errorf("approval timed out after %s", timeout)
	case <-ctx.Done():
		return DecisionRejected, fmt.Errorf("approval wait aborted: %w", ctx.Err())
	}
}

// Approve signals the run waiting at the gate to proceed.
func (g *ApprovalGate) Approve(runID string) error {
	return g.signal(runID, DecisionApproved)
}

// Reject signals the run waiting at the gate to cancel.
func (g *ApprovalGate) Reject(runID string) error {
	return g.signal(runID, DecisionRejected)
}

func (g *ApprovalGate) signal(runID string, d Decision) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	ch, ok := g.waiters[runID]
	if !ok {
		return fmt.Errorf("no run awaiting approval with id %q", runID)
	}

	select {
	case ch <- d:
		return nil
	default:
		return fmt.Errorf("run %q already has a pending decision", runID)
	}
}
