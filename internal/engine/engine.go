package engine

import (
	"context"
	"time"

	"github.com/fluxops-io/fluxops/internal/ir"
	"github.com/fluxops-io/fluxops/internal/provider"
)

// Executor applies and destroys unit graphs against providers,
// maintaining the provisioned state as it goes. It owns all state
// mutations; everything else reads the state it produces.
type Executor struct {
	registry *provider.Registry

	// Events, if set, receives a progress event per unit operation.
	Events EventFunc

	// Checkpoint, if set, is called after every unit status transition
	// so partial progress survives a crash mid-sweep.
	Checkpoint func(ctx context.Context, state *ir.State) error

	retry *RetryPolicy
}

// Event represents a progress event during apply or destroy.
type Event struct {
	Unit     string
	Action   string // "create", "destroy"
	Status   string // "started", "completed", "failed", "skipped"
	Duration time.Duration
	Err      error
}

// EventFunc is called for each event if set.
type EventFunc func(event Event)

func NewExecutor(registry *provider.Registry) *Executor {
	return &Executor{
		registry: registry,
		retry:    DefaultRetryPolicy(),
	}
}

func (e *Executor) emit(ev Event) {
	if e.Events != nil {
		e.Events(ev)
	}
}

func (e *Executor) checkpoint(ctx context.Context, state *ir.State) {
	if e.Checkpoint != nil {
		// Checkpointing is best-effort; a failure here must not fail
		// the unit that just applied cleanly.
		_ = e.Checkpoint(ctx, state)
	}
}

// loadProviders ensures every provider referenced by the graph is
// initialized before the first unit is touched.
func (e *Executor) loadProviders(units []*ir.Unit) error {
	for _, u := range units {
		if err := e.registry.Load(u.Provider); err != nil {
			return err
		}
	}
	return nil
}
