package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxops-io/fluxops/internal/ir"
	"github.com/fluxops-io/fluxops/internal/logging"
)

// Destroy tears down every provisioned unit in reverse topological
// order, so dependents are destroyed before their dependencies. A
// failure halts the sweep and reports the failing unit; units not yet
// reached keep their applied state.
func (e *Executor) Destroy(ctx context.Context, state *ir.State) error {
	var live []*ir.UnitState
	for _, us := range state.Units {
		if us.Status == ir.StatusApplied || us.Status == ir.StatusFailed {
			live = append(live, us)
		}
	}
	if len(live) == 0 {
		logging.Info("nothing to destroy")
		return nil
	}

	for _, us := range live {
		if err := e.registry.Load(us.Provider); err != nil {
			return err
		}
	}

	graph, err := BuildGraphFromState(live)
	if err != nil {
		return err
	}

	for _, name := range graph.ReverseOrder() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("destroy cancelled: %w", err)
		}
		if err := e.destroyUnit(ctx, state.Unit(name), state); err != nil {
			return err
		}
	}

	state.Serial++
	return nil
}

func (e *Executor) destroyUnit(ctx context.Context, us *ir.UnitState, state *ir.State) error {
	if us == nil || us.Status == ir.StatusDestroyed || us.Status == ir.StatusAbsent {
		return nil
	}

	prov, err := e.registry.Get(us.Provider)
	if err != nil {
		return err
	}

	us.Status = ir.StatusDestroying
	e.checkpoint(ctx, state)

	start := time.Now()
	e.emit(Event{Unit: us.Name, Action: "destroy", Status: "started"})
	logging.Info("destroying unit", "unit", us.Name, "kind", us.Kind)

	err = RetryWithBackoff(ctx, e.retry, func() error {
		return prov.Destroy(ctx, us.Kind, us.Name, us.Outputs)
	}, IsTransient)
	if err != nil {
		us.Status = ir.StatusFailed
		us.Error = err.Error()
		e.checkpoint(ctx, state)
		e.emit(Event{Unit: us.Name, Action: "destroy", Status: "failed", Duration: time.Since(start), Err: err})
		return &UnitFailureError{Unit: us.Name, Action: "destroy", Err: err}
	}

	us.Status = ir.StatusDestroyed
	us.Error = ""
	e.checkpoint(ctx, state)
	e.emit(Event{Unit: us.Name, Action: "destroy", Status: "completed", Duration: time.Since(start)})

	return nil
}
