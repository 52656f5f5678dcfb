package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/fluxops-io/fluxops/internal/ir"
	"github.com/fluxops-io/fluxops/internal/logging"
)

// Apply provisions the graph's units in topological order, strictly one
// at a time: later units consume earlier units' outputs, so sequencing
// is a correctness requirement here, not a simplification.
//
// A unit that is already applied with unchanged parameters is skipped,
// which makes repeated applies converge without re-creating resources.
// The first provider failure marks the unit failed and halts the sweep;
// units applied earlier in the run keep their state, so a retry resumes
// from the failure point. There is no automatic rollback.
func (e *Executor) Apply(ctx context.Context, graph *Graph, state *ir.State) error {
	if err := e.loadProviders(graph.Units()); err != nil {
		return err
	}

	for _, name := range graph.Order() {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("apply cancelled: %w", err)
		}

		unit := graph.Unit(name)
		hash := ParamsHash(unit.Params)

		if prior := state.Unit(name); prior != nil &&
			prior.Status == ir.StatusApplied && prior.ParamsHash == hash {
			logging.Debug("unit unchanged, skipping", "unit", name)
			e.emit(Event{Unit: name, Action: "create", Status: "skipped"})
			continue
		}

		if err := e.applyUnit(ctx, unit, hash, state); err != nil {
			return err
		}
	}

	// Units recorded in state but no longer declared are destroyed
	// after the forward sweep, dependents first.
	if err := e.removeOrphans(ctx, graph, state); err != nil {
		return err
	}

	state.Serial++
	return nil
}

func (e *Executor) applyUnit(ctx context.Context, unit *ir.Unit, hash string, state *ir.State) error {
	depOutputs, err := e.resolveDependencyOutputs(unit, state)
	if err != nil {
		return err
	}

	prov, err := e.registry.Get(unit.Provider)
	if err != nil {
		return err
	}

	us := &ir.UnitState{
		Name:         unit.Name,
		Kind:         unit.Kind,
		Provider:     unit.Provider,
		Status:       ir.StatusApplying,
		Dependencies: unit.DependsOn,
	}
	state.Upsert(us)
	e.checkpoint(ctx, state)

	start := time.Now()
	e.emit(Event{Unit: unit.Name, Action: "create", Status: "started"})
	logging.Info("applying unit", "unit", unit.Name, "kind", unit.Kind)

	params := normalizeValue(unit.Params).(map[string]any)

	var outputs map[string]any
	err = RetryWithBackoff(ctx, e.retry, func() error {
		var createErr error
		outputs, createErr = prov.Create(ctx, unit.Kind, unit.Name, params, depOutputs)
		return createErr
	}, IsTransient)
	if err != nil {
		us.Status = ir.StatusFailed
		us.Error = err.Error()
		e.checkpoint(ctx, state)
		e.emit(Event{Unit: unit.Name, Action: "create", Status: "failed", Duration: time.Since(start), Err: err})
		return &UnitFailureError{Unit: unit.Name, Action: "create", Err: err}
	}

	us.Status = ir.StatusApplied
	us.Params = unit.Params
	us.ParamsHash = hash
	us.Outputs = outputs
	us.Error = ""
	e.checkpoint(ctx, state)
	e.emit(Event{Unit: unit.Name, Action: "create", Status: "completed", Duration: time.Since(start)})

	return nil
}

// resolveDependencyOutputs gathers the applied outputs of every
// dependency, keyed by unit name, for injection into the provider call.
func (e *Executor) resolveDependencyOutputs(unit *ir.Unit, state *ir.State) (map[string]map[string]any, error) {
	if len(unit.DependsOn) == 0 {
		return nil, nil
	}

	outputs := make(map[string]map[string]any, len(unit.DependsOn))
	for _, dep := range unit.DependsOn {
		ds := state.Unit(dep)
		if ds == nil || ds.Status != ir.StatusApplied {
			return nil, &DependencyOutputMissingError{Unit: unit.Name, Dependency: dep}
		}
		outputs[dep] = ds.Outputs
	}
	return outputs, nil
}

// removeOrphans destroys units present in state but absent from the
// declared graph, in reverse dependency order, and drops them from the
// state entirely on success.
func (e *Executor) removeOrphans(ctx context.Context, graph *Graph, state *ir.State) error {
	var orphans []*ir.UnitState
	for _, us := range state.Units {
		if graph.Unit(us.Name) == nil && us.Status == ir.StatusApplied {
			orphans = append(orphans, us)
		}
	}
	if len(orphans) == 0 {
		return nil
	}

	orphanGraph, err := BuildGraphFromState(orphans)
	if err != nil {
		return err
	}

	for _, name := range orphanGraph.ReverseOrder() {
		us := state.Unit(name)
		if err := e.destroyUnit(ctx, us, state); err != nil {
			return err
		}
		state.Remove(name)
		e.checkpoint(ctx, state)
	}
	return nil
}
