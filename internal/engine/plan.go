package engine

import (
	"time"

	"github.com/fluxops-io/fluxops/internal/ir"
	"github.com/fluxops-io/fluxops/internal/logging"
)

// CreatePlan computes which units an apply would change by comparing
// declared parameters against last-known state. It is a pure dry-run:
// no provider is contacted and no external state is mutated. Units that
// would change are marked planned in the in-memory state.
func (e *Executor) CreatePlan(graph *Graph, state *ir.State) (*ir.Plan, error) {
	logging.Debug("creating plan", "units", len(graph.Units()), "state_units", len(state.Units))

	plan := &ir.Plan{
		Metadata: &ir.PlanMetadata{
			Timestamp: time.Now().UTC().Format(time.RFC3339),
		},
		Changes: []*ir.UnitChange{},
		Summary: &ir.PlanSummary{},
	}

	// Declared units, in the order apply will use.
	for _, name := range graph.Order() {
		unit := graph.Unit(name)
		prior := state.Unit(name)
		hash := ParamsHash(unit.Params)

		change := &ir.UnitChange{
			Name:    name,
			Kind:    unit.Kind,
			Desired: unit,
			Prior:   prior,
		}

		switch {
		case prior == nil || prior.Status != ir.StatusApplied:
			change.Action = ir.ActionCreate
			plan.Summary.Create++
		case prior.ParamsHash != hash:
			change.Action = ir.ActionUpdate
			plan.Summary.Update++
		default:
			change.Action = ir.ActionNoop
			plan.Summary.NoOp++
		}

		if change.Action != ir.ActionNoop {
			if prior == nil {
				state.Upsert(&ir.UnitState{
					Name:         name,
					Kind:         unit.Kind,
					Provider:     unit.Provider,
					Status:       ir.StatusPlanned,
					Dependencies: unit.DependsOn,
				})
			}
		}

		plan.Changes = append(plan.Changes, change)
	}

	// Units in state but no longer declared would be destroyed.
	for _, us := range state.Units {
		if graph.Unit(us.Name) != nil {
			continue
		}
		if us.Status != ir.StatusApplied && us.Status != ir.StatusFailed {
			continue
		}
		plan.Changes = append(plan.Changes, &ir.UnitChange{
			Name:   us.Name,
			Kind:   us.Kind,
			Action: ir.ActionDelete,
			Prior:  us,
		})
		plan.Summary.Delete++
	}

	return plan, nil
}
