package ir

// Change actions for a planned unit.
const (
	ActionCreate = "CREATE"
	ActionUpdate = "UPDATE"
	ActionNoop   = "NOOP"
	ActionDelete = "DELETE"
)

// Plan represents a calculated execution plan: the reviewable list of
// changes an apply would make, without making them.
type Plan struct {
	Metadata *PlanMetadata  `json:"metadata"`
	Changes  []*UnitChange  `json:"changes"`
	Summary  *PlanSummary   `json:"summary"`
	Outputs  map[string]any `json:"outputs,omitempty"`
}

type PlanMetadata struct {
	Timestamp   string `json:"timestamp"`
	Environment string `json:"environment,omitempty"`
	ConfigHash  string `json:"configHash,omitempty"`
}

// UnitChange describes what an apply would do to one unit. Changes are
// ordered topologically, matching the order apply will use.
type UnitChange struct {
	Name    string     `json:"name"`
	Kind    string     `json:"kind"`
	Action  string     `json:"action"` // CREATE, UPDATE, NOOP, DELETE
	Desired *Unit      `json:"desired,omitempty"`
	Prior   *UnitState `json:"prior,omitempty"`
}

type PlanSummary struct {
	Create int `json:"create"`
	Update int `json:"update"`
	Delete int `json:"delete"`
	NoOp   int `json:"noop"`
}

// HasChanges reports whether applying the plan would touch any unit.
func (p *Plan) HasChanges() bool {
	return p.Summary.Create+p.Summary.Update+p.Summary.Delete > 0
}
