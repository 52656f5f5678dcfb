package ir

// UnitStatus is the provisioning lifecycle status of a unit.
type UnitStatus string

const (
	StatusAbsent     UnitStatus = "absent"
	StatusPlanned    UnitStatus = "planned"
	StatusApplying   UnitStatus = "applying"
	StatusApplied    UnitStatus = "applied"
	StatusFailed     UnitStatus = "failed"
	StatusDestroying UnitStatus = "destroying"
	StatusDestroyed  UnitStatus = "destroyed"
)

// State represents the persistent provisioned state for one environment.
type State struct {
	Version int            `json:"version"`
	Serial  int            `json:"serial"`
	Lineage string         `json:"lineage"`
	Units   []*UnitState   `json:"units"`
	Outputs map[string]any `json:"outputs,omitempty"`
}

// UnitState tracks one unit's last-known provisioned state.
// Owned by the provisioning executor; read-only everywhere else.
type UnitState struct {
	Name         string         `json:"name"`
	Kind         string         `json:"kind"`
	Provider     string         `json:"provider"`
	Status       UnitStatus     `json:"status"`
	Params       map[string]any `json:"params,omitempty"`     // declared at last apply
	ParamsHash   string         `json:"paramsHash,omitempty"` // canonical hash of Params
	Outputs      map[string]any `json:"outputs,omitempty"`    // provider returned
	Dependencies []string       `json:"dependencies,omitempty"`
	Error        string         `json:"error,omitempty"`
}

// Unit returns the state entry for name, or nil if the unit was never applied.
func (s *State) Unit(name string) *UnitState {
	for _, u := range s.Units {
		if u.Name == name {
			return u
		}
	}
	return nil
}

// Upsert inserts or replaces the state entry for us.Name.
func (s *State) Upsert(us *UnitState) {
	for i, u := range s.Units {
		if u.Name == us.Name {
			s.Units[i] = us
			return
		}
	}
	s.Units = append(s.Units, us)
}

// Remove deletes the state entry for name, if present.
func (s *State) Remove(name string) {
	for i, u := range s.Units {
		if u.Name == name {
			s.Units = append(s.Units[:i], s.Units[i+1:]...)
			return
		}
	}
}
