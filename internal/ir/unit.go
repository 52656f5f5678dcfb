package ir

// Unit kinds understood by the built-in providers.
const (
	KindNetworkBoundary = "network-boundary"
	KindObjectStore     = "object-store"
	KindSecretStore     = "secret-store"
	KindComputeEndpoint = "compute-endpoint"
	KindTelemetrySink   = "telemetry-sink"
)

// Unit represents a single declared infrastructure unit.
type Unit struct {
	Name      string         `pkl:"name"`
	Kind      string         `pkl:"kind"` // e.g., "object-store"
	Provider  string         `pkl:"provider"`
	DependsOn []string       `pkl:"dependsOn"`
	Params    map[string]any `pkl:"params"` // Dynamic parameters
}

// Stack represents the top-level configuration: the declared units plus
// the environment policies that govern how the pipeline treats them.
type Stack struct {
	Units        []*Unit                       `pkl:"units"`
	Environments map[string]*EnvironmentPolicy `pkl:"environments"`
	Outputs      map[string]any                `pkl:"outputs"`
}

// EnvironmentPolicy controls pipeline behavior per environment.
// It is consulted, never mutated, by the orchestrator.
type EnvironmentPolicy struct {
	AutoDeploy      bool `pkl:"autoDeploy"`
	RequireApproval bool `pkl:"requireApproval"`
	AllowTeardown   bool `pkl:"allowTeardown"`
}

// Policy returns the policy for env, falling back to a conservative
// default (manual approval, no teardown) when the environment is not
// declared in the stack.
func (s *Stack) Policy(env string) *EnvironmentPolicy {
	if p, ok := s.Environments[env]; ok && p != nil {
		return p
	}
	return &EnvironmentPolicy{RequireApproval: true}
}
