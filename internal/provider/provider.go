package provider

import "context"

// UnitStatusReport is the result of a Describe call.
type UnitStatusReport struct {
	Exists  bool
	Healthy bool
	Detail  string
}

// Provider is the capability the executor provisions against. The core
// treats it as opaque; mapping kinds onto a particular cloud API is the
// provider's concern.
type Provider interface {
	// Create provisions (or converges) a unit of the given kind and
	// returns its outputs. depOutputs carries the resolved outputs of
	// every dependency, keyed by unit name.
	Create(ctx context.Context, kind, name string, params map[string]any, depOutputs map[string]map[string]any) (map[string]any, error)

	// Destroy removes a previously created unit. lastOutputs is the
	// output mapping captured at apply time.
	Destroy(ctx context.Context, kind, name string, lastOutputs map[string]any) error

	// Describe reports the live status of a unit.
	Describe(ctx context.Context, kind, name string) (*UnitStatusReport, error)
}
