// Package local implements an in-memory provider. It backs development
// runs and the engine's tests: every call is recorded, and failures can
// be injected per unit.
package local

import (
	"context"
	"fmt"
	"sync"

	"github.com/fluxops-io/fluxops/internal/provider"
)

// Call records one provider invocation.
type Call struct {
	Op   string // "create" or "destroy"
	Kind string
	Name string
}

type Provider struct {
	mu      sync.Mutex
	live    map[string]map[string]any // name -> outputs
	calls   []Call
	failOn  map[string]error // name -> error to return from Create
	counter int
}

func New() *Provider {
	return &Provider{
		live:   make(map[string]map[string]any),
		failOn: make(map[string]error),
	}
}

// FailOn makes Create fail for the named unit with err. Passing a nil
// error clears the injection.
func (p *Provider) FailOn(name string, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err == nil {
		delete(p.failOn, name)
		return
	}
	p.failOn[name] = err
}

// Calls returns a copy of all recorded invocations.
func (p *Provider) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Call, len(p.calls))
	copy(out, p.calls)
	return out
}

// CreateCalls returns the names passed to Create, in call order.
func (p *Provider) CreateCalls() []string {
	var names []string
	for _, c := range p.Calls() {
		if c.Op == "create" {
			names = append(names, c.Name)
		}
	}
	return names
}

// DestroyCalls returns the names passed to Destroy, in call order.
func (p *Provider) DestroyCalls() []string {
	var names []string
	for _, c := range p.Calls() {
		if c.Op == "destroy" {
			names = append(names, c.Name)
		}
	}
	return names
}

func (p *Provider) Create(ctx context.Context, kind, name string, params map[string]any, depOutputs map[string]map[string]any) (map[string]any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Op: "create", Kind: kind, Name: name})

	if err := p.failOn[name]; err != nil {
		return nil, err
	}

	p.counter++
	outputs := map[string]any{
		"id":   fmt.Sprintf("local-%s-%d", name, p.counter),
		"kind": kind,
		"name": name,
	}
	// Echo dependency outputs so tests can assert injection happened.
	for dep := range depOutputs {
		outputs["dep:"+dep] = true
	}
	p.live[name] = outputs

	return outputs, nil
}

func (p *Provider) Destroy(ctx context.Context, kind, name string, lastOutputs map[string]any) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.calls = append(p.calls, Call{Op: "destroy", Kind: kind, Name: name})
	delete(p.live, name)
	return nil
}

func (p *Provider) Describe(ctx context.Context, kind, name string) (*provider.UnitStatusReport, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.live[name]; !ok {
		return &provider.UnitStatusReport{Exists: false}, nil
	}
	return &provider.UnitStatusReport{Exists: true, Healthy: true}, nil
}
