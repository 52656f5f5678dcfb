package engine

import (
	"fmt"

	"github.com/fluxops-io/fluxops/internal/ir"
)

// Graph is a validated directed acyclic graph of units with a
// deterministic topological order.
type Graph struct {
	units    []*ir.Unit
	byName   map[string]*ir.Unit
	deps     map[string][]string
	order    []string // topological order (creation order)
	revOrder []string // reverse topological order (destruction order)
}

// BuildGraph constructs a dependency graph from declared units.
// Every referenced dependency must be declared in the same stack, and
// the dependency relation must be acyclic. Ties between independent
// units are broken by declaration order, so the resulting order is
// reproducible across runs with identical input.
func BuildGraph(units []*ir.Unit) (*Graph, error) {
	g := &Graph{
		units:  units,
		byName: make(map[string]*ir.Unit, len(units)),
		deps:   make(map[string][]string, len(units)),
	}

	for _, u := range units {
		if _, exists := g.byName[u.Name]; exists {
			return nil, fmt.Errorf("%w: duplicate unit name %q", ErrInvalidConfiguration, u.Name)
		}
		g.byName[u.Name] = u
	}

	for _, u := range units {
		for _, dep := range u.DependsOn {
			if _, ok := g.byName[dep]; !ok {
				return nil, &UnknownDependencyError{Unit: u.Name, Dependency: dep}
			}
			g.deps[u.Name] = append(g.deps[u.Name], dep)
		}
	}

	order, err := topoSort(units, g.deps)
	if err != nil {
		return nil, err
	}
	g.order = order
	g.revOrder = reverse(order)

	return g, nil
}

// BuildGraphFromState constructs a graph from recorded state, used for
// destroying units whose declarations are gone. Dependencies reference
// whatever the state recorded at apply time.
func BuildGraphFromState(units []*ir.UnitState) (*Graph, error) {
	declared := make([]*ir.Unit, 0, len(units))
	for _, us := range units {
		declared = append(declared, &ir.Unit{
			Name:      us.Name,
			Kind:      us.Kind,
			Provider:  us.Provider,
			DependsOn: prunedDeps(us, units),
			Params:    us.Params,
		})
	}
	return BuildGraph(declared)
}

// prunedDeps drops recorded dependencies that are no longer present in
// the state, so a partially destroyed stack still forms a valid graph.
func prunedDeps(us *ir.UnitState, all []*ir.UnitState) []string {
	present := make(map[string]bool, len(all))
	for _, u := range all {
		present[u.Name] = true
	}
	var deps []string
	for _, d := range us.Dependencies {
		if present[d] {
			deps = append(deps, d)
		}
	}
	return deps
}

// Order returns unit names in dependency-respecting creation order.
func (g *Graph) Order() []string {
	return g.order
}

// ReverseOrder returns unit names in reverse dependency order, safe for
// destruction (dependents before their dependencies).
func (g *Graph) ReverseOrder() []string {
	return g.revOrder
}

// Unit returns the declared unit for name, or nil.
func (g *Graph) Unit(name string) *ir.Unit {
	return g.byName[name]
}

// Units returns the declared units in declaration order.
func (g *Graph) Units() []*ir.Unit {
	return g.units
}

// Dependencies returns the declared dependencies of name.
func (g *Graph) Dependencies(name string) []string {
	return g.deps[name]
}

// topoSort runs Kahn's algorithm by repeated removal of zero-in-degree
// nodes, always picking the earliest-declared ready unit next.
func topoSort(units []*ir.Unit, deps map[string][]string) ([]string, error) {
	remaining := make(map[string]int, len(units)) // name -> unresolved dep count
	for _, u := range units {
		remaining[u.Name] = len(deps[u.Name])
	}

	done := make(map[string]bool, len(units))
	sorted := make([]string, 0, len(units))

	for len(sorted) < len(units) {
		progressed := false
		for _, u := range units {
			if done[u.Name] || remaining[u.Name] != 0 {
				continue
			}
			done[u.Name] = true
			sorted = append(sorted, u.Name)
			for _, other := range units {
				for _, d := range deps[other.Name] {
					if d == u.Name {
						remaining[other.Name]--
					}
				}
			}
			progressed = true
			break
		}
		if !progressed {
			return nil, &CyclicDependencyError{Members: extractCycle(units, deps, done)}
		}
	}

	return sorted, nil
}

// extractCycle walks dependency edges among unresolved units until a
// node repeats, and returns the cycle's member names.
func extractCycle(units []*ir.Unit, deps map[string][]string, done map[string]bool) []string {
	stuck := func(name string) bool { return !done[name] }

	var start string
	for _, u := range units {
		if stuck(u.Name) {
			start = u.Name
			break
		}
	}

	visited := make(map[string]int) // name -> position in path
	var path []string
	current := start
	for {
		if pos, seen := visited[current]; seen {
			return path[pos:]
		}
		visited[current] = len(path)
		path = append(path, current)

		next := ""
		for _, d := range deps[current] {
			if stuck(d) {
				next = d
				break
			}
		}
		if next == "" {
			// Shouldn't happen: a stuck node always has a stuck dependency.
			return path
		}
		current = next
	}
}

func reverse(order []string) []string {
	out := make([]string, len(order))
	for i, name := range order {
		out[len(order)-1-i] = name
	}
	return out
}
