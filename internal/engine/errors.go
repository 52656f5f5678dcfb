package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel error kinds providers wrap so the executor can classify
// failures without knowing the underlying cloud API.
var (
	// ErrProviderUnavailable marks a transient failure; the whole apply
	// is safe to retry.
	ErrProviderUnavailable = errors.New("provider unavailable")

	// ErrInvalidConfiguration marks a permanent failure: the unit's
	// parameters were rejected by the provider.
	ErrInvalidConfiguration = errors.New("invalid configuration")
)

// UnknownDependencyError is returned when a unit names a dependency
// that is not declared in the same stack.
type UnknownDependencyError struct {
	Unit       string
	Dependency string
}

func (e *UnknownDependencyError) Error() string {
	return fmt.Sprintf("unit %q depends on undeclared unit %q", e.Unit, e.Dependency)
}

// CyclicDependencyError is returned when the dependency relation is not
// acyclic. Members lists the units participating in the cycle.
type CyclicDependencyError struct {
	Members []string
}

func (e *CyclicDependencyError) Error() string {
	return fmt.Sprintf("dependency cycle detected: %s", strings.Join(e.Members, " -> "))
}

// DependencyOutputMissingError is returned when a unit's dependency has
// no applied outputs to inject, which indicates a graph logic error or
// a partial prior failure.
type DependencyOutputMissingError struct {
	Unit       string
	Dependency string
}

func (e *DependencyOutputMissingError) Error() string {
	return fmt.Sprintf("unit %q requires outputs of %q, which is not applied", e.Unit, e.Dependency)
}

// UnitFailureError wraps a provider error with the failing unit so the
// caller can resume or diagnose without re-deriving from logs.
type UnitFailureError struct {
	Unit   string
	Action string // "create" or "destroy"
	Err    error
}

func (e *UnitFailureError) Error() string {
	return fmt.Sprintf("%s failed for unit %q: %v", e.Action, e.Unit, e.Err)
}

func (e *UnitFailureError) Unwrap() error { return e.Err }

// IsTransient reports whether an error is retryable. Providers signal
// this explicitly by wrapping ErrProviderUnavailable; as a fallback,
// common throttling and network failure patterns are matched.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrProviderUnavailable) {
		return true
	}
	if errors.Is(err, ErrInvalidConfiguration) {
		return false
	}

	msg := strings.ToLower(err.Error())
	patterns := []string{
		"throttl",
		"rate exceed",
		"too many requests",
		"request limit",
		"service unavailable",
		"internal server error",
		"connection reset",
		"connection refused",
		"timeout",
		"i/o timeout",
		"temporary failure",
	}
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}
