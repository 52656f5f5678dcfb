package pipeline

import (
	"errors"
	"fmt"
	"sync"
)

// ErrEnvironmentBusy is returned when a second run targets an
// environment whose graph is already mid-deploy or mid-teardown.
var ErrEnvironmentBusy = errors.New("environment is busy with another run")

// envLocks provides mutual exclusion keyed by environment identifier.
// Only the run holding the lock may mutate that environment's
// provisioned state; a competing run is rejected, never interleaved.
type envLocks struct {
	mu   sync.Mutex
	held map[string]string // environment -> run ID
}

func newEnvLocks() *envLocks {
	return &envLocks{held: make(map[string]string)}
}

func (l *envLocks) acquire(env, runID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if holder, ok := l.held[env]; ok {
		return fmt.Errorf("%w: environment %q held by run %s", ErrEnvironmentBusy, env, holder)
	}
	l.held[env] = runID
	return nil
}

func (l *envLocks) release(env, runID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held[env] == runID {
		delete(l.held, env)
	}
}
