package workflow

import "sync"

// runLocks hands out one mutex per run id and forgets it once nobody holds or waits for it.
type runLocks struct {
	mu    sync.Mutex
	locks map[string]*runLock
}

type runLock struct {
	sync.Mutex
	refs int
}

func newRunLocks() *runLocks {
	return &runLocks{locks: make(map[string]*runLock)}
}

// lock blocks until the run is free and returns the matching unlock.
func (l *runLocks) lock(runID string) func() {
	l.mu.Lock()

	entry, ok := l.locks[runID]
	if !ok {
		entry = &runLock{}
		l.locks[runID] = entry
	}

	entry.refs++
	l.mu.Unlock()

	entry.Lock()

	return func() {
		entry.Unlock()

		l.mu.Lock()
		entry.refs--

		if entry.refs == 0 {
			delete(l.locks, runID)
		}

		l.mu.Unlock()
	}
}
