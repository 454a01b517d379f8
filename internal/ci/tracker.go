package ci

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Tracker keeps run statuses for providers whose runs report back
// asynchronously. It is safe for concurrent use.
type Tracker struct {
	mu   sync.RWMutex
	runs map[RunID]RunStatus
	now  func() time.Time
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{runs: make(map[RunID]RunStatus), now: time.Now}
}

// NewRunID returns a fresh run id with the given prefix.
func NewRunID(prefix string) RunID {
	return RunID(prefix + "-" + uuid.NewString())
}

// Start records a queued run.
func (t *Tracker) Start(id RunID) RunStatus {
	return t.Update(RunStatus{ID: id, Status: StatusQueued})
}

// Update stores st. A terminal status is never replaced by a later update.
func (t *Tracker) Update(st RunStatus) RunStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.runs[st.ID]; ok && prev.Status.Terminal() {
		return prev
	}
	st.UpdatedAt = t.now()
	t.runs[st.ID] = st
	return st
}

// Get returns the status of id.
func (t *Tracker) Get(id RunID) (RunStatus, error) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	st, ok := t.runs[id]
	if !ok {
		return RunStatus{}, ErrUnknownRun
	}
	return st, nil
}

// Len returns the number of tracked runs.
func (t *Tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.runs)
}
