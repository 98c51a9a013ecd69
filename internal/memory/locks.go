package memory

import "sync"

// ThreadLocks enforces single-writer-per-thread for turns. TryLock
// rejects immediately instead of queueing, so a caller racing an
// in-flight turn gets ErrThreadBusy at the API layer rather than a
// silently serialized double submission.
type ThreadLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewThreadLocks creates an empty lock registry.
func NewThreadLocks() *ThreadLocks {
	return &ThreadLocks{locks: make(map[string]*sync.Mutex)}
}

// TryLock acquires the thread's lock without blocking. The returned
// release function is nil when the thread is already locked.
func (l *ThreadLocks) TryLock(threadID string) (release func(), ok bool) {
	l.mu.Lock()
	m, exists := l.locks[threadID]
	if !exists {
		m = &sync.Mutex{}
		l.locks[threadID] = m
	}
	l.mu.Unlock()

	if !m.TryLock() {
		return nil, false
	}
	return m.Unlock, true
}
