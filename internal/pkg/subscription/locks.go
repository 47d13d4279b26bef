package subscription

import "sync"

// tenantLocks serializes subscription transitions per tenant. A grant and
// a revoke racing for the same tenant take the same mutex and cannot
// interleave into an inconsistent state.
type tenantLocks struct {
	mu sync.Map // userID -> *sync.Mutex
}

func (l *tenantLocks) lock(userID uint) func() {
	v, _ := l.mu.LoadOrStore(userID, &sync.Mutex{})
	m := v.(*sync.Mutex)
	m.Lock()
	return m.Unlock
}
