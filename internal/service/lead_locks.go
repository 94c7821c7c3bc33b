package service

import (
	"hash/fnv"
	"sync"
)

const lockStripes = 64

// LeadLocks serializes read-modify-write per lead within one process
type LeadLocks struct {
	stripes [lockStripes]sync.Mutex
}

// NewLeadLocks creates a striped lock set
func NewLeadLocks() *LeadLocks {
	return &LeadLocks{}
}

// Lock acquires the stripe for key and returns its unlock func.
// Callers must not hold another stripe while calling Lock.
func (l *LeadLocks) Lock(key string) func() {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	m := &l.stripes[h.Sum32()%lockStripes]
	m.Lock()
	return m.Unlock
}
