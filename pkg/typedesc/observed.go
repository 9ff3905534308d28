package typedesc

import "sync"

// ObservedValues records the last value read from live memory for members
// of one or more descriptors. Entries are keyed by member identity, so a
// cloned member starts without an observation.
type ObservedValues struct {
	mu     sync.RWMutex
	values map[*StructMember]int64
}

// NewObservedValues returns an empty association.
func NewObservedValues() *ObservedValues {
	return &ObservedValues{values: make(map[*StructMember]int64)}
}

// Set records v as the observed value of m.
func (o *ObservedValues) Set(m *StructMember, v int64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.values == nil {
		o.values = make(map[*StructMember]int64)
	}
	o.values[m] = v
}

// Get returns the observed value of m, if any.
func (o *ObservedValues) Get(m *StructMember) (int64, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	v, ok := o.values[m]
	return v, ok
}

// ValueOf returns the observed value of m, falling back to the member's own
// constant value.
func (o *ObservedValues) ValueOf(m *StructMember) int64 {
	if v, ok := o.Get(m); ok {
		return v
	}
	return m.Value()
}

// Delete forgets the observation for m.
func (o *ObservedValues) Delete(m *StructMember) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.values, m)
}

// Len returns the number of recorded observations.
func (o *ObservedValues) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.values)
}
