package execution

import (
	"sync"

	"github.com/crytic/evosynth/generation/cluster"
)

// StaticResetter tracks which types had their static state initialized and restores that state after executions,
// so every test starts from the same static state.
type StaticResetter struct {
	cluster *cluster.TestCluster

	// initialized holds the types whose static initializer has run since their last reset.
	initialized map[string]bool

	lock sync.Mutex
}

// NewStaticResetter returns a StaticResetter for the static state registered in the cluster.
func NewStaticResetter(c *cluster.TestCluster) *StaticResetter {
	return &StaticResetter{
		cluster:     c,
		initialized: make(map[string]bool),
	}
}

// Initialize runs fn unless the static state of the named type was already initialized. Reports whether fn ran.
func (r *StaticResetter) Initialize(typeName string, fn func()) bool {
	r.lock.Lock()
	if r.initialized[typeName] {
		r.lock.Unlock()
		return false
	}
	r.initialized[typeName] = true
	r.lock.Unlock()

	fn()
	return true
}

// Reset restores the static state of every touched type which registered a reset, and forgets that it was
// initialized. Returns the number of types reset.
func (r *StaticResetter) Reset(touched []string) int {
	count := 0
	for _, typeName := range touched {
		resets := r.cluster.StaticResets(typeName)
		if len(resets) == 0 {
			continue
		}
		for _, reset := range resets {
			reset()
		}
		r.lock.Lock()
		delete(r.initialized, typeName)
		r.lock.Unlock()
		count++
	}
	return count
}

// ResetAll restores the static state of every type with registered resets.
func (r *StaticResetter) ResetAll() int {
	return r.Reset(r.cluster.StaticTypes())
}
