// ABOUTME: Sharded concurrent map from agent ID to Process.
// ABOUTME: Atomic insert / remove-and-return; operations on different agents never share a lock.

package agent

import (
	"hash/fnv"
	"sync"
)

const registryShards = 16

// registry holds the live agents. Sharding by ID hash keeps lookups for
// different agents off a single coarse mutex, so per-agent operations proceed
// fully in parallel.
type registry struct {
	shards [registryShards]registryShard
}

type registryShard struct {
	mu     sync.RWMutex
	agents map[string]*Process
}

func newRegistry() *registry {
	r := &registry{}
	for i := range r.shards {
		r.shards[i].agents = make(map[string]*Process)
	}
	return r
}

func (r *registry) shard(id string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(id))
	return &r.shards[h.Sum32()%registryShards]
}

// Insert registers a process under its ID. Returns false without modifying
// the map when the ID is already present, so a collision never overwrites a
// live agent.
func (r *registry) Insert(id string, p *Process) bool {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.agents[id]; exists {
		return false
	}
	s.agents[id] = p
	return true
}

// Remove atomically deletes and returns the process for id. The entry is
// invisible to concurrent lookups from the moment this returns.
func (r *registry) Remove(id string) (*Process, bool) {
	s := r.shard(id)
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.agents[id]
	if ok {
		delete(s.agents, id)
	}
	return p, ok
}

// Get returns the process for id, if registered.
func (r *registry) Get(id string) (*Process, bool) {
	s := r.shard(id)
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.agents[id]
	return p, ok
}

// List returns every registered process in no particular order.
func (r *registry) List() []*Process {
	var out []*Process
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, p := range s.agents {
			out = append(out, p)
		}
		s.mu.RUnlock()
	}
	return out
}

// Len returns the current number of registered agents.
func (r *registry) Len() int {
	n := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		n += len(s.agents)
		s.mu.RUnlock()
	}
	return n
}
