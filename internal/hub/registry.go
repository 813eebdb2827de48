// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package hub

import (
	"hash/fnv"
	"sync"

	"github.com/oklog/ulid/v2"
)

// registryShards spreads identity keys over independent locks so that
// concurrent connect/disconnect paths and dispatcher reads do not serialize
// behind a single registry-wide mutex.
const registryShards = 32

// Registry is the process-local identity to connection index. One identity
// may map to several connections (multiple devices or tabs). Entries are
// removed synchronously on disconnect, never lazily.
type Registry struct {
	shards [registryShards]registryShard
}

type registryShard struct {
	mu    sync.RWMutex
	conns map[string]map[ulid.ULID]*Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].conns = make(map[string]map[ulid.ULID]*Connection)
	}
	return r
}

func (r *Registry) shard(identityID string) *registryShard {
	h := fnv.New32a()
	h.Write([]byte(identityID)) //nolint:errcheck // fnv hash writes never fail
	return &r.shards[h.Sum32()%registryShards]
}

// Add records a connection under its identity.
func (r *Registry) Add(conn *Connection) {
	s := r.shard(conn.Identity.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[conn.Identity.ID]
	if !ok {
		set = make(map[ulid.ULID]*Connection, 1)
		s.conns[conn.Identity.ID] = set
	}
	set[conn.ID] = conn
}

// Remove deletes a connection from its identity's entry. Removing a
// connection that is not present is a no-op.
func (r *Registry) Remove(conn *Connection) {
	s := r.shard(conn.Identity.ID)
	s.mu.Lock()
	defer s.mu.Unlock()

	set, ok := s.conns[conn.Identity.ID]
	if !ok {
		return
	}
	delete(set, conn.ID)
	if len(set) == 0 {
		delete(s.conns, conn.Identity.ID)
	}
}

// Connections returns a snapshot of the identity's open connections,
// or nil if the identity has none on this process.
func (r *Registry) Connections(identityID string) []*Connection {
	s := r.shard(identityID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	set, ok := s.conns[identityID]
	if !ok {
		return nil
	}
	result := make([]*Connection, 0, len(set))
	for _, conn := range set {
		result = append(result, conn)
	}
	return result
}

// All returns a snapshot of every open connection on this process.
func (r *Registry) All() []*Connection {
	var result []*Connection
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, set := range s.conns {
			for _, conn := range set {
				result = append(result, conn)
			}
		}
		s.mu.RUnlock()
	}
	return result
}

// ConnectionCount returns the number of open connections.
func (r *Registry) ConnectionCount() int {
	total := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		for _, set := range s.conns {
			total += len(set)
		}
		s.mu.RUnlock()
	}
	return total
}

// IdentityCount returns the number of distinct identities with at least
// one open connection.
func (r *Registry) IdentityCount() int {
	total := 0
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.RLock()
		total += len(s.conns)
		s.mu.RUnlock()
	}
	return total
}
