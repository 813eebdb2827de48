// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package hub

import (
	"hash/fnv"
	"sync"

	"github.com/oklog/ulid/v2"

	"github.com/propstream/propstream/internal/identity"
)

// Rooms are implicit string keys, never created explicitly. Four families
// are in use: per-identity, per-tier, per-role and per-topic.
const (
	RoomAdminMonitoring     = "admin-monitoring"
	RoomSystemNotifications = "system-notifications"
)

// UserRoom names the per-identity room.
func UserRoom(identityID string) string { return "user:" + identityID }

// TierRoom names the per-entitlement-tier room.
func TierRoom(tier identity.Tier) string { return "tier:" + string(tier) }

// RoleRoom names the per-role room.
func RoleRoom(role identity.Role) string { return "role:" + string(role) }

// MarketRoom names the market-updates room for a region.
func MarketRoom(region string) string { return "market:" + region }

// AlertRegionRoom names the alert topic room for a region.
func AlertRegionRoom(region string) string { return "alerts:" + region }

// AlertTypeRoom names the alert topic room for an alert type.
func AlertTypeRoom(alertType string) string { return "alerts:type:" + alertType }

const roomShards = 32

// RoomIndex is the process-local room to connection index, sharded like the
// Registry so broadcast reads never contend on a global lock.
type RoomIndex struct {
	shards [roomShards]roomShard
}

type roomShard struct {
	mu    sync.RWMutex
	rooms map[string]map[ulid.ULID]*Connection
}

// NewRoomIndex creates an empty room index.
func NewRoomIndex() *RoomIndex {
	idx := &RoomIndex{}
	for i := range idx.shards {
		idx.shards[i].rooms = make(map[string]map[ulid.ULID]*Connection)
	}
	return idx
}

func (idx *RoomIndex) shard(room string) *roomShard {
	h := fnv.New32a()
	h.Write([]byte(room)) //nolint:errcheck // fnv hash writes never fail
	return &idx.shards[h.Sum32()%roomShards]
}

// Join adds the connection to a room. Joining a room the connection is
// already in is a no-op, not an error; returns true only on a new join.
func (idx *RoomIndex) Join(room string, conn *Connection) bool {
	if !conn.joinRoom(room) {
		return false
	}

	s := idx.shard(room)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.rooms[room]
	if !ok {
		members = make(map[ulid.ULID]*Connection, 1)
		s.rooms[room] = members
	}
	members[conn.ID] = conn
	return true
}

// Leave removes the connection from a room. A no-op if absent.
func (idx *RoomIndex) Leave(room string, conn *Connection) {
	conn.leaveRoom(room)

	s := idx.shard(room)
	s.mu.Lock()
	defer s.mu.Unlock()

	members, ok := s.rooms[room]
	if !ok {
		return
	}
	delete(members, conn.ID)
	if len(members) == 0 {
		delete(s.rooms, room)
	}
}

// LeaveAll removes the connection from every room it is in.
func (idx *RoomIndex) LeaveAll(conn *Connection) {
	for _, room := range conn.Rooms() {
		idx.Leave(room, conn)
	}
}

// Members returns a snapshot of the room's connections, or nil for an
// empty room.
func (idx *RoomIndex) Members(room string) []*Connection {
	s := idx.shard(room)
	s.mu.RLock()
	defer s.mu.RUnlock()

	members, ok := s.rooms[room]
	if !ok {
		return nil
	}
	result := make([]*Connection, 0, len(members))
	for _, conn := range members {
		result = append(result, conn)
	}
	return result
}

// MemberCount returns the number of connections in the room.
func (idx *RoomIndex) MemberCount(room string) int {
	s := idx.shard(room)
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.rooms[room])
}
