// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package hub

import (
	"log/slog"
	"sort"

	"github.com/samber/oops"

	"github.com/propstream/propstream/internal/identity"
)

// Manifest describes what an identity is entitled to over this connection.
// It is sent to the client in the connection-established event.
type Manifest struct {
	Capabilities []string `json:"capabilities"`
	Channels     []string `json:"channels"`
}

// Manager enrolls authenticated connections into their rooms and keeps the
// Registry and RoomIndex consistent through the connection's lifetime.
type Manager struct {
	registry *Registry
	rooms    *RoomIndex
	policy   TopicPolicy
	logger   *slog.Logger
}

// NewManager creates a subscription manager. Returns an error if any
// required dependency is nil.
func NewManager(registry *Registry, rooms *RoomIndex, policy TopicPolicy, logger *slog.Logger) (*Manager, error) {
	if registry == nil {
		return nil, oops.Errorf("registry is required")
	}
	if rooms == nil {
		return nil, oops.Errorf("room index is required")
	}
	if policy == nil {
		return nil, oops.Errorf("topic policy is required")
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{
		registry: registry,
		rooms:    rooms,
		policy:   policy,
		logger:   logger,
	}, nil
}

// Registry exposes the connection registry for dispatcher reads.
func (m *Manager) Registry() *Registry { return m.registry }

// Rooms exposes the room index for dispatcher reads.
func (m *Manager) Rooms() *RoomIndex { return m.rooms }

// OnConnect admits an authenticated connection: joins its fixed rooms,
// records it in the registry and installs the terminal disconnect hook.
// The returned manifest tells the client what it is entitled to.
func (m *Manager) OnConnect(conn *Connection) Manifest {
	conn.setOnClose(m.teardown)

	id := conn.Identity
	m.rooms.Join(UserRoom(id.ID), conn)
	m.rooms.Join(TierRoom(id.Tier), conn)
	m.rooms.Join(RoleRoom(id.Role), conn)
	if id.Role.Privileged() {
		m.rooms.Join(RoomAdminMonitoring, conn)
		m.rooms.Join(RoomSystemNotifications, conn)
	}

	m.registry.Add(conn)

	m.logger.Info("connection enrolled",
		"conn_id", conn.ID.String(),
		"identity_id", id.ID,
		"role", string(id.Role),
		"tier", string(id.Tier),
	)

	return buildManifest(id)
}

// Subscribe joins the connection to the alert topic rooms named by the
// request, after the entitlement check. Re-subscribing to an already-joined
// room is a no-op. Returns the full set of rooms the request maps to.
func (m *Manager) Subscribe(conn *Connection, req TopicRequest) ([]string, error) {
	if err := m.policy.Authorize(conn.Identity, req); err != nil {
		return nil, err
	}

	rooms := make([]string, 0, len(req.Regions)+len(req.Types))
	for _, region := range req.Regions {
		rooms = append(rooms, AlertRegionRoom(region))
	}
	for _, alertType := range req.Types {
		rooms = append(rooms, AlertTypeRoom(alertType))
	}
	for _, room := range rooms {
		m.rooms.Join(room, conn)
	}
	return rooms, nil
}

// SubscribeMarket joins the connection to market-update rooms. Market
// subscriptions carry no entitlement gate; every authenticated identity may
// watch market feeds.
func (m *Manager) SubscribeMarket(conn *Connection, regions []string) []string {
	rooms := make([]string, 0, len(regions))
	for _, region := range regions {
		room := MarketRoom(region)
		m.rooms.Join(room, conn)
		rooms = append(rooms, room)
	}
	return rooms
}

// Disconnect runs the connection's terminal hook. Safe to call from any
// teardown path; the hook fires exactly once.
func (m *Manager) Disconnect(conn *Connection) {
	conn.Close()
}

// teardown is the single terminal hook: leaves every room and removes the
// registry entry before the connection is marked closed, so no later
// dispatcher iteration can match it.
func (m *Manager) teardown(conn *Connection) {
	m.rooms.LeaveAll(conn)
	m.registry.Remove(conn)

	m.logger.Info("connection removed",
		"conn_id", conn.ID.String(),
		"identity_id", conn.Identity.ID,
	)
}

// capability names surfaced to clients in the manifest.
const (
	capBasicAlerts     = "basic-alerts"
	capMarketUpdates   = "market-updates"
	capPropertyChanges = "property-changes"
	capPriceFilters    = "price-filters"
	capAdvancedFilters = "advanced-filters"
	capPriorityAlerts  = "priority-alerts"
	capAdminMonitoring = "admin-monitoring"
)

func buildManifest(id identity.Identity) Manifest {
	caps := []string{capBasicAlerts, capMarketUpdates}
	switch id.Tier {
	case identity.TierBasic:
		caps = append(caps, capPriceFilters)
	case identity.TierProfessional:
		caps = append(caps, capPriceFilters, capPropertyChanges, capAdvancedFilters)
	case identity.TierEnterprise:
		caps = append(caps, capPriceFilters, capPropertyChanges, capAdvancedFilters, capPriorityAlerts)
	}

	channels := []string{"user-alerts", "market-updates", "property-changes", "system-notifications"}
	if id.Role.Privileged() {
		caps = append(caps, capAdminMonitoring)
		channels = append(channels, "admin-monitoring")
	}

	sort.Strings(caps)
	return Manifest{Capabilities: caps, Channels: channels}
}
