// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

// Package hub tracks live client connections and their room memberships.
package hub

import (
	"encoding/json"
	"time"
)

// Event push types emitted to clients.
const (
	EventConnectionEstablished = "connection:established"
	EventAlertNew              = "alert:new"
	EventMarketUpdate          = "market:update"
	EventPropertyChanged       = "property:changed"
	EventSystemNotification    = "system:notification"
	EventAdminMonitoring       = "admin:monitoring"
)

// Event is a single server-to-client push.
type Event struct {
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewEvent creates an Event stamped with the current time.
func NewEvent(eventType string, data json.RawMessage) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}
}
