// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

// Package dispatch routes bus messages to matching local connections.
package dispatch

import (
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/propstream/propstream/internal/identity"
)

// Logical bus channels. Payload schemas are channel-specific; there is no
// universal schema, only the channel-keyed union below.
const (
	ChannelUserAlerts          = "user-alerts"
	ChannelMarketUpdates       = "market-updates"
	ChannelPropertyChanges     = "property-changes"
	ChannelSystemNotifications = "system-notifications"
	ChannelAdminMonitoring     = "admin-monitoring"
)

// Channels returns every logical channel in dispatch order.
func Channels() []string {
	return []string{
		ChannelUserAlerts,
		ChannelMarketUpdates,
		ChannelPropertyChanges,
		ChannelSystemNotifications,
		ChannelAdminMonitoring,
	}
}

// Envelope is the unit of transport on the bus.
type Envelope struct {
	ID        ulid.ULID       `json:"id"`
	Channel   string          `json:"channel"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// UserAlert targets a single identity. The alert body is opaque to the
// fan-out layer.
type UserAlert struct {
	UserID   string          `json:"userId"`
	Alert    json.RawMessage `json:"alert"`
	Priority string          `json:"priority,omitempty"`
}

// Validate implements payload validation for the user-alerts channel.
func (p UserAlert) Validate() error {
	if p.UserID == "" {
		return oops.Code("ENVELOPE_INVALID").Errorf("user alert requires a target identity id")
	}
	return nil
}

// MarketUpdate broadcasts to every connection watching a region.
type MarketUpdate struct {
	Region string          `json:"region"`
	Update json.RawMessage `json:"update"`
}

// Validate implements payload validation for the market-updates channel.
func (p MarketUpdate) Validate() error {
	if p.Region == "" {
		return oops.Code("ENVELOPE_INVALID").Errorf("market update requires a region")
	}
	return nil
}

// PropertyChange targets an explicit list of interested identities.
// Delivery is best effort; no durable fallback applies.
type PropertyChange struct {
	PropertyID string          `json:"propertyId"`
	Changes    json.RawMessage `json:"changes"`
	UserIDs    []string        `json:"userIds"`
}

// Validate implements payload validation for the property-changes channel.
func (p PropertyChange) Validate() error {
	if p.PropertyID == "" {
		return oops.Code("ENVELOPE_INVALID").Errorf("property change requires a property id")
	}
	return nil
}

// SystemNotification broadcasts to everyone, or to a single role when Role
// is set.
type SystemNotification struct {
	Role         identity.Role   `json:"role,omitempty"`
	Notification json.RawMessage `json:"notification"`
}

// Validate implements payload validation for the system-notifications channel.
func (p SystemNotification) Validate() error {
	if p.Role != "" && !p.Role.Valid() {
		return oops.Code("ENVELOPE_INVALID").
			With("role", string(p.Role)).
			Errorf("system notification targets an unknown role")
	}
	return nil
}

// AdminMonitoring carries operational stats for privileged observers.
type AdminMonitoring struct {
	Stats json.RawMessage `json:"stats"`
}

// Validate implements payload validation for the admin-monitoring channel.
func (p AdminMonitoring) Validate() error { return nil }

// payload is the constraint every channel payload satisfies.
type payload interface {
	Validate() error
}

// NewEnvelope builds an envelope for a channel, rejecting payload types
// that do not belong to it. This is the publish-side half of the typed
// channel union.
func NewEnvelope(channel string, p payload) (*Envelope, error) {
	if err := checkChannelPayload(channel, p); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	body, err := json.Marshal(p)
	if err != nil {
		return nil, oops.Code("ENVELOPE_INVALID").
			With("channel", channel).
			Wrap(err)
	}
	return &Envelope{
		ID:        ulid.Make(),
		Channel:   channel,
		Timestamp: time.Now().UTC(),
		Payload:   body,
	}, nil
}

// Encode serializes an envelope for the bus.
func (e *Envelope) Encode() ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, oops.Code("ENVELOPE_INVALID").With("channel", e.Channel).Wrap(err)
	}
	return data, nil
}

// ParseEnvelope deserializes a bus message into an envelope.
func ParseEnvelope(data []byte) (*Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, oops.Code("ENVELOPE_MALFORMED").Wrap(err)
	}
	if e.Channel == "" {
		return nil, oops.Code("ENVELOPE_MALFORMED").Errorf("envelope has no channel")
	}
	return &e, nil
}

// DecodePayload is the consume-side half of the typed channel union: it
// returns the concrete payload for the envelope's channel, validated.
func (e *Envelope) DecodePayload() (payload, error) {
	var p payload
	switch e.Channel {
	case ChannelUserAlerts:
		p = &UserAlert{}
	case ChannelMarketUpdates:
		p = &MarketUpdate{}
	case ChannelPropertyChanges:
		p = &PropertyChange{}
	case ChannelSystemNotifications:
		p = &SystemNotification{}
	case ChannelAdminMonitoring:
		p = &AdminMonitoring{}
	default:
		return nil, oops.Code("ENVELOPE_UNKNOWN_CHANNEL").
			With("channel", e.Channel).
			Errorf("no payload schema for channel %q", e.Channel)
	}

	if err := json.Unmarshal(e.Payload, p); err != nil {
		return nil, oops.Code("ENVELOPE_MALFORMED").
			With("channel", e.Channel).
			Wrap(err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func checkChannelPayload(channel string, p payload) error {
	ok := false
	switch p.(type) {
	case UserAlert, *UserAlert:
		ok = channel == ChannelUserAlerts
	case MarketUpdate, *MarketUpdate:
		ok = channel == ChannelMarketUpdates
	case PropertyChange, *PropertyChange:
		ok = channel == ChannelPropertyChanges
	case SystemNotification, *SystemNotification:
		ok = channel == ChannelSystemNotifications
	case AdminMonitoring, *AdminMonitoring:
		ok = channel == ChannelAdminMonitoring
	}
	if !ok {
		return oops.Code("ENVELOPE_INVALID").
			With("channel", channel).
			Errorf("payload type %T does not belong to channel %q", p, channel)
	}
	return nil
}
