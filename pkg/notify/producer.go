// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

// Package notify is the producer-facing API: upstream business logic uses a
// Producer to publish typed notifications without touching envelope or bus
// details.
package notify

import (
	"context"
	"encoding/json"

	"github.com/samber/oops"

	"github.com/propstream/propstream/internal/bus"
	"github.com/propstream/propstream/internal/dispatch"
	"github.com/propstream/propstream/internal/identity"
)

// Producer publishes typed notifications to the bus.
type Producer struct {
	bus bus.Bus
}

// NewProducer creates a Producer over the given bus.
func NewProducer(b bus.Bus) (*Producer, error) {
	if b == nil {
		return nil, oops.Errorf("bus is required")
	}
	return &Producer{bus: b}, nil
}

// BroadcastAlert publishes a user alert. The alert body is opaque; priority
// is advisory metadata for the client.
func (p *Producer) BroadcastAlert(ctx context.Context, userID string, alert json.RawMessage, priority string) error {
	return p.publish(ctx, dispatch.ChannelUserAlerts, dispatch.UserAlert{
		UserID:   userID,
		Alert:    alert,
		Priority: priority,
	})
}

// BroadcastMarketUpdate publishes a market update for a region.
func (p *Producer) BroadcastMarketUpdate(ctx context.Context, region string, update json.RawMessage) error {
	return p.publish(ctx, dispatch.ChannelMarketUpdates, dispatch.MarketUpdate{
		Region: region,
		Update: update,
	})
}

// BroadcastPropertyChange publishes a property change addressed to the
// identities watching that property.
func (p *Producer) BroadcastPropertyChange(ctx context.Context, propertyID string, changes json.RawMessage, userIDs []string) error {
	return p.publish(ctx, dispatch.ChannelPropertyChanges, dispatch.PropertyChange{
		PropertyID: propertyID,
		Changes:    changes,
		UserIDs:    userIDs,
	})
}

// SendSystemNotification publishes a system notification. An empty role
// broadcasts to every connected client; a set role narrows it to that role.
func (p *Producer) SendSystemNotification(ctx context.Context, notification json.RawMessage, role identity.Role) error {
	return p.publish(ctx, dispatch.ChannelSystemNotifications, dispatch.SystemNotification{
		Role:         role,
		Notification: notification,
	})
}

func (p *Producer) publish(ctx context.Context, channel string, body interface{ Validate() error }) error {
	env, err := dispatch.NewEnvelope(channel, body)
	if err != nil {
		return err
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return p.bus.Publish(ctx, channel, data)
}
