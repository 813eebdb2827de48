// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package dispatch

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/samber/oops"

	"github.com/propstream/propstream/internal/bus"
	"github.com/propstream/propstream/internal/hub"
	"github.com/propstream/propstream/internal/identity"
	"github.com/propstream/propstream/pkg/errutil"
)

// FallbackStore records notifications owed to identities with no open
// connection anywhere. The dispatcher treats it as a write-only sink with
// best-effort semantics; duplicate writes across processes are tolerated
// by design.
type FallbackStore interface {
	Record(ctx context.Context, identityID string, env *Envelope) error
}

// Metrics receives dispatcher instrumentation callbacks.
type Metrics interface {
	OnDispatched(channel string)
	OnDelivered(channel string, connections int)
	OnDeliveryFailure(channel string)
	OnOfflineWrite(ok bool)
}

// NopMetrics discards all dispatcher instrumentation.
type NopMetrics struct{}

func (NopMetrics) OnDispatched(string)      {}
func (NopMetrics) OnDelivered(string, int)  {}
func (NopMetrics) OnDeliveryFailure(string) {}
func (NopMetrics) OnOfflineWrite(bool)      {}

// Durable fallback writes run off the consume loop so a slow store never
// stalls message intake; the semaphore bounds their concurrency.
const (
	maxConcurrentFallbackWrites = 16
	fallbackWriteTimeout        = 5 * time.Second
)

// Dispatcher consumes every logical channel from the bus and routes each
// message to the matching local connections. One consume goroutine per
// channel preserves the broker's per-channel delivery order; no ordering
// holds across channels.
type Dispatcher struct {
	bus      bus.Bus
	registry *hub.Registry
	rooms    *hub.RoomIndex
	fallback FallbackStore
	metrics  Metrics
	logger   *slog.Logger

	mu      sync.Mutex
	subs    []bus.Subscription
	started bool

	loopWG   sync.WaitGroup
	writeWG  sync.WaitGroup
	writeSem chan struct{}
}

// NewDispatcher creates a dispatcher. Returns an error if any required
// dependency is nil.
func NewDispatcher(b bus.Bus, registry *hub.Registry, rooms *hub.RoomIndex, fallback FallbackStore, metrics Metrics, logger *slog.Logger) (*Dispatcher, error) {
	if b == nil {
		return nil, oops.Errorf("bus is required")
	}
	if registry == nil {
		return nil, oops.Errorf("registry is required")
	}
	if rooms == nil {
		return nil, oops.Errorf("room index is required")
	}
	if fallback == nil {
		return nil, oops.Errorf("fallback store is required")
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Dispatcher{
		bus:      b,
		registry: registry,
		rooms:    rooms,
		fallback: fallback,
		metrics:  metrics,
		logger:   logger,
		writeSem: make(chan struct{}, maxConcurrentFallbackWrites),
	}, nil
}

// Start subscribes to every logical channel and begins consuming.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.started {
		return oops.Errorf("dispatcher already started")
	}

	for _, channel := range Channels() {
		sub, err := d.bus.Subscribe(channel)
		if err != nil {
			for _, s := range d.subs {
				s.Close()
			}
			d.subs = nil
			return oops.Code("BUS_SUBSCRIBE_FAILED").
				With("channel", channel).
				Wrap(err)
		}
		d.subs = append(d.subs, sub)

		d.loopWG.Add(1)
		go d.consume(ctx, channel, sub)
	}

	d.started = true
	d.logger.Info("dispatcher started", "channels", len(d.subs))
	return nil
}

// Stop closes every subscription and waits for in-flight handling and
// fallback writes to finish.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	subs := d.subs
	d.subs = nil
	d.started = false
	d.mu.Unlock()

	for _, sub := range subs {
		sub.Close()
	}
	d.loopWG.Wait()
	d.writeWG.Wait()
	d.logger.Info("dispatcher stopped")
}

func (d *Dispatcher) consume(ctx context.Context, channel string, sub bus.Subscription) {
	defer d.loopWG.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-sub.C():
			if !ok {
				return
			}
			d.dispatch(ctx, channel, msg.Data)
		}
	}
}

// dispatch decodes one bus message and routes it. A malformed message is
// logged and skipped; it never stops the channel's consume loop.
func (d *Dispatcher) dispatch(ctx context.Context, channel string, data []byte) {
	env, err := ParseEnvelope(data)
	if err != nil {
		errutil.LogError(d.logger, "dropping malformed bus message", err)
		return
	}
	if env.Channel != channel {
		d.logger.Warn("dropping bus message with mismatched channel",
			"subscribed", channel,
			"declared", env.Channel,
		)
		return
	}

	p, err := env.DecodePayload()
	if err != nil {
		errutil.LogError(d.logger, "dropping undecodable bus message", err)
		return
	}
	d.metrics.OnDispatched(channel)

	switch body := p.(type) {
	case *UserAlert:
		d.handleUserAlert(ctx, env, body)
	case *MarketUpdate:
		d.handleMarketUpdate(env, body)
	case *PropertyChange:
		d.handlePropertyChange(env, body)
	case *SystemNotification:
		d.handleSystemNotification(env, body)
	case *AdminMonitoring:
		d.handleAdminMonitoring(env, body)
	}
}

// handleUserAlert delivers to every local connection of the target identity,
// then records the durable fallback regardless of local outcome. Sending
// the fallback write even when local delivery succeeded is the deliberate
// at-least-once tradeoff: the user may also be connected to another process,
// and the store dedups per-user unread state.
func (d *Dispatcher) handleUserAlert(ctx context.Context, env *Envelope, alert *UserAlert) {
	push := struct {
		Alert    json.RawMessage `json:"alert"`
		Priority string          `json:"priority,omitempty"`
	}{Alert: alert.Alert, Priority: alert.Priority}

	conns := d.registry.Connections(alert.UserID)
	d.deliver(env.Channel, conns, hub.EventAlertNew, push)

	d.recordOffline(ctx, alert.UserID, env)
}

func (d *Dispatcher) handleMarketUpdate(env *Envelope, update *MarketUpdate) {
	push := struct {
		Region string          `json:"region"`
		Update json.RawMessage `json:"update"`
	}{Region: update.Region, Update: update.Update}

	conns := d.rooms.Members(hub.MarketRoom(update.Region))
	d.deliver(env.Channel, conns, hub.EventMarketUpdate, push)
}

func (d *Dispatcher) handlePropertyChange(env *Envelope, change *PropertyChange) {
	push := struct {
		PropertyID string          `json:"propertyId"`
		Changes    json.RawMessage `json:"changes"`
	}{PropertyID: change.PropertyID, Changes: change.Changes}

	for _, userID := range change.UserIDs {
		d.deliver(env.Channel, d.registry.Connections(userID), hub.EventPropertyChanged, push)
	}
}

func (d *Dispatcher) handleSystemNotification(env *Envelope, notif *SystemNotification) {
	var conns []*hub.Connection
	if notif.Role == "" {
		conns = d.registry.All()
	} else {
		conns = d.rooms.Members(hub.RoleRoom(notif.Role))
	}
	d.deliver(env.Channel, conns, hub.EventSystemNotification, json.RawMessage(notif.Notification))
}

func (d *Dispatcher) handleAdminMonitoring(env *Envelope, mon *AdminMonitoring) {
	conns := d.rooms.Members(hub.RoleRoom(identity.RoleAdmin))
	d.deliver(env.Channel, conns, hub.EventAdminMonitoring, json.RawMessage(mon.Stats))
}

// deliver pushes one event to each matched connection. A failure on one
// connection is logged and counted; the remaining matches still receive
// the message.
func (d *Dispatcher) deliver(channel string, conns []*hub.Connection, eventType string, body any) {
	if len(conns) == 0 {
		return
	}

	data, err := json.Marshal(body)
	if err != nil {
		errutil.LogError(d.logger, "failed to encode push event", err)
		return
	}
	event := hub.NewEvent(eventType, data)

	delivered := 0
	for _, conn := range conns {
		if err := conn.Send(event); err != nil {
			d.metrics.OnDeliveryFailure(channel)
			d.logger.Warn("delivery to connection failed",
				"channel", channel,
				"conn_id", conn.ID.String(),
				"identity_id", conn.Identity.ID,
				"error", err,
			)
			continue
		}
		delivered++
	}
	d.metrics.OnDelivered(channel, delivered)
}

// recordOffline schedules the durable fallback write off the consume loop.
// Failures are logged and swallowed; a missed offline notification is an
// accepted best-effort loss, not a crash condition.
func (d *Dispatcher) recordOffline(ctx context.Context, identityID string, env *Envelope) {
	d.writeWG.Add(1)
	go func() {
		defer d.writeWG.Done()

		select {
		case d.writeSem <- struct{}{}:
			defer func() { <-d.writeSem }()
		case <-ctx.Done():
			return
		}

		writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fallbackWriteTimeout)
		defer cancel()

		if err := d.fallback.Record(writeCtx, identityID, env); err != nil {
			d.metrics.OnOfflineWrite(false)
			errutil.LogError(d.logger, "durable fallback write failed", err)
			return
		}
		d.metrics.OnOfflineWrite(true)
	}()
}
