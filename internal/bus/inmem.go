// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package bus

import (
	"context"
	"sync"

	"github.com/samber/oops"
)

// InMemBus is an in-process Bus for tests and single-process development.
// It mimics the broker's delivery contract: non-blocking fan-out with
// drop-on-full, and subscriptions that survive a simulated reconnect.
type InMemBus struct {
	chanBuffer int
	metrics    Metrics

	mu     sync.RWMutex
	subs   map[string][]*memSubscription
	down   bool
	closed bool
}

// NewInMemBus creates an in-memory bus. chanBuffer <= 0 selects
// DefaultChanBuffer.
func NewInMemBus(chanBuffer int, metrics Metrics) *InMemBus {
	if chanBuffer <= 0 {
		chanBuffer = DefaultChanBuffer
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &InMemBus{
		chanBuffer: chanBuffer,
		metrics:    metrics,
		subs:       make(map[string][]*memSubscription),
	}
}

// Publish fans the message out to every subscription on the channel.
func (b *InMemBus) Publish(_ context.Context, channel string, data []byte) error {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed || b.down {
		return oops.Code("BUS_UNAVAILABLE").
			With("channel", channel).
			Errorf("bus is unavailable")
	}

	for _, sub := range b.subs[channel] {
		msg := Message{Channel: channel, Data: data}
		select {
		case sub.ch <- msg:
		default:
			b.metrics.OnDropped(channel)
		}
	}
	b.metrics.OnPublish(channel)
	return nil
}

// Subscribe registers a channel subscription.
func (b *InMemBus) Subscribe(channel string) (Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, oops.Code("BUS_UNAVAILABLE").Errorf("bus is closed")
	}

	sub := &memSubscription{
		bus:     b,
		channel: channel,
		ch:      make(chan Message, b.chanBuffer),
	}
	b.subs[channel] = append(b.subs[channel], sub)
	return sub, nil
}

// SimulateReconnect models a transient broker drop followed by automatic
// recovery: publishes fail while down, and every existing subscription
// keeps receiving once the link is back.
func (b *InMemBus) SimulateReconnect() {
	b.mu.Lock()
	b.down = true
	b.mu.Unlock()

	b.mu.Lock()
	b.down = false
	b.mu.Unlock()
	b.metrics.OnReconnect()
}

// SetDown toggles broker availability for failure-path tests.
func (b *InMemBus) SetDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

// Close shuts the bus down and closes every subscription.
func (b *InMemBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.subs {
		for _, sub := range subs {
			sub.closeLocked()
		}
	}
	b.subs = make(map[string][]*memSubscription)
}

func (b *InMemBus) remove(target *memSubscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[target.channel]
	for i, sub := range subs {
		if sub == target {
			b.subs[target.channel] = append(subs[:i], subs[i+1:]...)
			return
		}
	}
}

type memSubscription struct {
	bus     *InMemBus
	channel string
	ch      chan Message
	once    sync.Once
}

func (s *memSubscription) C() <-chan Message { return s.ch }

func (s *memSubscription) Close() {
	s.once.Do(func() {
		s.bus.remove(s)
		close(s.ch)
	})
}

// closeLocked closes the subscription channel without re-entering the bus
// lock. Only called from InMemBus.Close.
func (s *memSubscription) closeLocked() {
	s.once.Do(func() {
		close(s.ch)
	})
}
