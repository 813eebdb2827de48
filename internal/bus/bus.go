// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

// Package bus wraps the shared pub/sub backend that relays messages between
// server processes.
package bus

import "context"

// DefaultChanBuffer decouples the broker callback from the consumer. The
// buffer absorbs short bursts; a consumer that falls further behind drops
// messages instead of backpressuring the broker connection.
const DefaultChanBuffer = 256

// Message is a single inbound bus message.
type Message struct {
	Channel string
	Data    []byte
}

// Subscription is an active channel subscription.
type Subscription interface {
	// C returns the channel messages are delivered on. It is closed when
	// the subscription closes.
	C() <-chan Message

	// Close ends the subscription. Idempotent.
	Close()
}

// Bus is the cross-process message relay. Publish reports only the local
// enqueue outcome; remote delivery is not confirmed.
type Bus interface {
	Publish(ctx context.Context, channel string, data []byte) error
	Subscribe(channel string) (Subscription, error)
	Close()
}

// Metrics receives bus instrumentation callbacks.
type Metrics interface {
	OnPublish(channel string)
	OnDropped(channel string)
	OnReconnect()
}

// NopMetrics discards all instrumentation callbacks.
type NopMetrics struct{}

func (NopMetrics) OnPublish(string) {}
func (NopMetrics) OnDropped(string) {}
func (NopMetrics) OnReconnect()     {}
