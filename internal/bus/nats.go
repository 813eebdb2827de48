// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package bus

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Startup connect budget. The broker being unreachable at startup is fatal:
// a process that silently degraded to local-only delivery would produce a
// confusing partial-delivery bug in a multi-process deployment.
const (
	connectBaseBackoff = 500 * time.Millisecond
	connectMaxRetries  = 6
)

// NATSConfig configures the NATS-backed bus.
type NATSConfig struct {
	URL           string
	Name          string
	ChanBuffer    int
	ReconnectWait time.Duration
}

// NATSBus relays messages over a NATS connection shared process-wide.
// Publish calls from concurrent request paths interleave safely; after a
// transient broker drop the client reconnects and restores every
// subscription on its own.
type NATSBus struct {
	nc      *nats.Conn
	conf    NATSConfig
	metrics Metrics
	logger  *slog.Logger

	mu     sync.Mutex
	closed bool
}

// ConnectNATS establishes the broker connection with a bounded exponential
// backoff and fails fast if the budget is exhausted.
func ConnectNATS(ctx context.Context, conf NATSConfig, metrics Metrics, logger *slog.Logger) (*NATSBus, error) {
	if conf.URL == "" {
		return nil, oops.Code("BUS_UNAVAILABLE").Errorf("bus URL is required")
	}
	if conf.ChanBuffer <= 0 {
		conf.ChanBuffer = DefaultChanBuffer
	}
	if conf.ReconnectWait <= 0 {
		conf.ReconnectWait = 2 * time.Second
	}
	if metrics == nil {
		metrics = NopMetrics{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	opts := []nats.Option{
		nats.Name(conf.Name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(conf.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("bus connection lost", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			// The client re-subscribes all registered subjects itself.
			metrics.OnReconnect()
			logger.Info("bus reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			logger.Info("bus connection closed")
		}),
	}

	var nc *nats.Conn
	backoff := retry.WithMaxRetries(connectMaxRetries, retry.NewExponential(connectBaseBackoff))
	err := retry.Do(ctx, backoff, func(_ context.Context) error {
		var connErr error
		nc, connErr = nats.Connect(conf.URL, opts...)
		if connErr != nil {
			logger.Warn("bus connect attempt failed", "url", conf.URL, "error", connErr)
			return retry.RetryableError(connErr)
		}
		return nil
	})
	if err != nil {
		return nil, oops.Code("BUS_UNAVAILABLE").
			With("url", conf.URL).
			With("max_retries", connectMaxRetries).
			Wrap(err)
	}

	logger.Info("bus connected", "url", nc.ConnectedUrl())
	return &NATSBus{nc: nc, conf: conf, metrics: metrics, logger: logger}, nil
}

// Publish enqueues a message for the channel. Fire and forget: success means
// the local enqueue succeeded, not that any remote process received it.
func (b *NATSBus) Publish(_ context.Context, channel string, data []byte) error {
	if err := b.nc.Publish(channel, data); err != nil {
		return oops.Code("BUS_UNAVAILABLE").
			With("channel", channel).
			Wrap(err)
	}
	b.metrics.OnPublish(channel)
	return nil
}

// Subscribe registers a channel subscription. The delivery callback never
// blocks on the consumer: if the consumer's buffer is full the message is
// dropped and counted.
func (b *NATSBus) Subscribe(channel string) (Subscription, error) {
	ns := &natsSubscription{ch: make(chan Message, b.conf.ChanBuffer)}

	sub, err := b.nc.Subscribe(channel, func(m *nats.Msg) {
		// Registration is serialized with Close so Add never races with Wait.
		ns.mu.Lock()
		if ns.closing {
			ns.mu.Unlock()
			return
		}
		ns.inflight.Add(1)
		ns.mu.Unlock()
		defer ns.inflight.Done()

		data := make([]byte, len(m.Data))
		copy(data, m.Data)
		select {
		case ns.ch <- Message{Channel: m.Subject, Data: data}:
		default:
			b.metrics.OnDropped(channel)
			b.logger.Warn("bus message dropped: consumer buffer full", "channel", channel)
		}
	})
	if err != nil {
		return nil, oops.Code("BUS_SUBSCRIBE_FAILED").
			With("channel", channel).
			Wrap(err)
	}

	ns.sub = sub
	return ns, nil
}

// Close drains outstanding publishes and closes the broker connection.
func (b *NATSBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	if err := b.nc.Drain(); err != nil {
		b.logger.Debug("error draining bus connection", "error", err)
		b.nc.Close()
	}
}

type natsSubscription struct {
	ch  chan Message
	sub *nats.Subscription

	mu       sync.Mutex
	closing  bool
	inflight sync.WaitGroup
	once     sync.Once
}

func (s *natsSubscription) C() <-chan Message { return s.ch }

// Close unsubscribes and closes the delivery channel once every callback
// that already registered has finished, so close never races a send.
func (s *natsSubscription) Close() {
	s.once.Do(func() {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		_ = s.sub.Unsubscribe() //nolint:errcheck // best effort on teardown
		s.inflight.Wait()
		close(s.ch)
	})
}
