// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

// Package health publishes periodic service stats to the admin-monitoring
// channel.
package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime"
	"time"

	"github.com/samber/oops"

	"github.com/propstream/propstream/internal/bus"
	"github.com/propstream/propstream/internal/dispatch"
)

// DefaultInterval is the reporting cadence.
const DefaultInterval = 30 * time.Second

// StatsSource exposes the live connection counts included in each report.
type StatsSource interface {
	ConnectionCount() int
	IdentityCount() int
}

// report is the stats body published on admin-monitoring.
type report struct {
	ConnectedIdentityCount int     `json:"connectedIdentityCount"`
	ActiveConnectionCount  int     `json:"activeConnectionCount"`
	ProcessUptimeSeconds   float64 `json:"processUptime"`
	MemoryUsageBytes       uint64  `json:"memoryUsage"`
}

// Reporter publishes service stats on a fixed interval, independent of
// message traffic. Every instance reports; admin observers see one report
// per instance per tick.
type Reporter struct {
	bus       bus.Bus
	stats     StatsSource
	interval  time.Duration
	logger    *slog.Logger
	startedAt time.Time
}

// NewReporter creates a health reporter. An interval of zero selects
// DefaultInterval.
func NewReporter(b bus.Bus, stats StatsSource, interval time.Duration, logger *slog.Logger) (*Reporter, error) {
	if b == nil {
		return nil, oops.Errorf("bus is required")
	}
	if stats == nil {
		return nil, oops.Errorf("stats source is required")
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Reporter{
		bus:      b,
		stats:    stats,
		interval: interval,
		logger:   logger,
	}, nil
}

// Run publishes reports until the context is cancelled. Publish failures
// are logged and skipped; the next tick tries again.
func (r *Reporter) Run(ctx context.Context) {
	r.startedAt = time.Now()
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("health reporter started", "interval", r.interval.String())

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("health reporter stopped")
			return
		case <-ticker.C:
			if err := r.publish(ctx); err != nil {
				r.logger.Warn("failed to publish health report", "error", err)
			}
		}
	}
}

func (r *Reporter) publish(ctx context.Context) error {
	stats, err := json.Marshal(r.snapshot())
	if err != nil {
		return oops.With("operation", "marshal health report").Wrap(err)
	}

	env, err := dispatch.NewEnvelope(dispatch.ChannelAdminMonitoring, dispatch.AdminMonitoring{Stats: stats})
	if err != nil {
		return err
	}
	data, err := env.Encode()
	if err != nil {
		return err
	}
	return r.bus.Publish(ctx, dispatch.ChannelAdminMonitoring, data)
}

func (r *Reporter) snapshot() report {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	return report{
		ConnectedIdentityCount: r.stats.IdentityCount(),
		ActiveConnectionCount:  r.stats.ConnectionCount(),
		ProcessUptimeSeconds:   time.Since(r.startedAt).Seconds(),
		MemoryUsageBytes:       mem.Alloc,
	}
}
