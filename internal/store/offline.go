// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package store

import (
	"context"

	"github.com/samber/oops"

	"github.com/propstream/propstream/internal/dispatch"
)

// OfflineNotificationRepository implements dispatch.FallbackStore using
// PostgreSQL. The fan-out layer only writes here; the REST API reads and
// clears records on the user's next login.
type OfflineNotificationRepository struct {
	pool querier
}

// NewOfflineNotificationRepository creates a new OfflineNotificationRepository.
func NewOfflineNotificationRepository(pool querier) *OfflineNotificationRepository {
	return &OfflineNotificationRepository{pool: pool}
}

// Record stores an undelivered notification for the identity. The envelope
// ID is the primary key, so the redundant writes that several processes
// produce for the same message collapse into one row.
func (r *OfflineNotificationRepository) Record(ctx context.Context, identityID string, env *dispatch.Envelope) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO offline_notifications (id, identity_id, channel, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`,
		env.ID.String(),
		identityID,
		env.Channel,
		[]byte(env.Payload),
		env.Timestamp,
	)
	if err != nil {
		return oops.Code("OFFLINE_RECORD_FAILED").
			With("operation", "insert offline notification").
			With("identity_id", identityID).
			With("channel", env.Channel).
			Wrap(err)
	}
	return nil
}
