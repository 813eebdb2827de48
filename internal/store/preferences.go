// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package store

import (
	"context"

	"github.com/samber/oops"

	"github.com/propstream/propstream/internal/hub"
)

// PreferenceRepository persists an identity's standing alert filter so the
// web tier can seed it back on the next session.
type PreferenceRepository struct {
	pool querier
}

// NewPreferenceRepository creates a new PreferenceRepository.
func NewPreferenceRepository(pool querier) *PreferenceRepository {
	return &PreferenceRepository{pool: pool}
}

// UpsertAlertFilter replaces the identity's standing alert preference with
// the applied topic filter.
func (r *PreferenceRepository) UpsertAlertFilter(ctx context.Context, identityID string, req hub.TopicRequest) error {
	var priceMin, priceMax *int64
	if req.PriceRange != nil {
		priceMin = &req.PriceRange.Min
		priceMax = &req.PriceRange.Max
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO alert_preferences (identity_id, regions, types, price_min, price_max, updated_at)
		VALUES ($1, $2, $3, $4, $5, now())
		ON CONFLICT (identity_id) DO UPDATE
		SET regions = EXCLUDED.regions,
		    types = EXCLUDED.types,
		    price_min = EXCLUDED.price_min,
		    price_max = EXCLUDED.price_max,
		    updated_at = now()
	`,
		identityID,
		req.Regions,
		req.Types,
		priceMin,
		priceMax,
	)
	if err != nil {
		return oops.Code("PREFERENCE_UPSERT_FAILED").
			With("operation", "upsert alert preference").
			With("identity_id", identityID).
			Wrap(err)
	}
	return nil
}
