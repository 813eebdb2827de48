// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package store

import (
	"context"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// InquiryRepository records property inquiries submitted over live
// connections. The web tier reads these back for listing agents.
type InquiryRepository struct {
	pool querier
}

// NewInquiryRepository creates a new InquiryRepository.
func NewInquiryRepository(pool querier) *InquiryRepository {
	return &InquiryRepository{pool: pool}
}

// Insert stores an inquiry and returns its generated id.
func (r *InquiryRepository) Insert(ctx context.Context, identityID, propertyID, message string) (string, error) {
	id := ulid.Make().String()
	_, err := r.pool.Exec(ctx, `
		INSERT INTO property_inquiries (id, identity_id, property_id, message, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, id, identityID, propertyID, message)
	if err != nil {
		return "", oops.Code("INQUIRY_INSERT_FAILED").
			With("operation", "insert inquiry").
			With("identity_id", identityID).
			With("property_id", propertyID).
			Wrap(err)
	}
	return id, nil
}
