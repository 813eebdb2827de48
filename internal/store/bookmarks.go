// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package store

import (
	"context"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/samber/oops"
)

// BookmarkRepository maintains the identity-to-property bookmark join.
type BookmarkRepository struct {
	pool querier
}

// NewBookmarkRepository creates a new BookmarkRepository.
func NewBookmarkRepository(pool querier) *BookmarkRepository {
	return &BookmarkRepository{pool: pool}
}

// Add bookmarks the property for the identity. Bookmarking a property
// twice is a no-op, not an error.
func (r *BookmarkRepository) Add(ctx context.Context, identityID, propertyID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO property_bookmarks (identity_id, property_id, created_at)
		VALUES ($1, $2, now())
	`, identityID, propertyID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil
		}
		return oops.Code("BOOKMARK_ADD_FAILED").
			With("operation", "insert bookmark").
			With("identity_id", identityID).
			With("property_id", propertyID).
			Wrap(err)
	}
	return nil
}

// Remove deletes the bookmark. Removing an absent bookmark is a no-op.
func (r *BookmarkRepository) Remove(ctx context.Context, identityID, propertyID string) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM property_bookmarks
		WHERE identity_id = $1 AND property_id = $2
	`, identityID, propertyID)
	if err != nil {
		return oops.Code("BOOKMARK_REMOVE_FAILED").
			With("operation", "delete bookmark").
			With("identity_id", identityID).
			With("property_id", propertyID).
			Wrap(err)
	}
	return nil
}
