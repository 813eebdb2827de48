// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/samber/oops"

	"github.com/propstream/propstream/internal/identity"
)

// TokenRepository implements identity.TokenStore using PostgreSQL. Tokens
// are issued by the web tier; this service only reads them.
type TokenRepository struct {
	pool querier
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(pool querier) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// LookupByHash retrieves the token record matching the given SHA-256 hash.
func (r *TokenRepository) LookupByHash(ctx context.Context, tokenHash string) (*identity.TokenRecord, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT identity_id, role, tier, expires_at
		FROM notification_tokens
		WHERE token_hash = $1
	`, tokenHash)

	var (
		identityID string
		role       string
		tier       string
		expiresAt  *time.Time
	)
	err := row.Scan(&identityID, &role, &tier, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, identity.ErrTokenNotFound
	}
	if err != nil {
		return nil, oops.Code("TOKEN_LOOKUP_FAILED").
			With("operation", "get token by hash").
			Wrap(err)
	}

	record := &identity.TokenRecord{
		Identity: identity.Identity{
			ID:   identityID,
			Role: identity.Role(role),
			Tier: identity.Tier(tier),
		},
	}
	if expiresAt != nil {
		record.ExpiresAt = *expiresAt
	}
	return record, nil
}
