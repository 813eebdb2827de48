// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/samber/oops"
)

// Token format constraints. Tokens are 32 random bytes hex-encoded by the
// issuing web tier; only their SHA-256 hash is ever stored or looked up.
const (
	TokenLength = 64

	// DefaultAuthTimeout bounds the credential lookup. A connection attempt
	// that does not authenticate within this window is rejected, not left
	// half-open.
	DefaultAuthTimeout = 5 * time.Second
)

// ErrTokenNotFound is returned by TokenStore implementations when no token
// record matches the given hash.
var ErrTokenNotFound = errors.New("token not found")

// TokenRecord is what the backing store knows about an issued token.
// A zero ExpiresAt means the token never expires.
type TokenRecord struct {
	Identity  Identity
	ExpiresAt time.Time
}

// TokenStore looks up issued connection tokens by their SHA-256 hash.
type TokenStore interface {
	LookupByHash(ctx context.Context, tokenHash string) (*TokenRecord, error)
}

// Authenticator validates bearer credentials at connection-establishment time.
type Authenticator struct {
	store   TokenStore
	timeout time.Duration
}

// NewAuthenticator creates an Authenticator over the given token store.
// A timeout of zero selects DefaultAuthTimeout.
func NewAuthenticator(store TokenStore, timeout time.Duration) (*Authenticator, error) {
	if store == nil {
		return nil, oops.Errorf("token store is required")
	}
	if timeout <= 0 {
		timeout = DefaultAuthTimeout
	}
	return &Authenticator{store: store, timeout: timeout}, nil
}

// HashToken computes the SHA-256 hash of a plaintext token. The plaintext
// token never reaches storage or logs.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// Authenticate resolves a bearer token to an Identity, or fails with an
// AUTH_* coded error. No connection or room state exists yet when this runs;
// a failure therefore never requires cleanup.
func (a *Authenticator) Authenticate(ctx context.Context, token string) (Identity, error) {
	if token == "" {
		return Identity{}, oops.Code("AUTH_TOKEN_MISSING").Errorf("no credential supplied")
	}
	if len(token) != TokenLength || !isHex(token) {
		return Identity{}, oops.Code("AUTH_TOKEN_MALFORMED").Errorf("credential is not a valid token")
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	record, err := a.store.LookupByHash(ctx, HashToken(token))
	if err != nil {
		if errors.Is(err, ErrTokenNotFound) {
			return Identity{}, oops.Code("AUTH_UNKNOWN_IDENTITY").Errorf("credential does not match any identity")
		}
		return Identity{}, oops.Code("AUTH_LOOKUP_FAILED").
			With("operation", "lookup token by hash").
			Wrap(err)
	}

	if !record.ExpiresAt.IsZero() && time.Now().After(record.ExpiresAt) {
		return Identity{}, oops.Code("AUTH_TOKEN_EXPIRED").Errorf("credential has expired")
	}
	if record.Identity.Zero() || !record.Identity.Role.Valid() || !record.Identity.Tier.Valid() {
		return Identity{}, oops.Code("AUTH_UNKNOWN_IDENTITY").
			With("identity_id", record.Identity.ID).
			Errorf("token resolves to an invalid identity")
	}

	return record.Identity, nil
}

func isHex(s string) bool {
	for _, c := range s {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
