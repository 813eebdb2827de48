// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package identity

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propstream/propstream/pkg/errutil"
)

// stubTokenStore serves canned records keyed by token hash.
type stubTokenStore struct {
	records map[string]*TokenRecord
	err     error
	lastCtx context.Context
}

func (s *stubTokenStore) LookupByHash(ctx context.Context, tokenHash string) (*TokenRecord, error) {
	s.lastCtx = ctx
	if s.err != nil {
		return nil, s.err
	}
	record, ok := s.records[tokenHash]
	if !ok {
		return nil, ErrTokenNotFound
	}
	return record, nil
}

func validToken(fill byte) string {
	return strings.Repeat(string(fill), TokenLength)
}

func TestNewAuthenticator_RequiresStore(t *testing.T) {
	_, err := NewAuthenticator(nil, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "token store is required")
}

func TestNewAuthenticator_ZeroTimeoutUsesDefault(t *testing.T) {
	auth, err := NewAuthenticator(&stubTokenStore{}, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultAuthTimeout, auth.timeout)
}

func TestAuthenticate_Success(t *testing.T) {
	token := validToken('a')
	store := &stubTokenStore{
		records: map[string]*TokenRecord{
			HashToken(token): {
				Identity: Identity{ID: "user-1", Role: RoleUser, Tier: TierBasic},
			},
		},
	}
	auth, err := NewAuthenticator(store, time.Second)
	require.NoError(t, err)

	id, err := auth.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id.ID)
	assert.Equal(t, RoleUser, id.Role)
	assert.Equal(t, TierBasic, id.Tier)
}

func TestAuthenticate_Failures(t *testing.T) {
	expired := validToken('b')
	invalidRole := validToken('c')

	store := &stubTokenStore{
		records: map[string]*TokenRecord{
			HashToken(expired): {
				Identity:  Identity{ID: "user-2", Role: RoleUser, Tier: TierFree},
				ExpiresAt: time.Now().Add(-time.Minute),
			},
			HashToken(invalidRole): {
				Identity: Identity{ID: "user-3", Role: Role("superuser"), Tier: TierFree},
			},
		},
	}
	auth, err := NewAuthenticator(store, time.Second)
	require.NoError(t, err)

	tests := []struct {
		name     string
		token    string
		wantCode string
	}{
		{
			name:     "empty token",
			token:    "",
			wantCode: "AUTH_TOKEN_MISSING",
		},
		{
			name:     "too short",
			token:    "abc123",
			wantCode: "AUTH_TOKEN_MALFORMED",
		},
		{
			name:     "right length but not hex",
			token:    strings.Repeat("z", TokenLength),
			wantCode: "AUTH_TOKEN_MALFORMED",
		},
		{
			name:     "unknown token",
			token:    validToken('d'),
			wantCode: "AUTH_UNKNOWN_IDENTITY",
		},
		{
			name:     "expired token",
			token:    expired,
			wantCode: "AUTH_TOKEN_EXPIRED",
		},
		{
			name:     "record with invalid role",
			token:    invalidRole,
			wantCode: "AUTH_UNKNOWN_IDENTITY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := auth.Authenticate(context.Background(), tt.token)
			require.Error(t, err)
			errutil.AssertErrorCode(t, err, tt.wantCode)
		})
	}
}

func TestAuthenticate_ZeroExpiryNeverExpires(t *testing.T) {
	token := validToken('e')
	store := &stubTokenStore{
		records: map[string]*TokenRecord{
			HashToken(token): {
				Identity: Identity{ID: "svc-1", Role: RoleAgent, Tier: TierEnterprise},
			},
		},
	}
	auth, err := NewAuthenticator(store, time.Second)
	require.NoError(t, err)

	id, err := auth.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "svc-1", id.ID)
}

func TestAuthenticate_StoreErrorIsWrapped(t *testing.T) {
	store := &stubTokenStore{err: errors.New("connection reset")}
	auth, err := NewAuthenticator(store, time.Second)
	require.NoError(t, err)

	_, err = auth.Authenticate(context.Background(), validToken('f'))
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "AUTH_LOOKUP_FAILED")
}

func TestAuthenticate_BoundsLookupWithTimeout(t *testing.T) {
	token := validToken('a')
	store := &stubTokenStore{
		records: map[string]*TokenRecord{
			HashToken(token): {
				Identity: Identity{ID: "user-1", Role: RoleUser, Tier: TierFree},
			},
		},
	}
	auth, err := NewAuthenticator(store, 100*time.Millisecond)
	require.NoError(t, err)

	_, err = auth.Authenticate(context.Background(), token)
	require.NoError(t, err)

	deadline, ok := store.lastCtx.Deadline()
	require.True(t, ok, "lookup context should carry a deadline")
	assert.WithinDuration(t, time.Now().Add(100*time.Millisecond), deadline, 50*time.Millisecond)
}

func TestHashToken_Deterministic(t *testing.T) {
	token := validToken('a')
	assert.Equal(t, HashToken(token), HashToken(token))
	assert.NotEqual(t, HashToken(token), HashToken(validToken('b')))
	assert.Len(t, HashToken(token), 64)
	assert.NotEqual(t, token, HashToken(token), "hash must not leak the plaintext")
}
