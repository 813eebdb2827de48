// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package hub

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propstream/propstream/internal/identity"
	"github.com/propstream/propstream/pkg/errutil"
)

func TestTierPolicy_RegionLimits(t *testing.T) {
	policy := TierPolicy{}

	tests := []struct {
		name    string
		tier    identity.Tier
		regions int
		wantErr bool
	}{
		{name: "free within limit", tier: identity.TierFree, regions: 2},
		{name: "free over limit", tier: identity.TierFree, regions: 3, wantErr: true},
		{name: "basic within limit", tier: identity.TierBasic, regions: 5},
		{name: "basic over limit", tier: identity.TierBasic, regions: 6, wantErr: true},
		{name: "professional within limit", tier: identity.TierProfessional, regions: 20},
		{name: "professional over limit", tier: identity.TierProfessional, regions: 21, wantErr: true},
		{name: "enterprise unlimited", tier: identity.TierEnterprise, regions: 100},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id := identity.Identity{ID: "user-1", Role: identity.RoleUser, Tier: tt.tier}
			regions := make([]string, tt.regions)
			for i := range regions {
				regions[i] = "region"
			}

			err := policy.Authorize(id, TopicRequest{Regions: regions})
			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, "SUBSCRIBE_FORBIDDEN")
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestTierPolicy_PriceFiltersRequirePaidTier(t *testing.T) {
	policy := TierPolicy{}
	req := TopicRequest{
		Regions:    []string{"austin"},
		PriceRange: &PriceRange{Min: 100_000, Max: 500_000},
	}

	free := identity.Identity{ID: "user-1", Role: identity.RoleUser, Tier: identity.TierFree}
	err := policy.Authorize(free, req)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "SUBSCRIBE_FORBIDDEN")

	basic := identity.Identity{ID: "user-2", Role: identity.RoleUser, Tier: identity.TierBasic}
	assert.NoError(t, policy.Authorize(basic, req))
}

func TestTierPolicy_AdminBypassesLimits(t *testing.T) {
	policy := TierPolicy{}
	admin := identity.Identity{ID: "admin-1", Role: identity.RoleAdmin, Tier: identity.TierFree}

	regions := make([]string, 50)
	for i := range regions {
		regions[i] = "region"
	}
	err := policy.Authorize(admin, TopicRequest{
		Regions:    regions,
		PriceRange: &PriceRange{Min: 0, Max: 1},
	})
	assert.NoError(t, err)
}
