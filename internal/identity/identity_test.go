// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleUser.Valid())
	assert.True(t, RoleAgent.Valid())
	assert.True(t, RoleAdmin.Valid())
	assert.False(t, Role("superuser").Valid())
	assert.False(t, Role("").Valid())
}

func TestRole_Privileged(t *testing.T) {
	assert.True(t, RoleAdmin.Privileged())
	assert.False(t, RoleUser.Privileged())
	assert.False(t, RoleAgent.Privileged())
}

func TestTier_Valid(t *testing.T) {
	for _, tier := range []Tier{TierFree, TierBasic, TierProfessional, TierEnterprise} {
		assert.True(t, tier.Valid(), "tier %q", tier)
	}
	assert.False(t, Tier("platinum").Valid())
	assert.False(t, Tier("").Valid())
}

func TestIdentity_Zero(t *testing.T) {
	assert.True(t, Identity{}.Zero())
	assert.False(t, Identity{ID: "user-1"}.Zero())
}
