// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

// Package identity resolves bearer credentials to authenticated identities.
package identity

// Role classifies what an identity is allowed to see.
type Role string

const (
	RoleUser  Role = "user"
	RoleAgent Role = "agent"
	RoleAdmin Role = "admin"
)

// Valid reports whether the role is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// Privileged reports whether the role receives operational broadcast streams.
func (r Role) Privileged() bool {
	return r == RoleAdmin
}

// Tier is the entitlement tier of an identity's subscription plan.
type Tier string

const (
	TierFree         Tier = "free"
	TierBasic        Tier = "basic"
	TierProfessional Tier = "professional"
	TierEnterprise   Tier = "enterprise"
)

// Valid reports whether the tier is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierBasic, TierProfessional, TierEnterprise:
		return true
	}
	return false
}

// Identity is the authenticated principal a connection belongs to.
// It is fixed for the lifetime of the connection that authenticated it.
type Identity struct {
	ID   string
	Role Role
	Tier Tier
}

// Zero reports whether the identity is the zero value.
func (id Identity) Zero() bool {
	return id.ID == ""
}
