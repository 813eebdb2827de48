// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 PropStream Contributors

package hub

import (
	"github.com/samber/oops"

	"github.com/propstream/propstream/internal/identity"
)

// PriceRange is an optional price filter carried by a topic request.
type PriceRange struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// TopicRequest is a client's dynamic alert subscription request.
type TopicRequest struct {
	Regions    []string    `json:"regions"`
	Types      []string    `json:"types"`
	PriceRange *PriceRange `json:"priceRange,omitempty"`
}

// TopicPolicy decides whether an identity may subscribe to the requested
// topic breadth. Authorization is a checked call on every request, never
// skipped.
type TopicPolicy interface {
	Authorize(id identity.Identity, req TopicRequest) error
}

// tierRegionLimits caps how many alert regions a tier may watch at once.
// Zero means unlimited.
var tierRegionLimits = map[identity.Tier]int{
	identity.TierFree:         2,
	identity.TierBasic:        5,
	identity.TierProfessional: 20,
	identity.TierEnterprise:   0,
}

// TierPolicy is the default entitlement policy, keyed on the identity's tier.
type TierPolicy struct{}

// Authorize implements TopicPolicy.
func (TierPolicy) Authorize(id identity.Identity, req TopicRequest) error {
	if id.Role == identity.RoleAdmin {
		return nil
	}

	limit := tierRegionLimits[id.Tier]
	if limit > 0 && len(req.Regions) > limit {
		return oops.Code("SUBSCRIBE_FORBIDDEN").
			With("tier", string(id.Tier)).
			With("requested_regions", len(req.Regions)).
			With("region_limit", limit).
			With("missing_capability", "advanced-filters").
			Errorf("tier %s is limited to %d alert regions", id.Tier, limit)
	}
	if req.PriceRange != nil && id.Tier == identity.TierFree {
		return oops.Code("SUBSCRIBE_FORBIDDEN").
			With("tier", string(id.Tier)).
			With("missing_capability", "price-filters").
			Errorf("price filters require a paid tier")
	}
	return nil
}
