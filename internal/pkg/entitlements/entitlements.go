package entitlements

import (
	"log"
	"time"

	"github.com/UniversalLevi/E-CommerceStore-sub004/app/models"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/plancatalog"
	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/subscription"
)

// Decision is the computed access answer for a tenant at a point in time.
type Decision struct {
	Allowed  bool   `json:"allowed"`
	Quota    *int   `json:"quota"` // nil = unlimited
	Used     int    `json:"used"`
	PlanCode string `json:"plan_code,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// Checker answers "is this tenant entitled to feature X right now". It is
// the single place where the admin bypass is evaluated.
type Checker struct {
	subs    *subscription.Service
	catalog *plancatalog.Catalog
}

func NewChecker(subs *subscription.Service, catalog *plancatalog.Catalog) *Checker {
	return &Checker{subs: subs, catalog: catalog}
}

// GetEntitlement evaluates the precedence rules in order:
// admin bypass; category isolation; lifetime / manual grant without end
// date; trialing within the trial window; active within the term; deny
// with diagnostics. Internal errors fail closed.
func (c *Checker) GetEntitlement(userID uint, isAdmin bool, category plancatalog.Category) Decision {
	if isAdmin {
		return Decision{Allowed: true, Quota: nil, Reason: "admin"}
	}

	sub, err := c.subs.LiveSubscription(userID, category)
	if err != nil {
		log.Printf("entitlement lookup failed for user %d: %v", userID, err)
		return Decision{Allowed: false, Reason: "internal error"}
	}
	if sub == nil {
		return Decision{Allowed: false, Reason: "no subscription"}
	}

	plan, ok := c.catalog.Get(sub.PlanCode)
	if !ok {
		log.Printf("entitlement: subscription %d references unknown plan %q", sub.ID, sub.PlanCode)
		return Decision{Allowed: false, Reason: "unknown plan"}
	}
	// A store plan never grants platform entitlements and vice versa.
	if plan.Category != category {
		return Decision{Allowed: false, Reason: "wrong plan category"}
	}

	now := time.Now()
	base := Decision{Quota: plan.ProductQuota, Used: sub.QuotaUsed, PlanCode: plan.Code}

	switch sub.Status {
	case models.SubscriptionManuallyGranted:
		if sub.EndsAt == nil || sub.EndsAt.After(now) {
			base.Allowed = true
			return base
		}
	case models.SubscriptionTrialing:
		if sub.TrialEndsAt != nil && sub.TrialEndsAt.After(now) {
			base.Allowed = true
			return base
		}
	case models.SubscriptionActive:
		if plan.Lifetime || sub.EndsAt == nil || sub.EndsAt.After(now) {
			base.Allowed = true
			return base
		}
	}

	base.Allowed = false
	base.Reason = "subscription lapsed"
	return base
}
