package plancatalog

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/UniversalLevi/E-CommerceStore-sub004/internal/pkg/env"
)

// Category separates platform plans (the SaaS itself) from store plans
// (per-storefront upgrades). Entitlements never cross categories.
type Category string

const (
	CategoryPlatform Category = "platform"
	CategoryStore    Category = "store"
)

// Plan is an immutable plan definition. Prices and commission rates are
// integers (minor currency units / basis points) end to end.
type Plan struct {
	Code              string
	Name              string
	Category          Category
	PriceMinor        int64
	DurationDays      int  // ignored when Lifetime is set
	Lifetime          bool
	ProductQuota      *int // nil = unlimited
	CommissionRateBps int  // 2500 = 25%
	TrialDays         int  // 0 = no trial flow for this plan
}

// Config carries the billing knobs that are read once at startup and
// passed by reference into the services that need them.
type Config struct {
	TokenChargeMinor         int64
	HoldingPeriodDays        int
	MinPayoutMinor           int64
	RenewalCommission        bool
	DefaultCommissionRateBps int
	SettlementCurrency       string
}

// Catalog is the read-only plan lookup built at process start.
type Catalog struct {
	plans  map[string]Plan
	Config Config
}

func intPtr(v int) *int { return &v }

// builtinPlans is the plan table shipped with the service. Prices can be
// overridden per plan via PLAN_<CODE>_PRICE env keys at startup.
func builtinPlans() []Plan {
	return []Plan{
		{
			Code: "starter_30", Name: "Starter", Category: CategoryPlatform,
			PriceMinor: 99900, DurationDays: 30, ProductQuota: intPtr(25),
			CommissionRateBps: 1500,
		},
		{
			Code: "growth_90", Name: "Growth", Category: CategoryPlatform,
			PriceMinor: 399900, DurationDays: 90, ProductQuota: intPtr(250),
			CommissionRateBps: 2500, TrialDays: 5,
		},
		{
			Code: "lifetime", Name: "Lifetime", Category: CategoryPlatform,
			PriceMinor: 1999900, Lifetime: true, ProductQuota: nil,
			CommissionRateBps: 2000,
		},
		{
			Code: "store_basic_30", Name: "Store Basic", Category: CategoryStore,
			PriceMinor: 49900, DurationDays: 30, ProductQuota: intPtr(50),
		},
		{
			Code: "store_pro_365", Name: "Store Pro", Category: CategoryStore,
			PriceMinor: 499900, DurationDays: 365, ProductQuota: nil,
		},
	}
}

// Load builds the catalog from the built-in plan table and environment
// overrides. It is called exactly once at startup; the resulting Catalog
// is shared read-only.
func Load() (*Catalog, error) {
	cfg := Config{
		TokenChargeMinor:         envInt64("BILLING_TOKEN_CHARGE_MINOR", 2000),
		HoldingPeriodDays:        envInt("COMMISSION_HOLDING_DAYS", 14),
		MinPayoutMinor:           envInt64("PAYOUT_MIN_MINOR", 100000),
		RenewalCommission:        env.GetEnv("COMMISSION_ON_RENEWAL", "false") == "true",
		DefaultCommissionRateBps: envInt("COMMISSION_DEFAULT_RATE_BPS", 1000),
		SettlementCurrency:       env.GetEnv("BILLING_CURRENCY", "INR"),
	}

	plans := make(map[string]Plan)
	for _, p := range builtinPlans() {
		if override := env.GetEnv("PLAN_"+strings.ToUpper(p.Code)+"_PRICE", ""); override != "" {
			v, err := strconv.ParseInt(override, 10, 64)
			if err != nil || v <= 0 {
				return nil, fmt.Errorf("invalid price override for plan %s: %q", p.Code, override)
			}
			p.PriceMinor = v
		}
		if err := validatePlan(p); err != nil {
			return nil, err
		}
		plans[p.Code] = p
	}
	return &Catalog{plans: plans, Config: cfg}, nil
}

// NewCatalog builds a catalog from an explicit plan list; used by tests
// and by deployments that ship their own plan table.
func NewCatalog(cfg Config, plans []Plan) (*Catalog, error) {
	m := make(map[string]Plan, len(plans))
	for _, p := range plans {
		if err := validatePlan(p); err != nil {
			return nil, err
		}
		if _, dup := m[p.Code]; dup {
			return nil, fmt.Errorf("duplicate plan code %s", p.Code)
		}
		m[p.Code] = p
	}
	return &Catalog{plans: m, Config: cfg}, nil
}

func validatePlan(p Plan) error {
	if strings.TrimSpace(p.Code) == "" {
		return fmt.Errorf("plan code is required")
	}
	if p.Category != CategoryPlatform && p.Category != CategoryStore {
		return fmt.Errorf("plan %s: unknown category %q", p.Code, p.Category)
	}
	if p.PriceMinor <= 0 {
		return fmt.Errorf("plan %s: price must be positive", p.Code)
	}
	if !p.Lifetime && p.DurationDays <= 0 {
		return fmt.Errorf("plan %s: non-lifetime plan needs a duration", p.Code)
	}
	if p.CommissionRateBps < 0 || p.CommissionRateBps > 10000 {
		return fmt.Errorf("plan %s: commission rate out of range", p.Code)
	}
	if p.ProductQuota != nil && *p.ProductQuota <= 0 {
		return fmt.Errorf("plan %s: quota must be positive or nil", p.Code)
	}
	return nil
}

// Get returns the plan for a code.
func (c *Catalog) Get(code string) (Plan, bool) {
	p, ok := c.plans[strings.TrimSpace(code)]
	return p, ok
}

// All returns every plan sorted by category then price.
func (c *Catalog) All() []Plan {
	out := make([]Plan, 0, len(c.plans))
	for _, p := range c.plans {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Category != out[j].Category {
			return out[i].Category < out[j].Category
		}
		return out[i].PriceMinor < out[j].PriceMinor
	})
	return out
}

// ParseCategory validates a category string; unknown values are
// rejected rather than defaulted.
func ParseCategory(s string) (Category, error) {
	switch Category(strings.TrimSpace(s)) {
	case CategoryPlatform:
		return CategoryPlatform, nil
	case CategoryStore:
		return CategoryStore, nil
	default:
		return "", fmt.Errorf("unknown plan category %q", s)
	}
}

// ByCategory returns all plans of a category sorted by price.
func (c *Catalog) ByCategory(cat Category) []Plan {
	var out []Plan
	for _, p := range c.plans {
		if p.Category == cat {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PriceMinor < out[j].PriceMinor })
	return out
}

// Commissionable reports whether payments on this plan accrue affiliate
// commission. Store-category plans never do.
func (c *Catalog) Commissionable(code string) bool {
	p, ok := c.Get(code)
	return ok && p.Category == CategoryPlatform && p.CommissionRateBps > 0
}

func envInt(key string, def int) int {
	if v, err := strconv.Atoi(env.GetEnv(key, "")); err == nil {
		return v
	}
	return def
}

func envInt64(key string, def int64) int64 {
	if v, err := strconv.ParseInt(env.GetEnv(key, ""), 10, 64); err == nil {
		return v
	}
	return def
}
