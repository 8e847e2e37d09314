// Package plans provides the static plan catalog mapping external price
// references to credit allowances.
//
// The catalog is loaded once at startup and never mutated afterwards, so it
// is safe to share across handlers without locking.
package plans

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Plan describes a purchasable subscription plan.
type Plan struct {
	Name           string `yaml:"name" json:"name"`
	Description    string `yaml:"description,omitempty" json:"description,omitempty"`
	PriceRef       string `yaml:"price_ref" json:"price_ref"`
	YearlyPriceRef string `yaml:"yearly_price_ref,omitempty" json:"yearly_price_ref,omitempty"`
	// Credits is the monthly credit allowance granted at each period start.
	Credits int64 `yaml:"credits" json:"credits"`
	// PriceCents is the monthly price. Zero for the free tier.
	PriceCents int64 `yaml:"price_cents" json:"price_cents"`
	IsFree     bool  `yaml:"is_free" json:"is_free"`
}

// Paid reports whether subscribing to this plan grants paid status.
func (p Plan) Paid() bool {
	return p.PriceCents > 0
}

// Catalog is an immutable lookup table of plans keyed by price reference.
type Catalog struct {
	plans []Plan
	byRef map[string]Plan
	free  Plan
}

// NewCatalog builds a catalog from a list of plans. Exactly one plan must be
// marked as the free tier, and every plan needs a monthly price reference.
func NewCatalog(planList []Plan) (*Catalog, error) {
	c := &Catalog{
		plans: make([]Plan, len(planList)),
		byRef: make(map[string]Plan),
	}
	copy(c.plans, planList)

	freeCount := 0
	for _, p := range c.plans {
		if p.PriceRef == "" {
			return nil, fmt.Errorf("plan %q has no price reference", p.Name)
		}
		if _, dup := c.byRef[p.PriceRef]; dup {
			return nil, fmt.Errorf("duplicate price reference %q", p.PriceRef)
		}
		c.byRef[p.PriceRef] = p
		if p.YearlyPriceRef != "" {
			if _, dup := c.byRef[p.YearlyPriceRef]; dup {
				return nil, fmt.Errorf("duplicate price reference %q", p.YearlyPriceRef)
			}
			c.byRef[p.YearlyPriceRef] = p
		}
		if p.IsFree {
			freeCount++
			c.free = p
		}
	}

	if freeCount != 1 {
		return nil, fmt.Errorf("catalog must contain exactly one free-tier plan, found %d", freeCount)
	}

	return c, nil
}

// catalogFile is the on-disk YAML layout.
type catalogFile struct {
	Plans []Plan `yaml:"plans"`
}

// LoadCatalog reads a plan catalog from a YAML file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan catalog: %w", err)
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse plan catalog: %w", err)
	}

	return NewCatalog(file.Plans)
}

// DefaultCatalog returns the built-in catalog used when no catalog file is
// configured.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog([]Plan{
		{
			Name:     "Free",
			PriceRef: "price_free",
			Credits:  100,
			IsFree:   true,
		},
		{
			Name:           "Starter",
			Description:    "Perfect for small projects",
			PriceRef:       "price_starter_monthly",
			YearlyPriceRef: "price_starter_yearly",
			Credits:        10000,
			PriceCents:     1800,
		},
		{
			Name:           "Growth",
			Description:    "For teams generating documents at scale",
			PriceRef:       "price_growth_monthly",
			YearlyPriceRef: "price_growth_yearly",
			Credits:        50000,
			PriceCents:     4900,
		},
	})
	if err != nil {
		// The built-in catalog is validated by tests; this cannot happen.
		panic(err)
	}
	return c
}

// PlanForPriceRef looks up a plan by its external price reference. Both
// monthly and yearly references resolve to the same plan.
func (c *Catalog) PlanForPriceRef(ref string) (Plan, bool) {
	p, ok := c.byRef[ref]
	return p, ok
}

// FreeTier returns the designated free-tier plan, used as the fallback target
// when a subscription ends.
func (c *Catalog) FreeTier() Plan {
	return c.free
}

// Plans returns all plans in catalog order.
func (c *Catalog) Plans() []Plan {
	out := make([]Plan, len(c.plans))
	copy(out, c.plans)
	return out
}
