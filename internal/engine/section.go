// Package engine implements the exclusive-page reservation core: the
// availability calculator, the concurrency-safe reserve/release/extend
// operations and the order placement orchestrator.  Handlers are thin
// JSON adapters over this package.
package engine

import (
	"github.com/avelory/drop-page-reservation/internal/model"
)

// UnboundedAvailable is the sentinel returned at API boundaries when no
// section bounds a product's quantity.
const UnboundedAvailable = 999999

// capRule is one cap-bearing shape of a page section.  Three shapes share
// the concept: a direct product cap, a variant-group cap and a set cap.
// applies reports whether the rule binds the given product; cap returns
// the configured ceiling and whether it is finite.
type capRule interface {
	applies(p model.Product) bool
	cap() (int, bool)
	sectionID() uint64
}

type productRule struct {
	id        uint64
	productID uint64
	max       *int
}

func (r productRule) applies(p model.Product) bool { return p.ID == r.productID }
func (r productRule) cap() (int, bool) {
	if r.max == nil {
		return 0, false
	}
	return *r.max, true
}
func (r productRule) sectionID() uint64 { return r.id }

type variantGroupRule struct {
	id      uint64
	groupID uint64
	max     *int
}

func (r variantGroupRule) applies(p model.Product) bool {
	return p.VariantGroupID != nil && *p.VariantGroupID == r.groupID
}
func (r variantGroupRule) cap() (int, bool) {
	if r.max == nil {
		return 0, false
	}
	return *r.max, true
}
func (r variantGroupRule) sectionID() uint64 { return r.id }

type setRule struct {
	id      uint64
	setID   uint64
	maxSets *int
}

func (r setRule) applies(p model.Product) bool {
	return p.SetID != nil && *p.SetID == r.setID
}
func (r setRule) cap() (int, bool) {
	if r.maxSets == nil {
		return 0, false
	}
	return *r.maxSets, true
}
func (r setRule) sectionID() uint64 { return r.id }

// CapResolver answers "what is the effective cap for this product on this
// page" across all three section shapes.  When several sections bind the
// same product the tightest finite cap wins.
type CapResolver struct {
	rules []capRule
}

// NewCapResolver builds a resolver from a page's section rows.  Sections
// of unknown kind or without a subject are skipped.
func NewCapResolver(sections []model.Section) *CapResolver {
	rules := make([]capRule, 0, len(sections))
	for _, s := range sections {
		switch s.Kind {
		case model.SectionProduct:
			if s.ProductID != nil {
				rules = append(rules, productRule{id: s.ID, productID: *s.ProductID, max: s.MaxQuantity})
			}
		case model.SectionVariantGroup:
			if s.VariantGroupID != nil {
				rules = append(rules, variantGroupRule{id: s.ID, groupID: *s.VariantGroupID, max: s.MaxQuantity})
			}
		case model.SectionSet:
			if s.SetID != nil {
				rules = append(rules, setRule{id: s.ID, setID: *s.SetID, maxSets: s.SetMaxSets})
			}
		}
	}
	return &CapResolver{rules: rules}
}

// EffectiveCap returns the tightest finite cap binding the product, the
// id of the section that supplied it and whether any finite cap applies
// at all.  bounded == false means the product sells unbounded on this
// page.
func (c *CapResolver) EffectiveCap(p model.Product) (limit int, sectionID uint64, bounded bool) {
	for _, r := range c.rules {
		if !r.applies(p) {
			continue
		}
		v, finite := r.cap()
		if !finite {
			continue
		}
		if !bounded || v < limit {
			limit = v
			sectionID = r.sectionID()
			bounded = true
		}
	}
	return limit, sectionID, bounded
}

// Listed reports whether any section (bounded or not) covers the product,
// i.e. whether the product is actually for sale on the page.
func (c *CapResolver) Listed(p model.Product) bool {
	for _, r := range c.rules {
		if r.applies(p) {
			return true
		}
	}
	return false
}
