package model

// ExclusivePage is a time-boxed storefront page selling strictly limited
// quantities of one or more products.  The reservation engine treats the
// page and its sections as read-only configuration.
type ExclusivePage struct {
	ID       uint64 // exclusive_pages.id
	Slug     string // exclusive_pages.slug
	Title    string // exclusive_pages.title
	PageType string // exclusive_pages.page_type (scopes order numbering)
	Active   bool   // exclusive_pages.is_active
}

// SectionKind discriminates the three section shapes a page can carry.
// All three express the same concept – a sellable cap – against different
// subjects: a single product, a variant group, or a set.
type SectionKind string

const (
	SectionProduct      SectionKind = "product"
	SectionVariantGroup SectionKind = "variant_group"
	SectionSet          SectionKind = "set"
)

// Section is one cap-bearing row of an exclusive page's configuration.
// Exactly one of ProductID, VariantGroupID or SetID is set depending on
// Kind.  MaxQuantity holds the cap for product and variant-group sections;
// SetMaxSets holds it for set sections.  A nil cap means unbounded.
//
// AutoIncreaseStep, when positive, allows the external auto-increase policy
// to raise the cap by that step once the section sells out.
type Section struct {
	ID               uint64      // page_sections.id
	PageID           uint64      // page_sections.exclusive_page_id
	Kind             SectionKind // page_sections.kind
	ProductID        *uint64     // page_sections.product_id (product sections)
	VariantGroupID   *uint64     // page_sections.variant_group_id (variant sections)
	SetID            *uint64     // page_sections.set_id (set sections)
	MaxQuantity      *int        // page_sections.max_quantity (nil = unbounded)
	SetMaxSets       *int        // page_sections.set_max_sets (nil = unbounded)
	AutoIncreaseStep int         // page_sections.auto_increase_step (0 = disabled)
}
