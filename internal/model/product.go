package model

// Product is the catalog entry referenced by reservations and order items.
// Only the fields the reservation core needs are modelled here; the wider
// catalog (descriptions, images, warehouse stock) lives outside this service.
//
// VariantGroupID and SetID are nullable foreign keys: a product may belong
// to a variant group (e.g. one shirt in several sizes) and/or to a set (a
// bundle sold as one purchasable unit).  Both memberships matter only for
// resolving the effective section cap on an exclusive page.
type Product struct {
	ID             uint64  // products.id
	Name           string  // products.name
	PriceCents     uint32  // products.price_cents (sale price snapshot source)
	Active         bool    // products.is_active
	VariantGroupID *uint64 // products.variant_group_id (nullable)
	SetID          *uint64 // products.set_id (nullable)
}
