package model

import "time"

// Order statuses.  Cancelled orders release their quantities back into the
// availability calculation; every other status keeps them consumed.
const (
	OrderStatusNew       = "NEW"
	OrderStatusPaid      = "PAID"
	OrderStatusShipped   = "SHIPPED"
	OrderStatusCancelled = "CANCELLED"
)

// Order is the permanent record created when a session checks out its
// holds on an exclusive page.  Guest fields are populated only for guest
// checkouts; account checkouts carry AccountID instead.  ViewToken lets a
// guest retrieve the confirmation without an account.
//
// Order items are plain snapshots – they are deliberately not linked back
// to the reservations they came from.
type Order struct {
	ID          uint64    // orders.id
	Number      string    // orders.order_number (unique, page-type scoped)
	PageID      uint64    // orders.exclusive_page_id
	AccountID   *uint64   // orders.account_id (nullable, account checkout)
	GuestName   *string   // orders.guest_name (nullable, guest checkout)
	GuestEmail  *string   // orders.guest_email (nullable)
	GuestPhone  *string   // orders.guest_phone (nullable)
	ViewToken   *string   // orders.view_token (nullable, guest checkout)
	Status      string    // orders.status
	TotalCents  uint32    // orders.total_cents
	Note        *string   // orders.note (nullable)
	CreatedAt   time.Time // orders.created_at
	UpdatedAt   time.Time // orders.updated_at
}

// OrderItem snapshots one product line of an order: quantity, unit price
// and line total at the moment of checkout.
type OrderItem struct {
	ID             uint64 // order_items.id
	OrderID        uint64 // order_items.order_id
	ProductID      uint64 // order_items.product_id
	ProductName    string // order_items.product_name
	Quantity       int    // order_items.quantity
	UnitPriceCents uint32 // order_items.unit_price_cents
	LineTotalCents uint32 // order_items.line_total_cents
}
