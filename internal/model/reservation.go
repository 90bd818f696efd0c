package model

// Reservation represents a temporary hold on a quantity of one product
// within one exclusive page.  Holds prevent concurrent checkouts from
// grabbing the same limited allocation while a visitor is still deciding.
// Holds expire automatically at their expires_at timestamp.
//
// Expiry fields are epoch seconds rather than DATETIME columns so that
// client-side countdown arithmetic stays trivial.  ReservedAt is the
// moment of the session's first reservation on the page and is shared
// across all of the session's rows on that page; ExpiresAt is likewise
// identical for every row of one session on one page.
//
// Fields:
//  ID          – primary key identifier.
//  SessionID   – opaque caller-supplied token scoping the visitor's holds.
//  PageID      – exclusive page on which the hold was made.
//  ProductID   – product being held.
//  Quantity    – units held; always positive, rows at zero are deleted.
//  ReservedAt  – epoch seconds of the session's first hold on the page.
//  ExpiresAt   – epoch seconds after which the hold is void.
//  Extended    – true once the session used its one allowed extension.
//  IPAddress   – provenance metadata, non-authoritative.
//  UserAgent   – provenance metadata, non-authoritative.
type Reservation struct {
	ID         uint64 // reservations.id
	SessionID  string // reservations.session_id
	PageID     uint64 // reservations.exclusive_page_id
	ProductID  uint64 // reservations.product_id
	Quantity   int    // reservations.quantity
	ReservedAt int64  // reservations.reserved_at (epoch seconds)
	ExpiresAt  int64  // reservations.expires_at (epoch seconds)
	Extended   bool   // reservations.extended
	IPAddress  string // reservations.ip_address
	UserAgent  string // reservations.user_agent
}
