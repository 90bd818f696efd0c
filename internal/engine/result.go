package engine

import "github.com/avelory/drop-page-reservation/internal/model"

// FailCode is a machine-readable business failure code.  Expected
// failures (insufficient availability, validation problems) travel as
// codes in structured results rather than as Go errors; only
// infrastructure trouble surfaces as CodeServerError.
type FailCode string

const (
	CodeInsufficientAvailability FailCode = "insufficient_availability"
	CodeExceedsSectionLimit      FailCode = "exceeds_section_limit"
	CodeEmailExists              FailCode = "email_exists"
	CodeNoReservations           FailCode = "no_reservations"
	CodeAlreadyExtended          FailCode = "already_extended"
	CodeInvalidQuantity          FailCode = "invalid_quantity"
	CodeInvalidGuestData         FailCode = "invalid_guest_data"
	CodeProductNotFound          FailCode = "product_not_found"
	CodePageNotFound             FailCode = "page_not_found"
	CodeServerError              FailCode = "server_error"
)

// Failure carries a code plus a human-readable message.  Handlers
// serialize it directly.
type Failure struct {
	Code    FailCode `json:"code"`
	Message string   `json:"message"`
}

// ReserveResult is the outcome of one reserve attempt.  On failure
// Available reports how much could still be held and CheckBackAt (when
// non-zero) is the earliest expiry among other sessions' holds, a hint
// for when capacity may free up.  On success Reservation is the updated
// hold and Available is the quantity remaining after it.
type ReserveResult struct {
	OK          bool               `json:"ok"`
	Failure     *Failure           `json:"failure,omitempty"`
	Reservation *model.Reservation `json:"reservation,omitempty"`
	Available   int                `json:"available_quantity"`
	ExpiresAt   int64              `json:"expires_at,omitempty"`
	CheckBackAt int64              `json:"check_back_at,omitempty"`
}

// ReleaseResult is the outcome of a release.  Release is idempotent:
// releasing more than is held, or releasing with no hold at all, still
// succeeds and reports the remaining quantity (possibly zero).
type ReleaseResult struct {
	OK        bool     `json:"ok"`
	Failure   *Failure `json:"failure,omitempty"`
	Remaining int      `json:"remaining_quantity"`
}

// ExtendResult is the outcome of the one-time countdown extension.
type ExtendResult struct {
	OK        bool     `json:"ok"`
	Failure   *Failure `json:"failure,omitempty"`
	ExpiresAt int64    `json:"expires_at,omitempty"`
}

// ProductAvailability is the per-product slice of a page snapshot.
// Cap is nil for unbounded products; Available then carries the
// UnboundedAvailable sentinel.
type ProductAvailability struct {
	ProductID       uint64 `json:"product_id"`
	Cap             *int   `json:"cap,omitempty"`
	TotalReserved   int    `json:"total_reserved"`
	TotalOrdered    int    `json:"total_ordered"`
	SessionReserved int    `json:"session_reserved"`
	Available       int    `json:"available_quantity"`
}

// SessionState reports the calling session's countdown on the page.
type SessionState struct {
	HasReservations bool  `json:"has_reservations"`
	ReservedAt      int64 `json:"reserved_at,omitempty"`
	ExpiresAt       int64 `json:"expires_at,omitempty"`
	SecondsLeft     int64 `json:"seconds_left"`
	CanExtend       bool  `json:"can_extend"`
}

// PageSnapshot is the poll response for a drop page: availability per
// product plus the session's own countdown state.
type PageSnapshot struct {
	Now      int64                 `json:"now"`
	Products []ProductAvailability `json:"products"`
	Session  SessionState          `json:"session"`
}

// PlacedOrder is the success payload of PlaceOrder.  Guest fields are
// present only for guest checkouts.
type PlacedOrder struct {
	OrderID    uint64  `json:"order_id"`
	Number     string  `json:"order_number"`
	TotalCents uint32  `json:"total_cents"`
	ItemCount  int     `json:"item_count"`
	ViewToken  *string `json:"view_token,omitempty"`
	GuestEmail *string `json:"guest_email,omitempty"`
}

// PlaceOrderResult is the outcome of a checkout.  On a cap re-check
// failure ProductID names the offending product.
type PlaceOrderResult struct {
	OK        bool         `json:"ok"`
	Failure   *Failure     `json:"failure,omitempty"`
	ProductID uint64       `json:"product_id,omitempty"`
	Order     *PlacedOrder `json:"order,omitempty"`
}

func fail(code FailCode, msg string) *Failure {
	return &Failure{Code: code, Message: msg}
}
