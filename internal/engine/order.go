package engine

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/avelory/drop-page-reservation/internal/metrics"
	"github.com/avelory/drop-page-reservation/internal/model"
	"github.com/avelory/drop-page-reservation/internal/repository"
)

// Checkout is the two-variant identity under which a session checks out:
// either a trusted account id taken from the caller's token, or inline
// guest contact data that must be validated.
type Checkout interface {
	checkout()
}

// AccountCheckout places the order under a registered account.  The
// account id comes from an authenticated token, so no inline validation
// happens here.
type AccountCheckout struct {
	AccountID uint64
}

func (AccountCheckout) checkout() {}

// GuestCheckout places the order under inline contact data.  All three
// fields are required; the email must look like an address and the phone
// must carry at least nine digits once separators are stripped.
type GuestCheckout struct {
	Name  string
	Email string
	Phone string
}

func (GuestCheckout) checkout() {}

// ValidateGuest checks guest contact data and returns a human-readable
// problem description, or "" when the data is acceptable.
func ValidateGuest(g GuestCheckout) string {
	if strings.TrimSpace(g.Name) == "" {
		return "name is required"
	}
	email := strings.TrimSpace(g.Email)
	if email == "" {
		return "email is required"
	}
	if !strings.Contains(email, "@") || !strings.Contains(email, ".") {
		return "email is not valid"
	}
	phone := strings.TrimSpace(g.Phone)
	if phone == "" {
		return "phone is required"
	}
	digits := 0
	for _, r := range phone {
		if r >= '0' && r <= '9' {
			digits++
		}
	}
	if digits < 9 {
		return "phone number is too short"
	}
	return ""
}

// PlaceOrderRequest carries everything a checkout needs.
type PlaceOrderRequest struct {
	PageID    uint64
	SessionID string
	Checkout  Checkout
	Note      string
}

// PlaceOrder converts a session's live holds on a page into a permanent
// order.  Every step is a hard gate: cleanup, hold loading, guest
// validation, the cap re-check against current section configuration,
// order creation and hold deletion all happen inside one transaction, so
// either the order exists and the holds are gone, or neither changed.
//
// Post-commit side effects (confirmation dispatch, activity logging, the
// auto-increase check) are best-effort: their failure is logged and
// swallowed, never undoing the committed order.
func (e *Engine) PlaceOrder(ctx context.Context, req PlaceOrderRequest) PlaceOrderResult {
	page, err := e.pages.GetByID(ctx, req.PageID)
	if err != nil {
		if err == repository.ErrPageNotFound {
			return PlaceOrderResult{Failure: fail(CodePageNotFound, "exclusive page not found")}
		}
		return e.orderServerError(err, "load page")
	}

	now := e.now()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return e.orderServerError(err, "begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := e.holds.ExpireTx(ctx, tx, req.PageID, now); err != nil {
		return e.orderServerError(err, "expire holds")
	}
	holds, err := e.holds.LiveBySessionTx(ctx, tx, req.SessionID, req.PageID, now)
	if err != nil {
		return e.orderServerError(err, "load holds")
	}
	if len(holds) == 0 {
		return PlaceOrderResult{Failure: fail(CodeNoReservations, "no active reservations for this page")}
	}

	var accountID *uint64
	var guest *GuestCheckout
	switch co := req.Checkout.(type) {
	case AccountCheckout:
		id := co.AccountID
		accountID = &id
	case GuestCheckout:
		if msg := ValidateGuest(co); msg != "" {
			return PlaceOrderResult{Failure: fail(CodeInvalidGuestData, msg)}
		}
		exists, err := e.accounts.ExistsByEmail(ctx, co.Email)
		if err != nil {
			return e.orderServerError(err, "check email")
		}
		if exists {
			return PlaceOrderResult{Failure: fail(CodeEmailExists, "an account with this email already exists, please log in")}
		}
		guest = &co
	default:
		return PlaceOrderResult{Failure: fail(CodeInvalidGuestData, "unknown checkout kind")}
	}

	// Re-check every held product against the current section caps.  Caps
	// may have shrunk (or sections vanished) between hold and checkout.
	sections, err := e.sections.ListByPage(ctx, req.PageID)
	if err != nil {
		return e.orderServerError(err, "load sections")
	}
	resolver := NewCapResolver(sections)

	productIDs := make([]uint64, 0, len(holds))
	for _, h := range holds {
		productIDs = append(productIDs, h.ProductID)
	}
	products, err := e.products.ListByIDs(ctx, productIDs)
	if err != nil {
		return e.orderServerError(err, "load products")
	}
	for _, h := range holds {
		p, ok := products[h.ProductID]
		if !ok {
			return PlaceOrderResult{
				Failure:   fail(CodeProductNotFound, "a reserved product no longer exists"),
				ProductID: h.ProductID,
			}
		}
		limit, _, bounded := resolver.EffectiveCap(p)
		if !bounded {
			continue
		}
		ordered, err := e.orders.OrderedQuantityTx(ctx, tx, req.PageID, h.ProductID)
		if err != nil {
			return e.orderServerError(err, "sum orders")
		}
		if h.Quantity+ordered > limit {
			return PlaceOrderResult{
				Failure:   fail(CodeExceedsSectionLimit, "section limit exceeded for "+p.Name),
				ProductID: h.ProductID,
			}
		}
	}

	number, err := e.numbers.Next(ctx, page.PageType)
	if err != nil {
		return e.orderServerError(err, "order number")
	}

	order := model.Order{
		Number:    number,
		PageID:    req.PageID,
		AccountID: accountID,
		Status:    model.OrderStatusNew,
	}
	if req.Note != "" {
		note := req.Note
		order.Note = &note
	}
	if guest != nil {
		name := strings.TrimSpace(guest.Name)
		email := strings.ToLower(strings.TrimSpace(guest.Email))
		phone := strings.TrimSpace(guest.Phone)
		token := uuid.NewString()
		order.GuestName = &name
		order.GuestEmail = &email
		order.GuestPhone = &phone
		order.ViewToken = &token
	}

	items := make([]model.OrderItem, 0, len(holds))
	var total uint32
	for _, h := range holds {
		p := products[h.ProductID]
		line := p.PriceCents * uint32(h.Quantity)
		items = append(items, model.OrderItem{
			ProductID:      h.ProductID,
			ProductName:    p.Name,
			Quantity:       h.Quantity,
			UnitPriceCents: p.PriceCents,
			LineTotalCents: line,
		})
		total += line
	}
	order.TotalCents = total

	if err := e.orders.CreateTx(ctx, tx, &order); err != nil {
		return e.orderServerError(err, "create order")
	}
	for i := range items {
		items[i].OrderID = order.ID
	}
	if err := e.orders.CreateItemsBulkTx(ctx, tx, items); err != nil {
		return e.orderServerError(err, "create items")
	}
	if _, err := e.holds.DeleteBySessionTx(ctx, tx, req.SessionID, req.PageID); err != nil {
		return e.orderServerError(err, "delete holds")
	}
	if err := tx.Commit(); err != nil {
		return e.orderServerError(err, "commit")
	}
	committed = true
	metrics.OrdersPlaced.Inc()

	for _, hook := range e.hooks {
		if err := hook.OrderPlaced(ctx, page, &order, items); err != nil {
			e.log.Warn().Err(err).Uint64("order_id", order.ID).Msg("post-commit hook failed")
		}
	}

	placed := &PlacedOrder{
		OrderID:    order.ID,
		Number:     order.Number,
		TotalCents: order.TotalCents,
		ItemCount:  len(items),
	}
	if guest != nil {
		placed.ViewToken = order.ViewToken
		placed.GuestEmail = order.GuestEmail
	}
	return PlaceOrderResult{OK: true, Order: placed}
}

func (e *Engine) orderServerError(err error, op string) PlaceOrderResult {
	e.log.Error().Err(err).Str("op", op).Msg("place order failed")
	return PlaceOrderResult{Failure: fail(CodeServerError, "internal error")}
}
