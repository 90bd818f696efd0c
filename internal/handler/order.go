package handler

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/avelory/drop-page-reservation/internal/engine"
	"github.com/avelory/drop-page-reservation/internal/middleware"
	"github.com/avelory/drop-page-reservation/internal/repository"
)

// OrderHandler turns a session's holds into orders and serves guest
// order lookups.  Checkout runs under OptionalAuth: a valid bearer token
// selects the account variant, everything else goes through the guest
// variant with inline contact data.
type OrderHandler struct {
	Engine *engine.Engine
	Pages  *repository.PageRepo
	Orders *repository.OrderRepo
}

func NewOrderHandler(eng *engine.Engine, pages *repository.PageRepo, orders *repository.OrderRepo) *OrderHandler {
	if eng == nil || pages == nil || orders == nil {
		panic("nil dependency passed to NewOrderHandler")
	}
	return &OrderHandler{Engine: eng, Pages: pages, Orders: orders}
}

type checkoutReq struct {
	GuestName  string `json:"guest_name"`
	GuestEmail string `json:"guest_email"`
	GuestPhone string `json:"guest_phone"`
	Note       string `json:"note"`
}

// Checkout handles POST /v1/pages/:page/checkout.  All live holds the
// session has on the page become one order; partial checkout is not a
// thing.  On any failure nothing changes and the holds keep counting
// down.
func (h *OrderHandler) Checkout(c echo.Context) error {
	sess := middleware.SessionID(c)
	if sess == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing reservation session"})
	}
	ref := c.Param("page")
	ctx := c.Request().Context()
	page, err := resolvePageRef(ctx, h.Pages, ref)
	if err != nil {
		if err == repository.ErrPageNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "page not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	var body checkoutReq
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	var co engine.Checkout
	if id, ok := middleware.AccountID(c); ok {
		co = engine.AccountCheckout{AccountID: id}
	} else {
		co = engine.GuestCheckout{
			Name:  body.GuestName,
			Email: body.GuestEmail,
			Phone: body.GuestPhone,
		}
	}

	res := h.Engine.PlaceOrder(ctx, engine.PlaceOrderRequest{
		PageID:    page.ID,
		SessionID: sess,
		Checkout:  co,
		Note:      strings.TrimSpace(body.Note),
	})
	if !res.OK {
		return c.JSON(statusForFailure(res.Failure), res)
	}
	return c.JSON(http.StatusCreated, res)
}

// orderItemPart is the serialized shape of one order line.
type orderItemPart struct {
	ProductID      uint64 `json:"product_id"`
	ProductName    string `json:"product_name"`
	Quantity       int    `json:"quantity"`
	UnitPriceCents uint32 `json:"unit_price_cents"`
	LineTotalCents uint32 `json:"line_total_cents"`
}

// GetByToken handles GET /v1/orders/:token.  Guests retrieve their
// confirmation with the opaque view token issued at checkout; no account
// is involved.  Tokens are unguessable UUIDs, so possession is
// authorization.
func (h *OrderHandler) GetByToken(c echo.Context) error {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "token is required"})
	}
	order, items, err := h.Orders.GetByViewToken(c.Request().Context(), token)
	if err != nil {
		if err == repository.ErrOrderNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "order not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	parts := make([]orderItemPart, 0, len(items))
	for _, it := range items {
		parts = append(parts, orderItemPart{
			ProductID:      it.ProductID,
			ProductName:    it.ProductName,
			Quantity:       it.Quantity,
			UnitPriceCents: it.UnitPriceCents,
			LineTotalCents: it.LineTotalCents,
		})
	}
	resp := echo.Map{
		"order_number": order.Number,
		"status":       order.Status,
		"total_cents":  order.TotalCents,
		"created_at":   order.CreatedAt.UTC().Format(time.RFC3339),
		"items":        parts,
	}
	if order.GuestName != nil {
		resp["guest_name"] = *order.GuestName
	}
	if order.GuestEmail != nil {
		resp["guest_email"] = *order.GuestEmail
	}
	return c.JSON(http.StatusOK, resp)
}
