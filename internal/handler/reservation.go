package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/avelory/drop-page-reservation/internal/engine"
	"github.com/avelory/drop-page-reservation/internal/middleware"
	"github.com/avelory/drop-page-reservation/internal/model"
	"github.com/avelory/drop-page-reservation/internal/repository"
)

// ReservationHandler exposes the reservation engine over HTTP.  Every
// endpoint is keyed by the opaque session token the storefront sends in
// X-Reservation-Session; no login is required to hold stock.  The
// handlers stay thin: parsing and page resolution here, all invariants
// inside the engine.
type ReservationHandler struct {
	Engine *engine.Engine
	Pages  *repository.PageRepo
}

func NewReservationHandler(eng *engine.Engine, pages *repository.PageRepo) *ReservationHandler {
	if eng == nil || pages == nil {
		panic("nil dependency passed to NewReservationHandler")
	}
	return &ReservationHandler{Engine: eng, Pages: pages}
}

// resolvePageRef loads an exclusive page from a path parameter that may
// be a numeric id or a slug.
func resolvePageRef(ctx context.Context, pages *repository.PageRepo, ref string) (*model.ExclusivePage, error) {
	if id, err := strconv.ParseUint(ref, 10, 64); err == nil && id > 0 {
		return pages.GetByID(ctx, id)
	}
	return pages.GetBySlug(ctx, ref)
}

func (h *ReservationHandler) resolvePage(c echo.Context) (*model.ExclusivePage, error) {
	return resolvePageRef(c.Request().Context(), h.Pages, c.Param("page"))
}

// statusForFailure maps a business failure code to an HTTP status.
func statusForFailure(f *engine.Failure) int {
	switch f.Code {
	case engine.CodeProductNotFound, engine.CodePageNotFound:
		return http.StatusNotFound
	case engine.CodeInsufficientAvailability,
		engine.CodeExceedsSectionLimit,
		engine.CodeEmailExists,
		engine.CodeAlreadyExtended:
		return http.StatusConflict
	case engine.CodeServerError:
		return http.StatusInternalServerError
	default: // invalid_quantity, invalid_guest_data, no_reservations
		return http.StatusBadRequest
	}
}

// Reserve handles POST /v1/pages/:page/reserve.  The request body names
// a product and quantity; the session comes from the session header.  On
// success the response carries the updated hold, the remaining available
// quantity and the shared countdown expiry.  When availability is short
// the 409 response includes check_back_at, the earliest moment held
// stock may free up.
func (h *ReservationHandler) Reserve(c echo.Context) error {
	sess := middleware.SessionID(c)
	if sess == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing reservation session"})
	}
	page, err := h.resolvePage(c)
	if err != nil {
		if err == repository.ErrPageNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "page not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	if !page.Active {
		return c.JSON(http.StatusNotFound, echo.Map{"error": "page not found"})
	}

	var body struct {
		ProductID uint64 `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	res := h.Engine.Reserve(c.Request().Context(), engine.ReserveRequest{
		SessionID: sess,
		PageID:    page.ID,
		ProductID: body.ProductID,
		Quantity:  body.Quantity,
		IPAddress: c.RealIP(),
		UserAgent: c.Request().UserAgent(),
	})
	if !res.OK {
		return c.JSON(statusForFailure(res.Failure), res)
	}
	return c.JSON(http.StatusCreated, res)
}

// Release handles POST /v1/pages/:page/release.  Releasing is
// idempotent: giving back more than is held, or having no hold at all,
// still succeeds.
func (h *ReservationHandler) Release(c echo.Context) error {
	sess := middleware.SessionID(c)
	if sess == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing reservation session"})
	}
	page, err := h.resolvePage(c)
	if err != nil {
		if err == repository.ErrPageNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "page not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	var body struct {
		ProductID uint64 `json:"product_id"`
		Quantity  int    `json:"quantity"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}

	res := h.Engine.Release(c.Request().Context(), sess, page.ID, body.ProductID, body.Quantity)
	if !res.OK {
		return c.JSON(statusForFailure(res.Failure), res)
	}
	return c.JSON(http.StatusOK, res)
}

// Extend handles POST /v1/pages/:page/extend.  A session may push its
// page countdown forward exactly once; a second attempt returns 409
// already_extended.
func (h *ReservationHandler) Extend(c echo.Context) error {
	sess := middleware.SessionID(c)
	if sess == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing reservation session"})
	}
	page, err := h.resolvePage(c)
	if err != nil {
		if err == repository.ErrPageNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "page not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	res := h.Engine.Extend(c.Request().Context(), sess, page.ID)
	if !res.OK {
		return c.JSON(statusForFailure(res.Failure), res)
	}
	return c.JSON(http.StatusOK, res)
}

// Snapshot handles GET /v1/pages/:page/snapshot?products=1,2,3.  The
// storefront polls this endpoint during a drop; it returns availability
// for the requested products plus the calling session's countdown.  The
// product list comes from the client because the page markup already
// knows which products it renders.
func (h *ReservationHandler) Snapshot(c echo.Context) error {
	page, err := h.resolvePage(c)
	if err != nil {
		if err == repository.ErrPageNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "page not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	productIDs := parseIDList(c.QueryParam("products"))
	if len(productIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "products query parameter is required"})
	}

	snap, err := h.Engine.Snapshot(c.Request().Context(), page.ID, productIDs, middleware.SessionID(c))
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to build snapshot"})
	}
	return c.JSON(http.StatusOK, snap)
}

// Availability handles GET /v1/pages/:page/products/:product/availability.
// It is the cheap single-product variant of Snapshot for widgets that
// render one product and do not need the full page state.
func (h *ReservationHandler) Availability(c echo.Context) error {
	page, err := h.resolvePage(c)
	if err != nil {
		if err == repository.ErrPageNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "page not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}

	productID, err := strconv.ParseUint(c.Param("product"), 10, 64)
	if err != nil || productID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid product id"})
	}

	pa, err := h.Engine.AvailableForProduct(c.Request().Context(), page.ID, productID, middleware.SessionID(c))
	if err != nil {
		if err == repository.ErrProductNotFound {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "product not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to read availability"})
	}
	return c.JSON(http.StatusOK, pa)
}

// parseIDList splits a comma-separated list of ids, dropping anything
// non-numeric or duplicated.
func parseIDList(s string) []uint64 {
	parts := strings.Split(s, ",")
	out := make([]uint64, 0, len(parts))
	seen := make(map[uint64]struct{}, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil || id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
