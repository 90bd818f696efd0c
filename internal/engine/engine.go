package engine

import (
	"context"
	"database/sql"
	"time"

	"github.com/rs/zerolog"

	"github.com/avelory/drop-page-reservation/internal/metrics"
	"github.com/avelory/drop-page-reservation/internal/model"
	"github.com/avelory/drop-page-reservation/internal/repository"
)

// Countdown policy.  A session gets ReservationDuration seconds from its
// first hold on a page, extendable exactly once by ExtensionDuration.
const (
	ReservationDuration int64 = 600 // seconds
	ExtensionDuration   int64 = 120 // seconds
)

// OrderNumberSource generates unique, page-type-scoped order numbers.
type OrderNumberSource interface {
	Next(ctx context.Context, pageType string) (string, error)
}

// PostCommitHook receives best-effort notifications after an order has
// committed.  Implementations must never assume their failure can undo
// the order; the engine logs and swallows any error.
type PostCommitHook interface {
	OrderPlaced(ctx context.Context, page *model.ExclusivePage, order *model.Order, items []model.OrderItem) error
}

// Engine is the concurrency-safe reservation core.  Every reserve call
// runs inside one database transaction that lazily expires stale holds,
// locks the contended rows, re-derives availability from the locked set
// and then upserts the session's hold.  The row lock is what guarantees
// the no-oversell invariant; there is no optimistic retry.
//
// The now field supplies epoch seconds and exists so tests control the
// clock; production wiring leaves it at time.Now.
type Engine struct {
	db       *sql.DB
	holds    *repository.ReservationRepo
	orders   *repository.OrderRepo
	products *repository.ProductRepo
	pages    *repository.PageRepo
	sections *repository.SectionRepo
	accounts *repository.AccountRepo
	numbers  OrderNumberSource
	hooks    []PostCommitHook
	log      zerolog.Logger
	now      func() int64
}

// New constructs an Engine.  The repositories and number source must be
// non-nil; hooks are optional post-commit collaborators (notification
// dispatch, activity logging, auto-increase).
func New(
	db *sql.DB,
	holds *repository.ReservationRepo,
	orders *repository.OrderRepo,
	products *repository.ProductRepo,
	pages *repository.PageRepo,
	sections *repository.SectionRepo,
	accounts *repository.AccountRepo,
	numbers OrderNumberSource,
	log zerolog.Logger,
	hooks ...PostCommitHook,
) *Engine {
	if db == nil || holds == nil || orders == nil || products == nil || pages == nil || sections == nil || accounts == nil || numbers == nil {
		panic("nil dependency passed to engine.New")
	}
	return &Engine{
		db:       db,
		holds:    holds,
		orders:   orders,
		products: products,
		pages:    pages,
		sections: sections,
		accounts: accounts,
		numbers:  numbers,
		hooks:    hooks,
		log:      log,
		now:      func() int64 { return time.Now().UTC().Unix() },
	}
}

// ReserveRequest is one hold attempt by a session.
type ReserveRequest struct {
	SessionID string
	PageID    uint64
	ProductID uint64
	Quantity  int
	IPAddress string
	UserAgent string
}

// Reserve attempts to hold req.Quantity units of a product for a session.
// The availability decision and the upsert happen under an exclusive row
// lock on the product's live holds, so concurrent attempts on the same
// product serialize and the section cap can never be overcommitted.
func (e *Engine) Reserve(ctx context.Context, req ReserveRequest) ReserveResult {
	metrics.ReserveAttempts.Inc()
	if req.Quantity <= 0 {
		return ReserveResult{Failure: fail(CodeInvalidQuantity, "quantity must be positive")}
	}
	if req.SessionID == "" {
		return ReserveResult{Failure: fail(CodeInvalidQuantity, "missing session id")}
	}

	product, err := e.products.GetByID(ctx, req.ProductID)
	if err != nil {
		if err == repository.ErrProductNotFound {
			return ReserveResult{Failure: fail(CodeProductNotFound, "product not found")}
		}
		return e.reserveServerError(err, "load product")
	}
	if !product.Active {
		return ReserveResult{Failure: fail(CodeProductNotFound, "product is not for sale")}
	}

	// Section caps are read-only configuration; loading them outside the
	// transaction is safe because the checkout path re-checks current caps.
	sections, err := e.sections.ListByPage(ctx, req.PageID)
	if err != nil {
		return e.reserveServerError(err, "load sections")
	}
	resolver := NewCapResolver(sections)
	limit, _, bounded := resolver.EffectiveCap(*product)

	now := e.now()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return e.reserveServerError(err, "begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := e.holds.ExpireTx(ctx, tx, req.PageID, now); err != nil {
		return e.reserveServerError(err, "expire holds")
	}

	// Serialization point: all live holds for this (page, product) are
	// locked until commit or rollback.
	locked, err := e.holds.LockLiveByProductTx(ctx, tx, req.PageID, req.ProductID, now)
	if err != nil {
		return e.reserveServerError(err, "lock holds")
	}
	ordered, err := e.orders.OrderedQuantityTx(ctx, tx, req.PageID, req.ProductID)
	if err != nil {
		return e.reserveServerError(err, "sum orders")
	}

	reserved := 0
	for _, h := range locked {
		reserved += h.Quantity
	}
	available := AvailableQuantity(limit, bounded, reserved, ordered)

	if available < req.Quantity {
		metrics.ReserveConflicts.Inc()
		// Hint when capacity may free up: the earliest expiry among
		// holds belonging to other sessions.
		var checkBack int64
		for _, h := range locked {
			if h.SessionID == req.SessionID {
				continue
			}
			if checkBack == 0 || h.ExpiresAt < checkBack {
				checkBack = h.ExpiresAt
			}
		}
		return ReserveResult{
			Failure:     fail(CodeInsufficientAvailability, "not enough quantity available"),
			Available:   available,
			CheckBackAt: checkBack,
		}
	}

	anchor, err := e.holds.SessionAnchorTx(ctx, tx, req.SessionID, req.PageID, now)
	if err != nil {
		return e.reserveServerError(err, "load session anchor")
	}
	reservedAt := now
	expiresAt := now + ReservationDuration
	extended := false
	if anchor != nil {
		// Subsequent holds share the page-level countdown, including any
		// extension already applied.
		reservedAt = anchor.ReservedAt
		expiresAt = anchor.ExpiresAt
		extended = anchor.Extended
	}

	var updated model.Reservation
	existing, err := e.holds.GetForSessionProductTx(ctx, tx, req.SessionID, req.PageID, req.ProductID, now)
	if err != nil {
		return e.reserveServerError(err, "load existing hold")
	}
	if existing != nil {
		if err := e.holds.AddQuantityTx(ctx, tx, existing.ID, req.Quantity); err != nil {
			return e.reserveServerError(err, "increment hold")
		}
		updated = *existing
		updated.Quantity += req.Quantity
	} else {
		updated = model.Reservation{
			SessionID:  req.SessionID,
			PageID:     req.PageID,
			ProductID:  req.ProductID,
			Quantity:   req.Quantity,
			ReservedAt: reservedAt,
			ExpiresAt:  expiresAt,
			Extended:   extended,
			IPAddress:  req.IPAddress,
			UserAgent:  req.UserAgent,
		}
		if err := e.holds.InsertTx(ctx, tx, &updated); err != nil {
			return e.reserveServerError(err, "insert hold")
		}
	}

	if err := tx.Commit(); err != nil {
		return e.reserveServerError(err, "commit")
	}
	committed = true
	metrics.ReserveSuccesses.Inc()

	remaining := available - req.Quantity
	if !bounded {
		remaining = UnboundedAvailable
	}
	return ReserveResult{
		OK:          true,
		Reservation: &updated,
		Available:   remaining,
		ExpiresAt:   updated.ExpiresAt,
	}
}

// Release gives back quantity units of the session's hold on a product.
// It only ever shrinks demand, so no product-level lock is needed; the
// decrement runs in the database so concurrent releases of the same row
// cannot restore each other's quantity.  A hold drained to zero or below
// is deleted, and releasing with no hold at all is a successful no-op.
func (e *Engine) Release(ctx context.Context, sessionID string, pageID, productID uint64, quantity int) ReleaseResult {
	if quantity <= 0 {
		return ReleaseResult{Failure: fail(CodeInvalidQuantity, "quantity must be positive")}
	}
	now := e.now()
	if _, err := e.holds.CleanupExpired(ctx, pageID, now); err != nil {
		return e.releaseServerError(err, "cleanup")
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return e.releaseServerError(err, "begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	existing, err := e.holds.GetForSessionProductTx(ctx, tx, sessionID, pageID, productID, now)
	if err != nil {
		return e.releaseServerError(err, "load hold")
	}
	if existing == nil {
		return ReleaseResult{OK: true, Remaining: 0}
	}
	if err := e.holds.DecrementQuantityTx(ctx, tx, existing.ID, quantity); err != nil {
		return e.releaseServerError(err, "shrink hold")
	}
	remaining, err := e.holds.QuantityTx(ctx, tx, existing.ID)
	if err != nil {
		return e.releaseServerError(err, "read back hold")
	}
	if remaining <= 0 {
		remaining = 0
		if err := e.holds.DeleteTx(ctx, tx, existing.ID); err != nil {
			return e.releaseServerError(err, "delete hold")
		}
	}
	if err := tx.Commit(); err != nil {
		return e.releaseServerError(err, "commit")
	}
	committed = true
	return ReleaseResult{OK: true, Remaining: remaining}
}

// Extend pushes the session's page-level countdown forward by
// ExtensionDuration, once.  All of the session's rows on the page move
// together and are marked extended atomically.
func (e *Engine) Extend(ctx context.Context, sessionID string, pageID uint64) ExtendResult {
	now := e.now()
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return e.extendServerError(err, "begin tx")
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if _, err := e.holds.ExpireTx(ctx, tx, pageID, now); err != nil {
		return e.extendServerError(err, "expire holds")
	}
	anchor, err := e.holds.SessionAnchorTx(ctx, tx, sessionID, pageID, now)
	if err != nil {
		return e.extendServerError(err, "load session anchor")
	}
	if anchor == nil {
		return ExtendResult{Failure: fail(CodeNoReservations, "no active reservations to extend")}
	}
	if anchor.Extended {
		return ExtendResult{Failure: fail(CodeAlreadyExtended, "extension already used")}
	}
	n, err := e.holds.ExtendSessionTx(ctx, tx, sessionID, pageID, ExtensionDuration, now)
	if err != nil {
		return e.extendServerError(err, "extend holds")
	}
	if n == 0 {
		return ExtendResult{Failure: fail(CodeNoReservations, "no active reservations to extend")}
	}
	if err := tx.Commit(); err != nil {
		return e.extendServerError(err, "commit")
	}
	committed = true
	return ExtendResult{OK: true, ExpiresAt: anchor.ExpiresAt + ExtensionDuration}
}

func (e *Engine) reserveServerError(err error, op string) ReserveResult {
	e.log.Error().Err(err).Str("op", op).Msg("reserve failed")
	return ReserveResult{Failure: fail(CodeServerError, "internal error")}
}

func (e *Engine) releaseServerError(err error, op string) ReleaseResult {
	e.log.Error().Err(err).Str("op", op).Msg("release failed")
	return ReleaseResult{Failure: fail(CodeServerError, "internal error")}
}

func (e *Engine) extendServerError(err error, op string) ExtendResult {
	e.log.Error().Err(err).Str("op", op).Msg("extend failed")
	return ExtendResult{Failure: fail(CodeServerError, "internal error")}
}
