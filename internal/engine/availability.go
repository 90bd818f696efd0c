package engine

import (
	"context"

	"github.com/avelory/drop-page-reservation/internal/repository"
)

// AvailableQuantity derives the remaining sellable quantity from a cap,
// the live reserved total and the already-ordered total.  Unbounded
// products report the sentinel.  The same formula serves both the
// unlocked display reads and the locked reserve decision; only the
// isolation of the inputs differs.
func AvailableQuantity(limit int, bounded bool, reserved, ordered int) int {
	if !bounded {
		return UnboundedAvailable
	}
	available := limit - reserved - ordered
	if available < 0 {
		return 0
	}
	return available
}

// AvailableForProduct is the standalone (unlocked) availability read for
// one product, serving the per-product poll endpoint outside any
// reservation transaction.  It runs the lazy expiry cleanup first.  When
// a session id is supplied the result includes the caller's own held
// quantity.  Inactive or unknown products surface ErrProductNotFound.
func (e *Engine) AvailableForProduct(ctx context.Context, pageID, productID uint64, sessionID string) (*ProductAvailability, error) {
	now := e.now()
	if _, err := e.holds.CleanupExpired(ctx, pageID, now); err != nil {
		return nil, err
	}
	product, err := e.products.GetByID(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !product.Active {
		return nil, repository.ErrProductNotFound
	}
	sections, err := e.sections.ListByPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	limit, _, bounded := NewCapResolver(sections).EffectiveCap(*product)
	reserved, err := e.holds.ReservedSum(ctx, pageID, productID, now)
	if err != nil {
		return nil, err
	}
	ordered, err := e.orders.OrderedQuantity(ctx, pageID, productID)
	if err != nil {
		return nil, err
	}
	pa := ProductAvailability{
		ProductID:     productID,
		TotalReserved: reserved,
		TotalOrdered:  ordered,
		Available:     AvailableQuantity(limit, bounded, reserved, ordered),
	}
	if bounded {
		capCopy := limit
		pa.Cap = &capCopy
	}
	if sessionID != "" {
		held, err := e.holds.GetForSessionProduct(ctx, sessionID, pageID, productID, now)
		if err != nil {
			return nil, err
		}
		if held != nil {
			pa.SessionReserved = held.Quantity
		}
	}
	return &pa, nil
}

// Snapshot computes the poll response for a drop page: per-product
// availability across the requested products plus the calling session's
// countdown state.  Cleanup runs once up front; all sums are unlocked
// reads, good enough for display and polling.
func (e *Engine) Snapshot(ctx context.Context, pageID uint64, productIDs []uint64, sessionID string) (*PageSnapshot, error) {
	now := e.now()
	if _, err := e.holds.CleanupExpired(ctx, pageID, now); err != nil {
		return nil, err
	}
	sections, err := e.sections.ListByPage(ctx, pageID)
	if err != nil {
		return nil, err
	}
	resolver := NewCapResolver(sections)

	products, err := e.products.ListByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	reservedSums, err := e.holds.ReservedSums(ctx, pageID, productIDs, now)
	if err != nil {
		return nil, err
	}
	soldCounts, err := e.orders.SoldCounts(ctx, pageID, productIDs)
	if err != nil {
		return nil, err
	}
	var sessionQtys map[uint64]int
	if sessionID != "" {
		sessionQtys, err = e.holds.SessionQuantities(ctx, sessionID, pageID, now)
		if err != nil {
			return nil, err
		}
	}

	snap := &PageSnapshot{Now: now}
	for _, pid := range productIDs {
		p, ok := products[pid]
		if !ok {
			continue
		}
		limit, _, bounded := resolver.EffectiveCap(p)
		pa := ProductAvailability{
			ProductID:       pid,
			TotalReserved:   reservedSums[pid],
			TotalOrdered:    soldCounts[pid],
			SessionReserved: sessionQtys[pid],
			Available:       AvailableQuantity(limit, bounded, reservedSums[pid], soldCounts[pid]),
		}
		if bounded {
			capCopy := limit
			pa.Cap = &capCopy
		}
		snap.Products = append(snap.Products, pa)
	}

	if sessionID != "" {
		anchor, err := e.holds.SessionAnchor(ctx, sessionID, pageID, now)
		if err != nil {
			return nil, err
		}
		if anchor != nil {
			left := anchor.ExpiresAt - now
			if left < 0 {
				left = 0
			}
			snap.Session = SessionState{
				HasReservations: true,
				ReservedAt:      anchor.ReservedAt,
				ExpiresAt:       anchor.ExpiresAt,
				SecondsLeft:     left,
				CanExtend:       !anchor.Extended,
			}
		}
	}
	return snap, nil
}
