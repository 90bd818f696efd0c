package service

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/avelory/drop-page-reservation/internal/model"
	"github.com/avelory/drop-page-reservation/internal/queue"
	"github.com/avelory/drop-page-reservation/internal/repository"
)

// AutoIncrease raises a section's cap by its configured step once the
// section has sold out, and alerts back-in-stock subscribers for the
// products whose availability crosses zero back to positive.  It runs as
// a post-commit hook after each placed order, consuming the bulk
// sold-count query; it never blocks or fails the order itself.
type AutoIncrease struct {
	sections *repository.SectionRepo
	products *repository.ProductRepo
	orders   *repository.OrderRepo
	holds    *repository.ReservationRepo
	log      zerolog.Logger
}

// NewAutoIncrease wires the checker to its repositories.
func NewAutoIncrease(
	sections *repository.SectionRepo,
	products *repository.ProductRepo,
	orders *repository.OrderRepo,
	holds *repository.ReservationRepo,
	log zerolog.Logger,
) *AutoIncrease {
	return &AutoIncrease{sections: sections, products: products, orders: orders, holds: holds, log: log}
}

// OrderPlaced runs the auto-increase check for the page the order was
// placed on.
func (a *AutoIncrease) OrderPlaced(ctx context.Context, page *model.ExclusivePage, order *model.Order, _ []model.OrderItem) error {
	return a.Check(ctx, page.ID)
}

// Check inspects every auto-increase section of the page.  A section
// whose non-cancelled sold count has reached its current cap gets the cap
// raised by the configured step; each member product that becomes
// available again is announced on the stock.available queue.
func (a *AutoIncrease) Check(ctx context.Context, pageID uint64) error {
	sections, err := a.sections.ListByPage(ctx, pageID)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, s := range sections {
		if s.AutoIncreaseStep <= 0 {
			continue
		}
		limit, ok := sectionCap(s)
		if !ok {
			continue // unbounded sections have nothing to raise
		}
		members, err := a.memberProducts(ctx, s)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			continue
		}
		ids := make([]uint64, 0, len(members))
		for _, p := range members {
			ids = append(ids, p.ID)
		}
		sold, err := a.orders.SoldCounts(ctx, pageID, ids)
		if err != nil {
			return err
		}
		total := 0
		for _, n := range sold {
			total += n
		}
		if total < limit {
			continue
		}

		newCap := limit + s.AutoIncreaseStep
		if err := a.sections.RaiseCap(ctx, s.ID, newCap); err != nil {
			return err
		}
		a.log.Info().
			Uint64("page_id", pageID).
			Uint64("section_id", s.ID).
			Int("old_cap", limit).
			Int("new_cap", newCap).
			Msg("auto-increase raised section cap")

		reserved, err := a.holds.ReservedSums(ctx, pageID, ids, now.Unix())
		if err != nil {
			return err
		}
		reservedTotal := 0
		for _, n := range reserved {
			reservedTotal += n
		}
		available := newCap - total - reservedTotal
		if available <= 0 {
			continue
		}
		for _, p := range members {
			ev := queue.StockAvailableEvent{
				PageID:    pageID,
				ProductID: p.ID,
				Available: available,
				RaisedTo:  newCap,
				At:        now.Format(time.RFC3339),
			}
			if err := PublishStockAvailable(ctx, ev); err != nil {
				a.log.Warn().Err(err).Uint64("product_id", p.ID).Msg("stock.available publish failed")
			}
		}
	}
	return nil
}

func sectionCap(s model.Section) (int, bool) {
	if s.Kind == model.SectionSet {
		if s.SetMaxSets == nil {
			return 0, false
		}
		return *s.SetMaxSets, true
	}
	if s.MaxQuantity == nil {
		return 0, false
	}
	return *s.MaxQuantity, true
}

func (a *AutoIncrease) memberProducts(ctx context.Context, s model.Section) ([]model.Product, error) {
	switch s.Kind {
	case model.SectionProduct:
		if s.ProductID == nil {
			return nil, nil
		}
		p, err := a.products.GetByID(ctx, *s.ProductID)
		if err != nil {
			if err == repository.ErrProductNotFound {
				return nil, nil
			}
			return nil, err
		}
		return []model.Product{*p}, nil
	case model.SectionVariantGroup:
		if s.VariantGroupID == nil {
			return nil, nil
		}
		return a.products.ListByVariantGroup(ctx, *s.VariantGroupID)
	case model.SectionSet:
		if s.SetID == nil {
			return nil, nil
		}
		return a.products.ListBySet(ctx, *s.SetID)
	}
	return nil, nil
}
