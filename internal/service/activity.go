package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/avelory/drop-page-reservation/internal/model"
)

// ActivityLogger is the fire-and-forget audit collaborator.  It writes a
// structured entry for every placed order; failures never touch the
// committed transaction.
type ActivityLogger struct {
	log zerolog.Logger
}

// NewActivityLogger returns an audit logger writing through the given
// zerolog instance.
func NewActivityLogger(log zerolog.Logger) *ActivityLogger {
	return &ActivityLogger{log: log}
}

// OrderPlaced records the checkout in the audit stream.
func (l *ActivityLogger) OrderPlaced(_ context.Context, page *model.ExclusivePage, order *model.Order, items []model.OrderItem) error {
	ev := l.log.Info().
		Str("event", "order_placed").
		Uint64("order_id", order.ID).
		Str("order_number", order.Number).
		Uint64("page_id", page.ID).
		Str("page", page.Slug).
		Uint32("total_cents", order.TotalCents).
		Int("items", len(items))
	if order.AccountID != nil {
		ev = ev.Uint64("account_id", *order.AccountID)
	}
	if order.GuestEmail != nil {
		ev = ev.Str("guest_email", *order.GuestEmail)
	}
	ev.Msg("activity")
	return nil
}
