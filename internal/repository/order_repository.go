package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/avelory/drop-page-reservation/internal/model"
)

// OrderRepo provides CRUD operations for orders and their items.  Orders
// are the permanent output of the reservation engine: a checkout converts
// a session's holds into one order plus item snapshots inside a single
// transaction.  Items are not linked back to reservations.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// CreateTx inserts a new order within the scope of an existing
// transaction.  It populates the generated ID and DB-default timestamps
// on the provided record.  The caller must commit or roll back the
// transaction.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	const q = `INSERT INTO orders
	           (order_number, exclusive_page_id, account_id, guest_name, guest_email, guest_phone, view_token, status, total_cents, note)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q,
		o.Number, o.PageID, o.AccountID, o.GuestName, o.GuestEmail, o.GuestPhone,
		o.ViewToken, o.Status, o.TotalCents, o.Note,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = uint64(id)
	// Query back the row to populate timestamps set by DB defaults.
	const sel = `SELECT created_at, updated_at FROM orders WHERE id = ?`
	return tx.QueryRowContext(ctx, sel, o.ID).Scan(&o.CreatedAt, &o.UpdatedAt)
}

// CreateItemsBulkTx inserts multiple order_items rows in a single
// statement.  The caller must supply the order ID in each record.
// Passing an empty slice has no effect and returns nil.
func (r *OrderRepo) CreateItemsBulkTx(ctx context.Context, tx *sql.Tx, items []model.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	query := `INSERT INTO order_items (order_id, product_id, product_name, quantity, unit_price_cents, line_total_cents) VALUES `
	args := make([]interface{}, 0, len(items)*6)
	for i, it := range items {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?, ?, ?)"
		args = append(args, it.OrderID, it.ProductID, it.ProductName, it.Quantity, it.UnitPriceCents, it.LineTotalCents)
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// OrderedQuantityTx sums the already-ordered quantity of one product on
// one page across all non-cancelled orders, inside the caller's
// transaction.  The reserve path uses it alongside the locked hold rows
// to derive availability.
func (r *OrderRepo) OrderedQuantityTx(ctx context.Context, tx *sql.Tx, pageID, productID uint64) (int, error) {
	var sum sql.NullInt64
	err := tx.QueryRowContext(ctx,
		`SELECT SUM(oi.quantity)
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 WHERE o.exclusive_page_id = ? AND o.status <> ? AND oi.product_id = ?`,
		pageID, model.OrderStatusCancelled, productID,
	).Scan(&sum)
	if err != nil {
		return 0, err
	}
	return int(sum.Int64), nil
}

// OrderedQuantity is the standalone form of OrderedQuantityTx for
// unlocked availability reads.
func (r *OrderRepo) OrderedQuantity(ctx context.Context, pageID, productID uint64) (int, error) {
	var sum sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT SUM(oi.quantity)
		 FROM order_items oi
		 JOIN orders o ON o.id = oi.order_id
		 WHERE o.exclusive_page_id = ? AND o.status <> ? AND oi.product_id = ?`,
		pageID, model.OrderStatusCancelled, productID,
	).Scan(&sum)
	if err != nil {
		return 0, err
	}
	return int(sum.Int64), nil
}

// SoldCounts aggregates non-cancelled ordered quantities for many
// products of one page in a single query, keyed by product id.  The
// snapshot endpoint and the auto-increase checker both consume it.
// Products with no orders are absent from the map.
func (r *OrderRepo) SoldCounts(ctx context.Context, pageID uint64, productIDs []uint64) (map[uint64]int, error) {
	out := make(map[uint64]int, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	placeholders := make([]string, 0, len(productIDs))
	args := make([]interface{}, 0, len(productIDs)+2)
	args = append(args, pageID, model.OrderStatusCancelled)
	for _, id := range productIDs {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	query := `SELECT oi.product_id, SUM(oi.quantity)
	          FROM order_items oi
	          JOIN orders o ON o.id = oi.order_id
	          WHERE o.exclusive_page_id = ? AND o.status <> ?
	            AND oi.product_id IN (` + strings.Join(placeholders, ",") + `)
	          GROUP BY oi.product_id`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var pid uint64
		var sum int
		if err := rows.Scan(&pid, &sum); err != nil {
			return nil, err
		}
		out[pid] = sum
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// GetByViewToken fetches a guest order by its view token along with its
// items.  Guests use the token from the checkout response to retrieve
// their confirmation without an account.  Returns ErrOrderNotFound when
// no order carries the token.
func (r *OrderRepo) GetByViewToken(ctx context.Context, token string) (*model.Order, []model.OrderItem, error) {
	const q = `SELECT id, order_number, exclusive_page_id, account_id, guest_name, guest_email, guest_phone,
	                  view_token, status, total_cents, note, created_at, updated_at
	           FROM orders WHERE view_token = ?`
	var o model.Order
	var accountID sql.NullInt64
	var guestName, guestEmail, guestPhone, viewToken, note sql.NullString
	err := r.db.QueryRowContext(ctx, q, token).Scan(
		&o.ID, &o.Number, &o.PageID, &accountID, &guestName, &guestEmail, &guestPhone,
		&viewToken, &o.Status, &o.TotalCents, &note, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrOrderNotFound
		}
		return nil, nil, err
	}
	if accountID.Valid {
		v := uint64(accountID.Int64)
		o.AccountID = &v
	}
	if guestName.Valid {
		o.GuestName = &guestName.String
	}
	if guestEmail.Valid {
		o.GuestEmail = &guestEmail.String
	}
	if guestPhone.Valid {
		o.GuestPhone = &guestPhone.String
	}
	if viewToken.Valid {
		o.ViewToken = &viewToken.String
	}
	if note.Valid {
		o.Note = &note.String
	}
	items, err := r.listItems(ctx, o.ID)
	if err != nil {
		return nil, nil, err
	}
	return &o, items, nil
}

func (r *OrderRepo) listItems(ctx context.Context, orderID uint64) ([]model.OrderItem, error) {
	const q = `SELECT id, order_id, product_id, product_name, quantity, unit_price_cents, line_total_cents
	           FROM order_items WHERE order_id = ? ORDER BY product_id`
	rows, err := r.db.QueryContext(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.OrderItem
	for rows.Next() {
		var it model.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.ProductName, &it.Quantity, &it.UnitPriceCents, &it.LineTotalCents); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// NumberExists reports whether an order number is already taken.  The
// numbering service retries on collision; the unique index on
// order_number is the final guard.
func (r *OrderRepo) NumberExists(ctx context.Context, number string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM orders WHERE order_number = ? LIMIT 1`, number).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
