package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/avelory/drop-page-reservation/internal/model"
)

// ReservationRepo provides data access to the reservations table.  It is
// responsible for creating, mutating, summing and deleting holds.  All
// expiry comparisons use the epoch-second `now` value supplied by the
// caller so that the engine and its tests control the clock.
//
// Methods with a Tx suffix operate inside a caller-supplied transaction
// and never commit; the caller owns the transaction boundary.  The
// non-Tx variants are standalone reads/writes used outside the locked
// reserve path (display, release).
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the provided database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationColumns = `id, session_id, exclusive_page_id, product_id, quantity,
	reserved_at, expires_at, extended, ip_address, user_agent`

func scanReservation(row interface{ Scan(...any) error }) (model.Reservation, error) {
	var res model.Reservation
	err := row.Scan(&res.ID, &res.SessionID, &res.PageID, &res.ProductID, &res.Quantity,
		&res.ReservedAt, &res.ExpiresAt, &res.Extended, &res.IPAddress, &res.UserAgent)
	return res, err
}

// ExpireTx deletes every reservation on the given page whose expires_at
// has passed.  It is the lazy-expiry step executed at the head of each
// read and write path.  Running inside the caller's transaction means
// the deletion participates in that transaction's atomicity; it returns
// the number of rows removed.
func (r *ReservationRepo) ExpireTx(ctx context.Context, tx *sql.Tx, pageID uint64, now int64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM reservations WHERE exclusive_page_id = ? AND expires_at <= ?`,
		pageID, now,
	)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, nil
}

// CleanupExpired is the standalone form of ExpireTx for paths that do not
// already run inside a transaction; the delete commits immediately.
func (r *ReservationRepo) CleanupExpired(ctx context.Context, pageID uint64, now int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM reservations WHERE exclusive_page_id = ? AND expires_at <= ?`,
		pageID, now,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LockLiveByProductTx selects, with an exclusive row lock, every live
// reservation for the given page and product.  This is the serialization
// point of the reserve flow: concurrent reserve calls for the same
// product block here until the holding transaction commits or rolls
// back, so no two transactions can overcommit the same cap.  Calls for
// different products never contend.
func (r *ReservationRepo) LockLiveByProductTx(ctx context.Context, tx *sql.Tx, pageID, productID uint64, now int64) ([]model.Reservation, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations
		 WHERE exclusive_page_id = ? AND product_id = ? AND expires_at > ?
		 FOR UPDATE`,
		pageID, productID, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// SessionAnchor carries the shared countdown state of one session on one
// page: when the first hold was made, when every hold expires and whether
// the one-time extension has been used.
type SessionAnchor struct {
	ReservedAt int64
	ExpiresAt  int64
	Extended   bool
}

// SessionAnchorTx returns the countdown anchor for a session on a page,
// or nil when the session has no live reservations there.  All of a
// session's rows on a page share reserved_at and expires_at, so the
// aggregate collapses to the single shared value.
func (r *ReservationRepo) SessionAnchorTx(ctx context.Context, tx *sql.Tx, sessionID string, pageID uint64, now int64) (*SessionAnchor, error) {
	const q = `SELECT MIN(reserved_at), MIN(expires_at), MAX(extended)
	           FROM reservations
	           WHERE session_id = ? AND exclusive_page_id = ? AND expires_at > ?`
	var reservedAt, expiresAt sql.NullInt64
	var extended sql.NullBool
	if err := tx.QueryRowContext(ctx, q, sessionID, pageID, now).Scan(&reservedAt, &expiresAt, &extended); err != nil {
		return nil, err
	}
	if !reservedAt.Valid {
		return nil, nil
	}
	return &SessionAnchor{
		ReservedAt: reservedAt.Int64,
		ExpiresAt:  expiresAt.Int64,
		Extended:   extended.Bool,
	}, nil
}

// SessionAnchor is the standalone form of SessionAnchorTx for snapshot reads.
func (r *ReservationRepo) SessionAnchor(ctx context.Context, sessionID string, pageID uint64, now int64) (*SessionAnchor, error) {
	const q = `SELECT MIN(reserved_at), MIN(expires_at), MAX(extended)
	           FROM reservations
	           WHERE session_id = ? AND exclusive_page_id = ? AND expires_at > ?`
	var reservedAt, expiresAt sql.NullInt64
	var extended sql.NullBool
	if err := r.db.QueryRowContext(ctx, q, sessionID, pageID, now).Scan(&reservedAt, &expiresAt, &extended); err != nil {
		return nil, err
	}
	if !reservedAt.Valid {
		return nil, nil
	}
	return &SessionAnchor{
		ReservedAt: reservedAt.Int64,
		ExpiresAt:  expiresAt.Int64,
		Extended:   extended.Bool,
	}, nil
}

// GetForSessionProductTx returns the session's live row for one product on
// one page, or nil when the session holds nothing for that product.  At
// most one active row exists per (session, page, product).
func (r *ReservationRepo) GetForSessionProductTx(ctx context.Context, tx *sql.Tx, sessionID string, pageID, productID uint64, now int64) (*model.Reservation, error) {
	res, err := scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations
		 WHERE session_id = ? AND exclusive_page_id = ? AND product_id = ? AND expires_at > ?
		 LIMIT 1`,
		sessionID, pageID, productID, now,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// GetForSessionProduct is the standalone form of GetForSessionProductTx,
// used by the single-product availability read to report the caller's
// own held quantity.
func (r *ReservationRepo) GetForSessionProduct(ctx context.Context, sessionID string, pageID, productID uint64, now int64) (*model.Reservation, error) {
	res, err := scanReservation(r.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations
		 WHERE session_id = ? AND exclusive_page_id = ? AND product_id = ? AND expires_at > ?
		 LIMIT 1`,
		sessionID, pageID, productID, now,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &res, nil
}

// InsertTx creates a new hold row and populates the generated ID on the
// provided record.  The caller must have already computed the shared
// reserved_at/expires_at anchor for the session and page.
func (r *ReservationRepo) InsertTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	const q = `INSERT INTO reservations
	           (session_id, exclusive_page_id, product_id, quantity, reserved_at, expires_at, extended, ip_address, user_agent)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q,
		res.SessionID, res.PageID, res.ProductID, res.Quantity,
		res.ReservedAt, res.ExpiresAt, res.Extended, res.IPAddress, res.UserAgent,
	)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	return nil
}

// AddQuantityTx increments an existing hold by delta.  The expiry columns
// are left untouched: the countdown anchor belongs to the session's first
// reservation on the page, not to individual increments.
func (r *ReservationRepo) AddQuantityTx(ctx context.Context, tx *sql.Tx, id uint64, delta int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE reservations SET quantity = quantity + ? WHERE id = ?`,
		delta, id,
	)
	return err
}

// DecrementQuantityTx subtracts delta units from a hold row.  The
// subtraction happens in the database so that two concurrent releases of
// the same row cannot lose each other's update.
func (r *ReservationRepo) DecrementQuantityTx(ctx context.Context, tx *sql.Tx, id uint64, delta int) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE reservations SET quantity = quantity - ? WHERE id = ?`,
		delta, id,
	)
	return err
}

// QuantityTx reads back the current quantity of a hold row after a
// decrement, so the release path can delete the row once it is drained.
func (r *ReservationRepo) QuantityTx(ctx context.Context, tx *sql.Tx, id uint64) (int, error) {
	var qty int
	err := tx.QueryRowContext(ctx,
		`SELECT quantity FROM reservations WHERE id = ?`, id,
	).Scan(&qty)
	return qty, err
}

// DeleteTx removes a single hold row by id.
func (r *ReservationRepo) DeleteTx(ctx context.Context, tx *sql.Tx, id uint64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = ?`, id)
	return err
}

// ExtendSessionTx pushes expires_at forward by the given number of seconds
// on all of the session's live rows for the page and marks them extended,
// atomically.  It returns the number of rows touched; zero means the
// session had nothing live to extend.
func (r *ReservationRepo) ExtendSessionTx(ctx context.Context, tx *sql.Tx, sessionID string, pageID uint64, seconds, now int64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE reservations
		 SET expires_at = expires_at + ?, extended = 1
		 WHERE session_id = ? AND exclusive_page_id = ? AND expires_at > ?`,
		seconds, sessionID, pageID, now,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// LiveBySessionTx lists all of the session's live reservations on a page,
// ordered by product for deterministic output.  The order orchestrator
// uses it to turn holds into order items.
func (r *ReservationRepo) LiveBySessionTx(ctx context.Context, tx *sql.Tx, sessionID string, pageID uint64, now int64) ([]model.Reservation, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+reservationColumns+`
		 FROM reservations
		 WHERE session_id = ? AND exclusive_page_id = ? AND expires_at > ?
		 ORDER BY product_id`,
		sessionID, pageID, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteBySessionTx removes all of the session's reservation rows for a
// page.  Order placement calls it inside the same transaction that
// creates the order, so the order and the hold deletion commit as one
// atomic unit.
func (r *ReservationRepo) DeleteBySessionTx(ctx context.Context, tx *sql.Tx, sessionID string, pageID uint64) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`DELETE FROM reservations WHERE session_id = ? AND exclusive_page_id = ?`,
		sessionID, pageID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ReservedSum returns the total live quantity held for one product on one
// page across all sessions.  This is the unlocked read used for display;
// the locked reserve path derives the same number from LockLiveByProductTx.
func (r *ReservationRepo) ReservedSum(ctx context.Context, pageID, productID uint64, now int64) (int, error) {
	var sum sql.NullInt64
	err := r.db.QueryRowContext(ctx,
		`SELECT SUM(quantity) FROM reservations
		 WHERE exclusive_page_id = ? AND product_id = ? AND expires_at > ?`,
		pageID, productID, now,
	).Scan(&sum)
	if err != nil {
		return 0, err
	}
	return int(sum.Int64), nil
}

// ReservedSums aggregates live held quantities for many products in one
// query, keyed by product id.  Products with no live holds are absent
// from the map.
func (r *ReservationRepo) ReservedSums(ctx context.Context, pageID uint64, productIDs []uint64, now int64) (map[uint64]int, error) {
	out := make(map[uint64]int, len(productIDs))
	if len(productIDs) == 0 {
		return out, nil
	}
	placeholders := make([]string, 0, len(productIDs))
	args := make([]interface{}, 0, len(productIDs)+2)
	args = append(args, pageID, now)
	for _, id := range productIDs {
		placeholders = append(placeholders, "?")
		args = append(args, id)
	}
	query := `SELECT product_id, SUM(quantity)
	          FROM reservations
	          WHERE exclusive_page_id = ? AND expires_at > ?
	            AND product_id IN (` + strings.Join(placeholders, ",") + `)
	          GROUP BY product_id`
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

// SessionQuantities returns the session's own live held quantity per
// product on a page, for the snapshot response.
func (r *ReservationRepo) SessionQuantities(ctx context.Context, sessionID string, pageID uint64, now int64) (map[uint64]int, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT product_id, quantity FROM reservations
		 WHERE session_id = ? AND exclusive_page_id = ? AND expires_at > ?`,
		sessionID, pageID, now,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uint64]int)
	for rows.Next() {
		var pid uint64
		var qty int
		if err := rows.Scan(&pid, &qty); err != nil {
			return nil, err
		}
		out[pid] = qty
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
