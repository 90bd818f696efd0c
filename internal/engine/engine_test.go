package engine

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avelory/drop-page-reservation/internal/repository"
)

// stubNumbers satisfies OrderNumberSource without touching the database.
type stubNumbers struct{}

func (stubNumbers) Next(ctx context.Context, pageType string) (string, error) {
	return "DROP-20260827-ABC123", nil
}

func reservationColsList() []string {
	return []string{"id", "session_id", "exclusive_page_id", "product_id", "quantity",
		"reserved_at", "expires_at", "extended", "ip_address", "user_agent"}
}

// newTestEngine builds an engine over a sqlmock database with the clock
// pinned to the given epoch second.
func newTestEngine(t *testing.T, now int64) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	e := New(db,
		repository.NewReservationRepo(db),
		repository.NewOrderRepo(db),
		repository.NewProductRepo(db),
		repository.NewPageRepo(db),
		repository.NewSectionRepo(db),
		repository.NewAccountRepo(db),
		stubNumbers{},
		zerolog.Nop(),
	)
	e.now = func() int64 { return now }
	return e, mock
}

func productRow(id uint64, name string, price uint32, active bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "name", "price_cents", "is_active", "variant_group_id", "set_id"}).
		AddRow(id, name, price, active, nil, nil)
}

func sectionRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "exclusive_page_id", "kind", "product_id", "variant_group_id", "set_id",
		"max_quantity", "set_max_sets", "auto_increase_step"})
}

func TestReserveCreatesHoldUnderCap(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectQuery("FROM products WHERE id").
		WithArgs(uint64(7)).
		WillReturnRows(productRow(7, "Keystone Tee", 4500, true))
	mock.ExpectQuery("FROM page_sections").
		WithArgs(uint64(1)).
		WillReturnRows(sectionRows().AddRow(3, 1, "product", 7, nil, nil, 10, nil, 0))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(uint64(1), uint64(7), int64(1000)).
		WillReturnRows(sqlmock.NewRows(reservationColsList()).
			AddRow(5, "other-session", 1, 7, 2, 900, 1500, false, "10.0.0.2", "curl"))
	mock.ExpectQuery(`SELECT SUM\(oi\.quantity\)`).
		WithArgs(uint64(1), "CANCELLED", uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(3))
	mock.ExpectQuery(`SELECT MIN\(reserved_at\)`).
		WithArgs("sess-1", uint64(1), int64(1000)).
		WillReturnRows(sqlmock.NewRows([]string{"min_r", "min_e", "max_x"}).AddRow(nil, nil, nil))
	mock.ExpectQuery("LIMIT 1").
		WithArgs("sess-1", uint64(1), uint64(7), int64(1000)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO reservations").
		WithArgs("sess-1", uint64(1), uint64(7), 2, int64(1000), int64(1600), false, "10.0.0.9", "go-test").
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectCommit()

	res := e.Reserve(context.Background(), ReserveRequest{
		SessionID: "sess-1",
		PageID:    1,
		ProductID: 7,
		Quantity:  2,
		IPAddress: "10.0.0.9",
		UserAgent: "go-test",
	})
	require.True(t, res.OK, "reserve should succeed: %+v", res.Failure)
	require.NotNil(t, res.Reservation)
	assert.Equal(t, uint64(42), res.Reservation.ID)
	assert.Equal(t, int64(1600), res.ExpiresAt)
	// cap 10 - reserved 2 - ordered 3 - this hold 2 = 3 remaining
	assert.Equal(t, 3, res.Available)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A session that already holds one product on a page and reserves a
// second one must not get a fresh countdown: the new row inherits the
// reserved_at/expires_at anchor of the session's first hold.
func TestReserveSecondProductSharesCountdown(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectQuery("FROM products WHERE id").
		WithArgs(uint64(8)).
		WillReturnRows(productRow(8, "Keystone Hoodie", 9500, true))
	mock.ExpectQuery("FROM page_sections").
		WithArgs(uint64(1)).
		WillReturnRows(sectionRows().AddRow(4, 1, "product", 8, nil, nil, 10, nil, 0))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(uint64(1), uint64(8), int64(1000)).
		WillReturnRows(sqlmock.NewRows(reservationColsList()))
	mock.ExpectQuery(`SELECT SUM\(oi\.quantity\)`).
		WithArgs(uint64(1), "CANCELLED", uint64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))
	// The session's earlier hold on another product anchors the countdown.
	mock.ExpectQuery(`SELECT MIN\(reserved_at\)`).
		WithArgs("sess-1", uint64(1), int64(1000)).
		WillReturnRows(sqlmock.NewRows([]string{"min_r", "min_e", "max_x"}).AddRow(900, 1500, false))
	mock.ExpectQuery("LIMIT 1").
		WithArgs("sess-1", uint64(1), uint64(8), int64(1000)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO reservations").
		WithArgs("sess-1", uint64(1), uint64(8), 1, int64(900), int64(1500), false, "", "").
		WillReturnResult(sqlmock.NewResult(43, 1))
	mock.ExpectCommit()

	res := e.Reserve(context.Background(), ReserveRequest{
		SessionID: "sess-1", PageID: 1, ProductID: 8, Quantity: 1,
	})
	require.True(t, res.OK, "reserve should succeed: %+v", res.Failure)
	assert.Equal(t, int64(900), res.Reservation.ReservedAt)
	assert.Equal(t, int64(1500), res.ExpiresAt)
	assert.False(t, res.Reservation.Extended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// After the session used its one extension, a hold on a further product
// joins the already-extended countdown and carries the extended flag so
// it cannot be used to earn a second extension.
func TestReserveAfterExtensionInheritsExtendedAnchor(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectQuery("FROM products WHERE id").
		WithArgs(uint64(8)).
		WillReturnRows(productRow(8, "Keystone Hoodie", 9500, true))
	mock.ExpectQuery("FROM page_sections").
		WithArgs(uint64(1)).
		WillReturnRows(sectionRows().AddRow(4, 1, "product", 8, nil, nil, 10, nil, 0))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(uint64(1), uint64(8), int64(1000)).
		WillReturnRows(sqlmock.NewRows(reservationColsList()))
	mock.ExpectQuery(`SELECT SUM\(oi\.quantity\)`).
		WithArgs(uint64(1), "CANCELLED", uint64(8)).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))
	mock.ExpectQuery(`SELECT MIN\(reserved_at\)`).
		WithArgs("sess-1", uint64(1), int64(1000)).
		WillReturnRows(sqlmock.NewRows([]string{"min_r", "min_e", "max_x"}).AddRow(900, 1620, true))
	mock.ExpectQuery("LIMIT 1").
		WithArgs("sess-1", uint64(1), uint64(8), int64(1000)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec("INSERT INTO reservations").
		WithArgs("sess-1", uint64(1), uint64(8), 1, int64(900), int64(1620), true, "", "").
		WillReturnResult(sqlmock.NewResult(43, 1))
	mock.ExpectCommit()

	res := e.Reserve(context.Background(), ReserveRequest{
		SessionID: "sess-1", PageID: 1, ProductID: 8, Quantity: 1,
	})
	require.True(t, res.OK, "reserve should succeed: %+v", res.Failure)
	assert.Equal(t, int64(1620), res.ExpiresAt)
	assert.True(t, res.Reservation.Extended)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRefusesWhenAvailabilityShort(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectQuery("FROM products WHERE id").
		WithArgs(uint64(7)).
		WillReturnRows(productRow(7, "Keystone Tee", 4500, true))
	mock.ExpectQuery("FROM page_sections").
		WithArgs(uint64(1)).
		WillReturnRows(sectionRows().AddRow(3, 1, "product", 7, nil, nil, 5, nil, 0))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("FOR UPDATE").
		WithArgs(uint64(1), uint64(7), int64(1000)).
		WillReturnRows(sqlmock.NewRows(reservationColsList()).
			AddRow(5, "other-session", 1, 7, 4, 900, 1200, false, "10.0.0.2", "curl"))
	mock.ExpectQuery(`SELECT SUM\(oi\.quantity\)`).
		WithArgs(uint64(1), "CANCELLED", uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(nil))
	mock.ExpectRollback()

	res := e.Reserve(context.Background(), ReserveRequest{
		SessionID: "sess-1", PageID: 1, ProductID: 7, Quantity: 2,
	})
	require.False(t, res.OK)
	require.NotNil(t, res.Failure)
	assert.Equal(t, CodeInsufficientAvailability, res.Failure.Code)
	assert.Equal(t, 1, res.Available)
	// Earliest expiry of another session's hold is the check-back hint.
	assert.Equal(t, int64(1200), res.CheckBackAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReserveRejectsInvalidQuantity(t *testing.T) {
	e, _ := newTestEngine(t, 1000)
	res := e.Reserve(context.Background(), ReserveRequest{SessionID: "s", PageID: 1, ProductID: 7, Quantity: 0})
	require.NotNil(t, res.Failure)
	assert.Equal(t, CodeInvalidQuantity, res.Failure.Code)
}

func TestReserveInactiveProductLooksAbsent(t *testing.T) {
	e, mock := newTestEngine(t, 1000)
	mock.ExpectQuery("FROM products WHERE id").
		WithArgs(uint64(7)).
		WillReturnRows(productRow(7, "Keystone Tee", 4500, false))

	res := e.Reserve(context.Background(), ReserveRequest{SessionID: "s", PageID: 1, ProductID: 7, Quantity: 1})
	require.NotNil(t, res.Failure)
	assert.Equal(t, CodeProductNotFound, res.Failure.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseWithoutHoldIsNoOp(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery("LIMIT 1").
		WithArgs("sess-1", uint64(1), uint64(7), int64(1000)).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	res := e.Release(context.Background(), "sess-1", 1, 7, 3)
	require.True(t, res.OK)
	assert.Equal(t, 0, res.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseShrinksHold(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery("LIMIT 1").
		WithArgs("sess-1", uint64(1), uint64(7), int64(1000)).
		WillReturnRows(sqlmock.NewRows(reservationColsList()).
			AddRow(42, "sess-1", 1, 7, 5, 900, 1500, false, "", ""))
	mock.ExpectExec(`UPDATE reservations SET quantity = quantity - \?`).
		WithArgs(2, uint64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT quantity FROM reservations WHERE id").
		WithArgs(uint64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(3))
	mock.ExpectCommit()

	res := e.Release(context.Background(), "sess-1", 1, 7, 2)
	require.True(t, res.OK)
	assert.Equal(t, 3, res.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// A release that drains the row to zero, whether because the caller gave
// back everything or because a parallel release got there first, must
// delete the row rather than leave it at a non-positive quantity.
func TestReleaseDeletesRowDrainedByParallelRelease(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery("LIMIT 1").
		WithArgs("sess-1", uint64(1), uint64(7), int64(1000)).
		WillReturnRows(sqlmock.NewRows(reservationColsList()).
			AddRow(42, "sess-1", 1, 7, 5, 900, 1500, false, "", ""))
	mock.ExpectExec(`UPDATE reservations SET quantity = quantity - \?`).
		WithArgs(2, uint64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// Read-back sees zero: another release drained the row in between.
	mock.ExpectQuery("SELECT quantity FROM reservations WHERE id").
		WithArgs(uint64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(0))
	mock.ExpectExec("DELETE FROM reservations WHERE id").
		WithArgs(uint64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res := e.Release(context.Background(), "sess-1", 1, 7, 2)
	require.True(t, res.OK)
	assert.Equal(t, 0, res.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReleaseMoreThanHeldDeletesRow(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectBegin()
	mock.ExpectQuery("LIMIT 1").
		WithArgs("sess-1", uint64(1), uint64(7), int64(1000)).
		WillReturnRows(sqlmock.NewRows(reservationColsList()).
			AddRow(42, "sess-1", 1, 7, 2, 900, 1500, false, "", ""))
	mock.ExpectExec(`UPDATE reservations SET quantity = quantity - \?`).
		WithArgs(99, uint64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT quantity FROM reservations WHERE id").
		WithArgs(uint64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"quantity"}).AddRow(-97))
	mock.ExpectExec("DELETE FROM reservations WHERE id").
		WithArgs(uint64(42)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res := e.Release(context.Background(), "sess-1", 1, 7, 99)
	require.True(t, res.OK)
	assert.Equal(t, 0, res.Remaining)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtendMovesCountdownOnce(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT MIN\(reserved_at\)`).
		WithArgs("sess-1", uint64(1), int64(1000)).
		WillReturnRows(sqlmock.NewRows([]string{"min_r", "min_e", "max_x"}).AddRow(900, 1500, false))
	mock.ExpectExec("SET expires_at = expires_at").
		WithArgs(ExtensionDuration, "sess-1", uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	res := e.Extend(context.Background(), "sess-1", 1)
	require.True(t, res.OK)
	assert.Equal(t, int64(1500+ExtensionDuration), res.ExpiresAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtendRefusesSecondExtension(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT MIN\(reserved_at\)`).
		WithArgs("sess-1", uint64(1), int64(1000)).
		WillReturnRows(sqlmock.NewRows([]string{"min_r", "min_e", "max_x"}).AddRow(900, 1620, true))
	mock.ExpectRollback()

	res := e.Extend(context.Background(), "sess-1", 1)
	require.NotNil(t, res.Failure)
	assert.Equal(t, CodeAlreadyExtended, res.Failure.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExtendWithoutHoldsFails(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT MIN\(reserved_at\)`).
		WithArgs("sess-1", uint64(1), int64(1000)).
		WillReturnRows(sqlmock.NewRows([]string{"min_r", "min_e", "max_x"}).AddRow(nil, nil, nil))
	mock.ExpectRollback()

	res := e.Extend(context.Background(), "sess-1", 1)
	require.NotNil(t, res.Failure)
	assert.Equal(t, CodeNoReservations, res.Failure.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceOrderGuestCheckout(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectQuery("FROM exclusive_pages WHERE id").
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "title", "page_type", "is_active"}).
			AddRow(1, "summer-drop", "Summer Drop", "drop", true))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("ORDER BY product_id").
		WithArgs("sess-1", uint64(1), int64(1000)).
		WillReturnRows(sqlmock.NewRows(reservationColsList()).
			AddRow(42, "sess-1", 1, 7, 2, 900, 1500, false, "", ""))
	mock.ExpectQuery("SELECT 1 FROM accounts WHERE email").
		WithArgs("jamie@example.com").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery("FROM page_sections").
		WithArgs(uint64(1)).
		WillReturnRows(sectionRows().AddRow(3, 1, "product", 7, nil, nil, 10, nil, 0))
	mock.ExpectQuery("FROM products WHERE id IN").
		WithArgs(uint64(7)).
		WillReturnRows(productRow(7, "Keystone Tee", 4500, true))
	mock.ExpectQuery(`SELECT SUM\(oi\.quantity\)`).
		WithArgs(uint64(1), "CANCELLED", uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(5))
	mock.ExpectExec("INSERT INTO orders").
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectQuery("SELECT created_at, updated_at FROM orders WHERE id").
		WithArgs(uint64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Unix(1000, 0).UTC(), time.Unix(1000, 0).UTC()))
	mock.ExpectExec("INSERT INTO order_items").
		WillReturnResult(sqlmock.NewResult(21, 1))
	mock.ExpectExec("DELETE FROM reservations WHERE session_id").
		WithArgs("sess-1", uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	res := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		PageID:    1,
		SessionID: "sess-1",
		Checkout:  GuestCheckout{Name: "Jamie", Email: "Jamie@Example.com", Phone: "+31 6 1234 5678"},
	})
	require.True(t, res.OK, "checkout should succeed: %+v", res.Failure)
	require.NotNil(t, res.Order)
	assert.Equal(t, "DROP-20260827-ABC123", res.Order.Number)
	assert.Equal(t, uint32(9000), res.Order.TotalCents)
	assert.Equal(t, 1, res.Order.ItemCount)
	require.NotNil(t, res.Order.ViewToken)
	require.NotNil(t, res.Order.GuestEmail)
	assert.Equal(t, "jamie@example.com", *res.Order.GuestEmail)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceOrderCommitFailureLeavesNoPartialState(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectQuery("FROM exclusive_pages WHERE id").
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "title", "page_type", "is_active"}).
			AddRow(1, "summer-drop", "Summer Drop", "drop", true))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("ORDER BY product_id").
		WithArgs("sess-1", uint64(1), int64(1000)).
		WillReturnRows(sqlmock.NewRows(reservationColsList()).
			AddRow(42, "sess-1", 1, 7, 2, 900, 1500, false, "", ""))
	mock.ExpectQuery("FROM page_sections").
		WithArgs(uint64(1)).
		WillReturnRows(sectionRows().AddRow(3, 1, "product", 7, nil, nil, 10, nil, 0))
	mock.ExpectQuery("FROM products WHERE id IN").
		WithArgs(uint64(7)).
		WillReturnRows(productRow(7, "Keystone Tee", 4500, true))
	mock.ExpectQuery(`SELECT SUM\(oi\.quantity\)`).
		WithArgs(uint64(1), "CANCELLED", uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(0))
	mock.ExpectExec("INSERT INTO orders").
		WillReturnResult(sqlmock.NewResult(11, 1))
	mock.ExpectQuery("SELECT created_at, updated_at FROM orders WHERE id").
		WithArgs(uint64(11)).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).
			AddRow(time.Unix(1000, 0).UTC(), time.Unix(1000, 0).UTC()))
	mock.ExpectExec("INSERT INTO order_items").
		WillReturnResult(sqlmock.NewResult(21, 1))
	mock.ExpectExec("DELETE FROM reservations WHERE session_id").
		WithArgs("sess-1", uint64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	// After a failed Commit the tx is already done; the deferred rollback
	// is a no-op at the driver level.
	mock.ExpectCommit().WillReturnError(assert.AnError)

	res := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		PageID:    1,
		SessionID: "sess-1",
		Checkout:  AccountCheckout{AccountID: 5},
	})
	require.False(t, res.OK)
	require.NotNil(t, res.Failure)
	assert.Equal(t, CodeServerError, res.Failure.Code)
	assert.Nil(t, res.Order)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceOrderRefusesWhenCapShrank(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectQuery("FROM exclusive_pages WHERE id").
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "title", "page_type", "is_active"}).
			AddRow(1, "summer-drop", "Summer Drop", "drop", true))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("ORDER BY product_id").
		WithArgs("sess-1", uint64(1), int64(1000)).
		WillReturnRows(sqlmock.NewRows(reservationColsList()).
			AddRow(42, "sess-1", 1, 7, 2, 900, 1500, false, "", ""))
	mock.ExpectQuery("FROM page_sections").
		WithArgs(uint64(1)).
		WillReturnRows(sectionRows().AddRow(3, 1, "product", 7, nil, nil, 10, nil, 0))
	mock.ExpectQuery("FROM products WHERE id IN").
		WithArgs(uint64(7)).
		WillReturnRows(productRow(7, "Keystone Tee", 4500, true))
	mock.ExpectQuery(`SELECT SUM\(oi\.quantity\)`).
		WithArgs(uint64(1), "CANCELLED", uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"sum"}).AddRow(9))
	mock.ExpectRollback()

	res := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		PageID:    1,
		SessionID: "sess-1",
		Checkout:  AccountCheckout{AccountID: 5},
	})
	require.NotNil(t, res.Failure)
	assert.Equal(t, CodeExceedsSectionLimit, res.Failure.Code)
	assert.Equal(t, uint64(7), res.ProductID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPlaceOrderGuestEmailCollision(t *testing.T) {
	e, mock := newTestEngine(t, 1000)

	mock.ExpectQuery("FROM exclusive_pages WHERE id").
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "slug", "title", "page_type", "is_active"}).
			AddRow(1, "summer-drop", "Summer Drop", "drop", true))

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM reservations WHERE exclusive_page_id").
		WithArgs(uint64(1), int64(1000)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("ORDER BY product_id").
		WithArgs("sess-1", uint64(1), int64(1000)).
		WillReturnRows(sqlmock.NewRows(reservationColsList()).
			AddRow(42, "sess-1", 1, 7, 2, 900, 1500, false, "", ""))
	mock.ExpectQuery("SELECT 1 FROM accounts WHERE email").
		WithArgs("jamie@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	mock.ExpectRollback()

	res := e.PlaceOrder(context.Background(), PlaceOrderRequest{
		PageID:    1,
		SessionID: "sess-1",
		Checkout:  GuestCheckout{Name: "Jamie", Email: "jamie@example.com", Phone: "0612345678"},
	})
	require.NotNil(t, res.Failure)
	assert.Equal(t, CodeEmailExists, res.Failure.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}
