package services

import (
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ezelectronics/ezelectronics-go-app/internal/db"
	"github.com/ezelectronics/ezelectronics-go-app/internal/lock"
	"github.com/ezelectronics/ezelectronics-go-app/internal/metrics"
	"github.com/ezelectronics/ezelectronics-go-app/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap/zaptest"
)

var (
	fixedNow = time.Date(2024, 6, 10, 15, 30, 0, 0, time.UTC)
	today    = time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	arrived  = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)

	alice = &models.User{Username: "alice", Role: models.RoleCustomer}

	productCols = []string{"model", "category", "quantity", "details", "selling_price", "arrival_date"}
	cartCols    = []string{"cart_id", "customer", "paid", "payment_date", "total"}
	lineCols    = []string{"model", "quantity", "category", "selling_price"}
)

// SQL fragments matched against the statements the services issue
var (
	qProductByModel  = regexp.QuoteMeta("FROM products WHERE model = ?")
	qOpenCart        = regexp.QuoteMeta("FROM carts WHERE customer = ? AND paid = 0")
	qInsertCart      = regexp.QuoteMeta("INSERT INTO carts (customer, paid, total)")
	qLineItem        = regexp.QuoteMeta("WHERE pic.cart_id = ? AND pic.model = ?")
	qLineItems       = regexp.QuoteMeta("WHERE pic.cart_id = ? ORDER BY pic.model")
	qInsertLine      = regexp.QuoteMeta("INSERT INTO product_in_cart (cart_id, model, quantity)")
	qChangeLine      = regexp.QuoteMeta("UPDATE product_in_cart SET quantity = quantity + ?")
	qDeleteLine      = regexp.QuoteMeta("DELETE FROM product_in_cart WHERE cart_id = ? AND model = ?")
	qClearLines      = regexp.QuoteMeta("DELETE FROM product_in_cart WHERE cart_id = ?")
	qWriteTotal      = regexp.QuoteMeta("UPDATE carts SET total = ? WHERE cart_id = ?")
	qSell            = regexp.QuoteMeta("UPDATE products SET quantity = quantity - ? WHERE model = ? AND quantity >= ?")
	qRestock         = regexp.QuoteMeta("UPDATE products SET quantity = quantity + ? WHERE model = ?")
	qMarkPaid        = regexp.QuoteMeta("UPDATE carts SET paid = 1, payment_date = ?, total = ?")
	qInsertProduct   = regexp.QuoteMeta("INSERT INTO products (model, category")
	qOpenCartsOfItem = regexp.QuoteMeta("WHERE pic.model = ? AND c.paid = 0")
)

type fixture struct {
	mock   sqlmock.Sqlmock
	ledger *LedgerService
	carts  *CartService
	users  *UserService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })

	m, err := metrics.NewAppMetrics(noop.NewMeterProvider().Meter("test"), "test")
	require.NoError(t, err)

	database := &db.DB{DB: sqlDB}
	logger := zaptest.NewLogger(t)
	clock := func() time.Time { return fixedNow }

	ledger := NewLedgerService(database, m, logger)
	ledger.now = clock
	carts := NewCartService(database, ledger, lock.NewProcessLocker(), m, logger)
	carts.now = clock

	return &fixture{
		mock:   mock,
		ledger: ledger,
		carts:  carts,
		users:  NewUserService(database, m),
	}
}

func productRow(model, category string, quantity int, price float64) *sqlmock.Rows {
	return sqlmock.NewRows(productCols).AddRow(model, category, int64(quantity), nil, price, arrived)
}

func noProduct() *sqlmock.Rows {
	return sqlmock.NewRows(productCols)
}

func openCartRow(id int64, total float64) *sqlmock.Rows {
	return sqlmock.NewRows(cartCols).AddRow(id, "alice", false, nil, total)
}

func noCart() *sqlmock.Rows {
	return sqlmock.NewRows(cartCols)
}

// lineRows builds line item rows from (model, quantity, category, price) tuples
func lineRows(values ...[]driver.Value) *sqlmock.Rows {
	rows := sqlmock.NewRows(lineCols)
	for _, v := range values {
		rows.AddRow(v...)
	}
	return rows
}

func line(model string, quantity int, category string, price float64) []driver.Value {
	return []driver.Value{model, int64(quantity), category, price}
}

func oneRow() driver.Result {
	return sqlmock.NewResult(0, 1)
}
