package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/ezelectronics/ezelectronics-go-app/internal/db"
	"github.com/ezelectronics/ezelectronics-go-app/internal/lock"
	"github.com/ezelectronics/ezelectronics-go-app/internal/metrics"
	"github.com/ezelectronics/ezelectronics-go-app/internal/middleware"
	"github.com/ezelectronics/ezelectronics-go-app/internal/models"
	"github.com/ezelectronics/ezelectronics-go-app/internal/services"
	"github.com/ezelectronics/ezelectronics-go-app/pkg/config"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap/zaptest"
)

var (
	qUser    = regexp.QuoteMeta("FROM users WHERE username = ?")
	qProduct = regexp.QuoteMeta("FROM products WHERE model = ?")
	qCart    = regexp.QuoteMeta("FROM carts WHERE customer = ? AND paid = 0")
	qLines   = regexp.QuoteMeta("WHERE pic.cart_id = ? ORDER BY pic.model")

	userCols    = []string{"username", "name", "surname", "role", "address", "birthdate"}
	productCols = []string{"model", "category", "quantity", "details", "selling_price", "arrival_date"}
	cartCols    = []string{"cart_id", "customer", "paid", "payment_date", "total"}
	lineCols    = []string{"model", "quantity", "category", "selling_price"}

	arrived = time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
)

type testServer struct {
	mock   sqlmock.Sqlmock
	router *mux.Router
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	t.Cleanup(func() { assert.NoError(t, mock.ExpectationsWereMet()) })

	m, err := metrics.NewAppMetrics(noop.NewMeterProvider().Meter("test"), "test")
	require.NoError(t, err)

	logger := zaptest.NewLogger(t)
	database := &db.DB{DB: sqlDB}
	ledger := services.NewLedgerService(database, m, logger)
	carts := services.NewCartService(database, ledger, lock.NewProcessLocker(), m, logger)
	users := services.NewUserService(database, m)

	app := NewApp(&config.Config{}, database, m, ledger, carts, users, logger)
	router := mux.NewRouter()
	app.SetupRoutes(router)

	return &testServer{mock: mock, router: router}
}

// as expects the identity lookup for username with role
func (s *testServer) as(username, role string) {
	s.mock.ExpectQuery(qUser).WithArgs(username).
		WillReturnRows(sqlmock.NewRows(userCols).AddRow(username, "N", "S", role, nil, nil))
}

func (s *testServer) do(method, path, username, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if username != "" {
		req.Header.Set(middleware.UsernameHeader, username)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestIdentityAndRoles(t *testing.T) {
	t.Run("missing header", func(t *testing.T) {
		s := newTestServer(t)

		rec := s.do(http.MethodGet, "/api/v1/carts", "", "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		s := newTestServer(t)
		s.mock.ExpectQuery(qUser).WithArgs("ghost").WillReturnRows(sqlmock.NewRows(userCols))

		rec := s.do(http.MethodGet, "/api/v1/carts", "ghost", "")

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("customer cannot register products", func(t *testing.T) {
		s := newTestServer(t)
		s.as("alice", models.RoleCustomer)

		rec := s.do(http.MethodPost, "/api/v1/products", "alice", `{"model":"M1"}`)

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})

	t.Run("manager has no cart", func(t *testing.T) {
		s := newTestServer(t)
		s.as("mario", models.RoleManager)

		rec := s.do(http.MethodGet, "/api/v1/carts", "mario", "")

		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func TestGetCartWithoutStoredCart(t *testing.T) {
	s := newTestServer(t)
	s.as("alice", models.RoleCustomer)
	s.mock.ExpectQuery(qCart).WithArgs("alice").WillReturnRows(sqlmock.NewRows(cartCols))

	rec := s.do(http.MethodGet, "/api/v1/carts", "alice", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var cart models.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cart))
	assert.Equal(t, "alice", cart.Customer)
	assert.False(t, cart.Paid)
	assert.Nil(t, cart.PaymentDate)
	assert.NotNil(t, cart.Products)
	assert.Empty(t, cart.Products)
}

func TestAddToCart(t *testing.T) {
	t.Run("unknown product", func(t *testing.T) {
		s := newTestServer(t)
		s.as("alice", models.RoleCustomer)
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(qProduct).WithArgs("ghost").WillReturnRows(sqlmock.NewRows(productCols))
		s.mock.ExpectRollback()

		rec := s.do(http.MethodPost, "/api/v1/carts", "alice", `{"model":"ghost"}`)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("sold out", func(t *testing.T) {
		s := newTestServer(t)
		s.as("alice", models.RoleCustomer)
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(qProduct).WithArgs("M1").
			WillReturnRows(sqlmock.NewRows(productCols).AddRow("M1", "Laptop", int64(0), nil, 900.0, arrived))
		s.mock.ExpectRollback()

		rec := s.do(http.MethodPost, "/api/v1/carts", "alice", `{"model":"M1"}`)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("missing model", func(t *testing.T) {
		s := newTestServer(t)
		s.as("alice", models.RoleCustomer)

		rec := s.do(http.MethodPost, "/api/v1/carts", "alice", `{}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})
}

func TestCheckoutEmptyCart(t *testing.T) {
	s := newTestServer(t)
	s.as("alice", models.RoleCustomer)
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(qCart).WithArgs("alice").
		WillReturnRows(sqlmock.NewRows(cartCols).AddRow(int64(7), "alice", false, nil, 0.0))
	s.mock.ExpectQuery(qLines).WithArgs(int64(7)).WillReturnRows(sqlmock.NewRows(lineCols))
	s.mock.ExpectRollback()

	rec := s.do(http.MethodPatch, "/api/v1/carts", "alice", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRemoveWithoutCart(t *testing.T) {
	s := newTestServer(t)
	s.as("alice", models.RoleCustomer)
	s.mock.ExpectBegin()
	s.mock.ExpectQuery(qCart).WithArgs("alice").WillReturnRows(sqlmock.NewRows(cartCols))
	s.mock.ExpectRollback()

	rec := s.do(http.MethodDelete, "/api/v1/carts/products/M1", "alice", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestProductHandlers(t *testing.T) {
	t.Run("invalid category", func(t *testing.T) {
		s := newTestServer(t)
		s.as("mario", models.RoleManager)

		rec := s.do(http.MethodGet, "/api/v1/products?category=Tablet", "mario", "")

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("malformed restock date", func(t *testing.T) {
		s := newTestServer(t)
		s.as("mario", models.RoleManager)

		rec := s.do(http.MethodPatch, "/api/v1/products/M1", "mario", `{"quantity":3,"changeDate":"15/01/2024"}`)

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	})

	t.Run("sell more than stock", func(t *testing.T) {
		s := newTestServer(t)
		s.as("mario", models.RoleManager)
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(qProduct).WithArgs("M1").
			WillReturnRows(sqlmock.NewRows(productCols).AddRow("M1", "Laptop", int64(1), nil, 900.0, arrived))
		s.mock.ExpectRollback()

		rec := s.do(http.MethodPatch, "/api/v1/products/M1/sell", "mario", `{"quantity":2}`)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("restock", func(t *testing.T) {
		s := newTestServer(t)
		s.as("mario", models.RoleManager)
		s.mock.ExpectBegin()
		s.mock.ExpectQuery(qProduct).WithArgs("M1").
			WillReturnRows(sqlmock.NewRows(productCols).AddRow("M1", "Laptop", int64(1), nil, 900.0, arrived))
		s.mock.ExpectExec(regexp.QuoteMeta("UPDATE products SET quantity = quantity + ?")).
			WithArgs(4, "M1").WillReturnResult(sqlmock.NewResult(0, 1))
		s.mock.ExpectCommit()

		rec := s.do(http.MethodPatch, "/api/v1/products/M1", "mario", `{"quantity":4,"changeDate":"2024-02-01"}`)

		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"quantity":5}`, rec.Body.String())
	})

	t.Run("available is open to customers", func(t *testing.T) {
		s := newTestServer(t)
		s.as("alice", models.RoleCustomer)
		s.mock.ExpectQuery(regexp.QuoteMeta("WHERE quantity > 0 ORDER BY model")).
			WillReturnRows(sqlmock.NewRows(productCols).AddRow("M1", "Laptop", int64(1), "14in", 900.0, arrived))

		rec := s.do(http.MethodGet, "/api/v1/products/available", "alice", "")

		require.Equal(t, http.StatusOK, rec.Code)
		var products []models.Product
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &products))
		require.Len(t, products, 1)
		assert.Equal(t, "14in", products[0].Details)
	})
}

func TestCreateUser(t *testing.T) {
	s := newTestServer(t)
	s.mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(0, 1))

	rec := s.do(http.MethodPost, "/api/v1/users", "", `{"username":"alice","name":"A","surname":"B","role":"Customer"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: M1", services.ErrProductNotFound), http.StatusNotFound},
		{services.ErrCartNotFound, http.StatusNotFound},
		{services.ErrProductNotInCart, http.StatusNotFound},
		{services.ErrProductAlreadyExists, http.StatusConflict},
		{services.ErrEmptyProductStock, http.StatusConflict},
		{fmt.Errorf("%w: M1", services.ErrLowProductStock), http.StatusConflict},
		{services.ErrArrivalDate, http.StatusBadRequest},
		{services.ErrEmptyCart, http.StatusBadRequest},
		{services.ErrInvalidQuantity, http.StatusUnprocessableEntity},
		{services.ErrInvalidCategory, http.StatusUnprocessableEntity},
		{errUnauthenticated, http.StatusUnauthorized},
		{errForbidden, http.StatusForbidden},
		{errors.New("failed to get product: connection refused"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestParseDate(t *testing.T) {
	d, err := parseDate("")
	require.NoError(t, err)
	assert.Nil(t, d)

	d, err = parseDate("2024-01-15")
	require.NoError(t, err)
	assert.Equal(t, arrived, *d)

	_, err = parseDate("yesterday")
	assert.ErrorIs(t, err, errInvalidInput)
}
