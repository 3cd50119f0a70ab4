package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ezelectronics/ezelectronics-go-app/internal/db"
	"github.com/ezelectronics/ezelectronics-go-app/internal/lock"
	"github.com/ezelectronics/ezelectronics-go-app/internal/metrics"
	"github.com/ezelectronics/ezelectronics-go-app/internal/models"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const cartColumns = "cart_id, customer, paid, payment_date, total"

// CartService handles cart-related operations. Each customer has at most
// one unpaid cart; every mutation runs under the customer's lock and in a
// single transaction.
type CartService struct {
	db      *db.DB
	ledger  *LedgerService
	items   *lineItemStore
	locker  lock.Locker
	metrics *metrics.AppMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewCartService creates a new cart service
func NewCartService(db *db.DB, ledger *LedgerService, locker lock.Locker, metrics *metrics.AppMetrics, logger *zap.Logger) *CartService {
	return &CartService{
		db:      db,
		ledger:  ledger,
		items:   &lineItemStore{metrics: metrics},
		locker:  locker,
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

func scanCart(row rowScanner) (models.Cart, error) {
	var cart models.Cart
	var paymentDate sql.NullTime
	err := row.Scan(&cart.ID, &cart.Customer, &cart.Paid, &paymentDate, &cart.Total)
	if paymentDate.Valid {
		t := paymentDate.Time
		cart.PaymentDate = &t
	}
	return cart, err
}

// withCustomerLock serializes fn against other mutations of the same
// customer's cart and runs it in a transaction
func (s *CartService) withCustomerLock(ctx context.Context, customer string, fn func(tx *sql.Tx) error) error {
	unlock, err := s.locker.Lock(ctx, "cart:"+customer)
	if err != nil {
		return fmt.Errorf("failed to lock cart: %w", err)
	}
	defer unlock()

	return s.db.WithTx(ctx, fn)
}

// findOpenCart returns the customer's unpaid cart row without line items.
// found is false when the customer has no open cart stored.
func (s *CartService) findOpenCart(ctx context.Context, q querier, customer string, forUpdate bool) (*models.Cart, bool, error) {
	query := "SELECT " + cartColumns + " FROM carts WHERE customer = ? AND paid = 0"
	if forUpdate {
		query += " FOR UPDATE"
	}

	start := time.Now()
	cart, err := scanCart(q.QueryRowContext(ctx, query, customer))
	s.metrics.RecordDBQuery(ctx, "SELECT", "carts", query, start, err == nil || errors.Is(err, sql.ErrNoRows))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get cart: %w", err)
	}
	return &cart, true, nil
}

// createOpenCart inserts an empty unpaid cart. If another writer created
// one first the unique key on open carts rejects the insert and the
// existing cart is returned instead.
func (s *CartService) createOpenCart(ctx context.Context, q querier, customer string) (*models.Cart, error) {
	start := time.Now()
	query := "INSERT INTO carts (customer, paid, total) VALUES (?, 0, 0)"
	result, err := q.ExecContext(ctx, query, customer)
	s.metrics.RecordDBQuery(ctx, "INSERT", "carts", query, start, err == nil)

	if isDuplicateEntry(err) {
		cart, found, err := s.findOpenCart(ctx, q, customer, true)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("failed to create cart: open cart for %s vanished", customer)
		}
		return cart, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create cart: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get cart ID: %w", err)
	}

	s.logger.Debug("open cart created", zap.String("customer", customer), zap.Int64("cart_id", id))
	return &models.Cart{ID: id, Customer: customer, Products: []models.ProductInCart{}}, nil
}

// GetCart returns the customer's open cart with its line items. A
// customer without an open cart gets an empty cart that is not stored.
func (s *CartService) GetCart(ctx context.Context, user *models.User) (*models.Cart, error) {
	cart, found, err := s.findOpenCart(ctx, s.db, user.Username, false)
	if err != nil {
		return nil, err
	}
	if !found {
		return models.EmptyCart(user.Username), nil
	}

	cart.Products, err = s.items.list(ctx, s.db, cart.ID)
	if err != nil {
		return nil, err
	}
	return cart, nil
}

// AddProduct adds one unit of model to the customer's open cart, creating
// the cart on first use
func (s *CartService) AddProduct(ctx context.Context, user *models.User, model string) error {
	var quantity, units int
	var total float64

	err := s.withCustomerLock(ctx, user.Username, func(tx *sql.Tx) error {
		product, err := s.ledger.lookup(ctx, tx, model, false)
		if err != nil {
			return err
		}
		if product.Quantity == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyProductStock, model)
		}

		cart, found, err := s.findOpenCart(ctx, tx, user.Username, true)
		if err != nil {
			return err
		}
		if !found {
			if cart, err = s.createOpenCart(ctx, tx, user.Username); err != nil {
				return err
			}
		}

		item, err := s.items.lookup(ctx, tx, cart.ID, model, true)
		if err != nil {
			return err
		}
		if item.Quantity == 0 {
			err = s.insertLineItem(ctx, tx, cart.ID, model)
		} else {
			err = s.changeLineQuantity(ctx, tx, cart.ID, model, 1)
		}
		if err != nil {
			return err
		}
		quantity = item.Quantity + 1

		total, units, err = s.items.recomputeTotal(ctx, tx, cart.ID)
		return err
	})
	if err != nil {
		return err
	}

	s.metrics.RecordCartItems(ctx, user.Username, units)
	s.logger.Info("product added to cart",
		zap.String("customer", user.Username),
		zap.String("model", model),
		zap.Int("quantity", quantity),
		zap.Float64("total", total),
	)
	return nil
}

// RemoveProduct removes one unit of model from the customer's open cart
func (s *CartService) RemoveProduct(ctx context.Context, user *models.User, model string) error {
	var units int
	var total float64

	err := s.withCustomerLock(ctx, user.Username, func(tx *sql.Tx) error {
		cart, found, err := s.findOpenCart(ctx, tx, user.Username, true)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrCartNotFound, user.Username)
		}

		lines, err := s.items.list(ctx, tx, cart.ID)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyCart, user.Username)
		}

		if _, err := s.ledger.lookup(ctx, tx, model, false); err != nil {
			return err
		}

		item, err := s.items.lookup(ctx, tx, cart.ID, model, false)
		if err != nil {
			return err
		}
		if item.Quantity == 1 {
			err = s.deleteLineItem(ctx, tx, cart.ID, model)
		} else {
			err = s.changeLineQuantity(ctx, tx, cart.ID, model, -1)
		}
		if err != nil {
			return err
		}

		total, units, err = s.items.recomputeTotal(ctx, tx, cart.ID)
		return err
	})
	if err != nil {
		return err
	}

	s.metrics.RecordCartItems(ctx, user.Username, units)
	s.logger.Info("product removed from cart",
		zap.String("customer", user.Username),
		zap.String("model", model),
		zap.Float64("total", total),
	)
	return nil
}

// ClearCart empties the customer's open cart
func (s *CartService) ClearCart(ctx context.Context, user *models.User) error {
	err := s.withCustomerLock(ctx, user.Username, func(tx *sql.Tx) error {
		cart, found, err := s.findOpenCart(ctx, tx, user.Username, true)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrCartNotFound, user.Username)
		}

		start := time.Now()
		query := "DELETE FROM product_in_cart WHERE cart_id = ?"
		_, err = tx.ExecContext(ctx, query, cart.ID)
		s.metrics.RecordDBQuery(ctx, "DELETE", "product_in_cart", query, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to clear cart: %w", err)
		}

		return s.items.writeTotal(ctx, tx, cart.ID, decimal.Zero)
	})
	if err != nil {
		return err
	}

	s.metrics.RecordCartItems(ctx, user.Username, 0)
	s.logger.Info("cart cleared", zap.String("customer", user.Username))
	return nil
}

// GetPaidCarts returns the customer's checked-out carts
func (s *CartService) GetPaidCarts(ctx context.Context, user *models.User) ([]models.Cart, error) {
	return s.listCarts(ctx, " WHERE customer = ? AND paid = 1", user.Username)
}

// GetAllCarts returns every cart of every customer, paid or not
func (s *CartService) GetAllCarts(ctx context.Context) ([]models.Cart, error) {
	return s.listCarts(ctx, "")
}

// DeleteAllCarts removes every cart; line items cascade
func (s *CartService) DeleteAllCarts(ctx context.Context) error {
	start := time.Now()
	query := "DELETE FROM carts"
	_, err := s.db.ExecContext(ctx, query)
	s.metrics.RecordDBQuery(ctx, "DELETE", "carts", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to delete carts: %w", err)
	}

	s.logger.Info("all carts deleted")
	return nil
}

func (s *CartService) listCarts(ctx context.Context, where string, args ...any) ([]models.Cart, error) {
	query := "SELECT " + cartColumns + " FROM carts" + where + " ORDER BY cart_id"

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "carts", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query carts: %w", err)
	}

	carts := []models.Cart{}
	for rows.Next() {
		cart, err := scanCart(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan cart: %w", err)
		}
		carts = append(carts, cart)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query carts: %w", err)
	}

	for i := range carts {
		if carts[i].Products, err = s.items.list(ctx, s.db, carts[i].ID); err != nil {
			return nil, err
		}
	}
	return carts, nil
}

func (s *CartService) insertLineItem(ctx context.Context, q querier, cartID int64, model string) error {
	start := time.Now()
	query := "INSERT INTO product_in_cart (cart_id, model, quantity) VALUES (?, ?, 1)"
	_, err := q.ExecContext(ctx, query, cartID, model)
	s.metrics.RecordDBQuery(ctx, "INSERT", "product_in_cart", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to add item to cart: %w", err)
	}
	return nil
}

func (s *CartService) changeLineQuantity(ctx context.Context, q querier, cartID int64, model string, delta int) error {
	start := time.Now()
	query := "UPDATE product_in_cart SET quantity = quantity + ? WHERE cart_id = ? AND model = ?"
	_, err := q.ExecContext(ctx, query, delta, cartID, model)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "product_in_cart", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to update cart item: %w", err)
	}
	return nil
}

func (s *CartService) deleteLineItem(ctx context.Context, q querier, cartID int64, model string) error {
	start := time.Now()
	query := "DELETE FROM product_in_cart WHERE cart_id = ? AND model = ?"
	_, err := q.ExecContext(ctx, query, cartID, model)
	s.metrics.RecordDBQuery(ctx, "DELETE", "product_in_cart", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to remove item from cart: %w", err)
	}
	return nil
}

// MonitorOpenCarts periodically publishes the open cart gauge and the
// connection pool gauges until ctx is done
func (s *CartService) MonitorOpenCarts(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		query := `
			SELECT COUNT(DISTINCT c.cart_id)
			FROM carts c
			JOIN product_in_cart pic ON pic.cart_id = c.cart_id
			WHERE c.paid = 0
		`
		start := time.Now()
		var count int64
		err := s.db.QueryRowContext(ctx, query).Scan(&count)
		s.metrics.RecordDBQuery(ctx, "SELECT", "carts", query, start, err == nil)
		if err != nil {
			s.logger.Warn("failed to count open carts", zap.Error(err))
			continue
		}
		s.metrics.OpenCartsCount.Record(ctx, count, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{})...))
		s.db.RecordPoolStats(ctx)
	}
}
