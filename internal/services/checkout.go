package services

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ezelectronics/ezelectronics-go-app/internal/models"
	"go.uber.org/zap"
)

// Checkout pays the customer's open cart. Every line is validated against
// live stock before any stock is touched; decrements, the final total and
// the paid flag then commit together or not at all.
func (s *CartService) Checkout(ctx context.Context, user *models.User) error {
	var (
		cartID  int64
		items   []models.ProductInCart
		revenue map[string]float64
		total   float64
	)

	err := s.withCustomerLock(ctx, user.Username, func(tx *sql.Tx) error {
		cart, found, err := s.findOpenCart(ctx, tx, user.Username, true)
		if err != nil {
			return err
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrCartNotFound, user.Username)
		}
		cartID = cart.ID

		items, err = s.items.list(ctx, tx, cart.ID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("%w: %s", ErrEmptyCart, user.Username)
		}

		// items are ordered by model, so product rows are locked in a
		// stable order across concurrent checkouts
		for _, item := range items {
			product, err := s.ledger.lookup(ctx, tx, item.Model, true)
			if err != nil {
				return err
			}
			if product.Quantity == 0 {
				return fmt.Errorf("%w: %s", ErrEmptyProductStock, item.Model)
			}
			if product.Quantity < item.Quantity {
				return fmt.Errorf("%w: %s has %d, cart holds %d", ErrLowProductStock, item.Model, product.Quantity, item.Quantity)
			}
		}

		today := dateOnly(s.now())
		for _, item := range items {
			if _, err := s.ledger.sell(ctx, tx, item.Model, item.Quantity, today); err != nil {
				return err
			}
		}

		amount := sumLineItems(items)
		start := time.Now()
		query := "UPDATE carts SET paid = 1, payment_date = ?, total = ? WHERE cart_id = ? AND paid = 0"
		_, err = tx.ExecContext(ctx, query, today, amount.StringFixed(2), cart.ID)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "carts", query, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to mark cart paid: %w", err)
		}

		total = amount.InexactFloat64()
		revenue = revenueByCategory(items)
		return nil
	})
	if err != nil {
		s.logger.Info("checkout rejected", zap.String("customer", user.Username), zap.Error(err))
		return err
	}

	s.metrics.RecordCheckout(ctx, revenue)
	s.metrics.RecordCartItems(ctx, user.Username, 0)
	s.logger.Info("cart checked out",
		zap.String("customer", user.Username),
		zap.Int64("cart_id", cartID),
		zap.Int("lines", len(items)),
		zap.Float64("total", total),
	)
	return nil
}
