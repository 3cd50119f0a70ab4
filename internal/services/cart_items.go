package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ezelectronics/ezelectronics-go-app/internal/metrics"
	"github.com/ezelectronics/ezelectronics-go-app/internal/models"
	"github.com/shopspring/decimal"
)

// lineItemStore builds cart views from product_in_cart joined with the
// catalog. Category and price always come from the current product row.
type lineItemStore struct {
	metrics *metrics.AppMetrics
}

const lineItemSelect = `
	SELECT pic.model, pic.quantity, p.category, p.selling_price
	FROM product_in_cart pic
	JOIN products p ON p.model = pic.model
`

func scanLineItem(row rowScanner) (models.ProductInCart, error) {
	var item models.ProductInCart
	err := row.Scan(&item.Model, &item.Quantity, &item.Category, &item.Price)
	return item, err
}

// list returns the line items of a cart ordered by model
func (s *lineItemStore) list(ctx context.Context, q querier, cartID int64) ([]models.ProductInCart, error) {
	query := lineItemSelect + "WHERE pic.cart_id = ? ORDER BY pic.model"

	start := time.Now()
	rows, err := q.QueryContext(ctx, query, cartID)
	s.metrics.RecordDBQuery(ctx, "SELECT", "product_in_cart", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get cart items: %w", err)
	}
	defer rows.Close()

	items := []models.ProductInCart{}
	for rows.Next() {
		item, err := scanLineItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan cart item: %w", err)
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// lookup returns one line item. When the model is not in the cart it
// returns a zero-quantity placeholder if createIfAbsent is set and
// ErrProductNotInCart otherwise.
func (s *lineItemStore) lookup(ctx context.Context, q querier, cartID int64, model string, createIfAbsent bool) (*models.ProductInCart, error) {
	query := lineItemSelect + "WHERE pic.cart_id = ? AND pic.model = ?"

	start := time.Now()
	item, err := scanLineItem(q.QueryRowContext(ctx, query, cartID, model))
	s.metrics.RecordDBQuery(ctx, "SELECT", "product_in_cart", query, start, err == nil || errors.Is(err, sql.ErrNoRows))

	if errors.Is(err, sql.ErrNoRows) {
		if createIfAbsent {
			return &models.ProductInCart{Model: model}, nil
		}
		return nil, fmt.Errorf("%w: %s", ErrProductNotInCart, model)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get cart item: %w", err)
	}
	return &item, nil
}

// recomputeTotal sums price * quantity over the cart's current line items
// and stores the result on the cart row. It returns the total and the
// number of units in the cart.
func (s *lineItemStore) recomputeTotal(ctx context.Context, q querier, cartID int64) (float64, int, error) {
	items, err := s.list(ctx, q, cartID)
	if err != nil {
		return 0, 0, err
	}

	total := sumLineItems(items)
	if err := s.writeTotal(ctx, q, cartID, total); err != nil {
		return 0, 0, err
	}
	return total.InexactFloat64(), countUnits(items), nil
}

func (s *lineItemStore) writeTotal(ctx context.Context, q querier, cartID int64, total decimal.Decimal) error {
	start := time.Now()
	query := "UPDATE carts SET total = ? WHERE cart_id = ?"
	_, err := q.ExecContext(ctx, query, total.StringFixed(2), cartID)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "carts", query, start, err == nil)
	if err != nil {
		return fmt.Errorf("failed to update cart total: %w", err)
	}
	return nil
}

func sumLineItems(items []models.ProductInCart) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total.Round(2)
}

func countUnits(items []models.ProductInCart) int {
	units := 0
	for _, item := range items {
		units += item.Quantity
	}
	return units
}

// revenueByCategory splits a cart's value across product categories
func revenueByCategory(items []models.ProductInCart) map[string]float64 {
	byCategory := make(map[string]decimal.Decimal)
	for _, item := range items {
		line := decimal.NewFromFloat(item.Price).Mul(decimal.NewFromInt(int64(item.Quantity)))
		byCategory[item.Category] = byCategory[item.Category].Add(line)
	}

	revenue := make(map[string]float64, len(byCategory))
	for category, amount := range byCategory {
		revenue[category] = amount.Round(2).InexactFloat64()
	}
	return revenue
}
