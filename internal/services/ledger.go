package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ezelectronics/ezelectronics-go-app/internal/db"
	"github.com/ezelectronics/ezelectronics-go-app/internal/metrics"
	"github.com/ezelectronics/ezelectronics-go-app/internal/models"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

const productColumns = "model, category, quantity, details, selling_price, arrival_date"

// LedgerService owns the catalog and is the only writer of product stock
type LedgerService struct {
	db      *db.DB
	items   *lineItemStore
	metrics *metrics.AppMetrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewLedgerService creates a new ledger service
func NewLedgerService(db *db.DB, metrics *metrics.AppMetrics, logger *zap.Logger) *LedgerService {
	return &LedgerService{
		db:      db,
		items:   &lineItemStore{metrics: metrics},
		metrics: metrics,
		logger:  logger,
		now:     time.Now,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (models.Product, error) {
	var p models.Product
	var details sql.NullString
	err := row.Scan(&p.Model, &p.Category, &p.Quantity, &details, &p.SellingPrice, &p.ArrivalDate)
	p.Details = details.String
	return p, err
}

// lookup reads one product. forUpdate locks the row until the surrounding
// transaction ends.
func (s *LedgerService) lookup(ctx context.Context, q querier, model string, forUpdate bool) (*models.Product, error) {
	query := "SELECT " + productColumns + " FROM products WHERE model = ?"
	if forUpdate {
		query += " FOR UPDATE"
	}

	start := time.Now()
	p, err := scanProduct(q.QueryRowContext(ctx, query, model))
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil || errors.Is(err, sql.ErrNoRows))

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, model)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}
	return &p, nil
}

func (s *LedgerService) list(ctx context.Context, where string, args ...any) ([]models.Product, error) {
	query := "SELECT " + productColumns + " FROM products" + where + " ORDER BY model"

	start := time.Now()
	rows, err := s.db.QueryContext(ctx, query, args...)
	s.metrics.RecordDBQuery(ctx, "SELECT", "products", query, start, err == nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []models.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// GetByModel returns a product by model
func (s *LedgerService) GetByModel(ctx context.Context, model string) (*models.Product, error) {
	p, err := s.lookup(ctx, s.db, model, false)
	if err != nil {
		return nil, err
	}

	s.metrics.ProductsViewed.Add(ctx, 1, metric.WithAttributes(s.metrics.WithServiceName([]attribute.KeyValue{
		attribute.String("product_model", p.Model),
		attribute.String("product_category", p.Category),
	})...))
	return p, nil
}

// GetAll returns every product in the catalog
func (s *LedgerService) GetAll(ctx context.Context) ([]models.Product, error) {
	return s.list(ctx, "")
}

// GetByCategory returns the products of one category
func (s *LedgerService) GetByCategory(ctx context.Context, category string) ([]models.Product, error) {
	if !models.ValidCategory(category) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidCategory, category)
	}
	return s.list(ctx, " WHERE category = ?", category)
}

// GetAvailable returns products with stock left, optionally narrowed to a
// category or a single model. An unknown model is an error, a sold-out one
// yields an empty list.
func (s *LedgerService) GetAvailable(ctx context.Context, category, model string) ([]models.Product, error) {
	switch {
	case model != "":
		p, err := s.lookup(ctx, s.db, model, false)
		if err != nil {
			return nil, err
		}
		if p.Quantity == 0 {
			return []models.Product{}, nil
		}
		return []models.Product{*p}, nil
	case category != "":
		if !models.ValidCategory(category) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidCategory, category)
		}
		return s.list(ctx, " WHERE quantity > 0 AND category = ?", category)
	default:
		return s.list(ctx, " WHERE quantity > 0")
	}
}

// Register adds a product to the catalog. A zero ArrivalDate means today.
func (s *LedgerService) Register(ctx context.Context, p models.Product) error {
	if !models.ValidCategory(p.Category) {
		return fmt.Errorf("%w: %s", ErrInvalidCategory, p.Category)
	}
	if p.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if p.SellingPrice <= 0 {
		return ErrInvalidPrice
	}

	today := dateOnly(s.now())
	arrival := today
	if !p.ArrivalDate.IsZero() {
		arrival = dateOnly(p.ArrivalDate)
	}
	if arrival.After(today) {
		return fmt.Errorf("%w: arrival %s", ErrArrivalDate, arrival.Format(time.DateOnly))
	}

	start := time.Now()
	query := "INSERT INTO products (" + productColumns + ") VALUES (?, ?, ?, ?, ?, ?)"
	_, err := s.db.ExecContext(ctx, query,
		p.Model, p.Category, p.Quantity,
		sql.NullString{String: p.Details, Valid: p.Details != ""},
		p.SellingPrice, arrival,
	)
	s.metrics.RecordDBQuery(ctx, "INSERT", "products", query, start, err == nil)
	if err != nil {
		if isDuplicateEntry(err) {
			return fmt.Errorf("%w: %s", ErrProductAlreadyExists, p.Model)
		}
		return fmt.Errorf("failed to register product: %w", err)
	}

	s.metrics.RecordInventory(ctx, p.Model, p.Category, p.Quantity)
	s.logger.Info("product registered",
		zap.String("model", p.Model),
		zap.String("category", p.Category),
		zap.Int("quantity", p.Quantity),
	)
	return nil
}

// checkChangeDate rejects dates before the product arrived or after today
func (s *LedgerService) checkChangeDate(p *models.Product, date time.Time) error {
	if date.Before(dateOnly(p.ArrivalDate)) || date.After(dateOnly(s.now())) {
		return fmt.Errorf("%w: %s on %s", ErrArrivalDate, p.Model, date.Format(time.DateOnly))
	}
	return nil
}

// resolveDate maps an optional request date to a calendar day, defaulting to today
func (s *LedgerService) resolveDate(date *time.Time) time.Time {
	if date == nil || date.IsZero() {
		return dateOnly(s.now())
	}
	return dateOnly(*date)
}

// Restock adds delta units to a product and returns the new quantity
func (s *LedgerService) Restock(ctx context.Context, model string, delta int, changeDate *time.Time) (int, error) {
	if delta <= 0 {
		return 0, ErrInvalidQuantity
	}
	date := s.resolveDate(changeDate)

	var product *models.Product
	var newQuantity int
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		product, err = s.lookup(ctx, tx, model, true)
		if err != nil {
			return err
		}
		if err := s.checkChangeDate(product, date); err != nil {
			return err
		}

		start := time.Now()
		query := "UPDATE products SET quantity = quantity + ? WHERE model = ?"
		_, err = tx.ExecContext(ctx, query, delta, model)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "products", query, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to restock product: %w", err)
		}
		newQuantity = product.Quantity + delta
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.RecordInventory(ctx, model, product.Category, newQuantity)
	s.logger.Info("product restocked", zap.String("model", model), zap.Int("delta", delta), zap.Int("quantity", newQuantity))
	return newQuantity, nil
}

// Sell removes qty units from a product and returns the new quantity
func (s *LedgerService) Sell(ctx context.Context, model string, qty int, sellDate *time.Time) (int, error) {
	if qty <= 0 {
		return 0, ErrInvalidQuantity
	}
	date := s.resolveDate(sellDate)

	var newQuantity int
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		var err error
		newQuantity, err = s.sell(ctx, tx, model, qty, date)
		return err
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("product sold", zap.String("model", model), zap.Int("sold", qty), zap.Int("quantity", newQuantity))
	return newQuantity, nil
}

// sell decrements stock inside the caller's transaction. The guarded
// UPDATE keeps quantity non-negative even if the row was not locked.
func (s *LedgerService) sell(ctx context.Context, q querier, model string, qty int, date time.Time) (int, error) {
	product, err := s.lookup(ctx, q, model, true)
	if err != nil {
		return 0, err
	}
	if product.Quantity == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyProductStock, model)
	}
	if err := s.checkChangeDate(product, date); err != nil {
		return 0, err
	}
	if product.Quantity < qty {
		return 0, fmt.Errorf("%w: %s has %d, requested %d", ErrLowProductStock, model, product.Quantity, qty)
	}

	start := time.Now()
	query := "UPDATE products SET quantity = quantity - ? WHERE model = ? AND quantity >= ?"
	result, err := q.ExecContext(ctx, query, qty, model, qty)
	s.metrics.RecordDBQuery(ctx, "UPDATE", "products", query, start, err == nil)
	if err != nil {
		return 0, fmt.Errorf("failed to sell product: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return 0, fmt.Errorf("%w: %s", ErrLowProductStock, model)
	}

	newQuantity := product.Quantity - qty
	s.metrics.RecordInventory(ctx, model, product.Category, newQuantity)
	return newQuantity, nil
}

// Delete removes one product. Its line items go with it; open carts that
// held it get their totals recomputed, paid carts keep their stored total.
func (s *LedgerService) Delete(ctx context.Context, model string) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := s.lookup(ctx, tx, model, true); err != nil {
			return err
		}

		start := time.Now()
		query := `
			SELECT pic.cart_id
			FROM product_in_cart pic
			JOIN carts c ON c.cart_id = pic.cart_id
			WHERE pic.model = ? AND c.paid = 0
		`
		rows, err := tx.QueryContext(ctx, query, model)
		s.metrics.RecordDBQuery(ctx, "SELECT", "product_in_cart", query, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to find carts holding product: %w", err)
		}
		var openCarts []int64
		for rows.Next() {
			var cartID int64
			if err := rows.Scan(&cartID); err != nil {
				rows.Close()
				return fmt.Errorf("failed to scan cart id: %w", err)
			}
			openCarts = append(openCarts, cartID)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return fmt.Errorf("failed to find carts holding product: %w", err)
		}

		start = time.Now()
		deleteQuery := "DELETE FROM products WHERE model = ?"
		_, err = tx.ExecContext(ctx, deleteQuery, model)
		s.metrics.RecordDBQuery(ctx, "DELETE", "products", deleteQuery, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to delete product: %w", err)
		}

		for _, cartID := range openCarts {
			if _, _, err := s.items.recomputeTotal(ctx, tx, cartID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("product deleted", zap.String("model", model))
	return nil
}

// DeleteAll empties the catalog and every cart's line items
func (s *LedgerService) DeleteAll(ctx context.Context) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		start := time.Now()
		query := "DELETE FROM products"
		_, err := tx.ExecContext(ctx, query)
		s.metrics.RecordDBQuery(ctx, "DELETE", "products", query, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to delete products: %w", err)
		}

		start = time.Now()
		resetQuery := "UPDATE carts SET total = 0 WHERE paid = 0"
		_, err = tx.ExecContext(ctx, resetQuery)
		s.metrics.RecordDBQuery(ctx, "UPDATE", "carts", resetQuery, start, err == nil)
		if err != nil {
			return fmt.Errorf("failed to reset open cart totals: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("catalog cleared")
	return nil
}
