package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"tosti/internal/barcode"
	"tosti/internal/models"
	"tosti/internal/store"
)

var maxPrice = decimal.RequireFromString("9999.99")

func (s *Store) CreateCategory(ctx context.Context, caller models.User, name string) (models.ProductCategory, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return models.ProductCategory{}, fmt.Errorf("%w: name is required", store.ErrBadRequest)
	}
	if err := requireGlobal(ctx, s.pool, caller, models.PermChangeProduct); err != nil {
		return models.ProductCategory{}, err
	}
	category := models.ProductCategory{Name: name}
	if err := s.pool.QueryRow(ctx, `
		INSERT INTO product_categories (name) VALUES ($1) RETURNING id
	`, name).Scan(&category.ID); err != nil {
		return models.ProductCategory{}, mapWriteError(err, store.ErrNotFound)
	}
	return category, nil
}

const productColumns = `p.id, p.name, p.category_id, p.available, p.orderable, p.ignore_shift_restrictions, p.max_allowed_per_shift, p.current_price, p.barcode,
	ARRAY(SELECT pv.order_venue_id FROM product_venues pv WHERE pv.product_id = p.id ORDER BY pv.order_venue_id)`

func scanProduct(row scanner) (models.Product, error) {
	var p models.Product
	var categoryID sql.NullInt64
	var maxAllowed sql.NullInt32
	var code sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &categoryID, &p.Available, &p.Orderable, &p.IgnoreShiftRestrictions, &maxAllowed, &p.CurrentPrice, &code, &p.VenueIDs); err != nil {
		return models.Product{}, err
	}
	p.CategoryID = nullInt64Ptr(categoryID)
	p.MaxAllowedPerShift = nullIntPtr(maxAllowed)
	p.Barcode = nullStringPtr(code)
	return p, nil
}

func validateProduct(input store.ProductInput) (store.ProductInput, error) {
	input.Name = strings.TrimSpace(input.Name)
	if input.Name == "" {
		return input, fmt.Errorf("%w: name is required", store.ErrBadRequest)
	}
	if input.CurrentPrice.IsNegative() || input.CurrentPrice.GreaterThan(maxPrice) || !input.CurrentPrice.Equal(input.CurrentPrice.Round(2)) {
		return input, fmt.Errorf("%w: price must be between 0 and 9999.99 with two decimals", store.ErrBadRequest)
	}
	if input.MaxAllowedPerShift != nil && *input.MaxAllowedPerShift < 0 {
		return input, fmt.Errorf("%w: max_allowed_per_shift must not be negative", store.ErrBadRequest)
	}
	if input.Barcode != nil {
		code := strings.TrimSpace(*input.Barcode)
		if code == "" {
			input.Barcode = nil
		} else {
			valid, err := barcode.Validate(code)
			if err != nil {
				return input, fmt.Errorf("%w: %v", store.ErrBadRequest, err)
			}
			input.Barcode = &valid
		}
	}
	return input, nil
}

func (s *Store) CreateProduct(ctx context.Context, input store.ProductInput) (models.Product, error) {
	input, err := validateProduct(input)
	if err != nil {
		return models.Product{}, err
	}
	if err := requireGlobal(ctx, s.pool, input.Caller, models.PermChangeProduct); err != nil {
		return models.Product{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Product{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var id int64
	if err = tx.QueryRow(ctx, `
		INSERT INTO products (name, category_id, available, orderable, ignore_shift_restrictions, max_allowed_per_shift, current_price, barcode)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, input.Name, input.CategoryID, input.Available, input.Orderable, input.IgnoreShiftRestrictions, input.MaxAllowedPerShift, input.CurrentPrice, input.Barcode).Scan(&id); err != nil {
		return models.Product{}, mapWriteError(err, store.ErrNotFound)
	}
	if err = setProductVenues(ctx, tx, id, input.VenueIDs); err != nil {
		return models.Product{}, err
	}
	product, err := getProduct(ctx, tx, id)
	if err != nil {
		return models.Product{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Product{}, err
	}
	return product, nil
}

// UpdateProduct replaces the editable fields. Existing orders keep their
// price snapshot.
func (s *Store) UpdateProduct(ctx context.Context, input store.UpdateProductInput) (models.Product, error) {
	validated, err := validateProduct(input.ProductInput)
	if err != nil {
		return models.Product{}, err
	}
	if err := requireGlobal(ctx, s.pool, validated.Caller, models.PermChangeProduct); err != nil {
		return models.Product{}, err
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return models.Product{}, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	tag, err := tx.Exec(ctx, `
		UPDATE products SET name = $2, category_id = $3, available = $4, orderable = $5,
			ignore_shift_restrictions = $6, max_allowed_per_shift = $7, current_price = $8, barcode = $9
		WHERE id = $1
	`, input.ProductID, validated.Name, validated.CategoryID, validated.Available, validated.Orderable, validated.IgnoreShiftRestrictions, validated.MaxAllowedPerShift, validated.CurrentPrice, validated.Barcode)
	if err != nil {
		return models.Product{}, mapWriteError(err, store.ErrNotFound)
	}
	if tag.RowsAffected() == 0 {
		return models.Product{}, store.ErrNotFound
	}
	if err = setProductVenues(ctx, tx, input.ProductID, validated.VenueIDs); err != nil {
		return models.Product{}, err
	}
	product, err := getProduct(ctx, tx, input.ProductID)
	if err != nil {
		return models.Product{}, err
	}
	if err = tx.Commit(ctx); err != nil {
		return models.Product{}, err
	}
	return product, nil
}

func setProductVenues(ctx context.Context, tx pgx.Tx, productID int64, venueIDs []int64) error {
	if _, err := tx.Exec(ctx, `DELETE FROM product_venues WHERE product_id = $1`, productID); err != nil {
		return err
	}
	for _, venueID := range venueIDs {
		if _, err := tx.Exec(ctx, `
			INSERT INTO product_venues (product_id, order_venue_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, productID, venueID); err != nil {
			return mapWriteError(err, store.ErrNotFound)
		}
	}
	return nil
}

// DeleteProduct fails with ErrInUse while orders reference the product.
func (s *Store) DeleteProduct(ctx context.Context, caller models.User, productID int64) error {
	if err := requireGlobal(ctx, s.pool, caller, models.PermChangeProduct); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, productID)
	if err != nil {
		return mapWriteError(err, store.ErrInUse)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) GetProduct(ctx context.Context, productID int64) (models.Product, error) {
	return getProduct(ctx, s.pool, productID)
}

func getProduct(ctx context.Context, q querier, productID int64) (models.Product, error) {
	product, err := scanProduct(q.QueryRow(ctx, `SELECT `+productColumns+` FROM products p WHERE p.id = $1`, productID))
	if err != nil {
		return models.Product{}, notFound(err)
	}
	return product, nil
}

func (s *Store) ListProducts(ctx context.Context, filter store.ProductFilter) ([]models.Product, error) {
	query := `SELECT ` + productColumns + ` FROM products p WHERE true`
	var args []interface{}
	if filter.OrderVenueID != 0 {
		args = append(args, filter.OrderVenueID)
		query += fmt.Sprintf(" AND EXISTS (SELECT 1 FROM product_venues pv WHERE pv.product_id = p.id AND pv.order_venue_id = $%d)", len(args))
	}
	if filter.OrderableOnly {
		query += " AND p.orderable"
	}
	if filter.AvailableOnly {
		query += " AND p.available"
	}
	query += " ORDER BY p.name ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []models.Product
	for rows.Next() {
		product, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, rows.Err()
}

func (s *Store) ProductByBarcode(ctx context.Context, code string) (models.Product, error) {
	return productByBarcode(ctx, s.pool, code)
}

// productByBarcode matches on the zero-padded form so that an EAN-8 scan
// finds a product stored with its EAN-13 spelling and vice versa.
func productByBarcode(ctx context.Context, q querier, code string) (models.Product, error) {
	valid, err := barcode.Validate(strings.TrimSpace(code))
	if err != nil {
		return models.Product{}, fmt.Errorf("%w: %v", store.ErrBadRequest, err)
	}
	padded, err := barcode.Normalize(valid)
	if err != nil {
		return models.Product{}, fmt.Errorf("%w: %v", store.ErrBadRequest, err)
	}
	product, err := scanProduct(q.QueryRow(ctx, `
		SELECT `+productColumns+` FROM products p
		WHERE p.barcode IS NOT NULL AND lpad(p.barcode, 14, '0') = $1
	`, padded))
	if err != nil {
		return models.Product{}, notFound(err)
	}
	return product, nil
}

func (s *Store) UserCanStillOrder(ctx context.Context, caller models.User, shiftID, productID int64) (models.Allowance, error) {
	if !caller.Authenticated() {
		return models.Allowance{}, store.ErrUnauthenticated
	}
	shift, err := getShift(ctx, s.pool, shiftID)
	if err != nil {
		return models.Allowance{}, err
	}
	product, err := getProduct(ctx, s.pool, productID)
	if err != nil {
		return models.Allowance{}, err
	}
	userID := caller.ID
	tally, err := loadTally(ctx, s.pool, shift, &userID)
	if err != nil {
		return models.Allowance{}, err
	}
	return tally.Allowance(shift, product), nil
}
