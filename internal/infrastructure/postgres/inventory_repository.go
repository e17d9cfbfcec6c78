package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/greenmart/checkout-core/internal/domain/inventory"
)

// InventoryRepository stores stock records in Postgres. Each mutation is a
// single conditional UPDATE, so the availability check and the counter
// change commit atomically at the row level; no application-side lock is
// needed and concurrent callers against the same product serialize on the
// row.
type InventoryRepository struct {
	db               *sql.DB
	defaultThreshold int
}

func NewInventoryRepository(db *sql.DB, defaultThreshold int) *InventoryRepository {
	return &InventoryRepository{db: db, defaultThreshold: defaultThreshold}
}

const inventoryColumns = `product_id, quantity, reserved_quantity, low_stock_threshold, created_at, updated_at`

func (r *InventoryRepository) Get(ctx context.Context, productID string) (*domain.Record, error) {
	if err := r.ensureRow(ctx, productID); err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx,
		`SELECT `+inventoryColumns+` FROM inventory WHERE product_id = $1`, productID)
	return scanRecord(row)
}

func (r *InventoryRepository) List(ctx context.Context, lowStockOnly bool) ([]*domain.Record, error) {
	query := `SELECT ` + inventoryColumns + ` FROM inventory ORDER BY updated_at DESC`
	if lowStockOnly {
		query = `SELECT ` + inventoryColumns + ` FROM inventory WHERE quantity <= low_stock_threshold ORDER BY updated_at DESC`
	}

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("inventory repository: list: %w", err)
	}
	defer rows.Close()

	var out []*domain.Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *InventoryRepository) Reserve(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if err := r.ensureRow(ctx, productID); err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE inventory
		SET reserved_quantity = reserved_quantity + $2, updated_at = now()
		WHERE product_id = $1 AND quantity - reserved_quantity >= $2
		RETURNING `+inventoryColumns,
		productID, quantity)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInsufficientStock
	}
	return rec, err
}

func (r *InventoryRepository) Release(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if err := r.ensureRow(ctx, productID); err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE inventory
		SET reserved_quantity = GREATEST(reserved_quantity - $2, 0), updated_at = now()
		WHERE product_id = $1
		RETURNING `+inventoryColumns,
		productID, quantity)
	return scanRecord(row)
}

func (r *InventoryRepository) Confirm(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if err := r.ensureRow(ctx, productID); err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE inventory
		SET reserved_quantity = GREATEST(reserved_quantity - $2, 0),
		    quantity = GREATEST(quantity - $2, 0),
		    updated_at = now()
		WHERE product_id = $1
		RETURNING `+inventoryColumns,
		productID, quantity)
	return scanRecord(row)
}

func (r *InventoryRepository) Reduce(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if err := r.ensureRow(ctx, productID); err != nil {
		return nil, err
	}
	row := r.db.QueryRowContext(ctx, `
		UPDATE inventory
		SET quantity = quantity - $2, updated_at = now()
		WHERE product_id = $1 AND quantity - reserved_quantity >= $2
		RETURNING `+inventoryColumns,
		productID, quantity)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrInsufficientStock
	}
	return rec, err
}

func (r *InventoryRepository) SetStock(ctx context.Context, productID string, quantity, lowStockThreshold int) (*domain.Record, error) {
	if quantity < 0 {
		return nil, domain.ErrInvalidQuantity
	}
	threshold := lowStockThreshold
	if threshold < 0 {
		threshold = r.defaultThreshold
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO inventory (product_id, quantity, reserved_quantity, low_stock_threshold, created_at, updated_at)
		VALUES ($1, $2, 0, $3, now(), now())
		ON CONFLICT (product_id) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    low_stock_threshold = CASE WHEN $4 THEN EXCLUDED.low_stock_threshold ELSE inventory.low_stock_threshold END,
		    updated_at = now()
		RETURNING `+inventoryColumns,
		productID, quantity, threshold, lowStockThreshold >= 0)
	return scanRecord(row)
}

func (r *InventoryRepository) AddStock(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	row := r.db.QueryRowContext(ctx, `
		INSERT INTO inventory (product_id, quantity, reserved_quantity, low_stock_threshold, created_at, updated_at)
		VALUES ($1, $2, 0, $3, now(), now())
		ON CONFLICT (product_id) DO UPDATE
		SET quantity = inventory.quantity + EXCLUDED.quantity, updated_at = now()
		RETURNING `+inventoryColumns,
		productID, quantity, r.defaultThreshold)
	return scanRecord(row)
}

func (r *InventoryRepository) ensureRow(ctx context.Context, productID string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO inventory (product_id, quantity, reserved_quantity, low_stock_threshold, created_at, updated_at)
		VALUES ($1, 0, 0, $2, now(), now())
		ON CONFLICT (product_id) DO NOTHING`,
		productID, r.defaultThreshold)
	if err != nil {
		return fmt.Errorf("inventory repository: ensure row: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*domain.Record, error) {
	var rec domain.Record
	err := row.Scan(
		&rec.ProductID,
		&rec.Quantity,
		&rec.ReservedQuantity,
		&rec.LowStockThreshold,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
