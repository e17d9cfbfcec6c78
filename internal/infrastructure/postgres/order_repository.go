package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domain "github.com/greenmart/checkout-core/internal/domain/order"
)

type OrderRepository struct {
	db *sql.DB
}

func NewOrderRepository(db *sql.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

const orderColumns = `id, user_id, items, shipping_address, payment_method, status, stock_reserved, total_amount, created_at, updated_at`

func (r *OrderRepository) Insert(ctx context.Context, order *domain.Order) error {
	items, address, err := marshalOrder(order)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		order.ID, order.UserID, items, address, order.PaymentMethod,
		string(order.Status), order.StockReserved, order.TotalAmount, order.CreatedAt, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("order repository: insert: %w", err)
	}
	return nil
}

func (r *OrderRepository) Get(ctx context.Context, id string) (*domain.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	order, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return order, err
}

func (r *OrderRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("order repository: list: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func (r *OrderRepository) Update(ctx context.Context, order *domain.Order) error {
	items, address, err := marshalOrder(order)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE orders
		SET items = $2, shipping_address = $3, payment_method = $4,
		    status = $5, total_amount = $6, updated_at = $7
		WHERE id = $1`,
		order.ID, items, address, order.PaymentMethod,
		string(order.Status), order.TotalAmount, order.UpdatedAt)
	if err != nil {
		return fmt.Errorf("order repository: update: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *OrderRepository) ListStale(ctx context.Context, status domain.Status, before time.Time, limit int) ([]*domain.Order, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+orderColumns+` FROM orders
		WHERE status = $1 AND updated_at < $2
		ORDER BY updated_at ASC
		LIMIT $3`,
		string(status), before, limit)
	if err != nil {
		return nil, fmt.Errorf("order repository: list stale: %w", err)
	}
	defer rows.Close()
	return collectOrders(rows)
}

func marshalOrder(order *domain.Order) (items, address []byte, err error) {
	if order == nil || order.ID == "" {
		return nil, nil, fmt.Errorf("order repository: id is required")
	}
	items, err = json.Marshal(order.Items)
	if err != nil {
		return nil, nil, fmt.Errorf("order repository: marshal items: %w", err)
	}
	address, err = json.Marshal(order.ShippingAddress)
	if err != nil {
		return nil, nil, fmt.Errorf("order repository: marshal address: %w", err)
	}
	return items, address, nil
}

func scanOrder(row rowScanner) (*domain.Order, error) {
	var (
		order   domain.Order
		status  string
		items   []byte
		address []byte
	)
	err := row.Scan(
		&order.ID,
		&order.UserID,
		&items,
		&address,
		&order.PaymentMethod,
		&status,
		&order.StockReserved,
		&order.TotalAmount,
		&order.CreatedAt,
		&order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(items, &order.Items); err != nil {
		return nil, fmt.Errorf("order repository: unmarshal items: %w", err)
	}
	if err := json.Unmarshal(address, &order.ShippingAddress); err != nil {
		return nil, fmt.Errorf("order repository: unmarshal address: %w", err)
	}
	order.Status = domain.Status(status)
	return &order, nil
}

func collectOrders(rows *sql.Rows) ([]*domain.Order, error) {
	var out []*domain.Order
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, order)
	}
	return out, rows.Err()
}
