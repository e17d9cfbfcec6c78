package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	domain "github.com/greenmart/checkout-core/internal/domain/payment"
)

type TransactionRepository struct {
	db *sql.DB
}

func NewTransactionRepository(db *sql.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

const txnColumns = `id, order_id, user_id, amount, payment_method, status, provider_txn_id, failure_reason, created_at, updated_at`

func (r *TransactionRepository) Insert(ctx context.Context, txn *domain.Transaction) error {
	if txn == nil || txn.ID == "" {
		return fmt.Errorf("transaction repository: id is required")
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO transactions (`+txnColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		txn.ID, txn.OrderID, txn.UserID, txn.Amount, txn.PaymentMethod,
		string(txn.Status), txn.ProviderTxnID, txn.FailureReason, txn.CreatedAt, txn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("transaction repository: insert: %w", err)
	}
	return nil
}

func (r *TransactionRepository) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+txnColumns+` FROM transactions WHERE id = $1`, id)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return txn, err
}

func (r *TransactionRepository) GetByOrder(ctx context.Context, orderID string) (*domain.Transaction, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+txnColumns+` FROM transactions
		WHERE order_id = $1
		ORDER BY created_at DESC
		LIMIT 1`, orderID)
	txn, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	return txn, err
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+txnColumns+` FROM transactions
		WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("transaction repository: list: %w", err)
	}
	defer rows.Close()

	var out []*domain.Transaction
	for rows.Next() {
		txn, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, txn)
	}
	return out, rows.Err()
}

func (r *TransactionRepository) Update(ctx context.Context, txn *domain.Transaction) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE transactions
		SET status = $2, provider_txn_id = $3, failure_reason = $4, updated_at = $5
		WHERE id = $1`,
		txn.ID, string(txn.Status), txn.ProviderTxnID, txn.FailureReason, txn.UpdatedAt)
	if err != nil {
		return fmt.Errorf("transaction repository: update: %w", err)
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

func scanTransaction(row rowScanner) (*domain.Transaction, error) {
	var (
		txn    domain.Transaction
		status string
	)
	err := row.Scan(
		&txn.ID,
		&txn.OrderID,
		&txn.UserID,
		&txn.Amount,
		&txn.PaymentMethod,
		&status,
		&txn.ProviderTxnID,
		&txn.FailureReason,
		&txn.CreatedAt,
		&txn.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	txn.Status = domain.Status(status)
	return &txn, nil
}
