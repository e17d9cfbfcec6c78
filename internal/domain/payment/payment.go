package payment

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound      = errors.New("payment: transaction not found")
	ErrInvalidAmount = errors.New("payment: amount must be greater than zero")
	// ErrDeclined is a business failure from the processor; the charge did
	// not happen and will not happen for this attempt.
	ErrDeclined = errors.New("payment: declined")
	// ErrUnavailable is an infrastructure failure (timeout, unreachable).
	// The charge outcome is unknown; callers compensate as if it failed.
	ErrUnavailable   = errors.New("payment: processor unavailable")
	ErrNotRefundable = errors.New("payment: only completed transactions can be refunded")
	ErrUnauthorized  = errors.New("payment: transaction belongs to another user")
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
	StatusRefunded  Status = "REFUNDED"
)

type Transaction struct {
	ID             string
	OrderID        string
	UserID         string
	Amount         decimal.Decimal
	PaymentMethod  string
	Status         Status
	ProviderTxnID  string
	FailureReason  string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func NewTransaction(id, orderID, userID string, amount decimal.Decimal, paymentMethod string) (*Transaction, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	now := time.Now().UTC()
	return &Transaction{
		ID:            id,
		OrderID:       orderID,
		UserID:        userID,
		Amount:        amount,
		PaymentMethod: paymentMethod,
		Status:        StatusPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

func (t *Transaction) MarkCompleted(providerTxnID string) {
	t.Status = StatusCompleted
	t.ProviderTxnID = providerTxnID
	t.FailureReason = ""
	t.touch()
}

func (t *Transaction) MarkFailed(reason string) {
	t.Status = StatusFailed
	t.FailureReason = reason
	t.touch()
}

func (t *Transaction) MarkRefunded() error {
	if t.Status != StatusCompleted {
		return ErrNotRefundable
	}
	t.Status = StatusRefunded
	t.touch()
	return nil
}

func (t *Transaction) Clone() *Transaction {
	if t == nil {
		return nil
	}
	clone := *t
	return &clone
}

func (t *Transaction) touch() {
	t.UpdatedAt = time.Now().UTC()
}

// Gateway is the external payment provider. Charge returns the provider's
// transaction id on success, ErrDeclined on a business refusal, and
// ErrUnavailable (possibly wrapped) when the provider cannot be reached
// before ctx expires.
type Gateway interface {
	Charge(ctx context.Context, orderID string, amount decimal.Decimal, paymentMethod string) (string, error)
	Refund(ctx context.Context, providerTxnID string, amount decimal.Decimal) error
}
