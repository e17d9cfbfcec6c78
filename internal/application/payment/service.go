package payment

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/greenmart/checkout-core/internal/domain/payment"
	"github.com/greenmart/checkout-core/internal/infrastructure/id"
	"github.com/greenmart/checkout-core/internal/observability"
	"github.com/greenmart/checkout-core/internal/observability/logctx"
	"github.com/shopspring/decimal"
)

const componentPayments = "payment_processor"

// Service charges payment methods through the external gateway and keeps
// transaction records. The gateway call is bounded by chargeTimeout; a
// timeout surfaces as ErrUnavailable so the caller can compensate, even
// though the charge may have landed late on the provider side.
type Service struct {
	repo          domain.Repository
	gateway       domain.Gateway
	idGen         id.Generator
	chargeTimeout time.Duration
	log           observability.Logger
}

func NewService(repo domain.Repository, gateway domain.Gateway, idGen id.Generator, chargeTimeout time.Duration, tel observability.Telemetry) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	if chargeTimeout <= 0 {
		chargeTimeout = 10 * time.Second
	}
	return &Service{
		repo:          repo,
		gateway:       gateway,
		idGen:         idGen,
		chargeTimeout: chargeTimeout,
		log:           tel.Logger().With(observability.F("component", componentPayments)),
	}
}

// Charge persists a PENDING transaction, invokes the gateway and records the
// outcome. The returned transaction is always persisted, also on failure;
// the error distinguishes a decline from an unreachable processor.
func (s *Service) Charge(ctx context.Context, orderID, userID string, amount decimal.Decimal, paymentMethod string) (*domain.Transaction, error) {
	logger := logctx.FromOr(ctx, s.log).With(observability.F("order_id", orderID))

	txn, err := domain.NewTransaction(s.idGen.NewID(), orderID, userID, amount, paymentMethod)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Insert(ctx, txn); err != nil {
		return nil, fmt.Errorf("payment: insert transaction: %w", err)
	}

	chargeCtx, cancel := context.WithTimeout(ctx, s.chargeTimeout)
	providerTxnID, chargeErr := s.gateway.Charge(chargeCtx, orderID, amount, paymentMethod)
	cancel()

	switch {
	case chargeErr == nil:
		txn.MarkCompleted(providerTxnID)
		logger.Info("charge_completed",
			observability.F("transaction_id", txn.ID),
			observability.F("provider_txn_id", providerTxnID),
		)
	case errors.Is(chargeErr, domain.ErrDeclined):
		txn.MarkFailed(chargeErr.Error())
		logger.Info("charge_declined",
			observability.F("transaction_id", txn.ID),
		)
	default:
		// Timeouts and transport failures: outcome unknown, compensate as
		// failed. Logged at error level for alerting, unlike declines.
		if !errors.Is(chargeErr, domain.ErrUnavailable) {
			chargeErr = fmt.Errorf("%w: %v", domain.ErrUnavailable, chargeErr)
		}
		txn.MarkFailed(chargeErr.Error())
		logger.Error("charge_unavailable",
			observability.F("transaction_id", txn.ID),
			observability.F("error", chargeErr.Error()),
		)
	}

	if err := s.repo.Update(ctx, txn); err != nil {
		return txn, fmt.Errorf("payment: update transaction: %w", err)
	}
	return txn, chargeErr
}

// GetTransaction returns a transaction after verifying ownership.
func (s *Service) GetTransaction(ctx context.Context, transactionID, userID string) (*domain.Transaction, error) {
	txn, err := s.repo.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.UserID != userID {
		return nil, domain.ErrUnauthorized
	}
	return txn, nil
}

func (s *Service) GetByOrder(ctx context.Context, orderID string) (*domain.Transaction, error) {
	return s.repo.GetByOrder(ctx, orderID)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	return s.repo.ListByUser(ctx, userID)
}

// Refund reverses a completed transaction through the gateway.
func (s *Service) Refund(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	txn, err := s.repo.Get(ctx, transactionID)
	if err != nil {
		return nil, err
	}
	if txn.Status != domain.StatusCompleted {
		return nil, domain.ErrNotRefundable
	}

	if err := s.gateway.Refund(ctx, txn.ProviderTxnID, txn.Amount); err != nil {
		return nil, fmt.Errorf("payment: refund: %w", err)
	}
	if err := txn.MarkRefunded(); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, txn); err != nil {
		return nil, fmt.Errorf("payment: update transaction: %w", err)
	}

	logctx.FromOr(ctx, s.log).Info("refund_completed",
		observability.F("transaction_id", txn.ID),
		observability.F("order_id", txn.OrderID),
	)
	return txn, nil
}
