package payment

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/greenmart/checkout-core/internal/domain/payment"
	"github.com/greenmart/checkout-core/internal/infrastructure/id"
	"github.com/greenmart/checkout-core/internal/infrastructure/memory"
)

type stubGateway struct {
	chargeErr error
	refundErr error
	delay     time.Duration
}

func (g *stubGateway) Charge(ctx context.Context, _ string, _ decimal.Decimal, _ string) (string, error) {
	if g.delay > 0 {
		select {
		case <-time.After(g.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if g.chargeErr != nil {
		return "", g.chargeErr
	}
	return "MOCK_ABC", nil
}

func (g *stubGateway) Refund(context.Context, string, decimal.Decimal) error { return g.refundErr }

func newTestService(gw domain.Gateway, timeout time.Duration) *Service {
	return NewService(memory.NewTransactionRepository(), gw, id.NewUUIDGenerator(), timeout, nil)
}

func amount(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestChargeSuccess(t *testing.T) {
	svc := newTestService(&stubGateway{}, time.Second)
	ctx := context.Background()

	txn, err := svc.Charge(ctx, "o1", "u1", amount("42.00"), "card")
	if err != nil {
		t.Fatalf("Charge: %v", err)
	}
	if txn.Status != domain.StatusCompleted || txn.ProviderTxnID != "MOCK_ABC" {
		t.Fatalf("txn = %+v", txn)
	}

	stored, err := svc.GetByOrder(ctx, "o1")
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != domain.StatusCompleted {
		t.Fatalf("stored status = %s", stored.Status)
	}
}

func TestChargeDeclinedPersistsFailure(t *testing.T) {
	svc := newTestService(&stubGateway{chargeErr: domain.ErrDeclined}, time.Second)
	ctx := context.Background()

	txn, err := svc.Charge(ctx, "o1", "u1", amount("42.00"), "card")
	if !errors.Is(err, domain.ErrDeclined) {
		t.Fatalf("got %v, want ErrDeclined", err)
	}
	if txn == nil || txn.Status != domain.StatusFailed {
		t.Fatalf("txn = %+v", txn)
	}
	if txn.FailureReason == "" {
		t.Fatal("failure reason not recorded")
	}
}

func TestChargeTimeoutSurfacesAsUnavailable(t *testing.T) {
	svc := newTestService(&stubGateway{delay: 200 * time.Millisecond}, 10*time.Millisecond)
	ctx := context.Background()

	txn, err := svc.Charge(ctx, "o1", "u1", amount("42.00"), "card")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}
	if txn == nil || txn.Status != domain.StatusFailed {
		t.Fatalf("txn = %+v", txn)
	}
}

func TestChargeRejectsNonPositiveAmount(t *testing.T) {
	svc := newTestService(&stubGateway{}, time.Second)
	if _, err := svc.Charge(context.Background(), "o1", "u1", decimal.Zero, "card"); !errors.Is(err, domain.ErrInvalidAmount) {
		t.Fatalf("got %v, want ErrInvalidAmount", err)
	}
}

func TestGetTransactionChecksOwnership(t *testing.T) {
	svc := newTestService(&stubGateway{}, time.Second)
	ctx := context.Background()

	txn, err := svc.Charge(ctx, "o1", "u1", amount("10.00"), "card")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.GetTransaction(ctx, txn.ID, "u2"); !errors.Is(err, domain.ErrUnauthorized) {
		t.Fatalf("foreign user: got %v, want ErrUnauthorized", err)
	}
	got, err := svc.GetTransaction(ctx, txn.ID, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != txn.ID {
		t.Fatalf("got %s, want %s", got.ID, txn.ID)
	}
}

func TestRefundOnlyCompletedTransactions(t *testing.T) {
	svc := newTestService(&stubGateway{chargeErr: domain.ErrDeclined}, time.Second)
	ctx := context.Background()

	failed, _ := svc.Charge(ctx, "o1", "u1", amount("10.00"), "card")
	if _, err := svc.Refund(ctx, failed.ID); !errors.Is(err, domain.ErrNotRefundable) {
		t.Fatalf("refund failed txn: got %v", err)
	}
}

func TestRefundCompletedTransaction(t *testing.T) {
	svc := newTestService(&stubGateway{}, time.Second)
	ctx := context.Background()

	txn, err := svc.Charge(ctx, "o1", "u1", amount("10.00"), "card")
	if err != nil {
		t.Fatal(err)
	}
	refunded, err := svc.Refund(ctx, txn.ID)
	if err != nil {
		t.Fatalf("Refund: %v", err)
	}
	if refunded.Status != domain.StatusRefunded {
		t.Fatalf("status = %s, want REFUNDED", refunded.Status)
	}
}
