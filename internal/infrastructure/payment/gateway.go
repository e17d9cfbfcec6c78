package payment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	domain "github.com/greenmart/checkout-core/internal/domain/payment"
	"github.com/shopspring/decimal"
)

// MockGateway simulates an external payment provider. It remembers outcomes
// per order id, so a retried charge for the same order returns the original
// result instead of charging twice.
type MockGateway struct {
	mu       sync.RWMutex
	outcomes map[string]string // orderID -> providerTxnID ("" = declined)

	successRate float64
	timeoutRate float64
	delay       time.Duration
}

func NewMockGateway() *MockGateway {
	return &MockGateway{
		outcomes:    make(map[string]string),
		successRate: 0.9,
		timeoutRate: 0.0,
		delay:       100 * time.Millisecond,
	}
}

func (g *MockGateway) Charge(ctx context.Context, orderID string, amount decimal.Decimal, paymentMethod string) (string, error) {
	_ = paymentMethod

	g.mu.RLock()
	txnID, seen := g.outcomes[orderID]
	g.mu.RUnlock()
	if seen {
		if txnID == "" {
			return "", domain.ErrDeclined
		}
		return txnID, nil
	}

	select {
	case <-time.After(g.delay):
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %v", domain.ErrUnavailable, ctx.Err())
	}

	roll := rand.Float64()
	switch {
	case roll < g.timeoutRate:
		// The provider charged but the response is lost; the reconciler
		// finds these later via CheckStatus.
		g.record(orderID, newProviderTxnID())
		return "", fmt.Errorf("%w: connection timeout", domain.ErrUnavailable)
	case roll < g.timeoutRate+g.successRate:
		id := newProviderTxnID()
		g.record(orderID, id)
		return id, nil
	default:
		g.record(orderID, "")
		return "", domain.ErrDeclined
	}
}

func (g *MockGateway) Refund(ctx context.Context, providerTxnID string, amount decimal.Decimal) error {
	_ = ctx
	_ = amount
	if providerTxnID == "" {
		return domain.ErrNotFound
	}
	return nil
}

// CheckStatus reports whether a charge for the order actually went through,
// the provider-side source of truth used for reconciliation.
func (g *MockGateway) CheckStatus(ctx context.Context, orderID string) (bool, error) {
	_ = ctx
	g.mu.RLock()
	defer g.mu.RUnlock()
	txnID, seen := g.outcomes[orderID]
	return seen && txnID != "", nil
}

func (g *MockGateway) record(orderID, providerTxnID string) {
	g.mu.Lock()
	g.outcomes[orderID] = providerTxnID
	g.mu.Unlock()
}

func newProviderTxnID() string {
	return "MOCK_" + strings.ToUpper(uuid.NewString()[:12])
}
