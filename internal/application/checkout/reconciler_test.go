package checkout

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	orderdomain "github.com/greenmart/checkout-core/internal/domain/order"
	paydomain "github.com/greenmart/checkout-core/internal/domain/payment"
)

type stubChecker struct{ charged bool }

func (c stubChecker) CheckStatus(context.Context, string) (bool, error) { return c.charged, nil }

// stagePendingOrder reproduces the state left by a crash mid-checkout: a
// reservation held and a PENDING order persisted.
func (f *fixture) stagePendingOrder(t *testing.T, userID string, qty int) *orderdomain.Order {
	t.Helper()
	ctx := context.Background()

	if _, err := f.inventory.Reserve(ctx, "p1", qty); err != nil {
		t.Fatal(err)
	}
	items := []orderdomain.Item{{
		ProductID: "p1",
		Name:      "p1",
		Price:     decimal.RequireFromString("9.99"),
		Quantity:  qty,
	}}
	ord, err := f.orders.CreateReservedOrder(ctx, userID, items, testAddress(), "card")
	if err != nil {
		t.Fatal(err)
	}
	return ord
}

func (f *fixture) stageTransaction(t *testing.T, ord *orderdomain.Order, status paydomain.Status) {
	t.Helper()
	ctx := context.Background()

	txn, err := paydomain.NewTransaction("txn-"+ord.ID, ord.ID, ord.UserID, ord.TotalAmount, "card")
	if err != nil {
		t.Fatal(err)
	}
	switch status {
	case paydomain.StatusCompleted:
		txn.MarkCompleted("MOCK_TEST")
	case paydomain.StatusFailed:
		txn.MarkFailed("declined")
	}
	if err := f.txnRepo.Insert(ctx, txn); err != nil {
		t.Fatal(err)
	}
}

func newReconcilerUnderTest(f *fixture, checker StatusChecker) *Reconciler {
	return NewReconciler(f.orderRepo, f.payments, f.orchestrator, checker, time.Minute, time.Nanosecond, nil)
}

func TestReconcilerFinishesPaidOrder(t *testing.T) {
	f := newFixture(t, &scriptedGateway{}, nil)
	ctx := context.Background()

	f.stock(t, "p1", 10)
	ord := f.stagePendingOrder(t, "u1", 3)
	f.stageTransaction(t, ord, paydomain.StatusCompleted)

	time.Sleep(5 * time.Millisecond) // let the order age past the cutoff
	newReconcilerUnderTest(f, nil).Sweep(ctx)

	got, err := f.orders.Get(ctx, ord.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != orderdomain.StatusConfirmed {
		t.Fatalf("order status = %s, want CONFIRMED", got.Status)
	}
	if rec := f.record(t, "p1"); rec.Quantity != 7 || rec.ReservedQuantity != 0 {
		t.Fatalf("inventory not confirmed: %+v", rec)
	}
}

func TestReconcilerRollsBackFailedPayment(t *testing.T) {
	f := newFixture(t, &scriptedGateway{}, nil)
	ctx := context.Background()

	f.stock(t, "p1", 10)
	ord := f.stagePendingOrder(t, "u1", 3)
	f.stageTransaction(t, ord, paydomain.StatusFailed)

	time.Sleep(5 * time.Millisecond)
	newReconcilerUnderTest(f, nil).Sweep(ctx)

	got, err := f.orders.Get(ctx, ord.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != orderdomain.StatusPaymentFailed {
		t.Fatalf("order status = %s, want PAYMENT_FAILED", got.Status)
	}
	if rec := f.record(t, "p1"); rec.Quantity != 10 || rec.ReservedQuantity != 0 {
		t.Fatalf("reservation not released: %+v", rec)
	}
}

func TestReconcilerRollsBackWhenChargeNeverHappened(t *testing.T) {
	f := newFixture(t, &scriptedGateway{}, nil)
	ctx := context.Background()

	f.stock(t, "p1", 10)
	ord := f.stagePendingOrder(t, "u1", 2)
	// No transaction at all: crashed before the charge was attempted.

	time.Sleep(5 * time.Millisecond)
	newReconcilerUnderTest(f, nil).Sweep(ctx)

	got, err := f.orders.Get(ctx, ord.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != orderdomain.StatusPaymentFailed {
		t.Fatalf("order status = %s, want PAYMENT_FAILED", got.Status)
	}
}

func TestReconcilerConsultsProviderForPendingTransaction(t *testing.T) {
	f := newFixture(t, &scriptedGateway{}, nil)
	ctx := context.Background()

	f.stock(t, "p1", 10)
	ord := f.stagePendingOrder(t, "u1", 2)
	f.stageTransaction(t, ord, paydomain.StatusPending)

	time.Sleep(5 * time.Millisecond)
	newReconcilerUnderTest(f, stubChecker{charged: true}).Sweep(ctx)

	got, err := f.orders.Get(ctx, ord.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != orderdomain.StatusConfirmed {
		t.Fatalf("order status = %s, want CONFIRMED", got.Status)
	}
}

func TestReconcilerLeavesDirectOrdersAlone(t *testing.T) {
	f := newFixture(t, &scriptedGateway{}, nil)
	ctx := context.Background()

	f.stock(t, "p1", 10)

	// A live hold taken by some in-flight checkout.
	if _, err := f.inventory.Reserve(ctx, "p1", 4); err != nil {
		t.Fatal(err)
	}

	// A stale PENDING order placed directly via the order API. It never
	// reserved anything, so the sweep must not release on its behalf.
	items := []orderdomain.Item{{
		ProductID: "p1",
		Name:      "p1",
		Price:     decimal.RequireFromString("9.99"),
		Quantity:  3,
	}}
	ord, err := f.orders.CreateOrder(ctx, "u-direct", items, testAddress(), "card")
	if err != nil {
		t.Fatal(err)
	}

	time.Sleep(5 * time.Millisecond)
	newReconcilerUnderTest(f, nil).Sweep(ctx)

	if rec := f.record(t, "p1"); rec.ReservedQuantity != 4 {
		t.Fatalf("reservedQuantity = %d, want 4 (sweep released a hold it never took)", rec.ReservedQuantity)
	}
	got, err := f.orders.Get(ctx, ord.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != orderdomain.StatusPending {
		t.Fatalf("direct order touched: %s", got.Status)
	}
}

func TestReconcilerIgnoresFreshOrders(t *testing.T) {
	f := newFixture(t, &scriptedGateway{}, nil)
	ctx := context.Background()

	f.stock(t, "p1", 10)
	ord := f.stagePendingOrder(t, "u1", 2)

	// A generous cutoff: the order is too fresh to touch.
	r := NewReconciler(f.orderRepo, f.payments, f.orchestrator, nil, time.Minute, time.Hour, nil)
	r.Sweep(ctx)

	got, err := f.orders.Get(ctx, ord.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != orderdomain.StatusPending {
		t.Fatalf("fresh order touched: %s", got.Status)
	}
}
