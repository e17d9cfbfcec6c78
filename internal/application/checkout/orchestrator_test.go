package checkout

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	appinventory "github.com/greenmart/checkout-core/internal/application/inventory"
	apporder "github.com/greenmart/checkout-core/internal/application/order"
	apppayment "github.com/greenmart/checkout-core/internal/application/payment"
	invdomain "github.com/greenmart/checkout-core/internal/domain/inventory"
	orderdomain "github.com/greenmart/checkout-core/internal/domain/order"
	paydomain "github.com/greenmart/checkout-core/internal/domain/payment"
	"github.com/greenmart/checkout-core/internal/infrastructure/id"
	"github.com/greenmart/checkout-core/internal/infrastructure/memory"
)

// scriptedGateway returns a fixed outcome for every charge.
type scriptedGateway struct {
	err     error
	charges int
}

func (g *scriptedGateway) Charge(_ context.Context, _ string, _ decimal.Decimal, _ string) (string, error) {
	g.charges++
	if g.err != nil {
		return "", g.err
	}
	return "MOCK_TEST", nil
}

func (g *scriptedGateway) Refund(context.Context, string, decimal.Decimal) error { return nil }

// failingReleaseRepo simulates a ledger that accepts reservations but cannot
// compensate them.
type failingReleaseRepo struct {
	*memory.InventoryRepository
}

func (r *failingReleaseRepo) Release(context.Context, string, int) (*invdomain.Record, error) {
	return nil, errors.New("ledger unavailable")
}

type fixture struct {
	orchestrator *Orchestrator
	inventory    *appinventory.Service
	orders       *apporder.Service
	payments     *apppayment.Service
	orderRepo    orderdomain.Repository
	txnRepo      paydomain.Repository
	gateway      *scriptedGateway
}

func newFixture(t *testing.T, gateway *scriptedGateway, invRepo invdomain.Repository) *fixture {
	t.Helper()
	if invRepo == nil {
		invRepo = memory.NewInventoryRepository(5)
	}
	orderRepo := memory.NewOrderRepository()
	txnRepo := memory.NewTransactionRepository()
	idGen := id.NewUUIDGenerator()

	inventorySvc := appinventory.NewService(invRepo, nil, nil)
	orderSvc := apporder.NewService(orderRepo, memory.NewCartRepository(), idGen, nil, nil)
	paymentSvc := apppayment.NewService(txnRepo, gateway, idGen, time.Second, nil)

	return &fixture{
		orchestrator: NewOrchestrator(inventorySvc, orderSvc, paymentSvc, nil),
		inventory:    inventorySvc,
		orders:       orderSvc,
		payments:     paymentSvc,
		orderRepo:    orderRepo,
		txnRepo:      txnRepo,
		gateway:      gateway,
	}
}

func testAddress() orderdomain.ShippingAddress {
	return orderdomain.ShippingAddress{
		Street:  "1 Market St",
		City:    "Springfield",
		Zip:     "12345",
		Country: "US",
	}
}

func (f *fixture) stock(t *testing.T, productID string, qty int) {
	t.Helper()
	if _, err := f.inventory.SetStock(context.Background(), productID, qty, -1); err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) addToCart(t *testing.T, userID, productID string, qty int) {
	t.Helper()
	_, err := f.orders.AddToCart(context.Background(), userID, orderdomain.Item{
		ProductID: productID,
		Name:      productID,
		Price:     decimal.RequireFromString("9.99"),
		Quantity:  qty,
	})
	if err != nil {
		t.Fatal(err)
	}
}

func (f *fixture) record(t *testing.T, productID string) *invdomain.Record {
	t.Helper()
	rec, err := f.inventory.Get(context.Background(), productID)
	if err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestCheckoutSuccess(t *testing.T) {
	f := newFixture(t, &scriptedGateway{}, nil)
	ctx := context.Background()

	f.stock(t, "p1", 100)
	f.addToCart(t, "u1", "p1", 5)

	result, err := f.orchestrator.Checkout(ctx, "u1", testAddress(), "card")
	if err != nil {
		t.Fatalf("checkout: %v", err)
	}
	if result.OrderID == "" || result.TransactionID == "" {
		t.Fatalf("result = %+v", result)
	}

	ord, err := f.orders.Get(ctx, result.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if ord.Status != orderdomain.StatusConfirmed {
		t.Fatalf("order status = %s, want CONFIRMED", ord.Status)
	}
	if want := decimal.RequireFromString("49.95"); !ord.TotalAmount.Equal(want) {
		t.Fatalf("total = %s, want %s", ord.TotalAmount, want)
	}

	rec := f.record(t, "p1")
	if rec.Quantity != 95 || rec.ReservedQuantity != 0 {
		t.Fatalf("inventory after checkout: %+v", rec)
	}

	cart, err := f.orders.GetCart(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !cart.IsEmpty() {
		t.Fatal("cart should be cleared after checkout")
	}

	txn, err := f.payments.GetByOrder(ctx, result.OrderID)
	if err != nil {
		t.Fatal(err)
	}
	if txn.Status != paydomain.StatusCompleted {
		t.Fatalf("txn status = %s, want COMPLETED", txn.Status)
	}
}

func TestCheckoutEmptyCart(t *testing.T) {
	f := newFixture(t, &scriptedGateway{}, nil)
	ctx := context.Background()

	_, err := f.orchestrator.Checkout(ctx, "u1", testAddress(), "card")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
	if f.gateway.charges != 0 {
		t.Fatal("gateway must not be called for an invalid request")
	}
	orders, err := f.orders.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 0 {
		t.Fatalf("orders created: %d", len(orders))
	}
}

func TestCheckoutMissingPaymentMethod(t *testing.T) {
	f := newFixture(t, &scriptedGateway{}, nil)
	f.stock(t, "p1", 10)
	f.addToCart(t, "u1", "p1", 1)

	_, err := f.orchestrator.Checkout(context.Background(), "u1", testAddress(), "")
	if !errors.Is(err, ErrValidation) {
		t.Fatalf("got %v, want ErrValidation", err)
	}
}

func TestCheckoutPartialReservationRollsBack(t *testing.T) {
	f := newFixture(t, &scriptedGateway{}, nil)
	ctx := context.Background()

	f.stock(t, "p1", 10)
	f.stock(t, "p2", 1)
	f.addToCart(t, "u1", "p1", 2)
	f.addToCart(t, "u1", "p2", 5)

	_, err := f.orchestrator.Checkout(ctx, "u1", testAddress(), "card")
	if !errors.Is(err, invdomain.ErrInsufficientStock) {
		t.Fatalf("got %v, want ErrInsufficientStock", err)
	}

	// The p1 hold taken before p2 failed must be returned.
	if rec := f.record(t, "p1"); rec.ReservedQuantity != 0 || rec.Quantity != 10 {
		t.Fatalf("p1 not rolled back: %+v", rec)
	}
	if f.gateway.charges != 0 {
		t.Fatal("gateway must not be called when reservation fails")
	}
	orders, err := f.orders.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 0 {
		t.Fatalf("order created despite failed reservation: %d", len(orders))
	}
}

func TestCheckoutPaymentDeclined(t *testing.T) {
	f := newFixture(t, &scriptedGateway{err: paydomain.ErrDeclined}, nil)
	ctx := context.Background()

	f.stock(t, "p1", 10)
	f.addToCart(t, "u1", "p1", 3)

	_, err := f.orchestrator.Checkout(ctx, "u1", testAddress(), "card")
	if !errors.Is(err, paydomain.ErrDeclined) {
		t.Fatalf("got %v, want ErrDeclined", err)
	}

	if rec := f.record(t, "p1"); rec.ReservedQuantity != 0 || rec.Quantity != 10 {
		t.Fatalf("reservation not released: %+v", rec)
	}

	orders, err := f.orders.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 {
		t.Fatalf("orders = %d, want 1", len(orders))
	}
	if orders[0].Status != orderdomain.StatusPaymentFailed {
		t.Fatalf("order status = %s, want PAYMENT_FAILED", orders[0].Status)
	}

	txn, err := f.payments.GetByOrder(ctx, orders[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if txn.Status != paydomain.StatusFailed {
		t.Fatalf("txn status = %s, want FAILED", txn.Status)
	}
}

func TestCheckoutPaymentTimeoutTreatedAsFailure(t *testing.T) {
	f := newFixture(t, &scriptedGateway{err: context.DeadlineExceeded}, nil)
	ctx := context.Background()

	f.stock(t, "p1", 10)
	f.addToCart(t, "u1", "p1", 3)

	_, err := f.orchestrator.Checkout(ctx, "u1", testAddress(), "card")
	if !errors.Is(err, paydomain.ErrUnavailable) {
		t.Fatalf("got %v, want ErrUnavailable", err)
	}

	if rec := f.record(t, "p1"); rec.ReservedQuantity != 0 {
		t.Fatalf("reservation not released: %+v", rec)
	}
	orders, err := f.orders.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 1 || orders[0].Status != orderdomain.StatusPaymentFailed {
		t.Fatalf("orders = %+v", orders)
	}
}

func TestCheckoutCompensationFailure(t *testing.T) {
	repo := &failingReleaseRepo{InventoryRepository: memory.NewInventoryRepository(5)}
	f := newFixture(t, &scriptedGateway{err: paydomain.ErrDeclined}, repo)
	ctx := context.Background()

	f.stock(t, "p1", 10)
	f.addToCart(t, "u1", "p1", 3)

	_, err := f.orchestrator.Checkout(ctx, "u1", testAddress(), "card")
	if !errors.Is(err, ErrInconsistentState) {
		t.Fatalf("got %v, want ErrInconsistentState", err)
	}
}
