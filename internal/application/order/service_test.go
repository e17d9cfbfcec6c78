package order

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	domain "github.com/greenmart/checkout-core/internal/domain/order"
	domoutbox "github.com/greenmart/checkout-core/internal/domain/outbox"
	"github.com/greenmart/checkout-core/internal/infrastructure/id"
	"github.com/greenmart/checkout-core/internal/infrastructure/memory"
)

type recordingPublisher struct {
	events []domoutbox.Event
}

func (p *recordingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.events = append(p.events, e)
	return nil
}

func newTestService(pub *recordingPublisher) *Service {
	var publisher domoutbox.Publisher
	if pub != nil {
		publisher = pub
	}
	return NewService(memory.NewOrderRepository(), memory.NewCartRepository(), id.NewUUIDGenerator(), publisher, nil)
}

func testAddress() domain.ShippingAddress {
	return domain.ShippingAddress{
		Street:  "1 Market St",
		City:    "Springfield",
		Zip:     "12345",
		Country: "US",
	}
}

func testItems() []domain.Item {
	return []domain.Item{
		{ProductID: "p1", Name: "Apples", Price: decimal.RequireFromString("2.50"), Quantity: 2},
	}
}

func TestCreateOrderStartsPending(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	ord, err := svc.CreateOrder(ctx, "u1", testItems(), testAddress(), "card")
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if ord.Status != domain.StatusPending {
		t.Fatalf("status = %s, want PENDING", ord.Status)
	}
	if want := decimal.RequireFromString("5.00"); !ord.TotalAmount.Equal(want) {
		t.Fatalf("total = %s, want %s", ord.TotalAmount, want)
	}

	got, err := svc.Get(ctx, ord.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != ord.ID {
		t.Fatalf("Get returned %s, want %s", got.ID, ord.ID)
	}
	if got.StockReserved {
		t.Fatal("direct order marked as holding reservations")
	}
}

func TestCreateReservedOrderMarksStockHeld(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	ord, err := svc.CreateReservedOrder(ctx, "u1", testItems(), testAddress(), "card")
	if err != nil {
		t.Fatalf("CreateReservedOrder: %v", err)
	}
	got, err := svc.Get(ctx, ord.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.StockReserved {
		t.Fatal("reserved order not marked as holding reservations")
	}
}

func TestCreateOrderRejectsEmptyItems(t *testing.T) {
	svc := newTestService(nil)
	if _, err := svc.CreateOrder(context.Background(), "u1", nil, testAddress(), "card"); !errors.Is(err, domain.ErrEmptyItems) {
		t.Fatalf("got %v, want ErrEmptyItems", err)
	}
}

func TestUpdateStatusEnforcesLifecycle(t *testing.T) {
	pub := &recordingPublisher{}
	svc := newTestService(pub)
	ctx := context.Background()

	ord, err := svc.CreateOrder(ctx, "u1", testItems(), testAddress(), "card")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := svc.UpdateStatus(ctx, ord.ID, domain.StatusShipped); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("PENDING -> SHIPPED: got %v", err)
	}

	updated, err := svc.UpdateStatus(ctx, ord.ID, domain.StatusConfirmed)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Status != domain.StatusConfirmed {
		t.Fatalf("status = %s", updated.Status)
	}

	if len(pub.events) != 1 {
		t.Fatalf("status events = %d, want 1", len(pub.events))
	}
	ev, ok := pub.events[0].(domain.StatusChangedEvent)
	if !ok {
		t.Fatalf("event type %T", pub.events[0])
	}
	if ev.OldStatus != domain.StatusPending || ev.NewStatus != domain.StatusConfirmed {
		t.Fatalf("event = %+v", ev)
	}
}

func TestListByUserNewestFirst(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	first, err := svc.CreateOrder(ctx, "u1", testItems(), testAddress(), "card")
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.CreateOrder(ctx, "u1", testItems(), testAddress(), "card")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.CreateOrder(ctx, "u2", testItems(), testAddress(), "card"); err != nil {
		t.Fatal(err)
	}

	orders, err := svc.ListByUser(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if len(orders) != 2 {
		t.Fatalf("len = %d, want 2", len(orders))
	}
	if orders[0].ID != second.ID || orders[1].ID != first.ID {
		t.Fatalf("orders not newest first: %s, %s", orders[0].ID, orders[1].ID)
	}
}

func TestCartLifecycle(t *testing.T) {
	svc := newTestService(nil)
	ctx := context.Background()

	item := domain.Item{ProductID: "p1", Name: "Apples", Price: decimal.RequireFromString("2.00"), Quantity: 2}
	cart, err := svc.AddToCart(ctx, "u1", item)
	if err != nil {
		t.Fatal(err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("cart = %+v", cart)
	}

	cart, err = svc.UpdateCartItem(ctx, "u1", "p1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if cart.Items[0].Quantity != 5 {
		t.Fatalf("quantity = %d, want 5", cart.Items[0].Quantity)
	}

	if _, err := svc.RemoveFromCart(ctx, "u1", "nope"); !errors.Is(err, domain.ErrItemNotInCart) {
		t.Fatalf("remove absent: got %v", err)
	}

	if err := svc.ClearCart(ctx, "u1"); err != nil {
		t.Fatal(err)
	}
	cart, err = svc.GetCart(ctx, "u1")
	if err != nil {
		t.Fatal(err)
	}
	if !cart.IsEmpty() {
		t.Fatal("cart should be empty after clear")
	}
}
