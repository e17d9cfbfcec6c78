package inventory

import (
	"context"
	"errors"
	"sync"
	"testing"

	domain "github.com/greenmart/checkout-core/internal/domain/inventory"
	domoutbox "github.com/greenmart/checkout-core/internal/domain/outbox"
	"github.com/greenmart/checkout-core/internal/infrastructure/memory"
)

type capturingPublisher struct {
	mu     sync.Mutex
	events []domoutbox.Event
	fail   error
}

func (p *capturingPublisher) Publish(_ context.Context, e domoutbox.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail != nil {
		return p.fail
	}
	p.events = append(p.events, e)
	return nil
}

func (p *capturingPublisher) published() []domoutbox.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domoutbox.Event(nil), p.events...)
}

func newTestService(pub *capturingPublisher) *Service {
	return NewService(memory.NewInventoryRepository(5), pub, nil)
}

func TestReserveReleaseConfirmRoundTrip(t *testing.T) {
	svc := newTestService(&capturingPublisher{})
	ctx := context.Background()

	if _, err := svc.SetStock(ctx, "p1", 100, -1); err != nil {
		t.Fatal(err)
	}

	rec, err := svc.Reserve(ctx, "p1", 5)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Available() != 95 || rec.Quantity != 100 {
		t.Fatalf("after reserve: %+v", rec)
	}

	rec, err = svc.Release(ctx, "p1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if rec.ReservedQuantity != 3 {
		t.Fatalf("after release: reserved = %d, want 3", rec.ReservedQuantity)
	}

	rec, err = svc.Confirm(ctx, "p1", 3)
	if err != nil {
		t.Fatal(err)
	}
	if rec.Quantity != 97 || rec.ReservedQuantity != 0 {
		t.Fatalf("after confirm: %+v", rec)
	}
}

func TestReserveInsufficient(t *testing.T) {
	svc := newTestService(&capturingPublisher{})
	ctx := context.Background()

	if _, err := svc.SetStock(ctx, "p1", 2, -1); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.Reserve(ctx, "p1", 3); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("got %v, want ErrInsufficientStock", err)
	}
}

func TestCheckAvailabilityCountsMissingAsZero(t *testing.T) {
	svc := newTestService(&capturingPublisher{})
	ctx := context.Background()

	if _, err := svc.SetStock(ctx, "p1", 10, -1); err != nil {
		t.Fatal(err)
	}

	result, err := svc.CheckAvailability(ctx, []CheckItem{
		{ProductID: "p1", Quantity: 4},
		{ProductID: "ghost", Quantity: 1},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.AllAvailable {
		t.Fatal("allAvailable should be false when any line is short")
	}
	if !result.Items[0].Sufficient || result.Items[0].Available != 10 {
		t.Fatalf("p1 line = %+v", result.Items[0])
	}
	if result.Items[1].Sufficient || result.Items[1].Available != 0 {
		t.Fatalf("ghost line = %+v", result.Items[1])
	}
}

func TestLowStockAlertPublished(t *testing.T) {
	pub := &capturingPublisher{}
	svc := newTestService(pub)
	ctx := context.Background()

	if _, err := svc.SetStock(ctx, "p1", 6, 5); err != nil {
		t.Fatal(err)
	}
	if got := len(pub.published()); got != 0 {
		t.Fatalf("alert above threshold: %d events", got)
	}

	if _, err := svc.Reduce(ctx, "p1", 2); err != nil {
		t.Fatal(err)
	}
	events := pub.published()
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	alert, ok := events[0].(domain.LowStockAlert)
	if !ok {
		t.Fatalf("event type %T", events[0])
	}
	if alert.ProductID != "p1" || alert.Quantity != 4 || alert.LowStockThreshold != 5 {
		t.Fatalf("alert = %+v", alert)
	}
}

func TestPublishFailureDoesNotFailMutation(t *testing.T) {
	pub := &capturingPublisher{fail: errors.New("broker down")}
	svc := newTestService(pub)
	ctx := context.Background()

	rec, err := svc.SetStock(ctx, "p1", 1, 5)
	if err != nil {
		t.Fatalf("mutation failed on publish error: %v", err)
	}
	if rec.Quantity != 1 {
		t.Fatalf("record = %+v", rec)
	}
}

// Concurrent reservations against one product must admit exactly the stock.
func TestConcurrentReserveNeverOversells(t *testing.T) {
	svc := newTestService(&capturingPublisher{})
	ctx := context.Background()

	const stock = 30
	if _, err := svc.SetStock(ctx, "p1", stock, -1); err != nil {
		t.Fatal(err)
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.Reserve(ctx, "p1", 1); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if wins != stock {
		t.Fatalf("%d reservations won, want %d", wins, stock)
	}
	rec, err := svc.Get(ctx, "p1")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Available() < 0 {
		t.Fatalf("available went negative: %d", rec.Available())
	}
}
