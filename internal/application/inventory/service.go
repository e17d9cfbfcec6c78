package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/greenmart/checkout-core/internal/domain/inventory"
	domoutbox "github.com/greenmart/checkout-core/internal/domain/outbox"
	"github.com/greenmart/checkout-core/internal/observability"
	"github.com/greenmart/checkout-core/internal/observability/logctx"
)

const (
	componentLedger = "inventory_ledger"
	publishTimeout  = 300 * time.Millisecond
)

// Service is the inventory ledger: the only writer of per-product stock
// counters. Atomicity of each mutation is delegated to the repository; the
// service adds validation, low-stock alerting and instrumentation.
type Service struct {
	repo      domain.Repository
	publisher domoutbox.Publisher

	log             observability.Logger
	publishFailures observability.Counter
}

func NewService(repo domain.Repository, publisher domoutbox.Publisher, tel observability.Telemetry) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Service{
		repo:            repo,
		publisher:       publisher,
		log:             tel.Logger().With(observability.F("component", componentLedger)),
		publishFailures: tel.Counter(observability.MEventPublishFailed),
	}
}

func (s *Service) Get(ctx context.Context, productID string) (*domain.Record, error) {
	if productID == "" {
		return nil, fmt.Errorf("%w: product id is required", domain.ErrNotFound)
	}
	return s.repo.Get(ctx, productID)
}

func (s *Service) List(ctx context.Context, lowStockOnly bool) ([]*domain.Record, error) {
	return s.repo.List(ctx, lowStockOnly)
}

// Reserve places a hold for qty units. The check-then-increment is atomic
// per product, so concurrent reservations can never drive availability
// negative.
func (s *Service) Reserve(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	rec, err := s.repo.Reserve(ctx, productID, quantity)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientStock) {
			logctx.FromOr(ctx, s.log).Info("reserve_rejected",
				observability.F("product_id", productID),
				observability.F("quantity", quantity),
			)
		}
		return nil, err
	}
	return rec, nil
}

// Release returns a hold to the sellable pool, clamped at zero so repeated
// compensation attempts stay safe.
func (s *Service) Release(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	return s.repo.Release(ctx, productID, quantity)
}

// Confirm converts a hold into a permanent deduction after payment.
func (s *Service) Confirm(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	rec, err := s.repo.Confirm(ctx, productID, quantity)
	if err != nil {
		return nil, err
	}
	s.maybeAlert(ctx, rec)
	return rec, nil
}

// Reduce deducts from the total directly, for non-order adjustments.
func (s *Service) Reduce(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	rec, err := s.repo.Reduce(ctx, productID, quantity)
	if err != nil {
		return nil, err
	}
	s.maybeAlert(ctx, rec)
	return rec, nil
}

// SetStock overwrites the absolute stock level. lowStockThreshold < 0 keeps
// the current threshold.
func (s *Service) SetStock(ctx context.Context, productID string, quantity, lowStockThreshold int) (*domain.Record, error) {
	rec, err := s.repo.SetStock(ctx, productID, quantity, lowStockThreshold)
	if err != nil {
		return nil, err
	}
	s.maybeAlert(ctx, rec)
	return rec, nil
}

func (s *Service) AddStock(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	rec, err := s.repo.AddStock(ctx, productID, quantity)
	if err != nil {
		return nil, err
	}
	s.maybeAlert(ctx, rec)
	return rec, nil
}

type CheckItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type AvailabilityItem struct {
	ProductID  string `json:"productId"`
	Requested  int    `json:"requested"`
	Available  int    `json:"available"`
	Sufficient bool   `json:"sufficient"`
}

type AvailabilityResult struct {
	Items        []AvailabilityItem `json:"items"`
	AllAvailable bool               `json:"allAvailable"`
}

// CheckAvailability is a read-only pre-flight batch check. Products without
// a record count as zero stock rather than an error.
func (s *Service) CheckAvailability(ctx context.Context, items []CheckItem) (*AvailabilityResult, error) {
	result := &AvailabilityResult{AllAvailable: true}
	for _, item := range items {
		available := 0
		rec, err := s.repo.Get(ctx, item.ProductID)
		switch {
		case err == nil:
			available = rec.Available()
		case !errors.Is(err, domain.ErrNotFound):
			return nil, err
		}
		sufficient := available >= item.Quantity
		if !sufficient {
			result.AllAvailable = false
		}
		result.Items = append(result.Items, AvailabilityItem{
			ProductID:  item.ProductID,
			Requested:  item.Quantity,
			Available:  available,
			Sufficient: sufficient,
		})
	}
	return result, nil
}

// maybeAlert publishes a low-stock alert when the mutation left the product
// at or below its threshold. Best effort: a failed publish is logged and
// counted but never fails the mutation that triggered it.
func (s *Service) maybeAlert(ctx context.Context, rec *domain.Record) {
	if s.publisher == nil || rec == nil || !rec.IsLowStock() {
		return
	}

	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()

	if err := s.publisher.Publish(pubCtx, domain.NewLowStockAlert(rec)); err != nil {
		s.publishFailures.Add(1, observability.L("event", domain.LowStockAlert{}.EventName()))
		logctx.FromOr(ctx, s.log).Warn("low_stock_alert_publish_failed",
			observability.F("product_id", rec.ProductID),
			observability.F("quantity", rec.Quantity),
			observability.F("error", err.Error()),
		)
	}
}
