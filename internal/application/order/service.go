package order

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/greenmart/checkout-core/internal/domain/order"
	domoutbox "github.com/greenmart/checkout-core/internal/domain/outbox"
	"github.com/greenmart/checkout-core/internal/infrastructure/id"
	"github.com/greenmart/checkout-core/internal/observability"
	"github.com/greenmart/checkout-core/internal/observability/logctx"
)

const (
	componentOrders = "order_store"
	publishTimeout  = 300 * time.Millisecond
)

// Service owns orders and per-user carts. Status transitions are validated
// by the domain entity; the checkout orchestrator is the only caller that
// moves orders out of PENDING.
type Service struct {
	repo      domain.Repository
	carts     domain.CartRepository
	idGen     id.Generator
	publisher domoutbox.Publisher
	log       observability.Logger
}

func NewService(repo domain.Repository, carts domain.CartRepository, idGen id.Generator, publisher domoutbox.Publisher, tel observability.Telemetry) *Service {
	if tel == nil {
		tel = observability.NopTelemetry()
	}
	return &Service{
		repo:      repo,
		carts:     carts,
		idGen:     idGen,
		publisher: publisher,
		log:       tel.Logger().With(observability.F("component", componentOrders)),
	}
}

// CreateOrder persists a new PENDING order snapshotting the given items and
// prices. Later catalog changes never alter the persisted total. Orders
// created here hold no stock.
func (s *Service) CreateOrder(ctx context.Context, userID string, items []domain.Item, address domain.ShippingAddress, paymentMethod string) (*domain.Order, error) {
	return s.create(ctx, userID, items, address, paymentMethod, false)
}

// CreateReservedOrder persists a PENDING order whose lines already hold
// inventory reservations. The flag tells the reconciler the order owns
// stock that must be confirmed or released when it is resolved.
func (s *Service) CreateReservedOrder(ctx context.Context, userID string, items []domain.Item, address domain.ShippingAddress, paymentMethod string) (*domain.Order, error) {
	return s.create(ctx, userID, items, address, paymentMethod, true)
}

func (s *Service) create(ctx context.Context, userID string, items []domain.Item, address domain.ShippingAddress, paymentMethod string, stockReserved bool) (*domain.Order, error) {
	if userID == "" {
		return nil, errors.New("order: user id is required")
	}

	entity, err := domain.New(s.idGen.NewID(), userID, items, address, paymentMethod)
	if err != nil {
		return nil, err
	}
	entity.StockReserved = stockReserved

	if err := s.repo.Insert(ctx, entity); err != nil {
		logctx.FromOr(ctx, s.log).Error("order_insert_failed",
			observability.F("order_id", entity.ID),
			observability.F("error", err.Error()),
		)
		return nil, fmt.Errorf("order: insert: %w", err)
	}

	logctx.FromOr(ctx, s.log).Info("order_created",
		observability.F("order_id", entity.ID),
		observability.F("user_id", userID),
		observability.F("total", entity.TotalAmount.String()),
	)
	return entity, nil
}

func (s *Service) Get(ctx context.Context, orderID string) (*domain.Order, error) {
	if orderID == "" {
		return nil, domain.ErrNotFound
	}
	return s.repo.Get(ctx, orderID)
}

func (s *Service) ListByUser(ctx context.Context, userID string) ([]*domain.Order, error) {
	return s.repo.ListByUser(ctx, userID)
}

// UpdateStatus moves the order along its lifecycle and emits a status
// change event. The event is fire-and-forget; publish failures are logged
// and swallowed.
func (s *Service) UpdateStatus(ctx context.Context, orderID string, status domain.Status) (*domain.Order, error) {
	order, err := s.repo.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}

	old := order.Status
	if err := order.TransitionTo(status); err != nil {
		return nil, err
	}
	if err := s.repo.Update(ctx, order); err != nil {
		return nil, fmt.Errorf("order: update: %w", err)
	}

	if s.publisher != nil && old != order.Status {
		pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
		if err := s.publisher.Publish(pubCtx, domain.NewStatusChangedEvent(order, old)); err != nil {
			logctx.FromOr(ctx, s.log).Warn("status_event_publish_failed",
				observability.F("order_id", order.ID),
				observability.F("error", err.Error()),
			)
		}
		cancel()
	}
	return order, nil
}

func (s *Service) GetCart(ctx context.Context, userID string) (*domain.Cart, error) {
	if userID == "" {
		return nil, errors.New("order: user id is required")
	}
	return s.carts.Get(ctx, userID)
}

func (s *Service) AddToCart(ctx context.Context, userID string, item domain.Item) (*domain.Cart, error) {
	return s.mutateCart(ctx, userID, func(c *domain.Cart) error {
		return c.AddItem(item)
	})
}

func (s *Service) UpdateCartItem(ctx context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	return s.mutateCart(ctx, userID, func(c *domain.Cart) error {
		return c.UpdateItem(productID, quantity)
	})
}

func (s *Service) RemoveFromCart(ctx context.Context, userID, productID string) (*domain.Cart, error) {
	return s.mutateCart(ctx, userID, func(c *domain.Cart) error {
		return c.RemoveItem(productID)
	})
}

func (s *Service) ClearCart(ctx context.Context, userID string) error {
	_, err := s.mutateCart(ctx, userID, func(c *domain.Cart) error {
		c.Clear()
		return nil
	})
	return err
}

func (s *Service) mutateCart(ctx context.Context, userID string, fn func(*domain.Cart) error) (*domain.Cart, error) {
	if userID == "" {
		return nil, errors.New("order: user id is required")
	}
	cart, err := s.carts.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := fn(cart); err != nil {
		return nil, err
	}
	if err := s.carts.Save(ctx, cart); err != nil {
		return nil, fmt.Errorf("order: save cart: %w", err)
	}
	return cart, nil
}
