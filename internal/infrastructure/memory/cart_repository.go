package memory

import (
	"context"
	"fmt"
	"sync"

	domain "github.com/greenmart/checkout-core/internal/domain/order"
)

type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]*domain.Cart
}

func NewCartRepository() *CartRepository {
	return &CartRepository{
		carts: make(map[string]*domain.Cart),
	}
}

func (r *CartRepository) Get(ctx context.Context, userID string) (*domain.Cart, error) {
	_ = ctx
	r.mu.Lock()
	defer r.mu.Unlock()

	cart, ok := r.carts[userID]
	if !ok {
		cart = domain.NewCart(userID)
		r.carts[userID] = cart
	}
	return cart.Clone(), nil
}

func (r *CartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	_ = ctx
	if cart == nil || cart.UserID == "" {
		return fmt.Errorf("cart repository: user id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.carts[cart.UserID] = cart.Clone()
	return nil
}
