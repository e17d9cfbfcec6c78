package order

import (
	"context"
	"time"
)

type Repository interface {
	Insert(ctx context.Context, order *Order) error
	Get(ctx context.Context, id string) (*Order, error)
	ListByUser(ctx context.Context, userID string) ([]*Order, error)
	Update(ctx context.Context, order *Order) error
	// ListStale returns orders stuck in the given status since before the
	// cutoff, oldest first. Used by the checkout reconciler.
	ListStale(ctx context.Context, status Status, before time.Time, limit int) ([]*Order, error)
}

type CartRepository interface {
	// Get returns the user's cart, creating an empty one when absent.
	Get(ctx context.Context, userID string) (*Cart, error)
	Save(ctx context.Context, cart *Cart) error
}
