package inventory

import "context"

// Repository owns all per-product stock mutations. Each mutation is atomic
// with respect to concurrent mutations of the same product: the availability
// check and the counter update happen as one operation, either under a
// per-product lock (memory) or as a single conditional statement (postgres).
// Mutations against different products never block each other.
//
// Records are created lazily with quantity zero, so reads never fail with a
// missing-record error during checkout.
type Repository interface {
	Get(ctx context.Context, productID string) (*Record, error)
	List(ctx context.Context, lowStockOnly bool) ([]*Record, error)
	Reserve(ctx context.Context, productID string, quantity int) (*Record, error)
	Release(ctx context.Context, productID string, quantity int) (*Record, error)
	Confirm(ctx context.Context, productID string, quantity int) (*Record, error)
	Reduce(ctx context.Context, productID string, quantity int) (*Record, error)
	SetStock(ctx context.Context, productID string, quantity, lowStockThreshold int) (*Record, error)
	AddStock(ctx context.Context, productID string, quantity int) (*Record, error)
}
