package memory

import (
	"context"
	"sync"

	domain "github.com/greenmart/checkout-core/internal/domain/inventory"
)

// InventoryRepository keeps stock records in process. Every mutation runs
// its availability check and counter update under a per-product mutex, so
// concurrent reservations against one product serialize while different
// products proceed in parallel.
type InventoryRepository struct {
	mu               sync.RWMutex // guards the maps, not the records
	records          map[string]*domain.Record
	locks            map[string]*sync.Mutex
	defaultThreshold int
}

func NewInventoryRepository(defaultThreshold int) *InventoryRepository {
	return &InventoryRepository{
		records:          make(map[string]*domain.Record),
		locks:            make(map[string]*sync.Mutex),
		defaultThreshold: defaultThreshold,
	}
}

func (r *InventoryRepository) Get(ctx context.Context, productID string) (*domain.Record, error) {
	_ = ctx
	lock := r.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	return r.loadOrCreate(productID).Clone(), nil
}

func (r *InventoryRepository) List(ctx context.Context, lowStockOnly bool) ([]*domain.Record, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.Record, 0, len(r.records))
	for _, rec := range r.records {
		if lowStockOnly && !rec.IsLowStock() {
			continue
		}
		out = append(out, rec.Clone())
	}
	return out, nil
}

func (r *InventoryRepository) Reserve(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	return r.mutate(ctx, productID, func(rec *domain.Record) error {
		return rec.Reserve(quantity)
	})
}

func (r *InventoryRepository) Release(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	return r.mutate(ctx, productID, func(rec *domain.Record) error {
		return rec.Release(quantity)
	})
}

func (r *InventoryRepository) Confirm(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	return r.mutate(ctx, productID, func(rec *domain.Record) error {
		return rec.Confirm(quantity)
	})
}

func (r *InventoryRepository) Reduce(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	return r.mutate(ctx, productID, func(rec *domain.Record) error {
		return rec.Reduce(quantity)
	})
}

func (r *InventoryRepository) SetStock(ctx context.Context, productID string, quantity, lowStockThreshold int) (*domain.Record, error) {
	return r.mutate(ctx, productID, func(rec *domain.Record) error {
		return rec.SetStock(quantity, lowStockThreshold)
	})
}

func (r *InventoryRepository) AddStock(ctx context.Context, productID string, quantity int) (*domain.Record, error) {
	return r.mutate(ctx, productID, func(rec *domain.Record) error {
		return rec.AddStock(quantity)
	})
}

// mutate applies fn to the live record while holding the product lock.
// The mutation is all-or-nothing: fn errors leave the stored record intact
// because fn operates on a scratch clone that is only swapped in on success.
func (r *InventoryRepository) mutate(ctx context.Context, productID string, fn func(*domain.Record) error) (*domain.Record, error) {
	_ = ctx
	lock := r.productLock(productID)
	lock.Lock()
	defer lock.Unlock()

	scratch := r.loadOrCreate(productID).Clone()
	if err := fn(scratch); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.records[productID] = scratch
	r.mu.Unlock()

	return scratch.Clone(), nil
}

func (r *InventoryRepository) productLock(productID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	lock, ok := r.locks[productID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[productID] = lock
	}
	return lock
}

// loadOrCreate must be called with the product lock held.
func (r *InventoryRepository) loadOrCreate(productID string) *domain.Record {
	r.mu.RLock()
	rec, ok := r.records[productID]
	r.mu.RUnlock()
	if ok {
		return rec
	}

	rec, _ = domain.NewRecord(productID, 0, r.defaultThreshold)
	r.mu.Lock()
	r.records[productID] = rec
	r.mu.Unlock()
	return rec
}
