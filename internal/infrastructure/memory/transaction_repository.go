package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	domain "github.com/greenmart/checkout-core/internal/domain/payment"
)

type TransactionRepository struct {
	mu      sync.RWMutex
	txns    map[string]*domain.Transaction
	byOrder map[string]string
}

func NewTransactionRepository() *TransactionRepository {
	return &TransactionRepository{
		txns:    make(map[string]*domain.Transaction),
		byOrder: make(map[string]string),
	}
}

func (r *TransactionRepository) Insert(ctx context.Context, txn *domain.Transaction) error {
	_ = ctx
	if txn == nil || txn.ID == "" {
		return fmt.Errorf("transaction repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.txns[txn.ID] = txn.Clone()
	if txn.OrderID != "" {
		r.byOrder[txn.OrderID] = txn.ID
	}
	return nil
}

func (r *TransactionRepository) Get(ctx context.Context, id string) (*domain.Transaction, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	txn, ok := r.txns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return txn.Clone(), nil
}

func (r *TransactionRepository) GetByOrder(ctx context.Context, orderID string) (*domain.Transaction, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.byOrder[orderID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	txn, ok := r.txns[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return txn.Clone(), nil
}

func (r *TransactionRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Transaction, error) {
	_ = ctx
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*domain.Transaction
	for _, t := range r.txns {
		if t.UserID == userID {
			out = append(out, t.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *TransactionRepository) Update(ctx context.Context, txn *domain.Transaction) error {
	_ = ctx
	if txn == nil || txn.ID == "" {
		return fmt.Errorf("transaction repository: id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.txns[txn.ID]; !exists {
		return domain.ErrNotFound
	}
	r.txns[txn.ID] = txn.Clone()
	return nil
}
