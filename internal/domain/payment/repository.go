package payment

import "context"

type Repository interface {
	Insert(ctx context.Context, txn *Transaction) error
	Get(ctx context.Context, id string) (*Transaction, error)
	GetByOrder(ctx context.Context, orderID string) (*Transaction, error)
	ListByUser(ctx context.Context, userID string) ([]*Transaction, error)
	Update(ctx context.Context, txn *Transaction) error
}
