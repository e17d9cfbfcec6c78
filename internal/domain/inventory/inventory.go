package inventory

import (
	"errors"
	"time"
)

var (
	ErrNotFound          = errors.New("inventory: record not found")
	ErrInvalidQuantity   = errors.New("inventory: quantity must be greater than zero")
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
)

// Record tracks stock for a single product. Quantity is the total owned
// amount; ReservedQuantity is held against pending orders. The sellable
// amount is always derived, never stored.
type Record struct {
	ProductID         string
	Quantity          int
	ReservedQuantity  int
	LowStockThreshold int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func NewRecord(productID string, quantity, lowStockThreshold int) (*Record, error) {
	if quantity < 0 {
		return nil, ErrInvalidQuantity
	}
	now := time.Now().UTC()
	return &Record{
		ProductID:         productID,
		Quantity:          quantity,
		ReservedQuantity:  0,
		LowStockThreshold: lowStockThreshold,
		CreatedAt:         now,
		UpdatedAt:         now,
	}, nil
}

// Available is the sellable amount at this instant.
func (r *Record) Available() int {
	return r.Quantity - r.ReservedQuantity
}

func (r *Record) IsLowStock() bool {
	return r.Quantity <= r.LowStockThreshold
}

// Reserve places a hold against available stock without reducing the total.
func (r *Record) Reserve(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if r.Available() < quantity {
		return ErrInsufficientStock
	}
	r.ReservedQuantity += quantity
	r.touch()
	return nil
}

// Release returns a hold to the sellable pool. Clamped at zero so that a
// double release or a release after partial confirmation never corrupts the
// record.
func (r *Record) Release(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	r.ReservedQuantity = max(0, r.ReservedQuantity-quantity)
	r.touch()
	return nil
}

// Confirm converts a hold into a permanent deduction. Both counters are
// clamped at zero.
func (r *Record) Confirm(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	r.ReservedQuantity = max(0, r.ReservedQuantity-quantity)
	r.Quantity = max(0, r.Quantity-quantity)
	r.touch()
	return nil
}

// Reduce deducts from the total directly, bypassing reservations. Used for
// non-order adjustments such as damage write-offs.
func (r *Record) Reduce(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	if r.Available() < quantity {
		return ErrInsufficientStock
	}
	r.Quantity -= quantity
	r.touch()
	return nil
}

// SetStock overwrites the total. A negative threshold keeps the current one.
func (r *Record) SetStock(quantity, lowStockThreshold int) error {
	if quantity < 0 {
		return ErrInvalidQuantity
	}
	r.Quantity = quantity
	if lowStockThreshold >= 0 {
		r.LowStockThreshold = lowStockThreshold
	}
	r.touch()
	return nil
}

func (r *Record) AddStock(quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	r.Quantity += quantity
	r.touch()
	return nil
}

func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	clone := *r
	return &clone
}

func (r *Record) touch() {
	r.UpdatedAt = time.Now().UTC()
}
