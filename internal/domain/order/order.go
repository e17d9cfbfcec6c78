package order

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("order: not found")
	ErrConflict          = errors.New("order: already exists")
	ErrInvalidQuantity   = errors.New("order: quantity must be greater than zero")
	ErrEmptyItems        = errors.New("order: at least one item is required")
	ErrInvalidAddress    = errors.New("order: invalid shipping address")
	ErrInvalidTransition = errors.New("order: invalid status transition")
)

type Status string

const (
	StatusPending       Status = "PENDING"
	StatusConfirmed     Status = "CONFIRMED"
	StatusShipped       Status = "SHIPPED"
	StatusDelivered     Status = "DELIVERED"
	StatusCancelled     Status = "CANCELLED"
	StatusPaymentFailed Status = "PAYMENT_FAILED"
)

// transitions lists the allowed successor statuses. DELIVERED, CANCELLED and
// PAYMENT_FAILED are terminal.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusCancelled, StatusPaymentFailed},
	StatusConfirmed: {StatusShipped, StatusCancelled},
	StatusShipped:   {StatusDelivered},
}

// Item is a priced order line captured at reservation time. Later catalog
// price changes never alter a persisted order's total.
type Item struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

type ShippingAddress struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	Zip     string `json:"zip"`
	Country string `json:"country"`
	Name    string `json:"name,omitempty"`
	Email   string `json:"email,omitempty"`
	Phone   string `json:"phone,omitempty"`
}

func (a ShippingAddress) Validate() error {
	for field, v := range map[string]string{
		"street":  a.Street,
		"city":    a.City,
		"zip":     a.Zip,
		"country": a.Country,
	} {
		if v == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidAddress, field)
		}
	}
	return nil
}

type Order struct {
	ID              string
	UserID          string
	Items           []Item
	ShippingAddress ShippingAddress
	PaymentMethod   string
	Status          Status
	TotalAmount     decimal.Decimal
	// StockReserved marks orders whose lines hold inventory reservations.
	// Orders placed directly against the API hold no stock, and resolving
	// them must not confirm or release anything.
	StockReserved bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func New(id, userID string, items []Item, address ShippingAddress, paymentMethod string) (*Order, error) {
	if len(items) == 0 {
		return nil, ErrEmptyItems
	}
	for _, it := range items {
		if it.Quantity <= 0 {
			return nil, ErrInvalidQuantity
		}
	}
	if err := address.Validate(); err != nil {
		return nil, err
	}

	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}

	now := time.Now().UTC()
	return &Order{
		ID:              id,
		UserID:          userID,
		Items:           append([]Item(nil), items...),
		ShippingAddress: address,
		PaymentMethod:   paymentMethod,
		Status:          StatusPending,
		TotalAmount:     total,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// TransitionTo moves the order along its lifecycle, rejecting jumps the
// lifecycle does not allow.
func (o *Order) TransitionTo(next Status) error {
	if o.Status == next {
		return nil
	}
	for _, allowed := range transitions[o.Status] {
		if allowed == next {
			o.Status = next
			o.UpdatedAt = time.Now().UTC()
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, next)
}

func (o *Order) IsTerminal() bool {
	switch o.Status {
	case StatusDelivered, StatusCancelled, StatusPaymentFailed:
		return true
	}
	return false
}

func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.Items = append([]Item(nil), o.Items...)
	return &clone
}

func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusConfirmed, StatusShipped, StatusDelivered, StatusCancelled, StatusPaymentFailed:
		return Status(s), nil
	}
	return "", fmt.Errorf("order: unknown status %q", s)
}
