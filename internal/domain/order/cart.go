package order

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrItemNotInCart = errors.New("order: item not in cart")

// Cart is the per-user pre-checkout staging area. It is ephemeral: checkout
// clears it on success and it carries no reservation of its own.
type Cart struct {
	UserID     string
	Items      []Item
	TotalPrice decimal.Decimal
	UpdatedAt  time.Time
}

func NewCart(userID string) *Cart {
	return &Cart{
		UserID:     userID,
		TotalPrice: decimal.Zero,
		UpdatedAt:  time.Now().UTC(),
	}
}

// AddItem merges quantities when the product is already present.
func (c *Cart) AddItem(item Item) error {
	if item.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	for i := range c.Items {
		if c.Items[i].ProductID == item.ProductID {
			c.Items[i].Quantity += item.Quantity
			c.recalculate()
			return nil
		}
	}
	c.Items = append(c.Items, item)
	c.recalculate()
	return nil
}

func (c *Cart) UpdateItem(productID string, quantity int) error {
	if quantity <= 0 {
		return ErrInvalidQuantity
	}
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items[i].Quantity = quantity
			c.recalculate()
			return nil
		}
	}
	return ErrItemNotInCart
}

func (c *Cart) RemoveItem(productID string) error {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			c.Items = append(c.Items[:i], c.Items[i+1:]...)
			c.recalculate()
			return nil
		}
	}
	return ErrItemNotInCart
}

func (c *Cart) Clear() {
	c.Items = nil
	c.recalculate()
}

func (c *Cart) IsEmpty() bool { return len(c.Items) == 0 }

func (c *Cart) Clone() *Cart {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Items = append([]Item(nil), c.Items...)
	return &clone
}

func (c *Cart) recalculate() {
	total := decimal.Zero
	for _, it := range c.Items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	c.TotalPrice = total
	c.UpdatedAt = time.Now().UTC()
}
