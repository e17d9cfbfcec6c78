package inventory

import "time"

// LowStockAlert is emitted when a mutation leaves total quantity at or below
// the product's threshold. Consumed asynchronously by notification; publish
// failures never fail the triggering mutation.
type LowStockAlert struct {
	ProductID         string    `json:"productId"`
	Quantity          int       `json:"quantity"`
	LowStockThreshold int       `json:"lowStockThreshold"`
	Timestamp         time.Time `json:"timestamp"`
}

func (LowStockAlert) EventName() string { return "inventory.low_stock" }

func NewLowStockAlert(r *Record) LowStockAlert {
	return LowStockAlert{
		ProductID:         r.ProductID,
		Quantity:          r.Quantity,
		LowStockThreshold: r.LowStockThreshold,
		Timestamp:         time.Now().UTC(),
	}
}
