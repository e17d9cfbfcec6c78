package order

import "time"

// StatusChangedEvent is emitted after an order status transition is
// persisted. Consumed asynchronously by notification; fire-and-forget.
type StatusChangedEvent struct {
	OrderID    string    `json:"orderId"`
	UserID     string    `json:"userId"`
	OldStatus  Status    `json:"oldStatus"`
	NewStatus  Status    `json:"newStatus"`
	OccurredAt time.Time `json:"occurredAt"`
}

func (StatusChangedEvent) EventName() string { return "order.status_changed" }

func NewStatusChangedEvent(o *Order, old Status) StatusChangedEvent {
	return StatusChangedEvent{
		OrderID:    o.ID,
		UserID:     o.UserID,
		OldStatus:  old,
		NewStatus:  o.Status,
		OccurredAt: time.Now().UTC(),
	}
}
