package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	dominventory "github.com/greenmart/checkout-core/internal/domain/inventory"
	domorder "github.com/greenmart/checkout-core/internal/domain/order"
	domoutbox "github.com/greenmart/checkout-core/internal/domain/outbox"
	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher routes domain events to their durable queues. Events without a
// queue mapping are dropped silently; new event types must be added to the
// routing table here.
type Publisher struct {
	ch *amqp.Channel
}

func NewPublisher(ch *amqp.Channel) *Publisher {
	return &Publisher{ch: ch}
}

var _ domoutbox.Publisher = (*Publisher)(nil)

func (p *Publisher) Publish(ctx context.Context, e domoutbox.Event) error {
	queue := queueFor(e)
	if queue == "" {
		return nil
	}

	body, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("could not marshal %s event: %w", e.EventName(), err)
	}

	return p.ch.PublishWithContext(ctx,
		"",    // default exchange
		queue, // routing key = queue name
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
		},
	)
}

func queueFor(e domoutbox.Event) string {
	switch e.EventName() {
	case dominventory.LowStockAlert{}.EventName():
		return QueueLowStockAlerts
	case domorder.StatusChangedEvent{}.EventName():
		return QueueOrderStatusEvents
	}
	return ""
}
