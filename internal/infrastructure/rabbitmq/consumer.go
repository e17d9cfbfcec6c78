package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/greenmart/checkout-core/internal/observability"
	amqp "github.com/rabbitmq/amqp091-go"
)

// ErrMalformedMessage marks a message that can never be processed. The
// consumer drops it without requeue instead of looping on it.
var ErrMalformedMessage = errors.New("rabbitmq: malformed message")

// MessageHandler processes one decoded message body. Returning
// ErrMalformedMessage (wrapped or not) drops the message; any other error
// also drops it without requeue, per the poison-message policy.
type MessageHandler func(ctx context.Context, body []byte) error

// Consumer consumes a durable queue one message at a time: prefetch 1,
// manual ack after the handler succeeds, nack without requeue otherwise.
type Consumer struct {
	ch  *amqp.Channel
	log observability.Logger
}

func NewConsumer(ch *amqp.Channel, logger observability.Logger) *Consumer {
	if logger == nil {
		logger = observability.NopLogger()
	}
	return &Consumer{
		ch:  ch,
		log: logger.With(observability.F("component", "rabbitmq_consumer")),
	}
}

func (c *Consumer) Consume(ctx context.Context, queue string, handler MessageHandler) error {
	if err := c.ch.Qos(1, 0, false); err != nil {
		return err
	}

	msgs, err := c.ch.Consume(
		queue,
		"",    // consumer tag
		false, // manual ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,   // args
	)
	if err != nil {
		return err
	}

	go func() {
		logger := c.log.With(observability.F("queue", queue))
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				if ack := c.handleDelivery(ctx, handler, d.Body, logger); ack {
					_ = d.Ack(false)
				} else {
					_ = d.Nack(false, false) // no requeue: poison-message policy
				}
			}
		}
	}()

	return nil
}

// handleDelivery returns true when the message should be acked.
func (c *Consumer) handleDelivery(ctx context.Context, handler MessageHandler, body []byte, logger observability.Logger) bool {
	err := handler(ctx, body)
	if err == nil {
		return true
	}
	if errors.Is(err, ErrMalformedMessage) {
		logger.Error("message_dropped_malformed",
			observability.F("error", err.Error()),
		)
		return false
	}
	logger.Warn("message_processing_failed",
		observability.F("error", err.Error()),
	)
	return false
}

// DecodeJSON unmarshals a message body, classifying parse failures as
// malformed so they are never retried.
func DecodeJSON(body []byte, dst any) error {
	if err := json.Unmarshal(body, dst); err != nil {
		return errors.Join(ErrMalformedMessage, err)
	}
	return nil
}
