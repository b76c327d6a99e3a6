package queue

import (
	"context"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one delivery. Returning nil acks it; an error nacks it and
// the Router requeues it at most once. Handlers must be safe to run twice for
// the same message.
type Handler interface {
	Handle(ctx context.Context, d amqp.Delivery) error
}
