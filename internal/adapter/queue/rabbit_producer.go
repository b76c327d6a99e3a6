package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

const (
	NotifyExchange   = "fulfillment.notifications"
	EmailRoutingKey  = "email.send"
	EmailQueue       = "email.send.q"
	DispatchExchange = "fulfillment.commands"
	DispatchKey      = "order.dispatch"
	DispatchQueue    = "order.dispatch.q"
)

// Declare sets up the exchanges, queues and bindings this service uses.
func Declare(ch *amqp.Channel) error {
	for _, b := range []struct{ exchange, queue, key string }{
		{NotifyExchange, EmailQueue, EmailRoutingKey},
		{DispatchExchange, DispatchQueue, DispatchKey},
	} {
		if err := ch.ExchangeDeclare(
			b.exchange,
			"topic",
			true,  // durable
			false, // auto-delete
			false, // internal
			false, // no-wait
			nil,
		); err != nil {
			return fmt.Errorf("declare exchange %s: %w", b.exchange, err)
		}
		q, err := ch.QueueDeclare(b.queue, true, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("declare queue %s: %w", b.queue, err)
		}
		if err := ch.QueueBind(q.Name, b.key, b.exchange, false, nil); err != nil {
			return fmt.Errorf("bind %s: %w", b.queue, err)
		}
	}
	return nil
}

// RabbitProducer publishes rendered emails and dispatch commands with publisher
// confirms. A channel is not safe for concurrent publishing, hence the mutex.
type RabbitProducer struct {
	mu sync.Mutex
	ch *amqp.Channel
}

func NewRabbitProducer(ch *amqp.Channel) (*RabbitProducer, error) {
	if err := Declare(ch); err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		return nil, fmt.Errorf("enable confirm mode: %w", err)
	}
	return &RabbitProducer{ch: ch}, nil
}

func (p *RabbitProducer) PublishEmail(ctx context.Context, msg usecase.EmailMsg) error {
	return p.publish(ctx, NotifyExchange, EmailRoutingKey, msg.NotificationID, msg)
}

func (p *RabbitProducer) PublishDispatch(ctx context.Context, msg usecase.DispatchCmdMsg) error {
	return p.publish(ctx, DispatchExchange, DispatchKey, "", msg)
}

func (p *RabbitProducer) publish(ctx context.Context, exchange, key, msgID string, v any) error {
	body, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	pub := amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msgID,
		Body:         body,
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	conf, err := p.ch.PublishWithDeferredConfirmWithContext(ctx, exchange, key, false, false, pub)
	if err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	ok, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("publish confirm: %w", err)
	}
	if !ok {
		return fmt.Errorf("publish to %s nacked by broker", exchange)
	}
	return nil
}
