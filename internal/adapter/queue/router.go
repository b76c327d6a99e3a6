package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/masakoww/jambistore-app-sub000/internal/logging"
	"github.com/masakoww/jambistore-app-sub000/internal/metrics"
)

// Router runs one consumer per registered queue on a shared channel.
type Router struct {
	ch       *amqp.Channel
	prefetch int
	timeout  time.Duration
	requeue  bool
	log      *slog.Logger
	routes   map[string]Handler
}

type RouterOption func(*Router)

func WithPrefetch(n int) RouterOption {
	return func(r *Router) {
		if n > 0 {
			r.prefetch = n
		}
	}
}

func WithTimeout(d time.Duration) RouterOption {
	return func(r *Router) {
		if d > 0 {
			r.timeout = d
		}
	}
}

func WithRequeue(b bool) RouterOption { return func(r *Router) { r.requeue = b } }

// NewRouter defaults to prefetch 20, a two minute handler timeout, and one
// requeue per failed message.
func NewRouter(ch *amqp.Channel, opts ...RouterOption) *Router {
	r := &Router{
		ch:       ch,
		prefetch: 20,
		timeout:  2 * time.Minute,
		requeue:  true,
		log:      logging.New("rabbit"),
		routes:   map[string]Handler{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) Register(queue string, h Handler) {
	r.routes[queue] = h
}

// Start subscribes every registered queue and returns. Consumers are cancelled
// when ctx is done; a handler already running keeps its own deadline.
func (r *Router) Start(ctx context.Context) error {
	if err := r.ch.Qos(r.prefetch, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	for queue, h := range r.routes {
		tag := "fulfillment." + queue
		msgs, err := r.ch.Consume(queue, tag, false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("consume %s: %w", queue, err)
		}
		go r.consume(queue, h, msgs)
		go func() {
			<-ctx.Done()
			_ = r.ch.Cancel(tag, false)
		}()
	}
	return nil
}

func (r *Router) consume(queue string, h Handler, msgs <-chan amqp.Delivery) {
	log := r.log.With("queue", queue)
	for d := range msgs {
		r.handle(log, h, d)
	}
	log.Info("consumer stopped")
}

func (r *Router) handle(log *slog.Logger, h Handler, d amqp.Delivery) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	ctx = logging.WithCtx(ctx, log.With("msg_id", d.MessageId))

	if err := h.Handle(ctx, d); err != nil {
		// a second failure drops the message so it cannot loop
		requeue := r.requeue && !d.Redelivered
		log.Error("handler failed", "rk", d.RoutingKey, "redelivered", d.Redelivered, "requeue", requeue, "err", err)
		metrics.QueueMessages.WithLabelValues("rabbit", "nack").Inc()
		_ = d.Nack(false, requeue)
		return
	}
	metrics.QueueMessages.WithLabelValues("rabbit", "ack").Inc()
	_ = d.Ack(false)
}
