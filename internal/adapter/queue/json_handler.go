package queue

import (
	"context"
	"encoding/json"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/masakoww/jambistore-app-sub000/internal/logging"
	"github.com/masakoww/jambistore-app-sub000/internal/metrics"
)

// JSONHandler decodes the body into T before calling HandleFunc. Bodies that do
// not decode are acked: no redelivery will fix them.
type JSONHandler[T any] struct {
	HandleFunc func(ctx context.Context, msg T) error
}

func (h JSONHandler[T]) Handle(ctx context.Context, d amqp.Delivery) error {
	var msg T
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		metrics.QueueMessages.WithLabelValues("rabbit", "decode_error").Inc()
		logging.FromCtx(ctx).Warn("undecodable message dropped", "rk", d.RoutingKey, "bytes", len(d.Body), "err", err)
		return nil
	}
	return h.HandleFunc(ctx, msg)
}
