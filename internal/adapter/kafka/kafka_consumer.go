package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/IBM/sarama"

	"github.com/masakoww/jambistore-app-sub000/internal/logging"
	"github.com/masakoww/jambistore-app-sub000/internal/metrics"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

// HandlerFunc processes a decoded payment event.
type HandlerFunc func(ctx context.Context, ev usecase.PaymentEventMsg) error

// Consumer consumes payment event topics with a single handler.
type Consumer struct {
	Group  sarama.ConsumerGroup
	Topics []string
	Handle HandlerFunc
	Logger *slog.Logger
}

func NewConsumer(group sarama.ConsumerGroup, topics []string, h HandlerFunc) *Consumer {
	return &Consumer{
		Group:  group,
		Topics: topics,
		Handle: h,
		Logger: logging.New("kafka"),
	}
}

// Start blocks until ctx is cancelled or the group fails.
func (c *Consumer) Start(ctx context.Context) error {
	handler := &cgHandler{handle: c.Handle, logger: c.Logger}
	for {
		if err := c.Group.Consume(ctx, c.Topics, handler); err != nil {
			return err
		}
		// Consume returns on rebalance or cancellation.
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

type cgHandler struct {
	handle HandlerFunc
	logger *slog.Logger
}

func (h *cgHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *cgHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *cgHandler) ConsumeClaim(sess sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for msg := range claim.Messages() {
		h.consume(sess, msg)
	}
	return nil
}

func (h *cgHandler) consume(sess sarama.ConsumerGroupSession, msg *sarama.ConsumerMessage) {
	var ev usecase.PaymentEventMsg
	if err := json.Unmarshal(msg.Value, &ev); err != nil {
		h.logger.Warn("kafka decode error", "topic", msg.Topic, "offset", msg.Offset, "err", err)
		// poison message; skip it
		metrics.QueueMessages.WithLabelValues("kafka", "decode_error").Inc()
		sess.MarkMessage(msg, "decode-error")
		return
	}
	ctx := logging.WithCtx(sess.Context(), h.logger.With(
		"topic", msg.Topic, "partition", msg.Partition, "offset", msg.Offset, "event_id", ev.EventID))
	if err := h.handle(ctx, ev); err != nil {
		h.logger.Error("payment event handler", "order_id", ev.OrderID, "key", string(msg.Key), "offset", msg.Offset, "err", err)
		// left unmarked so the group redelivers after a rebalance
		metrics.QueueMessages.WithLabelValues("kafka", "error").Inc()
		return
	}
	metrics.QueueMessages.WithLabelValues("kafka", "ok").Inc()
	sess.MarkMessage(msg, "")
}
