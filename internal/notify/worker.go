// Package notify drains the notification queue and renders emails for the mail relay.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/logging"
	"github.com/masakoww/jambistore-app-sub000/internal/metrics"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

const (
	DefaultInterval    = time.Minute
	DefaultBatchSize   = 10
	DefaultMaxAttempts = 3
	DefaultRetryDelay  = time.Minute

	bookkeepingTimeout = 10 * time.Second
)

// ErrQueueSendFailed wraps every sender error recorded on an item.
var ErrQueueSendFailed = errors.New("notification send failed")

type WorkerConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	RetryDelay  time.Duration
}

func (c WorkerConfig) withDefaults() WorkerConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// Worker sends due notifications at least once. An item whose send fails is
// retried after RetryDelay until MaxAttempts, then parked as failed.
type Worker struct {
	queue  usecase.NotificationQueue
	sender usecase.NotificationSender
	cfg    WorkerConfig
	now    usecase.Clock
	log    *slog.Logger
}

func NewWorker(q usecase.NotificationQueue, s usecase.NotificationSender, cfg WorkerConfig, now usecase.Clock) *Worker {
	if now == nil {
		now = time.Now
	}
	return &Worker{queue: q, sender: s, cfg: cfg.withDefaults(), now: now, log: logging.New("notify-worker")}
}

// Run ticks once immediately and then every Interval until ctx is done.
func (w *Worker) Run(ctx context.Context) {
	w.log.Info("notification worker started", "interval", w.cfg.Interval, "batch", w.cfg.BatchSize)
	t := time.NewTicker(w.cfg.Interval)
	defer t.Stop()
	for {
		if _, err := w.Tick(ctx); err != nil && ctx.Err() == nil {
			w.log.Error("notification tick", "err", err)
		}
		select {
		case <-ctx.Done():
			w.log.Info("notification worker stopped")
			return
		case <-t.C:
		}
	}
}

// Tick processes one batch of due items and returns how many were sent.
func (w *Worker) Tick(ctx context.Context) (int, error) {
	items, err := w.queue.ListDue(ctx, w.now(), w.cfg.BatchSize)
	if err != nil {
		return 0, err
	}
	sent := 0
	for _, it := range items {
		if ctx.Err() != nil {
			return sent, ctx.Err()
		}
		ok, err := w.process(ctx, it)
		if err != nil {
			w.log.Error("notification bookkeeping", "id", it.ID, "err", err)
			continue
		}
		if ok {
			sent++
		}
	}
	return sent, nil
}

func (w *Worker) process(ctx context.Context, it domain.NotificationItem) (bool, error) {
	claimed, err := w.queue.Claim(ctx, it.ID, w.now())
	if err != nil || !claimed {
		return false, err
	}
	attempts := it.Attempts + 1

	sendErr := w.sender.Send(ctx, it)

	// The outcome is recorded even when ctx was cancelled mid-send, otherwise
	// the item would stay claimed and never be picked up again.
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), bookkeepingTimeout)
	defer cancel()

	now := w.now()
	if sendErr == nil {
		metrics.Notifications.WithLabelValues(it.Template, "sent").Inc()
		return true, w.queue.MarkCompleted(bctx, it.ID, now)
	}

	msg := errors.Join(ErrQueueSendFailed, sendErr).Error()
	log := w.log.With("id", it.ID, "template", it.Template, "attempts", attempts)
	if ctx.Err() != nil {
		// shutting down; hand the item back as due
		metrics.Notifications.WithLabelValues(it.Template, "interrupted").Inc()
		log.Warn("notification send interrupted", "err", sendErr)
		return false, w.queue.Reschedule(bctx, it.ID, msg, now, now)
	}
	if attempts >= w.cfg.MaxAttempts {
		metrics.Notifications.WithLabelValues(it.Template, "failed").Inc()
		log.Error("notification failed permanently", "err", sendErr)
		return false, w.queue.MarkFailed(bctx, it.ID, msg, now)
	}
	metrics.Notifications.WithLabelValues(it.Template, "retry").Inc()
	log.Warn("notification send failed, rescheduling", "err", sendErr)
	return false, w.queue.Reschedule(bctx, it.ID, msg, now.Add(w.cfg.RetryDelay), now)
}
