package notify_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masakoww/jambistore-app-sub000/internal/adapter/repo/repotest"
	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/notify"
)

type scriptedSender struct {
	mu   sync.Mutex
	errs []error
	sent []domain.NotificationItem
}

func (s *scriptedSender) Send(_ context.Context, n domain.NotificationItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	if len(s.errs) == 0 {
		return nil
	}
	err := s.errs[0]
	s.errs = s.errs[1:]
	return err
}

type testClock struct{ t time.Time }

func (c *testClock) now() time.Time { return c.t }

func TestWorkerSendsDueItems(t *testing.T) {
	store := repotest.New(t)
	ctx := context.Background()
	clk := &testClock{t: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	q := store.Notifications()
	require.NoError(t, q.Enqueue(ctx,
		domain.NotificationItem{ID: "n1", Recipient: "a@x", Template: domain.TemplateOrderDelivered, ScheduledAt: clk.t},
		domain.NotificationItem{ID: "n2", Recipient: "a@x", Template: domain.TemplateReviewRequest, ScheduledAt: clk.t.Add(3 * time.Minute)},
	))

	sender := &scriptedSender{}
	w := notify.NewWorker(q, sender, notify.WorkerConfig{}, clk.now)

	n, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, sender.sent, 1)
	assert.Equal(t, "n1", sender.sent[0].ID)

	it, err := q.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationCompleted, it.Status)

	n, err = w.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "completed items are not resent")

	clk.t = clk.t.Add(3 * time.Minute)
	n, err = w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWorkerRetriesThenFails(t *testing.T) {
	store := repotest.New(t)
	ctx := context.Background()
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	clk := &testClock{t: start}
	q := store.Notifications()
	require.NoError(t, q.Enqueue(ctx,
		domain.NotificationItem{ID: "n1", Recipient: "a@x", Template: domain.TemplateOrderCreated, ScheduledAt: start}))

	relayDown := errors.New("relay down")
	sender := &scriptedSender{errs: []error{relayDown, relayDown, relayDown}}
	w := notify.NewWorker(q, sender, notify.WorkerConfig{MaxAttempts: 3, RetryDelay: time.Minute}, clk.now)

	_, err := w.Tick(ctx)
	require.NoError(t, err)
	it, err := q.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationPending, it.Status)
	assert.Equal(t, 1, it.Attempts)
	assert.True(t, it.ScheduledAt.Equal(start.Add(time.Minute)))
	assert.Contains(t, it.LastError, "relay down")

	// not due yet
	_, err = w.Tick(ctx)
	require.NoError(t, err)
	assert.Len(t, sender.sent, 1)

	clk.t = start.Add(time.Minute)
	_, err = w.Tick(ctx)
	require.NoError(t, err)
	clk.t = start.Add(2 * time.Minute)
	_, err = w.Tick(ctx)
	require.NoError(t, err)
	assert.Len(t, sender.sent, 3)

	it, err = q.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationFailed, it.Status)
	assert.Equal(t, 3, it.Attempts)

	clk.t = start.Add(time.Hour)
	_, err = w.Tick(ctx)
	require.NoError(t, err)
	assert.Len(t, sender.sent, 3)
}

func TestWorkerRecoversAfterTransientFailure(t *testing.T) {
	store := repotest.New(t)
	ctx := context.Background()
	start := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	clk := &testClock{t: start}
	q := store.Notifications()
	require.NoError(t, q.Enqueue(ctx,
		domain.NotificationItem{ID: "n1", Recipient: "a@x", Template: domain.TemplateOrderCreated, ScheduledAt: start}))

	sender := &scriptedSender{errs: []error{errors.New("timeout")}}
	w := notify.NewWorker(q, sender, notify.WorkerConfig{}, clk.now)

	_, err := w.Tick(ctx)
	require.NoError(t, err)
	clk.t = start.Add(notify.DefaultRetryDelay)
	n, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	it, err := q.Get(ctx, "n1")
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationCompleted, it.Status)
	assert.Equal(t, 2, it.Attempts)
}

func TestWorkerBatchSize(t *testing.T) {
	store := repotest.New(t)
	ctx := context.Background()
	at := time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		require.NoError(t, store.Notifications().Enqueue(ctx,
			domain.NotificationItem{Recipient: "a@x", Template: domain.TemplateReviewRequest, ScheduledAt: at}))
	}
	sender := &scriptedSender{}
	w := notify.NewWorker(store.Notifications(), sender, notify.WorkerConfig{BatchSize: 3}, func() time.Time { return at })

	n, err := w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	n, err = w.Tick(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	store := repotest.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	w := notify.NewWorker(store.Notifications(), &scriptedSender{}, notify.WorkerConfig{Interval: 10 * time.Millisecond}, nil)

	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop")
	}
}

type cancellingSender struct{ cancel context.CancelFunc }

func (s cancellingSender) Send(ctx context.Context, _ domain.NotificationItem) error {
	s.cancel()
	return ctx.Err()
}

func TestWorkerShutdownMidSendLeavesItemDue(t *testing.T) {
	store := repotest.New(t)
	clk := &testClock{t: time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)}
	q := store.Notifications()
	require.NoError(t, q.Enqueue(context.Background(),
		domain.NotificationItem{ID: "n1", Recipient: "a@x", Template: domain.TemplateOrderDelivered, ScheduledAt: clk.t},
	))

	ctx, cancel := context.WithCancel(context.Background())
	_, _ = notify.NewWorker(q, cancellingSender{cancel: cancel}, notify.WorkerConfig{MaxAttempts: 1}, clk.now).Tick(ctx)

	it, err := q.Get(context.Background(), "n1")
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationPending, it.Status, "interrupted sends do not count as failures")
	assert.Equal(t, 1, it.Attempts)

	sender := &scriptedSender{}
	n, err := notify.NewWorker(q, sender, notify.WorkerConfig{}, clk.now).Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
