package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masakoww/jambistore-app-sub000/internal/adapter/repo/repotest"
	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
)

func TestNotificationLifecycle(t *testing.T) {
	s := repotest.New(t)
	ctx := context.Background()
	q := s.Notifications()

	require.NoError(t, q.Enqueue(ctx,
		domain.NotificationItem{ID: "n-now", Recipient: "a@x", Template: domain.TemplateOrderDelivered,
			Data: map[string]any{"order_id": "ord-1"}, ScheduledAt: t0, CreatedAt: t0},
		domain.NotificationItem{ID: "n-later", Recipient: "a@x", Template: domain.TemplateReviewRequest,
			ScheduledAt: t0.Add(3 * time.Minute), CreatedAt: t0},
	))

	due, err := q.ListDue(ctx, t0, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "n-now", due[0].ID)
	assert.Equal(t, domain.NotificationPending, due[0].Status)
	assert.Equal(t, "ord-1", due[0].Data["order_id"])

	ok, err := q.Claim(ctx, "n-now", t0)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = q.Claim(ctx, "n-now", t0)
	require.NoError(t, err)
	assert.False(t, ok, "a claimed item cannot be claimed twice")

	require.NoError(t, q.Reschedule(ctx, "n-now", "smtp down", t0.Add(time.Minute), t0))
	it, err := q.Get(ctx, "n-now")
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationPending, it.Status)
	assert.Equal(t, 1, it.Attempts)
	assert.Equal(t, "smtp down", it.LastError)

	due, err = q.ListDue(ctx, t0.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "n-now", due[0].ID)

	due, err = q.ListDue(ctx, t0.Add(5*time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, due, 2)

	ok, err = q.Claim(ctx, "n-now", t0.Add(time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, q.MarkCompleted(ctx, "n-now", t0.Add(time.Minute)))
	it, err = q.Get(ctx, "n-now")
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationCompleted, it.Status)
	assert.Equal(t, 2, it.Attempts)
	assert.Empty(t, it.LastError)

	ok, err = q.Claim(ctx, "n-later", t0.Add(5*time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	require.NoError(t, q.MarkFailed(ctx, "n-later", "bounced", t0.Add(5*time.Minute)))
	it, err = q.Get(ctx, "n-later")
	require.NoError(t, err)
	assert.Equal(t, domain.NotificationFailed, it.Status)

	due, err = q.ListDue(ctx, t0.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, due)
}

func TestListDueRespectsLimit(t *testing.T) {
	s := repotest.New(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, s.Notifications().Enqueue(ctx, domain.NotificationItem{
			Recipient: "a@x", Template: domain.TemplateOrderCreated, ScheduledAt: t0.Add(time.Duration(i) * time.Second),
		}))
	}
	due, err := s.Notifications().ListDue(ctx, t0.Add(time.Minute), 3)
	require.NoError(t, err)
	assert.Len(t, due, 3)
	assert.True(t, due[0].ScheduledAt.Before(due[1].ScheduledAt))
}
