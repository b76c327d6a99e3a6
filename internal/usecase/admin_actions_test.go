package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

type memCache struct{ m map[string]string }

func (c *memCache) SetStatus(_ context.Context, id, status string) error {
	c.m[id] = status
	return nil
}

func (c *memCache) GetStatus(_ context.Context, id string) (string, error) {
	s, ok := c.m[id]
	if !ok {
		return "", domain.ErrOrderNotFound
	}
	return s, nil
}

var admin = domain.Actor{Type: domain.ActorAdmin, ID: "admin-7"}

func newAdmin(f *fixture, cache usecase.OrderCache) *usecase.AdminActions {
	return usecase.NewAdminActions(f.store.Orders(), f.store.Products(), f.store.Audit(), f.store, cache, clock)
}

func TestAdminDeliver(t *testing.T) {
	f := newFixture(t)
	cache := &memCache{m: map[string]string{}}
	f.product("prod-cv", "canva", domain.DeliveryConfig{Type: "manual"})
	f.order("ord-1", "prod-cv", "budi@example.com", domain.StatusPending)

	o, err := newAdmin(f, cache).Deliver(context.Background(), "ord-1", admin, map[string]any{"invite": "https://canva.test/i/1"})
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, o.Status)
	assert.Equal(t, "admin-7", o.Delivery.DeliveredBy)
	assert.Equal(t, "COMPLETED", cache.m["ord-1"])

	entries, err := f.store.Audit().ListByOrder(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.AuditDeliveredManual, entries[0].Event)
	assert.Equal(t, admin, entries[0].Actor)

	// manual delivery sends the content mail but no review request
	due := f.due(now.Add(usecase.DefaultReviewDelay))
	require.Len(t, due, 1)
	assert.Equal(t, domain.TemplateOrderDelivered, due[0].Template)
}

func TestAdminDeliverValidation(t *testing.T) {
	f := newFixture(t)
	f.order("ord-1", "prod-x", "budi@example.com", domain.StatusRejected)
	a := newAdmin(f, nil)

	_, err := a.Deliver(context.Background(), "ord-1", admin, nil)
	assert.ErrorIs(t, err, usecase.ErrEmptyContent)
	_, err = a.Deliver(context.Background(), "ord-1", admin, map[string]any{"code": "x"})
	assert.ErrorIs(t, err, domain.ErrOrderTerminal)
	_, err = a.Deliver(context.Background(), "ord-2", admin, map[string]any{"code": "x"})
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestAdminReject(t *testing.T) {
	f := newFixture(t)
	f.order("ord-1", "prod-cv", "budi@example.com", domain.StatusPending)
	a := newAdmin(f, nil)

	_, err := a.Reject(context.Background(), "ord-1", admin, "   ")
	assert.ErrorIs(t, err, usecase.ErrEmptyReason)

	o, err := a.Reject(context.Background(), "ord-1", admin, "payment reversed")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, o.Status)
	assert.Equal(t, "payment reversed", f.reload("ord-1").RejectionReason)
	assert.Empty(t, f.due(now.Add(usecase.DefaultReviewDelay)))

	_, err = a.Reject(context.Background(), "ord-1", admin, "again")
	assert.ErrorIs(t, err, domain.ErrOrderTerminal)

	trail, err := a.AuditTrail(context.Background(), "ord-1")
	require.NoError(t, err)
	require.Len(t, trail, 1)
	assert.Equal(t, domain.AuditRejected, trail[0].Event)
	assert.Equal(t, "payment reversed", trail[0].Payload["reason"])
}

func TestCustomerStatusView(t *testing.T) {
	f := newFixture(t)
	cache := &memCache{m: map[string]string{}}
	f.order("ord-1", "prod-cv", "budi@example.com", domain.StatusProcessing)
	v := usecase.NewOrderStatusView(f.store.Orders(), cache)

	st, err := v.CustomerStatus(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, st)

	// non-terminal cache entries are never trusted
	_, err = newAdmin(f, nil).Reject(context.Background(), "ord-1", admin, "fraud")
	require.NoError(t, err)
	st, err = v.CustomerStatus(context.Background(), "ord-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusRejected, st)
	assert.Equal(t, "REJECTED", cache.m["ord-1"])

	_, err = v.CustomerStatus(context.Background(), "nope")
	assert.ErrorIs(t, err, domain.ErrOrderNotFound)
}
