package usecase

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/logging"
)

var (
	ErrEmptyContent = errors.New("delivery content is empty")
	ErrEmptyReason  = errors.New("rejection reason is empty")
)

// AdminActions are the transitions only an operator can make.
type AdminActions struct {
	orders   OrderRepo
	products ProductRepo
	audit    AuditLog
	tx       TxRunner
	cache    OrderCache
	done     completion
	now      Clock
	log      *slog.Logger
}

func NewAdminActions(orders OrderRepo, products ProductRepo, audit AuditLog, tx TxRunner, cache OrderCache, now Clock) *AdminActions {
	if now == nil {
		now = time.Now
	}
	return &AdminActions{
		orders:   orders,
		products: products,
		audit:    audit,
		tx:       tx,
		cache:    cache,
		done:     completion{now: now, reviewDelay: DefaultReviewDelay},
		now:      now,
		log:      logging.New("admin"),
	}
}

// Deliver completes an order with content supplied by the admin.
func (a *AdminActions) Deliver(ctx context.Context, orderID string, admin domain.Actor, content map[string]any) (*domain.Order, error) {
	if len(content) == 0 {
		return nil, ErrEmptyContent
	}
	o, err := a.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.IsTerminal() {
		return nil, domain.ErrOrderTerminal
	}
	p, err := a.products.GetByID(ctx, o.ProductID)
	if err != nil && !errors.Is(err, domain.ErrProductNotFound) {
		return nil, err
	}

	var updated *domain.Order
	err = a.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		updated, err = a.done.deliver(ctx, tx, deliveredWrite{
			OrderID:      orderID,
			Product:      p,
			Kind:         domain.KindManual,
			Content:      content,
			Actor:        admin,
			Event:        domain.AuditDeliveredManual,
			AuditPayload: map[string]any{"admin": admin.ID},
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	a.cacheStatus(ctx, updated)
	a.log.Info("order delivered manually", "order_id", orderID, "admin", admin.ID)
	return updated, nil
}

// Reject closes an open order. No customer notification is sent.
func (a *AdminActions) Reject(ctx context.Context, orderID string, admin domain.Actor, reason string) (*domain.Order, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrEmptyReason
	}
	now := a.now()
	var updated *domain.Order
	err := a.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		o, err := tx.Orders().GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if err := o.Reject(reason, now); err != nil {
			return err
		}
		if err := tx.Orders().SaveTransition(ctx, o, domain.OpenStatuses()...); err != nil {
			return err
		}
		updated = o
		return tx.Audit().Append(ctx, domain.AuditEntry{
			OrderID:   orderID,
			Event:     domain.AuditRejected,
			Actor:     admin,
			Payload:   map[string]any{"reason": reason},
			Timestamp: now,
		})
	})
	if err != nil {
		return nil, err
	}
	a.cacheStatus(ctx, updated)
	a.log.Info("order rejected", "order_id", orderID, "admin", admin.ID)
	return updated, nil
}

func (a *AdminActions) AuditTrail(ctx context.Context, orderID string) ([]domain.AuditEntry, error) {
	if _, err := a.orders.GetByID(ctx, orderID); err != nil {
		return nil, err
	}
	return a.audit.ListByOrder(ctx, orderID)
}

func (a *AdminActions) cacheStatus(ctx context.Context, o *domain.Order) {
	if a.cache == nil || o == nil {
		return
	}
	if err := a.cache.SetStatus(ctx, o.ID, string(o.CustomerStatus())); err != nil {
		a.log.Warn("cache order status", "order_id", o.ID, "err", err)
	}
}
