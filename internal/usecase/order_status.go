package usecase

import (
	"context"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
)

// OrderStatusView answers the storefront's "where is my order" question.
type OrderStatusView struct {
	orders OrderRepo
	cache  OrderCache
}

func NewOrderStatusView(orders OrderRepo, cache OrderCache) *OrderStatusView {
	return &OrderStatusView{orders: orders, cache: cache}
}

// CustomerStatus returns PENDING, COMPLETED or REJECTED. Terminal statuses are
// served from cache; anything else is read through to the store.
func (v *OrderStatusView) CustomerStatus(ctx context.Context, orderID string) (domain.Status, error) {
	if v.cache != nil {
		if s, err := v.cache.GetStatus(ctx, orderID); err == nil && domain.Status(s).IsTerminal() {
			return domain.Status(s), nil
		}
	}
	o, err := v.orders.GetByID(ctx, orderID)
	if err != nil {
		return "", err
	}
	st := o.CustomerStatus()
	if v.cache != nil {
		_ = v.cache.SetStatus(ctx, orderID, string(st))
	}
	return st, nil
}

// Order returns the full order for admin views.
func (v *OrderStatusView) Order(ctx context.Context, orderID string) (*domain.Order, error) {
	return v.orders.GetByID(ctx, orderID)
}
