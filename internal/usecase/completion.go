package usecase

import (
	"context"
	"fmt"
	"time"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/payment"
)

// DefaultReviewDelay is how long after delivery the review request goes out.
const DefaultReviewDelay = 3 * time.Minute

// completion is the shared "order delivered" write used by every strategy. It must
// run inside the caller's transaction.
type completion struct {
	now         Clock
	reviewDelay time.Duration
}

type deliveredWrite struct {
	OrderID       string
	Recipient     string
	Product       *domain.Product
	Kind          domain.DeliveryKind
	Content       map[string]any
	Actor         domain.Actor
	Event         string
	AuditPayload  map[string]any
	RequestReview bool
}

func (c completion) deliver(ctx context.Context, tx Tx, w deliveredWrite) (*domain.Order, error) {
	now := c.now()
	o, err := tx.Orders().GetByID(ctx, w.OrderID)
	if err != nil {
		return nil, err
	}
	to := w.Recipient
	if to == "" {
		to = o.Customer.Email
	}
	if to == "" {
		return nil, domain.ErrMissingCustomerEmail
	}
	if err := o.MarkDelivered(string(w.Kind), w.Content, w.Actor.ID, now); err != nil {
		return nil, err
	}
	if err := tx.Orders().SaveTransition(ctx, o, domain.OpenStatuses()...); err != nil {
		return nil, fmt.Errorf("save delivered order: %w", err)
	}
	if err := tx.Audit().Append(ctx, domain.AuditEntry{
		OrderID:   o.ID,
		Event:     w.Event,
		Actor:     w.Actor,
		Payload:   w.AuditPayload,
		Timestamp: now,
	}); err != nil {
		return nil, fmt.Errorf("append audit: %w", err)
	}

	items := []domain.NotificationItem{
		notification(to, domain.TemplateOrderDelivered, deliveredData(o, w.Product), now),
	}
	if w.RequestReview {
		items = append(items, notification(to, domain.TemplateReviewRequest,
			reviewData(o, w.Product), now.Add(c.reviewDelay)))
	}
	if err := tx.Notifications().Enqueue(ctx, items...); err != nil {
		return nil, fmt.Errorf("enqueue notifications: %w", err)
	}
	return o, nil
}

func notification(to, template string, data map[string]any, at time.Time) domain.NotificationItem {
	return domain.NotificationItem{
		Recipient:   to,
		Template:    template,
		Data:        data,
		Status:      domain.NotificationPending,
		ScheduledAt: at,
		CreatedAt:   at,
	}
}

func productName(p *domain.Product) string {
	if p == nil {
		return ""
	}
	return p.Name
}

func displayAmount(m domain.Money) string {
	return payment.Major(m).String() + " " + m.Currency
}

func deliveredData(o *domain.Order, p *domain.Product) map[string]any {
	data := map[string]any{
		"order_id":      o.ID,
		"customer_name": o.Customer.Name,
		"product_name":  productName(p),
		"amount":        displayAmount(o.Amount),
		"content":       o.Delivery.Content,
	}
	if p != nil && p.Instructions != "" {
		data["instructions"] = p.Instructions
	}
	if o.Delivery.DeliveredAt != nil {
		data["delivered_at"] = o.Delivery.DeliveredAt.UTC().Format(time.RFC3339)
	}
	return data
}

func reviewData(o *domain.Order, p *domain.Product) map[string]any {
	return map[string]any{
		"order_id":      o.ID,
		"customer_name": o.Customer.Name,
		"product_name":  productName(p),
	}
}
