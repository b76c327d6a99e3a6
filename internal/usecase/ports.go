package usecase

import (
	"context"
	"time"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
)

type OrderRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Order, error)
	// SaveTransition persists status, delivery and rejection fields only while the
	// stored status is one of from. Returns domain.ErrOrderTerminal otherwise.
	SaveTransition(ctx context.Context, o *domain.Order, from ...domain.Status) error
	UpdatePayment(ctx context.Context, id string, p domain.Payment, at time.Time) error
	RecordDeliveryError(ctx context.Context, id, code, msg string, at time.Time) error
}

type ProductRepo interface {
	GetByID(ctx context.Context, id string) (*domain.Product, error)
}

type StockRepo interface {
	// ClaimUnused marks one unused item of the pool as used by orderID.
	// Returns domain.ErrOutOfStock when the pool is empty.
	ClaimUnused(ctx context.Context, productSlug, orderID string, at time.Time) (*domain.StockItem, error)
}

type AuditLog interface {
	Append(ctx context.Context, e domain.AuditEntry) error
	ListByOrder(ctx context.Context, orderID string) ([]domain.AuditEntry, error)
}

type NotificationQueue interface {
	Enqueue(ctx context.Context, items ...domain.NotificationItem) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]domain.NotificationItem, error)
	// Claim flips a pending item to processing and bumps attempts. false means
	// another worker got there first.
	Claim(ctx context.Context, id string, now time.Time) (bool, error)
	MarkCompleted(ctx context.Context, id string, now time.Time) error
	MarkFailed(ctx context.Context, id, lastErr string, now time.Time) error
	Reschedule(ctx context.Context, id, lastErr string, at, now time.Time) error
	Get(ctx context.Context, id string) (*domain.NotificationItem, error)
}

// Tx exposes the repositories bound to one store transaction.
type Tx interface {
	Orders() OrderRepo
	Stock() StockRepo
	Audit() AuditLog
	Notifications() NotificationQueue
}

type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type OrderCache interface {
	SetStatus(ctx context.Context, orderID string, status string) error
	GetStatus(ctx context.Context, orderID string) (string, error)
}

type IdempotencyStore interface {
	TryLock(ctx context.Context, scope, key string) (bool, error)
	Release(ctx context.Context, scope, key string) error
	Remember(ctx context.Context, scope, key, value string) error
	Recall(ctx context.Context, scope, key string) (string, bool, error)
}

// OrderAlert is what the chat-ops channel receives for manual orders.
type OrderAlert struct {
	OrderID       string
	ProductName   string
	CustomerName  string
	CustomerEmail string
	Amount        domain.Money
	Status        string
	Instructions  string
}

type AdminAlerter interface {
	Alert(ctx context.Context, a OrderAlert) error
}

// NotificationSender delivers one queued notification. It may be called more than
// once for the same item.
type NotificationSender interface {
	Send(ctx context.Context, n domain.NotificationItem) error
}

// Clock is swapped in tests.
type Clock func() time.Time
