package domain

import (
	"errors"
	"time"
)

var ErrOutOfStock = errors.New("out of stock")

type StockItem struct {
	ID          string
	ProductSlug string
	Payload     map[string]any
	Used        bool
	UsedBy      string
	UsedAt      *time.Time
}

type NotificationStatus string

const (
	NotificationPending    NotificationStatus = "pending"
	NotificationProcessing NotificationStatus = "processing"
	NotificationCompleted  NotificationStatus = "completed"
	NotificationFailed     NotificationStatus = "failed"
)

const (
	TemplateOrderCreated   = "order_created"
	TemplateOrderDelivered = "order_delivered"
	TemplateReviewRequest  = "review_request"
	TemplateManualPending  = "manual_pending"
)

type NotificationItem struct {
	ID          string
	Recipient   string
	Template    string
	Data        map[string]any
	Status      NotificationStatus
	ScheduledAt time.Time
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type ActorType string

const (
	ActorAdmin  ActorType = "admin"
	ActorSystem ActorType = "system"
)

type Actor struct {
	Type ActorType
	ID   string
}

// SystemActor is used for every automatic transition.
var SystemActor = Actor{Type: ActorSystem, ID: "fulfillment"}

const (
	AuditPaymentCreated     = "PAYMENT_CREATED"
	AuditPaymentConfirmed   = "PAYMENT_CONFIRMED"
	AuditPaymentClosed      = "PAYMENT_CLOSED"
	AuditDeliveredPreloaded = "DELIVERED_PRELOADED"
	AuditDeliveredAPI       = "DELIVERED_API"
	AuditDeliveredManual    = "DELIVERED_MANUAL"
	AuditMarkedPendingAdmin = "MARKED_PENDING_ADMIN"
	AuditDeliveryFailed     = "DELIVERY_FAILED"
	AuditRejected           = "REJECTED"
)

type AuditEntry struct {
	ID        string
	OrderID   string
	Event     string
	Actor     Actor
	Payload   map[string]any
	Timestamp time.Time
}
