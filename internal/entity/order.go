package domain

import (
	"errors"
	"time"
)

type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
)

// DeliveryStatus is layered on top of Status while an order is not terminal.
type DeliveryStatus string

const (
	DeliveryNone          DeliveryStatus = ""
	DeliveryAwaitingAdmin DeliveryStatus = "AWAITING_ADMIN"
	DeliveryDelivered     DeliveryStatus = "DELIVERED"
)

// PaymentStatus is the normalized gateway status.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentExpired PaymentStatus = "EXPIRED"
	PaymentFailed  PaymentStatus = "FAILED"
)

var (
	ErrInvalidAmount        = errors.New("invalid amount")
	ErrOrderTerminal        = errors.New("order is in a terminal state")
	ErrOrderNotFound        = errors.New("order not found")
	ErrMissingCustomerEmail = errors.New("missing customer email")
)

type Money struct {
	Minor    int64
	Currency string
}

type Customer struct {
	Name  string
	Email string
}

type Payment struct {
	Provider  string
	Reference string
	Status    PaymentStatus
	URL       string
}

type Delivery struct {
	Type         string
	Status       DeliveryStatus
	Content      map[string]any
	DeliveredAt  *time.Time
	DeliveredBy  string
	Error        string
	ErrorMessage string
}

type Order struct {
	ID              string
	ProductID       string
	Status          Status
	Amount          Money
	Customer        Customer
	Payment         Payment
	Delivery        Delivery
	RejectionReason string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	CompletedAt     *time.Time
}

func (o *Order) Validate() error {
	if o.Amount.Minor <= 0 || o.Amount.Currency == "" {
		return ErrInvalidAmount
	}
	return nil
}

// IsTerminal reports whether no further transitions are allowed.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// CanTransition reports whether from -> to is a legal move of the order state machine.
func (s Status) CanTransition(to Status) bool {
	switch s {
	case StatusPending:
		return to == StatusPending || to == StatusProcessing || to == StatusCompleted || to == StatusRejected
	case StatusProcessing:
		return to == StatusPending || to == StatusCompleted || to == StatusRejected
	default:
		return false
	}
}

// OpenStatuses are the states from which delivery or rejection may happen.
func OpenStatuses() []Status {
	return []Status{StatusPending, StatusProcessing}
}

// CustomerStatus is what the storefront shows. Every non-terminal order reads as
// PENDING no matter why it is waiting.
func (o *Order) CustomerStatus() Status {
	if o.Status.IsTerminal() {
		return o.Status
	}
	return StatusPending
}

// MarkDelivered applies a successful delivery in memory.
func (o *Order) MarkDelivered(kind string, content map[string]any, by string, at time.Time) error {
	if !o.Status.CanTransition(StatusCompleted) {
		return ErrOrderTerminal
	}
	o.Status = StatusCompleted
	o.Delivery.Type = kind
	o.Delivery.Status = DeliveryDelivered
	o.Delivery.Content = content
	o.Delivery.DeliveredAt = &at
	o.Delivery.DeliveredBy = by
	o.Delivery.Error = ""
	o.Delivery.ErrorMessage = ""
	o.UpdatedAt = at
	o.CompletedAt = &at
	return nil
}

func (o *Order) MarkAwaitingAdmin(at time.Time) error {
	if !o.Status.CanTransition(StatusPending) {
		return ErrOrderTerminal
	}
	o.Status = StatusPending
	o.Delivery.Type = string(KindManual)
	o.Delivery.Status = DeliveryAwaitingAdmin
	o.UpdatedAt = at
	return nil
}

func (o *Order) Reject(reason string, at time.Time) error {
	if !o.Status.CanTransition(StatusRejected) {
		return ErrOrderTerminal
	}
	o.Status = StatusRejected
	o.RejectionReason = reason
	o.UpdatedAt = at
	return nil
}

func (o *Order) RecordDeliveryError(code, msg string, at time.Time) error {
	if o.Status.IsTerminal() {
		return ErrOrderTerminal
	}
	o.Delivery.Error = code
	o.Delivery.ErrorMessage = msg
	o.UpdatedAt = at
	return nil
}
