package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/logging"
	"github.com/masakoww/jambistore-app-sub000/internal/payment"
)

var (
	ErrAlreadyPaid       = errors.New("order already paid")
	ErrUnderpaid         = errors.New("paid amount below order amount")
	ErrAmountMismatch    = errors.New("paid amount missing or in another currency")
	ErrReferenceMismatch = errors.New("payment reference does not match order")
	ErrMissingReference  = errors.New("order has no payment reference")
)

type PaymentConfig struct {
	Primary string
	Backup  string
	// ReturnURL may contain {order_id}.
	ReturnURL string
}

// Payments creates gateway sessions and settles them. The gateway's status check
// is the only thing that can mark an order paid; webhooks just trigger it.
type Payments struct {
	fallback   *payment.Fallback
	registry   *payment.Registry
	orders     OrderRepo
	tx         TxRunner
	dispatcher *Dispatcher
	idem       IdempotencyStore
	cfg        PaymentConfig
	now        Clock
	log        *slog.Logger
}

func NewPayments(reg *payment.Registry, orders OrderRepo, tx TxRunner, dispatcher *Dispatcher, idem IdempotencyStore, cfg PaymentConfig, now Clock) *Payments {
	if now == nil {
		now = time.Now
	}
	return &Payments{
		fallback:   payment.NewFallback(reg),
		registry:   reg,
		orders:     orders,
		tx:         tx,
		dispatcher: dispatcher,
		idem:       idem,
		cfg:        cfg,
		now:        now,
		log:        logging.New("payments"),
	}
}

// CreatePayment opens a session on the primary gateway, falling back once to the
// backup, and records it on the order.
func (p *Payments) CreatePayment(ctx context.Context, orderID string) (*payment.Session, error) {
	o, err := p.orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o.Status.IsTerminal() {
		return nil, domain.ErrOrderTerminal
	}
	if o.Payment.Status == domain.PaymentPaid {
		return nil, ErrAlreadyPaid
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}

	sess, err := p.fallback.CreatePayment(ctx, p.cfg.Primary, p.cfg.Backup, payment.PaymentRequest{
		OrderID:   o.ID,
		Amount:    o.Amount,
		Customer:  o.Customer,
		ReturnURL: strings.ReplaceAll(p.cfg.ReturnURL, "{order_id}", o.ID),
	})
	if err != nil {
		return nil, err
	}

	now := p.now()
	err = p.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Orders().UpdatePayment(ctx, o.ID, domain.Payment{
			Provider:  sess.Provider,
			Reference: sess.Reference,
			Status:    domain.PaymentPending,
			URL:       sess.CheckoutURL,
		}, now); err != nil {
			return err
		}
		if err := tx.Audit().Append(ctx, domain.AuditEntry{
			OrderID:   o.ID,
			Event:     domain.AuditPaymentCreated,
			Actor:     domain.SystemActor,
			Payload:   map[string]any{"provider": sess.Provider, "reference": sess.Reference},
			Timestamp: now,
		}); err != nil {
			return err
		}
		if o.Customer.Email == "" {
			return nil
		}
		data := map[string]any{
			"order_id":      o.ID,
			"customer_name": o.Customer.Name,
			"amount":        displayAmount(o.Amount),
			"provider":      sess.Provider,
			"checkout_url":  sess.CheckoutURL,
			"qr_payload":    sess.QRPayload,
		}
		if !sess.ExpiresAt.IsZero() {
			data["expires_at"] = sess.ExpiresAt.UTC().Format(time.RFC3339)
		}
		return tx.Notifications().Enqueue(ctx, notification(o.Customer.Email, domain.TemplateOrderCreated, data, now))
	})
	if err != nil {
		return nil, fmt.Errorf("record payment session: %w", err)
	}
	p.log.Info("payment session created", "order_id", o.ID, "provider", sess.Provider, "reference", sess.Reference)
	return sess, nil
}

// ConfirmInput identifies a payment to re-check. Gateway and Reference default to
// what is stored on the order.
type ConfirmInput struct {
	OrderID   string
	Gateway   string
	Reference string
	// EventID dedupes webhook redeliveries. Empty disables dedupe.
	EventID string
}

type ConfirmResult struct {
	Status    domain.PaymentStatus
	Duplicate bool
	Delivery  *DeliveryResult
}

// Confirm asks the gateway for the payment status and settles the order from it.
// A PAID result dispatches delivery.
func (p *Payments) Confirm(ctx context.Context, in ConfirmInput) (*ConfirmResult, error) {
	if in.EventID != "" && p.idem != nil {
		if _, seen, err := p.idem.Recall(ctx, "payment-event", in.EventID); err == nil && seen {
			return &ConfirmResult{Duplicate: true}, nil
		}
	}

	o, err := p.orders.GetByID(ctx, in.OrderID)
	if err != nil {
		return nil, err
	}
	ref := in.Reference
	switch {
	case ref == "":
		ref = o.Payment.Reference
	case o.Payment.Reference != "" && o.Payment.Reference != ref:
		return nil, ErrReferenceMismatch
	}
	if ref == "" {
		return nil, ErrMissingReference
	}
	gateway := o.Payment.Provider
	if gateway == "" {
		gateway = in.Gateway
	}

	provider, err := p.registry.Get(gateway)
	if err != nil {
		return nil, err
	}
	st, err := provider.CheckStatus(ctx, ref)
	if err != nil {
		return nil, err
	}

	res := &ConfirmResult{Status: st.Status}
	switch st.Status {
	case domain.PaymentPaid:
		if err := checkPaidAmount(st.PaidAmount, o.Amount); err != nil {
			p.log.Warn("paid amount rejected", "order_id", o.ID,
				"paid", st.PaidAmount.Minor, "paid_currency", st.PaidAmount.Currency,
				"due", o.Amount.Minor, "currency", o.Amount.Currency, "err", err)
			return nil, err
		}
		if o.Payment.Status != domain.PaymentPaid && !o.Status.IsTerminal() {
			if err := p.recordStatus(ctx, o, provider.Name(), ref, st, domain.AuditPaymentConfirmed); err != nil {
				return nil, err
			}
		}
		dr := p.dispatcher.HandleDelivery(ctx, o.ID, o.ProductID, OrderData{Customer: o.Customer, Amount: o.Amount}, domain.SystemActor)
		res.Delivery = &dr
	case domain.PaymentExpired, domain.PaymentFailed:
		if o.Payment.Status != st.Status && !o.Status.IsTerminal() {
			if err := p.recordStatus(ctx, o, provider.Name(), ref, st, domain.AuditPaymentClosed); err != nil {
				return nil, err
			}
		}
	}

	if in.EventID != "" && p.idem != nil {
		if err := p.idem.Remember(ctx, "payment-event", in.EventID, string(st.Status)); err != nil {
			p.log.Warn("remember payment event", "event_id", in.EventID, "err", err)
		}
	}
	return res, nil
}

// checkPaidAmount accepts a payment only when the gateway reports an amount in
// the order's currency that covers it.
func checkPaidAmount(paid, due domain.Money) error {
	switch {
	case paid.Minor <= 0, !strings.EqualFold(paid.Currency, due.Currency):
		return ErrAmountMismatch
	case paid.Minor < due.Minor:
		return ErrUnderpaid
	}
	return nil
}

func (p *Payments) recordStatus(ctx context.Context, o *domain.Order, provider, ref string, st *payment.StatusResult, event string) error {
	now := p.now()
	return p.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		pay := o.Payment
		pay.Provider = provider
		pay.Reference = ref
		pay.Status = st.Status
		if err := tx.Orders().UpdatePayment(ctx, o.ID, pay, now); err != nil {
			return err
		}
		return tx.Audit().Append(ctx, domain.AuditEntry{
			OrderID: o.ID,
			Event:   event,
			Actor:   domain.SystemActor,
			Payload: map[string]any{
				"provider":   provider,
				"reference":  ref,
				"status":     string(st.Status),
				"raw_status": st.RawStatus,
				"paid_minor": st.PaidAmount.Minor,
			},
			Timestamp: now,
		})
	})
}
