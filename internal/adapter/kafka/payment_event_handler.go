package kafka

import (
	"context"
	"errors"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/logging"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

// Confirmer is satisfied by *usecase.Payments.
type Confirmer interface {
	Confirm(ctx context.Context, in usecase.ConfirmInput) (*usecase.ConfirmResult, error)
}

type PaymentEventHandler struct {
	Payments Confirmer
}

func NewPaymentEventHandler(p Confirmer) *PaymentEventHandler {
	return &PaymentEventHandler{Payments: p}
}

// Handle re-checks the payment with its gateway. Events for unknown or already
// settled orders are acknowledged; anything else bubbles up for redelivery.
func (h *PaymentEventHandler) Handle(ctx context.Context, ev usecase.PaymentEventMsg) error {
	if ev.OrderID == "" {
		logging.FromCtx(ctx).Warn("payment event without order id", "event_id", ev.EventID)
		return nil
	}
	res, err := h.Payments.Confirm(ctx, usecase.ConfirmInput{
		OrderID:   ev.OrderID,
		Gateway:   ev.Gateway,
		Reference: ev.Reference,
		EventID:   ev.EventID,
	})
	switch {
	case errors.Is(err, domain.ErrOrderNotFound),
		errors.Is(err, usecase.ErrReferenceMismatch),
		errors.Is(err, usecase.ErrUnderpaid),
		errors.Is(err, usecase.ErrAmountMismatch):
		logging.FromCtx(ctx).Warn("payment event dropped", "order_id", ev.OrderID, "err", err)
		return nil
	case err != nil:
		return err
	}
	if res.Delivery != nil && !res.Delivery.Success {
		logging.FromCtx(ctx).Info("payment confirmed, delivery pending",
			"order_id", ev.OrderID, "reason", res.Delivery.Message)
	}
	return nil
}
