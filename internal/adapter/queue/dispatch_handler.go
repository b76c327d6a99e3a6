package queue

import (
	"context"
	"errors"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/logging"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

// Dispatcher is satisfied by *usecase.Dispatcher.
type Dispatcher interface {
	HandleDelivery(ctx context.Context, orderID, productID string, data usecase.OrderData, actor domain.Actor) usecase.DeliveryResult
}

// DispatchHandler retries delivery for orders named on the dispatch queue.
type DispatchHandler struct {
	D Dispatcher
}

func NewDispatchHandler(d Dispatcher) *DispatchHandler {
	return &DispatchHandler{D: d}
}

// HandleDispatch is meant for JSONHandler[usecase.DispatchCmdMsg]. A failed
// delivery is already recorded on the order, so only a held lock is requeued.
func (h *DispatchHandler) HandleDispatch(ctx context.Context, msg usecase.DispatchCmdMsg) error {
	if msg.OrderID == "" {
		return nil
	}
	res := h.D.HandleDelivery(ctx, msg.OrderID, msg.ProductID, usecase.OrderData{}, domain.SystemActor)
	if errors.Is(res.Err, usecase.ErrDispatchInProgress) {
		return res.Err
	}
	logging.FromCtx(ctx).Info("dispatch command handled",
		"order_id", msg.OrderID, "reason", msg.Reason, "success", res.Success, "message", res.Message)
	return nil
}
