package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/masakoww/jambistore-app-sub000/internal/adapter/http/middleware"
	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

// DispatchPublisher queues a redispatch instead of running it in the request.
type DispatchPublisher interface {
	PublishDispatch(ctx context.Context, msg usecase.DispatchCmdMsg) error
}

type AdminHandler struct {
	admin      *usecase.AdminActions
	dispatcher *usecase.Dispatcher
	view       *usecase.OrderStatusView
	publisher  DispatchPublisher // optional
	timeout    time.Duration
}

func NewAdminHandler(admin *usecase.AdminActions, d *usecase.Dispatcher, view *usecase.OrderStatusView, pub DispatchPublisher, timeout time.Duration) *AdminHandler {
	return &AdminHandler{admin: admin, dispatcher: d, view: view, publisher: pub, timeout: timeout}
}

func actor(c *gin.Context) domain.Actor {
	id := middleware.ClientID(c)
	if id == "" {
		id = "admin"
	}
	return domain.Actor{Type: domain.ActorAdmin, ID: id}
}

type deliverReq struct {
	Content map[string]any `json:"content" binding:"required"`
}

// Deliver handles POST /v1/admin/orders/:id/deliver.
func (h *AdminHandler) Deliver(c *gin.Context) {
	var req deliverReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	o, err := h.admin.Deliver(ctx, c.Param("id"), actor(c), req.Content)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderView(o))
}

type rejectReq struct {
	Reason string `json:"reason" binding:"required"`
}

// Reject handles POST /v1/admin/orders/:id/reject.
func (h *AdminHandler) Reject(c *gin.Context) {
	var req rejectReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	o, err := h.admin.Reject(ctx, c.Param("id"), actor(c), req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderView(o))
}

// Dispatch handles POST /v1/admin/orders/:id/dispatch, e.g. after a restock.
func (h *AdminHandler) Dispatch(c *gin.Context) {
	id := c.Param("id")
	if h.publisher != nil {
		err := h.publisher.PublishDispatch(c.Request.Context(), usecase.DispatchCmdMsg{
			OrderID: id,
			Reason:  "admin:" + actor(c).ID,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"orderId": id, "queued": true})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()
	res := h.dispatcher.HandleDelivery(ctx, id, "", usecase.OrderData{}, actor(c))
	if res.Err != nil && !res.Success {
		status, code := statusFor(res.Err)
		if status == http.StatusInternalServerError {
			// strategy failures are recorded on the order
			status, code = http.StatusOK, "delivery_failed"
		}
		c.JSON(status, gin.H{"orderId": id, "success": false, "error": code, "message": res.Message})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": id, "success": true, "message": res.Message})
}

// Order handles GET /v1/admin/orders/:id.
func (h *AdminHandler) Order(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	o, err := h.view.Order(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, orderView(o))
}

// Audit handles GET /v1/admin/orders/:id/audit.
func (h *AdminHandler) Audit(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()
	entries, err := h.admin.AuditTrail(ctx, c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]gin.H, 0, len(entries))
	for _, e := range entries {
		out = append(out, gin.H{
			"id":        e.ID,
			"event":     e.Event,
			"actor":     gin.H{"type": e.Actor.Type, "id": e.Actor.ID},
			"payload":   e.Payload,
			"timestamp": e.Timestamp.UTC().Format(time.RFC3339Nano),
		})
	}
	c.JSON(http.StatusOK, gin.H{"orderId": c.Param("id"), "entries": out})
}

func orderView(o *domain.Order) gin.H {
	v := gin.H{
		"id":             o.ID,
		"productId":      o.ProductID,
		"status":         o.Status,
		"customerStatus": o.CustomerStatus(),
		"amount":         gin.H{"minor": o.Amount.Minor, "currency": o.Amount.Currency},
		"customer":       gin.H{"name": o.Customer.Name, "email": o.Customer.Email},
		"payment": gin.H{
			"provider":  o.Payment.Provider,
			"reference": o.Payment.Reference,
			"status":    o.Payment.Status,
		},
		"delivery": gin.H{
			"type":         o.Delivery.Type,
			"status":       o.Delivery.Status,
			"deliveredBy":  o.Delivery.DeliveredBy,
			"error":        o.Delivery.Error,
			"errorMessage": o.Delivery.ErrorMessage,
		},
	}
	if o.RejectionReason != "" {
		v["rejectionReason"] = o.RejectionReason
	}
	if o.CompletedAt != nil {
		v["completedAt"] = o.CompletedAt.UTC().Format(time.RFC3339)
	}
	return v
}
