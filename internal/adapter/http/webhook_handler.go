package http

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/masakoww/jambistore-app-sub000/internal/logging"
	"github.com/masakoww/jambistore-app-sub000/internal/payment"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

type WebhookHandler struct {
	registry *payment.Registry
	payments *usecase.Payments
}

func NewWebhookHandler(reg *payment.Registry, payments *usecase.Payments) *WebhookHandler {
	return &WebhookHandler{registry: reg, payments: payments}
}

// Handle accepts POST /v1/webhooks/:gateway. The body only tells us which payment
// to look at; the gateway is asked for the real status.
func (h *WebhookHandler) Handle(c *gin.Context) {
	gateway := c.Param("gateway")
	prov, err := h.registry.Get(gateway)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "unsupported_gateway"})
		return
	}
	parser, ok := prov.(payment.WebhookParser)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "webhooks_not_supported"})
		return
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}
	ev, err := parser.ParseWebhook(body)
	if err != nil {
		logging.From(c).Warn("unparseable webhook", "gateway", gateway, "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()
	res, err := h.payments.Confirm(ctx, usecase.ConfirmInput{
		OrderID:   ev.OrderID,
		Gateway:   prov.Name(),
		Reference: ev.Reference,
		EventID:   ev.EventID,
	})
	if err != nil {
		writeError(c, err)
		return
	}
	out := gin.H{"ok": true, "paymentStatus": res.Status, "duplicate": res.Duplicate}
	if res.Delivery != nil {
		out["delivered"] = res.Delivery.Success
	}
	c.JSON(http.StatusOK, out)
}
