package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

type OrderHandler struct {
	checkout *usecase.Checkout
	payments *usecase.Payments
	view     *usecase.OrderStatusView
	timeout  time.Duration
}

func NewOrderHandler(checkout *usecase.Checkout, payments *usecase.Payments, view *usecase.OrderStatusView, timeout time.Duration) *OrderHandler {
	return &OrderHandler{checkout: checkout, payments: payments, view: view, timeout: timeout}
}

type createOrderReq struct {
	ProductID string `json:"productId" binding:"required"`

	Customer struct {
		Name  string `json:"name"`
		Email string `json:"email" binding:"required,email"`
	} `json:"customer" binding:"required"`

	Amount struct {
		Minor    int64  `json:"minor" binding:"required,gt=0"`
		Currency string `json:"currency" binding:"required,len=3"`
	} `json:"amount" binding:"required"`
}

type createOrderResp struct {
	OrderID string `json:"orderId"`
	Status  string `json:"status"`
}

// CreateOrder handles POST /v1/orders.
func (h *OrderHandler) CreateOrder(c *gin.Context) {
	var req createOrderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request"})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	o, err := h.checkout.Execute(ctx, usecase.CheckoutInput{
		ProductID:      req.ProductID,
		Customer:       domain.Customer{Name: req.Customer.Name, Email: req.Customer.Email},
		Amount:         domain.Money{Minor: req.Amount.Minor, Currency: req.Amount.Currency},
		IdempotencyKey: c.GetHeader("X-Idempotency-Key"),
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, createOrderResp{OrderID: o.ID, Status: string(o.CustomerStatus())})
}

type paymentSessionResp struct {
	OrderID     string `json:"orderId"`
	Provider    string `json:"provider"`
	Reference   string `json:"reference"`
	CheckoutURL string `json:"checkoutUrl,omitempty"`
	QRPayload   string `json:"qrPayload,omitempty"`
	ExpiresAt   string `json:"expiresAt,omitempty"`
}

// CreatePayment handles POST /v1/orders/:id/payments.
func (h *OrderHandler) CreatePayment(c *gin.Context) {
	id := c.Param("id")
	// gateway calls can be slow; allow up to two provider timeouts
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	sess, err := h.payments.CreatePayment(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	resp := paymentSessionResp{
		OrderID:     id,
		Provider:    sess.Provider,
		Reference:   sess.Reference,
		CheckoutURL: sess.CheckoutURL,
		QRPayload:   sess.QRPayload,
	}
	if !sess.ExpiresAt.IsZero() {
		resp.ExpiresAt = sess.ExpiresAt.UTC().Format(time.RFC3339)
	}
	c.JSON(http.StatusCreated, resp)
}

// CheckPayment handles POST /v1/orders/:id/payments/check: a storefront poll that
// re-checks the gateway the same way a webhook does.
func (h *OrderHandler) CheckPayment(c *gin.Context) {
	id := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Minute)
	defer cancel()

	res, err := h.payments.Confirm(ctx, usecase.ConfirmInput{OrderID: id})
	if err != nil {
		writeError(c, err)
		return
	}
	st, err := h.view.CustomerStatus(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"orderId":       id,
		"paymentStatus": res.Status,
		"status":        st,
	})
}

// Status handles GET /v1/orders/:id/status.
func (h *OrderHandler) Status(c *gin.Context) {
	id := c.Param("id")
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.timeout)
	defer cancel()

	st, err := h.view.CustomerStatus(ctx, id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"orderId": id, "status": st})
}
