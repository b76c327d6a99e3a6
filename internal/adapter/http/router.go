package http

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/masakoww/jambistore-app-sub000/internal/adapter/http/middleware"
	"github.com/masakoww/jambistore-app-sub000/internal/logging"
	"github.com/masakoww/jambistore-app-sub000/internal/security"
)

type Handlers struct {
	Orders   *OrderHandler
	Webhooks *WebhookHandler
	Admin    *AdminHandler
	Token    *TokenHandler
}

func NewRouter(h Handlers, authz *middleware.Authz, wv *middleware.WebhookVerify) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.MetricsMiddleware())
	r.Use(middleware.Logging(logging.New("http")))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.POST("/v1/token", h.Token.IssueToken)

	v1 := r.Group("/v1")
	{
		v1.POST("/webhooks/:gateway", wv.Verify(), h.Webhooks.Handle)

		v1.POST("/orders", authz.Require(security.PermPaymentsWrite), h.Orders.CreateOrder)
		v1.GET("/orders/:id/status", h.Orders.Status)
		v1.POST("/orders/:id/payments", authz.Require(security.PermPaymentsWrite), h.Orders.CreatePayment)
		v1.POST("/orders/:id/payments/check", h.Orders.CheckPayment)
	}

	admin := v1.Group("/admin")
	{
		admin.GET("/orders/:id", authz.Require(security.PermOrdersRead), h.Admin.Order)
		admin.GET("/orders/:id/audit", authz.Require(security.PermOrdersRead), h.Admin.Audit)
		admin.POST("/orders/:id/deliver", authz.Require(security.PermOrdersAdmin), h.Admin.Deliver)
		admin.POST("/orders/:id/reject", authz.Require(security.PermOrdersAdmin), h.Admin.Reject)
		admin.POST("/orders/:id/dispatch", authz.Require(security.PermOrdersAdmin), h.Admin.Dispatch)
	}

	return r
}
