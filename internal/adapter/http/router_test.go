package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/masakoww/jambistore-app-sub000/configs"
	"github.com/masakoww/jambistore-app-sub000/internal/adapter/http/middleware"
	"github.com/masakoww/jambistore-app-sub000/internal/adapter/repo"
	"github.com/masakoww/jambistore-app-sub000/internal/adapter/repo/repotest"
	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/payment"
	"github.com/masakoww/jambistore-app-sub000/internal/security"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

// fakePay is a gateway whose status is set by the test.
type fakePay struct{ status domain.PaymentStatus }

func (f *fakePay) Name() string { return "fakepay" }

func (f *fakePay) CreatePayment(_ context.Context, req payment.PaymentRequest) (*payment.Session, error) {
	return &payment.Session{Provider: "fakepay", Reference: "fp-" + req.OrderID, CheckoutURL: "https://fp.test/" + req.OrderID}, nil
}

func (f *fakePay) CheckStatus(context.Context, string) (*payment.StatusResult, error) {
	return &payment.StatusResult{Status: f.status, PaidAmount: domain.Money{Minor: 75000, Currency: "IDR"}}, nil
}

func (f *fakePay) ParseWebhook(body []byte) (*payment.WebhookEvent, error) {
	var in struct{ Ref, Order, Event string }
	if err := json.Unmarshal(body, &in); err != nil {
		return nil, err
	}
	return &payment.WebhookEvent{EventID: in.Event, Reference: in.Ref, OrderID: in.Order}, nil
}

type apiEnv struct {
	t      *testing.T
	engine *gin.Engine
	store  *repo.Store
	gw     *fakePay
	hook   *security.HMACVerifier
}

func newAPI(t *testing.T) *apiEnv {
	gin.SetMode(gin.TestMode)
	store := repotest.New(t)
	ctx := context.Background()
	require.NoError(t, store.Products().Upsert(ctx, "prod-nf", "netflix", "Netflix", domain.DeliveryConfig{Type: "preloaded"}))
	_, err := store.Stock().AddItems(ctx, "netflix", map[string]any{"email": "acc@nf.test", "password": "pw"})
	require.NoError(t, err)

	gw := &fakePay{status: domain.PaymentPending}
	reg := payment.NewRegistry(gw)
	d := usecase.NewDispatcher(usecase.DispatcherDeps{
		Orders:   store.Orders(),
		Products: store.Products(),
		Tx:       store,
		Ledger:   usecase.NewStockLedger(store, nil),
		API:      usecase.NewRetryingAPIDeliverer(nil, store, nil, 0),
	}, usecase.DispatchConfig{})
	payments := usecase.NewPayments(reg, store.Orders(), store, d, nil, usecase.PaymentConfig{Primary: "fakepay"}, nil)
	view := usecase.NewOrderStatusView(store.Orders(), nil)
	admin := usecase.NewAdminActions(store.Orders(), store.Products(), store.Audit(), store, nil, nil)

	authzCfg := middleware.AuthzConfig{Secret: "test-secret", Issuer: "fulfillment", Audience: "shop"}
	clients := security.NewClients([]configs.ClientConfig{
		{ID: "storefront", Secret: "sf", Perms: []string{security.PermPaymentsWrite}, Enabled: true},
		{ID: "ops", Secret: "ops", Perms: []string{security.PermOrdersRead, security.PermOrdersAdmin}, Enabled: true},
	})
	hook := security.NewHMACVerifier("whsec")

	engine := NewRouter(Handlers{
		Orders:   NewOrderHandler(usecase.NewCheckout(store.Orders(), store.Products(), nil, nil), payments, view, 5*time.Second),
		Webhooks: NewWebhookHandler(reg, payments),
		Admin:    NewAdminHandler(admin, d, view, nil, 5*time.Second),
		Token: NewTokenHandler(TokenConfig{
			Secret: authzCfg.Secret, Issuer: authzCfg.Issuer, Audience: authzCfg.Audience, TTL: time.Minute,
		}, clients),
	}, middleware.NewAuthz(authzCfg), middleware.NewWebhookVerify(map[string]security.WebhookKey{
		"fakepay": {Header: "X-Signature", Verifier: hook},
	}))
	return &apiEnv{t: t, engine: engine, store: store, gw: gw, hook: hook}
}

func (e *apiEnv) do(method, path, token, body string, headers ...string) (int, map[string]any) {
	e.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w.Code, out
}

func (e *apiEnv) token(id, secret string) string {
	e.t.Helper()
	form := url.Values{"client_id": {id}, "client_secret": {secret}}
	req := httptest.NewRequest(http.MethodPost, "/v1/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	require.Equal(e.t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(e.t, json.Unmarshal(w.Body.Bytes(), &out))
	return out.AccessToken
}

func TestOrderToDeliveryOverHTTP(t *testing.T) {
	e := newAPI(t)
	sf := e.token("storefront", "sf")
	ops := e.token("ops", "ops")

	code, out := e.do(http.MethodPost, "/v1/orders", sf,
		`{"productId":"prod-nf","customer":{"name":"Budi","email":"budi@example.com"},"amount":{"minor":75000,"currency":"IDR"}}`)
	require.Equal(t, http.StatusAccepted, code, out)
	orderID := out["orderId"].(string)
	assert.Equal(t, "PENDING", out["status"])

	code, out = e.do(http.MethodPost, "/v1/orders/"+orderID+"/payments", sf, "")
	require.Equal(t, http.StatusCreated, code, out)
	assert.Equal(t, "fp-"+orderID, out["reference"])

	// poll while the gateway still says pending
	code, out = e.do(http.MethodPost, "/v1/orders/"+orderID+"/payments/check", "", "")
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "PENDING", out["status"])

	e.gw.status = domain.PaymentPaid
	hook := `{"ref":"fp-` + orderID + `","order":"` + orderID + `","event":"evt-1"}`
	code, _ = e.do(http.MethodPost, "/v1/webhooks/fakepay", "", hook)
	assert.Equal(t, http.StatusUnauthorized, code, "unsigned webhook")

	code, out = e.do(http.MethodPost, "/v1/webhooks/fakepay", "", hook, "X-Signature", e.hook.Sign([]byte(hook)))
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, true, out["delivered"])

	// a replay finds the order already completed
	code, out = e.do(http.MethodPost, "/v1/webhooks/fakepay", "", hook, "X-Signature", e.hook.Sign([]byte(hook)))
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["delivered"])

	code, out = e.do(http.MethodGet, "/v1/orders/"+orderID+"/status", "", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "COMPLETED", out["status"])

	code, out = e.do(http.MethodGet, "/v1/admin/orders/"+orderID+"/audit", ops, "")
	require.Equal(t, http.StatusOK, code)
	assert.GreaterOrEqual(t, len(out["entries"].([]any)), 3)

	code, _ = e.do(http.MethodPost, "/v1/admin/orders/"+orderID+"/reject", ops, `{"reason":"too late"}`)
	assert.Equal(t, http.StatusConflict, code)
}

func TestAdminEndpoints(t *testing.T) {
	e := newAPI(t)
	ops := e.token("ops", "ops")
	sf := e.token("storefront", "sf")
	ctx := context.Background()
	require.NoError(t, e.store.Orders().Create(ctx, &domain.Order{
		ID: "ord-m", ProductID: "prod-nf", Status: domain.StatusPending,
		Amount:    domain.Money{Minor: 75000, Currency: "IDR"},
		Customer:  domain.Customer{Email: "m@example.com"},
		CreatedAt: time.Now(), UpdatedAt: time.Now(),
	}))

	code, _ := e.do(http.MethodGet, "/v1/admin/orders/ord-m", sf, "")
	assert.Equal(t, http.StatusForbidden, code)
	code, _ = e.do(http.MethodGet, "/v1/admin/orders/ord-m", "", "")
	assert.Equal(t, http.StatusUnauthorized, code)

	code, out := e.do(http.MethodGet, "/v1/admin/orders/ord-m", ops, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "PENDING", out["status"])

	code, _ = e.do(http.MethodPost, "/v1/admin/orders/ord-m/deliver", ops, `{"content":{}}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, out = e.do(http.MethodPost, "/v1/admin/orders/ord-m/deliver", ops, `{"content":{"code":"GIFT-1"}}`)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "COMPLETED", out["status"])
	assert.Equal(t, "ops", out["delivery"].(map[string]any)["deliveredBy"])

	code, _ = e.do(http.MethodGet, "/v1/admin/orders/nope", ops, "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestAdminDispatchReportsStrategyFailure(t *testing.T) {
	e := newAPI(t)
	ops := e.token("ops", "ops")
	ctx := context.Background()
	for _, id := range []string{"ord-a", "ord-b"} {
		require.NoError(t, e.store.Orders().Create(ctx, &domain.Order{
			ID: id, ProductID: "prod-nf", Status: domain.StatusPending,
			Amount:    domain.Money{Minor: 75000, Currency: "IDR"},
			Customer:  domain.Customer{Email: id + "@example.com"},
			CreatedAt: time.Now(), UpdatedAt: time.Now(),
		}))
	}

	code, out := e.do(http.MethodPost, "/v1/admin/orders/ord-a/dispatch", ops, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])

	// the only stock item is gone
	code, out = e.do(http.MethodPost, "/v1/admin/orders/ord-b/dispatch", ops, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "delivery_failed", out["error"])

	code, _ = e.do(http.MethodPost, "/v1/admin/orders/ord-a/dispatch", ops, "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestTokenRejectsBadClient(t *testing.T) {
	e := newAPI(t)
	form := url.Values{"client_id": {"storefront"}, "client_secret": {"wrong"}}
	req := httptest.NewRequest(http.MethodPost, "/v1/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateOrderValidation(t *testing.T) {
	e := newAPI(t)
	sf := e.token("storefront", "sf")

	code, _ := e.do(http.MethodPost, "/v1/orders", sf, `{"productId":"prod-nf","customer":{"email":"not-an-email"},"amount":{"minor":1,"currency":"IDR"}}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = e.do(http.MethodPost, "/v1/orders", sf, `{"productId":"nope","customer":{"email":"a@example.com"},"amount":{"minor":1,"currency":"IDR"}}`)
	assert.Equal(t, http.StatusNotFound, code)
}
