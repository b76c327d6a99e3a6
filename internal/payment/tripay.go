package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
)

type TripayConfig struct {
	BaseURL      string
	APIKey       string
	PrivateKey   string
	MerchantCode string
	Method       string
	// Lifetime of a closed-payment transaction.
	Expiry  time.Duration
	Timeout time.Duration
}

// Tripay closed-payment transactions (QRIS by default).
type Tripay struct {
	cfg TripayConfig
	c   gatewayClient
	now func() time.Time
}

func NewTripay(cfg TripayConfig, hc *http.Client) *Tripay {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://tripay.co.id/api-sandbox"
	}
	if cfg.Method == "" {
		cfg.Method = "QRIS"
	}
	if cfg.Expiry <= 0 {
		cfg.Expiry = 24 * time.Hour
	}
	return &Tripay{cfg: cfg, c: newGatewayClient("tripay", cfg.BaseURL, hc, cfg.Timeout), now: time.Now}
}

func (t *Tripay) Name() string { return "tripay" }

type tripayTxn struct {
	Reference   string `json:"reference"`
	MerchantRef string `json:"merchant_ref"`
	Amount      int64  `json:"amount"`
	TotalAmount int64  `json:"total_amount"`
	CheckoutURL string `json:"checkout_url"`
	QRString    string `json:"qr_string"`
	Status      string `json:"status"`
	ExpiredTime int64  `json:"expired_time"`
}

type tripayEnvelope struct {
	Success bool      `json:"success"`
	Message string    `json:"message"`
	Data    tripayTxn `json:"data"`
}

// Signature is HMAC-SHA256(merchantCode + merchantRef + amount) keyed by the private key.
func (t *Tripay) Signature(merchantRef string, amount int64) string {
	mac := hmac.New(sha256.New, []byte(t.cfg.PrivateKey))
	mac.Write([]byte(t.cfg.MerchantCode + merchantRef + strconv.FormatInt(amount, 10)))
	return hex.EncodeToString(mac.Sum(nil))
}

func (t *Tripay) CreatePayment(ctx context.Context, req PaymentRequest) (*Session, error) {
	amount := Major(req.Amount).IntPart()
	body := map[string]any{
		"method":         t.cfg.Method,
		"merchant_ref":   req.OrderID,
		"amount":         amount,
		"customer_name":  req.Customer.Name,
		"customer_email": req.Customer.Email,
		"order_items": []map[string]any{
			{"name": "Order " + req.OrderID, "price": amount, "quantity": 1},
		},
		"return_url":   req.ReturnURL,
		"expired_time": t.now().Add(t.cfg.Expiry).Unix(),
		"signature":    t.Signature(req.OrderID, amount),
	}

	var out tripayEnvelope
	if err := t.c.do(ctx, "create", http.MethodPost, "/transaction/create",
		requestOpts{body: body, headers: t.auth()}, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, callFailed(t.Name(), "create", errors.New(out.Message))
	}

	sess := &Session{
		Provider:    t.Name(),
		Reference:   out.Data.Reference,
		QRPayload:   out.Data.QRString,
		CheckoutURL: out.Data.CheckoutURL,
		Amount:      req.Amount,
	}
	if out.Data.ExpiredTime > 0 {
		sess.ExpiresAt = time.Unix(out.Data.ExpiredTime, 0).UTC()
	}
	return sess, nil
}

func (t *Tripay) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	var out tripayEnvelope
	if err := t.c.do(ctx, "status", http.MethodGet, "/transaction/detail?reference="+url.QueryEscape(reference),
		requestOpts{headers: t.auth()}, &out); err != nil {
		return nil, err
	}
	if !out.Success {
		return nil, callFailed(t.Name(), "status", errors.New(out.Message))
	}
	return &StatusResult{
		Status:     tripayStatus(out.Data.Status),
		PaidAmount: domain.Money{Minor: out.Data.Amount, Currency: "IDR"},
		RawStatus:  out.Data.Status,
	}, nil
}

func (t *Tripay) auth() map[string]string {
	return map[string]string{"Authorization": "Bearer " + t.cfg.APIKey}
}

func tripayStatus(s string) domain.PaymentStatus {
	switch s {
	case "PAID":
		return domain.PaymentPaid
	case "EXPIRED":
		return domain.PaymentExpired
	case "FAILED", "REFUND":
		return domain.PaymentFailed
	default:
		return domain.PaymentPending
	}
}

func (t *Tripay) ParseWebhook(body []byte) (*WebhookEvent, error) {
	var n tripayTxn
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("tripay webhook: %w", err)
	}
	if n.Reference == "" {
		return nil, errors.New("tripay webhook: missing reference")
	}
	return &WebhookEvent{EventID: n.Reference + ":" + n.Status, Reference: n.Reference, OrderID: n.MerchantRef}, nil
}

var (
	_ Provider      = (*Tripay)(nil)
	_ WebhookParser = (*Tripay)(nil)
)
