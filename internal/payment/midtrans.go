package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
)

type MidtransConfig struct {
	BaseURL   string
	ServerKey string
	Acquirer  string
	Timeout   time.Duration
}

// Midtrans charges QRIS through the Core API.
type Midtrans struct {
	cfg MidtransConfig
	c   gatewayClient
}

func NewMidtrans(cfg MidtransConfig, hc *http.Client) *Midtrans {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.sandbox.midtrans.com"
	}
	if cfg.Acquirer == "" {
		cfg.Acquirer = "gopay"
	}
	return &Midtrans{cfg: cfg, c: newGatewayClient("midtrans", cfg.BaseURL, hc, cfg.Timeout)}
}

func (m *Midtrans) Name() string { return "midtrans" }

// Midtrans expiry timestamps are local Jakarta time without an offset.
var wib = time.FixedZone("WIB", 7*60*60)

type midtransAction struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type midtransTxn struct {
	StatusCode        string           `json:"status_code"`
	StatusMessage     string           `json:"status_message"`
	TransactionID     string           `json:"transaction_id"`
	OrderID           string           `json:"order_id"`
	GrossAmount       string           `json:"gross_amount"`
	Currency          string           `json:"currency"`
	TransactionStatus string           `json:"transaction_status"`
	FraudStatus       string           `json:"fraud_status"`
	QRString          string           `json:"qr_string"`
	ExpiryTime        string           `json:"expiry_time"`
	Actions           []midtransAction `json:"actions"`
}

func (t midtransTxn) ok() bool { return strings.HasPrefix(t.StatusCode, "2") }

func (m *Midtrans) CreatePayment(ctx context.Context, req PaymentRequest) (*Session, error) {
	body := map[string]any{
		"payment_type": "qris",
		"transaction_details": map[string]any{
			"order_id":     req.OrderID,
			"gross_amount": Major(req.Amount).IntPart(),
		},
		"customer_details": map[string]any{
			"first_name": req.Customer.Name,
			"email":      req.Customer.Email,
		},
		"qris": map[string]any{"acquirer": m.cfg.Acquirer},
	}

	var out midtransTxn
	if err := m.c.do(ctx, "create", http.MethodPost, "/v2/charge",
		requestOpts{body: body, user: m.cfg.ServerKey}, &out); err != nil {
		return nil, err
	}
	if !out.ok() {
		return nil, callFailed(m.Name(), "create", fmt.Errorf("status %s: %s", out.StatusCode, out.StatusMessage))
	}

	sess := &Session{
		Provider:  m.Name(),
		Reference: out.TransactionID,
		QRPayload: out.QRString,
		Amount:    req.Amount,
	}
	for _, a := range out.Actions {
		if a.Name == "generate-qr-code" {
			sess.CheckoutURL = a.URL
		}
	}
	if out.ExpiryTime != "" {
		if t, err := time.ParseInLocation("2006-01-02 15:04:05", out.ExpiryTime, wib); err == nil {
			sess.ExpiresAt = t
		}
	}
	return sess, nil
}

func (m *Midtrans) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	var out midtransTxn
	if err := m.c.do(ctx, "status", http.MethodGet, "/v2/"+url.PathEscape(reference)+"/status",
		requestOpts{user: m.cfg.ServerKey}, &out); err != nil {
		return nil, err
	}
	// 404 arrives as a 200 with status_code "404" in the body.
	if !out.ok() {
		return nil, callFailed(m.Name(), "status", fmt.Errorf("status %s: %s", out.StatusCode, out.StatusMessage))
	}

	res := &StatusResult{Status: midtransStatus(out.TransactionStatus, out.FraudStatus), RawStatus: out.TransactionStatus}
	if out.GrossAmount != "" {
		amt, err := decimal.NewFromString(out.GrossAmount)
		if err != nil {
			return nil, callFailed(m.Name(), "status", fmt.Errorf("gross_amount %q: %w", out.GrossAmount, err))
		}
		cur := out.Currency
		if cur == "" {
			cur = "IDR"
		}
		res.PaidAmount = Minor(amt, cur)
	}
	return res, nil
}

func midtransStatus(s, fraud string) domain.PaymentStatus {
	switch s {
	case "settlement":
		return domain.PaymentPaid
	case "capture":
		if fraud == "challenge" {
			return domain.PaymentPending
		}
		return domain.PaymentPaid
	case "expire":
		return domain.PaymentExpired
	case "deny", "cancel", "failure", "refund", "partial_refund":
		return domain.PaymentFailed
	default:
		return domain.PaymentPending
	}
}

func (m *Midtrans) ParseWebhook(body []byte) (*WebhookEvent, error) {
	var n midtransTxn
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("midtrans webhook: %w", err)
	}
	if n.TransactionID == "" {
		return nil, errors.New("midtrans webhook: missing transaction_id")
	}
	return &WebhookEvent{
		EventID:   n.TransactionID + ":" + n.TransactionStatus,
		Reference: n.TransactionID,
		OrderID:   n.OrderID,
	}, nil
}

var (
	_ Provider      = (*Midtrans)(nil)
	_ WebhookParser = (*Midtrans)(nil)
)
