package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
)

type PayPalConfig struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	CancelURL    string
	Timeout      time.Duration
}

// PayPal Orders v2. An approved order is captured on the next status check, so a
// poll or webhook after approval is what actually settles it.
type PayPal struct {
	cfg PayPalConfig
	c   gatewayClient

	mu      sync.Mutex
	token   string
	expires time.Time
	now     func() time.Time
}

func NewPayPal(cfg PayPalConfig, hc *http.Client) *PayPal {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api-m.sandbox.paypal.com"
	}
	return &PayPal{cfg: cfg, c: newGatewayClient("paypal", cfg.BaseURL, hc, cfg.Timeout), now: time.Now}
}

func (p *PayPal) Name() string { return "paypal" }

type paypalAmount struct {
	CurrencyCode string          `json:"currency_code"`
	Value        decimal.Decimal `json:"value"`
}

type paypalLink struct {
	Href string `json:"href"`
	Rel  string `json:"rel"`
}

type paypalOrder struct {
	ID            string       `json:"id"`
	Status        string       `json:"status"`
	Links         []paypalLink `json:"links"`
	PurchaseUnits []struct {
		ReferenceID string       `json:"reference_id"`
		CustomID    string       `json:"custom_id"`
		Amount      paypalAmount `json:"amount"`
		Payments    struct {
			Captures []struct {
				Status string       `json:"status"`
				Amount paypalAmount `json:"amount"`
			} `json:"captures"`
		} `json:"payments"`
	} `json:"purchase_units"`
}

func (p *PayPal) accessToken(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.token != "" && p.now().Before(p.expires) {
		return p.token, nil
	}

	var out struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := p.c.do(ctx, "token", http.MethodPost, "/v1/oauth2/token", requestOpts{
		form: "grant_type=client_credentials",
		user: p.cfg.ClientID,
		pass: p.cfg.ClientSecret,
	}, &out); err != nil {
		return "", err
	}
	if out.AccessToken == "" {
		return "", callFailed(p.Name(), "token", errors.New("empty access token"))
	}
	p.token = out.AccessToken
	// refresh a minute early
	p.expires = p.now().Add(time.Duration(out.ExpiresIn)*time.Second - time.Minute)
	return p.token, nil
}

func (p *PayPal) bearer(ctx context.Context) (map[string]string, error) {
	tok, err := p.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]string{"Authorization": "Bearer " + tok}, nil
}

func (p *PayPal) CreatePayment(ctx context.Context, req PaymentRequest) (*Session, error) {
	headers, err := p.bearer(ctx)
	if err != nil {
		return nil, err
	}
	headers["PayPal-Request-Id"] = req.OrderID

	cancel := p.cfg.CancelURL
	if cancel == "" {
		cancel = req.ReturnURL
	}
	body := map[string]any{
		"intent": "CAPTURE",
		"purchase_units": []map[string]any{{
			"reference_id": req.OrderID,
			"custom_id":    req.OrderID,
			"amount": map[string]any{
				"currency_code": req.Amount.Currency,
				"value":         Major(req.Amount).StringFixed(exponent(req.Amount.Currency)),
			},
		}},
		"application_context": map[string]any{
			"return_url":  req.ReturnURL,
			"cancel_url":  cancel,
			"user_action": "PAY_NOW",
		},
	}

	var out paypalOrder
	if err := p.c.do(ctx, "create", http.MethodPost, "/v2/checkout/orders",
		requestOpts{body: body, headers: headers}, &out); err != nil {
		return nil, err
	}
	sess := &Session{Provider: p.Name(), Reference: out.ID, Amount: req.Amount}
	for _, l := range out.Links {
		if l.Rel == "approve" || l.Rel == "payer-action" {
			sess.CheckoutURL = l.Href
		}
	}
	return sess, nil
}

func (p *PayPal) CheckStatus(ctx context.Context, reference string) (*StatusResult, error) {
	headers, err := p.bearer(ctx)
	if err != nil {
		return nil, err
	}

	path := "/v2/checkout/orders/" + url.PathEscape(reference)
	var out paypalOrder
	if err := p.c.do(ctx, "status", http.MethodGet, path, requestOpts{headers: headers}, &out); err != nil {
		return nil, err
	}
	if out.Status == "APPROVED" {
		headers["PayPal-Request-Id"] = "capture-" + reference
		out = paypalOrder{}
		if err := p.c.do(ctx, "capture", http.MethodPost, path+"/capture",
			requestOpts{body: map[string]any{}, headers: headers}, &out); err != nil {
			return nil, err
		}
	}

	res := &StatusResult{Status: paypalStatus(out.Status), RawStatus: out.Status}
	if res.Status == domain.PaymentPaid && len(out.PurchaseUnits) > 0 {
		pu := out.PurchaseUnits[0]
		amt := pu.Amount
		if len(pu.Payments.Captures) > 0 {
			amt = pu.Payments.Captures[0].Amount
		}
		res.PaidAmount = Minor(amt.Value, amt.CurrencyCode)
	}
	return res, nil
}

func paypalStatus(s string) domain.PaymentStatus {
	switch s {
	case "COMPLETED":
		return domain.PaymentPaid
	case "VOIDED":
		return domain.PaymentFailed
	default:
		return domain.PaymentPending
	}
}

type paypalEvent struct {
	ID        string          `json:"id"`
	EventType string          `json:"event_type"`
	Resource  json.RawMessage `json:"resource"`
}

func (p *PayPal) ParseWebhook(body []byte) (*WebhookEvent, error) {
	var ev paypalEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("paypal webhook: %w", err)
	}
	if ev.ID == "" {
		return nil, errors.New("paypal webhook: missing event id")
	}

	var res struct {
		ID            string `json:"id"`
		CustomID      string `json:"custom_id"`
		PurchaseUnits []struct {
			CustomID string `json:"custom_id"`
		} `json:"purchase_units"`
		SupplementaryData struct {
			RelatedIDs struct {
				OrderID string `json:"order_id"`
			} `json:"related_ids"`
		} `json:"supplementary_data"`
	}
	if err := json.Unmarshal(ev.Resource, &res); err != nil {
		return nil, fmt.Errorf("paypal webhook resource: %w", err)
	}

	out := &WebhookEvent{EventID: ev.ID}
	switch {
	case res.SupplementaryData.RelatedIDs.OrderID != "":
		// capture events carry the checkout order as a related id
		out.Reference = res.SupplementaryData.RelatedIDs.OrderID
		out.OrderID = res.CustomID
	default:
		out.Reference = res.ID
		if len(res.PurchaseUnits) > 0 {
			out.OrderID = res.PurchaseUnits[0].CustomID
		}
	}
	if out.Reference == "" {
		return nil, errors.New("paypal webhook: no order reference")
	}
	return out, nil
}

var (
	_ Provider      = (*PayPal)(nil)
	_ WebhookParser = (*PayPal)(nil)
)
