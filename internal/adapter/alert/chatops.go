// Package alert posts admin alerts to a chat-ops incoming webhook.
package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/masakoww/jambistore-app-sub000/internal/payment"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

// Webhook sends Slack/Discord compatible JSON ({"text": ...}) messages.
type Webhook struct {
	url string
	hc  *http.Client
}

func NewWebhook(url string, hc *http.Client) *Webhook {
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Webhook{url: url, hc: hc}
}

func (w *Webhook) Alert(ctx context.Context, a usecase.OrderAlert) error {
	body, err := json.Marshal(map[string]any{
		"text":    Format(a),
		"content": Format(a),
	})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.hc.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("post alert: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// Format renders the alert as plain text.
func Format(a usecase.OrderAlert) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Manual delivery needed for order %s\n", a.OrderID)
	fmt.Fprintf(&b, "Product: %s\n", a.ProductName)
	fmt.Fprintf(&b, "Customer: %s <%s>\n", a.CustomerName, a.CustomerEmail)
	fmt.Fprintf(&b, "Amount: %s %s\n", payment.Major(a.Amount).String(), a.Amount.Currency)
	fmt.Fprintf(&b, "Status: %s", a.Status)
	if a.Instructions != "" {
		fmt.Fprintf(&b, "\nNotes: %s", a.Instructions)
	}
	return b.String()
}

// Noop is used when no webhook is configured.
type Noop struct{}

func (Noop) Alert(context.Context, usecase.OrderAlert) error { return nil }

var (
	_ usecase.AdminAlerter = (*Webhook)(nil)
	_ usecase.AdminAlerter = Noop{}
)
