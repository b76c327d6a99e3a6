// Package payment puts every payment gateway behind one Provider interface.
// Gateways differ only in wire format; callers pick them by name through a Registry
// and create sessions through a Fallback that allows a single hop to a backup.
package payment

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
)

var (
	ErrUnsupportedGateway = errors.New("unsupported gateway")
	ErrProviderCallFailed = errors.New("payment provider call failed")
)

type PaymentRequest struct {
	OrderID   string
	Amount    domain.Money
	Customer  domain.Customer
	ReturnURL string
}

// Session is not persisted by this package; callers copy it onto the order.
type Session struct {
	Provider    string
	Reference   string
	QRPayload   string
	CheckoutURL string
	Amount      domain.Money
	ExpiresAt   time.Time
}

type StatusResult struct {
	Status     domain.PaymentStatus
	PaidAmount domain.Money
	RawStatus  string
}

type Provider interface {
	Name() string
	CreatePayment(ctx context.Context, req PaymentRequest) (*Session, error)
	CheckStatus(ctx context.Context, reference string) (*StatusResult, error)
}

// WebhookEvent is the part of a gateway callback the core needs. The status in
// the callback is never trusted; it is re-read with CheckStatus.
type WebhookEvent struct {
	EventID   string
	Reference string
	OrderID   string
}

type WebhookParser interface {
	ParseWebhook(body []byte) (*WebhookEvent, error)
}

// callFailed tags err as a provider failure without losing the cause.
func callFailed(provider, op string, err error) error {
	return &ProviderError{Provider: provider, Op: op, Err: err}
}

type ProviderError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ProviderError) Error() string {
	return e.Provider + " " + e.Op + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() []error { return []error{ErrProviderCallFailed, e.Err} }

// Currencies without a minor unit in practice. Rupiah is priced in whole units by
// every gateway this shop uses.
var zeroExponent = map[string]bool{"IDR": true, "JPY": true, "KRW": true, "VND": true}

func exponent(currency string) int32 {
	if zeroExponent[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// Major converts minor units to the gateway's decimal amount.
func Major(m domain.Money) decimal.Decimal {
	return decimal.New(m.Minor, -exponent(m.Currency))
}

// Minor converts a gateway decimal amount back to minor units.
func Minor(d decimal.Decimal, currency string) domain.Money {
	return domain.Money{
		Minor:    d.Shift(exponent(currency)).Round(0).IntPart(),
		Currency: strings.ToUpper(currency),
	}
}
