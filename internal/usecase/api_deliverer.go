package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/logging"
	"github.com/masakoww/jambistore-app-sub000/internal/metrics"
)

const DefaultAPICallTimeout = 30 * time.Second

// APIRequest is one outbound call to a product's delivery endpoint.
type APIRequest struct {
	Method  string
	URL     string
	Headers map[string]string
	Body    []byte
}

type APIResponse struct {
	StatusCode int
	Body       []byte
}

// DeliveryTransport performs a single HTTP exchange. Network failures are returned
// as errors; any HTTP status is a response.
type DeliveryTransport interface {
	Do(ctx context.Context, req APIRequest) (*APIResponse, error)
}

// DeliveryAPIError describes a failed attempt. StatusCode is 0 for transport errors.
type DeliveryAPIError struct {
	StatusCode int
	Body       string
	Retryable  bool
	Err        error
}

func (e *DeliveryAPIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("delivery api: %v", e.Err)
	}
	return fmt.Sprintf("delivery api: status %d: %s", e.StatusCode, truncate(e.Body, 200))
}

func (e *DeliveryAPIError) Unwrap() error { return e.Err }

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryingAPIDeliverer fulfils an order by calling the product's external endpoint
// with exponential backoff. Retries happen on transport errors and 5xx only.
type RetryingAPIDeliverer struct {
	transport   DeliveryTransport
	tx          TxRunner
	done        completion
	sleep       SleepFunc
	callTimeout time.Duration
	log         *slog.Logger
}

type APIDelivererOption func(*RetryingAPIDeliverer)

func WithSleep(fn SleepFunc) APIDelivererOption {
	return func(d *RetryingAPIDeliverer) { d.sleep = fn }
}

func WithCallTimeout(t time.Duration) APIDelivererOption {
	return func(d *RetryingAPIDeliverer) {
		if t > 0 {
			d.callTimeout = t
		}
	}
}

func NewRetryingAPIDeliverer(transport DeliveryTransport, tx TxRunner, now Clock, reviewDelay time.Duration, opts ...APIDelivererOption) *RetryingAPIDeliverer {
	if now == nil {
		now = time.Now
	}
	if reviewDelay <= 0 {
		reviewDelay = DefaultReviewDelay
	}
	d := &RetryingAPIDeliverer{
		transport:   transport,
		tx:          tx,
		done:        completion{now: now, reviewDelay: reviewDelay},
		sleep:       sleepCtx,
		callTimeout: DefaultAPICallTimeout,
		log:         logging.New("api-deliverer"),
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Deliver makes up to RetryAttempts+1 calls. On success the order is completed,
// audited and notified in one transaction.
func (d *RetryingAPIDeliverer) Deliver(ctx context.Context, o *domain.Order, p *domain.Product, cfg domain.APIDelivery, actor domain.Actor) DeliveryResult {
	body, err := json.Marshal(BuildAPIPayload(o, p, cfg.PayloadTemplate))
	if err != nil {
		return failed("encode delivery payload", err)
	}
	req := APIRequest{
		Method:  cfg.Method,
		URL:     cfg.Endpoint,
		Headers: apiHeaders(cfg),
		Body:    body,
	}

	var (
		resp    *APIResponse
		lastErr error
	)
	for attempt := 0; attempt <= cfg.RetryAttempts; attempt++ {
		if attempt > 0 {
			delay := cfg.RetryBaseDelay * time.Duration(1<<(attempt-1))
			if err := d.sleep(ctx, delay); err != nil {
				lastErr = err
				break
			}
		}
		resp, lastErr = d.call(ctx, req)
		if lastErr == nil {
			metrics.DeliveryAPIAttempts.WithLabelValues("ok").Inc()
			break
		}
		var apiErr *DeliveryAPIError
		retryable := errors.As(lastErr, &apiErr) && apiErr.Retryable
		d.log.Warn("delivery api attempt failed",
			"order_id", o.ID, "attempt", attempt+1, "retryable", retryable, "err", lastErr)
		if !retryable {
			metrics.DeliveryAPIAttempts.WithLabelValues("terminal").Inc()
			break
		}
		metrics.DeliveryAPIAttempts.WithLabelValues("retry").Inc()
	}
	if lastErr != nil {
		return failed("delivery api failed", lastErr)
	}

	content := parseAPIResponse(resp.Body)
	var updated *domain.Order
	err = d.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		var err error
		updated, err = d.done.deliver(ctx, tx, deliveredWrite{
			OrderID:       o.ID,
			Recipient:     o.Customer.Email,
			Product:       p,
			Kind:          domain.KindAPI,
			Content:       content,
			Actor:         actor,
			Event:         domain.AuditDeliveredAPI,
			AuditPayload:  map[string]any{"transactionId": content["transactionId"], "endpoint": cfg.Endpoint},
			RequestReview: true,
		})
		return err
	})
	if err != nil {
		return failed("persist api delivery", err)
	}
	return DeliveryResult{
		Success: true,
		Message: "delivered via api",
		Data:    map[string]any{"status": string(updated.Status), "transactionId": content["transactionId"]},
	}
}

func (d *RetryingAPIDeliverer) call(ctx context.Context, req APIRequest) (*APIResponse, error) {
	cctx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	resp, err := d.transport.Do(cctx, req)
	if err != nil {
		return nil, &DeliveryAPIError{Retryable: true, Err: err}
	}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	return nil, &DeliveryAPIError{
		StatusCode: resp.StatusCode,
		Body:       string(resp.Body),
		Retryable:  resp.StatusCode >= 500,
	}
}

func apiHeaders(cfg domain.APIDelivery) map[string]string {
	h := map[string]string{
		"Content-Type": "application/json",
		"Accept":       "application/json",
	}
	if tok := strings.TrimSpace(cfg.AuthToken); tok != "" {
		if !strings.Contains(tok, " ") {
			tok = "Bearer " + tok
		}
		h["Authorization"] = tok
	}
	for k, v := range cfg.Headers {
		h[k] = v
	}
	return h
}

// BuildAPIPayload merges the order fields with the product's payload template.
// String values in the template may reference any order field as {{field}}.
func BuildAPIPayload(o *domain.Order, p *domain.Product, tmpl map[string]any) map[string]any {
	fields := map[string]string{
		"order_id":       o.ID,
		"product_id":     o.ProductID,
		"product_name":   productName(p),
		"customer_name":  o.Customer.Name,
		"customer_email": o.Customer.Email,
		"amount":         strconv.FormatInt(o.Amount.Minor, 10),
		"currency":       o.Amount.Currency,
	}
	if p != nil {
		fields["product_slug"] = p.Slug
	}

	out := make(map[string]any, len(fields)+len(tmpl))
	for k, v := range fields {
		out[k] = v
	}
	for k, v := range tmpl {
		out[k] = substitute(v, fields)
	}
	return out
}

func substitute(v any, fields map[string]string) any {
	switch t := v.(type) {
	case string:
		for k, val := range fields {
			t = strings.ReplaceAll(t, "{{"+k+"}}", val)
		}
		return t
	case map[string]any:
		m := make(map[string]any, len(t))
		for k, x := range t {
			m[k] = substitute(x, fields)
		}
		return m
	case []any:
		s := make([]any, len(t))
		for i, x := range t {
			s[i] = substitute(x, fields)
		}
		return s
	default:
		return v
	}
}

// parseAPIResponse keeps the whole response as delivery content and lifts the
// provider's transaction id to the top.
func parseAPIResponse(body []byte) map[string]any {
	content := map[string]any{}
	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		if s := strings.TrimSpace(string(body)); s != "" {
			content["response"] = s
		}
		return content
	}
	content["response"] = parsed
	for _, k := range []string{"transaction_id", "transactionId", "id"} {
		if id := idString(parsed[k]); id != "" {
			content["transactionId"] = id
			break
		}
	}
	return content
}

func idString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
