package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/masakoww/jambistore-app-sub000/internal/metrics"
)

const (
	DefaultTimeout = 30 * time.Second
	maxErrBody     = 2048
)

// HTTPError is a non-2xx gateway response.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}

// gatewayClient is the JSON-over-HTTP plumbing every provider shares.
type gatewayClient struct {
	name    string
	baseURL string
	hc      *http.Client
	timeout time.Duration
}

// newGatewayClient bounds every call by timeout, whatever client is passed in.
func newGatewayClient(name, baseURL string, hc *http.Client, timeout time.Duration) gatewayClient {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if hc == nil {
		hc = &http.Client{}
	}
	return gatewayClient{name: name, baseURL: strings.TrimRight(baseURL, "/"), hc: hc, timeout: timeout}
}

type requestOpts struct {
	headers map[string]string
	// body is JSON-encoded unless form is set.
	body any
	form string
	// basic auth pair, used when user is non-empty
	user, pass string
}

func (c gatewayClient) do(ctx context.Context, op, method, path string, opts requestOpts, out any) (err error) {
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		metrics.ProviderCalls.WithLabelValues(c.name, op, outcome).Inc()
	}()

	var body io.Reader
	contentType := ""
	switch {
	case opts.form != "":
		body = strings.NewReader(opts.form)
		contentType = "application/x-www-form-urlencoded"
	case opts.body != nil:
		raw, err := json.Marshal(opts.body)
		if err != nil {
			return callFailed(c.name, op, fmt.Errorf("encode request: %w", err))
		}
		body = bytes.NewReader(raw)
		contentType = "application/json"
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return callFailed(c.name, op, err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if opts.user != "" {
		req.SetBasicAuth(opts.user, opts.pass)
	}
	for k, v := range opts.headers {
		req.Header.Set(k, v)
	}

	resp, err := c.hc.Do(req)
	if err != nil {
		return callFailed(c.name, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return callFailed(c.name, op, fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := string(raw)
		if len(msg) > maxErrBody {
			msg = msg[:maxErrBody]
		}
		return callFailed(c.name, op, &HTTPError{StatusCode: resp.StatusCode, Body: msg})
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return callFailed(c.name, op, fmt.Errorf("decode response: %w", err))
	}
	return nil
}
