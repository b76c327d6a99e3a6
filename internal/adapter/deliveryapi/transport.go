// Package deliveryapi performs calls to product fulfilment endpoints.
package deliveryapi

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

// maxBody caps how much of a provider response is kept.
const maxBody = 1 << 20

type HTTPTransport struct {
	hc *http.Client
}

func NewHTTPTransport(hc *http.Client) *HTTPTransport {
	if hc == nil {
		hc = &http.Client{}
	}
	return &HTTPTransport{hc: hc}
}

func (t *HTTPTransport) Do(ctx context.Context, r usecase.APIRequest) (*usecase.APIResponse, error) {
	var body io.Reader
	if r.Method != http.MethodGet && len(r.Body) > 0 {
		body = bytes.NewReader(r.Body)
	}
	req, err := http.NewRequestWithContext(ctx, r.Method, r.URL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range r.Headers {
		req.Header.Set(k, v)
	}
	resp, err := t.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &usecase.APIResponse{StatusCode: resp.StatusCode, Body: b}, nil
}

var _ usecase.DeliveryTransport = (*HTTPTransport)(nil)
