package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/masakoww/jambistore-app-sub000/internal/logging"
)

const (
	bodyLogLimit = 8 << 10
	maxBodyRead  = 1 << 20

	requestIDHeader = "X-Request-Id"
)

// Values under these keys are replaced before a body is logged. Delivery
// content is the goods themselves.
var redactKeys = map[string]bool{
	"password":      true,
	"authorization": true,
	"token":         true,
	"access_token":  true,
	"secret":        true,
	"client_secret": true,
	"content":       true,
}

// Health and scrape traffic is noisy and carries nothing worth keeping.
var quietPaths = map[string]bool{
	"/healthz": true,
	"/metrics": true,
}

// capWriter tees the first bodyLogLimit bytes of the response.
type capWriter struct {
	gin.ResponseWriter
	head bytes.Buffer
}

func (w *capWriter) Write(b []byte) (int, error) {
	if room := bodyLogLimit - w.head.Len(); room > 0 {
		w.head.Write(b[:min(len(b), room)])
	}
	return w.ResponseWriter.Write(b)
}

func scrub(x any) any {
	switch v := x.(type) {
	case map[string]any:
		for k, val := range v {
			if redactKeys[strings.ToLower(k)] {
				v[k] = "***"
				continue
			}
			v[k] = scrub(val)
		}
	case []any:
		for i := range v {
			v[i] = scrub(v[i])
		}
	}
	return x
}

// redactJSON returns raw with secret values masked. Non-JSON input comes back as is.
func redactJSON(raw []byte) []byte {
	var v any
	if len(raw) == 0 || json.Unmarshal(raw, &v) != nil {
		return raw
	}
	out, err := json.Marshal(scrub(v))
	if err != nil {
		return raw
	}
	return out
}

func isJSON(contentType string) bool {
	return strings.Contains(contentType, "application/json")
}

// Logging tags every request with an id, puts a request logger on the context
// and writes one line per request. The request body is restored byte for byte.
func Logging(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if quietPaths[c.Request.URL.Path] {
			c.Next()
			return
		}
		start := time.Now()

		reqID := c.GetHeader(requestIDHeader)
		if reqID == "" {
			reqID = uuid.NewString()
			c.Request.Header.Set(requestIDHeader, reqID)
		}
		c.Header(requestIDHeader, reqID)

		l := base.With("req_id", reqID, "method", c.Request.Method, "route", c.FullPath())
		if id := c.Param("id"); id != "" {
			l = l.With("order_id", id)
		}
		if gw := c.Param("gateway"); gw != "" {
			l = l.With("gateway", gw)
		}
		logging.With(c, l)

		var reqBody []byte
		if c.Request.Body != nil && isJSON(c.GetHeader("Content-Type")) {
			raw, _ := io.ReadAll(io.LimitReader(c.Request.Body, maxBodyRead))
			_ = c.Request.Body.Close()
			c.Request.Body = io.NopCloser(bytes.NewReader(raw))
			reqBody = raw
		}

		cw := &capWriter{ResponseWriter: c.Writer}
		c.Writer = cw
		c.Next()

		status := c.Writer.Status()
		attrs := []any{
			"status", status,
			"dur_ms", time.Since(start).Milliseconds(),
			"remote", c.ClientIP(),
			"resp_bytes", c.Writer.Size(),
		}
		switch {
		case len(reqBody) > bodyLogLimit:
			attrs = append(attrs, "req_body_bytes", len(reqBody))
		case len(reqBody) > 0:
			attrs = append(attrs, "req_body", string(redactJSON(reqBody)))
		}
		if isJSON(c.Writer.Header().Get("Content-Type")) && cw.head.Len() > 0 && cw.head.Len() < bodyLogLimit {
			attrs = append(attrs, "resp_body", string(redactJSON(cw.head.Bytes())))
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}

		switch {
		case status >= http.StatusInternalServerError:
			l.Error("http_request", attrs...)
		case status >= http.StatusBadRequest:
			l.Warn("http_request", attrs...)
		default:
			l.Info("http_request", attrs...)
		}
	}
}
