package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

type DeliveryKind string

const (
	KindPreloaded DeliveryKind = "preloaded"
	KindAPI       DeliveryKind = "api"
	KindManual    DeliveryKind = "manual"
)

const (
	DefaultRetryAttempts = 3
	DefaultRetryDelay    = time.Second
)

var ErrProductNotFound = errors.New("product not found")

// DeliveryMethod is a closed union: PreloadedDelivery, APIDelivery or ManualDelivery.
type DeliveryMethod interface {
	Kind() DeliveryKind
	sealed()
}

type PreloadedDelivery struct{}

type ManualDelivery struct{}

type APIDelivery struct {
	Endpoint        string
	Method          string
	AuthToken       string
	Headers         map[string]string
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	PayloadTemplate map[string]any
}

func (PreloadedDelivery) Kind() DeliveryKind { return KindPreloaded }
func (ManualDelivery) Kind() DeliveryKind    { return KindManual }
func (APIDelivery) Kind() DeliveryKind       { return KindAPI }

func (PreloadedDelivery) sealed() {}
func (ManualDelivery) sealed()    {}
func (APIDelivery) sealed()       {}

type Product struct {
	ID           string
	Slug         string
	Name         string
	Delivery     DeliveryMethod
	Instructions string
}

// DeliveryConfig is the stored shape of a product's delivery settings.
type DeliveryConfig struct {
	Type          string            `json:"type"`
	Endpoint      string            `json:"endpoint,omitempty"`
	Method        string            `json:"method,omitempty"`
	AuthHeader    string            `json:"authHeader,omitempty"`
	Headers       map[string]string `json:"headers,omitempty"`
	RetryAttempts *int              `json:"retryAttempts,omitempty"`
	RetryDelayMs  *int              `json:"retryDelay,omitempty"`
	Template      map[string]any    `json:"payloadTemplate,omitempty"`
	Instructions  string            `json:"instructions,omitempty"`
}

// ParseDeliveryConfig resolves the raw JSON config once, at product load time.
// A missing or unknown type resolves to manual delivery.
func ParseDeliveryConfig(raw []byte) (DeliveryMethod, string, error) {
	var cfg DeliveryConfig
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return nil, "", fmt.Errorf("decode delivery config: %w", err)
		}
	}
	m, err := cfg.Resolve()
	return m, cfg.Instructions, err
}

func (c DeliveryConfig) Resolve() (DeliveryMethod, error) {
	switch strings.ToLower(strings.TrimSpace(c.Type)) {
	case "preloaded", "auto":
		return PreloadedDelivery{}, nil
	case "api":
		if c.Endpoint == "" {
			return nil, errors.New("api delivery requires an endpoint")
		}
		d := APIDelivery{
			Endpoint:        c.Endpoint,
			Method:          strings.ToUpper(c.Method),
			AuthToken:       c.AuthHeader,
			Headers:         c.Headers,
			RetryAttempts:   DefaultRetryAttempts,
			RetryBaseDelay:  DefaultRetryDelay,
			PayloadTemplate: c.Template,
		}
		if d.Method == "" {
			d.Method = "POST"
		}
		if c.RetryAttempts != nil && *c.RetryAttempts >= 0 {
			d.RetryAttempts = *c.RetryAttempts
		}
		if c.RetryDelayMs != nil && *c.RetryDelayMs >= 0 {
			d.RetryBaseDelay = time.Duration(*c.RetryDelayMs) * time.Millisecond
		}
		return d, nil
	default:
		return ManualDelivery{}, nil
	}
}
