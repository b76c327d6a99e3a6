package app

import (
	"fmt"
	"net/http"

	"github.com/masakoww/jambistore-app-sub000/configs"
	"github.com/masakoww/jambistore-app-sub000/internal/payment"
)

// NewRegistry registers every gateway that has credentials configured.
func NewRegistry(cfg configs.Config, hc *http.Client) (*payment.Registry, error) {
	p := cfg.Payments
	var providers []payment.Provider
	if p.Midtrans.ServerKey != "" {
		providers = append(providers, payment.NewMidtrans(payment.MidtransConfig{
			BaseURL:   p.Midtrans.BaseURL,
			ServerKey: p.Midtrans.ServerKey,
			Acquirer:  p.Midtrans.Acquirer,
			Timeout:   p.Timeout,
		}, hc))
	}
	if p.Xendit.SecretKey != "" {
		providers = append(providers, payment.NewXendit(payment.XenditConfig{
			BaseURL:   p.Xendit.BaseURL,
			SecretKey: p.Xendit.SecretKey,
			Timeout:   p.Timeout,
		}, hc))
	}
	if p.Tripay.APIKey != "" {
		providers = append(providers, payment.NewTripay(payment.TripayConfig{
			BaseURL:      p.Tripay.BaseURL,
			APIKey:       p.Tripay.APIKey,
			PrivateKey:   p.Tripay.PrivateKey,
			MerchantCode: p.Tripay.MerchantCode,
			Method:       p.Tripay.Method,
			Expiry:       p.Tripay.Expiry,
			Timeout:      p.Timeout,
		}, hc))
	}
	if p.PayPal.ClientID != "" {
		providers = append(providers, payment.NewPayPal(payment.PayPalConfig{
			BaseURL:      p.PayPal.BaseURL,
			ClientID:     p.PayPal.ClientID,
			ClientSecret: p.PayPal.ClientSecret,
			CancelURL:    p.PayPal.CancelURL,
			Timeout:      p.Timeout,
		}, hc))
	}

	reg := payment.NewRegistry(providers...)
	if _, err := reg.Get(p.Primary); err != nil {
		return nil, fmt.Errorf("primary gateway not configured: %w", err)
	}
	return reg, nil
}
