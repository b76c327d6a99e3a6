package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/masakoww/jambistore-app-sub000/internal/logging"
	"github.com/masakoww/jambistore-app-sub000/internal/metrics"
)

// Fallback tries the primary gateway and, if that fails, the backup exactly once.
type Fallback struct {
	registry *Registry
	log      *slog.Logger
}

func NewFallback(registry *Registry) *Fallback {
	return &Fallback{registry: registry, log: logging.New("payment")}
}

// FallbackError is returned when both gateways failed.
type FallbackError struct {
	Primary    string
	Backup     string
	PrimaryErr error
	BackupErr  error
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("payment failed on primary %q (%v) and backup %q (%v)",
		e.Primary, e.PrimaryErr, e.Backup, e.BackupErr)
}

func (e *FallbackError) Unwrap() []error { return []error{e.PrimaryErr, e.BackupErr} }

// CreatePayment resolves primary up front; an unknown primary is a configuration
// error and is returned without touching the backup. backup may be empty.
func (f *Fallback) CreatePayment(ctx context.Context, primary, backup string, req PaymentRequest) (*Session, error) {
	p, err := f.registry.Get(primary)
	if err != nil {
		return nil, err
	}

	sess, perr := create(ctx, p, req)
	if perr == nil {
		return sess, nil
	}
	if backup == "" || normalize(backup) == normalize(primary) {
		return nil, perr
	}

	f.log.Warn("primary gateway failed, trying backup",
		"order_id", req.OrderID, "primary", p.Name(), "backup", backup, "error", perr)

	b, err := f.registry.Get(backup)
	if err != nil {
		metrics.ProviderFallbacks.WithLabelValues(p.Name(), backup, "unsupported").Inc()
		return nil, &FallbackError{Primary: p.Name(), Backup: backup, PrimaryErr: perr, BackupErr: err}
	}
	sess, berr := create(ctx, b, req)
	if berr != nil {
		metrics.ProviderFallbacks.WithLabelValues(p.Name(), b.Name(), "failed").Inc()
		return nil, &FallbackError{Primary: p.Name(), Backup: b.Name(), PrimaryErr: perr, BackupErr: berr}
	}
	metrics.ProviderFallbacks.WithLabelValues(p.Name(), b.Name(), "ok").Inc()
	return sess, nil
}

// create treats a session without a reference as a failed call.
func create(ctx context.Context, p Provider, req PaymentRequest) (*Session, error) {
	sess, err := p.CreatePayment(ctx, req)
	if err != nil {
		return nil, err
	}
	if sess == nil || sess.Reference == "" {
		return nil, callFailed(p.Name(), "create", errors.New("gateway returned no payment reference"))
	}
	return sess, nil
}
