package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/logging"
	"github.com/masakoww/jambistore-app-sub000/internal/metrics"
)

var ErrDispatchInProgress = errors.New("dispatch already in progress")

// Delivery error codes written to the order when a strategy fails.
const (
	CodeOutOfStock      = "OUT_OF_STOCK"
	CodeMissingEmail    = "MISSING_CUSTOMER_EMAIL"
	CodeProductNotFound = "PRODUCT_NOT_FOUND"
	CodeAPIFailed       = "DELIVERY_API_ERROR"
	CodeFailed          = "DELIVERY_FAILED"
)

// DeliveryResult is the outcome of one dispatch. Err is set whenever Success is false.
type DeliveryResult struct {
	Success bool
	Message string
	Data    map[string]any
	Err     error
}

func failed(msg string, err error) DeliveryResult {
	return DeliveryResult{Message: msg, Err: err}
}

// OrderData is the caller's snapshot of the order. It fills customer fields the
// stored order lacks.
type OrderData struct {
	Customer domain.Customer
	Amount   domain.Money
}

type DispatchConfig struct {
	ReviewDelay  time.Duration
	AlertTimeout time.Duration
}

// Dispatcher routes a paid order to the delivery strategy configured on its product.
type Dispatcher struct {
	orders   OrderRepo
	products ProductRepo
	tx       TxRunner
	ledger   *StockLedger
	api      *RetryingAPIDeliverer
	alerter  AdminAlerter
	cache    OrderCache
	locks    IdempotencyStore
	done     completion
	cfg      DispatchConfig
	now      Clock
	log      *slog.Logger
}

type DispatcherDeps struct {
	Orders   OrderRepo
	Products ProductRepo
	Tx       TxRunner
	Ledger   *StockLedger
	API      *RetryingAPIDeliverer
	// Optional.
	Alerter AdminAlerter
	Cache   OrderCache
	Locks   IdempotencyStore
	Now     Clock
}

func NewDispatcher(deps DispatcherDeps, cfg DispatchConfig) *Dispatcher {
	if cfg.ReviewDelay <= 0 {
		cfg.ReviewDelay = DefaultReviewDelay
	}
	if cfg.AlertTimeout <= 0 {
		cfg.AlertTimeout = 10 * time.Second
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Dispatcher{
		orders:   deps.Orders,
		products: deps.Products,
		tx:       deps.Tx,
		ledger:   deps.Ledger,
		api:      deps.API,
		alerter:  deps.Alerter,
		cache:    deps.Cache,
		locks:    deps.Locks,
		done:     completion{now: now, reviewDelay: cfg.ReviewDelay},
		cfg:      cfg,
		now:      now,
		log:      logging.New("dispatcher"),
	}
}

// HandleDelivery runs the product's delivery strategy for a paid order. It never
// panics on strategy failure: failures are recorded on the order and returned in
// the result.
func (d *Dispatcher) HandleDelivery(ctx context.Context, orderID, productID string, data OrderData, actor domain.Actor) DeliveryResult {
	log := logging.FromCtx(ctx).With("order_id", orderID)

	if d.locks != nil {
		ok, err := d.locks.TryLock(ctx, "dispatch", orderID)
		if err != nil {
			log.Warn("dispatch lock unavailable, continuing", "err", err)
		} else if !ok {
			return failed("dispatch already in progress", ErrDispatchInProgress)
		} else {
			defer func() {
				if err := d.locks.Release(context.WithoutCancel(ctx), "dispatch", orderID); err != nil {
					log.Warn("release dispatch lock", "err", err)
				}
			}()
		}
	}

	o, err := d.orders.GetByID(ctx, orderID)
	if err != nil {
		return failed("load order", err)
	}
	if o.Status.IsTerminal() {
		return DeliveryResult{
			Message: fmt.Sprintf("order already %s", o.Status),
			Data:    map[string]any{"status": string(o.Status)},
			Err:     domain.ErrOrderTerminal,
		}
	}
	if o.Customer.Email == "" {
		o.Customer.Email = data.Customer.Email
	}
	if o.Customer.Name == "" {
		o.Customer.Name = data.Customer.Name
	}
	if productID == "" {
		productID = o.ProductID
	}

	p, err := d.products.GetByID(ctx, productID)
	if err != nil {
		return d.fail(ctx, log, o, "", CodeProductNotFound, err)
	}
	strategy := string(p.Delivery.Kind())
	if o.Customer.Email == "" {
		return d.fail(ctx, log, o, strategy, CodeMissingEmail, domain.ErrMissingCustomerEmail)
	}

	var res DeliveryResult
	switch m := p.Delivery.(type) {
	case domain.PreloadedDelivery:
		res = d.deliverPreloaded(ctx, o, p, actor)
	case domain.APIDelivery:
		res = d.api.Deliver(ctx, o, p, m, actor)
	default:
		res = d.markPendingAdmin(ctx, log, o, p, actor)
	}

	if !res.Success {
		if errors.Is(res.Err, domain.ErrOrderTerminal) {
			// lost a race with another writer; nothing to record
			metrics.Dispatches.WithLabelValues(strategy, "terminal").Inc()
			return res
		}
		return d.fail(ctx, log, o, strategy, errorCode(res.Err), res.Err)
	}

	metrics.Dispatches.WithLabelValues(strategy, "ok").Inc()
	d.cacheStatus(ctx, log, orderID)
	log.Info("order dispatched", "strategy", strategy, "message", res.Message)
	return res
}

func (d *Dispatcher) deliverPreloaded(ctx context.Context, o *domain.Order, p *domain.Product, actor domain.Actor) DeliveryResult {
	var updated *domain.Order
	item, err := d.ledger.ClaimOne(ctx, p.Slug, o.ID, o.Customer.Email, func(ctx context.Context, tx Tx, item *domain.StockItem) error {
		content := make(map[string]any, len(item.Payload)+1)
		for k, v := range item.Payload {
			content[k] = v
		}
		content["stockItemId"] = item.ID

		var err error
		updated, err = d.done.deliver(ctx, tx, deliveredWrite{
			OrderID:       o.ID,
			Recipient:     o.Customer.Email,
			Product:       p,
			Kind:          domain.KindPreloaded,
			Content:       content,
			Actor:         actor,
			Event:         domain.AuditDeliveredPreloaded,
			AuditPayload:  map[string]any{"stockItemId": item.ID},
			RequestReview: true,
		})
		return err
	})
	if err != nil {
		return failed("claim stock", err)
	}
	return DeliveryResult{
		Success: true,
		Message: "delivered from stock",
		Data:    map[string]any{"status": string(updated.Status), "stockItemId": item.ID},
	}
}

// markPendingAdmin leaves the order PENDING with delivery awaiting an admin, then
// alerts the chat-ops channel. Alert failures do not change the outcome.
func (d *Dispatcher) markPendingAdmin(ctx context.Context, log *slog.Logger, o *domain.Order, p *domain.Product, actor domain.Actor) DeliveryResult {
	now := d.now()
	err := d.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		cur, err := tx.Orders().GetByID(ctx, o.ID)
		if err != nil {
			return err
		}
		if err := cur.MarkAwaitingAdmin(now); err != nil {
			return err
		}
		if err := tx.Orders().SaveTransition(ctx, cur, domain.OpenStatuses()...); err != nil {
			return err
		}
		if err := tx.Audit().Append(ctx, domain.AuditEntry{
			OrderID:   o.ID,
			Event:     domain.AuditMarkedPendingAdmin,
			Actor:     actor,
			Timestamp: now,
		}); err != nil {
			return err
		}
		return tx.Notifications().Enqueue(ctx, notification(o.Customer.Email, domain.TemplateManualPending, map[string]any{
			"order_id":      o.ID,
			"customer_name": o.Customer.Name,
			"product_name":  p.Name,
			"instructions":  p.Instructions,
		}, now))
	})
	if err != nil {
		return failed("mark pending admin", err)
	}

	d.alert(ctx, log, OrderAlert{
		OrderID:       o.ID,
		ProductName:   p.Name,
		CustomerName:  o.Customer.Name,
		CustomerEmail: o.Customer.Email,
		Amount:        o.Amount,
		Status:        string(domain.DeliveryAwaitingAdmin),
		Instructions:  p.Instructions,
	})
	return DeliveryResult{
		Success: true,
		Message: "awaiting manual delivery",
		Data:    map[string]any{"status": string(domain.StatusPending), "delivery": string(domain.DeliveryAwaitingAdmin)},
	}
}

func (d *Dispatcher) alert(ctx context.Context, log *slog.Logger, a OrderAlert) {
	if d.alerter == nil {
		return
	}
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.cfg.AlertTimeout)
	defer cancel()
	if err := d.alerter.Alert(actx, a); err != nil {
		metrics.AdminAlerts.WithLabelValues("error").Inc()
		log.Warn("admin alert failed", "err", err)
		return
	}
	metrics.AdminAlerts.WithLabelValues("ok").Inc()
}

// fail records the delivery error on the order and an audit entry. The order
// status is left as it was.
func (d *Dispatcher) fail(ctx context.Context, log *slog.Logger, o *domain.Order, strategy, code string, cause error) DeliveryResult {
	now := d.now()
	msg := cause.Error()
	err := d.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		if err := tx.Orders().RecordDeliveryError(ctx, o.ID, code, msg, now); err != nil {
			return err
		}
		return tx.Audit().Append(ctx, domain.AuditEntry{
			OrderID:   o.ID,
			Event:     domain.AuditDeliveryFailed,
			Actor:     domain.SystemActor,
			Payload:   map[string]any{"code": code, "message": msg, "strategy": strategy},
			Timestamp: now,
		})
	})
	if err != nil {
		log.Error("record delivery error", "code", code, "err", err)
	}
	if strategy == "" {
		strategy = "unknown"
	}
	metrics.Dispatches.WithLabelValues(strategy, "failed").Inc()
	log.Warn("dispatch failed", "strategy", strategy, "code", code, "err", cause)
	return DeliveryResult{Message: msg, Data: map[string]any{"error": code}, Err: cause}
}

func (d *Dispatcher) cacheStatus(ctx context.Context, log *slog.Logger, orderID string) {
	if d.cache == nil {
		return
	}
	o, err := d.orders.GetByID(ctx, orderID)
	if err != nil {
		return
	}
	if err := d.cache.SetStatus(ctx, orderID, string(o.CustomerStatus())); err != nil {
		log.Warn("cache order status", "err", err)
	}
}

func errorCode(err error) string {
	var apiErr *DeliveryAPIError
	switch {
	case errors.Is(err, domain.ErrOutOfStock):
		return CodeOutOfStock
	case errors.Is(err, domain.ErrMissingCustomerEmail):
		return CodeMissingEmail
	case errors.Is(err, domain.ErrProductNotFound):
		return CodeProductNotFound
	case errors.As(err, &apiErr):
		return CodeAPIFailed
	default:
		return CodeFailed
	}
}
