package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

type OrderRepo struct{ q dbtx }

const orderColumns = `id,product_id,status,amount_minor,currency,customer_name,customer_email,
payment_provider,payment_reference,payment_status,payment_url,
delivery_type,delivery_status,delivery_content,delivery_error,delivery_error_message,
delivered_at,delivered_by,rejection_reason,created_at,updated_at,completed_at`

// Create is used by checkout and by tests; the fulfillment core never inserts orders.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	content, err := encodeMap(o.Delivery.Content)
	if err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `
INSERT INTO orders (`+orderColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		o.ID, o.ProductID, string(o.Status), o.Amount.Minor, o.Amount.Currency, o.Customer.Name, o.Customer.Email,
		o.Payment.Provider, o.Payment.Reference, string(o.Payment.Status), o.Payment.URL,
		o.Delivery.Type, string(o.Delivery.Status), content, o.Delivery.Error, o.Delivery.ErrorMessage,
		nullTime(o.Delivery.DeliveredAt), o.Delivery.DeliveredBy, o.RejectionReason,
		o.CreatedAt.UTC(), o.UpdatedAt.UTC(), nullTime(o.CompletedAt),
	)
	return err
}

func (r *OrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	row := r.q.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id=?`, id)

	var (
		o                            domain.Order
		status, payStatus, delStatus string
		content, errMsg, reason      sql.NullString
		deliveredAt, completedAt     sql.NullTime
	)
	err := row.Scan(&o.ID, &o.ProductID, &status, &o.Amount.Minor, &o.Amount.Currency, &o.Customer.Name, &o.Customer.Email,
		&o.Payment.Provider, &o.Payment.Reference, &payStatus, &o.Payment.URL,
		&o.Delivery.Type, &delStatus, &content, &o.Delivery.Error, &errMsg,
		&deliveredAt, &o.Delivery.DeliveredBy, &reason, &o.CreatedAt, &o.UpdatedAt, &completedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}

	o.Status = domain.Status(status)
	o.Payment.Status = domain.PaymentStatus(payStatus)
	o.Delivery.Status = domain.DeliveryStatus(delStatus)
	o.Delivery.ErrorMessage = errMsg.String
	o.RejectionReason = reason.String
	o.Delivery.DeliveredAt = timePtr(deliveredAt)
	o.CompletedAt = timePtr(completedAt)
	if o.Delivery.Content, err = decodeMap(content.String); err != nil {
		return nil, fmt.Errorf("order %s delivery content: %w", id, err)
	}
	return &o, nil
}

func (r *OrderRepo) SaveTransition(ctx context.Context, o *domain.Order, from ...domain.Status) error {
	if len(from) == 0 {
		from = domain.OpenStatuses()
	}
	content, err := encodeMap(o.Delivery.Content)
	if err != nil {
		return err
	}

	args := []any{
		string(o.Status), o.Delivery.Type, string(o.Delivery.Status), content,
		o.Delivery.Error, o.Delivery.ErrorMessage, nullTime(o.Delivery.DeliveredAt), o.Delivery.DeliveredBy,
		o.RejectionReason, o.UpdatedAt.UTC(), nullTime(o.CompletedAt), o.ID,
	}
	for _, s := range from {
		args = append(args, string(s))
	}

	res, err := r.q.ExecContext(ctx, `
UPDATE orders
SET status = ?, delivery_type = ?, delivery_status = ?, delivery_content = ?,
    delivery_error = ?, delivery_error_message = ?, delivered_at = ?, delivered_by = ?,
    rejection_reason = ?, updated_at = ?, completed_at = ?
WHERE id = ? AND status IN (`+placeholders(len(from))+`)`, args...)
	if err != nil {
		return err
	}
	return r.guard(ctx, res, o.ID, from)
}

func (r *OrderRepo) UpdatePayment(ctx context.Context, id string, p domain.Payment, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE orders
SET payment_provider = ?, payment_reference = ?, payment_status = ?, payment_url = ?, updated_at = ?
WHERE id = ? AND status IN (?,?)`,
		p.Provider, p.Reference, string(p.Status), p.URL, at.UTC(),
		id, string(domain.StatusPending), string(domain.StatusProcessing),
	)
	if err != nil {
		return err
	}
	return r.guard(ctx, res, id, domain.OpenStatuses())
}

func (r *OrderRepo) RecordDeliveryError(ctx context.Context, id, code, msg string, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `
UPDATE orders
SET delivery_error = ?, delivery_error_message = ?, updated_at = ?
WHERE id = ? AND status IN (?,?)`,
		code, msg, at.UTC(), id, string(domain.StatusPending), string(domain.StatusProcessing),
	)
	if err != nil {
		return err
	}
	return r.guard(ctx, res, id, domain.OpenStatuses())
}

// guard turns "0 rows affected" into not-found or terminal. MySQL reports 0 rows
// for an update that changes nothing, so a row still in an allowed state is fine.
func (r *OrderRepo) guard(ctx context.Context, res sql.Result, id string, from []domain.Status) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows > 0 {
		return nil
	}
	var status string
	err = r.q.QueryRowContext(ctx, `SELECT status FROM orders WHERE id=?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ErrOrderNotFound
	}
	if err != nil {
		return err
	}
	for _, s := range from {
		if domain.Status(status) == s {
			return nil
		}
	}
	return domain.ErrOrderTerminal
}

var _ usecase.OrderRepo = (*OrderRepo)(nil)
