package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
)

var ErrDuplicate = errors.New("duplicate idempotency key")

type OrderCreator interface {
	Create(ctx context.Context, o *domain.Order) error
	GetByID(ctx context.Context, id string) (*domain.Order, error)
}

type CheckoutInput struct {
	ProductID      string
	Customer       domain.Customer
	Amount         domain.Money
	IdempotencyKey string
}

// Checkout records a new PENDING order for a known product. A repeated
// idempotency key returns the order created the first time; one still in flight
// is ErrDuplicate.
type Checkout struct {
	orders   OrderCreator
	products ProductRepo
	idem     IdempotencyStore
	now      Clock
}

func NewCheckout(orders OrderCreator, products ProductRepo, idem IdempotencyStore, now Clock) *Checkout {
	if now == nil {
		now = time.Now
	}
	return &Checkout{orders: orders, products: products, idem: idem, now: now}
}

func (uc *Checkout) Execute(ctx context.Context, in CheckoutInput) (*domain.Order, error) {
	in.Customer.Email = strings.TrimSpace(in.Customer.Email)
	if in.Customer.Email == "" {
		return nil, domain.ErrMissingCustomerEmail
	}
	in.Amount.Currency = strings.ToUpper(in.Amount.Currency)

	key := in.IdempotencyKey
	if key == "" || uc.idem == nil {
		return uc.create(ctx, in)
	}

	// fast path: already created
	if id, ok, _ := uc.idem.Recall(ctx, "checkout", key); ok {
		return uc.orders.GetByID(ctx, id)
	}
	ok, err := uc.idem.TryLock(ctx, "checkout", key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrDuplicate
	}

	o, err := uc.create(ctx, in)
	if err != nil {
		// let the client retry the same key straight away
		_ = uc.idem.Release(context.WithoutCancel(ctx), "checkout", key)
		return nil, err
	}
	_ = uc.idem.Remember(ctx, "checkout", key, o.ID)
	return o, nil
}

func (uc *Checkout) create(ctx context.Context, in CheckoutInput) (*domain.Order, error) {
	if _, err := uc.products.GetByID(ctx, in.ProductID); err != nil {
		return nil, err
	}

	now := uc.now().UTC()
	o := &domain.Order{
		ID:        uuid.NewString(),
		ProductID: in.ProductID,
		Status:    domain.StatusPending,
		Amount:    in.Amount,
		Customer:  in.Customer,
		Payment:   domain.Payment{Status: domain.PaymentPending},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := o.Validate(); err != nil {
		return nil, err
	}
	if err := uc.orders.Create(ctx, o); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return o, nil
}
