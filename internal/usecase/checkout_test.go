package usecase_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

func TestCheckout(t *testing.T) {
	f := newFixture(t)
	f.product("prod-nf", "netflix", domain.DeliveryConfig{Type: "preloaded"})
	idem := newMemIdem()
	uc := usecase.NewCheckout(f.store.Orders(), f.store.Products(), idem, clock)

	in := usecase.CheckoutInput{
		ProductID:      "prod-nf",
		Customer:       domain.Customer{Name: "Budi", Email: " budi@example.com "},
		Amount:         domain.Money{Minor: 75000, Currency: "idr"},
		IdempotencyKey: "key-1",
	}
	o, err := uc.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, o.Status)
	assert.Equal(t, "IDR", o.Amount.Currency)
	assert.Equal(t, "budi@example.com", o.Customer.Email)

	stored := f.reload(o.ID)
	assert.Equal(t, domain.PaymentPending, stored.Payment.Status)

	again, err := uc.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, o.ID, again.ID)
}

func TestCheckoutRejects(t *testing.T) {
	f := newFixture(t)
	f.product("prod-nf", "netflix", domain.DeliveryConfig{Type: "preloaded"})
	idem := newMemIdem()
	uc := usecase.NewCheckout(f.store.Orders(), f.store.Products(), idem, clock)
	base := usecase.CheckoutInput{
		ProductID: "prod-nf",
		Customer:  domain.Customer{Email: "a@example.com"},
		Amount:    domain.Money{Minor: 1000, Currency: "IDR"},
	}

	in := base
	in.Customer.Email = ""
	_, err := uc.Execute(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrMissingCustomerEmail)

	in = base
	in.ProductID = "nope"
	_, err = uc.Execute(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	in = base
	in.Amount.Minor = 0
	_, err = uc.Execute(context.Background(), in)
	assert.ErrorIs(t, err, domain.ErrInvalidAmount)

	in = base
	in.IdempotencyKey = "busy"
	_, _ = idem.TryLock(context.Background(), "checkout", "busy")
	_, err = uc.Execute(context.Background(), in)
	assert.ErrorIs(t, err, usecase.ErrDuplicate)
}

func TestCheckoutFailureFreesIdempotencyKey(t *testing.T) {
	f := newFixture(t)
	idem := newMemIdem()
	uc := usecase.NewCheckout(f.store.Orders(), f.store.Products(), idem, clock)
	in := usecase.CheckoutInput{
		ProductID:      "prod-nf",
		Customer:       domain.Customer{Email: "a@example.com"},
		Amount:         domain.Money{Minor: 1000, Currency: "IDR"},
		IdempotencyKey: "key-retry",
	}

	_, err := uc.Execute(context.Background(), in)
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	// the product shows up and the client retries with the same key
	f.product("prod-nf", "netflix", domain.DeliveryConfig{Type: "preloaded"})
	o, err := uc.Execute(context.Background(), in)
	require.NoError(t, err)

	again, err := uc.Execute(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, o.ID, again.ID)
}
