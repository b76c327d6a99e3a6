package payment

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
)

func TestMajorMinor(t *testing.T) {
	assert.Equal(t, "75000", Major(domain.Money{Minor: 75000, Currency: "IDR"}).String())
	assert.Equal(t, "19.99", Major(domain.Money{Minor: 1999, Currency: "USD"}).String())

	assert.Equal(t, domain.Money{Minor: 1999, Currency: "USD"}, Minor(decimal.RequireFromString("19.99"), "usd"))
	assert.Equal(t, domain.Money{Minor: 75000, Currency: "IDR"}, Minor(decimal.RequireFromString("75000.00"), "IDR"))
}

type stubProvider struct {
	name string
	err  error
	ref  string
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) CreatePayment(context.Context, PaymentRequest) (*Session, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &Session{Provider: s.name, Reference: s.ref}, nil
}

func (s *stubProvider) CheckStatus(context.Context, string) (*StatusResult, error) {
	return &StatusResult{Status: domain.PaymentPending}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(&stubProvider{name: "Midtrans"}, &stubProvider{name: "xendit"})
	p, err := r.Get(" MIDTRANS ")
	require.NoError(t, err)
	assert.Equal(t, "Midtrans", p.Name())
	assert.Equal(t, []string{"midtrans", "xendit"}, r.Names())

	_, err = r.Get("stripe")
	assert.ErrorIs(t, err, ErrUnsupportedGateway)
}

func TestFallback(t *testing.T) {
	req := PaymentRequest{OrderID: "ord-1", Amount: domain.Money{Minor: 1, Currency: "IDR"}}
	down := errors.New("down")

	t.Run("primary ok", func(t *testing.T) {
		f := NewFallback(NewRegistry(&stubProvider{name: "a", ref: "r1"}, &stubProvider{name: "b", ref: "r2"}))
		sess, err := f.CreatePayment(context.Background(), "a", "b", req)
		require.NoError(t, err)
		assert.Equal(t, "r1", sess.Reference)
	})

	t.Run("backup used once", func(t *testing.T) {
		f := NewFallback(NewRegistry(&stubProvider{name: "a", err: down}, &stubProvider{name: "b", ref: "r2"}))
		sess, err := f.CreatePayment(context.Background(), "a", "b", req)
		require.NoError(t, err)
		assert.Equal(t, "b", sess.Provider)
	})

	t.Run("empty reference counts as failure", func(t *testing.T) {
		f := NewFallback(NewRegistry(&stubProvider{name: "a"}, &stubProvider{name: "b", ref: "r2"}))
		sess, err := f.CreatePayment(context.Background(), "a", "b", req)
		require.NoError(t, err)
		assert.Equal(t, "b", sess.Provider)
	})

	t.Run("both fail", func(t *testing.T) {
		f := NewFallback(NewRegistry(&stubProvider{name: "a", err: down}, &stubProvider{name: "b", err: down}))
		_, err := f.CreatePayment(context.Background(), "a", "b", req)
		var fe *FallbackError
		require.ErrorAs(t, err, &fe)
		assert.Equal(t, "a", fe.Primary)
		assert.Equal(t, "b", fe.Backup)
		assert.ErrorIs(t, err, down)
	})

	t.Run("no backup", func(t *testing.T) {
		f := NewFallback(NewRegistry(&stubProvider{name: "a", err: down}))
		_, err := f.CreatePayment(context.Background(), "a", "", req)
		assert.ErrorIs(t, err, down)
	})

	t.Run("unknown primary", func(t *testing.T) {
		b := &stubProvider{name: "b", ref: "r2"}
		f := NewFallback(NewRegistry(b))
		_, err := f.CreatePayment(context.Background(), "a", "b", req)
		assert.ErrorIs(t, err, ErrUnsupportedGateway)
	})

	t.Run("unknown backup", func(t *testing.T) {
		f := NewFallback(NewRegistry(&stubProvider{name: "a", err: down}))
		_, err := f.CreatePayment(context.Background(), "a", "zzz", req)
		assert.ErrorIs(t, err, ErrUnsupportedGateway)
		assert.ErrorIs(t, err, down)
	})
}
