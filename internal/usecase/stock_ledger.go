package usecase

import (
	"context"
	"time"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
)

// CompleteFunc writes the owning order's delivered state inside the claim's
// transaction. An error from it releases the claimed item.
type CompleteFunc func(ctx context.Context, tx Tx, item *domain.StockItem) error

// StockLedger hands out single-use stock items. A claim and the order write that
// consumes it commit together or not at all.
type StockLedger struct {
	tx  TxRunner
	now Clock
}

func NewStockLedger(tx TxRunner, now Clock) *StockLedger {
	if now == nil {
		now = time.Now
	}
	return &StockLedger{tx: tx, now: now}
}

func (l *StockLedger) ClaimOne(ctx context.Context, productSlug, orderID, customerEmail string, complete CompleteFunc) (*domain.StockItem, error) {
	if customerEmail == "" {
		return nil, domain.ErrMissingCustomerEmail
	}

	var claimed *domain.StockItem
	err := l.tx.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		item, err := tx.Stock().ClaimUnused(ctx, productSlug, orderID, l.now())
		if err != nil {
			return err
		}
		if complete != nil {
			if err := complete(ctx, tx, item); err != nil {
				return err
			}
		}
		claimed = item
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}
