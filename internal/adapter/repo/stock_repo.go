package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

// claimTries bounds how often a claim re-selects after losing a race on the
// conditional update.
const claimTries = 3

type StockRepo struct {
	q      dbtx
	driver string
}

// AddItems loads credentials into a product pool (catalog side).
func (r *StockRepo) AddItems(ctx context.Context, productSlug string, payloads ...map[string]any) ([]string, error) {
	ids := make([]string, 0, len(payloads))
	now := time.Now().UTC()
	for _, p := range payloads {
		raw, err := encodeMap(p)
		if err != nil {
			return nil, err
		}
		id := uuid.NewString()
		if _, err := r.q.ExecContext(ctx, `
INSERT INTO stock_items (id,product_slug,payload,used,used_by,used_at,created_at)
VALUES (?,?,?,0,'',NULL,?)`, id, productSlug, raw, now); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (r *StockRepo) ClaimUnused(ctx context.Context, productSlug, orderID string, at time.Time) (*domain.StockItem, error) {
	// SKIP LOCKED keeps concurrent MySQL claims from queueing on the same row.
	// SQLite serializes writers, so the plain select is enough there.
	lock := ""
	if r.driver == DriverMySQL {
		lock = " FOR UPDATE SKIP LOCKED"
	}

	for i := 0; i < claimTries; i++ {
		var (
			id  string
			raw sql.NullString
		)
		err := r.q.QueryRowContext(ctx, `
SELECT id, payload FROM stock_items
WHERE product_slug = ? AND used = 0
ORDER BY created_at, id
LIMIT 1`+lock, productSlug).Scan(&id, &raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrOutOfStock
		}
		if err != nil {
			return nil, err
		}

		res, err := r.q.ExecContext(ctx, `
UPDATE stock_items SET used = 1, used_by = ?, used_at = ?
WHERE id = ? AND used = 0`, orderID, at.UTC(), id)
		if err != nil {
			return nil, err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if n == 0 {
			continue
		}

		payload, err := decodeMap(raw.String)
		if err != nil {
			return nil, fmt.Errorf("stock item %s payload: %w", id, err)
		}
		usedAt := at.UTC()
		return &domain.StockItem{
			ID:          id,
			ProductSlug: productSlug,
			Payload:     payload,
			Used:        true,
			UsedBy:      orderID,
			UsedAt:      &usedAt,
		}, nil
	}
	return nil, fmt.Errorf("claim %s: lost %d races: %w", productSlug, claimTries, domain.ErrOutOfStock)
}

func (r *StockRepo) Get(ctx context.Context, id string) (*domain.StockItem, error) {
	var (
		it     domain.StockItem
		raw    sql.NullString
		used   int
		usedAt sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, `SELECT id,product_slug,payload,used,used_by,used_at FROM stock_items WHERE id=?`, id).
		Scan(&it.ID, &it.ProductSlug, &raw, &used, &it.UsedBy, &usedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	it.Used = used == 1
	it.UsedAt = timePtr(usedAt)
	if it.Payload, err = decodeMap(raw.String); err != nil {
		return nil, err
	}
	return &it, nil
}

func (r *StockRepo) CountUnused(ctx context.Context, productSlug string) (int, error) {
	var n int
	err := r.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM stock_items WHERE product_slug=? AND used=0`, productSlug).Scan(&n)
	return n, err
}

var _ usecase.StockRepo = (*StockRepo)(nil)
