package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	domain "github.com/masakoww/jambistore-app-sub000/internal/entity"
	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

type ProductRepo struct{ q dbtx }

// Upsert is the catalog-side write; fulfillment only reads products.
func (r *ProductRepo) Upsert(ctx context.Context, id, slug, name string, cfg domain.DeliveryConfig) error {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	if _, err := r.q.ExecContext(ctx, `DELETE FROM products WHERE id=?`, id); err != nil {
		return err
	}
	_, err = r.q.ExecContext(ctx, `INSERT INTO products (id,slug,name,delivery_config) VALUES (?,?,?,?)`,
		id, slug, name, string(raw))
	return err
}

func (r *ProductRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	var (
		p   domain.Product
		raw sql.NullString
	)
	err := r.q.QueryRowContext(ctx, `SELECT id,slug,name,delivery_config FROM products WHERE id=?`, id).
		Scan(&p.ID, &p.Slug, &p.Name, &raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, err
	}

	p.Delivery, p.Instructions, err = domain.ParseDeliveryConfig([]byte(raw.String))
	if err != nil {
		return nil, fmt.Errorf("product %s: %w", id, err)
	}
	return &p, nil
}

var _ usecase.ProductRepo = (*ProductRepo)(nil)
