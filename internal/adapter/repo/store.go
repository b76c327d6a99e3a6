package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/masakoww/jambistore-app-sub000/internal/usecase"
)

var ErrNotFound = errors.New("not found")

const (
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite"
)

// dbtx is satisfied by both *sql.DB and *sql.Tx.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Store owns the connection pool and hands out repositories bound either to the
// pool or to a single transaction.
type Store struct {
	db     *sql.DB
	driver string
}

func NewStore(db *sql.DB, driver string) *Store {
	return &Store{db: db, driver: driver}
}

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Orders() *OrderRepo               { return &OrderRepo{q: s.db} }
func (s *Store) Products() *ProductRepo           { return &ProductRepo{q: s.db} }
func (s *Store) Stock() *StockRepo                { return &StockRepo{q: s.db, driver: s.driver} }
func (s *Store) Audit() *AuditRepo                { return &AuditRepo{q: s.db} }
func (s *Store) Notifications() *NotificationRepo { return &NotificationRepo{q: s.db} }

type txRepos struct {
	tx     *sql.Tx
	driver string
}

func (t txRepos) Orders() usecase.OrderRepo                { return &OrderRepo{q: t.tx} }
func (t txRepos) Stock() usecase.StockRepo                 { return &StockRepo{q: t.tx, driver: t.driver} }
func (t txRepos) Audit() usecase.AuditLog                  { return &AuditRepo{q: t.tx} }
func (t txRepos) Notifications() usecase.NotificationQueue { return &NotificationRepo{q: t.tx} }

// WithinTx runs fn in one transaction. Any error from fn rolls everything back.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx usecase.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, txRepos{tx: tx, driver: s.driver}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

var _ usecase.TxRunner = (*Store)(nil)

func encodeMap(m map[string]any) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeMap(s string) (map[string]any, error) {
	if s == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	if len(m) == 0 {
		return nil, nil
	}
	return m, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time
	return &t
}
