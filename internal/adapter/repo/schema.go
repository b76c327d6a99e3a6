package repo

import (
	"context"
	"fmt"
	"strings"
)

// The same DDL serves MySQL and SQLite; only the timestamp type differs.
const schemaTmpl = `
CREATE TABLE IF NOT EXISTS orders (
	id                     VARCHAR(64)  NOT NULL PRIMARY KEY,
	product_id             VARCHAR(64)  NOT NULL,
	status                 VARCHAR(16)  NOT NULL,
	amount_minor           BIGINT       NOT NULL,
	currency               VARCHAR(8)   NOT NULL,
	customer_name          VARCHAR(255) NOT NULL DEFAULT '',
	customer_email         VARCHAR(255) NOT NULL DEFAULT '',
	payment_provider       VARCHAR(32)  NOT NULL DEFAULT '',
	payment_reference      VARCHAR(128) NOT NULL DEFAULT '',
	payment_status         VARCHAR(16)  NOT NULL DEFAULT '',
	payment_url            VARCHAR(1024) NOT NULL DEFAULT '',
	delivery_type          VARCHAR(16)  NOT NULL DEFAULT '',
	delivery_status        VARCHAR(16)  NOT NULL DEFAULT '',
	delivery_content       TEXT,
	delivery_error         VARCHAR(64)  NOT NULL DEFAULT '',
	delivery_error_message TEXT,
	delivered_at           {{TS}} NULL,
	delivered_by           VARCHAR(64)  NOT NULL DEFAULT '',
	rejection_reason       TEXT,
	created_at             {{TS}} NOT NULL,
	updated_at             {{TS}} NOT NULL,
	completed_at           {{TS}} NULL
);

CREATE TABLE IF NOT EXISTS products (
	id              VARCHAR(64)  NOT NULL PRIMARY KEY,
	slug            VARCHAR(128) NOT NULL,
	name            VARCHAR(255) NOT NULL,
	delivery_config TEXT
);

CREATE TABLE IF NOT EXISTS stock_items (
	id           VARCHAR(64)  NOT NULL PRIMARY KEY,
	product_slug VARCHAR(128) NOT NULL,
	payload      TEXT,
	used         SMALLINT     NOT NULL DEFAULT 0,
	used_by      VARCHAR(64)  NOT NULL DEFAULT '',
	used_at      {{TS}} NULL,
	created_at   {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS notification_queue (
	id           VARCHAR(64) NOT NULL PRIMARY KEY,
	recipient    VARCHAR(255) NOT NULL,
	template     VARCHAR(64) NOT NULL,
	data         TEXT,
	status       VARCHAR(16) NOT NULL,
	scheduled_at {{TS}} NOT NULL,
	attempts     INT NOT NULL DEFAULT 0,
	last_error   TEXT,
	created_at   {{TS}} NOT NULL,
	updated_at   {{TS}} NOT NULL
);

CREATE TABLE IF NOT EXISTS order_audit (
	id         VARCHAR(64) NOT NULL PRIMARY KEY,
	order_id   VARCHAR(64) NOT NULL,
	event      VARCHAR(64) NOT NULL,
	actor_type VARCHAR(16) NOT NULL,
	actor_id   VARCHAR(64) NOT NULL,
	payload    TEXT,
	created_at {{TS}} NOT NULL
);
`

var indexes = []string{
	"CREATE INDEX idx_stock_pool ON stock_items (product_slug, used)",
	"CREATE INDEX idx_queue_due ON notification_queue (status, scheduled_at)",
	"CREATE INDEX idx_audit_order ON order_audit (order_id, created_at)",
}

// Migrate creates the tables if they are missing.
func (s *Store) Migrate(ctx context.Context) error {
	ts := "DATETIME"
	if s.driver == DriverMySQL {
		ts = "DATETIME(3)"
	}
	ddl := strings.ReplaceAll(schemaTmpl, "{{TS}}", ts)
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	for _, stmt := range indexes {
		if s.driver == DriverSQLite {
			stmt = strings.Replace(stmt, "CREATE INDEX", "CREATE INDEX IF NOT EXISTS", 1)
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil && !isDuplicateIndex(err) {
			return fmt.Errorf("migrate index: %w", err)
		}
	}
	return nil
}

// MySQL has no IF NOT EXISTS for indexes; error 1061 means it is already there.
func isDuplicateIndex(err error) bool {
	return strings.Contains(err.Error(), "1061") || strings.Contains(strings.ToLower(err.Error()), "duplicate key name")
}
