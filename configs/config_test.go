package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDevOverlay(t *testing.T) {
	cfg, err := Load(".", "dev")
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.True(t, cfg.Store.AutoMigrate)
	assert.Equal(t, "debug", cfg.App.LogLevel)
	assert.Equal(t, ":8080", cfg.App.HTTPAddr)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "midtrans", cfg.Payments.Primary)
	assert.Equal(t, "xendit", cfg.Payments.Backup)
	assert.Equal(t, 3*time.Minute, cfg.Delivery.ReviewDelay)
	assert.Equal(t, 24*time.Hour, cfg.Payments.Tripay.Expiry)
	require.Len(t, cfg.Security.Clients, 1)
	assert.Equal(t, "dev-admin", cfg.Security.Clients[0].ID)
	assert.ElementsMatch(t, []string{"orders.read", "orders.admin", "payments.write"}, cfg.Security.Clients[0].Perms)
}

func TestLoadMissingEnvFileUsesBase(t *testing.T) {
	cfg, err := Load(".", "nope")
	require.NoError(t, err)
	assert.Equal(t, "mysql", cfg.Store.Driver)
	assert.Equal(t, "JambiStore", cfg.App.ShopName)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("FULFILL_STORE__DSN", "file:override.db")
	t.Setenv("FULFILL_PAYMENTS__PRIMARY", "tripay")
	t.Setenv("FULFILL_DELIVERY__REVIEW_DELAY", "90s")

	cfg, err := Load(".", "dev")
	require.NoError(t, err)
	assert.Equal(t, "file:override.db", cfg.Store.DSN)
	assert.Equal(t, "tripay", cfg.Payments.Primary)
	assert.Equal(t, 90*time.Second, cfg.Delivery.ReviewDelay)
}

func writeBase(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "base.yaml"), []byte(body), 0o600))
	return dir
}

func TestLoadDefaults(t *testing.T) {
	dir := writeBase(t, `
app:
  http_addr: ":9000"
store:
  dsn: "x"
payments:
  primary: midtrans
security:
  jwt_secret: s
`)
	cfg, err := Load(dir, "test")
	require.NoError(t, err)
	assert.Equal(t, "fulfillment", cfg.App.Name)
	assert.Equal(t, "fulfillment", cfg.App.ShopName)
	assert.Equal(t, "mysql", cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.HTTP.RequestTimeout)
	assert.Equal(t, 2*time.Minute, cfg.Idempotency.LockTTL)
	assert.Equal(t, 15*time.Minute, cfg.Security.TTL)
	assert.Equal(t, 10*time.Second, cfg.Delivery.AlertTimeout)
	assert.Equal(t, "fulfillment", cfg.Kafka.GroupID)
}

func TestLoadMissingBase(t *testing.T) {
	_, err := Load(t.TempDir(), "dev")
	assert.ErrorContains(t, err, "load base")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		var c Config
		c.App.HTTPAddr = ":8080"
		c.Store.Driver = "sqlite"
		c.Store.DSN = "file:x.db"
		c.Payments.Primary = "midtrans"
		c.Security.JWTSecret = "s"
		return c
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no addr", func(c *Config) { c.App.HTTPAddr = "" }, "http_addr"},
		{"bad driver", func(c *Config) { c.Store.Driver = "postgres" }, "store.driver"},
		{"no dsn", func(c *Config) { c.Store.DSN = "" }, "store.dsn"},
		{"no primary", func(c *Config) { c.Payments.Primary = "" }, "payments.primary"},
		{"no jwt secret", func(c *Config) { c.Security.JWTSecret = "" }, "jwt_secret"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka.brokers"},
		{"rabbit without url", func(c *Config) { c.Rabbit.Enabled = true }, "rabbitmq.url"},
		{"hmac without secret", func(c *Config) {
			c.Webhooks = map[string]WebhookConfig{"midtrans": {Scheme: "hmac-sha256"}}
		}, "webhooks.midtrans.secret"},
		{"rsa without key", func(c *Config) {
			c.Webhooks = map[string]WebhookConfig{"paypal": {Scheme: "rsa-sha256"}}
		}, "webhooks.paypal.public_key_pem"},
		{"unknown scheme", func(c *Config) {
			c.Webhooks = map[string]WebhookConfig{"x": {Scheme: "md5"}}
		}, "webhooks.x.scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(&c)
			assert.ErrorContains(t, c.Validate(), tt.want)
		})
	}
}
