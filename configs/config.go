package configs

import (
	"fmt"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const EnvPrefix = "FULFILL_"

type Config struct {
	App struct {
		Name     string `koanf:"name"`
		ShopName string `koanf:"shop_name"`
		HTTPAddr string `koanf:"http_addr"`
		LogLevel string `koanf:"log_level"`
		LogFile  string `koanf:"log_file"`
	} `koanf:"app"`

	HTTP struct {
		ReadTimeout    time.Duration `koanf:"read_timeout"`
		WriteTimeout   time.Duration `koanf:"write_timeout"`
		IdleTimeout    time.Duration `koanf:"idle_timeout"`
		RequestTimeout time.Duration `koanf:"request_timeout"`
	} `koanf:"http"`

	Store struct {
		Driver          string        `koanf:"driver"` // mysql | sqlite
		DSN             string        `koanf:"dsn"`
		MaxOpenConns    int           `koanf:"max_open_conns"`
		MaxIdleConns    int           `koanf:"max_idle_conns"`
		ConnMaxLifetime time.Duration `koanf:"conn_max_lifetime"`
		AutoMigrate     bool          `koanf:"auto_migrate"`
	} `koanf:"store"`

	Redis struct {
		Enabled  bool   `koanf:"enabled"`
		Addr     string `koanf:"addr"`
		Password string `koanf:"password"`
		DB       int    `koanf:"db"`
	} `koanf:"redis"`

	Cache struct {
		TTL time.Duration `koanf:"ttl"`
	} `koanf:"cache"`

	Idempotency struct {
		LockTTL time.Duration `koanf:"lock_ttl"`
		TTL     time.Duration `koanf:"ttl"`
	} `koanf:"idempotency"`

	Rabbit struct {
		Enabled        bool          `koanf:"enabled"`
		URL            string        `koanf:"url"`
		Prefetch       int           `koanf:"prefetch"`
		HandlerTimeout time.Duration `koanf:"handler_timeout"`
	} `koanf:"rabbitmq"`

	Kafka struct {
		Enabled       bool     `koanf:"enabled"`
		Brokers       []string `koanf:"brokers"`
		GroupID       string   `koanf:"group_id"`
		Topic         string   `koanf:"topic"`
		InitialOffset string   `koanf:"initial_offset"`
	} `koanf:"kafka"`

	Security struct {
		JWTSecret string         `koanf:"jwt_secret"`
		Issuer    string         `koanf:"issuer"`
		Audience  string         `koanf:"audience"`
		TTL       time.Duration  `koanf:"ttl"`
		Clients   []ClientConfig `koanf:"clients"`
	} `koanf:"security"`

	Payments struct {
		Primary   string        `koanf:"primary"`
		Backup    string        `koanf:"backup"`
		ReturnURL string        `koanf:"return_url"`
		Timeout   time.Duration `koanf:"timeout"`

		Midtrans struct {
			BaseURL   string `koanf:"base_url"`
			ServerKey string `koanf:"server_key"`
			Acquirer  string `koanf:"acquirer"`
		} `koanf:"midtrans"`
		Xendit struct {
			BaseURL   string `koanf:"base_url"`
			SecretKey string `koanf:"secret_key"`
		} `koanf:"xendit"`
		Tripay struct {
			BaseURL      string        `koanf:"base_url"`
			APIKey       string        `koanf:"api_key"`
			PrivateKey   string        `koanf:"private_key"`
			MerchantCode string        `koanf:"merchant_code"`
			Method       string        `koanf:"method"`
			Expiry       time.Duration `koanf:"expiry"`
		} `koanf:"tripay"`
		PayPal struct {
			BaseURL      string `koanf:"base_url"`
			ClientID     string `koanf:"client_id"`
			ClientSecret string `koanf:"client_secret"`
			CancelURL    string `koanf:"cancel_url"`
		} `koanf:"paypal"`
	} `koanf:"payments"`

	// Webhooks maps a gateway name to how its callbacks are signed.
	Webhooks map[string]WebhookConfig `koanf:"webhooks"`

	Delivery struct {
		ReviewDelay    time.Duration `koanf:"review_delay"`
		AlertTimeout   time.Duration `koanf:"alert_timeout"`
		APICallTimeout time.Duration `koanf:"api_call_timeout"`
	} `koanf:"delivery"`

	Notifications struct {
		Enabled       bool          `koanf:"enabled"`
		Interval      time.Duration `koanf:"interval"`
		BatchSize     int           `koanf:"batch_size"`
		MaxAttempts   int           `koanf:"max_attempts"`
		RetryDelay    time.Duration `koanf:"retry_delay"`
		RatePerSecond float64       `koanf:"rate_per_second"`
		Burst         int           `koanf:"burst"`
	} `koanf:"notifications"`

	Alert struct {
		WebhookURL string        `koanf:"webhook_url"`
		Timeout    time.Duration `koanf:"timeout"`
	} `koanf:"alert"`
}

type ClientConfig struct {
	ID      string   `koanf:"id"`
	Secret  string   `koanf:"secret"`
	Perms   []string `koanf:"perms"`
	Enabled bool     `koanf:"enabled"`
}

type WebhookConfig struct {
	Scheme       string `koanf:"scheme"` // hmac-sha256 | rsa-sha256
	Header       string `koanf:"header"`
	Secret       string `koanf:"secret"`
	PublicKeyPEM string `koanf:"public_key_pem"`
}

// Load reads <dir>/base.yaml, then <dir>/<envName>.yaml if present, then FULFILL_
// environment variables (nested with __, e.g. FULFILL_STORE__DSN).
func Load(pathDir, envName string) (Config, error) {
	k := koanf.New(".")
	if err := k.Load(file.Provider(fmt.Sprintf("%s/base.yaml", pathDir)), yaml.Parser()); err != nil {
		return Config{}, fmt.Errorf("load base: %w", err)
	}

	// optional so local runs work without an env file
	_ = k.Load(file.Provider(fmt.Sprintf("%s/%s.yaml", pathDir, envName)), yaml.Parser())

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ReplaceAll(s, "__", ".")
		return strings.ToLower(s)
	}), nil); err != nil {
		return Config{}, fmt.Errorf("env overlay: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "fulfillment"
	}
	if c.App.ShopName == "" {
		c.App.ShopName = c.App.Name
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 5 * time.Second
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "mysql"
	}
	if c.Idempotency.LockTTL <= 0 {
		c.Idempotency.LockTTL = 2 * time.Minute
	}
	if c.Idempotency.TTL <= 0 {
		c.Idempotency.TTL = 24 * time.Hour
	}
	if c.Security.TTL <= 0 {
		c.Security.TTL = 15 * time.Minute
	}
	if c.Payments.Timeout <= 0 {
		c.Payments.Timeout = 30 * time.Second
	}
	if c.Delivery.ReviewDelay <= 0 {
		c.Delivery.ReviewDelay = 3 * time.Minute
	}
	if c.Delivery.AlertTimeout <= 0 {
		c.Delivery.AlertTimeout = 10 * time.Second
	}
	if c.Delivery.APICallTimeout <= 0 {
		c.Delivery.APICallTimeout = 30 * time.Second
	}
	if c.Kafka.GroupID == "" {
		c.Kafka.GroupID = c.App.Name
	}
}

func (c Config) Validate() error {
	if c.App.HTTPAddr == "" {
		return fmt.Errorf("app.http_addr required")
	}
	switch c.Store.Driver {
	case "mysql", "sqlite":
	default:
		return fmt.Errorf("store.driver must be mysql or sqlite, got %q", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return fmt.Errorf("store.dsn required")
	}
	if c.Payments.Primary == "" {
		return fmt.Errorf("payments.primary required")
	}
	if c.Security.JWTSecret == "" {
		return fmt.Errorf("security.jwt_secret required")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers required when kafka is enabled")
	}
	if c.Rabbit.Enabled && c.Rabbit.URL == "" {
		return fmt.Errorf("rabbitmq.url required when rabbitmq is enabled")
	}
	for name, w := range c.Webhooks {
		switch w.Scheme {
		case "hmac-sha256":
			if w.Secret == "" {
				return fmt.Errorf("webhooks.%s.secret required", name)
			}
		case "rsa-sha256":
			if w.PublicKeyPEM == "" {
				return fmt.Errorf("webhooks.%s.public_key_pem required", name)
			}
		default:
			return fmt.Errorf("webhooks.%s.scheme must be hmac-sha256 or rsa-sha256", name)
		}
	}
	return nil
}
