package app

import (
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (BREEZE_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (BREEZE_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	PublicURL    string `usage:"Externally reachable base URL of this service, used to build the return URL" flag:"public-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (BREEZE_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Store        StoreConfig
	Breeze       BreezeConfig
	Redis        RedisConfig
	Kafka        KafkaConfig
	RateLimit    RateLimitConfig
	Graceful     GracefulConfig
}

// StoreConfig lists the storefront pages buyers are redirected to.
type StoreConfig struct {
	CartURL         string `usage:"Storefront cart page" flag:"store-cart-url"`
	CheckoutURL     string `usage:"Storefront checkout page" flag:"store-checkout-url"`
	ConfirmationURL string `usage:"Storefront order confirmation page" flag:"store-confirmation-url"`
}

// BreezeConfig configures the payment provider.
type BreezeConfig struct {
	APIBaseURL          string        `usage:"Override of the Breeze API base URL" flag:"breeze-api-base-url"`
	TestMode            bool          `default:"true" usage:"Use the test API key" flag:"breeze-test-mode"`
	TestAPIKey          string        `usage:"Breeze test API key" flag:"breeze-test-api-key"`
	LiveAPIKey          string        `usage:"Breeze live API key" flag:"breeze-live-api-key"`
	WebhookSecret       string        `usage:"Shared secret for webhook signatures" flag:"breeze-webhook-secret"`
	PaymentMethods      []string      `usage:"Preferred payment methods (apple_pay, google_pay, card, crypto)" flag:"breeze-payment-methods"`
	SupportedCurrencies []string      `default:"USD" usage:"Currencies Breeze accepts" flag:"breeze-currencies"`
	Timeout             time.Duration `default:"45s" usage:"Breeze API request timeout" flag:"breeze-timeout"`
	Breaker             BreakerConfig
}

// BreakerConfig controls the circuit breaker around Breeze API calls.
type BreakerConfig struct {
	Enabled     bool          `default:"true" usage:"Enable the Breeze circuit breaker" flag:"breeze-breaker"`
	MaxFailures uint32        `default:"5"    usage:"Consecutive failures before the breaker opens" flag:"breeze-breaker-failures"`
	OpenTimeout time.Duration `default:"30s"  usage:"Time the breaker stays open" flag:"breeze-breaker-timeout"`
}

// APIKey returns the key for the configured mode.
func (c BreezeConfig) APIKey() string {
	if c.TestMode {
		return c.TestAPIKey
	}
	return c.LiveAPIKey
}

// RedisConfig enables the customer id cache when Addr is set.
type RedisConfig struct {
	Addr     string        `usage:"Redis address (host:port); empty disables the cache" flag:"redis-addr"`
	Password string        `usage:"Redis password" flag:"redis-password"`
	DB       int           `default:"0" usage:"Redis database" flag:"redis-db"`
	TTL      time.Duration `default:"24h" usage:"Customer id cache TTL" flag:"redis-ttl"`
}

// KafkaConfig enables payment event publishing when Brokers is set.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka brokers; empty logs events instead" flag:"kafka-brokers"`
	Topic   string   `default:"breeze.payments" usage:"Payment events topic" flag:"kafka-topic"`
}

// RateLimitConfig controls the per-client limiter on the public endpoints.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "BREEZE",
		Files:     []string{"config.yaml", "/etc/breeze/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's BREEZE_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate checks settings the service cannot start without. A missing
// webhook secret is allowed: webhooks are then rejected.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set BREEZE_DATABASE_URL or DATABASE_URL")
	}
	if _, err := c.ReturnURL(); err != nil {
		return err
	}
	if c.Breeze.APIKey() == "" {
		mode := "live"
		if c.Breeze.TestMode {
			mode = "test"
		}
		return errors.Errorf("breeze %s API key is required", mode)
	}
	if c.APIKeyPepper == "" {
		return errors.New("API key pepper is required: set BREEZE_API_KEY_PEPPER")
	}
	return nil
}

// ReturnURL is the absolute URL of the browser return endpoint.
func (c *Config) ReturnURL() (string, error) {
	u, err := url.Parse(c.PublicURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", errors.New("public URL must be absolute: set BREEZE_PUBLIC_URL")
	}
	return strings.TrimRight(c.PublicURL, "/") + "/breeze/return", nil
}
