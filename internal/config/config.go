package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Port           int           `yaml:"port"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// ClaimRateLimit caps claim requests per user per ClaimRateWindow; 0 disables it.
	ClaimRateLimit  int           `yaml:"claim_rate_limit"`
	ClaimRateWindow time.Duration `yaml:"claim_rate_window"`
}

type DatabaseConfig struct {
	URL      string `yaml:"url"`
	MaxConns int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type StripeConfig struct {
	SecretKey     string `yaml:"secret_key"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

type AuthConfig struct {
	JWTSecret   string `yaml:"jwt_secret"`
	AdminAPIKey string `yaml:"admin_api_key"`
}

type EntitlementConfig struct {
	// ExpiringSoonWindow flags grants ending within this window for UI warnings.
	ExpiringSoonWindow time.Duration `yaml:"expiring_soon_window"`
}

type RefundConfig struct {
	ClaimStaleAfter  time.Duration `yaml:"claim_stale_after"`
	SweepInterval    time.Duration `yaml:"sweep_interval"`
	FinalizeAttempts int           `yaml:"finalize_attempts"`
	FinalizeTimeout  time.Duration `yaml:"finalize_timeout"`
	ProviderTimeout  time.Duration `yaml:"provider_timeout"`
	RetryBackoff     time.Duration `yaml:"retry_backoff"`
}

// MaxClaimHold is the longest a live refund request can own its claim: the provider call plus
// every finalize attempt and the linear backoff between them.
func (r RefundConfig) MaxClaimHold() time.Duration {
	n := time.Duration(r.FinalizeAttempts)
	backoff := r.RetryBackoff * n * (n - 1) / 2
	return r.ProviderTimeout + n*r.FinalizeTimeout + backoff
}

type ClaimConfig struct {
	LockTTL time.Duration `yaml:"lock_ttl"`
}

type CacheConfig struct {
	ProductTTL time.Duration `yaml:"product_ttl"`
}

type Config struct {
	Log         LogConfig         `yaml:"log"`
	HTTP        HTTPConfig        `yaml:"http"`
	Database    DatabaseConfig    `yaml:"database"`
	Redis       RedisConfig       `yaml:"redis"`
	Stripe      StripeConfig      `yaml:"stripe"`
	Auth        AuthConfig        `yaml:"auth"`
	Entitlement EntitlementConfig `yaml:"entitlement"`
	Refund      RefundConfig      `yaml:"refund"`
	Claim       ClaimConfig       `yaml:"claim"`
	Cache       CacheConfig       `yaml:"cache"`

	Runtime RuntimeConfig `yaml:"-"`
}

// LoadConfig reads the YAML file at path, applies .env / environment overrides for
// secrets, fills defaults and validates.
func LoadConfig(path string, dev bool) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg, err := Parse(b)
	if err != nil {
		return nil, err
	}

	// .env is optional; real environment wins over it.
	_ = godotenv.Load()
	cfg.applyEnv()

	cfg.Runtime.Dev = dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML and applies defaults without validating.
func Parse(b []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Port == 0 {
		c.HTTP.Port = 8080
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 15 * time.Second
	}
	if c.HTTP.ClaimRateWindow <= 0 {
		c.HTTP.ClaimRateWindow = time.Minute
	}
	if c.Stripe.MaxConcurrent <= 0 {
		c.Stripe.MaxConcurrent = 4
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.TTL = normalizeTTL(c.Redis.TTL)
	if c.Entitlement.ExpiringSoonWindow <= 0 {
		c.Entitlement.ExpiringSoonWindow = 72 * time.Hour
	}
	if c.Refund.ClaimStaleAfter <= 0 {
		c.Refund.ClaimStaleAfter = 10 * time.Minute
	}
	if c.Refund.SweepInterval <= 0 {
		c.Refund.SweepInterval = time.Minute
	}
	if c.Refund.FinalizeAttempts <= 0 {
		c.Refund.FinalizeAttempts = 3
	}
	if c.Refund.FinalizeTimeout <= 0 {
		c.Refund.FinalizeTimeout = 10 * time.Second
	}
	if c.Refund.ProviderTimeout <= 0 {
		c.Refund.ProviderTimeout = 30 * time.Second
	}
	if c.Refund.RetryBackoff <= 0 {
		c.Refund.RetryBackoff = 200 * time.Millisecond
	}
	if c.Claim.LockTTL <= 0 {
		c.Claim.LockTTL = 30 * time.Second
	}
	if c.Cache.ProductTTL <= 0 {
		c.Cache.ProductTTL = 5 * time.Minute
	}
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	override(&c.Database.URL, "DATABASE_URL")
	override(&c.Redis.URL, "REDIS_URL")
	override(&c.Redis.Password, "REDIS_PASSWORD")
	override(&c.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	override(&c.Auth.JWTSecret, "JWT_SECRET")
	override(&c.Auth.AdminAPIKey, "ADMIN_API_KEY")
}

// Validate checks the settings the service cannot start without.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Redis.URL == "" {
		return errors.New("redis.url is required")
	}
	if c.Stripe.SecretKey == "" && !c.Runtime.Dev {
		return errors.New("stripe.secret_key is required outside dev mode")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	// The sweeper must never pick up a claim whose provider call may still be running.
	if hold := c.Refund.MaxClaimHold(); c.Refund.ClaimStaleAfter <= hold {
		return fmt.Errorf("refund.claim_stale_after (%s) must exceed provider_timeout plus all finalize attempts (%s)",
			c.Refund.ClaimStaleAfter, hold)
	}
	return nil
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
