package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix scopes the configuration. Field tags carry the full variable
// name, e.g. LIBRARY_APP_PORT.
const EnvPrefix = "LIBRARY"

type Config struct {
	App       AppConfig
	Firebase  FirebaseConfig
	Store     StoreConfig
	Auth      AuthConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	CORS      CORSConfig
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if cfg.Store.Timeout <= 0 {
		return nil, fmt.Errorf("store timeout must be positive, got %s", cfg.Store.Timeout)
	}
	return &cfg, nil
}

type AppConfig struct {
	Env       string `envconfig:"LIBRARY_APP_ENV" default:"dev"`
	Port      string `envconfig:"LIBRARY_APP_PORT" default:"5000"`
	LogLevel  string `envconfig:"LIBRARY_LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LIBRARY_LOG_FORMAT" default:"json"`

	// TrustedProxies lists CIDRs whose X-Forwarded-For header is believed.
	TrustedProxies []string `envconfig:"LIBRARY_TRUSTED_PROXIES"`
}

// IsProd reports whether the service runs in production.
func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, "prod")
}

type FirebaseConfig struct {
	CredentialsPath string `envconfig:"LIBRARY_FIREBASE_CREDENTIALS_PATH"`
	CredentialsJSON string `envconfig:"LIBRARY_FIREBASE_CREDENTIALS_JSON"`
	ProjectID       string `envconfig:"LIBRARY_FIREBASE_PROJECT_ID"`
	WebAPIKey       string `envconfig:"LIBRARY_FIREBASE_WEB_API_KEY"`
}

// Configured reports whether any credentials source is set.
func (f FirebaseConfig) Configured() bool {
	return f.CredentialsPath != "" || f.CredentialsJSON != ""
}

type StoreConfig struct {
	// Timeout bounds every single document store call.
	Timeout time.Duration `envconfig:"LIBRARY_STORE_TIMEOUT" default:"5s"`
}

type AuthConfig struct {
	Required bool `envconfig:"LIBRARY_AUTH_REQUIRED" default:"true"`
}

type RedisConfig struct {
	URL          string        `envconfig:"LIBRARY_REDIS_URL"`
	PoolSize     int           `envconfig:"LIBRARY_REDIS_POOL_SIZE" default:"10"`
	DialTimeout  time.Duration `envconfig:"LIBRARY_REDIS_DIAL_TIMEOUT" default:"5s"`
	ReadTimeout  time.Duration `envconfig:"LIBRARY_REDIS_READ_TIMEOUT" default:"3s"`
	WriteTimeout time.Duration `envconfig:"LIBRARY_REDIS_WRITE_TIMEOUT" default:"3s"`
}

// Enabled is false when no redis URL is configured.
func (r RedisConfig) Enabled() bool {
	return r.URL != ""
}

type RateLimitConfig struct {
	BorrowWindow time.Duration `envconfig:"LIBRARY_RATE_LIMIT_BORROW_WINDOW" default:"1m"`
	BorrowLimit  int           `envconfig:"LIBRARY_RATE_LIMIT_BORROW_LIMIT" default:"30"`
	LoginWindow  time.Duration `envconfig:"LIBRARY_RATE_LIMIT_LOGIN_WINDOW" default:"15m"`
	LoginLimit   int           `envconfig:"LIBRARY_RATE_LIMIT_LOGIN_LIMIT" default:"10"`
}

type CORSConfig struct {
	AllowedOrigins []string `envconfig:"LIBRARY_CORS_ALLOWED_ORIGINS" default:"*"`
}
