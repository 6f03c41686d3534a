// Package config reads the service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is shared by the checkout server, the lifecycle worker and the operator CLI
type Config struct {
	HTTPPort   int
	HealthPort int
	Version    string
	LogFormat  string
	LogLevel   string

	CommerceBaseURL        string
	CommerceConsumerKey    string
	CommerceConsumerSecret string
	CommerceCallTimeout    time.Duration
	CommerceRPS            float64
	CommerceBurst          int

	Currency         string
	PricesIncludeTax bool
	CheckoutTimeout  time.Duration
	MaxLineItems     int
	MaxFetches       int
	RetryMaxAttempts int
	PaymentWindow    time.Duration
	OrderRetention   time.Duration

	RedisAddr       string
	RedisPassword   string
	RedisDB         int
	IdempotencyTTL  time.Duration
	AdminRateLimit  int
	AdminRateWindow time.Duration
	// AdminTokens maps bearer tokens to "caller:role" principals.
	AdminTokens map[string]string

	TemporalHost      string
	TemporalNamespace string
	TaskQueue         string
	EncryptionEnabled bool
	// EncryptionKeys is "id:base64key,id:base64key"; EncryptionActiveKey names the one used to encrypt.
	EncryptionKeys      string
	EncryptionActiveKey string

	// WebhookSecret authenticates cache invalidation callbacks handled outside this service.
	WebhookSecret string
}

// Load reads the configuration and checks the required fields
func Load() (Config, error) {
	cfg := Config{
		HTTPPort:   getEnvAsInt("HTTP_PORT", 8080),
		HealthPort: getEnvAsInt("HEALTH_PORT", 8090),
		Version:    getEnv("SERVICE_VERSION", "dev"),
		LogFormat:  getEnv("LOG_FORMAT", "json"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),

		CommerceBaseURL:        getEnv("COMMERCE_BASE_URL", ""),
		CommerceConsumerKey:    getEnv("COMMERCE_CONSUMER_KEY", ""),
		CommerceConsumerSecret: getEnv("COMMERCE_CONSUMER_SECRET", ""),
		CommerceCallTimeout:    getEnvAsDuration("COMMERCE_CALL_TIMEOUT", 10*time.Second),
		CommerceRPS:            getEnvAsFloat("COMMERCE_RPS", 0),
		CommerceBurst:          getEnvAsInt("COMMERCE_BURST", 10),

		Currency:         getEnv("STORE_CURRENCY", "EUR"),
		PricesIncludeTax: getEnvAsBool("PRICES_INCLUDE_TAX", true),
		CheckoutTimeout:  getEnvAsDuration("CHECKOUT_TIMEOUT", 30*time.Second),
		MaxLineItems:     getEnvAsInt("CHECKOUT_MAX_LINE_ITEMS", 100),
		MaxFetches:       getEnvAsInt("CHECKOUT_MAX_CONCURRENT_FETCHES", 16),
		RetryMaxAttempts: getEnvAsInt("CHECKOUT_MAX_RETRIES", 2),
		PaymentWindow:    getEnvAsDuration("PAYMENT_WINDOW", 72*time.Hour),
		OrderRetention:   getEnvAsDuration("ORDER_RETENTION", 30*24*time.Hour),

		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         getEnvAsInt("REDIS_DB", 0),
		IdempotencyTTL:  getEnvAsDuration("IDEMPOTENCY_TTL", 24*time.Hour),
		AdminRateLimit:  getEnvAsInt("ADMIN_RATE_LIMIT", 60),
		AdminRateWindow: getEnvAsDuration("ADMIN_RATE_WINDOW", time.Minute),
		AdminTokens:     parsePairs(getEnv("ADMIN_TOKENS", ""), "="),

		TemporalHost:        getEnv("TEMPORAL_HOST", "localhost:7233"),
		TemporalNamespace:   getEnv("TEMPORAL_NAMESPACE", "default"),
		TaskQueue:           getEnv("TASK_QUEUE", "order-lifecycle-queue"),
		EncryptionEnabled:   getEnvAsBool("ENCRYPTION_ENABLED", false),
		EncryptionKeys:      getEnv("ENCRYPTION_KEYS", ""),
		EncryptionActiveKey: getEnv("ENCRYPTION_ACTIVE_KEY", ""),

		WebhookSecret: getEnv("REVALIDATE_SECRET", ""),
	}
	return cfg, cfg.Validate()
}

// Validate reports every missing or inconsistent setting at once
func (c Config) Validate() error {
	var errs []error
	if c.CommerceBaseURL == "" {
		errs = append(errs, errors.New("COMMERCE_BASE_URL is required"))
	} else if !strings.HasPrefix(c.CommerceBaseURL, "http://") && !strings.HasPrefix(c.CommerceBaseURL, "https://") {
		errs = append(errs, fmt.Errorf("COMMERCE_BASE_URL must be an http(s) URL, got %q", c.CommerceBaseURL))
	}
	if c.CommerceConsumerKey == "" {
		errs = append(errs, errors.New("COMMERCE_CONSUMER_KEY is required"))
	}
	if c.CommerceConsumerSecret == "" {
		errs = append(errs, errors.New("COMMERCE_CONSUMER_SECRET is required"))
	}
	if c.RetryMaxAttempts < 0 {
		errs = append(errs, errors.New("CHECKOUT_MAX_RETRIES must not be negative"))
	}
	if c.EncryptionEnabled && (c.EncryptionKeys == "" || c.EncryptionActiveKey == "") {
		errs = append(errs, errors.New("ENCRYPTION_KEYS and ENCRYPTION_ACTIVE_KEY are required when ENCRYPTION_ENABLED=true"))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// parsePairs splits "a=b,c=d" into a map, skipping malformed entries
func parsePairs(raw, sep string) map[string]string {
	out := map[string]string{}
	for _, part := range strings.Split(raw, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), sep)
		if !ok || k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return out
}
