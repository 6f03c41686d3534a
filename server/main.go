package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.temporal.io/sdk/client"

	"github.com/aswathylr-builds/storefront-checkout/api"
	"github.com/aswathylr-builds/storefront-checkout/checkout"
	"github.com/aswathylr-builds/storefront-checkout/codec"
	"github.com/aswathylr-builds/storefront-checkout/commerce"
	"github.com/aswathylr-builds/storefront-checkout/config"
	"github.com/aswathylr-builds/storefront-checkout/health"
	"github.com/aswathylr-builds/storefront-checkout/logging"
	"github.com/aswathylr-builds/storefront-checkout/retry"
	"github.com/aswathylr-builds/storefront-checkout/store"
	"github.com/aswathylr-builds/storefront-checkout/workflows"
)

const shutdownTimeout = 15 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger := logging.New(cfg.LogFormat, cfg.LogLevel)

	clientOptions := client.Options{
		HostPort:  cfg.TemporalHost,
		Namespace: cfg.TemporalNamespace,
		Logger:    logger,
	}
	if cfg.EncryptionEnabled {
		keyring, err := codec.ParseKeyring(cfg.EncryptionKeys, cfg.EncryptionActiveKey)
		if err != nil {
			log.Fatalf("Failed to load encryption keys: %v", err)
		}
		clientOptions.DataConverter = codec.NewEncryptionDataConverter(keyring)
		log.Printf("Encryption enabled for checkout server (active key %s)", keyring.ActiveKeyID())
	}

	tc, err := client.Dial(clientOptions)
	if err != nil {
		log.Fatalf("Unable to create Temporal client: %v", err)
	}
	defer tc.Close()
	tracker := workflows.NewTracker(tc, cfg.TaskQueue)

	backend := commerce.NewClient(cfg.CommerceBaseURL, cfg.CommerceConsumerKey, cfg.CommerceConsumerSecret, commerce.Options{
		CallTimeout:       cfg.CommerceCallTimeout,
		RequestsPerSecond: cfg.CommerceRPS,
		Burst:             cfg.CommerceBurst,
	})

	registry := health.NewRegistry(cfg.Version)
	registry.Register(health.NewTemporalChecker(tc))
	registry.Register(health.NewCommerceChecker(backend))

	deps := api.Deps{
		Lifecycle:  tracker,
		Authorizer: api.NewTokenAuthorizer(principals(cfg.AdminTokens)),
		Health:     registry.Handler(),
		Logger:     logger,
	}

	// Redis is optional; without it admin routes are not rate limited and replays are not detected.
	var idempotency checkout.IdempotencyStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer rdb.Close()
		registry.Register(health.NewRedisChecker(rdb))
		idempotency = store.NewIdempotencyStore(rdb, cfg.IdempotencyTTL)
		deps.Limiter = store.NewRateLimiter(rdb, "admin", cfg.AdminRateLimit, cfg.AdminRateWindow)
	} else {
		log.Println("REDIS_ADDR not set: idempotent replay and admin rate limiting disabled")
	}

	policy := retry.DefaultPolicy()
	policy.MaxRetries = cfg.RetryMaxAttempts

	deps.Checkout = checkout.NewService(backend, tracker, idempotency, logger, checkout.Options{
		Currency:         cfg.Currency,
		PricesIncludeTax: cfg.PricesIncludeTax,
		Timeout:          cfg.CheckoutTimeout,
		PaymentWindow:    cfg.PaymentWindow,
		Retention:        cfg.OrderRetention,
		MaxLineItems:     cfg.MaxLineItems,
		MaxFetches:       cfg.MaxFetches,
		Retry:            policy,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      api.NewRouter(deps),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.CheckoutTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Checkout server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Received shutdown signal, gracefully stopping...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("HTTP server shutdown error: %v", err)
	}
	log.Println("Checkout server shutdown complete")
}

// principals turns "token=caller:role" config entries into authorizer principals
func principals(tokens map[string]string) map[string]api.Principal {
	out := make(map[string]api.Principal, len(tokens))
	for token, value := range tokens {
		caller, role, ok := strings.Cut(value, ":")
		if !ok {
			log.Printf("Ignoring admin token for %q without a role", value)
			continue
		}
		out[token] = api.Principal{Caller: caller, Role: role}
	}
	return out
}
