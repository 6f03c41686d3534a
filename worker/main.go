package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"

	"github.com/aswathylr-builds/storefront-checkout/activities"
	"github.com/aswathylr-builds/storefront-checkout/codec"
	"github.com/aswathylr-builds/storefront-checkout/commerce"
	"github.com/aswathylr-builds/storefront-checkout/config"
	"github.com/aswathylr-builds/storefront-checkout/health"
	"github.com/aswathylr-builds/storefront-checkout/logging"
	"github.com/aswathylr-builds/storefront-checkout/workflows"
)

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
		log.Printf("Encryption enabled for worker (active key %s)", keyring.ActiveKeyID())
	}

	c, err := client.Dial(clientOptions)
	if err != nil {
		log.Fatalf("Unable to create Temporal client: %v", err)
	}
	defer c.Close()

	backend := commerce.NewClient(cfg.CommerceBaseURL, cfg.CommerceConsumerKey, cfg.CommerceConsumerSecret, commerce.Options{
		CallTimeout:       cfg.CommerceCallTimeout,
		RequestsPerSecond: cfg.CommerceRPS,
		Burst:             cfg.CommerceBurst,
	})

	w := worker.New(c, cfg.TaskQueue, worker.Options{})
	w.RegisterWorkflow(workflows.OrderLifecycleWorkflow)

	orderActivities := activities.NewOrderActivities(backend)
	w.RegisterActivity(orderActivities.SyncOrderStatus)
	w.RegisterActivity(orderActivities.NotifyCustomer)

	log.Printf("Worker starting on task queue: %s", cfg.TaskQueue)
	log.Printf("Temporal Host: %s", cfg.TemporalHost)

	registry := health.NewRegistry(cfg.Version)
	registry.Register(health.NewTemporalChecker(c))
	registry.Register(health.NewCommerceChecker(backend))

	healthServer := health.NewServer(cfg.HealthPort, registry, logger)
	if err := healthServer.Start(); err != nil {
		log.Fatalf("Failed to start health check server: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		log.Println("Worker started successfully")
		if err := w.Run(worker.InterruptCh()); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-sigCh:
		log.Println("Received shutdown signal, gracefully stopping...")
	case err := <-errCh:
		log.Printf("Worker error: %v", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	log.Println("Stopping worker...")
	w.Stop()

	log.Println("Stopping health check server...")
	if err := healthServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Health server shutdown error: %v", err)
	}

	log.Println("Worker shutdown complete")
}
