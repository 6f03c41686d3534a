package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"time"

	"go.temporal.io/sdk/client"

	"github.com/aswathylr-builds/storefront-checkout/codec"
	"github.com/aswathylr-builds/storefront-checkout/config"
	"github.com/aswathylr-builds/storefront-checkout/models"
	"github.com/aswathylr-builds/storefront-checkout/workflows"
)

func main() {
	orderID := flag.Int64("order-id", 0, "Backend order ID")
	action := flag.String("action", "query", "Action to perform: query, payment, transition")
	reference := flag.String("reference", "", "Bank transfer reference (payment)")
	amount := flag.String("amount", "", "Amount received (payment)")
	status := flag.String("status", "", "Target status (transition)")
	reason := flag.String("reason", "", "Reason recorded in the status history (transition)")
	flag.Parse()

	if *orderID <= 0 {
		log.Fatal("order-id is required")
	}

	// The CLI only talks to Temporal, so the commerce settings are not validated here.
	cfg, _ := config.Load()

	clientOptions := client.Options{
		HostPort:  cfg.TemporalHost,
		Namespace: cfg.TemporalNamespace,
	}
	if cfg.EncryptionEnabled {
		keyring, err := codec.ParseKeyring(cfg.EncryptionKeys, cfg.EncryptionActiveKey)
		if err != nil {
			log.Fatalf("Failed to load encryption keys: %v", err)
		}
		clientOptions.DataConverter = codec.NewEncryptionDataConverter(keyring)
		log.Println("Encryption enabled for starter")
	}

	c, err := client.Dial(clientOptions)
	if err != nil {
		log.Fatalf("Unable to create Temporal client: %v", err)
	}
	defer c.Close()

	tracker := workflows.NewTracker(c, cfg.TaskQueue)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch *action {
	case "query":
		printState(tracker.State(ctx, *orderID))
	case "payment":
		err := tracker.PaymentReceived(ctx, *orderID, models.PaymentReceived{
			Reference: *reference,
			Amount:    *amount,
			At:        time.Now().UTC(),
		})
		if err != nil {
			log.Fatalf("Unable to signal payment: %v", err)
		}
		log.Printf("Payment signal sent to %s", models.LifecycleWorkflowID(*orderID))
	case "transition":
		to, err := models.ParseOrderStatus(*status)
		if err != nil {
			log.Fatalf("Invalid status: %v", err)
		}
		printState(tracker.Transition(ctx, *orderID, models.TransitionRequest{
			To:     to,
			Reason: *reason,
			Actor:  models.ActorAdmin,
		}))
	default:
		log.Fatalf("Unknown action: %s", *action)
	}
}

func printState(state models.LifecycleState, err error) {
	if err != nil {
		log.Fatalf("Lifecycle call failed: %v", err)
	}
	out, _ := json.MarshalIndent(state, "", "  ")
	log.Println("Order lifecycle:")
	fmt.Println(string(out))
}
