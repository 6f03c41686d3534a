package workflows

import (
	"errors"
	"fmt"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/aswathylr-builds/storefront-checkout/models"
)

// RetryPolicy configuration
type RetryPolicy = temporal.RetryPolicy

const (
	// ErrTypeInvalidTransition is the application error type of a rejected transition update
	ErrTypeInvalidTransition = "InvalidTransition"

	// DefaultPaymentWindow is how long a bank transfer order may stay pending
	DefaultPaymentWindow = 72 * time.Hour
	// DefaultRetention is how long a failed or cancelled order waits for admin action before the lifecycle closes
	DefaultRetention = 30 * 24 * time.Hour

	// resyncDelay spaces backend sync rounds once an activity has used up its retries
	resyncDelay = 10 * time.Minute
	// maxSyncRounds bounds how often one state is pushed before it is given up on
	maxSyncRounds = 5

	reasonPaymentReceived = "Bank transfer received"
	reasonPaymentExpired  = "Payment window expired"
)

var customerMessages = map[models.OrderStatus]string{
	models.StatusPaid:      "We have received your payment. Your order is being prepared.",
	models.StatusFailed:    "We did not receive your bank transfer in time, so your order could not be completed.",
	models.StatusCancelled: "Your order has been cancelled.",
	models.StatusRefunded:  "Your order has been refunded.",
	models.StatusFulfilled: "Your order is on its way.",
}

// OrderLifecycleWorkflow tracks the status of one committed order. It only
// ever applies transitions present in the status table and appends a history
// entry for each one. A single sync loop mirrors the latest state onto the
// backend order, so backend writes never overlap or go back in time.
// It completes once the order reaches a terminal status, or once a failed or
// cancelled order has seen no change for the retention period.
func OrderLifecycleWorkflow(ctx workflow.Context, input models.LifecycleInput) (models.LifecycleState, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Order lifecycle started", "order_id", input.OrderID, "request_id", input.RequestID)

	state := &models.LifecycleState{
		OrderID:     input.OrderID,
		Status:      models.StatusPending,
		History:     append([]models.OrderStatusHistoryEntry(nil), input.History...),
		LastUpdated: workflow.Now(ctx),
	}
	if n := len(state.History); n > 0 {
		state.Status = state.History[n-1].ToStatus
	} else {
		state.History = []models.OrderStatusHistoryEntry{
			models.InitialHistoryEntry(models.ActorSystem, models.ReasonAwaitingBankTransfer, workflow.Now(ctx)),
		}
	}

	activityOptions := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    time.Minute,
			MaximumAttempts:    10,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, activityOptions)

	// version counts the transitions in the history; synced is the last version
	// the backend accepted or that was given up on.
	version := len(state.History) - 1
	synced := version

	apply := func(ctx workflow.Context, req models.TransitionRequest) error {
		entry, err := models.TransitionEntry(state.Status, req.To, req.Actor, req.Reason, workflow.Now(ctx))
		if err != nil {
			return err
		}
		state.Status = req.To
		state.History = append(state.History, entry)
		state.LastUpdated = entry.Timestamp
		version++
		logger.Info("Order status changed",
			"order_id", input.OrderID, "from", *entry.FromStatus, "to", entry.ToStatus, "actor", entry.Actor, "sequence", version)

		if msg, ok := customerMessages[req.To]; ok && input.CustomerEmail != "" {
			// Update handlers get a context without the workflow's activity options.
			ctx = workflow.WithActivityOptions(ctx, activityOptions)
			notice := models.CustomerNotice{
				OrderID: input.OrderID,
				Email:   input.CustomerEmail,
				Status:  req.To,
				Message: msg,
			}
			if err := workflow.ExecuteActivity(ctx, "NotifyCustomer", notice).Get(ctx, nil); err != nil {
				// Don't fail the lifecycle if notification fails
				logger.Warn("Customer notice failed", "order_id", input.OrderID, "error", err)
			}
		}
		return nil
	}

	workflow.Go(ctx, func(ctx workflow.Context) {
		rounds := 0
		for {
			if err := workflow.Await(ctx, func() bool { return synced < version }); err != nil {
				return
			}
			target := version
			sync := models.StatusSync{
				OrderID:  input.OrderID,
				Status:   state.Status,
				Sequence: target,
				History:  append([]models.OrderStatusHistoryEntry(nil), state.History...),
			}
			err := workflow.ExecuteActivity(ctx, "SyncOrderStatus", sync).Get(ctx, nil)
			if err == nil {
				synced, rounds = target, 0
				continue
			}

			rounds++
			var appErr *temporal.ApplicationError
			rejected := errors.As(err, &appErr) && appErr.NonRetryable()
			if rejected || rounds >= maxSyncRounds {
				// The workflow stays the source of truth; the next transition pushes the full history again.
				logger.Error("Giving up on order status sync",
					"order_id", input.OrderID, "status", sync.Status, "sequence", target, "rounds", rounds, "error", err)
				synced, rounds = target, 0
				continue
			}
			logger.Warn("Order status sync failed, retrying",
				"order_id", input.OrderID, "status", sync.Status, "sequence", target, "rounds", rounds, "error", err)
			// Wake early when a newer state is waiting.
			if _, err := workflow.AwaitWithTimeout(ctx, resyncDelay, func() bool { return version != target }); err != nil {
				return
			}
		}
	})

	err := workflow.SetQueryHandler(ctx, models.QueryHistory, func() (models.LifecycleState, error) {
		return *state, nil
	})
	if err != nil {
		logger.Error("Failed to register query handler", "error", err)
		return *state, err
	}

	err = workflow.SetUpdateHandlerWithOptions(ctx, models.UpdateTransition,
		func(ctx workflow.Context, req models.TransitionRequest) (models.LifecycleState, error) {
			if err := apply(ctx, req); err != nil {
				return *state, temporal.NewApplicationError(err.Error(), ErrTypeInvalidTransition)
			}
			return *state, nil
		},
		workflow.UpdateHandlerOptions{
			Validator: func(ctx workflow.Context, req models.TransitionRequest) error {
				if !req.Actor.Valid() {
					return temporal.NewApplicationError(fmt.Sprintf("unknown actor %q", req.Actor), ErrTypeInvalidTransition)
				}
				if !models.IsValidStatusTransition(state.Status, req.To) {
					return temporal.NewApplicationError(
						fmt.Sprintf("%s: %s -> %s", models.ErrInvalidTransition, state.Status, req.To), ErrTypeInvalidTransition)
				}
				return nil
			},
		},
	)
	if err != nil {
		logger.Error("Failed to register update handler", "error", err)
		return *state, err
	}

	paymentChannel := workflow.GetSignalChannel(ctx, models.SignalPaymentReceived)
	workflow.Go(ctx, func(ctx workflow.Context) {
		for {
			var payment models.PaymentReceived
			paymentChannel.Receive(ctx, &payment)
			logger.Info("Payment signal received", "order_id", input.OrderID, "reference", payment.Reference)
			if state.Status != models.StatusPending {
				logger.Warn("Ignoring payment for non-pending order", "order_id", input.OrderID, "status", state.Status)
				continue
			}
			reason := reasonPaymentReceived
			if payment.Reference != "" {
				reason += " (" + payment.Reference + ")"
			}
			_ = apply(ctx, models.TransitionRequest{To: models.StatusPaid, Reason: reason, Actor: models.ActorPaymentGateway})
		}
	})

	window := input.PaymentWindow
	if window <= 0 {
		window = DefaultPaymentWindow
	}
	if state.Status == models.StatusPending {
		workflow.Go(ctx, func(ctx workflow.Context) {
			if err := workflow.NewTimer(ctx, window).Get(ctx, nil); err != nil {
				return
			}
			if state.Status != models.StatusPending {
				return
			}
			logger.Info("Payment window expired", "order_id", input.OrderID, "window", window)
			_ = apply(ctx, models.TransitionRequest{To: models.StatusFailed, Reason: reasonPaymentExpired, Actor: models.ActorSystem})
		})
	}

	retention := input.Retention
	if retention <= 0 {
		retention = DefaultRetention
	}
	settled := func() bool { return synced == version && workflow.AllHandlersFinished(ctx) }

	for !state.Status.IsTerminal() || !settled() {
		if !dormant(state.Status) {
			err = workflow.Await(ctx, func() bool {
				return dormant(state.Status) || (state.Status.IsTerminal() && settled())
			})
			if err != nil {
				return *state, err
			}
			continue
		}

		seen := version
		changed, err := workflow.AwaitWithTimeout(ctx, retention, func() bool { return version != seen })
		if err != nil {
			return *state, err
		}
		if changed {
			continue
		}
		if err := workflow.Await(ctx, settled); err != nil {
			return *state, err
		}
		if version == seen {
			logger.Info("Retention period elapsed", "order_id", input.OrderID, "status", state.Status, "retention", retention)
			break
		}
	}

	logger.Info("Order lifecycle completed", "order_id", input.OrderID, "status", state.Status)
	return *state, nil
}

// dormant statuses wait on an admin decision that may never come
func dormant(status models.OrderStatus) bool {
	return status == models.StatusFailed || status == models.StatusCancelled
}
