package workflows

import (
	"context"
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/temporal"

	"github.com/aswathylr-builds/storefront-checkout/models"
)

// Tracker drives order lifecycle workflows from outside Temporal
type Tracker struct {
	client    client.Client
	taskQueue string
}

// NewTracker creates a tracker starting workflows on taskQueue
func NewTracker(c client.Client, taskQueue string) *Tracker {
	return &Tracker{client: c, taskQueue: taskQueue}
}

// StartLifecycle begins tracking a committed order. Starting twice for the same order is a no-op.
func (t *Tracker) StartLifecycle(ctx context.Context, input models.LifecycleInput) error {
	opts := client.StartWorkflowOptions{
		ID:                       models.LifecycleWorkflowID(input.OrderID),
		TaskQueue:                t.taskQueue,
		WorkflowIDConflictPolicy: enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING,
	}
	if _, err := t.client.ExecuteWorkflow(ctx, opts, OrderLifecycleWorkflow, input); err != nil {
		return fmt.Errorf("failed to start lifecycle for order %d: %w", input.OrderID, err)
	}
	return nil
}

// Transition asks the lifecycle to move an order to a new status and returns the resulting state
func (t *Tracker) Transition(ctx context.Context, orderID int64, req models.TransitionRequest) (models.LifecycleState, error) {
	var state models.LifecycleState
	handle, err := t.client.UpdateWorkflow(ctx, client.UpdateWorkflowOptions{
		WorkflowID:   models.LifecycleWorkflowID(orderID),
		UpdateName:   models.UpdateTransition,
		Args:         []interface{}{req},
		WaitForStage: client.WorkflowUpdateStageCompleted,
	})
	if err != nil {
		return state, translate(orderID, err)
	}
	if err := handle.Get(ctx, &state); err != nil {
		return state, translate(orderID, err)
	}
	return state, nil
}

// State returns the current status and history of an order
func (t *Tracker) State(ctx context.Context, orderID int64) (models.LifecycleState, error) {
	var state models.LifecycleState
	resp, err := t.client.QueryWorkflow(ctx, models.LifecycleWorkflowID(orderID), "", models.QueryHistory)
	if err != nil {
		return state, translate(orderID, err)
	}
	if err := resp.Get(&state); err != nil {
		return state, fmt.Errorf("failed to decode lifecycle state: %w", err)
	}
	return state, nil
}

// PaymentReceived signals that the bank transfer for an order has landed
func (t *Tracker) PaymentReceived(ctx context.Context, orderID int64, payment models.PaymentReceived) error {
	err := t.client.SignalWorkflow(ctx, models.LifecycleWorkflowID(orderID), "", models.SignalPaymentReceived, payment)
	if err != nil {
		return translate(orderID, err)
	}
	return nil
}

// translate maps Temporal errors onto the lifecycle sentinel errors
func translate(orderID int64, err error) error {
	var notFound *serviceerror.NotFound
	if errors.As(err, &notFound) {
		return fmt.Errorf("order %d: %w", orderID, models.ErrLifecycleNotFound)
	}
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) && appErr.Type() == ErrTypeInvalidTransition {
		return fmt.Errorf("order %d: %w", orderID, models.ErrInvalidTransition)
	}
	return fmt.Errorf("lifecycle call for order %d failed: %w", orderID, err)
}
