package activities

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/aswathylr-builds/storefront-checkout/commerce"
	"github.com/aswathylr-builds/storefront-checkout/models"
)

// ErrTypeBackendRejected marks backend failures that retrying cannot fix
const ErrTypeBackendRejected = "BackendRejected"

// OrderBackend is the write side of the commerce backend used by the lifecycle
type OrderBackend interface {
	UpdateOrder(ctx context.Context, orderID int64, update commerce.OrderUpdate) (*commerce.Order, error)
	AddOrderNote(ctx context.Context, orderID int64, note string, customerNote bool) error
}

// OrderActivities keeps the backend order in step with the lifecycle workflow
type OrderActivities struct {
	Backend OrderBackend
}

// NewOrderActivities creates a new instance of OrderActivities
func NewOrderActivities(backend OrderBackend) *OrderActivities {
	return &OrderActivities{Backend: backend}
}

// SyncOrderStatus writes the current status and the full history trail onto the backend order
func (a *OrderActivities) SyncOrderStatus(ctx context.Context, sync models.StatusSync) error {
	if activity.IsActivity(ctx) {
		logger := activity.GetLogger(ctx)
		logger.Info("Syncing order status", "order_id", sync.OrderID, "status", sync.Status,
			"sequence", sync.Sequence, "attempt", activity.GetInfo(ctx).Attempt)
	}

	history, err := json.Marshal(sync.History)
	if err != nil {
		return temporal.NewNonRetryableApplicationError("failed to marshal status history", "MarshalError", err)
	}

	update := commerce.OrderUpdate{
		Status: commerce.BackendStatus(sync.Status),
		MetaData: []commerce.MetaData{
			{Key: models.MetaOrderStatus, Value: string(sync.Status)},
			{Key: models.MetaStatusHistory, Value: string(history)},
			{Key: models.MetaStatusSequence, Value: strconv.Itoa(sync.Sequence)},
		},
	}
	if _, err := a.Backend.UpdateOrder(ctx, sync.OrderID, update); err != nil {
		return backendError("update order", err)
	}

	if activity.IsActivity(ctx) {
		activity.GetLogger(ctx).Info("Order status synced", "order_id", sync.OrderID, "status", sync.Status)
	}
	return nil
}

// NotifyCustomer adds a customer-visible note; the backend emails it to the customer
func (a *OrderActivities) NotifyCustomer(ctx context.Context, notice models.CustomerNotice) error {
	if activity.IsActivity(ctx) {
		logger := activity.GetLogger(ctx)
		logger.Info("Sending customer notice", "order_id", notice.OrderID, "status", notice.Status)
	}

	if err := a.Backend.AddOrderNote(ctx, notice.OrderID, notice.Message, true); err != nil {
		return backendError("add order note", err)
	}
	return nil
}

// backendError lets Temporal retry transient backend failures and stops it retrying fatal ones
func backendError(op string, err error) error {
	var cerr *commerce.Error
	if errors.As(err, &cerr) && !cerr.Transient() {
		return temporal.NewNonRetryableApplicationError(
			fmt.Sprintf("%s rejected with status %d", op, cerr.Status), ErrTypeBackendRejected, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
