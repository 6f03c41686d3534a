package activities

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/testsuite"

	"github.com/aswathylr-builds/storefront-checkout/commerce"
	"github.com/aswathylr-builds/storefront-checkout/models"
)

type mockBackend struct {
	mock.Mock
}

func (m *mockBackend) UpdateOrder(ctx context.Context, orderID int64, update commerce.OrderUpdate) (*commerce.Order, error) {
	args := m.Called(ctx, orderID, update)
	o, _ := args.Get(0).(*commerce.Order)
	return o, args.Error(1)
}

func (m *mockBackend) AddOrderNote(ctx context.Context, orderID int64, note string, customerNote bool) error {
	return m.Called(ctx, orderID, note, customerNote).Error(0)
}

func paidSync() models.StatusSync {
	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	entry, _ := models.TransitionEntry(models.StatusPending, models.StatusPaid, models.ActorPaymentGateway, "transfer received", now)
	return models.StatusSync{
		OrderID:  77,
		Status:   models.StatusPaid,
		Sequence: 1,
		History: []models.OrderStatusHistoryEntry{
			models.InitialHistoryEntry(models.ActorCustomer, models.ReasonAwaitingBankTransfer, now.Add(-time.Hour)),
			entry,
		},
	}
}

func TestSyncOrderStatus_AgainstBackend(t *testing.T) {
	var got commerce.OrderUpdate
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/orders/77", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":77,"status":"processing"}`))
	}))
	defer server.Close()

	acts := NewOrderActivities(commerce.NewClient(server.URL, "ck", "cs", commerce.Options{}))
	require.NoError(t, acts.SyncOrderStatus(context.Background(), paidSync()))

	assert.Equal(t, "processing", got.Status)
	require.Len(t, got.MetaData, 3)
	assert.Equal(t, models.MetaOrderStatus, got.MetaData[0].Key)
	assert.Equal(t, "paid", got.MetaData[0].Value)

	var history []models.OrderStatusHistoryEntry
	require.NoError(t, json.Unmarshal([]byte(got.MetaData[1].Value), &history))
	require.Len(t, history, 2)
	assert.Nil(t, history[0].FromStatus)
	assert.Equal(t, models.StatusPaid, history[1].ToStatus)

	assert.Equal(t, models.MetaStatusSequence, got.MetaData[2].Key)
	assert.Equal(t, "1", got.MetaData[2].Value)
}

func TestSyncOrderStatus_FatalIsNonRetryable(t *testing.T) {
	backend := &mockBackend{}
	backend.On("UpdateOrder", mock.Anything, int64(77), mock.Anything).
		Return(nil, &commerce.Error{Kind: commerce.KindFatal, Status: 400, Op: "update order"})

	err := NewOrderActivities(backend).SyncOrderStatus(context.Background(), paidSync())
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	require.True(t, errors.As(err, &appErr))
	assert.True(t, appErr.NonRetryable())
	assert.Equal(t, ErrTypeBackendRejected, appErr.Type())
}

func TestSyncOrderStatus_TransientIsRetryable(t *testing.T) {
	backend := &mockBackend{}
	backend.On("UpdateOrder", mock.Anything, int64(77), mock.Anything).
		Return(nil, &commerce.Error{Kind: commerce.KindTransient, Status: 503, Op: "update order"})

	err := NewOrderActivities(backend).SyncOrderStatus(context.Background(), paidSync())
	require.Error(t, err)

	var appErr *temporal.ApplicationError
	assert.False(t, errors.As(err, &appErr))
	assert.True(t, commerce.IsTransient(err))
}

func TestNotifyCustomer(t *testing.T) {
	backend := &mockBackend{}
	backend.On("AddOrderNote", mock.Anything, int64(77), "Payment received", true).Return(nil)

	err := NewOrderActivities(backend).NotifyCustomer(context.Background(), models.CustomerNotice{
		OrderID: 77,
		Email:   "ada@example.com",
		Status:  models.StatusPaid,
		Message: "Payment received",
	})
	require.NoError(t, err)
	backend.AssertExpectations(t)
}

func TestSyncOrderStatus_InActivityEnvironment(t *testing.T) {
	var suite testsuite.WorkflowTestSuite
	env := suite.NewTestActivityEnvironment()

	backend := &mockBackend{}
	backend.On("UpdateOrder", mock.Anything, int64(77), mock.Anything).Return(&commerce.Order{ID: 77}, nil)
	acts := NewOrderActivities(backend)
	env.RegisterActivity(acts)

	_, err := env.ExecuteActivity(acts.SyncOrderStatus, paidSync())
	require.NoError(t, err)
	backend.AssertNumberOfCalls(t, "UpdateOrder", 1)
}
