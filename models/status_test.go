package models

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidStatusTransition(t *testing.T) {
	assert.True(t, IsValidStatusTransition(StatusPending, StatusPaid))
	assert.True(t, IsValidStatusTransition(StatusPending, StatusFailed))
	assert.True(t, IsValidStatusTransition(StatusPaid, StatusFulfilled))
	assert.True(t, IsValidStatusTransition(StatusFulfilled, StatusCompleted))
	assert.True(t, IsValidStatusTransition(StatusCancelled, StatusRefunded))

	assert.False(t, IsValidStatusTransition(StatusPending, StatusFulfilled))
	assert.False(t, IsValidStatusTransition(StatusFailed, StatusPending))
	assert.False(t, IsValidStatusTransition(StatusPaid, StatusPending))
	assert.False(t, IsValidStatusTransition(StatusPending, StatusPending))
}

func TestTerminalStatusesAreAbsorbing(t *testing.T) {
	all := []OrderStatus{
		StatusPending, StatusPaid, StatusFailed, StatusCancelled,
		StatusRefunded, StatusFulfilled, StatusCompleted,
	}
	for _, terminal := range []OrderStatus{StatusCompleted, StatusRefunded} {
		assert.True(t, terminal.IsTerminal())
		for _, to := range all {
			assert.False(t, IsValidStatusTransition(terminal, to), "%s -> %s", terminal, to)
		}
	}
	assert.False(t, StatusCancelled.IsTerminal())
}

func TestNoTransitionReturnsToPending(t *testing.T) {
	for from := range statusTransitions {
		assert.False(t, IsValidStatusTransition(from, StatusPending), "%s -> pending", from)
	}
}

func TestParseOrderStatus(t *testing.T) {
	s, err := ParseOrderStatus("paid")
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, s)

	_, err = ParseOrderStatus("shipped")
	assert.Error(t, err)
}

func TestTransitionEntry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entry, err := TransitionEntry(StatusPending, StatusPaid, ActorPaymentGateway, "transfer received", now)
	require.NoError(t, err)
	require.NotNil(t, entry.FromStatus)
	assert.Equal(t, StatusPending, *entry.FromStatus)
	assert.Equal(t, StatusPaid, entry.ToStatus)
	assert.Equal(t, ActorPaymentGateway, entry.Actor)

	_, err = TransitionEntry(StatusCompleted, StatusRefunded, ActorAdmin, "late refund", now)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
}

func TestInitialHistoryEntry(t *testing.T) {
	entry := InitialHistoryEntry(ActorCustomer, ReasonAwaitingBankTransfer, time.Now())
	assert.Nil(t, entry.FromStatus)
	assert.Equal(t, StatusPending, entry.ToStatus)
	assert.Equal(t, ActorCustomer, entry.Actor)
	assert.Equal(t, "Order created - awaiting bank transfer payment", entry.Reason)
}

func TestUnavailableProductIDs(t *testing.T) {
	errs := []ValidationError{
		{Field: FieldStock, ProductID: 3},
		{Field: FieldPrice, ProductID: 9},
		{Field: FieldVariation, ProductID: 5},
		{Field: FieldAvailability, ProductID: 3},
	}
	assert.Equal(t, []int64{3, 5}, UnavailableProductIDs(errs))
	assert.True(t, HasBlocking(errs))
	assert.False(t, HasBlocking([]ValidationError{{Field: FieldPrice, ProductID: 9}}))
}
