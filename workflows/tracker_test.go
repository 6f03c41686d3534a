package workflows

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/mocks"
	"go.temporal.io/sdk/temporal"

	"github.com/aswathylr-builds/storefront-checkout/models"
)

func TestTracker_StartLifecycle(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything,
		mock.MatchedBy(func(o client.StartWorkflowOptions) bool {
			return o.ID == "order-lifecycle-901" &&
				o.TaskQueue == "order-lifecycle-queue" &&
				o.WorkflowIDConflictPolicy == enumspb.WORKFLOW_ID_CONFLICT_POLICY_USE_EXISTING
		}),
		mock.Anything,
		mock.MatchedBy(func(in models.LifecycleInput) bool { return in.OrderID == 901 }),
	).Return(&mocks.WorkflowRun{}, nil).Once()

	tracker := NewTracker(c, "order-lifecycle-queue")
	require.NoError(t, tracker.StartLifecycle(context.Background(), models.LifecycleInput{OrderID: 901}))
	c.AssertExpectations(t)
}

func TestTracker_StartLifecycleError(t *testing.T) {
	c := &mocks.Client{}
	c.On("ExecuteWorkflow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
		Return(nil, errors.New("temporal unavailable"))

	err := NewTracker(c, "q").StartLifecycle(context.Background(), models.LifecycleInput{OrderID: 3})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "order 3")
}

func TestTranslate(t *testing.T) {
	err := translate(5, serviceerror.NewNotFound("workflow not found"))
	assert.True(t, errors.Is(err, models.ErrLifecycleNotFound))

	err = translate(5, temporal.NewApplicationError("pending -> fulfilled", ErrTypeInvalidTransition))
	assert.True(t, errors.Is(err, models.ErrInvalidTransition))

	other := errors.New("deadline exceeded")
	err = translate(5, other)
	assert.True(t, errors.Is(err, other))
	assert.False(t, errors.Is(err, models.ErrInvalidTransition))
}
