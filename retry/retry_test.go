package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aswathylr-builds/storefront-checkout/commerce"
)

type recorder struct {
	delays []time.Duration
}

func (r *recorder) sleep(_ context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return nil
}

func testPolicy(r *recorder) Policy {
	p := DefaultPolicy()
	p.Jitter = func(time.Duration) time.Duration { return 7 * time.Millisecond }
	p.Sleep = r.sleep
	return p
}

func TestDo_RetriesTransientUntilBudgetSpent(t *testing.T) {
	rec := &recorder{}
	attempts := 0
	unavailable := &commerce.Error{Kind: commerce.KindTransient, Status: 503}

	_, err := Do(context.Background(), testPolicy(rec), nil, func(context.Context) (int, error) {
		attempts++
		return 0, unavailable
	})

	require.Error(t, err)
	assert.Same(t, unavailable, err)
	assert.Equal(t, 3, attempts)
	assert.Equal(t, []time.Duration{107 * time.Millisecond, 207 * time.Millisecond}, rec.delays)
}

func TestDo_FatalIsNotRetried(t *testing.T) {
	rec := &recorder{}
	attempts := 0

	_, err := Do(context.Background(), testPolicy(rec), nil, func(context.Context) (string, error) {
		attempts++
		return "", &commerce.Error{Kind: commerce.KindFatal, Status: 400, Code: "woocommerce_rest_invalid_product_id"}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Empty(t, rec.delays)
}

func TestDo_UnclassifiedErrorIsNotRetried(t *testing.T) {
	attempts := 0
	_, err := Do(context.Background(), testPolicy(&recorder{}), nil, func(context.Context) (int, error) {
		attempts++
		return 0, errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestDo_SucceedsAfterTransientFailure(t *testing.T) {
	attempts := 0
	got, err := Do(context.Background(), testPolicy(&recorder{}), nil, func(context.Context) (int, error) {
		attempts++
		if attempts == 1 {
			return 0, &commerce.Error{Kind: commerce.KindTransient, Status: 429}
		}
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 2, attempts)
}

func TestDo_StopsWhenContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p := DefaultPolicy()
	attempts := 0
	_, err := Do(ctx, p, nil, func(context.Context) (int, error) {
		attempts++
		return 0, &commerce.Error{Kind: commerce.KindTransient, Status: 500}
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
}

func TestPolicy_DelayIsCapped(t *testing.T) {
	p := DefaultPolicy()
	assert.Equal(t, 100*time.Millisecond, p.Delay(0))
	assert.Equal(t, 200*time.Millisecond, p.Delay(1))
	assert.Equal(t, 800*time.Millisecond, p.Delay(3))
	assert.Equal(t, time.Second, p.Delay(4))
	assert.Equal(t, time.Second, p.Delay(10))
}

func TestClassify(t *testing.T) {
	c := Classify(&commerce.Error{Kind: commerce.KindTransient, Status: 401, Code: "woocommerce_rest_authentication_error"})
	assert.True(t, c.Retryable)
	assert.Contains(t, c.Reason, "woocommerce_rest_authentication_error")

	c = Classify(&commerce.Error{Kind: commerce.KindNotFound, Status: 404})
	assert.False(t, c.Retryable)
	assert.Equal(t, "not_found backend status 404", c.Reason)
}

func TestDefaultJitterStaysInRange(t *testing.T) {
	for i := 0; i < 100; i++ {
		j := randomJitter(50 * time.Millisecond)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.Less(t, j, 50*time.Millisecond)
	}
}
