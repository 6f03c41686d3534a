package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aswathylr-builds/storefront-checkout/checkout"
	"github.com/aswathylr-builds/storefront-checkout/models"
	"github.com/aswathylr-builds/storefront-checkout/store"
)

type submitFunc func(ctx context.Context, req checkout.Request) (checkout.Outcome, error)

func (f submitFunc) Submit(ctx context.Context, req checkout.Request) (checkout.Outcome, error) {
	return f(ctx, req)
}

type fakeLifecycle struct {
	state    models.LifecycleState
	err      error
	lastReq  models.TransitionRequest
	lastID   int64
	stateErr error
}

func (f *fakeLifecycle) Transition(_ context.Context, id int64, req models.TransitionRequest) (models.LifecycleState, error) {
	f.lastID, f.lastReq = id, req
	if f.err != nil {
		return models.LifecycleState{}, f.err
	}
	f.state.Status = req.To
	return f.state, nil
}

func (f *fakeLifecycle) State(_ context.Context, id int64) (models.LifecycleState, error) {
	f.lastID = id
	return f.state, f.stateErr
}

type fakeLimiter struct {
	decision store.Decision
	err      error
	keys     []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string) (store.Decision, error) {
	f.keys = append(f.keys, key)
	return f.decision, f.err
}

const checkoutBody = `{"billing":{"first_name":"Ada","email":"ada@example.com"},"line_items":[{"product_id":1,"quantity":2}]}`

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &m))
	return m
}

func TestCheckout_Created(t *testing.T) {
	var got checkout.Request
	h := NewRouter(Deps{Checkout: submitFunc(func(_ context.Context, req checkout.Request) (checkout.Outcome, error) {
		got = req
		return checkout.Outcome{Status: http.StatusCreated, OrderID: 42, RequestID: req.RequestID}, nil
	})})

	rec := do(t, h, http.MethodPost, "/checkout", checkoutBody, map[string]string{IdempotencyHeader: "abc"})

	require.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, float64(42), body["orderId"])
	assert.NotContains(t, body, "price_warnings")

	id := rec.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, id, body["requestId"])
	assert.Equal(t, id, got.RequestID)
	assert.Equal(t, "abc", got.IdempotencyKey)
	require.Len(t, got.LineItems, 1)
	assert.Equal(t, 2, got.LineItems[0].Quantity)
	assert.Equal(t, "ada@example.com", got.Billing.Email)
}

func TestCheckout_KeepsValidInboundRequestID(t *testing.T) {
	inbound := uuid.NewString()
	h := NewRouter(Deps{Checkout: submitFunc(func(_ context.Context, req checkout.Request) (checkout.Outcome, error) {
		return checkout.Outcome{Status: http.StatusCreated, OrderID: 1}, nil
	})})

	rec := do(t, h, http.MethodPost, "/checkout", checkoutBody, map[string]string{RequestIDHeader: inbound})
	assert.Equal(t, inbound, rec.Header().Get(RequestIDHeader))

	rec = do(t, h, http.MethodPost, "/checkout", checkoutBody, map[string]string{RequestIDHeader: "<script>"})
	assert.NotEqual(t, "<script>", rec.Header().Get(RequestIDHeader))
}

func TestCheckout_SameKeyInProgress(t *testing.T) {
	h := NewRouter(Deps{Checkout: submitFunc(func(context.Context, checkout.Request) (checkout.Outcome, error) {
		return checkout.Outcome{Status: http.StatusConflict, InProgress: true}, nil
	})})

	rec := do(t, h, http.MethodPost, "/checkout", checkoutBody, map[string]string{IdempotencyHeader: "k"})

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, CodeInProgress, body["code"])
	assert.NotContains(t, body, "out_of_stock_product_ids")
	assert.Equal(t, rec.Header().Get(RequestIDHeader), body["requestId"])
}

func TestCheckout_Conflict(t *testing.T) {
	h := NewRouter(Deps{Checkout: submitFunc(func(context.Context, checkout.Request) (checkout.Outcome, error) {
		return checkout.Outcome{
			Status:                http.StatusConflict,
			ValidationErrors:      []models.ValidationError{{Field: models.FieldStock, ProductID: 2, Message: "Product is out of stock"}},
			UnavailableProductIDs: []int64{2},
		}, nil
	})})

	rec := do(t, h, http.MethodPost, "/checkout", checkoutBody, nil)

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["error"])
	assert.Equal(t, []any{float64(2)}, body["out_of_stock_product_ids"])
	errs := body["validation_errors"].([]any)
	require.Len(t, errs, 1)
	assert.Equal(t, "stock", errs[0].(map[string]any)["field"])
	assert.Equal(t, rec.Header().Get(RequestIDHeader), body["requestId"])
}

func TestCheckout_BadRequest(t *testing.T) {
	h := NewRouter(Deps{Checkout: submitFunc(func(context.Context, checkout.Request) (checkout.Outcome, error) {
		return checkout.Outcome{}, fmt.Errorf("%w: billing is required", checkout.ErrInvalidRequest)
	})})

	rec := do(t, h, http.MethodPost, "/checkout", `{"line_items":[]}`, nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "billing is required", body["error"])
	assert.NotContains(t, body, "code")

	rec = do(t, h, http.MethodPost, "/checkout", `{"billing":{},"line_items":"nope"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCheckout_InternalErrorHidesDetails(t *testing.T) {
	h := NewRouter(Deps{Checkout: submitFunc(func(context.Context, checkout.Request) (checkout.Outcome, error) {
		return checkout.Outcome{}, fmt.Errorf("%w: consumer_secret=cs_live_xyz rejected", checkout.ErrSubmissionFailed)
	})})

	rec := do(t, h, http.MethodPost, "/checkout", checkoutBody, nil)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, CodeInternal, body["code"])
	assert.NotContains(t, rec.Body.String(), "cs_live_xyz")
	assert.NotEmpty(t, body["requestId"])
}

func TestCheckout_Replay(t *testing.T) {
	h := NewRouter(Deps{Checkout: submitFunc(func(context.Context, checkout.Request) (checkout.Outcome, error) {
		return checkout.Outcome{Status: http.StatusOK, OrderID: 7, Replayed: true}, nil
	})})

	rec := do(t, h, http.MethodPost, "/checkout", checkoutBody, map[string]string{IdempotencyHeader: "k"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["replayed"])
}

func TestCheckout_BodyLimit(t *testing.T) {
	h := NewRouter(Deps{
		MaxBodyBytes: 32,
		Checkout: submitFunc(func(context.Context, checkout.Request) (checkout.Outcome, error) {
			t.Fatal("submit must not be reached")
			return checkout.Outcome{}, nil
		}),
	})
	rec := do(t, h, http.MethodPost, "/checkout", checkoutBody, nil)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestCheckout_PanicIsRecovered(t *testing.T) {
	h := NewRouter(Deps{Checkout: submitFunc(func(context.Context, checkout.Request) (checkout.Outcome, error) {
		panic("boom")
	})})
	rec := do(t, h, http.MethodPost, "/checkout", checkoutBody, nil)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func adminRouter(lc *fakeLifecycle, lim *fakeLimiter) http.Handler {
	return NewRouter(Deps{
		Checkout:  submitFunc(func(context.Context, checkout.Request) (checkout.Outcome, error) { return checkout.Outcome{}, nil }),
		Lifecycle: lc,
		Authorizer: NewTokenAuthorizer(map[string]Principal{
			"admin-token": {Caller: "alice", Role: RoleAdmin},
			"staff-token": {Caller: "bob", Role: "shop_manager"},
		}),
		Limiter: lim,
	})
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func TestAdmin_RequiresAdminRole(t *testing.T) {
	h := adminRouter(&fakeLifecycle{}, &fakeLimiter{decision: store.Decision{Allowed: true}})

	rec := do(t, h, http.MethodGet, "/admin/orders/1/history", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/admin/orders/1/history", "", bearer("wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/admin/orders/1/history", "", bearer("staff-token"))
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Equal(t, CodeForbidden, decode(t, rec)["code"])
}

func TestAdmin_ChangeStatus(t *testing.T) {
	lc := &fakeLifecycle{state: models.LifecycleState{OrderID: 10, Status: models.StatusPending}}
	lim := &fakeLimiter{decision: store.Decision{Allowed: true, Remaining: 4}}
	h := adminRouter(lc, lim)

	rec := do(t, h, http.MethodPost, "/admin/orders/10/status", `{"status":"cancelled","reason":"customer request"}`, bearer("admin-token"))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int64(10), lc.lastID)
	assert.Equal(t, models.StatusCancelled, lc.lastReq.To)
	assert.Equal(t, models.ActorAdmin, lc.lastReq.Actor)
	assert.Equal(t, "customer request", lc.lastReq.Reason)
	assert.Equal(t, "cancelled", decode(t, rec)["status"])
	assert.Equal(t, []string{"admin:alice"}, lim.keys)
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
}

func TestAdmin_InvalidTransitionConflicts(t *testing.T) {
	lc := &fakeLifecycle{
		state: models.LifecycleState{OrderID: 10, Status: models.StatusPending},
		err:   fmt.Errorf("%w: pending -> fulfilled", models.ErrInvalidTransition),
	}
	h := adminRouter(lc, &fakeLimiter{decision: store.Decision{Allowed: true}})

	rec := do(t, h, http.MethodPost, "/admin/orders/10/status", `{"status":"fulfilled"}`, bearer("admin-token"))

	require.Equal(t, http.StatusConflict, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, CodeInvalidTransition, body["code"])
	assert.Equal(t, []any{"paid", "failed", "cancelled"}, body["allowed_statuses"])
	assert.Equal(t, defaultAdminReason, lc.lastReq.Reason)
}

func TestAdmin_BadInput(t *testing.T) {
	h := adminRouter(&fakeLifecycle{}, &fakeLimiter{decision: store.Decision{Allowed: true}})

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/admin/orders/abc/status", `{"status":"paid"}`, bearer("admin-token")).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/admin/orders/1/status", `{"status":"shipped"}`, bearer("admin-token")).Code)
}

func TestAdmin_HistoryNotFound(t *testing.T) {
	lc := &fakeLifecycle{stateErr: fmt.Errorf("query: %w", models.ErrLifecycleNotFound)}
	h := adminRouter(lc, &fakeLimiter{decision: store.Decision{Allowed: true}})

	rec := do(t, h, http.MethodGet, "/admin/orders/99/history", "", bearer("admin-token"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, int64(99), lc.lastID)
}

func TestAdmin_RateLimited(t *testing.T) {
	lim := &fakeLimiter{decision: store.Decision{Allowed: false, RetryAfter: 1500 * time.Millisecond}}
	h := adminRouter(&fakeLifecycle{}, lim)

	rec := do(t, h, http.MethodGet, "/admin/orders/1/history", "", bearer("admin-token"))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
}

func TestAdmin_LimiterOutageFailsOpen(t *testing.T) {
	lc := &fakeLifecycle{state: models.LifecycleState{OrderID: 1, Status: models.StatusPaid}}
	h := adminRouter(lc, &fakeLimiter{err: errors.New("redis down")})

	rec := do(t, h, http.MethodGet, "/admin/orders/1/history", "", bearer("admin-token"))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestHealthIsMounted(t *testing.T) {
	health := chi.NewRouter()
	health.Get("/live", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusNoContent) })
	h := NewRouter(Deps{Health: health})

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodGet, "/health/live", "", nil).Code)
}
