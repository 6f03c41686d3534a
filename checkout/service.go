// Package checkout turns a validated cart into a committed backend order.
//
// One checkout request moves through
//
//	RECEIVED -> VALIDATING -> ABORTED | VALIDATED
//	VALIDATED -> SNAPSHOTTING -> SUBMITTING -> COMMITTED | FAILED
//
// and no order is ever created while a blocking validation error is outstanding.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/storefront-checkout/commerce"
	"github.com/aswathylr-builds/storefront-checkout/logging"
	"github.com/aswathylr-builds/storefront-checkout/models"
	"github.com/aswathylr-builds/storefront-checkout/pricing"
	"github.com/aswathylr-builds/storefront-checkout/retry"
	"github.com/aswathylr-builds/storefront-checkout/store"
	"github.com/aswathylr-builds/storefront-checkout/validation"
)

var (
	// ErrInvalidRequest marks malformed input rejected before any backend call
	ErrInvalidRequest = errors.New("invalid checkout request")
	// ErrSubmissionFailed marks a backend order creation that failed for good
	ErrSubmissionFailed = errors.New("order submission failed")
)

const releaseTimeout = 2 * time.Second

// Gateway is the commerce backend as seen by checkout
type Gateway interface {
	validation.Gateway
	CreateOrder(ctx context.Context, req commerce.OrderRequest, idempotencyKey string) (*commerce.Order, error)
}

// LifecycleStarter begins status tracking for a committed order
type LifecycleStarter interface {
	StartLifecycle(ctx context.Context, input models.LifecycleInput) error
}

// IdempotencyStore holds one checkout per client key at a time and remembers the order it created
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string, rec store.IdempotencyRecord) (*store.IdempotencyRecord, bool, error)
	Complete(ctx context.Context, key string, rec store.IdempotencyRecord) error
	Release(ctx context.Context, key string, rec store.IdempotencyRecord) error
}

// backendKeySpace namespaces backend idempotency keys derived from client keys
var backendKeySpace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("storefront-checkout/idempotency-key"))

// Request is one checkout submission
type Request struct {
	RequestID string
	// IdempotencyKey is the optional client supplied replay key.
	IdempotencyKey string
	Billing        *models.BillingAddress
	Shipping       *models.ShippingAddress
	LineItems      []models.LineItem
}

// Outcome is the result of a checkout that reached a decision.
// Status is the HTTP status the caller should answer with.
type Outcome struct {
	Status    int
	RequestID string
	OrderID   int64
	Replayed  bool
	// InProgress is set on a 409 caused by another request holding the same idempotency key.
	InProgress       bool
	Snapshot         *models.PriceSnapshot
	ValidationErrors []models.ValidationError
	// UnavailableProductIDs lists products with blocking errors, deduplicated in input order.
	UnavailableProductIDs []int64
	PriceWarnings         []models.ValidationError
}

// Options configures the checkout service
type Options struct {
	Currency         string
	PricesIncludeTax bool
	// Timeout bounds a whole checkout. Zero means no deadline beyond the caller's.
	Timeout       time.Duration
	PaymentWindow time.Duration
	Retention     time.Duration
	MaxLineItems  int
	Retry         retry.Policy
	MaxFetches    int

	Now    func() time.Time
	NewKey func() string
}

// Service runs checkout submissions
type Service struct {
	gateway     Gateway
	validator   *validation.Validator
	lifecycle   LifecycleStarter
	idempotency IdempotencyStore
	logger      log.Logger
	opts        Options
}

// NewService wires a checkout service. lifecycle and idempotency may be nil.
func NewService(gateway Gateway, lifecycle LifecycleStarter, idempotency IdempotencyStore, logger log.Logger, opts Options) *Service {
	logger = logging.OrNop(logger)
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewKey == nil {
		opts.NewKey = uuid.NewString
	}
	if opts.Retry.MaxRetries == 0 && opts.Retry.InitialDelay == 0 {
		opts.Retry = retry.DefaultPolicy()
	}
	return &Service{
		gateway:     gateway,
		validator:   validation.NewValidator(gateway, logger, opts.MaxFetches),
		lifecycle:   lifecycle,
		idempotency: idempotency,
		logger:      logger,
		opts:        opts,
	}
}

// Submit validates the cart, prices it, and creates the order. Input problems
// return an error wrapping ErrInvalidRequest; backend or internal failures
// return any other error. A validation failure is an Outcome, not an error.
func (s *Service) Submit(ctx context.Context, req Request) (Outcome, error) {
	logger := log.With(s.logger, "request_id", req.RequestID)

	if err := s.checkInput(req); err != nil {
		logger.Info("Rejected malformed checkout", "error", err)
		return Outcome{}, err
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	claim, out, done := s.reserve(ctx, logger, req)
	if done {
		return out, nil
	}
	committed := false
	defer func() {
		if !committed {
			s.release(logger, req, claim)
		}
	}()

	logger.Info("Validating cart", "line_items", len(req.LineItems))
	result := s.validator.Validate(ctx, req.LineItems)
	if err := ctx.Err(); err != nil {
		// Lines that could not be fetched in time say nothing about the products.
		logger.Error("Checkout deadline reached during validation", "error", err)
		return Outcome{}, fmt.Errorf("cart validation interrupted: %w", err)
	}
	if result.Blocked() {
		ids := models.UnavailableProductIDs(result.Errors)
		logger.Info("Checkout aborted by validation", "errors", len(result.Errors), "unavailable_product_ids", ids)
		return Outcome{
			Status:                http.StatusConflict,
			RequestID:             req.RequestID,
			ValidationErrors:      result.Errors,
			UnavailableProductIDs: ids,
		}, nil
	}

	snapshot, err := pricing.BuildSnapshot(
		pricing.Catalog{Products: result.Resolved, Variations: result.Variations},
		req.LineItems,
		req.RequestID,
		pricing.Options{Currency: s.opts.Currency, PricesIncludeTax: s.opts.PricesIncludeTax, Now: s.opts.Now},
	)
	if err != nil {
		return Outcome{}, fmt.Errorf("failed to build price snapshot: %w", err)
	}

	history := []models.OrderStatusHistoryEntry{
		models.InitialHistoryEntry(models.ActorCustomer, models.ReasonAwaitingBankTransfer, s.opts.Now()),
	}
	key := s.backendKey(req)
	payload, err := buildOrderRequest(req, snapshot, history, key)
	if err != nil {
		return Outcome{}, err
	}

	logger.Info("Submitting order", "subtotal", snapshot.Subtotal, "idempotency_key", key)
	order, err := retry.Do(ctx, s.opts.Retry, logger, func(ctx context.Context) (*commerce.Order, error) {
		return s.gateway.CreateOrder(ctx, payload, key)
	})
	if err != nil {
		logger.Error("Order creation failed", "error", err)
		return Outcome{}, fmt.Errorf("%w: %w", ErrSubmissionFailed, err)
	}
	logger.Info("Order committed", "order_id", order.ID)

	committed = true
	s.remember(ctx, logger, req, claim, order.ID)
	s.startLifecycle(ctx, logger, req, order, snapshot, history)

	return Outcome{
		Status:        http.StatusCreated,
		RequestID:     req.RequestID,
		OrderID:       order.ID,
		Snapshot:      &snapshot,
		PriceWarnings: priceWarnings(result.Errors),
	}, nil
}

func (s *Service) checkInput(req Request) error {
	if req.Billing == nil {
		return fmt.Errorf("%w: billing is required", ErrInvalidRequest)
	}
	if len(req.LineItems) == 0 {
		return fmt.Errorf("%w: line_items must be a non-empty array", ErrInvalidRequest)
	}
	if s.opts.MaxLineItems > 0 && len(req.LineItems) > s.opts.MaxLineItems {
		return fmt.Errorf("%w: at most %d line_items are allowed", ErrInvalidRequest, s.opts.MaxLineItems)
	}
	for i, item := range req.LineItems {
		if item.ProductID <= 0 {
			return fmt.Errorf("%w: line_items[%d].product_id must be positive", ErrInvalidRequest, i)
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("%w: line_items[%d].quantity must be positive", ErrInvalidRequest, i)
		}
		if item.VariationID != nil && *item.VariationID <= 0 {
			return fmt.Errorf("%w: line_items[%d].variation_id must be positive", ErrInvalidRequest, i)
		}
	}
	return nil
}

// reserve claims the client idempotency key for this request. It returns done
// when the key already belongs to another request: a committed one is replayed
// and a running one is answered with 409. Store failures fall through to a
// normal checkout without a claim.
func (s *Service) reserve(ctx context.Context, logger log.Logger, req Request) (*store.IdempotencyRecord, Outcome, bool) {
	if s.idempotency == nil || req.IdempotencyKey == "" {
		return nil, Outcome{}, false
	}
	claim := store.IdempotencyRecord{RequestID: req.RequestID, CreatedAt: s.opts.Now().UTC()}
	held, ok, err := s.idempotency.Reserve(ctx, req.IdempotencyKey, claim)
	if err != nil {
		logger.Warn("Idempotency reservation failed", "error", err)
		return nil, Outcome{}, false
	}
	if ok {
		return &claim, Outcome{}, false
	}
	if held.Committed() {
		logger.Info("Replaying committed checkout", "order_id", held.OrderID, "original_request_id", held.RequestID)
		return nil, Outcome{
			Status:    http.StatusOK,
			RequestID: req.RequestID,
			OrderID:   held.OrderID,
			Replayed:  true,
		}, true
	}
	logger.Info("Checkout with the same idempotency key is in progress", "original_request_id", held.RequestID)
	return nil, Outcome{
		Status:     http.StatusConflict,
		RequestID:  req.RequestID,
		InProgress: true,
	}, true
}

// release frees a claim after a checkout that created no order, so the client can retry
func (s *Service) release(logger log.Logger, req Request, claim *store.IdempotencyRecord) {
	if claim == nil {
		return
	}
	// The request context may already be done.
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := s.idempotency.Release(ctx, req.IdempotencyKey, *claim); err != nil {
		logger.Warn("Failed to release idempotency key", "error", err)
	}
}

func (s *Service) remember(ctx context.Context, logger log.Logger, req Request, claim *store.IdempotencyRecord, orderID int64) {
	if claim == nil {
		return
	}
	rec := *claim
	rec.OrderID = orderID
	if err := s.idempotency.Complete(ctx, req.IdempotencyKey, rec); err != nil {
		logger.Warn("Failed to record idempotency key", "order_id", orderID, "error", err)
	}
}

// backendKey is the Idempotency-Key sent with order creation. A client key
// always maps to the same backend key so client retries collapse downstream.
func (s *Service) backendKey(req Request) string {
	if req.IdempotencyKey != "" {
		return uuid.NewSHA1(backendKeySpace, []byte(req.IdempotencyKey)).String()
	}
	return s.opts.NewKey()
}

func (s *Service) startLifecycle(ctx context.Context, logger log.Logger, req Request, order *commerce.Order,
	snapshot models.PriceSnapshot, history []models.OrderStatusHistoryEntry) {
	if s.lifecycle == nil {
		return
	}
	input := models.LifecycleInput{
		OrderID:       order.ID,
		RequestID:     req.RequestID,
		CustomerEmail: req.Billing.Email,
		Total:         snapshot.Total,
		Currency:      snapshot.Currency,
		History:       history,
		PaymentWindow: s.opts.PaymentWindow,
		Retention:     s.opts.Retention,
	}
	// The order exists at this point; a lifecycle failure must not turn it into a 500.
	if err := s.lifecycle.StartLifecycle(ctx, input); err != nil {
		logger.Error("Failed to start order lifecycle", "order_id", order.ID, "error", err)
	}
}

func buildOrderRequest(req Request, snapshot models.PriceSnapshot, history []models.OrderStatusHistoryEntry, key string) (commerce.OrderRequest, error) {
	historyJSON, err := json.Marshal(history)
	if err != nil {
		return commerce.OrderRequest{}, fmt.Errorf("failed to marshal status history: %w", err)
	}
	snapshotJSON, err := json.Marshal(snapshot)
	if err != nil {
		return commerce.OrderRequest{}, fmt.Errorf("failed to marshal price snapshot: %w", err)
	}

	shipping := models.ShippingFromBilling(*req.Billing)
	if req.Shipping != nil {
		shipping = *req.Shipping
	}

	lines := make([]commerce.OrderLineItem, 0, len(req.LineItems))
	for _, item := range req.LineItems {
		line := commerce.OrderLineItem{ProductID: item.ProductID, Quantity: item.Quantity}
		if item.HasVariation() {
			line.VariationID = item.VariationID
		}
		lines = append(lines, line)
	}

	return commerce.OrderRequest{
		Status:             commerce.BackendStatus(models.StatusPending),
		PaymentMethod:      models.PaymentMethodBankTransfer,
		PaymentMethodTitle: models.PaymentMethodBankTransferTitle,
		SetPaid:            false,
		Billing:            *req.Billing,
		Shipping:           shipping,
		LineItems:          lines,
		MetaData: []commerce.MetaData{
			{Key: models.MetaRequestID, Value: req.RequestID},
			{Key: models.MetaIdempotencyKey, Value: key},
			{Key: models.MetaOrderStatus, Value: string(models.StatusPending)},
			{Key: models.MetaStatusHistory, Value: string(historyJSON)},
			{Key: models.MetaPriceSnapshot, Value: string(snapshotJSON)},
		},
	}, nil
}

func priceWarnings(errs []models.ValidationError) []models.ValidationError {
	var out []models.ValidationError
	for _, e := range errs {
		if !e.Field.Blocking() {
			out = append(out, e)
		}
	}
	return out
}
