package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/storefront-checkout/checkout"
	"github.com/aswathylr-builds/storefront-checkout/logging"
	"github.com/aswathylr-builds/storefront-checkout/models"
)

// IdempotencyHeader is the optional client replay key on POST /checkout
const IdempotencyHeader = "Idempotency-Key"

const maxIdempotencyKeyLen = 255

const (
	msgValidationFailed = "Some items in your cart can no longer be ordered"
	msgInternal         = "An unexpected error occurred while processing your order"
	msgInProgress       = "A checkout with this Idempotency-Key is already being processed"
)

// Submitter runs one checkout
type Submitter interface {
	Submit(ctx context.Context, req checkout.Request) (checkout.Outcome, error)
}

// CheckoutHandler serves POST /checkout
type CheckoutHandler struct {
	submitter Submitter
	logger    log.Logger
}

// NewCheckoutHandler creates a checkout handler
func NewCheckoutHandler(submitter Submitter, logger log.Logger) *CheckoutHandler {
	return &CheckoutHandler{submitter: submitter, logger: logging.OrNop(logger)}
}

type checkoutRequestDTO struct {
	Billing   *models.BillingAddress  `json:"billing"`
	Shipping  *models.ShippingAddress `json:"shipping,omitempty"`
	LineItems []models.LineItem       `json:"line_items"`
}

// CheckoutSuccessDTO is the 201 (and 200 replay) body
type CheckoutSuccessDTO struct {
	Success       bool                     `json:"success"`
	OrderID       int64                    `json:"orderId"`
	RequestID     string                   `json:"requestId"`
	Replayed      bool                     `json:"replayed,omitempty"`
	PriceWarnings []models.ValidationError `json:"price_warnings,omitempty"`
}

// CheckoutConflictDTO is the 409 body
type CheckoutConflictDTO struct {
	Error                string                   `json:"error"`
	ValidationErrors     []models.ValidationError `json:"validation_errors"`
	OutOfStockProductIDs []int64                  `json:"out_of_stock_product_ids"`
	RequestID            string                   `json:"requestId"`
}

// Submit handles POST /checkout
func (h *CheckoutHandler) Submit(w http.ResponseWriter, r *http.Request) {
	requestID := RequestIDFrom(r.Context())

	var body checkoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, h.logger, http.StatusRequestEntityTooLarge, "", "request body is too large")
			return
		}
		respondError(w, r, h.logger, http.StatusBadRequest, "", "invalid JSON body")
		return
	}

	key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
	if len(key) > maxIdempotencyKeyLen {
		respondError(w, r, h.logger, http.StatusBadRequest, "", "Idempotency-Key is too long")
		return
	}

	out, err := h.submitter.Submit(r.Context(), checkout.Request{
		RequestID:      requestID,
		IdempotencyKey: key,
		Billing:        body.Billing,
		Shipping:       body.Shipping,
		LineItems:      body.LineItems,
	})
	if err != nil {
		if errors.Is(err, checkout.ErrInvalidRequest) {
			respondError(w, r, h.logger, http.StatusBadRequest, "", strings.TrimPrefix(err.Error(), checkout.ErrInvalidRequest.Error()+": "))
			return
		}
		// Backend details stay in the log.
		h.logger.Error("Checkout failed", "request_id", requestID, "error", err)
		respondError(w, r, h.logger, http.StatusInternalServerError, CodeInternal, msgInternal)
		return
	}

	switch {
	case out.InProgress:
		respondError(w, r, h.logger, http.StatusConflict, CodeInProgress, msgInProgress)
	case out.Status == http.StatusConflict:
		respondJSON(w, h.logger, http.StatusConflict, CheckoutConflictDTO{
			Error:                msgValidationFailed,
			ValidationErrors:     out.ValidationErrors,
			OutOfStockProductIDs: out.UnavailableProductIDs,
			RequestID:            requestID,
		})
	case out.Status == http.StatusCreated, out.Status == http.StatusOK:
		respondJSON(w, h.logger, out.Status, CheckoutSuccessDTO{
			Success:       true,
			OrderID:       out.OrderID,
			RequestID:     requestID,
			Replayed:      out.Replayed,
			PriceWarnings: out.PriceWarnings,
		})
	default:
		h.logger.Error("Checkout ended in an unknown state", "request_id", requestID, "status", out.Status)
		respondError(w, r, h.logger, http.StatusInternalServerError, CodeInternal, msgInternal)
	}
}
