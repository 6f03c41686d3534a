package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/storefront-checkout/logging"
	"github.com/aswathylr-builds/storefront-checkout/models"
)

const defaultAdminReason = "Status changed by administrator"

// Lifecycle is the order status tracker behind the admin routes
type Lifecycle interface {
	Transition(ctx context.Context, orderID int64, req models.TransitionRequest) (models.LifecycleState, error)
	State(ctx context.Context, orderID int64) (models.LifecycleState, error)
}

// AdminHandler serves the order status admin routes
type AdminHandler struct {
	lifecycle Lifecycle
	logger    log.Logger
}

// NewAdminHandler creates an admin handler
func NewAdminHandler(lifecycle Lifecycle, logger log.Logger) *AdminHandler {
	return &AdminHandler{lifecycle: lifecycle, logger: logging.OrNop(logger)}
}

type statusChangeDTO struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

// TransitionConflictDTO is returned when the requested status is not reachable
type TransitionConflictDTO struct {
	ErrorResponse
	Allowed []models.OrderStatus `json:"allowed_statuses"`
}

// ChangeStatus handles POST /admin/orders/{id}/status
func (h *AdminHandler) ChangeStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	var body statusChangeDTO
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		respondError(w, r, h.logger, http.StatusBadRequest, CodeInvalidRequest, "invalid JSON body")
		return
	}
	to, err := models.ParseOrderStatus(body.Status)
	if err != nil {
		respondError(w, r, h.logger, http.StatusBadRequest, CodeInvalidRequest, err.Error())
		return
	}
	reason := body.Reason
	if reason == "" {
		reason = defaultAdminReason
	}

	state, err := h.lifecycle.Transition(r.Context(), orderID, models.TransitionRequest{
		To:     to,
		Reason: reason,
		Actor:  models.ActorAdmin,
	})
	if err != nil {
		if errors.Is(err, models.ErrInvalidTransition) {
			resp := TransitionConflictDTO{
				ErrorResponse: ErrorResponse{
					Error:     err.Error(),
					Code:      CodeInvalidTransition,
					RequestID: RequestIDFrom(r.Context()),
				},
			}
			if current, serr := h.lifecycle.State(r.Context(), orderID); serr == nil {
				resp.Allowed = current.Status.NextStatuses()
			}
			respondJSON(w, h.logger, http.StatusConflict, resp)
			return
		}
		h.lifecycleError(w, r, orderID, err)
		return
	}

	h.logger.Info("Order status changed by admin",
		"request_id", RequestIDFrom(r.Context()), "order_id", orderID, "status", state.Status)
	respondJSON(w, h.logger, http.StatusOK, state)
}

// History handles GET /admin/orders/{id}/history
func (h *AdminHandler) History(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	state, err := h.lifecycle.State(r.Context(), orderID)
	if err != nil {
		h.lifecycleError(w, r, orderID, err)
		return
	}
	respondJSON(w, h.logger, http.StatusOK, state)
}

func (h *AdminHandler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(w, r, h.logger, http.StatusBadRequest, CodeInvalidRequest, "order id must be a positive integer")
		return 0, false
	}
	return id, true
}

func (h *AdminHandler) lifecycleError(w http.ResponseWriter, r *http.Request, orderID int64, err error) {
	if errors.Is(err, models.ErrLifecycleNotFound) {
		respondError(w, r, h.logger, http.StatusNotFound, CodeNotFound, "order not found")
		return
	}
	h.logger.Error("Lifecycle call failed", "request_id", RequestIDFrom(r.Context()), "order_id", orderID, "error", err)
	respondError(w, r, h.logger, http.StatusInternalServerError, CodeInternal, msgInternal)
}
