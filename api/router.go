// Package api is the inbound HTTP surface of the checkout service.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/storefront-checkout/logging"
)

const defaultMaxBodyBytes = 1 << 20

// Deps is everything the router serves
type Deps struct {
	Checkout Submitter
	// Lifecycle, Authorizer and Limiter back the admin routes; a nil Lifecycle disables them.
	Lifecycle  Lifecycle
	Authorizer Authorizer
	Limiter    Limiter
	// Health is mounted under /health when set.
	Health       http.Handler
	Logger       log.Logger
	MaxBodyBytes int64
}

// NewRouter builds the instrumented HTTP handler
func NewRouter(deps Deps) http.Handler {
	logger := logging.OrNop(deps.Logger)
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(RequestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestSize(maxBody))

	if deps.Health != nil {
		r.Mount("/health", deps.Health)
	}

	checkoutHandler := NewCheckoutHandler(deps.Checkout, logger)
	r.Post("/checkout", checkoutHandler.Submit)

	if deps.Lifecycle != nil && deps.Authorizer != nil {
		admin := NewAdminHandler(deps.Lifecycle, logger)
		r.Route("/admin", func(r chi.Router) {
			r.Use(AdminGate(deps.Authorizer, deps.Limiter, logger))
			r.Post("/orders/{id}/status", admin.ChangeStatus)
			r.Get("/orders/{id}/history", admin.History)
		})
	}

	return otelhttp.NewHandler(r, "storefront-checkout")
}
