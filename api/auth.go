package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.temporal.io/sdk/log"

	"github.com/aswathylr-builds/storefront-checkout/store"
)

// RoleAdmin is the only role allowed on the admin routes
const RoleAdmin = "admin"

// ErrUnauthenticated is returned when a request carries no usable credentials
var ErrUnauthenticated = errors.New("unauthenticated")

// Principal is who the role-based access layer says is calling
type Principal struct {
	Caller string
	Role   string
}

// Authorizer resolves the caller of a request. It is the seam to the external
// RBAC layer and only answers who the caller is and what role they hold.
type Authorizer interface {
	Authorize(r *http.Request) (Principal, error)
}

// Limiter counts requests in an expiring window
type Limiter interface {
	Allow(ctx context.Context, key string) (store.Decision, error)
}

// TokenAuthorizer maps static bearer tokens to principals
type TokenAuthorizer struct {
	tokens map[string]Principal
}

// NewTokenAuthorizer creates an authorizer over a token table
func NewTokenAuthorizer(tokens map[string]Principal) *TokenAuthorizer {
	return &TokenAuthorizer{tokens: tokens}
}

func (a *TokenAuthorizer) Authorize(r *http.Request) (Principal, error) {
	token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || token == "" {
		return Principal{}, ErrUnauthenticated
	}
	// Compare every entry so lookup time does not depend on the token.
	var found Principal
	matched := false
	for known, p := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(known), []byte(token)) == 1 {
			found = p
			matched = true
		}
	}
	if !matched {
		return Principal{}, ErrUnauthenticated
	}
	return found, nil
}

// AdminGate admits only admins and rate limits each caller. A limiter outage
// lets requests through and is logged.
func AdminGate(auth Authorizer, limiter Limiter, logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := auth.Authorize(r)
			if err != nil {
				respondError(w, r, logger, http.StatusUnauthorized, CodeUnauthorized, "authentication required")
				return
			}
			if p.Role != RoleAdmin {
				logger.Warn("Admin access denied", "request_id", RequestIDFrom(r.Context()), "caller", p.Caller, "role", p.Role)
				respondError(w, r, logger, http.StatusForbidden, CodeForbidden, "admin role required")
				return
			}

			if limiter != nil {
				d, err := limiter.Allow(r.Context(), p.Role+":"+p.Caller)
				switch {
				case err != nil:
					logger.Warn("Rate limiter unavailable", "request_id", RequestIDFrom(r.Context()), "error", err)
				case !d.Allowed:
					secs := int(math.Ceil(d.RetryAfter.Seconds()))
					if secs < 1 {
						secs = 1
					}
					w.Header().Set("Retry-After", strconv.Itoa(secs))
					respondError(w, r, logger, http.StatusTooManyRequests, CodeRateLimited, "too many requests")
					return
				default:
					w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}
