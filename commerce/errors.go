package commerce

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a backend failure at the point it is raised
type Kind string

const (
	KindTransient Kind = "transient"
	KindFatal     Kind = "fatal"
	KindNotFound  Kind = "not_found"
)

// networkErrorStatus is reported for failures that produced no HTTP response
const networkErrorStatus = http.StatusInternalServerError

// Backend error codes that indicate a temporary condition on the commerce side
var transientCodes = map[string]struct{}{
	"woocommerce_rest_server_unavailable":   {},
	"woocommerce_rest_authentication_error": {},
	"woocommerce_rest_database_error":       {},
	"woocommerce_rest_lock_wait_timeout":    {},
}

// Error is a failed call to the commerce backend
type Error struct {
	Kind    Kind
	Status  int
	Code    string
	Message string
	Op      string
	Err     error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (status %d, code %s): %s", e.Op, e.Kind, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s (status %d): %s", e.Op, e.Kind, e.Status, msg)
}

func (e *Error) Unwrap() error { return e.Err }

// Transient reports whether retrying the call may succeed
func (e *Error) Transient() bool { return e.Kind == KindTransient }

// classify decides the kind of an HTTP failure from its status and backend error code
func classify(status int, code string) Kind {
	if status == http.StatusNotFound {
		return KindNotFound
	}
	if status >= 500 || status == http.StatusTooManyRequests {
		return KindTransient
	}
	if _, ok := transientCodes[code]; ok {
		return KindTransient
	}
	return KindFatal
}

func newHTTPError(op string, status int, code, message string) *Error {
	return &Error{
		Kind:    classify(status, code),
		Status:  status,
		Code:    code,
		Message: message,
		Op:      op,
	}
}

func newNetworkError(op string, err error) *Error {
	return &Error{
		Kind:   KindTransient,
		Status: networkErrorStatus,
		Op:     op,
		Err:    err,
	}
}

// IsTransient reports whether err is a commerce error worth retrying
func IsTransient(err error) bool {
	var cerr *Error
	return errors.As(err, &cerr) && cerr.Transient()
}

// StatusCode extracts the HTTP status carried by a commerce error, or 0
func StatusCode(err error) int {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Status
	}
	return 0
}
