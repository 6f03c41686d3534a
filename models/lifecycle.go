package models

import (
	"errors"
	"strconv"
	"time"
)

var (
	// ErrInvalidTransition is returned when a status change is not in the transition table
	ErrInvalidTransition = errors.New("invalid order status transition")
	// ErrLifecycleNotFound is returned when no lifecycle is tracked for an order
	ErrLifecycleNotFound = errors.New("order lifecycle not found")
)

// Workflow handler names for the order lifecycle
const (
	SignalPaymentReceived = "payment-received"
	UpdateTransition      = "transition"
	QueryHistory          = "history"
)

// LifecycleWorkflowID derives the workflow id tracking a committed order
func LifecycleWorkflowID(orderID int64) string {
	return "order-lifecycle-" + strconv.FormatInt(orderID, 10)
}

// LifecycleInput starts the lifecycle of a freshly committed order
type LifecycleInput struct {
	OrderID       int64                     `json:"order_id"`
	RequestID     string                    `json:"request_id"`
	CustomerEmail string                    `json:"customer_email"`
	Total         string                    `json:"total"`
	Currency      string                    `json:"currency"`
	History       []OrderStatusHistoryEntry `json:"history"`
	// PaymentWindow bounds how long the order may stay pending; zero uses the workflow default.
	PaymentWindow time.Duration `json:"payment_window"`
	// Retention is how long a failed or cancelled order stays open for admin action; zero uses the workflow default.
	Retention time.Duration `json:"retention"`
}

// TransitionRequest asks the lifecycle to move an order to a new status
type TransitionRequest struct {
	To     OrderStatus `json:"to"`
	Reason string      `json:"reason"`
	Actor  Actor       `json:"actor"`
}

// PaymentReceived is sent by the payment reconciliation side when a bank transfer lands
type PaymentReceived struct {
	Reference string    `json:"reference"`
	Amount    string    `json:"amount"`
	At        time.Time `json:"at"`
}

// LifecycleState is what the lifecycle workflow exposes to queries
type LifecycleState struct {
	OrderID     int64                     `json:"order_id"`
	Status      OrderStatus               `json:"status"`
	History     []OrderStatusHistoryEntry `json:"history"`
	LastUpdated time.Time                 `json:"last_updated"`
}

// StatusSync is the activity payload pushing a status change to the backend
type StatusSync struct {
	OrderID int64       `json:"order_id"`
	Status  OrderStatus `json:"status"`
	// Sequence counts the transitions applied so far. Backend writes carry it so a stale write is detectable.
	Sequence int                       `json:"sequence"`
	History  []OrderStatusHistoryEntry `json:"history"`
}

// CustomerNotice is the activity payload for a customer-facing order note
type CustomerNotice struct {
	OrderID int64       `json:"order_id"`
	Email   string      `json:"email"`
	Status  OrderStatus `json:"status"`
	Message string      `json:"message"`
}
