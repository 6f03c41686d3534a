package models

import (
	"fmt"
	"time"
)

// OrderStatus is the lifecycle state of a committed order
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusFailed    OrderStatus = "failed"
	StatusCancelled OrderStatus = "cancelled"
	StatusRefunded  OrderStatus = "refunded"
	StatusFulfilled OrderStatus = "fulfilled"
	StatusCompleted OrderStatus = "completed"
)

var statusTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusPaid, StatusFailed, StatusCancelled},
	StatusPaid:      {StatusFulfilled, StatusRefunded, StatusCancelled},
	StatusFailed:    {StatusCancelled},
	StatusCancelled: {StatusRefunded},
	StatusFulfilled: {StatusCompleted, StatusRefunded},
	StatusRefunded:  {},
	StatusCompleted: {},
}

// ParseOrderStatus converts a raw string into a known status
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := statusTransitions[status]; !ok {
		return "", fmt.Errorf("unknown order status %q", s)
	}
	return status, nil
}

// IsValidStatusTransition reports whether from -> to is present in the transition table
func IsValidStatusTransition(from, to OrderStatus) bool {
	for _, next := range statusTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves the status
func (s OrderStatus) IsTerminal() bool {
	next, ok := statusTransitions[s]
	return ok && len(next) == 0
}

// NextStatuses lists the statuses reachable from s in one step
func (s OrderStatus) NextStatuses() []OrderStatus {
	next := statusTransitions[s]
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// Actor identifies who caused a status change
type Actor string

const (
	ActorSystem         Actor = "system"
	ActorCustomer       Actor = "customer"
	ActorAdmin          Actor = "admin"
	ActorPaymentGateway Actor = "payment_gateway"
)

// Valid reports whether the actor is one of the known actors
func (a Actor) Valid() bool {
	switch a {
	case ActorSystem, ActorCustomer, ActorAdmin, ActorPaymentGateway:
		return true
	default:
		return false
	}
}

// OrderStatusHistoryEntry is one append-only record of a status change
type OrderStatusHistoryEntry struct {
	Timestamp  time.Time    `json:"timestamp"`
	FromStatus *OrderStatus `json:"fromStatus"`
	ToStatus   OrderStatus  `json:"toStatus"`
	Reason     string       `json:"reason"`
	Actor      Actor        `json:"actor"`
}

// ReasonAwaitingBankTransfer is recorded on every order created by checkout
const ReasonAwaitingBankTransfer = "Order created - awaiting bank transfer payment"

// InitialHistoryEntry builds the first history entry of a new order
func InitialHistoryEntry(actor Actor, reason string, now time.Time) OrderStatusHistoryEntry {
	return OrderStatusHistoryEntry{
		Timestamp:  now.UTC(),
		FromStatus: nil,
		ToStatus:   StatusPending,
		Reason:     reason,
		Actor:      actor,
	}
}

// TransitionEntry builds a history entry for from -> to, rejecting moves outside the table
func TransitionEntry(from, to OrderStatus, actor Actor, reason string, now time.Time) (OrderStatusHistoryEntry, error) {
	if !IsValidStatusTransition(from, to) {
		return OrderStatusHistoryEntry{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	prev := from
	return OrderStatusHistoryEntry{
		Timestamp:  now.UTC(),
		FromStatus: &prev,
		ToStatus:   to,
		Reason:     reason,
		Actor:      actor,
	}, nil
}
