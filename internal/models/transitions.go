package models

// Status enums for items, swaps and orders. Each entity carries an explicit
// transition table; a transition absent from the table is a state conflict.
// All lifecycle writes consult these tables instead of repeating ad-hoc
// status guards.

// ItemStatus is the availability state of a listing.
type ItemStatus string

// Item states.
const (
	ItemAvailable ItemStatus = "available"
	ItemPending   ItemStatus = "pending"
	ItemSwapped   ItemStatus = "swapped"
)

// SwapStatus is the negotiation state of a swap proposal.
type SwapStatus string

// Swap states.
const (
	SwapPending   SwapStatus = "pending"
	SwapAccepted  SwapStatus = "accepted"
	SwapRejected  SwapStatus = "rejected"
	SwapCompleted SwapStatus = "completed"
)

// OrderStatus is the fulfillment state of an order.
type OrderStatus string

// Order states.
const (
	OrderAccepted  OrderStatus = "accepted"
	OrderCompleted OrderStatus = "completed"
	OrderCancelled OrderStatus = "cancelled"
)

var itemTransitions = map[ItemStatus][]ItemStatus{
	ItemAvailable: {ItemPending},
	ItemPending:   {ItemAvailable, ItemSwapped},
}

var swapTransitions = map[SwapStatus][]SwapStatus{
	SwapPending:  {SwapAccepted, SwapRejected},
	SwapAccepted: {SwapCompleted},
}

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderAccepted: {OrderCompleted, OrderCancelled},
}

// CanTransition reports whether an item may move from s to the given state.
func (s ItemStatus) CanTransition(to ItemStatus) bool {
	for _, next := range itemTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransition reports whether a swap may move from s to the given state.
func (s SwapStatus) CanTransition(to SwapStatus) bool {
	for _, next := range swapTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CanTransition reports whether an order may move from s to the given state.
func (s OrderStatus) CanTransition(to OrderStatus) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether no further transition exists out of s.
func (s SwapStatus) Terminal() bool {
	return len(swapTransitions[s]) == 0
}

// Terminal reports whether no further transition exists out of s.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}
