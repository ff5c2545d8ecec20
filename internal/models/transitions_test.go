package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSwapTransitions(t *testing.T) {
	testCases := []struct {
		name    string
		from    SwapStatus
		to      SwapStatus
		allowed bool
	}{
		{name: "pending to accepted", from: SwapPending, to: SwapAccepted, allowed: true},
		{name: "pending to rejected", from: SwapPending, to: SwapRejected, allowed: true},
		{name: "pending to completed", from: SwapPending, to: SwapCompleted, allowed: false},
		{name: "accepted to completed", from: SwapAccepted, to: SwapCompleted, allowed: true},
		{name: "accepted to rejected", from: SwapAccepted, to: SwapRejected, allowed: false},
		{name: "rejected is terminal", from: SwapRejected, to: SwapAccepted, allowed: false},
		{name: "completed is terminal", from: SwapCompleted, to: SwapPending, allowed: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransition(tc.to))
		})
	}
}

func TestOrderTransitions(t *testing.T) {
	testCases := []struct {
		name    string
		from    OrderStatus
		to      OrderStatus
		allowed bool
	}{
		{name: "accepted to completed", from: OrderAccepted, to: OrderCompleted, allowed: true},
		{name: "accepted to cancelled", from: OrderAccepted, to: OrderCancelled, allowed: true},
		{name: "completed to cancelled", from: OrderCompleted, to: OrderCancelled, allowed: false},
		{name: "cancelled to completed", from: OrderCancelled, to: OrderCompleted, allowed: false},
		{name: "completed to accepted", from: OrderCompleted, to: OrderAccepted, allowed: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransition(tc.to))
		})
	}
}

func TestItemTransitions(t *testing.T) {
	testCases := []struct {
		name    string
		from    ItemStatus
		to      ItemStatus
		allowed bool
	}{
		{name: "available to pending", from: ItemAvailable, to: ItemPending, allowed: true},
		{name: "available to swapped", from: ItemAvailable, to: ItemSwapped, allowed: false},
		{name: "pending to available", from: ItemPending, to: ItemAvailable, allowed: true},
		{name: "pending to swapped", from: ItemPending, to: ItemSwapped, allowed: true},
		{name: "swapped is terminal", from: ItemSwapped, to: ItemAvailable, allowed: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.allowed, tc.from.CanTransition(tc.to))
		})
	}
}

func TestTerminalStates(t *testing.T) {
	assert.False(t, SwapPending.Terminal())
	assert.False(t, SwapAccepted.Terminal())
	assert.True(t, SwapRejected.Terminal())
	assert.True(t, SwapCompleted.Terminal())

	assert.False(t, OrderAccepted.Terminal())
	assert.True(t, OrderCompleted.Terminal())
	assert.True(t, OrderCancelled.Terminal())
}
