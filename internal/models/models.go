// Package models defines the data structures used throughout the application.
// It includes the persistent record types for users, items, swaps, orders and
// point redemptions, together with the request and response payloads of the
// REST API and the common response envelope.
package models

import "time"

// User represents a registered user of the marketplace.
// Points is the user's spendable balance; it never goes negative.
type User struct {
	ID              int32  `json:"id"`
	Username        string `json:"username"`
	Email           string `json:"email,omitempty"`
	Password        string `json:"-"`
	Points          int    `json:"points"`
	Role            string `json:"role"`
	IsEmailVerified bool   `json:"isEmailVerified"`
}

// Roles assignable to a user.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// Item represents a clothing listing. Its status is owned by the lifecycle
// engine once the item becomes part of a swap or an order.
type Item struct {
	ID          int32      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Images      []string   `json:"images"`
	Category    string     `json:"category"`
	SubCategory string     `json:"subCategory"`
	Size        string     `json:"size"`
	Condition   string     `json:"condition"`
	PointsCost  int        `json:"pointsCost"`
	Status      ItemStatus `json:"status"`
	ListedBy    int32      `json:"listedBy"`
	Approved    bool       `json:"approved"`
	CreatedAt   time.Time  `json:"createdAt"`
}

// Swap is the negotiation record for an item-for-item exchange. Once
// accepted it converts into an Order and becomes historical.
type Swap struct {
	ID            int32      `json:"id"`
	ItemOffered   int32      `json:"itemOffered"`
	ItemRequested int32      `json:"itemRequested"`
	Requester     int32      `json:"requester"`
	Responder     int32      `json:"responder"`
	Status        SwapStatus `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

// Order types.
const (
	OrderTypeSwap       = "swap"
	OrderTypeRedemption = "pointsRedemption"
)

// Order is the authoritative, code-gated fulfillment record for either a
// swap or a points redemption. The verification codes are secrets disclosed
// per participant only and are never serialized.
type Order struct {
	ID                 int32       `json:"id"`
	OrderCode          string      `json:"orderCode"`
	OrderType          string      `json:"orderType"`
	RequesterCode      string      `json:"-"`
	ResponderCode      string      `json:"-"`
	ItemOffered        *int32      `json:"itemOffered,omitempty"`
	ItemRequested      *int32      `json:"itemRequested,omitempty"`
	Item               *int32      `json:"item,omitempty"`
	PointsUsed         *int        `json:"pointsUsed,omitempty"`
	Requester          int32       `json:"requester"`
	Responder          *int32      `json:"responder,omitempty"`
	Status             OrderStatus `json:"status"`
	CreatedAt          time.Time   `json:"createdAt"`
	CompletedAt        *time.Time  `json:"completedAt,omitempty"`
	CancelledAt        *time.Time  `json:"cancelledAt,omitempty"`
	CancellationReason string      `json:"cancellationReason,omitempty"`
	CompletedBy        *int32      `json:"completedBy,omitempty"`
}

// PointRedemption is an append-only audit record created alongside a
// redemption Order. It is not part of the state machine.
type PointRedemption struct {
	ID         int32     `json:"id"`
	UserID     int32     `json:"user"`
	ItemID     int32     `json:"item"`
	PointsUsed int       `json:"pointsUsed"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"createdAt"`
}

// Response is the common envelope returned by every endpoint.
type Response struct {
	Status  int         `json:"status"`
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data"`
}

// AuthRequest represents the authentication request payload.
type AuthRequest struct {
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password"`
}

// AuthResponse represents the authentication response payload.
type AuthResponse struct {
	Token string `json:"token"`
}

// ItemRequest is the payload for creating or editing a listing.
type ItemRequest struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Images      []string `json:"images"`
	Category    string   `json:"category"`
	SubCategory string   `json:"subCategory"`
	Size        string   `json:"size"`
	Condition   string   `json:"condition"`
	PointsCost  int      `json:"pointsCost"`
}

// SwapRequest is the payload for proposing an item-for-item exchange.
type SwapRequest struct {
	OfferedItemID   int32 `json:"offeredItemId"`
	RequestedItemID int32 `json:"requestedItemId"`
}

// RedeemRequest is the payload for redeeming an item with points.
type RedeemRequest struct {
	ItemID int32 `json:"itemId"`
}

// CompleteOrderRequest carries the verification codes supplied by the
// caller. Swap orders require both codes, redemption orders only the
// requester's.
type CompleteOrderRequest struct {
	RequesterCode string `json:"requesterCode"`
	ResponderCode string `json:"responderCode"`
}

// CancelOrderRequest carries an optional cancellation reason.
type CancelOrderRequest struct {
	Reason string `json:"reason"`
}

// VerificationCode is the per-participant view of an order's code. Only the
// calling participant's own code is ever returned.
type VerificationCode struct {
	OrderCode        string `json:"orderCode"`
	Code             string `json:"code"`
	NeedsPartnerCode bool   `json:"needsPartnerCode"`
}

// InfoResponse aggregates a user's profile: points balance, listings and
// swap/order history.
type InfoResponse struct {
	Username string  `json:"username"`
	Points   int     `json:"points"`
	Items    []Item  `json:"items"`
	Swaps    []Swap  `json:"swaps"`
	Orders   []Order `json:"orders"`
}
