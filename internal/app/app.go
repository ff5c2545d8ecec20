// Package app provides the core business logic for the ReWear marketplace.
// It handles authentication, listing management, swap negotiation, points
// redemption and the order lifecycle. The package validates incoming
// commands and delegates the transactional transitions to the storage layer.
package app

import (
	"context"
	"errors"

	"rewear/internal/models"
	"rewear/internal/pkg/auth"
	"rewear/internal/pkg/logger"
	"rewear/internal/storage"
)

// Predefined errors for missing or malformed request parameters.
var (
	// ErrMissingUsernameOrPassword indicates that either the username or password is not provided.
	ErrMissingUsernameOrPassword = errors.New("app: missing username or password")
	// ErrMissingItemIDs indicates that a swap request lacks one of its item IDs.
	ErrMissingItemIDs = errors.New("app: missing offered or requested item id")
	// ErrMissingItemID indicates that a redemption request lacks its item ID.
	ErrMissingItemID = errors.New("app: missing item id")
	// ErrInvalidListing indicates that a listing payload fails validation.
	ErrInvalidListing = errors.New("app: listing requires a title and 1 to 6 images")
)

// newUserPoints is the starting balance granted at registration.
const newUserPoints = 0

// App encapsulates the application logic and dependencies required to process requests.
// It interacts with the storage layer and uses a logger for error and activity logging.
type App struct {
	db  storage.Storage // Database storage layer for persistent data operations.
	log *logger.Logger  // Logger for logging application events and errors.
}

// NewApp creates and returns a new instance of App with the provided storage and logger dependencies.
func NewApp(db storage.Storage, log *logger.Logger) *App {
	return &App{db: db, log: log}
}

// ProcessAuth handles user authentication by verifying credentials and generating a token.
// If the user does not exist, it creates a new user with the default points balance.
func (app *App) ProcessAuth(ctx context.Context, req models.AuthRequest) (string, error) {
	if req.Username == "" || req.Password == "" {
		return "", ErrMissingUsernameOrPassword
	}

	user := &models.User{
		Username: req.Username,
		Email:    req.Email,
		Password: req.Password,
	}

	user, err := app.db.CheckUser(ctx, user)
	if err != nil {
		return "", err
	}

	if user.ID == 0 {
		user.Points = newUserPoints
		user.Role = models.RoleUser
		user, err = app.db.CreateUser(ctx, user)
		if err != nil {
			return "", err
		}
	}

	token, err := auth.GenerateToken(user.ID, user.Role)
	if err != nil {
		return "", err
	}

	return token, nil
}

// ProcessInfo retrieves a user's profile: points balance, listings and history.
func (app *App) ProcessInfo(ctx context.Context, userID int32) (*models.InfoResponse, error) {
	return app.db.GetInfo(ctx, userID)
}

// ProcessCreateItem validates and creates a new listing for the given user.
func (app *App) ProcessCreateItem(ctx context.Context, userID int32, req models.ItemRequest) (*models.Item, error) {
	if req.Title == "" || len(req.Images) == 0 || len(req.Images) > 6 || req.PointsCost < 0 {
		return nil, ErrInvalidListing
	}

	item := &models.Item{
		Title:       req.Title,
		Description: req.Description,
		Images:      req.Images,
		Category:    req.Category,
		SubCategory: req.SubCategory,
		Size:        req.Size,
		Condition:   req.Condition,
		PointsCost:  req.PointsCost,
		ListedBy:    userID,
	}
	return app.db.CreateItem(ctx, item)
}

// ProcessGetItem fetches a single listing.
func (app *App) ProcessGetItem(ctx context.Context, itemID int32) (*models.Item, error) {
	return app.db.GetItem(ctx, itemID)
}

// ProcessListItems returns the approved, available listings.
func (app *App) ProcessListItems(ctx context.Context) ([]models.Item, error) {
	return app.db.ListItems(ctx)
}

// ProcessUpdateItem edits a listing on behalf of its owner or an admin.
func (app *App) ProcessUpdateItem(ctx context.Context, callerID int32, admin bool, itemID int32, req models.ItemRequest) (*models.Item, error) {
	if req.Title == "" || len(req.Images) > 6 || req.PointsCost < 0 {
		return nil, ErrInvalidListing
	}
	return app.db.UpdateItem(ctx, callerID, admin, itemID, req)
}

// ProcessDeleteItem deletes a listing on behalf of its owner or an admin.
func (app *App) ProcessDeleteItem(ctx context.Context, callerID int32, admin bool, itemID int32) error {
	return app.db.DeleteItem(ctx, callerID, admin, itemID)
}

// ProcessApproveItem marks a listing as approved by moderation.
func (app *App) ProcessApproveItem(ctx context.Context, itemID int32) error {
	return app.db.ApproveItem(ctx, itemID)
}

// ProcessDeleteUser removes a user account; admin accounts are protected.
func (app *App) ProcessDeleteUser(ctx context.Context, userID int32) error {
	return app.db.DeleteUser(ctx, userID)
}

// ProcessRequestSwap proposes an item-for-item exchange. The exchange limit
// is checked optimistically here and enforced again inside the storage
// transaction, since the rate may change between the two reads.
func (app *App) ProcessRequestSwap(ctx context.Context, requesterID int32, req models.SwapRequest) (*models.Swap, error) {
	if req.OfferedItemID == 0 || req.RequestedItemID == 0 {
		return nil, ErrMissingItemIDs
	}

	item, err := app.db.GetItem(ctx, req.RequestedItemID)
	if err != nil {
		return nil, err
	}
	ok, err := app.db.CanExchange(ctx, requesterID, item.ListedBy)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, storage.ErrExchangeLimit
	}

	return app.db.CreateSwap(ctx, req.OfferedItemID, req.RequestedItemID, requesterID)
}

// ProcessAcceptSwap accepts a pending swap and returns the resulting order.
func (app *App) ProcessAcceptSwap(ctx context.Context, swapID, responderID int32) (*models.Order, error) {
	return app.db.AcceptSwap(ctx, swapID, responderID)
}

// ProcessRejectSwap declines a pending swap and releases both items.
func (app *App) ProcessRejectSwap(ctx context.Context, swapID, responderID int32) (*models.Swap, error) {
	return app.db.RejectSwap(ctx, swapID, responderID)
}

// ProcessCompleteSwap runs the legacy swap-only completion transition.
func (app *App) ProcessCompleteSwap(ctx context.Context, swapID, callerID int32) (*models.Swap, error) {
	return app.db.CompleteSwap(ctx, swapID, callerID)
}

// ProcessListSwaps returns the caller's swaps.
func (app *App) ProcessListSwaps(ctx context.Context, userID int32) ([]models.Swap, error) {
	return app.db.ListUserSwaps(ctx, userID)
}

// ProcessRedeemItem redeems a listing with points, creating an accepted order.
func (app *App) ProcessRedeemItem(ctx context.Context, requesterID int32, req models.RedeemRequest) (*models.Order, error) {
	if req.ItemID == 0 {
		return nil, ErrMissingItemID
	}
	return app.db.RedeemItem(ctx, req.ItemID, requesterID)
}

// ProcessCompleteOrder settles an order after the verification-code handshake.
func (app *App) ProcessCompleteOrder(ctx context.Context, orderID, callerID int32, req models.CompleteOrderRequest) (*models.Order, error) {
	return app.db.CompleteOrder(ctx, orderID, callerID, req.RequesterCode, req.ResponderCode)
}

// ProcessCancelOrder reverts an accepted order, refunding redemption points.
func (app *App) ProcessCancelOrder(ctx context.Context, orderID, callerID int32, req models.CancelOrderRequest) (*models.Order, error) {
	return app.db.CancelOrder(ctx, orderID, callerID, req.Reason)
}

// ProcessGetVerificationCode returns the caller's own code for an order.
func (app *App) ProcessGetVerificationCode(ctx context.Context, orderID, callerID int32) (*models.VerificationCode, error) {
	return app.db.GetVerificationCode(ctx, orderID, callerID)
}

// ProcessListOrders returns the caller's orders.
func (app *App) ProcessListOrders(ctx context.Context, userID int32) ([]models.Order, error) {
	return app.db.ListUserOrders(ctx, userID)
}

// ProcessListAllOrders returns every order, for admin moderation.
func (app *App) ProcessListAllOrders(ctx context.Context) ([]models.Order, error) {
	return app.db.ListAllOrders(ctx)
}
