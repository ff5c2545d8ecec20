// Package service contains HTTP handler implementations for the ReWear API endpoints.
// It orchestrates request parsing, calls the underlying business logic in the app package,
// handles errors (including database-specific errors), and writes responses in the common
// {status, success, message, data} envelope.
package service

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"rewear/internal/app"
	"rewear/internal/models"
	"rewear/internal/pkg/auth"
	"rewear/internal/pkg/logger"
	"rewear/internal/storage"

	"github.com/go-chi/chi/v5"
	pgconn "github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	pgx_pgconn "github.com/jackc/pgx/v5/pgconn"
	"golang.org/x/crypto/bcrypt"
)

const requestTimeout = 10 * time.Second

// handlers aggregates dependencies needed by HTTP handlers,
// including the application business logic and logger.
type handlers struct {
	app *app.App
	log *logger.Logger
}

// newHandlers initializes a new handlers instance with the provided app and logger dependencies.
func newHandlers(app *app.App, l *logger.Logger) *handlers {
	return &handlers{app: app, log: l}
}

// writeResponse writes the common response envelope with the given status code.
func writeResponse(res http.ResponseWriter, statusCode int, message string, data interface{}) {
	res.Header().Set("Content-Type", "application/json")
	res.WriteHeader(statusCode)
	json.NewEncoder(res).Encode(models.Response{
		Status:  statusCode,
		Success: statusCode < http.StatusBadRequest,
		Message: message,
		Data:    data,
	})
}

// writeErrorResponse writes an error envelope with no data payload.
func writeErrorResponse(res http.ResponseWriter, errorInfo string, statusCode int) {
	writeResponse(res, statusCode, errorInfo, nil)
}

// respondError maps application and storage errors onto the HTTP error
// taxonomy: 404 missing entity, 403 caller not permitted, 400 violated
// precondition, 500 otherwise.
func (handlers *handlers) respondError(res http.ResponseWriter, err error) {
	var insufficientPoints *storage.InsufficientPointsError
	var pgError *pgx_pgconn.PgError

	switch {
	case errors.Is(err, storage.ErrItemNotFound):
		writeErrorResponse(res, "item not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrSwapNotFound):
		writeErrorResponse(res, "swap not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrOrderNotFound):
		writeErrorResponse(res, "order not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrUserNotFound):
		writeErrorResponse(res, "user not found", http.StatusNotFound)
	case errors.Is(err, storage.ErrNotOwner):
		writeErrorResponse(res, "you do not own this listing", http.StatusForbidden)
	case errors.Is(err, storage.ErrNotOwnItem):
		writeErrorResponse(res, "you can only offer your own item", http.StatusForbidden)
	case errors.Is(err, storage.ErrOwnItem):
		writeErrorResponse(res, "you cannot request your own item", http.StatusForbidden)
	case errors.Is(err, storage.ErrNotParticipant):
		writeErrorResponse(res, "you are not a participant of this exchange", http.StatusForbidden)
	case errors.Is(err, storage.ErrAdminUndeletable):
		writeErrorResponse(res, "admin users cannot be deleted", http.StatusForbidden)
	case errors.Is(err, storage.ErrSelfRedemption):
		writeErrorResponse(res, "you cannot redeem your own item", http.StatusBadRequest)
	case errors.Is(err, storage.ErrItemUnavailable):
		writeErrorResponse(res, "item is not available for exchange", http.StatusBadRequest)
	case errors.Is(err, storage.ErrItemInUse):
		writeErrorResponse(res, "item is part of an active exchange", http.StatusBadRequest)
	case errors.Is(err, storage.ErrSwapNotPending):
		writeErrorResponse(res, "swap is no longer pending", http.StatusBadRequest)
	case errors.Is(err, storage.ErrSwapNotAccepted):
		writeErrorResponse(res, "swap is not accepted", http.StatusBadRequest)
	case errors.Is(err, storage.ErrOrderNotAccepted):
		writeErrorResponse(res, "order is no longer accepted", http.StatusBadRequest)
	case errors.Is(err, storage.ErrVerificationCode):
		writeErrorResponse(res, "invalid verification code", http.StatusBadRequest)
	case errors.Is(err, storage.ErrExchangeLimit):
		writeErrorResponse(res, "exchange limit with this user reached, try again later", http.StatusBadRequest)
	case errors.Is(err, app.ErrMissingItemIDs):
		writeErrorResponse(res, "missing offered or requested item id", http.StatusBadRequest)
	case errors.Is(err, app.ErrMissingItemID):
		writeErrorResponse(res, "missing item id", http.StatusBadRequest)
	case errors.Is(err, app.ErrInvalidListing):
		writeErrorResponse(res, "listing requires a title and 1 to 6 images", http.StatusBadRequest)
	case errors.As(err, &insufficientPoints):
		writeErrorResponse(res, insufficientPoints.Error(), http.StatusBadRequest)
	case errors.As(err, &pgError) && pgError.Code == pgerrcode.CheckViolation:
		writeErrorResponse(res, "insufficient points to perform the exchange", http.StatusBadRequest)
	default:
		handlers.log.Sugar().Errorf("Unexpected error: %s", err)
		writeErrorResponse(res, "internal server error", http.StatusInternalServerError)
	}
}

// callerID extracts the authenticated user's ID from the request context.
func callerID(req *http.Request) (int32, bool) {
	userID, ok := req.Context().Value(auth.ContextUserID).(int32)
	return userID, ok && userID != 0
}

// callerIsAdmin reports whether the authenticated user carries the admin role.
func callerIsAdmin(req *http.Request) bool {
	role, ok := req.Context().Value(auth.ContextRole).(string)
	return ok && role == models.RoleAdmin
}

// idParam parses the {id} URL parameter as an int32.
func idParam(req *http.Request) (int32, error) {
	id, err := strconv.ParseInt(chi.URLParam(req, "id"), 10, 32)
	if err != nil {
		return 0, err
	}
	return int32(id), nil
}

// readBody reads and unmarshals a JSON request body into target.
func readBody(req *http.Request, target interface{}) error {
	requestBody, err := io.ReadAll(req.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(requestBody, target)
}

// authHandler handles user authentication requests. It reads the request
// body, invokes the register-or-login process, and returns a token.
func (handlers *handlers) authHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	var authRequest models.AuthRequest
	if err := readBody(req, &authRequest); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	var pgError *pgconn.PgError
	token, err := handlers.app.ProcessAuth(ctx, authRequest)
	if err != nil {
		if ok := errors.As(err, &pgError); ok && pgError.Code == pgerrcode.UniqueViolation {
			writeErrorResponse(res, "user with provided name already exists", http.StatusUnauthorized)
			return
		}

		if errors.Is(err, app.ErrMissingUsernameOrPassword) {
			writeErrorResponse(res, "missing username or password", http.StatusBadRequest)
			return
		}

		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			writeErrorResponse(res, "incorrect password", http.StatusUnauthorized)
			return
		}
		writeErrorResponse(res, err.Error(), http.StatusInternalServerError)
		return
	}

	writeResponse(res, http.StatusOK, "authenticated", models.AuthResponse{Token: token})
}

// infoHandler retrieves the caller's profile: points, listings and history.
func (handlers *handlers) infoHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(req)
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return
	}

	info, err := handlers.app.ProcessInfo(ctx, userID)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "profile", info)
}

// createItemHandler creates a new listing owned by the caller.
func (handlers *handlers) createItemHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(req)
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return
	}

	var itemRequest models.ItemRequest
	if err := readBody(req, &itemRequest); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	item, err := handlers.app.ProcessCreateItem(ctx, userID, itemRequest)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusCreated, "listing created", item)
}

// listItemsHandler returns the approved listings available for exchange.
func (handlers *handlers) listItemsHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	items, err := handlers.app.ProcessListItems(ctx)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "listings", items)
}

// getItemHandler returns a single listing.
func (handlers *handlers) getItemHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	itemID, err := idParam(req)
	if err != nil {
		writeErrorResponse(res, "invalid item id", http.StatusBadRequest)
		return
	}

	item, err := handlers.app.ProcessGetItem(ctx, itemID)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "listing", item)
}

// updateItemHandler edits a listing owned by the caller (or any, for admins).
func (handlers *handlers) updateItemHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(req)
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return
	}

	itemID, err := idParam(req)
	if err != nil {
		writeErrorResponse(res, "invalid item id", http.StatusBadRequest)
		return
	}

	var itemRequest models.ItemRequest
	if err := readBody(req, &itemRequest); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	item, err := handlers.app.ProcessUpdateItem(ctx, userID, callerIsAdmin(req), itemID, itemRequest)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "listing updated", item)
}

// deleteItemHandler deletes a listing owned by the caller (or any, for admins).
func (handlers *handlers) deleteItemHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(req)
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return
	}

	itemID, err := idParam(req)
	if err != nil {
		writeErrorResponse(res, "invalid item id", http.StatusBadRequest)
		return
	}

	if err := handlers.app.ProcessDeleteItem(ctx, userID, callerIsAdmin(req), itemID); err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "listing deleted", nil)
}

// requestSwapHandler proposes an item-for-item exchange.
func (handlers *handlers) requestSwapHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(req)
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return
	}

	var swapRequest models.SwapRequest
	if err := readBody(req, &swapRequest); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	swap, err := handlers.app.ProcessRequestSwap(ctx, userID, swapRequest)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusCreated, "swap requested", swap)
}

// acceptSwapHandler accepts a pending swap, converting it into an order.
func (handlers *handlers) acceptSwapHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(req)
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return
	}

	swapID, err := idParam(req)
	if err != nil {
		writeErrorResponse(res, "invalid swap id", http.StatusBadRequest)
		return
	}

	order, err := handlers.app.ProcessAcceptSwap(ctx, swapID, userID)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "swap accepted", order)
}

// rejectSwapHandler declines a pending swap and releases both items.
func (handlers *handlers) rejectSwapHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(req)
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return
	}

	swapID, err := idParam(req)
	if err != nil {
		writeErrorResponse(res, "invalid swap id", http.StatusBadRequest)
		return
	}

	swap, err := handlers.app.ProcessRejectSwap(ctx, swapID, userID)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "swap rejected", swap)
}

// completeSwapHandler runs the legacy swap-only completion transition.
func (handlers *handlers) completeSwapHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(req)
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return
	}

	swapID, err := idParam(req)
	if err != nil {
		writeErrorResponse(res, "invalid swap id", http.StatusBadRequest)
		return
	}

	swap, err := handlers.app.ProcessCompleteSwap(ctx, swapID, userID)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "swap completed", swap)
}

// listSwapsHandler returns the caller's swaps.
func (handlers *handlers) listSwapsHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(req)
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return
	}

	swaps, err := handlers.app.ProcessListSwaps(ctx, userID)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "swaps", swaps)
}

// redeemHandler redeems a listing with points, creating an accepted order.
func (handlers *handlers) redeemHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(req)
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return
	}

	var redeemRequest models.RedeemRequest
	if err := readBody(req, &redeemRequest); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	order, err := handlers.app.ProcessRedeemItem(ctx, userID, redeemRequest)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusCreated, "item redeemed", order)
}

// listOrdersHandler returns the caller's orders.
func (handlers *handlers) listOrdersHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(req)
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return
	}

	orders, err := handlers.app.ProcessListOrders(ctx, userID)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "orders", orders)
}

// orderCodesHandler returns the caller's own verification code for an order.
func (handlers *handlers) orderCodesHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(req)
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return
	}

	orderID, err := idParam(req)
	if err != nil {
		writeErrorResponse(res, "invalid order id", http.StatusBadRequest)
		return
	}

	code, err := handlers.app.ProcessGetVerificationCode(ctx, orderID, userID)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "verification code", code)
}

// completeOrderHandler settles an order after the verification-code handshake.
func (handlers *handlers) completeOrderHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(req)
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return
	}

	orderID, err := idParam(req)
	if err != nil {
		writeErrorResponse(res, "invalid order id", http.StatusBadRequest)
		return
	}

	var completeRequest models.CompleteOrderRequest
	if err := readBody(req, &completeRequest); err != nil {
		writeErrorResponse(res, err.Error(), http.StatusBadRequest)
		return
	}

	order, err := handlers.app.ProcessCompleteOrder(ctx, orderID, userID, completeRequest)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "order completed", order)
}

// cancelOrderHandler reverts an accepted order.
func (handlers *handlers) cancelOrderHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, ok := callerID(req)
	if !ok {
		writeErrorResponse(res, "unauthorized", http.StatusUnauthorized)
		return
	}

	orderID, err := idParam(req)
	if err != nil {
		writeErrorResponse(res, "invalid order id", http.StatusBadRequest)
		return
	}

	var cancelRequest models.CancelOrderRequest
	if req.ContentLength > 0 {
		if err := readBody(req, &cancelRequest); err != nil {
			writeErrorResponse(res, err.Error(), http.StatusBadRequest)
			return
		}
	}

	order, err := handlers.app.ProcessCancelOrder(ctx, orderID, userID, cancelRequest)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "order cancelled", order)
}

// approveItemHandler marks a listing as approved by moderation.
func (handlers *handlers) approveItemHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	itemID, err := idParam(req)
	if err != nil {
		writeErrorResponse(res, "invalid item id", http.StatusBadRequest)
		return
	}

	if err := handlers.app.ProcessApproveItem(ctx, itemID); err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "listing approved", nil)
}

// adminOrdersHandler returns every order, for moderation.
func (handlers *handlers) adminOrdersHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	orders, err := handlers.app.ProcessListAllOrders(ctx)
	if err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "orders", orders)
}

// deleteUserHandler removes a user account; admin accounts are protected.
func (handlers *handlers) deleteUserHandler(res http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), requestTimeout)
	defer cancel()

	userID, err := idParam(req)
	if err != nil {
		writeErrorResponse(res, "invalid user id", http.StatusBadRequest)
		return
	}

	if err := handlers.app.ProcessDeleteUser(ctx, userID); err != nil {
		handlers.respondError(res, err)
		return
	}

	writeResponse(res, http.StatusOK, "user deleted", nil)
}
