package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"rewear/internal/models"
	"rewear/internal/pkg/codes"
)

// Exchange limiter: at most exchangeLimitCount completed swap-type orders per
// unordered user pair inside the trailing exchangeLimitWindow.
const (
	exchangeLimitCount  = 3
	exchangeLimitWindow = 14 * 24 * time.Hour
)

// completionReward is the flat number of points credited on order
// completion. For swap orders both participants receive it; for redemption
// orders only the item's lister does. The pointsCost paid by a redeemer is
// not forwarded to the lister (see DESIGN.md).
const completionReward = 25

const (
	countCompletedSwapsQuery = `SELECT COUNT(*) FROM orders WHERE order_type = 'swap' AND status = 'completed' AND completed_at >= $3 AND ((requester = $1 AND responder = $2) OR (requester = $2 AND responder = $1));`

	getItemLockQuery   = `SELECT points_cost, status, listed_by FROM items WHERE id = $1 FOR UPDATE;`
	setItemStatusQuery = `UPDATE items SET status = $1, updated_at = NOW() WHERE id = $2;`
	getUserPointsQuery = `SELECT points FROM users WHERE id = $1 FOR UPDATE;`
	addUserPointsQuery = `UPDATE users SET points = points + $1, updated_at = NOW() WHERE id = $2;`

	insertSwapQuery      = `INSERT INTO swaps (item_offered, item_requested, requester, responder, status) VALUES ($1, $2, $3, $4, 'pending') RETURNING id, created_at;`
	swapColumns          = `id, item_offered, item_requested, requester, responder, status, created_at, completed_at`
	getSwapLockQuery     = `SELECT ` + swapColumns + ` FROM swaps WHERE id = $1 FOR UPDATE;`
	getSwapQuery         = `SELECT ` + swapColumns + ` FROM swaps WHERE id = $1;`
	listUserSwapsQuery   = `SELECT ` + swapColumns + ` FROM swaps WHERE requester = $1 OR responder = $1 ORDER BY created_at DESC;`
	casSwapStatusQuery   = `UPDATE swaps SET status = $2, updated_at = NOW() WHERE id = $1 AND status = $3;`
	casCompleteSwapQuery = `UPDATE swaps SET status = 'completed', completed_at = NOW(), updated_at = NOW() WHERE id = $1 AND status = 'accepted';`

	orderColumns               = `id, order_code, order_type, requester_code, responder_code, item_offered, item_requested, item, points_used, requester, responder, status, created_at, completed_at, cancelled_at, cancellation_reason, completed_by`
	insertSwapOrderQuery       = `INSERT INTO orders (order_code, order_type, requester_code, responder_code, item_offered, item_requested, requester, responder, status) VALUES ($1, 'swap', $2, $3, $4, $5, $6, $7, 'accepted') RETURNING id, created_at;`
	insertRedemptionOrderQuery = `INSERT INTO orders (order_code, order_type, requester_code, item, points_used, requester, status) VALUES ($1, 'pointsRedemption', $2, $3, $4, $5, 'accepted') RETURNING id, created_at;`
	orderCodeExistsQuery       = `SELECT EXISTS (SELECT 1 FROM orders WHERE order_code = $1);`
	getOrderLockQuery          = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE;`
	getOrderQuery              = `SELECT ` + orderColumns + ` FROM orders WHERE id = $1;`
	listUserOrdersQuery        = `SELECT ` + orderColumns + ` FROM orders WHERE requester = $1 OR responder = $1 ORDER BY created_at DESC;`
	listAllOrdersQuery         = `SELECT ` + orderColumns + ` FROM orders ORDER BY created_at DESC;`
	casCompleteOrderQuery      = `UPDATE orders SET status = 'completed', completed_at = NOW(), completed_by = $2 WHERE id = $1 AND status = 'accepted';`
	casCancelOrderQuery        = `UPDATE orders SET status = 'cancelled', cancelled_at = NOW(), cancellation_reason = $2 WHERE id = $1 AND status = 'accepted';`

	insertRedemptionAuditQuery = `INSERT INTO point_redemptions (user_id, item_id, points_used, status) VALUES ($1, $2, $3, 'accepted');`
)

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// countCompletedSwapsBetween counts completed swap-type orders between the
// unordered pair within the limiter window.
func (postgresql *PostgreSQL) countCompletedSwapsBetween(ctx context.Context, q querier, userA, userB int32) (int, error) {
	var count int
	since := time.Now().Add(-exchangeLimitWindow)
	err := q.QueryRowContext(ctx, countCompletedSwapsQuery, userA, userB, since).Scan(&count)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query countCompletedSwapsQuery: %s", err)
		return 0, err
	}
	return count, nil
}

// CanExchange reports whether the unordered pair of users is still under the
// exchange limit. Pure read; no side effects.
func (postgresql *PostgreSQL) CanExchange(ctx context.Context, userA, userB int32) (bool, error) {
	count, err := postgresql.countCompletedSwapsBetween(ctx, postgresql.db, userA, userB)
	if err != nil {
		return false, err
	}
	return count < exchangeLimitCount, nil
}

// lockItem reads an item row under FOR UPDATE inside a transaction.
func (postgresql *PostgreSQL) lockItem(ctx context.Context, tx *sql.Tx, itemID int32) (pointsCost int, status models.ItemStatus, listedBy int32, err error) {
	err = tx.QueryRowContext(ctx, getItemLockQuery, itemID).Scan(&pointsCost, &status, &listedBy)
	if errors.Is(err, sql.ErrNoRows) {
		err = ErrItemNotFound
		return
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getItemLockQuery: %s", err)
	}
	return
}

// setItemStatus flips an item's status after consulting the transition table.
func (postgresql *PostgreSQL) setItemStatus(ctx context.Context, tx *sql.Tx, itemID int32, from, to models.ItemStatus) error {
	if !from.CanTransition(to) {
		return ErrItemUnavailable
	}
	if _, err := tx.ExecContext(ctx, setItemStatusQuery, to, itemID); err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query setItemStatusQuery: %s", err)
		return err
	}
	return nil
}

// addUserPoints credits (or debits, when negative) a user's balance. The
// points >= 0 check constraint is the backstop against overdraft.
func (postgresql *PostgreSQL) addUserPoints(ctx context.Context, tx *sql.Tx, userID int32, delta int) error {
	if _, err := tx.ExecContext(ctx, addUserPointsQuery, delta, userID); err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query addUserPointsQuery: %s", err)
		return err
	}
	return nil
}

// uniqueOrderCode generates an order code and regenerates on collision until
// it is unique within the orders table.
func (postgresql *PostgreSQL) uniqueOrderCode(ctx context.Context, tx *sql.Tx, prefix string) (string, error) {
	for {
		code := codes.OrderCode(prefix, time.Now())
		var exists bool
		if err := tx.QueryRowContext(ctx, orderCodeExistsQuery, code).Scan(&exists); err != nil {
			postgresql.log.Sugar().Errorf("Failed to execute a query orderCodeExistsQuery: %s", err)
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
}

// scanSwap reads one swap row from the given scanner.
func scanSwap(row interface{ Scan(...any) error }) (models.Swap, error) {
	var swap models.Swap
	var completedAt sql.NullTime
	err := row.Scan(&swap.ID, &swap.ItemOffered, &swap.ItemRequested, &swap.Requester,
		&swap.Responder, &swap.Status, &swap.CreatedAt, &completedAt)
	if completedAt.Valid {
		swap.CompletedAt = &completedAt.Time
	}
	return swap, err
}

// scanOrder reads one order row from the given scanner, mapping nullable
// columns onto pointer fields.
func scanOrder(row interface{ Scan(...any) error }) (models.Order, error) {
	var order models.Order
	var responderCode, cancellationReason sql.NullString
	var itemOffered, itemRequested, item, responder, completedBy sql.NullInt32
	var pointsUsed sql.NullInt64
	var completedAt, cancelledAt sql.NullTime

	err := row.Scan(&order.ID, &order.OrderCode, &order.OrderType, &order.RequesterCode, &responderCode,
		&itemOffered, &itemRequested, &item, &pointsUsed, &order.Requester, &responder,
		&order.Status, &order.CreatedAt, &completedAt, &cancelledAt, &cancellationReason, &completedBy)
	if err != nil {
		return order, err
	}

	order.ResponderCode = responderCode.String
	order.CancellationReason = cancellationReason.String
	if itemOffered.Valid {
		order.ItemOffered = &itemOffered.Int32
	}
	if itemRequested.Valid {
		order.ItemRequested = &itemRequested.Int32
	}
	if item.Valid {
		order.Item = &item.Int32
	}
	if responder.Valid {
		order.Responder = &responder.Int32
	}
	if completedBy.Valid {
		order.CompletedBy = &completedBy.Int32
	}
	if pointsUsed.Valid {
		used := int(pointsUsed.Int64)
		order.PointsUsed = &used
	}
	if completedAt.Valid {
		order.CompletedAt = &completedAt.Time
	}
	if cancelledAt.Valid {
		order.CancelledAt = &cancelledAt.Time
	}
	return order, nil
}

// CreateSwap proposes an item-for-item exchange. Within one transaction it
// validates ownership and availability of both items, checks the exchange
// limiter, creates the pending swap and locks both items as pending.
func (postgresql *PostgreSQL) CreateSwap(ctx context.Context, offeredItemID, requestedItemID, requesterID int32) (*models.Swap, error) {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, offeredStatus, offeredOwner, err := postgresql.lockItem(ctx, tx, offeredItemID)
	if err != nil {
		return nil, err
	}
	if offeredOwner != requesterID {
		return nil, ErrNotOwnItem
	}

	_, requestedStatus, responderID, err := postgresql.lockItem(ctx, tx, requestedItemID)
	if err != nil {
		return nil, err
	}
	if responderID == requesterID {
		return nil, ErrOwnItem
	}
	if offeredStatus != models.ItemAvailable || requestedStatus != models.ItemAvailable {
		return nil, ErrItemUnavailable
	}

	count, err := postgresql.countCompletedSwapsBetween(ctx, tx, requesterID, responderID)
	if err != nil {
		return nil, err
	}
	if count >= exchangeLimitCount {
		return nil, ErrExchangeLimit
	}

	swap := &models.Swap{
		ItemOffered:   offeredItemID,
		ItemRequested: requestedItemID,
		Requester:     requesterID,
		Responder:     responderID,
		Status:        models.SwapPending,
	}
	err = tx.QueryRowContext(ctx, insertSwapQuery, offeredItemID, requestedItemID, requesterID, responderID).Scan(&swap.ID, &swap.CreatedAt)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query insertSwapQuery: %s", err)
		return nil, err
	}

	if err := postgresql.setItemStatus(ctx, tx, offeredItemID, offeredStatus, models.ItemPending); err != nil {
		return nil, err
	}
	if err := postgresql.setItemStatus(ctx, tx, requestedItemID, requestedStatus, models.ItemPending); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return swap, nil
}

// lockSwap reads a swap row under FOR UPDATE inside a transaction.
func (postgresql *PostgreSQL) lockSwap(ctx context.Context, tx *sql.Tx, swapID int32) (models.Swap, error) {
	swap, err := scanSwap(tx.QueryRowContext(ctx, getSwapLockQuery, swapID))
	if errors.Is(err, sql.ErrNoRows) {
		return swap, ErrSwapNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getSwapLockQuery: %s", err)
	}
	return swap, err
}

// casSwapStatus transitions a swap between states with a conditional update,
// so concurrent submissions cannot both succeed.
func (postgresql *PostgreSQL) casSwapStatus(ctx context.Context, tx *sql.Tx, swapID int32, from, to models.SwapStatus) error {
	result, err := tx.ExecContext(ctx, casSwapStatusQuery, swapID, to, from)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query casSwapStatusQuery: %s", err)
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrSwapNotPending
	}
	return nil
}

// AcceptSwap converts a pending swap into an accepted order. The exchange
// limiter is re-checked authoritatively inside the transaction, then the
// order is created with fresh verification codes for both parties.
func (postgresql *PostgreSQL) AcceptSwap(ctx context.Context, swapID, responderID int32) (*models.Order, error) {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	swap, err := postgresql.lockSwap(ctx, tx, swapID)
	if err != nil {
		return nil, err
	}
	if swap.Responder != responderID {
		return nil, ErrNotParticipant
	}
	if !swap.Status.CanTransition(models.SwapAccepted) {
		return nil, ErrSwapNotPending
	}

	count, err := postgresql.countCompletedSwapsBetween(ctx, tx, swap.Requester, swap.Responder)
	if err != nil {
		return nil, err
	}
	if count >= exchangeLimitCount {
		return nil, ErrExchangeLimit
	}

	if err := postgresql.casSwapStatus(ctx, tx, swapID, models.SwapPending, models.SwapAccepted); err != nil {
		return nil, err
	}

	orderCode, err := postgresql.uniqueOrderCode(ctx, tx, codes.PrefixSwap)
	if err != nil {
		return nil, err
	}

	responder := swap.Responder
	order := &models.Order{
		OrderCode:     orderCode,
		OrderType:     models.OrderTypeSwap,
		RequesterCode: codes.VerificationCode(),
		ResponderCode: codes.VerificationCode(),
		ItemOffered:   &swap.ItemOffered,
		ItemRequested: &swap.ItemRequested,
		Requester:     swap.Requester,
		Responder:     &responder,
		Status:        models.OrderAccepted,
	}
	err = tx.QueryRowContext(ctx, insertSwapOrderQuery,
		order.OrderCode, order.RequesterCode, order.ResponderCode,
		swap.ItemOffered, swap.ItemRequested, swap.Requester, swap.Responder).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query insertSwapOrderQuery: %s", err)
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return order, nil
}

// RejectSwap declines a pending swap and releases both items.
func (postgresql *PostgreSQL) RejectSwap(ctx context.Context, swapID, responderID int32) (*models.Swap, error) {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	swap, err := postgresql.lockSwap(ctx, tx, swapID)
	if err != nil {
		return nil, err
	}
	if swap.Responder != responderID {
		return nil, ErrNotParticipant
	}
	if !swap.Status.CanTransition(models.SwapRejected) {
		return nil, ErrSwapNotPending
	}

	if err := postgresql.casSwapStatus(ctx, tx, swapID, models.SwapPending, models.SwapRejected); err != nil {
		return nil, err
	}
	if err := postgresql.setItemStatus(ctx, tx, swap.ItemOffered, models.ItemPending, models.ItemAvailable); err != nil {
		return nil, err
	}
	if err := postgresql.setItemStatus(ctx, tx, swap.ItemRequested, models.ItemPending, models.ItemAvailable); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	swap.Status = models.SwapRejected
	return &swap, nil
}

// CompleteSwap is the legacy completion transition on the swap record only.
// It stamps completedAt but never touches items or points; settlement runs
// exclusively through the order lifecycle.
func (postgresql *PostgreSQL) CompleteSwap(ctx context.Context, swapID, callerID int32) (*models.Swap, error) {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	swap, err := postgresql.lockSwap(ctx, tx, swapID)
	if err != nil {
		return nil, err
	}
	if swap.Requester != callerID && swap.Responder != callerID {
		return nil, ErrNotParticipant
	}
	if !swap.Status.CanTransition(models.SwapCompleted) {
		return nil, ErrSwapNotAccepted
	}

	result, err := tx.ExecContext(ctx, casCompleteSwapQuery, swapID)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query casCompleteSwapQuery: %s", err)
		return nil, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrSwapNotAccepted
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return postgresql.getSwap(ctx, swapID)
}

// getSwap re-reads a swap outside any transaction.
func (postgresql *PostgreSQL) getSwap(ctx context.Context, swapID int32) (*models.Swap, error) {
	swap, err := scanSwap(postgresql.db.QueryRowContext(ctx, getSwapQuery, swapID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSwapNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getSwapQuery: %s", err)
		return nil, err
	}
	return &swap, nil
}

// ListUserSwaps returns all swaps the user participates in, newest first.
func (postgresql *PostgreSQL) ListUserSwaps(ctx context.Context, userID int32) ([]models.Swap, error) {
	rows, err := postgresql.db.QueryContext(ctx, listUserSwapsQuery, userID)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query listUserSwapsQuery: %s", err)
		return nil, err
	}
	defer rows.Close()

	swaps := make([]models.Swap, 0)
	for rows.Next() {
		swap, err := scanSwap(rows)
		if err != nil {
			postgresql.log.Sugar().Errorf("Failed to scan swap row: %s", err)
			return nil, err
		}
		swaps = append(swaps, swap)
	}
	return swaps, rows.Err()
}

// RedeemItem creates a points-redemption order. Within one transaction it
// validates availability and balance, writes the audit record, creates the
// accepted order with the requester's verification code, debits the points
// and locks the item.
func (postgresql *PostgreSQL) RedeemItem(ctx context.Context, itemID, requesterID int32) (*models.Order, error) {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	pointsCost, status, listedBy, err := postgresql.lockItem(ctx, tx, itemID)
	if err != nil {
		return nil, err
	}
	if listedBy == requesterID {
		return nil, ErrSelfRedemption
	}
	if status != models.ItemAvailable {
		return nil, ErrItemUnavailable
	}

	var balance int
	err = tx.QueryRowContext(ctx, getUserPointsQuery, requesterID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getUserPointsQuery: %s", err)
		return nil, err
	}
	if balance < pointsCost {
		return nil, &InsufficientPointsError{Required: pointsCost, Available: balance}
	}

	if _, err := tx.ExecContext(ctx, insertRedemptionAuditQuery, requesterID, itemID, pointsCost); err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query insertRedemptionAuditQuery: %s", err)
		return nil, err
	}

	orderCode, err := postgresql.uniqueOrderCode(ctx, tx, codes.PrefixRedemption)
	if err != nil {
		return nil, err
	}

	pointsUsed := pointsCost
	order := &models.Order{
		OrderCode:     orderCode,
		OrderType:     models.OrderTypeRedemption,
		RequesterCode: codes.VerificationCode(),
		Item:          &itemID,
		PointsUsed:    &pointsUsed,
		Requester:     requesterID,
		Status:        models.OrderAccepted,
	}
	err = tx.QueryRowContext(ctx, insertRedemptionOrderQuery,
		order.OrderCode, order.RequesterCode, itemID, pointsUsed, requesterID).Scan(&order.ID, &order.CreatedAt)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query insertRedemptionOrderQuery: %s", err)
		return nil, err
	}

	if err := postgresql.addUserPoints(ctx, tx, requesterID, -pointsCost); err != nil {
		return nil, err
	}
	if err := postgresql.setItemStatus(ctx, tx, itemID, status, models.ItemPending); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return order, nil
}

// lockOrder reads an order row under FOR UPDATE inside a transaction.
func (postgresql *PostgreSQL) lockOrder(ctx context.Context, tx *sql.Tx, orderID int32) (models.Order, error) {
	order, err := scanOrder(tx.QueryRowContext(ctx, getOrderLockQuery, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return order, ErrOrderNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getOrderLockQuery: %s", err)
	}
	return order, err
}

// isParticipant reports whether the caller is the order's requester or responder.
func isParticipant(order *models.Order, callerID int32) bool {
	if order.Requester == callerID {
		return true
	}
	return order.Responder != nil && *order.Responder == callerID
}

// CompleteOrder settles an accepted order after the verification-code
// handshake. Swap orders require both codes, redemption orders only the
// requester's. All settlement writes commit in one transaction and the
// status flip is a conditional update, so a concurrent duplicate call
// observes a state conflict instead of settling twice.
func (postgresql *PostgreSQL) CompleteOrder(ctx context.Context, orderID, callerID int32, requesterCode, responderCode string) (*models.Order, error) {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order, err := postgresql.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(&order, callerID) {
		return nil, ErrNotParticipant
	}
	if !order.Status.CanTransition(models.OrderCompleted) {
		return nil, ErrOrderNotAccepted
	}

	if requesterCode == "" || requesterCode != order.RequesterCode {
		return nil, ErrVerificationCode
	}
	if order.OrderType == models.OrderTypeSwap {
		if responderCode == "" || responderCode != order.ResponderCode {
			return nil, ErrVerificationCode
		}
	}

	result, err := tx.ExecContext(ctx, casCompleteOrderQuery, orderID, callerID)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query casCompleteOrderQuery: %s", err)
		return nil, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrOrderNotAccepted
	}

	switch order.OrderType {
	case models.OrderTypeSwap:
		if err := postgresql.addUserPoints(ctx, tx, order.Requester, completionReward); err != nil {
			return nil, err
		}
		if err := postgresql.addUserPoints(ctx, tx, *order.Responder, completionReward); err != nil {
			return nil, err
		}
		if err := postgresql.setItemStatus(ctx, tx, *order.ItemOffered, models.ItemPending, models.ItemSwapped); err != nil {
			return nil, err
		}
		if err := postgresql.setItemStatus(ctx, tx, *order.ItemRequested, models.ItemPending, models.ItemSwapped); err != nil {
			return nil, err
		}
	case models.OrderTypeRedemption:
		// The completion bonus goes to the item's lister, not the
		// requester who already paid pointsCost at redemption time.
		_, _, listedBy, err := postgresql.lockItem(ctx, tx, *order.Item)
		if err != nil {
			return nil, err
		}
		if err := postgresql.addUserPoints(ctx, tx, listedBy, completionReward); err != nil {
			return nil, err
		}
		if err := postgresql.setItemStatus(ctx, tx, *order.Item, models.ItemPending, models.ItemSwapped); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return postgresql.getOrder(ctx, orderID)
}

// CancelOrder reverts an accepted order: the inverse of creation, not of
// completion. Redemption orders refund pointsUsed to the requester; items of
// both order types return to available. No points move for swap orders.
func (postgresql *PostgreSQL) CancelOrder(ctx context.Context, orderID, callerID int32, reason string) (*models.Order, error) {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	order, err := postgresql.lockOrder(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(&order, callerID) {
		return nil, ErrNotParticipant
	}
	if !order.Status.CanTransition(models.OrderCancelled) {
		return nil, ErrOrderNotAccepted
	}

	result, err := tx.ExecContext(ctx, casCancelOrderQuery, orderID, reason)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query casCancelOrderQuery: %s", err)
		return nil, err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return nil, err
	}
	if rows == 0 {
		return nil, ErrOrderNotAccepted
	}

	switch order.OrderType {
	case models.OrderTypeSwap:
		if err := postgresql.setItemStatus(ctx, tx, *order.ItemOffered, models.ItemPending, models.ItemAvailable); err != nil {
			return nil, err
		}
		if err := postgresql.setItemStatus(ctx, tx, *order.ItemRequested, models.ItemPending, models.ItemAvailable); err != nil {
			return nil, err
		}
	case models.OrderTypeRedemption:
		if err := postgresql.addUserPoints(ctx, tx, order.Requester, *order.PointsUsed); err != nil {
			return nil, err
		}
		if err := postgresql.setItemStatus(ctx, tx, *order.Item, models.ItemPending, models.ItemAvailable); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return postgresql.getOrder(ctx, orderID)
}

// GetVerificationCode returns only the calling participant's own code for an
// accepted order. The counterpart's code is never disclosed; each party
// learns theirs independently and the codes meet at completion time.
func (postgresql *PostgreSQL) GetVerificationCode(ctx context.Context, orderID, callerID int32) (*models.VerificationCode, error) {
	order, err := postgresql.getOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !isParticipant(order, callerID) {
		return nil, ErrNotParticipant
	}
	if order.Status != models.OrderAccepted {
		return nil, ErrOrderNotAccepted
	}

	code := &models.VerificationCode{
		OrderCode:        order.OrderCode,
		NeedsPartnerCode: order.OrderType == models.OrderTypeSwap,
	}
	if order.Requester == callerID {
		code.Code = order.RequesterCode
	} else {
		code.Code = order.ResponderCode
	}
	return code, nil
}

// getOrder re-reads an order outside any transaction.
func (postgresql *PostgreSQL) getOrder(ctx context.Context, orderID int32) (*models.Order, error) {
	order, err := scanOrder(postgresql.db.QueryRowContext(ctx, getOrderQuery, orderID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getOrderQuery: %s", err)
		return nil, err
	}
	return &order, nil
}

// queryOrders runs an order listing query.
func (postgresql *PostgreSQL) queryOrders(ctx context.Context, query string, args ...any) ([]models.Order, error) {
	rows, err := postgresql.db.QueryContext(ctx, query, args...)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute an order listing query: %s", err)
		return nil, err
	}
	defer rows.Close()

	orders := make([]models.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			postgresql.log.Sugar().Errorf("Failed to scan order row: %s", err)
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, rows.Err()
}

// ListUserOrders returns all orders the user participates in, newest first.
func (postgresql *PostgreSQL) ListUserOrders(ctx context.Context, userID int32) ([]models.Order, error) {
	return postgresql.queryOrders(ctx, listUserOrdersQuery, userID)
}

// ListAllOrders returns every order, for admin moderation.
func (postgresql *PostgreSQL) ListAllOrders(ctx context.Context) ([]models.Order, error) {
	return postgresql.queryOrders(ctx, listAllOrdersQuery)
}
