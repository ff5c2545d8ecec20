// Package storage provides primitives for connecting to and interacting with data storage systems.
// It defines the Storage interface along with a PostgreSQL implementation that manages users,
// clothing listings, swap negotiation, and the order lifecycle with its points settlement.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"rewear/internal/models"
	"rewear/internal/pkg/logger"
	"rewear/internal/pkg/security"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Sentinel errors returned by lifecycle and CRUD operations. Handlers map
// these onto HTTP status codes.
var (
	ErrItemNotFound  = errors.New("storage: item not found")
	ErrSwapNotFound  = errors.New("storage: swap not found")
	ErrOrderNotFound = errors.New("storage: order not found")
	ErrUserNotFound  = errors.New("storage: user not found")

	ErrItemUnavailable  = errors.New("storage: item is not available")
	ErrOwnItem          = errors.New("storage: item is listed by the caller")
	ErrSelfRedemption   = errors.New("storage: cannot redeem your own item")
	ErrNotOwnItem       = errors.New("storage: offered item is not listed by the caller")
	ErrNotOwner         = errors.New("storage: caller does not own the listing")
	ErrNotParticipant   = errors.New("storage: caller is not a participant")
	ErrSwapNotPending   = errors.New("storage: swap is no longer pending")
	ErrSwapNotAccepted  = errors.New("storage: swap is not accepted")
	ErrOrderNotAccepted = errors.New("storage: order is no longer accepted")
	ErrVerificationCode = errors.New("storage: verification code mismatch")
	ErrExchangeLimit    = errors.New("storage: exchange limit with this user reached")
	ErrItemInUse        = errors.New("storage: item is part of an active exchange")
	ErrAdminUndeletable = errors.New("storage: admin users cannot be deleted")
)

// InsufficientPointsError reports a redemption attempt that exceeds the
// requester's balance. The message states required versus available points.
type InsufficientPointsError struct {
	Required  int
	Available int
}

func (e *InsufficientPointsError) Error() string {
	return fmt.Sprintf("insufficient points: required %d, available %d", e.Required, e.Available)
}

const (
	createUserQuery  = `INSERT INTO users (username, email, password_hash, points, role) VALUES ($1, $2, $3, $4, $5) RETURNING id;`
	checkUserQuery   = `SELECT id, password_hash, points, role FROM users WHERE username = $1;`
	getUserRoleQuery = `SELECT role FROM users WHERE id = $1;`
	deleteUserQuery  = `DELETE FROM users WHERE id = $1;`
	getUserQuery     = `SELECT username, points FROM users WHERE id = $1;`

	createItemQuery         = `INSERT INTO items (title, description, category, sub_category, size, condition, points_cost, status, listed_by, approved) VALUES ($1, $2, $3, $4, $5, $6, $7, 'available', $8, false) RETURNING id, created_at;`
	insertItemImageQuery    = `INSERT INTO item_images (item_id, url, position) VALUES ($1, $2, $3);`
	deleteItemImagesQuery   = `DELETE FROM item_images WHERE item_id = $1;`
	getItemImagesQuery      = `SELECT url FROM item_images WHERE item_id = $1 ORDER BY position;`
	itemColumns             = `id, title, description, category, sub_category, size, condition, points_cost, status, listed_by, approved, created_at`
	getItemQuery            = `SELECT ` + itemColumns + ` FROM items WHERE id = $1;`
	listItemsQuery          = `SELECT ` + itemColumns + ` FROM items WHERE status = 'available' AND approved = true ORDER BY created_at DESC;`
	listUserItemsQuery      = `SELECT ` + itemColumns + ` FROM items WHERE listed_by = $1 ORDER BY created_at DESC;`
	updateItemQuery         = `UPDATE items SET title = $1, description = $2, category = $3, sub_category = $4, size = $5, condition = $6, points_cost = $7, updated_at = NOW() WHERE id = $8;`
	deleteItemQuery         = `DELETE FROM items WHERE id = $1;`
	approveItemQuery        = `UPDATE items SET approved = true, updated_at = NOW() WHERE id = $1;`
	getItemOwnerStatusQuery = `SELECT listed_by, status FROM items WHERE id = $1;`
)

// Storage defines the methods required for data storage operations.
type Storage interface {
	// Close closes the database connection.
	Close()

	// Authentication and account methods.
	CheckUser(ctx context.Context, user *models.User) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) (*models.User, error)
	DeleteUser(ctx context.Context, userID int32) error
	GetInfo(ctx context.Context, userID int32) (*models.InfoResponse, error)

	// Listing CRUD.
	CreateItem(ctx context.Context, item *models.Item) (*models.Item, error)
	GetItem(ctx context.Context, itemID int32) (*models.Item, error)
	ListItems(ctx context.Context) ([]models.Item, error)
	UpdateItem(ctx context.Context, callerID int32, admin bool, itemID int32, req models.ItemRequest) (*models.Item, error)
	DeleteItem(ctx context.Context, callerID int32, admin bool, itemID int32) error
	ApproveItem(ctx context.Context, itemID int32) error

	// Exchange limiter: pure read over completed swap-type orders.
	CanExchange(ctx context.Context, userA, userB int32) (bool, error)

	// Swap negotiation transitions.
	CreateSwap(ctx context.Context, offeredItemID, requestedItemID, requesterID int32) (*models.Swap, error)
	AcceptSwap(ctx context.Context, swapID, responderID int32) (*models.Order, error)
	RejectSwap(ctx context.Context, swapID, responderID int32) (*models.Swap, error)
	CompleteSwap(ctx context.Context, swapID, callerID int32) (*models.Swap, error)
	ListUserSwaps(ctx context.Context, userID int32) ([]models.Swap, error)

	// Order lifecycle transitions and settlement.
	RedeemItem(ctx context.Context, itemID, requesterID int32) (*models.Order, error)
	CompleteOrder(ctx context.Context, orderID, callerID int32, requesterCode, responderCode string) (*models.Order, error)
	CancelOrder(ctx context.Context, orderID, callerID int32, reason string) (*models.Order, error)
	GetVerificationCode(ctx context.Context, orderID, callerID int32) (*models.VerificationCode, error)
	ListUserOrders(ctx context.Context, userID int32) ([]models.Order, error)
	ListAllOrders(ctx context.Context) ([]models.Order, error)
}

// PostgreSQL implements the Storage interface using a PostgreSQL database.
type PostgreSQL struct {
	db  *sql.DB        // Connection to the database.
	log *logger.Logger // Logger for recording events and errors.
}

// NewPostgreSQL creates a new PostgreSQL instance with the provided connection string and logger.
// It opens the connection and pings the database to ensure connectivity.
func NewPostgreSQL(configDBString string, l *logger.Logger) (*PostgreSQL, error) {
	db, err := sql.Open("pgx", configDBString)
	if err != nil {
		l.Sugar().Errorf("Failed to open a database: %s", err)
		return &PostgreSQL{db: db, log: l}, err
	}

	const defaultTimeout = 10 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		l.Sugar().Errorf("Database ping failed: %s", err)
		return &PostgreSQL{db: db, log: l}, err
	}

	return &PostgreSQL{db: db, log: l}, nil
}

// Close closes the database connection if it is open.
func (postgresql *PostgreSQL) Close() {
	if postgresql.db != nil {
		postgresql.db.Close()
	}
}

// CheckUser verifies the user's credentials by retrieving the user's ID and encrypted password,
// then checking the provided password against the stored hash. A zero ID on return means the
// username is unknown and the caller may register it.
func (postgresql *PostgreSQL) CheckUser(ctx context.Context, user *models.User) (*models.User, error) {
	var encryptedPassword string

	err := postgresql.db.QueryRowContext(ctx, checkUserQuery, user.Username).Scan(&user.ID, &encryptedPassword, &user.Points, &user.Role)
	if errors.Is(err, sql.ErrNoRows) {
		return user, nil
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query checkUserQuery: %s", err)
		return user, err
	}

	err = security.CheckPassword(encryptedPassword, user.Password)
	if err != nil {
		postgresql.log.Sugar().Errorf(err.Error())
		return user, err
	}

	return user, nil
}

// CreateUser registers a new user by hashing the password and inserting the user into the database.
func (postgresql *PostgreSQL) CreateUser(ctx context.Context, user *models.User) (*models.User, error) {
	encryptedPassword := security.HashPassword(user.Password)
	if user.Role == "" {
		user.Role = models.RoleUser
	}

	err := postgresql.db.QueryRowContext(ctx, createUserQuery, user.Username, user.Email, encryptedPassword, user.Points, user.Role).Scan(&user.ID)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query createUserQuery: %s", err)
		return user, err
	}
	return user, err
}

// DeleteUser removes a user account. Admin accounts are not deletable.
func (postgresql *PostgreSQL) DeleteUser(ctx context.Context, userID int32) error {
	var role string
	err := postgresql.db.QueryRowContext(ctx, getUserRoleQuery, userID).Scan(&role)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getUserRoleQuery: %s", err)
		return err
	}
	if role == models.RoleAdmin {
		return ErrAdminUndeletable
	}

	if _, err := postgresql.db.ExecContext(ctx, deleteUserQuery, userID); err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query deleteUserQuery: %s", err)
		return err
	}
	return nil
}

// CreateItem inserts a new listing with status available and its images.
// Newly created listings await admin approval before appearing publicly.
func (postgresql *PostgreSQL) CreateItem(ctx context.Context, item *models.Item) (*models.Item, error) {
	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return item, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, createItemQuery,
		item.Title, item.Description, item.Category, item.SubCategory,
		item.Size, item.Condition, item.PointsCost, item.ListedBy).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query createItemQuery: %s", err)
		return item, err
	}
	item.Status = models.ItemAvailable

	for position, url := range item.Images {
		if _, err := tx.ExecContext(ctx, insertItemImageQuery, item.ID, url, position); err != nil {
			postgresql.log.Sugar().Errorf("Failed to execute a query insertItemImageQuery: %s", err)
			return item, err
		}
	}

	if err = tx.Commit(); err != nil {
		return item, err
	}

	return item, nil
}

// scanItem reads one item row from the given scanner.
func scanItem(row interface{ Scan(...any) error }) (models.Item, error) {
	var item models.Item
	err := row.Scan(&item.ID, &item.Title, &item.Description, &item.Category, &item.SubCategory,
		&item.Size, &item.Condition, &item.PointsCost, &item.Status, &item.ListedBy, &item.Approved, &item.CreatedAt)
	return item, err
}

// loadItemImages fetches the image URLs of a listing in display order.
func (postgresql *PostgreSQL) loadItemImages(ctx context.Context, itemID int32) ([]string, error) {
	rows, err := postgresql.db.QueryContext(ctx, getItemImagesQuery, itemID)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getItemImagesQuery: %s", err)
		return nil, err
	}
	defer rows.Close()

	var images []string
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, err
		}
		images = append(images, url)
	}
	return images, rows.Err()
}

// GetItem retrieves a single listing with its images.
func (postgresql *PostgreSQL) GetItem(ctx context.Context, itemID int32) (*models.Item, error) {
	item, err := scanItem(postgresql.db.QueryRowContext(ctx, getItemQuery, itemID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getItemQuery: %s", err)
		return nil, err
	}

	item.Images, err = postgresql.loadItemImages(ctx, itemID)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// queryItems runs an item listing query and loads images for each row.
func (postgresql *PostgreSQL) queryItems(ctx context.Context, query string, args ...any) ([]models.Item, error) {
	rows, err := postgresql.db.QueryContext(ctx, query, args...)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute an item listing query: %s", err)
		return nil, err
	}
	defer rows.Close()

	items := make([]models.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			postgresql.log.Sugar().Errorf("Failed to scan item row: %s", err)
			return nil, err
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return items, err
	}

	for i := range items {
		if items[i].Images, err = postgresql.loadItemImages(ctx, items[i].ID); err != nil {
			return items, err
		}
	}
	return items, nil
}

// ListItems returns all approved listings currently available for exchange.
func (postgresql *PostgreSQL) ListItems(ctx context.Context) ([]models.Item, error) {
	return postgresql.queryItems(ctx, listItemsQuery)
}

// UpdateItem edits a listing's descriptive fields. Only the owner or an admin
// may edit; images are replaced when the request carries any.
func (postgresql *PostgreSQL) UpdateItem(ctx context.Context, callerID int32, admin bool, itemID int32, req models.ItemRequest) (*models.Item, error) {
	var ownerID int32
	var status models.ItemStatus
	err := postgresql.db.QueryRowContext(ctx, getItemOwnerStatusQuery, itemID).Scan(&ownerID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrItemNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getItemOwnerStatusQuery: %s", err)
		return nil, err
	}
	if ownerID != callerID && !admin {
		return nil, ErrNotOwner
	}

	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, updateItemQuery,
		req.Title, req.Description, req.Category, req.SubCategory,
		req.Size, req.Condition, req.PointsCost, itemID)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query updateItemQuery: %s", err)
		return nil, err
	}

	if len(req.Images) > 0 {
		if _, err := tx.ExecContext(ctx, deleteItemImagesQuery, itemID); err != nil {
			postgresql.log.Sugar().Errorf("Failed to execute a query deleteItemImagesQuery: %s", err)
			return nil, err
		}
		for position, url := range req.Images {
			if _, err := tx.ExecContext(ctx, insertItemImageQuery, itemID, url, position); err != nil {
				postgresql.log.Sugar().Errorf("Failed to execute a query insertItemImageQuery: %s", err)
				return nil, err
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}

	return postgresql.GetItem(ctx, itemID)
}

// DeleteItem removes a listing. Only the owner or an admin may delete, and
// only while the item is not locked by an active swap or order.
func (postgresql *PostgreSQL) DeleteItem(ctx context.Context, callerID int32, admin bool, itemID int32) error {
	var ownerID int32
	var status models.ItemStatus
	err := postgresql.db.QueryRowContext(ctx, getItemOwnerStatusQuery, itemID).Scan(&ownerID, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrItemNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getItemOwnerStatusQuery: %s", err)
		return err
	}
	if ownerID != callerID && !admin {
		return ErrNotOwner
	}
	if status != models.ItemAvailable {
		return ErrItemInUse
	}

	tx, err := postgresql.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, deleteItemImagesQuery, itemID); err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query deleteItemImagesQuery: %s", err)
		return err
	}
	if _, err := tx.ExecContext(ctx, deleteItemQuery, itemID); err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query deleteItemQuery: %s", err)
		return err
	}

	return tx.Commit()
}

// ApproveItem marks a listing as approved by moderation.
func (postgresql *PostgreSQL) ApproveItem(ctx context.Context, itemID int32) error {
	result, err := postgresql.db.ExecContext(ctx, approveItemQuery, itemID)
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query approveItemQuery: %s", err)
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute RowsAffected in approveItemQuery: %s", err)
		return err
	}
	if rows == 0 {
		return ErrItemNotFound
	}
	return nil
}

// GetInfo aggregates complete information about a user: points balance,
// listed items, and swap/order history.
func (postgresql *PostgreSQL) GetInfo(ctx context.Context, userID int32) (*models.InfoResponse, error) {
	infoResponse := &models.InfoResponse{}

	err := postgresql.db.QueryRowContext(ctx, getUserQuery, userID).Scan(&infoResponse.Username, &infoResponse.Points)
	if errors.Is(err, sql.ErrNoRows) {
		return infoResponse, ErrUserNotFound
	}
	if err != nil {
		postgresql.log.Sugar().Errorf("Failed to execute a query getUserQuery: %s", err)
		return infoResponse, err
	}

	if infoResponse.Items, err = postgresql.queryItems(ctx, listUserItemsQuery, userID); err != nil {
		return infoResponse, err
	}
	if infoResponse.Swaps, err = postgresql.ListUserSwaps(ctx, userID); err != nil {
		return infoResponse, err
	}
	if infoResponse.Orders, err = postgresql.ListUserOrders(ctx, userID); err != nil {
		return infoResponse, err
	}

	return infoResponse, nil
}
