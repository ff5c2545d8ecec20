package app

import (
	"context"
	"testing"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rewear/internal/config"
	"rewear/internal/models"
	"rewear/internal/pkg/logger"
	"rewear/internal/storage"
	"rewear/internal/storage/mocks"
)

func newTestApp(t *testing.T) (*mocks.MockStorage, *App) {
	l, err := logger.CreateLogger(config.LogLevel)
	require.NoError(t, err)

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mockDB := mocks.NewMockStorage(ctrl)
	return mockDB, NewApp(mockDB, l)
}

func TestProcessAuth(t *testing.T) {
	t.Run("missing credentials", func(t *testing.T) {
		_, appInstance := newTestApp(t)

		_, err := appInstance.ProcessAuth(context.Background(), models.AuthRequest{Username: "", Password: "pass"})
		assert.ErrorIs(t, err, ErrMissingUsernameOrPassword)

		_, err = appInstance.ProcessAuth(context.Background(), models.AuthRequest{Username: "user", Password: ""})
		assert.ErrorIs(t, err, ErrMissingUsernameOrPassword)
	})

	t.Run("existing user logs in without creation", func(t *testing.T) {
		mockDB, appInstance := newTestApp(t)

		mockDB.EXPECT().CheckUser(gomock.Any(), gomock.AssignableToTypeOf(&models.User{})).
			Return(&models.User{ID: 42, Username: "existing", Role: models.RoleUser}, nil)

		token, err := appInstance.ProcessAuth(context.Background(), models.AuthRequest{Username: "existing", Password: "pass"})
		require.NoError(t, err)
		assert.NotEmpty(t, token)
	})

	t.Run("new user is created with zero points", func(t *testing.T) {
		mockDB, appInstance := newTestApp(t)

		mockDB.EXPECT().CheckUser(gomock.Any(), gomock.AssignableToTypeOf(&models.User{})).
			DoAndReturn(func(ctx context.Context, user *models.User) (*models.User, error) {
				return &models.User{ID: 0, Username: user.Username, Password: user.Password}, nil
			})
		mockDB.EXPECT().CreateUser(gomock.Any(), gomock.AssignableToTypeOf(&models.User{})).
			DoAndReturn(func(ctx context.Context, user *models.User) (*models.User, error) {
				assert.Equal(t, 0, user.Points)
				assert.Equal(t, models.RoleUser, user.Role)
				return &models.User{ID: 7, Username: user.Username, Role: user.Role}, nil
			})

		token, err := appInstance.ProcessAuth(context.Background(), models.AuthRequest{Username: "newcomer", Password: "pass"})
		require.NoError(t, err)
		assert.NotEmpty(t, token)
	})
}

func TestProcessCreateItem(t *testing.T) {
	testCases := []struct {
		name    string
		request models.ItemRequest
		valid   bool
	}{
		{
			name:    "missing title",
			request: models.ItemRequest{Images: []string{"a.jpg"}},
			valid:   false,
		},
		{
			name:    "no images",
			request: models.ItemRequest{Title: "Denim jacket"},
			valid:   false,
		},
		{
			name: "too many images",
			request: models.ItemRequest{
				Title:  "Denim jacket",
				Images: []string{"1", "2", "3", "4", "5", "6", "7"},
			},
			valid: false,
		},
		{
			name:    "negative points cost",
			request: models.ItemRequest{Title: "Denim jacket", Images: []string{"a.jpg"}, PointsCost: -5},
			valid:   false,
		},
		{
			name:    "valid listing",
			request: models.ItemRequest{Title: "Denim jacket", Images: []string{"a.jpg"}, PointsCost: 30},
			valid:   true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			mockDB, appInstance := newTestApp(t)

			if tc.valid {
				mockDB.EXPECT().CreateItem(gomock.Any(), gomock.AssignableToTypeOf(&models.Item{})).
					DoAndReturn(func(ctx context.Context, item *models.Item) (*models.Item, error) {
						assert.Equal(t, int32(1), item.ListedBy)
						item.ID = 10
						return item, nil
					})
			}

			item, err := appInstance.ProcessCreateItem(context.Background(), 1, tc.request)
			if tc.valid {
				require.NoError(t, err)
				assert.Equal(t, int32(10), item.ID)
			} else {
				assert.ErrorIs(t, err, ErrInvalidListing)
			}
		})
	}
}

func TestProcessRequestSwap(t *testing.T) {
	t.Run("missing item ids never reach storage", func(t *testing.T) {
		_, appInstance := newTestApp(t)

		_, err := appInstance.ProcessRequestSwap(context.Background(), 1, models.SwapRequest{OfferedItemID: 0, RequestedItemID: 2})
		assert.ErrorIs(t, err, ErrMissingItemIDs)

		_, err = appInstance.ProcessRequestSwap(context.Background(), 1, models.SwapRequest{OfferedItemID: 1, RequestedItemID: 0})
		assert.ErrorIs(t, err, ErrMissingItemIDs)
	})

	t.Run("limiter blocks before any swap is written", func(t *testing.T) {
		mockDB, appInstance := newTestApp(t)

		mockDB.EXPECT().GetItem(gomock.Any(), int32(2)).
			Return(&models.Item{ID: 2, ListedBy: 4, Status: models.ItemAvailable}, nil)
		mockDB.EXPECT().CanExchange(gomock.Any(), int32(3), int32(4)).Return(false, nil)

		_, err := appInstance.ProcessRequestSwap(context.Background(), 3, models.SwapRequest{OfferedItemID: 1, RequestedItemID: 2})
		assert.ErrorIs(t, err, storage.ErrExchangeLimit)
	})

	t.Run("delegates to storage when under the limit", func(t *testing.T) {
		mockDB, appInstance := newTestApp(t)

		mockDB.EXPECT().GetItem(gomock.Any(), int32(2)).
			Return(&models.Item{ID: 2, ListedBy: 4, Status: models.ItemAvailable}, nil)
		mockDB.EXPECT().CanExchange(gomock.Any(), int32(3), int32(4)).Return(true, nil)
		mockDB.EXPECT().CreateSwap(gomock.Any(), int32(1), int32(2), int32(3)).
			Return(&models.Swap{ID: 5, Status: models.SwapPending}, nil)

		swap, err := appInstance.ProcessRequestSwap(context.Background(), 3, models.SwapRequest{OfferedItemID: 1, RequestedItemID: 2})
		require.NoError(t, err)
		assert.Equal(t, models.SwapPending, swap.Status)
	})
}

func TestProcessRedeemItem(t *testing.T) {
	t.Run("missing item id never reaches storage", func(t *testing.T) {
		_, appInstance := newTestApp(t)

		_, err := appInstance.ProcessRedeemItem(context.Background(), 1, models.RedeemRequest{ItemID: 0})
		assert.ErrorIs(t, err, ErrMissingItemID)
	})

	t.Run("delegates to storage", func(t *testing.T) {
		mockDB, appInstance := newTestApp(t)

		mockDB.EXPECT().RedeemItem(gomock.Any(), int32(4), int32(1)).
			Return(&models.Order{ID: 8, OrderType: models.OrderTypeRedemption, Status: models.OrderAccepted}, nil)

		order, err := appInstance.ProcessRedeemItem(context.Background(), 1, models.RedeemRequest{ItemID: 4})
		require.NoError(t, err)
		assert.Equal(t, models.OrderAccepted, order.Status)
	})
}

func TestProcessCompleteOrder(t *testing.T) {
	mockDB, appInstance := newTestApp(t)

	mockDB.EXPECT().CompleteOrder(gomock.Any(), int32(9), int32(1), "111111", "222222").
		Return(&models.Order{ID: 9, Status: models.OrderCompleted}, nil)

	order, err := appInstance.ProcessCompleteOrder(context.Background(), 9, 1, models.CompleteOrderRequest{
		RequesterCode: "111111",
		ResponderCode: "222222",
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderCompleted, order.Status)
}
