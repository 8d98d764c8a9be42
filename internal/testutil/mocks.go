package testutil

import (
	"context"

	"github.com/dgellow/restaurant-reviews/internal/idp"
	"github.com/dgellow/restaurant-reviews/internal/storage"
	"github.com/stretchr/testify/mock"
	"golang.org/x/oauth2"
)

// MockProvider is a testify mock of idp.Provider.
type MockProvider struct {
	mock.Mock
}

var _ idp.Provider = (*MockProvider)(nil)

func (m *MockProvider) Type() string {
	return "mock"
}

func (m *MockProvider) AuthURL(state string) string {
	return "https://idp.example.com/authorize?state=" + state
}

func (m *MockProvider) ExchangeCode(ctx context.Context, code string) (*oauth2.Token, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*oauth2.Token), args.Error(1)
}

func (m *MockProvider) UserProfile(ctx context.Context, accessToken string) (*idp.Profile, error) {
	args := m.Called(ctx, accessToken)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*idp.Profile), args.Error(1)
}

func (m *MockProvider) LogoutURL(postLogoutRedirectURI string) string {
	return "https://idp.example.com/logout?post_logout_redirect_uri=" + postLogoutRedirectURI
}

// MockStorage is a testify mock of storage.Storage.
type MockStorage struct {
	mock.Mock
}

var _ storage.Storage = (*MockStorage)(nil)

func (m *MockStorage) ListRestaurantSummaries(ctx context.Context) ([]storage.RestaurantSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.RestaurantSummary), args.Error(1)
}

func (m *MockStorage) GetRestaurant(ctx context.Context, id int64) (*storage.Restaurant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*storage.Restaurant), args.Error(1)
}

func (m *MockStorage) ListReviews(ctx context.Context, restaurantID int64) ([]storage.Review, error) {
	args := m.Called(ctx, restaurantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]storage.Review), args.Error(1)
}

func (m *MockStorage) CreateRestaurant(ctx context.Context, restaurant *storage.Restaurant) error {
	args := m.Called(ctx, restaurant)
	return args.Error(0)
}

func (m *MockStorage) CreateReview(ctx context.Context, review *storage.Review) error {
	args := m.Called(ctx, review)
	return args.Error(0)
}

func (m *MockStorage) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockStorage) Close() error {
	args := m.Called()
	return args.Error(0)
}
