package storage

import (
	"context"
	"slices"
	"sync"
)

var _ Storage = (*MemoryStorage)(nil)

// MemoryStorage keeps restaurants and reviews in process memory. Data is lost
// on restart, which suits tests and local development.
type MemoryStorage struct {
	mu           sync.RWMutex
	restaurants  []Restaurant
	reviews      []Review
	nextRestID   int64
	nextReviewID int64
}

// NewMemoryStorage creates an empty in-memory store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		nextRestID:   1,
		nextReviewID: 1,
	}
}

func (s *MemoryStorage) ListRestaurantSummaries(ctx context.Context) ([]RestaurantSummary, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Summarize(s.restaurants, s.reviews), nil
}

func (s *MemoryStorage) GetRestaurant(ctx context.Context, id int64) (*Restaurant, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.findRestaurant(id)
	if !ok {
		return nil, ErrRestaurantNotFound
	}
	return &r, nil
}

func (s *MemoryStorage) ListReviews(ctx context.Context, restaurantID int64) ([]Review, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	var reviews []Review
	for _, rv := range s.reviews {
		if rv.RestaurantID == restaurantID {
			reviews = append(reviews, rv)
		}
	}
	slices.SortStableFunc(reviews, compareReviews)
	return reviews, nil
}

func (s *MemoryStorage) CreateRestaurant(ctx context.Context, r *Restaurant) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := normalizeRestaurant(r); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = s.nextRestID
	s.nextRestID++
	s.restaurants = append(s.restaurants, *r)
	return nil
}

func (s *MemoryStorage) CreateReview(ctx context.Context, rv *Review) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := normalizeReview(rv); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.findRestaurant(rv.RestaurantID); !ok {
		return ErrRestaurantNotFound
	}
	rv.ID = s.nextReviewID
	s.nextReviewID++
	s.reviews = append(s.reviews, *rv)
	return nil
}

func (s *MemoryStorage) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (s *MemoryStorage) Close() error {
	return nil
}

// findRestaurant must be called with mu held.
func (s *MemoryStorage) findRestaurant(id int64) (Restaurant, bool) {
	for _, r := range s.restaurants {
		if r.ID == id {
			return r, true
		}
	}
	return Restaurant{}, false
}

func compareReviews(a, b Review) int {
	if c := a.ReviewDate.Compare(b.ReviewDate); c != 0 {
		return c
	}
	switch {
	case a.ID < b.ID:
		return -1
	case a.ID > b.ID:
		return 1
	default:
		return 0
	}
}
