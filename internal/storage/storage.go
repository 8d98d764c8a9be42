package storage

import (
	"context"
	"errors"
	"math"
	"strings"
	"time"
)

// ErrRestaurantNotFound is returned when a restaurant id does not exist
var ErrRestaurantNotFound = errors.New("restaurant not found")

// Rating bounds for a review
const (
	MinRating = 1
	MaxRating = 5
)

// Restaurant is a place users can review
type Restaurant struct {
	ID            int64  `json:"id"`
	Name          string `json:"name"`
	StreetAddress string `json:"street_address"`
	Description   string `json:"description"`
}

// Review is one user's rating of a restaurant
type Review struct {
	ID           int64     `json:"id"`
	RestaurantID int64     `json:"restaurant"`
	UserName     string    `json:"user_name"`
	Rating       int       `json:"rating"`
	ReviewText   string    `json:"review_text"`
	ReviewDate   time.Time `json:"review_date"`
}

// RestaurantSummary is a restaurant with its aggregate rating, as shown on
// the index page.
type RestaurantSummary struct {
	Restaurant
	AvgRating    float64 `json:"avg_rating"`
	ReviewCount  int     `json:"review_count"`
	StarsPercent int     `json:"stars_percent"`
}

// Storage is the data store behind the restaurant pages. Implementations
// must be safe for concurrent use.
type Storage interface {
	// ListRestaurantSummaries returns every restaurant ordered by id,
	// including those without reviews.
	ListRestaurantSummaries(ctx context.Context) ([]RestaurantSummary, error)
	GetRestaurant(ctx context.Context, id int64) (*Restaurant, error)
	// ListReviews returns the reviews of one restaurant, oldest first.
	ListReviews(ctx context.Context, restaurantID int64) ([]Review, error)
	// CreateRestaurant inserts r and sets r.ID.
	CreateRestaurant(ctx context.Context, r *Restaurant) error
	// CreateReview inserts rv and sets rv.ID. It fails with
	// ErrRestaurantNotFound when the restaurant does not exist.
	CreateReview(ctx context.Context, rv *Review) error
	Ping(ctx context.Context) error
	Close() error
}

// NewSummary builds a summary from the raw aggregates.
func NewSummary(r Restaurant, avgRating float64, reviewCount int) RestaurantSummary {
	s := RestaurantSummary{Restaurant: r, ReviewCount: reviewCount}
	if reviewCount > 0 {
		s.AvgRating = avgRating
		s.StarsPercent = int(math.Round(avgRating / MaxRating * 100))
	}
	return s
}

// Summarize aggregates reviews per restaurant. restaurants must already be
// in the order the caller wants to return.
func Summarize(restaurants []Restaurant, reviews []Review) []RestaurantSummary {
	type agg struct {
		sum   int
		count int
	}
	totals := make(map[int64]*agg, len(restaurants))
	for _, rv := range reviews {
		a, ok := totals[rv.RestaurantID]
		if !ok {
			a = &agg{}
			totals[rv.RestaurantID] = a
		}
		a.sum += rv.Rating
		a.count++
	}

	summaries := make([]RestaurantSummary, 0, len(restaurants))
	for _, r := range restaurants {
		a, ok := totals[r.ID]
		if !ok {
			summaries = append(summaries, NewSummary(r, 0, 0))
			continue
		}
		summaries = append(summaries, NewSummary(r, float64(a.sum)/float64(a.count), a.count))
	}
	return summaries
}

// normalizeRestaurant trims user input before it is stored.
func normalizeRestaurant(r *Restaurant) error {
	if r == nil {
		return errors.New("restaurant is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	r.StreetAddress = strings.TrimSpace(r.StreetAddress)
	r.Description = strings.TrimSpace(r.Description)
	if r.Name == "" {
		return errors.New("restaurant name is required")
	}
	return nil
}

// normalizeReview trims user input and stamps the review date.
func normalizeReview(rv *Review) error {
	if rv == nil {
		return errors.New("review is required")
	}
	rv.UserName = strings.TrimSpace(rv.UserName)
	rv.ReviewText = strings.TrimSpace(rv.ReviewText)
	if rv.UserName == "" {
		return errors.New("user name is required")
	}
	if rv.Rating < MinRating || rv.Rating > MaxRating {
		return errors.New("rating must be between 1 and 5")
	}
	if rv.ReviewDate.IsZero() {
		rv.ReviewDate = time.Now()
	}
	// millisecond precision survives every backend
	rv.ReviewDate = rv.ReviewDate.UTC().Truncate(time.Millisecond)
	return nil
}
