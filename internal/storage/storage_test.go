package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSummary(t *testing.T) {
	r := Restaurant{ID: 1, Name: "Mama's"}

	s := NewSummary(r, 0, 0)
	assert.Equal(t, 0, s.ReviewCount)
	assert.Equal(t, 0, s.StarsPercent)
	assert.Zero(t, s.AvgRating)

	s = NewSummary(r, 4.5, 2)
	assert.Equal(t, 90, s.StarsPercent)
	assert.Equal(t, 4.5, s.AvgRating)

	s = NewSummary(r, 11.0/3.0, 3)
	assert.Equal(t, 73, s.StarsPercent)
}

func TestSummarizeKeepsRestaurantsWithoutReviews(t *testing.T) {
	restaurants := []Restaurant{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}, {ID: 3, Name: "C"}}
	reviews := []Review{
		{RestaurantID: 1, Rating: 5},
		{RestaurantID: 1, Rating: 4},
		{RestaurantID: 3, Rating: 1},
	}

	summaries := Summarize(restaurants, reviews)
	require.Len(t, summaries, 3)
	assert.Equal(t, int64(1), summaries[0].ID)
	assert.Equal(t, 2, summaries[0].ReviewCount)
	assert.Equal(t, 90, summaries[0].StarsPercent)
	assert.Equal(t, 0, summaries[1].ReviewCount)
	assert.Equal(t, 0, summaries[1].StarsPercent)
	assert.Equal(t, 20, summaries[2].StarsPercent)
}

func TestNormalizeReview(t *testing.T) {
	rv := &Review{UserName: "  Ann ", Rating: 3, ReviewText: " ok "}
	require.NoError(t, normalizeReview(rv))
	assert.Equal(t, "Ann", rv.UserName)
	assert.Equal(t, "ok", rv.ReviewText)
	assert.False(t, rv.ReviewDate.IsZero())
	assert.Equal(t, time.UTC, rv.ReviewDate.Location())

	for _, rating := range []int{0, 6, -1} {
		assert.Error(t, normalizeReview(&Review{UserName: "Ann", Rating: rating}))
	}
	assert.Error(t, normalizeReview(&Review{Rating: 3}))
}

// testStorage runs the behavior every backend must share.
func testStorage(t *testing.T, store Storage) {
	ctx := context.Background()

	t.Run("empty", func(t *testing.T) {
		summaries, err := store.ListRestaurantSummaries(ctx)
		require.NoError(t, err)
		assert.Empty(t, summaries)

		_, err = store.GetRestaurant(ctx, 42)
		assert.ErrorIs(t, err, ErrRestaurantNotFound)
	})

	first := &Restaurant{Name: "Mama's Kitchen", StreetAddress: "1 Main St", Description: "Home cooking"}
	second := &Restaurant{Name: "Taco Town", StreetAddress: "2 Side St"}

	t.Run("create restaurants", func(t *testing.T) {
		require.NoError(t, store.CreateRestaurant(ctx, first))
		require.NoError(t, store.CreateRestaurant(ctx, second))
		assert.NotZero(t, first.ID)
		assert.Greater(t, second.ID, first.ID)

		got, err := store.GetRestaurant(ctx, first.ID)
		require.NoError(t, err)
		assert.Equal(t, *first, *got)
	})

	t.Run("create reviews", func(t *testing.T) {
		base := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
		later := &Review{RestaurantID: first.ID, UserName: "Bob", Rating: 4, ReviewText: "Good", ReviewDate: base.Add(time.Hour)}
		earlier := &Review{RestaurantID: first.ID, UserName: "Ann", Rating: 5, ReviewText: "Great", ReviewDate: base}
		require.NoError(t, store.CreateReview(ctx, later))
		require.NoError(t, store.CreateReview(ctx, earlier))
		assert.NotZero(t, later.ID)
		assert.NotEqual(t, later.ID, earlier.ID)

		reviews, err := store.ListReviews(ctx, first.ID)
		require.NoError(t, err)
		require.Len(t, reviews, 2)
		assert.Equal(t, "Ann", reviews[0].UserName)
		assert.Equal(t, "Bob", reviews[1].UserName)
		assert.True(t, base.Equal(reviews[0].ReviewDate))

		none, err := store.ListReviews(ctx, second.ID)
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("review for unknown restaurant", func(t *testing.T) {
		err := store.CreateReview(ctx, &Review{RestaurantID: 9999, UserName: "Eve", Rating: 1})
		assert.ErrorIs(t, err, ErrRestaurantNotFound)
	})

	t.Run("summaries", func(t *testing.T) {
		summaries, err := store.ListRestaurantSummaries(ctx)
		require.NoError(t, err)
		require.Len(t, summaries, 2)

		assert.Equal(t, first.ID, summaries[0].ID)
		assert.Equal(t, 2, summaries[0].ReviewCount)
		assert.InDelta(t, 4.5, summaries[0].AvgRating, 0.0001)
		assert.Equal(t, 90, summaries[0].StarsPercent)

		assert.Equal(t, second.ID, summaries[1].ID)
		assert.Equal(t, 0, summaries[1].ReviewCount)
		assert.Equal(t, 0, summaries[1].StarsPercent)
	})

	t.Run("ping", func(t *testing.T) {
		assert.NoError(t, store.Ping(ctx))
	})
}
