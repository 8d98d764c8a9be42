package storage

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/dgellow/restaurant-reviews/internal/log"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var _ Storage = (*FirestoreStorage)(nil)

// FirestoreStorage persists restaurants and reviews in Google Cloud Firestore.
// Firestore has no auto-increment, so integer ids come from counter
// documents updated in the same transaction as the insert.
type FirestoreStorage struct {
	client      *firestore.Client
	restaurants string
	reviews     string
	counters    string
}

// FirestoreConfig selects the project, database and collection prefix.
type FirestoreConfig struct {
	ProjectID        string
	Database         string
	CollectionPrefix string
}

// restaurantDoc is the stored form of a Restaurant
type restaurantDoc struct {
	ID            int64  `firestore:"id"`
	Name          string `firestore:"name"`
	StreetAddress string `firestore:"street_address"`
	Description   string `firestore:"description"`
}

// reviewDoc is the stored form of a Review
type reviewDoc struct {
	ID           int64     `firestore:"id"`
	RestaurantID int64     `firestore:"restaurant_id"`
	UserName     string    `firestore:"user_name"`
	Rating       int64     `firestore:"rating"`
	ReviewText   string    `firestore:"review_text"`
	ReviewDate   time.Time `firestore:"review_date"`
}

type counterDoc struct {
	Next int64 `firestore:"next"`
}

func (d restaurantDoc) toRestaurant() Restaurant {
	return Restaurant{ID: d.ID, Name: d.Name, StreetAddress: d.StreetAddress, Description: d.Description}
}

func (d reviewDoc) toReview() Review {
	return Review{
		ID:           d.ID,
		RestaurantID: d.RestaurantID,
		UserName:     d.UserName,
		Rating:       int(d.Rating),
		ReviewText:   d.ReviewText,
		ReviewDate:   d.ReviewDate.UTC(),
	}
}

// NewFirestoreStorage creates a new Firestore storage instance
func NewFirestoreStorage(ctx context.Context, cfg FirestoreConfig) (*FirestoreStorage, error) {
	if cfg.ProjectID == "" {
		return nil, fmt.Errorf("projectID is required")
	}

	var client *firestore.Client
	var err error
	if cfg.Database != "" && cfg.Database != firestore.DefaultDatabaseID {
		client, err = firestore.NewClientWithDatabase(ctx, cfg.ProjectID, cfg.Database)
	} else {
		client, err = firestore.NewClient(ctx, cfg.ProjectID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create Firestore client: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to Firestore", map[string]any{
		"project":  cfg.ProjectID,
		"database": cfg.Database,
	})
	return newFirestoreStorage(client, cfg.CollectionPrefix), nil
}

func newFirestoreStorage(client *firestore.Client, prefix string) *FirestoreStorage {
	return &FirestoreStorage{
		client:      client,
		restaurants: prefix + "restaurants",
		reviews:     prefix + "reviews",
		counters:    prefix + "counters",
	}
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

func (s *FirestoreStorage) ListRestaurantSummaries(ctx context.Context) ([]RestaurantSummary, error) {
	var restaurants []Restaurant
	iter := s.client.Collection(s.restaurants).OrderBy("id", firestore.Asc).Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list restaurants: %w", err)
		}
		var d restaurantDoc
		if err := doc.DataTo(&d); err != nil {
			log.LogErrorWithFields("storage", "Failed to unmarshal restaurant", map[string]any{
				"doc":   doc.Ref.ID,
				"error": err.Error(),
			})
			continue
		}
		restaurants = append(restaurants, d.toRestaurant())
	}

	reviews, err := s.queryReviews(ctx, s.client.Collection(s.reviews).Query)
	if err != nil {
		return nil, err
	}
	return Summarize(restaurants, reviews), nil
}

func (s *FirestoreStorage) GetRestaurant(ctx context.Context, id int64) (*Restaurant, error) {
	doc, err := s.client.Collection(s.restaurants).Doc(docID(id)).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrRestaurantNotFound
		}
		return nil, fmt.Errorf("failed to get restaurant: %w", err)
	}
	var d restaurantDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to unmarshal restaurant: %w", err)
	}
	r := d.toRestaurant()
	return &r, nil
}

func (s *FirestoreStorage) ListReviews(ctx context.Context, restaurantID int64) ([]Review, error) {
	// sorted client-side so the query needs no composite index
	reviews, err := s.queryReviews(ctx, s.client.Collection(s.reviews).Where("restaurant_id", "==", restaurantID))
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(reviews, compareReviews)
	return reviews, nil
}

func (s *FirestoreStorage) queryReviews(ctx context.Context, q firestore.Query) ([]Review, error) {
	var reviews []Review
	iter := q.Documents(ctx)
	defer iter.Stop()
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list reviews: %w", err)
		}
		var d reviewDoc
		if err := doc.DataTo(&d); err != nil {
			log.LogErrorWithFields("storage", "Failed to unmarshal review", map[string]any{
				"doc":   doc.Ref.ID,
				"error": err.Error(),
			})
			continue
		}
		reviews = append(reviews, d.toReview())
	}
	return reviews, nil
}

func (s *FirestoreStorage) CreateRestaurant(ctx context.Context, r *Restaurant) error {
	if err := normalizeRestaurant(r); err != nil {
		return err
	}
	var id int64
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		next, err := s.nextID(tx, s.restaurants)
		if err != nil {
			return err
		}
		id = next
		doc := restaurantDoc{ID: id, Name: r.Name, StreetAddress: r.StreetAddress, Description: r.Description}
		return tx.Create(s.client.Collection(s.restaurants).Doc(docID(id)), doc)
	})
	if err != nil {
		return fmt.Errorf("failed to create restaurant: %w", err)
	}
	r.ID = id
	return nil
}

func (s *FirestoreStorage) CreateReview(ctx context.Context, rv *Review) error {
	if err := normalizeReview(rv); err != nil {
		return err
	}
	var id int64
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// reads must precede writes in a Firestore transaction
		if _, err := tx.Get(s.client.Collection(s.restaurants).Doc(docID(rv.RestaurantID))); err != nil {
			if status.Code(err) == codes.NotFound {
				return ErrRestaurantNotFound
			}
			return err
		}
		next, err := s.nextID(tx, s.reviews)
		if err != nil {
			return err
		}
		id = next
		doc := reviewDoc{
			ID:           id,
			RestaurantID: rv.RestaurantID,
			UserName:     rv.UserName,
			Rating:       int64(rv.Rating),
			ReviewText:   rv.ReviewText,
			ReviewDate:   rv.ReviewDate,
		}
		return tx.Create(s.client.Collection(s.reviews).Doc(docID(id)), doc)
	})
	if err != nil {
		if errors.Is(err, ErrRestaurantNotFound) {
			return ErrRestaurantNotFound
		}
		return fmt.Errorf("failed to create review: %w", err)
	}
	rv.ID = id
	return nil
}

// nextID reserves the next id for collection inside tx.
func (s *FirestoreStorage) nextID(tx *firestore.Transaction, collection string) (int64, error) {
	ref := s.client.Collection(s.counters).Doc(collection)
	next := int64(1)
	doc, err := tx.Get(ref)
	switch {
	case err == nil:
		var c counterDoc
		if err := doc.DataTo(&c); err != nil {
			return 0, fmt.Errorf("failed to unmarshal counter: %w", err)
		}
		if c.Next > 0 {
			next = c.Next
		}
	case status.Code(err) != codes.NotFound:
		return 0, err
	}
	if err := tx.Set(ref, counterDoc{Next: next + 1}); err != nil {
		return 0, err
	}
	return next, nil
}

// Ping reads the restaurant counter to confirm Firestore is reachable.
func (s *FirestoreStorage) Ping(ctx context.Context) error {
	_, err := s.client.Collection(s.counters).Doc(s.restaurants).Get(ctx)
	if err != nil && status.Code(err) != codes.NotFound {
		return err
	}
	return nil
}

func (s *FirestoreStorage) Close() error {
	return s.client.Close()
}
