package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgellow/restaurant-reviews/internal/log"
	"github.com/dgellow/restaurant-reviews/internal/storage/migrations"
	_ "modernc.org/sqlite"
)

var _ Storage = (*SQLiteStorage)(nil)

// SQLiteStorage persists restaurants and reviews in a SQLite file.
type SQLiteStorage struct {
	db *sql.DB
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(v int64) time.Time {
	return time.UnixMilli(v).UTC()
}

// NewSQLiteStorage opens the database at path and applies the embedded
// migrations. Use ":memory:" for a throwaway database.
func NewSQLiteStorage(ctx context.Context, path string) (*SQLiteStorage, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}

	var dsn string
	if path == ":memory:" {
		dsn = "file::memory:?_pragma=foreign_keys(1)"
	} else {
		dsn = "file:" + filepath.Clean(path) + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// every connection to :memory: is a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, sqlDBExecutor{db: db}, migrations.SQLite, "sqlite"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.LogInfoWithFields("storage", "Opened SQLite storage", map[string]any{
		"path": path,
	})
	return &SQLiteStorage{db: db}, nil
}

func (s *SQLiteStorage) ListRestaurantSummaries(ctx context.Context) ([]RestaurantSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT r.id, r.name, r.street_address, r.description,
       COALESCE(AVG(rv.rating), 0), COUNT(rv.id)
FROM restaurants r
LEFT OUTER JOIN reviews rv ON rv.restaurant_id = r.id
GROUP BY r.id
ORDER BY r.id`)
	if err != nil {
		return nil, fmt.Errorf("list restaurants: %w", err)
	}
	defer rows.Close()

	var summaries []RestaurantSummary
	for rows.Next() {
		var (
			r     Restaurant
			avg   float64
			count int
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.StreetAddress, &r.Description, &avg, &count); err != nil {
			return nil, fmt.Errorf("scan restaurant: %w", err)
		}
		summaries = append(summaries, NewSummary(r, avg, count))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restaurants: %w", err)
	}
	return summaries, nil
}

func (s *SQLiteStorage) GetRestaurant(ctx context.Context, id int64) (*Restaurant, error) {
	var r Restaurant
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, street_address, description FROM restaurants WHERE id = ?`, id,
	).Scan(&r.ID, &r.Name, &r.StreetAddress, &r.Description)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRestaurantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	return &r, nil
}

func (s *SQLiteStorage) ListReviews(ctx context.Context, restaurantID int64) ([]Review, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, restaurant_id, user_name, rating, review_text, review_date
FROM reviews
WHERE restaurant_id = ?
ORDER BY review_date, id`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var (
			rv   Review
			date int64
		)
		if err := rows.Scan(&rv.ID, &rv.RestaurantID, &rv.UserName, &rv.Rating, &rv.ReviewText, &date); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		rv.ReviewDate = fromMillis(date)
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return reviews, nil
}

func (s *SQLiteStorage) CreateRestaurant(ctx context.Context, r *Restaurant) error {
	if err := normalizeRestaurant(r); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO restaurants (name, street_address, description) VALUES (?, ?, ?)`,
		r.Name, r.StreetAddress, r.Description,
	)
	if err != nil {
		return fmt.Errorf("create restaurant: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create restaurant: %w", err)
	}
	r.ID = id
	return nil
}

func (s *SQLiteStorage) CreateReview(ctx context.Context, rv *Review) error {
	if err := normalizeReview(rv); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM restaurants WHERE id = ?`, rv.RestaurantID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrRestaurantNotFound
	}
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO reviews (restaurant_id, user_name, rating, review_text, review_date) VALUES (?, ?, ?, ?, ?)`,
		rv.RestaurantID, rv.UserName, rv.Rating, rv.ReviewText, toMillis(rv.ReviewDate),
	)
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	rv.ID = id
	return nil
}

func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStorage) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
