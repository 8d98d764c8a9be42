package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgellow/restaurant-reviews/internal/log"
	"github.com/dgellow/restaurant-reviews/internal/storage/migrations"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var _ Storage = (*PostgresStorage)(nil)

// foreign_key_violation
const pgForeignKeyViolation = "23503"

// PostgresStorage persists restaurants and reviews in PostgreSQL.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// PostgresConfig configures the connection pool.
type PostgresConfig struct {
	URL      string
	MaxConns int32
}

// NewPostgresStorage connects to the database and applies the embedded
// migrations.
func NewPostgresStorage(ctx context.Context, cfg PostgresConfig) (*PostgresStorage, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := applyMigrations(ctx, pgxExecutor{pool: pool}, migrations.Postgres, "postgres"); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	log.LogInfoWithFields("storage", "Connected to PostgreSQL", map[string]any{
		"max_conns": poolConfig.MaxConns,
	})
	return &PostgresStorage{pool: pool}, nil
}

func (s *PostgresStorage) ListRestaurantSummaries(ctx context.Context) ([]RestaurantSummary, error) {
	rows, err := s.pool.Query(ctx, `
SELECT r.id, r.name, r.street_address, r.description,
       COALESCE(AVG(rv.rating), 0)::float8, COUNT(rv.id)
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
			count int64
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.StreetAddress, &r.Description, &avg, &count); err != nil {
			return nil, fmt.Errorf("scan restaurant: %w", err)
		}
		summaries = append(summaries, NewSummary(r, avg, int(count)))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate restaurants: %w", err)
	}
	return summaries, nil
}

func (s *PostgresStorage) GetRestaurant(ctx context.Context, id int64) (*Restaurant, error) {
	var r Restaurant
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, street_address, description FROM restaurants WHERE id = $1`, id,
	).Scan(&r.ID, &r.Name, &r.StreetAddress, &r.Description)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrRestaurantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get restaurant: %w", err)
	}
	return &r, nil
}

func (s *PostgresStorage) ListReviews(ctx context.Context, restaurantID int64) ([]Review, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, restaurant_id, user_name, rating, review_text, review_date
FROM reviews
WHERE restaurant_id = $1
ORDER BY review_date, id`, restaurantID)
	if err != nil {
		return nil, fmt.Errorf("list reviews: %w", err)
	}
	defer rows.Close()

	var reviews []Review
	for rows.Next() {
		var rv Review
		if err := rows.Scan(&rv.ID, &rv.RestaurantID, &rv.UserName, &rv.Rating, &rv.ReviewText, &rv.ReviewDate); err != nil {
			return nil, fmt.Errorf("scan review: %w", err)
		}
		rv.ReviewDate = rv.ReviewDate.UTC()
		reviews = append(reviews, rv)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reviews: %w", err)
	}
	return reviews, nil
}

func (s *PostgresStorage) CreateRestaurant(ctx context.Context, r *Restaurant) error {
	if err := normalizeRestaurant(r); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO restaurants (name, street_address, description) VALUES ($1, $2, $3) RETURNING id`,
		r.Name, r.StreetAddress, r.Description,
	).Scan(&r.ID)
	if err != nil {
		return fmt.Errorf("create restaurant: %w", err)
	}
	return nil
}

func (s *PostgresStorage) CreateReview(ctx context.Context, rv *Review) error {
	if err := normalizeReview(rv); err != nil {
		return err
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO reviews (restaurant_id, user_name, rating, review_text, review_date)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		rv.RestaurantID, rv.UserName, rv.Rating, rv.ReviewText, rv.ReviewDate,
	).Scan(&rv.ID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return ErrRestaurantNotFound
		}
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}

func (s *PostgresStorage) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStorage) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

// pgxExecutor adapts a pgx pool to the migrator.
type pgxExecutor struct {
	pool *pgxpool.Pool
}

func (e pgxExecutor) exec(ctx context.Context, query string, args ...any) error {
	_, err := e.pool.Exec(ctx, query, args...)
	return err
}

func (e pgxExecutor) applied(ctx context.Context, name string) (bool, error) {
	var found int
	err := e.pool.QueryRow(ctx, "SELECT 1 FROM "+migrationTable+" WHERE name = $1", name).Scan(&found)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (e pgxExecutor) inTx(ctx context.Context, fn func(exec func(string, ...any) error) error) error {
	return pgx.BeginFunc(ctx, e.pool, func(tx pgx.Tx) error {
		return fn(func(query string, args ...any) error {
			_, err := tx.Exec(ctx, query, args...)
			return err
		})
	})
}

func (e pgxExecutor) recordSQL() string {
	return "INSERT INTO " + migrationTable + " (name, applied_at) VALUES ($1, $2) ON CONFLICT (name) DO NOTHING"
}
