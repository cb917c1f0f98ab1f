package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"vintedwatch/monitor-service/internal/model"
)

// PostgresStore implements SearchRegistry and SeenStore on a pgx pool.
// Seen marks rely on the (search_id, listing_id) primary key, so concurrent
// Mark calls for the same pair collapse into one row.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore creates the store and ensures its schema exists.
func NewPostgresStore(ctx context.Context, pool *pgxpool.Pool) (*PostgresStore, error) {
	s := &PostgresStore{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

var (
	_ SearchRegistry = (*PostgresStore)(nil)
	_ SeenStore      = (*PostgresStore)(nil)
)

func (s *PostgresStore) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS searches (
			id         TEXT PRIMARY KEY,
			keyword    TEXT NOT NULL,
			brand      TEXT NOT NULL DEFAULT '',
			category   TEXT NOT NULL DEFAULT '',
			size       TEXT NOT NULL DEFAULT '',
			max_price  DOUBLE PRECISION NOT NULL,
			channel    TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS seen_listings (
			search_id  TEXT NOT NULL,
			listing_id TEXT NOT NULL,
			marked_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
			PRIMARY KEY (search_id, listing_id)
		)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) Add(ctx context.Context, def model.SearchDefinition) (model.SearchDefinition, error) {
	if err := def.Validate(); err != nil {
		return model.SearchDefinition{}, err
	}

	def.ID = newSearchID()
	def.CreatedAt = time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO searches (id, keyword, brand, category, size, max_price, channel, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		def.ID, def.Keyword, def.Brand, def.Category, def.Size, def.MaxPrice, def.Channel, def.CreatedAt,
	)
	if err != nil {
		return model.SearchDefinition{}, fmt.Errorf("insert search: %w", err)
	}
	return def, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]model.SearchDefinition, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, keyword, brand, category, size, max_price, channel, created_at
		 FROM searches
		 ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query searches: %w", err)
	}
	defer rows.Close()

	var defs []model.SearchDefinition
	for rows.Next() {
		var d model.SearchDefinition
		if err := rows.Scan(
			&d.ID, &d.Keyword, &d.Brand, &d.Category, &d.Size,
			&d.MaxPrice, &d.Channel, &d.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan search: %w", err)
		}
		defs = append(defs, d)
	}
	return defs, rows.Err()
}

func (s *PostgresStore) Remove(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM searches WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete search: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Has(ctx context.Context, searchID, listingID string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (
		   SELECT 1 FROM seen_listings WHERE search_id = $1 AND listing_id = $2
		 )`,
		searchID, listingID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("query seen: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) Mark(ctx context.Context, searchID, listingID string) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO seen_listings (search_id, listing_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING`,
		searchID, listingID,
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}
