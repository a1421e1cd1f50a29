package asset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgresStore is a Store backed by PostgreSQL, for multi-instance
// deployments.
type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS assets (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	master_playlist TEXT NOT NULL,
	file_count      INTEGER NOT NULL,
	total_size      BIGINT NOT NULL,
	duration        INTEGER,
	thumbnail_path  TEXT,
	status          TEXT NOT NULL,
	created_at      TIMESTAMPTZ NOT NULL,
	updated_at      TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assets_owner_created ON assets(owner_id, created_at DESC);
`

// NewPostgresStore connects to PostgreSQL using a lib/pq connection string
// and applies the schema.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.Exec(postgresSchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) Create(ctx context.Context, a *Asset) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (id, owner_id, title, description, master_playlist, file_count, total_size, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID, a.OwnerID, a.Title, a.Description, a.MasterPlaylist, a.FileCount, a.TotalSize, string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, description, master_playlist, file_count, total_size, duration, thumbnail_path, status, created_at, updated_at
		 FROM assets WHERE id = $1`, id)
	a, err := scanAssetRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *PostgresStore) List(ctx context.Context, ownerID string, limit, offset int64) (*Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, title, description, master_playlist, file_count, total_size, duration, thumbnail_path, status, created_at, updated_at
		 FROM assets WHERE owner_id = $1 ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		ownerID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	defer rows.Close()

	page := &Page{Limit: limit, Offset: offset}
	for rows.Next() {
		a, err := scanAssetRows(rows)
		if err != nil {
			return nil, err
		}
		page.Assets = append(page.Assets, *a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM assets WHERE owner_id = $1`, ownerID).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("count assets: %w", err)
	}
	return page, nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	if err := ValidateTransition(from, to); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE assets SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return s.checkStatusUpdate(ctx, res, id)
}

func (s *PostgresStore) SetProcessingResult(ctx context.Context, id string, duration *int, thumbnailPath *string, to Status) error {
	if err := ValidateTransition(StatusProcessing, to); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE assets SET duration = $1, thumbnail_path = $2, status = $3, updated_at = $4 WHERE id = $5 AND status = $6`,
		duration, thumbnailPath, string(to), time.Now().UTC(), id, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("set processing result: %w", err)
	}
	return s.checkStatusUpdate(ctx, res, id)
}

func (s *PostgresStore) UpdateDetails(ctx context.Context, id, title, description string) (*Asset, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assets SET title = $1, description = $2, updated_at = $3 WHERE id = $4`,
		title, description, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("update details: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *PostgresStore) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM assets WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete asset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) checkStatusUpdate(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets WHERE id = $1`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrStaleStatus
}
