package asset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore is a single-node Store backed by SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS assets (
	id              TEXT PRIMARY KEY,
	owner_id        TEXT NOT NULL,
	title           TEXT NOT NULL,
	description     TEXT NOT NULL DEFAULT '',
	master_playlist TEXT NOT NULL,
	file_count      INTEGER NOT NULL,
	total_size      INTEGER NOT NULL,
	duration        INTEGER,
	thumbnail_path  TEXT,
	status          TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	updated_at      TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_assets_owner_created ON assets(owner_id, created_at DESC);
`

// NewSQLiteStore opens (and migrates) a SQLite database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close() //nolint:errcheck
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Create(ctx context.Context, a *Asset) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO assets (id, owner_id, title, description, master_playlist, file_count, total_size, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OwnerID, a.Title, a.Description, a.MasterPlaylist, a.FileCount, a.TotalSize, string(a.Status), a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert asset: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Asset, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, owner_id, title, description, master_playlist, file_count, total_size, duration, thumbnail_path, status, created_at, updated_at
		 FROM assets WHERE id = ?`, id)
	return scanAsset(row)
}

func (s *SQLiteStore) List(ctx context.Context, ownerID string, limit, offset int64) (*Page, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, owner_id, title, description, master_playlist, file_count, total_size, duration, thumbnail_path, status, created_at, updated_at
		 FROM assets WHERE owner_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
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
		`SELECT COUNT(*) FROM assets WHERE owner_id = ?`, ownerID).Scan(&page.Total); err != nil {
		return nil, fmt.Errorf("count assets: %w", err)
	}
	return page, nil
}

func (s *SQLiteStore) UpdateStatus(ctx context.Context, id string, from, to Status) error {
	if err := ValidateTransition(from, to); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE assets SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(to), time.Now().UTC(), id, string(from))
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	return checkStatusUpdate(ctx, s.db, res, id)
}

func (s *SQLiteStore) SetProcessingResult(ctx context.Context, id string, duration *int, thumbnailPath *string, to Status) error {
	if err := ValidateTransition(StatusProcessing, to); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE assets SET duration = ?, thumbnail_path = ?, status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		duration, thumbnailPath, string(to), time.Now().UTC(), id, string(StatusProcessing))
	if err != nil {
		return fmt.Errorf("set processing result: %w", err)
	}
	return checkStatusUpdate(ctx, s.db, res, id)
}

func (s *SQLiteStore) UpdateDetails(ctx context.Context, id, title, description string) (*Asset, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE assets SET title = ?, description = ?, updated_at = ? WHERE id = ?`,
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

func (s *SQLiteStore) Delete(ctx context.Context, id, ownerID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM assets WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return false, fmt.Errorf("delete asset: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAsset(row *sql.Row) (*Asset, error) {
	a, err := scanAssetRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func scanAssetRows(row rowScanner) (*Asset, error) {
	var a Asset
	var status string
	if err := row.Scan(&a.ID, &a.OwnerID, &a.Title, &a.Description, &a.MasterPlaylist,
		&a.FileCount, &a.TotalSize, &a.DurationSec, &a.ThumbnailPath,
		&status, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	st, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	a.Status = st
	return &a, nil
}

// checkStatusUpdate distinguishes a missing row from a lost transition race.
func checkStatusUpdate(ctx context.Context, db *sql.DB, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM assets WHERE id = ?`, id).Scan(&exists); err != nil {
		return err
	}
	if exists == 0 {
		return ErrNotFound
	}
	return ErrStaleStatus
}
