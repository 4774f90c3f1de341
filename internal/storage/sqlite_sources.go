package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kinobot/internal/model"
)

const sourceColumns = `id, name, url, category, interval_minutes, is_active, last_check_at, created_at`

// CreateSource allocates an ID and inserts src. A duplicate URL yields ErrAlreadyExists.
func (s *SQLite) CreateSource(ctx context.Context, src *model.Source) error {
	id, err := s.NextID(ctx, model.CounterIngestSources)
	if err != nil {
		return err
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO ingest_sources (`+sourceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, src.Name, src.URL, src.Category, src.IntervalMinutes, boolToInt(src.IsActive),
		formatTimePtr(src.LastCheckAt), formatTime(src.CreatedAt),
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert source: %w", err)
	}
	src.ID = id
	return nil
}

// GetSource returns a single source by its ID.
func (s *SQLite) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sourceColumns+` FROM ingest_sources WHERE id = ?`, id)
	return scanSource(row)
}

// ListSources returns all sources ordered by ID.
func (s *SQLite) ListSources(ctx context.Context) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sourceColumns+` FROM ingest_sources ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

// ListDueSources returns active sources whose interval has elapsed at now.
func (s *SQLite) ListDueSources(ctx context.Context, now time.Time) ([]model.Source, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sourceColumns+` FROM ingest_sources
		 WHERE is_active = 1
		   AND (last_check_at IS NULL
		        OR datetime(last_check_at, '+' || interval_minutes || ' minutes') <= datetime(?))
		 ORDER BY id`,
		formatTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("query due sources: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanSources(rows)
}

// UpdateSource persists changes to an existing source.
func (s *SQLite) UpdateSource(ctx context.Context, src *model.Source) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE ingest_sources SET name = ?, url = ?, category = ?, interval_minutes = ?, is_active = ?, last_check_at = ?
		 WHERE id = ?`,
		src.Name, src.URL, src.Category, src.IntervalMinutes, boolToInt(src.IsActive),
		formatTimePtr(src.LastCheckAt), src.ID,
	)
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	return nil
}

// DeleteSource removes a source and its seen items.
func (s *SQLite) DeleteSource(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM seen_items WHERE source_id = ?`, id); err != nil {
		return fmt.Errorf("delete seen_items: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM ingest_sources WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if err := requireAffected(res); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkSeen records that a feed item has been processed.
func (s *SQLite) MarkSeen(ctx context.Context, sourceID int64, guid string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO seen_items (source_id, guid) VALUES (?, ?)`, sourceID, guid,
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// IsSeen checks whether a feed item has already been processed.
func (s *SQLite) IsSeen(ctx context.Context, sourceID int64, guid string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM seen_items WHERE source_id = ? AND guid = ?`, sourceID, guid,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return count > 0, nil
}

func scanSource(row scannable) (*model.Source, error) {
	var src model.Source
	var isActive int
	var lastCheck sql.NullString
	var created string
	err := row.Scan(&src.ID, &src.Name, &src.URL, &src.Category, &src.IntervalMinutes, &isActive, &lastCheck, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan source: %w", err)
	}
	src.IsActive = isActive == 1
	src.LastCheckAt = parseTimePtr(lastCheck)
	src.CreatedAt = parseTime(created)
	return &src, nil
}

func scanSources(rows *sql.Rows) ([]model.Source, error) {
	var out []model.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *src)
	}
	return out, rows.Err()
}
