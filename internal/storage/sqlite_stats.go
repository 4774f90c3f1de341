package storage

import (
	"context"
	"fmt"
	"time"

	"kinobot/internal/model"
)

// AddSearchStat records a search and bumps the user's search counter.
func (s *SQLite) AddSearchStat(ctx context.Context, st *model.SearchStat) error {
	id, err := s.NextID(ctx, model.CounterSearchStats)
	if err != nil {
		return err
	}
	if st.CreatedAt.IsZero() {
		st.CreatedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO search_statistics (id, user_id, query, found, search_date) VALUES (?, ?, ?, ?, ?)`,
		id, st.UserID, st.Query, boolToInt(st.Found), formatTime(st.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert search stat: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET total_searches = total_searches + 1 WHERE user_id = ?`, st.UserID,
	); err != nil {
		return fmt.Errorf("bump user searches: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	st.ID = id
	return nil
}

// AddViewStat records a view and bumps the user's view counter.
func (s *SQLite) AddViewStat(ctx context.Context, v *model.ViewStat) error {
	id, err := s.NextID(ctx, model.CounterViewStats)
	if err != nil {
		return err
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO view_statistics (id, user_id, movie_id, view_date) VALUES (?, ?, ?, ?)`,
		id, v.UserID, v.MovieID, formatTime(v.CreatedAt),
	); err != nil {
		return fmt.Errorf("insert view stat: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET total_views = total_views + 1 WHERE user_id = ?`, v.UserID,
	); err != nil {
		return fmt.Errorf("bump user views: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	v.ID = id
	return nil
}

// TopSearches returns the most frequent queries since the given time.
func (s *SQLite) TopSearches(ctx context.Context, since time.Time, limit int) ([]model.SearchCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query, COUNT(*) AS n FROM search_statistics WHERE search_date >= ?
		 GROUP BY query ORDER BY n DESC, query LIMIT ?`, formatTime(since), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query top searches: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.SearchCount
	for rows.Next() {
		var c model.SearchCount
		if err := rows.Scan(&c.Query, &c.Count); err != nil {
			return nil, fmt.Errorf("scan search count: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Statistics builds the admin dashboard summary. Today is the calendar day of now in now's location.
func (s *SQLite) Statistics(ctx context.Context, now time.Time) (*model.Statistics, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var st model.Statistics
	err := s.db.QueryRowContext(ctx,
		`SELECT
		   (SELECT COUNT(*) FROM users),
		   (SELECT COUNT(*) FROM users WHERE is_premium = 1 AND premium_until > ?),
		   (SELECT COUNT(DISTINCT user_id) FROM search_statistics WHERE search_date >= ?),
		   (SELECT COUNT(*) FROM movies WHERE is_active = 1 AND media_type = ?),
		   (SELECT COUNT(*) FROM movies WHERE is_active = 1 AND media_type = ?),
		   (SELECT COUNT(*) FROM search_statistics),
		   (SELECT COUNT(*) FROM view_statistics),
		   (SELECT COUNT(*) FROM channels WHERE is_active = 1)`,
		formatTime(now), formatTime(dayStart), string(model.MediaMovie), string(model.MediaSeries),
	).Scan(&st.TotalUsers, &st.PremiumUsers, &st.TodayActive, &st.TotalMovies, &st.TotalSeries,
		&st.TotalSearches, &st.TotalViews, &st.ActiveChannels)
	if err != nil {
		return nil, fmt.Errorf("query statistics: %w", err)
	}
	return &st, nil
}

// ImportSearchStat writes st with its original ID.
func (s *SQLite) ImportSearchStat(ctx context.Context, st *model.SearchStat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO search_statistics (id, user_id, query, found, search_date) VALUES (?, ?, ?, ?, ?)`,
		st.ID, st.UserID, st.Query, boolToInt(st.Found), formatTime(st.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("import search stat: %w", err)
	}
	return nil
}

// ImportViewStat writes v with its original ID.
func (s *SQLite) ImportViewStat(ctx context.Context, v *model.ViewStat) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO view_statistics (id, user_id, movie_id, view_date) VALUES (?, ?, ?, ?)`,
		v.ID, v.UserID, v.MovieID, formatTime(v.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("import view stat: %w", err)
	}
	return nil
}
