package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"kinobot/internal/model"
)

const movieColumns = `id, title, code, file_id, file_type, media_type, category, description, year, rating,
	views, added_date, is_active, source_chat_id, source_message_id`

const episodeColumns = `id, movie_id, episode_number, episode_title, file_id, file_type, added_date,
	source_chat_id, source_message_id`

// CreateMovie allocates an ID and inserts m. A duplicate code yields ErrAlreadyExists.
func (s *SQLite) CreateMovie(ctx context.Context, m *model.Movie) error {
	id, err := s.NextID(ctx, model.CounterMovies)
	if err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}
	m.ID = id
	if err := s.insertMovie(ctx, m, ""); err != nil {
		m.ID = 0
		return err
	}
	return nil
}

// ImportMovie writes m with its original ID, upserting on ID.
func (s *SQLite) ImportMovie(ctx context.Context, m *model.Movie) error {
	return s.insertMovie(ctx, m, `ON CONFLICT (id) DO UPDATE SET
		title = excluded.title, code = excluded.code, file_id = excluded.file_id,
		file_type = excluded.file_type, media_type = excluded.media_type, category = excluded.category,
		description = excluded.description, year = excluded.year, rating = excluded.rating,
		views = excluded.views, is_active = excluded.is_active`)
}

func (s *SQLite) insertMovie(ctx context.Context, m *model.Movie, conflict string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO movies (`+movieColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) `+conflict,
		m.ID, m.Title, m.Code, m.FileID, string(m.FileType), string(m.MediaType), m.Category,
		m.Description, m.Year, m.Rating, m.Views, formatTime(m.CreatedAt), boolToInt(m.IsActive),
		m.SourceChatID, m.SourceMessageID,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert movie: %w", err)
	}
	return nil
}

// GetMovie returns a movie by ID regardless of its active flag.
func (s *SQLite) GetMovie(ctx context.Context, id int64) (*model.Movie, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+movieColumns+` FROM movies WHERE id = ?`, id)
	return scanMovie(row)
}

// GetMovieByCode returns an active movie by its share code.
func (s *SQLite) GetMovieByCode(ctx context.Context, code string) (*model.Movie, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+movieColumns+` FROM movies WHERE code = ? AND is_active = 1`, code,
	)
	return scanMovie(row)
}

// CodeExists reports whether any movie, active or not, uses code.
func (s *SQLite) CodeExists(ctx context.Context, code string) (bool, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM movies WHERE code = ?`, code).Scan(&n); err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return n > 0, nil
}

// FindMovies matches active titles case-insensitively, most viewed first.
func (s *SQLite) FindMovies(ctx context.Context, title string, exact bool, limit int) ([]model.Movie, error) {
	q := `SELECT ` + movieColumns + ` FROM movies WHERE is_active = 1 AND `
	if exact {
		q += `lower(title) = ?`
	} else {
		q += `instr(lower(title), ?) > 0`
	}
	q += ` ORDER BY views DESC, id LIMIT ?`
	return s.queryMovies(ctx, q, strings.ToLower(title), limit)
}

// FindSeriesByTitle returns the active series header whose title matches case-insensitively.
func (s *SQLite) FindSeriesByTitle(ctx context.Context, title string) (*model.Movie, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+movieColumns+` FROM movies
		 WHERE media_type = ? AND is_active = 1 AND lower(title) = ? ORDER BY id LIMIT 1`,
		string(model.MediaSeries), strings.ToLower(title),
	)
	return scanMovie(row)
}

// GetMovieBySource returns the movie ingested from the given post.
func (s *SQLite) GetMovieBySource(ctx context.Context, chatID string, messageID int64) (*model.Movie, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+movieColumns+` FROM movies WHERE source_chat_id = ? AND source_message_id = ? LIMIT 1`,
		chatID, messageID,
	)
	return scanMovie(row)
}

// ListMoviesByCategory returns active movies of a category, most viewed first.
func (s *SQLite) ListMoviesByCategory(ctx context.Context, category string, limit int) ([]model.Movie, error) {
	return s.queryMovies(ctx,
		`SELECT `+movieColumns+` FROM movies WHERE is_active = 1 AND category = ?
		 ORDER BY views DESC, id LIMIT ?`, category, limit)
}

// ListPopularMovies returns the most viewed active movies.
func (s *SQLite) ListPopularMovies(ctx context.Context, limit int) ([]model.Movie, error) {
	return s.queryMovies(ctx,
		`SELECT `+movieColumns+` FROM movies WHERE is_active = 1 ORDER BY views DESC, id LIMIT ?`, limit)
}

// IncrementMovieViews bumps the movie's view counter.
func (s *SQLite) IncrementMovieViews(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE movies SET views = views + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	return requireAffected(res)
}

// DeactivateMovieByCode hides an active movie from the catalog and returns it.
func (s *SQLite) DeactivateMovieByCode(ctx context.Context, code string) (*model.Movie, error) {
	m, err := s.GetMovieByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE movies SET is_active = 0 WHERE id = ?`, m.ID); err != nil {
		return nil, fmt.Errorf("deactivate movie: %w", err)
	}
	m.IsActive = false
	return m, nil
}

// TrendingMovies ranks active movies by views recorded since the given time.
func (s *SQLite) TrendingMovies(ctx context.Context, since time.Time, limit int) ([]model.TrendingMovie, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prefixColumns("m.", movieColumns)+`, COUNT(v.id) AS recent
		 FROM view_statistics v JOIN movies m ON m.id = v.movie_id
		 WHERE v.view_date >= ? AND m.is_active = 1
		 GROUP BY m.id ORDER BY recent DESC, m.id LIMIT ?`,
		formatTime(since), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query trending: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.TrendingMovie
	for rows.Next() {
		var t model.TrendingMovie
		if err := scanMovieInto(rows, &t.Movie, &t.RecentViews); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// CreateEpisode allocates an ID and inserts e. A duplicate episode number yields ErrAlreadyExists.
func (s *SQLite) CreateEpisode(ctx context.Context, e *model.Episode) error {
	id, err := s.NextID(ctx, model.CounterEpisodes)
	if err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.ID = id
	if err := s.insertEpisode(ctx, e, ""); err != nil {
		e.ID = 0
		return err
	}
	return nil
}

// ImportEpisode writes e with its original ID, upserting on (movie, number).
func (s *SQLite) ImportEpisode(ctx context.Context, e *model.Episode) error {
	return s.insertEpisode(ctx, e, `ON CONFLICT (movie_id, episode_number) DO UPDATE SET
		episode_title = excluded.episode_title, file_id = excluded.file_id, file_type = excluded.file_type`)
}

func (s *SQLite) insertEpisode(ctx context.Context, e *model.Episode, conflict string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO series_episodes (`+episodeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) `+conflict,
		e.ID, e.MovieID, e.Number, e.Title, e.FileID, string(e.FileType), formatTime(e.CreatedAt),
		e.SourceChatID, e.SourceMessageID,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

// GetEpisode returns an episode of a series by number.
func (s *SQLite) GetEpisode(ctx context.Context, movieID int64, number int) (*model.Episode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+episodeColumns+` FROM series_episodes WHERE movie_id = ? AND episode_number = ?`,
		movieID, number,
	)
	return scanEpisode(row)
}

// GetEpisodeBySource returns the episode ingested from the given post.
func (s *SQLite) GetEpisodeBySource(ctx context.Context, chatID string, messageID int64) (*model.Episode, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+episodeColumns+` FROM series_episodes
		 WHERE source_chat_id = ? AND source_message_id = ? LIMIT 1`, chatID, messageID,
	)
	return scanEpisode(row)
}

// ListEpisodes returns a series' episodes ordered by number.
func (s *SQLite) ListEpisodes(ctx context.Context, movieID int64) ([]model.Episode, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+episodeColumns+` FROM series_episodes WHERE movie_id = ? ORDER BY episode_number`, movieID,
	)
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Episode
	for rows.Next() {
		e, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// DeleteEpisodes removes every episode of a series and returns how many were removed.
func (s *SQLite) DeleteEpisodes(ctx context.Context, movieID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM series_episodes WHERE movie_id = ?`, movieID)
	if err != nil {
		return 0, fmt.Errorf("delete episodes: %w", err)
	}
	return res.RowsAffected()
}

func (s *SQLite) queryMovies(ctx context.Context, q string, args ...any) ([]model.Movie, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query movies: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Movie
	for rows.Next() {
		var m model.Movie
		if err := scanMovieInto(rows, &m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func scanMovie(row scannable) (*model.Movie, error) {
	var m model.Movie
	err := scanMovieInto(row, &m)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func scanMovieInto(row scannable, m *model.Movie, extra ...any) error {
	var fileType, mediaType, added string
	var isActive int
	dest := []any{&m.ID, &m.Title, &m.Code, &m.FileID, &fileType, &mediaType, &m.Category,
		&m.Description, &m.Year, &m.Rating, &m.Views, &added, &isActive, &m.SourceChatID, &m.SourceMessageID}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return err
		}
		return fmt.Errorf("scan movie: %w", err)
	}
	m.FileType = model.FileType(fileType)
	m.MediaType = model.MediaType(mediaType)
	m.CreatedAt = parseTime(added)
	m.IsActive = isActive == 1
	return nil
}

func scanEpisode(row scannable) (*model.Episode, error) {
	var e model.Episode
	var fileType, added string
	err := row.Scan(&e.ID, &e.MovieID, &e.Number, &e.Title, &e.FileID, &fileType, &added,
		&e.SourceChatID, &e.SourceMessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan episode: %w", err)
	}
	e.FileType = model.FileType(fileType)
	e.CreatedAt = parseTime(added)
	return &e, nil
}

func prefixColumns(prefix, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = prefix + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
