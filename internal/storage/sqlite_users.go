package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kinobot/internal/model"
)

const userColumns = `user_id, username, first_name, last_name, registration_date, is_premium,
	premium_until, last_rotation_date, total_searches, total_views`

// UpsertUser inserts u if it does not exist yet and populates RegisteredAt for new users.
func (s *SQLite) UpsertUser(ctx context.Context, u *model.User) error {
	if u.RegisteredAt.IsZero() {
		u.RegisteredAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO users (user_id, username, first_name, last_name, registration_date)
		 VALUES (?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.FirstName, u.LastName, formatTime(u.RegisteredAt),
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// GetUser returns a user by Telegram ID.
func (s *SQLite) GetUser(ctx context.Context, id int64) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE user_id = ?`, id)
	return scanUser(row)
}

// SetPremium grants premium until the given time, or revokes it when until is nil.
func (s *SQLite) SetPremium(ctx context.Context, userID int64, until *time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET is_premium = ?, premium_until = ? WHERE user_id = ?`,
		boolToInt(until != nil), formatTimePtr(until), userID,
	)
	if err != nil {
		return fmt.Errorf("update premium: %w", err)
	}
	return requireAffected(res)
}

// ListUserIDs returns the IDs of every registered user.
func (s *SQLite) ListUserIDs(ctx context.Context) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT user_id FROM users ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("query users: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ImportUser writes u as-is, replacing an existing record with the same ID.
func (s *SQLite) ImportUser(ctx context.Context, u *model.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id) DO UPDATE SET
		   username = excluded.username, first_name = excluded.first_name, last_name = excluded.last_name,
		   registration_date = excluded.registration_date, is_premium = excluded.is_premium,
		   premium_until = excluded.premium_until, last_rotation_date = excluded.last_rotation_date,
		   total_searches = excluded.total_searches, total_views = excluded.total_views`,
		u.ID, u.Username, u.FirstName, u.LastName, formatTime(u.RegisteredAt), boolToInt(u.IsPremium),
		formatTimePtr(u.PremiumUntil), formatTimePtr(u.LastRotationAt), u.TotalSearches, u.TotalViews,
	)
	if err != nil {
		return fmt.Errorf("import user %d: %w", u.ID, err)
	}
	return nil
}

func scanUser(row scannable) (*model.User, error) {
	var u model.User
	var isPremium int
	var registered string
	var premiumUntil, lastRotation sql.NullString
	err := row.Scan(&u.ID, &u.Username, &u.FirstName, &u.LastName, &registered, &isPremium,
		&premiumUntil, &lastRotation, &u.TotalSearches, &u.TotalViews)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan user: %w", err)
	}
	u.RegisteredAt = parseTime(registered)
	u.IsPremium = isPremium == 1
	u.PremiumUntil = parseTimePtr(premiumUntil)
	u.LastRotationAt = parseTimePtr(lastRotation)
	return &u, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
