package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"kinobot/internal/model"
)

// ListAssignments returns the user's assignments for day ordered by position.
func (s *SQLite) ListAssignments(ctx context.Context, userID int64, day string) ([]model.DailyAssignment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id, channel_id, rotation_day, position, rotation_date, subscribed_date, checked_date
		 FROM user_subscriptions WHERE user_id = ? AND rotation_day = ?
		 ORDER BY position`, userID, day,
	)
	if err != nil {
		return nil, fmt.Errorf("query assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.DailyAssignment
	for rows.Next() {
		var a model.DailyAssignment
		var assigned string
		var confirmed, checked sql.NullString
		if err := rows.Scan(&a.UserID, &a.ChannelID, &a.Day, &a.Position, &assigned, &confirmed, &checked); err != nil {
			return nil, fmt.Errorf("scan assignment: %w", err)
		}
		a.AssignedAt = parseTime(assigned)
		a.ConfirmedAt = parseTimePtr(confirmed)
		a.CheckedAt = parseTimePtr(checked)
		out = append(out, a)
	}
	return out, rows.Err()
}

// AssignedChannelsSince returns the distinct channel IDs assigned on or after sinceDay.
func (s *SQLite) AssignedChannelsSince(ctx context.Context, userID int64, sinceDay string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT channel_id FROM user_subscriptions
		 WHERE user_id = ? AND rotation_day >= ? ORDER BY channel_id`, userID, sinceDay,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent assignments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan channel id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReplaceAssignments atomically swaps the user's assignments for day.
func (s *SQLite) ReplaceAssignments(ctx context.Context, userID int64, day string, channelIDs []string, at time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_subscriptions WHERE user_id = ? AND rotation_day = ?`, userID, day,
	); err != nil {
		return fmt.Errorf("delete assignments: %w", err)
	}
	stamp := formatTime(at)
	for i, id := range channelIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO user_subscriptions (user_id, channel_id, rotation_day, position, rotation_date)
			 VALUES (?, ?, ?, ?, ?)`, userID, id, day, i, stamp,
		); err != nil {
			return fmt.Errorf("insert assignment: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE users SET last_rotation_date = ? WHERE user_id = ?`, stamp, userID,
	); err != nil {
		return fmt.Errorf("update last rotation: %w", err)
	}
	return tx.Commit()
}

// RecordCheck stamps the check time and, when subscribed, the confirmation time.
func (s *SQLite) RecordCheck(ctx context.Context, userID int64, channelID, day string, subscribed bool, at time.Time) error {
	stamp := formatTime(at)
	q := `UPDATE user_subscriptions SET checked_date = ?`
	args := []any{stamp}
	if subscribed {
		q += `, subscribed_date = COALESCE(subscribed_date, ?)`
		args = append(args, stamp)
	}
	q += ` WHERE user_id = ? AND channel_id = ? AND rotation_day = ?`
	args = append(args, userID, channelID, day)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("record check: %w", err)
	}
	return nil
}

// ImportAssignment writes a, upserting on (user, channel, day).
func (s *SQLite) ImportAssignment(ctx context.Context, a *model.DailyAssignment) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_subscriptions (user_id, channel_id, rotation_day, position, rotation_date, subscribed_date, checked_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, channel_id, rotation_day) DO UPDATE SET
		   position = excluded.position, rotation_date = excluded.rotation_date,
		   subscribed_date = excluded.subscribed_date, checked_date = excluded.checked_date`,
		a.UserID, a.ChannelID, a.Day, a.Position, formatTime(a.AssignedAt),
		formatTimePtr(a.ConfirmedAt), formatTimePtr(a.CheckedAt),
	)
	if err != nil {
		return fmt.Errorf("import assignment: %w", err)
	}
	return nil
}
