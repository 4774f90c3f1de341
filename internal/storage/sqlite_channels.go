package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"kinobot/internal/model"
)

const channelColumns = `id, channel_id, channel_name, channel_username, channel_type, is_active, added_date, invite_link`

// CreateChannel allocates an ID and inserts ch. A duplicate chat ID yields ErrAlreadyExists.
func (s *SQLite) CreateChannel(ctx context.Context, ch *model.Channel) error {
	id, err := s.NextID(ctx, model.CounterChannels)
	if err != nil {
		return err
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now()
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO channels (`+channelColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, ch.ChatID, ch.Name, ch.Username, string(ch.Type), boolToInt(ch.IsActive),
		formatTime(ch.CreatedAt), ch.InviteLink,
	)
	if isUniqueViolation(err) {
		return ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	ch.ID = id
	return nil
}

// GetChannel returns a channel by surrogate ID.
func (s *SQLite) GetChannel(ctx context.Context, id int64) (*model.Channel, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+channelColumns+` FROM channels WHERE id = ?`, id)
	return scanChannel(row)
}

// ListChannels returns channels ordered by ID, optionally only active ones.
func (s *SQLite) ListChannels(ctx context.Context, activeOnly bool) ([]model.Channel, error) {
	q := `SELECT ` + channelColumns + ` FROM channels`
	if activeOnly {
		q += ` WHERE is_active = 1`
	}
	rows, err := s.db.QueryContext(ctx, q+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var channels []model.Channel
	for rows.Next() {
		ch, err := scanChannel(rows)
		if err != nil {
			return nil, err
		}
		channels = append(channels, *ch)
	}
	return channels, rows.Err()
}

// SetChannelActive toggles a channel by chat ID.
func (s *SQLite) SetChannelActive(ctx context.Context, chatID string, active bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE channels SET is_active = ? WHERE channel_id = ?`, boolToInt(active), chatID,
	)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	return requireAffected(res)
}

// DeleteChannel removes a channel by chat ID. Past assignments are kept as history.
func (s *SQLite) DeleteChannel(ctx context.Context, chatID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM channels WHERE channel_id = ?`, chatID)
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return requireAffected(res)
}

// ImportChannel writes ch with its original ID, upserting on chat ID.
func (s *SQLite) ImportChannel(ctx context.Context, ch *model.Channel) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO channels (`+channelColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (channel_id) DO UPDATE SET
		   channel_name = excluded.channel_name, channel_username = excluded.channel_username,
		   channel_type = excluded.channel_type, is_active = excluded.is_active,
		   invite_link = excluded.invite_link`,
		ch.ID, ch.ChatID, ch.Name, ch.Username, string(ch.Type), boolToInt(ch.IsActive),
		formatTime(ch.CreatedAt), ch.InviteLink,
	)
	if err != nil {
		return fmt.Errorf("import channel %s: %w", ch.ChatID, err)
	}
	return nil
}

func scanChannel(row scannable) (*model.Channel, error) {
	var ch model.Channel
	var chType, added string
	var isActive int
	err := row.Scan(&ch.ID, &ch.ChatID, &ch.Name, &ch.Username, &chType, &isActive, &added, &ch.InviteLink)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan channel: %w", err)
	}
	ch.Type = model.ChannelType(chType)
	ch.IsActive = isActive == 1
	ch.CreatedAt = parseTime(added)
	return &ch, nil
}
