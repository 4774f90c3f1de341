package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kinobot/internal/model"
)

// CreateSource allocates an ID and inserts src. A duplicate URL yields ErrAlreadyExists.
func (m *Mongo) CreateSource(ctx context.Context, src *model.Source) error {
	id, err := m.NextID(ctx, model.CounterIngestSources)
	if err != nil {
		return err
	}
	if src.CreatedAt.IsZero() {
		src.CreatedAt = time.Now()
	}
	doc := newSourceDoc(src)
	doc.ID = id
	if _, err := m.col(colSources).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert source: %w", err)
	}
	src.ID = id
	return nil
}

// GetSource returns a single source by its ID.
func (m *Mongo) GetSource(ctx context.Context, id int64) (*model.Source, error) {
	var doc sourceDoc
	err := m.col(colSources).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get source: %w", err)
	}
	src := doc.model()
	return &src, nil
}

// ListSources returns all sources ordered by ID.
func (m *Mongo) ListSources(ctx context.Context) ([]model.Source, error) {
	return m.findSources(ctx, bson.M{})
}

// ListDueSources returns active sources whose interval has elapsed at now.
func (m *Mongo) ListDueSources(ctx context.Context, now time.Time) ([]model.Source, error) {
	active, err := m.findSources(ctx, bson.M{"is_active": true})
	if err != nil {
		return nil, err
	}
	var due []model.Source
	for _, s := range active {
		if s.LastCheckAt == nil || !s.LastCheckAt.Add(time.Duration(s.IntervalMinutes)*time.Minute).After(now) {
			due = append(due, s)
		}
	}
	return due, nil
}

// UpdateSource persists changes to an existing source.
func (m *Mongo) UpdateSource(ctx context.Context, src *model.Source) error {
	_, err := m.col(colSources).UpdateOne(ctx, bson.M{"_id": src.ID}, bson.M{"$set": bson.M{
		"name":             src.Name,
		"url":              src.URL,
		"category":         src.Category,
		"interval_minutes": src.IntervalMinutes,
		"is_active":        src.IsActive,
		"last_check_at":    src.LastCheckAt,
	}})
	if err != nil {
		return fmt.Errorf("update source: %w", err)
	}
	return nil
}

// DeleteSource removes a source and its seen items.
func (m *Mongo) DeleteSource(ctx context.Context, id int64) error {
	res, err := m.col(colSources).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("delete source: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	if _, err := m.col(colSeen).DeleteMany(ctx, bson.M{"source_id": id}); err != nil {
		return fmt.Errorf("delete seen items: %w", err)
	}
	return nil
}

// MarkSeen records that a feed item has been processed.
func (m *Mongo) MarkSeen(ctx context.Context, sourceID int64, guid string) error {
	_, err := m.col(colSeen).UpdateOne(ctx,
		bson.M{"source_id": sourceID, "guid": guid},
		bson.M{"$setOnInsert": bson.M{"seen_at": time.Now()}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("mark seen: %w", err)
	}
	return nil
}

// IsSeen checks whether a feed item has already been processed.
func (m *Mongo) IsSeen(ctx context.Context, sourceID int64, guid string) (bool, error) {
	n, err := m.col(colSeen).CountDocuments(ctx, bson.M{"source_id": sourceID, "guid": guid}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return n > 0, nil
}

func (m *Mongo) findSources(ctx context.Context, filter bson.M) ([]model.Source, error) {
	cur, err := m.col(colSources).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find sources: %w", err)
	}
	var docs []sourceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode sources: %w", err)
	}
	out := make([]model.Source, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

// ImportUser writes u as-is, replacing any record with the same ID.
func (m *Mongo) ImportUser(ctx context.Context, u *model.User) error {
	return m.replaceByID(ctx, colUsers, u.ID, newUserDoc(u))
}

// ImportChannel writes ch with its original ID, upserting on chat ID.
func (m *Mongo) ImportChannel(ctx context.Context, ch *model.Channel) error {
	_, err := m.col(colChannels).UpdateOne(ctx,
		bson.M{"channel_id": ch.ChatID},
		bson.M{
			"$set": bson.M{
				"channel_name":     ch.Name,
				"channel_username": ch.Username,
				"channel_type":     string(ch.Type),
				"is_active":        ch.IsActive,
				"invite_link":      ch.InviteLink,
			},
			"$setOnInsert": bson.M{"_id": ch.ID, "added_date": ch.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("import channel %s: %w", ch.ChatID, err)
	}
	return nil
}

// ImportAssignment writes a, upserting on (user, channel, day).
func (m *Mongo) ImportAssignment(ctx context.Context, a *model.DailyAssignment) error {
	_, err := m.col(colAssignments).UpdateOne(ctx,
		bson.M{"user_id": a.UserID, "channel_id": a.ChannelID, "rotation_day": a.Day},
		bson.M{"$set": bson.M{
			"position":        a.Position,
			"rotation_date":   a.AssignedAt,
			"subscribed_date": a.ConfirmedAt,
			"checked_date":    a.CheckedAt,
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("import assignment: %w", err)
	}
	return nil
}

// ImportMovie writes m with its original ID.
func (m *Mongo) ImportMovie(ctx context.Context, mv *model.Movie) error {
	return m.replaceByID(ctx, colMovies, mv.ID, newMovieDoc(mv))
}

// ImportEpisode writes e with its original ID, upserting on (movie, number).
func (m *Mongo) ImportEpisode(ctx context.Context, e *model.Episode) error {
	_, err := m.col(colEpisodes).UpdateOne(ctx,
		bson.M{"movie_id": e.MovieID, "episode_number": e.Number},
		bson.M{
			"$set": bson.M{
				"episode_title":     e.Title,
				"file_id":           e.FileID,
				"file_type":         string(e.FileType),
				"source_chat_id":    e.SourceChatID,
				"source_message_id": e.SourceMessageID,
			},
			"$setOnInsert": bson.M{"_id": e.ID, "added_date": e.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("import episode: %w", err)
	}
	return nil
}

// ImportSearchStat writes s with its original ID.
func (m *Mongo) ImportSearchStat(ctx context.Context, s *model.SearchStat) error {
	return m.replaceByID(ctx, colSearches, s.ID,
		searchDoc{ID: s.ID, UserID: s.UserID, Query: s.Query, Found: s.Found, CreatedAt: s.CreatedAt})
}

// ImportViewStat writes v with its original ID.
func (m *Mongo) ImportViewStat(ctx context.Context, v *model.ViewStat) error {
	return m.replaceByID(ctx, colViews, v.ID,
		viewDoc{ID: v.ID, UserID: v.UserID, MovieID: v.MovieID, CreatedAt: v.CreatedAt})
}

// ImportPayment writes p with its original ID.
func (m *Mongo) ImportPayment(ctx context.Context, p *model.Payment) error {
	return m.replaceByID(ctx, colPayments, p.ID,
		paymentDoc{ID: p.ID, UserID: p.UserID, Amount: p.Amount, Type: p.Type, Status: string(p.Status), CreatedAt: p.CreatedAt})
}

func (m *Mongo) replaceByID(ctx context.Context, col string, id int64, doc any) error {
	_, err := m.col(col).ReplaceOne(ctx, bson.M{"_id": id}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("import %s %d: %w", col, id, err)
	}
	return nil
}
