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

const (
	colUsers       = "users"
	colChannels    = "channels"
	colAssignments = "user_subscriptions"
	colMovies      = "movies"
	colEpisodes    = "series_episodes"
	colSearches    = "search_statistics"
	colViews       = "view_statistics"
	colPayments    = "payment_transactions"
	colSettings    = "settings"
	colCounters    = "counters"
	colSources     = "ingest_sources"
	colSeen        = "seen_items"
)

// Mongo implements Storage backed by a MongoDB database.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongo connects to uri, selects database and ensures the indexes exist.
func NewMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if uri == "" {
		return nil, errors.New("MONGODB_URI is empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	m := &Mongo{client: client, db: client.Database(database)}
	if err := m.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	indexes := map[string][]mongo.IndexModel{
		colChannels: {
			{Keys: bson.D{{Key: "channel_id", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "channel_type", Value: 1}, {Key: "is_active", Value: 1}}},
		},
		colAssignments: {
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "channel_id", Value: 1}, {Key: "rotation_day", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "rotation_day", Value: 1}}},
		},
		colMovies: {
			{Keys: bson.D{{Key: "code", Value: 1}}, Options: unique},
			{Keys: bson.D{{Key: "category", Value: 1}, {Key: "is_active", Value: 1}}},
			{Keys: bson.D{{Key: "views", Value: -1}}},
			{Keys: bson.D{{Key: "source_chat_id", Value: 1}, {Key: "source_message_id", Value: 1}}},
		},
		colEpisodes: {
			{Keys: bson.D{{Key: "movie_id", Value: 1}, {Key: "episode_number", Value: 1}}, Options: unique},
		},
		colSearches: {{Keys: bson.D{{Key: "search_date", Value: -1}}}},
		colViews:    {{Keys: bson.D{{Key: "movie_id", Value: 1}, {Key: "view_date", Value: -1}}}},
		colSources:  {{Keys: bson.D{{Key: "url", Value: 1}}, Options: unique}},
		colSeen:     {{Keys: bson.D{{Key: "source_id", Value: 1}, {Key: "guid", Value: 1}}, Options: unique}},
	}
	for col, models := range indexes {
		if _, err := m.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("create %s indexes: %w", col, err)
		}
	}
	return nil
}

// Close disconnects the client.
func (m *Mongo) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *Mongo) col(name string) *mongo.Collection {
	return m.db.Collection(name)
}

// NextID atomically increments the named counter and returns the new value.
func (m *Mongo) NextID(ctx context.Context, name string) (int64, error) {
	var doc struct {
		Seq int64 `bson:"seq"`
	}
	err := m.col(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		return 0, fmt.Errorf("next id %s: %w", name, err)
	}
	return doc.Seq, nil
}

// SetCounterFloor raises the named counter to at least floor.
func (m *Mongo) SetCounterFloor(ctx context.Context, name string, floor int64) error {
	_, err := m.col(colCounters).UpdateOne(ctx,
		bson.M{"_id": name},
		bson.M{"$max": bson.M{"seq": floor}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set counter floor %s: %w", name, err)
	}
	return nil
}

// GetSetting returns the value stored under key.
func (m *Mongo) GetSetting(ctx context.Context, key string) (string, error) {
	var doc struct {
		Value string `bson:"value"`
	}
	err := m.col(colSettings).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get setting %s: %w", key, err)
	}
	return doc.Value, nil
}

// SetSetting stores value under key, replacing any previous value.
func (m *Mongo) SetSetting(ctx context.Context, key, value string) error {
	_, err := m.col(colSettings).UpdateOne(ctx,
		bson.M{"_id": key}, bson.M{"$set": bson.M{"value": value}}, options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("set setting %s: %w", key, err)
	}
	return nil
}

// EnsureSetting stores value only if key is absent.
func (m *Mongo) EnsureSetting(ctx context.Context, key, value string) error {
	_, err := m.col(colSettings).UpdateOne(ctx,
		bson.M{"_id": key}, bson.M{"$setOnInsert": bson.M{"value": value}}, options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("ensure setting %s: %w", key, err)
	}
	return nil
}

// UpsertUser inserts u if it does not exist yet.
func (m *Mongo) UpsertUser(ctx context.Context, u *model.User) error {
	if u.RegisteredAt.IsZero() {
		u.RegisteredAt = time.Now()
	}
	_, err := m.col(colUsers).UpdateOne(ctx,
		bson.M{"_id": u.ID},
		bson.M{"$setOnInsert": bson.M{
			"username":           u.Username,
			"first_name":         u.FirstName,
			"last_name":          u.LastName,
			"registration_date":  u.RegisteredAt,
			"is_premium":         false,
			"premium_until":      nil,
			"last_rotation_date": nil,
			"total_searches":     int64(0),
			"total_views":        int64(0),
		}},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}

// GetUser returns a user by Telegram ID.
func (m *Mongo) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var doc userDoc
	err := m.col(colUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user: %w", err)
	}
	return doc.model(), nil
}

// SetPremium grants premium until the given time, or revokes it when until is nil.
func (m *Mongo) SetPremium(ctx context.Context, userID int64, until *time.Time) error {
	res, err := m.col(colUsers).UpdateOne(ctx,
		bson.M{"_id": userID},
		bson.M{"$set": bson.M{"is_premium": until != nil, "premium_until": until}},
	)
	if err != nil {
		return fmt.Errorf("update premium: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) setLastRotation(ctx context.Context, userID int64, at time.Time) error {
	_, err := m.col(colUsers).UpdateOne(ctx,
		bson.M{"_id": userID}, bson.M{"$set": bson.M{"last_rotation_date": at}},
	)
	if err != nil {
		return fmt.Errorf("update last rotation: %w", err)
	}
	return nil
}

// ListUserIDs returns the IDs of every registered user.
func (m *Mongo) ListUserIDs(ctx context.Context) ([]int64, error) {
	cur, err := m.col(colUsers).Find(ctx, bson.M{},
		options.Find().SetProjection(bson.M{"_id": 1}).SetSort(bson.D{{Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	var docs []struct {
		ID int64 `bson:"_id"`
	}
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	ids := make([]int64, 0, len(docs))
	for _, d := range docs {
		ids = append(ids, d.ID)
	}
	return ids, nil
}

// CreateChannel allocates an ID and inserts ch. A duplicate chat ID yields ErrAlreadyExists.
func (m *Mongo) CreateChannel(ctx context.Context, ch *model.Channel) error {
	id, err := m.NextID(ctx, model.CounterChannels)
	if err != nil {
		return err
	}
	if ch.CreatedAt.IsZero() {
		ch.CreatedAt = time.Now()
	}
	doc := newChannelDoc(ch)
	doc.ID = id
	if _, err := m.col(colChannels).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert channel: %w", err)
	}
	ch.ID = id
	return nil
}

// GetChannel returns a channel by surrogate ID.
func (m *Mongo) GetChannel(ctx context.Context, id int64) (*model.Channel, error) {
	var doc channelDoc
	err := m.col(colChannels).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	ch := doc.model()
	return &ch, nil
}

// ListChannels returns channels ordered by ID, optionally only active ones.
func (m *Mongo) ListChannels(ctx context.Context, activeOnly bool) ([]model.Channel, error) {
	filter := bson.M{}
	if activeOnly {
		filter["is_active"] = true
	}
	cur, err := m.col(colChannels).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find channels: %w", err)
	}
	var docs []channelDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}
	out := make([]model.Channel, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

// SetChannelActive toggles a channel by chat ID.
func (m *Mongo) SetChannelActive(ctx context.Context, chatID string, active bool) error {
	res, err := m.col(colChannels).UpdateOne(ctx,
		bson.M{"channel_id": chatID}, bson.M{"$set": bson.M{"is_active": active}},
	)
	if err != nil {
		return fmt.Errorf("update channel: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteChannel removes a channel by chat ID.
func (m *Mongo) DeleteChannel(ctx context.Context, chatID string) error {
	res, err := m.col(colChannels).DeleteOne(ctx, bson.M{"channel_id": chatID})
	if err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAssignments returns the user's assignments for day ordered by position.
func (m *Mongo) ListAssignments(ctx context.Context, userID int64, day string) ([]model.DailyAssignment, error) {
	cur, err := m.col(colAssignments).Find(ctx,
		bson.M{"user_id": userID, "rotation_day": day},
		options.Find().SetSort(bson.D{{Key: "position", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("find assignments: %w", err)
	}
	var docs []assignmentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode assignments: %w", err)
	}
	out := make([]model.DailyAssignment, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

// AssignedChannelsSince returns the distinct channel IDs assigned on or after sinceDay.
func (m *Mongo) AssignedChannelsSince(ctx context.Context, userID int64, sinceDay string) ([]string, error) {
	vals, err := m.col(colAssignments).Distinct(ctx, "channel_id",
		bson.M{"user_id": userID, "rotation_day": bson.M{"$gte": sinceDay}},
	)
	if err != nil {
		return nil, fmt.Errorf("distinct channels: %w", err)
	}
	ids := make([]string, 0, len(vals))
	for _, v := range vals {
		if s, ok := v.(string); ok {
			ids = append(ids, s)
		}
	}
	return ids, nil
}

// ReplaceAssignments drops the user's assignments for day and writes the new set.
// Without a replica set there is no transaction; concurrent writers converge on the last write.
func (m *Mongo) ReplaceAssignments(ctx context.Context, userID int64, day string, channelIDs []string, at time.Time) error {
	col := m.col(colAssignments)
	if _, err := col.DeleteMany(ctx, assignmentDayFilter(userID, day)); err != nil {
		return fmt.Errorf("delete assignments: %w", err)
	}
	if writes := assignmentWrites(userID, day, channelIDs, at); len(writes) > 0 {
		if _, err := col.BulkWrite(ctx, writes); err != nil {
			return fmt.Errorf("upsert assignments: %w", err)
		}
	}
	return m.setLastRotation(ctx, userID, at)
}

// RecordCheck stamps the check time and, when subscribed, the first confirmation time.
func (m *Mongo) RecordCheck(ctx context.Context, userID int64, channelID, day string, subscribed bool, at time.Time) error {
	col := m.col(colAssignments)
	for _, u := range checkUpdates(userID, channelID, day, subscribed, at) {
		if _, err := col.UpdateOne(ctx, u.filter, u.update); err != nil {
			return fmt.Errorf("record check: %w", err)
		}
	}
	return nil
}

// HasData reports whether any user, channel or movie is stored.
func (m *Mongo) HasData(ctx context.Context) (bool, error) {
	for _, name := range []string{colUsers, colChannels, colMovies} {
		n, err := m.col(name).CountDocuments(ctx, bson.M{}, options.Count().SetLimit(1))
		if err != nil {
			return false, fmt.Errorf("count %s: %w", name, err)
		}
		if n > 0 {
			return true, nil
		}
	}
	return false, nil
}
