package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"kinobot/internal/model"
)

var byViews = bson.D{{Key: "views", Value: -1}, {Key: "_id", Value: 1}}

// CreateMovie allocates an ID and inserts m. A duplicate code yields ErrAlreadyExists.
func (m *Mongo) CreateMovie(ctx context.Context, mv *model.Movie) error {
	id, err := m.NextID(ctx, model.CounterMovies)
	if err != nil {
		return err
	}
	if mv.CreatedAt.IsZero() {
		mv.CreatedAt = time.Now()
	}
	doc := newMovieDoc(mv)
	doc.ID = id
	if _, err := m.col(colMovies).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert movie: %w", err)
	}
	mv.ID = id
	return nil
}

// GetMovie returns a movie by ID regardless of its active flag.
func (m *Mongo) GetMovie(ctx context.Context, id int64) (*model.Movie, error) {
	return m.findMovie(ctx, bson.M{"_id": id})
}

// GetMovieByCode returns an active movie by its share code.
func (m *Mongo) GetMovieByCode(ctx context.Context, code string) (*model.Movie, error) {
	return m.findMovie(ctx, bson.M{"code": code, "is_active": true})
}

// CodeExists reports whether any movie uses code.
func (m *Mongo) CodeExists(ctx context.Context, code string) (bool, error) {
	n, err := m.col(colMovies).CountDocuments(ctx, bson.M{"code": code}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check code: %w", err)
	}
	return n > 0, nil
}

// FindMovies matches active titles case-insensitively, most viewed first.
func (m *Mongo) FindMovies(ctx context.Context, title string, exact bool, limit int) ([]model.Movie, error) {
	pattern := regexp.QuoteMeta(title)
	if exact {
		pattern = "^" + pattern + "$"
	}
	return m.findMovies(ctx,
		bson.M{"is_active": true, "title": primitive.Regex{Pattern: pattern, Options: "i"}},
		options.Find().SetSort(byViews).SetLimit(int64(limit)),
	)
}

// FindSeriesByTitle returns the series header whose title matches case-insensitively.
func (m *Mongo) FindSeriesByTitle(ctx context.Context, title string) (*model.Movie, error) {
	pattern := "^" + regexp.QuoteMeta(title) + "$"
	return m.findMovie(ctx, bson.M{
		"media_type": string(model.MediaSeries),
		"is_active":  true,
		"title":      primitive.Regex{Pattern: pattern, Options: "i"},
	}, options.FindOne().SetSort(bson.D{{Key: "_id", Value: 1}}))
}

// GetMovieBySource returns the movie ingested from the given post.
func (m *Mongo) GetMovieBySource(ctx context.Context, chatID string, messageID int64) (*model.Movie, error) {
	return m.findMovie(ctx, bson.M{"source_chat_id": chatID, "source_message_id": messageID})
}

// ListMoviesByCategory returns active movies of a category, most viewed first.
func (m *Mongo) ListMoviesByCategory(ctx context.Context, category string, limit int) ([]model.Movie, error) {
	return m.findMovies(ctx, bson.M{"is_active": true, "category": category},
		options.Find().SetSort(byViews).SetLimit(int64(limit)))
}

// ListPopularMovies returns the most viewed active movies.
func (m *Mongo) ListPopularMovies(ctx context.Context, limit int) ([]model.Movie, error) {
	return m.findMovies(ctx, bson.M{"is_active": true}, options.Find().SetSort(byViews).SetLimit(int64(limit)))
}

// IncrementMovieViews bumps the movie's view counter.
func (m *Mongo) IncrementMovieViews(ctx context.Context, id int64) error {
	res, err := m.col(colMovies).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$inc": bson.M{"views": int64(1)}})
	if err != nil {
		return fmt.Errorf("increment views: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// DeactivateMovieByCode hides an active movie from the catalog and returns it.
func (m *Mongo) DeactivateMovieByCode(ctx context.Context, code string) (*model.Movie, error) {
	var doc movieDoc
	err := m.col(colMovies).FindOneAndUpdate(ctx,
		bson.M{"code": code, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("deactivate movie: %w", err)
	}
	mv := doc.model()
	return &mv, nil
}

// TrendingMovies ranks active movies by views recorded since the given time.
func (m *Mongo) TrendingMovies(ctx context.Context, since time.Time, limit int) ([]model.TrendingMovie, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"view_date": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{"_id": "$movie_id", "count": bson.M{"$sum": 1}}}},
		{{Key: "$lookup", Value: bson.M{"from": colMovies, "localField": "_id", "foreignField": "_id", "as": "movie"}}},
		{{Key: "$unwind", Value: "$movie"}},
		{{Key: "$match", Value: bson.M{"movie.is_active": true}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: int64(limit)}},
	}
	cur, err := m.col(colViews).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate trending: %w", err)
	}
	var rows []struct {
		Count int64    `bson:"count"`
		Movie movieDoc `bson:"movie"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode trending: %w", err)
	}
	out := make([]model.TrendingMovie, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.TrendingMovie{Movie: r.Movie.model(), RecentViews: r.Count})
	}
	return out, nil
}

// CreateEpisode allocates an ID and inserts e. A duplicate episode number yields ErrAlreadyExists.
func (m *Mongo) CreateEpisode(ctx context.Context, e *model.Episode) error {
	id, err := m.NextID(ctx, model.CounterEpisodes)
	if err != nil {
		return err
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	doc := newEpisodeDoc(e)
	doc.ID = id
	if _, err := m.col(colEpisodes).InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyExists
		}
		return fmt.Errorf("insert episode: %w", err)
	}
	e.ID = id
	return nil
}

// GetEpisode returns an episode of a series by number.
func (m *Mongo) GetEpisode(ctx context.Context, movieID int64, number int) (*model.Episode, error) {
	return m.findEpisode(ctx, bson.M{"movie_id": movieID, "episode_number": number})
}

// GetEpisodeBySource returns the episode ingested from the given post.
func (m *Mongo) GetEpisodeBySource(ctx context.Context, chatID string, messageID int64) (*model.Episode, error) {
	return m.findEpisode(ctx, bson.M{"source_chat_id": chatID, "source_message_id": messageID})
}

// ListEpisodes returns a series' episodes ordered by number.
func (m *Mongo) ListEpisodes(ctx context.Context, movieID int64) ([]model.Episode, error) {
	cur, err := m.col(colEpisodes).Find(ctx, bson.M{"movie_id": movieID},
		options.Find().SetSort(bson.D{{Key: "episode_number", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find episodes: %w", err)
	}
	var docs []episodeDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode episodes: %w", err)
	}
	out := make([]model.Episode, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

// DeleteEpisodes removes every episode of a series.
func (m *Mongo) DeleteEpisodes(ctx context.Context, movieID int64) (int64, error) {
	res, err := m.col(colEpisodes).DeleteMany(ctx, bson.M{"movie_id": movieID})
	if err != nil {
		return 0, fmt.Errorf("delete episodes: %w", err)
	}
	return res.DeletedCount, nil
}

// AddSearchStat records a search and bumps the user's search counter.
func (m *Mongo) AddSearchStat(ctx context.Context, s *model.SearchStat) error {
	id, err := m.NextID(ctx, model.CounterSearchStats)
	if err != nil {
		return err
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now()
	}
	doc := searchDoc{ID: id, UserID: s.UserID, Query: s.Query, Found: s.Found, CreatedAt: s.CreatedAt}
	if _, err := m.col(colSearches).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert search stat: %w", err)
	}
	if _, err := m.col(colUsers).UpdateOne(ctx,
		bson.M{"_id": s.UserID}, bson.M{"$inc": bson.M{"total_searches": int64(1)}},
	); err != nil {
		return fmt.Errorf("bump user searches: %w", err)
	}
	s.ID = id
	return nil
}

// AddViewStat records a view and bumps the user's view counter.
func (m *Mongo) AddViewStat(ctx context.Context, v *model.ViewStat) error {
	id, err := m.NextID(ctx, model.CounterViewStats)
	if err != nil {
		return err
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now()
	}
	doc := viewDoc{ID: id, UserID: v.UserID, MovieID: v.MovieID, CreatedAt: v.CreatedAt}
	if _, err := m.col(colViews).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert view stat: %w", err)
	}
	if _, err := m.col(colUsers).UpdateOne(ctx,
		bson.M{"_id": v.UserID}, bson.M{"$inc": bson.M{"total_views": int64(1)}},
	); err != nil {
		return fmt.Errorf("bump user views: %w", err)
	}
	v.ID = id
	return nil
}

// TopSearches returns the most frequent queries since the given time.
func (m *Mongo) TopSearches(ctx context.Context, since time.Time, limit int) ([]model.SearchCount, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"search_date": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{"_id": "$query", "count": bson.M{"$sum": 1}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
		{{Key: "$limit", Value: int64(limit)}},
	}
	cur, err := m.col(colSearches).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate searches: %w", err)
	}
	var rows []struct {
		Query string `bson:"_id"`
		Count int64  `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("decode searches: %w", err)
	}
	out := make([]model.SearchCount, 0, len(rows))
	for _, r := range rows {
		out = append(out, model.SearchCount{Query: r.Query, Count: r.Count})
	}
	return out, nil
}

// Statistics builds the admin dashboard summary.
func (m *Mongo) Statistics(ctx context.Context, now time.Time) (*model.Statistics, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	type count struct {
		dst    *int64
		col    string
		filter bson.M
	}
	var st model.Statistics
	counts := []count{
		{&st.TotalUsers, colUsers, bson.M{}},
		{&st.PremiumUsers, colUsers, bson.M{"is_premium": true, "premium_until": bson.M{"$gt": now}}},
		{&st.TotalMovies, colMovies, bson.M{"is_active": true, "media_type": string(model.MediaMovie)}},
		{&st.TotalSeries, colMovies, bson.M{"is_active": true, "media_type": string(model.MediaSeries)}},
		{&st.TotalSearches, colSearches, bson.M{}},
		{&st.TotalViews, colViews, bson.M{}},
		{&st.ActiveChannels, colChannels, bson.M{"is_active": true}},
	}
	for _, c := range counts {
		n, err := m.col(c.col).CountDocuments(ctx, c.filter)
		if err != nil {
			return nil, fmt.Errorf("count %s: %w", c.col, err)
		}
		*c.dst = n
	}

	active, err := m.col(colSearches).Distinct(ctx, "user_id", bson.M{"search_date": bson.M{"$gte": dayStart}})
	if err != nil {
		return nil, fmt.Errorf("distinct searchers: %w", err)
	}
	st.TodayActive = int64(len(active))
	return &st, nil
}

// CreatePayment allocates an ID and inserts p.
func (m *Mongo) CreatePayment(ctx context.Context, p *model.Payment) error {
	id, err := m.NextID(ctx, model.CounterPayments)
	if err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	if p.Status == "" {
		p.Status = model.PaymentPending
	}
	doc := paymentDoc{ID: id, UserID: p.UserID, Amount: p.Amount, Type: p.Type, Status: string(p.Status), CreatedAt: p.CreatedAt}
	if _, err := m.col(colPayments).InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert payment: %w", err)
	}
	p.ID = id
	return nil
}

// GetPayment returns a payment by ID.
func (m *Mongo) GetPayment(ctx context.Context, id int64) (*model.Payment, error) {
	var doc paymentDoc
	err := m.col(colPayments).FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get payment: %w", err)
	}
	return &model.Payment{
		ID: doc.ID, UserID: doc.UserID, Amount: doc.Amount, Type: doc.Type,
		Status: model.PaymentStatus(doc.Status), CreatedAt: doc.CreatedAt,
	}, nil
}

// UpdatePaymentStatus sets the review state of a payment.
func (m *Mongo) UpdatePaymentStatus(ctx context.Context, id int64, status model.PaymentStatus) error {
	res, err := m.col(colPayments).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"status": string(status)}})
	if err != nil {
		return fmt.Errorf("update payment: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) findMovie(ctx context.Context, filter bson.M, opts ...*options.FindOneOptions) (*model.Movie, error) {
	var doc movieDoc
	err := m.col(colMovies).FindOne(ctx, filter, opts...).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find movie: %w", err)
	}
	mv := doc.model()
	return &mv, nil
}

func (m *Mongo) findMovies(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]model.Movie, error) {
	cur, err := m.col(colMovies).Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("find movies: %w", err)
	}
	var docs []movieDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode movies: %w", err)
	}
	out := make([]model.Movie, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.model())
	}
	return out, nil
}

func (m *Mongo) findEpisode(ctx context.Context, filter bson.M) (*model.Episode, error) {
	var doc episodeDoc
	err := m.col(colEpisodes).FindOne(ctx, filter).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find episode: %w", err)
	}
	e := doc.model()
	return &e, nil
}
