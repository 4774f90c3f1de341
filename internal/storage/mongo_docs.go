package storage

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"kinobot/internal/model"
)

type userDoc struct {
	ID             int64      `bson:"_id"`
	Username       string     `bson:"username"`
	FirstName      string     `bson:"first_name"`
	LastName       string     `bson:"last_name"`
	RegisteredAt   time.Time  `bson:"registration_date"`
	IsPremium      bool       `bson:"is_premium"`
	PremiumUntil   *time.Time `bson:"premium_until"`
	LastRotationAt *time.Time `bson:"last_rotation_date"`
	TotalSearches  int64      `bson:"total_searches"`
	TotalViews     int64      `bson:"total_views"`
}

func newUserDoc(u *model.User) userDoc {
	return userDoc{
		ID: u.ID, Username: u.Username, FirstName: u.FirstName, LastName: u.LastName,
		RegisteredAt: u.RegisteredAt, IsPremium: u.IsPremium, PremiumUntil: u.PremiumUntil,
		LastRotationAt: u.LastRotationAt, TotalSearches: u.TotalSearches, TotalViews: u.TotalViews,
	}
}

func (d userDoc) model() *model.User {
	return &model.User{
		ID: d.ID, Username: d.Username, FirstName: d.FirstName, LastName: d.LastName,
		RegisteredAt: d.RegisteredAt, IsPremium: d.IsPremium, PremiumUntil: d.PremiumUntil,
		LastRotationAt: d.LastRotationAt, TotalSearches: d.TotalSearches, TotalViews: d.TotalViews,
	}
}

type channelDoc struct {
	ID         int64     `bson:"_id"`
	ChatID     string    `bson:"channel_id"`
	Name       string    `bson:"channel_name"`
	Username   string    `bson:"channel_username"`
	Type       string    `bson:"channel_type"`
	IsActive   bool      `bson:"is_active"`
	InviteLink string    `bson:"invite_link"`
	CreatedAt  time.Time `bson:"added_date"`
}

func newChannelDoc(ch *model.Channel) channelDoc {
	return channelDoc{
		ID: ch.ID, ChatID: ch.ChatID, Name: ch.Name, Username: ch.Username, Type: string(ch.Type),
		IsActive: ch.IsActive, InviteLink: ch.InviteLink, CreatedAt: ch.CreatedAt,
	}
}

func (d channelDoc) model() model.Channel {
	return model.Channel{
		ID: d.ID, ChatID: d.ChatID, Name: d.Name, Username: d.Username, Type: model.ChannelType(d.Type),
		IsActive: d.IsActive, InviteLink: d.InviteLink, CreatedAt: d.CreatedAt,
	}
}

type assignmentDoc struct {
	UserID      int64      `bson:"user_id"`
	ChannelID   string     `bson:"channel_id"`
	Day         string     `bson:"rotation_day"`
	Position    int        `bson:"position"`
	AssignedAt  time.Time  `bson:"rotation_date"`
	ConfirmedAt *time.Time `bson:"subscribed_date"`
	CheckedAt   *time.Time `bson:"checked_date"`
}

func (d assignmentDoc) model() model.DailyAssignment {
	return model.DailyAssignment{
		UserID: d.UserID, ChannelID: d.ChannelID, Day: d.Day, Position: d.Position,
		AssignedAt: d.AssignedAt, ConfirmedAt: d.ConfirmedAt, CheckedAt: d.CheckedAt,
	}
}

type movieDoc struct {
	ID              int64     `bson:"_id"`
	Title           string    `bson:"title"`
	Code            string    `bson:"code"`
	FileID          string    `bson:"file_id"`
	FileType        string    `bson:"file_type"`
	MediaType       string    `bson:"media_type"`
	Category        string    `bson:"category"`
	Description     string    `bson:"description"`
	Year            int       `bson:"year"`
	Rating          float64   `bson:"rating"`
	Views           int64     `bson:"views"`
	CreatedAt       time.Time `bson:"added_date"`
	IsActive        bool      `bson:"is_active"`
	SourceChatID    string    `bson:"source_chat_id"`
	SourceMessageID int64     `bson:"source_message_id"`
}

func newMovieDoc(m *model.Movie) movieDoc {
	return movieDoc{
		ID: m.ID, Title: m.Title, Code: m.Code, FileID: m.FileID, FileType: string(m.FileType),
		MediaType: string(m.MediaType), Category: m.Category, Description: m.Description,
		Year: m.Year, Rating: m.Rating, Views: m.Views, CreatedAt: m.CreatedAt, IsActive: m.IsActive,
		SourceChatID: m.SourceChatID, SourceMessageID: m.SourceMessageID,
	}
}

func (d movieDoc) model() model.Movie {
	return model.Movie{
		ID: d.ID, Title: d.Title, Code: d.Code, FileID: d.FileID, FileType: model.FileType(d.FileType),
		MediaType: model.MediaType(d.MediaType), Category: d.Category, Description: d.Description,
		Year: d.Year, Rating: d.Rating, Views: d.Views, CreatedAt: d.CreatedAt, IsActive: d.IsActive,
		SourceChatID: d.SourceChatID, SourceMessageID: d.SourceMessageID,
	}
}

type episodeDoc struct {
	ID              int64     `bson:"_id"`
	MovieID         int64     `bson:"movie_id"`
	Number          int       `bson:"episode_number"`
	Title           string    `bson:"episode_title"`
	FileID          string    `bson:"file_id"`
	FileType        string    `bson:"file_type"`
	CreatedAt       time.Time `bson:"added_date"`
	SourceChatID    string    `bson:"source_chat_id"`
	SourceMessageID int64     `bson:"source_message_id"`
}

func newEpisodeDoc(e *model.Episode) episodeDoc {
	return episodeDoc{
		ID: e.ID, MovieID: e.MovieID, Number: e.Number, Title: e.Title, FileID: e.FileID,
		FileType: string(e.FileType), CreatedAt: e.CreatedAt,
		SourceChatID: e.SourceChatID, SourceMessageID: e.SourceMessageID,
	}
}

func (d episodeDoc) model() model.Episode {
	return model.Episode{
		ID: d.ID, MovieID: d.MovieID, Number: d.Number, Title: d.Title, FileID: d.FileID,
		FileType: model.FileType(d.FileType), CreatedAt: d.CreatedAt,
		SourceChatID: d.SourceChatID, SourceMessageID: d.SourceMessageID,
	}
}

type searchDoc struct {
	ID        int64     `bson:"_id"`
	UserID    int64     `bson:"user_id"`
	Query     string    `bson:"query"`
	Found     bool      `bson:"found"`
	CreatedAt time.Time `bson:"search_date"`
}

type viewDoc struct {
	ID        int64     `bson:"_id"`
	UserID    int64     `bson:"user_id"`
	MovieID   int64     `bson:"movie_id"`
	CreatedAt time.Time `bson:"view_date"`
}

type paymentDoc struct {
	ID        int64     `bson:"_id"`
	UserID    int64     `bson:"user_id"`
	Amount    int64     `bson:"amount"`
	Type      string    `bson:"payment_type"`
	Status    string    `bson:"status"`
	CreatedAt time.Time `bson:"transaction_date"`
}

type sourceDoc struct {
	ID              int64      `bson:"_id"`
	Name            string     `bson:"name"`
	URL             string     `bson:"url"`
	Category        string     `bson:"category"`
	IntervalMinutes int        `bson:"interval_minutes"`
	IsActive        bool       `bson:"is_active"`
	LastCheckAt     *time.Time `bson:"last_check_at"`
	CreatedAt       time.Time  `bson:"created_at"`
}

func newSourceDoc(s *model.Source) sourceDoc {
	return sourceDoc{
		ID: s.ID, Name: s.Name, URL: s.URL, Category: s.Category, IntervalMinutes: s.IntervalMinutes,
		IsActive: s.IsActive, LastCheckAt: s.LastCheckAt, CreatedAt: s.CreatedAt,
	}
}

func (d sourceDoc) model() model.Source {
	return model.Source{
		ID: d.ID, Name: d.Name, URL: d.URL, Category: d.Category, IntervalMinutes: d.IntervalMinutes,
		IsActive: d.IsActive, LastCheckAt: d.LastCheckAt, CreatedAt: d.CreatedAt,
	}
}

func assignmentDayFilter(userID int64, day string) bson.M {
	return bson.M{"user_id": userID, "rotation_day": day}
}

func assignmentKey(userID int64, channelID, day string) bson.M {
	return bson.M{"user_id": userID, "channel_id": channelID, "rotation_day": day}
}

// assignmentWrites upserts one row per channel, keeping the given order as position
// and clearing any earlier check state.
func assignmentWrites(userID int64, day string, channelIDs []string, at time.Time) []mongo.WriteModel {
	writes := make([]mongo.WriteModel, 0, len(channelIDs))
	for i, id := range channelIDs {
		writes = append(writes, mongo.NewUpdateOneModel().
			SetFilter(assignmentKey(userID, id, day)).
			SetUpdate(bson.M{"$set": bson.M{
				"position":        i,
				"rotation_date":   at,
				"subscribed_date": nil,
				"checked_date":    nil,
			}}).
			SetUpsert(true))
	}
	return writes
}

type keyedUpdate struct {
	filter bson.M
	update bson.M
}

// checkUpdates stamps checked_date and, when subscribed, sets subscribed_date only on a
// row that has not been confirmed yet.
func checkUpdates(userID int64, channelID, day string, subscribed bool, at time.Time) []keyedUpdate {
	ups := []keyedUpdate{{
		filter: assignmentKey(userID, channelID, day),
		update: bson.M{"$set": bson.M{"checked_date": at}},
	}}
	if subscribed {
		confirm := assignmentKey(userID, channelID, day)
		confirm["subscribed_date"] = nil
		ups = append(ups, keyedUpdate{filter: confirm, update: bson.M{"$set": bson.M{"subscribed_date": at}}})
	}
	return ups
}
