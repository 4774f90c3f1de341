// Package model defines the domain types used across the application.
package model

import (
	"strings"
	"time"
)

// DayLayout is the format of a rotation day key.
const DayLayout = "2006-01-02"

// Day returns the rotation day key for t in t's own location.
func Day(t time.Time) string {
	return t.Format(DayLayout)
}

// User is a person who has interacted with the bot.
type User struct {
	ID             int64
	Username       string
	FirstName      string
	LastName       string
	RegisteredAt   time.Time
	IsPremium      bool
	PremiumUntil   *time.Time
	LastRotationAt *time.Time
	TotalSearches  int64
	TotalViews     int64
}

// ChannelType distinguishes rotating promotional channels from stable ones.
type ChannelType string

// Supported channel types.
const (
	ChannelRotating ChannelType = "zayafka"
	ChannelStable   ChannelType = "public"
)

// Valid reports whether t is one of the known channel types.
func (t ChannelType) Valid() bool {
	return t == ChannelRotating || t == ChannelStable
}

// Channel is a mandatory-subscription channel managed by admins.
type Channel struct {
	ID         int64
	ChatID     string
	Name       string
	Username   string
	Type       ChannelType
	IsActive   bool
	InviteLink string
	CreatedAt  time.Time
}

// URL returns a link users can open to join the channel, or "" when none can be resolved.
func (c *Channel) URL() string {
	switch {
	case c.InviteLink != "":
		return c.InviteLink
	case c.Username != "":
		return "https://t.me/" + strings.TrimPrefix(c.Username, "@")
	case strings.HasPrefix(c.ChatID, "@"):
		return "https://t.me/" + strings.TrimPrefix(c.ChatID, "@")
	}
	return ""
}

// DailyAssignment records that a channel was assigned to a user on a rotation day.
type DailyAssignment struct {
	UserID      int64
	ChannelID   string
	Day         string
	Position    int
	AssignedAt  time.Time
	ConfirmedAt *time.Time
	CheckedAt   *time.Time
}

// MemberStatus is a user's membership status in a channel.
type MemberStatus string

// Membership statuses reported by the platform.
const (
	StatusMember        MemberStatus = "member"
	StatusAdministrator MemberStatus = "administrator"
	StatusCreator       MemberStatus = "creator"
	StatusRestricted    MemberStatus = "restricted"
	StatusLeft          MemberStatus = "left"
	StatusKicked        MemberStatus = "kicked"
	StatusUnknown       MemberStatus = "unknown"
)

// IsMember reports whether the status counts as a subscription.
func (s MemberStatus) IsMember() bool {
	switch s {
	case StatusMember, StatusAdministrator, StatusCreator:
		return true
	}
	return false
}

// MediaType distinguishes single movies from series.
type MediaType string

// Supported media types.
const (
	MediaMovie  MediaType = "movie"
	MediaSeries MediaType = "series"
)

// FileType describes how a stored file is delivered.
type FileType string

// Supported file types. FileChannel means the file is copied from a source channel post.
const (
	FileVideo     FileType = "video"
	FileDocument  FileType = "document"
	FileAnimation FileType = "animation"
	FilePhoto     FileType = "photo"
	FileChannel   FileType = "channel"
	FileSeries    FileType = "series"
)

// Catalog categories.
const (
	CategoryKino     = "kino"
	CategoryAnime    = "anime"
	CategoryDorama   = "dorama"
	CategoryMultfilm = "multfilm"
)

// Categories lists the catalog categories in display order.
var Categories = []string{CategoryKino, CategoryAnime, CategoryDorama, CategoryMultfilm}

// Movie is a catalog entry: a single movie or the header record of a series.
type Movie struct {
	ID              int64
	Title           string
	Code            string
	FileID          string
	FileType        FileType
	MediaType       MediaType
	Category        string
	Description     string
	Year            int
	Rating          float64
	Views           int64
	CreatedAt       time.Time
	IsActive        bool
	SourceChatID    string
	SourceMessageID int64
}

// IsSeries reports whether the movie is a series header.
func (m *Movie) IsSeries() bool {
	return m.MediaType == MediaSeries
}

// Episode is a single episode of a series.
type Episode struct {
	ID              int64
	MovieID         int64
	Number          int
	Title           string
	FileID          string
	FileType        FileType
	CreatedAt       time.Time
	SourceChatID    string
	SourceMessageID int64
}

// PaymentStatus is the review state of a payment.
type PaymentStatus string

// Payment statuses.
const (
	PaymentPending  PaymentStatus = "pending"
	PaymentApproved PaymentStatus = "approved"
	PaymentDenied   PaymentStatus = "denied"
)

// Payment is a premium purchase awaiting or past admin review.
type Payment struct {
	ID        int64
	UserID    int64
	Amount    int64
	Type      string
	Status    PaymentStatus
	CreatedAt time.Time
}

// SearchStat records a single search query.
type SearchStat struct {
	ID        int64
	UserID    int64
	Query     string
	Found     bool
	CreatedAt time.Time
}

// ViewStat records a single view of a movie.
type ViewStat struct {
	ID        int64
	UserID    int64
	MovieID   int64
	CreatedAt time.Time
}

// SearchCount is an aggregated search query count.
type SearchCount struct {
	Query string
	Count int64
}

// TrendingMovie is a movie with its recent view count.
type TrendingMovie struct {
	Movie       Movie
	RecentViews int64
}

// Statistics is the admin dashboard summary.
type Statistics struct {
	TotalUsers     int64
	PremiumUsers   int64
	TodayActive    int64
	TotalMovies    int64
	TotalSeries    int64
	TotalSearches  int64
	TotalViews     int64
	ActiveChannels int64
}

// Source is an RSS/Atom feed that catalog posts are ingested from.
type Source struct {
	ID              int64
	Name            string
	URL             string
	Category        string
	IntervalMinutes int
	IsActive        bool
	LastCheckAt     *time.Time
	CreatedAt       time.Time
}

// Setting keys.
const (
	SettingPremiumPrice = "premium_price_monthly"
	SettingCardNumber   = "card_number"
	SettingCardOwner    = "card_owner"
)

// Counter names used for surrogate IDs.
const (
	CounterChannels      = "channels"
	CounterMovies        = "movies"
	CounterEpisodes      = "series_episodes"
	CounterPayments      = "payment_transactions"
	CounterSearchStats   = "search_statistics"
	CounterViewStats     = "view_statistics"
	CounterIngestSources = "ingest_sources"
)
