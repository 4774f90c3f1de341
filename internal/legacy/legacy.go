// Package legacy copies the data of the previous bot's SQLite database into the current store.
package legacy

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"kinobot/internal/model"
	"kinobot/internal/storage"
)

// Target receives the imported records.
type Target interface {
	storage.Importer
	SetSetting(ctx context.Context, key, value string) error
	SetCounterFloor(ctx context.Context, name string, floor int64) error
}

// Report lists how many rows of each legacy table were imported.
type Report struct {
	Skipped bool
	Counts  map[string]int
}

// Open opens the legacy database file. A missing file is an error.
func Open(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("legacy database: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open legacy database: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// Import copies every known legacy table into target, preserving surrogate IDs, then
// raises each ID counter to the largest imported ID. When target already holds users,
// channels or movies the import is skipped unless force is set. Rows are read by column
// name, so legacy tables with missing or extra columns are tolerated.
func Import(ctx context.Context, legacy *sql.DB, target Target, force bool, log *slog.Logger) (Report, error) {
	if !force {
		has, err := target.HasData(ctx)
		if err != nil {
			return Report{}, err
		}
		if has {
			log.Info("target store already has data, legacy import skipped")
			return Report{Skipped: true}, nil
		}
	}

	tables, err := tableNames(ctx, legacy)
	if err != nil {
		return Report{}, err
	}

	im := &importer{legacy: legacy, target: target, tables: tables, maxIDs: make(map[string]int64)}
	rep := Report{Counts: make(map[string]int)}
	steps := []struct {
		table string
		fn    func(context.Context, record) (bool, error)
	}{
		{"users", im.user},
		{"channels", im.channel},
		{"user_subscriptions", im.assignment},
		{"movies", im.movie},
		{"series_episodes", im.episode},
		{"search_statistics", im.searchStat},
		{"view_statistics", im.viewStat},
		{"payment_transactions", im.payment},
		{"settings", im.setting},
	}
	for _, st := range steps {
		n, err := im.each(ctx, st.table, st.fn)
		if err != nil {
			return rep, fmt.Errorf("import %s: %w", st.table, err)
		}
		rep.Counts[st.table] = n
	}

	for counter, max := range im.maxIDs {
		if err := target.SetCounterFloor(ctx, counter, max); err != nil {
			return rep, fmt.Errorf("raise counter %s: %w", counter, err)
		}
	}

	log.Info("legacy import finished", "counts", rep.Counts)
	return rep, nil
}

type importer struct {
	legacy *sql.DB
	target Target
	tables map[string]bool
	maxIDs map[string]int64
	// positions numbers assignments per user and day in legacy row order.
	positions map[string]int
}

func (im *importer) track(counter string, id int64) {
	if id > im.maxIDs[counter] {
		im.maxIDs[counter] = id
	}
}

func (im *importer) each(ctx context.Context, table string, fn func(context.Context, record) (bool, error)) (int, error) {
	if !im.tables[table] {
		return 0, nil
	}
	order := "rowid"
	if table == "settings" {
		order = "key"
	}
	rows, err := im.legacy.QueryContext(ctx, "SELECT * FROM "+table+" ORDER BY "+order)
	if err != nil {
		return 0, err
	}
	defer func() { _ = rows.Close() }()

	cols, err := rows.Columns()
	if err != nil {
		return 0, err
	}
	n := 0
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return n, err
		}
		r := make(record, len(cols))
		for i, c := range cols {
			r[strings.ToLower(c)] = vals[i]
		}
		ok, err := fn(ctx, r)
		if err != nil {
			return n, err
		}
		if ok {
			n++
		}
	}
	return n, rows.Err()
}

func (im *importer) user(ctx context.Context, r record) (bool, error) {
	id := r.int("user_id")
	if id == 0 {
		return false, nil
	}
	u := &model.User{
		ID:             id,
		Username:       r.str("username"),
		FirstName:      r.str("first_name"),
		LastName:       r.str("last_name"),
		RegisteredAt:   r.time("registration_date"),
		IsPremium:      r.int("is_premium") != 0,
		PremiumUntil:   r.timePtr("premium_until"),
		LastRotationAt: r.timePtr("last_rotation_date"),
		TotalSearches:  r.int("total_searches"),
		TotalViews:     r.int("total_views"),
	}
	return true, im.target.ImportUser(ctx, u)
}

func (im *importer) channel(ctx context.Context, r record) (bool, error) {
	chatID := r.str("channel_id")
	if chatID == "" {
		return false, nil
	}
	ch := &model.Channel{
		ID:         r.int("id"),
		ChatID:     chatID,
		Name:       r.str("channel_name"),
		Username:   r.str("channel_username"),
		Type:       model.ChannelType(r.str("channel_type")),
		IsActive:   r.int("is_active") != 0,
		InviteLink: r.str("invite_link"),
		CreatedAt:  r.time("added_date"),
	}
	if !ch.Type.Valid() {
		ch.Type = model.ChannelStable
	}
	im.track(model.CounterChannels, ch.ID)
	return true, im.target.ImportChannel(ctx, ch)
}

func (im *importer) assignment(ctx context.Context, r record) (bool, error) {
	rotated := r.str("rotation_date")
	day := dayOf(rotated)
	if day == "" {
		day = r.str("rotation_day")
	}
	userID, chatID := r.int("user_id"), r.str("channel_id")
	if day == "" || userID == 0 || chatID == "" {
		return false, nil
	}
	if im.positions == nil {
		im.positions = make(map[string]int)
	}
	key := strconv.FormatInt(userID, 10) + "|" + day
	pos := im.positions[key]
	im.positions[key] = pos + 1

	a := &model.DailyAssignment{
		UserID:     userID,
		ChannelID:  chatID,
		Day:        day,
		Position:   pos,
		AssignedAt: r.time("rotation_date"),
	}
	if a.AssignedAt.IsZero() {
		a.AssignedAt = r.time("subscribed_date")
	}
	return true, im.target.ImportAssignment(ctx, a)
}

func (im *importer) movie(ctx context.Context, r record) (bool, error) {
	id := r.int("id")
	if id == 0 || r.str("code") == "" {
		return false, nil
	}
	m := &model.Movie{
		ID:              id,
		Title:           r.str("title"),
		Code:            r.str("code"),
		FileID:          r.str("file_id"),
		FileType:        model.FileType(r.str("file_type")),
		MediaType:       model.MediaType(r.str("media_type")),
		Category:        r.str("category"),
		Description:     r.str("description"),
		Year:            int(r.int("year")),
		Rating:          r.float("rating"),
		Views:           r.int("views"),
		CreatedAt:       r.time("added_date"),
		IsActive:        r.int("is_active") != 0,
		SourceChatID:    r.str("source_chat_id"),
		SourceMessageID: r.int("source_message_id"),
	}
	if m.MediaType == "" {
		m.MediaType = model.MediaMovie
	}
	im.track(model.CounterMovies, id)
	return true, im.target.ImportMovie(ctx, m)
}

func (im *importer) episode(ctx context.Context, r record) (bool, error) {
	id := r.int("id")
	if id == 0 {
		return false, nil
	}
	e := &model.Episode{
		ID:              id,
		MovieID:         r.int("movie_id"),
		Number:          int(r.int("episode_number")),
		Title:           r.str("episode_title"),
		FileID:          r.str("file_id"),
		FileType:        model.FileType(r.str("file_type")),
		CreatedAt:       r.time("added_date"),
		SourceChatID:    r.str("source_chat_id"),
		SourceMessageID: r.int("source_message_id"),
	}
	im.track(model.CounterEpisodes, id)
	return true, im.target.ImportEpisode(ctx, e)
}

func (im *importer) searchStat(ctx context.Context, r record) (bool, error) {
	id := r.int("id")
	if id == 0 {
		return false, nil
	}
	s := &model.SearchStat{
		ID:        id,
		UserID:    r.int("user_id"),
		Query:     r.str("query"),
		Found:     r.int("found") != 0,
		CreatedAt: r.time("search_date"),
	}
	im.track(model.CounterSearchStats, id)
	return true, im.target.ImportSearchStat(ctx, s)
}

func (im *importer) viewStat(ctx context.Context, r record) (bool, error) {
	id := r.int("id")
	if id == 0 {
		return false, nil
	}
	v := &model.ViewStat{
		ID:        id,
		UserID:    r.int("user_id"),
		MovieID:   r.int("movie_id"),
		CreatedAt: r.time("view_date"),
	}
	im.track(model.CounterViewStats, id)
	return true, im.target.ImportViewStat(ctx, v)
}

func (im *importer) payment(ctx context.Context, r record) (bool, error) {
	id := r.int("id")
	if id == 0 {
		return false, nil
	}
	p := &model.Payment{
		ID:        id,
		UserID:    r.int("user_id"),
		Amount:    r.int("amount"),
		Type:      r.str("payment_type"),
		Status:    model.PaymentStatus(r.str("status")),
		CreatedAt: r.time("transaction_date"),
	}
	if p.Status == "" {
		p.Status = model.PaymentPending
	}
	im.track(model.CounterPayments, id)
	return true, im.target.ImportPayment(ctx, p)
}

func (im *importer) setting(ctx context.Context, r record) (bool, error) {
	key := r.str("key")
	if key == "" {
		return false, nil
	}
	return true, im.target.SetSetting(ctx, key, r.str("value"))
}

func tableNames(ctx context.Context, db *sql.DB) (map[string]bool, error) {
	rows, err := db.QueryContext(ctx, `SELECT name FROM sqlite_master WHERE type = 'table'`)
	if err != nil {
		return nil, fmt.Errorf("list legacy tables: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names[strings.ToLower(name)] = true
	}
	return names, rows.Err()
}

// dayOf returns the date part of a legacy timestamp ("2024-06-01T10:00:00" or "2024-06-01 10:00:00").
func dayOf(ts string) string {
	if i := strings.IndexAny(ts, "T "); i >= 0 {
		return ts[:i]
	}
	return ts
}

// record is one legacy row keyed by lower-cased column name.
type record map[string]any

func (r record) str(col string) string {
	switch v := r[col].(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case time.Time:
		return v.Format("2006-01-02 15:04:05")
	default:
		return fmt.Sprint(v)
	}
}

func (r record) int(col string) int64 {
	switch v := r[col].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	case bool:
		if v {
			return 1
		}
		return 0
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(r.str(col)), 64)
	if err != nil {
		return 0
	}
	return int64(n)
}

func (r record) float(col string) float64 {
	if v, ok := r[col].(float64); ok {
		return v
	}
	if v, ok := r[col].(int64); ok {
		return float64(v)
	}
	f, _ := strconv.ParseFloat(strings.TrimSpace(r.str(col)), 64)
	return f
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (r record) time(col string) time.Time {
	if t, ok := r[col].(time.Time); ok {
		return t
	}
	s := strings.TrimSpace(r.str(col))
	if s == "" {
		return time.Time{}
	}
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return t
		}
	}
	return time.Time{}
}

func (r record) timePtr(col string) *time.Time {
	t := r.time(col)
	if t.IsZero() {
		return nil
	}
	return &t
}
