package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"kinobot/internal/caption"
	"kinobot/internal/model"
	"kinobot/internal/storage"
)

// Outcome reports what Ingest did with a post.
type Outcome string

// Ingest outcomes.
const (
	OutcomeMovie     Outcome = "movie"
	OutcomeEpisode   Outcome = "episode"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeSkipped   Outcome = "skipped"
)

// Post is a piece of content to add to the catalog. When FileID is empty the post is
// delivered by copying SourceChatID/SourceMessageID.
type Post struct {
	Caption         caption.Caption
	SourceChatID    string
	SourceMessageID int64
	FileID          string
	FileType        model.FileType
	// DefaultCategory is used when the caption names none.
	DefaultCategory string
}

// GenerateCode derives a share code from title: up to six upper-case letters or digits
// (MOV when none remain) followed by three random digits, or four after ten collisions.
func (s *Service) GenerateCode(ctx context.Context, title string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToUpper(title) {
		if (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			if b.Len() == 6 {
				break
			}
		}
	}
	base := b.String()
	if base == "" {
		base = "MOV"
	}

	for range 10 {
		code := fmt.Sprintf("%s%d", base, 100+s.intN(900))
		exists, err := s.store.CodeExists(ctx, code)
		if err != nil {
			return "", err
		}
		if !exists {
			return code, nil
		}
	}
	return fmt.Sprintf("%s%d", base, 1000+s.intN(9000)), nil
}

func (s *Service) intN(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.IntN(n)
}

// Ingest adds p as a movie or, when it carries an episode number or series type, as an
// episode of the series with the same title (created on first sight). Posts already
// ingested from the same source message are reported as duplicates.
func (s *Service) Ingest(ctx context.Context, p Post) (Outcome, error) {
	c := p.Caption
	if c.Title == "" {
		return OutcomeSkipped, nil
	}
	if dup, err := s.isIngested(ctx, p); err != nil || dup {
		return OutcomeDuplicate, err
	}

	category := c.Category
	if category == "" {
		category = p.DefaultCategory
	}
	if category == "" {
		category = model.CategoryKino
	}
	fileID, fileType := p.FileID, p.FileType
	if fileID == "" {
		fileID, fileType = string(model.FileChannel), model.FileChannel
	}

	if c.Episode == 0 && c.MediaType != model.MediaSeries {
		m := &model.Movie{
			Title:           c.Title,
			FileID:          fileID,
			FileType:        fileType,
			MediaType:       model.MediaMovie,
			Category:        category,
			SourceChatID:    p.SourceChatID,
			SourceMessageID: p.SourceMessageID,
		}
		if err := s.AddMovie(ctx, m); err != nil {
			return OutcomeSkipped, fmt.Errorf("add movie: %w", err)
		}
		return OutcomeMovie, nil
	}

	series, err := s.series(ctx, c.Title, category)
	if err != nil {
		return OutcomeSkipped, err
	}
	if c.Episode == 0 {
		return OutcomeSkipped, nil
	}
	e := &model.Episode{
		MovieID:         series.ID,
		Number:          c.Episode,
		FileID:          fileID,
		FileType:        fileType,
		SourceChatID:    p.SourceChatID,
		SourceMessageID: p.SourceMessageID,
	}
	if err := s.AddEpisode(ctx, e); err != nil {
		if errors.Is(err, storage.ErrAlreadyExists) {
			return OutcomeDuplicate, nil
		}
		return OutcomeSkipped, fmt.Errorf("add episode: %w", err)
	}
	return OutcomeEpisode, nil
}

func (s *Service) isIngested(ctx context.Context, p Post) (bool, error) {
	if p.SourceChatID == "" || p.SourceMessageID == 0 {
		return false, nil
	}
	if _, err := s.store.GetMovieBySource(ctx, p.SourceChatID, p.SourceMessageID); err == nil {
		return true, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}
	if _, err := s.store.GetEpisodeBySource(ctx, p.SourceChatID, p.SourceMessageID); err == nil {
		return true, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return false, err
	}
	return false, nil
}

func (s *Service) series(ctx context.Context, title, category string) (*model.Movie, error) {
	m, err := s.store.FindSeriesByTitle(ctx, title)
	if err == nil {
		return m, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("find series: %w", err)
	}
	m = &model.Movie{
		Title:     title,
		FileID:    string(model.FileSeries),
		FileType:  model.FileSeries,
		MediaType: model.MediaSeries,
		Category:  category,
	}
	if err := s.AddMovie(ctx, m); err != nil {
		return nil, fmt.Errorf("add series: %w", err)
	}
	return m, nil
}
