package catalog

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"kinobot/internal/model"
	"kinobot/internal/storage"
)

// Match tells which search stage produced a result.
type Match string

// Search stages, in the order they are tried.
const (
	MatchCode    Match = "code"
	MatchTitle   Match = "title"
	MatchPartial Match = "partial"
	MatchFuzzy   Match = "fuzzy"
	MatchNone    Match = "none"
)

// FuzzyThreshold is the minimum similarity ratio for a fuzzy hit.
const FuzzyThreshold = 0.45

var reToken = regexp.MustCompile(`[a-z0-9]+`)

// SearchResult is the outcome of a user search.
type SearchResult struct {
	Movies []model.Movie
	Match  Match
}

// Found reports whether anything matched.
func (r SearchResult) Found() bool { return len(r.Movies) > 0 }

// Search looks query up by share code, exact title, title substring and finally by
// fuzzy similarity. Every search is recorded in the statistics with its found flag.
func (s *Service) Search(ctx context.Context, userID int64, query string) (SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return SearchResult{Match: MatchNone}, nil
	}

	res, err := s.search(ctx, query)
	if err != nil {
		return SearchResult{}, err
	}
	s.metrics.ObserveSearch(string(res.Match))

	stat := &model.SearchStat{UserID: userID, Query: query, Found: res.Found(), CreatedAt: s.now()}
	if err := s.store.AddSearchStat(ctx, stat); err != nil {
		s.log.Error("add search stat", "user_id", userID, "error", err)
	}
	return res, nil
}

func (s *Service) search(ctx context.Context, query string) (SearchResult, error) {
	m, err := s.store.GetMovieByCode(ctx, normalizeCode(query))
	switch {
	case err == nil:
		return SearchResult{Movies: []model.Movie{*m}, Match: MatchCode}, nil
	case !errors.Is(err, storage.ErrNotFound):
		return SearchResult{}, fmt.Errorf("find by code: %w", err)
	}

	ms, err := s.store.FindMovies(ctx, query, true, SearchLimit)
	if err != nil {
		return SearchResult{}, fmt.Errorf("find by title: %w", err)
	}
	if len(ms) > 0 {
		return SearchResult{Movies: ms, Match: MatchTitle}, nil
	}

	ms, err = s.store.FindMovies(ctx, query, false, SearchLimit)
	if err != nil {
		return SearchResult{}, fmt.Errorf("find by substring: %w", err)
	}
	if len(ms) > 0 {
		return SearchResult{Movies: ms, Match: MatchPartial}, nil
	}

	ms, err = s.fuzzy(ctx, query)
	if err != nil {
		return SearchResult{}, err
	}
	if len(ms) > 0 {
		return SearchResult{Movies: ms, Match: MatchFuzzy}, nil
	}
	return SearchResult{Match: MatchNone}, nil
}

// fuzzy scores candidates sharing a token with the query, or the most popular titles
// when none do, and keeps those at or above FuzzyThreshold, best first.
func (s *Service) fuzzy(ctx context.Context, query string) ([]model.Movie, error) {
	q := normalizeForMatch(query)
	tokens := reToken.FindAllString(strings.ToLower(query), -1)
	if q == "" || len(tokens) == 0 {
		return nil, nil
	}

	seen := make(map[int64]bool)
	var candidates []model.Movie
	for _, t := range tokens {
		ms, err := s.store.FindMovies(ctx, t, false, SearchLimit*10)
		if err != nil {
			return nil, fmt.Errorf("fuzzy candidates: %w", err)
		}
		for _, m := range ms {
			if !seen[m.ID] {
				seen[m.ID] = true
				candidates = append(candidates, m)
			}
		}
	}
	if len(candidates) == 0 {
		ms, err := s.store.ListPopularMovies(ctx, 200)
		if err != nil {
			return nil, fmt.Errorf("fuzzy candidates: %w", err)
		}
		candidates = ms
	}

	type scored struct {
		movie model.Movie
		score float64
	}
	var hits []scored
	for _, m := range candidates {
		t := normalizeForMatch(m.Title)
		if t == "" {
			continue
		}
		if r := similarity(q, t); r >= FuzzyThreshold {
			hits = append(hits, scored{movie: m, score: r})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })

	var out []model.Movie
	for i := 0; i < len(hits) && i < SearchLimit; i++ {
		out = append(out, hits[i].movie)
	}
	return out, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// normalizeForMatch lowercases s, keeps ASCII letters and digits and squeezes runs of
// three or more identical characters down to two.
func normalizeForMatch(s string) string {
	var b strings.Builder
	var prev rune
	run := 0
	for _, r := range strings.ToLower(s) {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			continue
		}
		if r == prev {
			run++
		} else {
			prev, run = r, 1
		}
		if run <= 2 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// similarity is the Ratcliff/Obershelp ratio 2*M/T of a and b.
func similarity(a, b string) float64 {
	return difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, "")).Ratio()
}
