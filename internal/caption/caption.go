// Package caption extracts catalog metadata from post captions and admin-supplied links.
package caption

import (
	"regexp"
	"strconv"
	"strings"

	"kinobot/internal/model"
)

// Caption is the metadata found in a post caption. Zero values mean "not found".
type Caption struct {
	Title     string
	Episode   int
	MediaType model.MediaType
	Category  string
}

var (
	reTitleLine    = regexp.MustCompile(`(?i)^(nomi|title)\s*[:\-]\s*(.+)$`)
	reTypeLine     = regexp.MustCompile(`(?i)^(type|media|tur|turi)\s*[:\-]\s*(movie|kino|serial|series)$`)
	reCategoryLine = regexp.MustCompile(`(?i)^(kategoriya|category)\s*[:\-]\s*(.+)$`)
	reEpisodeLine  = regexp.MustCompile(`(?i)^(qism|episode|ep)\s*[:\-]?\s*(\d{1,3})$`)
	rePrefixLine   = regexp.MustCompile(`(?i)^(kino|serial)\s*[:\-]\s*(.+)$`)

	reVideoExt      = regexp.MustCompile(`(?i)\.(mp4|mkv|avi|mov|wmv|flv|webm)$`)
	reNumberFirst   = regexp.MustCompile(`(?i)\b(\d{1,3})\s*(?:-|\s)?\s*(qism|q\.|ep|episode)\b`)
	reNumberLast    = regexp.MustCompile(`(?i)\b(qism|q\.|ep|episode)\s*(\d{1,3})\b`)
	reSpaces        = regexp.MustCompile(`\s+`)
	titleTrimCutset = " -–—|:"
)

// Parse reads a caption written in the channel template: labelled lines such as
// "Nomi: ...", "Qism: 12", "Turi: serial", "Kategoriya: anime" and hashtags.
// Without a title line, the first line is parsed as "title + episode".
func Parse(text string) Caption {
	var c Caption
	if strings.TrimSpace(text) == "" {
		return c
	}
	c.Category = hashtagCategory(text)

	var lines []string
	for _, l := range strings.Split(text, "\n") {
		if l = strings.TrimSpace(l); l != "" {
			lines = append(lines, l)
		}
	}

	for _, line := range lines {
		if m := reTitleLine.FindStringSubmatch(line); m != nil && c.Title == "" {
			c.Title = NormalizeTitle(m[2])
			continue
		}
		if m := reTypeLine.FindStringSubmatch(line); m != nil && c.MediaType == "" {
			c.MediaType = mediaType(m[2])
			continue
		}
		if m := reCategoryLine.FindStringSubmatch(line); m != nil && c.Category == "" {
			c.Category = GuessCategory(m[2])
			continue
		}
		if m := reEpisodeLine.FindStringSubmatch(line); m != nil && c.Episode == 0 {
			c.Episode, _ = strconv.Atoi(m[2])
			if c.MediaType == "" {
				c.MediaType = model.MediaSeries
			}
			continue
		}
		if m := rePrefixLine.FindStringSubmatch(line); m != nil && c.Title == "" {
			c.Title = NormalizeTitle(m[2])
			c.MediaType = mediaType(m[1])
			continue
		}
	}

	if c.Title == "" && len(lines) > 0 {
		c.Title, c.Episode = ParseTitleEpisode(lines[0])
	}
	return c
}

// ParseTitleEpisode splits a file name or caption line such as "Show 12-qism.mp4" into
// its title and episode number. The episode is 0 when none is found.
func ParseTitleEpisode(text string) (string, int) {
	var line string
	for _, raw := range strings.Split(text, "\n") {
		if raw = strings.TrimSpace(raw); raw != "" {
			line = raw
			break
		}
	}
	if line == "" {
		return "", 0
	}
	line = reVideoExt.ReplaceAllString(line, "")

	if m := reNumberFirst.FindStringSubmatch(line); m != nil {
		ep, _ := strconv.Atoi(m[1])
		title := reNumberFirst.ReplaceAllString(line, "")
		return NormalizeTitle(strings.Trim(strings.TrimSpace(title), titleTrimCutset)), ep
	}
	if m := reNumberLast.FindStringSubmatch(line); m != nil {
		ep, _ := strconv.Atoi(m[2])
		title := reNumberLast.ReplaceAllString(line, "")
		return NormalizeTitle(strings.Trim(strings.TrimSpace(title), titleTrimCutset)), ep
	}
	return NormalizeTitle(line), 0
}

// GuessCategory maps free text to a catalog category, defaulting to kino.
func GuessCategory(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "anime"):
		return model.CategoryAnime
	case strings.Contains(t, "dorama"):
		return model.CategoryDorama
	case strings.Contains(t, "mult"):
		return model.CategoryMultfilm
	}
	return model.CategoryKino
}

// NormalizeTitle collapses whitespace runs and trims the result.
func NormalizeTitle(s string) string {
	return strings.TrimSpace(reSpaces.ReplaceAllString(s, " "))
}

func hashtagCategory(text string) string {
	t := strings.ToLower(text)
	switch {
	case strings.Contains(t, "#anime"):
		return model.CategoryAnime
	case strings.Contains(t, "#dorama"):
		return model.CategoryDorama
	case strings.Contains(t, "#multfilm"), strings.Contains(t, "#mult"):
		return model.CategoryMultfilm
	case strings.Contains(t, "#kino"):
		return model.CategoryKino
	}
	return ""
}

func mediaType(v string) model.MediaType {
	switch strings.ToLower(v) {
	case "serial", "series":
		return model.MediaSeries
	}
	return model.MediaMovie
}
