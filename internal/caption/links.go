package caption

import (
	"regexp"
	"strconv"
	"strings"
)

// PostLink identifies a channel post.
type PostLink struct {
	ChatID    string
	MessageID int64
}

var (
	rePrivatePost  = regexp.MustCompile(`(?:https?://)?t\.me/c/(\d+)/(\d+)`)
	rePublicPost   = regexp.MustCompile(`(?:https?://)?t\.me/([A-Za-z0-9_]{3,})/(\d+)`)
	reSupergroupID = regexp.MustCompile(`-100\d{5,}`)
	rePrivateChat  = regexp.MustCompile(`(?:https?://)?t\.me/c/(\d{5,})`)
	rePublicChat   = regexp.MustCompile(`(?:https?://)?t\.me/([A-Za-z0-9_]{3,})`)
	reHandle       = regexp.MustCompile(`@([A-Za-z0-9_]{3,})`)
	reBareHandle   = regexp.MustCompile(`^[A-Za-z0-9_]{3,}$`)
	reNonHandle    = regexp.MustCompile(`[^A-Za-z0-9_]`)
	reInvite       = regexp.MustCompile(`(?:https?://)?t\.me/(?:\+|joinchat/)[A-Za-z0-9_-]+`)
)

// ParsePostLinks returns one post per line that holds a t.me post link. Private links
// t.me/c/<id>/<msg> resolve to the -100<id> chat; public ones to @username.
func ParsePostLinks(text string) []PostLink {
	var links []PostLink
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if m := rePrivatePost.FindStringSubmatch(line); m != nil {
			id, _ := strconv.ParseInt(m[2], 10, 64)
			links = append(links, PostLink{ChatID: "-100" + m[1], MessageID: id})
			continue
		}
		if m := rePublicPost.FindStringSubmatch(line); m != nil {
			if isReservedPath(m[1]) {
				continue
			}
			id, _ := strconv.ParseInt(m[2], 10, 64)
			links = append(links, PostLink{ChatID: "@" + m[1], MessageID: id})
		}
	}
	return links
}

// ParseChannelInput turns an admin-supplied channel reference (numeric -100 ID, t.me link,
// @handle or bare handle) into a chat identifier.
func ParseChannelInput(text string) (string, bool) {
	raw := strings.TrimSpace(text)
	if raw == "" {
		return "", false
	}
	if m := reSupergroupID.FindString(raw); m != "" {
		return m, true
	}
	if m := rePrivateChat.FindStringSubmatch(raw); m != nil {
		return "-100" + m[1], true
	}
	if m := rePublicChat.FindStringSubmatch(raw); m != nil && !isReservedPath(m[1]) {
		return "@" + m[1], true
	}
	if m := reHandle.FindStringSubmatch(raw); m != nil {
		return "@" + m[1], true
	}
	token := reNonHandle.ReplaceAllString(strings.Fields(raw)[0], "")
	if reBareHandle.MatchString(token) {
		return "@" + token, true
	}
	return "", false
}

// ParseInviteLink extracts a t.me/+... or t.me/joinchat/... link, adding the https scheme.
func ParseInviteLink(text string) (string, bool) {
	link := reInvite.FindString(strings.TrimSpace(text))
	if link == "" {
		return "", false
	}
	if !strings.HasPrefix(link, "http") {
		link = "https://" + link
	}
	return link, true
}

// ScanLine is one line of an admin bulk import: a post link plus optional metadata.
type ScanLine struct {
	Post    PostLink
	Caption Caption
}

// ParseScanLine reads "https://t.me/c/123/456 | Nomi: Title | Qism: 12 | Turi: serial"
// or "https://t.me/c/123/456 | Title 12-qism". Only private post links are accepted.
func ParseScanLine(line string) (ScanLine, bool) {
	if !strings.Contains(line, "t.me/c/") {
		return ScanLine{}, false
	}
	var parts []string
	for _, p := range strings.Split(line, "|") {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	if len(parts) == 0 {
		return ScanLine{}, false
	}
	links := ParsePostLinks(parts[0])
	if len(links) == 0 {
		return ScanLine{}, false
	}

	meta := strings.Join(parts[1:], "\n")
	c := Parse(meta)
	if c.Title == "" {
		c.Title, c.Episode = ParseTitleEpisode(meta)
	}
	if c.Category == "" {
		c.Category = GuessCategory(meta)
	}
	return ScanLine{Post: links[0], Caption: c}, true
}

func isReservedPath(s string) bool {
	s = strings.ToLower(s)
	return s == "c" || s == "joinchat"
}
