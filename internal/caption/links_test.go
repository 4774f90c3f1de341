package caption

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"kinobot/internal/model"
)

func TestParsePostLinks(t *testing.T) {
	in := "https://t.me/c/12345/67\n\nt.me/kinolar/89\nhello\nhttps://t.me/c/99999/1 extra"
	want := []PostLink{
		{ChatID: "-10012345", MessageID: 67},
		{ChatID: "@kinolar", MessageID: 89},
		{ChatID: "-10099999", MessageID: 1},
	}
	if diff := cmp.Diff(want, ParsePostLinks(in)); diff != "" {
		t.Errorf("ParsePostLinks() mismatch (-want +got):\n%s", diff)
	}
	if got := ParsePostLinks("no links here"); got != nil {
		t.Errorf("ParsePostLinks() = %v, want nil", got)
	}
}

func TestParseChannelInput(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"-1001234567890", "-1001234567890", true},
		{"id: -1001234567890 thanks", "-1001234567890", true},
		{"https://t.me/c/1234567/10", "-1001234567", true},
		{"https://t.me/kinolar", "@kinolar", true},
		{"@kinolar", "@kinolar", true},
		{"kinolar", "@kinolar", true},
		{"!!", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseChannelInput(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseChannelInput(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseInviteLink(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"join: t.me/+AbC_d-1", "https://t.me/+AbC_d-1", true},
		{"https://t.me/joinchat/XYZ", "https://t.me/joinchat/XYZ", true},
		{"t.me/kinolar", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseInviteLink(tt.in)
			if got != tt.want || ok != tt.ok {
				t.Errorf("ParseInviteLink(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestParseScanLine(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want ScanLine
		ok   bool
	}{
		{
			name: "template metadata",
			in:   "https://t.me/c/12345/67 | Nomi: Naruto | Qism: 3 | #anime",
			want: ScanLine{
				Post:    PostLink{ChatID: "-10012345", MessageID: 67},
				Caption: Caption{Title: "Naruto", Episode: 3, MediaType: model.MediaSeries, Category: model.CategoryAnime},
			},
			ok: true,
		},
		{
			name: "plain title defaults to kino",
			in:   "https://t.me/c/12345/68 | Inception",
			want: ScanLine{
				Post:    PostLink{ChatID: "-10012345", MessageID: 68},
				Caption: Caption{Title: "Inception", Category: model.CategoryKino},
			},
			ok: true,
		},
		{
			name: "public link rejected",
			in:   "https://t.me/kinolar/5 | Inception",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseScanLine(tt.in)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("ParseScanLine() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}
