package utils

import (
	"net/url"
	"os"
	"path/filepath"
	"testing"
)

func mustParse(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := ParseClipURL(raw)
	if err != nil {
		t.Fatalf("ParseClipURL(%q) failed: %v", raw, err)
	}
	return u
}

func TestYouTubeID(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://www.youtube.com/watch?v=E3Vlhj21ep0", "E3Vlhj21ep0"},
		{"https://youtu.be/E3Vlhj21ep0?t=42", "E3Vlhj21ep0"},
		{"https://www.youtube.com/embed/abc123", "abc123"},
		{"https://youtube.com/shorts/Zx_9-aQ1bcd/", "Zx_9-aQ1bcd"},
		{"https://music.youtube.com/watch?v=E3Vlhj21ep0&list=RD", "E3Vlhj21ep0"},
	}
	for _, tt := range tests {
		got, err := YouTubeID(mustParse(t, tt.url))
		if err != nil {
			t.Errorf("YouTubeID(%q) error: %v", tt.url, err)
			continue
		}
		if got != tt.want {
			t.Errorf("YouTubeID(%q) = %q, expected %q", tt.url, got, tt.want)
		}
	}

	for _, raw := range []string{"https://example.com/watch?v=E3Vlhj21ep0", "https://www.youtube.com/feed/trending", "https://youtu.be/"} {
		if _, err := YouTubeID(mustParse(t, raw)); err == nil {
			t.Errorf("Expected error for %q", raw)
		}
	}
}

func TestParseClipURL(t *testing.T) {
	for _, raw := range []string{"ftp://host/clip.wav", "/tmp/clip.wav", "https://"} {
		if _, err := ParseClipURL(raw); err == nil {
			t.Errorf("Expected %q to be rejected", raw)
		}
	}
}

func TestClipName(t *testing.T) {
	if got := ClipName(mustParse(t, "https://youtu.be/E3Vlhj21ep0"), "x"); got != "E3Vlhj21ep0" {
		t.Errorf("Expected video ID, got %q", got)
	}
	if got := ClipName(mustParse(t, "https://soundcloud.com/a/b"), "fallback"); got != "fallback" {
		t.Errorf("Expected fallback, got %q", got)
	}
}

func TestContentType(t *testing.T) {
	if got := ContentType("song.MID", nil); got != "audio/midi" {
		t.Errorf("Expected audio/midi, got %s", got)
	}
	if got := ContentType("blob", []byte("\x89PNG\r\n\x1a\n")); got != "image/png" {
		t.Errorf("Expected image/png from sniffing, got %s", got)
	}
}

func TestMoveFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.wav")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	dst := filepath.Join(dir, "sub", "b.wav")
	if err := MakeDir(filepath.Dir(dst)); err != nil {
		t.Fatal(err)
	}
	if err := MoveFile(src, dst); err != nil {
		t.Fatalf("MoveFile failed: %v", err)
	}
	if _, err := os.Stat(dst); err != nil {
		t.Errorf("Expected destination to exist: %v", err)
	}
	if err := MoveFile(src, dst); err == nil {
		t.Error("Expected error moving a missing file")
	}
}
