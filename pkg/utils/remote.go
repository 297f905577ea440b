package utils

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{6,}$`)

// ParseClipURL checks that raw is an absolute http(s) URL that yt-dlp can
// be pointed at.
func ParseClipURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("URL %q has no host", raw)
	}
	return u, nil
}

// IsYouTubeURL reports whether u points at YouTube or YouTube Music.
func IsYouTubeURL(u *url.URL) bool {
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	return host == "youtu.be" || host == "youtube.com" || strings.HasSuffix(host, ".youtube.com")
}

// YouTubeID extracts the video ID from watch, short-link, embed and
// shorts URLs.
func YouTubeID(u *url.URL) (string, error) {
	if !IsYouTubeURL(u) {
		return "", fmt.Errorf("%s is not a YouTube URL", u.Host)
	}

	var id string
	switch {
	case strings.EqualFold(u.Hostname(), "youtu.be"):
		id = strings.TrimPrefix(u.Path, "/")
	case u.Path == "/watch":
		id = u.Query().Get("v")
	default:
		dir, last := path.Split(strings.TrimSuffix(u.Path, "/"))
		switch dir {
		case "/embed/", "/shorts/", "/v/", "/live/":
			id = last
		}
	}

	if !videoIDPattern.MatchString(id) {
		return "", fmt.Errorf("no video ID in %s", u.String())
	}
	return id, nil
}

// ClipName is a stable file name for a downloaded clip: the YouTube video
// ID when there is one, fallback otherwise.
func ClipName(u *url.URL, fallback string) string {
	if id, err := YouTubeID(u); err == nil {
		return id
	}
	return fallback
}
