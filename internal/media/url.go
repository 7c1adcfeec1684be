package media

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

const youtubeWatchURL = "https://www.youtube.com/watch?v=%s"

var youtubePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https?://(?:www\.|m\.)?youtube\.com/watch\?(?:.*&)?v=[\w-]+`),
	regexp.MustCompile(`^https?://(?:www\.)?youtube\.com/(?:embed|v|shorts)/[\w-]+`),
	regexp.MustCompile(`^https?://youtu\.be/[\w-]+`),
}

var videoIDPatterns = []*regexp.Regexp{
	regexp.MustCompile(`[?&]v=([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`(?:embed|shorts|v)/([0-9A-Za-z_-]{11})`),
	regexp.MustCompile(`youtu\.be/([0-9A-Za-z_-]{11})`),
}

// ValidateURL trims raw and checks that it is an absolute http(s) URL.
// With youtubeOnly set, only YouTube video URLs are accepted.
func ValidateURL(raw string, youtubeOnly bool) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("empty url: %w", ErrInvalidURL)
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return "", fmt.Errorf("parse url: %w", ErrInvalidURL)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported scheme %q: %w", parsed.Scheme, ErrInvalidURL)
	}
	if parsed.Hostname() == "" {
		return "", fmt.Errorf("missing host: %w", ErrInvalidURL)
	}
	if youtubeOnly && !IsYouTubeURL(trimmed) {
		return "", fmt.Errorf("not a youtube video url: %w", ErrInvalidURL)
	}
	return trimmed, nil
}

// IsYouTubeURL reports whether u looks like a single YouTube video URL.
func IsYouTubeURL(u string) bool {
	for _, pattern := range youtubePatterns {
		if pattern.MatchString(u) {
			return true
		}
	}
	return false
}

// VideoID extracts the 11 character YouTube video id, or "" when u is not a
// YouTube URL.
func VideoID(u string) string {
	if !IsYouTubeURL(u) {
		return ""
	}
	for _, pattern := range videoIDPatterns {
		if match := pattern.FindStringSubmatch(u); len(match) == 2 {
			return match[1]
		}
	}
	return ""
}

// Canonical rewrites YouTube URLs to the plain watch form, dropping playlist
// and tracking parameters. Other URLs are returned unchanged.
func Canonical(u string) string {
	if id := VideoID(u); id != "" {
		return fmt.Sprintf(youtubeWatchURL, id)
	}
	return u
}
