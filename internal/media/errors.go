package media

import (
	"errors"
	"regexp"
	"strings"
)

// botCheck matches "bot" only as a whole word.
var botCheck = regexp.MustCompile(`(?i)\bbot\b`)

var (
	ErrInvalidURL        = errors.New("invalid url")
	ErrBlocked           = errors.New("requests are being blocked by the site")
	ErrPrivate           = errors.New("video is private")
	ErrUnavailable       = errors.New("video unavailable")
	ErrFormatUnavailable = errors.New("requested format is not available")
	ErrAccessDenied      = errors.New("access denied")
	ErrTimeout           = errors.New("connection timeout")
	ErrNoSpace           = errors.New("no space left on device")
	ErrFileNotFound      = errors.New("downloaded file not found")
)

// descriptions are the user-facing messages shown for known failures.
var descriptions = map[error]string{
	ErrInvalidURL:        "Please provide a valid video URL.",
	ErrBlocked:           "YouTube is temporarily blocking requests. Please try again in a few minutes.",
	ErrPrivate:           "This video is private and cannot be downloaded.",
	ErrUnavailable:       "This video is unavailable or has been removed.",
	ErrFormatUnavailable: "The requested quality is not available. Please try a lower quality.",
	ErrAccessDenied:      "Access denied. This video may be restricted.",
	ErrTimeout:           "Connection timeout. This may happen with very long videos. Please try again.",
	ErrNoSpace:           "Server storage full. Please try again later.",
	ErrFileNotFound:      "Download finished but the output file could not be found.",
}

// Error wraps a known failure kind together with the raw tool output.
type Error struct {
	Kind   error
	Detail string
}

func (e *Error) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Detail
}

func (e *Error) Unwrap() error { return e.Kind }

// classify maps raw yt-dlp output onto a known failure kind. Unknown output
// yields nil.
func classify(output string) error {
	lower := strings.ToLower(output)
	switch {
	case botCheck.MatchString(output):
		return ErrBlocked
	case strings.Contains(output, "Private video"):
		return ErrPrivate
	case strings.Contains(lower, "video unavailable"), strings.Contains(lower, "has been removed"):
		return ErrUnavailable
	case strings.Contains(output, "Requested format is not available"):
		return ErrFormatUnavailable
	case strings.Contains(output, "HTTP Error 403"):
		return ErrAccessDenied
	case strings.Contains(output, "No space left on device"):
		return ErrNoSpace
	case strings.Contains(output, "Connection broken"), strings.Contains(lower, "timeout"), strings.Contains(lower, "timed out"):
		return ErrTimeout
	}
	return nil
}

// wrapToolError turns a failed run into an *Error when the output is
// recognized, otherwise it returns err unchanged.
func wrapToolError(err error, stderr string) error {
	if err == nil {
		return nil
	}
	combined := err.Error()
	if stderr != "" {
		combined += "\n" + stderr
	}
	if kind := classify(combined); kind != nil {
		return &Error{Kind: kind, Detail: lastLine(combined)}
	}
	if detail := lastLine(stderr); detail != "" {
		return &Error{Kind: err, Detail: detail}
	}
	return err
}

// Describe returns a human-readable message for err.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	for kind, msg := range descriptions {
		if errors.Is(err, kind) {
			return msg
		}
	}
	if kind := classify(err.Error()); kind != nil {
		return descriptions[kind]
	}
	return err.Error()
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
