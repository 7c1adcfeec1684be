package media

import (
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

// Progress window reserved for the transfer itself; the rest is setup and
// post-processing.
const (
	transferStart   = 15
	transferSpan    = 80
	transferCeiling = 95
	finishingAt     = 98
)

// IsAudio reports whether the request asks for an audio-only download.
func IsAudio(formatID, quality string) bool {
	return formatID == FormatBestAudio || strings.Contains(quality, "Audio Only")
}

// Selector expands a client format id into a yt-dlp format chain that
// prefers mp4/m4a and degrades to lower heights.
func Selector(formatID string) string {
	switch formatID {
	case Format1080p:
		return "bestvideo[height<=1080][ext=mp4]+bestaudio[ext=m4a]/" +
			"bestvideo[height<=1080][ext=webm]+bestaudio[ext=webm]/" +
			"best[height<=1080][ext=mp4]/best[height<=1080]/" +
			"bestvideo[height<=720][ext=mp4]+bestaudio[ext=m4a]/" +
			"best[height<=720]/best"
	case Format720p:
		return "bestvideo[height<=720][ext=mp4]+bestaudio[ext=m4a]/" +
			"bestvideo[height<=720][ext=webm]+bestaudio[ext=webm]/" +
			"best[height<=720][ext=mp4]/best[height<=720]/" +
			"bestvideo[height<=480][ext=mp4]+bestaudio[ext=m4a]/" +
			"best[height<=480]/best"
	case Format480p:
		return "bestvideo[height<=480][ext=mp4]+bestaudio[ext=m4a]/" +
			"bestvideo[height<=480][ext=webm]+bestaudio[ext=webm]/" +
			"best[height<=480][ext=mp4]/best[height<=480]/" +
			"best"
	case FormatBestAudio:
		return "bestaudio/best"
	default:
		return "bestvideo[ext=mp4]+bestaudio[ext=m4a]/" +
			"bestvideo[ext=webm]+bestaudio[ext=webm]/" +
			"best[ext=mp4]/best"
	}
}

// transferPercent maps transferred bytes into the 15-95 window.
func transferPercent(downloaded, total int64) int {
	if total <= 0 || downloaded <= 0 {
		return transferStart
	}
	if downloaded > total {
		downloaded = total
	}
	percent := int(float64(downloaded)/float64(total)*transferSpan) + transferStart
	return min(percent, transferCeiling)
}

// transferProgress builds the report for one yt-dlp progress tick.
func transferProgress(downloaded, total int64, started time.Time, eta time.Duration, now time.Time) Progress {
	p := Progress{
		Percent:         transferPercent(downloaded, total),
		DownloadedBytes: downloaded,
		TotalBytes:      total,
		Speed:           "0 B/s",
		ETA:             unknown,
	}
	if total > 0 {
		p.Message = fmt.Sprintf("Downloading... %.1f%%", float64(downloaded)/float64(total)*100)
	} else {
		p.Message = "Downloading..."
	}
	if !started.IsZero() {
		if elapsed := now.Sub(started).Seconds(); elapsed > 0 && downloaded > 0 {
			p.Speed = humanize.Bytes(uint64(float64(downloaded)/elapsed)) + "/s"
		}
	}
	if eta > 0 {
		p.ETA = FormatDuration(int(eta.Seconds()))
	}
	return p
}
