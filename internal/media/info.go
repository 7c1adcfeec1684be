package media

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/lrstanley/go-ytdlp"
)

const (
	longVideoSeconds     = 3600
	descriptionMaxRunes  = 200
	audioMBPerMinute     = 2.4
	defaultVideoMBPerMin = 5
	unknown              = "Unknown"
)

// Format ids offered to clients.
const (
	Format1080p     = "best[height>=1080]"
	Format720p      = "best[height>=720]"
	Format480p      = "best[height>=480]"
	FormatBest      = "best"
	FormatBestAudio = "bestaudio"
)

// megabytes per minute of video, by height
var videoMBPerMinute = map[int]float64{
	1080: 8,
	720:  5,
	480:  3,
}

// Info is the metadata returned by the extract endpoint.
type Info struct {
	Title          string   `json:"title"`
	Duration       int      `json:"duration"`
	DurationString string   `json:"duration_string"`
	IsLongVideo    bool     `json:"is_long_video"`
	Uploader       string   `json:"uploader"`
	ViewCount      int64    `json:"view_count"`
	LikeCount      int64    `json:"like_count"`
	UploadDate     string   `json:"upload_date"`
	Description    string   `json:"description"`
	Thumbnail      string   `json:"thumbnail"`
	Formats        []Format `json:"formats"`
}

// Format is one downloadable option.
type Format struct {
	FormatID      string `json:"format_id"`
	Quality       string `json:"quality"`
	Ext           string `json:"ext"`
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	FPS           int    `json:"fps"`
	VCodec        string `json:"vcodec"`
	ACodec        string `json:"acodec"`
	HasAudio      bool   `json:"has_audio"`
	Recommended   bool   `json:"recommended"`
	EstimatedSize string `json:"estimated_size"`
}

// buildInfo maps yt-dlp's typed metadata onto the response shape.
func buildInfo(raw *ytdlp.ExtractedInfo) *Info {
	if raw == nil {
		raw = &ytdlp.ExtractedInfo{}
	}
	duration := int(deref(raw.Duration))
	isLong := duration > longVideoSeconds

	info := &Info{
		Title:          orDefault(deref(raw.Title), "YouTube Video"),
		Duration:       duration,
		DurationString: FormatDuration(duration),
		IsLongVideo:    isLong,
		Uploader:       orDefault(deref(raw.Uploader), "YouTube Channel"),
		ViewCount:      int64(deref(raw.ViewCount)),
		LikeCount:      int64(deref(raw.LikeCount)),
		UploadDate:     deref(raw.UploadDate),
		Description:    truncateDescription(deref(raw.Description)),
		Thumbnail:      deref(raw.Thumbnail),
	}
	info.Formats = buildFormats(raw.Formats, duration, isLong)
	return info
}

// buildFormats offers fixed quality tiers based on the heights yt-dlp found.
// A missing or "none" vcodec marks an audio-only source.
func buildFormats(available []*ytdlp.ExtractedFormat, duration int, isLong bool) []Format {
	has := func(height int) bool {
		for _, f := range available {
			if f == nil {
				continue
			}
			if codec := deref(f.VCodec); codec == "" || codec == "none" {
				continue
			}
			if int(deref(f.Height)) >= height {
				return true
			}
		}
		return false
	}
	has1080, has720, has480 := has(1080), has(720), has(480)

	formats := make([]Format, 0, 5)
	if has1080 {
		quality := "Ultra HD (1080p) - Best Quality"
		if isLong {
			quality += " (large file for long videos)"
		}
		formats = append(formats, videoFormat(Format1080p, quality, 1920, 1080, !isLong, duration))
	}
	if has720 {
		quality := "Full HD (720p) - High Quality"
		if isLong {
			quality += " (recommended for long videos)"
		}
		formats = append(formats, videoFormat(Format720p, quality, 1280, 720, isLong || !has1080, duration))
	}
	if has480 {
		formats = append(formats, videoFormat(Format480p, "HD (480p) - Good Quality, fastest download", 854, 480, false, duration))
	}
	formats = append(formats, videoFormat(FormatBest, "Best Available Quality (Auto)", 1280, 720, len(formats) == 0, duration))
	formats = append(formats, Format{
		FormatID:      FormatBestAudio,
		Quality:       "Audio Only (320kbps MP3)",
		Ext:           "mp3",
		VCodec:        "none",
		ACodec:        "mp3",
		HasAudio:      true,
		EstimatedSize: estimateAudioSize(duration),
	})
	return formats
}

func videoFormat(id, quality string, width, height int, recommended bool, duration int) Format {
	return Format{
		FormatID:      id,
		Quality:       quality,
		Ext:           "mp4",
		Width:         width,
		Height:        height,
		FPS:           30,
		VCodec:        "h264",
		ACodec:        "aac",
		HasAudio:      true,
		Recommended:   recommended,
		EstimatedSize: estimateVideoSize(duration, height),
	}
}

// FormatDuration renders seconds as "1h 2m 3s", "2m 3s" or "3s".
func FormatDuration(seconds int) string {
	if seconds <= 0 {
		return unknown
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	switch {
	case hours > 0:
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, secs)
	case minutes > 0:
		return fmt.Sprintf("%dm %ds", minutes, secs)
	default:
		return fmt.Sprintf("%ds", secs)
	}
}

func estimateVideoSize(duration, height int) string {
	perMinute, ok := videoMBPerMinute[height]
	if !ok {
		perMinute = defaultVideoMBPerMin
	}
	return estimateSize(duration, perMinute)
}

func estimateAudioSize(duration int) string {
	return estimateSize(duration, audioMBPerMinute)
}

func estimateSize(duration int, mbPerMinute float64) string {
	if duration <= 0 {
		return unknown
	}
	megabytes := float64(duration) / 60 * mbPerMinute
	return "~" + humanize.Bytes(uint64(megabytes*1e6))
}

func truncateDescription(description string) string {
	if description == "" {
		return ""
	}
	runes := []rune(description)
	if len(runes) <= descriptionMaxRunes {
		return description
	}
	return strings.TrimSpace(string(runes[:descriptionMaxRunes])) + "..."
}

func orDefault(v, fallback string) string {
	if strings.TrimSpace(v) == "" {
		return fallback
	}
	return v
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}
