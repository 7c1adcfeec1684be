package media

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/lrstanley/go-ytdlp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func TestValidateURL(t *testing.T) {
	tests := map[string]struct {
		url         string
		youtubeOnly bool
		expURL      string
		expErr      bool
	}{
		"A plain https URL should be accepted.": {
			url:    "  https://example.com/v1 ",
			expURL: "https://example.com/v1",
		},
		"An empty URL should fail.": {
			url:    "   ",
			expErr: true,
		},
		"A URL without scheme should fail.": {
			url:    "example.com/v1",
			expErr: true,
		},
		"A non http scheme should fail.": {
			url:    "ftp://example.com/v1",
			expErr: true,
		},
		"A malformed URL should fail.": {
			url:    "http://%zz",
			expErr: true,
		},
		"A non YouTube URL should fail when restricted.": {
			url:         "https://example.com/v1",
			youtubeOnly: true,
			expErr:      true,
		},
		"A YouTube URL should pass when restricted.": {
			url:         "https://youtu.be/dQw4w9WgXcQ",
			youtubeOnly: true,
			expURL:      "https://youtu.be/dQw4w9WgXcQ",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			got, err := ValidateURL(test.url, test.youtubeOnly)
			if test.expErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidURL)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, test.expURL, got)
		})
	}
}

func TestCanonical(t *testing.T) {
	tests := map[string]struct {
		url string
		exp string
	}{
		"Watch URLs drop extra parameters.": {
			url: "https://www.youtube.com/watch?v=dQw4w9WgXcQ&list=PL123&t=10",
			exp: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		"Short links are expanded.": {
			url: "https://youtu.be/dQw4w9WgXcQ",
			exp: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		"Shorts are rewritten.": {
			url: "https://www.youtube.com/shorts/dQw4w9WgXcQ",
			exp: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		"Mobile URLs are rewritten.": {
			url: "https://m.youtube.com/watch?v=dQw4w9WgXcQ",
			exp: "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		},
		"Other sites are untouched even with id-like paths.": {
			url: "https://example.com/abcdefghijk",
			exp: "https://example.com/abcdefghijk",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, Canonical(test.url))
		})
	}
}

func TestSelectorAndAudio(t *testing.T) {
	assert.True(t, strings.HasPrefix(Selector(Format1080p), "bestvideo[height<=1080][ext=mp4]"))
	assert.True(t, strings.HasPrefix(Selector(Format720p), "bestvideo[height<=720][ext=mp4]"))
	assert.True(t, strings.HasPrefix(Selector(Format480p), "bestvideo[height<=480][ext=mp4]"))
	assert.Equal(t, "bestaudio/best", Selector(FormatBestAudio))
	assert.True(t, strings.HasSuffix(Selector("something-else"), "best[ext=mp4]/best"))

	assert.True(t, IsAudio(FormatBestAudio, ""))
	assert.True(t, IsAudio("best", "Audio Only (320kbps MP3)"))
	assert.False(t, IsAudio(Format720p, "Full HD (720p)"))
}

func TestTransferPercent(t *testing.T) {
	tests := map[string]struct {
		downloaded, total int64
		exp               int
	}{
		"Unknown total stays at the start.": {downloaded: 10, total: 0, exp: 15},
		"Nothing downloaded stays at the start.": {downloaded: 0, total: 100, exp: 15},
		"Half way maps into the window.": {downloaded: 50, total: 100, exp: 55},
		"Complete transfer is capped.": {downloaded: 100, total: 100, exp: 95},
		"Overshoot is capped.": {downloaded: 150, total: 100, exp: 95},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, transferPercent(test.downloaded, test.total))
		})
	}
}

func TestTransferProgress(t *testing.T) {
	now := time.Now()
	p := transferProgress(2_000_000, 4_000_000, now.Add(-2*time.Second), 90*time.Second, now)

	assert.Equal(t, 55, p.Percent)
	assert.Equal(t, "Downloading... 50.0%", p.Message)
	assert.Equal(t, "1.0 MB/s", p.Speed)
	assert.Equal(t, "1m 30s", p.ETA)
	assert.Equal(t, int64(2_000_000), p.DownloadedBytes)
	assert.Equal(t, int64(4_000_000), p.TotalBytes)

	p = transferProgress(0, 0, time.Time{}, 0, now)
	assert.Equal(t, "Downloading...", p.Message)
	assert.Equal(t, "0 B/s", p.Speed)
	assert.Equal(t, "Unknown", p.ETA)
}

func TestBuildInfo(t *testing.T) {
	raw := &ytdlp.ExtractedInfo{
		Title:       ptr("Song"),
		Duration:    ptr(4000.0),
		ViewCount:   ptr(10.0),
		LikeCount:   ptr(2.0),
		UploadDate:  ptr("20240101"),
		Description: ptr(strings.Repeat("d", 250)),
		Thumbnail:   ptr("https://i.example/t.jpg"),
		Formats: []*ytdlp.ExtractedFormat{
			{FormatID: ptr("137"), Height: ptr(1080.0), VCodec: ptr("avc1")},
			{FormatID: ptr("140"), ACodec: ptr("mp4a")},
		},
	}

	info := buildInfo(raw)

	assert.Equal(t, "Song", info.Title)
	assert.Equal(t, "YouTube Channel", info.Uploader)
	assert.Equal(t, "1h 6m 40s", info.DurationString)
	assert.True(t, info.IsLongVideo)
	assert.Equal(t, int64(10), info.ViewCount)
	assert.Equal(t, int64(2), info.LikeCount)
	assert.Equal(t, "20240101", info.UploadDate)
	assert.Equal(t, 203, len([]rune(info.Description)))
	assert.True(t, strings.HasSuffix(info.Description, "..."))

	ids := make([]string, 0, len(info.Formats))
	for _, f := range info.Formats {
		ids = append(ids, f.FormatID)
	}
	assert.Equal(t, []string{Format1080p, Format720p, Format480p, FormatBest, FormatBestAudio}, ids)

	// Long videos recommend 720p over 1080p.
	assert.False(t, info.Formats[0].Recommended)
	assert.True(t, info.Formats[1].Recommended)
	assert.Equal(t, "mp3", info.Formats[4].Ext)
	assert.Equal(t, "none", info.Formats[4].VCodec)
}

func TestBuildInfoMissingFields(t *testing.T) {
	info := buildInfo(&ytdlp.ExtractedInfo{
		Formats: []*ytdlp.ExtractedFormat{nil, {FormatID: ptr("18")}},
	})

	assert.Equal(t, "YouTube Video", info.Title)
	assert.Equal(t, "YouTube Channel", info.Uploader)
	assert.Equal(t, 0, info.Duration)
	assert.Equal(t, "Unknown", info.DurationString)
	assert.Empty(t, info.Description)
	require.Len(t, info.Formats, 2)
	assert.Equal(t, FormatBest, info.Formats[0].FormatID)

	assert.NotNil(t, buildInfo(nil))
}

func TestBuildInfoFromYtdlpOutput(t *testing.T) {
	line := json.RawMessage(`{"_type":"video","id":"abc","title":"Clip","duration":125.4,` +
		`"uploader":"Someone","view_count":42,"like_count":7,"upload_date":"20240301",` +
		`"formats":[{"format_id":"22","height":720,"vcodec":"avc1","acodec":"mp4a"},` +
		`{"format_id":"140","vcodec":"none","acodec":"mp4a"}]}`)
	res := &ytdlp.Result{OutputLogs: []*ytdlp.ResultLog{{Pipe: "stdout", JSON: &line}}}

	extracted, err := res.GetExtractedInfo()
	require.NoError(t, err)
	require.Len(t, extracted, 1)

	info := buildInfo(extracted[0])
	assert.Equal(t, "Clip", info.Title)
	assert.Equal(t, "Someone", info.Uploader)
	assert.Equal(t, 125, info.Duration)
	assert.Equal(t, "2m 5s", info.DurationString)
	assert.Equal(t, int64(42), info.ViewCount)
	assert.Equal(t, int64(7), info.LikeCount)

	ids := make([]string, 0, len(info.Formats))
	for _, f := range info.Formats {
		ids = append(ids, f.FormatID)
	}
	assert.Equal(t, []string{Format720p, Format480p, FormatBest, FormatBestAudio}, ids)
	assert.True(t, info.Formats[0].Recommended)
}

func TestBuildFormatsAudioOnlySource(t *testing.T) {
	formats := buildFormats([]*ytdlp.ExtractedFormat{{FormatID: ptr("140"), VCodec: ptr("none"), Height: ptr(0.0)}}, 0, false)

	require.Len(t, formats, 2)
	assert.Equal(t, FormatBest, formats[0].FormatID)
	assert.True(t, formats[0].Recommended)
	assert.Equal(t, "Unknown", formats[0].EstimatedSize)
	assert.Equal(t, FormatBestAudio, formats[1].FormatID)
}

func TestFormatDurationAndEstimates(t *testing.T) {
	assert.Equal(t, "Unknown", FormatDuration(0))
	assert.Equal(t, "45s", FormatDuration(45))
	assert.Equal(t, "2m 5s", FormatDuration(125))
	assert.Equal(t, "1h 0m 1s", FormatDuration(3601))

	assert.Equal(t, "~50 MB", estimateVideoSize(600, 720))
	assert.Equal(t, "~80 MB", estimateVideoSize(600, 1080))
	assert.Equal(t, "~50 MB", estimateVideoSize(600, 999))
	assert.Equal(t, "~24 MB", estimateAudioSize(600))
}

func TestDescribe(t *testing.T) {
	tests := map[string]struct {
		err error
		exp string
	}{
		"Nil error has no description.": {
			err: nil,
			exp: "",
		},
		"Bot checks are reported as blocking.": {
			err: wrapToolError(errors.New("exit status 1"), "ERROR: Sign in to confirm you're not a bot"),
			exp: descriptions[ErrBlocked],
		},
		"Unavailable videos are reported.": {
			err: wrapToolError(errors.New("exit status 1"), "ERROR: [youtube] abc: Video unavailable"),
			exp: descriptions[ErrUnavailable],
		},
		"Missing formats are reported.": {
			err: wrapToolError(errors.New("exit status 1"), "ERROR: Requested format is not available"),
			exp: descriptions[ErrFormatUnavailable],
		},
		"Disk full is reported.": {
			err: errors.New("write: No space left on device"),
			exp: descriptions[ErrNoSpace],
		},
		"Words containing bot are not blocking.": {
			err: wrapToolError(errors.New("exit status 1"), "ERROR: Unable to download both video and audio: HTTP Error 404"),
			exp: "exit status 1: ERROR: Unable to download both video and audio: HTTP Error 404",
		},
		"Bot as a word is blocking.": {
			err: errors.New("ERROR: [youtube] abc: Bot detection triggered"),
			exp: descriptions[ErrBlocked],
		},
		"Unknown errors keep their text.": {
			err: errors.New("something odd"),
			exp: "something odd",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, Describe(test.err))
		})
	}
}

func TestWrapToolErrorKeepsKind(t *testing.T) {
	err := wrapToolError(errors.New("exit status 1"), "line one\nERROR: Private video\n")
	assert.ErrorIs(t, err, ErrPrivate)
	assert.Contains(t, err.Error(), "ERROR: Private video")

	base := errors.New("exit status 2")
	err = wrapToolError(base, "ERROR: weird failure")
	assert.ErrorIs(t, err, base)
	assert.Contains(t, err.Error(), "weird failure")

	assert.NoError(t, wrapToolError(nil, "ignored"))
}

func TestClassifyBotWords(t *testing.T) {
	tests := map[string]struct {
		output string
		exp    error
	}{
		"Bot verification is blocking.": {
			output: "Sign in to confirm you're not a bot",
			exp:    ErrBlocked,
		},
		"Both is not blocking.": {
			output: "Unable to download both video and audio",
			exp:    nil,
		},
		"Robot is not blocking.": {
			output: "robots.txt disallows this",
			exp:    nil,
		},
		"Bottom is not blocking.": {
			output: "see bottom of page",
			exp:    nil,
		},
		"Other kinds still match.": {
			output: "ERROR: Private video",
			exp:    ErrPrivate,
		},
		"Uppercase bot is blocking.": {
			output: "BOT check required",
			exp:    ErrBlocked,
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.exp, classify(test.output))
		})
	}
}

func TestExtractError(t *testing.T) {
	toolErr := errors.New("exit status 1")

	err := extractError(context.DeadlineExceeded, toolErr, "")
	assert.ErrorIs(t, err, ErrTimeout)

	err = extractError(fmt.Errorf("parent: %w", context.DeadlineExceeded), toolErr, "")
	assert.ErrorIs(t, err, ErrTimeout)

	err = extractError(context.Canceled, toolErr, "ERROR: something")
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrTimeout)

	err = extractError(nil, toolErr, "ERROR: Private video")
	assert.ErrorIs(t, err, ErrPrivate)

	err = extractError(nil, toolErr, "")
	assert.Equal(t, toolErr, err)
}

func TestResolveOutput(t *testing.T) {
	dir := t.TempDir()
	reported := filepath.Join(dir, "video_abc12345.mp4")
	require.NoError(t, os.WriteFile(reported, []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "video_abc12345.webm"), []byte("x"), 0o600))

	got, err := resolveOutput(dir, "abc12345", []*ytdlp.ExtractedInfo{{Filename: ptr(reported)}})
	require.NoError(t, err)
	assert.Equal(t, reported, got)

	// A name outside the task dir falls back to scanning.
	other := filepath.Join(t.TempDir(), "video_abc12345.mp4")
	got, err = resolveOutput(dir, "abc12345", []*ytdlp.ExtractedInfo{{Filename: ptr(other)}, nil})
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(got))

	_, err = resolveOutput(t.TempDir(), "abc12345", nil)
	assert.ErrorIs(t, err, ErrFileNotFound)
}

func TestFindOutput(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "video_abc12345.mp4.part"), []byte("x"), 0o600))

	_, err := findOutput(dir, "abc12345")
	assert.ErrorIs(t, err, ErrFileNotFound)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "video_abc12345.mp4"), []byte("x"), 0o600))
	got, err := findOutput(dir, "abc12345")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "video_abc12345.mp4"), got)
}
