// Package media wraps yt-dlp (through github.com/lrstanley/go-ytdlp) for
// metadata extraction and downloads.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lrstanley/go-ytdlp"
	"github.com/rs/zerolog/log"

	fileutil "vidfetch/internal/file"
)

const (
	progressInterval = 500 * time.Millisecond
	defaultTimeout   = 60 * time.Second
	audioBitrate     = "320K"
)

// skippedSuffixes are partial files left behind by yt-dlp.
var skippedSuffixes = []string{".part", ".ytdl", ".temp"}

// Progress is one report from a running download.
type Progress struct {
	Percent         int
	Message         string
	DownloadedBytes int64
	TotalBytes      int64
	Speed           string
	ETA             string
}

// ProgressFunc receives progress reports. It is called from the goroutine
// running the download.
type ProgressFunc func(Progress)

// Request describes one download.
type Request struct {
	URL      string
	FormatID string
	Quality  string
	// DestDir must exist and be private to this request.
	DestDir string
}

// Result describes the finished media file.
type Result struct {
	Path     string
	Filename string
	Size     int64
}

// Client runs yt-dlp.
type Client struct {
	extractTimeout time.Duration
}

// NewClient creates a client. A non-positive timeout selects the default.
func NewClient(extractTimeout time.Duration) *Client {
	if extractTimeout <= 0 {
		extractTimeout = defaultTimeout
	}
	return &Client{extractTimeout: extractTimeout}
}

// Install makes sure a usable yt-dlp binary is present, downloading one if
// needed.
func Install(ctx context.Context) error {
	if _, err := ytdlp.Install(ctx, nil); err != nil {
		return fmt.Errorf("install yt-dlp: %w", err)
	}
	return nil
}

// Extract fetches metadata for url without downloading media.
func (c *Client) Extract(ctx context.Context, url string) (*Info, error) {
	ctx, cancel := context.WithTimeout(ctx, c.extractTimeout)
	defer cancel()

	target := Canonical(url)
	log.Info().Str("url", target).Msg("extracting video info")

	res, err := ytdlp.New().
		NoPlaylist().
		SkipDownload().
		DumpJSON().
		Run(ctx, target)
	if err != nil {
		return nil, extractError(ctx.Err(), err, stderrOf(res))
	}

	extracted, err := res.GetExtractedInfo()
	if err != nil {
		return nil, fmt.Errorf("decode yt-dlp output: %w", err)
	}
	if len(extracted) == 0 {
		return nil, &Error{Kind: ErrUnavailable, Detail: "yt-dlp returned no video info"}
	}
	raw := extracted[0]
	info := buildInfo(raw)
	log.Info().
		Str("url", target).
		Str("title", info.Title).
		Int("duration", info.Duration).
		Int("formats", len(raw.Formats)).
		Msg("video info extracted")
	return info, nil
}

// extractError classifies a failed metadata run. Only an expired deadline
// counts as a timeout; a cancelled caller gets its context error back.
func extractError(ctxErr, err error, stderr string) error {
	switch {
	case errors.Is(ctxErr, context.DeadlineExceeded):
		return &Error{Kind: ErrTimeout, Detail: ctxErr.Error()}
	case ctxErr != nil:
		return fmt.Errorf("extract: %w", ctxErr)
	}
	return wrapToolError(err, stderr)
}

func stderrOf(res *ytdlp.Result) string {
	if res == nil {
		return ""
	}
	return res.Stderr
}

// Download retrieves the media into req.DestDir, reporting progress through
// report. The returned file is renamed after the video title.
func (c *Client) Download(ctx context.Context, req Request, report ProgressFunc) (Result, error) {
	if req.DestDir == "" {
		return Result{}, errors.New("empty destination dir")
	}
	if report == nil {
		report = func(Progress) {}
	}

	target := Canonical(req.URL)
	audio := IsAudio(req.FormatID, req.Quality)
	uniqueID := uuid.NewString()[:8]
	prefix := "video_"
	if audio {
		prefix = "audio_"
	}

	var (
		titleMu sync.Mutex
		title   string
	)
	cmd := ytdlp.New().
		NoPlaylist().
		ForceOverwrites().
		PrintJSON().
		Format(Selector(req.FormatID)).
		Output(filepath.Join(req.DestDir, prefix+uniqueID+".%(ext)s")).
		ProgressFunc(progressInterval, func(update ytdlp.ProgressUpdate) {
			if update.Info != nil && update.Info.Title != nil && *update.Info.Title != "" {
				titleMu.Lock()
				title = *update.Info.Title
				titleMu.Unlock()
			}
			report(transferProgress(int64(update.DownloadedBytes), int64(update.TotalBytes), update.Started, update.ETA(), time.Now()))
		})
	if audio {
		cmd = cmd.ExtractAudio().AudioFormat("mp3").AudioQuality(audioBitrate)
	} else {
		cmd = cmd.MergeOutputFormat("mp4")
	}

	log.Info().
		Str("url", target).
		Str("format_id", req.FormatID).
		Str("quality", req.Quality).
		Bool("audio", audio).
		Msg("starting yt-dlp download")

	report(Progress{Percent: 10, Message: "Preparing download..."})
	res, err := cmd.Run(ctx, target)
	if err != nil {
		return Result{}, wrapToolError(err, stderrOf(res))
	}
	report(Progress{Percent: finishingAt, Message: "Processing downloaded file..."})

	extracted, err := res.GetExtractedInfo()
	if err != nil {
		log.Debug().Err(err).Str("url", target).Msg("yt-dlp printed unreadable info")
	}
	tempPath, err := resolveOutput(req.DestDir, uniqueID, extracted)
	if err != nil {
		return Result{}, err
	}

	titleMu.Lock()
	base := title
	titleMu.Unlock()
	if len(extracted) > 0 && deref(extracted[0].Title) != "" {
		base = *extracted[0].Title
	}
	if base == "" {
		base = "YouTube Video"
		if audio {
			base = "YouTube Audio"
		}
	}
	if audio {
		base += "_audio"
	}
	finalName, err := fileutil.UniqueName(req.DestDir, base, strings.TrimPrefix(filepath.Ext(tempPath), "."))
	if err != nil {
		return Result{}, fmt.Errorf("choose file name: %w", err)
	}
	finalPath := filepath.Join(req.DestDir, finalName)
	if err := fileutil.MoveFile(tempPath, finalPath); err != nil {
		return Result{}, fmt.Errorf("finalize file: %w", err)
	}

	stat, err := os.Stat(finalPath)
	if err != nil {
		return Result{}, fmt.Errorf("stat output: %w", err)
	}
	return Result{Path: finalPath, Filename: finalName, Size: stat.Size()}, nil
}

// resolveOutput prefers the file name yt-dlp reported and falls back to
// scanning dir for uniqueID. Reported names outside dir are ignored.
func resolveOutput(dir, uniqueID string, extracted []*ytdlp.ExtractedInfo) (string, error) {
	for _, info := range extracted {
		if info == nil || info.Filename == nil {
			continue
		}
		path := filepath.Clean(*info.Filename)
		if filepath.Dir(path) != filepath.Clean(dir) || !strings.Contains(filepath.Base(path), uniqueID) {
			continue
		}
		if stat, err := os.Stat(path); err == nil && !stat.IsDir() {
			return path, nil
		}
	}
	return findOutput(dir, uniqueID)
}

// findOutput locates the file yt-dlp produced for uniqueID.
func findOutput(dir, uniqueID string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", fmt.Errorf("read output dir: %w", err)
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.Contains(name, uniqueID) || hasSkippedSuffix(name) {
			continue
		}
		return filepath.Join(dir, name), nil
	}
	return "", ErrFileNotFound
}

func hasSkippedSuffix(name string) bool {
	for _, suffix := range skippedSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
