package api

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"vidfetch/internal/media"
	"vidfetch/internal/system"
	"vidfetch/internal/task"
)

const (
	defaultFormQuality = "Best Available Quality"
	downloadStartedMsg = "Download started. Long videos may take more time. Use the task_id to check progress."
)

// Extractor fetches media metadata synchronously.
type Extractor interface {
	Extract(ctx context.Context, url string) (*media.Info, error)
}

type extractRequest struct {
	URL string `json:"url"`
}

type downloadRequest struct {
	URL      string `json:"url"`
	FormatID string `json:"format_id"`
	Quality  string `json:"quality"`
}

type downloadForm struct {
	VideoURL string `form:"video_url"`
	Format   string `form:"format"`
}

// UsageSampler reads host memory and disk usage for the data dir.
type UsageSampler func(ctx context.Context, dataDir string) (system.Usage, error)

type API struct {
	taskManager *task.Manager
	extractor   Extractor
	sampleUsage UsageSampler
}

func NewAPI(taskManager *task.Manager, extractor Extractor) *API {
	return &API{taskManager: taskManager, extractor: extractor, sampleUsage: system.Sample}
}

// UseUsageSampler replaces the resource sampler behind /health and /stats.
func (a *API) UseUsageSampler(fn UsageSampler) {
	a.sampleUsage = fn
}

// statsResponse is the body of /stats. Counts contributes the per-status
// fields.
type statsResponse struct {
	task.Counts
	ActiveTasks            int             `json:"active_tasks"`
	ActiveDownloads        int             `json:"active_downloads"`
	MaxConcurrentDownloads int             `json:"max_concurrent_downloads"`
	MaxPendingTasks        int             `json:"max_pending_tasks"`
	SystemResources        systemResources `json:"system_resources"`
	StartedAt              string          `json:"started_at"`
	Started                string          `json:"started"`
	Uptime                 string          `json:"uptime"`
}

type systemResources struct {
	MemoryPercent     float64 `json:"memory_percent"`
	DiskPercent       float64 `json:"disk_percent"`
	AvailableMemoryGB float64 `json:"available_memory_gb"`
	AvailableDiskGB   float64 `json:"available_disk_gb"`
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	router.POST("/extract", a.Extract)
	router.POST("/download", a.Download)
	router.POST("/download/form", a.DownloadForm)
	router.GET("/task/:id", a.GetTask)
	router.DELETE("/task/:id", a.DeleteTask)
	router.GET("/tasks", a.ListTasks)
	router.GET("/download-file/:id", a.DownloadFile)
	router.GET("/health", a.Health)
	router.GET("/stats", a.Stats)
}

// Extract returns video metadata and the offered formats
func (a *API) Extract(c *gin.Context) {
	var req extractRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("invalid extract request")
		respondError(c, http.StatusBadRequest, "invalid request")
		return
	}
	target, err := a.taskManager.CheckURL(req.URL)
	if err != nil {
		log.Warn().Str("url", req.URL).Err(err).Msg("rejecting extract")
		respondError(c, statusFor(err), err.Error())
		return
	}
	if a.extractor == nil {
		respondError(c, http.StatusServiceUnavailable, "extraction is not available")
		return
	}

	info, err := a.extractor.Extract(c.Request.Context(), target)
	if err != nil {
		log.Error().Str("url", target).Err(err).Msg("extract failed")
		respondError(c, statusFor(err), media.Describe(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "data": info})
}

// Download accepts a JSON download request and starts a background task
func (a *API) Download(c *gin.Context) {
	var req downloadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		log.Warn().Err(err).Msg("invalid download request")
		respondError(c, http.StatusBadRequest, "invalid request")
		return
	}
	a.submit(c, task.Request{URL: req.URL, FormatID: req.FormatID, Quality: req.Quality})
}

// DownloadForm accepts form fields video_url and format ("id" or "id|quality")
func (a *API) DownloadForm(c *gin.Context) {
	var form downloadForm
	if err := c.ShouldBind(&form); err != nil {
		log.Warn().Err(err).Msg("invalid download form")
		respondError(c, http.StatusBadRequest, "invalid request")
		return
	}
	formatID, quality, found := strings.Cut(form.Format, "|")
	if !found {
		quality = defaultFormQuality
	}
	a.submit(c, task.Request{URL: form.VideoURL, FormatID: formatID, Quality: quality})
}

func (a *API) submit(c *gin.Context, req task.Request) {
	created, err := a.taskManager.Submit(req)
	if err != nil {
		if errors.Is(err, task.ErrBusy) {
			log.Warn().Int("max_pending", a.taskManager.MaxPending()).Msg("rejecting download: queue is full")
		} else {
			log.Warn().Str("url", req.URL).Str("format_id", req.FormatID).Err(err).Msg("rejecting download")
		}
		respondError(c, statusFor(err), err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":    true,
		"task_id":    created.ID,
		"message":    downloadStartedMsg,
		"status_url": "/task/" + created.ID,
	})
}

// GetTask returns task status
func (a *API) GetTask(c *gin.Context) {
	id := c.Param("id")
	found, err := a.taskManager.Get(id)
	if err != nil {
		log.Warn().Str("task_id", id).Msg("task not found on get")
		respondError(c, statusFor(err), "not found")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "task": found})
}

// ListTasks returns every known task
func (a *API) ListTasks(c *gin.Context) {
	tasks := a.taskManager.List()
	c.JSON(http.StatusOK, gin.H{
		"success":          true,
		"tasks":            tasks,
		"total_tasks":      len(tasks),
		"active_downloads": a.taskManager.ActiveDownloads(),
	})
}

// DeleteTask removes a finished task and its file
func (a *API) DeleteTask(c *gin.Context) {
	id := c.Param("id")
	if _, err := a.taskManager.Delete(id); err != nil {
		log.Warn().Str("task_id", id).Err(err).Msg("delete rejected")
		msg := "not found"
		if errors.Is(err, task.ErrTaskActive) {
			msg = task.ErrTaskActive.Error()
		}
		respondError(c, statusFor(err), msg)
		return
	}
	log.Info().Str("task_id", id).Msg("task deleted")
	c.JSON(http.StatusOK, gin.H{"success": true, "message": "Task deleted successfully"})
}

// DownloadFile serves the media file of a completed task
func (a *API) DownloadFile(c *gin.Context) {
	id := c.Param("id")
	found, err := a.taskManager.Get(id)
	if err != nil {
		log.Warn().Str("task_id", id).Msg("task not found on download")
		respondError(c, http.StatusNotFound, "file not found or expired")
		return
	}
	if found.Status != task.StatusCompleted || found.FilePath == "" {
		log.Warn().Str("task_id", id).Str("status", string(found.Status)).Msg("file not ready to download")
		respondError(c, http.StatusBadRequest, "file not ready")
		return
	}
	if _, err := os.Stat(found.FilePath); err != nil {
		log.Warn().Str("task_id", id).Err(err).Msg("file missing on disk")
		respondError(c, http.StatusNotFound, "file not found on disk")
		return
	}
	log.Info().Str("task_id", id).Str("path", found.FilePath).Msg("serving file download")
	c.FileAttachment(found.FilePath, found.Filename)
}

// Health reports liveness, task counts and host resources
func (a *API) Health(c *gin.Context) {
	counts := a.taskManager.Counts()
	usage := a.usage(c.Request.Context())

	c.JSON(http.StatusOK, gin.H{
		"status":           "OK",
		"message":          "Video download service",
		"timestamp":        time.Now().UTC().Format(time.RFC3339),
		"active_tasks":     counts.Processing,
		"total_tasks":      counts.Total,
		"active_downloads": a.taskManager.ActiveDownloads(),
		"busy":             a.taskManager.IsBusy(),
		"system": gin.H{
			"memory_usage":     fmt.Sprintf("%.1f%%", usage.MemoryPercent),
			"disk_usage":       fmt.Sprintf("%.1f%%", usage.DiskPercent),
			"available_memory": humanize.Bytes(usage.AvailableMemory),
			"available_disk":   humanize.Bytes(usage.AvailableDisk),
		},
	})
}

// Stats reports per-status counts, limits, host resources and uptime
func (a *API) Stats(c *gin.Context) {
	counts := a.taskManager.Counts()
	usage := a.usage(c.Request.Context())
	startedAt := a.taskManager.StartedAt()
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats": statsResponse{
			Counts:                 counts,
			ActiveTasks:            counts.Active(),
			ActiveDownloads:        a.taskManager.ActiveDownloads(),
			MaxConcurrentDownloads: a.taskManager.MaxConcurrent(),
			MaxPendingTasks:        a.taskManager.MaxPending(),
			SystemResources: systemResources{
				MemoryPercent:     round2(usage.MemoryPercent),
				DiskPercent:       round2(usage.DiskPercent),
				AvailableMemoryGB: gigabytes(usage.AvailableMemory),
				AvailableDiskGB:   gigabytes(usage.AvailableDisk),
			},
			StartedAt: startedAt.UTC().Format(time.RFC3339),
			Started:   humanize.Time(startedAt),
			Uptime:    time.Since(startedAt).Round(time.Second).String(),
		},
	})
}

// usage samples host resources. Sources that fail stay zero.
func (a *API) usage(ctx context.Context) system.Usage {
	if a.sampleUsage == nil {
		return system.Usage{}
	}
	usage, err := a.sampleUsage(ctx, a.taskManager.DataDir())
	if err != nil {
		log.Warn().Err(err).Msg("resource usage incomplete")
	}
	return usage
}

func gigabytes(b uint64) float64 {
	return round2(float64(b) / (1 << 30))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func respondError(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"success": false, "error": msg})
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, task.ErrInvalidRequest), errors.Is(err, media.ErrInvalidURL):
		return http.StatusBadRequest
	case errors.Is(err, task.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, task.ErrTaskActive):
		return http.StatusConflict
	case errors.Is(err, task.ErrBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, media.ErrBlocked):
		return http.StatusTooManyRequests
	case errors.Is(err, media.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}
