package task

import "time"

type Status string

const (
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is the tracked state of one download request.
type Task struct {
	ID       string `json:"id"`
	URL      string `json:"url"`
	FormatID string `json:"format_id"`
	Quality  string `json:"quality"`

	Status   Status `json:"status"`
	Progress int    `json:"progress"`
	Message  string `json:"message"`
	Error    string `json:"error,omitempty"`

	DownloadURL string `json:"download_url,omitempty"`
	Filename    string `json:"filename,omitempty"`
	FilePath    string `json:"-"`
	FileSize    string `json:"file_size,omitempty"`

	DownloadSpeed   string `json:"download_speed,omitempty"`
	ETA             string `json:"eta,omitempty"`
	DownloadedBytes int64  `json:"downloaded_bytes"`
	TotalBytes      int64  `json:"total_bytes"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Request is the input of a download submission.
type Request struct {
	URL      string
	FormatID string
	Quality  string
}

// Counts summarizes the store by status.
type Counts struct {
	Total      int `json:"total_tasks"`
	Queued     int `json:"pending_tasks"`
	Processing int `json:"processing_tasks"`
	Completed  int `json:"completed_tasks"`
	Failed     int `json:"failed_tasks"`
}

// Active is the number of non-terminal tasks.
func (c Counts) Active() int { return c.Queued + c.Processing }

type Options struct {
	DataDir            string
	MaxConcurrentTasks int
	MaxPendingTasks    int
	TaskTTL            time.Duration
	YouTubeOnly        bool

	// DiskPressurePercent is the data dir disk usage at which the janitor
	// halves the TTL.
	DiskPressurePercent float64
}

const (
	defaultMaxConcurrent = 3
	defaultMaxPending    = 50
	defaultTaskTTL       = 2 * time.Hour
	defaultDiskPressure  = 90
	maxProgress          = 100
)
