package analysis

import "time"

type JobStatus string

const (
	JobSubmitted  JobStatus = "submitted"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Terminal reports whether no further automatic transition can happen.
func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobFailed
}

// Job is one unit of document analysis work. The pipeline owns all writes;
// everything else reads.
type Job struct {
	ID string `gorm:"primaryKey;size:26" json:"id"` // ULID length

	UserID uint64 `gorm:"index;not null" json:"-"`

	FileName string `gorm:"type:varchar(255);not null" json:"file_name"`
	FilePath string `gorm:"type:varchar(512);not null" json:"-"`
	Query    string `gorm:"type:text;not null" json:"query"`

	Status   JobStatus `gorm:"type:varchar(16);index;not null" json:"status"`
	Progress int       `gorm:"not null;default:0" json:"progress"`
	Stage    string    `gorm:"type:varchar(64)" json:"stage"`

	Attempts        int  `gorm:"not null;default:0" json:"attempts"`
	CancelRequested bool `gorm:"not null;default:false" json:"-"`

	// Filled when completed
	Analysis *string `gorm:"type:text" json:"analysis,omitempty"`

	// Filled when failed
	Error *string `gorm:"type:text" json:"error,omitempty"`

	DurationMs int64 `gorm:"not null;default:0" json:"duration_ms"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Job) TableName() string { return "analysis_jobs" }

// UploadedFile tracks the transient on-disk artifact behind a job. The
// scheduler deletes artifacts past the retention window regardless of job
// outcome.
type UploadedFile struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	JobID        string `gorm:"size:26;index;not null" json:"job_id"`
	OriginalName string `gorm:"type:varchar(255);not null" json:"original_name"`
	Path         string `gorm:"type:varchar(512);not null" json:"-"`
	SizeBytes    int64  `gorm:"not null" json:"size_bytes"`
	ContentType  string `gorm:"type:varchar(128)" json:"content_type"`

	Deleted bool `gorm:"not null;default:false;index" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"-"`
}

func (UploadedFile) TableName() string { return "uploaded_files" }

// UsageRecord is one externally observable request. Append-only.
type UsageRecord struct {
	ID uint64 `gorm:"primaryKey;autoIncrement" json:"id"`

	UserID     uint64 `gorm:"index" json:"-"`
	Endpoint   string `gorm:"type:varchar(128);not null" json:"endpoint"`
	StatusCode int    `gorm:"not null" json:"status_code"`
	DurationMs int64  `gorm:"not null" json:"duration_ms"`
	BytesIn    int64  `gorm:"not null;default:0" json:"bytes_in"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

func (UsageRecord) TableName() string { return "usage_records" }

// UsageStats aggregates UsageRecord rows over a trailing window.
type UsageStats struct {
	Requests      int64   `json:"requests"`
	AvgDurationMs float64 `json:"avg_duration_ms"`
	TotalBytes    int64   `json:"total_bytes"`
}
