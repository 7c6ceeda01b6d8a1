package analysis

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

// Job CRUD

func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &j, nil
}

// MarkJobProcessing records a progress marker. Terminal rows are never touched,
// so a late progress write after completion cannot resurrect a job.
func (r *Repo) MarkJobProcessing(ctx context.Context, id string, progress int, stage string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status NOT IN ?", id, []JobStatus{JobCompleted, JobFailed}).
		Updates(map[string]any{
			"status":   JobProcessing,
			"progress": progress,
			"stage":    stage,
		}).Error
}

func (r *Repo) MarkJobCompleted(ctx context.Context, id string, analysis string, duration time.Duration) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status NOT IN ?", id, []JobStatus{JobCompleted, JobFailed}).
		Updates(map[string]any{
			"status":      JobCompleted,
			"progress":    100,
			"stage":       "done",
			"analysis":    analysis,
			"error":       nil,
			"duration_ms": duration.Milliseconds(),
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string, duration time.Duration) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status NOT IN ?", id, []JobStatus{JobCompleted, JobFailed}).
		Updates(map[string]any{
			"status":      JobFailed,
			"stage":       "failed",
			"error":       errMsg,
			"analysis":    nil,
			"duration_ms": duration.Milliseconds(),
		}).Error
}

func (r *Repo) IncrementJobAttempts(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		UpdateColumn("attempts", gorm.Expr("attempts + ?", 1)).Error
}

func (r *Repo) RequestJobCancel(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status NOT IN ?", id, []JobStatus{JobCompleted, JobFailed}).
		Update("cancel_requested", true).Error
}

// Uploaded files

func (r *Repo) CreateUploadedFile(ctx context.Context, f *UploadedFile) error {
	return r.db.WithContext(ctx).Create(f).Error
}

// ListExpiredUploadedFiles returns not-yet-deleted artifacts created before cutoff.
func (r *Repo) ListExpiredUploadedFiles(ctx context.Context, cutoff time.Time, limit int) ([]UploadedFile, error) {
	if limit <= 0 {
		limit = 100
	}
	var files []UploadedFile
	if err := r.db.WithContext(ctx).
		Where("deleted = ? AND created_at < ?", false, cutoff).
		Order("created_at ASC").
		Limit(limit).
		Find(&files).Error; err != nil {
		return nil, err
	}
	return files, nil
}

func (r *Repo) MarkUploadedFileDeleted(ctx context.Context, id uint64) error {
	return r.db.WithContext(ctx).Model(&UploadedFile{}).
		Where("id = ?", id).
		Update("deleted", true).Error
}

// Usage log

func (r *Repo) AppendUsage(ctx context.Context, rec *UsageRecord) error {
	return r.db.WithContext(ctx).Create(rec).Error
}

// UsageStats aggregates records at or after since. A userID of 0 aggregates
// across all users.
func (r *Repo) UsageStats(ctx context.Context, userID uint64, since time.Time) (*UsageStats, error) {
	q := r.db.WithContext(ctx).Model(&UsageRecord{}).
		Where("created_at >= ?", since)
	if userID != 0 {
		q = q.Where("user_id = ?", userID)
	}

	var row struct {
		Requests      int64
		AvgDurationMs float64
		TotalBytes    int64
	}
	if err := q.Select(
		"COUNT(*) AS requests, COALESCE(AVG(duration_ms), 0) AS avg_duration_ms, COALESCE(SUM(bytes_in), 0) AS total_bytes",
	).Scan(&row).Error; err != nil {
		return nil, err
	}

	return &UsageStats{
		Requests:      row.Requests,
		AvgDurationMs: row.AvgDurationMs,
		TotalBytes:    row.TotalBytes,
	}, nil
}
