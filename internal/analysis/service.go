package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/finsight/platform/internal/common"
	"github.com/finsight/platform/internal/document"
)

// Analyzer is the analysis engine capability.
type Analyzer interface {
	Analyze(ctx context.Context, text, query string) (string, error)
}

// Publisher is the broker side the pipeline needs: immediate enqueue on submit,
// delayed enqueue for retries.
type Publisher interface {
	PublishJob(ctx context.Context, jobID string) error
	PublishJobRetry(ctx context.Context, jobID string, delay time.Duration) error
}

// ResultCache mirrors terminal job payloads for fast polling. Optional.
type ResultCache interface {
	CacheJobResult(ctx context.Context, jobID string, payload []byte, ttl time.Duration) error
}

const resultCacheTTL = time.Hour

type Service struct {
	repo        *Repo
	reader      document.Reader
	engine      Analyzer
	publisher   Publisher
	cache       ResultCache
	maxAttempts int
	backoff     time.Duration
	timeout     time.Duration
}

func NewService(repo *Repo, reader document.Reader, engine Analyzer, publisher Publisher, cache ResultCache, maxAttempts int, backoff, timeout time.Duration) *Service {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoff <= 0 {
		backoff = 60 * time.Second
	}
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Service{
		repo:        repo,
		reader:      reader,
		engine:      engine,
		publisher:   publisher,
		cache:       cache,
		maxAttempts: maxAttempts,
		backoff:     backoff,
		timeout:     timeout,
	}
}

type SubmitInput struct {
	UserID       uint64
	FilePath     string
	OriginalName string
	SizeBytes    int64
	ContentType  string
	Query        string
}

// Submit validates the input, persists the job and file records, then enqueues.
// The job row commits before the publish so a crash in between leaves a
// discoverable submitted job rather than an orphaned queue entry.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (string, error) {
	if strings.TrimSpace(in.Query) == "" {
		return "", fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	info, err := os.Stat(in.FilePath)
	if err != nil {
		return "", fmt.Errorf("%w: file not readable: %v", ErrInvalidInput, err)
	}
	if info.IsDir() {
		return "", fmt.Errorf("%w: file reference is a directory", ErrInvalidInput)
	}

	jobID, err := common.NewULID()
	if err != nil {
		return "", err
	}

	job := &Job{
		ID:       jobID,
		UserID:   in.UserID,
		FileName: in.OriginalName,
		FilePath: in.FilePath,
		Query:    in.Query,
		Status:   JobSubmitted,
	}
	if err := s.repo.CreateJob(ctx, job); err != nil {
		return "", err
	}

	file := &UploadedFile{
		JobID:        jobID,
		OriginalName: in.OriginalName,
		Path:         in.FilePath,
		SizeBytes:    in.SizeBytes,
		ContentType:  in.ContentType,
	}
	if err := s.repo.CreateUploadedFile(ctx, file); err != nil {
		return "", err
	}

	if err := s.publisher.PublishJob(ctx, jobID); err != nil {
		// the job row already exists; leave a terminal, queryable failure
		_ = s.repo.MarkJobFailed(ctx, jobID, "enqueue failed: "+err.Error(), 0)
		return "", err
	}
	return jobID, nil
}

// Execute runs one attempt of a job: read document, analyze, persist result.
// A nil return means the job reached (or already was in) a state the caller
// may ack; a non-nil return means this attempt failed and the caller should
// drive FailOrRetry.
func (s *Service) Execute(ctx context.Context, jobID string) error {
	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return err
	}

	// redelivery of an already-terminal job is a no-op
	if j.Status.Terminal() {
		return nil
	}

	// cancellation is observed at attempt boundaries only
	if j.CancelRequested {
		if err := s.repo.MarkJobFailed(ctx, jobID, "canceled by request", 0); err != nil {
			return err
		}
		s.cacheTerminal(ctx, jobID)
		return nil
	}

	start := time.Now()

	if err := s.repo.MarkJobProcessing(ctx, jobID, 25, "reading document"); err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	text, err := s.reader.Read(cctx, j.FilePath)
	if err != nil {
		return fmt.Errorf("read document: %w", err)
	}

	if err := s.repo.MarkJobProcessing(ctx, jobID, 50, "analyzing"); err != nil {
		return err
	}

	result, err := s.engine.Analyze(cctx, text, j.Query)
	if err != nil {
		return fmt.Errorf("analyze: %w", err)
	}

	if err := s.repo.MarkJobProcessing(ctx, jobID, 90, "finalizing"); err != nil {
		return err
	}

	if err := s.repo.MarkJobCompleted(ctx, jobID, result, time.Since(start)); err != nil {
		return err
	}
	s.cacheTerminal(ctx, jobID)
	return nil
}

// FailOrRetry records a failed attempt. Below the attempt limit the job is
// re-enqueued with backoff and stays processing; at the limit it becomes
// terminal failed with the cause preserved verbatim.
func (s *Service) FailOrRetry(ctx context.Context, jobID string, cause error) (retried bool, err error) {
	if err := s.repo.IncrementJobAttempts(ctx, jobID); err != nil {
		return false, err
	}
	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return false, err
	}
	if j.Status.Terminal() {
		return false, nil
	}

	if j.Attempts < s.maxAttempts && !j.CancelRequested {
		if err := s.publisher.PublishJobRetry(ctx, jobID, s.backoff); err != nil {
			// retry could not be made durable; fail terminally instead of
			// losing the job
			log.Printf("retry publish failed job=%s err=%v", jobID, err)
			if mErr := s.repo.MarkJobFailed(ctx, jobID, cause.Error(), 0); mErr != nil {
				return false, mErr
			}
			s.cacheTerminal(ctx, jobID)
			return false, nil
		}
		return true, nil
	}

	if err := s.repo.MarkJobFailed(ctx, jobID, cause.Error(), 0); err != nil {
		return false, err
	}
	s.cacheTerminal(ctx, jobID)
	return false, nil
}

func (s *Service) GetStatus(ctx context.Context, jobID string) (*Job, error) {
	return s.repo.GetJobByID(ctx, jobID)
}

// RequestCancel marks desired cancellation. Best-effort: an in-flight attempt
// is not interrupted; the mark is honored at the next attempt boundary.
func (s *Service) RequestCancel(ctx context.Context, jobID string) error {
	if _, err := s.repo.GetJobByID(ctx, jobID); err != nil {
		return err
	}
	return s.repo.RequestJobCancel(ctx, jobID)
}

func (s *Service) RecordUsage(ctx context.Context, rec *UsageRecord) error {
	return s.repo.AppendUsage(ctx, rec)
}

func (s *Service) UsageStats(ctx context.Context, userID uint64, window time.Duration) (*UsageStats, error) {
	return s.repo.UsageStats(ctx, userID, time.Now().Add(-window))
}

// CachedResult is the payload mirrored to the result cache. It carries the
// owner explicitly because Job hides it from JSON.
type CachedResult struct {
	UserID uint64 `json:"user_id"`
	Job    *Job   `json:"job"`
}

// cacheTerminal mirrors the terminal job payload to the result cache.
// Best-effort: the DB row is authoritative.
func (s *Service) cacheTerminal(ctx context.Context, jobID string) {
	if s.cache == nil {
		return
	}
	j, err := s.repo.GetJobByID(ctx, jobID)
	if err != nil {
		return
	}
	b, err := json.Marshal(CachedResult{UserID: j.UserID, Job: j})
	if err != nil {
		return
	}
	if err := s.cache.CacheJobResult(ctx, jobID, b, resultCacheTTL); err != nil {
		log.Printf("result cache write failed job=%s err=%v", jobID, err)
	}
}
