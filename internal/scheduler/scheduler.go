package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/finsight/platform/internal/analysis"
	"github.com/robfig/cron/v3"
)

// FileStore is the slice of the repo the cleanup pass needs.
type FileStore interface {
	ListExpiredUploadedFiles(ctx context.Context, cutoff time.Time, limit int) ([]analysis.UploadedFile, error)
	MarkUploadedFileDeleted(ctx context.Context, id uint64) error
}

// HeartbeatStore publishes worker liveness.
type HeartbeatStore interface {
	SetHeartbeat(ctx context.Context, workerID string, payload []byte, ttl time.Duration) error
}

type Scheduler struct {
	files     FileStore
	heartbeat HeartbeatStore
	retention time.Duration
	workerID  string

	// swappable for tests
	remove func(string) error
}

func New(files FileStore, heartbeat HeartbeatStore, retention time.Duration) *Scheduler {
	if retention <= 0 {
		retention = time.Hour
	}
	return &Scheduler{
		files:     files,
		heartbeat: heartbeat,
		retention: retention,
		workerID:  fmt.Sprintf("%s-%d", hostname(), os.Getpid()),
		remove:    os.Remove,
	}
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}

// CleanupPass deletes uploaded-file artifacts older than the retention window.
// Individual failures are logged and skipped; the pass always visits every
// expired file. Safe to run concurrently with active jobs.
func (s *Scheduler) CleanupPass(ctx context.Context) (deleted int, err error) {
	cutoff := time.Now().Add(-s.retention)
	files, err := s.files.ListExpiredUploadedFiles(ctx, cutoff, 500)
	if err != nil {
		return 0, err
	}

	for _, f := range files {
		if err := s.remove(f.Path); err != nil && !os.IsNotExist(err) {
			log.Printf("cleanup: remove failed path=%s job=%s err=%v", f.Path, f.JobID, err)
			continue
		}
		if err := s.files.MarkUploadedFileDeleted(ctx, f.ID); err != nil {
			log.Printf("cleanup: mark deleted failed id=%d err=%v", f.ID, err)
			continue
		}
		deleted++
	}
	return deleted, nil
}

type heartbeatPayload struct {
	Status    string `json:"status"`
	Timestamp int64  `json:"timestamp"`
	WorkerID  string `json:"worker_id"`
}

// HeartbeatOnce reports liveness for external monitoring.
func (s *Scheduler) HeartbeatOnce(ctx context.Context) error {
	b, err := json.Marshal(heartbeatPayload{
		Status:    "healthy",
		Timestamp: time.Now().Unix(),
		WorkerID:  s.workerID,
	})
	if err != nil {
		return err
	}
	return s.heartbeat.SetHeartbeat(ctx, s.workerID, b, 5*time.Minute)
}

// Run schedules both periodic tasks and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context, cleanupEvery, heartbeatEvery time.Duration) error {
	c := cron.New()

	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cleanupEvery), func() {
		n, err := s.CleanupPass(ctx)
		if err != nil {
			log.Printf("cleanup pass failed err=%v", err)
			return
		}
		if n > 0 {
			log.Printf("cleanup pass deleted=%d", n)
		}
	}); err != nil {
		return err
	}

	if _, err := c.AddFunc(fmt.Sprintf("@every %s", heartbeatEvery), func() {
		if err := s.HeartbeatOnce(ctx); err != nil {
			log.Printf("heartbeat failed err=%v", err)
		}
	}); err != nil {
		return err
	}

	c.Start()
	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	return nil
}
