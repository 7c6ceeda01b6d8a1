package main

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/finsight/platform/internal/ai"
	"github.com/finsight/platform/internal/analysis"
	"github.com/finsight/platform/internal/config"
	"github.com/finsight/platform/internal/db"
	"github.com/finsight/platform/internal/document"
	"github.com/finsight/platform/internal/store/rabbitmq"
	"github.com/finsight/platform/internal/store/redisstore"
	amqp "github.com/rabbitmq/amqp091-go"
)

type jobMsg struct {
	JobID string `json:"job_id"`
}

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

// waitDispatchSlot enforces the shared dispatch rate across all workers with a
// per-second window counter in Redis. Fails open on Redis errors.
func waitDispatchSlot(ctx context.Context, rds *redisstore.Store, limit int) {
	if limit <= 0 {
		return
	}
	for {
		window := time.Now().Unix()
		key := redisstore.RateLimitKey("dispatch", window)
		n, err := rds.IncrWithExpiry(ctx, key, 2*time.Second)
		if err != nil || n <= int64(limit) {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(time.Unix(window+1, 0))):
		}
	}
}

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	repo := analysis.NewRepo(gdb)

	// Provider registry (route by configured provider + model)
	reg := ai.NewRegistry()

	reg.Register("ollama", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OllamaModel
		}
		return ai.NewOllamaProvider(cfg.OllamaBaseURL, m), nil
	})
	reg.Register("openrouter", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		m := strings.TrimSpace(model)
		if m == "" {
			m = cfg.OpenRouterModel
		}
		return ai.NewOpenRouterProvider(cfg.OpenRouterBaseURL, cfg.OpenRouterAPIKey, m, cfg.OpenRouterSiteURL, cfg.OpenRouterAppName), nil
	})

	engine := ai.NewEngine(reg, cfg.AIProvider, "")
	reader := document.NewPDFReader()

	rds := redisstore.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer pub.Close()

	svc := analysis.NewService(repo, reader, engine, pub, rds,
		cfg.JobMaxAttempts, cfg.JobRetryBackoff, cfg.AnalysisTimeout)

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	//  strict concurrency control
	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d rate=%d/s", cfg.RabbitQueue, concurrency, cfg.DispatchRatePerSec)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				var m jobMsg
				if err := json.Unmarshal(d.Body, &m); err != nil || m.JobID == "" {
					log.Printf("worker=%d bad message: %v", workerID, err)
					_ = d.Nack(false, false)
					continue
				}

				handleJob(ctx, svc, workerID, m.JobID, d)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			waitDispatchSlot(ctx, rds, cfg.DispatchRatePerSec)
			jobs <- d
		}
	}
}

// handleJob runs one attempt and acks only after a durable outcome exists:
// terminal row, or a retry message parked on the retry queue.
func handleJob(ctx context.Context, svc *analysis.Service, workerID int, jobID string, d amqp.Delivery) {
	start := time.Now()

	execErr := svc.Execute(ctx, jobID)
	if execErr == nil {
		if err := d.Ack(false); err != nil {
			log.Printf("worker=%d ack failed job=%s err=%v", workerID, jobID, err)
		}
		return
	}

	if errors.Is(execErr, analysis.ErrNotFound) {
		// queue entry without a job row; drop it
		log.Printf("worker=%d unknown job=%s dropping", workerID, jobID)
		_ = d.Nack(false, false)
		return
	}

	retried, err := svc.FailOrRetry(ctx, jobID, execErr)
	if err != nil {
		// could not persist the outcome; leave the message unacked so the
		// broker redelivers it
		log.Printf("worker=%d job=%s outcome persist failed cost=%s err=%v", workerID, jobID, time.Since(start), err)
		_ = d.Nack(false, true)
		return
	}

	log.Printf("worker=%d job=%s attempt failed retried=%t cost=%s err=%v",
		workerID, jobID, retried, time.Since(start), execErr)

	if err := d.Ack(false); err != nil {
		log.Printf("worker=%d ack failed job=%s err=%v", workerID, jobID, err)
	}
}
