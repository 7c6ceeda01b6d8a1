package main

import (
	"context"
	"log"
	"os"

	"github.com/finsight/platform/internal/analysis"
	"github.com/finsight/platform/internal/config"
	"github.com/finsight/platform/internal/db"
	"github.com/finsight/platform/internal/document"
	"github.com/finsight/platform/internal/httpapi"
	"github.com/finsight/platform/internal/models"
	"github.com/finsight/platform/internal/store/rabbitmq"
	"github.com/finsight/platform/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	if err := gdb.AutoMigrate(
		&models.User{},
		&analysis.Job{},
		&analysis.UploadedFile{},
		&analysis.UsageRecord{},
	); err != nil {
		log.Fatalf("automigrate: %v", err)
	}

	rds := redisstore.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()
	if err := rds.Ping(context.Background()); err != nil {
		log.Printf("redis ping failed: %v", err)
	}

	pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer pub.Close()

	repo := analysis.NewRepo(gdb)
	// the API process never executes jobs, so it carries no reader/engine
	svc := analysis.NewService(repo, document.NewPDFReader(), nil, pub, rds,
		cfg.JobMaxAttempts, cfg.JobRetryBackoff, cfg.AnalysisTimeout)

	r := httpapi.NewRouter(gdb, cfg, rds, svc)

	addr := os.Getenv("LISTEN_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	log.Printf("api listening addr=%s queue=%s", addr, cfg.RabbitQueue)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
