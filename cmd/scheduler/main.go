package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/finsight/platform/internal/analysis"
	"github.com/finsight/platform/internal/config"
	"github.com/finsight/platform/internal/db"
	"github.com/finsight/platform/internal/scheduler"
	"github.com/finsight/platform/internal/store/redisstore"
)

func main() {
	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	repo := analysis.NewRepo(gdb)

	rds := redisstore.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	sched := scheduler.New(repo, rds, cfg.FileRetention)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("scheduler started cleanup=%s heartbeat=%s retention=%s",
		cfg.CleanupInterval, cfg.HeartbeatInterval, cfg.FileRetention)

	if err := sched.Run(ctx, cfg.CleanupInterval, cfg.HeartbeatInterval); err != nil {
		log.Fatalf("scheduler: %v", err)
	}
	log.Printf("scheduler shutting down")
}
