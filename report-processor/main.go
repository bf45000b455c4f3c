package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"ocean-platform/ocean-api/config"
	"ocean-platform/ocean-api/storage"
)

func main() {
	config.Load()
	config.SetupLogging()
	logger := log.StandardLogger()
	logger.Info("report processor starting")

	connStr := os.Getenv("STORAGE_CONNECTION_STRING")
	queueName := os.Getenv("REPORT_QUEUE")
	if connStr == "" || queueName == "" {
		log.Fatal("missing storage config")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	queue, err := storage.NewReportQueue(connStr, queueName)
	if err != nil {
		log.Fatalf("queue client: %v", err)
	}

	storeCfg := config.StoreFromEnv()
	if storeCfg.Backend == config.BackendMemory {
		log.Fatal("report processor needs a shared store; set STORE_BACKEND to tables or sqlite")
	}
	store, err := config.OpenStore(ctx, storeCfg, nil, time.Now())
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	rc := config.Redis()
	if rc != nil {
		defer rc.Close()
	} else {
		log.Warn("REDIS_CONNECTION_STRING not set; caches will not be evicted")
	}

	p := newProcessor(queue, store, rc, config.String("CATCH_REPORTS_CHANNEL", "catch-reports"), logger)
	p.batch = int32(config.PositiveInt("REPORT_BATCH", defaultBatch))
	p.visibility = config.Duration("REPORT_VISIBILITY_TIMEOUT", defaultVisibility)
	p.run(ctx)
	logger.Info("report processor stopped")
}
