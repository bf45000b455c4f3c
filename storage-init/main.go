package main

import (
	"context"
	"os"
	"time"

	log "github.com/sirupsen/logrus"

	"ocean-platform/ocean-api/config"
	"ocean-platform/ocean-api/storage"
)

func main() {
	config.Load()
	config.SetupLogging()
	log.Info("storage init starting")

	storeCfg := config.StoreFromEnv()
	if storeCfg.ConnString == "" {
		log.Fatal("missing STORAGE_CONNECTION_STRING")
	}

	ctx, cancel := context.WithTimeout(context.Background(), config.Duration("INIT_TIMEOUT", 5*time.Minute))
	defer cancel()

	tables, err := storage.NewTables(storeCfg.ConnString, storeCfg.TablePrefix)
	if err != nil {
		log.Fatalf("tables client: %v", err)
	}
	if err := tables.CreateTables(ctx); err != nil {
		log.Fatalf("create tables: %v", err)
	}

	if name := os.Getenv("REPORT_QUEUE"); name != "" {
		q, err := storage.NewReportQueue(storeCfg.ConnString, name)
		if err != nil {
			log.Fatalf("queue client: %v", err)
		}
		if err := q.Create(ctx); err != nil {
			log.Fatalf("create queue %s: %v", name, err)
		}
	}

	if storeCfg.SeedRecords > 0 && config.Bool("SEED_TABLES", true) {
		start := time.Now()
		ds := storeCfg.Dataset(start.UTC())
		if err := tables.Seed(ctx, ds); err != nil {
			log.Fatalf("seed tables: %v", err)
		}
		log.WithFields(log.Fields{
			"species": len(ds.Species),
			"vessels": len(ds.Vessels),
			"catches": len(ds.CatchReports),
			"edna":    len(ds.EDNASamples),
			"took":    time.Since(start).String(),
		}).Info("tables seeded")
	}

	log.Info("storage init complete")
}
