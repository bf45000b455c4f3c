package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"ocean-platform/ocean-api/mockdata"
	"ocean-platform/ocean-api/storage"
)

// Store backends selectable with STORE_BACKEND.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendTables = "tables"
)

// StoreConfig selects and seeds the dataset store.
type StoreConfig struct {
	Backend     string
	SQLitePath  string
	ConnString  string
	TablePrefix string
	Seed        int64
	SeedRecords int
	CacheTTL    time.Duration
}

// StoreFromEnv reads the store settings shared by every service.
func StoreFromEnv() StoreConfig {
	return StoreConfig{
		Backend:     String("STORE_BACKEND", BackendMemory),
		SQLitePath:  String("SQLITE_PATH", "ocean.db"),
		ConnString:  os.Getenv("STORAGE_CONNECTION_STRING"),
		TablePrefix: String("TABLE_PREFIX", ""),
		Seed:        int64(Int("SEED", 42)),
		SeedRecords: Int("SEED_RECORDS", 500),
		CacheTTL:    Duration("CACHE_TTL", storage.DefaultCacheTTL),
	}
}

// Dataset generates the mock dataset described by the config.
func (c StoreConfig) Dataset(now time.Time) mockdata.Dataset {
	return mockdata.NewGenerator(c.Seed, now).Generate(c.SeedRecords)
}

// OpenedStore is a store plus the resources behind it.
type OpenedStore struct {
	storage.Store
	// Seeded holds the generated dataset for the memory backend.
	Seeded *mockdata.Dataset
	Close  func() error
}

// OpenStore builds the configured backend and wraps it with the Redis cache
// when rc is not nil.
func OpenStore(ctx context.Context, c StoreConfig, rc *redis.Client, now time.Time) (*OpenedStore, error) {
	out := &OpenedStore{Close: func() error { return nil }}
	var base storage.Store
	switch c.Backend {
	case BackendMemory:
		ds := c.Dataset(now)
		out.Seeded = &ds
		base = storage.NewMemory(ds)
	case BackendSQLite:
		db, err := storage.OpenSQLite(c.SQLitePath)
		if err != nil {
			return nil, err
		}
		empty, err := db.Empty(ctx)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		if empty && c.SeedRecords > 0 {
			log.WithField("records", c.SeedRecords).Info("seeding sqlite store")
			if err := db.Seed(ctx, c.Dataset(now)); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		base = db
		out.Close = db.Close
	case BackendTables:
		if c.ConnString == "" {
			return nil, fmt.Errorf("tables backend requires STORAGE_CONNECTION_STRING")
		}
		t, err := storage.NewTables(c.ConnString, c.TablePrefix)
		if err != nil {
			return nil, err
		}
		base = t
	default:
		return nil, fmt.Errorf("unknown STORE_BACKEND %q", c.Backend)
	}

	out.Store = base
	if rc != nil && c.CacheTTL > 0 {
		out.Store = storage.NewCache(base, rc, c.CacheTTL)
	}
	return out, nil
}
