package storage

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/cespare/xxhash/v2"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"ocean-platform/ocean-api/domain"
)

const (
	cacheKeyPrefix  = "ocean"
	DefaultCacheTTL = 30 * time.Second
)

// Cache wraps a Store with Redis-backed caching of listing pages. Writes bump
// a per-dataset generation so stale pages are never read again and expire on
// their own.
type Cache struct {
	base  Store
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching Store wrapper using the provided Redis client and TTL.
func NewCache(base Store, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base store is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

type cachedPage[T any] struct {
	Records []T    `json:"records"`
	Next    string `json:"next,omitempty"`
}

func generationKey(dataset string) string {
	return cacheKeyPrefix + ":" + dataset + ":gen"
}

// pageCacheKey derives the key of a cached page from the dataset generation
// and a hash of the canonical query.
func pageCacheKey(dataset string, gen int64, q domain.Query) string {
	return fmt.Sprintf("%s:%s:v%d:%016x", cacheKeyPrefix, dataset, gen, xxhash.Sum64String(canonicalQuery(q)))
}

func canonicalQuery(q domain.Query) string {
	var b strings.Builder
	b.WriteString("species=" + q.Species)
	b.WriteString("&vessel=" + q.VesselID)
	b.WriteString("&type=" + q.VesselType)
	b.WriteString("&by=" + q.ReportedBy)
	if q.Bounds != nil {
		fmt.Fprintf(&b, "&bbox=%.6f,%.6f,%.6f,%.6f", q.Bounds.Min.Lat(), q.Bounds.Min.Lon(), q.Bounds.Max.Lat(), q.Bounds.Max.Lon())
	}
	if !q.Since.IsZero() {
		b.WriteString("&since=" + strconv.FormatInt(q.Since.UnixNano(), 10))
	}
	if !q.Until.IsZero() {
		b.WriteString("&until=" + strconv.FormatInt(q.Until.UnixNano(), 10))
	}
	b.WriteString("&limit=" + strconv.Itoa(q.PageSize()))
	b.WriteString("&token=" + q.PageToken)
	return b.String()
}

func (c *Cache) generation(ctx context.Context, dataset string) (int64, bool) {
	gen, err := c.redis.Get(ctx, generationKey(dataset)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, true
		}
		log.WithError(err).WithField("dataset", dataset).Debug("cache.generation.failed")
		return 0, false
	}
	return gen, true
}

func readThrough[T any](ctx context.Context, c *Cache, dataset string, q domain.Query, load func() ([]T, string, error)) ([]T, string, error) {
	if c.redis == nil || c.ttl == 0 {
		return load()
	}
	gen, ok := c.generation(ctx, dataset)
	if !ok {
		return load()
	}
	key := pageCacheKey(dataset, gen, q)

	data, err := c.redis.Get(ctx, key).Bytes()
	if err == nil {
		var page cachedPage[T]
		if err := sonic.Unmarshal(data, &page); err == nil {
			return page.Records, page.Next, nil
		}
		_ = c.redis.Del(ctx, key).Err()
	} else if !errors.Is(err, redis.Nil) {
		// On redis errors fall back to the backing store without failing.
		return load()
	}

	records, next, err := load()
	if err != nil {
		return nil, "", err
	}
	if payload, err := sonic.Marshal(cachedPage[T]{Records: records, Next: next}); err == nil {
		_ = c.redis.Set(ctx, key, payload, c.ttl).Err()
	}
	return records, next, nil
}

func (c *Cache) ListSpecies(ctx context.Context, q domain.Query) ([]domain.SpeciesOccurrence, string, error) {
	return readThrough(ctx, c, DatasetSpecies, q, func() ([]domain.SpeciesOccurrence, string, error) {
		return c.base.ListSpecies(ctx, q)
	})
}

func (c *Cache) ListVessels(ctx context.Context, q domain.Query) ([]domain.VesselPosition, string, error) {
	return readThrough(ctx, c, DatasetVessels, q, func() ([]domain.VesselPosition, string, error) {
		return c.base.ListVessels(ctx, q)
	})
}

func (c *Cache) ListCatchReports(ctx context.Context, q domain.Query) ([]domain.CatchReport, string, error) {
	return readThrough(ctx, c, DatasetCatch, q, func() ([]domain.CatchReport, string, error) {
		return c.base.ListCatchReports(ctx, q)
	})
}

func (c *Cache) ListEDNASamples(ctx context.Context, q domain.Query) ([]domain.EDNASample, string, error) {
	return readThrough(ctx, c, DatasetEDNA, q, func() ([]domain.EDNASample, string, error) {
		return c.base.ListEDNASamples(ctx, q)
	})
}

func (c *Cache) SaveCatchReport(ctx context.Context, r domain.CatchReport) error {
	if err := c.base.SaveCatchReport(ctx, r); err != nil {
		return err
	}
	Evict(ctx, c.redis, DatasetCatch)
	return nil
}

func (c *Cache) SaveEDNASample(ctx context.Context, s domain.EDNASample) error {
	if err := c.base.SaveEDNASample(ctx, s); err != nil {
		return err
	}
	Evict(ctx, c.redis, DatasetEDNA)
	return nil
}

func (c *Cache) UpsertVessel(ctx context.Context, v domain.VesselPosition) error {
	if err := c.base.UpsertVessel(ctx, v); err != nil {
		return err
	}
	Evict(ctx, c.redis, DatasetVessels)
	return nil
}

func (c *Cache) Ping(ctx context.Context) error {
	return c.base.Ping(ctx)
}

// Evict invalidates every cached page of the given datasets. Services that
// write behind the API's back call it directly.
func Evict(ctx context.Context, client *redis.Client, datasets ...string) {
	if client == nil {
		return
	}
	for _, ds := range datasets {
		if err := client.Incr(ctx, generationKey(ds)).Err(); err != nil {
			log.WithError(err).WithField("dataset", ds).Warn("cache.evict.failed")
		}
	}
}
