// Package config reads service configuration from the environment.
package config

import (
	"crypto/tls"
	"errors"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// Load reads a .env file from the working directory when present. Variables
// already set in the environment win.
func Load() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatalf("load .env: %v", err)
	}
}

// SetupLogging applies DEBUG and LOG_FORMAT to the standard logger.
func SetupLogging() {
	if Bool("DEBUG", false) {
		log.SetLevel(log.DebugLevel)
	}
	if strings.EqualFold(os.Getenv("LOG_FORMAT"), "json") {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

func String(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func Int(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return n
}

// PositiveInt is Int for values that must be greater than zero.
func PositiveInt(key string, def int) int {
	n := Int(key, def)
	if n <= 0 {
		log.Fatalf("invalid %s: must be greater than zero", key)
	}
	return n
}

func Duration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		log.Fatalf("invalid %s: %q", key, v)
	}
	return d
}

func Bool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Fatalf("invalid %s: %v", key, err)
	}
	return b
}

// RedisOptions accepts a redis:// URL or an Azure style connection string
// ("host:port,password=...,ssl=True").
func RedisOptions(conn string) (*redis.Options, error) {
	if conn == "" {
		return nil, errors.New("empty redis connection string")
	}
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts, nil
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
			}
		}
	}
	return opts, nil
}

// Redis connects to REDIS_CONNECTION_STRING, or returns nil when unset.
func Redis() *redis.Client {
	conn := os.Getenv("REDIS_CONNECTION_STRING")
	if conn == "" {
		return nil
	}
	opts, err := RedisOptions(conn)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	return redis.NewClient(opts)
}
