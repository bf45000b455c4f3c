package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/labstack/echo-contrib/pprof"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"ocean-platform/ocean-api/analytics"
	"ocean-platform/ocean-api/api"
	"ocean-platform/ocean-api/config"
	"ocean-platform/ocean-api/storage"
	"ocean-platform/ocean-api/weather"
	"ocean-platform/ocean-api/zones"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config.Load()
	config.SetupLogging()
	logger := log.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rc := config.Redis()
	store, err := config.OpenStore(ctx, config.StoreFromEnv(), rc, time.Now())
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warnf("close store: %v", err)
		}
	}()

	auth, login := buildAuth()

	catalog, err := zones.Load(os.Getenv("ZONES_FILE"))
	if err != nil {
		log.Fatalf("zones: %v", err)
	}

	deps := api.Deps{
		Store:     store,
		Auth:      auth,
		Analytics: analytics.New(store),
		Weather:   weather.NewClient(os.Getenv("OPENWEATHER_API_KEY"), config.Duration("WEATHER_TIMEOUT", 10*time.Second), logger),
		Zones:     catalog,
		Logger:    logger,
		Login:     login,
		Checks:    map[string]api.HealthCheck{},
	}

	if rc != nil {
		deps.Deduper = api.NewRedisDeduper(rc, config.Duration("DEDUPER_TTL", 24*time.Hour))
		deps.Checks["redis"] = func(ctx context.Context) error { return rc.Ping(ctx).Err() }
		defer rc.Close()
	}

	if queueName := os.Getenv("REPORT_QUEUE"); queueName != "" {
		connStr := os.Getenv("STORAGE_CONNECTION_STRING")
		if connStr == "" {
			log.Fatal("REPORT_QUEUE requires STORAGE_CONNECTION_STRING")
		}
		queue, err := storage.NewReportQueue(connStr, queueName)
		if err != nil {
			log.Fatalf("report queue: %v", err)
		}
		def := api.DefaultSenderConfig()
		sender := api.NewReportSender(queue, deps.Deduper, logger, api.SenderConfig{
			Workers: config.PositiveInt("REPORT_SENDER_WORKERS", def.Workers),
			Buffer:  config.PositiveInt("REPORT_SENDER_BUFFER", def.Buffer),
			Timeout: config.Duration("REPORT_SENDER_TIMEOUT", def.Timeout),
			Handoff: config.Duration("REPORT_SENDER_HANDOFF", def.Handoff),
		})
		defer sender.Close()
		deps.Sender = sender
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, api.IdempotencyKeyHeader},
	}))
	e.Use(api.GzipRequestMiddleware(64 * 1024))
	if config.Bool("PPROF", false) {
		pprof.Register(e)
	}

	api.Register(e, deps)

	listenAddr := ":" + config.String("PORT", "8080")
	if val, ok := os.LookupEnv("FUNCTIONS_CUSTOMHANDLER_PORT"); ok {
		listenAddr = ":" + val
	}

	go func() {
		if err := e.Start(listenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Errorf("shutdown: %v", err)
	}
}

// buildAuth picks shared-secret or Auth0 verification. Login is only served
// with a shared secret.
func buildAuth() (*api.Auth, *api.Login) {
	audience := config.String("AUTH0_AUDIENCE", "ocean-api")

	if secret := os.Getenv("AUTH_SIGNING_SECRET"); secret != "" {
		auth := api.NewSharedSecretAuth([]byte(secret), audience, os.Getenv("AUTH_ISSUER"))
		login := api.NewLogin(auth, config.Duration("AUTH_TOKEN_TTL", api.DefaultTokenTTL))
		if err := login.AddUsers(os.Getenv("AUTH_USERS")); err != nil {
			log.Fatalf("auth users: %v", err)
		}
		return auth, login
	}

	domain := os.Getenv("AUTH0_DOMAIN")
	if os.Getenv("AUTH0_AUDIENCE") == "" || domain == "" {
		log.Fatal("missing auth config: set AUTH_SIGNING_SECRET or AUTH0_DOMAIN and AUTH0_AUDIENCE")
	}
	jwksURL := fmt.Sprintf("https://%s/.well-known/jwks.json", domain)
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{RefreshInterval: time.Hour})
	if err != nil {
		log.Fatalf("jwks: %v", err)
	}
	return api.NewAuth(jwks, audience, "https://"+domain+"/", config.Duration("JWKS_CACHE_TTL", api.DefaultJWKSCacheTTL)), nil
}
