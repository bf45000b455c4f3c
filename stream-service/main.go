package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	log "github.com/sirupsen/logrus"

	"ocean-platform/ocean-api/config"
	"ocean-platform/ocean-api/mockdata"
	"ocean-platform/stream-service/api"
	"ocean-platform/stream-service/poller"
	"ocean-platform/stream-service/subscription"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config.Load()
	config.SetupLogging()
	logger := log.StandardLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub := api.NewHub(logger)
	broker := api.NewBroker()
	interval := config.Duration("VESSEL_POLL_INTERVAL", 5*time.Second)

	storeCfg := config.StoreFromEnv()
	store, err := config.OpenStore(ctx, storeCfg, nil, time.Now())
	if err != nil {
		log.Fatalf("storage: %v", err)
	}
	defer store.Close()

	var source poller.Source = poller.StoreSource{Store: store}
	if store.Seeded != nil {
		sim := mockdata.NewSimulator(storeCfg.Seed, store.Seeded.Vessels)
		go sim.Run(ctx, interval)
		source = sim
	}
	go poller.New(source, hub, interval, logger).Run(ctx)

	if rc := config.Redis(); rc != nil {
		defer rc.Close()
		channel := config.String("CATCH_REPORTS_CHANNEL", "catch-reports")
		go subscription.Relay(ctx, logger, rc, channel, broker.Publish)
	} else {
		log.Warn("REDIS_CONNECTION_STRING not set; catch report stream stays idle")
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))
	api.Register(e, hub, broker)

	listenAddr := ":9000"
	if val, ok := os.LookupEnv("STREAM_SERVICE_PORT"); ok {
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
