package api

import (
	"context"
	"errors"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"ocean-platform/ocean-api/domain"
)

// Submitter hands accepted catch reports to the report queue.
type Submitter interface {
	Submit(env domain.CatchEnvelope, dedupeKey string) error
}

// Deps are the collaborators of the HTTP handlers. Optional ones may be nil.
type Deps struct {
	Store     Store
	Auth      Authenticator
	Analytics Analytics
	Weather   WeatherProvider
	Zones     ZoneCatalog
	Logger    *log.Logger

	// Deduper enables Idempotency-Key handling.
	Deduper Deduper
	// Sender queues catch reports; without it reports are saved directly.
	Sender Submitter
	// Login enables POST /api/auth/login.
	Login *Login
	// Checks are reported by /health next to the store ping.
	Checks map[string]HealthCheck

	Now func() time.Time
}

// Register wires up all API routes and the error handler on the provided
// Echo instance.
func Register(e *echo.Echo, d Deps) {
	e.HTTPErrorHandler = HTTPErrorHandler
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = log.StandardLogger()
	}

	e.GET("/api/species", listRecords(d.Logger, "/api/species", d.Store.ListSpecies))
	e.GET("/api/vessels", listRecords(d.Logger, "/api/vessels", d.Store.ListVessels))
	e.POST("/api/vessels/:id/position", postVesselPosition(d.Store, d.Auth, d.Now))
	e.GET("/api/catch-reports", listRecords(d.Logger, "/api/catch-reports", d.Store.ListCatchReports))
	e.POST("/api/catch-reports", postCatchReport(d))
	e.GET("/api/catch-reports/summary", getCatchSummary(d.Analytics, d.Auth))
	e.GET("/api/edna", listRecords(d.Logger, "/api/edna", d.Store.ListEDNASamples))
	e.POST("/api/edna", postEDNASample(d.Store, d.Auth, d.Now))
	e.GET("/api/analytics/dashboard", getDashboard(d.Analytics))
	e.GET("/api/analytics/trends", getTrends(d.Analytics))
	e.POST("/api/predict", postPredict())
	e.GET("/api/zones", getZones(d.Zones))
	e.GET("/api/zones/lookup", lookupZones(d.Zones))
	e.GET("/api/weather", getWeather(d.Weather))
	if d.Login != nil {
		e.POST("/api/auth/login", d.Login.handler(), d.Login.rateLimit())
	}
	e.GET("/health", healthz(d.Store, d.Checks))
}

// listRecords serves one dataset listing with the shared filters.
func listRecords[T any](logger *log.Logger, route string, list func(context.Context, domain.Query) ([]T, string, error)) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		ctx := c.Request().Context()
		metrics, spanCtx := newRequestMetrics(ctx, logger, route)
		if spanCtx != nil {
			req := c.Request().WithContext(spanCtx)
			c.SetRequest(req)
			ctx = spanCtx
		}
		var failure error
		defer func() {
			if failure == nil {
				failure = err
			}
			metrics.Log(c.Response().Status, failure)
		}()

		q, parseErr := parseQuery(c)
		if parseErr != nil {
			metrics.SetErrorStage("invalid_query")
			return validationFailed(c, parseErr)
		}
		metrics.SetPageTokenProvided(q.PageToken != "")

		fetchStart := time.Now()
		records, nextToken, fetchErr := list(ctx, q)
		metrics.ObserveFetch(time.Since(fetchStart))
		if fetchErr != nil {
			var invalidTokenErr InvalidPageTokenError
			if errors.As(fetchErr, &invalidTokenErr) {
				metrics.SetErrorStage("invalid_page_token")
				return jsonError(c, http.StatusBadRequest, "invalid page token")
			}
			metrics.SetErrorStage("storage")
			c.Logger().Error(fetchErr)
			failure = fetchErr
			return jsonError(c, http.StatusInternalServerError, "failed to load records")
		}
		if records == nil {
			records = []T{}
		}
		metrics.SetRecordsReturned(len(records))
		resp := listResponse[T]{Records: records}
		if nextToken != "" {
			metrics.SetHasNextPage(true)
			resp.NextPageToken = nextToken
		}
		encodeStart := time.Now()
		err = c.JSON(http.StatusOK, resp)
		metrics.ObserveEncode(time.Since(encodeStart))
		if err != nil {
			metrics.SetErrorStage("encode_response")
		}
		return err
	}
}

const healthTimeout = 2 * time.Second

func healthz(store Store, checks map[string]HealthCheck) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		all := map[string]HealthCheck{"store": store.Ping}
		for name, check := range checks {
			all[name] = check
		}
		names := make([]string, 0, len(all))
		for name := range all {
			names = append(names, name)
		}
		sort.Strings(names)

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(all))}
		status := http.StatusOK
		for _, name := range names {
			if err := all[name](ctx); err != nil {
				c.Logger().Warnf("health check %s failed: %v", name, err)
				resp.Checks[name] = "error"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		return c.JSON(status, resp)
	}
}
