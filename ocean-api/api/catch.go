package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"ocean-platform/ocean-api/domain"
	"ocean-platform/ocean-api/predict"
)

const maxIdempotencyKeyLen = 128

const closedZoneAdvisory = "Closed zone: this catch location lies inside a closed fishing area."

func postCatchReport(d Deps) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok, err := authenticate(c, d.Auth)
		if !ok {
			return err
		}
		ctx := c.Request().Context()

		var report domain.CatchReport
		if err := decodeBody(c, &report); err != nil {
			return badBody(c, err)
		}
		now := d.Now().UTC()
		if err := report.Validate(now); err != nil {
			return validationFailed(c, err)
		}

		key := strings.TrimSpace(c.Request().Header.Get(IdempotencyKeyHeader))
		if len(key) > maxIdempotencyKeyLen {
			return jsonError(c, http.StatusBadRequest, "idempotency key too long")
		}
		id := uuid.NewString()
		claimedKey := ""
		if key != "" && d.Deduper != nil {
			claimed, existing, err := d.Deduper.Claim(ctx, p.UserID, key, id)
			switch {
			case err != nil:
				c.Logger().Warnf("idempotency claim failed, processing without it: %v", err)
			case !claimed:
				return c.JSON(http.StatusOK, catchReportResponse{ID: existing, Duplicate: true})
			default:
				claimedKey = key
			}
		}

		report.Normalize(id, p.UserID, now)
		resp := enrichCatch(ctx, d, report)

		env := domain.CatchEnvelope{UserID: p.UserID, Report: report, EnqueuedAt: now}
		if d.Sender != nil {
			if err := d.Sender.Submit(env, claimedKey); err != nil {
				releaseClaim(c, d.Deduper, p.UserID, claimedKey)
				c.Logger().Errorf("enqueue inline failed: %v", err)
				return jsonError(c, http.StatusInternalServerError, "failed to queue catch report")
			}
			resp.Status = statusQueued
			return c.JSON(http.StatusAccepted, resp)
		}

		if err := d.Store.SaveCatchReport(ctx, report); err != nil {
			releaseClaim(c, d.Deduper, p.UserID, claimedKey)
			c.Logger().Errorf("save catch report failed: %v", err)
			return jsonError(c, http.StatusInternalServerError, "failed to save catch report")
		}
		resp.Status = statusStored
		return c.JSON(http.StatusCreated, resp)
	}
}

// enrichCatch attaches the abundance prediction, conditions and zones for
// the catch location.
func enrichCatch(ctx context.Context, d Deps, report domain.CatchReport) catchReportResponse {
	resp := catchReportResponse{ID: report.ID, Report: &report}

	sst := predict.FallbackSST(report.Latitude)
	if d.Weather != nil {
		w := d.Weather.Current(ctx, report.Latitude, report.Longitude)
		sst = w.SST
		resp.Weather = &w
	}
	prediction := predict.Predict(predict.FeaturesFromCatch(report, sst))

	if d.Zones != nil {
		resp.Zones = d.Zones.Lookup(report.Latitude, report.Longitude)
		if d.Zones.Closed(report.Latitude, report.Longitude) {
			prediction.Advisories = append(prediction.Advisories, closedZoneAdvisory)
		}
	}
	resp.Prediction = &prediction
	return resp
}

func releaseClaim(c echo.Context, deduper Deduper, userID, key string) {
	if key == "" || deduper == nil {
		return
	}
	if err := deduper.Release(context.Background(), userID, key); err != nil {
		c.Logger().Errorf("dedupe rollback failed, err: %v, key: %s, user: %s", err, key, userID)
	}
}

func getCatchSummary(analytics Analytics, auth Authenticator) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, ok, err := authenticate(c, auth)
		if !ok {
			return err
		}
		summary, err := analytics.CatchSummary(c.Request().Context(), p.UserID)
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "failed to summarise catches")
		}
		return c.JSON(http.StatusOK, summary)
	}
}
