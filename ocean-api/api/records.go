package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"ocean-platform/ocean-api/domain"
	"ocean-platform/ocean-api/storage"
)

func postEDNASample(store Store, auth Authenticator, now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok, err := authenticate(c, auth, RoleResearcher); !ok {
			return err
		}

		var sample domain.EDNASample
		if err := decodeBody(c, &sample); err != nil {
			return badBody(c, err)
		}
		t := now().UTC()
		if sample.CollectedAt.IsZero() {
			sample.CollectedAt = t
		}
		sample.CollectedAt = sample.CollectedAt.UTC()
		if err := sample.Validate(t); err != nil {
			return validationFailed(c, err)
		}

		if err := store.SaveEDNASample(c.Request().Context(), sample); err != nil {
			if errors.Is(err, storage.ErrConflict) {
				return jsonError(c, http.StatusConflict, "sample_id already exists")
			}
			c.Logger().Errorf("save edna sample failed: %v", err)
			return jsonError(c, http.StatusInternalServerError, "failed to save sample")
		}
		return c.JSON(http.StatusCreated, sample)
	}
}

// postVesselPosition records the current position of a vessel. Fields left
// out of the body keep their stored values.
func postVesselPosition(store Store, auth Authenticator, now func() time.Time) echo.HandlerFunc {
	return func(c echo.Context) error {
		if _, ok, err := authenticate(c, auth, RoleFisherman); !ok {
			return err
		}
		ctx := c.Request().Context()
		id := c.Param("id")

		var pos domain.VesselPosition
		if err := decodeBody(c, &pos); err != nil {
			return badBody(c, err)
		}
		if pos.VesselID != "" && pos.VesselID != id {
			return validationFailed(c, domain.ValidationError{"vessel_id": "must match the path"})
		}
		pos.VesselID = id

		existing, _, err := store.ListVessels(ctx, domain.Query{VesselID: id, Limit: 1})
		if err != nil {
			c.Logger().Errorf("load vessel %s failed: %v", id, err)
			return jsonError(c, http.StatusInternalServerError, "failed to load vessel")
		}
		if len(existing) > 0 {
			prev := existing[0]
			if pos.Name == "" {
				pos.Name = prev.Name
			}
			if pos.VesselType == "" {
				pos.VesselType = prev.VesselType
			}
			if pos.Status == "" {
				pos.Status = prev.Status
			}
		}
		if pos.ReportedAt.IsZero() {
			pos.ReportedAt = now()
		}
		pos.ReportedAt = pos.ReportedAt.UTC()
		if err := pos.Validate(); err != nil {
			return validationFailed(c, err)
		}

		if err := store.UpsertVessel(ctx, pos); err != nil {
			c.Logger().Errorf("upsert vessel failed: %v", err)
			return jsonError(c, http.StatusInternalServerError, "failed to save position")
		}
		return c.JSON(http.StatusOK, pos)
	}
}
