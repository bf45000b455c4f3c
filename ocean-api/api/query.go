package api

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/paulmach/orb"

	"ocean-platform/ocean-api/domain"
)

// parseQuery reads the listing filters shared by every dataset endpoint.
// Unknown parameters are ignored; malformed ones are reported per field.
func parseQuery(c echo.Context) (domain.Query, error) {
	verr := domain.ValidationError{}
	q := domain.Query{
		Species:    strings.TrimSpace(c.QueryParam("species")),
		VesselID:   strings.TrimSpace(c.QueryParam("vessel_id")),
		VesselType: strings.TrimSpace(c.QueryParam("vessel_type")),
		PageToken:  c.QueryParam("page_token"),
	}

	if raw := strings.TrimSpace(c.QueryParam("bbox")); raw != "" {
		b, err := parseBBox(raw)
		if err != nil {
			verr.Add("bbox", err.Error())
		} else {
			q.Bounds = &b
		}
	}
	q.Since = parseTimeParam(c, "since", verr)
	q.Until = parseTimeParam(c, "until", verr)
	if !q.Since.IsZero() && !q.Until.IsZero() && !q.Since.Before(q.Until) {
		verr.Add("until", "must be after since")
	}

	if raw := strings.TrimSpace(c.QueryParam("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			verr.Add("limit", "must be a positive integer")
		} else {
			q.Limit = n
		}
	}
	return q, verr.OrNil()
}

// parseBBox parses "min_lat,min_lon,max_lat,max_lon".
func parseBBox(raw string) (orb.Bound, error) {
	parts := strings.Split(raw, ",")
	if len(parts) != 4 {
		return orb.Bound{}, errors.New("must be min_lat,min_lon,max_lat,max_lon")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := parseFinite(p)
		if err != nil {
			return orb.Bound{}, errors.New("must contain four numbers")
		}
		v[i] = f
	}
	minLat, minLon, maxLat, maxLon := v[0], v[1], v[2], v[3]
	if minLat < -90 || maxLat > 90 || minLon < -180 || maxLon > 180 {
		return orb.Bound{}, errors.New("out of range")
	}
	if minLat > maxLat || minLon > maxLon {
		return orb.Bound{}, errors.New("min must not exceed max")
	}
	return orb.Bound{Min: orb.Point{minLon, minLat}, Max: orb.Point{maxLon, maxLat}}, nil
}

// parseTimeParam accepts RFC 3339 timestamps or plain dates.
func parseTimeParam(c echo.Context, name string, verr domain.ValidationError) time.Time {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC()
	}
	if t, err := time.Parse(time.DateOnly, raw); err == nil {
		return t
	}
	verr.Add(name, "must be an RFC 3339 timestamp or YYYY-MM-DD date")
	return time.Time{}
}

// parseCoordinates reads the lat and lon query parameters.
func parseCoordinates(c echo.Context) (float64, float64, error) {
	verr := domain.ValidationError{}
	lat, err := parseFinite(c.QueryParam("lat"))
	if err != nil || lat < -90 || lat > 90 {
		verr.Add("lat", "must be a number in [-90, 90]")
	}
	lon, err := parseFinite(c.QueryParam("lon"))
	if err != nil || lon < -180 || lon > 180 {
		verr.Add("lon", "must be a number in [-180, 180]")
	}
	return lat, lon, verr.OrNil()
}

var errNotFinite = errors.New("not a finite number")

// parseFinite parses a float, rejecting the NaN and Inf spellings that
// strconv accepts.
func parseFinite(raw string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errNotFinite
	}
	return f, nil
}
