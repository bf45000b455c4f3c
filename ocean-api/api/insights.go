package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"ocean-platform/ocean-api/domain"
	"ocean-platform/ocean-api/predict"
)

const maxTrendMonths = 36

func getDashboard(analytics Analytics) echo.HandlerFunc {
	return func(c echo.Context) error {
		d, err := analytics.Dashboard(c.Request().Context())
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "failed to compute dashboard")
		}
		return c.JSON(http.StatusOK, d)
	}
}

func getTrends(analytics Analytics) echo.HandlerFunc {
	return func(c echo.Context) error {
		months := 0
		if raw := strings.TrimSpace(c.QueryParam("months")); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 || n > maxTrendMonths {
				return validationFailed(c, domain.ValidationError{"months": "must be an integer in [1, 36]"})
			}
			months = n
		}
		points, err := analytics.Trends(c.Request().Context(), months)
		if err != nil {
			c.Logger().Error(err)
			return jsonError(c, http.StatusInternalServerError, "failed to compute trends")
		}
		return c.JSON(http.StatusOK, points)
	}
}

func postPredict() echo.HandlerFunc {
	return func(c echo.Context) error {
		var in domain.PredictionInput
		if err := decodeBody(c, &in); err != nil {
			return badBody(c, err)
		}
		if err := in.Validate(); err != nil {
			return validationFailed(c, err)
		}
		return c.JSON(http.StatusOK, predict.Predict(predict.Resolve(in)))
	}
}

func getZones(zones ZoneCatalog) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, zones.All())
	}
}

func lookupZones(zones ZoneCatalog) echo.HandlerFunc {
	return func(c echo.Context) error {
		lat, lon, err := parseCoordinates(c)
		if err != nil {
			return validationFailed(c, err)
		}
		found := zones.Lookup(lat, lon)
		if found == nil {
			found = []domain.FishingZone{}
		}
		return c.JSON(http.StatusOK, found)
	}
}

func getWeather(weather WeatherProvider) echo.HandlerFunc {
	return func(c echo.Context) error {
		lat, lon, err := parseCoordinates(c)
		if err != nil {
			return validationFailed(c, err)
		}
		return c.JSON(http.StatusOK, weather.Current(c.Request().Context(), lat, lon))
	}
}
