// Package weather fetches current surface conditions.
package weather

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"ocean-platform/ocean-api/domain"
	"ocean-platform/ocean-api/predict"
)

const (
	DefaultBaseURL = "https://api.openweathermap.org/data/2.5/weather"
	SourceLive     = "openweathermap"
	SourceFallback = "fallback"
)

// Client queries OpenWeatherMap and falls back to climatology when the
// service is unavailable or no API key is configured.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
	Logger  *log.Logger
}

func NewClient(apiKey string, timeout time.Duration, logger *log.Logger) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		BaseURL: DefaultBaseURL,
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
		Logger:  logger,
	}
}

type owmResponse struct {
	Main struct {
		Temp     float64 `json:"temp"`
		Humidity float64 `json:"humidity"`
		Pressure float64 `json:"pressure"`
	} `json:"main"`
	Wind struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

// Current returns conditions at the location. It never fails; errors are
// logged and the fallback is returned.
func (c *Client) Current(ctx context.Context, lat, lon float64) domain.WeatherConditions {
	if c == nil || c.APIKey == "" {
		return Fallback(lat)
	}
	w, err := c.fetch(ctx, lat, lon)
	if err != nil {
		if c.Logger != nil {
			c.Logger.WithError(err).WithFields(log.Fields{"lat": lat, "lon": lon}).Warn("weather.fetch.failed")
		}
		return Fallback(lat)
	}
	return w
}

func (c *Client) fetch(ctx context.Context, lat, lon float64) (domain.WeatherConditions, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("appid", c.APIKey)
	q.Set("units", "metric")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"?"+q.Encode(), nil)
	if err != nil {
		return domain.WeatherConditions{}, err
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return domain.WeatherConditions{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.WeatherConditions{}, fmt.Errorf("weather: unexpected status %d", resp.StatusCode)
	}
	var body owmResponse
	if err := sonic.ConfigStd.NewDecoder(resp.Body).Decode(&body); err != nil {
		return domain.WeatherConditions{}, fmt.Errorf("weather: decode: %w", err)
	}
	if body.Main.Pressure == 0 {
		return domain.WeatherConditions{}, errors.New("weather: empty response")
	}
	return domain.WeatherConditions{
		SST:       body.Main.Temp,
		WindSpeed: body.Wind.Speed,
		Humidity:  body.Main.Humidity,
		Pressure:  body.Main.Pressure,
		Source:    SourceLive,
	}, nil
}

// Fallback returns climatological conditions for a latitude.
func Fallback(lat float64) domain.WeatherConditions {
	return domain.WeatherConditions{
		SST:       predict.FallbackSST(lat),
		WindSpeed: 12.0,
		Humidity:  75.0,
		Pressure:  1013.0,
		Source:    SourceFallback,
	}
}
