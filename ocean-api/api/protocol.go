package api

import (
	"errors"
	"io"
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"

	"ocean-platform/ocean-api/domain"
)

const maxBodySize = 64 * 1024 // 64 KiB

// listResponse is the body of every listing endpoint.
type listResponse[T any] struct {
	Records       []T    `json:"records"`
	NextPageToken string `json:"next_page_token,omitempty"`
}

// errorResponse is the body of every error.
type errorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// POST /api/catch-reports response body
type catchReportResponse struct {
	ID         string                    `json:"id"`
	Status     string                    `json:"status,omitempty"`
	Duplicate  bool                      `json:"duplicate,omitempty"`
	Report     *domain.CatchReport       `json:"report,omitempty"`
	Prediction *domain.Prediction        `json:"prediction,omitempty"`
	Weather    *domain.WeatherConditions `json:"weather,omitempty"`
	Zones      []domain.FishingZone      `json:"zones,omitempty"`
}

const (
	statusQueued = "queued"
	statusStored = "stored"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Role        string `json:"role"`
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

var errBodyTooLarge = errors.New("request body too large")

// decodeBody strictly decodes a JSON request body of at most maxBodySize bytes.
func decodeBody(c echo.Context, v any) error {
	lr := &io.LimitedReader{R: c.Request().Body, N: maxBodySize + 1}
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if lr.N <= 0 || bodyExceeded(c) || errors.Is(err, errBodyTooLarge) {
			return errBodyTooLarge
		}
		return err
	}
	if lr.N <= 0 {
		return errBodyTooLarge
	}
	return nil
}

func bodyExceeded(c echo.Context) bool {
	b, ok := c.Request().Body.(interface{ Exceeded() bool })
	return ok && b.Exceeded()
}

// HTTPErrorHandler renders errors that reach echo, such as unknown routes
// and failed encodes, in the same shape as handler errors.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	msg := http.StatusText(status)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		msg = http.StatusText(status)
		if m, ok := he.Message.(string); ok && m != "" {
			msg = m
		}
	} else {
		c.Logger().Error(err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = jsonError(c, status, msg)
	}
	if err != nil {
		c.Logger().Error(err)
	}
}

func jsonError(c echo.Context, status int, msg string) error {
	return c.JSON(status, errorResponse{Error: msg})
}

// badBody maps a decode failure to 413 or 400.
func badBody(c echo.Context, err error) error {
	if errors.Is(err, errBodyTooLarge) {
		return jsonError(c, http.StatusRequestEntityTooLarge, err.Error())
	}
	return jsonError(c, http.StatusBadRequest, "invalid body")
}

func validationFailed(c echo.Context, err error) error {
	var verr domain.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: verr})
	}
	return jsonError(c, http.StatusBadRequest, err.Error())
}
