package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	errMissingAuthorization = errors.New("missing authorization header")
	errBadAuthorization     = errors.New("bad auth header")
)

const bearerScheme = "bearer"

// bearerToken extracts a compact JWT from an Authorization header value.
func bearerToken(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errMissingAuthorization
	}
	scheme, token, ok := strings.Cut(raw, " ")
	if !ok || !strings.EqualFold(scheme, bearerScheme) {
		return "", errBadAuthorization
	}
	token = strings.TrimSpace(token)
	if token == "" || strings.Count(token, ".") != 2 {
		return "", errBadAuthorization
	}
	return token, nil
}

// authenticate resolves the caller or writes a 401 response. The returned
// bool is false when the response has already been written.
func authenticate(c echo.Context, auth Authenticator, roles ...string) (Principal, bool, error) {
	p, err := auth.PrincipalFromAuthHeader(c.Request().Header.Get(echo.HeaderAuthorization))
	if err != nil {
		c.Response().Header().Set(echo.HeaderWWWAuthenticate, "Bearer")
		return Principal{}, false, jsonError(c, http.StatusUnauthorized, err.Error())
	}
	if len(roles) > 0 && !p.HasRole(roles...) {
		return Principal{}, false, jsonError(c, http.StatusForbidden, errForbidden.Error())
	}
	return p, true, nil
}
