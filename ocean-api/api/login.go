package api

import (
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/time/rate"
)

const (
	DefaultTokenTTL   = 12 * time.Hour
	defaultLoginRate  = rate.Limit(0.2) // one attempt every 5s once the burst is spent
	defaultLoginBurst = 5
)

// TokenIssuer signs access tokens.
type TokenIssuer interface {
	Issue(userID, role string, ttl time.Duration) (string, error)
}

type loginUser struct {
	hash []byte
	role string
}

// Login serves password logins against a static user directory.
type Login struct {
	issuer TokenIssuer
	ttl    time.Duration

	// Cost is the bcrypt cost used by AddUser.
	Cost  int
	Rate  rate.Limit
	Burst int

	mu    sync.RWMutex
	users map[string]loginUser
	dummy []byte
}

func NewLogin(issuer TokenIssuer, ttl time.Duration) *Login {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Login{
		issuer: issuer,
		ttl:    ttl,
		Cost:   bcrypt.DefaultCost,
		Rate:   defaultLoginRate,
		Burst:  defaultLoginBurst,
		users:  make(map[string]loginUser),
	}
}

// AddUser registers a user. Emails are matched case-insensitively.
func (l *Login) AddUser(email, password, role string) error {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return fmt.Errorf("login: email and password are required")
	}
	switch role {
	case RoleFisherman, RoleResearcher, RoleAdmin:
	default:
		return fmt.Errorf("login: unknown role %q for %s", role, email)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.Cost)
	if err != nil {
		return fmt.Errorf("login: hash password for %s: %w", email, err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.users[email] = loginUser{hash: hash, role: role}
	if l.dummy == nil {
		l.dummy = hash
	}
	return nil
}

// AddUsers parses a comma separated list of email:password:role entries.
func (l *Login) AddUsers(list string) error {
	for _, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, ":", 3)
		if len(parts) != 3 {
			return fmt.Errorf("login: malformed user entry %q", entry)
		}
		if err := l.AddUser(parts[0], parts[1], parts[2]); err != nil {
			return err
		}
	}
	return nil
}

func (l *Login) verify(email, password string) (string, bool) {
	l.mu.RLock()
	u, ok := l.users[strings.ToLower(strings.TrimSpace(email))]
	dummy := l.dummy
	l.mu.RUnlock()
	if !ok {
		// keep response time flat for unknown emails
		if dummy != nil {
			_ = bcrypt.CompareHashAndPassword(dummy, []byte(password))
		}
		return "", false
	}
	if bcrypt.CompareHashAndPassword(u.hash, []byte(password)) != nil {
		return "", false
	}
	return u.role, true
}

func (l *Login) handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		var req loginRequest
		if err := decodeBody(c, &req); err != nil {
			return badBody(c, err)
		}
		role, ok := l.verify(req.Email, req.Password)
		if !ok {
			return jsonError(c, http.StatusUnauthorized, "invalid credentials")
		}
		userID := strings.ToLower(strings.TrimSpace(req.Email))
		token, err := l.issuer.Issue(userID, role, l.ttl)
		if err != nil {
			c.Logger().Errorf("issue token for %s failed: %v", userID, err)
			return jsonError(c, http.StatusInternalServerError, "failed to issue token")
		}
		return c.JSON(http.StatusOK, loginResponse{
			AccessToken: token,
			TokenType:   "bearer",
			ExpiresIn:   int64(l.ttl / time.Second),
			Role:        role,
		})
	}
}

// rateLimit throttles login attempts per client IP.
func (l *Login) rateLimit() echo.MiddlewareFunc {
	store := middleware.NewRateLimiterMemoryStoreWithConfig(middleware.RateLimiterMemoryStoreConfig{
		Rate:      l.Rate,
		Burst:     l.Burst,
		ExpiresIn: 10 * time.Minute,
	})
	return middleware.RateLimiterWithConfig(middleware.RateLimiterConfig{
		Store: store,
		IdentifierExtractor: func(c echo.Context) (string, error) {
			return c.RealIP(), nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return jsonError(c, http.StatusForbidden, "cannot identify client")
		},
		DenyHandler: func(c echo.Context, _ string, _ error) error {
			return jsonError(c, http.StatusTooManyRequests, "too many login attempts")
		},
	})
}
