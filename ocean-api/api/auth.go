package api

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"
)

const (
	DefaultJWKSCacheTTL = 15 * time.Minute
	clockSkew           = time.Minute
)

// Roles carried in the "role" claim.
const (
	RoleFisherman  = "fisherman"
	RoleResearcher = "researcher"
	RoleAdmin      = "admin"
)

var (
	errForbidden = errors.New("insufficient role")
	errNoSigner  = errors.New("token issuing requires a shared secret")
)

// Principal is the authenticated caller.
type Principal struct {
	UserID string
	Role   string
}

// HasRole reports whether the principal holds one of roles. Admins hold every role.
func (p Principal) HasRole(roles ...string) bool {
	if p.Role == RoleAdmin {
		return true
	}
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// Auth validates incoming JWT tokens, either RS256 against a JWKS or HS256
// against a shared secret.
type Auth struct {
	JWKS     *keyfunc.JWKS
	Audience string
	Issuer   string
	Secret   []byte

	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
	now         func() time.Time
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

// NewAuth creates an Auth verifying RS256 tokens with keys from jwks.
func NewAuth(jwks *keyfunc.JWKS, audience, issuer string, keyCacheTTL time.Duration) *Auth {
	return &Auth{
		JWKS:        jwks,
		Audience:    audience,
		Issuer:      issuer,
		parser:      jwt.NewParser(jwt.WithValidMethods([]string{"RS256"})),
		keyCacheTTL: keyCacheTTL,
		now:         time.Now,
	}
}

// NewSharedSecretAuth creates an Auth verifying and issuing HS256 tokens.
func NewSharedSecretAuth(secret []byte, audience, issuer string) *Auth {
	return &Auth{
		Audience: audience,
		Issuer:   issuer,
		Secret:   secret,
		parser:   jwt.NewParser(jwt.WithValidMethods([]string{"HS256"})),
		now:      time.Now,
	}
}

// CanIssue reports whether the Auth holds a signing secret.
func (a *Auth) CanIssue() bool {
	return len(a.Secret) > 0
}

// PrincipalFromAuthHeader resolves the caller from the Authorization header.
func (a *Auth) PrincipalFromAuthHeader(h string) (Principal, error) {
	token, err := bearerToken(h)
	if err != nil {
		return Principal{}, err
	}
	return a.PrincipalFromBearer(token)
}

// PrincipalFromBearer verifies a raw bearer token.
func (a *Auth) PrincipalFromBearer(token string) (Principal, error) {
	if token == "" {
		return Principal{}, errBadAuthorization
	}

	parsedToken, err := a.parser.Parse(token, func(t *jwt.Token) (any, error) {
		if a.CanIssue() {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.Secret, nil
		}
		return a.keyForToken(t)
	})
	if err != nil {
		var verr *jwt.ValidationError
		// Time claims are checked below with clock skew allowed.
		if !(errors.As(err, &verr) && verr.Errors&^(jwt.ValidationErrorExpired|jwt.ValidationErrorNotValidYet|jwt.ValidationErrorIssuedAt) == 0 && parsedToken != nil) {
			return Principal{}, err
		}
	}

	claims, ok := parsedToken.Claims.(jwt.MapClaims)
	if !ok {
		return Principal{}, errors.New("invalid claims")
	}

	now := a.now()
	if !claims.VerifyExpiresAt(now.Add(-clockSkew).Unix(), true) {
		return Principal{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now.Add(clockSkew).Unix(), false) {
		return Principal{}, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now.Add(clockSkew).Unix(), false) {
		return Principal{}, errors.New("token used before issued")
	}
	if a.Audience != "" && !claims.VerifyAudience(a.Audience, true) {
		return Principal{}, errors.New("invalid audience")
	}
	if a.Issuer != "" && !claims.VerifyIssuer(a.Issuer, true) {
		return Principal{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return Principal{}, errors.New("missing sub")
	}
	role, _ := claims["role"].(string)
	if role == "" {
		role = RoleFisherman
	}
	return Principal{UserID: sub, Role: role}, nil
}

// Issue signs an HS256 token for the given user.
func (a *Auth) Issue(userID, role string, ttl time.Duration) (string, error) {
	if !a.CanIssue() {
		return "", errNoSigner
	}
	now := a.now()
	claims := jwt.MapClaims{
		"sub":  userID,
		"role": role,
		"iat":  now.Unix(),
		"nbf":  now.Unix(),
		"exp":  now.Add(ttl).Unix(),
	}
	if a.Audience != "" {
		claims["aud"] = a.Audience
	}
	if a.Issuer != "" {
		claims["iss"] = a.Issuer
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.JWKS == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" && a.keyCacheTTL > 0 {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if a.now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.JWKS.Keyfunc(token)
	if err != nil {
		return nil, err
	}

	if kid != "" && a.keyCacheTTL > 0 {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: a.now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
