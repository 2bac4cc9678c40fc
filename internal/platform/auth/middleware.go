package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

var (
	// ErrMissingCredential is returned when a request carries no bearer token.
	ErrMissingCredential = errors.New("authentication required")
	// ErrInvalidCredential is returned when the bearer token cannot be verified.
	ErrInvalidCredential = errors.New("invalid credential")
)

// Claims are the token claims issued by the identity provider. The role
// claim is a custom claim set by the account lifecycle hooks.
type Claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type JWTConfig struct {
	Issuer   string
	Audience string
	JWKSURL  string
	// SigningKey is used for development/testing only
	SigningKey []byte
}

const defaultKeySetTTL = 5 * time.Minute

// Verifier turns bearer tokens into principals.
type Verifier struct {
	keyFunc jwt.Keyfunc
	opts    []jwt.ParserOption
}

// NewVerifier builds a verifier. With a SigningKey tokens are checked with
// HS256; otherwise the JWKS URL (or the issuer's discovery document) is used.
func NewVerifier(cfg JWTConfig) (*Verifier, error) {
	opts := []jwt.ParserOption{jwt.WithExpirationRequired()}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	if len(cfg.SigningKey) > 0 {
		key := cfg.SigningKey
		return &Verifier{
			keyFunc: func(*jwt.Token) (interface{}, error) { return key, nil },
			opts:    append(opts, jwt.WithValidMethods([]string{"HS256"})),
		}, nil
	}

	jwksURL := cfg.JWKSURL
	if jwksURL == "" && cfg.Issuer != "" {
		d, err := Discover(cfg.Issuer, nil)
		if err != nil {
			return nil, err
		}
		jwksURL = d.JWKSURI
	}
	if jwksURL == "" {
		return nil, fmt.Errorf("either a signing key, a JWKS URL or an issuer is required")
	}

	keys := NewKeySet(jwksURL, defaultKeySetTTL)
	return &Verifier{
		keyFunc: func(token *jwt.Token) (interface{}, error) {
			kid, ok := token.Header["kid"].(string)
			if !ok || kid == "" {
				return nil, fmt.Errorf("token has no kid header")
			}
			return keys.Key(kid)
		},
		opts: append(opts, jwt.WithValidMethods([]string{"RS256"})),
	}, nil
}

// Verify validates tokenStr and returns the principal it names. A token
// without a recognised role claim still authenticates, with RoleUnknown.
func (v *Verifier) Verify(tokenStr string) (Principal, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, v.keyFunc, v.opts...)
	if err != nil || !token.Valid {
		return Principal{}, ErrInvalidCredential
	}
	if claims.Subject == "" {
		return Principal{}, ErrInvalidCredential
	}
	role, _ := ParseRole(claims.Role)
	return Principal{Identity: claims.Subject, Role: role}, nil
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingCredential
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
		return "", ErrInvalidCredential
	}
	return strings.TrimSpace(parts[1]), nil
}

// FailureHandler renders an authentication failure.
type FailureHandler func(c echo.Context, err error) error

func defaultFailure(_ echo.Context, err error) error {
	return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
}

// JWTMiddleware rejects requests without a valid bearer token before any
// handler runs. A principal already placed on the context (development mode)
// is left untouched.
func JWTMiddleware(v *Verifier, onFail FailureHandler) echo.MiddlewareFunc {
	if onFail == nil {
		onFail = defaultFailure
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			if _, ok := PrincipalFromContext(ctx); ok {
				return next(c)
			}

			tokenStr, err := BearerToken(c.Request().Header.Get("Authorization"))
			if err != nil {
				return onFail(c, err)
			}
			p, err := v.Verify(tokenStr)
			if err != nil {
				return onFail(c, err)
			}

			c.Set("principal_id", p.Identity)
			c.SetRequest(c.Request().WithContext(WithPrincipal(ctx, p)))
			return next(c)
		}
	}
}

const (
	DevIdentityHeader = "X-Dev-Identity"
	DevRoleHeader     = "X-Dev-Role"
)

// DevAuthMiddleware is a permissive middleware for development: requests
// without an Authorization header may name their principal through the
// X-Dev-Identity and X-Dev-Role headers.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if req.Header.Get("Authorization") != "" {
				return next(c)
			}
			id := req.Header.Get(DevIdentityHeader)
			if id == "" {
				return next(c)
			}
			role, _ := ParseRole(req.Header.Get(DevRoleHeader))
			c.Set("principal_id", id)
			c.SetRequest(req.WithContext(WithPrincipal(req.Context(), Principal{Identity: id, Role: role})))
			return next(c)
		}
	}
}

// IssueDevToken signs an HS256 token for local use.
func IssueDevToken(key []byte, subject string, role Role, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Role: role.String(),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
}
