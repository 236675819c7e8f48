package httpapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"factorycore/internal/core"
)

// Claims carried by bearer tokens. The subject is the caller's user id.
type Claims struct {
	Name string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// IssueToken signs an HS256 token for id that expires after ttl.
func IssueToken(secret []byte, id core.Identity, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", fmt.Errorf("jwt secret required")
	}
	if id.UserID == "" {
		return "", fmt.Errorf("user id required")
	}
	claims := Claims{
		Name: id.UserName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  id.UserID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseToken validates an HS256 token and returns the identity it carries.
func ParseToken(secret []byte, token string) (core.Identity, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return core.Identity{}, err
	}
	if !parsed.Valid {
		return core.Identity{}, fmt.Errorf("invalid token")
	}
	sub, err := claims.GetSubject()
	if err != nil {
		return core.Identity{}, err
	}
	if sub == "" {
		return core.Identity{}, fmt.Errorf("token has no subject")
	}
	return core.Identity{UserID: sub, UserName: claims.Name}, nil
}

// IdentityMiddleware attaches the bearer token identity to the request
// context. Requests without an Authorization header pass through anonymously;
// a present but invalid token is rejected with 401.
func IdentityMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				return next(c)
			}
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrorMessage{Message: "bearer token required"})
			}
			id, err := ParseToken(secret, strings.TrimSpace(token))
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, ErrorMessage{Message: "invalid bearer token"}).SetInternal(err)
			}
			req := c.Request()
			c.SetRequest(req.WithContext(core.WithIdentity(req.Context(), id)))
			return next(c)
		}
	}
}
