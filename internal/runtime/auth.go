// Package runtime holds small pieces shared by the api server and the
// worker: JWT handling, the redis connection and shutdown plumbing.
package runtime

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// SignJWT issues a signed token with the user id as subject.
func SignJWT(userID int64, secret []byte, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"exp": time.Now().Add(ttl).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(secret)
}

// EchoAuthMiddleware validates JWT tokens from the Authorization header or
// the auth cookie and stores the user id on the echo context.
func EchoAuthMiddleware(secret []byte) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			tok := extractToken(c)
			if tok == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			parsed, err := jwt.Parse(tok, func(t *jwt.Token) (interface{}, error) { return secret, nil },
				jwt.WithValidMethods([]string{"HS256"}))
			if err != nil || !parsed.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			claims, ok := parsed.Claims.(jwt.MapClaims)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			sub, _ := claims["sub"].(string)
			userID, err := strconv.ParseInt(sub, 10, 64)
			if err != nil || userID <= 0 {
				return echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
			}
			c.Set("user_id", userID)
			c.SetRequest(c.Request().WithContext(
				context.WithValue(c.Request().Context(), subjectKey{}, userID)))
			return next(c)
		}
	}
}

// UserID reads the authenticated user id set by EchoAuthMiddleware.
func UserID(c echo.Context) int64 {
	if id, ok := c.Get("user_id").(int64); ok {
		return id
	}
	return 0
}

func extractToken(c echo.Context) string {
	if h := c.Request().Header.Get("Authorization"); len(h) > 7 && h[:7] == "Bearer " {
		return h[7:]
	}
	if ck, err := c.Cookie("auth"); err == nil {
		return ck.Value
	}
	return ""
}

type subjectKey struct{}

// SubjectFromContext returns the authenticated user id if present.
func SubjectFromContext(ctx context.Context) (int64, bool) {
	if v := ctx.Value(subjectKey{}); v != nil {
		if id, ok := v.(int64); ok {
			return id, true
		}
	}
	return 0, false
}
