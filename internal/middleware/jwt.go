package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// parseAccountToken validates a Bearer token and returns the account id
// from its subject claim.  It returns 0 when the header is missing or
// the token does not verify.
func parseAccountToken(c echo.Context, secret string) uint64 {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return 0
	}
	raw := strings.TrimPrefix(auth, "Bearer ")
	tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, echo.ErrUnauthorized
		}
		return []byte(secret), nil
	})
	if err != nil || !tok.Valid {
		return 0
	}
	claims, ok := tok.Claims.(jwt.MapClaims)
	if !ok {
		return 0
	}
	// Numeric claims decode as float64 from JSON.
	switch sub := claims["sub"].(type) {
	case float64:
		return uint64(sub)
	case int64:
		return uint64(sub)
	}
	return 0
}

// JWTAuth returns an Echo middleware that requires a valid Bearer access
// token and injects the account id into the request context under
// "account_id".  Wrap routes that only make sense for logged-in
// customers (e.g. account checkout shortcuts).
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := parseAccountToken(c, secret)
			if id == 0 {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or missing token"})
			}
			c.Set("account_id", id)
			return next(c)
		}
	}
}

// OptionalAuth returns an Echo middleware that extracts the account id
// when a valid Bearer token is present and otherwise lets the request
// through anonymously.  The checkout handler uses it to pick between the
// account and guest variants of order placement.
func OptionalAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if id := parseAccountToken(c, secret); id != 0 {
				c.Set("account_id", id)
			}
			return next(c)
		}
	}
}
