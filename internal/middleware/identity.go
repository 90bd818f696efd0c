package middleware

// identity.go defines helpers shared across middleware and handlers for
// identifying the caller.  Two identities coexist: the reservation
// session (an opaque token every visitor carries, authenticated or not)
// and the optional account identity extracted from a JWT.

import (
	"github.com/labstack/echo/v4"
)

// SessionHeader is the request header carrying the opaque reservation
// session token.  The storefront generates the token client-side and
// sends it with every reservation call; the server never mints sessions.
const SessionHeader = "X-Reservation-Session"

// SessionCookie is the fallback cookie name checked when the header is
// absent.
const SessionCookie = "drop_session"

// SessionID extracts the reservation session token from the request.  It
// returns "" when the caller supplied none.
func SessionID(c echo.Context) string {
	if v := c.Request().Header.Get(SessionHeader); v != "" {
		return v
	}
	if ck, err := c.Cookie(SessionCookie); err == nil && ck.Value != "" {
		return ck.Value
	}
	return ""
}

// AccountID returns the authenticated account id stored by OptionalAuth
// or JWTAuth, and whether one is present.
func AccountID(c echo.Context) (uint64, bool) {
	v := c.Get("account_id")
	if v == nil {
		return 0, false
	}
	id, ok := v.(uint64)
	return id, ok && id != 0
}
