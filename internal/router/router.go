package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/avelory/drop-page-reservation/internal/config"
	"github.com/avelory/drop-page-reservation/internal/handler"
	"github.com/avelory/drop-page-reservation/internal/middleware"
)

// RegisterRoutes registers routes that carry no domain logic: the health
// check used by load balancers and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

// RegisterAuth registers account endpoints.  Register and login are
// open; /v1/me requires a valid access token.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)

	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me)
}

// RegisterReservations registers the drop-page endpoints.  The reserve,
// release and extend mutations sit behind the Redis token-bucket rate
// limiter; the snapshot poll sits behind the short-TTL response cache.
// The :page parameter accepts either a numeric page id or a slug.
func RegisterReservations(e *echo.Echo, r *handler.ReservationHandler, rdb *redis.Client) {
	rl := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	g := e.Group("/v1/pages/:page")
	g.POST("/reserve", r.Reserve, rl)
	g.POST("/release", r.Release, rl)
	g.POST("/extend", r.Extend, rl)

	cache := middleware.NewRedisCache(config.LoadCacheConfig(), rdb)
	g.GET("/snapshot", r.Snapshot, cache)
	g.GET("/products/:product/availability", r.Availability, cache)
}

// RegisterOrders registers checkout and the guest order lookup.
// Checkout runs under OptionalAuth so a bearer token selects the
// account checkout variant while anonymous requests fall through to the
// guest variant.
func RegisterOrders(e *echo.Echo, o *handler.OrderHandler, jwtSecret string, rdb *redis.Client) {
	rl := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	e.POST("/v1/pages/:page/checkout", o.Checkout, middleware.OptionalAuth(jwtSecret), rl)
	e.GET("/v1/orders/:token", o.GetByToken)
}
