package main

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/carebook/carebook/internal/domain/booking"
	"github.com/carebook/carebook/internal/domain/roster"
	"github.com/carebook/carebook/internal/platform/auth"
	"github.com/carebook/carebook/internal/platform/db"
	"github.com/carebook/carebook/internal/platform/middleware"
)

const (
	requestBodyLimit = "1M"
	requestTimeout   = 15 * time.Second
)

// newServer builds the echo instance with every route mounted.
func newServer(a *app, issuer *auth.TokenIssuer, revoked *auth.TokenRevocationStore) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = middleware.ErrorHandler(a.logger)

	e.Use(middleware.Recovery(a.logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(a.logger))
	e.Use(a.metrics.Middleware())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: a.cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", middleware.RequestIDHeader},
	}))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.BodyLimit(requestBodyLimit))
	e.Use(middleware.RequestTimeout(requestTimeout))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"backend": a.cfg.StoreBackend,
			"today":   a.booking.Today(),
		})
	})
	if a.pool != nil {
		pool := a.pool
		e.GET("/health/db", db.HealthHandler(pool, func() *db.PoolStats { return db.GetPoolStats(pool) }))
	}
	e.GET("/metrics", a.metrics.Handler())

	public := e.Group("/api/v1")
	staff := public.Group("/staff",
		auth.JWTMiddleware(issuer, revoked),
		auth.RequireRole(auth.RoleStaff),
		middleware.Audit(a.logger),
	)

	writeLimit := middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: a.cfg.RateLimitRPS,
		BurstSize:         a.cfg.RateLimitBurst,
		IdleTTL:           middleware.DefaultRateLimitConfig().IdleTTL,
	})

	auth.NewHandler(a.creds, issuer, revoked, a.logger).RegisterRoutes(public, staff)
	roster.NewHandler(a.roster, a.logger).RegisterRoutes(public, staff)
	booking.NewHandler(a.booking, a.roster, auth.UserIDFromContext, a.logger).RegisterRoutes(public, staff, writeLimit)

	return e
}
