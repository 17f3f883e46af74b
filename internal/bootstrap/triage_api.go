package bootstrap

import (
	"context"
	"strings"
	"time"

	"triage_server/adapter/in/http"
	"triage_server/config"
	"triage_server/infra/middleware"
	"triage_server/pkg/logger"
	"triage_server/pkg/ratelimit"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func NewAPI(cfg *config.Config) (*fiber.App, func(), error) {
	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize dependencies")
		return nil, nil, err
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          middleware.ErrorHandler(),
		DisableStartupMessage: cfg.IsProduction(),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		BodyLimit:             1 * 1024 * 1024,
		// Unsubscribe batches drive a browser per email.
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 15 * time.Minute,
		IdleTimeout:  2 * time.Minute,
	})

	app.Use(middleware.Recover())
	app.Use(middleware.RequestID())
	app.Use(middleware.SecurityHeaders())
	app.Use(middleware.RequestLogger())
	app.Use(compress.New(compress.Config{Level: compress.LevelBestSpeed}))

	allowOrigins := strings.Join(cfg.AllowedOrigins, ",")
	allowCredentials := true
	if allowOrigins == "" || allowOrigins == "*" {
		if cfg.IsProduction() {
			allowOrigins = ""
			allowCredentials = false
		} else {
			allowOrigins = "http://localhost:3000,http://localhost:5173"
		}
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     allowOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization,X-Request-ID",
		ExposeHeaders:    "X-Request-ID,X-RateLimit-Limit,Retry-After",
		AllowCredentials: allowCredentials,
		MaxAge:           86400,
	}))

	checks := map[string]http.Pinger{"postgres": http.PingFunc(deps.DB.Ping)}
	checks["redis"] = nil
	if deps.Redis != nil {
		checks["redis"] = http.PingFunc(func(ctx context.Context) error { return deps.Redis.Ping(ctx).Err() })
	}
	checks["mongodb"] = nil
	if deps.MongoDB != nil {
		checks["mongodb"] = http.PingFunc(func(ctx context.Context) error { return deps.MongoDB.Ping(ctx, nil) })
	}
	checks["gmail"] = deps.Gmail
	http.NewHealthHandler(checks).Register(app)

	api := app.Group("/api/v1")
	api.Use(middleware.JWTAuth(cfg.JWTSecret))

	syncLimit := middleware.UserRateLimit(
		ratelimit.NewSlidingWindowLimiter(deps.Redis, cfg.SyncRateLimitPerMin, time.Minute), "sync")
	unsubscribeLimit := middleware.UserRateLimit(
		ratelimit.NewSlidingWindowLimiter(deps.Redis, cfg.UnsubscribeRateLimitPerMin, time.Minute), "unsubscribe")

	http.NewSyncHandler(deps.IngestService).Register(api, syncLimit)
	http.NewUnsubscribeHandler(deps.UnsubscribeService).Register(api, unsubscribeLimit)

	return app, cleanup, nil
}
