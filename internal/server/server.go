// Package server exposes the per-client state owners over a Fiber HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"snapgram/internal/config"
	"snapgram/internal/middleware"
	"snapgram/internal/models"
	"snapgram/internal/observability"
	"snapgram/internal/seed"
	"snapgram/internal/session"
	"snapgram/internal/state"
	"snapgram/internal/storage"

	"github.com/ansrivas/fiberprometheus/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/helmet"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/redis/go-redis/v9"
)

// HTTP metrics register on the default Prometheus registry, which accepts each
// collector once per process.
var (
	promOnce       sync.Once
	promMiddleware *fiberprometheus.FiberPrometheus
)

func httpMetrics() *fiberprometheus.FiberPrometheus {
	promOnce.Do(func() {
		promMiddleware = fiberprometheus.New("snapgram-api")
	})
	return promMiddleware
}

// Server holds all dependencies and provides handlers
type Server struct {
	config         *config.Config
	kv             storage.KV
	redis          *redis.Client
	world          seed.World
	tokens         *middleware.ClientTokens
	registry       *Registry
	promMiddleware *fiberprometheus.FiberPrometheus
	logger         *slog.Logger
	app            *fiber.App
}

// NewServer opens the session storage and seed world selected by cfg and
// returns a server over them. Redis is connected only for the redis rate limit backend.
func NewServer(cfg *config.Config) (*Server, error) {
	kv, err := storage.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("session storage: %w", err)
	}

	world, err := seed.LoadFile(cfg.SeedFile)
	if err != nil {
		_ = kv.Close()
		return nil, fmt.Errorf("seed: %w", err)
	}

	var redisClient *redis.Client
	if cfg.RateLimitPerMinute > 0 && cfg.RateLimitBackend == config.RateLimitBackendRedis {
		redisClient = storage.NewRedisClient(cfg.RedisURL)
	}

	return NewServerWithDeps(cfg, kv, redisClient, world), nil
}

// NewServerWithDeps creates a Server using already-initialized dependencies.
// redisClient may be nil, in which case rate limits are kept in process.
func NewServerWithDeps(cfg *config.Config, kv storage.KV, redisClient *redis.Client, world seed.World) *Server {
	logger := observability.Logger()
	s := &Server{
		config:         cfg,
		kv:             kv,
		redis:          redisClient,
		world:          world,
		tokens:         middleware.NewClientTokens(cfg.ClientTokenSecret, cfg.ClientTokenTTL()),
		promMiddleware: httpMetrics(),
		logger:         logger,
	}
	s.registry = NewRegistry(s.newClientState, cfg.ClientIdleTTL(), logger)
	return s
}

// newClientState builds the state owner of one client. Its session lives in
// the shared KV under the client's own namespace.
func (s *Server) newClientState(clientID string) *state.Store {
	logger := s.logger.With(slog.String("client_id", clientID))
	return state.New(state.Options{
		Seed:          s.world,
		Session:       session.New(s.kv, clientID, logger),
		AuthLatency:   s.config.AuthLatency(),
		FetchLatency:  s.config.FetchLatency(),
		MaxMediaBytes: s.config.MaxUploadBytes(),
		Logger:        logger,
	})
}

// Registry returns the client registry.
func (s *Server) Registry() *Registry { return s.registry }

// NewApp builds the Fiber app with middleware and routes installed.
func (s *Server) NewApp() *fiber.App {
	app := fiber.New(fiber.Config{
		AppName: "Snapgram API",
		// Data URLs are base64, a third larger than the media they carry.
		BodyLimit:    2 * s.config.MaxUploadBytes(),
		ErrorHandler: s.handleError,
	})
	s.SetupMiddleware(app)
	s.SetupRoutes(app)
	return app
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return c.Status(fe.Code).JSON(models.ErrorResponse{Error: fe.Message})
	}
	s.logger.ErrorContext(c.UserContext(), "unhandled error", slog.Any("error", err))
	return respondWithError(c, models.NewInternalError(err))
}

// SetupMiddleware configures middleware for the Fiber app
func (s *Server) SetupMiddleware(app *fiber.App) {
	app.Use(recover.New())
	app.Use(requestid.New())
	app.Use(middleware.ContextMiddleware())
	app.Use(middleware.TracingMiddleware())

	if s.promMiddleware != nil {
		app.Use(s.promMiddleware.Middleware)
	}

	app.Use(helmet.New())
	app.Use(middleware.StructuredLogger(s.logger))

	origins := s.config.AllowedOrigins
	if origins == "" {
		origins = "http://localhost:5173,http://localhost:3000,http://127.0.0.1:5173"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization",
		AllowCredentials: origins != "*",
		MaxAge:           86400,
	}))
}

// SetupRoutes configures all routes for the application
func (s *Server) SetupRoutes(app *fiber.App) {
	app.Get("/health", s.HealthCheck)
	if s.promMiddleware != nil {
		s.promMiddleware.RegisterAt(app, "/metrics")
	}

	api := app.Group("/api")
	api.Post("/clients", s.rateLimit("clients"), s.IssueClient)

	protected := api.Group("", middleware.ClientRequired(s.tokens))
	protected.Get("/status", s.GetStatus)
	protected.Post("/reset", s.ResetClient)

	auth := protected.Group("/auth")
	auth.Post("/login", s.rateLimit("login"), s.Login)
	auth.Post("/signup", s.rateLimit("signup"), s.Signup)
	auth.Post("/logout", s.Logout)
	auth.Get("/me", s.Me)

	users := protected.Group("/users")
	users.Get("/", s.SearchUsers)
	// Specific /:id/:resource routes before the generic /:id route
	users.Post("/:id/follow", s.FollowUser)
	users.Delete("/:id/follow", s.UnfollowUser)
	users.Get("/:id/posts", s.GetUserPosts)
	users.Get("/:id", s.GetUser)

	posts := protected.Group("/posts")
	posts.Get("/", s.GetPosts)
	posts.Post("/", s.rateLimit("create_post"), s.CreatePost)
	posts.Post("/:id/like", s.LikePost)
	posts.Post("/:id/dislike", s.DislikePost)
	posts.Post("/:id/comments", s.rateLimit("create_comment"), s.CreateComment)
	posts.Get("/:id", s.GetPost)

	protected.Get("/feed", s.GetFeed)
}

// HealthCheck reports liveness and, when configured, Redis reachability.
func (s *Server) HealthCheck(c *fiber.Ctx) error {
	redisStatus := "disabled"
	if s.redis != nil {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		redisStatus = "healthy"
		if err := s.redis.Ping(ctx).Err(); err != nil {
			redisStatus = "unhealthy"
		}
	}

	status := fiber.StatusOK
	overall := "up"
	if redisStatus == "unhealthy" {
		status = fiber.StatusServiceUnavailable
		overall = "degraded"
	}
	return c.Status(status).JSON(fiber.Map{
		"status":  overall,
		"clients": s.registry.Len(),
		"checks": fiber.Map{
			"session": s.config.SessionBackend,
			"redis":   redisStatus,
		},
		"time": time.Now(),
	})
}

// Start builds the app and listens on the configured port. It blocks until
// the app is shut down.
func (s *Server) Start() error {
	s.app = s.NewApp()
	s.logger.Info("server starting", slog.String("port", s.config.Port))
	return s.app.Listen(":" + s.config.Port)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.app != nil {
		if err := s.app.ShutdownWithContext(ctx); err != nil {
			s.logger.Error("error shutting down HTTP server", slog.Any("error", err))
		}
	}

	if err := s.registry.Shutdown(ctx); err != nil {
		s.logger.Error("error stopping client registry", slog.Any("error", err))
	}

	if err := s.kv.Close(); err != nil {
		s.logger.Error("error closing session storage", slog.Any("error", err))
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("error closing redis", slog.Any("error", err))
		}
	}

	s.logger.Info("server shutdown complete")
	return nil
}
