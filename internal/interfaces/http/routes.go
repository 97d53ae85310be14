package http

import (
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/radiocast/backend/internal/domain"
	"github.com/radiocast/backend/internal/interfaces/http/handlers"
	"github.com/radiocast/backend/internal/interfaces/http/middleware"
	"github.com/radiocast/backend/internal/pkg/config"
)

// Router holds all handlers and middleware
type Router struct {
	app            *fiber.App
	authHandler    *handlers.AuthHandler
	recordHandler  *handlers.RecordHandler
	stationHandler *handlers.StationHandler
	systemHandler  *handlers.SystemHandler
	authMiddleware *middleware.AuthMiddleware
	hlsPath        string
}

// NewRouter creates a new router
func NewRouter(
	authHandler *handlers.AuthHandler,
	recordHandler *handlers.RecordHandler,
	stationHandler *handlers.StationHandler,
	systemHandler *handlers.SystemHandler,
	authMiddleware *middleware.AuthMiddleware,
	hlsPath string,
	serverConfig *config.ServerConfig,
) *Router {
	app := fiber.New(fiber.Config{
		ErrorHandler:          customErrorHandler,
		BodyLimit:             1024 * 1024,
		ReadTimeout:           time.Duration(serverConfig.ReadTimeout) * time.Second,
		WriteTimeout:          time.Duration(serverConfig.WriteTimeout) * time.Second,
		IdleTimeout:           time.Duration(serverConfig.IdleTimeout) * time.Second,
		UnescapePath:          true,
		ServerHeader:          "Radiocast",
		AppName:               "Radiocast API",
		DisableStartupMessage: true,
	})

	// Global middleware - order matters!
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))

	// HLS segments are already compressed; only JSON responses benefit
	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
		Next: func(c *fiber.Ctx) bool {
			return strings.HasPrefix(c.Path(), "/streams/")
		},
	}))

	if serverConfig.Production {
		app.Use(logger.New(logger.Config{
			Format:     "${status} ${method} ${path} ${latency} ${locals:requestid}\n",
			TimeFormat: "15:04:05",
			Output:     os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${method} ${path} - ${latency}\n",
		}))
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: false,
		MaxAge:           86400,
	}))

	return &Router{
		app:            app,
		authHandler:    authHandler,
		recordHandler:  recordHandler,
		stationHandler: stationHandler,
		systemHandler:  systemHandler,
		authMiddleware: authMiddleware,
		hlsPath:        hlsPath,
	}
}

// SetupRoutes configures all routes
func (r *Router) SetupRoutes() {
	// Playlists are rewritten every segment, so the file cache is disabled
	r.app.Static("/streams", r.hlsPath, fiber.Static{
		ByteRange:     true,
		CacheDuration: -1,
	})

	r.app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api := r.app.Group("/api/v1")

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
		})
	})

	authn := r.authMiddleware.Authenticate()
	operator := r.authMiddleware.RequireRole(domain.UserRoleOperator)
	admin := r.authMiddleware.RequireRole(domain.UserRoleAdmin)

	// Auth routes (public)
	auth := api.Group("/auth")
	auth.Post("/login", r.authHandler.Login)
	auth.Post("/refresh", r.authHandler.Refresh)
	auth.Get("/me", authn, r.authMiddleware.RequireRole(domain.UserRoleViewer), r.authHandler.Me)

	// Records
	records := api.Group("/records")
	records.Get("/", r.recordHandler.List)
	records.Get("/logs", r.recordHandler.Logs)
	records.Post("/", authn, operator, r.recordHandler.Create)
	records.Delete("/", authn, admin, r.recordHandler.Delete)

	// Stations
	stations := api.Group("/stations")
	stations.Get("/", r.stationHandler.List)
	stations.Get("/:name", r.stationHandler.Get)
	stations.Post("/", authn, operator, r.stationHandler.Create)
	stations.Put("/:name/url", authn, operator, r.stationHandler.UpdateURL)
	stations.Put("/:name", authn, operator, r.stationHandler.Update)
	stations.Delete("/:name", authn, admin, r.stationHandler.Delete)

	api.Get("/system/info", r.systemHandler.GetSystemInfo)
}

// App exposes the fiber application
func (r *Router) App() *fiber.App {
	return r.app
}

// Start starts the HTTP server
func (r *Router) Start(addr string) error {
	return r.app.Listen(addr)
}

// Shutdown gracefully shuts down the server
func (r *Router) Shutdown() error {
	return r.app.Shutdown()
}

// customErrorHandler handles errors globally
func customErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError

	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	return c.Status(code).JSON(fiber.Map{
		"error": err.Error(),
	})
}
