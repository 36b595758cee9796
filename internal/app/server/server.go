package server

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/qrtrail/qrtrail/internal/app/repository"
	"github.com/qrtrail/qrtrail/internal/app/service"
	inthttp "github.com/qrtrail/qrtrail/internal/http/handler"
	"github.com/qrtrail/qrtrail/internal/http/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Dependencies bundles everything the HTTP server needs wired in.
type Dependencies struct {
	Logger      *zap.Logger
	Redis       *redis.Client
	Resolver    *service.Resolver
	CodeService service.CodeService
	Codes       repository.CodeRepository
	Scans       repository.ScanRepository
	NotFoundURL string
}

// Server wraps the Fiber application and its dependencies.
type Server struct {
	app  *fiber.App
	deps Dependencies
}

// New creates a new HTTP server instance with default routes.
func New(deps Dependencies) *Server {
	app := fiber.New(fiber.Config{
		AppName: "qrtrail",
	})

	s := &Server{
		app:  app,
		deps: deps,
	}

	s.registerRoutes()
	return s
}

// Listen starts the Fiber server on the given address.
func (s *Server) Listen(addr string) error {
	return s.app.Listen(addr)
}

// Shutdown gracefully stops the Fiber server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

// App exposes the underlying Fiber app (used by handler tests).
func (s *Server) App() *fiber.App {
	return s.app
}

func (s *Server) registerRoutes() {
	s.app.Use(middleware.RequestID())
	s.app.Use(middleware.Recovery(s.deps.Logger))
	s.app.Use(middleware.Logger(s.deps.Logger))
	s.app.Use(middleware.CORS())

	scanHandler := inthttp.NewScanHandler(inthttp.ScanDeps{
		Logger:      s.deps.Logger,
		Resolver:    s.deps.Resolver,
		NotFoundURL: s.deps.NotFoundURL,
	})
	scanHandler.Register(s.app)

	// The public scan route stays unthrottled; rate limiting only guards the
	// management API.
	api := s.app.Group("/api")
	if s.deps.Redis != nil {
		api.Use(middleware.RateLimit(s.deps.Redis, middleware.DefaultRateLimitConfig(), s.deps.Logger))
	}

	adminHandler := inthttp.NewAdminHandler(inthttp.AdminDeps{
		Logger:      s.deps.Logger,
		CodeService: s.deps.CodeService,
		Exporter:    inthttp.NewCSVExporter(s.deps.Codes, s.deps.Scans),
	})
	adminHandler.Register(api)
}
