package handler

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/qrtrail/qrtrail/internal/app/service"
	"go.uber.org/zap"
)

// ScanDeps groups dependencies required by the front redirect handler.
type ScanDeps struct {
	Logger      *zap.Logger
	Resolver    *service.Resolver
	NotFoundURL string
}

// ScanHandler implements the public scan endpoint. Whatever happens, the
// response is a redirect: unmatched tokens go to the not-found destination and
// resolver failures degrade there too, so the person scanning never sees an
// error page.
type ScanHandler struct {
	logger      *zap.Logger
	resolver    *service.Resolver
	notFoundURL string
}

// NewScanHandler creates a scan handler with the provided dependencies.
func NewScanHandler(deps ScanDeps) *ScanHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScanHandler{
		logger:      logger,
		resolver:    deps.Resolver,
		notFoundURL: deps.NotFoundURL,
	}
}

// Register wires the front routes onto the provided router.
func (h *ScanHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/scan", h.Scan)
}

// Health is a simple status endpoint so we know the service is running.
func (h *ScanHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "qrtrail",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Scan handles GET /scan?qr=<token>.
func (h *ScanHandler) Scan(c *fiber.Ctx) error {
	token := c.Query("qr")
	if token == "" {
		return c.Redirect(h.notFoundURL, fiber.StatusFound)
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := h.resolver.Resolve(ctx, token, service.Visit{
		IP:        c.IP(),
		UserAgent: c.Get("User-Agent"),
	})
	if err != nil {
		h.logger.Error("scan resolution failed", zap.String("token", token), zap.Error(err))
		return c.Redirect(h.notFoundURL, fiber.StatusFound)
	}

	h.logger.Debug("scan resolved",
		zap.String("token", token),
		zap.String("outcome", string(res.Outcome)),
		zap.String("target", res.URL),
		zap.Bool("tracked", res.Tracked),
	)
	return c.Redirect(res.URL, fiber.StatusFound)
}
