package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/qrtrail/qrtrail/internal/app/catalog"
	"github.com/qrtrail/qrtrail/internal/app/model"
	"github.com/qrtrail/qrtrail/internal/app/repository"
	"github.com/qrtrail/qrtrail/internal/app/service"
)

// stubCodes serves a single fixed code row.
type stubCodes struct {
	code *model.Code
}

func (s *stubCodes) Create(ctx context.Context, code *model.Code) error { return nil }

func (s *stubCodes) GetByReference(ctx context.Context, ref string) (*model.Code, error) {
	if s.code != nil && s.code.Reference == ref {
		row := *s.code
		return &row, nil
	}
	return nil, repository.ErrCodeNotFound
}

func (s *stubCodes) List(ctx context.Context, limit, offset int) ([]repository.CodeWithStats, error) {
	return nil, nil
}
func (s *stubCodes) ListAll(ctx context.Context) ([]model.Code, error)      { return nil, nil }
func (s *stubCodes) ListReferences(ctx context.Context) ([]string, error)   { return nil, nil }
func (s *stubCodes) Update(ctx context.Context, code *model.Code) error     { return nil }
func (s *stubCodes) SetActive(ctx context.Context, ref string, active bool) error {
	return nil
}
func (s *stubCodes) Delete(ctx context.Context, ref string) error { return nil }
func (s *stubCodes) Count(ctx context.Context) (int64, error)     { return 0, nil }

type stubCatalog struct{}

func (stubCatalog) FindProductByReference(ctx context.Context, ref string) (*catalog.Product, error) {
	return nil, nil
}

type captureRecorder struct {
	events []*model.ScanEvent
}

func (r *captureRecorder) Record(_ context.Context, event *model.ScanEvent) error {
	r.events = append(r.events, event)
	return nil
}

const stubNotFoundURL = "https://shop.example/404"

func newScanTestApp(codes repository.CodeRepository, rec service.ScanRecorder) *fiber.App {
	resolver := service.NewResolver(service.ResolverDeps{
		Codes:       codes,
		Catalog:     stubCatalog{},
		Recorder:    rec,
		NotFoundURL: stubNotFoundURL,
		FallbackURL: "https://shop.example/",
	})

	app := fiber.New()
	NewScanHandler(ScanDeps{
		Resolver:    resolver,
		NotFoundURL: stubNotFoundURL,
	}).Register(app)
	return app
}

func TestScanHandler_TrackedRedirect(t *testing.T) {
	codes := &stubCodes{code: &model.Code{
		Reference:      "SKU-1",
		DestinationURL: "https://shop.example/p/1",
		Active:         true,
	}}
	rec := &captureRecorder{}
	app := newScanTestApp(codes, rec)

	req := httptest.NewRequest(http.MethodGet, "/scan?qr=SKU-1", nil)
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) Chrome/100.0 Safari/537.36")

	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "https://shop.example/p/1" {
		t.Fatalf("expected redirect to destination, got %q", loc)
	}

	if len(rec.events) != 1 {
		t.Fatalf("expected one scan event, got %d", len(rec.events))
	}
	event := rec.events[0]
	if event.OS != "Mac" || event.Browser != "Chrome" {
		t.Fatalf("expected Mac/Chrome classification, got %s/%s", event.OS, event.Browser)
	}
}

func TestScanHandler_UnknownToken(t *testing.T) {
	app := newScanTestApp(&stubCodes{}, &captureRecorder{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/scan?qr=nope", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != stubNotFoundURL {
		t.Fatalf("expected not-found destination, got %q", loc)
	}
}

func TestScanHandler_MissingToken(t *testing.T) {
	rec := &captureRecorder{}
	app := newScanTestApp(&stubCodes{}, rec)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/scan", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusFound {
		t.Fatalf("expected 302, got %d", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != stubNotFoundURL {
		t.Fatalf("expected not-found destination, got %q", loc)
	}
	if len(rec.events) != 0 {
		t.Fatal("missing token must not record a scan")
	}
}

func TestScanHandler_Health(t *testing.T) {
	app := newScanTestApp(&stubCodes{}, &captureRecorder{})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
