package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/qrtrail/qrtrail/internal/app/catalog"
	"github.com/qrtrail/qrtrail/internal/app/model"
	"github.com/qrtrail/qrtrail/internal/app/repository"
	infraprom "github.com/qrtrail/qrtrail/internal/infra/prometheus"
	"go.uber.org/zap"
)

// Outcome classifies what the resolver decided for one inbound token.
type Outcome string

const (
	// OutcomeNotFound: neither a code nor a product matches the token.
	OutcomeNotFound Outcome = "not_found"
	// OutcomeStaleProduct: a product matches but is inactive and no code
	// exists; no code is created.
	OutcomeStaleProduct Outcome = "stale_product"
	// OutcomeAutoProvisioned: an active product was bridged into a fresh
	// code on first sight, then tracked.
	OutcomeAutoProvisioned Outcome = "auto_provisioned"
	// OutcomeInactiveFallback: the code is inactive and its product is
	// inactive or absent; no scan is recorded.
	OutcomeInactiveFallback Outcome = "inactive_fallback"
	// OutcomeReactivated: an inactive code was snapped back to active
	// because its product is live, then tracked.
	OutcomeReactivated Outcome = "reactivated"
	// OutcomeTracked: the ordinary case, an active code.
	OutcomeTracked Outcome = "tracked"
)

// Resolution is the resolver's answer: where to send the caller and why.
type Resolution struct {
	URL     string
	Outcome Outcome
	Tracked bool
}

// Visit carries the request metadata captured alongside a tracked redirect.
type Visit struct {
	IP        string
	UserAgent string
}

// ResolverDeps groups everything the resolver needs.
type ResolverDeps struct {
	Logger      *zap.Logger
	Codes       repository.CodeRepository
	Catalog     catalog.Catalog
	Recorder    ScanRecorder
	Filter      *ReferenceFilter          // optional
	Metrics     *infraprom.Metrics        // optional
	NotFoundURL string                    // destination for unmatched tokens
	FallbackURL string                    // generic fallback when no product can supply a category page
}

// Resolver turns an inbound token into a redirect target while maintaining the
// code/scan store. It lazily bridges catalog products into tracked codes on
// first scan, and reactivates soft-disabled codes whose product is still live.
type Resolver struct {
	logger      *zap.Logger
	codes       repository.CodeRepository
	catalog     catalog.Catalog
	recorder    ScanRecorder
	filter      *ReferenceFilter
	metrics     *infraprom.Metrics
	notFoundURL string
	fallbackURL string
}

// NewResolver creates a scan resolver with the provided dependencies.
func NewResolver(deps ResolverDeps) *Resolver {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		logger:      logger,
		codes:       deps.Codes,
		catalog:     deps.Catalog,
		recorder:    deps.Recorder,
		filter:      deps.Filter,
		metrics:     deps.Metrics,
		notFoundURL: deps.NotFoundURL,
		fallbackURL: deps.FallbackURL,
	}
}

// Resolve decides the redirect target for token and applies the store
// side effects: at most one code insert, one active-flag update and one scan.
//
// Scans are intentionally not deduplicated — every hit on a tracked code
// appends one scan row. A returned error means a store write failed in a way
// that cannot be recovered; the caller decides what the end user sees.
func (r *Resolver) Resolve(ctx context.Context, token string, visit Visit) (Resolution, error) {
	code, err := r.lookupCode(ctx, token)
	if err != nil {
		return Resolution{}, fmt.Errorf("resolve %q: load code: %w", token, err)
	}

	// The product is only needed when the code is missing or inactive, so the
	// catalog lookup is deferred until one of those branches asks for it.
	var (
		product       *catalog.Product
		productLoaded bool
	)
	loadProduct := func() *catalog.Product {
		if productLoaded {
			return product
		}
		p, err := r.catalog.FindProductByReference(ctx, token)
		if err != nil {
			// A catalog outage must not break redirects; treat the token as
			// having no product and let the fallback branches take over.
			r.logger.Error("catalog lookup failed",
				zap.String("token", token), zap.Error(err))
			p = nil
		}
		product, productLoaded = p, true
		return product
	}

	outcome := OutcomeTracked

	if code == nil {
		p := loadProduct()
		if p == nil {
			return r.finish(Resolution{URL: r.notFoundURL, Outcome: OutcomeNotFound}), nil
		}
		if !p.Active {
			return r.finish(Resolution{URL: r.fallbackFor(p), Outcome: OutcomeStaleProduct}), nil
		}

		code, err = r.autoProvision(ctx, token, p)
		if err != nil {
			return Resolution{}, err
		}
		outcome = OutcomeAutoProvisioned
	}

	if !code.Active {
		p := loadProduct()
		if p == nil || !p.Active {
			return r.finish(Resolution{URL: r.fallbackFor(p), Outcome: OutcomeInactiveFallback}), nil
		}

		// The product is confirmed live: snap the code back to active rather
		// than silently dropping its traffic.
		if err := r.codes.SetActive(ctx, token, true); err != nil {
			return Resolution{}, fmt.Errorf("resolve %q: reactivate code: %w", token, err)
		}
		code.Active = true
		outcome = OutcomeReactivated
	}

	r.recordScan(ctx, token, visit)

	return r.finish(Resolution{URL: code.DestinationURL, Outcome: outcome, Tracked: true}), nil
}

// lookupCode returns nil (not an error) when no code exists for ref.
func (r *Resolver) lookupCode(ctx context.Context, ref string) (*model.Code, error) {
	if r.filter != nil && !r.filter.MightContain(ref) {
		return nil, nil
	}

	code, err := r.codes.GetByReference(ctx, ref)
	if err != nil {
		if errors.Is(err, repository.ErrCodeNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return code, nil
}

// autoProvision bridges an active product into a fresh code. A duplicate-key
// failure means a concurrent scan of the same brand-new reference won the
// insert; its row is read back and used instead.
func (r *Resolver) autoProvision(ctx context.Context, ref string, p *catalog.Product) (*model.Code, error) {
	code := &model.Code{
		Reference:      ref,
		Name:           p.Name,
		DestinationURL: p.ProductURL,
		Active:         true,
	}

	err := r.codes.Create(ctx, code)
	switch {
	case err == nil:
		if r.filter != nil {
			r.filter.Add(ref)
		}
		r.logger.Info("auto-provisioned code from product",
			zap.String("reference", ref), zap.String("destination", code.DestinationURL))
		return code, nil

	case errors.Is(err, repository.ErrDuplicateReference):
		r.logger.Debug("auto-provision lost the race, reusing existing code",
			zap.String("reference", ref))
		return r.codes.GetByReference(ctx, ref)

	default:
		return nil, fmt.Errorf("auto-provision %q: %w", ref, err)
	}
}

// recordScan hands the scan to the recorder. Failures are logged and dropped;
// the redirect must go out regardless.
func (r *Resolver) recordScan(ctx context.Context, ref string, visit Visit) {
	if r.recorder == nil {
		return
	}

	event := &model.ScanEvent{
		ID:            uuid.New().String(),
		CodeReference: ref,
		IP:            visit.IP,
		OS:            ClassifyOS(visit.UserAgent),
		Browser:       ClassifyBrowser(visit.UserAgent),
		UserAgent:     visit.UserAgent,
		CapturedAt:    time.Now().UTC(),
	}

	if err := r.recorder.Record(ctx, event); err != nil {
		r.logger.Error("scan dropped, recorder failed",
			zap.String("code_reference", ref), zap.Error(err))
	}
}

func (r *Resolver) fallbackFor(p *catalog.Product) string {
	if p != nil && p.CategoryURL != "" {
		return p.CategoryURL
	}
	return r.fallbackURL
}

func (r *Resolver) finish(res Resolution) Resolution {
	r.metrics.ObserveResolution(string(res.Outcome))
	return res
}
