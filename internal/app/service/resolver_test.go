package service

import (
	"context"
	"errors"
	"testing"

	"github.com/qrtrail/qrtrail/internal/app/catalog"
	"github.com/qrtrail/qrtrail/internal/app/model"
	"github.com/qrtrail/qrtrail/internal/app/repository"
)

type mockCodeRepository struct {
	createFn    func(ctx context.Context, code *model.Code) error
	getFn       func(ctx context.Context, ref string) (*model.Code, error)
	listFn      func(ctx context.Context, limit, offset int) ([]repository.CodeWithStats, error)
	listAllFn   func(ctx context.Context) ([]model.Code, error)
	listRefsFn  func(ctx context.Context) ([]string, error)
	updateFn    func(ctx context.Context, code *model.Code) error
	setActiveFn func(ctx context.Context, ref string, active bool) error
	deleteFn    func(ctx context.Context, ref string) error
	countFn     func(ctx context.Context) (int64, error)
}

func (m *mockCodeRepository) Create(ctx context.Context, code *model.Code) error {
	if m.createFn != nil {
		return m.createFn(ctx, code)
	}
	return nil
}

func (m *mockCodeRepository) GetByReference(ctx context.Context, ref string) (*model.Code, error) {
	if m.getFn != nil {
		return m.getFn(ctx, ref)
	}
	return nil, repository.ErrCodeNotFound
}

func (m *mockCodeRepository) List(ctx context.Context, limit, offset int) ([]repository.CodeWithStats, error) {
	if m.listFn != nil {
		return m.listFn(ctx, limit, offset)
	}
	return nil, nil
}

func (m *mockCodeRepository) ListAll(ctx context.Context) ([]model.Code, error) {
	if m.listAllFn != nil {
		return m.listAllFn(ctx)
	}
	return nil, nil
}

func (m *mockCodeRepository) ListReferences(ctx context.Context) ([]string, error) {
	if m.listRefsFn != nil {
		return m.listRefsFn(ctx)
	}
	return nil, nil
}

func (m *mockCodeRepository) Update(ctx context.Context, code *model.Code) error {
	if m.updateFn != nil {
		return m.updateFn(ctx, code)
	}
	return nil
}

func (m *mockCodeRepository) SetActive(ctx context.Context, ref string, active bool) error {
	if m.setActiveFn != nil {
		return m.setActiveFn(ctx, ref, active)
	}
	return nil
}

func (m *mockCodeRepository) Delete(ctx context.Context, ref string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, ref)
	}
	return nil
}

func (m *mockCodeRepository) Count(ctx context.Context) (int64, error) {
	if m.countFn != nil {
		return m.countFn(ctx)
	}
	return 0, nil
}

type mockCatalog struct {
	findFn func(ctx context.Context, ref string) (*catalog.Product, error)
}

func (m *mockCatalog) FindProductByReference(ctx context.Context, ref string) (*catalog.Product, error) {
	if m.findFn != nil {
		return m.findFn(ctx, ref)
	}
	return nil, nil
}

type mockRecorder struct {
	recorded []*model.ScanEvent
	err      error
}

func (m *mockRecorder) Record(_ context.Context, event *model.ScanEvent) error {
	if m.err != nil {
		return m.err
	}
	m.recorded = append(m.recorded, event)
	return nil
}

const (
	testNotFoundURL = "https://shop.example/404"
	testFallbackURL = "https://shop.example/"
)

func newTestResolver(codes repository.CodeRepository, cat catalog.Catalog, rec ScanRecorder) *Resolver {
	return NewResolver(ResolverDeps{
		Codes:       codes,
		Catalog:     cat,
		Recorder:    rec,
		NotFoundURL: testNotFoundURL,
		FallbackURL: testFallbackURL,
	})
}

func TestResolver_UnknownToken(t *testing.T) {
	codes := &mockCodeRepository{
		createFn: func(ctx context.Context, code *model.Code) error {
			t.Fatal("unexpected code insert")
			return nil
		},
	}
	rec := &mockRecorder{}

	r := newTestResolver(codes, &mockCatalog{}, rec)
	res, err := r.Resolve(context.Background(), "nope", Visit{})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.Outcome != OutcomeNotFound {
		t.Fatalf("expected not_found, got %s", res.Outcome)
	}
	if res.URL != testNotFoundURL {
		t.Fatalf("expected not-found destination, got %s", res.URL)
	}
	if res.Tracked {
		t.Fatal("not-found resolution must not be tracked")
	}
	if len(rec.recorded) != 0 {
		t.Fatalf("expected no scans, got %d", len(rec.recorded))
	}
}

func TestResolver_StaleProduct(t *testing.T) {
	cat := &mockCatalog{
		findFn: func(ctx context.Context, ref string) (*catalog.Product, error) {
			return &catalog.Product{
				Reference:   ref,
				Name:        "Old product",
				Active:      false,
				CategoryURL: "https://shop.example/category/12",
			}, nil
		},
	}
	codes := &mockCodeRepository{
		createFn: func(ctx context.Context, code *model.Code) error {
			t.Fatal("stale product must not provision a code")
			return nil
		},
	}
	rec := &mockRecorder{}

	r := newTestResolver(codes, cat, rec)
	res, err := r.Resolve(context.Background(), "OLD-1", Visit{})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.Outcome != OutcomeStaleProduct {
		t.Fatalf("expected stale_product, got %s", res.Outcome)
	}
	if res.URL != "https://shop.example/category/12" {
		t.Fatalf("expected category fallback, got %s", res.URL)
	}
	if len(rec.recorded) != 0 {
		t.Fatal("stale product must not record a scan")
	}
}

func TestResolver_AutoProvision(t *testing.T) {
	var created *model.Code
	codes := &mockCodeRepository{
		createFn: func(ctx context.Context, code *model.Code) error {
			if created != nil {
				t.Fatal("expected exactly one insert")
			}
			created = code
			return nil
		},
	}
	cat := &mockCatalog{
		findFn: func(ctx context.Context, ref string) (*catalog.Product, error) {
			return &catalog.Product{
				Reference:  ref,
				Name:       "Fresh product",
				Active:     true,
				ProductURL: "https://shop.example/p/NEW-1",
			}, nil
		},
	}
	rec := &mockRecorder{}

	r := newTestResolver(codes, cat, rec)
	res, err := r.Resolve(context.Background(), "NEW-1", Visit{IP: "10.0.0.1", UserAgent: "curl/8"})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if created == nil {
		t.Fatal("expected a code to be provisioned")
	}
	if created.Reference != "NEW-1" || created.Name != "Fresh product" ||
		created.DestinationURL != "https://shop.example/p/NEW-1" || !created.Active {
		t.Fatalf("provisioned code is wrong: %+v", created)
	}

	if res.Outcome != OutcomeAutoProvisioned || !res.Tracked {
		t.Fatalf("expected tracked auto_provisioned, got %+v", res)
	}
	if res.URL != "https://shop.example/p/NEW-1" {
		t.Fatalf("expected product URL, got %s", res.URL)
	}

	if len(rec.recorded) != 1 {
		t.Fatalf("expected exactly one scan, got %d", len(rec.recorded))
	}
	scan := rec.recorded[0]
	if scan.CodeReference != "NEW-1" || scan.IP != "10.0.0.1" || scan.UserAgent != "curl/8" {
		t.Fatalf("scan metadata is wrong: %+v", scan)
	}
}

func TestResolver_AutoProvisionRace(t *testing.T) {
	// A concurrent first-time scan already inserted the row: the duplicate-key
	// failure is recovered by reading the winner's code back.
	winner := &model.Code{
		Reference:      "RACE-1",
		Name:           "Fresh product",
		DestinationURL: "https://shop.example/p/RACE-1",
		Active:         true,
	}

	firstLookup := true
	codes := &mockCodeRepository{
		getFn: func(ctx context.Context, ref string) (*model.Code, error) {
			if firstLookup {
				firstLookup = false
				return nil, repository.ErrCodeNotFound
			}
			return winner, nil
		},
		createFn: func(ctx context.Context, code *model.Code) error {
			return repository.ErrDuplicateReference
		},
	}
	cat := &mockCatalog{
		findFn: func(ctx context.Context, ref string) (*catalog.Product, error) {
			return &catalog.Product{Reference: ref, Name: "Fresh product", Active: true,
				ProductURL: "https://shop.example/p/RACE-1"}, nil
		},
	}
	rec := &mockRecorder{}

	r := newTestResolver(codes, cat, rec)
	res, err := r.Resolve(context.Background(), "RACE-1", Visit{})
	if err != nil {
		t.Fatalf("duplicate insert must be recovered, got error: %v", err)
	}
	if res.URL != winner.DestinationURL || !res.Tracked {
		t.Fatalf("expected winner's destination, got %+v", res)
	}
	if len(rec.recorded) != 1 {
		t.Fatalf("expected one scan, got %d", len(rec.recorded))
	}
}

func TestResolver_InactiveCodeNoLiveProduct(t *testing.T) {
	tests := []struct {
		name    string
		product *catalog.Product
		wantURL string
	}{
		{
			name:    "no product at all",
			product: nil,
			wantURL: testFallbackURL,
		},
		{
			name: "product inactive",
			product: &catalog.Product{
				Active:      false,
				CategoryURL: "https://shop.example/category/7",
			},
			wantURL: "https://shop.example/category/7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes := &mockCodeRepository{
				getFn: func(ctx context.Context, ref string) (*model.Code, error) {
					return &model.Code{Reference: ref, DestinationURL: "https://x", Active: false}, nil
				},
				setActiveFn: func(ctx context.Context, ref string, active bool) error {
					t.Fatal("inactive code without live product must not be reactivated")
					return nil
				},
			}
			cat := &mockCatalog{
				findFn: func(ctx context.Context, ref string) (*catalog.Product, error) {
					return tt.product, nil
				},
			}
			rec := &mockRecorder{}

			r := newTestResolver(codes, cat, rec)
			res, err := r.Resolve(context.Background(), "DIS-1", Visit{})
			if err != nil {
				t.Fatalf("Resolve returned error: %v", err)
			}
			if res.Outcome != OutcomeInactiveFallback || res.Tracked {
				t.Fatalf("expected untracked inactive_fallback, got %+v", res)
			}
			if res.URL != tt.wantURL {
				t.Fatalf("expected %s, got %s", tt.wantURL, res.URL)
			}
			if len(rec.recorded) != 0 {
				t.Fatal("inactive fallback must not record a scan")
			}
		})
	}
}

func TestResolver_Reactivate(t *testing.T) {
	reactivated := false
	codes := &mockCodeRepository{
		getFn: func(ctx context.Context, ref string) (*model.Code, error) {
			return &model.Code{
				Reference:      ref,
				DestinationURL: "https://shop.example/p/stored",
				Active:         false,
			}, nil
		},
		setActiveFn: func(ctx context.Context, ref string, active bool) error {
			if !active {
				t.Fatal("expected reactivation to set active=true")
			}
			reactivated = true
			return nil
		},
	}
	cat := &mockCatalog{
		findFn: func(ctx context.Context, ref string) (*catalog.Product, error) {
			return &catalog.Product{Reference: ref, Active: true,
				ProductURL: "https://shop.example/p/live"}, nil
		},
	}
	rec := &mockRecorder{}

	r := newTestResolver(codes, cat, rec)
	res, err := r.Resolve(context.Background(), "REV-1", Visit{})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}

	if !reactivated {
		t.Fatal("expected the code to be reactivated")
	}
	if res.Outcome != OutcomeReactivated || !res.Tracked {
		t.Fatalf("expected tracked reactivated, got %+v", res)
	}
	// The stored destination wins over the product URL.
	if res.URL != "https://shop.example/p/stored" {
		t.Fatalf("expected stored destination, got %s", res.URL)
	}
	if len(rec.recorded) != 1 {
		t.Fatalf("expected one scan, got %d", len(rec.recorded))
	}
}

func TestResolver_ReactivateWriteFailureIsFatal(t *testing.T) {
	codes := &mockCodeRepository{
		getFn: func(ctx context.Context, ref string) (*model.Code, error) {
			return &model.Code{Reference: ref, Active: false}, nil
		},
		setActiveFn: func(ctx context.Context, ref string, active bool) error {
			return errors.New("connection reset")
		},
	}
	cat := &mockCatalog{
		findFn: func(ctx context.Context, ref string) (*catalog.Product, error) {
			return &catalog.Product{Reference: ref, Active: true}, nil
		},
	}
	rec := &mockRecorder{}

	r := newTestResolver(codes, cat, rec)
	if _, err := r.Resolve(context.Background(), "REV-2", Visit{}); err == nil {
		t.Fatal("expected reactivation failure to surface")
	}
	if len(rec.recorded) != 0 {
		t.Fatal("failed reactivation must not record a scan")
	}
}

func TestResolver_TrackedRedirectAppendsPerCall(t *testing.T) {
	stored := &model.Code{
		Reference:      "ACT-1",
		DestinationURL: "https://shop.example/p/act",
		Active:         true,
	}
	codes := &mockCodeRepository{
		getFn: func(ctx context.Context, ref string) (*model.Code, error) {
			row := *stored
			return &row, nil
		},
		setActiveFn: func(ctx context.Context, ref string, active bool) error {
			t.Fatal("active code must not be mutated")
			return nil
		},
	}
	// The catalog must not even be consulted for an active code.
	cat := &mockCatalog{
		findFn: func(ctx context.Context, ref string) (*catalog.Product, error) {
			t.Fatal("unexpected catalog lookup")
			return nil, nil
		},
	}
	rec := &mockRecorder{}

	r := newTestResolver(codes, cat, rec)
	for i := 0; i < 2; i++ {
		res, err := r.Resolve(context.Background(), "ACT-1", Visit{IP: "10.0.0.2"})
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		if res.Outcome != OutcomeTracked || res.URL != stored.DestinationURL {
			t.Fatalf("expected tracked redirect to stored destination, got %+v", res)
		}
	}

	// Scans are not deduplicated: two calls, two rows.
	if len(rec.recorded) != 2 {
		t.Fatalf("expected two scans, got %d", len(rec.recorded))
	}
}

func TestResolver_RecorderFailureNeverBlocksRedirect(t *testing.T) {
	codes := &mockCodeRepository{
		getFn: func(ctx context.Context, ref string) (*model.Code, error) {
			return &model.Code{Reference: ref, DestinationURL: "https://x", Active: true}, nil
		},
	}
	rec := &mockRecorder{err: errors.New("nats unavailable")}

	r := newTestResolver(codes, &mockCatalog{}, rec)
	res, err := r.Resolve(context.Background(), "ACT-2", Visit{})
	if err != nil {
		t.Fatalf("recorder failure must not fail the resolve: %v", err)
	}
	if res.URL != "https://x" || !res.Tracked {
		t.Fatalf("expected tracked redirect despite recorder failure, got %+v", res)
	}
}

func TestResolver_CatalogOutageDegrades(t *testing.T) {
	cat := &mockCatalog{
		findFn: func(ctx context.Context, ref string) (*catalog.Product, error) {
			return nil, errors.New("catalog timeout")
		},
	}

	r := newTestResolver(&mockCodeRepository{}, cat, &mockRecorder{})
	res, err := r.Resolve(context.Background(), "ANY", Visit{})
	if err != nil {
		t.Fatalf("catalog outage must not fail the resolve: %v", err)
	}
	if res.URL != testNotFoundURL {
		t.Fatalf("expected not-found degradation, got %s", res.URL)
	}
}

func TestResolver_CodeLookupFailureIsFatal(t *testing.T) {
	codes := &mockCodeRepository{
		getFn: func(ctx context.Context, ref string) (*model.Code, error) {
			return nil, errors.New("connection refused")
		},
	}

	r := newTestResolver(codes, &mockCatalog{}, &mockRecorder{})
	if _, err := r.Resolve(context.Background(), "ANY", Visit{}); err == nil {
		t.Fatal("expected store failure to surface")
	}
}

func TestResolver_FilterSkipsCodeLookup(t *testing.T) {
	filter := NewReferenceFilter(100, 0.01)
	filter.Add("KNOWN")

	codes := &mockCodeRepository{
		getFn: func(ctx context.Context, ref string) (*model.Code, error) {
			if ref != "KNOWN" {
				t.Fatalf("lookup for %q should have been filtered out", ref)
			}
			return &model.Code{Reference: ref, DestinationURL: "https://k", Active: true}, nil
		},
	}

	r := NewResolver(ResolverDeps{
		Codes:       codes,
		Catalog:     &mockCatalog{},
		Recorder:    &mockRecorder{},
		Filter:      filter,
		NotFoundURL: testNotFoundURL,
		FallbackURL: testFallbackURL,
	})

	// Unknown token: definite filter miss, so the codes table is skipped and
	// the product path decides (here: nothing matches).
	res, err := r.Resolve(context.Background(), "JUNK", Visit{})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.Outcome != OutcomeNotFound {
		t.Fatalf("expected not_found, got %s", res.Outcome)
	}

	// Known token still resolves through the database.
	res, err = r.Resolve(context.Background(), "KNOWN", Visit{})
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if res.URL != "https://k" {
		t.Fatalf("expected tracked redirect, got %+v", res)
	}
}
