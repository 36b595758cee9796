package service

import (
	"context"
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
	"github.com/qrtrail/qrtrail/internal/app/repository"
)

const (
	defaultFilterCapacity = 100_000
	defaultFilterFPRate   = 0.01
)

// ReferenceFilter is a bloom filter over known code references. The resolver
// consults it to skip the codes-table lookup for tokens that definitely have
// no code row; the product lookup still runs, so auto-provisioning is
// unaffected. Deleted codes leave stale positives behind, which only cost one
// extra database miss.
type ReferenceFilter struct {
	mu     sync.RWMutex
	filter *bloom.BloomFilter
}

// NewReferenceFilter creates an empty filter sized for the expected number of
// live references.
func NewReferenceFilter(capacity uint, fpRate float64) *ReferenceFilter {
	if capacity == 0 {
		capacity = defaultFilterCapacity
	}
	if fpRate <= 0 || fpRate >= 1 {
		fpRate = defaultFilterFPRate
	}
	return &ReferenceFilter{filter: bloom.NewWithEstimates(capacity, fpRate)}
}

// SeedFromRepository loads every existing reference into the filter.
func (f *ReferenceFilter) SeedFromRepository(ctx context.Context, codes repository.CodeRepository) (int, error) {
	refs, err := codes.ListReferences(ctx)
	if err != nil {
		return 0, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ref := range refs {
		f.filter.AddString(ref)
	}
	return len(refs), nil
}

// Add marks a reference as existing.
func (f *ReferenceFilter) Add(ref string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filter.AddString(ref)
}

// MightContain reports whether ref could be a known reference. A false result
// is definitive; a true result still needs the database.
func (f *ReferenceFilter) MightContain(ref string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.filter.TestString(ref)
}
