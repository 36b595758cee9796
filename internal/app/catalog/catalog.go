// Package catalog talks to the commerce platform that owns the product data.
// The tracker only ever reads from it: a reference either matches a product or
// it does not, and a product carries the two URLs the resolver can redirect to.
package catalog

import "context"

// Product is the read-only view of a catalog product the resolver cares about.
type Product struct {
	Reference   string `json:"reference"`
	Name        string `json:"name"`
	Active      bool   `json:"active"`
	ProductURL  string `json:"product_url"`
	CategoryURL string `json:"category_url"`
}

// Catalog resolves references against the product catalog.
type Catalog interface {
	// FindProductByReference returns the product for ref, or (nil, nil) when
	// no product carries that reference. A non-nil error means the catalog
	// itself could not be consulted.
	FindProductByReference(ctx context.Context, ref string) (*Product, error)
}
