package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultRequestTimeout = 5 * time.Second

// HTTPClient queries the commerce platform's product API.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPClient builds a catalog client for the given API base URL.
func NewHTTPClient(baseURL string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: defaultRequestTimeout},
	}
}

// FindProductByReference fetches GET {base}/api/products/{ref}.
// 404 means the reference is not a product and yields (nil, nil).
func (c *HTTPClient) FindProductByReference(ctx context.Context, ref string) (*Product, error) {
	endpoint := fmt.Sprintf("%s/api/products/%s", c.baseURL, url.PathEscape(ref))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog: fetch product %q: %w", ref, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var product Product
		if err := json.NewDecoder(resp.Body).Decode(&product); err != nil {
			return nil, fmt.Errorf("catalog: decode product %q: %w", ref, err)
		}
		return &product, nil
	case http.StatusNotFound:
		return nil, nil
	default:
		return nil, fmt.Errorf("catalog: fetch product %q: unexpected status %d", ref, resp.StatusCode)
	}
}
