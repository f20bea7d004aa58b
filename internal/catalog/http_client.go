package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"caisse/backend/internal/domain"
)

// HTTPResolver looks products up from an external product service over its
// JSON API. A 404 maps to ErrProductNotFound; anything else is surfaced as a
// transport error so the caller can distinguish "unknown product" from
// "catalog down".
type HTTPResolver struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewHTTPResolver(baseURL string, token string) *HTTPResolver {
	return &HTTPResolver{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: 5 * time.Second},
	}
}

func (r *HTTPResolver) Lookup(ctx context.Context, sku string) (*domain.Product, error) {
	endpoint := fmt.Sprintf("%s/v1/products/%s", r.baseURL, url.PathEscape(sku))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog lookup %s: %w", sku, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrProductNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog lookup %s: unexpected status %d", sku, resp.StatusCode)
	}

	var p domain.Product
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("catalog lookup %s: decode: %w", sku, err)
	}
	return &p, nil
}
