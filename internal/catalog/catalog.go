// Package catalog resolves product references into priced products. The
// engine itself never stores a product list; prices and tax rates come from
// an external product service (or a static seed in tests and demos) and are
// frozen into the cart line at add time.
package catalog

import (
	"context"
	"errors"

	"caisse/backend/internal/domain"
)

var ErrProductNotFound = errors.New("product not found")

type Resolver interface {
	Lookup(ctx context.Context, sku string) (*domain.Product, error)
}

// Static is a fixed in-process catalog, used when no product service is
// configured.
type Static struct {
	products map[string]domain.Product
}

func NewStatic(products []domain.Product) *Static {
	m := make(map[string]domain.Product, len(products))
	for _, p := range products {
		m[p.SKU] = p
	}
	return &Static{products: m}
}

func (s *Static) Lookup(_ context.Context, sku string) (*domain.Product, error) {
	p, ok := s.products[sku]
	if !ok {
		return nil, ErrProductNotFound
	}
	out := p
	return &out, nil
}
