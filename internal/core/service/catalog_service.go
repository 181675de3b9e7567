package service

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/tillworks/till/internal/core/domain"
	"github.com/tillworks/till/internal/port"
)

var ErrProductNotFound = errors.New("product not found")

// CatalogService fronts the product catalog: admin CRUD, listing, and
// the scan path that resolves a SKU (optionally decoded from a barcode
// image) through a read-through cache.
type CatalogService struct {
	repo    port.CatalogRepository
	cache   port.CacheRepository
	decoder port.BarcodeDecoder
	log     *logrus.Logger
	sfg     singleflight.Group // collapses concurrent lookups for the same SKU
}

func NewCatalogService(repo port.CatalogRepository, cache port.CacheRepository, decoder port.BarcodeDecoder, log *logrus.Logger) *CatalogService {
	return &CatalogService{
		repo:    repo,
		cache:   cache,
		decoder: decoder,
		log:     log,
	}
}

func (s *CatalogService) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return s.repo.ListProducts(ctx)
}

func (s *CatalogService) GetProduct(ctx context.Context, id string) (domain.Product, bool, error) {
	return s.repo.GetProduct(ctx, id)
}

// Categories returns the distinct category labels in the catalog,
// sorted for stable display.
func (s *CatalogService) Categories(ctx context.Context) ([]string, error) {
	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var categories []string
	for _, p := range products {
		if p.Category == "" {
			continue
		}
		if _, ok := seen[p.Category]; ok {
			continue
		}
		seen[p.Category] = struct{}{}
		categories = append(categories, p.Category)
	}
	sort.Strings(categories)
	return categories, nil
}

// LookupSKU resolves a scanned SKU against the cache first, then the
// backend. Cache errors are logged and the lookup continues.
func (s *CatalogService) LookupSKU(ctx context.Context, sku string) (domain.Product, error) {
	v, err, _ := s.sfg.Do(sku, func() (interface{}, error) {
		product, ok, err := s.cache.GetProductBySKU(ctx, sku)
		if err != nil {
			s.log.WithError(err).WithField("sku", sku).Warn("product cache read failed")
		} else if ok {
			return product, nil
		}

		product, ok, err = s.repo.GetProductBySKU(ctx, sku)
		if err != nil {
			return domain.Product{}, fmt.Errorf("lookup sku %s: %w", sku, err)
		}
		if !ok {
			return domain.Product{}, ErrProductNotFound
		}

		if err := s.cache.SetProduct(ctx, product); err != nil {
			s.log.WithError(err).WithField("sku", sku).Warn("product cache write failed")
		}
		return product, nil
	})
	if err != nil {
		return domain.Product{}, err
	}
	return v.(domain.Product), nil
}

// ScanBarcode decodes a captured barcode image and resolves the SKU.
func (s *CatalogService) ScanBarcode(ctx context.Context, image []byte) (domain.Product, error) {
	sku, err := s.decoder.Decode(ctx, image)
	if err != nil {
		return domain.Product{}, fmt.Errorf("decode barcode: %w", err)
	}
	return s.LookupSKU(ctx, sku)
}

func (s *CatalogService) CreateProduct(ctx context.Context, fields port.ProductFields) (domain.Product, error) {
	return s.repo.CreateProduct(ctx, fields)
}

func (s *CatalogService) UpdateProduct(ctx context.Context, id string, fields port.ProductFields) (domain.Product, error) {
	product, err := s.repo.UpdateProduct(ctx, id, fields)
	if err != nil {
		return domain.Product{}, err
	}
	s.invalidate(ctx, product.SKU)
	return product, nil
}

func (s *CatalogService) DeleteProduct(ctx context.Context, id string) error {
	product, ok, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.DeleteProduct(ctx, id); err != nil {
		return err
	}
	if ok {
		s.invalidate(ctx, product.SKU)
	}
	return nil
}

func (s *CatalogService) UpdateProductStock(ctx context.Context, id string, quantity int) error {
	if quantity < 0 {
		return domain.ErrNegativeStock
	}
	product, ok, err := s.repo.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateProductStock(ctx, id, quantity); err != nil {
		return err
	}
	if ok {
		s.invalidate(ctx, product.SKU)
	}
	return nil
}

func (s *CatalogService) invalidate(ctx context.Context, sku string) {
	if err := s.cache.InvalidateProduct(ctx, sku); err != nil {
		s.log.WithError(err).WithField("sku", sku).Warn("failed to invalidate product cache")
	}
}
