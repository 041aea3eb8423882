package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/repository"
)

// ErrProductSold rejects mutations of a terminally sold listing.
var ErrProductSold = errors.New("product already sold")

// ErrProductNotLoaded signals a write attempted before the first load.
var ErrProductNotLoaded = errors.New("product not loaded")

// ProductStore owns the single product listing. Writes are optimistic: the
// local copy changes first and is rolled back to the prior snapshot if the
// backend write fails.
type ProductStore struct {
	mu      sync.RWMutex
	log     *slog.Logger
	backend repository.ProductRepository

	productID int64
	product   *model.Product
}

func NewProductStore(log *slog.Logger, backend repository.ProductRepository, productID int64) *ProductStore {
	return &ProductStore{
		log:       log,
		backend:   backend,
		productID: productID,
	}
}

// Load fetches the product with its seller join. On failure prior state is
// left untouched.
func (s *ProductStore) Load(ctx context.Context) error {
	product, err := s.backend.GetProduct(ctx, s.productID)
	if err != nil {
		s.log.Error("loading product failed", "error", err)
		return fmt.Errorf("loading product: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.product = product
	return nil
}

// Save applies the owner-editable fields, reopens the listing and clears any
// final price, then persists. Rolled back wholesale on failure.
func (s *ProductStore) Save(ctx context.Context, updates model.Product) error {
	s.mu.Lock()
	if s.product == nil {
		s.mu.Unlock()
		return ErrProductNotLoaded
	}
	prev := *s.product

	s.product.Name = updates.Name
	s.product.Description = updates.Description
	s.product.Content = updates.Content
	s.product.OwnerPrice = updates.OwnerPrice
	s.product.Images = updates.Images
	s.product.VideoURL = updates.VideoURL
	s.product.Status = model.ProductOpen
	s.product.FinalPrice = nil
	saving := *s.product
	s.mu.Unlock()

	if err := s.backend.UpdateProduct(ctx, &saving); err != nil {
		s.restore(prev)
		return fmt.Errorf("saving product: %w", err)
	}
	return nil
}

// ToggleLock flips the listing between open and locked. A sold listing is
// terminal and cannot be toggled.
func (s *ProductStore) ToggleLock(ctx context.Context) (model.ProductStatus, error) {
	s.mu.Lock()
	if s.product == nil {
		s.mu.Unlock()
		return "", ErrProductNotLoaded
	}
	if s.product.Status == model.ProductSold {
		s.mu.Unlock()
		return model.ProductSold, ErrProductSold
	}
	prev := *s.product
	next := model.ProductLocked
	if s.product.Status == model.ProductLocked {
		next = model.ProductOpen
	}
	s.product.Status = next
	s.mu.Unlock()

	if err := s.backend.UpdateProductStatus(ctx, s.productID, next); err != nil {
		s.restore(prev)
		return prev.Status, fmt.Errorf("toggling lock: %w", err)
	}
	return next, nil
}

// Sell marks the listing sold at the final price. Terminal transition, set
// by the offer-acceptance flow after its explicit confirmation gate.
func (s *ProductStore) Sell(ctx context.Context, final model.Money) error {
	s.mu.Lock()
	if s.product == nil {
		s.mu.Unlock()
		return ErrProductNotLoaded
	}
	prev := *s.product
	s.product.Status = model.ProductSold
	finalCopy := final
	s.product.FinalPrice = &finalCopy
	s.mu.Unlock()

	if err := s.backend.SellProduct(ctx, s.productID, final); err != nil {
		s.restore(prev)
		return fmt.Errorf("selling product: %w", err)
	}
	return nil
}

// ApplyRemoteUpdate reacts to a realtime UPDATE by reloading the whole
// product; the seller join is not part of the event payload. Reports whether
// the reload succeeded.
func (s *ProductStore) ApplyRemoteUpdate(ctx context.Context) bool {
	if err := s.Load(ctx); err != nil {
		s.log.Warn("reloading product after remote update failed", "error", err)
		return false
	}
	return true
}

// ProductID returns the listing id this store is bound to.
func (s *ProductStore) ProductID() int64 {
	return s.productID
}

// Product returns a copy of the listing, or nil before the first load.
func (s *ProductStore) Product() *model.Product {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.product == nil {
		return nil
	}
	out := *s.product
	if s.product.FinalPrice != nil {
		final := *s.product.FinalPrice
		out.FinalPrice = &final
	}
	out.Images = append([]string(nil), s.product.Images...)
	return &out
}

func (s *ProductStore) restore(prev model.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.product = &prev
}
