package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/julioberne/mercadosocial/internal/domain/currency"
	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/repository"
)

// persistedHistoryLimit is how many owner-price samples are kept, both
// locally and in the price_history table.
const persistedHistoryLimit = 50

// PriceHistoryStore owns the persisted owner-price series for one product.
// Unlike votes and offers this series is raw samples, not a running
// aggregate; conversion into the display currency happens on read.
type PriceHistoryStore struct {
	mu      sync.RWMutex
	log     *slog.Logger
	backend repository.PriceHistoryRepository
	rates   repository.RateSource

	productID int64

	points  []model.PricePoint
	tempIDs tempIDSource
}

func NewPriceHistoryStore(log *slog.Logger, backend repository.PriceHistoryRepository, rates repository.RateSource, productID int64) *PriceHistoryStore {
	return &PriceHistoryStore{
		log:       log,
		backend:   backend,
		rates:     rates,
		productID: productID,
	}
}

// Load replaces local state with the newest persisted samples in
// chronological order. On failure prior state is left untouched.
func (s *PriceHistoryStore) Load(ctx context.Context) error {
	points, err := s.backend.ListPricePoints(ctx, s.productID, persistedHistoryLimit)
	if err != nil {
		s.log.Error("loading price history failed", "error", err)
		return fmt.Errorf("loading price history: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.points = points
	return nil
}

// AddPoint records a new owner-price sample optimistically and persists it.
// On failure the local series is refreshed from the backend rather than
// patched, since points carry no caller-visible identity.
func (s *PriceHistoryStore) AddPoint(ctx context.Context, price model.Money) error {
	s.mu.Lock()
	tempID := s.tempIDs.next()
	point := model.PricePoint{ID: tempID, Pending: true, Price: price, CreatedAt: time.Now()}
	s.appendLocked(point)
	s.mu.Unlock()

	saved, err := s.backend.InsertPricePoint(ctx, s.productID, price)
	if err != nil {
		s.log.Error("persisting price point failed", "error", err)
		if loadErr := s.Load(ctx); loadErr != nil {
			s.removeByID(tempID)
		}
		return fmt.Errorf("adding price point: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOfLocked(saved.ID) >= 0 {
		s.dropLocked(tempID)
		return nil
	}
	if i := s.indexOfLocked(tempID); i >= 0 {
		s.points[i].ID = saved.ID
		s.points[i].Pending = false
		s.points[i].CreatedAt = saved.CreatedAt
	}
	return nil
}

// ApplyRemoteInsert merges a realtime sample, ignoring known ids. Reports
// whether the collection changed.
func (s *PriceHistoryStore) ApplyRemoteInsert(point model.PricePoint) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOfLocked(point.ID) >= 0 {
		return false
	}
	s.appendLocked(point)
	return true
}

// History renders the series as chart points in the display currency.
func (s *PriceHistoryStore) History(display model.CurrencyCode) []model.HistoryPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rates := s.rates.Rates()
	out := make([]model.HistoryPoint, len(s.points))
	for i := range s.points {
		timeLabel, dateLabel := bucketLabels(s.points[i].CreatedAt)
		out[i] = model.HistoryPoint{
			Value: currency.ConvertMoney(s.points[i].Price, display, rates),
			Time:  timeLabel,
			Date:  dateLabel,
		}
	}
	return out
}

func (s *PriceHistoryStore) appendLocked(point model.PricePoint) {
	s.points = append(s.points, point)
	if len(s.points) > persistedHistoryLimit {
		s.points = s.points[len(s.points)-persistedHistoryLimit:]
	}
}

func (s *PriceHistoryStore) indexOfLocked(id int64) int {
	for i := range s.points {
		if s.points[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *PriceHistoryStore) dropLocked(id int64) {
	if i := s.indexOfLocked(id); i >= 0 {
		s.points = append(s.points[:i], s.points[i+1:]...)
	}
}

func (s *PriceHistoryStore) removeByID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(id)
}
