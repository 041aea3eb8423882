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

// OfferStats is the statistics projection over the offers collection,
// computed in a display currency.
type OfferStats struct {
	TotalOffers  int          `json:"total_offers"`
	MaxOffer     float64      `json:"max_offer"`
	AvgOffer     float64      `json:"avg_offer"`
	PendingCount int          `json:"pending_count"`
	Accepted     *model.Offer `json:"accepted,omitempty"`
}

// OffersStore owns the offers collection for one product. Offers are kept in
// creation order; the history series tracks the cumulative maximum ("best
// offer so far") in the main currency. Status changes arrive only through
// the realtime feed; accepting one offer does not touch its siblings, which
// display layers may render as superseded.
type OffersStore struct {
	mu      sync.RWMutex
	log     *slog.Logger
	backend repository.OfferRepository
	rates   repository.RateSource

	productID int64
	main      model.CurrencyCode

	offers  []model.Offer
	history *historyBuilder
	tempIDs tempIDSource
}

func NewOffersStore(log *slog.Logger, backend repository.OfferRepository, rates repository.RateSource, productID int64, main model.CurrencyCode) *OffersStore {
	return &OffersStore{
		log:       log,
		backend:   backend,
		rates:     rates,
		productID: productID,
		main:      main,
		history:   newHistoryBuilder(runningMaximum),
	}
}

// Load replaces local state with the full backend collection and rebuilds
// the history series. On failure prior state is left untouched.
func (s *OffersStore) Load(ctx context.Context) error {
	offers, err := s.backend.ListOffers(ctx, s.productID)
	if err != nil {
		s.log.Error("loading offers failed", "error", err)
		return fmt.Errorf("loading offers: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.offers = offers
	s.rebuildHistoryLocked()
	return nil
}

// Submit appends a pending offer optimistically, then issues the backend
// write. The temporary id is swapped in place on success; the entry is
// removed and the error propagated on failure.
func (s *OffersStore) Submit(ctx context.Context, bidder string, value model.Money) (model.Offer, error) {
	s.mu.Lock()
	tempID := s.tempIDs.next()
	offer := model.Offer{
		ID:        tempID,
		Pending:   true,
		Bidder:    bidder,
		Value:     value,
		Status:    model.OfferPending,
		CreatedAt: time.Now(),
	}
	s.offers = append(s.offers, offer)
	s.mu.Unlock()

	saved, err := s.backend.InsertOffer(ctx, s.productID, bidder, value)
	if err != nil {
		s.removeByID(tempID)
		return model.Offer{}, fmt.Errorf("submitting offer: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOfLocked(saved.ID) >= 0 {
		s.dropLocked(tempID)
		return *saved, nil
	}
	if i := s.indexOfLocked(tempID); i >= 0 {
		s.offers[i].ID = saved.ID
		s.offers[i].Pending = false
		s.offers[i].CreatedAt = saved.CreatedAt
		s.history.Append(saved.CreatedAt, currency.ConvertMoney(value, s.main, s.rates.Rates()))
		return s.offers[i], nil
	}
	return *saved, nil
}

// UpdateStatus asks the backend to transition one offer. Local state is not
// mutated here; the UPDATE event comes back through the feed and is applied
// by ApplyRemoteStatus.
func (s *OffersStore) UpdateStatus(ctx context.Context, offerID int64, status model.OfferStatus) error {
	if err := s.backend.UpdateOfferStatus(ctx, offerID, status); err != nil {
		s.log.Error("updating offer status failed", "offer_id", offerID, "status", status, "error", err)
		return fmt.Errorf("updating offer status: %w", err)
	}
	return nil
}

// Accept transitions one offer to accepted. Exactly one offer per product is
// expected to reach accepted; this is a UI-level convention, not enforced
// here or by the backend.
func (s *OffersStore) Accept(ctx context.Context, offerID int64) error {
	return s.UpdateStatus(ctx, offerID, model.OfferAccepted)
}

// ApplyRemoteInsert merges a realtime creation event, ignoring ids that are
// already present. Reports whether the collection changed.
func (s *OffersStore) ApplyRemoteInsert(offer model.Offer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOfLocked(offer.ID) >= 0 {
		return false
	}
	s.offers = append(s.offers, offer)
	s.history.Append(offer.CreatedAt, currency.ConvertMoney(offer.Value, s.main, s.rates.Rates()))
	return true
}

// ApplyRemoteStatus merges a realtime status-change event. Only the status
// field changes; unknown ids and no-op transitions are ignored. Reports
// whether the collection changed.
func (s *OffersStore) ApplyRemoteStatus(offerID int64, status model.OfferStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.indexOfLocked(offerID); i >= 0 && s.offers[i].Status != status {
		s.offers[i].Status = status
		return true
	}
	return false
}

// Stats recomputes the projection from the full collection in the display
// currency.
func (s *OffersStore) Stats(display model.CurrencyCode) OfferStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rates := s.rates.Rates()
	stats := OfferStats{TotalOffers: len(s.offers)}
	var sum float64
	for i := range s.offers {
		inMain := currency.ConvertMoney(s.offers[i].Value, display, rates)
		sum += inMain
		if inMain > stats.MaxOffer {
			stats.MaxOffer = inMain
		}
		switch s.offers[i].Status {
		case model.OfferPending:
			stats.PendingCount++
		case model.OfferAccepted:
			if stats.Accepted == nil {
				accepted := s.offers[i]
				stats.Accepted = &accepted
			}
		}
	}
	if len(s.offers) > 0 {
		stats.AvgOffer = sum / float64(len(s.offers))
	}
	return stats
}

// Offers returns a copy of the collection, newest first.
func (s *OffersStore) Offers() []model.Offer {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Offer, 0, len(s.offers))
	for i := len(s.offers) - 1; i >= 0; i-- {
		out = append(out, s.offers[i])
	}
	return out
}

// History returns the running-maximum chart series.
func (s *OffersStore) History() []model.HistoryPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Points()
}

// SetMainCurrency switches the history currency and rebuilds the series.
func (s *OffersStore) SetMainCurrency(main model.CurrencyCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.main = main
	s.rebuildHistoryLocked()
}

func (s *OffersStore) rebuildHistoryLocked() {
	rates := s.rates.Rates()
	events := make([]timedValue, 0, len(s.offers))
	for i := range s.offers {
		// Pending entries enter the series at confirm time only.
		if s.offers[i].Pending {
			continue
		}
		events = append(events, timedValue{ts: s.offers[i].CreatedAt, value: currency.ConvertMoney(s.offers[i].Value, s.main, rates)})
	}
	s.history.Rebuild(events)
}

func (s *OffersStore) indexOfLocked(id int64) int {
	for i := range s.offers {
		if s.offers[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *OffersStore) dropLocked(id int64) {
	if i := s.indexOfLocked(id); i >= 0 {
		s.offers = append(s.offers[:i], s.offers[i+1:]...)
	}
}

func (s *OffersStore) removeByID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(id)
}
