package service

import (
	"math"
	"sync"
	"time"

	"github.com/julioberne/mercadosocial/internal/domain/currency"
	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/repository"
	"github.com/julioberne/mercadosocial/internal/domain/useCases"
)

// ComputeMarketStats derives the market intelligence metrics from
// display-currency inputs. Pure function, no state, no history.
func ComputeMarketStats(ownerPriceInMain, avgSentiment, maxOffer, avgOffer float64) model.MarketStats {
	stats := model.MarketStats{
		OwnerPriceInMain: ownerPriceInMain,
		AvgSentiment:     avgSentiment,
		MaxOffer:         maxOffer,
		AvgOffer:         avgOffer,
	}

	if ownerPriceInMain > 0 {
		stats.MarketPremium = (avgSentiment - ownerPriceInMain) / ownerPriceInMain * 100
	}

	// Convergence measures how close the two strongest price references
	// are: 100 means identical, 0 means one is at least double the other.
	// Without any offers the owner price stands in for the offer side.
	switch {
	case avgSentiment > 0 && maxOffer > 0:
		stats.ConvergenceIndex = closeness(avgSentiment, maxOffer)
	case avgSentiment > 0:
		stats.ConvergenceIndex = closeness(avgSentiment, ownerPriceInMain)
	}

	// Crude linear scale: an offer at 3x the base price maps to ~100.
	if ownerPriceInMain > 0 {
		stats.InflationRisk = maxOffer / ownerPriceInMain * 33.3
	}

	return stats
}

func closeness(a, b float64) float64 {
	max := math.Max(a, b)
	if max == 0 {
		return 0
	}
	return (1 - math.Abs(a-b)/max) * 100
}

// MarketAggregator combines the entity stores into the snapshot the
// presentation layer consumes. It also owns the selected display currency:
// switching it rebuilds the vote and offer history series, which are
// materialized in that currency.
type MarketAggregator struct {
	product  *ProductStore
	votes    *VotesStore
	offers   *OffersStore
	opinions *OpinionsStore
	prices   *PriceHistoryStore
	rates    repository.RateSource

	mu      sync.RWMutex
	display model.CurrencyCode
}

func NewMarketAggregator(product *ProductStore, votes *VotesStore, offers *OffersStore, opinions *OpinionsStore, prices *PriceHistoryStore, rates repository.RateSource, display model.CurrencyCode) *MarketAggregator {
	return &MarketAggregator{
		product:  product,
		votes:    votes,
		offers:   offers,
		opinions: opinions,
		prices:   prices,
		rates:    rates,
		display:  display,
	}
}

// DisplayCurrency returns the currently selected display currency.
func (a *MarketAggregator) DisplayCurrency() model.CurrencyCode {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.display
}

// SetDisplayCurrency switches the selected display currency and rebuilds the
// history series maintained in it.
func (a *MarketAggregator) SetDisplayCurrency(display model.CurrencyCode) {
	a.mu.Lock()
	a.display = display
	a.mu.Unlock()

	a.votes.SetMainCurrency(display)
	a.offers.SetMainCurrency(display)
}

// Snapshot recomputes the full market snapshot in the given display currency.
func (a *MarketAggregator) Snapshot(display model.CurrencyCode) *model.Snapshot {
	product := a.product.Product()
	voteStats := a.votes.Stats(display)
	offerStats := a.offers.Stats(display)
	opinionStats := a.opinions.Stats()

	var ownerInMain float64
	var productID int64
	if product != nil {
		ownerInMain = currency.ConvertMoney(product.OwnerPrice, display, a.rates.Rates())
		productID = product.ID
	}

	return &model.Snapshot{
		ProductID:     productID,
		Currency:      display,
		Stats:         ComputeMarketStats(ownerInMain, voteStats.AvgSentiment, offerStats.MaxOffer, offerStats.AvgOffer),
		TotalVotes:    voteStats.TotalVotes,
		TotalOffers:   offerStats.TotalOffers,
		PendingOffers: offerStats.PendingCount,
		TotalOpinions: opinionStats.Total,
		AcceptedOffer: offerStats.Accepted,
		VoteHistory:   a.votes.History(),
		OfferHistory:  a.offers.History(),
		PriceHistory:  a.prices.History(display),
		UpdatedAt:     time.Now(),
	}
}

var _ useCases.SnapshotSource = (*MarketAggregator)(nil)
