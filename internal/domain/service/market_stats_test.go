package service_test

import (
	"context"
	"math"
	"testing"

	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/service"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestMarketPremium(t *testing.T) {
	stats := service.ComputeMarketStats(1000, 1200, 0, 0)
	if !almostEqual(stats.MarketPremium, 20) {
		t.Errorf("expected premium 20%%, got %f", stats.MarketPremium)
	}

	stats = service.ComputeMarketStats(0, 1200, 0, 0)
	if stats.MarketPremium != 0 {
		t.Errorf("expected premium 0 with zero owner price, got %f", stats.MarketPremium)
	}
}

func TestConvergenceIdentity(t *testing.T) {
	stats := service.ComputeMarketStats(1000, 100, 100, 100)
	if !almostEqual(stats.ConvergenceIndex, 100) {
		t.Errorf("identical references must converge to 100, got %f", stats.ConvergenceIndex)
	}
}

func TestConvergenceSymmetry(t *testing.T) {
	a := service.ComputeMarketStats(1000, 50, 100, 100).ConvergenceIndex
	b := service.ComputeMarketStats(1000, 100, 50, 50).ConvergenceIndex
	if !almostEqual(a, b) {
		t.Errorf("convergence must be symmetric: %f vs %f", a, b)
	}
	// One value double the other maps to 50.
	if !almostEqual(a, 50) {
		t.Errorf("expected convergence 50 for a 2x gap, got %f", a)
	}
}

func TestConvergenceFallsBackToOwnerPrice(t *testing.T) {
	// No offers yet: the owner price stands in for the offer side.
	stats := service.ComputeMarketStats(1000, 1000, 0, 0)
	if !almostEqual(stats.ConvergenceIndex, 100) {
		t.Errorf("expected convergence 100 against owner price, got %f", stats.ConvergenceIndex)
	}

	stats = service.ComputeMarketStats(1000, 0, 0, 0)
	if stats.ConvergenceIndex != 0 {
		t.Errorf("expected convergence 0 with no sentiment, got %f", stats.ConvergenceIndex)
	}
}

func TestInflationRisk(t *testing.T) {
	stats := service.ComputeMarketStats(1000, 0, 3000, 0)
	if !almostEqual(stats.InflationRisk, 99.9) {
		t.Errorf("offer at 3x base should map to ~100, got %f", stats.InflationRisk)
	}
}

// Mirrors the full product-page scenario: base price 1000, votes 900 and
// 1100, then an offer of 1200, all in USD.
func TestEndToEndScenario(t *testing.T) {
	backend := newFakeBackend()
	rates := newFixedRates()
	log := testLogger()

	product := service.NewProductStore(log, backend, 1)
	votes := service.NewVotesStore(log, backend, rates, 1, model.USD)
	offers := service.NewOffersStore(log, backend, rates, 1, model.USD)
	opinions := service.NewOpinionsStore(log, backend, service.NewKeywordClassifier(), 1)
	prices := service.NewPriceHistoryStore(log, backend, rates, 1)
	agg := service.NewMarketAggregator(product, votes, offers, opinions, prices, rates, model.USD)

	ctx := context.Background()
	if err := product.Load(ctx); err != nil {
		t.Fatalf("loading product: %v", err)
	}
	if _, err := votes.Submit(ctx, model.Money{Amount: 900, Currency: model.USD}); err != nil {
		t.Fatalf("submitting vote: %v", err)
	}
	if _, err := votes.Submit(ctx, model.Money{Amount: 1100, Currency: model.USD}); err != nil {
		t.Fatalf("submitting vote: %v", err)
	}

	snap := agg.Snapshot(model.USD)
	if !almostEqual(snap.Stats.AvgSentiment, 1000) {
		t.Errorf("expected avg sentiment 1000, got %f", snap.Stats.AvgSentiment)
	}
	if !almostEqual(snap.Stats.MarketPremium, 0) {
		t.Errorf("expected premium 0%%, got %f", snap.Stats.MarketPremium)
	}

	if _, err := offers.Submit(ctx, "Empresa Tech S.A.", model.Money{Amount: 1200, Currency: model.USD}); err != nil {
		t.Fatalf("submitting offer: %v", err)
	}

	snap = agg.Snapshot(model.USD)
	if !almostEqual(snap.Stats.MaxOffer, 1200) {
		t.Errorf("expected max offer 1200, got %f", snap.Stats.MaxOffer)
	}
	wantConvergence := (1 - math.Abs(1000-1200)/1200) * 100
	if !almostEqual(snap.Stats.ConvergenceIndex, wantConvergence) {
		t.Errorf("expected convergence %f, got %f", wantConvergence, snap.Stats.ConvergenceIndex)
	}
	if !almostEqual(snap.Stats.InflationRisk, 1200.0/1000.0*33.3) {
		t.Errorf("expected inflation risk 39.96, got %f", snap.Stats.InflationRisk)
	}
	if snap.TotalVotes != 2 || snap.TotalOffers != 1 || snap.PendingOffers != 1 {
		t.Errorf("unexpected counts in snapshot: %+v", snap)
	}
}

// Cross-currency aggregation: every value passes through the converter
// before reduction.
func TestSnapshotCurrencyNormalization(t *testing.T) {
	backend := newFakeBackend()
	rates := newFixedRates()
	log := testLogger()

	product := service.NewProductStore(log, backend, 1)
	votes := service.NewVotesStore(log, backend, rates, 1, model.USD)
	offers := service.NewOffersStore(log, backend, rates, 1, model.USD)
	opinions := service.NewOpinionsStore(log, backend, service.NewKeywordClassifier(), 1)
	prices := service.NewPriceHistoryStore(log, backend, rates, 1)
	agg := service.NewMarketAggregator(product, votes, offers, opinions, prices, rates, model.USD)

	ctx := context.Background()
	if err := product.Load(ctx); err != nil {
		t.Fatalf("loading product: %v", err)
	}
	// 4,000,000 COP at 4000/USD is 1000 USD.
	if _, err := votes.Submit(ctx, model.Money{Amount: 4000000, Currency: model.COP}); err != nil {
		t.Fatalf("submitting vote: %v", err)
	}

	snap := agg.Snapshot(model.USD)
	if !almostEqual(snap.Stats.AvgSentiment, 1000) {
		t.Errorf("expected COP vote normalized to 1000 USD, got %f", snap.Stats.AvgSentiment)
	}

	snap = agg.Snapshot(model.MXN)
	if !almostEqual(snap.Stats.AvgSentiment, 18000) {
		t.Errorf("expected COP vote displayed as 18000 MXN, got %f", snap.Stats.AvgSentiment)
	}
	if !almostEqual(snap.Stats.OwnerPriceInMain, 18000) {
		t.Errorf("expected owner price displayed as 18000 MXN, got %f", snap.Stats.OwnerPriceInMain)
	}
}

// Switching the display currency rebuilds the vote history series in the
// newly selected currency.
func TestSetDisplayCurrencyRebuildsHistory(t *testing.T) {
	backend := newFakeBackend()
	rates := newFixedRates()
	log := testLogger()

	product := service.NewProductStore(log, backend, 1)
	votes := service.NewVotesStore(log, backend, rates, 1, model.USD)
	offers := service.NewOffersStore(log, backend, rates, 1, model.USD)
	opinions := service.NewOpinionsStore(log, backend, service.NewKeywordClassifier(), 1)
	prices := service.NewPriceHistoryStore(log, backend, rates, 1)
	agg := service.NewMarketAggregator(product, votes, offers, opinions, prices, rates, model.USD)

	ctx := context.Background()
	if err := product.Load(ctx); err != nil {
		t.Fatalf("loading product: %v", err)
	}
	if _, err := votes.Submit(ctx, model.Money{Amount: 1000, Currency: model.USD}); err != nil {
		t.Fatalf("submitting vote: %v", err)
	}

	points := votes.History()
	if len(points) != 1 || !almostEqual(points[0].Value, 1000) {
		t.Fatalf("expected one USD history point at 1000, got %+v", points)
	}

	agg.SetDisplayCurrency(model.MXN)
	if agg.DisplayCurrency() != model.MXN {
		t.Errorf("expected display currency MXN, got %s", agg.DisplayCurrency())
	}
	points = votes.History()
	if len(points) != 1 || !almostEqual(points[0].Value, 18000) {
		t.Errorf("expected history rebuilt at 18000 MXN, got %+v", points)
	}
}
