package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/julioberne/mercadosocial/internal/app/dto"
	"github.com/julioberne/mercadosocial/internal/domain/currency"
	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/service"
)

type staticRates struct{}

func (staticRates) Rates() currency.RateTable {
	return currency.RateTable{model.USD: 1, model.COP: 4000, model.MXN: 18}
}

// stubBackend satisfies the repository surface the stores need; the
// processor only ever drives them through the remote-apply paths, so every
// method can stay inert.
type stubBackend struct{}

func (stubBackend) ListVotes(ctx context.Context, productID int64) ([]model.Vote, error) {
	return nil, nil
}
func (stubBackend) InsertVote(ctx context.Context, productID int64, value model.Money) (*model.Vote, error) {
	return &model.Vote{ID: 1, Value: value, Timestamp: time.Now()}, nil
}
func (stubBackend) ListOffers(ctx context.Context, productID int64) ([]model.Offer, error) {
	return nil, nil
}
func (stubBackend) InsertOffer(ctx context.Context, productID int64, bidder string, value model.Money) (*model.Offer, error) {
	return &model.Offer{ID: 1, Bidder: bidder, Value: value, Status: model.OfferPending, CreatedAt: time.Now()}, nil
}
func (stubBackend) UpdateOfferStatus(ctx context.Context, offerID int64, status model.OfferStatus) error {
	return nil
}
func (stubBackend) ListOpinions(ctx context.Context, productID int64) ([]model.Opinion, error) {
	return nil, nil
}
func (stubBackend) InsertOpinion(ctx context.Context, productID int64, op model.Opinion) (*model.Opinion, error) {
	saved := op
	saved.ID = 1
	return &saved, nil
}
func (stubBackend) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	return &model.Product{ID: id, Name: "Producto", OwnerPrice: model.Money{Amount: 1000, Currency: model.USD}, Status: model.ProductOpen}, nil
}
func (stubBackend) UpdateProduct(ctx context.Context, p *model.Product) error { return nil }
func (stubBackend) UpdateProductStatus(ctx context.Context, id int64, status model.ProductStatus) error {
	return nil
}
func (stubBackend) SellProduct(ctx context.Context, id int64, final model.Money) error { return nil }
func (stubBackend) ListPricePoints(ctx context.Context, productID int64, limit int) ([]model.PricePoint, error) {
	return nil, nil
}
func (stubBackend) InsertPricePoint(ctx context.Context, productID int64, price model.Money) (*model.PricePoint, error) {
	return &model.PricePoint{ID: 1, Price: price, CreatedAt: time.Now()}, nil
}

// mockBroadcaster records every snapshot it is handed.
type mockBroadcaster struct {
	mu    sync.Mutex
	snaps []*model.Snapshot
}

func (m *mockBroadcaster) BroadcastSnapshot(snap *model.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, snap)
}

func (m *mockBroadcaster) Handler() func(http.ResponseWriter, *http.Request) { return nil }

func (m *mockBroadcaster) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snaps)
}

func (m *mockBroadcaster) last() *model.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.snaps) == 0 {
		return nil
	}
	return m.snaps[len(m.snaps)-1]
}

// mockCache records cached snapshots.
type mockCache struct {
	mu    sync.Mutex
	saved []*model.Snapshot
}

func (m *mockCache) SaveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, snap)
	return nil
}

func (m *mockCache) GetSnapshot(ctx context.Context, productID int64) (*model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.saved) == 0 {
		return nil, nil
	}
	return m.saved[len(m.saved)-1], nil
}

// mockArchive records archived snapshots and history points.
type mockArchive struct {
	mu     sync.Mutex
	snaps  []*model.Snapshot
	series []string
	points []model.HistoryPoint
}

func (m *mockArchive) ArchiveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps = append(m.snaps, snap)
	return nil
}

func (m *mockArchive) ArchiveHistoryPoint(ctx context.Context, productID int64, series string, p model.HistoryPoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.series = append(m.series, series)
	m.points = append(m.points, p)
	return nil
}

type processorFixture struct {
	processor   *EventProcessor
	changeCh    chan *dto.ChangeEnvelope
	votes       *service.VotesStore
	offers      *service.OffersStore
	broadcaster *mockBroadcaster
	cache       *mockCache
	archive     *mockArchive
}

func newProcessorFixture(t *testing.T) *processorFixture {
	t.Helper()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	backend := stubBackend{}
	rateSource := staticRates{}

	votes := service.NewVotesStore(log, backend, rateSource, 1, model.USD)
	offers := service.NewOffersStore(log, backend, rateSource, 1, model.USD)
	opinions := service.NewOpinionsStore(log, backend, service.NewKeywordClassifier(), 1)
	product := service.NewProductStore(log, backend, 1)
	prices := service.NewPriceHistoryStore(log, backend, rateSource, 1)
	if err := product.Load(context.Background()); err != nil {
		t.Fatalf("loading product: %v", err)
	}

	aggregator := service.NewMarketAggregator(product, votes, offers, opinions, prices, rateSource, model.USD)
	broadcaster := &mockBroadcaster{}
	cache := &mockCache{}
	archive := &mockArchive{}

	changeCh := make(chan *dto.ChangeEnvelope, 16)
	processor := NewEventProcessor(
		log, changeCh,
		votes, offers, opinions, product, prices,
		aggregator, broadcaster, cache, archive,
		1,
	)
	return &processorFixture{
		processor:   processor,
		changeCh:    changeCh,
		votes:       votes,
		offers:      offers,
		broadcaster: broadcaster,
		cache:       cache,
		archive:     archive,
	}
}

func envelope(t *testing.T, id, table, eventType string, productID int64, row any) *dto.ChangeEnvelope {
	t.Helper()
	payload, err := json.Marshal(row)
	if err != nil {
		t.Fatalf("encoding row: %v", err)
	}
	return &dto.ChangeEnvelope{ID: id, Table: table, EventType: eventType, ProductID: productID, New: payload}
}

func TestProcessorRoutesVoteInsert(t *testing.T) {
	f := newProcessorFixture(t)

	env := envelope(t, "e1", dto.TableVotes, dto.EventInsert, 1, dto.VoteRow{
		ID: 10, ProductID: 1, Value: 1200, Currency: "USD", Timestamp: time.Now(),
	})
	if err := f.processor.processChange(context.Background(), env); err != nil {
		t.Fatalf("processChange: %v", err)
	}

	if got := len(f.votes.Votes()); got != 1 {
		t.Fatalf("expected 1 vote, got %d", got)
	}
	if f.broadcaster.count() != 1 {
		t.Fatalf("expected 1 broadcast, got %d", f.broadcaster.count())
	}
	snap := f.broadcaster.last()
	if snap.TotalVotes != 1 {
		t.Errorf("snapshot total votes = %d, want 1", snap.TotalVotes)
	}
	if len(f.cache.saved) != 1 {
		t.Errorf("expected snapshot cached once, got %d", len(f.cache.saved))
	}
}

func TestProcessorDeduplicatesEnvelopes(t *testing.T) {
	f := newProcessorFixture(t)

	env := envelope(t, "dup", dto.TableVotes, dto.EventInsert, 1, dto.VoteRow{
		ID: 10, ProductID: 1, Value: 1200, Currency: "USD", Timestamp: time.Now(),
	})
	for i := 0; i < 3; i++ {
		if err := f.processor.processChange(context.Background(), env); err != nil {
			t.Fatalf("processChange: %v", err)
		}
	}

	if got := len(f.votes.Votes()); got != 1 {
		t.Errorf("expected 1 vote after redelivery, got %d", got)
	}
	if f.broadcaster.count() != 1 {
		t.Errorf("expected 1 broadcast after redelivery, got %d", f.broadcaster.count())
	}
}

func TestProcessorFiltersOtherProducts(t *testing.T) {
	f := newProcessorFixture(t)

	env := envelope(t, "other", dto.TableVotes, dto.EventInsert, 99, dto.VoteRow{
		ID: 10, ProductID: 99, Value: 1200, Currency: "USD", Timestamp: time.Now(),
	})
	if err := f.processor.processChange(context.Background(), env); err != nil {
		t.Fatalf("processChange: %v", err)
	}

	if got := len(f.votes.Votes()); got != 0 {
		t.Errorf("votes for another product must be ignored, got %d", got)
	}
	if f.broadcaster.count() != 0 {
		t.Errorf("no broadcast expected, got %d", f.broadcaster.count())
	}
}

func TestProcessorRoutesOfferStatusUpdate(t *testing.T) {
	f := newProcessorFixture(t)
	now := time.Now()

	insert := envelope(t, "o1", dto.TableOffers, dto.EventInsert, 1, dto.OfferRow{
		ID: 5, ProductID: 1, BidderName: "@B", Value: 1300, Currency: "USD", Status: "pending", CreatedAt: now,
	})
	update := envelope(t, "o2", dto.TableOffers, dto.EventUpdate, 1, dto.OfferRow{
		ID: 5, ProductID: 1, BidderName: "@B", Value: 1300, Currency: "USD", Status: "accepted", CreatedAt: now,
	})
	for _, env := range []*dto.ChangeEnvelope{insert, update} {
		if err := f.processor.processChange(context.Background(), env); err != nil {
			t.Fatalf("processChange: %v", err)
		}
	}

	offers := f.offers.Offers()
	if len(offers) != 1 || offers[0].Status != model.OfferAccepted {
		t.Fatalf("unexpected offers after update: %+v", offers)
	}
	snap := f.broadcaster.last()
	if snap.AcceptedOffer == nil || snap.AcceptedOffer.ID != 5 {
		t.Errorf("snapshot accepted offer = %+v, want id 5", snap.AcceptedOffer)
	}
}

func TestProcessorStopsOnContextCancel(t *testing.T) {
	f := newProcessorFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.processor.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

// A duplicate row arriving under a fresh envelope id must not trigger a
// redundant broadcast: the store reports no change and publish is skipped.
func TestProcessorSkipsPublishWhenStoreUnchanged(t *testing.T) {
	f := newProcessorFixture(t)
	now := time.Now()

	first := envelope(t, "v1", dto.TableVotes, dto.EventInsert, 1, dto.VoteRow{
		ID: 10, ProductID: 1, Value: 1200, Currency: "USD", Timestamp: now,
	})
	redelivered := envelope(t, "v2", dto.TableVotes, dto.EventInsert, 1, dto.VoteRow{
		ID: 10, ProductID: 1, Value: 1200, Currency: "USD", Timestamp: now,
	})
	for _, env := range []*dto.ChangeEnvelope{first, redelivered} {
		if err := f.processor.processChange(context.Background(), env); err != nil {
			t.Fatalf("processChange: %v", err)
		}
	}

	if got := len(f.votes.Votes()); got != 1 {
		t.Errorf("expected 1 vote, got %d", got)
	}
	if f.broadcaster.count() != 1 {
		t.Errorf("expected 1 broadcast for a duplicate row, got %d", f.broadcaster.count())
	}
}

// Each publish archives the snapshot and the newest point of any series that
// advanced; a series that did not move is not re-archived.
func TestProcessorArchivesNewHistoryPoints(t *testing.T) {
	f := newProcessorFixture(t)
	now := time.Now()

	vote := envelope(t, "a1", dto.TableVotes, dto.EventInsert, 1, dto.VoteRow{
		ID: 10, ProductID: 1, Value: 1200, Currency: "USD", Timestamp: now,
	})
	offer := envelope(t, "a2", dto.TableOffers, dto.EventInsert, 1, dto.OfferRow{
		ID: 11, ProductID: 1, BidderName: "@B", Value: 1300, Currency: "USD", Status: "pending", CreatedAt: now,
	})
	for _, env := range []*dto.ChangeEnvelope{vote, offer} {
		if err := f.processor.processChange(context.Background(), env); err != nil {
			t.Fatalf("processChange: %v", err)
		}
	}

	f.archive.mu.Lock()
	defer f.archive.mu.Unlock()
	if len(f.archive.snaps) != 2 {
		t.Errorf("expected 2 archived snapshots, got %d", len(f.archive.snaps))
	}
	// First publish advances the votes series, second only the offers one.
	want := []string{"votes", "offers"}
	if len(f.archive.series) != len(want) {
		t.Fatalf("archived series = %v, want %v", f.archive.series, want)
	}
	for i, s := range want {
		if f.archive.series[i] != s {
			t.Errorf("archived series[%d] = %q, want %q", i, f.archive.series[i], s)
		}
	}
}
