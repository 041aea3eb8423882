package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/service"
)

func newOffersStore(backend *fakeBackend) *service.OffersStore {
	return service.NewOffersStore(testLogger(), backend, newFixedRates(), 1, model.USD)
}

func TestOfferSubmitConfirmsInPlace(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	store := newOffersStore(backend)

	saved, err := store.Submit(ctx, "@INVERSOR_PRO", model.Money{Amount: 1200, Currency: model.USD})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if saved.ID <= 0 || saved.Pending {
		t.Errorf("confirmed offer not finalized: %+v", saved)
	}
	if saved.Status != model.OfferPending {
		t.Errorf("new offer status = %s, want %s", saved.Status, model.OfferPending)
	}

	offers := store.Offers()
	if len(offers) != 1 || offers[0].Bidder != "@INVERSOR_PRO" {
		t.Fatalf("unexpected collection: %+v", offers)
	}
}

func TestOfferSubmitRollsBackOnBackendError(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	store := newOffersStore(backend)

	backend.failInserts = true
	if _, err := store.Submit(ctx, "@X", model.Money{Amount: 500, Currency: model.USD}); err == nil {
		t.Fatal("expected error from failing backend")
	}
	if got := len(store.Offers()); got != 0 {
		t.Errorf("rollback must remove the optimistic entry, got %d offers", got)
	}
	if got := len(store.History()); got != 0 {
		t.Errorf("failed submit must not add history points, got %d", got)
	}
}

func TestOfferHistoryIsRunningMaximum(t *testing.T) {
	backend := newFakeBackend()
	store := newOffersStore(backend)

	base := time.Date(2026, 1, 23, 10, 0, 0, 0, time.UTC)
	amounts := []float64{1100, 900, 1500, 1200}
	for i, amount := range amounts {
		store.ApplyRemoteInsert(model.Offer{
			ID:        int64(i + 1),
			Bidder:    "@B",
			Value:     model.Money{Amount: amount, Currency: model.USD},
			Status:    model.OfferPending,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
	}

	points := store.History()
	want := []float64{1100, 1100, 1500, 1500}
	if len(points) != len(want) {
		t.Fatalf("expected %d points, got %d", len(want), len(points))
	}
	for i, w := range want {
		if !almostEqual(points[i].Value, w) {
			t.Errorf("point %d = %f, want %f", i, points[i].Value, w)
		}
	}
}

func TestOfferUpdateStatusDoesNotTouchLocalState(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	store := newOffersStore(backend)

	saved, err := store.Submit(ctx, "@B", model.Money{Amount: 1300, Currency: model.USD})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := store.Accept(ctx, saved.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}
	// The local status only changes once the UPDATE event comes back.
	if got := store.Offers()[0].Status; got != model.OfferPending {
		t.Fatalf("local status changed before the feed event: %s", got)
	}

	store.ApplyRemoteStatus(saved.ID, model.OfferAccepted)
	if got := store.Offers()[0].Status; got != model.OfferAccepted {
		t.Errorf("status after feed event = %s, want %s", got, model.OfferAccepted)
	}
}

func TestOfferApplyRemoteStatusUnknownIDIgnored(t *testing.T) {
	backend := newFakeBackend()
	store := newOffersStore(backend)

	store.ApplyRemoteStatus(42, model.OfferRejected)
	if got := len(store.Offers()); got != 0 {
		t.Errorf("unknown id must not create an entry, got %d offers", got)
	}
}

func TestOfferStats(t *testing.T) {
	backend := newFakeBackend()
	store := newOffersStore(backend)

	now := time.Now()
	store.ApplyRemoteInsert(model.Offer{ID: 1, Bidder: "@A", Value: model.Money{Amount: 1000, Currency: model.USD}, Status: model.OfferPending, CreatedAt: now})
	store.ApplyRemoteInsert(model.Offer{ID: 2, Bidder: "@B", Value: model.Money{Amount: 1400, Currency: model.USD}, Status: model.OfferAccepted, CreatedAt: now})
	store.ApplyRemoteInsert(model.Offer{ID: 3, Bidder: "@C", Value: model.Money{Amount: 4000000, Currency: model.COP}, Status: model.OfferRejected, CreatedAt: now})

	stats := store.Stats(model.USD)
	if stats.TotalOffers != 3 {
		t.Fatalf("total = %d, want 3", stats.TotalOffers)
	}
	if !almostEqual(stats.MaxOffer, 1400) {
		t.Errorf("max = %f, want 1400 (the COP offer converts to 1000 USD)", stats.MaxOffer)
	}
	if !almostEqual(stats.AvgOffer, (1000+1400+1000)/3.0) {
		t.Errorf("avg = %f", stats.AvgOffer)
	}
	if stats.PendingCount != 1 {
		t.Errorf("pending = %d, want 1", stats.PendingCount)
	}
	if stats.Accepted == nil || stats.Accepted.ID != 2 {
		t.Errorf("accepted = %+v, want offer 2", stats.Accepted)
	}
}

func TestOfferRemoteEventAfterConfirmIsIgnored(t *testing.T) {
	ctx := context.Background()
	backend := newFakeBackend()
	store := newOffersStore(backend)

	saved, err := store.Submit(ctx, "@B", model.Money{Amount: 1000, Currency: model.USD})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	store.ApplyRemoteInsert(saved)

	if got := len(store.Offers()); got != 1 {
		t.Errorf("duplicate delivery must be deduplicated, got %d offers", got)
	}
	if got := len(store.History()); got != 1 {
		t.Errorf("expected exactly one history point, got %d", got)
	}
}

// A history rebuild while a submit is in flight must not surface the pending
// offer in the running-maximum series before it is confirmed.
func TestOfferHistoryRebuildExcludesInFlightSubmit(t *testing.T) {
	backend := newFakeBackend()
	store := newOffersStore(backend)
	ctx := context.Background()

	if _, err := store.Submit(ctx, "@A", model.Money{Amount: 100, Currency: model.USD}); err != nil {
		t.Fatalf("submitting offer: %v", err)
	}

	backend.insertEntered = make(chan struct{})
	backend.insertRelease = make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := store.Submit(ctx, "@B", model.Money{Amount: 200, Currency: model.USD})
		done <- err
	}()

	<-backend.insertEntered
	store.SetMainCurrency(model.USD)
	points := store.History()
	if len(points) == 0 {
		t.Fatal("expected history points")
	}
	if tail := points[len(points)-1].Value; !almostEqual(tail, 100) {
		t.Errorf("running-maximum tail before confirm = %.2f, want 100", tail)
	}

	close(backend.insertRelease)
	if err := <-done; err != nil {
		t.Fatalf("submitting offer: %v", err)
	}
	points = store.History()
	if tail := points[len(points)-1].Value; !almostEqual(tail, 200) {
		t.Errorf("running-maximum tail after confirm = %.2f, want 200", tail)
	}
}
