package service_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/julioberne/mercadosocial/internal/domain/currency"
	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/repository"
)

var errBackendDown = errors.New("backend unavailable")

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixedRates is a RateSource pinned to a static table.
type fixedRates struct {
	table currency.RateTable
}

func newFixedRates() *fixedRates {
	return &fixedRates{table: currency.RateTable{model.USD: 1, model.COP: 4000, model.MXN: 18}}
}

func (r *fixedRates) Rates() currency.RateTable {
	return r.table.Clone()
}

// fakeBackend is an in-memory MarketBackend with injectable failures.
type fakeBackend struct {
	mu     sync.Mutex
	nextID int64

	votes    []model.Vote
	offers   []model.Offer
	opinions []model.Opinion
	product  *model.Product
	prices   []model.PricePoint

	failInserts bool
	failLists   bool
	failUpdates bool

	// When set, vote/offer inserts signal insertEntered and then block until
	// insertRelease closes, so a test can act while a submit is in flight.
	insertEntered chan struct{}
	insertRelease chan struct{}
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		nextID: 1,
		product: &model.Product{
			ID:         1,
			Name:       "Consultoría Estratégica AI (Mensual)",
			OwnerPrice: model.Money{Amount: 1000, Currency: model.USD},
			Status:     model.ProductOpen,
			Seller:     model.Seller{Name: "@TECH_MASTER_ELITE", Verified: true},
		},
	}
}

func (b *fakeBackend) assignID() int64 {
	id := b.nextID
	b.nextID++
	return id
}

func (b *fakeBackend) ListVotes(ctx context.Context, productID int64) ([]model.Vote, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failLists {
		return nil, errBackendDown
	}
	return append([]model.Vote(nil), b.votes...), nil
}

func (b *fakeBackend) InsertVote(ctx context.Context, productID int64, value model.Money) (*model.Vote, error) {
	if b.insertEntered != nil {
		b.insertEntered <- struct{}{}
		<-b.insertRelease
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failInserts {
		return nil, errBackendDown
	}
	v := model.Vote{ID: b.assignID(), Value: value, Timestamp: time.Now()}
	b.votes = append(b.votes, v)
	return &v, nil
}

func (b *fakeBackend) ListOffers(ctx context.Context, productID int64) ([]model.Offer, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failLists {
		return nil, errBackendDown
	}
	return append([]model.Offer(nil), b.offers...), nil
}

func (b *fakeBackend) InsertOffer(ctx context.Context, productID int64, bidder string, value model.Money) (*model.Offer, error) {
	if b.insertEntered != nil {
		b.insertEntered <- struct{}{}
		<-b.insertRelease
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failInserts {
		return nil, errBackendDown
	}
	o := model.Offer{ID: b.assignID(), Bidder: bidder, Value: value, Status: model.OfferPending, CreatedAt: time.Now()}
	b.offers = append(b.offers, o)
	return &o, nil
}

func (b *fakeBackend) UpdateOfferStatus(ctx context.Context, offerID int64, status model.OfferStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failUpdates {
		return errBackendDown
	}
	for i := range b.offers {
		if b.offers[i].ID == offerID {
			b.offers[i].Status = status
			return nil
		}
	}
	return errors.New("offer not found")
}

func (b *fakeBackend) ListOpinions(ctx context.Context, productID int64) ([]model.Opinion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failLists {
		return nil, errBackendDown
	}
	return append([]model.Opinion(nil), b.opinions...), nil
}

func (b *fakeBackend) InsertOpinion(ctx context.Context, productID int64, op model.Opinion) (*model.Opinion, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failInserts {
		return nil, errBackendDown
	}
	saved := op
	saved.ID = b.assignID()
	saved.Pending = false
	saved.CreatedAt = time.Now()
	b.opinions = append([]model.Opinion{saved}, b.opinions...)
	return &saved, nil
}

func (b *fakeBackend) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failLists {
		return nil, errBackendDown
	}
	p := *b.product
	return &p, nil
}

func (b *fakeBackend) UpdateProduct(ctx context.Context, p *model.Product) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failUpdates {
		return errBackendDown
	}
	saved := *p
	b.product = &saved
	return nil
}

func (b *fakeBackend) UpdateProductStatus(ctx context.Context, id int64, status model.ProductStatus) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failUpdates {
		return errBackendDown
	}
	b.product.Status = status
	return nil
}

func (b *fakeBackend) SellProduct(ctx context.Context, id int64, final model.Money) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failUpdates {
		return errBackendDown
	}
	b.product.Status = model.ProductSold
	b.product.FinalPrice = &final
	return nil
}

func (b *fakeBackend) ListPricePoints(ctx context.Context, productID int64, limit int) ([]model.PricePoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failLists {
		return nil, errBackendDown
	}
	points := append([]model.PricePoint(nil), b.prices...)
	if len(points) > limit {
		points = points[len(points)-limit:]
	}
	return points, nil
}

func (b *fakeBackend) InsertPricePoint(ctx context.Context, productID int64, price model.Money) (*model.PricePoint, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failInserts {
		return nil, errBackendDown
	}
	p := model.PricePoint{ID: b.assignID(), Price: price, CreatedAt: time.Now()}
	b.prices = append(b.prices, p)
	return &p, nil
}

var _ repository.MarketBackend = (*fakeBackend)(nil)
