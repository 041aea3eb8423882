// Package repository defines the interfaces the domain services depend on.
// Following the dependency inversion principle, the stores only ever see
// these interfaces; infrastructure packages provide the concrete backends,
// and tests substitute in-memory fakes.
package repository

import (
	"context"

	"github.com/julioberne/mercadosocial/internal/domain/currency"
	"github.com/julioberne/mercadosocial/internal/domain/model"
)

// VoteRepository is the backend surface for the votes collection.
type VoteRepository interface {
	// ListVotes returns every vote for the product ordered by creation
	// time ascending.
	ListVotes(ctx context.Context, productID int64) ([]model.Vote, error)

	// InsertVote persists a vote and returns the stored row with the
	// backend-assigned id and timestamp.
	InsertVote(ctx context.Context, productID int64, value model.Money) (*model.Vote, error)
}

// OfferRepository is the backend surface for the offers collection.
type OfferRepository interface {
	// ListOffers returns every offer for the product ordered by creation
	// time ascending.
	ListOffers(ctx context.Context, productID int64) ([]model.Offer, error)

	// InsertOffer persists a pending offer and returns the stored row.
	InsertOffer(ctx context.Context, productID int64, bidder string, value model.Money) (*model.Offer, error)

	// UpdateOfferStatus transitions one offer's status. Local state is not
	// touched here; the change comes back through the realtime feed.
	UpdateOfferStatus(ctx context.Context, offerID int64, status model.OfferStatus) error
}

// OpinionRepository is the backend surface for the opinions collection.
type OpinionRepository interface {
	// ListOpinions returns opinions for the product, newest first.
	ListOpinions(ctx context.Context, productID int64) ([]model.Opinion, error)

	// InsertOpinion persists an opinion (sentiment already derived) and
	// returns the stored row.
	InsertOpinion(ctx context.Context, productID int64, op model.Opinion) (*model.Opinion, error)
}

// ProductRepository is the backend surface for the product listing.
type ProductRepository interface {
	// GetProduct returns the product joined with its seller.
	GetProduct(ctx context.Context, id int64) (*model.Product, error)

	// UpdateProduct saves the owner-editable fields and reopens the listing.
	UpdateProduct(ctx context.Context, p *model.Product) error

	// UpdateProductStatus flips the listing between open and locked.
	UpdateProductStatus(ctx context.Context, id int64, status model.ProductStatus) error

	// SellProduct marks the listing sold at the given final price.
	SellProduct(ctx context.Context, id int64, final model.Money) error
}

// PriceHistoryRepository is the backend surface for the price_history table.
type PriceHistoryRepository interface {
	// ListPricePoints returns the newest `limit` samples in chronological
	// order.
	ListPricePoints(ctx context.Context, productID int64, limit int) ([]model.PricePoint, error)

	// InsertPricePoint persists a sample and prunes the table to its
	// retention cap.
	InsertPricePoint(ctx context.Context, productID int64, price model.Money) (*model.PricePoint, error)
}

// MarketBackend is the full managed-backend client handle injected into the
// stores. One connection, shared by reference, no teardown needed.
type MarketBackend interface {
	VoteRepository
	OfferRepository
	OpinionRepository
	ProductRepository
	PriceHistoryRepository
}

// RateSource exposes the latest exchange-rate table. Readers never mutate
// the returned table.
type RateSource interface {
	Rates() currency.RateTable
}

// SnapshotCache stores the latest market snapshot for fast reads.
type SnapshotCache interface {
	SaveSnapshot(ctx context.Context, snap *model.Snapshot) error
	GetSnapshot(ctx context.Context, productID int64) (*model.Snapshot, error)
}

// SnapshotArchive persists snapshots and history points for analytics.
// Implementations prioritize durability; the archive is optional and the
// app keeps running without it.
type SnapshotArchive interface {
	ArchiveSnapshot(ctx context.Context, snap *model.Snapshot) error
	ArchiveHistoryPoint(ctx context.Context, productID int64, series string, p model.HistoryPoint) error
}
