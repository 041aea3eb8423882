// Package dto carries the wire shapes of the realtime change feed: one
// envelope per committed row change, with the raw row payload decoded
// per-table into the domain model.
package dto

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/julioberne/mercadosocial/internal/domain/model"
)

// Tables the feed publishes changes for.
const (
	TableVotes        = "votes"
	TableOffers       = "offers"
	TableOpinions     = "opinions"
	TableProducts     = "products"
	TablePriceHistory = "price_history"
)

// Event types carried by the envelope.
const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
)

// ChangeEnvelope is one committed row change. ID is the delivery identity
// used for deduplication; New is the row after the change, encoded with the
// table's wire tags.
type ChangeEnvelope struct {
	ID        string          `json:"id"`
	Table     string          `json:"table"`
	EventType string          `json:"event_type"`
	ProductID int64           `json:"product_id"`
	New       json.RawMessage `json:"new"`
	EmittedAt time.Time       `json:"emitted_at"`
}

// NewChangeEnvelope wraps a row payload for publishing.
func NewChangeEnvelope(table, eventType string, productID int64, row any) (*ChangeEnvelope, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return nil, fmt.Errorf("encoding %s row: %w", table, err)
	}
	return &ChangeEnvelope{
		ID:        uuid.New().String(),
		Table:     table,
		EventType: eventType,
		ProductID: productID,
		New:       payload,
		EmittedAt: time.Now(),
	}, nil
}

// VoteRow is the votes table row on the wire. The votes table names its
// creation column "timestamp", unlike the other tables' created_at.
type VoteRow struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Value     float64   `json:"value"`
	Currency  string    `json:"currency"`
	Timestamp time.Time `json:"timestamp"`
}

func (r *VoteRow) ToModel() model.Vote {
	return model.Vote{
		ID:        r.ID,
		Value:     model.Money{Amount: r.Value, Currency: model.CurrencyCode(r.Currency)},
		Timestamp: r.Timestamp,
	}
}

// OfferRow is the offers table row on the wire.
type OfferRow struct {
	ID         int64     `json:"id"`
	ProductID  int64     `json:"product_id"`
	BidderName string    `json:"bidder_name"`
	Value      float64   `json:"value"`
	Currency   string    `json:"currency"`
	Status     string    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

func (r *OfferRow) ToModel() model.Offer {
	return model.Offer{
		ID:        r.ID,
		Bidder:    r.BidderName,
		Value:     model.Money{Amount: r.Value, Currency: model.CurrencyCode(r.Currency)},
		Status:    model.OfferStatus(r.Status),
		CreatedAt: r.CreatedAt,
	}
}

// OpinionRow is the opinions table row on the wire.
type OpinionRow struct {
	ID         int64     `json:"id"`
	ProductID  int64     `json:"product_id"`
	AuthorName string    `json:"author_name"`
	Content    string    `json:"content"`
	Value      float64   `json:"value"`
	Currency   string    `json:"currency"`
	Sentiment  string    `json:"sentiment"`
	CreatedAt  time.Time `json:"created_at"`
}

func (r *OpinionRow) ToModel() model.Opinion {
	return model.Opinion{
		ID:        r.ID,
		Author:    r.AuthorName,
		Content:   r.Content,
		Value:     model.Money{Amount: r.Value, Currency: model.CurrencyCode(r.Currency)},
		Sentiment: model.Sentiment(r.Sentiment),
		CreatedAt: r.CreatedAt,
	}
}

// PricePointRow is the price_history table row on the wire.
type PricePointRow struct {
	ID        int64     `json:"id"`
	ProductID int64     `json:"product_id"`
	Price     float64   `json:"price"`
	Currency  string    `json:"currency"`
	CreatedAt time.Time `json:"created_at"`
}

func (r *PricePointRow) ToModel() model.PricePoint {
	return model.PricePoint{
		ID:        r.ID,
		Price:     model.Money{Amount: r.Price, Currency: model.CurrencyCode(r.Currency)},
		CreatedAt: r.CreatedAt,
	}
}

// ProductRow is the products table row on the wire. The seller join is not
// part of the payload, so consumers reload the product instead of merging.
type ProductRow struct {
	ID         int64   `json:"id"`
	Name       string  `json:"name"`
	OwnerPrice float64 `json:"owner_price"`
	Currency   string  `json:"currency"`
	Status     string  `json:"status"`
}
