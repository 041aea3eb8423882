package model

import "time"

// CurrencyCode identifies one of the currencies the marketplace trades in.
type CurrencyCode string

const (
	USD CurrencyCode = "USD"
	COP CurrencyCode = "COP"
	MXN CurrencyCode = "MXN"
)

// Currencies returns the closed set of supported currency codes.
func Currencies() []CurrencyCode {
	return []CurrencyCode{USD, COP, MXN}
}

// Valid reports whether c is one of the supported currency codes.
func (c CurrencyCode) Valid() bool {
	switch c {
	case USD, COP, MXN:
		return true
	}
	return false
}

// Money is an amount tagged with its currency. Amounts in different
// currencies must never be compared without converting first.
type Money struct {
	Amount   float64      `json:"amount"`
	Currency CurrencyCode `json:"currency"`
}

// Vote is an anonymous price opinion. Immutable once created; identity is ID.
// While Pending is true the ID is a locally assigned temporary id (always
// negative, so it can never collide with a backend serial).
type Vote struct {
	ID        int64     `json:"id"`
	Pending   bool      `json:"pending,omitempty"`
	Value     Money     `json:"value"`
	Timestamp time.Time `json:"timestamp"`
}

type OfferStatus string

const (
	OfferPending  OfferStatus = "pending"
	OfferAccepted OfferStatus = "accepted"
	OfferRejected OfferStatus = "rejected"
)

// Offer is a named formal bid. Status moves pending -> accepted or
// pending -> rejected; nothing else.
type Offer struct {
	ID        int64       `json:"id"`
	Pending   bool        `json:"pending,omitempty"`
	Bidder    string      `json:"bidder"`
	Value     Money       `json:"value"`
	Status    OfferStatus `json:"status"`
	CreatedAt time.Time   `json:"created_at"`
}

type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNeutral  Sentiment = "neutral"
	SentimentNegative Sentiment = "negative"
)

// Opinion is a free-text comment with an attached valuation. Sentiment is
// derived once at creation and stored immutably.
type Opinion struct {
	ID        int64     `json:"id"`
	Pending   bool      `json:"pending,omitempty"`
	Author    string    `json:"author"`
	Content   string    `json:"content"`
	Value     Money     `json:"value"`
	Sentiment Sentiment `json:"sentiment"`
	CreatedAt time.Time `json:"created_at"`
}

type ProductStatus string

const (
	ProductOpen   ProductStatus = "open"
	ProductLocked ProductStatus = "locked"
	ProductSold   ProductStatus = "sold"
)

type Seller struct {
	Name     string `json:"name"`
	Avatar   string `json:"avatar"`
	Level    string `json:"level"`
	Verified bool   `json:"verified"`
}

// Product is the single listing this service aggregates around.
// open <-> locked is owner-toggleable; sold is terminal and carries FinalPrice.
type Product struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Content     string        `json:"content"`
	OwnerPrice  Money         `json:"owner_price"`
	Status      ProductStatus `json:"status"`
	FinalPrice  *Money        `json:"final_price,omitempty"`
	Images      []string      `json:"images"`
	VideoURL    string        `json:"video_url"`
	Seller      Seller        `json:"seller"`
}

// HistoryPoint is one sample of a running aggregate in the display currency,
// bucketed at minute resolution.
type HistoryPoint struct {
	Value float64 `json:"value"`
	Time  string  `json:"time"`
	Date  string  `json:"date"`
}

// PricePoint is one persisted owner-price sample from the price_history table.
type PricePoint struct {
	ID        int64     `json:"id"`
	Pending   bool      `json:"pending,omitempty"`
	Price     Money     `json:"price"`
	CreatedAt time.Time `json:"created_at"`
}

// MarketStats are purely derived metrics, recomputed on every change.
// All inputs are already converted into the display currency.
type MarketStats struct {
	OwnerPriceInMain float64 `json:"owner_price_in_main"`
	AvgSentiment     float64 `json:"avg_sentiment"`
	MaxOffer         float64 `json:"max_offer"`
	AvgOffer         float64 `json:"avg_offer"`
	MarketPremium    float64 `json:"market_premium"`
	ConvergenceIndex float64 `json:"convergence_index"`
	InflationRisk    float64 `json:"inflation_risk"`
}

// Snapshot bundles everything the presentation layer needs to render the
// market intelligence panel. It is the unit broadcast over WebSocket,
// cached in Redis and archived to ClickHouse.
type Snapshot struct {
	ProductID     int64          `json:"product_id"`
	Currency      CurrencyCode   `json:"currency"`
	Stats         MarketStats    `json:"stats"`
	TotalVotes    int            `json:"total_votes"`
	TotalOffers   int            `json:"total_offers"`
	PendingOffers int            `json:"pending_offers"`
	TotalOpinions int            `json:"total_opinions"`
	AcceptedOffer *Offer         `json:"accepted_offer,omitempty"`
	VoteHistory   []HistoryPoint `json:"vote_history"`
	OfferHistory  []HistoryPoint `json:"offer_history"`
	PriceHistory  []HistoryPoint `json:"price_history"`
	UpdatedAt     time.Time      `json:"updated_at"`
}
