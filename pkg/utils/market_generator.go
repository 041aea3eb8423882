// Package utils holds demo helpers that are not part of the service proper.
package utils

import (
	"math/rand"
	"time"

	"github.com/julioberne/mercadosocial/internal/app/dto"
	"github.com/julioberne/mercadosocial/internal/domain/model"
)

// MarketGenerator fabricates change envelopes so the full pipeline can be
// exercised locally without a real backend writing rows.
type MarketGenerator struct {
	productID int64
	nextRowID int64
	rng       *rand.Rand
}

func NewMarketGenerator(productID int64) *MarketGenerator {
	return &MarketGenerator{
		productID: productID,
		nextRowID: 1_000_000, // keep clear of real backend serials
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

var demoBidders = []string{"@INVERSOR_PRO", "@CRYPTO_QUEEN", "@VALUE_HUNTER", "@MERCADER_X", "@SMART_MONEY"}

var demoOpinions = []struct {
	author  string
	content string
}{
	{"Carlos M.", "Excelente relación calidad precio, lo recomiendo"},
	{"Lucía R.", "Me parece demasiado caro para lo que incluye"},
	{"Anónimo", "La entrega fue puntual"},
	{"Pedro G.", "La calidad premium justifica el precio"},
	{"Marta S.", "El costo es excesivo comparado con alternativas"},
}

func (g *MarketGenerator) rowID() int64 {
	g.nextRowID++
	return g.nextRowID
}

// GenerateVote fabricates a vote INSERT around the given base price.
func (g *MarketGenerator) GenerateVote(base float64) (*dto.ChangeEnvelope, error) {
	row := dto.VoteRow{
		ID:        g.rowID(),
		ProductID: g.productID,
		Value:     base * (0.7 + g.rng.Float64()*0.6),
		Currency:  string(model.USD),
		Timestamp: time.Now(),
	}
	return g.envelope(dto.TableVotes, dto.EventInsert, row)
}

// GenerateOffer fabricates a pending offer INSERT around the base price.
func (g *MarketGenerator) GenerateOffer(base float64) (*dto.ChangeEnvelope, error) {
	row := dto.OfferRow{
		ID:         g.rowID(),
		ProductID:  g.productID,
		BidderName: demoBidders[g.rng.Intn(len(demoBidders))],
		Value:      base * (0.8 + g.rng.Float64()*0.7),
		Currency:   string(model.USD),
		Status:     string(model.OfferPending),
		CreatedAt:  time.Now(),
	}
	return g.envelope(dto.TableOffers, dto.EventInsert, row)
}

// GenerateOpinion fabricates an opinion INSERT from the canned set.
func (g *MarketGenerator) GenerateOpinion(base float64) (*dto.ChangeEnvelope, error) {
	pick := demoOpinions[g.rng.Intn(len(demoOpinions))]
	row := dto.OpinionRow{
		ID:         g.rowID(),
		ProductID:  g.productID,
		AuthorName: pick.author,
		Content:    pick.content,
		Value:      base * (0.7 + g.rng.Float64()*0.6),
		Currency:   string(model.USD),
		Sentiment:  string(model.SentimentNeutral),
		CreatedAt:  time.Now(),
	}
	return g.envelope(dto.TableOpinions, dto.EventInsert, row)
}

// GenerateBatch returns a random mix of votes, offers and opinions.
func (g *MarketGenerator) GenerateBatch(count int, base float64) ([]*dto.ChangeEnvelope, error) {
	envs := make([]*dto.ChangeEnvelope, 0, count)
	for i := 0; i < count; i++ {
		var (
			env *dto.ChangeEnvelope
			err error
		)
		switch g.rng.Intn(3) {
		case 0:
			env, err = g.GenerateVote(base)
		case 1:
			env, err = g.GenerateOffer(base)
		default:
			env, err = g.GenerateOpinion(base)
		}
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}
	return envs, nil
}

func (g *MarketGenerator) envelope(table, eventType string, row any) (*dto.ChangeEnvelope, error) {
	return dto.NewChangeEnvelope(table, eventType, g.productID, row)
}
