package service

import (
	"strings"

	"github.com/julioberne/mercadosocial/internal/domain/model"
)

// SentimentClassifier assigns a sentiment tag to opinion text. Injected into
// the opinions store so the keyword lists can be swapped for something
// smarter without touching store logic.
type SentimentClassifier interface {
	Classify(content string) model.Sentiment
}

// KeywordClassifier is the default classifier: a fixed keyword scan.
// Negative keywords win over positive ones when both appear.
type KeywordClassifier struct {
	positive []string
	negative []string
}

func NewKeywordClassifier() *KeywordClassifier {
	return &KeywordClassifier{
		positive: []string{"excelente", "bueno", "genial", "recomiendo", "vale", "calidad", "premium", "justifica", "clave"},
		negative: []string{"caro", "alto", "mucho", "no vale", "costoso", "excesivo"},
	}
}

func (c *KeywordClassifier) Classify(content string) model.Sentiment {
	lower := strings.ToLower(content)
	sentiment := model.SentimentNeutral
	for _, w := range c.positive {
		if strings.Contains(lower, w) {
			sentiment = model.SentimentPositive
			break
		}
	}
	for _, w := range c.negative {
		if strings.Contains(lower, w) {
			sentiment = model.SentimentNegative
			break
		}
	}
	return sentiment
}

var _ SentimentClassifier = (*KeywordClassifier)(nil)
