package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/repository"
)

// anonymousAuthor substitutes for an empty author name.
const anonymousAuthor = "Anónimo"

// OpinionStats counts opinions per sentiment for the opinions wall.
type OpinionStats struct {
	Total    int `json:"total"`
	Positive int `json:"positive"`
	Neutral  int `json:"neutral"`
	Negative int `json:"negative"`
}

// OpinionsStore owns the opinions collection for one product, newest first.
// Sentiment is derived exactly once at creation by the injected classifier
// and stored immutably.
type OpinionsStore struct {
	mu         sync.RWMutex
	log        *slog.Logger
	backend    repository.OpinionRepository
	classifier SentimentClassifier

	productID int64

	opinions []model.Opinion
	tempIDs  tempIDSource
}

func NewOpinionsStore(log *slog.Logger, backend repository.OpinionRepository, classifier SentimentClassifier, productID int64) *OpinionsStore {
	return &OpinionsStore{
		log:        log,
		backend:    backend,
		classifier: classifier,
		productID:  productID,
	}
}

// Load replaces local state with the full backend collection. On failure
// prior state is left untouched.
func (s *OpinionsStore) Load(ctx context.Context) error {
	opinions, err := s.backend.ListOpinions(ctx, s.productID)
	if err != nil {
		s.log.Error("loading opinions failed", "error", err)
		return fmt.Errorf("loading opinions: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.opinions = opinions
	return nil
}

// Submit classifies the content, prepends the opinion optimistically and
// issues the backend write, swapping the temporary id in place on success
// and rolling the entry back on failure.
func (s *OpinionsStore) Submit(ctx context.Context, author, content string, value model.Money) (model.Opinion, error) {
	if author == "" {
		author = anonymousAuthor
	}

	opinion := model.Opinion{
		Author:    author,
		Content:   content,
		Value:     value,
		Sentiment: s.classifier.Classify(content),
		CreatedAt: time.Now(),
	}

	s.mu.Lock()
	tempID := s.tempIDs.next()
	opinion.ID = tempID
	opinion.Pending = true
	s.opinions = append([]model.Opinion{opinion}, s.opinions...)
	s.mu.Unlock()

	saved, err := s.backend.InsertOpinion(ctx, s.productID, opinion)
	if err != nil {
		s.removeByID(tempID)
		return model.Opinion{}, fmt.Errorf("submitting opinion: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOfLocked(saved.ID) >= 0 {
		s.dropLocked(tempID)
		return *saved, nil
	}
	if i := s.indexOfLocked(tempID); i >= 0 {
		s.opinions[i].ID = saved.ID
		s.opinions[i].Pending = false
		s.opinions[i].CreatedAt = saved.CreatedAt
		return s.opinions[i], nil
	}
	return *saved, nil
}

// ApplyRemoteInsert merges a realtime creation event, ignoring known ids.
// Reports whether the collection changed.
func (s *OpinionsStore) ApplyRemoteInsert(opinion model.Opinion) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOfLocked(opinion.ID) >= 0 {
		return false
	}
	s.opinions = append([]model.Opinion{opinion}, s.opinions...)
	return true
}

// Stats counts opinions per sentiment.
func (s *OpinionsStore) Stats() OpinionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := OpinionStats{Total: len(s.opinions)}
	for i := range s.opinions {
		switch s.opinions[i].Sentiment {
		case model.SentimentPositive:
			stats.Positive++
		case model.SentimentNegative:
			stats.Negative++
		default:
			stats.Neutral++
		}
	}
	return stats
}

// Opinions returns a copy of the collection, newest first.
func (s *OpinionsStore) Opinions() []model.Opinion {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Opinion, len(s.opinions))
	copy(out, s.opinions)
	return out
}

func (s *OpinionsStore) indexOfLocked(id int64) int {
	for i := range s.opinions {
		if s.opinions[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *OpinionsStore) dropLocked(id int64) {
	if i := s.indexOfLocked(id); i >= 0 {
		s.opinions = append(s.opinions[:i], s.opinions[i+1:]...)
	}
}

func (s *OpinionsStore) removeByID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(id)
}
