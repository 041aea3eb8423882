package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/julioberne/mercadosocial/internal/domain/currency"
	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/repository"
)

// VoteStats is the statistics projection over the votes collection,
// computed in a display currency.
type VoteStats struct {
	TotalVotes   int     `json:"total_votes"`
	AvgSentiment float64 `json:"avg_sentiment"`
}

// VotesStore owns the votes collection for one product. Votes are immutable
// once created; the store only ever appends, and the history series tracks
// the cumulative average ("social consensus so far") in the main currency.
type VotesStore struct {
	mu      sync.RWMutex
	log     *slog.Logger
	backend repository.VoteRepository
	rates   repository.RateSource

	productID int64
	main      model.CurrencyCode

	votes   []model.Vote
	history *historyBuilder
	tempIDs tempIDSource
}

func NewVotesStore(log *slog.Logger, backend repository.VoteRepository, rates repository.RateSource, productID int64, main model.CurrencyCode) *VotesStore {
	return &VotesStore{
		log:       log,
		backend:   backend,
		rates:     rates,
		productID: productID,
		main:      main,
		history:   newHistoryBuilder(runningAverage),
	}
}

// Load replaces local state with the full backend collection and rebuilds
// the history series. Safe to call repeatedly; on failure prior state is
// left untouched.
func (s *VotesStore) Load(ctx context.Context) error {
	votes, err := s.backend.ListVotes(ctx, s.productID)
	if err != nil {
		s.log.Error("loading votes failed", "error", err)
		return fmt.Errorf("loading votes: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.votes = votes
	s.rebuildHistoryLocked()
	return nil
}

// Submit appends the vote optimistically under a temporary id, then issues
// the backend write. On success the temporary id is replaced in place by the
// backend id (same slice position); on failure the entry is removed and the
// error returned to the caller. No automatic retry.
func (s *VotesStore) Submit(ctx context.Context, value model.Money) (model.Vote, error) {
	s.mu.Lock()
	tempID := s.tempIDs.next()
	vote := model.Vote{ID: tempID, Pending: true, Value: value, Timestamp: time.Now()}
	s.votes = append(s.votes, vote)
	s.mu.Unlock()

	saved, err := s.backend.InsertVote(ctx, s.productID, value)
	if err != nil {
		s.removeByID(tempID)
		return model.Vote{}, fmt.Errorf("submitting vote: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// The realtime event for this same write may have landed first; in that
	// case the backend id already exists and the pending entry is dropped.
	if s.indexOfLocked(saved.ID) >= 0 {
		s.dropLocked(tempID)
		return *saved, nil
	}
	if i := s.indexOfLocked(tempID); i >= 0 {
		s.votes[i].ID = saved.ID
		s.votes[i].Pending = false
		s.votes[i].Timestamp = saved.Timestamp
		s.history.Append(saved.Timestamp, currency.ConvertMoney(value, s.main, s.rates.Rates()))
		return s.votes[i], nil
	}
	return *saved, nil
}

// ApplyRemoteInsert merges a realtime creation event and reports whether it
// changed anything. An already-known backend id is silently ignored: the
// optimistic path and the feed can race and both deliver the same logical
// vote.
func (s *VotesStore) ApplyRemoteInsert(vote model.Vote) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOfLocked(vote.ID) >= 0 {
		return false
	}
	s.votes = append(s.votes, vote)
	s.history.Append(vote.Timestamp, currency.ConvertMoney(vote.Value, s.main, s.rates.Rates()))
	return true
}

// Stats recomputes the projection from the full collection, converting every
// vote into the display currency first.
func (s *VotesStore) Stats(display model.CurrencyCode) VoteStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rates := s.rates.Rates()
	var sum float64
	for _, v := range s.votes {
		sum += currency.ConvertMoney(v.Value, display, rates)
	}

	stats := VoteStats{TotalVotes: len(s.votes)}
	if len(s.votes) > 0 {
		stats.AvgSentiment = sum / float64(len(s.votes))
	}
	return stats
}

// Votes returns a copy of the collection in creation order.
func (s *VotesStore) Votes() []model.Vote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Vote, len(s.votes))
	copy(out, s.votes)
	return out
}

// Recent returns up to n votes, newest first.
func (s *VotesStore) Recent(n int) []model.Vote {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.Vote, 0, n)
	for i := len(s.votes) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.votes[i])
	}
	return out
}

// History returns the running-average chart series.
func (s *VotesStore) History() []model.HistoryPoint {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history.Points()
}

// SetMainCurrency switches the currency the history series is built in and
// rebuilds it from the current collection.
func (s *VotesStore) SetMainCurrency(main model.CurrencyCode) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.main = main
	s.rebuildHistoryLocked()
}

func (s *VotesStore) rebuildHistoryLocked() {
	rates := s.rates.Rates()
	events := make([]timedValue, 0, len(s.votes))
	for _, v := range s.votes {
		// History is appended at confirm time; an in-flight pending entry
		// would otherwise be accumulated twice.
		if v.Pending {
			continue
		}
		events = append(events, timedValue{ts: v.Timestamp, value: currency.ConvertMoney(v.Value, s.main, rates)})
	}
	s.history.Rebuild(events)
}

func (s *VotesStore) indexOfLocked(id int64) int {
	for i := range s.votes {
		if s.votes[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *VotesStore) dropLocked(id int64) {
	if i := s.indexOfLocked(id); i >= 0 {
		s.votes = append(s.votes[:i], s.votes[i+1:]...)
	}
}

func (s *VotesStore) removeByID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(id)
}
