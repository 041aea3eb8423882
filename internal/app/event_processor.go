package app

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/julioberne/mercadosocial/internal/app/dto"
	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/repository"
	"github.com/julioberne/mercadosocial/internal/domain/service"
	"github.com/julioberne/mercadosocial/internal/domain/useCases"
)

// ErrContextCancelled is returned when the context is cancelled during processing.
var ErrContextCancelled = errors.New("context cancelled during processing")

// EventProcessor consumes change envelopes from the feed, routes them into
// the stores and publishes the recomputed snapshot. Delivery is
// at-least-once, so envelopes are deduplicated by id before routing; the
// stores additionally deduplicate rows by backend id.
type EventProcessor struct {
	log      *slog.Logger
	changeCh <-chan *dto.ChangeEnvelope

	votes    *service.VotesStore
	offers   *service.OffersStore
	opinions *service.OpinionsStore
	product  *service.ProductStore
	prices   *service.PriceHistoryStore

	source      useCases.SnapshotSource
	broadcaster useCases.Broadcaster
	cache       repository.SnapshotCache
	archive     repository.SnapshotArchive

	productID int64

	dedupCache   map[string]struct{} // in-memory envelope dedup, per process
	lastArchived map[string]model.HistoryPoint
}

func NewEventProcessor(
	log *slog.Logger,
	changeCh <-chan *dto.ChangeEnvelope,
	votes *service.VotesStore,
	offers *service.OffersStore,
	opinions *service.OpinionsStore,
	product *service.ProductStore,
	prices *service.PriceHistoryStore,
	source useCases.SnapshotSource,
	broadcaster useCases.Broadcaster,
	cache repository.SnapshotCache,
	archive repository.SnapshotArchive,
	productID int64,
) *EventProcessor {
	return &EventProcessor{
		log:          log,
		changeCh:     changeCh,
		votes:        votes,
		offers:       offers,
		opinions:     opinions,
		product:      product,
		prices:       prices,
		source:       source,
		broadcaster:  broadcaster,
		cache:        cache,
		archive:      archive,
		productID:    productID,
		dedupCache:   make(map[string]struct{}),
		lastArchived: make(map[string]model.HistoryPoint),
	}
}

// Run consumes envelopes until the context is canceled or the channel closes.
func (p *EventProcessor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case env, ok := <-p.changeCh:
			if !ok {
				return nil
			}
			if err := p.processChange(ctx, env); err != nil {
				if errors.Is(err, ErrContextCancelled) {
					return ctx.Err()
				}
				// Routing errors are logged and processing continues.
				p.log.Error("processing change failed", "error", err)
			}
		}
	}
}

func (p *EventProcessor) processChange(ctx context.Context, env *dto.ChangeEnvelope) error {
	if ctx.Err() != nil {
		return ErrContextCancelled
	}
	if env == nil {
		return nil
	}

	if _, exists := p.dedupCache[env.ID]; exists {
		return nil
	}
	p.dedupCache[env.ID] = struct{}{}

	// Changes for other products pass through untouched.
	if env.ProductID != 0 && env.ProductID != p.productID {
		return nil
	}

	changed, err := p.route(ctx, env)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}

	if ctx.Err() != nil {
		return ErrContextCancelled
	}
	p.publish(ctx)
	return nil
}

func (p *EventProcessor) route(ctx context.Context, env *dto.ChangeEnvelope) (bool, error) {
	switch env.Table {
	case dto.TableVotes:
		var row dto.VoteRow
		if err := json.Unmarshal(env.New, &row); err != nil {
			return false, err
		}
		return p.votes.ApplyRemoteInsert(row.ToModel()), nil

	case dto.TableOffers:
		var row dto.OfferRow
		if err := json.Unmarshal(env.New, &row); err != nil {
			return false, err
		}
		if env.EventType == dto.EventUpdate {
			return p.offers.ApplyRemoteStatus(row.ID, model.OfferStatus(row.Status)), nil
		}
		return p.offers.ApplyRemoteInsert(row.ToModel()), nil

	case dto.TableOpinions:
		var row dto.OpinionRow
		if err := json.Unmarshal(env.New, &row); err != nil {
			return false, err
		}
		return p.opinions.ApplyRemoteInsert(row.ToModel()), nil

	case dto.TableProducts:
		// The payload lacks the seller join; reload instead of merging.
		return p.product.ApplyRemoteUpdate(ctx), nil

	case dto.TablePriceHistory:
		var row dto.PricePointRow
		if err := json.Unmarshal(env.New, &row); err != nil {
			return false, err
		}
		return p.prices.ApplyRemoteInsert(row.ToModel()), nil

	default:
		p.log.Debug("ignoring change for unknown table", "table", env.Table)
		return false, nil
	}
}

// publish recomputes the snapshot and fans it out: WebSocket clients first,
// then the cache, then the optional archive. Neither sink blocks the others.
func (p *EventProcessor) publish(ctx context.Context) {
	snap := p.source.Snapshot(p.source.DisplayCurrency())
	if snap == nil {
		return
	}

	p.broadcaster.BroadcastSnapshot(snap)

	if p.cache != nil {
		saveCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := p.cache.SaveSnapshot(saveCtx, snap); err != nil {
			p.log.Warn("caching snapshot failed", "error", err)
		}
		cancel()
	}

	if p.archive != nil {
		if err := p.archive.ArchiveSnapshot(ctx, snap); err != nil {
			p.log.Warn("archiving snapshot failed", "error", err)
		}
		p.archiveSeriesTail(ctx, "votes", snap.VoteHistory)
		p.archiveSeriesTail(ctx, "offers", snap.OfferHistory)
		p.archiveSeriesTail(ctx, "prices", snap.PriceHistory)
	}
}

// archiveSeriesTail records the newest point of one history series, skipping
// publishes where the series did not advance.
func (p *EventProcessor) archiveSeriesTail(ctx context.Context, series string, points []model.HistoryPoint) {
	if len(points) == 0 {
		return
	}
	tail := points[len(points)-1]
	if last, ok := p.lastArchived[series]; ok && last == tail {
		return
	}
	if err := p.archive.ArchiveHistoryPoint(ctx, p.productID, series, tail); err != nil {
		p.log.Warn("archiving history point failed", "series", series, "error", err)
		return
	}
	p.lastArchived[series] = tail
}
