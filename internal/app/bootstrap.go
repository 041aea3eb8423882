// Package app wires the service together: the backend, the realtime feed,
// the per-collection stores, the aggregator and the publishing sinks, all
// injected explicitly so tests can swap any piece.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/julioberne/mercadosocial/config"
	"github.com/julioberne/mercadosocial/internal/app/dto"
	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/repository"
	"github.com/julioberne/mercadosocial/internal/domain/service"
	ws "github.com/julioberne/mercadosocial/internal/handlers/websocket"
	"github.com/julioberne/mercadosocial/internal/infrastructure/archive"
	redisrepo "github.com/julioberne/mercadosocial/internal/infrastructure/cache"
	"github.com/julioberne/mercadosocial/internal/infrastructure/feed"
	"github.com/julioberne/mercadosocial/internal/infrastructure/rates"
	"github.com/julioberne/mercadosocial/internal/infrastructure/storage"
)

// AppContext holds all app dependencies.
type AppContext struct {
	Config *config.Config
	Log    *slog.Logger

	Backend *storage.PostgresRepository
	Rates   *rates.Provider

	Votes    *service.VotesStore
	Offers   *service.OffersStore
	Opinions *service.OpinionsStore
	Product  *service.ProductStore
	Prices   *service.PriceHistoryStore

	Aggregator    *service.MarketAggregator
	Broadcaster   *ws.SnapshotBroadcaster
	SnapshotCache repository.SnapshotCache

	EventProcessor *EventProcessor
	KafkaConsumer  *feed.KafkaConsumer
	KafkaProducer  *feed.KafkaProducer
	ChangeCh       <-chan *dto.ChangeEnvelope
}

// NewApp initializes the app context with all dependencies. The Postgres
// backend and the Kafka feed are required; Redis and ClickHouse degrade to
// warnings when unreachable.
func NewApp(ctx context.Context, cfg *config.Config, log *slog.Logger) (*AppContext, error) {
	app := &AppContext{Config: cfg, Log: log}

	main := model.CurrencyCode(cfg.MainCurrency)
	if !main.Valid() {
		return nil, fmt.Errorf("unsupported main currency %q", cfg.MainCurrency)
	}

	app.Rates = rates.NewProvider(log, cfg.RatesURL, time.Duration(cfg.RatesInterval)*time.Minute)
	go app.Rates.Start(ctx)

	backend, err := storage.NewPostgresRepository(storage.PostgresConfig{
		Host:     cfg.PostgresHost,
		Port:     cfg.PostgresPort,
		User:     cfg.PostgresUser,
		Password: cfg.PostgresPassword,
		Database: cfg.PostgresDB,
		SSLMode:  cfg.PostgresSSLMode,
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	app.Backend = backend
	log.Info("postgres backend initialized")

	var snapshotCache repository.SnapshotCache
	redisRepo := redisrepo.NewRedisRepository(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err := redisRepo.Ping(ctx); err != nil {
		log.Warn("redis unavailable, snapshots will not be cached", "error", err)
	} else {
		snapshotCache = redisRepo
		log.Info("redis snapshot cache initialized")
	}
	app.SnapshotCache = snapshotCache

	var snapshotArchive repository.SnapshotArchive
	chRepo, err := archive.NewClickHouseRepository(archive.ClickHouseConfig{
		Addr:     cfg.ClickhouseAddr,
		Username: cfg.ClickhouseUsername,
		Password: cfg.ClickhousePassword,
		Timeout:  cfg.ClickhouseTimeout,
	})
	if err != nil {
		log.Warn("clickhouse unavailable, snapshots will not be archived", "error", err)
	} else {
		snapshotArchive = chRepo
		log.Info("clickhouse archive initialized")
	}

	app.Votes = service.NewVotesStore(log, backend, app.Rates, cfg.ProductID, main)
	app.Offers = service.NewOffersStore(log, backend, app.Rates, cfg.ProductID, main)
	app.Opinions = service.NewOpinionsStore(log, backend, service.NewKeywordClassifier(), cfg.ProductID)
	app.Product = service.NewProductStore(log, backend, cfg.ProductID)
	app.Prices = service.NewPriceHistoryStore(log, backend, app.Rates, cfg.ProductID)

	// Initial loads are best-effort: a failed collection stays empty and
	// catches up through the feed.
	for name, load := range map[string]func(context.Context) error{
		"product":       app.Product.Load,
		"votes":         app.Votes.Load,
		"offers":        app.Offers.Load,
		"opinions":      app.Opinions.Load,
		"price_history": app.Prices.Load,
	} {
		if err := load(ctx); err != nil {
			log.Warn("initial load failed", "collection", name, "error", err)
		}
	}

	app.Aggregator = service.NewMarketAggregator(app.Product, app.Votes, app.Offers, app.Opinions, app.Prices, app.Rates, main)
	app.Broadcaster = ws.NewSnapshotBroadcaster(log)

	kafkaConfig := feed.KafkaConfig{
		Brokers:       cfg.KafkaBrokers,
		Topic:         cfg.KafkaTopic,
		ConsumerGroup: cfg.KafkaConsumerGroup,
		BatchSize:     cfg.KafkaBatchSize,
		BatchTimeout:  cfg.KafkaBatchTimeout,
		BufferSize:    cfg.EventBufferSize,
	}
	app.KafkaConsumer = feed.NewKafkaConsumer(log, kafkaConfig)
	changeCh, err := app.KafkaConsumer.Subscribe(ctx)
	if err != nil {
		return nil, fmt.Errorf("subscribing to change feed: %w", err)
	}
	app.ChangeCh = changeCh
	log.Info("change feed consumer subscribed", "topic", cfg.KafkaTopic)

	// Producer side exists for the demo generator and replay tooling.
	app.KafkaProducer = feed.NewKafkaProducer(kafkaConfig)

	app.EventProcessor = NewEventProcessor(
		log, changeCh,
		app.Votes, app.Offers, app.Opinions, app.Product, app.Prices,
		app.Aggregator, app.Broadcaster,
		snapshotCache, snapshotArchive,
		cfg.ProductID,
	)

	return app, nil
}

// Cleanup performs graceful shutdown of all components.
func (a *AppContext) Cleanup(ctx context.Context) {
	if a.KafkaConsumer != nil {
		if err := a.KafkaConsumer.Close(); err != nil {
			a.Log.Error("closing change consumer failed", "error", err)
		}
	}
	if a.KafkaProducer != nil {
		if err := a.KafkaProducer.Close(); err != nil {
			a.Log.Error("closing change producer failed", "error", err)
		}
	}
	if a.Backend != nil {
		if err := a.Backend.Close(); err != nil {
			a.Log.Error("closing postgres failed", "error", err)
		}
	}
	a.Log.Info("all resources cleaned up")
}
