// Package archive persists market snapshots and chart points to ClickHouse
// for offline analytics. The archive is optional; the service runs without
// it when ClickHouse is unreachable.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/repository"
)

type ClickHouseConfig struct {
	Addr     string
	Username string
	Password string
	Timeout  int
}

// ClickHouseRepository implements SnapshotArchive. Writes use async inserts
// since the archive is fire-and-forget from the processor's point of view.
type ClickHouseRepository struct {
	conn driver.Conn
}

func NewClickHouseRepository(cfg ClickHouseConfig) (*ClickHouseRepository, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: "default",
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: time.Duration(cfg.Timeout) * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("pinging clickhouse: %w", err)
	}

	if err := createTablesIfNotExist(conn); err != nil {
		return nil, fmt.Errorf("creating tables: %w", err)
	}

	return &ClickHouseRepository{conn: conn}, nil
}

var _ repository.SnapshotArchive = (*ClickHouseRepository)(nil)

func createTablesIfNotExist(conn driver.Conn) error {
	err := conn.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS market_snapshots (
			product_id Int64,
			currency String,
			owner_price Float64,
			avg_sentiment Float64,
			max_offer Float64,
			avg_offer Float64,
			market_premium Float64,
			convergence_index Float64,
			inflation_risk Float64,
			total_votes UInt32,
			total_offers UInt32,
			pending_offers UInt32,
			total_opinions UInt32,
			updated_at DateTime,
			archived_at DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (product_id, updated_at)
	`)
	if err != nil {
		return err
	}

	return conn.Exec(context.Background(), `
		CREATE TABLE IF NOT EXISTS history_points (
			product_id Int64,
			series String,
			value Float64,
			bucket_time String,
			bucket_date String,
			archived_at DateTime DEFAULT now()
		) ENGINE = MergeTree()
		ORDER BY (product_id, series, archived_at)
	`)
}

func (r *ClickHouseRepository) ArchiveSnapshot(ctx context.Context, snap *model.Snapshot) error {
	query := `
		INSERT INTO market_snapshots (
			product_id, currency, owner_price, avg_sentiment, max_offer, avg_offer,
			market_premium, convergence_index, inflation_risk,
			total_votes, total_offers, pending_offers, total_opinions, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	return r.conn.AsyncInsert(ctx, query, false,
		snap.ProductID,
		string(snap.Currency),
		snap.Stats.OwnerPriceInMain,
		snap.Stats.AvgSentiment,
		snap.Stats.MaxOffer,
		snap.Stats.AvgOffer,
		snap.Stats.MarketPremium,
		snap.Stats.ConvergenceIndex,
		snap.Stats.InflationRisk,
		uint32(snap.TotalVotes),
		uint32(snap.TotalOffers),
		uint32(snap.PendingOffers),
		uint32(snap.TotalOpinions),
		snap.UpdatedAt,
	)
}

func (r *ClickHouseRepository) ArchiveHistoryPoint(ctx context.Context, productID int64, series string, p model.HistoryPoint) error {
	query := `
		INSERT INTO history_points (product_id, series, value, bucket_time, bucket_date)
		VALUES (?, ?, ?, ?, ?)
	`
	return r.conn.AsyncInsert(ctx, query, false, productID, series, p.Value, p.Time, p.Date)
}

func (r *ClickHouseRepository) Close() error {
	return r.conn.Close()
}
