// Package storage provides the PostgreSQL backend for the marketplace
// collections and the ClickHouse analytics archive.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/julioberne/mercadosocial/internal/domain/model"
	"github.com/julioberne/mercadosocial/internal/domain/repository"
)

// PostgresConfig holds PostgreSQL connection configuration.
type PostgresConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// pricePointRetention caps the price_history table per product; inserts
// prune anything older than the newest 50 samples.
const pricePointRetention = 50

// PostgresRepository implements the full MarketBackend on PostgreSQL.
type PostgresRepository struct {
	db *sql.DB
}

func NewPostgresRepository(cfg PostgresConfig) (*PostgresRepository, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

func (r *PostgresRepository) ListVotes(ctx context.Context, productID int64) ([]model.Vote, error) {
	query := `SELECT id, value, currency, "timestamp"
			  FROM votes
			  WHERE product_id = $1
			  ORDER BY "timestamp" ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("querying votes: %w", err)
	}
	defer rows.Close()

	var votes []model.Vote
	for rows.Next() {
		var v model.Vote
		if err := rows.Scan(&v.ID, &v.Value.Amount, &v.Value.Currency, &v.Timestamp); err != nil {
			return nil, fmt.Errorf("scanning vote: %w", err)
		}
		votes = append(votes, v)
	}
	return votes, rows.Err()
}

func (r *PostgresRepository) InsertVote(ctx context.Context, productID int64, value model.Money) (*model.Vote, error) {
	query := `INSERT INTO votes (product_id, value, currency)
			  VALUES ($1, $2, $3)
			  RETURNING id, "timestamp"`

	v := model.Vote{Value: value}
	if err := r.db.QueryRowContext(ctx, query, productID, value.Amount, value.Currency).
		Scan(&v.ID, &v.Timestamp); err != nil {
		return nil, fmt.Errorf("inserting vote: %w", err)
	}
	return &v, nil
}

func (r *PostgresRepository) ListOffers(ctx context.Context, productID int64) ([]model.Offer, error) {
	query := `SELECT id, bidder_name, value, currency, status, created_at
			  FROM offers
			  WHERE product_id = $1
			  ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("querying offers: %w", err)
	}
	defer rows.Close()

	var offers []model.Offer
	for rows.Next() {
		var o model.Offer
		if err := rows.Scan(&o.ID, &o.Bidder, &o.Value.Amount, &o.Value.Currency, &o.Status, &o.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning offer: %w", err)
		}
		offers = append(offers, o)
	}
	return offers, rows.Err()
}

func (r *PostgresRepository) InsertOffer(ctx context.Context, productID int64, bidder string, value model.Money) (*model.Offer, error) {
	query := `INSERT INTO offers (product_id, bidder_name, value, currency, status)
			  VALUES ($1, $2, $3, $4, $5)
			  RETURNING id, created_at`

	o := model.Offer{Bidder: bidder, Value: value, Status: model.OfferPending}
	if err := r.db.QueryRowContext(ctx, query, productID, bidder, value.Amount, value.Currency, model.OfferPending).
		Scan(&o.ID, &o.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting offer: %w", err)
	}
	return &o, nil
}

func (r *PostgresRepository) UpdateOfferStatus(ctx context.Context, offerID int64, status model.OfferStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE offers SET status = $1 WHERE id = $2`, status, offerID)
	if err != nil {
		return fmt.Errorf("updating offer status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("offer %d not found", offerID)
	}
	return nil
}

func (r *PostgresRepository) ListOpinions(ctx context.Context, productID int64) ([]model.Opinion, error) {
	query := `SELECT id, author_name, content, value, currency, sentiment, created_at
			  FROM opinions
			  WHERE product_id = $1
			  ORDER BY created_at DESC, id DESC`

	rows, err := r.db.QueryContext(ctx, query, productID)
	if err != nil {
		return nil, fmt.Errorf("querying opinions: %w", err)
	}
	defer rows.Close()

	var opinions []model.Opinion
	for rows.Next() {
		var op model.Opinion
		if err := rows.Scan(&op.ID, &op.Author, &op.Content, &op.Value.Amount, &op.Value.Currency, &op.Sentiment, &op.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning opinion: %w", err)
		}
		opinions = append(opinions, op)
	}
	return opinions, rows.Err()
}

func (r *PostgresRepository) InsertOpinion(ctx context.Context, productID int64, op model.Opinion) (*model.Opinion, error) {
	query := `INSERT INTO opinions (product_id, author_name, content, value, currency, sentiment)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  RETURNING id, created_at`

	saved := op
	saved.Pending = false
	if err := r.db.QueryRowContext(ctx, query, productID, op.Author, op.Content, op.Value.Amount, op.Value.Currency, op.Sentiment).
		Scan(&saved.ID, &saved.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting opinion: %w", err)
	}
	return &saved, nil
}

func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*model.Product, error) {
	query := `SELECT p.id, p.name, p.description, p.content, p.owner_price, p.currency,
			         p.status, p.final_price, p.final_currency, p.images, p.video_url,
			         s.name, s.avatar, s.level, s.verified
			  FROM products p
			  JOIN sellers s ON s.id = p.seller_id
			  WHERE p.id = $1`

	var (
		p             model.Product
		finalPrice    sql.NullFloat64
		finalCurrency sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&p.ID, &p.Name, &p.Description, &p.Content, &p.OwnerPrice.Amount, &p.OwnerPrice.Currency,
		&p.Status, &finalPrice, &finalCurrency, pq.Array(&p.Images), &p.VideoURL,
		&p.Seller.Name, &p.Seller.Avatar, &p.Seller.Level, &p.Seller.Verified,
	)
	if err != nil {
		return nil, fmt.Errorf("querying product %d: %w", id, err)
	}
	if finalPrice.Valid && finalCurrency.Valid {
		p.FinalPrice = &model.Money{Amount: finalPrice.Float64, Currency: model.CurrencyCode(finalCurrency.String)}
	}
	return &p, nil
}

func (r *PostgresRepository) UpdateProduct(ctx context.Context, p *model.Product) error {
	query := `UPDATE products
			  SET name = $1, description = $2, content = $3, owner_price = $4, currency = $5,
			      images = $6, video_url = $7, status = $8, final_price = NULL, final_currency = NULL
			  WHERE id = $9`

	_, err := r.db.ExecContext(ctx, query,
		p.Name, p.Description, p.Content, p.OwnerPrice.Amount, p.OwnerPrice.Currency,
		pq.Array(p.Images), p.VideoURL, model.ProductOpen, p.ID)
	if err != nil {
		return fmt.Errorf("updating product %d: %w", p.ID, err)
	}
	return nil
}

func (r *PostgresRepository) UpdateProductStatus(ctx context.Context, id int64, status model.ProductStatus) error {
	_, err := r.db.ExecContext(ctx, `UPDATE products SET status = $1 WHERE id = $2`, status, id)
	if err != nil {
		return fmt.Errorf("updating product %d status: %w", id, err)
	}
	return nil
}

func (r *PostgresRepository) SellProduct(ctx context.Context, id int64, final model.Money) error {
	query := `UPDATE products
			  SET status = $1, final_price = $2, final_currency = $3
			  WHERE id = $4`

	_, err := r.db.ExecContext(ctx, query, model.ProductSold, final.Amount, final.Currency, id)
	if err != nil {
		return fmt.Errorf("selling product %d: %w", id, err)
	}
	return nil
}

// ListPricePoints returns the newest `limit` samples in chronological order:
// the inner query selects newest-first, the outer one flips them back.
func (r *PostgresRepository) ListPricePoints(ctx context.Context, productID int64, limit int) ([]model.PricePoint, error) {
	query := `SELECT id, price, currency, created_at FROM (
			      SELECT id, price, currency, created_at
			      FROM price_history
			      WHERE product_id = $1
			      ORDER BY created_at DESC, id DESC
			      LIMIT $2
			  ) latest
			  ORDER BY created_at ASC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, productID, limit)
	if err != nil {
		return nil, fmt.Errorf("querying price history: %w", err)
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var p model.PricePoint
		if err := rows.Scan(&p.ID, &p.Price.Amount, &p.Price.Currency, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning price point: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

// InsertPricePoint persists a sample and prunes the product's series down to
// the retention cap in the same transaction.
func (r *PostgresRepository) InsertPricePoint(ctx context.Context, productID int64, price model.Money) (*model.PricePoint, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning price point tx: %w", err)
	}
	defer tx.Rollback()

	p := model.PricePoint{Price: price}
	insert := `INSERT INTO price_history (product_id, price, currency)
			   VALUES ($1, $2, $3)
			   RETURNING id, created_at`
	if err := tx.QueryRowContext(ctx, insert, productID, price.Amount, price.Currency).
		Scan(&p.ID, &p.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting price point: %w", err)
	}

	prune := `DELETE FROM price_history
			  WHERE product_id = $1 AND id NOT IN (
			      SELECT id FROM price_history
			      WHERE product_id = $1
			      ORDER BY created_at DESC, id DESC
			      LIMIT $2
			  )`
	if _, err := tx.ExecContext(ctx, prune, productID, pricePointRetention); err != nil {
		return nil, fmt.Errorf("pruning price history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing price point: %w", err)
	}
	return &p, nil
}

var _ repository.MarketBackend = (*PostgresRepository)(nil)
