package asset

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// ErrNotFound indicates no matching supported asset exists.
var ErrNotFound = errors.New("asset not found")

// Repository persists supported assets and their quoted prices.
type Repository interface {
	BySymbol(ctx context.Context, symbol string) (SupportedAsset, error)
	ByID(ctx context.Context, id string) (SupportedAsset, error)
	ListActive(ctx context.Context) ([]SupportedAsset, error)
	GetPrice(ctx context.Context, symbol string) (Price, error)
	UpsertPrice(ctx context.Context, price Price) error
}

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository builds a Postgres-backed asset repository.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// BySymbol fetches an active asset by its symbol, case-insensitively.
func (r *PostgresRepository) BySymbol(ctx context.Context, symbol string) (SupportedAsset, error) {
	row := r.db.QueryRow(ctx, `SELECT id, symbol, name, decimals, is_active
        FROM supported_assets WHERE upper(symbol) = upper($1) AND is_active`, symbol)
	return scanAsset(row)
}

// ByID fetches an asset by its contract identifier.
func (r *PostgresRepository) ByID(ctx context.Context, id string) (SupportedAsset, error) {
	row := r.db.QueryRow(ctx, `SELECT id, symbol, name, decimals, is_active
        FROM supported_assets WHERE lower(id) = lower($1)`, id)
	return scanAsset(row)
}

// ListActive returns every transferable asset.
func (r *PostgresRepository) ListActive(ctx context.Context) ([]SupportedAsset, error) {
	rows, err := r.db.Query(ctx, `SELECT id, symbol, name, decimals, is_active
        FROM supported_assets WHERE is_active ORDER BY symbol`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assets []SupportedAsset
	for rows.Next() {
		var a SupportedAsset
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Name, &a.Decimals, &a.Active); err != nil {
			return nil, err
		}
		assets = append(assets, a)
	}
	return assets, rows.Err()
}

// GetPrice returns the most recently persisted quote for the symbol.
func (r *PostgresRepository) GetPrice(ctx context.Context, symbol string) (Price, error) {
	row := r.db.QueryRow(ctx, `SELECT symbol, usd, updated_at
        FROM token_prices WHERE upper(symbol) = upper($1)`, symbol)

	var (
		p         Price
		usd       decimal.Decimal
		updatedAt time.Time
	)
	if err := row.Scan(&p.Symbol, &usd, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Price{}, ErrNotFound
		}
		return Price{}, err
	}
	p.USD = usd
	p.UpdatedAt = updatedAt.UTC()
	return p, nil
}

// UpsertPrice persists a fresh quote.
func (r *PostgresRepository) UpsertPrice(ctx context.Context, price Price) error {
	_, err := r.db.Exec(ctx, `INSERT INTO token_prices (symbol, usd, updated_at)
        VALUES (upper($1), $2, $3)
        ON CONFLICT (symbol) DO UPDATE SET usd = EXCLUDED.usd, updated_at = EXCLUDED.updated_at`,
		price.Symbol, price.USD, price.UpdatedAt.UTC())
	return err
}

func scanAsset(row pgx.Row) (SupportedAsset, error) {
	var a SupportedAsset
	if err := row.Scan(&a.ID, &a.Symbol, &a.Name, &a.Decimals, &a.Active); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return SupportedAsset{}, ErrNotFound
		}
		return SupportedAsset{}, err
	}
	return a, nil
}
