package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/guarzo/pkmprices/internal/clock"
	"github.com/guarzo/pkmprices/internal/model"
)

// PostgresStore keeps the catalog in Postgres with prices in a jsonb column.
type PostgresStore struct {
	db    *pgxpool.Pool
	clock clock.Clock
}

// NewPostgresStore connects and creates the schema if needed.
func NewPostgresStore(ctx context.Context, dsn string, clk clock.Clock) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s, err := NewPostgresStoreWithPool(ctx, pool, clk)
	if err != nil {
		pool.Close()
		return nil, err
	}
	log.Printf("Catalog: postgres store connected")
	return s, nil
}

// NewPostgresStoreWithPool uses an existing pool and creates the schema if
// needed. The store owns the pool from here on; Close closes it.
func NewPostgresStoreWithPool(ctx context.Context, pool *pgxpool.Pool, clk clock.Clock) (*PostgresStore, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	s := &PostgresStore{db: pool, clock: clk}
	if err := s.migrate(ctx); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cards (
			id          BIGSERIAL PRIMARY KEY,
			upstream_id TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL,
			set_id      TEXT NOT NULL DEFAULT '',
			set_name    TEXT NOT NULL DEFAULT '',
			number      TEXT NOT NULL DEFAULT '',
			rarity      TEXT NOT NULL DEFAULT '',
			prices      JSONB,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_name ON cards(name, set_name)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:30], err)
		}
	}
	return nil
}

const pgCardColumns = `id, upstream_id, name, set_id, set_name, number, rarity, prices, updated_at`

func (s *PostgresStore) Card(ctx context.Context, id int64) (model.Card, error) {
	row := s.db.QueryRow(ctx, `SELECT `+pgCardColumns+` FROM cards WHERE id = $1`, id)
	card, err := scanPGCard(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Card{}, ErrNotFound
	}
	return card, err
}

func (s *PostgresStore) ListCards(ctx context.Context, limit, offset int) ([]model.Card, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.Query(ctx,
		`SELECT `+pgCardColumns+` FROM cards ORDER BY id LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var cards []model.Card
	for rows.Next() {
		card, err := scanPGCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func (s *PostgresStore) SavePrices(ctx context.Context, id int64, quotes []model.PriceQuote) error {
	blob, err := encodePrices(quotes)
	if err != nil {
		return err
	}
	tag, err := s.db.Exec(ctx,
		`UPDATE cards SET prices = $1, updated_at = $2 WHERE id = $3`,
		blob, s.clock.Now(), id)
	if err != nil {
		return fmt.Errorf("save prices: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) UpsertCard(ctx context.Context, card *model.Card) error {
	if err := validate(card); err != nil {
		return err
	}
	blob, err := encodePrices(card.Prices)
	if err != nil {
		return err
	}
	now := s.clock.Now()

	const upsert = `
		INSERT INTO cards (upstream_id, name, set_id, set_name, number, rarity, prices, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (upstream_id) DO UPDATE SET
			name = EXCLUDED.name,
			set_id = EXCLUDED.set_id,
			set_name = EXCLUDED.set_name,
			number = EXCLUDED.number,
			rarity = EXCLUDED.rarity,
			prices = EXCLUDED.prices,
			updated_at = EXCLUDED.updated_at
		RETURNING id`

	err = s.db.QueryRow(ctx, upsert,
		card.UpstreamID, card.Name, card.SetID, card.SetName, card.Number, card.Rarity, blob, now,
	).Scan(&card.ID)
	if err != nil {
		return fmt.Errorf("upsert card: %w", err)
	}
	card.UpdatedAt = now
	return nil
}

func (s *PostgresStore) Close() error {
	s.db.Close()
	return nil
}

func scanPGCard(row pgx.Row) (model.Card, error) {
	var (
		card   model.Card
		prices []byte
	)
	err := row.Scan(&card.ID, &card.UpstreamID, &card.Name, &card.SetID, &card.SetName,
		&card.Number, &card.Rarity, &prices, &card.UpdatedAt)
	if err != nil {
		return model.Card{}, err
	}
	if card.Prices, err = decodePrices(prices); err != nil {
		return model.Card{}, fmt.Errorf("card %d: %w", card.ID, err)
	}
	return card, nil
}
