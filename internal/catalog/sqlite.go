package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/guarzo/pkmprices/internal/clock"
	"github.com/guarzo/pkmprices/internal/model"
)

// SQLiteStore keeps the catalog in a single SQLite file.
type SQLiteStore struct {
	db    *sql.DB
	clock clock.Clock
}

// NewSQLiteStore opens (or creates) the database and runs migrations.
func NewSQLiteStore(path string, clk clock.Clock) (*SQLiteStore, error) {
	if clk == nil {
		clk = clock.Real{}
	}
	if dir := filepath.Dir(path); path != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer at a time; the refresh job and API handlers share the file.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, clock: clk}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("Catalog: sqlite store opened: %s", path)
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS cards (
			id          INTEGER PRIMARY KEY AUTOINCREMENT,
			upstream_id TEXT NOT NULL UNIQUE,
			name        TEXT NOT NULL,
			set_id      TEXT NOT NULL DEFAULT '',
			set_name    TEXT NOT NULL DEFAULT '',
			number      TEXT NOT NULL DEFAULT '',
			rarity      TEXT NOT NULL DEFAULT '',
			prices      TEXT,
			updated_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cards_name ON cards(name, set_name)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec %q: %w", stmt[:30], err)
		}
	}
	return nil
}

const sqliteCardColumns = `id, upstream_id, name, set_id, set_name, number, rarity, prices, updated_at`

func (s *SQLiteStore) Card(ctx context.Context, id int64) (model.Card, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sqliteCardColumns+` FROM cards WHERE id = ?`, id)
	card, err := scanSQLiteCard(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Card{}, ErrNotFound
	}
	return card, err
}

func (s *SQLiteStore) ListCards(ctx context.Context, limit, offset int) ([]model.Card, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sqliteCardColumns+` FROM cards ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list cards: %w", err)
	}
	defer rows.Close()

	var cards []model.Card
	for rows.Next() {
		card, err := scanSQLiteCard(rows)
		if err != nil {
			return nil, err
		}
		cards = append(cards, card)
	}
	return cards, rows.Err()
}

func (s *SQLiteStore) SavePrices(ctx context.Context, id int64, quotes []model.PriceQuote) error {
	blob, err := encodePrices(quotes)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE cards SET prices = ?, updated_at = ? WHERE id = ?`,
		string(blob), s.clock.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("save prices: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpsertCard(ctx context.Context, card *model.Card) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (upstream_id) DO UPDATE SET
			name = excluded.name,
			set_id = excluded.set_id,
			set_name = excluded.set_name,
			number = excluded.number,
			rarity = excluded.rarity,
			prices = excluded.prices,
			updated_at = excluded.updated_at
		RETURNING id`

	err = s.db.QueryRowContext(ctx, upsert,
		card.UpstreamID, card.Name, card.SetID, card.SetName, card.Number, card.Rarity,
		string(blob), now.Unix(),
	).Scan(&card.ID)
	if err != nil {
		return fmt.Errorf("upsert card: %w", err)
	}
	card.UpdatedAt = time.Unix(now.Unix(), 0).UTC()
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteCard(row rowScanner) (model.Card, error) {
	var (
		card    model.Card
		prices  sql.NullString
		updated int64
	)
	err := row.Scan(&card.ID, &card.UpstreamID, &card.Name, &card.SetID, &card.SetName,
		&card.Number, &card.Rarity, &prices, &updated)
	if err != nil {
		return model.Card{}, err
	}
	card.UpdatedAt = time.Unix(updated, 0).UTC()
	if card.Prices, err = decodePrices([]byte(prices.String)); err != nil {
		return model.Card{}, fmt.Errorf("card %d: %w", card.ID, err)
	}
	return card, nil
}
