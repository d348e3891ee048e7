package history

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/primewallet/walletclient/internal/transfer"
)

const schema = `
CREATE TABLE IF NOT EXISTS wallet_transactions (
    id                   TEXT PRIMARY KEY,
    direction            TEXT NOT NULL,
    amount               NUMERIC NOT NULL,
    currency             TEXT NOT NULL DEFAULT '',
    counterparty_name    TEXT NOT NULL DEFAULT '',
    counterparty_address TEXT NOT NULL DEFAULT '',
    status               TEXT NOT NULL DEFAULT '',
    description          TEXT NOT NULL DEFAULT '',
    reference            TEXT NOT NULL DEFAULT '',
    raw_timestamp        TEXT NOT NULL DEFAULT '',
    occurred_at          TIMESTAMPTZ,
    synced_at            TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS wallet_transactions_occurred_idx
    ON wallet_transactions (occurred_at DESC NULLS LAST);`

// PostgresStore persists history in PostgreSQL.
type PostgresStore struct {
	db *pgxpool.Pool
}

// NewPostgresStore constructs a Postgres-backed store.
func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the history table if it does not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure history schema: %w", err)
	}
	return nil
}

// Save implements Store.
func (s *PostgresStore) Save(ctx context.Context, records []transfer.Record) (int, error) {
	const insert = `
        INSERT INTO wallet_transactions (
            id, direction, amount, currency, counterparty_name, counterparty_address,
            status, description, reference, raw_timestamp, occurred_at)
        VALUES ($1, $2, $3::numeric, $4, $5, $6, $7, $8, $9, $10, $11)
        ON CONFLICT (id) DO NOTHING`

	batch := &pgx.Batch{}
	for _, rec := range records {
		if rec.ID == "" {
			continue
		}
		var occurred *time.Time
		if !rec.OccurredAt.IsZero() {
			t := rec.OccurredAt
			occurred = &t
		}
		batch.Queue(insert,
			rec.ID, string(rec.Direction), rec.Amount.String(), rec.Currency,
			rec.CounterpartyName, rec.CounterpartyAddress, rec.Status,
			rec.Description, rec.Reference, rec.Timestamp, occurred)
	}
	if batch.Len() == 0 {
		return 0, nil
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	added := 0
	for i := 0; i < batch.Len(); i++ {
		tag, err := results.Exec()
		if err != nil {
			return added, fmt.Errorf("save history: %w", err)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

// List implements Store.
func (s *PostgresStore) List(ctx context.Context, q Query) ([]transfer.Record, error) {
	query := `
        SELECT id, direction, amount::text, currency, counterparty_name, counterparty_address,
               status, description, reference, raw_timestamp, occurred_at
        FROM wallet_transactions
        WHERE ($1::text = '' OR direction = $1::text)
        ORDER BY occurred_at DESC NULLS LAST, synced_at DESC, id DESC`
	args := []any{string(q.Direction)}
	if q.Limit > 0 {
		query += ` LIMIT $2`
		args = append(args, q.Limit)
	}

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []transfer.Record
	for rows.Next() {
		var (
			rec       transfer.Record
			direction string
			amount    string
			occurred  *time.Time
		)
		if err := rows.Scan(&rec.ID, &direction, &amount, &rec.Currency, &rec.CounterpartyName,
			&rec.CounterpartyAddress, &rec.Status, &rec.Description, &rec.Reference,
			&rec.Timestamp, &occurred); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		rec.Direction = transfer.Direction(direction)
		if rec.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("scan history amount %q: %w", amount, err)
		}
		if occurred != nil {
			rec.OccurredAt = occurred.UTC()
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	return out, nil
}
