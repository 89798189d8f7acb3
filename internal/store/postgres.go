package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/example/channel-bridge/internal/message"
)

const createMessageTable = `
CREATE TABLE IF NOT EXISTS %[1]s (
id UUID PRIMARY KEY,
direction TEXT NOT NULL,
counterpart_id TEXT NOT NULL,
body TEXT NOT NULL DEFAULT '',
media_url TEXT NOT NULL DEFAULT '',
external_message_id TEXT NOT NULL DEFAULT '',
type TEXT NOT NULL DEFAULT '',
template_name TEXT NOT NULL DEFAULT '',
occurred_at TIMESTAMPTZ NOT NULL,
recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS %[2]s ON %[1]s (external_message_id);
`

// No conflict clause: a redelivered webhook event is stored again.
const insertMessage = `
INSERT INTO %s (
id,
direction,
counterpart_id,
body,
media_url,
external_message_id,
type,
template_name,
occurred_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
`

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// PostgresStore appends records to one table per channel collection.
type PostgresStore struct {
	db execer
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: pool}
}

var ErrNotConfigured = errors.New("postgres store requires a non-nil pool")

func MustPostgresStore(pool *pgxpool.Pool) (*PostgresStore, error) {
	if pool == nil {
		return nil, ErrNotConfigured
	}
	return NewPostgresStore(pool), nil
}

// EnsureSchema creates the collection tables of the given channels.
func (s *PostgresStore) EnsureSchema(ctx context.Context, channels ...message.Channel) error {
	for _, ch := range channels {
		table := pgx.Identifier{ch.Collection()}.Sanitize()
		index := pgx.Identifier{ch.Collection() + "_external_id_idx"}.Sanitize()
		if _, err := s.db.Exec(ctx, fmt.Sprintf(createMessageTable, table, index)); err != nil {
			return fmt.Errorf("create %s: %w", ch.Collection(), err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, channel message.Channel, record message.Message) error {
	table := pgx.Identifier{channel.Collection()}.Sanitize()
	_, err := s.db.Exec(ctx, fmt.Sprintf(insertMessage, table),
		record.ID,
		string(record.Direction),
		record.CounterpartID,
		record.Body,
		record.MediaURL,
		record.ExternalMessageID,
		record.Type,
		record.TemplateName,
		record.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}
