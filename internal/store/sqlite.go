package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/example/channel-bridge/internal/message"
)

// SQLiteStore is the single-file backend for local runs.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string, channels ...message.Channel) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(channels); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate(channels []message.Channel) error {
	for _, ch := range channels {
		table := ch.Collection()
		schema := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id                  TEXT PRIMARY KEY,
			direction           TEXT NOT NULL,
			counterpart_id      TEXT NOT NULL,
			body                TEXT NOT NULL DEFAULT '',
			media_url           TEXT NOT NULL DEFAULT '',
			external_message_id TEXT NOT NULL DEFAULT '',
			type                TEXT NOT NULL DEFAULT '',
			template_name       TEXT NOT NULL DEFAULT '',
			occurred_at         TEXT NOT NULL,
			recorded_at         DATETIME DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_external ON %[1]s(external_message_id);
		`, table)
		if _, err := s.db.Exec(schema); err != nil {
			return fmt.Errorf("create %s: %w", table, err)
		}
	}
	return nil
}

func (s *SQLiteStore) Append(ctx context.Context, channel message.Channel, record message.Message) error {
	query := fmt.Sprintf(`INSERT INTO %s
		(id, direction, counterpart_id, body, media_url, external_message_id, type, template_name, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, channel.Collection())
	_, err := s.db.ExecContext(ctx, query,
		record.ID,
		string(record.Direction),
		record.CounterpartID,
		record.Body,
		record.MediaURL,
		record.ExternalMessageID,
		record.Type,
		record.TemplateName,
		record.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// CountByExternalID reports how many records of channel carry externalID.
func (s *SQLiteStore) CountByExternalID(ctx context.Context, channel message.Channel, externalID string) (int, error) {
	var n int
	query := fmt.Sprintf(`SELECT COUNT(*) FROM %s WHERE external_message_id = ?`, channel.Collection())
	if err := s.db.QueryRowContext(ctx, query, externalID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
