package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/channel-bridge/internal/message"
)

func TestSQLiteStoreKeepsDuplicateDeliveries(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "messages.db")
	s, err := NewSQLiteStore(dbPath, message.ChannelWhatsApp, message.ChannelInstagram)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	defer s.Close()

	ctx := context.Background()
	for _, id := range []string{"rec-1", "rec-2"} {
		err := s.Append(ctx, message.ChannelInstagram, message.Message{
			ID:                id,
			Channel:           message.ChannelInstagram,
			Direction:         message.DirectionReceived,
			CounterpartID:     "u1",
			Body:              "hi",
			ExternalMessageID: "m1",
			Timestamp:         time.UnixMilli(1690000000000),
		})
		if err != nil {
			t.Fatalf("append %s: %v", id, err)
		}
	}

	n, err := s.CountByExternalID(ctx, message.ChannelInstagram, "m1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("count=%d, want 2", n)
	}

	n, err = s.CountByExternalID(ctx, message.ChannelWhatsApp, "m1")
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Fatalf("channel collections leaked: whatsapp count=%d", n)
	}
}
