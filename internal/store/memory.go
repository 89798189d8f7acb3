package store

import (
	"context"
	"sync"

	"github.com/example/channel-bridge/internal/message"
)

// MemoryStore keeps records in process. It backs tests and local runs with
// STORE_BACKEND=memory.
type MemoryStore struct {
	mu      sync.Mutex
	records map[message.Channel][]message.Message
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: map[message.Channel][]message.Message{}}
}

func (s *MemoryStore) Append(ctx context.Context, channel message.Channel, record message.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[channel] = append(s.records[channel], record)
	return nil
}

// Records returns a copy of what was appended for channel, in append order.
func (s *MemoryStore) Records(channel message.Channel) []message.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Message, len(s.records[channel]))
	copy(out, s.records[channel])
	return out
}
