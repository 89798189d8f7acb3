package store

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/channel-bridge/internal/message"
)

// MongoStore appends records as documents, one collection per channel.
type MongoStore struct {
	db *mongo.Database
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{db: db}
}

// EnsureIndexes indexes external message ids for correlation lookups. The
// index is not unique.
func (s *MongoStore) EnsureIndexes(ctx context.Context, channels ...message.Channel) error {
	for _, ch := range channels {
		_, err := s.db.Collection(ch.Collection()).Indexes().CreateOne(ctx, mongo.IndexModel{
			Keys:    bson.D{{Key: "external_message_id", Value: 1}},
			Options: options.Index().SetName("external_message_id"),
		})
		if err != nil {
			return fmt.Errorf("index %s: %w", ch.Collection(), err)
		}
	}
	return nil
}

func (s *MongoStore) Append(ctx context.Context, channel message.Channel, record message.Message) error {
	if _, err := s.db.Collection(channel.Collection()).InsertOne(ctx, record); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}
