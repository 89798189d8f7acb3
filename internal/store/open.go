package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/example/channel-bridge/internal/common"
	"github.com/example/channel-bridge/internal/message"
)

var channels = []message.Channel{message.ChannelWhatsApp, message.ChannelInstagram}

// Closer releases the resources behind an opened store.
type Closer func(context.Context)

// Open builds the store selected by cfg.StoreBackend and, when brokers are
// configured, wraps it with an EventPublisher.
func Open(ctx context.Context, cfg *common.Config, logger zerolog.Logger) (message.Store, Closer, error) {
	primary, closePrimary, err := openPrimary(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if len(cfg.KafkaBrokers) == 0 {
		return primary, closePrimary, nil
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.KafkaBrokers...),
		Balancer:               &kafka.Hash{},
		AllowAutoTopicCreation: true,
	}
	logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic_prefix", cfg.EventsTopicPrefix).Msg("publishing message events")
	closeAll := func(ctx context.Context) {
		_ = writer.Close()
		closePrimary(ctx)
	}
	return NewEventPublisher(primary, writer, cfg.EventsTopicPrefix, logger), closeAll, nil
}

func openPrimary(ctx context.Context, cfg *common.Config, logger zerolog.Logger) (message.Store, Closer, error) {
	switch cfg.StoreBackend {
	case "postgres":
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL must be provided for the postgres store")
		}
		pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := waitReady(ctx, logger, "postgres", pool.Ping); err != nil {
			pool.Close()
			return nil, nil, err
		}
		s, err := MustPostgresStore(pool)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		if err := s.EnsureSchema(ctx, channels...); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return s, func(context.Context) { pool.Close() }, nil

	case "mongo":
		if cfg.MongoURI == "" {
			return nil, nil, errors.New("MONGODB_URI must be provided for the mongo store")
		}
		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		disconnect := func(ctx context.Context) { _ = client.Disconnect(ctx) }
		if err := waitReady(ctx, logger, "mongo", func(ctx context.Context) error { return client.Ping(ctx, nil) }); err != nil {
			disconnect(ctx)
			return nil, nil, err
		}
		s := NewMongoStore(client.Database(cfg.MongoDatabase))
		if err := s.EnsureIndexes(ctx, channels...); err != nil {
			disconnect(ctx)
			return nil, nil, err
		}
		return s, disconnect, nil

	case "sqlite":
		s, err := NewSQLiteStore(cfg.SQLitePath, channels...)
		if err != nil {
			return nil, nil, err
		}
		return s, func(context.Context) { _ = s.Close() }, nil

	case "memory":
		logger.Warn().Msg("using in-memory message store; records are lost on exit")
		return NewMemoryStore(), func(context.Context) {}, nil

	default:
		return nil, nil, fmt.Errorf("unknown STORE_BACKEND %q", cfg.StoreBackend)
	}
}

// waitReady retries the startup connectivity check of a database backend.
func waitReady(ctx context.Context, logger zerolog.Logger, name string, ping func(context.Context) error) error {
	op := backoff.NewExponentialBackOff()
	op.MaxElapsedTime = 30 * time.Second
	err := backoff.RetryNotify(func() error {
		pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
		defer cancel()
		return ping(pingCtx)
	}, backoff.WithContext(op, ctx), func(err error, wait time.Duration) {
		logger.Warn().Err(err).Str("backend", name).Dur("retry_in", wait).Msg("store not ready")
	})
	if err != nil {
		return fmt.Errorf("%s not ready: %w", name, err)
	}
	return nil
}
