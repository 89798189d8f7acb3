package store

import (
	"context"
	"encoding/json"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"

	"github.com/example/channel-bridge/internal/common"
	"github.com/example/channel-bridge/internal/message"
)

var publishFailures = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "message_events_publish_failures_total",
	Help: "Message events that were stored but could not be published",
}, []string{"channel"})

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// EventPublisher appends to the wrapped store and then publishes the record
// to the channel's topic, keyed by record id. Only the primary append decides
// the result: once the record is stored, a failed publish is logged and
// counted but not returned.
type EventPublisher struct {
	next   message.Store
	writer messageWriter
	prefix string
	logger zerolog.Logger
}

func NewEventPublisher(next message.Store, writer messageWriter, topicPrefix string, logger zerolog.Logger) *EventPublisher {
	return &EventPublisher{next: next, writer: writer, prefix: topicPrefix, logger: logger}
}

func (p *EventPublisher) Append(ctx context.Context, channel message.Channel, record message.Message) error {
	if err := p.next.Append(ctx, channel, record); err != nil {
		return err
	}

	topic := topicFor(p.prefix, channel)
	body, err := json.Marshal(record)
	if err == nil {
		err = p.writer.WriteMessages(ctx, kafka.Message{
			Topic: topic,
			Key:   []byte(record.ID),
			Value: body,
		})
	}
	if err != nil {
		publishFailures.WithLabelValues(string(channel)).Inc()
		logger := common.WithContext(ctx, p.logger)
		logger.Error().Err(err).
			Str("topic", topic).
			Str("record_id", record.ID).
			Msg("message stored but event not published")
	}
	return nil
}

func topicFor(prefix string, channel message.Channel) string {
	switch channel {
	case message.ChannelWhatsApp, message.ChannelInstagram:
		return prefix + "." + string(channel)
	default:
		return prefix + ".unknown"
	}
}
