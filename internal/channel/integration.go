package channel

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/channel-bridge/internal/common"
	"github.com/example/channel-bridge/internal/message"
	"github.com/example/channel-bridge/internal/transport"
)

// Integration connects one channel to the message store. It holds no
// mutable state, so Send and Ingest may be called concurrently.
type Integration struct {
	adapter   Adapter
	transport transport.Transport
	store     message.Store
	logger    zerolog.Logger
	tracer    trace.Tracer
	now       func() time.Time
}

type Option func(*Integration)

// WithClock overrides the time source used to stamp sent messages.
func WithClock(now func() time.Time) Option {
	return func(i *Integration) { i.now = now }
}

func New(adapter Adapter, tr transport.Transport, store message.Store, logger zerolog.Logger, opts ...Option) *Integration {
	i := &Integration{
		adapter:   adapter,
		transport: tr,
		store:     store,
		logger:    logger.With().Str("channel", string(adapter.Channel())).Logger(),
		tracer:    otel.Tracer("channel"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

func (i *Integration) Channel() message.Channel { return i.adapter.Channel() }

// Send delivers req through the channel API and records it. The API is
// called exactly once. If recording fails the API response is still
// returned, together with a *message.StoreError.
func (i *Integration) Send(ctx context.Context, req message.SendRequest) (transport.Response, error) {
	ch := i.adapter.Channel()
	ctx, span := i.tracer.Start(ctx, "send")
	defer span.End()
	span.SetAttributes(attribute.String("channel", string(ch)))
	logger := common.WithContext(ctx, i.logger)

	resp, err := i.send(ctx, req, logger)
	sendCounter.WithLabelValues(string(ch), statusLabel(err)).Inc()
	if err != nil {
		span.RecordError(err)
	}
	return resp, err
}

func (i *Integration) send(ctx context.Context, req message.SendRequest, logger zerolog.Logger) (transport.Response, error) {
	ch := i.adapter.Channel()
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	out, err := i.adapter.BuildOutboundPayload(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := i.transport.Post(ctx, out.Path, i.adapter.Credentials().AccessToken, out.Payload)
	sendLatency.WithLabelValues(string(ch)).Observe(time.Since(start).Seconds())
	if err != nil {
		err = asTransportError(http.MethodPost, out.Path, err)
		logger.Error().Err(err).Str("recipient", req.RecipientID).Msg("channel send failed")
		return nil, err
	}

	record := message.Message{
		ID:                uuid.NewString(),
		Channel:           ch,
		Direction:         message.DirectionSent,
		CounterpartID:     req.RecipientID,
		Body:              out.Body,
		MediaURL:          out.MediaURL,
		ExternalMessageID: i.adapter.ExtractSendResult(resp),
		Type:              out.Type,
		TemplateName:      out.TemplateName,
		Timestamp:         i.now().UTC(),
	}
	if record.ExternalMessageID == "" {
		logger.Warn().Str("recipient", req.RecipientID).Msg("send response carried no message id")
	}

	if err := i.store.Append(ctx, ch, record); err != nil {
		logger.Error().Err(err).
			Str("external_message_id", record.ExternalMessageID).
			Msg("message sent but not recorded")
		return resp, &message.StoreError{Channel: ch, Err: err}
	}

	logger.Info().
		Str("record_id", record.ID).
		Str("external_message_id", record.ExternalMessageID).
		Str("type", record.Type).
		Msg("message sent")
	return resp, nil
}

// IngestResult reports what one webhook delivery produced. Record is nil
// when the delivery held nothing to store.
type IngestResult struct {
	Record  *message.Message
	Skipped int
}

// Ingest records the first message event of a webhook delivery. Other events
// in the same delivery are counted in Skipped and not stored. Redelivered
// events are stored again.
func (i *Integration) Ingest(ctx context.Context, payload []byte) (IngestResult, error) {
	ch := i.adapter.Channel()
	ctx, span := i.tracer.Start(ctx, "ingest")
	defer span.End()
	span.SetAttributes(attribute.String("channel", string(ch)))
	logger := common.WithContext(ctx, i.logger)

	result, err := i.ingest(ctx, payload, logger)
	status := statusLabel(err)
	if err == nil && result.Record == nil {
		status = "noop"
	}
	ingestCounter.WithLabelValues(string(ch), status).Inc()
	if err != nil {
		span.RecordError(err)
		logger.Warn().Err(err).Msg("webhook ingest failed")
	}
	return result, err
}

func (i *Integration) ingest(ctx context.Context, payload []byte, logger zerolog.Logger) (IngestResult, error) {
	ch := i.adapter.Channel()
	in, err := i.adapter.ParseInboundEvent(payload)
	if err != nil {
		return IngestResult{}, err
	}

	result := IngestResult{Skipped: in.Skipped}
	if in.Skipped > 0 {
		skippedEvents.WithLabelValues(string(ch)).Add(float64(in.Skipped))
		logger.Warn().Int("skipped", in.Skipped).Msg("webhook delivery carried events that were not consumed")
	}
	if in.Event == nil {
		return result, nil
	}

	ev := in.Event
	record := message.Message{
		ID:                uuid.NewString(),
		Channel:           ch,
		Direction:         message.DirectionReceived,
		CounterpartID:     ev.CounterpartID,
		Body:              ev.Body,
		MediaURL:          ev.MediaURL,
		ExternalMessageID: ev.ExternalMessageID,
		Type:              ev.Type,
		Timestamp:         ev.Timestamp,
	}
	if err := i.store.Append(ctx, ch, record); err != nil {
		return result, &message.StoreError{Channel: ch, Err: err}
	}

	logger.Info().
		Str("record_id", record.ID).
		Str("external_message_id", record.ExternalMessageID).
		Str("from", record.CounterpartID).
		Msg("message received")
	result.Record = &record
	return result, nil
}

// FetchInsights returns the account insights of the configured routing id.
// query carries the Graph API selectors such as metric and period.
func (i *Integration) FetchInsights(ctx context.Context, query url.Values) (transport.Response, error) {
	return i.get(ctx, "insights", url.PathEscape(i.adapter.Credentials().RoutingID)+"/insights", query)
}

// FetchComments returns the comments on a published media object.
func (i *Integration) FetchComments(ctx context.Context, mediaID string, query url.Values) (transport.Response, error) {
	if mediaID == "" {
		return nil, message.InvalidRequestf("media id is required")
	}
	return i.get(ctx, "comments", url.PathEscape(mediaID)+"/comments", query)
}

// ReplyToComment posts text as a reply to a comment.
func (i *Integration) ReplyToComment(ctx context.Context, commentID, text string) (transport.Response, error) {
	if commentID == "" || text == "" {
		return nil, message.InvalidRequestf("comment id and message are required")
	}
	path := url.PathEscape(commentID) + "/replies"

	ctx, span := i.tracer.Start(ctx, "reply-to-comment")
	defer span.End()
	resp, err := i.transport.Post(ctx, path, i.adapter.Credentials().AccessToken, map[string]string{"message": text})
	if err != nil {
		span.RecordError(err)
		return nil, asTransportError(http.MethodPost, path, err)
	}
	return resp, nil
}

func (i *Integration) get(ctx context.Context, op, path string, query url.Values) (transport.Response, error) {
	ctx, span := i.tracer.Start(ctx, "fetch-"+op)
	defer span.End()
	resp, err := i.transport.Get(ctx, path, i.adapter.Credentials().AccessToken, query)
	if err != nil {
		span.RecordError(err)
		return nil, asTransportError(http.MethodGet, path, err)
	}
	return resp, nil
}

func asTransportError(method, path string, err error) error {
	var te *message.TransportError
	if errors.As(err, &te) {
		return err
	}
	return &message.TransportError{Method: method, Path: path, Err: err}
}
