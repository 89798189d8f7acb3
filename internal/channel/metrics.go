package channel

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/example/channel-bridge/internal/message"
)

var (
	sendCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_sends_total",
		Help: "Outbound sends by channel and outcome",
	}, []string{"channel", "status"})
	sendLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "channel_send_duration_seconds",
		Help:    "Latency of channel API send calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"channel"})
	ingestCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_ingests_total",
		Help: "Webhook deliveries ingested by channel and outcome",
	}, []string{"channel", "status"})
	skippedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "channel_webhook_events_skipped_total",
		Help: "Message events present in a webhook delivery but not consumed",
	}, []string{"channel"})
)

func statusLabel(err error) string {
	var (
		transportErr *message.TransportError
		storeErr     *message.StoreError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, message.ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, message.ErrMalformedPayload):
		return "malformed_payload"
	case errors.Is(err, message.ErrInvalidMessageFormat):
		return "invalid_message_format"
	case errors.As(err, &transportErr):
		return "transport_error"
	case errors.As(err, &storeErr):
		return "store_error"
	default:
		return "error"
	}
}
