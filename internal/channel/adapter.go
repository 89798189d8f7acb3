package channel

import (
	"time"

	"github.com/example/channel-bridge/internal/message"
	"github.com/example/channel-bridge/internal/transport"
)

// Adapter is everything that differs between channels. Integration drives
// the shared send and ingest flow through it.
type Adapter interface {
	Channel() message.Channel
	Credentials() Credentials
	BuildOutboundPayload(req message.SendRequest) (Outbound, error)
	ExtractSendResult(resp transport.Response) string
	ParseInboundEvent(payload []byte) (Inbound, error)
}

type Credentials struct {
	AccessToken string
	// RoutingID is the account the channel API addresses: the phone number id
	// for WhatsApp, the page id for Instagram.
	RoutingID string
}

// Outbound is a wire payload plus the fields recorded once it is sent.
type Outbound struct {
	Path         string
	Payload      any
	Type         string
	Body         string
	MediaURL     string
	TemplateName string
}

// InboundEvent is the single event consumed from a webhook delivery.
type InboundEvent struct {
	CounterpartID     string
	ExternalMessageID string
	Body              string
	MediaURL          string
	Type              string
	Timestamp         time.Time
}

// Inbound is the parse result of one delivery. Event is nil when the delivery
// carries nothing to record. Skipped counts message events left unconsumed.
type Inbound struct {
	Event   *InboundEvent
	Skipped int
}
