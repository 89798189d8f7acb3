package message

import (
	"context"
	"time"
)

type Channel string

const (
	// ChannelWhatsApp is the chat channel (WhatsApp Business Cloud API).
	ChannelWhatsApp Channel = "whatsapp"
	// ChannelInstagram is the social channel (Instagram messaging via the Graph API).
	ChannelInstagram Channel = "instagram"
)

// Collection is the channel-scoped collection (table, topic suffix) records are appended to.
func (c Channel) Collection() string {
	return string(c) + "_messages"
}

type Direction string

const (
	DirectionSent     Direction = "sent"
	DirectionReceived Direction = "received"
)

// Message is the normalized record produced by both directions of traffic.
// Records are created once and never mutated.
type Message struct {
	ID                string    `json:"id" bson:"_id"`
	Channel           Channel   `json:"channel" bson:"channel"`
	Direction         Direction `json:"direction" bson:"direction"`
	CounterpartID     string    `json:"counterpart_id" bson:"counterpart_id"`
	Body              string    `json:"body,omitempty" bson:"body,omitempty"`
	MediaURL          string    `json:"media_url,omitempty" bson:"media_url,omitempty"`
	ExternalMessageID string    `json:"external_message_id" bson:"external_message_id"`
	Type              string    `json:"type,omitempty" bson:"type,omitempty"`
	TemplateName      string    `json:"template_name,omitempty" bson:"template_name,omitempty"`
	Timestamp         time.Time `json:"timestamp" bson:"timestamp"`
}

// SendRequest is what the admin application asks a channel to deliver.
type SendRequest struct {
	RecipientID        string         `json:"recipientId" validate:"required"`
	Text               string         `json:"text,omitempty"`
	MediaURL           string         `json:"mediaUrl,omitempty" validate:"omitempty,url"`
	TemplateName       string         `json:"templateName,omitempty"`
	TemplateParameters TemplateParams `json:"templateParameters,omitempty"`
}

// IsTemplate reports whether the caller asked for a template send.
func (r SendRequest) IsTemplate() bool {
	return r.TemplateName != "" || r.TemplateParameters != nil
}

// Store is the append-only persistence the integrations write to.
type Store interface {
	Append(ctx context.Context, channel Channel, record Message) error
}
