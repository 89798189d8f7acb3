package channel

import (
	"github.com/example/channel-bridge/internal/message"
	"github.com/example/channel-bridge/internal/transport"
)

type InstagramConfig struct {
	AccessToken string
	PageID      string
}

// Instagram adapts Instagram messaging through the Graph API.
//
// A send carries text or an image attachment, never both: when a media URL
// is present the attachment replaces the text, which is dropped.
type Instagram struct {
	cfg InstagramConfig
}

func NewInstagram(cfg InstagramConfig) *Instagram {
	return &Instagram{cfg: cfg}
}

func (g *Instagram) Channel() message.Channel { return message.ChannelInstagram }

func (g *Instagram) Credentials() Credentials {
	return Credentials{AccessToken: g.cfg.AccessToken, RoutingID: g.cfg.PageID}
}

func (g *Instagram) BuildOutboundPayload(req message.SendRequest) (Outbound, error) {
	if req.IsTemplate() {
		return Outbound{}, message.InvalidRequestf("instagram does not support template messages")
	}

	out := Outbound{Path: g.cfg.PageID + "/messages"}
	payload := igOutbound{Recipient: igRecipient{ID: req.RecipientID}}

	if req.MediaURL != "" {
		payload.Message = igMessage{Attachment: &igAttachment{
			Type:    "image",
			Payload: igAttachmentPayload{URL: req.MediaURL, IsReusable: true},
		}}
		out.Type = "image"
		out.MediaURL = req.MediaURL
	} else {
		if req.Text == "" {
			return Outbound{}, message.InvalidRequestf("text is required")
		}
		payload.Message = igMessage{Text: req.Text}
		out.Type = "text"
		out.Body = req.Text
	}

	out.Payload = payload
	return out, nil
}

func (g *Instagram) ExtractSendResult(resp transport.Response) string {
	return lookupString(map[string]any(resp), "message_id")
}

func (g *Instagram) ParseInboundEvent(payload []byte) (Inbound, error) {
	var hook igWebhook
	if err := decodePayload(payload, &hook); err != nil {
		return Inbound{}, err
	}
	if len(hook.Entry) == 0 || hook.Entry[0] == nil {
		return Inbound{}, message.MalformedPayloadf("missing entry")
	}

	total := 0
	for _, entry := range hook.Entry {
		if entry != nil {
			total += len(entry.Messaging)
		}
	}

	messaging := hook.Entry[0].Messaging
	if len(messaging) == 0 {
		return Inbound{Skipped: total}, nil
	}

	ev := messaging[0]
	if ev.Sender.ID == "" || ev.Message == nil || ev.Message.MID == "" {
		return Inbound{}, message.InvalidMessageFormatf("instagram message requires sender.id and message.mid")
	}

	event := &InboundEvent{
		CounterpartID:     ev.Sender.ID,
		ExternalMessageID: ev.Message.MID,
		Body:              ev.Message.Text,
		Type:              "text",
		Timestamp:         fromMillis(ev.Timestamp),
	}
	if len(ev.Message.Attachments) > 0 {
		att := ev.Message.Attachments[0]
		event.MediaURL = att.Payload.URL
		if att.Type != "" {
			event.Type = att.Type
		}
	}
	return Inbound{Event: event, Skipped: total - 1}, nil
}

type igOutbound struct {
	Recipient igRecipient `json:"recipient"`
	Message   igMessage   `json:"message"`
}

type igRecipient struct {
	ID string `json:"id"`
}

type igMessage struct {
	Text       string        `json:"text,omitempty"`
	Attachment *igAttachment `json:"attachment,omitempty"`
}

type igAttachment struct {
	Type    string              `json:"type"`
	Payload igAttachmentPayload `json:"payload"`
}

type igAttachmentPayload struct {
	URL        string `json:"url"`
	IsReusable bool   `json:"is_reusable"`
}

type igWebhook struct {
	Object string     `json:"object"`
	Entry  []*igEntry `json:"entry"`
}

type igEntry struct {
	ID        string        `json:"id"`
	Time      epoch         `json:"time"`
	Messaging []igMessaging `json:"messaging"`
}

type igMessaging struct {
	Sender    igRecipient `json:"sender"`
	Recipient igRecipient `json:"recipient"`
	Timestamp epoch       `json:"timestamp"`
	Message   *igInbound  `json:"message"`
}

type igInbound struct {
	MID         string              `json:"mid"`
	Text        string              `json:"text"`
	Attachments []igInboundAttached `json:"attachments"`
}

type igInboundAttached struct {
	Type    string `json:"type"`
	Payload struct {
		URL string `json:"url"`
	} `json:"payload"`
}
