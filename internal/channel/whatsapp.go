package channel

import (
	"strings"

	"github.com/example/channel-bridge/internal/message"
	"github.com/example/channel-bridge/internal/transport"
)

const defaultTemplateLanguage = "pt_BR"

type WhatsAppConfig struct {
	APIKey           string
	AccessToken      string
	PhoneNumberID    string
	TemplateLanguage string
	// MediaBaseURL prefixes inbound media ids so they are recorded as
	// fetchable Graph API references. Defaults to transport.DefaultBaseURL.
	MediaBaseURL string
}

// WhatsApp adapts the WhatsApp Business Cloud API.
type WhatsApp struct {
	cfg WhatsAppConfig
}

func NewWhatsApp(cfg WhatsAppConfig) *WhatsApp {
	if cfg.TemplateLanguage == "" {
		cfg.TemplateLanguage = defaultTemplateLanguage
	}
	if cfg.MediaBaseURL == "" {
		cfg.MediaBaseURL = transport.DefaultBaseURL
	}
	return &WhatsApp{cfg: cfg}
}

func (w *WhatsApp) Channel() message.Channel { return message.ChannelWhatsApp }

func (w *WhatsApp) Credentials() Credentials {
	return Credentials{AccessToken: w.cfg.AccessToken, RoutingID: w.cfg.PhoneNumberID}
}

func (w *WhatsApp) BuildOutboundPayload(req message.SendRequest) (Outbound, error) {
	out := Outbound{Path: w.cfg.PhoneNumberID + "/messages"}
	payload := waOutbound{MessagingProduct: "whatsapp", To: req.RecipientID}

	switch {
	case req.IsTemplate():
		if req.TemplateName == "" {
			return Outbound{}, message.InvalidRequestf("templateName is required for template messages")
		}
		payload.Type = "template"
		payload.Template = &waTemplate{
			Name:       req.TemplateName,
			Language:   waLanguage{Code: w.cfg.TemplateLanguage},
			Components: templateComponents(req.TemplateParameters),
		}
		out.TemplateName = req.TemplateName
		out.Body = req.Text
		if out.Body == "" {
			out.Body = templateSummary(req.TemplateName, req.TemplateParameters)
		}
	case req.MediaURL != "":
		payload.Type = "image"
		payload.Image = &waMediaOut{Link: req.MediaURL, Caption: req.Text}
		out.Body = req.Text
		out.MediaURL = req.MediaURL
	default:
		if req.Text == "" {
			return Outbound{}, message.InvalidRequestf("text is required")
		}
		payload.Type = "text"
		payload.Text = &waText{Body: req.Text}
		out.Body = req.Text
	}

	out.Type = payload.Type
	out.Payload = payload
	return out, nil
}

func (w *WhatsApp) ExtractSendResult(resp transport.Response) string {
	return lookupString(map[string]any(resp), "messages", 0, "id")
}

func (w *WhatsApp) ParseInboundEvent(payload []byte) (Inbound, error) {
	var hook waWebhook
	if err := decodePayload(payload, &hook); err != nil {
		return Inbound{}, err
	}
	if len(hook.Entry) == 0 || hook.Entry[0] == nil {
		return Inbound{}, message.MalformedPayloadf("missing entry")
	}
	if len(hook.Entry[0].Changes) == 0 {
		return Inbound{}, message.MalformedPayloadf("entry[0] has no changes")
	}

	total := 0
	for _, entry := range hook.Entry {
		if entry == nil {
			continue
		}
		for _, change := range entry.Changes {
			total += len(change.Value.Messages)
		}
	}

	messages := hook.Entry[0].Changes[0].Value.Messages
	if len(messages) == 0 {
		return Inbound{Skipped: total}, nil
	}

	msg := messages[0]
	if msg.From == "" || msg.ID == "" {
		return Inbound{}, message.InvalidMessageFormatf("whatsapp message requires from and id")
	}

	event := &InboundEvent{
		CounterpartID:     msg.From,
		ExternalMessageID: msg.ID,
		Type:              msg.Type,
		Timestamp:         fromSeconds(msg.Timestamp),
	}
	if msg.Text != nil {
		event.Body = msg.Text.Body
	}
	if media := msg.media(); media != nil {
		event.MediaURL = w.mediaURL(media)
		if event.Body == "" {
			event.Body = media.Caption
		}
	}
	return Inbound{Event: event, Skipped: total - 1}, nil
}

func (w *WhatsApp) mediaURL(media *waMediaIn) string {
	if media.Link != "" {
		return media.Link
	}
	if media.ID == "" {
		return ""
	}
	return strings.TrimRight(w.cfg.MediaBaseURL, "/") + "/" + media.ID
}

type waOutbound struct {
	MessagingProduct string      `json:"messaging_product"`
	To               string      `json:"to"`
	Type             string      `json:"type"`
	Text             *waText     `json:"text,omitempty"`
	Image            *waMediaOut `json:"image,omitempty"`
	Template         *waTemplate `json:"template,omitempty"`
}

type waText struct {
	Body string `json:"body"`
}

type waMediaOut struct {
	Link    string `json:"link"`
	Caption string `json:"caption,omitempty"`
}

type waTemplate struct {
	Name       string              `json:"name"`
	Language   waLanguage          `json:"language"`
	Components []templateComponent `json:"components"`
}

type waLanguage struct {
	Code string `json:"code"`
}

type waWebhook struct {
	Object string     `json:"object"`
	Entry  []*waEntry `json:"entry"`
}

type waEntry struct {
	ID      string     `json:"id"`
	Changes []waChange `json:"changes"`
}

type waChange struct {
	Field string  `json:"field"`
	Value waValue `json:"value"`
}

type waValue struct {
	MessagingProduct string      `json:"messaging_product"`
	Messages         []waInbound `json:"messages"`
}

type waInbound struct {
	From      string     `json:"from"`
	ID        string     `json:"id"`
	Timestamp epoch      `json:"timestamp"`
	Type      string     `json:"type"`
	Text      *waText    `json:"text,omitempty"`
	Image     *waMediaIn `json:"image,omitempty"`
	Audio     *waMediaIn `json:"audio,omitempty"`
	Video     *waMediaIn `json:"video,omitempty"`
	Document  *waMediaIn `json:"document,omitempty"`
	Sticker   *waMediaIn `json:"sticker,omitempty"`
}

type waMediaIn struct {
	ID       string `json:"id"`
	Link     string `json:"link"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption"`
}

func (m waInbound) media() *waMediaIn {
	for _, media := range []*waMediaIn{m.Image, m.Audio, m.Video, m.Document, m.Sticker} {
		if media != nil {
			return media
		}
	}
	return nil
}
