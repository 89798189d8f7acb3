package channel

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/example/channel-bridge/internal/message"
	"github.com/example/channel-bridge/internal/transport"
)

func wireJSON(t *testing.T, payload any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	return out
}

func newTestWhatsApp() *WhatsApp {
	return NewWhatsApp(WhatsAppConfig{AccessToken: "wa-token", PhoneNumberID: "1055"})
}

func TestWhatsAppTextPayload(t *testing.T) {
	out, err := newTestWhatsApp().BuildOutboundPayload(message.SendRequest{RecipientID: "5511999999999", Text: "Olá"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if out.Path != "1055/messages" {
		t.Fatalf("path=%s", out.Path)
	}

	got := wireJSON(t, out.Payload)
	want := map[string]any{
		"messaging_product": "whatsapp",
		"to":                "5511999999999",
		"type":              "text",
		"text":              map[string]any{"body": "Olá"},
	}
	if len(got) != len(want) {
		t.Fatalf("payload=%v", got)
	}
	for k, v := range want {
		gotJSON, _ := json.Marshal(got[k])
		wantJSON, _ := json.Marshal(v)
		if string(gotJSON) != string(wantJSON) {
			t.Fatalf("%s=%s, want %s", k, gotJSON, wantJSON)
		}
	}
}

func TestWhatsAppTemplateComponentsFollowParameterOrder(t *testing.T) {
	params := message.TemplateParams{
		{Key: "customer", Value: "Ana"},
		{Key: "order", Value: "#42"},
		{Key: "eta", Value: "15 min"},
	}
	out, err := newTestWhatsApp().BuildOutboundPayload(message.SendRequest{
		RecipientID:        "5511",
		TemplateName:       "order_ready",
		TemplateParameters: params,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if out.TemplateName != "order_ready" || out.Type != "template" {
		t.Fatalf("outbound=%+v", out)
	}

	payload := out.Payload.(waOutbound)
	if payload.Template.Language.Code != "pt_BR" {
		t.Fatalf("language=%s", payload.Template.Language.Code)
	}
	components := payload.Template.Components
	if len(components) != len(params) {
		t.Fatalf("components=%d, want %d", len(components), len(params))
	}
	for i, c := range components {
		if c.Type != "body" || len(c.Parameters) != 1 {
			t.Fatalf("component %d=%+v", i, c)
		}
		if c.Parameters[0].Type != "text" || c.Parameters[0].Text != params[i].Value {
			t.Fatalf("component %d parameter=%+v, want %s", i, c.Parameters[0], params[i].Value)
		}
	}
}

func TestWhatsAppTemplateRepeatedParameterSendsOnce(t *testing.T) {
	var req message.SendRequest
	raw := `{"recipientId":"5511","templateName":"order_ready","templateParameters":{"customer":"Ana","order":"#42","customer":"Bia"}}`
	if err := json.Unmarshal([]byte(raw), &req); err != nil {
		t.Fatalf("decode: %v", err)
	}
	out, err := newTestWhatsApp().BuildOutboundPayload(req)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	components := out.Payload.(waOutbound).Template.Components
	if len(components) != 2 {
		t.Fatalf("components=%+v", components)
	}
	if components[0].Parameters[0].Text != "Bia" || components[1].Parameters[0].Text != "#42" {
		t.Fatalf("components=%+v", components)
	}
}

func TestWhatsAppTemplateWithoutParametersHasEmptyComponents(t *testing.T) {
	out, err := newTestWhatsApp().BuildOutboundPayload(message.SendRequest{RecipientID: "5511", TemplateName: "hello_world"})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	tpl := wireJSON(t, out.Payload)["template"].(map[string]any)
	components, ok := tpl["components"].([]any)
	if !ok || len(components) != 0 {
		t.Fatalf("components=%v", tpl["components"])
	}
}

func TestWhatsAppTemplateRequiresName(t *testing.T) {
	_, err := newTestWhatsApp().BuildOutboundPayload(message.SendRequest{
		RecipientID:        "5511",
		TemplateParameters: message.TemplateParams{{Key: "a", Value: "b"}},
	})
	if !errors.Is(err, message.ErrInvalidRequest) {
		t.Fatalf("expected ErrInvalidRequest, got %v", err)
	}
}

func TestWhatsAppImagePayloadKeepsCaption(t *testing.T) {
	out, err := newTestWhatsApp().BuildOutboundPayload(message.SendRequest{
		RecipientID: "5511",
		Text:        "cardápio",
		MediaURL:    "https://cdn.example.com/menu.jpg",
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	got := wireJSON(t, out.Payload)
	image := got["image"].(map[string]any)
	if got["type"] != "image" || image["link"] != "https://cdn.example.com/menu.jpg" || image["caption"] != "cardápio" {
		t.Fatalf("payload=%v", got)
	}
	if out.Body != "cardápio" || out.MediaURL == "" {
		t.Fatalf("outbound record fields=%+v", out)
	}
}

func TestWhatsAppExtractSendResult(t *testing.T) {
	w := newTestWhatsApp()
	resp := transport.Response{"messages": []any{map[string]any{"id": "wamid.123"}}}
	if got := w.ExtractSendResult(resp); got != "wamid.123" {
		t.Fatalf("id=%q", got)
	}
	if got := w.ExtractSendResult(transport.Response{}); got != "" {
		t.Fatalf("id=%q, want empty", got)
	}
}

func TestWhatsAppParseInbound(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantErr     error
		wantEvent   bool
		wantSkipped int
		check       func(t *testing.T, ev *InboundEvent)
	}{
		{
			name:      "numeric timestamp",
			payload:   `{"entry":[{"changes":[{"value":{"messages":[{"from":"5511","id":"wamid.1","timestamp":1690000000,"type":"text","text":{"body":"oi"}}]}}]}]}`,
			wantEvent: true,
			check: func(t *testing.T, ev *InboundEvent) {
				if !ev.Timestamp.Equal(time.UnixMilli(1690000000 * 1000)) {
					t.Fatalf("timestamp=%s", ev.Timestamp)
				}
				if ev.Body != "oi" || ev.CounterpartID != "5511" || ev.ExternalMessageID != "wamid.1" || ev.Type != "text" {
					t.Fatalf("event=%+v", ev)
				}
			},
		},
		{
			name:      "string timestamp and unknown fields",
			payload:   `{"object":"whatsapp_business_account","entry":[{"id":"9","changes":[{"field":"messages","value":{"metadata":{"phone_number_id":"1055"},"contacts":[{"wa_id":"5511"}],"messages":[{"from":"5511","id":"wamid.2","timestamp":"1690000001","type":"text","text":{"body":"oi"},"context":{"id":"x"}}]}}]}]}`,
			wantEvent: true,
			check: func(t *testing.T, ev *InboundEvent) {
				if ev.Timestamp.UnixMilli() != 1690000001000 {
					t.Fatalf("timestamp=%d", ev.Timestamp.UnixMilli())
				}
			},
		},
		{
			name:      "no text body defaults empty",
			payload:   `{"entry":[{"changes":[{"value":{"messages":[{"from":"5511","id":"wamid.3","timestamp":"1","type":"location"}]}}]}]}`,
			wantEvent: true,
			check: func(t *testing.T, ev *InboundEvent) {
				if ev.Body != "" || ev.Type != "location" {
					t.Fatalf("event=%+v", ev)
				}
			},
		},
		{
			name:      "image references media id",
			payload:   `{"entry":[{"changes":[{"value":{"messages":[{"from":"5511","id":"wamid.4","timestamp":"1","type":"image","image":{"id":"778","caption":"foto"}}]}}]}]}`,
			wantEvent: true,
			check: func(t *testing.T, ev *InboundEvent) {
				if ev.MediaURL != transport.DefaultBaseURL+"/778" || ev.Body != "foto" {
					t.Fatalf("event=%+v", ev)
				}
			},
		},
		{
			name:        "only first message consumed",
			payload:     `{"entry":[{"changes":[{"value":{"messages":[{"from":"a","id":"1","timestamp":"1"},{"from":"b","id":"2","timestamp":"2"}]}}]},{"changes":[{"value":{"messages":[{"from":"c","id":"3","timestamp":"3"}]}}]}]}`,
			wantEvent:   true,
			wantSkipped: 2,
			check: func(t *testing.T, ev *InboundEvent) {
				if ev.ExternalMessageID != "1" {
					t.Fatalf("consumed %s, want 1", ev.ExternalMessageID)
				}
			},
		},
		{
			name:    "status only is a no-op",
			payload: `{"entry":[{"changes":[{"value":{"statuses":[{"id":"wamid.1","status":"delivered"}]}}]}]}`,
		},
		{
			name:    "missing entry",
			payload: `{"object":"whatsapp_business_account"}`,
			wantErr: message.ErrMalformedPayload,
		},
		{
			name:    "empty entry",
			payload: `{"entry":[]}`,
			wantErr: message.ErrMalformedPayload,
		},
		{
			name:    "null entry",
			payload: `{"entry":[null]}`,
			wantErr: message.ErrMalformedPayload,
		},
		{
			name:    "timestamp overflows",
			payload: `{"entry":[{"changes":[{"value":{"messages":[{"from":"5511","id":"wamid.1","timestamp":"1e30"}]}}]}]}`,
			wantErr: message.ErrMalformedPayload,
		},
		{
			name:    "fractional timestamp",
			payload: `{"entry":[{"changes":[{"value":{"messages":[{"from":"5511","id":"wamid.1","timestamp":1.5}]}}]}]}`,
			wantErr: message.ErrMalformedPayload,
		},
		{
			name:      "whole float timestamp",
			payload:   `{"entry":[{"changes":[{"value":{"messages":[{"from":"5511","id":"wamid.1","timestamp":"1690000000.0"}]}}]}]}`,
			wantEvent: true,
			check: func(t *testing.T, ev *InboundEvent) {
				if ev.Timestamp.UnixMilli() != 1690000000000 {
					t.Fatalf("timestamp=%d", ev.Timestamp.UnixMilli())
				}
			},
		},
		{
			name:    "entry without changes",
			payload: `{"entry":[{"id":"9"}]}`,
			wantErr: message.ErrMalformedPayload,
		},
		{
			name:    "not json",
			payload: `entry=1`,
			wantErr: message.ErrMalformedPayload,
		},
		{
			name:    "missing from",
			payload: `{"entry":[{"changes":[{"value":{"messages":[{"id":"wamid.1","timestamp":"1"}]}}]}]}`,
			wantErr: message.ErrInvalidMessageFormat,
		},
		{
			name:    "missing id",
			payload: `{"entry":[{"changes":[{"value":{"messages":[{"from":"5511","timestamp":"1"}]}}]}]}`,
			wantErr: message.ErrInvalidMessageFormat,
		},
	}

	w := newTestWhatsApp()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in, err := w.ParseInboundEvent([]byte(tc.payload))
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if (in.Event != nil) != tc.wantEvent {
				t.Fatalf("event=%+v, wantEvent=%v", in.Event, tc.wantEvent)
			}
			if in.Skipped != tc.wantSkipped {
				t.Fatalf("skipped=%d, want %d", in.Skipped, tc.wantSkipped)
			}
			if tc.check != nil {
				tc.check(t, in.Event)
			}
		})
	}
}

func TestWhatsAppTimestampIsSecondsTimesThousand(t *testing.T) {
	w := newTestWhatsApp()
	for _, sec := range []int64{0, 1, 1690000000, 1893456000} {
		payload := `{"entry":[{"changes":[{"value":{"messages":[{"from":"5511","id":"x","timestamp":` + jsonInt(sec) + `}]}}]}]}`
		in, err := w.ParseInboundEvent([]byte(payload))
		if err != nil {
			t.Fatalf("parse %d: %v", sec, err)
		}
		if got := in.Event.Timestamp.UnixMilli(); got != sec*1000 {
			t.Fatalf("timestamp for %d = %d ms, want %d", sec, got, sec*1000)
		}
	}
}

func jsonInt(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
