package channel

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/channel-bridge/internal/common"
	"github.com/example/channel-bridge/internal/store"
)

func TestRegistryFromConfig(t *testing.T) {
	cfg := &common.Config{
		GraphBaseURL: "https://graph.example.com/v1",
		WhatsApp:     common.WhatsAppConfig{AccessToken: "wa", PhoneNumberID: "1055", TemplateLanguage: "en_US"},
		Instagram:    common.InstagramConfig{AccessToken: "ig", PageID: "p"},
	}
	r := RegistryFromConfig(cfg, &fakeTransport{}, store.NewMemoryStore(), zerolog.Nop())

	wa, ok := r.Lookup("whatsapp")
	if !ok {
		t.Fatal("whatsapp missing")
	}
	if creds := wa.adapter.Credentials(); creds.AccessToken != "wa" || creds.RoutingID != "1055" {
		t.Fatalf("whatsapp credentials=%+v", creds)
	}
	adapter := wa.adapter.(*WhatsApp)
	if adapter.cfg.TemplateLanguage != "en_US" || adapter.cfg.MediaBaseURL != "https://graph.example.com/v1" {
		t.Fatalf("whatsapp config=%+v", adapter.cfg)
	}

	ig, ok := r.Lookup("instagram")
	if !ok {
		t.Fatal("instagram missing")
	}
	if creds := ig.adapter.Credentials(); creds.AccessToken != "ig" || creds.RoutingID != "p" {
		t.Fatalf("instagram credentials=%+v", creds)
	}
}
