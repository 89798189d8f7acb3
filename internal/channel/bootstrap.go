package channel

import (
	"github.com/rs/zerolog"

	"github.com/example/channel-bridge/internal/common"
	"github.com/example/channel-bridge/internal/message"
	"github.com/example/channel-bridge/internal/transport"
)

// RegistryFromConfig wires both channel integrations to tr and st.
func RegistryFromConfig(cfg *common.Config, tr transport.Transport, st message.Store, logger zerolog.Logger) Registry {
	wa := NewWhatsApp(WhatsAppConfig{
		APIKey:           cfg.WhatsApp.APIKey,
		AccessToken:      cfg.WhatsApp.AccessToken,
		PhoneNumberID:    cfg.WhatsApp.PhoneNumberID,
		TemplateLanguage: cfg.WhatsApp.TemplateLanguage,
		MediaBaseURL:     cfg.GraphBaseURL,
	})
	ig := NewInstagram(InstagramConfig{
		AccessToken: cfg.Instagram.AccessToken,
		PageID:      cfg.Instagram.PageID,
	})
	if wa.cfg.PhoneNumberID == "" {
		logger.Warn().Msg("WHATSAPP_PHONE_NUMBER_ID is not set; whatsapp sends will fail")
	}
	if ig.cfg.PageID == "" {
		logger.Warn().Msg("INSTAGRAM_PAGE_ID is not set; instagram sends will fail")
	}
	return NewRegistry(
		New(wa, tr, st, logger),
		New(ig, tr, st, logger),
	)
}
