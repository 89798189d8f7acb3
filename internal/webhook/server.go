package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/example/channel-bridge/internal/channel"
	"github.com/example/channel-bridge/internal/common"
	"github.com/example/channel-bridge/internal/message"
)

const (
	maxBodyBytes    = 1 << 20
	signatureHeader = "X-Hub-Signature-256"
)

var requestCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "webhook_requests_total",
	Help: "Webhook requests by channel, method and outcome",
}, []string{"channel", "method", "status"})

// Verification holds the per-channel secrets used by the subscription
// handshake and payload signature check. An empty AppSecret disables the
// signature check.
type Verification struct {
	VerifyToken string
	AppSecret   string
}

type Server struct {
	Registry channel.Registry
	Verify   map[message.Channel]Verification
	Logger   zerolog.Logger
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/v1/webhooks/{channel}", s.subscribe)
	r.Post("/v1/webhooks/{channel}", s.receive)
	return r
}

// subscribe answers the hub.challenge handshake the platforms send when a
// webhook URL is registered.
func (s *Server) subscribe(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("webhook").Start(r.Context(), "verify-subscription")
	defer span.End()

	name := chi.URLParam(r, "channel")
	span.SetAttributes(attribute.String("channel", name))
	if _, ok := s.Registry.Lookup(name); !ok {
		s.respondErr(ctx, w, name, http.MethodGet, http.StatusNotFound, errors.New("unknown channel"))
		return
	}

	q := r.URL.Query()
	token := s.Verify[message.Channel(name)].VerifyToken
	if q.Get("hub.mode") != "subscribe" || token == "" || !hmac.Equal([]byte(q.Get("hub.verify_token")), []byte(token)) {
		s.respondErr(ctx, w, name, http.MethodGet, http.StatusForbidden, errors.New("subscription verification failed"))
		return
	}

	requestCounter.WithLabelValues(name, http.MethodGet, "ok").Inc()
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, q.Get("hub.challenge"))
}

func (s *Server) receive(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer("webhook").Start(r.Context(), "ingest-webhook")
	defer span.End()

	name := chi.URLParam(r, "channel")
	span.SetAttributes(attribute.String("channel", name))
	integration, ok := s.Registry.Lookup(name)
	if !ok {
		s.respondErr(ctx, w, name, http.MethodPost, http.StatusNotFound, errors.New("unknown channel"))
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondErr(ctx, w, name, http.MethodPost, http.StatusRequestEntityTooLarge, err)
			return
		}
		s.respondErr(ctx, w, name, http.MethodPost, http.StatusBadRequest, err)
		return
	}

	if secret := s.Verify[message.Channel(name)].AppSecret; secret != "" {
		if !validSignature(secret, body, r.Header.Get(signatureHeader)) {
			s.respondErr(ctx, w, name, http.MethodPost, http.StatusUnauthorized, errors.New("invalid payload signature"))
			return
		}
	}

	result, err := integration.Ingest(ctx, body)
	if err != nil {
		s.respondErr(ctx, w, name, http.MethodPost, statusFor(err), err)
		return
	}
	if result.Record != nil {
		span.SetAttributes(attribute.String("message.external_id", result.Record.ExternalMessageID))
	}

	status := "ok"
	if result.Record == nil {
		status = "noop"
	}
	requestCounter.WithLabelValues(name, http.MethodPost, status).Inc()
	w.WriteHeader(http.StatusOK)
}

// validSignature checks a "sha256=<hex>" HMAC of the raw body.
func validSignature(secret string, body []byte, header string) bool {
	sig, ok := strings.CutPrefix(header, "sha256=")
	if !ok {
		return false
	}
	got, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, message.ErrMalformedPayload), errors.Is(err, message.ErrInvalidMessageFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(ctx context.Context, w http.ResponseWriter, name, method string, status int, err error) {
	logger := common.WithContext(ctx, s.Logger)
	logger.Error().Err(err).Str("channel", name).Int("status", status).Msg("webhook handler error")
	if _, ok := s.Registry.Lookup(name); !ok {
		name = "unknown"
	}
	requestCounter.WithLabelValues(name, method, http.StatusText(status)).Inc()
	http.Error(w, err.Error(), status)
}
