package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/example/channel-bridge/internal/channel"
	"github.com/example/channel-bridge/internal/common"
	"github.com/example/channel-bridge/internal/message"
	"github.com/example/channel-bridge/internal/transport"
)

const maxRequestBytes = 1 << 20

var (
	reqCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "api_requests_total",
		Help: "Admin API requests by route, channel and status",
	}, []string{"route", "channel", "status"})
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "api_request_duration_seconds",
		Help:    "Latency of admin API requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
)

type Handler struct {
	registry    channel.Registry
	corsOrigins []string
	tracer      trace.Tracer
	logger      zerolog.Logger
}

func NewHandler(registry channel.Registry, cfg *common.Config, logger zerolog.Logger) *Handler {
	return &Handler{
		registry:    registry,
		corsOrigins: cfg.CORSOrigins,
		tracer:      otel.Tracer("api"),
		logger:      logger,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: h.corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Route("/v1/channels/{channel}", func(r chi.Router) {
		r.Post("/messages", h.send)
		r.Get("/insights", h.insights)
		r.Get("/media/{mediaID}/comments", h.comments)
		r.Post("/comments/{commentID}/replies", h.reply)
	})
	return r
}

type sendResponse struct {
	Response transport.Response `json:"response"`
	Recorded *bool              `json:"recorded,omitempty"`
	Error    string             `json:"error,omitempty"`
}

type replyRequest struct {
	Message string `json:"message"`
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	const route = "send"
	ctx, span := h.tracer.Start(r.Context(), "send-message")
	defer span.End()
	start := time.Now()
	defer func() { requestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds()) }()

	integration, ok := h.integration(ctx, w, r, route)
	if !ok {
		return
	}

	var req message.SendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		h.respondErr(ctx, w, route, string(integration.Channel()), message.InvalidRequestf("decode body: %v", err))
		return
	}
	span.SetAttributes(attribute.String("recipient.id", req.RecipientID))

	resp, err := integration.Send(ctx, req)
	var storeErr *message.StoreError
	if errors.As(err, &storeErr) {
		// The message already left; report it accepted but unrecorded.
		recorded := false
		reqCounter.WithLabelValues(route, string(integration.Channel()), "unrecorded").Inc()
		writeJSON(w, http.StatusAccepted, sendResponse{Response: resp, Recorded: &recorded, Error: err.Error()})
		return
	}
	if err != nil {
		h.respondErr(ctx, w, route, string(integration.Channel()), err)
		return
	}

	reqCounter.WithLabelValues(route, string(integration.Channel()), "accepted").Inc()
	writeJSON(w, http.StatusAccepted, sendResponse{Response: resp})
}

func (h *Handler) insights(w http.ResponseWriter, r *http.Request) {
	query := forwardQuery(r, insightsParams)
	h.passthrough(w, r, "insights", func(ctx context.Context, i *channel.Integration) (transport.Response, error) {
		return i.FetchInsights(ctx, query)
	})
}

func (h *Handler) comments(w http.ResponseWriter, r *http.Request) {
	mediaID := chi.URLParam(r, "mediaID")
	query := forwardQuery(r, commentsParams)
	h.passthrough(w, r, "comments", func(ctx context.Context, i *channel.Integration) (transport.Response, error) {
		return i.FetchComments(ctx, mediaID, query)
	})
}

// Graph API selectors the passthrough routes forward upstream.
var (
	insightsParams = []string{"metric", "period", "since", "until", "metric_type", "breakdown"}
	commentsParams = []string{"fields", "limit", "after", "before"}
)

func forwardQuery(r *http.Request, allowed []string) url.Values {
	src := r.URL.Query()
	out := url.Values{}
	for _, key := range allowed {
		if v, ok := src[key]; ok {
			out[key] = v
		}
	}
	return out
}

func (h *Handler) reply(w http.ResponseWriter, r *http.Request) {
	commentID := chi.URLParam(r, "commentID")
	h.passthrough(w, r, "reply", func(ctx context.Context, i *channel.Integration) (transport.Response, error) {
		var req replyRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
			return nil, message.InvalidRequestf("decode body: %v", err)
		}
		return i.ReplyToComment(ctx, commentID, req.Message)
	})
}

func (h *Handler) passthrough(w http.ResponseWriter, r *http.Request, route string, call func(context.Context, *channel.Integration) (transport.Response, error)) {
	ctx, span := h.tracer.Start(r.Context(), route)
	defer span.End()
	start := time.Now()
	defer func() { requestLatency.WithLabelValues(route).Observe(time.Since(start).Seconds()) }()

	integration, ok := h.integration(ctx, w, r, route)
	if !ok {
		return
	}
	resp, err := call(ctx, integration)
	if err != nil {
		h.respondErr(ctx, w, route, string(integration.Channel()), err)
		return
	}
	reqCounter.WithLabelValues(route, string(integration.Channel()), "ok").Inc()
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) integration(ctx context.Context, w http.ResponseWriter, r *http.Request, route string) (*channel.Integration, bool) {
	name := chi.URLParam(r, "channel")
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("channel", name))
	integration, ok := h.registry.Lookup(name)
	if !ok {
		h.respondErr(ctx, w, route, "unknown", errUnknownChannel)
		return nil, false
	}
	return integration, true
}

var errUnknownChannel = errors.New("unknown channel")

type errorBody struct {
	Error          string `json:"error"`
	UpstreamStatus int    `json:"upstream_status,omitempty"`
	UpstreamBody   string `json:"upstream_body,omitempty"`
}

func (h *Handler) respondErr(ctx context.Context, w http.ResponseWriter, route, ch string, err error) {
	status, body := classify(err)
	logger := common.WithContext(ctx, h.logger)
	logger.Error().Err(err).Str("route", route).Str("channel", ch).Int("status", status).Msg("api handler failed")
	trace.SpanFromContext(ctx).RecordError(err)
	reqCounter.WithLabelValues(route, ch, http.StatusText(status)).Inc()
	writeJSON(w, status, body)
}

func classify(err error) (int, errorBody) {
	body := errorBody{Error: err.Error()}
	var transportErr *message.TransportError
	switch {
	case errors.Is(err, errUnknownChannel):
		return http.StatusNotFound, body
	case errors.Is(err, message.ErrInvalidRequest):
		return http.StatusBadRequest, body
	case errors.As(err, &transportErr):
		body.UpstreamStatus = transportErr.Status
		body.UpstreamBody = transportErr.Body
		return http.StatusBadGateway, body
	default:
		return http.StatusInternalServerError, body
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
