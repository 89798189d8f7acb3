package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/example/channel-bridge/internal/message"
)

const (
	DefaultBaseURL = "https://graph.facebook.com/v17.0"
	DefaultTimeout = 10 * time.Second

	maxResponseBytes = 4 << 20
)

// Response is the decoded JSON body returned by a channel API.
type Response map[string]any

// Transport performs authenticated JSON calls against a channel REST API.
type Transport interface {
	Get(ctx context.Context, path, token string, query url.Values) (Response, error)
	Post(ctx context.Context, path, token string, body any) (Response, error)
}

// Client is the HTTP Transport. Every call is bounded by Timeout. Only GETs
// are retried, and only when ReadRetryMaxElapsed is positive.
type Client struct {
	BaseURL             string
	HTTPClient          *http.Client
	Timeout             time.Duration
	ReadRetryMaxElapsed time.Duration
}

func (c *Client) Get(ctx context.Context, path, token string, query url.Values) (Response, error) {
	if c.ReadRetryMaxElapsed <= 0 {
		return c.do(ctx, http.MethodGet, path, token, query, nil)
	}

	op := backoff.NewExponentialBackOff()
	op.MaxElapsedTime = c.ReadRetryMaxElapsed

	var resp Response
	err := backoff.Retry(func() error {
		r, err := c.do(ctx, http.MethodGet, path, token, query, nil)
		if err != nil {
			if !retryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		resp = r
		return nil
	}, backoff.WithContext(op, ctx))
	return resp, err
}

func (c *Client) Post(ctx context.Context, path, token string, body any) (Response, error) {
	return c.do(ctx, http.MethodPost, path, token, nil, body)
}

func (c *Client) do(ctx context.Context, method, path, token string, query url.Values, body any) (Response, error) {
	ctx, span := otel.Tracer("transport").Start(ctx, "channel-api "+method)
	defer span.End()
	span.SetAttributes(
		attribute.String("http.method", method),
		attribute.String("channel.api.path", path),
	)

	resp, err := c.roundTrip(ctx, method, path, token, query, body)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return resp, err
}

func (c *Client) roundTrip(ctx context.Context, method, path, token string, query url.Values, body any) (Response, error) {
	fail := func(status int, respBody string, err error) error {
		return &message.TransportError{Method: method, Path: path, Status: status, Body: respBody, Err: err}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout())
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fail(0, "", fmt.Errorf("encode request: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path, query), reader)
	if err != nil {
		return nil, fail(0, "", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: c.timeout()}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fail(0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fail(resp.StatusCode, "", fmt.Errorf("read response: %w", err))
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fail(resp.StatusCode, string(raw), nil)
	}

	out := Response{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fail(resp.StatusCode, string(raw), fmt.Errorf("decode response: %w", err))
	}
	return out, nil
}

func (c *Client) endpoint(path string, query url.Values) string {
	base := c.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	endpoint := strings.TrimRight(base, "/") + "/" + strings.TrimLeft(path, "/")
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}
	return endpoint
}

func (c *Client) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

// retryable treats network failures, 429 and 5xx as transient.
func retryable(err error) bool {
	var te *message.TransportError
	if !errors.As(err, &te) {
		return false
	}
	if te.Status == 0 {
		return true
	}
	return te.Status == http.StatusTooManyRequests || te.Status >= 500
}
