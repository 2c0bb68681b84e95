// Package gateway talks to the remote chat assistant.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// maxReplyBytes bounds how much of a reply body is read.
const maxReplyBytes = 1 << 20

// Sender delivers one user message to the assistant. A returned error is a
// transport failure; structured failures come back as a Failure reply.
type Sender interface {
	Send(ctx context.Context, message string) (Reply, error)
}

type Client struct {
	endpoint string
	http     *http.Client
	tracer   trace.Tracer
	logger   *slog.Logger
}

// New returns a client for endpoint. A nil httpClient uses http.DefaultClient.
func New(endpoint string, httpClient *http.Client, logger *slog.Logger) (*Client, error) {
	if strings.TrimSpace(endpoint) == "" {
		return nil, errors.New("assistant endpoint is required")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		endpoint: endpoint,
		http:     httpClient,
		tracer:   otel.Tracer("github.com/loqalabs/loqa-concierge/gateway"),
		logger:   logger.With(slog.String("component", "gateway")),
	}, nil
}

// Send posts message form-encoded and parses the JSON reply. The status code
// is not consulted; the body decides the outcome.
func (c *Client) Send(ctx context.Context, message string) (Reply, error) {
	ctx, span := c.tracer.Start(ctx, "gateway.send", trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()
	span.SetAttributes(attribute.Int("concierge.message.length", len(message)))

	reply, err := c.send(ctx, message)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return Reply{}, err
	}
	span.SetAttributes(attribute.String("concierge.reply.kind", reply.Kind.String()))
	return reply, nil
}

func (c *Client) send(ctx context.Context, message string) (Reply, error) {
	form := url.Values{"message": {message}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return Reply{}, fmt.Errorf("build assistant request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return Reply{}, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxReplyBytes))
	if err != nil {
		return Reply{}, fmt.Errorf("read assistant reply: %w", err)
	}

	reply, err := parseReply(body)
	if err != nil {
		c.logger.Debug("unparseable assistant reply",
			slog.Int("status", resp.StatusCode),
			slog.Int("bytes", len(body)))
		return Reply{}, fmt.Errorf("%w (status %s)", err, resp.Status)
	}
	return reply, nil
}
