package interaction

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type metrics struct {
	sent         metric.Int64Counter
	failed       metric.Int64Counter
	recognitions metric.Int64Counter
	navigations  metric.Int64Counter
}

func newMetrics(logger *slog.Logger) *metrics {
	meter := otel.Meter("github.com/loqalabs/loqa-concierge/interaction")
	m := &metrics{}
	var err error
	if m.sent, err = meter.Int64Counter("concierge.messages.sent", metric.WithDescription("Messages sent to the assistant")); err != nil {
		logger.Warn("failed to create counter", slog.String("name", "concierge.messages.sent"), slogError(err))
	}
	if m.failed, err = meter.Int64Counter("concierge.messages.failed", metric.WithDescription("Sends that ended in an error reply or transport failure")); err != nil {
		logger.Warn("failed to create counter", slog.String("name", "concierge.messages.failed"), slogError(err))
	}
	if m.recognitions, err = meter.Int64Counter("concierge.recognitions", metric.WithDescription("Recognition sessions by outcome")); err != nil {
		logger.Warn("failed to create counter", slog.String("name", "concierge.recognitions"), slogError(err))
	}
	if m.navigations, err = meter.Int64Counter("concierge.navigations", metric.WithDescription("Screen changes by destination and trigger")); err != nil {
		logger.Warn("failed to create counter", slog.String("name", "concierge.navigations"), slogError(err))
	}
	return m
}

func (m *metrics) messageSent(result string) {
	if m.sent != nil {
		m.sent.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
	}
	if result != "success" && m.failed != nil {
		m.failed.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

func (m *metrics) recognition(result string) {
	if m.recognitions != nil {
		m.recognitions.Add(context.Background(), 1, metric.WithAttributes(attribute.String("result", result)))
	}
}

func (m *metrics) navigation(dest, source string) {
	if m.navigations != nil {
		m.navigations.Add(context.Background(), 1, metric.WithAttributes(
			attribute.String("destination", dest),
			attribute.String("source", source)))
	}
}
