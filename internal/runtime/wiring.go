package runtime

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-concierge/internal/bus"
	"github.com/loqalabs/loqa-concierge/internal/config"
	"github.com/loqalabs/loqa-concierge/internal/gateway"
	"github.com/loqalabs/loqa-concierge/internal/httpclient"
	"github.com/loqalabs/loqa-concierge/internal/intent"
	"github.com/loqalabs/loqa-concierge/internal/stt"
	"github.com/loqalabs/loqa-concierge/internal/tts"
	"github.com/loqalabs/loqa-concierge/internal/weather"
)

func buildSource(cfg config.STTConfig, busClient *bus.Client, logger *slog.Logger) (stt.Source, error) {
	if !cfg.Enabled {
		return stt.Unsupported(), nil
	}
	switch cfg.Mode {
	case "scripted":
		return stt.NewScriptedSource(cfg.MockTranscript, time.Duration(cfg.MockDelayMS)*time.Millisecond), nil
	case "mock":
		return stt.NewBusSource(cfg, busClient, stt.NewMockRecognizer(cfg.MockTranscript), logger), nil
	case "exec":
		recognizer, err := stt.NewExecRecognizer(cfg)
		if err != nil {
			return nil, err
		}
		return stt.NewBusSource(cfg, busClient, recognizer, logger), nil
	default:
		return nil, fmt.Errorf("unsupported stt mode %q", cfg.Mode)
	}
}

// buildSink returns the speech sink and, when synthesis is enabled, the
// Speaker so it can be drained on shutdown.
func buildSink(cfg config.TTSConfig, busClient *bus.Client, logger *slog.Logger) (tts.Sink, *tts.Speaker, error) {
	if !cfg.Enabled {
		return tts.NewNoOp(logger), nil, nil
	}
	var synth tts.Synthesizer
	switch cfg.Mode {
	case "mock":
		synth = tts.NewMockSynth(cfg.SampleRate, cfg.Channels)
	case "exec":
		s, err := tts.NewExecSynth(cfg.Command, cfg.SampleRate, cfg.Channels)
		if err != nil {
			return nil, nil, err
		}
		synth = s
	default:
		return nil, nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
	speaker := tts.NewSpeaker(synth, busClient, cfg.Rate, logger)
	return speaker, speaker, nil
}

func buildGateway(cfg config.AssistantConfig, logger *slog.Logger) (gateway.Sender, error) {
	httpClient, err := httpclient.New(time.Duration(cfg.TimeoutMS)*time.Millisecond, cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("assistant http client: %w", err)
	}
	client, err := gateway.New(cfg.Endpoint, httpClient, logger)
	if err != nil {
		return nil, err
	}
	return gateway.WithRetry(client, gateway.RetryPolicy{
		MaxAttempts:     cfg.Retry.MaxAttempts,
		InitialInterval: time.Duration(cfg.Retry.InitialIntervalMS) * time.Millisecond,
		MaxInterval:     time.Duration(cfg.Retry.MaxIntervalMS) * time.Millisecond,
	}, logger), nil
}

func buildInterpreter(cfg config.KeywordsConfig) (intent.Interpreter, error) {
	table := intent.DefaultTable()
	if cfg.Path != "" {
		custom, err := intent.LoadTable(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("load keywords %s: %w", cfg.Path, err)
		}
		table = table.Override(custom)
	}
	return intent.NewKeywordMatcher(table), nil
}

// buildWeather returns nil when weather lookups are disabled.
func buildWeather(cfg config.WeatherConfig, logger *slog.Logger) (*weather.Client, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if cfg.Endpoint == "" {
		return nil, errors.New("weather.endpoint must be set when weather is enabled")
	}
	httpClient, err := httpclient.New(time.Duration(cfg.TimeoutMS)*time.Millisecond, cfg.Proxy)
	if err != nil {
		return nil, fmt.Errorf("weather http client: %w", err)
	}
	locator := weather.StaticLocator{Latitude: cfg.Latitude, Longitude: cfg.Longitude}
	return weather.New(cfg.Endpoint, httpClient, locator, weather.Options{
		CacheSize: cfg.CacheSize,
		CacheTTL:  time.Duration(cfg.CacheTTLSeconds) * time.Second,
		Locator:   weather.DefaultLocatorOptions(),
	}, logger)
}
