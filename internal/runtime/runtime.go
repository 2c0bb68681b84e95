package runtime

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/loqalabs/loqa-concierge/internal/api"
	"github.com/loqalabs/loqa-concierge/internal/bus"
	"github.com/loqalabs/loqa-concierge/internal/capability"
	"github.com/loqalabs/loqa-concierge/internal/config"
	"github.com/loqalabs/loqa-concierge/internal/eventstore"
	"github.com/loqalabs/loqa-concierge/internal/interaction"
	"github.com/loqalabs/loqa-concierge/internal/locale"
	"github.com/loqalabs/loqa-concierge/internal/natsserver"
	"github.com/loqalabs/loqa-concierge/internal/router"
	"github.com/loqalabs/loqa-concierge/internal/tts"
)

type Runtime struct {
	cfg        config.Config
	logger     *slog.Logger
	httpServer *http.Server
	ready      atomic.Bool
	wg         sync.WaitGroup

	telemetryClose func(context.Context) error
	natsServer     *natsserver.EmbeddedServer
	bus            *bus.Client
	store          *eventstore.Store
	speaker        *tts.Speaker
	sessions       *interaction.Manager
	router         *router.Service
}

func New(cfg config.Config, logger *slog.Logger) *Runtime {
	return &Runtime{
		cfg:    cfg,
		logger: logger,
	}
}

// Start brings up every component, serves HTTP until ctx is cancelled and
// then tears everything down in reverse order.
func (r *Runtime) Start(ctx context.Context) error {
	defer r.shutdown()

	shutdownTelemetry, metricsHandler, err := setupTelemetry(r.cfg, r.logger)
	if err != nil {
		return fmt.Errorf("failed to setup telemetry: %w", err)
	}
	r.telemetryClose = shutdownTelemetry

	mux, err := r.wire(ctx)
	if err != nil {
		return err
	}
	mux.HandleFunc("GET /healthz", r.handleHealth)
	mux.HandleFunc("GET /readyz", r.handleReady)
	if metricsHandler != nil {
		mux.Handle("GET /metrics", metricsHandler)
	}

	addr := fmt.Sprintf("%s:%d", r.cfg.HTTP.Bind, r.cfg.HTTP.Port)
	r.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	serveErr := make(chan error, 1)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		if err := r.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.logger.Error("http server failed", slogError(err))
			serveErr <- err
		}
	}()

	r.ready.Store(true)
	r.logger.Info("runtime started", slog.String("addr", addr))

	select {
	case <-ctx.Done():
	case err = <-serveErr:
	}
	r.ready.Store(false)
	r.logger.Info("runtime stopping")
	return err
}

func (r *Runtime) wire(ctx context.Context) (*http.ServeMux, error) {
	busCfg := r.cfg.Bus
	srv, err := natsserver.Start(busCfg, r.logger)
	if err != nil {
		return nil, err
	}
	r.natsServer = srv
	if srv != nil {
		busCfg.Servers = []string{srv.ClientURL()}
	}

	r.bus, err = bus.Connect(ctx, r.cfg.RuntimeName, busCfg, r.logger)
	if err != nil {
		return nil, err
	}

	r.store, err = eventstore.Open(ctx, r.cfg.EventStore, r.logger)
	if err != nil {
		return nil, err
	}

	registry := capability.NewRegistry(r.logger)
	registry.Register(capability.Recognition, r.cfg.STT.Enabled, true)
	registry.Register(capability.Synthesis, r.cfg.TTS.Enabled, false)

	source, err := buildSource(r.cfg.STT, r.bus, r.logger)
	if err != nil {
		return nil, err
	}
	sink, speaker, err := buildSink(r.cfg.TTS, r.bus, r.logger)
	if err != nil {
		return nil, err
	}
	r.speaker = speaker

	sender, err := buildGateway(r.cfg.Assistant, r.logger)
	if err != nil {
		return nil, err
	}
	interpreter, err := buildInterpreter(r.cfg.Keywords)
	if err != nil {
		return nil, err
	}

	lang, err := locale.Parse(r.cfg.Controller.DefaultLanguage)
	if err != nil {
		return nil, err
	}
	r.sessions = interaction.NewManager(interaction.Deps{
		Gateway:     sender,
		Source:      source,
		Sink:        sink,
		Interpreter: interpreter,
		Registry:    registry,
		Effects:     interaction.NewPublisher(r.bus, r.store, r.logger),
		Logger:      r.logger,
	}, interaction.Options{
		Language:  lang,
		Exclusive: r.cfg.Controller.ExclusiveOperations,
	}, r.cfg.Controller.MaxSessions)

	r.router = router.NewService(r.bus, r.sessions, r.logger)
	if err := r.router.Start(); err != nil {
		return nil, fmt.Errorf("start command router: %w", err)
	}

	opts := api.Options{Store: r.store, Bus: r.bus}
	weatherClient, err := buildWeather(r.cfg.Weather, r.logger)
	if err != nil {
		return nil, err
	}
	if weatherClient != nil {
		opts.Weather = weatherClient
	}

	mux := http.NewServeMux()
	api.New(r.sessions, opts, r.logger).Register(mux)
	return mux, nil
}

func (r *Runtime) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if r.httpServer != nil {
		if err := r.httpServer.Shutdown(shutdownCtx); err != nil {
			r.logger.Error("http shutdown error", slogError(err))
		}
	}
	r.wg.Wait()

	if r.router != nil {
		r.router.Close()
	}
	if r.sessions != nil {
		r.sessions.Close()
	}
	if r.speaker != nil {
		r.speaker.Close()
	}
	if r.store != nil {
		if err := r.store.Close(); err != nil {
			r.logger.Error("event store close error", slogError(err))
		}
	}
	if r.bus != nil {
		r.bus.Close()
	}
	if r.natsServer != nil {
		r.natsServer.Shutdown()
	}
	if r.telemetryClose != nil {
		if err := r.telemetryClose(shutdownCtx); err != nil {
			r.logger.Error("telemetry shutdown error", slogError(err))
		}
	}
}

func (r *Runtime) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (r *Runtime) handleReady(w http.ResponseWriter, _ *http.Request) {
	if r.ready.Load() && r.bus.Healthy() && r.router.Healthy() {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
		return
	}
	w.WriteHeader(http.StatusServiceUnavailable)
	_, _ = w.Write([]byte("not ready"))
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
