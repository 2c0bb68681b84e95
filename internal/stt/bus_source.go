package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-concierge/internal/bus"
	"github.com/loqalabs/loqa-concierge/internal/config"
	"github.com/loqalabs/loqa-concierge/internal/protocol"
)

// BusSource records from whichever edge device streams PCM frames for the
// capture over the bus, then hands the audio to a Recognizer.
type BusSource struct {
	cfg        config.STTConfig
	bus        *bus.Client
	recognizer Recognizer
	logger     *slog.Logger
}

func NewBusSource(cfg config.STTConfig, busClient *bus.Client, recognizer Recognizer, logger *slog.Logger) *BusSource {
	return &BusSource{
		cfg:        cfg,
		bus:        busClient,
		recognizer: recognizer,
		logger:     logger.With(slog.String("component", "stt-source")),
	}
}

func (s *BusSource) Open(ctx context.Context, req Request) (Capture, error) {
	ctx, cancel := context.WithCancel(ctx)
	c := &busCapture{
		id:       uuid.NewString(),
		src:      s,
		req:      req,
		result:   make(chan Result, 1),
		finalize: make(chan struct{}),
		done:     make(chan struct{}),
		cancel:   cancel,
	}

	sub, err := s.bus.Conn().Subscribe(protocol.AudioFrameSubject(c.id), c.handleFrame)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribe audio frames: %w", err)
	}
	c.sub = sub

	announce := protocol.CaptureOpen{
		CaptureID:  c.id,
		SessionID:  req.SessionID,
		Language:   req.Language.String(),
		SampleRate: s.cfg.SampleRate,
		Channels:   s.cfg.Channels,
		Timestamp:  time.Now().UTC(),
	}
	if err := s.bus.PublishJSON(protocol.SubjectCaptureOpen, announce); err != nil {
		_ = sub.Unsubscribe()
		cancel()
		return nil, fmt.Errorf("announce capture: %w", err)
	}

	go c.run(ctx)
	return c, nil
}

type busCapture struct {
	id       string
	src      *BusSource
	req      Request
	sub      *nats.Subscription
	mu       sync.Mutex
	buffer   []byte
	result   chan Result
	finalize chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	cancel   context.CancelFunc
}

func (c *busCapture) handleFrame(msg *nats.Msg) {
	var frame protocol.AudioFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		c.src.logger.Warn("failed to decode audio frame", slogError(err))
		return
	}

	c.mu.Lock()
	c.buffer = append(c.buffer, frame.PCM...)
	c.mu.Unlock()

	if frame.Final {
		c.Stop()
	}
}

func (c *busCapture) run(ctx context.Context) {
	defer close(c.done)
	defer close(c.result)

	maxCapture := time.Duration(c.src.cfg.MaxCaptureMS) * time.Millisecond
	if maxCapture <= 0 {
		maxCapture = 15 * time.Second
	}
	timer := time.NewTimer(maxCapture)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		_ = c.sub.Unsubscribe()
		c.result <- Result{Err: ctx.Err()}
		return
	case <-c.finalize:
	case <-timer.C:
		c.src.logger.Info("capture reached max duration", slog.String("capture_id", c.id))
	}
	_ = c.sub.Unsubscribe()

	c.mu.Lock()
	pcm := append([]byte(nil), c.buffer...)
	c.mu.Unlock()

	if len(pcm) == 0 {
		c.result <- Result{Err: ErrNoSpeech}
		return
	}

	tctx, cancel := context.WithTimeout(ctx, 45*time.Second)
	defer cancel()

	transcript, err := c.src.recognizer.Transcribe(tctx, pcm, c.src.cfg.SampleRate, c.src.cfg.Channels, c.req.Language)
	if err != nil {
		c.result <- Result{Err: fmt.Errorf("transcribe capture %s: %w", c.id, err)}
		return
	}
	c.result <- Result{Text: transcript.Text, Confidence: transcript.Confidence}
}

func (c *busCapture) Result() <-chan Result { return c.result }

func (c *busCapture) Stop() {
	c.stopOnce.Do(func() { close(c.finalize) })
}

func (c *busCapture) Close() error {
	c.cancel()
	<-c.done
	return nil
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
