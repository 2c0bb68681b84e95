package stt

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loqalabs/loqa-concierge/internal/locale"
)

var (
	// ErrUnsupported means no recognition capability exists in this process.
	ErrUnsupported = errors.New("speech recognition unsupported")
	// ErrNoSpeech means the capture finished without any audio.
	ErrNoSpeech = errors.New("no speech captured")
)

// Request opens one recognition session.
type Request struct {
	SessionID string
	Language  locale.Tag
}

// Result is the single terminal event of a capture: a transcript or an error.
type Result struct {
	Text       string
	Confidence float64
	Err        error
}

// Capture is one open recognition session.
type Capture interface {
	// Result delivers exactly one Result and is then closed.
	Result() <-chan Result
	// Stop asks the capture to finalize with what it has heard so far.
	Stop()
	// Close releases the capture. It is safe to call after the result arrived.
	Close() error
}

// Source opens recognition sessions.
type Source interface {
	Open(ctx context.Context, req Request) (Capture, error)
}

type unsupportedSource struct{}

// Unsupported is the Source used when recognition is disabled.
func Unsupported() Source { return unsupportedSource{} }

func (unsupportedSource) Open(context.Context, Request) (Capture, error) {
	return nil, ErrUnsupported
}

// ScriptedSource answers every capture with a fixed transcript after a delay,
// or immediately when stopped. It backs stt.mode=scripted.
type ScriptedSource struct {
	Text  string
	Delay time.Duration
}

func NewScriptedSource(text string, delay time.Duration) *ScriptedSource {
	return &ScriptedSource{Text: text, Delay: delay}
}

func (s *ScriptedSource) Open(ctx context.Context, req Request) (Capture, error) {
	ctx, cancel := context.WithCancel(ctx)
	c := &scriptedCapture{
		result: make(chan Result, 1),
		stop:   make(chan struct{}),
		cancel: cancel,
	}
	go c.run(ctx, s.Text, s.Delay)
	return c, nil
}

type scriptedCapture struct {
	result   chan Result
	stop     chan struct{}
	stopOnce sync.Once
	cancel   context.CancelFunc
}

func (c *scriptedCapture) run(ctx context.Context, text string, delay time.Duration) {
	defer close(c.result)
	timer := time.NewTimer(delay)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		c.result <- Result{Err: ctx.Err()}
		return
	case <-c.stop:
	case <-timer.C:
	}
	if text == "" {
		c.result <- Result{Err: ErrNoSpeech}
		return
	}
	c.result <- Result{Text: text, Confidence: 1}
}

func (c *scriptedCapture) Result() <-chan Result { return c.result }

func (c *scriptedCapture) Stop() {
	c.stopOnce.Do(func() { close(c.stop) })
}

func (c *scriptedCapture) Close() error {
	c.cancel()
	return nil
}
