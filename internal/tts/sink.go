package tts

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loqalabs/loqa-concierge/internal/bus"
	"github.com/loqalabs/loqa-concierge/internal/locale"
	"github.com/loqalabs/loqa-concierge/internal/protocol"
)

// ErrClosed is returned by Speak after the speaker shut down.
var ErrClosed = errors.New("speaker closed")

// Utterance is one request to speak text aloud.
type Utterance struct {
	SessionID string
	Text      string
	Language  locale.Tag
}

// Sink speaks text. Speak returns once playback has been requested; it does
// not wait for the audio to finish.
type Sink interface {
	Speak(ctx context.Context, u Utterance) error
}

// NoOp is the sink used when no synthesis capability exists. It never fails.
type NoOp struct {
	logger *slog.Logger
}

func NewNoOp(logger *slog.Logger) *NoOp {
	return &NoOp{logger: logger.With(slog.String("component", "tts-noop"))}
}

func (n *NoOp) Speak(_ context.Context, u Utterance) error {
	n.logger.Info("speech output unsupported, skipping utterance",
		slog.String("session_id", u.SessionID),
		slog.Int("chars", len(u.Text)))
	return nil
}

// Speaker synthesizes utterances at a fixed rate and publishes the PCM
// chunks for playback targets on the bus.
type Speaker struct {
	synth  Synthesizer
	bus    *bus.Client
	rate   float64
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewSpeaker(synth Synthesizer, busClient *bus.Client, rate float64, logger *slog.Logger) *Speaker {
	return &Speaker{
		synth:  synth,
		bus:    busClient,
		rate:   rate,
		logger: logger.With(slog.String("component", "tts-speaker")),
	}
}

func (s *Speaker) Speak(ctx context.Context, u Utterance) error {
	if strings.TrimSpace(u.Text) == "" {
		return nil
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	s.wg.Add(1)
	s.mu.Unlock()

	req := SynthRequest{
		UtteranceID: uuid.NewString(),
		Text:        u.Text,
		Language:    u.Language,
		Rate:        s.rate,
	}
	go func() {
		defer s.wg.Done()
		s.play(ctx, u, req)
	}()
	return nil
}

func (s *Speaker) play(parent context.Context, u Utterance, req SynthRequest) {
	ctx, cancel := context.WithTimeout(parent, 45*time.Second)
	defer cancel()

	chunks, errs := s.synth.Synthesize(ctx, req)
	sequence := 0
	var synthErr error
	for chunks != nil || errs != nil {
		select {
		case chunk, ok := <-chunks:
			if !ok {
				chunks = nil
				continue
			}
			chunk.Sequence = sequence
			sequence++
			s.publishChunk(u, chunk)
		case err, ok := <-errs:
			if ok && err != nil {
				synthErr = err
				s.logger.Warn("tts synthesis error", slogError(err))
			}
			errs = nil
		case <-ctx.Done():
			s.logger.Warn("tts synthesis cancelled", slogError(ctx.Err()))
			s.publishStatus(u, req.UtteranceID, ctx.Err())
			return
		}
	}
	s.publishStatus(u, req.UtteranceID, synthErr)
}

func (s *Speaker) publishChunk(u Utterance, chunk SynthChunk) {
	packet := protocol.AudioChunk{
		SessionID:   u.SessionID,
		UtteranceID: chunk.UtteranceID,
		Language:    u.Language.String(),
		SampleRate:  chunk.SampleRate,
		Channels:    chunk.Channels,
		Sequence:    chunk.Sequence,
		PCM:         chunk.PCM,
		Final:       chunk.Final,
	}
	if err := s.bus.PublishJSON(protocol.SubjectTTSAudio, packet); err != nil {
		s.logger.Warn("failed to publish tts chunk", slogError(err))
	}
}

func (s *Speaker) publishStatus(u Utterance, utteranceID string, err error) {
	status := protocol.TTSStatus{
		SessionID:   u.SessionID,
		UtteranceID: utteranceID,
		Completed:   err == nil,
		Timestamp:   time.Now().UTC(),
	}
	if err != nil {
		status.Error = err.Error()
	}
	if err := s.bus.PublishJSON(protocol.SubjectTTSDone, status); err != nil {
		s.logger.Warn("failed to publish tts status", slogError(err))
	}
}

// Close rejects new utterances and waits for in-flight playback requests.
func (s *Speaker) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.wg.Wait()
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
