package tts

import (
	"context"
	"time"
	"unicode/utf8"
)

// mockSynth produces silence, 10ms per character, after a short delay.
type mockSynth struct {
	sampleRate int
	channels   int
}

func NewMockSynth(sampleRate, channels int) Synthesizer {
	return &mockSynth{sampleRate: sampleRate, channels: channels}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk, 1)
	errs := make(chan error, 1)
	go func() {
		defer close(chunks)
		defer close(errs)
		select {
		case <-ctx.Done():
			errs <- ctx.Err()
			return
		case <-time.After(20 * time.Millisecond):
		}
		samples := utf8.RuneCountInString(req.Text) * m.sampleRate / 100
		chunks <- SynthChunk{
			UtteranceID: req.UtteranceID,
			SampleRate:  m.sampleRate,
			Channels:    m.channels,
			PCM:         make([]byte, samples*m.channels*2),
			Final:       true,
		}
	}()
	return chunks, errs
}
