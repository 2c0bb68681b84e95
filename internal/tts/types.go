package tts

import (
	"context"

	"github.com/loqalabs/loqa-concierge/internal/locale"
)

// SynthRequest is one utterance handed to a Synthesizer.
type SynthRequest struct {
	UtteranceID string
	Text        string
	Language    locale.Tag
	Rate        float64
}

// SynthChunk is a slice of 16-bit little-endian PCM for an utterance.
type SynthChunk struct {
	UtteranceID string
	Sequence    int
	SampleRate  int
	Channels    int
	PCM         []byte
	Final       bool
}

// Synthesizer streams the audio for a request. The chunk channel closes when
// synthesis ends; at most one error is sent on the error channel.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error)
}
