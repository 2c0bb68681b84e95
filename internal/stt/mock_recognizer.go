package stt

import (
	"context"
	"fmt"

	"github.com/loqalabs/loqa-concierge/internal/locale"
)

type mockRecognizer struct {
	text string
}

// NewMockRecognizer returns text for every capture, or a length marker when text is empty.
func NewMockRecognizer(text string) Recognizer {
	return &mockRecognizer{text: text}
}

func (m *mockRecognizer) Transcribe(_ context.Context, pcm []byte, _ int, _ int, lang locale.Tag) (TranscriptResult, error) {
	if m.text != "" {
		return TranscriptResult{Text: m.text, Confidence: 1}, nil
	}
	return TranscriptResult{
		Text:       fmt.Sprintf("[%s transcript length=%d]", lang, len(pcm)),
		Confidence: 0,
	}, nil
}
