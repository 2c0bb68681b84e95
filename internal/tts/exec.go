package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/mattn/go-shellwords"
)

// commandSynth runs a local TTS program once per utterance. The program gets
// a JSON request on stdin and answers with a stream of JSON chunk objects on
// stdout; PCM travels base64-encoded as []byte does in encoding/json.
type commandSynth struct {
	argv       []string
	sampleRate int
	channels   int
	// serializes utterances
	mu sync.Mutex
}

type commandRequest struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Rate       float64 `json:"rate"`
	SampleRate int     `json:"sample_rate"`
	Channels   int     `json:"channels"`
}

type commandChunk struct {
	PCM   []byte `json:"pcm_base64"`
	Final bool   `json:"final"`
}

func NewExecSynth(command string, sampleRate, channels int) (Synthesizer, error) {
	argv, err := shellwords.Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse tts command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("tts command is empty")
	}
	return &commandSynth{argv: argv, sampleRate: sampleRate, channels: channels}, nil
}

func (s *commandSynth) Synthesize(ctx context.Context, req SynthRequest) (<-chan SynthChunk, <-chan error) {
	chunks := make(chan SynthChunk)
	errs := make(chan error, 1)
	go func() {
		defer close(errs)
		defer close(chunks)
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.run(ctx, req, chunks); err != nil {
			errs <- err
		}
	}()
	return chunks, errs
}

func (s *commandSynth) run(ctx context.Context, req SynthRequest, out chan<- SynthChunk) error {
	payload, err := json.Marshal(commandRequest{
		Text:       req.Text,
		Language:   req.Language.String(),
		Rate:       req.Rate,
		SampleRate: s.sampleRate,
		Channels:   s.channels,
	})
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, s.argv[0], s.argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start tts command: %w", err)
	}

	streamErr := s.stream(ctx, req.UtteranceID, stdout, out)
	if streamErr != nil {
		// unblock the child if it is still writing
		_, _ = io.Copy(io.Discard, stdout)
	}
	waitErr := cmd.Wait()
	switch {
	case streamErr != nil:
		return streamErr
	case waitErr != nil:
		return fmt.Errorf("tts command: %w: %s", waitErr, bytes.TrimSpace(stderr.Bytes()))
	}
	return nil
}

func (s *commandSynth) stream(ctx context.Context, utteranceID string, r io.Reader, out chan<- SynthChunk) error {
	dec := json.NewDecoder(r)
	for seq := 0; ; seq++ {
		var c commandChunk
		if err := dec.Decode(&c); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("decode tts chunk %d: %w", seq, err)
		}
		chunk := SynthChunk{
			UtteranceID: utteranceID,
			Sequence:    seq,
			SampleRate:  s.sampleRate,
			Channels:    s.channels,
			PCM:         c.PCM,
			Final:       c.Final,
		}
		select {
		case out <- chunk:
		case <-ctx.Done():
			return ctx.Err()
		}
		if c.Final {
			return nil
		}
	}
}
