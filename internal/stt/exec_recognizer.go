package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/mattn/go-shellwords"

	"github.com/loqalabs/loqa-concierge/internal/config"
	"github.com/loqalabs/loqa-concierge/internal/locale"
)

// Placeholders substituted into the recognizer command line. Any placeholder
// the command does not mention is appended as a flag instead.
const (
	audioPlaceholder    = "{audio}"
	modelPlaceholder    = "{model}"
	languagePlaceholder = "{language}"
)

// execRecognizer runs a local recognizer (a whisper.cpp wrapper, say) on a
// WAV file per capture and reads {"text","confidence"} from its stdout.
type execRecognizer struct {
	argv  []string
	model string
	mu    sync.Mutex
}

type execTranscript struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func NewExecRecognizer(cfg config.STTConfig) (Recognizer, error) {
	argv, err := shellwords.Parse(cfg.Command)
	if err != nil {
		return nil, fmt.Errorf("parse stt command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("stt command is empty")
	}
	return &execRecognizer{argv: argv, model: cfg.ModelPath}, nil
}

func (r *execRecognizer) Transcribe(ctx context.Context, pcm []byte, sampleRate int, channels int, lang locale.Tag) (TranscriptResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	file, err := os.CreateTemp("", "concierge_stt_*.wav")
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("create capture file: %w", err)
	}
	defer os.Remove(file.Name())
	err = encodeWAV(file, pcm, sampleRate, channels)
	if cerr := file.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return TranscriptResult{}, err
	}

	argv := r.commandLine(file.Name(), lang)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return TranscriptResult{}, fmt.Errorf("stt command: %w: %s", err, bytes.TrimSpace(stderr.Bytes()))
	}

	var out execTranscript
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return TranscriptResult{}, fmt.Errorf("decode stt output: %w", err)
	}
	return TranscriptResult{Text: strings.TrimSpace(out.Text), Confidence: out.Confidence}, nil
}

func (r *execRecognizer) commandLine(audioPath string, lang locale.Tag) []string {
	values := map[string]string{
		audioPlaceholder:    audioPath,
		modelPlaceholder:    r.model,
		languagePlaceholder: lang.Base(),
	}
	used := make(map[string]bool, len(values))
	argv := make([]string, 0, len(r.argv)+6)
	for _, arg := range r.argv {
		for placeholder, value := range values {
			if strings.Contains(arg, placeholder) {
				arg = strings.ReplaceAll(arg, placeholder, value)
				used[placeholder] = true
			}
		}
		argv = append(argv, arg)
	}
	if !used[audioPlaceholder] {
		argv = append(argv, "--audio", audioPath)
	}
	if !used[modelPlaceholder] && r.model != "" {
		argv = append(argv, "--model", r.model)
	}
	if !used[languagePlaceholder] && lang != "" {
		argv = append(argv, "--language", lang.Base())
	}
	return argv
}
