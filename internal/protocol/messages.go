package protocol

import (
	"strings"
	"time"
)

// AudioFrame represents PCM audio data streamed from edge devices into an open capture.
type AudioFrame struct {
	CaptureID  string `json:"capture_id"`
	Sequence   int    `json:"sequence"`
	SampleRate int    `json:"sample_rate"`
	Channels   int    `json:"channels"`
	PCM        []byte `json:"pcm"`
	Final      bool   `json:"final"`
}

// CaptureOpen announces a recognition session so the microphone owner knows
// which subject to stream frames to.
type CaptureOpen struct {
	CaptureID  string    `json:"capture_id"`
	SessionID  string    `json:"session_id"`
	Language   string    `json:"language"`
	SampleRate int       `json:"sample_rate"`
	Channels   int       `json:"channels"`
	Timestamp  time.Time `json:"timestamp"`
}

// AudioChunk carries synthesized speech to playback targets.
type AudioChunk struct {
	SessionID   string `json:"session_id"`
	UtteranceID string `json:"utterance_id"`
	Language    string `json:"language"`
	SampleRate  int    `json:"sample_rate"`
	Channels    int    `json:"channels"`
	Sequence    int    `json:"sequence"`
	PCM         []byte `json:"pcm"`
	Final       bool   `json:"final"`
}

type TTSStatus struct {
	SessionID   string    `json:"session_id"`
	UtteranceID string    `json:"utterance_id"`
	Completed   bool      `json:"completed"`
	Error       string    `json:"error,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// SessionState is the UI-facing view of an interaction session.
type SessionState struct {
	SessionID    string    `json:"session_id"`
	Message      string    `json:"message"`
	LastResponse *string   `json:"last_response"`
	Recording    bool      `json:"recording"`
	Language     string    `json:"language"`
	Screen       string    `json:"screen"`
	Timestamp    time.Time `json:"timestamp"`
}

type Navigation struct {
	SessionID   string    `json:"session_id"`
	Destination string    `json:"destination"`
	Source      string    `json:"source"`
	Timestamp   time.Time `json:"timestamp"`
}

// SessionClosed is the last event published for an unmounted session.
type SessionClosed struct {
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// SessionCommand drives a session from a remote client.
type SessionCommand struct {
	Action   string `json:"action"`
	Text     string `json:"text,omitempty"`
	Language string `json:"language,omitempty"`
}

type CommandAck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

const (
	ActionMessage  = "message"
	ActionSend     = "send"
	ActionListen   = "listen"
	ActionStop     = "stop"
	ActionLanguage = "language"
)

// Kinds of outbound session events.
const (
	EventState      = "state"
	EventNavigation = "navigation"
	EventClosed     = "closed"
)

const (
	SubjectAudioFramePrefix = "audio.frame"
	SubjectCaptureOpen      = "stt.capture.open"
	SubjectTTSAudio         = "tts.audio"
	SubjectTTSDone          = "tts.done"
	SubjectSessionPrefix    = "concierge.session"
)

func AudioFrameSubject(captureID string) string {
	return SubjectAudioFramePrefix + "." + captureID
}

// SessionCommandSubject is where clients publish commands for one session.
// Use "*" as id to subscribe to every session.
func SessionCommandSubject(sessionID string) string {
	return SubjectSessionPrefix + "." + sessionID + ".command"
}

// SessionEventSubject addresses one kind of outbound session event
// (EventState, EventNavigation, EventClosed); ">" matches every kind.
func SessionEventSubject(sessionID, kind string) string {
	return SubjectSessionPrefix + "." + sessionID + ".event." + kind
}

// SessionIDFromSubject extracts the id from a session command or event subject.
func SessionIDFromSubject(subject string) string {
	rest, ok := strings.CutPrefix(subject, SubjectSessionPrefix+".")
	if !ok {
		return ""
	}
	id, _, _ := strings.Cut(rest, ".")
	return id
}
