package tts

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loqalabs/loqa-concierge/internal/bus/bustest"
	"github.com/loqalabs/loqa-concierge/internal/locale"
	"github.com/loqalabs/loqa-concierge/internal/protocol"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNoOpNeverFails(t *testing.T) {
	sink := NewNoOp(newLogger())
	require.NoError(t, sink.Speak(context.Background(), Utterance{Text: "안녕하세요", Language: locale.Korean}))
}

func TestSpeakerPublishesChunksAndCompletion(t *testing.T) {
	client := bustest.New(t)
	audio := make(chan *nats.Msg, 4)
	done := make(chan *nats.Msg, 1)
	subAudio, err := client.Conn().ChanSubscribe(protocol.SubjectTTSAudio, audio)
	require.NoError(t, err)
	defer subAudio.Unsubscribe()
	subDone, err := client.Conn().ChanSubscribe(protocol.SubjectTTSDone, done)
	require.NoError(t, err)
	defer subDone.Unsubscribe()
	require.NoError(t, client.Conn().Flush())

	speaker := NewSpeaker(NewMockSynth(22050, 1), client, 0.5, newLogger())
	require.NoError(t, speaker.Speak(context.Background(), Utterance{SessionID: "s1", Text: "Hello", Language: locale.English}))

	select {
	case msg := <-audio:
		var chunk protocol.AudioChunk
		require.NoError(t, json.Unmarshal(msg.Data, &chunk))
		assert.Equal(t, "s1", chunk.SessionID)
		assert.Equal(t, "en-US", chunk.Language)
		assert.True(t, chunk.Final)
	case <-time.After(2 * time.Second):
		t.Fatal("no audio chunk published")
	}

	select {
	case msg := <-done:
		var status protocol.TTSStatus
		require.NoError(t, json.Unmarshal(msg.Data, &status))
		assert.True(t, status.Completed)
	case <-time.After(2 * time.Second):
		t.Fatal("no completion published")
	}
	speaker.Close()
}

func TestSpeakerRejectsAfterClose(t *testing.T) {
	client := bustest.New(t)
	speaker := NewSpeaker(NewMockSynth(22050, 1), client, 0.5, newLogger())
	speaker.Close()
	assert.ErrorIs(t, speaker.Speak(context.Background(), Utterance{Text: "late"}), ErrClosed)
	assert.NoError(t, speaker.Speak(context.Background(), Utterance{Text: "   "}), "blank text is ignored")
}

func TestNewExecSynthRejectsEmptyCommand(t *testing.T) {
	_, err := NewExecSynth("", 22050, 1)
	assert.Error(t, err)
}
