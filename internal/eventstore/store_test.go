package eventstore

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/loqalabs/loqa-concierge/internal/config"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestOpenEphemeral(t *testing.T) {
	ctx := context.Background()
	cfg := config.EventStoreConfig{RetentionMode: "ephemeral"}
	es, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })
	if err := es.AppendEvent(ctx, Event{SessionID: "s", Type: TypeTranscript}); err != nil {
		t.Fatalf("append on ephemeral store: %v", err)
	}
	events, err := es.ListSessionEvents(ctx, "s", 10)
	if err != nil || events != nil {
		t.Fatalf("expected no events, got %v %v", events, err)
	}
}

func TestAppendAndQuery(t *testing.T) {
	tmp := t.TempDir()
	cfg := config.EventStoreConfig{Path: filepath.Join(tmp, "events.db"), RetentionMode: "session"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	sessionID := "session-123"
	if err := es.AppendSession(context.Background(), sessionID, "ko-KR"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.AppendEvent(context.Background(), Event{SessionID: sessionID, Type: TypeMessageSent, Payload: []byte("hello")}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := es.AppendEvent(context.Background(), Event{SessionID: sessionID, Type: TypeReplyReceived, Payload: []byte("hi")}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	events, err := es.ListSessionEvents(context.Background(), sessionID, 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if string(events[0].Payload) != "hello" || events[1].Type != TypeReplyReceived {
		t.Fatalf("unexpected events: %+v", events)
	}
}

func TestDeleteSessionDropsTimeline(t *testing.T) {
	cfg := config.EventStoreConfig{Path: filepath.Join(t.TempDir(), "events.db"), RetentionMode: "session"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	ctx := context.Background()
	if err := es.AppendSession(ctx, "gone", "en-US"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{SessionID: "gone", Type: TypeNavigation}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	if err := es.DeleteSession(ctx, "gone"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	events, err := es.ListSessionEvents(ctx, "gone", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected timeline removed, got %d events", len(events))
	}
}

func TestOpenWipesPreviousRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.db")
	cfg := config.EventStoreConfig{Path: path, RetentionMode: "session"}
	ctx := context.Background()

	first, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.AppendSession(ctx, "old", "ko-KR"); err != nil {
		t.Fatalf("append session: %v", err)
	}
	if err := first.AppendEvent(ctx, Event{SessionID: "old", Type: TypeTranscript}); err != nil {
		t.Fatalf("append event: %v", err)
	}
	_ = first.Close()

	second, err := Open(ctx, cfg, newLogger())
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { _ = second.Close() })
	events, err := second.ListSessionEvents(ctx, "old", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected history from previous run to be gone")
	}
}

func TestDeleteSessionLeavesOthers(t *testing.T) {
	cfg := config.EventStoreConfig{Path: filepath.Join(t.TempDir(), "events.db"), RetentionMode: "session"}
	es, err := Open(context.Background(), cfg, newLogger())
	if err != nil {
		t.Fatalf("open event store: %v", err)
	}
	t.Cleanup(func() { _ = es.Close() })

	ctx := context.Background()
	es.clock = func() time.Time { return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC) }
	for _, id := range []string{"first", "second"} {
		if err := es.AppendSession(ctx, id, "ko-KR"); err != nil {
			t.Fatalf("append session: %v", err)
		}
		if err := es.AppendEvent(ctx, Event{SessionID: id, Type: TypeTranscript}); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}

	if err := es.DeleteSession(ctx, "second"); err != nil {
		t.Fatalf("delete session: %v", err)
	}
	if err := es.AppendEvent(ctx, Event{SessionID: "first", Type: TypeNavigation}); err != nil {
		t.Fatalf("append after delete: %v", err)
	}

	events, err := es.ListSessionEvents(ctx, "first", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected first session to keep 2 events, got %d", len(events))
	}
	events, err = es.ListSessionEvents(ctx, "second", 10)
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected deleted session timeline to be gone, got %d", len(events))
	}
}
