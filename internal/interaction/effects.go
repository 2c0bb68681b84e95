package interaction

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/loqalabs/loqa-concierge/internal/bus"
	"github.com/loqalabs/loqa-concierge/internal/eventstore"
	"github.com/loqalabs/loqa-concierge/internal/intent"
	"github.com/loqalabs/loqa-concierge/internal/protocol"
)

// Navigation sources.
const (
	SourceTranscript = "transcript"
	SourceReply      = "reply"
	SourceUI         = "ui"
)

// Effects receives everything a session does that the outside world should
// see. Calls happen outside the session lock and may arrive from any goroutine.
type Effects interface {
	Mounted(s Snapshot)
	Unmounted(sessionID string)
	SessionChanged(s Snapshot)
	Navigated(sessionID string, to intent.Intent, source string)
	Record(sessionID, eventType string, payload any)
}

type nopEffects struct{}

func (nopEffects) Mounted(Snapshot) {}
func (nopEffects) Unmounted(string) {}
func (nopEffects) SessionChanged(Snapshot) {}
func (nopEffects) Navigated(string, intent.Intent, string) {}
func (nopEffects) Record(string, string, any) {}

const storeTimeout = 2 * time.Second

// Publisher fans session effects out to the bus and the event store. Either
// may be nil.
type Publisher struct {
	bus    *bus.Client
	store  *eventstore.Store
	logger *slog.Logger
}

func NewPublisher(busClient *bus.Client, store *eventstore.Store, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:    busClient,
		store:  store,
		logger: logger.With(slog.String("component", "session-publisher")),
	}
}

func (p *Publisher) Mounted(s Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if p.store != nil {
		if err := p.store.AppendSession(ctx, s.ID, s.Language.String()); err != nil {
			p.logger.Warn("failed to record session", slog.String("session_id", s.ID), slogError(err))
		}
	}
	p.Record(s.ID, eventstore.TypeSessionMounted, map[string]string{"language": s.Language.String()})
	p.SessionChanged(s)
}

func (p *Publisher) Unmounted(sessionID string) {
	p.publish(protocol.SessionEventSubject(sessionID, protocol.EventClosed), protocol.SessionClosed{
		SessionID: sessionID,
		Timestamp: time.Now().UTC(),
	})
	if p.store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := p.store.DeleteSession(ctx, sessionID); err != nil {
		p.logger.Warn("failed to drop session timeline", slog.String("session_id", sessionID), slogError(err))
	}
}

func (p *Publisher) SessionChanged(s Snapshot) {
	p.publish(protocol.SessionEventSubject(s.ID, protocol.EventState), protocol.SessionState{
		SessionID:    s.ID,
		Message:      s.CurrentMessage,
		LastResponse: s.LastResponse,
		Recording:    s.IsRecording,
		Language:     s.Language.String(),
		Screen:       s.Screen.String(),
		Timestamp:    time.Now().UTC(),
	})
}

func (p *Publisher) Navigated(sessionID string, to intent.Intent, source string) {
	p.publish(protocol.SessionEventSubject(sessionID, protocol.EventNavigation), protocol.Navigation{
		SessionID:   sessionID,
		Destination: to.String(),
		Source:      source,
		Timestamp:   time.Now().UTC(),
	})
	p.Record(sessionID, eventstore.TypeNavigation, map[string]string{"destination": to.String(), "source": source})
}

func (p *Publisher) Record(sessionID, eventType string, payload any) {
	if p.store == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("failed to encode event payload", slog.String("type", eventType), slogError(err))
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
	defer cancel()
	if err := p.store.AppendEvent(ctx, eventstore.Event{SessionID: sessionID, Type: eventType, Payload: data}); err != nil {
		p.logger.Warn("failed to append event",
			slog.String("session_id", sessionID),
			slog.String("type", eventType),
			slogError(err))
	}
}

func (p *Publisher) publish(subject string, v any) {
	if p.bus == nil {
		return
	}
	if err := p.bus.PublishJSON(subject, v); err != nil {
		p.logger.Warn("failed to publish session event", slog.String("subject", subject), slogError(err))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
