// Package router accepts session commands published on the bus and applies
// them to mounted sessions.
package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/loqalabs/loqa-concierge/internal/bus"
	"github.com/loqalabs/loqa-concierge/internal/interaction"
	"github.com/loqalabs/loqa-concierge/internal/locale"
	"github.com/loqalabs/loqa-concierge/internal/protocol"
)

// Sessions looks up mounted sessions.
type Sessions interface {
	Get(id string) (*interaction.Controller, bool)
}

type Service struct {
	bus      *bus.Client
	sessions Sessions
	logger   *slog.Logger
	sub      *nats.Subscription
}

func NewService(busClient *bus.Client, sessions Sessions, logger *slog.Logger) *Service {
	return &Service{
		bus:      busClient,
		sessions: sessions,
		logger:   logger.With(slog.String("component", "router")),
	}
}

func (s *Service) Start() error {
	sub, err := s.bus.Conn().Subscribe(protocol.SessionCommandSubject("*"), s.handleCommand)
	if err != nil {
		return fmt.Errorf("subscribe session commands: %w", err)
	}
	s.sub = sub
	return nil
}

func (s *Service) Close() {
	if s.sub != nil {
		_ = s.sub.Drain()
	}
}

func (s *Service) Healthy() bool {
	return s.sub != nil && s.sub.IsValid()
}

func (s *Service) handleCommand(msg *nats.Msg) {
	sessionID := protocol.SessionIDFromSubject(msg.Subject)
	var cmd protocol.SessionCommand
	if err := json.Unmarshal(msg.Data, &cmd); err != nil {
		s.logger.Warn("router failed to decode command", slogError(err))
		s.ack(msg, fmt.Errorf("decode command: %w", err))
		return
	}
	s.ack(msg, s.dispatch(sessionID, cmd))
}

func (s *Service) dispatch(sessionID string, cmd protocol.SessionCommand) error {
	c, ok := s.sessions.Get(sessionID)
	if !ok {
		return fmt.Errorf("%w: %s", interaction.ErrUnknownSession, sessionID)
	}

	switch cmd.Action {
	case protocol.ActionMessage:
		return c.SetMessage(cmd.Text)
	case protocol.ActionSend:
		if cmd.Text != "" {
			if err := c.SetMessage(cmd.Text); err != nil {
				return err
			}
		}
		c.SubmitMessage()
	case protocol.ActionListen:
		c.StartListening()
	case protocol.ActionStop:
		c.StopListening()
	case protocol.ActionLanguage:
		tag, err := locale.Parse(cmd.Language)
		if err != nil {
			return err
		}
		return c.SetLanguage(tag)
	default:
		return fmt.Errorf("unknown action %q", cmd.Action)
	}
	return nil
}

func (s *Service) ack(msg *nats.Msg, err error) {
	ack := protocol.CommandAck{OK: err == nil}
	if err != nil {
		ack.Error = err.Error()
		if !errors.Is(err, interaction.ErrUnknownSession) {
			s.logger.Info("session command rejected", slogError(err))
		}
	}
	if msg.Reply == "" {
		return
	}
	data, merr := json.Marshal(ack)
	if merr != nil {
		s.logger.Warn("router failed to encode ack", slogError(merr))
		return
	}
	if rerr := msg.Respond(data); rerr != nil {
		s.logger.Warn("router failed to reply", slogError(rerr))
	}
}

func slogError(err error) slog.Attr {
	return slog.String("error", err.Error())
}
