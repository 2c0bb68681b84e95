package interaction

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/loqalabs/loqa-concierge/internal/locale"
)

var (
	ErrUnknownSession  = errors.New("unknown session")
	ErrTooManySessions = errors.New("session limit reached")
)

// Manager mounts and unmounts sessions. All sessions share one set of Deps.
type Manager struct {
	deps        Deps
	opts        Options
	maxSessions int
	logger      *slog.Logger

	mu       sync.RWMutex
	closed   bool
	sessions map[string]*Controller
}

func NewManager(deps Deps, opts Options, maxSessions int) *Manager {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Effects == nil {
		deps.Effects = nopEffects{}
	}
	return &Manager{
		deps:        deps,
		opts:        opts,
		maxSessions: maxSessions,
		logger:      deps.Logger.With(slog.String("component", "session-manager")),
		sessions:    make(map[string]*Controller),
	}
}

// Mount creates a session on the Home screen. An empty lang uses the
// configured default.
func (m *Manager) Mount(lang locale.Tag) (*Controller, error) {
	opts := m.opts
	if lang != "" {
		opts.Language = lang
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if m.maxSessions > 0 && len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w (%d)", ErrTooManySessions, m.maxSessions)
	}
	c, err := New(m.deps, opts)
	if err != nil {
		m.mu.Unlock()
		return nil, err
	}
	m.sessions[c.ID()] = c
	m.mu.Unlock()

	m.deps.Effects.Mounted(c.Snapshot())
	m.logger.Info("session mounted", slog.String("session_id", c.ID()), slog.String("language", opts.Language.String()))
	return c, nil
}

func (m *Manager) Get(id string) (*Controller, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.sessions[id]
	return c, ok
}

// IDs lists mounted sessions in lexical order.
func (m *Manager) IDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Unmount closes the session, waiting for its in-flight work, and drops its timeline.
func (m *Manager) Unmount(id string) error {
	m.mu.Lock()
	c, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSession, id)
	}

	c.Close()
	m.deps.Effects.Unmounted(id)
	m.logger.Info("session unmounted", slog.String("session_id", id))
	return nil
}

// Close unmounts every session.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Controller)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for id, c := range sessions {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
			m.deps.Effects.Unmounted(id)
		}()
	}
	wg.Wait()
}
