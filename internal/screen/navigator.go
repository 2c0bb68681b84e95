// Package screen tracks which destination a session is showing.
package screen

import (
	"sync"

	"github.com/loqalabs/loqa-concierge/internal/intent"
)

const maxHistory = 32

// Navigator starts on Home and records every move. It is safe for concurrent use.
type Navigator struct {
	mu      sync.Mutex
	current intent.Intent
	history []intent.Intent
}

func NewNavigator() *Navigator {
	return &Navigator{current: intent.Home}
}

// Navigate moves to dest. It reports false for NoOp or unknown destinations
// and when dest is already showing.
func (n *Navigator) Navigate(dest intent.Intent) bool {
	if !dest.IsDestination() {
		return false
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if dest == n.current {
		return false
	}
	n.history = append(n.history, n.current)
	if len(n.history) > maxHistory {
		n.history = n.history[len(n.history)-maxHistory:]
	}
	n.current = dest
	return true
}

// Back returns to the previous destination, or stays on Home when there is none.
func (n *Navigator) Back() intent.Intent {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.history) == 0 {
		return n.current
	}
	n.current = n.history[len(n.history)-1]
	n.history = n.history[:len(n.history)-1]
	return n.current
}

func (n *Navigator) Current() intent.Intent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.current
}

func (n *Navigator) History() []intent.Intent {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]intent.Intent(nil), n.history...)
}
