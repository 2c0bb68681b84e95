package interaction

import (
	"github.com/loqalabs/loqa-concierge/internal/intent"
	"github.com/loqalabs/loqa-concierge/internal/locale"
)

// Snapshot is a point-in-time copy of a session for the UI.
type Snapshot struct {
	ID             string        `json:"id"`
	CurrentMessage string        `json:"current_message"`
	LastResponse   *string       `json:"last_response"`
	IsRecording    bool          `json:"is_recording"`
	Sending        bool          `json:"sending"`
	Language       locale.Tag    `json:"language"`
	Screen         intent.Intent `json:"screen"`
}
