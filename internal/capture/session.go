package capture

import (
	"fmt"
	"strings"
	"time"
)

// Mode selects which input families a session accepts.
type Mode uint8

const (
	ModeKeyboard Mode = iota + 1
	ModeGamepad
	ModeWheel
	// ModeUnified accepts a key or a button, whichever arrives first.
	ModeUnified
)

func (m Mode) String() string {
	switch m {
	case ModeKeyboard:
		return "keyboard"
	case ModeGamepad:
		return "gamepad"
	case ModeWheel:
		return "wheel"
	case ModeUnified:
		return "unified"
	default:
		return "unknown"
	}
}

// ParseMode accepts the names produced by Mode.String, case-insensitively.
// An empty string selects ModeUnified.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "unified":
		return ModeUnified, nil
	case "keyboard":
		return ModeKeyboard, nil
	case "gamepad":
		return ModeGamepad, nil
	case "wheel":
		return ModeWheel, nil
	default:
		return 0, fmt.Errorf("unknown capture mode %q", s)
	}
}

// Outcome is how a session ended.
type Outcome uint8

const (
	OutcomeCommitted Outcome = iota + 1
	OutcomeCancelled
	OutcomeTimedOut
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeTimedOut:
		return "timed-out"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// MarshalText encodes the outcome by name for UI events.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// MarshalText encodes the mode by name for UI events.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// Session describes an armed capture.
type Session struct {
	ID       string    `json:"id"`
	Action   string    `json:"action"`
	Mode     Mode      `json:"mode"`
	Deadline time.Time `json:"deadline"`
}

// Result is reported once per session when it leaves the armed state.
type Result struct {
	SessionID string  `json:"sessionId"`
	Action    string  `json:"action"`
	Mode      Mode    `json:"mode"`
	Outcome   Outcome `json:"outcome"`
	// Display is the binding's display text after the session, for example
	// "Gamepad: A". It reflects a fresh commit or the untouched prior value.
	Display string `json:"display"`
	// Input is the captured key or button, empty for cancel and timeout.
	Input string `json:"input,omitempty"`
	// Owner is the action already holding Input when Outcome is rejected.
	Owner string `json:"owner,omitempty"`
	// Message is a user-facing notice, empty on a plain commit.
	Message string `json:"message,omitempty"`
}
