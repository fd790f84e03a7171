//go:build !windows

package hotkeys

import (
	"errors"
	"log/slog"
	"slices"
	"sync"
)

// Manager tracks the requested global hotkeys. No OS-level registration
// happens on this platform, so onTrigger never fires.
type Manager struct {
	mu     sync.Mutex
	active []string
}

// NewManager creates a new hotkey manager.
func NewManager() *Manager {
	return &Manager{}
}

// Start records bindings without registering them.
func (m *Manager) Start(bindings []Binding, onTrigger func(Binding)) error {
	if onTrigger == nil {
		return errors.New("onTrigger callback is required")
	}
	var names []string
	for _, b := range bindings {
		if b.IsZero() {
			continue
		}
		names = append(names, b.Normalized())
	}
	slices.Sort(names)
	names = slices.Compact(names)

	if len(names) > 0 {
		slog.Warn("[WARN-HOTKEY] global hotkeys are not supported on this platform; bindings recorded but will never fire",
			"bindings", names)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = names
	return nil
}

// Stop forgets every recorded binding.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = nil
	return nil
}

// ActiveBindings returns the normalized strings of the recorded hotkeys.
func (m *Manager) ActiveBindings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.active...)
}
