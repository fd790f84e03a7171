//go:build !windows

package keyboard

// Hook is a no-op outside Windows. Attach always fails with ErrUnsupported.
type Hook struct{}

// NewHook returns a hook that never attaches.
func NewHook() *Hook {
	return &Hook{}
}

func (h *Hook) Attach(Handler) error { return ErrUnsupported }

func (h *Hook) Detach() error { return nil }

func (h *Hook) Attached() bool { return false }
