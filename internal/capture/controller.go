// Package capture runs the interactive rebinding state machine: it arms a
// session for one action, waits for the first qualifying key or button, and
// commits it to the binding table.
//
// A Controller is confined to one goroutine (the UI loop). Keyboard hook and
// timer callbacks hop onto that goroutine through Options.Post; button events
// must be delivered through HandleButton from the same goroutine.
package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"gtrainer/internal/bindings"
	"gtrainer/internal/hotkeys"
	"gtrainer/internal/input"
	"gtrainer/internal/keyboard"
)

// DefaultTimeout is how long a session waits for input.
const DefaultTimeout = 10 * time.Second

var (
	// ErrNoDevice reports that no device of the requested family is connected.
	ErrNoDevice = errors.New("no device connected")
	// ErrNoInputSource reports that neither the keyboard hook nor any device
	// could serve the session.
	ErrNoInputSource = errors.New("no input source available")
	// ErrUnknownAction reports a capture request for an action not in the table.
	ErrUnknownAction = errors.New("unknown action")
)

// Table is the subset of the binding table the controller mutates.
type Table interface {
	Get(action string) (bindings.Binding, bool)
	CommitKeyboard(action string, key hotkeys.VKey, mods hotkeys.Modifier) error
	CommitButton(action string, kind bindings.Kind, button input.ButtonID) error
}

// Listener toggles delivery of listening-mode button events.
type Listener interface {
	StartListening()
	StopListening()
}

// KeyboardHook is the global key hook used for keyboard capture.
type KeyboardHook interface {
	Attach(keyboard.Handler) error
	Detach() error
}

// DeviceInventory answers whether a family has at least one device.
type DeviceInventory interface {
	HasGamepad() bool
	HasWheel() bool
}

// Presenter receives session transitions for display.
type Presenter interface {
	CaptureStarted(Session)
	CaptureEnded(Result)
}

// Timer is the handle returned by Options.AfterFunc.
type Timer interface {
	Stop() bool
}

// Options configures NewController. Zero fields take defaults.
type Options struct {
	Timeout time.Duration
	// AfterFunc schedules the deadline. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer
	// Post runs f on the controller goroutine. Defaults to calling f inline.
	Post func(f func())
	Now  func() time.Time
	// NewID generates session IDs. Defaults to random UUIDs.
	NewID func() string
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.AfterFunc == nil {
		o.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	if o.Post == nil {
		o.Post = func(f func()) { f() }
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

type armedSession struct {
	Session
	timer         Timer
	acceptKeys    bool
	acceptButtons bool
	hookAttached  bool
}

// Controller owns at most one armed session.
type Controller struct {
	table     Table
	listener  Listener
	hook      KeyboardHook
	inventory DeviceInventory
	presenter Presenter
	opts      Options

	session *armedSession
}

// NewController wires the collaborators. hook and inventory may be nil,
// which disables keyboard and device capture respectively.
func NewController(table Table, listener Listener, hook KeyboardHook, inventory DeviceInventory, presenter Presenter, opts Options) *Controller {
	return &Controller{
		table:     table,
		listener:  listener,
		hook:      hook,
		inventory: inventory,
		presenter: presenter,
		opts:      opts.withDefaults(),
	}
}

// Begin arms a session for action. While a session is armed any Begin call
// cancels it instead and reports armed=false.
func (c *Controller) Begin(action string, mode Mode) (bool, error) {
	if c.session != nil {
		c.finish(OutcomeCancelled, "", "", "Capture cancelled")
		return false, nil
	}
	if _, ok := c.table.Get(action); !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	s := &armedSession{}
	switch mode {
	case ModeGamepad:
		if !c.hasGamepad() {
			return false, fmt.Errorf("%w: connect a gamepad first", ErrNoDevice)
		}
		s.acceptButtons = true
	case ModeWheel:
		if !c.hasWheel() {
			return false, fmt.Errorf("%w: connect a steering wheel first", ErrNoDevice)
		}
		s.acceptButtons = true
	case ModeKeyboard, ModeUnified:
		s.acceptButtons = mode == ModeUnified && (c.hasGamepad() || c.hasWheel())
	default:
		return false, fmt.Errorf("unsupported capture mode %d", mode)
	}

	s.ID = c.opts.NewID()
	s.Action = action
	s.Mode = mode

	if mode == ModeKeyboard || mode == ModeUnified {
		err := c.attachHook(s.ID)
		switch {
		case err == nil:
			s.acceptKeys = true
			s.hookAttached = true
		case mode == ModeKeyboard || !s.acceptButtons:
			return false, fmt.Errorf("%w: %w", ErrNoInputSource, err)
		default:
			slog.Warn("[WARN-CAPTURE] keyboard hook unavailable, capturing buttons only", "action", action, "error", err)
		}
	}

	c.listener.StartListening()
	s.Deadline = c.opts.Now().Add(c.opts.Timeout)
	id := s.ID
	s.timer = c.opts.AfterFunc(c.opts.Timeout, func() {
		c.opts.Post(func() { c.expire(id) })
	})
	c.session = s

	slog.Info("[INFO-CAPTURE] capture armed",
		"session", s.ID,
		"action", action,
		"mode", mode.String(),
		"keys", s.acceptKeys,
		"buttons", s.acceptButtons,
	)
	if c.presenter != nil {
		c.presenter.CaptureStarted(s.Session)
	}
	return true, nil
}

func (c *Controller) attachHook(sessionID string) error {
	if c.hook == nil {
		return errors.New("keyboard hook not configured")
	}
	return c.hook.Attach(func(ev keyboard.Event) {
		if !ev.Down {
			return
		}
		c.opts.Post(func() { c.handleKeyFor(sessionID, ev) })
	})
}

func (c *Controller) hasGamepad() bool {
	return c.inventory != nil && c.inventory.HasGamepad()
}

func (c *Controller) hasWheel() bool {
	return c.inventory != nil && c.inventory.HasWheel()
}

// Cancel ends the armed session, if any, and reports whether one was armed.
func (c *Controller) Cancel() bool {
	if c.session == nil {
		return false
	}
	c.finish(OutcomeCancelled, "", "", "Capture cancelled")
	return true
}

// Current returns the armed session.
func (c *Controller) Current() (Session, bool) {
	if c.session == nil {
		return Session{}, false
	}
	return c.session.Session, true
}

// Armed reports whether a session is waiting for input.
func (c *Controller) Armed() bool {
	return c.session != nil
}

// HandleKey offers a key event to the armed session. Key releases and bare
// modifier keys are ignored; the session keeps waiting.
func (c *Controller) HandleKey(ev keyboard.Event) {
	if c.session == nil {
		return
	}
	c.handleKeyFor(c.session.ID, ev)
}

func (c *Controller) handleKeyFor(sessionID string, ev keyboard.Event) {
	s := c.session
	if s == nil || s.ID != sessionID || !s.acceptKeys {
		return
	}
	if !ev.Down || ev.Key == 0 || hotkeys.IsModifierKey(ev.Key) {
		return
	}
	text := hotkeys.Format(ev.Key, ev.Modifiers)
	c.commit(text, c.table.CommitKeyboard(s.Action, ev.Key, ev.Modifiers))
}

// HandleButton offers a listening-mode button event to the armed session.
// Buttons from a family the mode does not accept are ignored.
func (c *Controller) HandleButton(ev input.ButtonEvent) {
	s := c.session
	if s == nil || !s.acceptButtons {
		return
	}
	family := ev.Button.Family()
	switch s.Mode {
	case ModeGamepad:
		if family != input.FamilyGamepad {
			return
		}
	case ModeWheel:
		if family != input.FamilyWheel {
			return
		}
	case ModeUnified:
		if family == input.FamilyNone {
			return
		}
	default:
		return
	}
	kind := bindings.KindForFamily(family)
	c.commit(ev.Button.String(), c.table.CommitButton(s.Action, kind, ev.Button))
}

func (c *Controller) commit(inputText string, err error) {
	if err == nil {
		c.finish(OutcomeCommitted, inputText, "", "")
		return
	}
	var dup *bindings.DuplicateError
	if errors.As(err, &dup) {
		c.finish(OutcomeRejected, inputText, dup.Owner,
			fmt.Sprintf("%s is already bound to %s", inputText, dup.Owner))
		return
	}
	slog.Warn("[WARN-CAPTURE] commit failed", "action", c.session.Action, "input", inputText, "error", err)
	c.finish(OutcomeRejected, inputText, "", err.Error())
}

func (c *Controller) expire(sessionID string) {
	if c.session == nil || c.session.ID != sessionID {
		slog.Debug("[DEBUG-CAPTURE] ignoring stale capture timer", "session", sessionID)
		return
	}
	c.finish(OutcomeTimedOut, "", "", "No input received before the deadline")
}

// finish is the single exit path of every armed session.
func (c *Controller) finish(outcome Outcome, inputText, owner, message string) {
	s := c.session
	if s == nil {
		return
	}
	c.session = nil

	c.listener.StopListening()
	if s.timer != nil {
		s.timer.Stop()
	}
	if s.hookAttached {
		if err := c.hook.Detach(); err != nil {
			slog.Warn("[WARN-CAPTURE] keyboard hook detach failed", "session", s.ID, "error", err)
		}
	}

	display := bindings.Binding{}.DisplayText()
	if b, ok := c.table.Get(s.Action); ok {
		display = b.DisplayText()
	}
	result := Result{
		SessionID: s.ID,
		Action:    s.Action,
		Mode:      s.Mode,
		Outcome:   outcome,
		Display:   display,
		Input:     inputText,
		Owner:     owner,
		Message:   message,
	}
	slog.Info("[INFO-CAPTURE] capture ended",
		"session", s.ID,
		"action", s.Action,
		"outcome", outcome.String(),
		"input", inputText,
		"display", display,
	)
	if c.presenter != nil {
		c.presenter.CaptureEnded(result)
	}
}
