// Package bindings holds the hotkey binding table and its collision rules.
//
// Keys and buttons share one namespace: a keyboard combination or a button
// may be owned by at most one action. Gamepad and wheel buttons occupy
// disjoint ButtonID ranges, so a gamepad button never collides with a wheel
// button, and a button collides regardless of which pad slot or wheel
// instance produced it.
package bindings

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"gtrainer/internal/config"
	"gtrainer/internal/hotkeys"
	"gtrainer/internal/input"
)

var (
	// ErrDuplicate reports that the input is already bound to another action.
	// The concrete error is a *DuplicateError naming the owner.
	ErrDuplicate = errors.New("input already bound")
	// ErrUnknownAction reports a binding lookup for an action not in the table.
	ErrUnknownAction = errors.New("unknown action")
	// ErrKindMismatch reports a button whose family does not match the kind.
	ErrKindMismatch = errors.New("button does not belong to binding kind")
	// ErrInvalidInput reports a key or button that cannot be bound at all.
	ErrInvalidInput = errors.New("input cannot be bound")
)

// DuplicateError names the action that already owns an input.
type DuplicateError struct {
	Owner string
	Input string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s is already bound to %q", e.Input, e.Owner)
}

func (e *DuplicateError) Unwrap() error { return ErrDuplicate }

// Table is the ordered set of bindings. It is safe for concurrent use: the
// resolver reads it from the poll goroutine while commits happen on the UI loop.
type Table struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*Binding
}

// NewTable returns an empty table.
func NewTable() *Table {
	return &Table{entries: make(map[string]*Binding)}
}

// NewTableFromRecords builds a table from persisted records. A record whose
// key or button cannot be parsed, or that collides with an earlier record,
// is loaded as unbound and reported in the returned error. Repeated records
// of one action are ignored after the first. The table is always usable.
func NewTableFromRecords(records []config.BindingRecord) (*Table, error) {
	t := NewTable()
	return t, t.Load(records)
}

// Load replaces every entry with records under the rules of
// NewTableFromRecords. Readers never observe a half-loaded table.
func (t *Table) Load(records []config.BindingRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.order = nil
	t.entries = make(map[string]*Binding, len(records))

	var errs []error
	for _, rec := range records {
		action := strings.TrimSpace(rec.Action)
		if action == "" {
			continue
		}
		// The first record of an action wins, as in the config loader.
		if !t.ensureLocked(action) {
			slog.Warn("[WARN-BINDINGS] duplicate action record ignored", "action", action)
			errs = append(errs, fmt.Errorf("binding %q: duplicate record ignored", action))
			continue
		}
		if err := t.applyRecordLocked(action, rec); err != nil {
			t.entries[action].clear()
			slog.Warn("[WARN-BINDINGS] record loaded as unbound", "action", action, "error", err)
			errs = append(errs, fmt.Errorf("binding %q: %w", action, err))
		}
	}
	return errors.Join(errs...)
}

func (t *Table) applyRecordLocked(action string, rec config.BindingRecord) error {
	switch rec.Kind {
	case config.KindKeyboard:
		hk, err := hotkeys.ParseBinding(rec.Key)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		return t.commitKeyboardLocked(action, hk)
	case config.KindGamepad, config.KindWheel:
		button, err := input.ParseButton(rec.Button)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
		kind := KindGamepad
		if rec.Kind == config.KindWheel {
			kind = KindSteeringWheel
		}
		return t.commitButtonLocked(action, kind, button)
	default:
		return nil
	}
}

// Ensure adds an unbound entry for action if none exists. It reports whether
// an entry was created.
func (t *Table) Ensure(action string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ensureLocked(action)
}

func (t *Table) ensureLocked(action string) bool {
	if _, ok := t.entries[action]; ok {
		return false
	}
	t.entries[action] = &Binding{Action: action}
	t.order = append(t.order, action)
	return true
}

// Remove deletes action from the table. It reports whether it existed.
func (t *Table) Remove(action string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.entries[action]; !ok {
		return false
	}
	delete(t.entries, action)
	for i, name := range t.order {
		if name == action {
			t.order = append(t.order[:i:i], t.order[i+1:]...)
			break
		}
	}
	return true
}

// Get returns a copy of the binding for action.
func (t *Table) Get(action string) (Binding, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	b, ok := t.entries[action]
	if !ok {
		return Binding{}, false
	}
	return *b, true
}

// List returns copies of every binding in insertion order.
func (t *Table) List() []Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Binding, 0, len(t.order))
	for _, action := range t.order {
		out = append(out, *t.entries[action])
	}
	return out
}

// Hotkeys returns the keyboard combinations currently bound, in table order.
func (t *Table) Hotkeys() []hotkeys.Binding {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []hotkeys.Binding
	for _, action := range t.order {
		if hk, ok := t.entries[action].Hotkey(); ok {
			out = append(out, hk)
		}
	}
	return out
}

// ExistsKey reports whether any keyboard binding uses key with exactly mods.
func (t *Table) ExistsKey(key hotkeys.VKey, mods hotkeys.Modifier) bool {
	_, ok := t.OwnerOfKey(key, mods)
	return ok
}

// ExistsButton reports whether any gamepad or wheel binding uses button.
func (t *Table) ExistsButton(button input.ButtonID) bool {
	_, ok := t.OwnerOfButton(button)
	return ok
}

// OwnerOfKey returns the action bound to key with exactly mods.
func (t *Table) OwnerOfKey(key hotkeys.VKey, mods hotkeys.Modifier) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ownerOfKeyLocked(key, mods)
}

func (t *Table) ownerOfKeyLocked(key hotkeys.VKey, mods hotkeys.Modifier) (string, bool) {
	if key == 0 {
		return "", false
	}
	for _, action := range t.order {
		b := t.entries[action]
		if b.Kind == KindKeyboard && b.Key == key && b.Modifiers == mods {
			return action, true
		}
	}
	return "", false
}

// OwnerOfButton returns the action bound to button.
func (t *Table) OwnerOfButton(button input.ButtonID) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.ownerOfButtonLocked(button)
}

func (t *Table) ownerOfButtonLocked(button input.ButtonID) (string, bool) {
	if button == input.ButtonNone {
		return "", false
	}
	for _, action := range t.order {
		b := t.entries[action]
		if (b.Kind == KindGamepad || b.Kind == KindSteeringWheel) && b.Button == button {
			return action, true
		}
	}
	return "", false
}

// CommitKeyboard binds action to key+mods, clearing any button.
// Committing the value the action already holds succeeds without change.
func (t *Table) CommitKeyboard(action string, key hotkeys.VKey, mods hotkeys.Modifier) error {
	hk, err := hotkeys.NewBinding(key, mods)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidInput, err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commitKeyboardLocked(action, hk)
}

func (t *Table) commitKeyboardLocked(action string, hk hotkeys.Binding) error {
	b, ok := t.entries[action]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if owner, taken := t.ownerOfKeyLocked(hk.Key(), hk.Modifiers()); taken && owner != action {
		return &DuplicateError{Owner: owner, Input: hk.Normalized()}
	}
	b.setKeyboard(hk.Key(), hk.Modifiers())
	slog.Debug("[DEBUG-BINDINGS] keyboard binding committed", "action", action, "key", hk.Normalized())
	return nil
}

// CommitButton binds action to button under kind, clearing any keyboard
// combination. kind must be KindGamepad or KindSteeringWheel and match the
// button's family.
func (t *Table) CommitButton(action string, kind Kind, button input.ButtonID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.commitButtonLocked(action, kind, button)
}

func (t *Table) commitButtonLocked(action string, kind Kind, button input.ButtonID) error {
	if !button.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidInput, button)
	}
	if fam := kind.buttonFamily(); fam == input.FamilyNone || fam != button.Family() {
		return fmt.Errorf("%w: %s is a %s button, binding kind is %s", ErrKindMismatch, button, button.Family(), kind)
	}
	b, ok := t.entries[action]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	if owner, taken := t.ownerOfButtonLocked(button); taken && owner != action {
		return &DuplicateError{Owner: owner, Input: button.String()}
	}
	b.setButton(kind, button)
	slog.Debug("[DEBUG-BINDINGS] button binding committed", "action", action, "kind", kind.String(), "button", button.String())
	return nil
}

// Clear resets action to unbound.
func (t *Table) Clear(action string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	b, ok := t.entries[action]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
	b.clear()
	return nil
}

// Records returns the persisted form of the table in order.
func (t *Table) Records() []config.BindingRecord {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]config.BindingRecord, 0, len(t.order))
	for _, action := range t.order {
		b := t.entries[action]
		rec := config.BindingRecord{Action: action, Kind: config.KindUnbound}
		switch b.Kind {
		case KindKeyboard:
			rec.Kind = config.KindKeyboard
			rec.Key = hotkeys.Format(b.Key, b.Modifiers)
		case KindGamepad:
			rec.Kind = config.KindGamepad
			rec.Button = b.Button.String()
		case KindSteeringWheel:
			rec.Kind = config.KindWheel
			rec.Button = b.Button.String()
		}
		out = append(out, rec)
	}
	return out
}
