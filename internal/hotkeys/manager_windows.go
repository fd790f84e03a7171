//go:build windows

package hotkeys

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"slices"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
	"unsafe"
)

var (
	user32DLL = syscall.NewLazyDLL("user32.dll")
	kernelDLL = syscall.NewLazyDLL("kernel32.dll")

	procRegisterHotKey     = user32DLL.NewProc("RegisterHotKey")
	procUnregisterHotKey   = user32DLL.NewProc("UnregisterHotKey")
	procGetMessageW        = user32DLL.NewProc("GetMessageW")
	procTranslateMessage   = user32DLL.NewProc("TranslateMessage")
	procDispatchMessageW   = user32DLL.NewProc("DispatchMessageW")
	procPostThreadMessageW = user32DLL.NewProc("PostThreadMessageW")
	procPeekMessageW       = user32DLL.NewProc("PeekMessageW")
	procGetCurrentThreadID = kernelDLL.NewProc("GetCurrentThreadId")
)

const (
	wmHotkey   = 0x0312
	wmQuit     = 0x0012
	pmNoRemove = 0x0000

	// modNoRepeat suppresses auto-repeat WM_HOTKEY while the key is held.
	modNoRepeat = 0x4000

	// maxHotkeyID is the upper bound for application-defined hotkey IDs (Win32).
	maxHotkeyID int32 = 0xBFFF
)

var nextHotkeyID int32 = 0x4000

// activeLoop holds the state of the running registration loop.
// When non-nil in Manager, all fields are valid and a message loop goroutine is running.
type activeLoop struct {
	threadID uint32
	doneCh   chan struct{}
	bindings []string
}

// point mirrors the Win32 POINT struct.
type point struct {
	x int32
	y int32
}

// winMsg mirrors the Win32 MSG struct (tagMSG from winuser.h).
// Field order and types must not be changed -- the layout must match
// the Win32 binary layout on both 32-bit and 64-bit Windows.
type winMsg struct {
	hWnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       point
	lPrivate uint32 // reserved by Windows; required for correct struct size
}

type loopReady struct {
	threadID   uint32
	registered []string
	err        error
}

// Manager registers a set of global hotkeys on one message-loop thread.
type Manager struct {
	mu     sync.Mutex
	active *activeLoop // nil when nothing is registered
}

// NewManager creates a new hotkey manager.
func NewManager() *Manager {
	return &Manager{}
}

// Start replaces every registration with bindings and routes WM_HOTKEY to
// onTrigger on a fresh goroutine. Bindings the OS refuses (usually because
// another program owns the combination) are skipped and reported in the
// returned error; the rest stay registered.
func (m *Manager) Start(bindings []Binding, onTrigger func(Binding)) error {
	if onTrigger == nil {
		return errors.New("onTrigger callback is required")
	}

	// Pre-check DLL availability so that failures produce clean errors
	// instead of panics from LazyProc.Call.
	if err := user32DLL.Load(); err != nil {
		return fmt.Errorf("user32.dll is unavailable: %w", err)
	}
	if err := kernelDLL.Load(); err != nil {
		return fmt.Errorf("kernel32.dll is unavailable: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.stopLocked(); err != nil {
		return err
	}

	ids := make(map[int32]Binding, len(bindings))
	seen := make(map[Binding]struct{}, len(bindings))
	for _, b := range bindings {
		if b.IsZero() {
			continue
		}
		if _, dup := seen[b]; dup {
			continue
		}
		seen[b] = struct{}{}
		hotkeyID := atomic.AddInt32(&nextHotkeyID, 1)
		if hotkeyID < 0 || hotkeyID > maxHotkeyID {
			return fmt.Errorf("hotkey ID range exhausted (ID=%d)", hotkeyID)
		}
		ids[hotkeyID] = b
	}
	if len(ids) == 0 {
		return nil
	}

	readyCh := make(chan loopReady, 1)
	doneCh := make(chan struct{})

	go runHotkeyLoop(ids, onTrigger, readyCh, doneCh)

	ready := <-readyCh
	if ready.threadID == 0 {
		if ready.err != nil {
			return fmt.Errorf("register hotkeys failed: %w", ready.err)
		}
		return errors.New("hotkey loop started but returned invalid thread ID 0")
	}

	m.active = &activeLoop{
		threadID: ready.threadID,
		doneCh:   doneCh,
		bindings: ready.registered,
	}
	return ready.err
}

// Stop unregisters every active global hotkey.
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked()
}

// ActiveBindings returns the normalized strings of the registered hotkeys.
func (m *Manager) ActiveBindings() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil {
		return nil
	}
	return append([]string(nil), m.active.bindings...)
}

func (m *Manager) stopLocked() error {
	if m.active == nil {
		return nil
	}

	loop := m.active
	// Clear the active pointer first so that concurrent ActiveBindings() calls
	// see the manager as idle. The actual cleanup follows using the local copy.
	m.active = nil

	stopErr := postQuit(loop.threadID)

	timer := time.NewTimer(2 * time.Second)
	defer timer.Stop()

	select {
	case <-loop.doneCh:
		// Loop exited cleanly.
	case <-timer.C:
		timeoutErr := fmt.Errorf("hotkey message loop stop timed out (threadID=%d)", loop.threadID)
		slog.Warn("[WARN-HOTKEY] message loop stop timed out, goroutine/thread may leak",
			"threadID", loop.threadID)
		stopErr = errors.Join(stopErr, timeoutErr)
	}

	return stopErr
}

func runHotkeyLoop(ids map[int32]Binding, onTrigger func(Binding), readyCh chan<- loopReady, doneCh chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(doneCh)

	threadID, err := getCurrentThreadID()
	if err != nil {
		readyCh <- loopReady{err: err}
		return
	}

	// PeekMessageW forces Windows to create the thread message queue so that
	// PostThreadMessageW in Stop() can deliver WM_QUIT. Queue creation is a
	// side-effect of the call itself and returns 0 when no messages exist.
	var qmsg winMsg
	ret, _, peekErr := procPeekMessageW.Call(
		uintptr(unsafe.Pointer(&qmsg)),
		0,
		0,
		0,
		pmNoRemove,
	)
	if ret == 0 && peekErr != syscall.Errno(0) {
		slog.Debug("[DEBUG-HOTKEY] PeekMessageW for queue init returned error", "error", peekErr)
	}

	var regErrs []error
	var registered []string
	for hotkeyID, b := range ids {
		if err := registerHotKey(hotkeyID, uint32(b.Modifiers())|modNoRepeat, uint32(b.Key())); err != nil {
			regErrs = append(regErrs, fmt.Errorf("register hotkey %q: %w", b.Normalized(), err))
			delete(ids, hotkeyID)
			continue
		}
		registered = append(registered, b.Normalized())
	}
	if len(ids) == 0 {
		readyCh <- loopReady{err: errors.Join(regErrs...)}
		return
	}
	defer func() {
		for hotkeyID := range ids {
			if err := unregisterHotKey(hotkeyID); err != nil {
				slog.Error("[ERROR-HOTKEY] unregisterHotKey on loop exit failed (resource leak)",
					"error", err, "hotkeyID", hotkeyID)
			}
		}
	}()

	slices.Sort(registered)
	readyCh <- loopReady{threadID: threadID, registered: registered, err: errors.Join(regErrs...)}

	for {
		var msg winMsg
		ret, _, lastErr := procGetMessageW.Call(
			uintptr(unsafe.Pointer(&msg)),
			0,
			0,
			0,
		)
		switch int32(ret) {
		case -1:
			slog.Warn("[WARN-HOTKEY] GetMessageW returned error, exiting loop", "error", lastErr)
			return
		case 0:
			// WM_QUIT received -- normal shutdown path.
			slog.Debug("[DEBUG-HOTKEY] message loop received WM_QUIT, exiting normally")
			return
		}

		if msg.message == wmHotkey {
			if b, ok := ids[int32(msg.wParam)]; ok {
				go onTrigger(b)
				continue
			}
		}

		// TranslateMessage and DispatchMessageW return values are informational
		// and are not error indicators for a thread-level message loop.
		procTranslateMessage.Call(uintptr(unsafe.Pointer(&msg)))
		procDispatchMessageW.Call(uintptr(unsafe.Pointer(&msg)))
	}
}

func registerHotKey(hotkeyID int32, modifiers uint32, key uint32) error {
	res, _, err := procRegisterHotKey.Call(
		0,
		uintptr(hotkeyID),
		uintptr(modifiers),
		uintptr(key),
	)
	if res != 0 {
		return nil
	}
	if err == syscall.Errno(0) {
		return errors.New("RegisterHotKey failed")
	}
	return err
}

func unregisterHotKey(hotkeyID int32) error {
	res, _, err := procUnregisterHotKey.Call(0, uintptr(hotkeyID))
	if res != 0 {
		return nil
	}
	if err == syscall.Errno(0) {
		return errors.New("UnregisterHotKey failed")
	}
	return err
}

func postQuit(threadID uint32) error {
	if threadID == 0 {
		return errors.New("cannot post WM_QUIT: threadID is 0")
	}
	res, _, err := procPostThreadMessageW.Call(
		uintptr(threadID),
		wmQuit,
		0,
		0,
	)
	if res != 0 {
		return nil
	}
	if err == syscall.Errno(0) {
		return errors.New("PostThreadMessageW failed")
	}
	return err
}

func getCurrentThreadID() (uint32, error) {
	tid, _, err := procGetCurrentThreadID.Call()
	if tid == 0 {
		return 0, fmt.Errorf("GetCurrentThreadId returned 0: %w", err)
	}
	return uint32(tid), nil
}
