//go:build windows

package keyboard

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"golang.org/x/sys/windows"

	"gtrainer/internal/hotkeys"
)

var (
	user32DLL = windows.NewLazySystemDLL("user32.dll")

	procSetWindowsHookExW   = user32DLL.NewProc("SetWindowsHookExW")
	procUnhookWindowsHookEx = user32DLL.NewProc("UnhookWindowsHookEx")
	procCallNextHookEx      = user32DLL.NewProc("CallNextHookEx")
	procGetMessageW         = user32DLL.NewProc("GetMessageW")
	procPeekMessageW        = user32DLL.NewProc("PeekMessageW")
	procPostThreadMessageW  = user32DLL.NewProc("PostThreadMessageW")
	procGetAsyncKeyState    = user32DLL.NewProc("GetAsyncKeyState")
)

const (
	whKeyboardLL = 13
	hcAction     = 0

	wmQuit       = 0x0012
	wmKeyDown    = 0x0100
	wmSysKeyDown = 0x0104
	pmNoRemove   = 0x0000

	hookStopTimeout = 2 * time.Second
)

// kbdLLHookStruct mirrors KBDLLHOOKSTRUCT.
type kbdLLHookStruct struct {
	VKCode      uint32
	ScanCode    uint32
	Flags       uint32
	Time        uint32
	DwExtraInfo uintptr
}

// winMsg mirrors MSG.
type winMsg struct {
	hwnd     uintptr
	message  uint32
	wParam   uintptr
	lParam   uintptr
	time     uint32
	pt       struct{ x, y int32 }
	lPrivate uint32
}

// activeHandler routes the single process-wide callback to the attached Hook.
var activeHandler atomic.Pointer[Handler]

// hookProc is created once: windows.NewCallback slots are never released.
var hookProc = sync.OnceValue(func() uintptr {
	return windows.NewCallback(lowLevelKeyboardProc)
})

type hookLoop struct {
	threadID uint32
	doneCh   chan struct{}
}

type hookReady struct {
	threadID uint32
	err      error
}

// Hook is a WH_KEYBOARD_LL hook running on its own locked OS thread.
type Hook struct {
	mu   sync.Mutex
	loop *hookLoop
}

// NewHook returns a detached hook.
func NewHook() *Hook {
	return &Hook{}
}

// Attach installs the hook and routes events to handler. Attaching an already
// attached Hook replaces the handler.
func (h *Hook) Attach(handler Handler) error {
	if handler == nil {
		return errors.New("keyboard hook handler is required")
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.loop != nil {
		select {
		case <-h.loop.doneCh:
			h.release()
		default:
			activeHandler.Store(&handler)
			return nil
		}
	}
	if !activeHandler.CompareAndSwap(nil, &handler) {
		return ErrHookBusy
	}

	readyCh := make(chan hookReady, 1)
	doneCh := make(chan struct{})
	go runHookLoop(readyCh, doneCh)

	ready := <-readyCh
	if ready.err != nil {
		activeHandler.Store(nil)
		<-doneCh
		return ready.err
	}
	h.loop = &hookLoop{threadID: ready.threadID, doneCh: doneCh}
	slog.Debug("[DEBUG-KEYBOARD] hook attached", "threadID", ready.threadID)
	return nil
}

// Detach removes the hook. It is a no-op when not attached. The Hook stays
// attached, with its handler, until the hook thread has exited, so a failed
// Detach can be retried.
func (h *Hook) Detach() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.loop == nil {
		return nil
	}
	loop := h.loop
	select {
	case <-loop.doneCh:
		// An earlier Detach timed out and the thread has exited since.
		h.release()
		return nil
	default:
	}

	if err := postQuitFn(loop.threadID); err != nil {
		return err
	}
	select {
	case <-loop.doneCh:
		h.release()
		slog.Debug("[DEBUG-KEYBOARD] hook detached", "threadID", loop.threadID)
		return nil
	case <-time.After(hookStopTimeout):
		return fmt.Errorf("keyboard hook thread %d did not exit within %s", loop.threadID, hookStopTimeout)
	}
}

// release forgets the exited loop. Callers hold h.mu.
func (h *Hook) release() {
	h.loop = nil
	activeHandler.Store(nil)
}

// postQuitFn is replaced in tests.
var postQuitFn = postQuit

func postQuit(threadID uint32) error {
	if r, _, err := procPostThreadMessageW.Call(uintptr(threadID), wmQuit, 0, 0); r == 0 {
		return fmt.Errorf("PostThreadMessageW(WM_QUIT): %w", err)
	}
	return nil
}

// Attached reports whether the hook is installed.
func (h *Hook) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.loop != nil
}

func runHookLoop(readyCh chan<- hookReady, doneCh chan struct{}) {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(doneCh)

	threadID := windows.GetCurrentThreadId()

	// Force creation of the thread message queue so WM_QUIT can be posted.
	var msg winMsg
	procPeekMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0, pmNoRemove)

	var module windows.Handle
	if err := windows.GetModuleHandleEx(0, nil, &module); err != nil {
		readyCh <- hookReady{err: fmt.Errorf("GetModuleHandleEx: %w", err)}
		return
	}
	hhook, _, callErr := procSetWindowsHookExW.Call(whKeyboardLL, hookProc(), uintptr(module), 0)
	if hhook == 0 {
		readyCh <- hookReady{err: fmt.Errorf("SetWindowsHookExW: %w", callErr)}
		return
	}
	defer func() {
		if r, _, err := procUnhookWindowsHookEx.Call(hhook); r == 0 {
			slog.Warn("[WARN-KEYBOARD] UnhookWindowsHookEx failed", "error", err)
		}
	}()
	readyCh <- hookReady{threadID: threadID}

	for {
		r, _, _ := procGetMessageW.Call(uintptr(unsafe.Pointer(&msg)), 0, 0, 0)
		if int32(r) <= 0 {
			return
		}
	}
}

func lowLevelKeyboardProc(nCode uintptr, wParam uintptr, lParam uintptr) uintptr {
	if int32(nCode) == hcAction {
		if hp := activeHandler.Load(); hp != nil {
			kb := (*kbdLLHookStruct)(unsafe.Pointer(lParam))
			dispatch(*hp, Event{
				Key:       hotkeys.VKey(kb.VKCode),
				Modifiers: modifiersFrom(asyncKeyDown),
				Down:      wParam == wmKeyDown || wParam == wmSysKeyDown,
			})
		}
	}
	r, _, _ := procCallNextHookEx.Call(0, nCode, wParam, lParam)
	return r
}

func asyncKeyDown(vk int) bool {
	r, _, _ := procGetAsyncKeyState.Call(uintptr(vk))
	return r&0x8000 != 0
}
