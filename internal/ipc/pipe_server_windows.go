//go:build windows

package ipc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os/user"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/Microsoft/go-winio"
)

const (
	defaultPipeConnTimeout = 10 * time.Second
	maxConcurrentConns     = 8
)

// PipeServer answers control requests on a named pipe restricted to the
// current user.
type PipeServer struct {
	pipeName string
	handler  Handler

	ctx    context.Context
	cancel context.CancelFunc

	mu        sync.Mutex
	listener  net.Listener
	started   bool
	wg        sync.WaitGroup
	connSlots chan struct{}
}

// NewPipeServer constructs a server. An empty pipeName uses DefaultPipeName.
func NewPipeServer(pipeName string, handler Handler) *PipeServer {
	ctx, cancel := context.WithCancel(context.Background())
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}
	return &PipeServer{
		pipeName:  pipeName,
		handler:   handler,
		ctx:       ctx,
		cancel:    cancel,
		connSlots: make(chan struct{}, maxConcurrentConns),
	}
}

// PipeName returns the listen pipe name.
func (s *PipeServer) PipeName() string {
	return s.pipeName
}

// Start begins listening.
func (s *PipeServer) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return errors.New("pipe server already started")
	}
	if s.handler == nil {
		return errors.New("pipe server requires a handler")
	}
	sd, err := pipeSecurityDescriptor()
	if err != nil {
		return err
	}
	listener, err := winio.ListenPipe(s.pipeName, &winio.PipeConfig{
		SecurityDescriptor: sd,
		InputBufferSize:    int32(maxFrameBytes),
		OutputBufferSize:   int32(maxFrameBytes),
	})
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.pipeName, err)
	}
	s.listener = listener
	s.started = true
	s.wg.Go(s.acceptLoop)
	return nil
}

// Stop closes the listener and waits for in-flight requests.
func (s *PipeServer) Stop() error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.cancel()
	listener := s.listener
	s.listener = nil
	s.mu.Unlock()

	var closeErr error
	if listener != nil {
		closeErr = listener.Close()
	}
	s.wg.Wait()
	return closeErr
}

func (s *PipeServer) acceptLoop() {
	consecutiveErrors := 0
	for {
		s.mu.Lock()
		listener := s.listener
		s.mu.Unlock()
		if listener == nil {
			return
		}
		conn, err := listener.Accept()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			consecutiveErrors++
			if consecutiveErrors > 10 {
				slog.Warn("[WARN-IPC] accept loop: repeated failures", "error", err, "count", consecutiveErrors)
				time.Sleep(500 * time.Millisecond)
			} else {
				slog.Debug("[DEBUG-IPC] accept error", "error", err)
			}
			continue
		}
		consecutiveErrors = 0

		select {
		case s.connSlots <- struct{}{}:
		default:
			if err := writeResponse(conn, Errorf("server busy")); err != nil {
				slog.Debug("[DEBUG-IPC] busy reply failed", "error", err)
			}
			_ = conn.Close()
			continue
		}
		s.wg.Go(func() {
			defer func() { <-s.connSlots }()
			s.handleConnection(conn)
		})
	}
}

func (s *PipeServer) handleConnection(conn net.Conn) {
	defer conn.Close()
	if err := conn.SetDeadline(time.Now().Add(defaultPipeConnTimeout)); err != nil {
		slog.Warn("[WARN-IPC] failed to set connection deadline", "error", err)
		return
	}
	if err := serve(conn, s.handler); err != nil && !errors.Is(err, io.EOF) {
		slog.Debug("[DEBUG-IPC] request failed", "error", err)
	}
}

var validSIDPattern = regexp.MustCompile(`^S-1(-\d+)+$`)

// pipeSecurityDescriptor grants access to SYSTEM and the current user only.
func pipeSecurityDescriptor() (string, error) {
	current, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("resolve current user: %w", err)
	}
	sid := strings.TrimSpace(current.Uid)
	if !validSIDPattern.MatchString(sid) {
		return "", fmt.Errorf("current user SID has unexpected format: %q", sid)
	}
	return fmt.Sprintf("D:P(A;;GA;;;SY)(A;;GA;;;%s)", sid), nil
}
