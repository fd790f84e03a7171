// Package ipc carries control requests between instances over a per-user
// named pipe. A second launch uses it to wake the running instance.
package ipc

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"regexp"
	"strings"

	"gtrainer/internal/userutil"
)

// Commands understood by the running instance.
const (
	CommandActivate = "activate"
	CommandStatus   = "status"
	CommandTrigger  = "trigger"
)

const (
	defaultPipePrefix = `\\.\pipe\gtrainer-`
	maxFrameBytes     = 64 * 1024
)

var pipeNamePattern = regexp.MustCompile(`(?i)^\\\\\.\\pipe\\gtrainer-[a-z0-9._-]{1,128}$`)

// ErrUnsupported is returned on platforms without named pipes.
var ErrUnsupported = errors.New("named pipe IPC is only supported on Windows")

// Request is one control command.
type Request struct {
	Command string   `json:"command"`
	Args    []string `json:"args,omitempty"`
}

// Response answers a Request.
type Response struct {
	OK     bool           `json:"ok"`
	Error  string         `json:"error,omitempty"`
	Result map[string]any `json:"result,omitempty"`
}

// Handler executes requests received by the server.
type Handler interface {
	Handle(req Request) Response
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(Request) Response

func (f HandlerFunc) Handle(req Request) Response { return f(req) }

// Errorf builds a failed Response.
func Errorf(format string, args ...any) Response {
	return Response{Error: fmt.Sprintf(format, args...)}
}

// DefaultPipeName returns the pipe path for the current user. GTRAINER_PIPE
// overrides it when the value matches the expected pattern.
func DefaultPipeName() string {
	if v, ok := trustedPipeNameFromEnv(); ok {
		return v
	}
	return defaultPipePrefix + userutil.ObjectSuffix()
}

func trustedPipeNameFromEnv() (string, bool) {
	value := strings.TrimSpace(os.Getenv("GTRAINER_PIPE"))
	if value == "" {
		return "", false
	}
	if !pipeNamePattern.MatchString(value) {
		slog.Warn("[WARN-IPC] GTRAINER_PIPE rejected: value does not match allowed pattern", "value", value)
		return "", false
	}
	return value, true
}

func encodeFrame(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return append(raw, '\n'), nil
}

func decodeRequest(raw []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return Request{}, err
	}
	req.Command = strings.TrimSpace(req.Command)
	if req.Command == "" {
		return Request{}, errors.New("missing command")
	}
	if req.Args == nil {
		req.Args = []string{}
	}
	return req, nil
}

func decodeResponse(raw []byte) (Response, error) {
	var resp Response
	if err := json.Unmarshal(raw, &resp); err != nil {
		return Response{}, err
	}
	return resp, nil
}

// readFrame reads one newline-delimited frame of at most maxBytes.
// A final frame without delimiter is accepted at EOF.
func readFrame(reader *bufio.Reader, maxBytes int) ([]byte, error) {
	raw, err := reader.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		return nil, fmt.Errorf("frame exceeds %d bytes", maxBytes)
	}
	if errors.Is(err, io.EOF) {
		if len(raw) == 0 {
			return nil, io.EOF
		}
		return raw, nil
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

// serve reads one request from rw, runs it through h and writes the reply.
func serve(rw io.ReadWriter, h Handler) error {
	reader := bufio.NewReaderSize(rw, maxFrameBytes+1)
	raw, err := readFrame(reader, maxFrameBytes)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return err
		}
		return writeResponse(rw, Errorf("invalid request: %v", err))
	}
	req, err := decodeRequest(raw)
	if err != nil {
		return writeResponse(rw, Errorf("invalid request: %v", err))
	}
	slog.Debug("[DEBUG-IPC] request received", "command", req.Command, "args", req.Args)
	return writeResponse(rw, h.Handle(req))
}

func writeResponse(w io.Writer, resp Response) error {
	raw, err := encodeFrame(resp)
	if err != nil {
		slog.Warn("[WARN-IPC] failed to encode response", "error", err)
		raw = []byte(`{"ok":false,"error":"internal encode error"}` + "\n")
	}
	_, err = w.Write(raw)
	return err
}

// roundTrip writes req to rw and reads one response.
func roundTrip(rw io.ReadWriter, req Request) (Response, error) {
	raw, err := encodeFrame(req)
	if err != nil {
		return Response{}, err
	}
	if _, err := rw.Write(raw); err != nil {
		return Response{}, err
	}
	respRaw, err := readFrame(bufio.NewReaderSize(rw, maxFrameBytes+1), maxFrameBytes)
	if err != nil {
		return Response{}, err
	}
	resp, err := decodeResponse(respRaw)
	if err != nil {
		return Response{}, fmt.Errorf("invalid response: %w", err)
	}
	return resp, nil
}
