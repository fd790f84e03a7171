//go:build windows

package ipc

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/Microsoft/go-winio"
)

const (
	defaultPipeDialTimeout = 3 * time.Second
	defaultPipeRWTimeout   = 15 * time.Second
)

// Send sends one request to the running instance and waits for the reply.
// An empty pipeName uses DefaultPipeName.
func Send(pipeName string, req Request) (Response, error) {
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}
	dialTimeout := defaultPipeDialTimeout
	conn, err := winio.DialPipe(pipeName, &dialTimeout)
	if err != nil {
		return Response{}, err
	}
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(defaultPipeRWTimeout)); err != nil {
		return Response{}, fmt.Errorf("set deadline: %w", err)
	}
	return roundTrip(conn, req)
}

// IsConnectionError reports whether err means no server is listening.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return opErr.Op == "dial" || opErr.Op == "open"
	}
	return errors.Is(err, os.ErrNotExist)
}
