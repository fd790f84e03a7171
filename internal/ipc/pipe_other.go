//go:build !windows

package ipc

// Send always fails outside Windows.
func Send(string, Request) (Response, error) {
	return Response{}, ErrUnsupported
}

// IsConnectionError reports whether err means no server is listening.
func IsConnectionError(err error) bool {
	return err != nil
}

// PipeServer is inert outside Windows.
type PipeServer struct {
	pipeName string
}

// NewPipeServer returns a server whose Start fails with ErrUnsupported.
func NewPipeServer(pipeName string, _ Handler) *PipeServer {
	if pipeName == "" {
		pipeName = DefaultPipeName()
	}
	return &PipeServer{pipeName: pipeName}
}

func (s *PipeServer) PipeName() string { return s.pipeName }

func (s *PipeServer) Start() error { return ErrUnsupported }

func (s *PipeServer) Stop() error { return nil }
