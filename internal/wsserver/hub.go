package wsserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// writeDeadline is the maximum time allowed for a single WebSocket write.
// A monitor that stalls longer than this is dropped.
const writeDeadline = 5 * time.Second

// readDeadline is how long the server waits for any read activity
// (including pongs). Three missed pings close the connection.
const readDeadline = 90 * time.Second

const pingInterval = 30 * time.Second

// maxReadMessageSize limits incoming client messages. Subscribe payloads are
// a handful of topic names.
const maxReadMessageSize = 4 * 1024

var wsUpgrader = websocket.Upgrader{
	// The server binds to 127.0.0.1 only.
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 4 * 1024,
}

// HubOptions configures the monitor server.
type HubOptions struct {
	// Addr is the listen address. Use "127.0.0.1:0" for an OS-assigned port.
	Addr string
}

// Hub serves a single monitor connection and pushes input activity to it.
//
// New connections replace existing ones so a reloaded monitor page takes
// over without waiting for the old socket to time out.
//
// Lock ordering (never acquire in reverse):
//
//	writeMu -> mu
//
// Any write failure disconnects the client; it must reconnect.
type Hub struct {
	opts HubOptions

	mu         sync.RWMutex
	conn       *websocket.Conn
	subscribed map[Topic]bool

	// writeMu serializes WriteMessage calls; gorilla/websocket does not
	// support concurrent writers.
	writeMu sync.Mutex

	seq atomic.Uint64

	listener net.Listener
	server   *http.Server
	url      string

	closeOnce sync.Once
}

const (
	subscribeAction   = "subscribe"
	unsubscribeAction = "unsubscribe"
)

type subscribeMsg struct {
	Action string  `json:"action"`
	Topics []Topic `json:"topics"`
}

type errorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// NewHub creates a Hub. It does not listen until Start is called.
func NewHub(opts HubOptions) *Hub {
	if opts.Addr == "" {
		opts.Addr = "127.0.0.1:0"
	}
	return &Hub{
		opts:       opts,
		subscribed: make(map[Topic]bool),
	}
}

// Start listens on the configured address and serves /ws. Request handlers
// observe ctx cancellation; the server itself stops only via Stop.
func (h *Hub) Start(ctx context.Context) error {
	if h.server != nil {
		return fmt.Errorf("wsserver: already started")
	}

	ln, err := net.Listen("tcp", h.opts.Addr)
	if err != nil {
		return fmt.Errorf("wsserver: listen: %w", err)
	}
	h.listener = ln

	port := ln.Addr().(*net.TCPAddr).Port
	h.url = fmt.Sprintf("ws://127.0.0.1:%d/ws", port)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", h.handleWS)

	h.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if serveErr := h.server.Serve(ln); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			slog.Error("[ERROR-WS] server error", "error", serveErr)
		}
	}()

	slog.Info("[INFO-WS] monitor server started", "url", h.url)
	return nil
}

// Stop shuts the server down and closes the active connection. It is
// idempotent; a stopped Hub cannot be restarted.
func (h *Hub) Stop() error {
	var stopErr error
	h.closeOnce.Do(func() {
		h.mu.Lock()
		conn := h.conn
		h.conn = nil
		h.subscribed = make(map[Topic]bool)
		h.mu.Unlock()

		if conn != nil {
			h.closeConn(conn, "hub stop")
		}

		if h.server != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := h.server.Shutdown(shutdownCtx); err != nil {
				stopErr = fmt.Errorf("wsserver: shutdown: %w", err)
			}
		}

		slog.Info("[INFO-WS] monitor server stopped")
	})
	return stopErr
}

// URL returns the monitor endpoint, e.g. "ws://127.0.0.1:54321/ws", or ""
// before Start.
func (h *Hub) URL() string {
	return h.url
}

// HasActiveConnection reports whether a monitor client is connected.
func (h *Hub) HasActiveConnection() bool {
	h.mu.RLock()
	active := h.conn != nil
	h.mu.RUnlock()
	return active
}

// Subscribed reports whether the current client receives topic.
func (h *Hub) Subscribed(topic Topic) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.conn != nil && h.subscribed[topic]
}

// clearIfCurrent drops conn if it is still the current connection.
// Caller must not hold h.mu.
func (h *Hub) clearIfCurrent(conn *websocket.Conn) bool {
	h.mu.Lock()
	isCurrent := h.conn == conn
	if isCurrent {
		h.conn = nil
		h.subscribed = make(map[Topic]bool)
	}
	h.mu.Unlock()
	return isCurrent
}

// closeConn closes conn. Double close returns an error and is otherwise
// harmless, so it is only logged at Debug.
func (h *Hub) closeConn(conn *websocket.Conn, reason string) {
	if closeErr := conn.Close(); closeErr != nil {
		slog.Debug("[DEBUG-WS] connection close", "reason", reason, "error", closeErr)
	}
}

// writeFrame writes one message under writeMu with a deadline. On failure
// the connection is dropped. Caller must not hold h.mu.
func (h *Hub) writeFrame(conn *websocket.Conn, msgType int, data []byte, reason string) bool {
	h.writeMu.Lock()
	if err := conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
		h.writeMu.Unlock()
		slog.Warn("[WARN-WS] SetWriteDeadline failed, closing connection", "error", err)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "SetWriteDeadline failure")
		return false
	}
	err := conn.WriteMessage(msgType, data)
	if clearErr := conn.SetWriteDeadline(time.Time{}); clearErr != nil {
		slog.Debug("[DEBUG-WS] clear write deadline failed", "error", clearErr)
	}
	h.writeMu.Unlock()

	if err != nil {
		slog.Warn("[WARN-WS] write failed, closing connection", "reason", reason, "error", err)
		h.clearIfCurrent(conn)
		h.closeConn(conn, reason)
		return false
	}
	return true
}

// Broadcast sends payload on topic if a client is connected and subscribed.
// It is safe to call from any goroutine and never blocks longer than the
// write deadline. It reports whether a frame was written.
func (h *Hub) Broadcast(topic Topic, payload any) bool {
	h.mu.RLock()
	conn := h.conn
	subscribed := h.subscribed[topic]
	h.mu.RUnlock()

	// The connection may be replaced between RUnlock and the write. A write
	// on the stale conn fails and clearIfCurrent leaves the newer one alone.
	if conn == nil || !subscribed {
		return false
	}

	frame, err := EncodeFrame(topic, h.seq.Add(1), payload)
	if err != nil {
		slog.Warn("[WARN-WS] failed to encode frame", "topic", topic, "error", err)
		return false
	}
	return h.writeFrame(conn, websocket.TextMessage, frame, "broadcast "+string(topic))
}

// handleWS upgrades the request and runs the read pump for the connection.
func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("[WARN-WS] upgrade failed", "error", err)
		return
	}

	conn.SetReadLimit(maxReadMessageSize)
	if err := conn.SetReadDeadline(time.Now().Add(readDeadline)); err != nil {
		slog.Warn("[WARN-WS] SetReadDeadline failed on new connection", "error", err)
		h.closeConn(conn, "initial SetReadDeadline failure")
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readDeadline))
	})

	h.mu.Lock()
	oldConn := h.conn
	h.conn = conn
	h.subscribed = make(map[Topic]bool)
	h.mu.Unlock()

	if oldConn != nil {
		h.closeConn(oldConn, "replaced by new connection")
	}

	slog.Info("[INFO-WS] monitor connected", "remoteAddr", conn.RemoteAddr())

	pingDone := make(chan struct{})
	go h.pingLoop(conn, pingDone)

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[ERROR-PANIC] wsserver handleWS recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
		}
		close(pingDone)
		h.clearIfCurrent(conn)
		h.closeConn(conn, "read pump exit")
		slog.Info("[INFO-WS] monitor disconnected")
	}()

	for {
		msgType, msg, readErr := conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("[WARN-WS] read error", "error", readErr)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		var subMsg subscribeMsg
		if jsonErr := json.Unmarshal(msg, &subMsg); jsonErr != nil {
			slog.Debug("[DEBUG-WS] invalid JSON from client", "error", jsonErr)
			h.sendError(conn, fmt.Sprintf("invalid JSON: %s", jsonErr))
			continue
		}
		if errMsg := h.handleSubscription(conn, subMsg); errMsg != "" {
			h.sendError(conn, errMsg)
		}
	}
}

// pingLoop sends keepalive pings until done is closed or a ping fails.
func (h *Hub) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("[ERROR-PANIC] wsserver pingLoop recovered",
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			h.clearIfCurrent(conn)
			h.closeConn(conn, "pingLoop panic recovery")
		}
	}()

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if !h.writeFrame(conn, websocket.PingMessage, nil, "ping") {
				return
			}
		}
	}
}

// handleSubscription applies msg to the current connection's topic set and
// returns a client-facing error message, or "" on success.
func (h *Hub) handleSubscription(conn *websocket.Conn, msg subscribeMsg) string {
	h.mu.Lock()
	defer h.mu.Unlock()

	// A replaced connection may still deliver queued messages.
	if h.conn != conn {
		slog.Debug("[DEBUG-WS] subscription from stale connection, skipping")
		return ""
	}

	var enable bool
	switch msg.Action {
	case subscribeAction:
		enable = true
	case unsubscribeAction:
		enable = false
	default:
		slog.Debug("[DEBUG-WS] unknown action", "action", msg.Action)
		return fmt.Sprintf("unknown action %q", msg.Action)
	}

	var unknown []string
	for _, topic := range msg.Topics {
		if !topic.Valid() {
			unknown = append(unknown, string(topic))
			continue
		}
		if enable {
			h.subscribed[topic] = true
		} else {
			delete(h.subscribed, topic)
		}
		slog.Debug("[DEBUG-WS] subscription changed", "topic", topic, "subscribed", enable)
	}
	if len(unknown) > 0 {
		return fmt.Sprintf("unknown topics: %v", unknown)
	}
	return ""
}

// sendError writes a JSON error notice to conn.
func (h *Hub) sendError(conn *websocket.Conn, message string) {
	payload, err := json.Marshal(errorMsg{Type: "error", Message: message})
	if err != nil {
		slog.Debug("[DEBUG-WS] failed to marshal error message", "error", err)
		return
	}
	h.writeFrame(conn, websocket.TextMessage, payload, "sendError")
}
