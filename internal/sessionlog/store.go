package sessionlog

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultMaxEntries bounds the in-memory log.
	DefaultMaxEntries = 2000
	// DefaultMaxFiles bounds the JSONL files kept in the log directory.
	DefaultMaxFiles = 30
	// notifyMinInterval throttles update pings to the UI.
	notifyMinInterval = 50 * time.Millisecond

	timestampLayout = "20060102150405"
)

// Entry is one captured record.
type Entry struct {
	// Seq increases for the lifetime of the store and lets the UI dedupe.
	Seq       uint64 `json:"seq"`
	Timestamp string `json:"ts"`
	Level     string `json:"level"`
	Message   string `json:"msg"`
	Source    string `json:"source"`
}

// ring is a fixed-capacity circular buffer. Callers hold Store.mu.
type ring struct {
	buf   []Entry
	head  int
	count int
}

func newRing(capacity int) ring {
	return ring{buf: make([]Entry, max(capacity, 1))}
}

func (r *ring) push(e Entry) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	r.buf[r.head] = e
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring) snapshot() []Entry {
	out := make([]Entry, 0, r.count)
	for i := range r.count {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}

// Store is the session log: an in-memory ring mirrored to a JSONL file.
type Store struct {
	mu       sync.Mutex
	entries  ring
	seq      uint64
	file     *os.File
	path     string
	lastPing time.Time
	notify   func()
	now      func() time.Time
}

// NewStore returns a store holding up to maxEntries. notify, if set, is called
// outside the lock after appends, at most once per 50ms.
func NewStore(maxEntries int, notify func()) *Store {
	if maxEntries <= 0 {
		maxEntries = DefaultMaxEntries
	}
	return &Store{entries: newRing(maxEntries), notify: notify, now: time.Now}
}

// OpenFile starts mirroring entries to a new JSONL file in dir and prunes the
// oldest files beyond maxFiles.
func (s *Store) OpenFile(dir string, maxFiles int) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create session log dir: %w", err)
	}
	name := fmt.Sprintf("session-%s-%d.jsonl", s.now().Format("20060102-150405"), os.Getpid())
	path := filepath.Join(dir, name)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}

	s.mu.Lock()
	old := s.file
	s.file = f
	s.path = path
	s.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}

	if maxFiles <= 0 {
		maxFiles = DefaultMaxFiles
	}
	pruneOldFiles(dir, name, maxFiles)
	return nil
}

// Path returns the active JSONL file, or "" when none is open.
func (s *Store) Path() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.path
}

// Callback adapts the store to TeeHandler.
func (s *Store) Callback() EntryCallback {
	return func(ts time.Time, level slog.Level, msg string, group string) {
		s.Append(Entry{
			Timestamp: ts.Format(timestampLayout),
			Level:     strings.ToLower(level.String()),
			Message:   msg,
			Source:    group,
		})
	}
}

// Append records e and assigns its sequence number.
// It must not log through slog: the TeeHandler calls it.
func (s *Store) Append(e Entry) {
	s.mu.Lock()
	s.seq++
	e.Seq = s.seq
	s.entries.push(e)

	var writeErr error
	if s.file != nil {
		raw, err := json.Marshal(e)
		if err == nil {
			_, err = s.file.Write(append(raw, '\n'))
		}
		writeErr = err
	}

	ping := false
	if now := s.now(); now.Sub(s.lastPing) >= notifyMinInterval {
		s.lastPing = now
		ping = true
	}
	notify := s.notify
	s.mu.Unlock()

	if writeErr != nil {
		fmt.Fprintf(os.Stderr, "[session-log] failed to write entry: %v\n", writeErr)
	}
	if ping && notify != nil {
		notify()
	}
}

// Entries returns the buffered entries, oldest first.
func (s *Store) Entries() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries.snapshot()
}

// Close flushes and closes the JSONL file.
func (s *Store) Close() error {
	s.mu.Lock()
	f := s.file
	s.file = nil
	s.mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

func pruneOldFiles(dir, current string, maxFiles int) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[session-log] failed to read log dir: %v\n", err)
		return
	}
	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() && strings.HasPrefix(name, "session-") && strings.HasSuffix(name, ".jsonl") {
			names = append(names, name)
		}
	}
	// Names start with a sortable timestamp.
	slices.Sort(names)
	excess := len(names) - maxFiles
	for _, name := range names {
		if excess <= 0 {
			return
		}
		if name == current {
			continue
		}
		if err := os.Remove(filepath.Join(dir, name)); err != nil {
			fmt.Fprintf(os.Stderr, "[session-log] failed to delete %s: %v\n", name, err)
			continue
		}
		excess--
	}
}
