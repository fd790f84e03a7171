package sessionlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"
)

func TestStoreRingKeepsNewest(t *testing.T) {
	s := NewStore(3, nil)
	for i := range 5 {
		s.Append(Entry{Message: fmt.Sprintf("m%d", i)})
	}
	got := s.Entries()
	var msgs []string
	var seqs []uint64
	for _, e := range got {
		msgs = append(msgs, e.Message)
		seqs = append(seqs, e.Seq)
	}
	if !slices.Equal(msgs, []string{"m2", "m3", "m4"}) {
		t.Fatalf("messages = %v", msgs)
	}
	if !slices.Equal(seqs, []uint64{3, 4, 5}) {
		t.Fatalf("seqs = %v", seqs)
	}
}

func TestStoreEntriesEmpty(t *testing.T) {
	if got := NewStore(0, nil).Entries(); got == nil || len(got) != 0 {
		t.Fatalf("Entries() = %#v, want empty non-nil", got)
	}
}

func TestStoreNotifyThrottled(t *testing.T) {
	pings := 0
	s := NewStore(10, func() { pings++ })
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Append(Entry{Message: "a"})
	s.Append(Entry{Message: "b"})
	if pings != 1 {
		t.Fatalf("pings = %d, want 1 within throttle window", pings)
	}
	now = now.Add(notifyMinInterval)
	s.Append(Entry{Message: "c"})
	if pings != 2 {
		t.Fatalf("pings = %d, want 2 after window", pings)
	}
}

func TestStoreCallbackFormatsEntry(t *testing.T) {
	s := NewStore(10, nil)
	ts := time.Date(2026, 3, 1, 12, 30, 45, 0, time.UTC)
	s.Callback()(ts, slog.LevelWarn, "wheel removed", "devices")

	got := s.Entries()
	want := Entry{Seq: 1, Timestamp: "20260301123045", Level: "warn", Message: "wheel removed", Source: "devices"}
	if len(got) != 1 || got[0] != want {
		t.Fatalf("Entries() = %+v, want %+v", got, want)
	}
}

func TestStoreMirrorsToFile(t *testing.T) {
	dir := t.TempDir()
	s := NewStore(10, nil)
	if err := s.OpenFile(dir, 5); err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	s.Append(Entry{Level: "error", Message: "hook failed"})
	path := s.Path()
	if err := s.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open log file: %v", err)
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	if !scanner.Scan() {
		t.Fatal("log file is empty")
	}
	var e Entry
	if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if e.Seq != 1 || e.Message != "hook failed" {
		t.Fatalf("file entry = %+v", e)
	}
}

func TestOpenFilePrunesOldFiles(t *testing.T) {
	dir := t.TempDir()
	for i := range 4 {
		name := fmt.Sprintf("session-20250101-00000%d-1.jsonl", i)
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), nil, 0o600); err != nil {
		t.Fatal(err)
	}

	s := NewStore(10, nil)
	if err := s.OpenFile(dir, 2); err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	current := filepath.Base(s.Path())
	want := []string{"notes.txt", "session-20250101-000003-1.jsonl", current}
	slices.Sort(want)
	if !slices.Equal(names, want) {
		t.Fatalf("files = %v, want %v", names, want)
	}
}
