package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"testing"

	"gtrainer/internal/testutil"
)

func newConfigPathForSaveTest(t *testing.T, elems ...string) string {
	t.Helper()
	localAppData := t.TempDir()
	t.Setenv("LOCALAPPDATA", localAppData)
	t.Setenv("APPDATA", "")

	defaultPath := DefaultPath()

	return filepath.Join(filepath.Dir(defaultPath), filepath.Join(elems...))
}

func writeConfigFile(t *testing.T, raw string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestPathWithinDir(t *testing.T) {
	baseDir := t.TempDir()
	configDir := filepath.Join(baseDir, "config")

	tests := []struct {
		name string
		path string
		dir  string
		want bool
	}{
		{
			name: "same path",
			path: configDir,
			dir:  configDir,
			want: true,
		},
		{
			name: "subdirectory path",
			path: filepath.Join(configDir, "sub", "config.yaml"),
			dir:  configDir,
			want: true,
		},
		{
			name: "traversal path",
			path: filepath.Join(configDir, "..", "outside.yaml"),
			dir:  configDir,
			want: false,
		},
		{
			name: "different path",
			path: filepath.Join(baseDir, "other", "config.yaml"),
			dir:  configDir,
			want: false,
		},
	}
	if runtime.GOOS == "windows" {
		tests = append(tests, struct {
			name string
			path string
			dir  string
			want bool
		}{
			name: "different drive",
			path: `D:\outside\config.yaml`,
			dir:  `C:\inside`,
			want: false,
		})
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := pathWithinDir(tt.path, tt.dir)
			if got != tt.want {
				t.Fatalf("pathWithinDir(%q, %q) = %v, want %v", tt.path, tt.dir, got, tt.want)
			}
		})
	}
}

func TestIsZeroConfig(t *testing.T) {
	if !isZeroConfig(Config{}) {
		t.Fatal("isZeroConfig(Config{}) = false, want true")
	}
	if isZeroConfig(DefaultConfig()) {
		t.Fatal("isZeroConfig(DefaultConfig()) = true, want false")
	}
	if isZeroConfig(Config{Bindings: []BindingRecord{}}) {
		t.Fatal("isZeroConfig(empty non-nil bindings) = true, want false")
	}
}

func TestDefaultPathUsesLocalAppDataWhenAvailable(t *testing.T) {
	t.Setenv("LOCALAPPDATA", `C:\Users\tester\AppData\Local`)
	t.Setenv("APPDATA", "")

	path := DefaultPath()

	want := filepath.Join(`C:\Users\tester\AppData\Local`, "gtrainer", "config.yaml")
	if path != want {
		t.Fatalf("DefaultPath() = %q, want %q", path, want)
	}
}

func TestDefaultPathFallsBackToAppData(t *testing.T) {
	t.Setenv("LOCALAPPDATA", "")
	t.Setenv("APPDATA", `C:\Users\tester\AppData\Roaming`)

	path := DefaultPath()

	want := filepath.Join(`C:\Users\tester\AppData\Roaming`, "gtrainer", "config.yaml")
	if path != want {
		t.Fatalf("DefaultPath() = %q, want %q", path, want)
	}
}

func TestDefaultPathFallsBackToTempDirWhenHomeDirUnavailable(t *testing.T) {
	originalUserHomeDirFn := userHomeDirFn
	t.Cleanup(func() {
		userHomeDirFn = originalUserHomeDirFn
	})
	ConsumeDefaultPathWarnings()
	t.Cleanup(func() {
		ConsumeDefaultPathWarnings()
	})
	logBuf := testutil.CaptureLogBuffer(t, slog.LevelWarn)

	userHomeDirFn = func() (string, error) {
		return "", errors.New("simulated home dir resolution failure")
	}
	t.Setenv("LOCALAPPDATA", "")
	t.Setenv("APPDATA", "")

	path := DefaultPath()
	want := filepath.Join(os.TempDir(), "gtrainer", "config.yaml")
	if path != want {
		t.Fatalf("DefaultPath() = %q, want %q", path, want)
	}
	if !strings.Contains(logBuf.String(), "using temp dir as config path fallback") {
		t.Fatalf("log output = %q, want temp-dir fallback warning", logBuf.String())
	}
	warnings := ConsumeDefaultPathWarnings()
	if len(warnings) == 0 || !strings.Contains(warnings[0], "Config path fallback") {
		t.Fatalf("ConsumeDefaultPathWarnings() = %v, want fallback message", warnings)
	}
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("Load(missing) = %+v, want defaults", cfg)
	}
}

func TestLoadRequiresPath(t *testing.T) {
	if _, err := Load(""); err == nil {
		t.Fatal("Load(\"\") expected error")
	}
}

func TestLoadReturnsDefaultsOnParseError(t *testing.T) {
	path := writeConfigFile(t, "bindings: [")

	cfg, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected parse error")
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestLoadIgnoresUnknownFields(t *testing.T) {
	path := writeConfigFile(t, "poll_interval_ms: 8\nshell: cmd.exe\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.PollIntervalMs != 8 {
		t.Fatalf("PollIntervalMs = %d, want 8", cfg.PollIntervalMs)
	}
}

func TestLoadFillsMissingFieldsWithDefaults(t *testing.T) {
	path := writeConfigFile(t, "websocket_port: 9000\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	want := DefaultConfig()
	want.WebSocketPort = 9000
	if !reflect.DeepEqual(cfg, want) {
		t.Fatalf("Load() = %+v, want %+v", cfg, want)
	}
}

func TestLoadPreservesExplicitEmptyBindings(t *testing.T) {
	path := writeConfigFile(t, "bindings: []\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bindings == nil || len(cfg.Bindings) != 0 {
		t.Fatalf("Bindings = %v, want explicit empty list", cfg.Bindings)
	}
}

func TestLoadRangeValidation(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantPoll    int
		wantTimeout int
		wantPort    int
	}{
		{name: "in range", raw: "poll_interval_ms: 5\ncapture_timeout_sec: 30\nwebsocket_port: 8080\n", wantPoll: 5, wantTimeout: 30, wantPort: 8080},
		{name: "poll too large", raw: "poll_interval_ms: 5000\n", wantPoll: 16, wantTimeout: 10},
		{name: "poll negative", raw: "poll_interval_ms: -1\n", wantPoll: 16, wantTimeout: 10},
		{name: "timeout too large", raw: "capture_timeout_sec: 600\n", wantPoll: 16, wantTimeout: 10},
		{name: "port out of range", raw: "websocket_port: 70000\n", wantPoll: 16, wantTimeout: 10, wantPort: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logBuf := testutil.CaptureLogBuffer(t, slog.LevelWarn)
			cfg, err := Load(writeConfigFile(t, tt.raw))
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.PollIntervalMs != tt.wantPoll {
				t.Errorf("PollIntervalMs = %d, want %d", cfg.PollIntervalMs, tt.wantPoll)
			}
			if cfg.CaptureTimeoutSec != tt.wantTimeout {
				t.Errorf("CaptureTimeoutSec = %d, want %d", cfg.CaptureTimeoutSec, tt.wantTimeout)
			}
			if cfg.WebSocketPort != tt.wantPort {
				t.Errorf("WebSocketPort = %d, want %d", cfg.WebSocketPort, tt.wantPort)
			}
			if tt.name != "in range" && !strings.Contains(logBuf.String(), "[WARN-CONFIG]") {
				t.Errorf("expected range warning, got %q", logBuf.String())
			}
		})
	}
}

func TestSanitizeBindings(t *testing.T) {
	logBuf := testutil.CaptureLogBuffer(t, slog.LevelWarn)
	cfg := Config{Bindings: []BindingRecord{
		{Action: "  god-mode ", Kind: "Gamepad", Key: "Ctrl+F1", Button: " A "},
		{Action: "god-mode", Kind: KindKeyboard, Key: "F2"},
		{Action: "", Kind: KindKeyboard, Key: "F3"},
		{Action: strings.Repeat("x", maxBindingActionBytes+1), Kind: KindKeyboard, Key: "F4"},
		{Action: "infinite-ammo", Kind: "joystick", Button: "B"},
		{Action: "no-reload", Kind: KindKeyboard, Key: "Ctrl+F5", Button: "X"},
		{Action: "slow-mo"},
	}}
	sanitizeBindings(&cfg)

	want := []BindingRecord{
		{Action: "god-mode", Kind: KindGamepad, Button: "A"},
		{Action: "infinite-ammo", Kind: KindUnbound},
		{Action: "no-reload", Kind: KindKeyboard, Key: "Ctrl+F5"},
		{Action: "slow-mo", Kind: KindUnbound},
	}
	if !reflect.DeepEqual(cfg.Bindings, want) {
		t.Fatalf("Bindings = %+v, want %+v", cfg.Bindings, want)
	}
	for _, sub := range []string{"duplicate action", "invalid action", "unknown kind"} {
		if !strings.Contains(logBuf.String(), sub) {
			t.Errorf("log output missing %q: %q", sub, logBuf.String())
		}
	}
}

func TestSanitizeExcludeNames(t *testing.T) {
	got := sanitizeExcludeNames([]string{" XBOX ", "", "  ", "Logitech G29"})
	want := []string{"xbox", "logitech g29"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("sanitizeExcludeNames() = %v, want %v", got, want)
	}
}

func TestSave(t *testing.T) {
	t.Run("valid config", func(t *testing.T) {
		path := newConfigPathForSaveTest(t, "sub", "config.yaml")
		if _, err := Save(path, DefaultConfig()); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("stat config: %v", err)
		}
		if info.IsDir() {
			t.Fatal("Save() created a directory instead of file")
		}
	})

	t.Run("round trip", func(t *testing.T) {
		path := newConfigPathForSaveTest(t, "config.yaml")
		cfg := DefaultConfig()
		cfg.PollIntervalMs = 8
		cfg.CaptureTimeoutSec = 15
		cfg.WheelExcludeNames = []string{"virtual"}
		cfg.Bindings = []BindingRecord{
			{Action: ActionToggleWindow, Kind: KindKeyboard, Key: "Ctrl+Alt+T"},
			{Action: "god-mode", Kind: KindGamepad, Button: "A"},
			{Action: "nitro", Kind: KindWheel, Button: "WheelButton3"},
			{Action: "slow-mo", Kind: KindUnbound},
		}

		if _, err := Save(path, cfg); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if !reflect.DeepEqual(loaded, cfg) {
			t.Fatalf("round trip = %+v, want %+v", loaded, cfg)
		}
	})

	t.Run("returns normalized config", func(t *testing.T) {
		path := newConfigPathForSaveTest(t, "config.yaml")
		normalized, err := Save(path, Config{})
		if err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		if !reflect.DeepEqual(normalized, DefaultConfig()) {
			t.Fatalf("normalized = %+v, want defaults", normalized)
		}
	})

	t.Run("rejects empty path", func(t *testing.T) {
		if _, err := Save("", DefaultConfig()); err == nil {
			t.Fatal("Save() expected empty path error")
		}
	})

	t.Run("rejects whitespace-only path", func(t *testing.T) {
		if _, err := Save("   ", DefaultConfig()); err == nil {
			t.Fatal("Save() expected whitespace-only path error")
		}
	})

	t.Run("overwrites existing file", func(t *testing.T) {
		path := newConfigPathForSaveTest(t, "config.yaml")

		cfg1 := DefaultConfig()
		cfg1.PollIntervalMs = 20
		if _, err := Save(path, cfg1); err != nil {
			t.Fatalf("Save() initial error = %v", err)
		}

		cfg2 := DefaultConfig()
		cfg2.PollIntervalMs = 33
		if _, err := Save(path, cfg2); err != nil {
			t.Fatalf("Save() overwrite error = %v", err)
		}

		loaded, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if loaded.PollIntervalMs != 33 {
			t.Errorf("PollIntervalMs = %d, want 33 (overwrite failed)", loaded.PollIntervalMs)
		}
	})

	t.Run("rejects path outside default config directory", func(t *testing.T) {
		_ = newConfigPathForSaveTest(t, "config.yaml")
		outsidePath := filepath.Join(t.TempDir(), "outside-config.yaml")

		if _, err := Save(outsidePath, DefaultConfig()); err == nil {
			t.Fatal("Save() expected path validation error")
		}
	})

	t.Run("leaves no temp files behind", func(t *testing.T) {
		path := newConfigPathForSaveTest(t, "config.yaml")
		if _, err := Save(path, DefaultConfig()); err != nil {
			t.Fatalf("Save() error = %v", err)
		}
		entries, err := os.ReadDir(filepath.Dir(path))
		if err != nil {
			t.Fatalf("read dir: %v", err)
		}
		for _, entry := range entries {
			if strings.HasPrefix(entry.Name(), ".config.yaml.tmp.") {
				t.Fatalf("temp file left behind: %s", entry.Name())
			}
		}
	})
}

func TestReadLimitedFileRejectsTooLargeFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "too-large.yaml")
	if err := os.WriteFile(path, make([]byte, 11), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	if _, err := readLimitedFile(path, 10); err == nil {
		t.Fatal("readLimitedFile() expected size error")
	}
}

func TestReadLimitedFileAllowsFileAtExactMaxBytes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "exact.yaml")
	if err := os.WriteFile(path, make([]byte, 10), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	raw, err := readLimitedFile(path, 10)
	if err != nil {
		t.Fatalf("readLimitedFile() error = %v", err)
	}
	if len(raw) != 10 {
		t.Fatalf("len(raw) = %d, want 10", len(raw))
	}
}

func TestValidateConfigPathReturnsErrorWhenDefaultConfigDirResolutionFails(t *testing.T) {
	original := defaultConfigDirFn
	t.Cleanup(func() {
		defaultConfigDirFn = original
	})

	defaultConfigDirFn = func() (string, error) {
		return "", errors.New("simulated default dir error")
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	if _, err := validateConfigPath(path); err == nil {
		t.Fatal("validateConfigPath() expected error when default config dir resolution fails")
	}
}

func TestConfigStructFieldCounts(t *testing.T) {
	// Clone must be revisited whenever a reference-typed field is added.
	if got := reflect.TypeFor[Config]().NumField(); got != 5 {
		t.Fatalf("Config has %d fields; update Clone and this test", got)
	}
	if got := reflect.TypeFor[BindingRecord]().NumField(); got != 4 {
		t.Fatalf("BindingRecord has %d fields; update Clone and this test", got)
	}
}

func TestCloneDeepCopyIndependence(t *testing.T) {
	src := DefaultConfig()
	dst := Clone(src)

	dst.WheelExcludeNames[0] = "mutated"
	dst.Bindings[0].Key = "F9"

	if src.WheelExcludeNames[0] != "xbox" {
		t.Fatalf("source WheelExcludeNames mutated: %v", src.WheelExcludeNames)
	}
	if src.Bindings[0].Key != "Ctrl+Shift+F12" {
		t.Fatalf("source Bindings mutated: %+v", src.Bindings)
	}
}

func TestClonePreservesNilCollections(t *testing.T) {
	dst := Clone(Config{})
	if dst.WheelExcludeNames != nil || dst.Bindings != nil {
		t.Fatalf("Clone(Config{}) = %+v, want nil collections", dst)
	}
}

func TestEnsureFileCreatesConfigFile(t *testing.T) {
	path := newConfigPathForSaveTest(t, "config.yaml")

	if _, err := EnsureFile(path); err != nil {
		t.Fatalf("EnsureFile() error = %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat config: %v", err)
	}
	if info.IsDir() {
		t.Fatalf("EnsureFile() created a directory instead of file")
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o077 != 0 {
		t.Fatalf("config file permissions = %o, want owner-only", info.Mode().Perm())
	}
}

func TestEnsureFileUsesExistingConfigFile(t *testing.T) {
	path := newConfigPathForSaveTest(t, "config.yaml")
	initial := []byte("poll_interval_ms: 25\n")
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		t.Fatalf("mkdir config dir: %v", err)
	}
	if err := os.WriteFile(path, initial, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := EnsureFile(path)
	if err != nil {
		t.Fatalf("EnsureFile() error = %v", err)
	}
	if cfg.PollIntervalMs != 25 {
		t.Fatalf("cfg.PollIntervalMs = %d, want 25", cfg.PollIntervalMs)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if string(raw) != string(initial) {
		t.Fatalf("existing config was unexpectedly replaced: %q", string(raw))
	}
}

func TestEnsureFileReturnsLoadedConfigWhenInitialSaveFails(t *testing.T) {
	_ = newConfigPathForSaveTest(t, "config.yaml")
	path := filepath.Join(t.TempDir(), "outside-default-config-dir.yaml")
	cfg, err := EnsureFile(path)
	if err == nil {
		t.Fatal("EnsureFile() expected save error for path outside default config dir")
	}
	if !reflect.DeepEqual(cfg, DefaultConfig()) {
		t.Fatalf("cfg = %+v, want defaults", cfg)
	}
}

func TestSaveConcurrentWrites(t *testing.T) {
	path := newConfigPathForSaveTest(t, "concurrent-config.yaml")

	const writers = 6
	const iterations = 30

	var wg sync.WaitGroup
	errCh := make(chan error, writers*iterations)

	for i := range writers {
		writerID := i
		wg.Go(func() {
			for j := range iterations {
				cfg := DefaultConfig()
				if (writerID+j)%2 == 0 {
					cfg.PollIntervalMs = 10
				} else {
					cfg.PollIntervalMs = 20
				}
				if _, err := Save(path, cfg); err != nil {
					errCh <- err
					return
				}
			}
		})
	}

	wg.Wait()
	close(errCh)

	for err := range errCh {
		if err != nil {
			t.Fatalf("Save() concurrent write error = %v", err)
		}
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() after concurrent writes error = %v", err)
	}
	if loaded.PollIntervalMs != 10 && loaded.PollIntervalMs != 20 {
		t.Fatalf("final PollIntervalMs = %d, want 10 or 20", loaded.PollIntervalMs)
	}
}

func TestDurationHelpers(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.PollInterval().Milliseconds(); got != 16 {
		t.Fatalf("PollInterval() = %dms, want 16ms", got)
	}
	if got := cfg.CaptureTimeout().Seconds(); got != 10 {
		t.Fatalf("CaptureTimeout() = %vs, want 10s", got)
	}
}
