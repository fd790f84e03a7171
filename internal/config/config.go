package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	maxConfigFileBytes int64 = 1 << 20 // 1MB
	maxRenameRetry           = 10
	// Windows file lock releases (antivirus/indexing) typically settle quickly.
	// Use a short linear backoff: baseDelay * (1..maxRenameRetry).
	renameRetryBaseDelay = 10 * time.Millisecond
	// maxValidPort is the highest TCP/UDP port number (2^16 - 1).
	// Port 0 is valid and means "OS auto-assign".
	maxValidPort = 65535

	minPollIntervalMs     = 1
	maxPollIntervalMs     = 1000
	minCaptureTimeoutSec  = 1
	maxCaptureTimeoutSec  = 120
	maxBindingActionBytes = 64
)

// Binding kinds as written to disk.
const (
	KindUnbound  = "unbound"
	KindKeyboard = "keyboard"
	KindGamepad  = "gamepad"
	KindWheel    = "wheel"
)

// ActionToggleWindow is the built-in action that shows or hides the main window.
const ActionToggleWindow = "toggle-window"

// defaultConfigDirFn is a test seam; tests override it to simulate
// directory-resolution failures in validateConfigPath.
var defaultConfigDirFn = defaultConfigDir
var userHomeDirFn = os.UserHomeDir
var defaultPathWarningState struct {
	mu       sync.Mutex
	messages []string
}

func recordDefaultPathWarning(message string) {
	trimmed := strings.TrimSpace(message)
	if trimmed == "" {
		return
	}
	defaultPathWarningState.mu.Lock()
	defaultPathWarningState.messages = append(defaultPathWarningState.messages, trimmed)
	defaultPathWarningState.mu.Unlock()
}

// ConsumeDefaultPathWarnings returns and clears path-resolution warnings
// accumulated during DefaultPath() calls.
func ConsumeDefaultPathWarnings() []string {
	defaultPathWarningState.mu.Lock()
	defer defaultPathWarningState.mu.Unlock()
	if len(defaultPathWarningState.messages) == 0 {
		return nil
	}
	out := make([]string, len(defaultPathWarningState.messages))
	copy(out, defaultPathWarningState.messages)
	defaultPathWarningState.messages = nil
	return out
}

// BindingRecord is the persisted form of one hotkey binding.
// Exactly one of Key and Button is meaningful, selected by Kind.
// Key holds a combo such as "Ctrl+Shift+F12"; Button holds a button name
// such as "A" or "WheelButton3".
type BindingRecord struct {
	Action string `yaml:"action" json:"action"`
	Kind   string `yaml:"kind" json:"kind"`
	Key    string `yaml:"key,omitempty" json:"key,omitempty"`
	Button string `yaml:"button,omitempty" json:"button,omitempty"`
}

// Config is gtrainer runtime configuration.
type Config struct {
	// PollIntervalMs is the device poll period. 16ms is roughly one 60 Hz frame.
	PollIntervalMs int `yaml:"poll_interval_ms" json:"poll_interval_ms"`
	// CaptureTimeoutSec bounds how long a rebind waits for input.
	CaptureTimeoutSec int `yaml:"capture_timeout_sec" json:"capture_timeout_sec"`
	// WheelExcludeNames lists case-insensitive substrings of joystick product
	// names that are skipped during wheel discovery. XInput pads also show up
	// in the joystick API and would otherwise be reported twice.
	WheelExcludeNames []string `yaml:"wheel_exclude_names" json:"wheel_exclude_names"`
	// WebSocketPort is the port for the local input monitor stream.
	// 0 (default) lets the OS assign an available port.
	WebSocketPort int `yaml:"websocket_port" json:"websocket_port"`
	// Bindings is the hotkey table in display order.
	Bindings []BindingRecord `yaml:"bindings" json:"bindings"`
}

// DefaultConfig returns default values.
func DefaultConfig() Config {
	return Config{
		PollIntervalMs:    16,
		CaptureTimeoutSec: 10,
		WheelExcludeNames: []string{"xbox", "xinput"},
		Bindings: []BindingRecord{
			{Action: ActionToggleWindow, Kind: KindKeyboard, Key: "Ctrl+Shift+F12"},
		},
	}
}

// PollInterval returns the poll period as a duration.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// CaptureTimeout returns the capture deadline as a duration.
func (c Config) CaptureTimeout() time.Duration {
	return time.Duration(c.CaptureTimeoutSec) * time.Second
}

// DefaultPath resolves the config file path, preferring LOCALAPPDATA over
// APPDATA, falling back to ~/.config when both are unset, and then to
// os.TempDir() if the home directory cannot be resolved.
// The temp-dir fallback is not a stable persistence location and may vary
// between sessions depending on environment configuration.
func DefaultPath() string {
	base := strings.TrimSpace(os.Getenv("LOCALAPPDATA"))
	if base == "" {
		base = strings.TrimSpace(os.Getenv("APPDATA"))
	}
	if base == "" {
		home, err := userHomeDirFn()
		if err != nil {
			// Keep config path resolvable even in restricted environments.
			slog.Warn("[WARN-CONFIG] using temp dir as config path fallback", "error", err)
			recordDefaultPathWarning(
				"Config path fallback: failed to resolve LOCALAPPDATA/APPDATA/home directory. Using temp directory; settings persistence may be limited.",
			)
			base = os.TempDir()
		} else {
			base = filepath.Join(home, ".config")
		}
	}
	return filepath.Join(base, "gtrainer", "config.yaml")
}

// Load reads config file. If file does not exist, defaults are returned.
// A parse failure returns defaults together with the error so the caller
// can start anyway and surface a warning.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, errors.New("config path required")
	}

	raw, err := readLimitedFile(path, maxConfigFileBytes)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, err
	}
	if len(raw) == 0 {
		return cfg, nil
	}
	// Unmarshal into a zero value so an explicit empty bindings list is
	// distinguishable from a missing one.
	var parsed Config
	if err := yaml.Unmarshal(raw, &parsed); err != nil {
		slog.Warn("[WARN-CONFIG] failed to parse config, using defaults", "path", path, "error", err)
		return DefaultConfig(), err
	}
	if err := applyDefaultsAndValidate(&parsed); err != nil {
		return cfg, err
	}
	return parsed, nil
}

// EnsureFile writes default config if missing and returns loaded config.
func EnsureFile(path string) (Config, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
		if _, err := Save(path, cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// Clone returns a deep copy of cfg.
// Use this when sharing config snapshots across goroutines or package boundaries.
func Clone(src Config) Config {
	dst := src
	dst.WheelExcludeNames = cloneStringSlice(src.WheelExcludeNames)
	if src.Bindings != nil {
		dst.Bindings = make([]BindingRecord, len(src.Bindings))
		copy(dst.Bindings, src.Bindings)
	}
	return dst
}

func cloneStringSlice(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

// Save validates cfg, fills defaults, and atomically writes to path.
// Returns the normalized config that was actually written to disk.
// Uses the same normalization rules as Load.
func Save(path string, cfg Config) (Config, error) {
	normalizedPath, err := validateConfigPath(path)
	if err != nil {
		return cfg, err
	}
	if err := applyDefaultsAndValidate(&cfg); err != nil {
		return cfg, fmt.Errorf("save config: %w", err)
	}

	raw, err := yaml.Marshal(cfg)
	if err != nil {
		return cfg, fmt.Errorf("save config: marshal: %w", err)
	}
	if err := atomicWrite(normalizedPath, raw); err != nil {
		return cfg, err
	}
	slog.Debug("[DEBUG-CONFIG] config saved", "path", path)
	return cfg, nil
}

// atomicWrite writes config data using temp-file + rename to avoid partial
// writes and retries rename on Windows to tolerate transient file locks.
func atomicWrite(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err = os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("save config: mkdir: %w", err)
	}

	// Atomic write: temp file + rename in same directory ensures
	// same-filesystem rename and prevents partial writes on crash.
	tmpFile, err := os.CreateTemp(dir, ".config.yaml.tmp.*")
	if err != nil {
		return fmt.Errorf("save config: create temp: %w", err)
	}
	tmpPath := tmpFile.Name()

	defer func() {
		if tmpFile != nil {
			if closeErr := tmpFile.Close(); closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
				slog.Warn("[WARN-CONFIG] failed to close temp file", "path", tmpPath, "error", closeErr)
			}
		}
		if err != nil {
			if removeErr := os.Remove(tmpPath); removeErr != nil && !errors.Is(removeErr, os.ErrNotExist) {
				slog.Warn("[WARN-CONFIG] failed to remove temp file", "path", tmpPath, "error", removeErr)
			}
		}
	}()

	if err = tmpFile.Chmod(0o600); err != nil {
		return fmt.Errorf("save config: chmod temp: %w", err)
	}
	if _, err = tmpFile.Write(data); err != nil {
		return fmt.Errorf("save config: write: %w", err)
	}
	if err = tmpFile.Sync(); err != nil {
		return fmt.Errorf("save config: sync: %w", err)
	}
	err = tmpFile.Close()
	tmpFile = nil
	if err != nil {
		return fmt.Errorf("save config: close: %w", err)
	}

	if err = renameFileWithRetry(tmpPath, path); err != nil {
		return fmt.Errorf("save config: rename: %w", err)
	}
	return nil
}

// validateConfigPath normalizes path and enforces that config writes stay
// inside the default config directory when that directory is resolvable.
func validateConfigPath(path string) (string, error) {
	trimmedPath := strings.TrimSpace(path)
	if trimmedPath == "" {
		return "", errors.New("config path required")
	}
	absolutePath, err := filepath.Abs(trimmedPath)
	if err != nil {
		return "", fmt.Errorf("save config: resolve path: %w", err)
	}

	expectedDir, err := defaultConfigDirFn()
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	absoluteExpectedDir, err := filepath.Abs(expectedDir)
	if err != nil {
		return "", fmt.Errorf("save config: resolve config dir: %w", err)
	}
	if !pathWithinDir(absolutePath, absoluteExpectedDir) {
		return "", fmt.Errorf("save config: path outside config directory: %q", absolutePath)
	}

	return absolutePath, nil
}

func defaultConfigDir() (string, error) {
	return filepath.Dir(DefaultPath()), nil
}

// pathWithinDir blocks directory traversal by ensuring path is under dir.
// It also rejects Windows cross-drive escapes because filepath.Rel returns
// an absolute path when roots differ.
func pathWithinDir(path string, dir string) bool {
	relativePath, err := filepath.Rel(filepath.Clean(dir), filepath.Clean(path))
	if err != nil {
		return false
	}
	if relativePath == "." {
		return true
	}
	if relativePath == ".." || strings.HasPrefix(relativePath, ".."+string(os.PathSeparator)) {
		return false
	}
	return !filepath.IsAbs(relativePath)
}

// applyDefaultsAndValidate fills missing defaults and validates cfg in-place.
// MUTATES: cfg is directly modified.
// Used by both Load and Save to ensure consistent normalization.
// Out-of-range values fall back to defaults with a warning rather than failing,
// so a hand-edited config never prevents startup.
func applyDefaultsAndValidate(cfg *Config) error {
	defaults := DefaultConfig()
	if isZeroConfig(*cfg) {
		*cfg = defaults
		return nil
	}

	if cfg.PollIntervalMs == 0 {
		cfg.PollIntervalMs = defaults.PollIntervalMs
	} else if cfg.PollIntervalMs < minPollIntervalMs || cfg.PollIntervalMs > maxPollIntervalMs {
		slog.Warn("[WARN-CONFIG] poll_interval_ms out of range, using default",
			"configured", cfg.PollIntervalMs, "min", minPollIntervalMs, "max", maxPollIntervalMs)
		cfg.PollIntervalMs = defaults.PollIntervalMs
	}
	if cfg.CaptureTimeoutSec == 0 {
		cfg.CaptureTimeoutSec = defaults.CaptureTimeoutSec
	} else if cfg.CaptureTimeoutSec < minCaptureTimeoutSec || cfg.CaptureTimeoutSec > maxCaptureTimeoutSec {
		slog.Warn("[WARN-CONFIG] capture_timeout_sec out of range, using default",
			"configured", cfg.CaptureTimeoutSec, "min", minCaptureTimeoutSec, "max", maxCaptureTimeoutSec)
		cfg.CaptureTimeoutSec = defaults.CaptureTimeoutSec
	}
	if cfg.WheelExcludeNames == nil {
		cfg.WheelExcludeNames = cloneStringSlice(defaults.WheelExcludeNames)
	}
	cfg.WheelExcludeNames = sanitizeExcludeNames(cfg.WheelExcludeNames)
	if cfg.Bindings == nil {
		cfg.Bindings = append([]BindingRecord(nil), defaults.Bindings...)
	}
	validateWebSocketPort(cfg)
	sanitizeBindings(cfg)
	return nil
}

// validateWebSocketPort checks that WebSocketPort is within the valid TCP port
// range (0-65535). Port 0 means "let the OS auto-assign an available port".
// Invalid values are logged and reset to 0 (auto-assign).
func validateWebSocketPort(cfg *Config) {
	if cfg.WebSocketPort < 0 || cfg.WebSocketPort > maxValidPort {
		slog.Warn("[WARN-CONFIG] websocket_port out of valid range (0-65535), falling back to 0 (auto-assign)",
			"configured", cfg.WebSocketPort, "max", maxValidPort)
		cfg.WebSocketPort = 0
	}
}

func sanitizeExcludeNames(names []string) []string {
	out := make([]string, 0, len(names))
	for _, name := range names {
		trimmed := strings.ToLower(strings.TrimSpace(name))
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}

// sanitizeBindings normalizes binding records. Records with an empty or
// oversized action are dropped, as are later duplicates of an action.
// Unknown kinds become unbound. Key and button text are validated later by
// the binding table, which knows the key and button vocabularies.
func sanitizeBindings(cfg *Config) {
	seen := make(map[string]struct{}, len(cfg.Bindings))
	out := make([]BindingRecord, 0, len(cfg.Bindings))
	for i, rec := range cfg.Bindings {
		rec.Action = strings.TrimSpace(rec.Action)
		rec.Kind = strings.ToLower(strings.TrimSpace(rec.Kind))
		rec.Key = strings.TrimSpace(rec.Key)
		rec.Button = strings.TrimSpace(rec.Button)

		if rec.Action == "" || len(rec.Action) > maxBindingActionBytes {
			slog.Warn("[WARN-CONFIG] bindings: dropping record with invalid action",
				"index", i, "action", rec.Action)
			continue
		}
		if _, dup := seen[rec.Action]; dup {
			slog.Warn("[WARN-CONFIG] bindings: dropping duplicate action", "index", i, "action", rec.Action)
			continue
		}
		seen[rec.Action] = struct{}{}

		switch rec.Kind {
		case KindKeyboard:
			rec.Button = ""
		case KindGamepad, KindWheel:
			rec.Key = ""
		case KindUnbound, "":
			rec.Kind = KindUnbound
			rec.Key, rec.Button = "", ""
		default:
			slog.Warn("[WARN-CONFIG] bindings: unknown kind, treating as unbound",
				"action", rec.Action, "kind", rec.Kind)
			rec.Kind = KindUnbound
			rec.Key, rec.Button = "", ""
		}
		out = append(out, rec)
	}
	cfg.Bindings = out
}

func readLimitedFile(path string, maxBytes int64) ([]byte, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	limited := io.LimitReader(file, maxBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > maxBytes {
		return nil, fmt.Errorf("config file exceeds %d bytes", maxBytes)
	}
	return raw, nil
}

func isZeroConfig(cfg Config) bool {
	// reflect.DeepEqual guards against field-addition drift that manual checks miss.
	return reflect.DeepEqual(cfg, Config{})
}

func renameFileWithRetry(sourcePath string, targetPath string) error {
	var lastErr error
	for attempt := range maxRenameRetry {
		err := os.Rename(sourcePath, targetPath)
		if err == nil {
			return nil
		}
		lastErr = err
		if runtime.GOOS != "windows" {
			return err
		}
		time.Sleep(time.Duration(attempt+1) * renameRetryBaseDelay)
	}
	return lastErr
}
