package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"murmur/internal/hotkey"

	"github.com/pelletier/go-toml/v2"
)

const (
	defaultStateDirLinux = ".local/state/murmur"
	defaultConfigDir     = ".config/murmur"
	defaultModelFile     = "ggml-base.en.bin"
	defaultBufferMinutes = 10
	defaultMaxEntries    = 5000
)

// Recording modes.
const (
	ModeToggle     = "toggle"
	ModePushToTalk = "push_to_talk"
)

// Transcription engine names.
const (
	EngineWhisper = "whisper"
	EngineOpenAI  = "openai"
	EngineEcho    = "echo"
)

// HotkeyConfig binds a key combination to a hotkey action.
type HotkeyConfig struct {
	Action  string `toml:"action"` // ToggleRecording, PushToTalk, OpenSettings, OpenTargetSelector
	Keys    string `toml:"keys"`   // e.g. "Ctrl+Shift+Space"
	Enabled bool   `toml:"enabled"`
}

// Config holds user configuration loaded from TOML.
type Config struct {
	Audio struct {
		DeviceName    string `toml:"device_name"`
		BufferMinutes int    `toml:"buffer_minutes"`
	} `toml:"audio"`

	Recording struct {
		Mode string `toml:"mode"` // toggle, push_to_talk
	} `toml:"recording"`

	Hotkeys []HotkeyConfig `toml:"hotkeys"`

	ASR struct {
		Engine    string `toml:"engine"` // whisper, openai, echo
		ModelID   string `toml:"model_id"`
		ModelPath string `toml:"model_path"`
		Language  string `toml:"language"`
		Threads   int    `toml:"threads"`
		OpenAI    struct {
			BaseURL   string `toml:"base_url"`
			Model     string `toml:"model"`
			APIKeyEnv string `toml:"api_key_env"`
			Timeout   int    `toml:"timeout_sec"`
		} `toml:"openai"`
		EchoText string `toml:"echo_text"`
	} `toml:"asr"`

	VAD struct {
		TrimSilence    bool `toml:"trim_silence"`
		Aggressiveness int  `toml:"aggressiveness"`
	} `toml:"vad"`

	Output struct {
		Clipboard bool `toml:"clipboard"`
		Hook      struct {
			Command     string            `toml:"command"`
			Args        []string          `toml:"args"`
			Prefix      string            `toml:"prefix"`
			TimeoutSec  float64           `toml:"timeout_sec"`
			CooldownSec float64           `toml:"cooldown_sec"`
			RedactPII   bool              `toml:"redact_pii"`
			Env         map[string]string `toml:"env"`
		} `toml:"hook"`
	} `toml:"output"`

	History struct {
		Enabled    bool `toml:"enabled"`
		MaxEntries int  `toml:"max_entries"`
		SaveAudio  bool `toml:"save_audio"`
	} `toml:"history"`

	Notify struct {
		Enabled bool `toml:"enabled"`
	} `toml:"notify"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"`
	} `toml:"logging"`

	Paths struct {
		StateDir   string `toml:"state_dir"`
		LogPath    string `toml:"log_path"`
		SocketPath string `toml:"socket_path"`
		PidPath    string `toml:"pid_path"`
		HistoryDir string `toml:"history_dir"`
		ModelsDir  string `toml:"models_dir"`
		ConfigPath string `toml:"-"`
	} `toml:"paths"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	// macOS prefers ~/Library/Application Support/murmur for state/logs
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "murmur")
	}

	cfg := &Config{}

	cfg.Audio.BufferMinutes = defaultBufferMinutes

	cfg.Recording.Mode = ModeToggle
	cfg.Hotkeys = DefaultHotkeys()

	cfg.ASR.Engine = EngineWhisper
	cfg.ASR.ModelID = defaultModelFile
	cfg.ASR.ModelPath = filepath.Join(stateDir, "models", defaultModelFile)
	cfg.ASR.Language = "en"
	cfg.ASR.OpenAI.Model = "whisper-1"
	cfg.ASR.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	cfg.ASR.OpenAI.Timeout = 60

	cfg.VAD.TrimSilence = false
	cfg.VAD.Aggressiveness = 2

	cfg.Output.Clipboard = false
	cfg.Output.Hook.TimeoutSec = 5
	cfg.Output.Hook.Env = map[string]string{}

	cfg.History.Enabled = true
	cfg.History.MaxEntries = defaultMaxEntries
	cfg.History.SaveAudio = true

	cfg.Notify.Enabled = false

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "murmur.log")
	cfg.Paths.SocketPath = filepath.Join(stateDir, "murmur.sock")
	cfg.Paths.PidPath = filepath.Join(stateDir, "murmur.pid")
	cfg.Paths.HistoryDir = filepath.Join(stateDir, "history")
	cfg.Paths.ModelsDir = filepath.Join(stateDir, "models")

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9318"

	return cfg, nil
}

// DefaultHotkeys returns the stock bindings. Settings and target selector
// are shipped disabled since they only make sense with a UI attached.
func DefaultHotkeys() []HotkeyConfig {
	return []HotkeyConfig{
		{Action: "ToggleRecording", Keys: "Ctrl+Shift+Space", Enabled: true},
		{Action: "PushToTalk", Keys: "Ctrl+Shift+R", Enabled: true},
		{Action: "OpenSettings", Keys: "Ctrl+Shift+Comma", Enabled: false},
		{Action: "OpenTargetSelector", Keys: "Ctrl+Shift+T", Enabled: false},
	}
}

// Load loads config from file, applying defaults.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}

	// Read if exists; otherwise write template.
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if err := Save(cfg, path); err != nil {
				return nil, err
			}
			cfg.Paths.ConfigPath = path
			applyEnvOverrides(cfg)
			return cfg, Validate(cfg)
		}
		return nil, err
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// Validate rejects settings the daemon cannot act on.
func Validate(cfg *Config) error {
	switch cfg.Recording.Mode {
	case ModeToggle, ModePushToTalk:
	default:
		return fmt.Errorf("recording.mode must be %q or %q (got %q)", ModeToggle, ModePushToTalk, cfg.Recording.Mode)
	}
	switch cfg.ASR.Engine {
	case EngineWhisper, EngineOpenAI, EngineEcho:
	default:
		return fmt.Errorf("asr.engine must be whisper, openai or echo (got %q)", cfg.ASR.Engine)
	}
	if cfg.VAD.Aggressiveness < 0 || cfg.VAD.Aggressiveness > 3 {
		return fmt.Errorf("vad.aggressiveness must be 0-3 (got %d)", cfg.VAD.Aggressiveness)
	}
	if _, err := hotkey.ParseBindings(HotkeySpecs(cfg)); err != nil {
		return err
	}
	if cfg.Audio.BufferMinutes <= 0 {
		cfg.Audio.BufferMinutes = defaultBufferMinutes
	}
	if cfg.History.MaxEntries <= 0 {
		cfg.History.MaxEntries = defaultMaxEntries
	}
	return nil
}

// HotkeySpecs converts configured bindings for hotkey.ParseBindings.
func HotkeySpecs(cfg *Config) []hotkey.BindingSpec {
	out := make([]hotkey.BindingSpec, 0, len(cfg.Hotkeys))
	for _, h := range cfg.Hotkeys {
		out = append(out, hotkey.BindingSpec{Action: h.Action, Keys: h.Keys, Enabled: h.Enabled})
	}
	return out
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	for _, p := range []string{cfg.Paths.StateDir, filepath.Dir(cfg.Paths.LogPath), cfg.Paths.HistoryDir} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("MURMUR_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("MURMUR_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MURMUR_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MURMUR_RECORDING_MODE"); v != "" {
		cfg.Recording.Mode = strings.ToLower(v)
	}
	if v := os.Getenv("MURMUR_ASR_ENGINE"); v != "" {
		cfg.ASR.Engine = strings.ToLower(v)
	}
	if v := os.Getenv("MURMUR_DEVICE"); v != "" {
		cfg.Audio.DeviceName = v
	}
	if v := os.Getenv("MURMUR_REDACT_PII"); v != "" {
		cfg.Output.Hook.RedactPII = v != "0" && strings.ToLower(v) != "false"
	}
	if v := os.Getenv("MURMUR_HISTORY_ENABLED"); v != "" {
		cfg.History.Enabled = v != "0" && strings.ToLower(v) != "false"
	}
}

// ModelPath resolves a bare model file name against the models dir.
func ModelPath(cfg *Config, name string) string {
	if strings.ContainsAny(name, `/\`) {
		return name
	}
	return filepath.Join(cfg.Paths.ModelsDir, name)
}
