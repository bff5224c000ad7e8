package config

import (
	"os"
	"strings"
	"testing"
)

func TestEnvOverrides(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.ConfigPath = "/tmp/config" // avoid creation

	t.Setenv("MURMUR_METRICS_ADDR", "1.2.3.4:9999")
	t.Setenv("MURMUR_LOG_LEVEL", "debug")
	t.Setenv("MURMUR_LOG_FORMAT", "json")
	t.Setenv("MURMUR_RECORDING_MODE", "PUSH_TO_TALK")
	t.Setenv("MURMUR_ASR_ENGINE", "echo")
	t.Setenv("MURMUR_DEVICE", "USB Mic")
	t.Setenv("MURMUR_HISTORY_ENABLED", "0")

	applyEnvOverrides(cfg)

	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "1.2.3.4:9999" {
		t.Fatalf("metrics override failed: %+v", cfg.Metrics)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging overrides failed: %+v", cfg.Logging)
	}
	if cfg.Recording.Mode != ModePushToTalk {
		t.Fatalf("recording mode override failed: %q", cfg.Recording.Mode)
	}
	if cfg.ASR.Engine != EngineEcho {
		t.Fatalf("engine override failed: %q", cfg.ASR.Engine)
	}
	if cfg.Audio.DeviceName != "USB Mic" {
		t.Fatalf("device override failed: %q", cfg.Audio.DeviceName)
	}
	if cfg.History.Enabled {
		t.Fatalf("history should be disabled via env")
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.toml"

	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Paths.ConfigPath = path
	cfg.Audio.DeviceName = "Built-in Microphone"
	cfg.Recording.Mode = ModePushToTalk

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Audio.DeviceName != "Built-in Microphone" {
		t.Fatalf("expected device name to persist")
	}
	if loaded.Recording.Mode != ModePushToTalk {
		t.Fatalf("expected recording mode to persist, got %q", loaded.Recording.Mode)
	}
	if len(loaded.Hotkeys) != len(DefaultHotkeys()) {
		t.Fatalf("expected %d hotkeys, got %d", len(DefaultHotkeys()), len(loaded.Hotkeys))
	}

	// cleanup to avoid residue
	_ = os.Remove(path)
}

func TestLoadWritesTemplateWhenMissing(t *testing.T) {
	path := t.TempDir() + "/nested/config.toml"
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Paths.ConfigPath != path {
		t.Fatalf("config path not recorded: %q", cfg.Paths.ConfigPath)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("template not written: %v", err)
	}
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"mode", func(c *Config) { c.Recording.Mode = "hold" }, "recording.mode"},
		{"engine", func(c *Config) { c.ASR.Engine = "vosk" }, "asr.engine"},
		{"vad", func(c *Config) { c.VAD.Aggressiveness = 7 }, "vad.aggressiveness"},
		{"hotkey keys", func(c *Config) { c.Hotkeys[0].Keys = "Space" }, "modifier"},
		{"hotkey action", func(c *Config) { c.Hotkeys[0].Action = "Dance" }, "unknown action"},
		{"hotkey duplicate", func(c *Config) { c.Hotkeys[1].Keys = c.Hotkeys[0].Keys }, "bound to both"},
	}
	for _, c := range cases {
		cfg, _ := Default()
		c.mutate(cfg)
		err := Validate(cfg)
		if err == nil || !strings.Contains(err.Error(), c.want) {
			t.Fatalf("%s: expected error mentioning %q, got %v", c.name, c.want, err)
		}
	}
}

func TestModelPathResolvesBareNames(t *testing.T) {
	cfg, _ := Default()
	cfg.Paths.ModelsDir = "/models"
	if got := ModelPath(cfg, "ggml-tiny.bin"); got != "/models/ggml-tiny.bin" {
		t.Fatalf("bare name resolved to %q", got)
	}
	if got := ModelPath(cfg, "/opt/m.bin"); got != "/opt/m.bin" {
		t.Fatalf("absolute path rewritten to %q", got)
	}
}
