package daemon

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"murmur/internal/config"
)

func writeConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, _ := config.Default()
	cfg.Paths.ConfigPath = dir + "/config.toml"
	cfg.Paths.PidPath = dir + "/murmur.pid"
	if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
		t.Fatalf("save cfg: %v", err)
	}
	return cfg
}

func TestWaitForShutdownSucceedsWhenPidFileRemoved(t *testing.T) {
	cfg := writeConfig(t)
	if err := os.WriteFile(cfg.Paths.PidPath, []byte("12345"), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	go func() {
		time.Sleep(100 * time.Millisecond)
		_ = os.Remove(cfg.Paths.PidPath)
	}()
	if err := waitForShutdown(cfg.Paths.ConfigPath, 2*time.Second); err != nil {
		t.Fatalf("expected success, got %v", err)
	}
}

func TestWaitForShutdownTimesOutOnAlivePid(t *testing.T) {
	cfg := writeConfig(t)
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		t.Fatalf("write pid: %v", err)
	}
	if err := waitForShutdown(cfg.Paths.ConfigPath, 300*time.Millisecond); err == nil {
		t.Fatalf("expected timeout error")
	}
}

func TestEnsureNotRunning(t *testing.T) {
	cfg := writeConfig(t)
	if err := ensureNotRunning(cfg); err != nil {
		t.Fatalf("no pid file: %v", err)
	}
	_ = os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644)
	if err := ensureNotRunning(cfg); err == nil || !strings.Contains(err.Error(), "already running") {
		t.Fatalf("live pid: %v", err)
	}
	_ = os.WriteFile(cfg.Paths.PidPath, []byte("garbage"), 0o644)
	if err := ensureNotRunning(cfg); err != nil {
		t.Fatalf("unparsable pid: %v", err)
	}
}

func TestRuntimeEnvFromFlags(t *testing.T) {
	cmd := NewServeCmd(new(string))
	if env := runtimeEnv(cmd); len(env) != 0 {
		t.Fatalf("unset flags produced %v", env)
	}
	_ = cmd.Flags().Set("mode", "push_to_talk")
	_ = cmd.Flags().Set("metrics-addr", "127.0.0.1:1")
	env := runtimeEnv(cmd)
	want := []string{"MURMUR_METRICS_ADDR=127.0.0.1:1", "MURMUR_RECORDING_MODE=push_to_talk"}
	if strings.Join(env, ",") != strings.Join(want, ",") {
		t.Fatalf("env = %v", env)
	}
}

func TestWaitForSocketTimesOut(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "none.sock")
	start := time.Now()
	if err := waitForSocket(context.Background(), sock, 250*time.Millisecond); err == nil {
		t.Fatalf("expected error without daemon")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("timeout not honored")
	}
}
