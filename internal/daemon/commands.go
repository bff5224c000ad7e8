package daemon

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"murmur/internal/config"
	"murmur/internal/control"
	"murmur/internal/logging"
	"murmur/internal/run"

	"github.com/spf13/cobra"
)

// addRuntimeFlags registers per-run overrides, passed to the daemon as MURMUR_* env.
func addRuntimeFlags(cmd *cobra.Command) {
	cmd.Flags().String("metrics-addr", "", "enable metrics at address (e.g., 127.0.0.1:9318) for this run")
	cmd.Flags().String("mode", "", "recording mode for this run (toggle, push_to_talk)")
	cmd.Flags().String("engine", "", "transcription engine for this run (whisper, openai, echo)")
	cmd.Flags().String("device", "", "input device for this run")
}

func runtimeEnv(cmd *cobra.Command) []string {
	var env []string
	for flag, key := range map[string]string{
		"metrics-addr": "MURMUR_METRICS_ADDR",
		"mode":         "MURMUR_RECORDING_MODE",
		"engine":       "MURMUR_ASR_ENGINE",
		"device":       "MURMUR_DEVICE",
	} {
		if f := cmd.Flag(flag); f != nil && f.Changed {
			env = append(env, key+"="+f.Value.String())
		}
	}
	sort.Strings(env)
	return env
}

// NewStartCmd starts the daemon in the background, or in the foreground
// when run under a service manager.
func NewStartCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start murmur daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := ensureNotRunning(cfg); err != nil {
				return err
			}
			if fg, _ := cmd.Flags().GetBool("foreground"); fg {
				return serve(cmd, cfgPath)
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Paths.PidPath), 0o755); err != nil {
				return err
			}
			self, err := os.Executable()
			if err != nil {
				return err
			}
			child := exec.Command(self, "serve", "--config", cfg.Paths.ConfigPath)
			child.Env = append(os.Environ(), runtimeEnv(cmd)...)
			child.Stdout = os.Stdout
			child.Stderr = os.Stderr
			child.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
			if err := child.Start(); err != nil {
				return err
			}
			if err := waitForSocket(cmd.Context(), cfg.Paths.SocketPath, 3*time.Second); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: daemon not answering yet: %v (see `murmur tail-log`)\n", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "murmur started (pid %d)\n", child.Process.Pid)
			return nil
		},
	}
	cmd.Flags().Bool("foreground", false, "run in the foreground (for launchd/systemd)")
	addRuntimeFlags(cmd)
	return cmd
}

// NewServeCmd runs the daemon foreground (internal).
func NewServeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "serve",
		Short:  "Run murmur daemon (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd, cfgPath)
		},
	}
	addRuntimeFlags(cmd)
	return cmd
}

func serve(cmd *cobra.Command, cfgPath *string) error {
	for _, kv := range runtimeEnv(cmd) {
		k, v, _ := strings.Cut(kv, "=")
		if err := os.Setenv(k, v); err != nil {
			return fmt.Errorf("set %s: %w", k, err)
		}
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		return err
	}
	logger, err := logging.Configure(cfg)
	if err != nil {
		return err
	}
	return run.Serve(cfg, logger)
}

// NewStopCmd stops the daemon.
func NewStopCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop murmur daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			pid, err := readPID(cfg.Paths.PidPath)
			if err != nil {
				return fmt.Errorf("not running (%w)", err)
			}
			proc, err := os.FindProcess(pid)
			if err != nil {
				return err
			}
			if err := proc.Signal(syscall.SIGTERM); err != nil {
				return err
			}
			if wait, _ := cmd.Flags().GetBool("wait"); wait {
				if err := waitForShutdown(*cfgPath, 5*time.Second); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stop signal sent")
			return nil
		},
	}
	cmd.Flags().Bool("wait", false, "wait for the daemon to exit")
	return cmd
}

// NewRestartCmd stops then starts.
func NewRestartCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Restart murmur daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stopCmd := NewStopCmd(cfgPath)
			stopCmd.SetOut(cmd.OutOrStdout())
			_ = stopCmd.RunE(stopCmd, args) // ignore error if not running

			if err := waitForShutdown(*cfgPath, 5*time.Second); err != nil {
				return err
			}

			startCmd := NewStartCmd(cfgPath)
			startCmd.SetOut(cmd.OutOrStdout())
			startCmd.SetContext(cmd.Context())
			for _, name := range []string{"metrics-addr", "mode", "engine", "device"} {
				if f := cmd.Flag(name); f != nil && f.Changed {
					_ = startCmd.Flags().Set(name, f.Value.String())
				}
			}
			return startCmd.RunE(startCmd, args)
		},
	}
	addRuntimeFlags(cmd)
	return cmd
}

func ensureNotRunning(cfg *config.Config) error {
	pid, err := readPID(cfg.Paths.PidPath)
	if err != nil {
		return nil
	}
	if alive(pid) {
		return fmt.Errorf("already running with pid %d", pid)
	}
	return nil
}

func alive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, err
	}
	return pid, nil
}

// waitForSocket polls the control socket until the daemon answers health.
func waitForSocket(ctx context.Context, socketPath string, timeout time.Duration) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	for {
		resp, err := control.Call(ctx, socketPath, control.Request{Op: control.OpHealth})
		if err == nil && resp.OK {
			return nil
		}
		select {
		case <-ctx.Done():
			if err == nil {
				err = resp.Err()
			}
			return err
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func waitForShutdown(cfgPath string, timeout time.Duration) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pid, err := readPID(cfg.Paths.PidPath)
		if err != nil {
			return nil // pid file gone
		}
		if !alive(pid) {
			_ = os.Remove(cfg.Paths.PidPath)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("restart: daemon did not stop within %s", timeout)
}
