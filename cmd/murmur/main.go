package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"murmur/internal/control"
	"murmur/internal/daemon"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "murmur",
		Short: "murmur: hotkey dictation daemon",
		Long: `murmur records from your microphone while a hotkey is held (or between two
presses), transcribes locally with whisper.cpp or via an OpenAI-compatible API,
and hands the text to your clipboard and/or a hook command.

Key commands:
  start|stop|restart                 Daemon lifecycle
  status [--json]                    Recording state, engine, last session
  record start|stop|cancel|toggle    Drive a recording from scripts
  events [--levels]                  Follow session events
  history list|show|delete|export    Past transcriptions
  mic list|set                       Select microphone
  models list|download|set           Manage whisper.cpp models
  transcribe <wav>                   Transcribe a file
  doctor|setup                       Check deps / download default model
  service install|uninstall|status   launchd / systemd --user helper

Env overrides: MURMUR_METRICS_ADDR, MURMUR_LOG_LEVEL, MURMUR_LOG_FORMAT,
               MURMUR_RECORDING_MODE, MURMUR_ASR_ENGINE, MURMUR_DEVICE,
               MURMUR_HISTORY_ENABLED`,
		Example: `  murmur start --metrics-addr 127.0.0.1:9318
  murmur record toggle
  murmur mic set "USB Mic"
  murmur models download ggml-base.en.bin
  murmur history list -n 5
  murmur transcribe memo.wav --deliver`,
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}

	root.Version = version
	root.SetVersionTemplate("murmur v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/murmur/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(daemon.NewStartCmd(cfgPath))
	root.AddCommand(daemon.NewStopCmd(cfgPath))
	root.AddCommand(daemon.NewRestartCmd(cfgPath))
	root.AddCommand(control.NewStatusCmd(cfgPath))
	root.AddCommand(control.NewRecordCmd(cfgPath))
	root.AddCommand(control.NewEventsCmd(cfgPath))
	root.AddCommand(control.NewHistoryCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewMicCmd(cfgPath))
	root.AddCommand(control.NewTestOutputCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))
	root.AddCommand(control.NewServiceCmd(cfgPath))
	root.AddCommand(control.NewSetupCmd(cfgPath))
	root.AddCommand(control.NewHealthCmd(cfgPath))
	root.AddCommand(control.NewReloadCmd(cfgPath))
	root.AddCommand(control.NewTranscribeCmd(cfgPath))
	root.AddCommand(control.NewModelsCmd(cfgPath))
	root.AddCommand(control.NewConfigCmd(cfgPath))

	// Hidden internal serve command used by start.
	root.AddCommand(daemon.NewServeCmd(cfgPath))

	applyColorHelp(root)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return root.ExecuteContext(ctx)
}

// applyColorHelp replaces the root help page; subcommands keep cobra's.
func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			defaultHelp(cmd, args)
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%smurmur%s: hotkey dictation daemon %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sHold or toggle a hotkey, speak, get text on your clipboard or in your hook.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  murmur [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  start|stop|restart              daemon lifecycle")
		writeln("  status [--json]                 recording state, engine, last session")
		writeln("  record start|stop|cancel|toggle drive a recording without hotkeys")
		writeln("  events [--levels]               follow session events live")
		writeln("  history list|show|delete|export browse past transcriptions")
		writeln("  mic list|set                    select input device")
		writeln("  models list|download|set        manage whisper.cpp models")
		writeln("  transcribe <wav> [--deliver]    transcribe a file")
		writeln("  doctor | setup                  check deps / download default model")
		writeln("  service install|uninstall|status launchd (macOS) or systemd --user (Linux)")
		writeln("  reload                          re-read config and reload the engine")
		writeln("")

		write("%sNotable flags & env%s\n", bold, reset)
		writeln("  --metrics-addr <addr>   enable /metrics (Prometheus text)")
		writeln("  --mode toggle|push_to_talk, --engine whisper|openai|echo")
		writeln("  -c, --config <path>     config file (default ~/.config/murmur/config.toml)")
		writeln("  Env: MURMUR_METRICS_ADDR=host:port, MURMUR_LOG_LEVEL=debug,")
		writeln("       MURMUR_LOG_FORMAT=json, MURMUR_RECORDING_MODE=push_to_talk,")
		writeln("       MURMUR_ASR_ENGINE=openai, MURMUR_DEVICE=\"USB Mic\"")
		writeln("")

		write("%sExamples%s\n", bold, reset)
		writeln("  murmur start --metrics-addr 127.0.0.1:9318")
		writeln("  murmur record toggle")
		writeln("  murmur events")
		writeln("  murmur models download ggml-base.en.bin && murmur reload")
		writeln("  murmur history list -n 5")
		writeln("  murmur test-output \"hello\"")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
