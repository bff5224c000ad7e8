package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"murmur/internal/config"
	"murmur/internal/doctor"
	"murmur/internal/logging"
	"murmur/internal/output"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"
)

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// NewStatusCmd queries daemon status.
func NewStatusCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			resp, err := Do(cmd.Context(), cfg.Paths.SocketPath, Request{Op: OpStatus})
			if err != nil {
				return err
			}
			if resp.Status == nil {
				return errors.New("daemon sent no status")
			}
			st := *resp.Status
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), st)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "running: %v\nuptime: %.1fs\nmode: %s\n", st.Running, st.UptimeSec, st.Mode)
			model := st.Session.ModelID
			if !st.Session.EngineLoaded {
				model = "(none loaded)"
			}
			fmt.Fprintf(out, "engine: %s %s\n", st.Engine, model)
			if st.Session.Recording {
				fmt.Fprintf(out, "recording: %s for %.1fs on %q\n", st.Session.SessionID, float64(st.Session.ElapsedMs)/1000, st.Session.Device)
			} else {
				fmt.Fprintln(out, "recording: no")
			}
			if st.Session.Transcribing > 0 {
				fmt.Fprintf(out, "transcribing: %d\n", st.Session.Transcribing)
			}
			if last := st.Session.Last; last != nil {
				fmt.Fprintf(out, "last: %s %s %s\n", last.EndedAt.Local().Format("15:04:05"), last.Status, strings.TrimSpace(last.Transcription+" "+last.Error))
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

// NewHealthCmd pings the daemon.
func NewHealthCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check that the daemon answers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			resp, err := Do(cmd.Context(), cfg.Paths.SocketPath, Request{Op: OpHealth})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), resp.Message)
			return nil
		},
	}
}

// NewTailLogCmd tails the main log file.
func NewTailLogCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tail-log",
		Short: "Show the last log lines",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			n, _ := cmd.Flags().GetInt("lines")
			return tailFile(cmd.OutOrStdout(), cfg.Paths.LogPath, n)
		},
	}
	cmd.Flags().IntP("lines", "n", 50, "number of lines")
	return cmd
}

func tailFile(w io.Writer, path string, n int) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if n > 0 && len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			fmt.Fprintln(w, l)
		}
	}
	return nil
}

// NewTestOutputCmd pushes sample text through the configured outputs.
func NewTestOutputCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "test-output \"some text\"",
		Short: "Send sample text to the clipboard and hook",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			d := output.NewDeliverer(cfg, logger)
			if !d.Enabled() {
				return errors.New("no output configured; set output.clipboard or output.hook.command")
			}
			return d.Deliver(cmd.Context(), output.Job{SessionID: "test", Text: args[0], Timestamp: time.Now()})
		},
	}
}

// NewDoctorCmd runs environment checks.
func NewDoctorCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check dependencies and config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			failed := false
			for _, r := range doctor.Run(cfg) {
				status := "ok"
				if !r.Pass {
					status = "fail"
					failed = true
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-14s %-4s %s\n", r.Name, status, r.Detail)
			}
			if failed {
				return errors.New("doctor found issues")
			}
			return nil
		},
	}
}

// NewConfigCmd prints the effective configuration.
func NewConfigCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective config (file, defaults and MURMUR_* overrides)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			out, err := toml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "# %s\n%s", cfg.Paths.ConfigPath, out)
			return nil
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), cfg.Paths.ConfigPath)
			return nil
		},
	})
	return cmd
}
