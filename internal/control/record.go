package control

import (
	"fmt"
	"strings"

	"murmur/internal/config"
	"murmur/internal/session"

	"github.com/spf13/cobra"
)

// NewRecordCmd drives the daemon's recording session.
func NewRecordCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Start, stop, cancel or toggle a recording in the daemon",
	}
	cmd.AddCommand(recordOpCmd(cfgPath, "start", "Start recording", OpStart))
	cmd.AddCommand(recordOpCmd(cfgPath, "stop", "Stop recording and print the transcript", OpStop))
	cmd.AddCommand(recordOpCmd(cfgPath, "cancel", "Discard the current recording", OpCancel))
	cmd.AddCommand(recordOpCmd(cfgPath, "toggle", "Start if idle, otherwise stop and transcribe", OpToggle))
	return cmd
}

func recordOpCmd(cfgPath *string, use, short, op string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			resp, err := Do(cmd.Context(), cfg.Paths.SocketPath, Request{Op: op})
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), resp)
			}
			out := cmd.OutOrStdout()
			switch {
			case resp.Result != nil:
				r := resp.Result
				fmt.Fprintln(out, r.Text)
				fmt.Fprintf(cmd.ErrOrStderr(), "session %s: %.1fs recorded, %dms transcribing (%s)\n",
					r.SessionID, float64(r.RecordingDurationMs)/1000, r.DurationMs, r.ModelID)
			case resp.SessionID != "":
				fmt.Fprintf(out, "recording %s\n", resp.SessionID)
			default:
				fmt.Fprintln(out, "ok")
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

// NewEventsCmd follows session events from the daemon.
func NewEventsCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Stream session events (Ctrl-C to stop)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			showLevels, _ := cmd.Flags().GetBool("levels")
			out := cmd.OutOrStdout()
			return Stream(cmd.Context(), cfg.Paths.SocketPath, func(ev session.Event) error {
				if ev.Type == session.EventAmplitudeUpdate && !showLevels {
					return nil
				}
				if jsonOut {
					return printJSON(out, ev)
				}
				_, err := fmt.Fprintln(out, formatEvent(ev))
				return err
			})
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	cmd.Flags().Bool("levels", false, "include amplitude updates")
	return cmd
}

func formatEvent(ev session.Event) string {
	short := ev.SessionID
	if len(short) > 8 {
		short = short[:8]
	}
	switch ev.Type {
	case session.EventAmplitudeUpdate:
		return fmt.Sprintf("%s %-24s %s", short, ev.Type, levelBar(ev.RMS))
	case session.EventTranscriptionCompleted:
		return fmt.Sprintf("%s %-24s %q", short, ev.Type, ev.Text)
	case session.EventTranscriptionFailed:
		return fmt.Sprintf("%s %-24s %s", short, ev.Type, ev.Message)
	default:
		return fmt.Sprintf("%s %s", short, ev.Type)
	}
}

// levelBar renders an RMS value in [0,1] as a 20-cell meter.
func levelBar(rms float32) string {
	n := int(rms * 20)
	if n > 20 {
		n = 20
	}
	if n < 0 {
		n = 0
	}
	return "[" + strings.Repeat("#", n) + strings.Repeat(" ", 20-n) + "]"
}
