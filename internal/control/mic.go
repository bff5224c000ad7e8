package control

import (
	"errors"
	"fmt"
	"runtime"

	"murmur/internal/audio"
	"murmur/internal/config"

	"github.com/spf13/cobra"
)

// NewMicCmd groups microphone subcommands.
func NewMicCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mic",
		Short: "Microphone management",
	}
	cmd.AddCommand(newMicListCmd(cfgPath))
	cmd.AddCommand(newMicSetCmd(cfgPath))
	return cmd
}

// listDevices asks the daemon first, since it already holds the audio
// host, and opens one locally when no daemon is running.
func listDevices(cmd *cobra.Command, cfg *config.Config) ([]audio.DeviceInfo, error) {
	resp, err := Do(cmd.Context(), cfg.Paths.SocketPath, Request{Op: OpDevices})
	if err == nil {
		return resp.Devices, nil
	}
	if !errors.Is(err, ErrDaemonUnavailable) {
		return nil, err
	}
	host, err := audio.NewHost()
	if err != nil {
		return nil, err
	}
	defer func() { _ = host.Close() }()
	return audio.ListInputDevices(host)
}

func newMicListCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List available microphones",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			devs, err := listDevices(cmd, cfg)
			if err != nil {
				return err
			}
			jsonOut, _ := cmd.Flags().GetBool("json")
			if jsonOut {
				return printJSON(cmd.OutOrStdout(), devs)
			}
			for i, d := range devs {
				mark := ""
				if d.IsDefault {
					mark = " (default)"
				}
				if d.Name == cfg.Audio.DeviceName {
					mark += " (selected)"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "[%d] %s%s (in %d ch, %d Hz)\n", i, d.Name, mark, d.Channels, d.SampleRate)
			}
			if len(devs) == 0 && runtime.GOOS == "darwin" {
				fmt.Fprintln(cmd.OutOrStdout(), "tip: if no devices appear, install PortAudio: brew install portaudio")
			}
			return nil
		},
	}
	cmd.Flags().Bool("json", false, "output JSON")
	return cmd
}

func newMicSetCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "set <name>",
		Short: "Set the microphone for future recordings (\"\" for the system default)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			cfg.Audio.DeviceName = args[0]
			if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "mic set to %q in %s\n", args[0], cfg.Paths.ConfigPath)
			if _, err := Do(cmd.Context(), cfg.Paths.SocketPath, Request{Op: OpSetDevice, Device: args[0]}); err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "running daemon updated")
			}
			return nil
		},
	}
}
