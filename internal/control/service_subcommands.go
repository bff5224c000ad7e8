package control

import (
	"fmt"
	"os"
	"strings"

	"murmur/internal/config"
	"murmur/internal/service"

	"github.com/spf13/cobra"
)

// NewServiceCmd manages the per-user background agent.
func NewServiceCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "service",
		Short: "Manage the background agent (launchd on macOS, systemd --user on Linux)",
	}
	cmd.AddCommand(newServiceInstallCmd(cfgPath))
	cmd.AddCommand(newServiceUninstallCmd())
	cmd.AddCommand(newServiceStatusCmd())
	return cmd
}

func newServiceInstallCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "install",
		Short: "Install the user agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return err
			}
			envPairs, _ := cmd.Flags().GetStringArray("env")
			env := make(map[string]string)
			for _, p := range envPairs {
				parts := strings.SplitN(p, "=", 2)
				if len(parts) != 2 {
					return fmt.Errorf("bad env %q, want KEY=VAL", p)
				}
				env[parts[0]] = parts[1]
			}
			m := service.Current()
			path, err := m.Install(service.Params{
				Label:  service.Label,
				Binary: exe,
				Config: cfg.Paths.ConfigPath,
				Log:    cfg.Paths.LogPath,
				Env:    env,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "agent written: %s\n", path)
			for _, h := range m.Hints(service.Label, path) {
				fmt.Fprintln(cmd.OutOrStdout(), h)
			}
			return nil
		},
	}
	cmd.Flags().StringArray("env", nil, "Env to set for the agent (KEY=VAL)")
	return cmd
}

func newServiceUninstallCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the user agent definition",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := service.Current().Uninstall(service.Label)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "removed %s (if present); stop a loaded agent before reinstalling\n", path)
			return nil
		},
	}
}

func newServiceStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the agent definition path and whether it exists",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, ok := service.Current().Status(service.Label)
			if path == "" {
				return service.ErrUnsupportedOS
			}
			fmt.Fprintf(cmd.OutOrStdout(), "agent: %s\n", path)
			if ok {
				fmt.Fprintln(cmd.OutOrStdout(), "status: present")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "status: missing (install via: murmur service install)")
			}
			return nil
		},
	}
}
