package control

import (
	"fmt"

	"murmur/internal/config"

	"github.com/spf13/cobra"
)

// NewReloadCmd asks the daemon to re-read its config and reload the engine.
func NewReloadCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reload",
		Short: "Reload config and transcription engine in the running daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			resp, err := Do(cmd.Context(), cfg.Paths.SocketPath, Request{Op: OpReloadEngine})
			if err != nil {
				return fmt.Errorf("reload failed: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "reload ok:", resp.Message)
			return nil
		},
	}
}
