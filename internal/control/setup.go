package control

import (
	"fmt"
	"net/http"
	"os"

	"murmur/internal/config"
	"murmur/internal/transcribe"

	"github.com/spf13/cobra"
)

// NewSetupCmd downloads the configured model if missing.
func NewSetupCmd(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Download the configured whisper model if missing",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := config.MustStatePaths(cfg); err != nil {
				return err
			}
			modelPath := config.ModelPath(cfg, os.ExpandEnv(cfg.ASR.ModelPath))
			if _, err := os.Stat(modelPath); err == nil {
				fmt.Fprintln(cmd.OutOrStdout(), "model already present at", modelPath)
				return nil
			}
			name := cfg.ASR.ModelID
			if _, ok := transcribe.KnownModels[name]; !ok {
				return fmt.Errorf("model %q is not in the registry; place it at %s manually", name, modelPath)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "downloading %s to %s\n", name, cfg.Paths.ModelsDir)
			path, err := transcribe.DownloadModel(cmd.Context(), http.DefaultClient, name, cfg.Paths.ModelsDir, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			if path != modelPath {
				cfg.ASR.ModelPath = path
				if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
					return err
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), "model download complete")
			return nil
		},
	}
}
