package control

import (
	"context"
	"fmt"
	"time"

	"murmur/internal/audio"
	"murmur/internal/config"
	"murmur/internal/logging"
	"murmur/internal/output"
	"murmur/internal/transcribe"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// NewTranscribeCmd transcribes a WAV file with the configured engine,
// running the same resample and VAD steps a live session does.
func NewTranscribeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transcribe <wavfile>",
		Short: "Transcribe a WAV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger := logging.NewCLILogger()
			if engine, _ := cmd.Flags().GetString("engine"); engine != "" {
				cfg.ASR.Engine = engine
			}
			trim, _ := cmd.Flags().GetBool("trim")

			samples, rate, err := audio.ReadWAVFile(args[0])
			if err != nil {
				return err
			}
			pcm, err := audio.ResampleTo16kHz(samples, rate)
			if err != nil {
				return fmt.Errorf("resampling failed: %w", err)
			}
			if trim || cfg.VAD.TrimSilence {
				if trimmed, err := audio.TrimSilence(pcm, cfg.VAD.Aggressiveness); err != nil {
					logger.Warnf("vad trim: %v", err)
				} else {
					pcm = trimmed
				}
			}

			engine, modelID, err := transcribe.Load(cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = engine.Close() }()

			text := ""
			start := time.Now()
			if len(pcm) > 0 {
				text, err = engine.Transcribe(cmd.Context(), pcm)
				if err != nil {
					return fmt.Errorf("transcription failed: %w", err)
				}
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			fmt.Fprintf(cmd.ErrOrStderr(), "%s: %.1fs of audio in %dms\n", modelID,
				float64(len(pcm))/float64(audio.TargetRate), time.Since(start).Milliseconds())

			if deliver, _ := cmd.Flags().GetBool("deliver"); deliver {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				job := output.Job{SessionID: uuid.NewString(), Text: text, Timestamp: time.Now()}
				return output.NewDeliverer(cfg, logger).Deliver(ctx, job)
			}
			return nil
		},
	}
	cmd.Flags().Bool("deliver", false, "send the transcript to the configured outputs")
	cmd.Flags().Bool("trim", false, "trim leading/trailing silence with VAD")
	cmd.Flags().String("engine", "", "override asr.engine (whisper, openai, echo)")
	return cmd
}
