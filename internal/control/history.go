package control

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"murmur/internal/config"
	"murmur/internal/history"
	"murmur/internal/logging"

	"github.com/spf13/cobra"
)

// historyClient answers history requests through the daemon when it is
// running, since it holds the index lock, and opens the store directly
// otherwise.
type historyClient struct {
	cfg *config.Config
}

func (h historyClient) do(ctx context.Context, req Request, local func(*history.Store) (Response, error)) (Response, error) {
	resp, err := Do(ctx, h.cfg.Paths.SocketPath, req)
	if err == nil || !errors.Is(err, ErrDaemonUnavailable) {
		return resp, err
	}
	store, err := history.Open(history.Options{
		Dir:        h.cfg.Paths.HistoryDir,
		MaxEntries: h.cfg.History.MaxEntries,
		SaveAudio:  h.cfg.History.SaveAudio,
		Logger:     logging.NewCLILogger(),
	})
	if err != nil {
		return Response{}, err
	}
	defer func() { _ = store.Close() }()
	return local(store)
}

func (h historyClient) list(ctx context.Context, limit int) ([]history.Entry, error) {
	resp, err := h.do(ctx, Request{Op: OpHistoryList, Limit: limit}, func(s *history.Store) (Response, error) {
		entries, err := s.List(limit)
		return Response{OK: true, History: entries}, err
	})
	return resp.History, err
}

func (h historyClient) get(ctx context.Context, id string) (history.Entry, error) {
	resp, err := h.do(ctx, Request{Op: OpHistoryGet, ID: id}, func(s *history.Store) (Response, error) {
		e, err := s.Get(id)
		return Response{OK: true, Entry: &e}, err
	})
	if err != nil {
		return history.Entry{}, err
	}
	if resp.Entry == nil {
		return history.Entry{}, fmt.Errorf("%w: %s", history.ErrNotFound, id)
	}
	return *resp.Entry, nil
}

func (h historyClient) delete(ctx context.Context, id string) error {
	_, err := h.do(ctx, Request{Op: OpHistoryDelete, ID: id}, func(s *history.Store) (Response, error) {
		return Response{OK: true}, s.Delete(id)
	})
	return err
}

func (h historyClient) clear(ctx context.Context) error {
	_, err := h.do(ctx, Request{Op: OpHistoryClear}, func(s *history.Store) (Response, error) {
		return Response{OK: true}, s.Clear()
	})
	return err
}

func (h historyClient) audio(ctx context.Context, id string) ([]byte, error) {
	resp, err := h.do(ctx, Request{Op: OpHistoryAudio, ID: id}, func(s *history.Store) (Response, error) {
		wav, err := s.LoadAudio(id)
		return Response{OK: true, Audio: wav}, err
	})
	return resp.Audio, err
}

// NewHistoryCmd browses stored transcriptions.
func NewHistoryCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse past transcriptions",
	}
	client := func() (historyClient, error) {
		cfg, err := config.Load(*cfgPath)
		return historyClient{cfg: cfg}, err
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent transcriptions, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			hc, err := client()
			if err != nil {
				return err
			}
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err := hc.list(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return printJSON(cmd.OutOrStdout(), entries)
			}
			for _, e := range entries {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %s  %5.1fs  %s\n",
					e.ID[:min(8, len(e.ID))], e.CreatedAt.Local().Format("2006-01-02 15:04:05"),
					float64(e.RecordingDurationMs)/1000, oneLine(e.Text, 60))
			}
			return nil
		},
	}
	listCmd.Flags().IntP("limit", "n", 20, "max entries (0 for all)")
	listCmd.Flags().Bool("json", false, "output JSON")

	showCmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show one transcription",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hc, err := client()
			if err != nil {
				return err
			}
			e, err := resolveEntry(cmd.Context(), hc, args[0])
			if err != nil {
				return err
			}
			if jsonOut, _ := cmd.Flags().GetBool("json"); jsonOut {
				return printJSON(cmd.OutOrStdout(), e)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "id:        %s\ncreated:   %s\nmodel:     %s\ndevice:    %s\n", e.ID, e.CreatedAt.Local().Format("2006-01-02 15:04:05"), e.ModelID, e.Device)
			fmt.Fprintf(out, "recorded:  %dms\ninference: %dms\n", e.RecordingDurationMs, e.TranscriptionDurationMs)
			if e.AudioPath != "" {
				fmt.Fprintf(out, "audio:     %s\n", e.AudioPath)
			}
			fmt.Fprintf(out, "\n%s\n", e.Text)
			return nil
		},
	}
	showCmd.Flags().Bool("json", false, "output JSON")

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a transcription and its audio",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			hc, err := client()
			if err != nil {
				return err
			}
			e, err := resolveEntry(cmd.Context(), hc, args[0])
			if err != nil {
				return err
			}
			return hc.delete(cmd.Context(), e.ID)
		},
	}

	clearCmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete all transcriptions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if yes, _ := cmd.Flags().GetBool("yes"); !yes {
				return errors.New("refusing to clear history without --yes")
			}
			hc, err := client()
			if err != nil {
				return err
			}
			return hc.clear(cmd.Context())
		},
	}
	clearCmd.Flags().Bool("yes", false, "confirm")

	exportCmd := &cobra.Command{
		Use:   "export <id> <out.wav>",
		Short: "Copy the recorded audio of a transcription",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			hc, err := client()
			if err != nil {
				return err
			}
			e, err := resolveEntry(cmd.Context(), hc, args[0])
			if err != nil {
				return err
			}
			wav, err := hc.audio(cmd.Context(), e.ID)
			if err != nil {
				return err
			}
			return os.WriteFile(args[1], wav, 0o644)
		},
	}

	cmd.AddCommand(listCmd, showCmd, deleteCmd, clearCmd, exportCmd)
	return cmd
}

// resolveEntry accepts a full id or a unique prefix as printed by list.
func resolveEntry(ctx context.Context, hc historyClient, id string) (history.Entry, error) {
	e, err := hc.get(ctx, id)
	if err == nil || !isNotFound(err) {
		return e, err
	}
	entries, lerr := hc.list(ctx, 0)
	if lerr != nil {
		return history.Entry{}, lerr
	}
	var match []history.Entry
	for _, c := range entries {
		if strings.HasPrefix(c.ID, id) {
			match = append(match, c)
		}
	}
	switch len(match) {
	case 1:
		return match[0], nil
	case 0:
		return history.Entry{}, err
	default:
		return history.Entry{}, fmt.Errorf("id prefix %q is ambiguous (%d matches)", id, len(match))
	}
}

// isNotFound also matches the flattened error a daemon sends back.
func isNotFound(err error) bool {
	return errors.Is(err, history.ErrNotFound) || strings.Contains(err.Error(), history.ErrNotFound.Error())
}

func oneLine(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > n {
		return s[:n-3] + "..."
	}
	return s
}
