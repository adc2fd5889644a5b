package cmd

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/stratoindex/internal/embed"
	"github.com/Aman-CERP/stratoindex/internal/ui"
)

func newStatusCmd(flags *globalFlags) *cobra.Command {
	var (
		jsonOutput bool
		local      bool
	)

	cmd := &cobra.Command{
		Use:     "status",
		Aliases: []string{"stats"},
		Short:   "Show queue, store, index and embedder health",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmdContext(cmd)
			info, err := collectStatus(ctx, flags, local)
			if err != nil {
				return err
			}
			r := ui.NewStatusRenderer(cmd.OutOrStdout(), ui.DetectNoColor() || !ui.IsTTY(cmd.OutOrStdout()))
			if jsonOutput {
				return r.RenderJSON(info)
			}
			return r.Render(info)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&local, "local", false, "Open the data directory directly (bypass a running server)")
	return cmd
}

func collectStatus(ctx context.Context, flags *globalFlags, local bool) (ui.StatusInfo, error) {
	sess, err := newCLISession(ctx, flags, local)
	if err != nil {
		return ui.StatusInfo{}, err
	}
	defer sess.Close()

	info := ui.StatusInfo{DataDir: sess.cfg.Paths.DataDir}
	if fi, err := os.Stat(filepath.Join(sess.cfg.Paths.DataDir, VectorsFileName)); err == nil {
		info.DBSize = fi.Size()
	}

	if sess.remote() {
		if info.Queue, err = sess.client.QueueStats(ctx); err != nil {
			return info, err
		}
		if info.Vectors, err = sess.client.VectorStats(ctx); err != nil {
			return info, err
		}
		lex, err := sess.client.IndexStats(ctx)
		if err != nil {
			return info, err
		}
		info.Lexical = &lex
		return info, nil
	}

	s, err := sess.open(ctx, stackOptions{})
	if err != nil {
		return info, err
	}
	defer func() { _ = s.Close() }()

	info.Queue = s.queue.Stats()
	if info.Vectors, err = s.vectors.GetStats(ctx); err != nil {
		return info, err
	}

	// An unreachable embedding provider is reported, not fatal.
	if e, err := embed.NewEmbedder(ctx, sess.cfg.Embeddings, sess.logger); err == nil {
		ei := embed.GetInfo(ctx, e)
		info.Embedder = &ei
		_ = e.Close()
	} else {
		info.Embedder = &embed.EmbedderInfo{
			Provider: sess.cfg.Embeddings.Provider,
			Model:    sess.cfg.Embeddings.Model,
		}
	}
	return info, nil
}
