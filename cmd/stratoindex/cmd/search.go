package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/stratoindex/internal/output"
	"github.com/Aman-CERP/stratoindex/internal/search"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	limit   int
	mode    string
	format  string // "text", "json"
	local   bool
	noGraph bool
}

func newSearchCmd(flags *globalFlags) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search analyzed files",
		Long: `Search analyzed files with hybrid search.

Vector similarity over stored embeddings is fused with BM25 over the
analysis history using Reciprocal Rank Fusion.

Examples:
  stratoindex search "tax return 2025"
  stratoindex search "invoice" --mode bm25 --limit 5
  stratoindex search "holiday photos" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, flags, query, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.mode, "mode", "m", "", "Search mode: hybrid, vector, bm25 (default from config)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	cmd.Flags().BoolVar(&opts.local, "local", false, "Open the data directory directly (bypass a running server)")
	cmd.Flags().BoolVar(&opts.noGraph, "no-graph", false, "Skip graph expansion")

	return cmd
}

func (o searchOptions) toSearch() (search.Options, error) {
	so := search.Options{TopK: o.limit}
	if o.mode != "" {
		mode, err := search.ParseMode(o.mode)
		if err != nil {
			return so, err
		}
		so.Mode = mode
	}
	if o.noGraph {
		off := false
		so.GraphExpansion = &off
	}
	return so, nil
}

func runSearch(ctx context.Context, cmd *cobra.Command, flags *globalFlags, query string, opts searchOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q (supported: text, json)", opts.format)
	}
	so, err := opts.toSearch()
	if err != nil {
		return err
	}

	sess, err := newCLISession(ctx, flags, opts.local)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.logger.Info("search_started", slog.String("query", query), slog.Int("limit", opts.limit))

	var resp *search.Response
	if sess.remote() {
		resp, err = sess.client.Search(ctx, query, so)
		if err != nil {
			return err
		}
	} else {
		s, err := sess.open(ctx, stackOptions{search: true})
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		resp, err = s.search.Search(ctx, query, so)
		if err != nil {
			return err
		}
	}

	sess.logger.Info("search_complete",
		slog.Bool("remote", sess.remote()),
		slog.Int("results", len(resp.Results)))

	if opts.format == "json" {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	output.New(cmd.OutOrStdout()).SearchResults(resp)
	return nil
}
