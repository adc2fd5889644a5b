package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/stratoindex/internal/api"
	"github.com/Aman-CERP/stratoindex/internal/output"
	"github.com/Aman-CERP/stratoindex/internal/search"
)

func newRebuildCmd(flags *globalFlags) *cobra.Command {
	var (
		debounced  bool
		reason     string
		local      bool
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the lexical index from the analysis history",
		Long: `Rebuild the lexical index from the analysis history.

By default the build runs immediately. With --debounced the request joins
any other invalidations within the debounce window and waits for the
shared build.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmdContext(cmd)
			sess, err := newCLISession(ctx, flags, local)
			if err != nil {
				return err
			}
			defer sess.Close()

			var (
				res      *search.BuildResult
				buildErr error
			)
			if sess.remote() {
				res, buildErr = sess.client.Rebuild(ctx, api.RebuildRequest{Reason: reason, Debounced: debounced})
			} else {
				s, err := sess.open(ctx, stackOptions{search: true})
				if err != nil {
					return err
				}
				defer func() { _ = s.Close() }()

				if debounced {
					res, buildErr = s.search.InvalidateAndRebuild(ctx, reason)
				} else {
					res, buildErr = s.search.BuildLexicalIndex(ctx)
				}
			}
			if res == nil {
				return buildErr
			}

			if jsonOutput {
				if err := writeJSON(cmd.OutOrStdout(), res); err != nil {
					return err
				}
				return buildErr
			}

			out := output.New(cmd.OutOrStdout())
			if res.Success {
				out.Successf("Indexed %d documents in %s (build %s)",
					res.Indexed, res.Duration.Round(time.Millisecond), res.BuildID)
			} else {
				out.Errorf("Rebuild failed: %s", res.Reason)
				if res.Error != "" {
					out.Status("  ", res.Error)
				}
			}
			return buildErr
		},
	}

	cmd.Flags().BoolVar(&debounced, "debounced", false, "Join the debounced rebuild instead of building now")
	cmd.Flags().StringVar(&reason, "reason", "manual", "Reason recorded with the invalidation")
	cmd.Flags().BoolVar(&local, "local", false, "Open the data directory directly (bypass a running server)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}
