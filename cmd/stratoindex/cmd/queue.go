package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/stratoindex/internal/output"
	"github.com/Aman-CERP/stratoindex/internal/queue"
	"github.com/Aman-CERP/stratoindex/internal/ui"
)

type queueFlags struct {
	local bool
	json  bool
}

func newQueueCmd(flags *globalFlags) *cobra.Command {
	var qf queueFlags

	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and drive the embedding queue",
	}
	cmd.PersistentFlags().BoolVar(&qf.local, "local", false, "Open the data directory directly (bypass a running server)")
	cmd.PersistentFlags().BoolVar(&qf.json, "json", false, "Output as JSON")

	cmd.AddCommand(newQueueStatsCmd(flags, &qf))
	cmd.AddCommand(newQueueFlushCmd(flags, &qf))
	cmd.AddCommand(newQueueRequeueCmd(flags, &qf))
	cmd.AddCommand(newQueueFailedCmd(flags, &qf))
	cmd.AddCommand(newQueueDeadLettersCmd(flags, &qf))
	return cmd
}

// withQueue runs remoteFn against a running server or localFn against the
// opened data directory.
func withQueue(ctx context.Context, flags *globalFlags, qf *queueFlags, remoteFn func(*cliSession) error, localFn func(*stack) error) error {
	sess, err := newCLISession(ctx, flags, qf.local)
	if err != nil {
		return err
	}
	defer sess.Close()

	if sess.remote() {
		return remoteFn(sess)
	}
	s, err := sess.open(ctx, stackOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = s.Close() }()
	return localFn(s)
}

func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newQueueStatsCmd(flags *globalFlags, qf *queueFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show queue counters",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmdContext(cmd)
			var stats queue.Stats
			err := withQueue(ctx, flags, qf,
				func(sess *cliSession) (err error) {
					stats, err = sess.client.QueueStats(ctx)
					return err
				},
				func(s *stack) error {
					stats = s.queue.Stats()
					return nil
				})
			if err != nil {
				return err
			}
			if qf.json {
				return writeJSON(cmd.OutOrStdout(), stats)
			}
			printQueueStats(output.New(cmd.OutOrStdout()), stats)
			return nil
		},
	}
}

func printQueueStats(out *output.Writer, stats queue.Stats) {
	last := "never"
	if !stats.LastFlush.IsZero() {
		last = stats.LastFlush.Local().Format(time.DateTime)
	}
	out.Table([][]string{
		{"Counter", "Value"},
		{"Queued", strconv.Itoa(stats.Queued)},
		{"In flight", strconv.Itoa(stats.InFlight)},
		{"Failed", strconv.Itoa(stats.Failed)},
		{"Parked", strconv.Itoa(stats.Parked)},
		{"Dead letters", strconv.Itoa(stats.DeadLetters)},
		{"Processed", strconv.FormatInt(stats.Processed, 10)},
		{"Last flush", last},
	})
}

func newQueueFlushCmd(flags *globalFlags, qf *queueFlags) *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Write queued vectors to the store now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmdContext(cmd)

			var res *queue.FlushResult
			err := withQueue(ctx, flags, qf,
				func(sess *cliSession) (err error) {
					res, err = sess.client.Flush(ctx)
					if err != nil {
						return err
					}
					if qf.json {
						return nil
					}
					remaining := 0
					if stats, err := sess.client.QueueStats(ctx); err == nil {
						remaining = stats.Queued
					}
					// No per-item progress crosses the API, so only the summary is shown.
					ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(true))).
						Complete(ui.CompletionFrom(res, remaining))
					return nil
				},
				func(s *stack) error {
					if qf.json {
						res = s.queue.Flush(ctx)
						return nil
					}
					renderer := ui.NewRenderer(ui.NewConfig(cmd.OutOrStdout(), ui.WithForcePlain(plain)))
					if err := renderer.Start(ctx); err != nil {
						return err
					}
					res = ui.RunFlush(ctx, renderer, s.queue)
					return renderer.Stop()
				})
			if err != nil {
				return err
			}
			if qf.json {
				return writeJSON(cmd.OutOrStdout(), res)
			}
			if res.Status == queue.FlushFailed {
				return fmt.Errorf("flush failed: %d of %d items not written", res.Attempted-res.Processed, res.Attempted)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&plain, "plain", false, "Plain line output instead of the interactive display")
	return cmd
}

func newQueueRequeueCmd(flags *globalFlags, qf *queueFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue",
		Short: "Move failed items back to the queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmdContext(cmd)
			var n int
			err := withQueue(ctx, flags, qf,
				func(sess *cliSession) (err error) {
					n, err = sess.client.Requeue(ctx)
					return err
				},
				func(s *stack) error {
					n = s.queue.RequeueFailed()
					return nil
				})
			if err != nil {
				return err
			}
			if qf.json {
				return writeJSON(cmd.OutOrStdout(), map[string]int{"requeued": n})
			}
			output.New(cmd.OutOrStdout()).Successf("Requeued %d failed items", n)
			return nil
		},
	}
}

func newQueueFailedCmd(flags *globalFlags, qf *queueFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "failed",
		Short: "List items that failed and await a retry",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmdContext(cmd)
			var items []queue.FailedItem
			err := withQueue(ctx, flags, qf,
				func(sess *cliSession) (err error) {
					items, err = sess.client.FailedItems(ctx)
					return err
				},
				func(s *stack) error {
					items = s.queue.FailedItems()
					return nil
				})
			if err != nil {
				return err
			}
			if qf.json {
				if items == nil {
					items = []queue.FailedItem{}
				}
				return writeJSON(cmd.OutOrStdout(), items)
			}

			out := output.New(cmd.OutOrStdout())
			if len(items) == 0 {
				out.Success("No failed items")
				return nil
			}
			rows := [][]string{{"ID", "Kind", "Retries", "Error"}}
			for _, it := range items {
				rows = append(rows, []string{it.ID, string(it.Kind), strconv.Itoa(it.Retries), it.Error})
			}
			out.Table(rows)
			return nil
		},
	}
}

func newQueueDeadLettersCmd(flags *globalFlags, qf *queueFlags) *cobra.Command {
	var clearAll bool

	cmd := &cobra.Command{
		Use:   "dead-letters",
		Short: "List or clear items that exhausted their retries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmdContext(cmd)
			out := output.New(cmd.OutOrStdout())

			if clearAll {
				var n int
				err := withQueue(ctx, flags, qf,
					func(sess *cliSession) (err error) {
						n, err = sess.client.ClearDeadLetters(ctx)
						return err
					},
					func(s *stack) error {
						n = s.queue.ClearDeadLetters()
						return nil
					})
				if err != nil {
					return err
				}
				if qf.json {
					return writeJSON(cmd.OutOrStdout(), map[string]int{"cleared": n})
				}
				out.Successf("Cleared %d dead letters", n)
				return nil
			}

			var dead []queue.DeadLetter
			err := withQueue(ctx, flags, qf,
				func(sess *cliSession) (err error) {
					dead, err = sess.client.DeadLetters(ctx)
					return err
				},
				func(s *stack) error {
					dead = s.queue.DeadLetters()
					return nil
				})
			if err != nil {
				return err
			}
			if qf.json {
				if dead == nil {
					dead = []queue.DeadLetter{}
				}
				return writeJSON(cmd.OutOrStdout(), dead)
			}
			if len(dead) == 0 {
				out.Success("No dead letters")
				return nil
			}
			rows := [][]string{{"ID", "Retries", "First failed", "Error"}}
			for _, d := range dead {
				rows = append(rows, []string{
					d.ID,
					strconv.Itoa(d.Retries),
					d.FirstFailedAt.Local().Format(time.DateTime),
					d.Error,
				})
			}
			out.Table(rows)
			return nil
		},
	}
	cmd.Flags().BoolVar(&clearAll, "clear", false, "Drop every dead letter")
	return cmd
}
