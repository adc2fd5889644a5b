package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/stratoindex/internal/api"
	"github.com/Aman-CERP/stratoindex/internal/config"
	"github.com/Aman-CERP/stratoindex/internal/logging"
	"github.com/Aman-CERP/stratoindex/internal/mcp"
	"github.com/Aman-CERP/stratoindex/internal/telemetry"
	"github.com/Aman-CERP/stratoindex/internal/watcher"
	"github.com/Aman-CERP/stratoindex/pkg/version"
)

const shutdownTimeout = 5 * time.Second

// HistoryChangedReason is the rebuild reason logged for history edits.
const HistoryChangedReason = "history_changed"

// QueueFlushedReason is the rebuild reason logged after queue flushes that
// wrote embeddings.
const QueueFlushedReason = "queue_flushed"

type serveOptions struct {
	transport string
	addr      string
	token     string
	noWatch   bool
}

func newServeCmd(flags *globalFlags) *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the queue, vector store and search service",
		Long: `Run the service until interrupted.

With --transport http (default) the JSON API is served on --addr, with the
MCP streamable-HTTP endpoint mounted at /mcp. With --transport stdio the
process speaks MCP on stdin/stdout and logs only to file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.loadConfig()
			if err != nil {
				return err
			}
			applyServeFlags(cmd, cfg, opts)
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("invalid configuration: %w", err)
			}
			return runServe(cmd.Context(), cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.transport, "transport", "", "Transport: http or stdio (default from config)")
	cmd.Flags().StringVar(&opts.addr, "addr", "", "HTTP listen address (default from config)")
	cmd.Flags().StringVar(&opts.token, "token", "", "Bearer token for the HTTP API")
	cmd.Flags().BoolVar(&opts.noWatch, "no-watch", false, "Do not rebuild the lexical index when the history file changes")

	return cmd
}

func applyServeFlags(cmd *cobra.Command, cfg *config.Config, opts serveOptions) {
	if cmd.Flags().Changed("transport") {
		cfg.Server.Transport = opts.transport
	}
	if cmd.Flags().Changed("addr") {
		cfg.Server.Addr = opts.addr
	}
	if cmd.Flags().Changed("token") {
		cfg.Server.Token = opts.token
	}
}

func runServe(ctx context.Context, cfg *config.Config, opts serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// stdout belongs to the MCP protocol in stdio mode.
	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Server.LogLevel
	if cfg.Server.Transport == "stdio" {
		logCfg = logging.StdioConfig(cfg.Server.LogLevel)
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	tp, err := telemetry.InitTracing(ctx, telemetry.TracingConfig{
		ServiceName:    version.Name,
		ServiceVersion: version.Version,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		logger.Warn("tracing disabled", slog.String("error", err.Error()))
	} else {
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = tp.Shutdown(sctx)
		}()
	}

	s, err := openStack(ctx, cfg, logger, stackOptions{search: true})
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			logger.Error("shutdown incomplete", slog.String("error", err.Error()))
		}
	}()

	logger.Info("stratoindex starting",
		slog.String("version", version.Version),
		slog.String("data_dir", cfg.Paths.DataDir),
		slog.String("history", historyPath(cfg)),
		slog.String("transport", cfg.Server.Transport))

	srv, err := mcp.NewServer(s.search,
		mcp.WithLogger(logger),
		mcp.WithVectorStats(s.vectors),
		mcp.WithQueueStats(s.queue),
		mcp.WithEmbedder(s.embedder),
	)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}
	srv.SetMetrics(s.metrics)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return ignoreCanceled(s.queue.Run(gctx))
	})

	g.Go(func() error {
		res, err := s.search.BuildLexicalIndex(gctx)
		if err != nil {
			logger.Warn("initial lexical build failed", slog.String("error", err.Error()))
			return nil
		}
		logger.Info("lexical index ready", slog.Int("indexed", res.Indexed))
		return nil
	})

	if !opts.noWatch {
		w, err := watcher.New([]string{historyPath(cfg)}, watcher.Options{Logger: logger})
		if err != nil {
			return fmt.Errorf("failed to watch history: %w", err)
		}
		g.Go(func() error {
			return ignoreCanceled(w.Start(gctx))
		})
		g.Go(func() error {
			watchHistory(gctx, s, w)
			return nil
		})
	}

	g.Go(func() error {
		defer stop()
		if cfg.Server.Transport == "stdio" {
			return ignoreCanceled(srv.Serve(gctx, "stdio"))
		}
		return serveHTTP(gctx, cfg, s, srv.Handler(), logger)
	})

	return g.Wait()
}

// watchHistory refreshes the tag graph and rebuilds the lexical index on
// every debounced change to the history file.
func watchHistory(ctx context.Context, s *stack, w *watcher.Watcher) {
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.Errors():
			if !ok {
				return
			}
			s.logger.Warn("history watcher error", slog.String("error", err.Error()))
		case batch, ok := <-w.Events():
			if !ok {
				return
			}
			s.logger.Info("history changed",
				slog.Int("events", len(batch)),
				slog.String("op", batch[len(batch)-1].Operation.String()))
			s.refreshTags(ctx)
			res, err := s.search.InvalidateAndRebuild(ctx, HistoryChangedReason)
			if err != nil {
				s.logger.Warn("lexical rebuild failed", slog.String("error", err.Error()))
				continue
			}
			s.logger.Info("lexical index rebuilt",
				slog.Int("indexed", res.Indexed),
				slog.String("trigger", res.Trigger))
		}
	}
}

// serveHTTP runs the API until ctx ends, then shuts down gracefully.
func serveHTTP(ctx context.Context, cfg *config.Config, s *stack, mcpHandler http.Handler, logger *slog.Logger) error {
	if cfg.Server.Token == "" {
		logger.Warn("HTTP API has no token, authentication disabled")
	}

	httpSrv := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewHandler(api.Deps{
			Queue:   s.queue,
			Vectors: s.vectors,
			Search:  s.search,
			Token:   cfg.Server.Token,
			MCP:     mcpHandler,
			Logger:  logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", slog.String("addr", cfg.Server.Addr))
		fmt.Fprintf(os.Stderr, "stratoindex listening on %s\n", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpSrv.Shutdown(shutdownCtx)
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
