package cmd

import (
	"context"
	"log/slog"

	"github.com/Aman-CERP/stratoindex/internal/api"
	"github.com/Aman-CERP/stratoindex/internal/config"
	"github.com/Aman-CERP/stratoindex/internal/logging"
)

// cliSession is what a one-shot command needs: the configuration, a
// file logger, and either a running server or the data directory.
type cliSession struct {
	cfg     *config.Config
	logger  *slog.Logger
	client  *api.Client
	cleanup func()
}

// newCLISession loads configuration and logging. Unless local is set, it
// looks for a server on the configured address; commands go through it
// when found because the server holds the data-directory lock.
func newCLISession(ctx context.Context, flags *globalFlags, local bool) (*cliSession, error) {
	cfg, err := flags.loadConfig()
	if err != nil {
		return nil, err
	}

	s := &cliSession{cfg: cfg, logger: logging.Discard(), cleanup: func() {}}

	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false
	if logger, cleanup, err := logging.Setup(logCfg); err == nil {
		s.logger, s.cleanup = logger, cleanup
	}

	if !local {
		client := api.NewClient(cfg.Server.Addr, cfg.Server.Token)
		if client.IsRunning(ctx) {
			s.client = client
			s.logger.Info("using running server", slog.String("addr", cfg.Server.Addr))
		}
	}
	return s, nil
}

// remote reports whether commands go through a running server.
func (s *cliSession) remote() bool {
	return s.client != nil
}

// open opens the data directory locally.
func (s *cliSession) open(ctx context.Context, opts stackOptions) (*stack, error) {
	return openStack(ctx, s.cfg, s.logger, opts)
}

func (s *cliSession) Close() {
	s.cleanup()
}
