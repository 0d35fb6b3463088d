package cli

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"reroute/internal/docstore"
	"reroute/internal/reroute"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve redirects and proxy everything else to the origin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(parent context.Context, opts *rootOptions) error {
	cfg, err := opts.loadConfig(true)
	if err != nil {
		return err
	}
	if cfg.Server.Origin == "" {
		return fmt.Errorf("server.origin is required")
	}

	logger, err := opts.logger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	client := openStore(cfg, logger)
	if in, ok := client.(docstore.Initialized); ok {
		defer in.Store.Close()
	}

	src := reroute.NewStoreSource(client, cfg.Store.Collection, logger)
	svc := reroute.NewService(cfg, src, logger)
	defer svc.Close()

	h, err := svc.Handler()
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           h,
		ReadHeaderTimeout: 10 * time.Second,
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc.Start()

	go func() {
		logger.Info("reroute listening",
			zap.String("addr", addr),
			zap.String("origin", cfg.Server.Origin),
		)
		err := srv.Serve(ln)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// openStore never fails: an unopenable store degrades to NotConfigured so
// the site keeps serving without redirects.
func openStore(cfg reroute.Config, logger *zap.Logger) docstore.Client {
	client, err := docstore.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("open redirect store, serving without redirects",
			zap.String("path", cfg.Store.Path),
			zap.Error(err),
		)
		return docstore.NotConfigured{Reason: err.Error()}
	}
	return client
}
