package commands

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dustline/internal/api"
	"github.com/dustline/internal/logging"
)

// ServeCmd starts the HTTP API
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Serve estimates over HTTP.

Endpoints:
  GET /health                  Run statistics and source health
  GET /api/config              Default parameters and accepted bounds
  GET /api/estimate/{address}  Run an estimate (query: depth, nodeLimit,
                               direction, thorough, walletexplorer)`,
	RunE: runServe,
}

var portFlag string

func init() {
	ServeCmd.Flags().StringVarP(&portFlag, "port", "p", "", "Listen port (overrides SERVER_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := logging.GetGlobalLogger()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := newStack(ctx, "")
	if err != nil {
		return err
	}
	defer rt.Close()

	port := cfg.Server.Port
	if portFlag != "" {
		port = portFlag
	}
	serverCfg := api.DefaultServerConfig(cfg.Server.Host, port)
	server := api.NewServer(serverCfg, rt.analysis, rt.healthChecker(), cfg.Analysis, logger)

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), serverCfg.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Error("server shutdown failed")
		return err
	}
	logger.Info("server stopped")
	return nil
}
