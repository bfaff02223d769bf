package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/tardsplaya/tardsplayad/internal/api"
	"github.com/tardsplaya/tardsplayad/internal/coordinator"
	"github.com/tardsplaya/tardsplayad/internal/resolve"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the multi-stream coordinator with the local control-plane API",
	Long: `Start the engine's stream coordinator and, if api.enabled is set, the local
control-plane HTTP server.

The control plane exposes:
- POST   /streams                  start ingesting a channel
- DELETE /streams/{channel}         stop ingesting a channel
- GET    /streams                   list active streams
- GET    /streams/{channel}/events   server-sent lifecycle events
- GET    /health                    process health and active-stream count`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := slog.Default()

	resolver := resolve.NewTemplateResolver(cfg.Resolve.MasterURLTemplate)
	coord := coordinator.New(cfg, resolver, logger)
	defer coord.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	if !cfg.API.Enabled {
		logger.Info("control-plane API disabled, coordinator running with no stream admission surface")
		<-ctx.Done()
		drainStreams(coord, logger)
		return nil
	}

	server := api.NewServer(cfg.API, coord, logger)

	serveErr := server.ListenAndServe(ctx)
	drainStreams(coord, logger)
	if serveErr != nil {
		return fmt.Errorf("running control-plane server: %w", serveErr)
	}
	return nil
}

// drainStreams requests cancellation of every registered Stream and waits
// up to a grace period for them to report zero active before returning,
// so a SIGTERM doesn't truncate in-flight player writes mid-segment.
func drainStreams(coord *coordinator.Coordinator, logger *slog.Logger) {
	coord.StopAll()

	deadline := time.After(10 * time.Second)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		if coord.ActiveCount() == 0 {
			return
		}
		select {
		case <-deadline:
			logger.Warn("shutdown grace period elapsed with streams still active",
				slog.Int("active_streams", coord.ActiveCount()))
			return
		case <-ticker.C:
		}
	}
}
