package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kozaktomas/facesearch/internal/web"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the facesearch HTTP API.

The face index is loaded from INDEX_DIR when both artifacts are present and
consistent, otherwise it is rebuilt from the embedding store. It is rebuilt
again every INDEX_SYNC_INTERVAL and persisted on shutdown.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().Int("port", 0, "Port to listen on (overrides WEB_PORT)")
	serveCmd.Flags().String("host", "", "Host to bind to (overrides WEB_HOST)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	if port := mustGetInt(cmd, "port"); port != 0 {
		a.cfg.Web.Port = port
	}
	if host := mustGetString(cmd, "host"); host != "" {
		a.cfg.Web.Host = host
	}

	go a.index.RunSync(ctx, a.cfg.Index.SyncInterval)

	server := web.NewServer(a.cfg, web.Services{
		Enroller:   a.enroller,
		Search:     a.search,
		Verifier:   a.verifier,
		Thresholds: a.thresholds,
		Index:      a.index,
		Metrics:    a.metrics,
	})

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutting down...")
		cancel()
		if err := a.index.Persist(); err != nil {
			log.Error().Err(err).Msg("Failed to persist face index")
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}()

	return server.Start()
}
