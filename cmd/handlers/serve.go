package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"techdigest/internal/metrics"
	"techdigest/internal/server"
)

const shutdownTimeout = 30 * time.Second

// NewServeCmd creates the serve command for starting the HTTP trigger server
func NewServeCmd() *cobra.Command {
	var (
		port int
		host string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP server exposing the pipeline stages",
		Long: `Start the techdigest HTTP server.

The server provides:
  • GET  /health                       Database health check
  • POST /functions/gather-articles    Run the gather stage
  • POST /functions/process-articles   Run the process stage
  • POST /functions/send-newsletters   Run the send stage

  • GET  /metrics                      Prometheus metrics (server.metrics)

Only one stage runs at a time; a trigger received while another is running
gets 409 Conflict. Stages with a server.cron spec also run in-process on that
schedule, sharing the same lock. Set server.trigger_token (or TRIGGER_API_KEY) to require
"Authorization: Bearer <token>" on the /functions routes.

Examples:
  # Start server on default port 8080
  techdigest serve

  # Start on custom port
  techdigest serve --port 3000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), port, host)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "HTTP server port (default from config: 8080)")
	cmd.Flags().StringVar(&host, "host", "", "HTTP server host (default from config: 0.0.0.0)")

	return cmd
}

func runServe(ctx context.Context, port int, host string) error {
	rt, err := setup(ctx, stageGather)
	if err != nil {
		return err
	}
	defer rt.Close()

	log := rt.log

	// Override server config from flags if provided
	serverCfg := rt.cfg.Server
	if port != 0 {
		serverCfg.Port = port
	}
	if host != "" {
		serverCfg.Host = host
	}

	var opts []server.Option
	if serverCfg.Metrics {
		opts = append(opts, server.WithMetrics(metrics.NewCollector("techdigest")))
	}

	srv := server.New(rt.db, rt.pipeline, serverCfg, log, opts...)
	if err := srv.StartSchedule(); err != nil {
		return err
	}

	// Channel to listen for errors coming from the server
	serverErrors := make(chan error, 1)

	go func() {
		log.Info(fmt.Sprintf("Server listening on http://%s", serverCfg.Addr()))
		log.Info("Press Ctrl+C to stop")
		serverErrors <- srv.Start()
	}()

	// Block until the command context is cancelled or the server fails
	select {
	case err := <-serverErrors:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil

	case <-ctx.Done():
		log.Info("Server shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("Server shutdown failed, forcing close", "error", err)
			return fmt.Errorf("server shutdown failed: %w", err)
		}

		log.Info("Server stopped successfully")
	}

	return nil
}
