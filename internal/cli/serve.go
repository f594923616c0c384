package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"ohlcv-analyst/internal/server"
	"ohlcv-analyst/internal/service"
)

func newServeCmd(app *App) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the chat endpoint over HTTP",
		Long: `Serve POST /api/chat for a chat front end, plus /api/health and /metrics.

The dataset is loaded once at startup and shared read-only by all requests.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			ds, err := app.loadDataset(ctx)
			if err != nil {
				return err
			}
			orchestrator, client, err := app.newOrchestrator(ds)
			if err != nil {
				return err
			}

			reg := prometheus.NewRegistry()
			reg.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)

			var svc service.Service
			svc = service.New(orchestrator)
			svc = service.NewLoggingMiddleware(app.Logger, svc)
			svc = service.NewInstrumentingMiddleware(service.NewMetrics(reg), svc)

			serverCfg := app.Config.Server
			if addr != "" {
				serverCfg.Addr = addr
			}
			if app.Logger.GetLevel() > zerolog.DebugLevel {
				gin.SetMode(gin.ReleaseMode)
			}

			srv := server.New(server.Options{
				Config:   serverCfg,
				Service:  svc,
				Dataset:  ds,
				Breaker:  client.Breaker(),
				Gatherer: reg,
				Logger:   app.Logger,
			})
			return srv.Run(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.addr)")
	return cmd
}
