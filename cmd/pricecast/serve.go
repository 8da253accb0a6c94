package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/HatiCode/pricecast/cmd/pricecast/logger"
	"github.com/HatiCode/pricecast/cmd/pricecast/metrics"
	"github.com/HatiCode/pricecast/cmd/pricecast/router"
	"github.com/HatiCode/pricecast/cmd/pricecast/store"
	"github.com/HatiCode/pricecast/pkg/httpx"
	"github.com/HatiCode/pricecast/pkg/storage"
)

// healthService is the gRPC health service name that tracks forecast
// readiness. The empty service reports process liveness.
const healthService = "pricecast"

// serveCmd runs the forecast loop and serves its snapshots.
//
// HTTP on --listen:
//   - GET  /forecast/current?series=<name> - latest snapshot
//   - GET  /forecast/history?series=<name>&limit=<n> - past snapshots (sqlite storage)
//   - POST /forecast/refresh - run the pipeline now (rate limited)
//   - GET  /healthz - 200 once a forecast exists
//   - GET  /metrics - Prometheus metrics
//
// gRPC on --grpc-listen: the standard health service plus reflection.
func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Forecast on an interval and serve the latest snapshot",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			log := logger.New(cfg.LogFormat, cfg.LogLevel)
			slog.SetDefault(log)

			log.Info("starting pricecast",
				"version", version,
				"series", cfg.Series,
				"adapter", cfg.Adapter,
				"grid", cfg.Grid().String(),
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			shutdown, err := initTracing(ctx, cfg)
			if err != nil {
				return err
			}
			defer shutdownTracing(shutdown, log)

			st, closeStore, err := store.New(ctx, cfg, log)
			if err != nil {
				return err
			}
			defer func() {
				if err := closeStore(); err != nil {
					log.Error("failed to close store", "error", err)
				}
			}()
			if st == nil {
				log.Warn("storage none cannot serve snapshots, using in-memory storage")
				mem := storage.NewMemoryStore()
				defer mem.Stop()
				st = mem
			}

			healthServer := health.NewServer()
			healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
			healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

			// failed runs leave the status as it was
			markServing := func(_ *Result, err error) {
				if err == nil {
					healthServer.SetServingStatus(healthService, grpc_health_v1.HealthCheckResponse_SERVING)
				}
			}
			p, err := buildPipeline(cfg, st, log, metrics.New(prometheus.DefaultRegisterer, cfg.Series), markServing)
			if err != nil {
				return err
			}

			var limiter *rate.Limiter
			if cfg.RefreshRate > 0 {
				limiter = rate.NewLimiter(rate.Limit(cfg.RefreshRate), cfg.RefreshBurst)
			}

			handler := router.SetupRoutes(router.Options{
				Store:          st,
				Refresher:      p,
				DefaultSeries:  cfg.Series,
				StaleAfter:     2 * cfg.Interval, // stale if older than 2x the interval
				RefreshLimiter: limiter,
				CORSOrigins:    cfg.CORSOrigins,
				Ready:          p.Ready,
				Gatherer:       prometheus.DefaultGatherer,
				Logger:         log,
			})
			httpServer := httpx.NewServer(cfg.Listen, handler, log)

			var grpcServer *grpc.Server
			if cfg.GRPCListen != "" {
				lis, err := net.Listen("tcp", cfg.GRPCListen)
				if err != nil {
					return err
				}
				grpcServer = grpc.NewServer()
				grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
				reflection.Register(grpcServer)

				go func() {
					log.Info("grpc server listening", "address", cfg.GRPCListen)
					if err := grpcServer.Serve(lis); err != nil {
						log.Error("grpc server failed", "error", err)
					}
				}()
			}

			loopDone := make(chan struct{})
			go func() {
				defer close(loopDone)
				if err := p.Run(ctx, cfg.Interval); err != nil && !errors.Is(err, context.Canceled) {
					log.Error("forecast loop failed", "error", err)
				}
			}()

			serverErr := make(chan error, 1)
			go func() {
				serverErr <- httpServer.Start()
			}()

			var runErr error
			select {
			case <-ctx.Done():
				log.Info("received shutdown signal")
			case runErr = <-serverErr:
				if runErr != nil {
					log.Error("server failed", "error", runErr)
				}
			}

			log.Info("shutting down")
			stop()

			healthServer.Shutdown()
			if grpcServer != nil {
				grpcServer.GracefulStop()
			}
			if err := httpServer.Stop(10 * time.Second); err != nil {
				log.Error("server shutdown failed", "error", err)
				if runErr == nil {
					runErr = err
				}
			}
			<-loopDone

			log.Info("shutdown complete")
			return runErr
		},
	}

	addModelFlags(cmd)
	f := cmd.Flags()
	f.String("listen", ":8081", "HTTP listen address")
	f.String("grpc-listen", ":8082", "gRPC health listen address (empty disables)")
	f.Duration("interval", time.Hour, "Forecast loop interval (0 runs once at startup)")
	f.Int("cache-size", 16, "Search results kept in the LRU cache (0 disables)")
	f.StringSlice("cors-origins", nil, "Allowed CORS origins (empty disables CORS)")
	f.Float64("refresh-rate", 0.1, "Refresh requests per second (0 disables limiting)")
	f.Int("refresh-burst", 1, "Refresh burst size")

	return cmd
}
