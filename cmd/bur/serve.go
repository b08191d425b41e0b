package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/oriys/bur/internal/logging"
	"github.com/oriys/bur/internal/metrics"
	"github.com/oriys/bur/internal/observability"
	"github.com/oriys/bur/internal/rpc"
)

func newServeCmd() *cobra.Command {
	var rpcAddr, httpAddr, moduleRoot string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the Bur gRPC runtime and a Prometheus /metrics, /health HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(rpcAddr, httpAddr, moduleRoot)
		},
	}
	cmd.Flags().StringVar(&rpcAddr, "rpc-addr", ":7410", "address the gRPC runtime listens on")
	cmd.Flags().StringVar(&httpAddr, "http-addr", ":7411", "address the metrics/health HTTP server listens on")
	cmd.Flags().StringVar(&moduleRoot, "module-root", ".", "filesystem root for the fs module loader, when config leaves loader.fs_root empty")
	return cmd
}

func serve(rpcAddr, httpAddr, moduleRoot string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Observability.Logging.Level != "" {
		logging.SetLevelFromString(cfg.Observability.Logging.Level)
	}

	ctx := context.Background()
	if err := observability.Init(ctx, observability.Config{
		Enabled:     cfg.Observability.Tracing.Enabled,
		Exporter:    cfg.Observability.Tracing.Exporter,
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		ServiceName: cfg.Observability.Tracing.ServiceName,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
	}); err != nil {
		return err
	}
	defer observability.Shutdown(ctx)

	namespace := cfg.Observability.Metrics.Namespace
	if namespace == "" {
		namespace = "bur"
	}
	if cfg.Observability.Metrics.Enabled {
		metrics.Init(namespace)
	}

	loader, err := buildSourceLoader(ctx, cfg, moduleRoot)
	if err != nil {
		return err
	}

	if rpcAddrFromCfg := cfg.RPC.Addr; cfg.RPC.Enabled && rpcAddrFromCfg != "" {
		rpcAddr = rpcAddrFromCfg
	}
	server := rpc.NewServer(runtimeConfig(cfg), loader)
	if err := server.Start(rpcAddr); err != nil {
		return err
	}
	defer server.Stop()

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	httpServer := &http.Server{Addr: httpAddr, Handler: mux}
	go func() {
		logging.Op().Info("bur serve: http listening", "addr", httpAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Op().Error("bur serve: http server exited", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logging.Op().Info("bur serve: shutting down", "signal", sig.String())

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
