package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/defiswap/defiswap-core-go/cmd/ammd/config"
	"github.com/defiswap/defiswap-core-go/engine"
	"github.com/defiswap/defiswap-core-go/events"
	"github.com/defiswap/defiswap-core-go/ledger"
	"github.com/defiswap/defiswap-core-go/registry"
	"github.com/defiswap/defiswap-core-go/registry/boltstore"
	"github.com/defiswap/defiswap-core-go/streams/jsonrpc/server"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// create the log handler
	rootLogHandler := slog.NewJSONHandler(os.Stdout, nil)
	rootLogger := slog.New(rootLogHandler)

	cfg, err := loadConfig()
	if err != nil {
		rootLogger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Create a context that cancels when the OS sends an interrupt (Ctrl+C) or termination signal.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, rootLogger); err != nil {
		rootLogger.Error("Fatal error", "error", err)
		stop()
		os.Exit(1)
	}
}

// run wires the daemon and blocks until the context cancels or a server
// fails. Every resource is released on return, whichever path is taken.
func run(ctx context.Context, cfg *config.Config, rootLogger *slog.Logger) error {
	prometheusRegistry := prometheus.DefaultRegisterer

	var store registry.Store
	if cfg.StorePath != "" {
		boltStore, err := boltstore.Open(cfg.StorePath)
		if err != nil {
			return err
		}
		defer boltStore.Close()
		store = boltStore
	}

	reg, err := registry.NewRegistry(&registry.Config{
		Store:  store,
		Logger: rootLogger.With("component", "registry"),
	})
	if err != nil {
		return err
	}

	led := ledger.NewLedger(cfg.CustodianAddress())

	// Swap notifications go through a bounded channel so the engine never
	// blocks on a slow consumer; a goroutine drains it into the log sink.
	swapEvents := events.NewChannelSink(cfg.EventBufferSize)
	logSink := events.NewLogSink(rootLogger.With("component", "events"))
	go func() {
		for {
			select {
			case event := <-swapEvents.Events():
				logSink.NotifySwap(event)
			case <-ctx.Done():
				return
			}
		}
	}()

	eng, err := engine.New(&engine.Config{
		Registry:           reg,
		Ledger:             led,
		Custodian:          cfg.CustodianAddress(),
		Events:             swapEvents,
		Logger:             rootLogger.With("component", "engine"),
		PrometheusRegistry: prometheusRegistry,
	})
	if err != nil {
		return err
	}

	rpcServer, err := server.New(&server.Config{
		Engine:     eng,
		Registry:   reg,
		ListenAddr: cfg.ListenAddr,
		Logger:     rootLogger.With("component", "jsonrpc-server"),
	})
	if err != nil {
		return err
	}

	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
	errCh := make(chan error, 2)
	go func() {
		rootLogger.Info("metrics server listening", "addr", cfg.MetricsAddr)
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	go func() {
		if err := rpcServer.Start(); err != nil {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case runErr = <-errCh:
		rootLogger.Error("Fatal server error", "error", runErr)
	case <-ctx.Done():
		rootLogger.Info("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := rpcServer.Stop(shutdownCtx); err != nil {
		rootLogger.Error("Failed to stop RPC server", "error", err)
	}
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		rootLogger.Error("Failed to stop metrics server", "error", err)
	}
	return runErr
}

func loadConfig() (*config.Config, error) {
	configPath := flag.String("config", "config.yaml", "Path to the configuration file.")
	flag.Parse()
	log.Printf("Loading configuration from: %s", *configPath)
	return config.LoadConfig(*configPath)
}
