package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"market-relay/src/config"
	"market-relay/src/grpc_control"
	"market-relay/src/helpers"
	"market-relay/src/interfaces"
	"market-relay/src/logger"
	"market-relay/src/metrics"
	"market-relay/src/models"
	"market-relay/src/network"
	"market-relay/src/normalizer"
	"market-relay/src/reference"
	"market-relay/src/registry"
	"market-relay/src/relay"
	"market-relay/src/server"
	"market-relay/src/storage"
	"market-relay/src/upstream"
	"market-relay/src/utils"

	"github.com/sourcegraph/conc"
	"google.golang.org/grpc"
)

const (
	cacheSweepInterval = 5 * time.Minute
	shutdownTimeout    = 10 * time.Second
)

// -----------------------------------------------------------------------------

func main() {

	// Parse command line flags
	configPath := flag.String("config", "config/default.yaml", "path to config file")
	flag.Parse()

	// Load config from YAML file and environment
	cfg, err := config.NewConfig(*configPath)
	if err != nil {
		fmt.Printf("Error loading config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	appLogger := logger.NewLogger(cfg.MConfig, cfg.Name)
	errHandler := helpers.NewErrorHandler(appLogger)
	m := metrics.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 1. Reference data cache
	cache, err := storage.NewCache(&cfg.Storage, appLogger.Named("Cache"))
	if err != nil {
		appLogger.Critical("Failed to create cache: %v", err)
	}
	if err := cache.Initialize(ctx); err != nil {
		appLogger.Critical("Failed to initialize %s cache: %v", cfg.Storage.CacheBackend, err)
	}
	defer cache.Close()

	// 2. Reference data source
	netManager, err := network.NewNetworkManager(&cfg.Reference, appLogger.Named("Network"))
	if err != nil {
		appLogger.Critical("Failed to build HTTP client: %v", err)
	}
	var refData interfaces.IReferenceData = reference.NewCachedSource(
		reference.NewPolygonSource(cfg.Upstream.APIKey, netManager.Client, appLogger.Named("Reference")),
		cache,
		time.Duration(cfg.Reference.CacheTTLMinutes)*time.Minute,
		appLogger.Named("Reference"),
		m,
	)

	// 3. Relay core: upstream connections feed the normalizer, which feeds the hub.
	// broadcaster is bound to the server below, before any connection starts.
	norm := normalizer.NewNormalizer(appLogger.Named("Normalizer"), m)
	var broadcaster interfaces.IBroadcaster
	handler := func(market models.Market, frame []byte) {
		norm.Forward(broadcaster, market, frame)
	}

	upstreams := upstream.NewManager(upstream.Options{
		BaseURL:        cfg.Upstream.BaseURL,
		APIKey:         cfg.Upstream.APIKey,
		InitialBackoff: time.Duration(cfg.Upstream.ReconnectInitialMs) * time.Millisecond,
		MaxBackoff:     time.Duration(cfg.Upstream.ReconnectMaxMs) * time.Millisecond,
		Throttle:       time.Duration(cfg.Relay.ThrottleMs) * time.Millisecond,
	}, cfg.EnabledMarkets(), cfg.Upstream.EagerConnect, handler, appLogger.Named("Upstream"), m)

	relayService := relay.NewService(
		registry.NewRegistry(cfg.Relay.MaxSymbolsPerClient),
		upstreams,
		appLogger.Named("Relay"),
		m,
	)

	calendar := utils.GetCalendar()
	srv := server.NewServer(cfg.MConfig, appLogger.Named("Server"), relayService, refData, m, calendar.Session)

	broadcaster = srv

	if err := upstreams.Start(ctx); err != nil {
		appLogger.Critical("Failed to start upstream connections: %v", err)
	}

	// 4. Serve
	var wg conc.WaitGroup
	srv.StartHub()
	wg.Go(func() {
		if errHandler.Handle(srv.Start(), "HTTP server") {
			stop()
		}
	})

	var grpcServer *grpc.Server
	if cfg.GrpcPort != 0 {
		addr := fmt.Sprintf("%s:%d", cfg.GrpcHost, cfg.GrpcPort)
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			appLogger.Critical("Failed to listen on %s: %v", addr, err)
		}
		grpcServer = grpc.NewServer()
		grpc_control.Register(grpcServer, grpc_control.NewControlService(relayService, appLogger.Named("gRPC")))
		wg.Go(func() {
			appLogger.Info("gRPC control listening on %s", addr)
			if err := grpcServer.Serve(lis); !errors.Is(err, grpc.ErrServerStopped) {
				errHandler.Handle(err, "gRPC server")
			}
		})
	}

	// 5. Periodic cache sweep
	wg.Go(func() {
		ticker := time.NewTicker(cacheSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				errHandler.Handle(cache.CleanupExpired(ctx), "cache sweep")
			}
		}
	})

	<-ctx.Done()
	appLogger.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	errHandler.Handle(srv.Stop(shutdownCtx), "HTTP shutdown")
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	errHandler.Handle(upstreams.Stop(), "upstream shutdown")
	wg.Wait()
	appLogger.Info("Shutdown complete")
}
