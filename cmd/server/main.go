package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/Harshitk-cp/hivecast/internal/capture"
	"github.com/Harshitk-cp/hivecast/internal/config"
	"github.com/Harshitk-cp/hivecast/internal/engine"
	"github.com/Harshitk-cp/hivecast/internal/handler"
	"github.com/Harshitk-cp/hivecast/internal/health"
	"github.com/Harshitk-cp/hivecast/internal/input"
	"github.com/Harshitk-cp/hivecast/internal/logging"
	"github.com/Harshitk-cp/hivecast/internal/metrics"
	"github.com/Harshitk-cp/hivecast/internal/middleware"
	"github.com/Harshitk-cp/hivecast/internal/service"
)

const healthPeriod = 10 * time.Second

func main() {
	// Parse command line flags
	configPath := flag.String("config", "./config/config.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.Output)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("Server exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Servers successfully shut down")
}

func run(cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewPrometheusCollector(registry)

	// Initialize media engine
	iceServers := make([]engine.ICEServer, 0, len(cfg.WebRTC.ICEServers))
	for _, s := range cfg.WebRTC.ICEServers {
		iceServers = append(iceServers, engine.ICEServer{URLs: s.URLs, Username: s.Username, Credential: s.Credential})
	}
	eng, err := engine.NewPionEngine(engine.PionConfig{
		ICEServers: iceServers,
		UDPPortMin: cfg.WebRTC.UDPPortMin,
		UDPPortMax: cfg.WebRTC.UDPPortMax,
	}, logging.PionFactory{Log: logger}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize media engine: %w", err)
	}

	// Initialize capture factory
	apps := make(map[string]capture.AppConfig, len(cfg.Capture.Apps))
	for name, app := range cfg.Capture.Apps {
		apps[name] = capture.AppConfig{
			Source:           app.Source,
			URL:              app.URL,
			KeyframeInterval: app.KeyframeInterval,
			DialTimeout:      app.DialTimeout,
			RawFrames:        app.RawFrames,
		}
	}
	factory := capture.NewRegistry(apps, logger)

	var injector input.Injector = input.LogInjector{Log: logger}
	if cfg.Input.InjectorURL != "" {
		ws := input.NewWebSocketInjector(cfg.Input.InjectorURL, cfg.Input.InjectorToken, logger)
		defer ws.Close()
		injector = ws
	}

	// Initialize session service
	svc := service.New(cfg, eng, factory, &capture.LegacyGate{}, injector, collector, logger)

	checker := health.NewChecker(healthPeriod, logger)
	checker.Register("media_worker", health.Bool(svc.WorkerRunning, "media worker not running"))
	checker.Register("capture", health.Bool(func() bool { return len(apps) > 0 }, "no capture applications configured"))
	checker.Register("http", health.Static())

	// Initialize gRPC health server
	grpcServer := handler.NewGRPCServer(cfg, checker, logger)

	// Initialize HTTP handler
	routeMiddleware := []mux.MiddlewareFunc{middleware.NewHTTPMetrics(registry).Middleware}
	if cfg.Auth.Enabled {
		auth := middleware.NewAuthenticator(cfg.Auth.Secret, cfg.Auth.Issuer)
		routeMiddleware = append(routeMiddleware, auth.Auth)
	}
	httpHandler := handler.NewHTTPHandler(cfg, svc, checker, collector, logger, routeMiddleware...)

	var root http.Handler = httpHandler
	root = middleware.CORS(root)
	root = middleware.Logging(logger)(root)
	root = middleware.Tracing(root)
	root = middleware.Recovery(logger)(root)

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      root,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	grpcListener, err := net.Listen("tcp", cfg.GRPC.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.GRPC.Address, err)
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svc.Run(ctx)
	})

	g.Go(func() error {
		checker.Run(ctx)
		return nil
	})

	g.Go(func() error {
		logger.Info("Starting HTTP server", "address", cfg.HTTP.Address)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		if err := grpcServer.Serve(grpcListener); err != nil {
			return fmt.Errorf("gRPC server failed: %w", err)
		}
		return nil
	})

	// Handle graceful shutdown
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("Shutting down servers...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", "error", err)
		}

		grpcServer.GracefulStop()

		if err := svc.Shutdown(); err != nil {
			logger.Error("Session service shutdown failed", "error", err)
		}
		return nil
	})

	return g.Wait()
}
