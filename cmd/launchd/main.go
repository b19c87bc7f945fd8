package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"launchcore/config"
	"launchcore/core/types"
	"launchcore/gateway/middleware"
	"launchcore/gateway/routes"
	"launchcore/native/allocation"
	"launchcore/native/staking"
	"launchcore/native/streampool"
	"launchcore/native/valve"
	"launchcore/native/vault"
	"launchcore/observability"
	"launchcore/observability/logging"
	telemetry "launchcore/observability/otel"
	"launchcore/state"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "launchd.toml", "path to daemon configuration")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		logging.Setup(logging.Options{Service: "launchd"}).Error("load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Setup(logging.Options{
		Service: "launchd",
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Path:    cfg.LogPath,
	})

	if cfg.Telemetry.Endpoint != "" {
		shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
			ServiceName: "launchd",
			Environment: cfg.Env,
			Endpoint:    cfg.Telemetry.Endpoint,
			Insecure:    cfg.Telemetry.Insecure,
			Headers:     telemetry.ParseHeaders(cfg.Telemetry.Headers),
			Traces:      cfg.Telemetry.Traces,
			Metrics:     cfg.Telemetry.Metrics,
		})
		if err != nil {
			logger.Error("initialise telemetry", "error", err)
			os.Exit(1)
		}
		defer func() {
			_ = shutdownTelemetry(context.Background())
		}()
	}

	core, err := buildCore(cfg, logger)
	if err != nil {
		logger.Error("wire engines", "error", err)
		os.Exit(1)
	}

	moduleMetrics := observability.ModuleMetrics()
	limiter := middleware.NewRateLimiter(middleware.RateLimit{
		RequestsPerMinute: float64(cfg.RateLimit.RequestsPerMinute),
		Burst:             cfg.RateLimit.Burst,
	}, logger, moduleMetrics)
	obs := middleware.NewObservability("launchd", logger, moduleMetrics, true)

	var handler http.Handler = routes.New(routes.Config{
		Core:          core,
		RateLimiter:   limiter,
		Observability: obs,
	})
	if cfg.Telemetry.Endpoint != "" && cfg.Telemetry.Traces {
		handler = otelhttp.NewHandler(handler, "launchd")
	}

	server := &http.Server{
		Addr:         cfg.ListenAddress,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	listener, err := net.Listen("tcp", cfg.ListenAddress)
	if err != nil {
		logger.Error("listen", "error", err)
		os.Exit(1)
	}
	go func() {
		logger.Info("listening", "address", listener.Addr().String())
		if serveErr := server.Serve(listener); serveErr != nil && serveErr != http.ErrServerClosed {
			logger.Error("serve", "error", serveErr)
			stop()
		}
	}()

	var metricsServer *http.Server
	if cfg.MetricsAddress != "" && cfg.MetricsAddress != cfg.ListenAddress {
		mux := http.NewServeMux()
		mux.Handle("/metrics", obs.MetricsHandler())
		metricsServer = &http.Server{Addr: cfg.MetricsAddress, Handler: mux}
		go func() {
			logger.Info("metrics listening", "address", cfg.MetricsAddress)
			if serveErr := metricsServer.ListenAndServe(); serveErr != nil && serveErr != http.ErrServerClosed {
				logger.Error("metrics serve", "error", serveErr)
			}
		}()
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", "error", err)
	}
	if metricsServer != nil {
		_ = metricsServer.Shutdown(shutdownCtx)
	}
}

// buildCore assembles the engine graph behind the gateway: one ledger-backed
// store shared by two distribution-pool engines (vesting vaults and staking
// reward streams), the allocation fan-out on top, and the safety valve over
// the staking factory.
func buildCore(cfg *config.Config, logger *slog.Logger) (*routes.Core, error) {
	store := state.NewStore()
	emitter := observability.NewEventRecorder(logger)

	vaultPools := streampool.NewEngine()
	vaultPools.SetState(store)
	vaultPools.SetEmitter(emitter)
	vaults := vault.NewEngine(vaultPools)
	vaults.SetState(store)
	vaults.SetEmitter(emitter)

	stakingPools := streampool.NewEngine()
	stakingPools.SetState(store)
	stakingPools.SetEmitter(emitter)
	stakes := staking.NewEngine(stakingPools)
	stakes.SetState(store)
	stakes.SetEmitter(emitter)

	alloc := allocation.NewEngine(vaults, stakes)
	alloc.SetState(store)
	alloc.SetEmitter(emitter)
	if cfg.Allocation.MaxEntries > 0 {
		alloc.SetMaxEntries(cfg.Allocation.MaxEntries)
	}
	entries, err := splitEntries(cfg.Allocation.DefaultSplit)
	if err != nil {
		return nil, err
	}
	if len(entries) > 0 {
		if err := alloc.SetDefaultEntries(entries); err != nil {
			return nil, err
		}
	}
	for _, deployer := range cfg.Allocation.Deployers {
		addr, err := types.ParseAddress(deployer)
		if err != nil {
			return nil, err
		}
		store.GrantRole(allocation.RoleDeployer, addr)
	}

	valves := valve.NewEngine(stakes)
	valves.SetState(store)
	valves.SetEmitter(emitter)
	manager, err := cfg.ValveManager()
	if err != nil {
		return nil, err
	}
	valves.SetManager(manager)
	stakes.SetManager(manager)
	floor, err := cfg.ValveFloorUnits()
	if err != nil {
		return nil, err
	}
	valves.SetFloorUnits(floor)

	return &routes.Core{
		Store:      store,
		Allocation: alloc,
		Vault:      vaults,
		Staking:    stakes,
		Valve:      valves,
	}, nil
}

func splitEntries(split []config.SplitEntry) ([]allocation.Entry, error) {
	entries := make([]allocation.Entry, 0, len(split))
	for _, s := range split {
		entry := allocation.Entry{
			Percentage:      s.Percentage,
			Cliff:           s.Cliff,
			VestingDuration: s.VestingDuration,
			LockupDuration:  s.LockupDuration,
			StreamDuration:  s.StreamDuration,
		}
		switch s.Kind {
		case "vault":
			entry.Kind = allocation.KindVault
			recipient, err := types.ParseAddress(s.Recipient)
			if err != nil {
				return nil, err
			}
			entry.Recipient = recipient
		case "staking":
			entry.Kind = allocation.KindStaking
		default:
			return nil, fmt.Errorf("default split: unknown kind %q", s.Kind)
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
