package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rewired-gh/solsignal/internal/analyst"
	"github.com/rewired-gh/solsignal/internal/app"
	"github.com/rewired-gh/solsignal/internal/calibration"
	"github.com/rewired-gh/solsignal/internal/ledger"
	"github.com/rewired-gh/solsignal/internal/logger"
	"github.com/rewired-gh/solsignal/internal/pda"
	"github.com/rewired-gh/solsignal/internal/pyth"
	"github.com/rewired-gh/solsignal/internal/registry"
	"github.com/rewired-gh/solsignal/internal/resolver"
	"github.com/rewired-gh/solsignal/internal/scheduler"
	"github.com/rewired-gh/solsignal/internal/signalgen"
	"github.com/rewired-gh/solsignal/internal/storage"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	once       = flag.Bool("once", false, "Run a single analyst batch and exit")
	dryRun     = flag.Bool("dry-run", false, "Generate candidates without publishing")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

// run returns the process exit code once every deferred close has run.
func run() int {
	cfg := app.MustLoad(*configPath)
	if *dryRun {
		cfg.Analyst.DryRun = true
	}
	defer logger.Sync()

	store, err := storage.New(cfg.Storage.MaxRuns, cfg.Storage.DBPath)
	if err != nil {
		logger.Error("Failed to initialize storage: %v", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage: %v", err)
		}
	}()

	led, err := ledger.OpenSQLite(cfg.Ledger.DBPath)
	if err != nil {
		logger.Error("Failed to open ledger: %v", err)
		return 1
	}
	defer func() {
		if err := led.Close(); err != nil {
			logger.Error("Failed to close ledger: %v", err)
		}
	}()

	kp, err := app.Identity(cfg)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}
	client := registry.NewClient(led, pda.New(cfg.ProgramID()), kp.Pubkey())

	tg, err := app.Telegram(cfg)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}
	var (
		runNotifier     analyst.Notifier
		resolveNotifier resolver.Notifier
		errNotifier     app.ErrorNotifier
	)
	if tg != nil {
		runNotifier, resolveNotifier, errNotifier = tg, tg, tg
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.EnsureRegistry(ctx, client); err != nil {
		logger.Error("%v", err)
		return 1
	}

	prices := pyth.NewClient(cfg.Pyth.BaseURL, cfg.Pyth.Timeout, cfg.Pyth.Feeds, cfg.Pyth.MaxAge)
	gen := signalgen.New(cfg.SignalGen, calibration.New(cfg.Calibration))

	an := analyst.New(analyst.Config{
		Assets:       cfg.Analyst.Assets,
		AgentName:    cfg.Agent.Name,
		AutoRegister: cfg.Agent.AutoRegister,
		PublishDelay: cfg.Analyst.PublishDelay,
		FetchDelay:   cfg.Analyst.FetchDelay,
		DryRun:       cfg.Analyst.DryRun,
	}, prices, client, store, gen, runNotifier)

	if *once {
		report, err := an.Run(ctx)
		if err != nil {
			logger.Error("Analyst run failed: %v", err)
			return 1
		}
		if report.Aborted {
			logger.Warn("Analyst run stopped early: %s", report.AbortReason)
			return 1
		}
		return 0
	}

	res := resolver.New(resolver.Config{
		ResolveDelay: cfg.Resolver.ResolveDelay,
		ExpireAfter:  cfg.Resolver.ExpireAfter,
	}, prices, client, store, resolveNotifier)

	runner := scheduler.New(logger.L(), ctx)

	if cfg.Schedule.Analyst != "" {
		tracker := app.NewFailureTracker("analyst", errNotifier)
		if _, err := runner.Add("analyst", cfg.Schedule.Analyst, func(ctx context.Context) {
			_, err := an.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return
			}
			tracker.Observe(err)
		}); err != nil {
			logger.Error("Failed to schedule analyst: %v", err)
			return 1
		}
	}
	if cfg.Schedule.Resolver != "" {
		tracker := app.NewFailureTracker("resolver", errNotifier)
		if _, err := runner.Add("resolver", cfg.Schedule.Resolver, func(ctx context.Context) {
			_, err := res.Run(ctx)
			if errors.Is(err, context.Canceled) {
				return
			}
			tracker.Observe(err)
		}); err != nil {
			logger.Error("Failed to schedule resolver: %v", err)
			return 1
		}
	}
	if runner.Entries() == 0 {
		logger.Error("Nothing scheduled: set schedule.analyst or schedule.resolver, or use -once")
		return 1
	}

	logger.Info("Starting scheduler (analyst: %q, resolver: %q, assets: %v, dry_run: %v)",
		cfg.Schedule.Analyst, cfg.Schedule.Resolver, cfg.Analyst.Assets, cfg.Analyst.DryRun)
	runner.Start()

	<-ctx.Done()
	logger.Info("Shutdown signal received, waiting for running job...")
	runner.Stop()
	logger.Info("Service stopped")
	return 0
}
