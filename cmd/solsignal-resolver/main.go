package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/rewired-gh/solsignal/internal/app"
	"github.com/rewired-gh/solsignal/internal/ledger"
	"github.com/rewired-gh/solsignal/internal/logger"
	"github.com/rewired-gh/solsignal/internal/models"
	"github.com/rewired-gh/solsignal/internal/pda"
	"github.com/rewired-gh/solsignal/internal/pyth"
	"github.com/rewired-gh/solsignal/internal/registry"
	"github.com/rewired-gh/solsignal/internal/resolver"
	"github.com/rewired-gh/solsignal/internal/scheduler"
	"github.com/rewired-gh/solsignal/internal/storage"
)

var (
	configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")
	watch      = flag.Bool("watch", false, "Keep running on schedule.resolver instead of resolving one batch")
)

func main() {
	flag.Parse()
	os.Exit(run())
}

// run returns the process exit code once every deferred close has run.
func run() int {
	cfg := app.MustLoad(*configPath)
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

	// Resolution is permissionless; the agent key only signs the transactions.
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
		notifier    resolver.Notifier
		errNotifier app.ErrorNotifier
	)
	if tg != nil {
		notifier, errNotifier = tg, tg
	}

	prices := pyth.NewClient(cfg.Pyth.BaseURL, cfg.Pyth.Timeout, cfg.Pyth.Feeds, cfg.Pyth.MaxAge)
	res := resolver.New(resolver.Config{
		ResolveDelay: cfg.Resolver.ResolveDelay,
		ExpireAfter:  cfg.Resolver.ExpireAfter,
	}, prices, client, store, notifier)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if !*watch {
		report, err := res.Run(ctx)
		if err != nil {
			logger.Error("Resolution batch failed: %v", err)
			return 1
		}
		logger.Info("Batch done: %d correct, %d incorrect, %d expired, %d lost races, %d without price, %d failed",
			report.Count(models.Correct), report.Count(models.Incorrect), report.Count(models.Expired),
			report.LostRaces, report.NoPrice, report.Failed)
		if report.Failed > 0 {
			return 1
		}
		return 0
	}

	if cfg.Schedule.Resolver == "" {
		logger.Error("schedule.resolver is empty; nothing to watch")
		return 1
	}
	tracker := app.NewFailureTracker("resolver", errNotifier)
	runner := scheduler.New(logger.L(), ctx)
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

	logger.Info("Starting resolver (schedule: %q, expire_after: %v)", cfg.Schedule.Resolver, cfg.Resolver.ExpireAfter)
	runner.Start()

	<-ctx.Done()
	logger.Info("Shutdown signal received, waiting for running batch...")
	runner.Stop()
	logger.Info("Resolver stopped")
	return 0
}
