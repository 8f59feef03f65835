package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rewired-gh/solsignal/internal/app"
	"github.com/rewired-gh/solsignal/internal/ledger"
	"github.com/rewired-gh/solsignal/internal/logger"
	"github.com/rewired-gh/solsignal/internal/pda"
	"github.com/rewired-gh/solsignal/internal/registry"
	"github.com/rewired-gh/solsignal/internal/relay"
	"github.com/rewired-gh/solsignal/internal/storage"
)

var configPath = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()
	os.Exit(run())
}

// run returns the process exit code once every deferred close has run.
func run() int {
	cfg := app.MustLoad(*configPath)
	defer logger.Sync()
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kp, err := app.Identity(cfg)
	if err != nil {
		logger.Error("%v", err)
		return 1
	}
	deriver := pda.New(cfg.ProgramID())

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

	var (
		client *registry.Client
		txlog  relay.TxLog
	)
	if cfg.Ledger.RPCURL != "" {
		// A deployed program is read over RPC; this build cannot sign for it,
		// so publishes fail with ledger.ErrReadOnly.
		rpc := ledger.NewRPC(cfg.Ledger.RPCURL, cfg.ProgramID(), cfg.Ledger.Timeout)
		client = registry.NewClient(ledger.ReadOnly(rpc), deriver, kp.Pubkey())
		logger.Warn("Serving read-only mirror of %s via %s", cfg.ProgramID(), cfg.Ledger.RPCURL)
	} else {
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
		client = registry.NewClient(led, deriver, kp.Pubkey())
		txlog = led

		if err := app.EnsureRegistry(ctx, client); err != nil {
			logger.Error("%v", err)
			return 1
		}
		if err := app.EnsureAgent(ctx, client, cfg.Agent.Name); err != nil {
			logger.Error("%v", err)
			return 1
		}
	}

	server := relay.New(relay.Config{
		MaxPerAgent:  cfg.Relay.MaxPerAgent,
		PublishDelay: cfg.Relay.PublishDelay,
		QueueSize:    cfg.Relay.QueueSize,
		Network:      cfg.Relay.Network,
	}, client, client, logger.L()).WithJournal(store)
	if txlog != nil {
		server.WithTxLog(txlog)
	}

	go server.Run(ctx)

	srv := &http.Server{
		Addr:              cfg.Relay.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()
	logger.Info("Relay listening on %s (agent %s, program %s, max %d signals per agent)",
		cfg.Relay.Addr, kp.Pubkey(), cfg.ProgramID(), cfg.Relay.MaxPerAgent)

	code := 0
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received, draining connections...")
	case err := <-serveErr:
		logger.Error("Relay listen failed: %v", err)
		code = 1
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Relay shutdown failed: %v", err)
	}
	logger.Info("Relay stopped")
	return code
}
