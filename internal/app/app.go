// Package app holds the start-up wiring shared by the solsignal binaries.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/rewired-gh/solsignal/internal/config"
	"github.com/rewired-gh/solsignal/internal/identity"
	"github.com/rewired-gh/solsignal/internal/logger"
	"github.com/rewired-gh/solsignal/internal/models"
	"github.com/rewired-gh/solsignal/internal/registry"
	"github.com/rewired-gh/solsignal/internal/telegram"
)

// MustLoad loads and validates the configuration and initializes logging.
func MustLoad(path string) *config.Config {
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	logger.Init(cfg.Logging.Level, cfg.Logging.Format)
	logger.Info("Configuration loaded from %s", path)
	return cfg
}

// Identity loads the agent keypair, creating it on first start.
func Identity(cfg *config.Config) (identity.Keypair, error) {
	kp, created, err := identity.LoadOrGenerate(cfg.Agent.KeypairPath)
	if err != nil {
		return identity.Keypair{}, fmt.Errorf("failed to load agent keypair: %w", err)
	}
	if created {
		logger.Info("Generated new agent keypair %s at %s", kp.Pubkey(), cfg.Agent.KeypairPath)
	} else {
		logger.Info("Loaded agent keypair %s", kp.Pubkey())
	}
	return kp, nil
}

// Telegram returns the configured client, or nil when notifications are off.
func Telegram(cfg *config.Config) (*telegram.Client, error) {
	if !cfg.Telegram.Enabled {
		logger.Debug("Telegram notifications disabled")
		return nil, nil
	}
	tg, err := telegram.NewClient(cfg.Telegram.BotToken, cfg.Telegram.ChatID,
		cfg.Telegram.MaxRetries, cfg.Telegram.RetryDelayBase, cfg.Telegram.ExplorerURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Telegram client: %w", err)
	}
	logger.Info("Telegram client initialized successfully")
	return tg, nil
}

// Registrar is the part of registry.Client used at start-up.
type Registrar interface {
	Signer() models.Pubkey
	Registry(ctx context.Context) (models.Registry, error)
	Initialize(ctx context.Context) (string, error)
	AgentProfile(ctx context.Context, owner models.Pubkey) (models.AgentProfile, models.Pubkey, error)
	RegisterAgent(ctx context.Context, name string) (string, models.Pubkey, error)
}

// EnsureRegistry initializes the registry when the ledger has none yet,
// making the signer its authority.
func EnsureRegistry(ctx context.Context, c Registrar) error {
	_, err := c.Registry(ctx)
	if err == nil {
		return nil
	}
	if !errors.Is(err, registry.ErrNotInitialized) {
		return fmt.Errorf("failed to read registry: %w", err)
	}
	txID, err := c.Initialize(ctx)
	if err != nil {
		return fmt.Errorf("failed to initialize registry: %w", err)
	}
	logger.Info("Initialized registry with authority %s (tx %s)", c.Signer(), txID)
	return nil
}

// EnsureAgent registers the signer under name when it has no profile yet.
func EnsureAgent(ctx context.Context, c Registrar, name string) error {
	profile, addr, err := c.AgentProfile(ctx, c.Signer())
	if err == nil {
		logger.Info("Agent %q at %s: %d signals, accuracy %d bps, reputation %d",
			profile.Name, addr, profile.TotalSignals, profile.AccuracyBps, profile.ReputationScore)
		return nil
	}
	if !errors.Is(err, registry.ErrAgentNotRegistered) {
		return fmt.Errorf("failed to read agent profile: %w", err)
	}
	txID, addr, err := c.RegisterAgent(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to register agent: %w", err)
	}
	logger.Info("Registered agent %q, profile %s (tx %s)", name, addr, txID)
	return nil
}

// ErrorNotifier reports failing and recovering jobs.
type ErrorNotifier interface {
	SendError(job string, err error) error
	SendRecovery(job string, failureCount int) error
}

// FailureTracker notifies on the first failure of a streak and on the run
// that ends it.
type FailureTracker struct {
	job      string
	notifier ErrorNotifier

	mu          sync.Mutex
	consecutive int
}

// NewFailureTracker returns a tracker; a nil notifier only logs.
func NewFailureTracker(job string, notifier ErrorNotifier) *FailureTracker {
	return &FailureTracker{job: job, notifier: notifier}
}

func (t *FailureTracker) Observe(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err != nil {
		t.consecutive++
		logger.Error("%s run failed (%d in a row): %v", t.job, t.consecutive, err)
		if t.consecutive == 1 && t.notifier != nil {
			if sendErr := t.notifier.SendError(t.job, err); sendErr != nil {
				logger.Warn("Failed to send error notification to Telegram: %v", sendErr)
			}
		}
		return
	}
	if t.consecutive > 0 && t.notifier != nil {
		if sendErr := t.notifier.SendRecovery(t.job, t.consecutive); sendErr != nil {
			logger.Warn("Failed to send recovery notification to Telegram: %v", sendErr)
		}
	}
	t.consecutive = 0
}

// Consecutive returns the length of the current failure streak.
func (t *FailureTracker) Consecutive() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consecutive
}
