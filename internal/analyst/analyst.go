// Package analyst runs one autonomous batch: fetch prices, extend the price
// history, generate and calibrate candidates, then publish them.
package analyst

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/solsignal/internal/history"
	"github.com/rewired-gh/solsignal/internal/logger"
	"github.com/rewired-gh/solsignal/internal/models"
	"github.com/rewired-gh/solsignal/internal/registry"
	"github.com/rewired-gh/solsignal/internal/signalgen"
)

// ErrNoPrices aborts a run when no tracked asset could be priced.
var ErrNoPrices = errors.New("no prices fetched")

// PriceSource quotes an asset pair.
type PriceSource interface {
	Price(ctx context.Context, asset string) (decimal.Decimal, error)
}

// Registry is the slice of registry.Client the analyst needs.
type Registry interface {
	Signer() models.Pubkey
	AgentProfile(ctx context.Context, owner models.Pubkey) (models.AgentProfile, models.Pubkey, error)
	RegisterAgent(ctx context.Context, name string) (string, models.Pubkey, error)
	SignalsByAgent(ctx context.Context, owner models.Pubkey) (registry.SignalPage, error)
	Publish(ctx context.Context, p registry.PublishParams) (registry.PublishResult, error)
}

// Journal persists history and run reports.
type Journal interface {
	LoadHistory(capacity int) (*history.Book, error)
	SaveHistory(book *history.Book) error
	RecordRun(r *models.RunReport) error
}

// Notifier announces a finished run.
type Notifier interface {
	SendRunReport(r models.RunReport) error
}

type Config struct {
	Assets       []string
	AgentName    string
	AutoRegister bool
	PublishDelay time.Duration
	FetchDelay   time.Duration
	DryRun       bool
}

type Analyst struct {
	cfg       Config
	prices    PriceSource
	registry  Registry
	journal   Journal
	generator *signalgen.Generator
	notifier  Notifier

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New wires an analyst. notifier may be nil.
func New(cfg Config, prices PriceSource, reg Registry, journal Journal, gen *signalgen.Generator, notifier Notifier) *Analyst {
	return &Analyst{
		cfg:       cfg,
		prices:    prices,
		registry:  reg,
		journal:   journal,
		generator: gen,
		notifier:  notifier,
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

// Run executes one batch. The returned report is always populated, also
// when an error ends the run early.
func (a *Analyst) Run(ctx context.Context) (models.RunReport, error) {
	report := models.RunReport{
		ID:        uuid.NewString(),
		StartedAt: a.now(),
		DryRun:    a.cfg.DryRun,
	}
	err := a.run(ctx, &report)
	if err != nil && !report.Aborted {
		report.Aborted = true
		report.AbortReason = err.Error()
	}
	report.FinishedAt = a.now()

	if jerr := a.journal.RecordRun(&report); jerr != nil {
		logger.Error("Failed to record run %s: %v", report.ID, jerr)
	}
	if a.notifier != nil {
		if nerr := a.notifier.SendRunReport(report); nerr != nil {
			logger.Error("Failed to send run report: %v", nerr)
		}
	}

	logger.Info("Run %s finished: %d prices, %d candidates, %d published, %d failed, aborted=%t",
		report.ID, report.PricesFetched, report.Candidates, len(report.Published), report.Failed, report.Aborted)
	return report, err
}

func (a *Analyst) run(ctx context.Context, report *models.RunReport) error {
	quotes, err := a.fetchPrices(ctx, report)
	if err != nil {
		return err
	}

	book, err := a.journal.LoadHistory(history.DefaultCapacity)
	if err != nil {
		return fmt.Errorf("failed to load price history: %w", err)
	}
	now := a.now()
	for asset, price := range quotes {
		book.Append(asset, price, now)
	}
	if err := a.journal.SaveHistory(book); err != nil {
		return fmt.Errorf("failed to save price history: %w", err)
	}

	past := a.pastSignals(ctx)
	candidates := a.generator.Generate(quotes, book, past)
	report.Candidates = len(candidates)
	for _, c := range candidates {
		logger.Info("Candidate %s %s conf=%d entry=%g target=%g stop=%g horizon=%s strategy=%s",
			c.Asset, c.Direction, c.Confidence, c.Entry, c.Target, c.Stop, c.Horizon, c.Strategy)
	}

	if a.cfg.DryRun || len(candidates) == 0 {
		return nil
	}

	if err := a.ensureProfile(ctx); err != nil {
		return err
	}
	return a.publish(ctx, candidates, report)
}

func (a *Analyst) fetchPrices(ctx context.Context, report *models.RunReport) (map[string]float64, error) {
	quotes := make(map[string]float64, len(a.cfg.Assets))
	for i, asset := range a.cfg.Assets {
		if i > 0 && a.cfg.FetchDelay > 0 {
			if err := a.sleep(ctx, a.cfg.FetchDelay); err != nil {
				return nil, err
			}
		}
		price, err := a.prices.Price(ctx, asset)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Skipping %s: %v", asset, err)
			report.AssetsSkipped++
			continue
		}
		f, _ := price.Float64()
		quotes[asset] = f
	}
	report.PricesFetched = len(quotes)
	if len(quotes) == 0 {
		return nil, ErrNoPrices
	}
	return quotes, nil
}

// pastSignals returns this agent's published signals; a failed read is
// treated as no history.
func (a *Analyst) pastSignals(ctx context.Context) []models.Signal {
	page, err := a.registry.SignalsByAgent(ctx, a.registry.Signer())
	if err != nil {
		logger.Warn("Failed to read past signals, calibrating without history: %v", err)
		return nil
	}
	if page.Failed > 0 {
		logger.Warn("%d signal records could not be decoded", page.Failed)
	}
	past := make([]models.Signal, 0, len(page.Records))
	for _, rec := range page.Records {
		past = append(past, rec.Record)
	}
	return past
}

func (a *Analyst) ensureProfile(ctx context.Context) error {
	_, _, err := a.registry.AgentProfile(ctx, a.registry.Signer())
	if err == nil {
		return nil
	}
	if !errors.Is(err, registry.ErrAgentNotRegistered) {
		return fmt.Errorf("failed to read agent profile: %w", err)
	}
	if !a.cfg.AutoRegister {
		return fmt.Errorf("agent %s: %w", a.registry.Signer(), registry.ErrAgentNotRegistered)
	}
	txID, addr, err := a.registry.RegisterAgent(ctx, a.cfg.AgentName)
	if err != nil {
		return fmt.Errorf("failed to register agent: %w", err)
	}
	logger.Info("Registered agent %q, profile %s (tx %s)", a.cfg.AgentName, addr, txID)
	return nil
}

func (a *Analyst) publish(ctx context.Context, candidates []signalgen.Candidate, report *models.RunReport) error {
	for i, c := range candidates {
		if i > 0 && a.cfg.PublishDelay > 0 {
			if err := a.sleep(ctx, a.cfg.PublishDelay); err != nil {
				return err
			}
		}

		res, err := a.registry.Publish(ctx, c.Params())
		if err != nil {
			report.Failed++
			var pubErr *registry.PublishError
			if errors.As(err, &pubErr) && pubErr.Halts() {
				report.Aborted = true
				report.AbortReason = pubErr.Error()
				logger.Error("Halting batch after %s %s: %v", c.Asset, c.Direction, err)
				return nil
			}
			logger.Error("Failed to publish %s %s: %v", c.Asset, c.Direction, err)
			continue
		}

		s := res.Signal
		report.Published = append(report.Published, models.PublishedSignal{
			Address:    res.SignalAddress,
			Index:      res.Index,
			TxID:       res.TxID,
			Asset:      s.Asset,
			Direction:  s.Direction,
			Confidence: int(s.Confidence),
			Entry:      s.EntryPrice,
			Target:     s.TargetPrice,
			Stop:       s.StopLoss,
			ExpiresAt:  s.Horizon(),
		})
		logger.Info("Published #%d %s %s at %s (tx %s)", res.Index, s.Asset, s.Direction, res.SignalAddress, res.TxID)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
