// Package resolver settles matured pending signals against oracle prices.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/rewired-gh/solsignal/internal/lifecycle"
	"github.com/rewired-gh/solsignal/internal/logger"
	"github.com/rewired-gh/solsignal/internal/models"
	"github.com/rewired-gh/solsignal/internal/registry"
)

// PriceSource quotes an asset pair.
type PriceSource interface {
	Price(ctx context.Context, asset string) (decimal.Decimal, error)
}

// Registry is the slice of registry.Client the resolver needs.
type Registry interface {
	Signals(ctx context.Context) (registry.SignalPage, error)
	Resolve(ctx context.Context, addr models.Pubkey, settlement models.Price) (registry.ResolveResult, error)
	Expire(ctx context.Context, addr models.Pubkey, reference models.Price) (registry.ResolveResult, error)
}

// Journal persists resolution reports.
type Journal interface {
	RecordResolution(r *models.ResolutionReport) error
}

// Notifier announces a finished batch.
type Notifier interface {
	SendResolutionReport(r models.ResolutionReport) error
}

type Config struct {
	ResolveDelay time.Duration
	// ExpireAfter is how long past its horizon an unpriceable signal waits
	// before it is expired at its entry price. 0 disables expiry.
	ExpireAfter time.Duration
}

type Resolver struct {
	cfg      Config
	prices   PriceSource
	registry Registry
	journal  Journal
	notifier Notifier

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New wires a resolver. journal and notifier may be nil.
func New(cfg Config, prices PriceSource, reg Registry, journal Journal, notifier Notifier) *Resolver {
	return &Resolver{
		cfg:      cfg,
		prices:   prices,
		registry: reg,
		journal:  journal,
		notifier: notifier,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

type quote struct {
	price models.Price
	err   error
}

// Run settles every pending signal whose horizon has passed.
func (r *Resolver) Run(ctx context.Context) (models.ResolutionReport, error) {
	report := models.ResolutionReport{ID: uuid.NewString(), StartedAt: r.now()}
	err := r.run(ctx, &report)
	report.FinishedAt = r.now()

	if r.journal != nil {
		if jerr := r.journal.RecordResolution(&report); jerr != nil {
			logger.Error("Failed to record resolution batch %s: %v", report.ID, jerr)
		}
	}
	if r.notifier != nil {
		if nerr := r.notifier.SendResolutionReport(report); nerr != nil {
			logger.Error("Failed to send resolution report: %v", nerr)
		}
	}

	logger.Info("Resolution %s finished: %d scanned, %d due, %d settled (%d correct, %d incorrect, %d expired), %d lost races, %d without price, %d failed",
		report.ID, report.Scanned, report.ExpiredPending, len(report.Resolved),
		report.Count(models.Correct), report.Count(models.Incorrect), report.Count(models.Expired),
		report.LostRaces, report.NoPrice, report.Failed)
	return report, err
}

func (r *Resolver) run(ctx context.Context, report *models.ResolutionReport) error {
	page, err := r.registry.Signals(ctx)
	if err != nil {
		return fmt.Errorf("failed to scan signals: %w", err)
	}
	report.Scanned = len(page.Records)
	report.Undecodable = page.Failed
	if page.Failed > 0 {
		logger.Warn("%d signal records could not be decoded", page.Failed)
	}

	now := r.now()
	var pending []pendingSignal
	for _, rec := range page.Records {
		switch {
		case rec.Record.Resolved:
			report.AlreadyResolved++
		case !rec.Record.Matured(now):
			report.NotYetExpired++
		default:
			pending = append(pending, pendingSignal{addr: rec.Address, sig: rec.Record})
		}
	}
	report.ExpiredPending = len(pending)
	sort.Slice(pending, func(i, j int) bool { return pending[i].sig.Index < pending[j].sig.Index })

	quotes := make(map[string]quote)
	for i, p := range pending {
		if i > 0 && r.cfg.ResolveDelay > 0 {
			if err := r.sleep(ctx, r.cfg.ResolveDelay); err != nil {
				return err
			}
		}

		q, ok := quotes[p.sig.Asset]
		if !ok {
			q = r.quote(ctx, p.sig.Asset)
			quotes[p.sig.Asset] = q
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		if q.err != nil {
			if r.cfg.ExpireAfter > 0 && now.Sub(p.sig.Horizon()) > r.cfg.ExpireAfter {
				r.settle(ctx, report, p, p.sig.EntryPrice, r.registry.Expire)
				continue
			}
			logger.Warn("No settlement price for #%d %s: %v", p.sig.Index, p.sig.Asset, q.err)
			report.NoPrice++
			continue
		}
		r.settle(ctx, report, p, q.price, r.registry.Resolve)
	}
	return nil
}

type pendingSignal struct {
	addr models.Pubkey
	sig  models.Signal
}

type settleFunc func(ctx context.Context, addr models.Pubkey, price models.Price) (registry.ResolveResult, error)

func (r *Resolver) settle(ctx context.Context, report *models.ResolutionReport, p pendingSignal, price models.Price, fn settleFunc) {
	res, err := fn(ctx, p.addr, price)
	if errors.Is(err, lifecycle.ErrNotResolvable) {
		logger.Info("Signal #%d already settled by another resolver", p.sig.Index)
		report.LostRaces++
		return
	}
	if err != nil {
		logger.Error("Failed to settle #%d %s: %v", p.sig.Index, p.sig.Asset, err)
		report.Failed++
		return
	}
	report.Resolved = append(report.Resolved, models.Resolution{
		Address:    p.addr,
		Index:      p.sig.Index,
		TxID:       res.TxID,
		Asset:      p.sig.Asset,
		Direction:  p.sig.Direction,
		Target:     p.sig.TargetPrice,
		Settlement: price,
		Outcome:    res.Outcome,
	})
	logger.Info("Settled #%d %s %s: target %s, price %s -> %s (tx %s)",
		p.sig.Index, p.sig.Asset, p.sig.Direction, p.sig.TargetPrice, price, res.Outcome, res.TxID)
}

func (r *Resolver) quote(ctx context.Context, asset string) quote {
	d, err := r.prices.Price(ctx, asset)
	if err != nil {
		return quote{err: err}
	}
	p, err := models.PriceFromDecimal(d)
	if err != nil {
		return quote{err: fmt.Errorf("price %s for %s: %w", d, asset, err)}
	}
	return quote{price: p}
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
