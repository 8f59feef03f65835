package resolver

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/solsignal/internal/codec"
	"github.com/rewired-gh/solsignal/internal/ledger"
	"github.com/rewired-gh/solsignal/internal/models"
	"github.com/rewired-gh/solsignal/internal/pda"
	"github.com/rewired-gh/solsignal/internal/pyth"
	"github.com/rewired-gh/solsignal/internal/registry"
	"github.com/rewired-gh/solsignal/internal/storage"
)

var (
	agentKey    = models.Pubkey{0xa1, 0x01}
	resolverKey = models.Pubkey{0xc3, 0x03}
	deriver     = pda.New(pda.DefaultProgramID)
)

type countingPrices struct {
	prices map[string]string
	calls  map[string]int
}

func newPrices(prices map[string]string) *countingPrices {
	return &countingPrices{prices: prices, calls: map[string]int{}}
}

func (c *countingPrices) Price(_ context.Context, asset string) (decimal.Decimal, error) {
	c.calls[asset]++
	p, ok := c.prices[asset]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", pyth.ErrUpstreamPriceUnavailable, asset)
	}
	return decimal.RequireFromString(p), nil
}

type seed struct {
	index     uint64
	asset     string
	direction models.Direction
	entry     models.Price
	target    models.Price
	horizon   time.Time
	resolved  bool
}

// seedLedger writes a profile for agentKey and the given signals directly.
func seedLedger(t *testing.T, settled uint32, seeds ...seed) *ledger.SQLite {
	t.Helper()
	l, err := ledger.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })

	profileAddr, _, err := deriver.AgentProfile(agentKey)
	require.NoError(t, err)
	profileData, err := codec.Encode(models.AgentProfile{
		Authority:      agentKey,
		Name:           "batman",
		TotalSignals:   uint32(len(seeds)),
		CorrectSignals: settled,
	})
	require.NoError(t, err)
	muts := []ledger.Mutation{{Address: profileAddr, Create: true, Data: profileData}}

	for _, s := range seeds {
		addr, bump, err := deriver.Signal(agentKey, s.index)
		require.NoError(t, err)
		sig := models.Signal{
			Agent:       agentKey,
			Index:       s.index,
			Asset:       s.asset,
			Direction:   s.direction,
			Confidence:  60,
			EntryPrice:  s.entry,
			TargetPrice: s.target,
			StopLoss:    s.entry / 2,
			TimeHorizon: s.horizon.Unix(),
			Bump:        bump,
		}
		if s.resolved {
			sig.Resolved, sig.Outcome, sig.ResolutionPrice = true, models.Correct, s.target
		}
		data, err := codec.Encode(sig)
		require.NoError(t, err)
		muts = append(muts, ledger.Mutation{Address: addr, Create: true, Data: data})
	}

	_, err = l.Submit(context.Background(), ledger.Transaction{Kind: "seed", Mutations: muts})
	require.NoError(t, err)
	return l
}

func signalAddr(t *testing.T, index uint64) models.Pubkey {
	addr, _, err := deriver.Signal(agentKey, index)
	require.NoError(t, err)
	return addr
}

func newResolver(cfg Config, prices PriceSource, reg Registry, journal Journal) (*Resolver, *[]time.Duration) {
	r := New(cfg, prices, reg, journal, nil)
	var sleeps []time.Duration
	r.sleep = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}
	return r, &sleeps
}

func TestRun_SettlesDueSignals(t *testing.T) {
	now := time.Now()
	l := seedLedger(t, 1,
		seed{1, "SOL/USDC", models.Long, 140_000_000, 145_000_000, now.Add(-2 * time.Hour), false},
		seed{2, "SOL/USDC", models.Short, 152_000_000, 140_000_000, now.Add(-time.Hour), false},
		seed{3, "ETH/USDC", models.Long, 3_000_000_000, 3_100_000_000, now.Add(-2 * time.Hour), false},
		seed{4, "SOL/USDC", models.Long, 140_000_000, 145_000_000, now.Add(2 * time.Hour), false},
		seed{5, "SOL/USDC", models.Long, 140_000_000, 145_000_000, now.Add(-48 * time.Hour), true},
	)
	disc := codec.Discriminator(models.KindSignal)
	_, err := l.Submit(context.Background(), ledger.Transaction{Kind: "seed", Mutations: []ledger.Mutation{
		{Address: models.Pubkey{0xee}, Create: true, Data: append(disc[:], 1, 2, 3)},
	}})
	require.NoError(t, err)

	store, err := storage.New(5, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	client := registry.NewClient(l, deriver, resolverKey)
	prices := newPrices(map[string]string{"SOL/USDC": "150"})
	r, sleeps := newResolver(Config{ResolveDelay: 500 * time.Millisecond}, prices, client, store)

	report, err := r.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 5, report.Scanned)
	assert.Equal(t, 1, report.Undecodable)
	assert.Equal(t, 1, report.AlreadyResolved)
	assert.Equal(t, 1, report.NotYetExpired)
	assert.Equal(t, 3, report.ExpiredPending)
	assert.Equal(t, 1, report.NoPrice)
	assert.Zero(t, report.Failed)
	require.Len(t, report.Resolved, 2)
	assert.Equal(t, uint64(1), report.Resolved[0].Index)
	assert.Equal(t, models.Correct, report.Resolved[0].Outcome)
	assert.Equal(t, models.Price(150_000_000), report.Resolved[0].Settlement)
	assert.Equal(t, uint64(2), report.Resolved[1].Index)
	assert.Equal(t, models.Incorrect, report.Resolved[1].Outcome)

	assert.Equal(t, 1, prices.calls["SOL/USDC"], "one price per asset per batch")
	assert.Equal(t, []time.Duration{500 * time.Millisecond, 500 * time.Millisecond}, *sleeps)

	profile, _, err := client.AgentProfile(context.Background(), agentKey)
	require.NoError(t, err)
	assert.Equal(t, uint32(2), profile.CorrectSignals)
	assert.Equal(t, uint32(1), profile.IncorrectSignals)
	assert.Equal(t, uint16(6666), profile.AccuracyBps)

	sig, err := client.Signal(context.Background(), signalAddr(t, 3))
	require.NoError(t, err)
	assert.False(t, sig.Resolved)

	batches, err := store.RecentResolutions(1)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, report.ID, batches[0].ID)
}

func TestRun_ExpiresUnpriceableAfterGrace(t *testing.T) {
	now := time.Now()
	l := seedLedger(t, 0,
		seed{1, "W/USDC", models.Long, 300_000, 330_000, now.Add(-100 * time.Hour), false},
		seed{2, "W/USDC", models.Long, 300_000, 330_000, now.Add(-time.Hour), false},
	)
	client := registry.NewClient(l, deriver, resolverKey)
	r, _ := newResolver(Config{ExpireAfter: 72 * time.Hour}, newPrices(nil), client, nil)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Resolved, 1)
	assert.Equal(t, models.Expired, report.Resolved[0].Outcome)
	assert.Equal(t, models.Price(300_000), report.Resolved[0].Settlement)
	assert.Equal(t, 1, report.NoPrice)

	sig, err := client.Signal(context.Background(), signalAddr(t, 1))
	require.NoError(t, err)
	assert.Equal(t, models.Expired, sig.Outcome)
	assert.Equal(t, models.Price(300_000), sig.ResolutionPrice)

	profile, _, err := client.AgentProfile(context.Background(), agentKey)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), profile.ExpiredSignals)
	assert.Equal(t, uint16(0), profile.AccuracyBps)
}

// racingRegistry lets another resolver settle each signal first.
type racingRegistry struct {
	*registry.Client
	rival *registry.Client
}

func (r racingRegistry) Resolve(ctx context.Context, addr models.Pubkey, p models.Price) (registry.ResolveResult, error) {
	if _, err := r.rival.Resolve(ctx, addr, p); err != nil {
		return registry.ResolveResult{}, err
	}
	return r.Client.Resolve(ctx, addr, p)
}

func TestRun_LostRaceIsNotAFailure(t *testing.T) {
	l := seedLedger(t, 0,
		seed{1, "SOL/USDC", models.Long, 140_000_000, 145_000_000, time.Now().Add(-time.Hour), false},
	)
	reg := racingRegistry{
		Client: registry.NewClient(l, deriver, resolverKey),
		rival:  registry.NewClient(l, deriver, models.Pubkey{0xd4}),
	}
	r, _ := newResolver(Config{}, newPrices(map[string]string{"SOL/USDC": "145"}), reg, nil)

	report, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.LostRaces)
	assert.Zero(t, report.Failed)
	assert.Empty(t, report.Resolved)

	sig, err := reg.Signal(context.Background(), signalAddr(t, 1))
	require.NoError(t, err)
	assert.Equal(t, models.Correct, sig.Outcome, "tie at target counts as correct")
}

type brokenRegistry struct {
	Registry
}

func (brokenRegistry) Signals(context.Context) (registry.SignalPage, error) {
	return registry.SignalPage{}, errors.New("rpc down")
}

func TestRun_ScanFailure(t *testing.T) {
	store, err := storage.New(5, ":memory:")
	require.NoError(t, err)
	defer store.Close()

	r, _ := newResolver(Config{}, newPrices(nil), brokenRegistry{}, store)
	_, err = r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc down")

	batches, err := store.RecentResolutions(1)
	require.NoError(t, err)
	assert.Len(t, batches, 1)
}
