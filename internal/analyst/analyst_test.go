package analyst

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/solsignal/internal/calibration"
	"github.com/rewired-gh/solsignal/internal/history"
	"github.com/rewired-gh/solsignal/internal/ledger"
	"github.com/rewired-gh/solsignal/internal/models"
	"github.com/rewired-gh/solsignal/internal/pda"
	"github.com/rewired-gh/solsignal/internal/pyth"
	"github.com/rewired-gh/solsignal/internal/registry"
	"github.com/rewired-gh/solsignal/internal/signalgen"
	"github.com/rewired-gh/solsignal/internal/storage"
)

var agentKey = models.Pubkey{0xa1, 0x01}

type fakePrices map[string]string

func (f fakePrices) Price(_ context.Context, asset string) (decimal.Decimal, error) {
	p, ok := f[asset]
	if !ok {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", pyth.ErrUpstreamPriceUnavailable, asset)
	}
	return decimal.RequireFromString(p), nil
}

type recordingNotifier struct {
	reports []models.RunReport
}

func (n *recordingNotifier) SendRunReport(r models.RunReport) error {
	n.reports = append(n.reports, r)
	return nil
}

// failingPublisher rejects every publish with the given failure class.
type failingPublisher struct {
	*registry.Client
	class registry.FailureClass
	calls int
}

func (f *failingPublisher) Publish(context.Context, registry.PublishParams) (registry.PublishResult, error) {
	f.calls++
	return registry.PublishResult{}, &registry.PublishError{Class: f.class, Err: errors.New("rejected")}
}

type fixture struct {
	client   *registry.Client
	store    *storage.Storage
	notifier *recordingNotifier
	sleeps   []time.Duration
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	l, err := ledger.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	client := registry.NewClient(l, pda.New(pda.DefaultProgramID), agentKey)
	_, err = client.Initialize(context.Background())
	require.NoError(t, err)

	store, err := storage.New(5, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	return &fixture{client: client, store: store, notifier: &recordingNotifier{}}
}

func (f *fixture) analyst(cfg Config, prices PriceSource, reg Registry) *Analyst {
	gen := signalgen.New(signalgen.DefaultConfig(), calibration.New(calibration.DefaultConfig()))
	a := New(cfg, prices, reg, f.store, gen, f.notifier)
	a.sleep = func(_ context.Context, d time.Duration) error {
		f.sleeps = append(f.sleeps, d)
		return nil
	}
	return a
}

// seedFlat stores n identical samples per asset so that every asset fires
// exactly one volatility-compression candidate.
func (f *fixture) seedFlat(t *testing.T, n int, prices map[string]float64) {
	t.Helper()
	book := history.NewBook(history.DefaultCapacity)
	at := time.Now().Add(-time.Duration(n) * time.Hour)
	for asset, p := range prices {
		for i := 0; i < n; i++ {
			book.Append(asset, p, at.Add(time.Duration(i)*time.Hour))
		}
	}
	require.NoError(t, f.store.SaveHistory(book))
}

func defaultConfig() Config {
	return Config{
		Assets:       []string{"SOL/USDC", "BTC/USDC"},
		AgentName:    "solsignal-analyst",
		AutoRegister: true,
		PublishDelay: 2 * time.Second,
		FetchDelay:   200 * time.Millisecond,
	}
}

func TestRun_PublishesFallbackOnFreshHistory(t *testing.T) {
	f := newFixture(t)
	a := f.analyst(defaultConfig(), fakePrices{"SOL/USDC": "150"}, f.client)

	report, err := a.Run(context.Background())
	require.NoError(t, err)

	assert.NotEmpty(t, report.ID)
	assert.Equal(t, 1, report.PricesFetched)
	assert.Equal(t, 1, report.AssetsSkipped)
	assert.Equal(t, 1, report.Candidates)
	require.Len(t, report.Published, 1)
	assert.False(t, report.Aborted)

	pub := report.Published[0]
	assert.Equal(t, "SOL/USDC", pub.Asset)
	assert.Equal(t, models.Long, pub.Direction)
	assert.Equal(t, 35, pub.Confidence)
	assert.Equal(t, models.Price(150_000_000), pub.Entry)
	assert.Equal(t, uint64(1), pub.Index)

	// Agent was auto-registered and the signal is on the ledger.
	profile, _, err := f.client.AgentProfile(context.Background(), agentKey)
	require.NoError(t, err)
	assert.Equal(t, "solsignal-analyst", profile.Name)
	assert.Equal(t, uint32(1), profile.TotalSignals)
	sig, err := f.client.Signal(context.Background(), pub.Address)
	require.NoError(t, err)
	assert.Equal(t, "SOL/USDC", sig.Asset)

	// History and journal were persisted.
	book, err := f.store.LoadHistory(history.DefaultCapacity)
	require.NoError(t, err)
	assert.Equal(t, 1, book.Len("SOL/USDC"))
	assert.Equal(t, 0, book.Len("BTC/USDC"))
	runs, err := f.store.RecentRuns(1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, report.ID, runs[0].ID)

	require.Len(t, f.notifier.reports, 1)
	assert.Equal(t, []time.Duration{200 * time.Millisecond}, f.sleeps)
}

func TestRun_PublishesSequentiallyWithDelay(t *testing.T) {
	f := newFixture(t)
	f.seedFlat(t, 15, map[string]float64{"SOL/USDC": 100, "BTC/USDC": 60000})
	a := f.analyst(defaultConfig(), fakePrices{"SOL/USDC": "100", "BTC/USDC": "60000"}, f.client)

	report, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Candidates)
	require.Len(t, report.Published, 2)
	assert.Equal(t, uint64(1), report.Published[0].Index)
	assert.Equal(t, uint64(2), report.Published[1].Index)
	assert.Equal(t, []time.Duration{200 * time.Millisecond, 2 * time.Second}, f.sleeps)

	reg, err := f.client.Registry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(2), reg.TotalSignals)
}

func TestRun_DryRunPublishesNothing(t *testing.T) {
	f := newFixture(t)
	cfg := defaultConfig()
	cfg.DryRun = true
	a := f.analyst(cfg, fakePrices{"SOL/USDC": "150", "BTC/USDC": "60000"}, f.client)

	report, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.DryRun)
	assert.Equal(t, 1, report.Candidates)
	assert.Empty(t, report.Published)

	_, _, err = f.client.AgentProfile(context.Background(), agentKey)
	assert.ErrorIs(t, err, registry.ErrAgentNotRegistered)

	book, err := f.store.LoadHistory(history.DefaultCapacity)
	require.NoError(t, err)
	assert.Equal(t, 1, book.Len("BTC/USDC"), "history is still extended on dry runs")
}

func TestRun_NoPricesAborts(t *testing.T) {
	f := newFixture(t)
	a := f.analyst(defaultConfig(), fakePrices{}, f.client)

	report, err := a.Run(context.Background())
	require.ErrorIs(t, err, ErrNoPrices)
	assert.True(t, report.Aborted)
	assert.Equal(t, 2, report.AssetsSkipped)

	runs, err := f.store.RecentRuns(5)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.True(t, runs[0].Aborted)
}

func TestRun_UnregisteredWithoutAutoRegister(t *testing.T) {
	f := newFixture(t)
	cfg := defaultConfig()
	cfg.AutoRegister = false
	a := f.analyst(cfg, fakePrices{"SOL/USDC": "150"}, f.client)

	report, err := a.Run(context.Background())
	require.ErrorIs(t, err, registry.ErrAgentNotRegistered)
	assert.True(t, report.Aborted)
	assert.Empty(t, report.Published)
}

func TestRun_PublishFailures(t *testing.T) {
	tests := []struct {
		name        string
		class       registry.FailureClass
		wantCalls   int
		wantAborted bool
	}{
		{"stale halts", registry.FailureStale, 1, true},
		{"balance halts", registry.FailureBalance, 1, true},
		{"other continues", registry.FailureOther, 2, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			_, _, err := f.client.RegisterAgent(context.Background(), "batman")
			require.NoError(t, err)
			f.seedFlat(t, 15, map[string]float64{"SOL/USDC": 100, "BTC/USDC": 60000})

			pub := &failingPublisher{Client: f.client, class: tt.class}
			a := f.analyst(defaultConfig(), fakePrices{"SOL/USDC": "100", "BTC/USDC": "60000"}, pub)

			report, err := a.Run(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.wantCalls, pub.calls)
			assert.Equal(t, tt.wantCalls, report.Failed)
			assert.Equal(t, tt.wantAborted, report.Aborted)
			assert.Empty(t, report.Published)
		})
	}
}

func TestRun_CanceledDuringFetch(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	a := f.analyst(defaultConfig(), fakePrices{"SOL/USDC": "150", "BTC/USDC": "60000"}, f.client)
	a.sleep = func(ctx context.Context, _ time.Duration) error {
		cancel()
		return ctx.Err()
	}

	report, err := a.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.True(t, report.Aborted)
}
