package signalgen

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rewired-gh/solsignal/internal/calibration"
	"github.com/rewired-gh/solsignal/internal/history"
	"github.com/rewired-gh/solsignal/internal/models"
)

func bookWith(series map[string][]float64) *history.Book {
	book := history.NewBook(history.DefaultCapacity)
	at := time.Unix(1_700_000_000, 0)
	for asset, prices := range series {
		for i, p := range prices {
			book.Append(asset, p, at.Add(time.Duration(i)*30*time.Minute))
		}
	}
	return book
}

func flat(price float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = price
	}
	return out
}

func TestAnalyzeSparseHistory(t *testing.T) {
	f := DefaultConfig().Analyze([]float64{100, 105}, 105)
	assert.Equal(t, Features{DataPoints: 2}, f)
	assert.Equal(t, "neutral", f.Trend.String())
}

func TestAnalyzeIndicators(t *testing.T) {
	points := []float64{100, 101, 102, 103}
	f := DefaultConfig().Analyze(points, 103)

	assert.InDelta(t, 3.0, f.Momentum, 1e-9)
	assert.InDelta(t, (103.0-101.0)/101.0*100, f.ShortMomentum, 1e-9)
	assert.InDelta(t, 101.5, f.Average, 1e-9)
	assert.InDelta(t, (103-101.5)/101.5*100, f.MeanReversion, 1e-9)
	assert.Equal(t, Bullish, f.Trend)
	assert.Equal(t, 4, f.DataPoints)

	// Population standard deviation of the three returns.
	r := []float64{1.0 / 100, 1.0 / 101, 1.0 / 102}
	mean := (r[0] + r[1] + r[2]) / 3
	var ss float64
	for _, x := range r {
		ss += (x - mean) * (x - mean)
	}
	assert.InDelta(t, 100*math.Sqrt(ss/3), f.Volatility, 1e-9)
}

func TestAnalyzeBearishTrend(t *testing.T) {
	f := DefaultConfig().Analyze([]float64{100, 99, 98}, 98)
	assert.Equal(t, Bearish, f.Trend)
	assert.InDelta(t, -2.0, f.Momentum, 1e-9)
}

func TestGenerateMomentumLongWithSparseDiscount(t *testing.T) {
	points := []float64{100, 101, 102, 103}
	g := New(DefaultConfig(), nil)
	got := g.Generate(map[string]float64{"SOL/USDC": 103}, bookWith(map[string][]float64{"SOL/USDC": points}), nil)

	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, MomentumContinuation, c.Strategy)
	assert.Equal(t, models.Long, c.Direction)
	assert.Equal(t, 61-15, c.Confidence)
	assert.InDelta(t, 103*1.024, c.Target, 1e-9)
	assert.InDelta(t, 103*0.98, c.Stop, 1e-9)
	assert.Equal(t, 8*time.Hour, c.Horizon)
	assert.InDelta(t, 16, c.Score, 1e-9)
	assert.Contains(t, c.Reasoning, "Momentum continuation: 3.0% upward momentum over 4 periods")
}

func TestGenerateMomentumShort(t *testing.T) {
	points := []float64{100, 100, 100, 100, 100, 100, 99, 97}
	g := New(DefaultConfig(), nil)
	got := g.Generate(map[string]float64{"ETH/USDC": 97}, bookWith(map[string][]float64{"ETH/USDC": points}), nil)

	require.NotEmpty(t, got)
	c := got[0]
	assert.Equal(t, MomentumContinuation, c.Strategy)
	assert.Equal(t, models.Short, c.Direction)
	assert.Equal(t, 61, c.Confidence)
	assert.InDelta(t, 97*(1-0.024), c.Target, 1e-9)
	assert.Greater(t, c.Stop, 97.0)
}

func TestGenerateRanksAndMeanReversion(t *testing.T) {
	points := append(flat(100, 7), 110)
	g := New(DefaultConfig(), nil)
	got := g.Generate(map[string]float64{"JUP/USDC": 110}, bookWith(map[string][]float64{"JUP/USDC": points}), nil)

	require.Len(t, got, 2)
	assert.Equal(t, MomentumContinuation, got[0].Strategy)
	assert.Equal(t, 75, got[0].Confidence)
	assert.InDelta(t, 30, got[0].Score, 1e-9)

	mr := got[1]
	assert.Equal(t, MeanReversion, mr.Strategy)
	assert.Equal(t, models.Short, mr.Direction)
	assert.Equal(t, 53, mr.Confidence)
	assert.InDelta(t, 101.25, mr.Target, 1e-9)
	assert.InDelta(t, 110*(1+mr.Features.Volatility/100*2.5), mr.Stop, 1e-9)
	assert.Greater(t, got[0].Score, mr.Score)
	assert.Contains(t, mr.Reasoning, "above rolling avg ($101.2500)")
}

func TestGenerateMeanReversionLong(t *testing.T) {
	points := append(flat(100, 23), 90)
	g := New(DefaultConfig(), nil)
	got := g.Generate(map[string]float64{"W/USDC": 90}, bookWith(map[string][]float64{"W/USDC": points}), nil)

	var mr *Candidate
	for i := range got {
		if got[i].Strategy == MeanReversion {
			mr = &got[i]
		}
	}
	require.NotNil(t, mr)
	assert.Equal(t, models.Long, mr.Direction)
	assert.InDelta(t, (23*100.0+90)/24, mr.Target, 1e-9)
	assert.Less(t, mr.Stop, 90.0)
	assert.Contains(t, mr.Reasoning, "below rolling avg")
}

func TestGenerateVolatilityCompression(t *testing.T) {
	g := New(DefaultConfig(), nil)
	got := g.Generate(map[string]float64{"BTC/USDC": 100}, bookWith(map[string][]float64{"BTC/USDC": flat(100, 12)}), nil)

	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, VolatilityCompression, c.Strategy)
	assert.Equal(t, models.Short, c.Direction)
	assert.Equal(t, 40, c.Confidence)
	assert.InDelta(t, 96, c.Target, 1e-9)
	assert.InDelta(t, 103, c.Stop, 1e-9)
	assert.Equal(t, 24*time.Hour, c.Horizon)
	assert.Equal(t, "Volatility compression: 0.000% vol with 12 periods of data. Expecting breakout short. Momentum bias: 0.0%.", c.Reasoning)
}

func TestGenerateCapsCandidates(t *testing.T) {
	quotes := map[string]float64{}
	series := map[string][]float64{}
	for i := 0; i < 7; i++ {
		asset := fmt.Sprintf("A%d/USDC", i)
		quotes[asset] = 100
		series[asset] = flat(100, 12)
	}
	got := New(DefaultConfig(), nil).Generate(quotes, bookWith(series), nil)
	assert.Len(t, got, 5)
}

func TestGenerateFallbackPicksDeepestHistory(t *testing.T) {
	quotes := map[string]float64{"SOL/USDC": 140, "PYTH/USDC": 0.4}
	book := bookWith(map[string][]float64{
		"SOL/USDC":  flat(140, 4),
		"PYTH/USDC": flat(0.4, 5),
	})
	got := New(DefaultConfig(), nil).Generate(quotes, book, nil)

	require.Len(t, got, 1)
	c := got[0]
	assert.Equal(t, LowConviction, c.Strategy)
	assert.Equal(t, "PYTH/USDC", c.Asset)
	assert.Equal(t, models.Long, c.Direction)
	assert.Equal(t, 35, c.Confidence)
	assert.InDelta(t, 0.408, c.Target, 1e-9)
	assert.InDelta(t, 0.392, c.Stop, 1e-9)
	assert.Equal(t, 6*time.Hour, c.Horizon)
	assert.Zero(t, c.Score)
}

func TestGenerateNoQuotes(t *testing.T) {
	assert.Empty(t, New(DefaultConfig(), nil).Generate(nil, history.NewBook(10), nil))
}

func TestGenerateAppliesCalibration(t *testing.T) {
	past := []models.Signal{
		{Asset: "SOL/USDC", Resolved: true, Outcome: models.Correct},
		{Asset: "SOL/USDC", Resolved: true, Outcome: models.Incorrect},
		{Asset: "SOL/USDC", Resolved: true, Outcome: models.Incorrect},
		{Asset: "SOL/USDC", Resolved: true, Outcome: models.Incorrect},
		{Asset: "SOL/USDC", Resolved: true, Outcome: models.Incorrect},
	}
	g := New(DefaultConfig(), calibration.New(calibration.DefaultConfig()))

	got := g.Generate(map[string]float64{"SOL/USDC": 100}, bookWith(map[string][]float64{"SOL/USDC": flat(100, 12)}), past)
	require.Len(t, got, 1)
	assert.Equal(t, 20, got[0].Confidence, "40 - 25 clamps at the floor")

	got = g.Generate(map[string]float64{"SOL/USDC": 100}, bookWith(map[string][]float64{"SOL/USDC": flat(100, 4)}), past)
	require.Len(t, got, 1)
	assert.Equal(t, LowConviction, got[0].Strategy)
	assert.Equal(t, 20, got[0].Confidence)
}

func TestCandidateParams(t *testing.T) {
	c := Candidate{
		Asset:      "BONK/USDC",
		Direction:  models.Short,
		Confidence: 44,
		Entry:      0.00002314,
		Target:     0.0000222,
		Stop:       0.0000240,
		Horizon:    8 * time.Hour,
		Reasoning:  "Mean reversion",
	}
	p := c.Params()
	assert.Equal(t, "short", p.Direction)
	assert.Equal(t, 8, p.TimeHorizonHours)
	assert.Equal(t, "0.00002314", p.EntryPrice.String())

	d, err := p.Draft(time.Unix(1_700_000_000, 0))
	require.NoError(t, err)
	assert.Equal(t, models.Price(23), d.EntryPrice)
}
