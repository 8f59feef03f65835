// Package signalgen turns recent price history into ranked, calibrated trade
// signal candidates using three rule-based strategies.
package signalgen

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/solsignal/internal/history"
	"github.com/rewired-gh/solsignal/internal/models"
	"github.com/rewired-gh/solsignal/internal/registry"
)

// Strategy names the rule that produced a candidate.
type Strategy string

const (
	MomentumContinuation  Strategy = "momentum"
	MeanReversion         Strategy = "mean_reversion"
	VolatilityCompression Strategy = "vol_compression"
	LowConviction         Strategy = "default"
)

// Config holds the indicator windows and strategy thresholds.
type Config struct {
	MinPoints        int     `mapstructure:"min_points"`
	MomentumLookback int     `mapstructure:"momentum_lookback"`
	ShortLookback    int     `mapstructure:"short_lookback"`
	AverageWindow    int     `mapstructure:"average_window"`
	TrendThreshold   float64 `mapstructure:"trend_threshold"`

	MomentumThreshold      float64 `mapstructure:"momentum_threshold"`
	ShortMomentumThreshold float64 `mapstructure:"short_momentum_threshold"`
	ReversionThreshold     float64 `mapstructure:"reversion_threshold"`
	ReversionMinVolatility float64 `mapstructure:"reversion_min_volatility"`
	CompressionVolatility  float64 `mapstructure:"compression_volatility"`
	CompressionMinPoints   int     `mapstructure:"compression_min_points"`

	SparsePoints      int `mapstructure:"sparse_points"`
	SparseDiscount    int `mapstructure:"sparse_discount"`
	MaxCandidates     int `mapstructure:"max_candidates"`
	DefaultConfidence int `mapstructure:"default_confidence"`
}

func DefaultConfig() Config {
	return Config{
		MinPoints:              3,
		MomentumLookback:       12,
		ShortLookback:          3,
		AverageWindow:          24,
		TrendThreshold:         1.5,
		MomentumThreshold:      1.2,
		ShortMomentumThreshold: 0.3,
		ReversionThreshold:     2,
		ReversionMinVolatility: 0.3,
		CompressionVolatility:  0.3,
		CompressionMinPoints:   10,
		SparsePoints:           6,
		SparseDiscount:         15,
		MaxCandidates:          5,
		DefaultConfidence:      35,
	}
}

// Candidate is a proposed signal before publication.
type Candidate struct {
	Asset      string           `json:"asset"`
	Direction  models.Direction `json:"direction"`
	Confidence int              `json:"confidence"`
	Entry      float64          `json:"entry"`
	Target     float64          `json:"target"`
	Stop       float64          `json:"stop"`
	Horizon    time.Duration    `json:"horizon"`
	Reasoning  string           `json:"reasoning"`
	Score      float64          `json:"score"`
	Strategy   Strategy         `json:"strategy"`
	Features   Features         `json:"features"`
}

// Params converts c into publish input.
func (c Candidate) Params() registry.PublishParams {
	return registry.PublishParams{
		Asset:            c.Asset,
		Direction:        c.Direction.String(),
		Confidence:       c.Confidence,
		EntryPrice:       decimal.NewFromFloat(c.Entry),
		TargetPrice:      decimal.NewFromFloat(c.Target),
		StopLoss:         decimal.NewFromFloat(c.Stop),
		TimeHorizonHours: int(c.Horizon / time.Hour),
		Reasoning:        registry.TruncateReasoning(c.Reasoning),
	}
}

// Calibrator adjusts a base confidence from past results on the asset.
type Calibrator interface {
	Calibrate(base int, asset string, past []models.Signal) int
}

type Generator struct {
	cfg        Config
	calibrator Calibrator
}

// New returns a generator. A nil calibrator leaves confidences untouched.
func New(cfg Config, calibrator Calibrator) *Generator {
	return &Generator{cfg: cfg, calibrator: calibrator}
}

// Generate evaluates every quoted asset against its history (which must
// already contain the quote) and returns at most MaxCandidates calibrated
// candidates, best score first. When no rule fires a single low-conviction
// candidate is produced for the asset with the most history.
func (g *Generator) Generate(quotes map[string]float64, book *history.Book, past []models.Signal) []Candidate {
	assets := make([]string, 0, len(quotes))
	for a := range quotes {
		assets = append(assets, a)
	}
	sort.Strings(assets)

	var candidates []Candidate
	for _, asset := range assets {
		candidates = append(candidates, g.evaluate(asset, quotes[asset], book.Prices(asset))...)
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Score > candidates[j].Score
	})
	if len(candidates) > g.cfg.MaxCandidates {
		candidates = candidates[:g.cfg.MaxCandidates]
	}
	for i := range candidates {
		candidates[i].Confidence = g.calibrate(candidates[i].Confidence, candidates[i].Asset, past)
	}

	if len(candidates) == 0 && len(assets) > 0 {
		best := assets[0]
		for _, a := range assets[1:] {
			if book.Len(a) > book.Len(best) {
				best = a
			}
		}
		candidates = append(candidates, g.fallback(best, quotes[best], book.Prices(best), past))
	}
	return candidates
}

func (g *Generator) calibrate(base int, asset string, past []models.Signal) int {
	if g.calibrator == nil {
		return base
	}
	return g.calibrator.Calibrate(base, asset, past)
}

func (g *Generator) evaluate(asset string, price float64, points []float64) []Candidate {
	cfg := g.cfg
	f := cfg.Analyze(points, price)
	discount := 0
	if f.DataPoints < cfg.SparsePoints {
		discount = cfg.SparseDiscount
	}
	base := Candidate{Asset: asset, Entry: price, Features: f}

	var out []Candidate

	absMom := math.Abs(f.Momentum)
	if f.Momentum > cfg.MomentumThreshold && f.ShortMomentum > cfg.ShortMomentumThreshold && f.Trend == Bullish {
		c := base
		c.Strategy = MomentumContinuation
		c.Direction = models.Long
		c.Confidence = min(80, 55+int(math.Floor(absMom*2))) - discount
		c.Target = price * (1 + math.Min(absMom/100*0.8, 0.03))
		c.Stop = price * (1 - math.Max(f.Volatility/100*2, 0.02))
		c.Horizon = 8 * time.Hour
		c.Score = absMom*2 + 10
		c.Reasoning = fmt.Sprintf("Momentum continuation: %.1f%% upward momentum over %d periods, short-term momentum %.1f%%. Trend is %s. Volatility %.2f%%.",
			f.Momentum, min(f.DataPoints, cfg.MomentumLookback), f.ShortMomentum, f.Trend, f.Volatility)
		out = append(out, c)
	}
	if f.Momentum < -cfg.MomentumThreshold && f.ShortMomentum < -cfg.ShortMomentumThreshold && f.Trend == Bearish {
		c := base
		c.Strategy = MomentumContinuation
		c.Direction = models.Short
		c.Confidence = min(80, 55+int(math.Floor(absMom*2))) - discount
		c.Target = price * (1 - math.Min(absMom/100*0.8, 0.03))
		c.Stop = price * (1 + math.Max(f.Volatility/100*2, 0.02))
		c.Horizon = 8 * time.Hour
		c.Score = absMom*2 + 10
		c.Reasoning = fmt.Sprintf("Momentum continuation (bearish): %.1f%% downward momentum. Short-term momentum %.1f%%. Volatility %.2f%%.",
			f.Momentum, f.ShortMomentum, f.Volatility)
		out = append(out, c)
	}

	absMR := math.Abs(f.MeanReversion)
	if f.MeanReversion > cfg.ReversionThreshold && f.Volatility > cfg.ReversionMinVolatility {
		c := base
		c.Strategy = MeanReversion
		c.Direction = models.Short
		c.Confidence = min(70, 45+int(math.Floor(absMR))) - discount
		c.Target = f.Average
		if c.Target == 0 {
			c.Target = price * 0.97
		}
		c.Stop = price * (1 + math.Max(f.Volatility/100*2.5, 0.03))
		c.Horizon = 8 * time.Hour
		c.Score = absMR * 1.5
		c.Reasoning = fmt.Sprintf("Mean reversion: Price %.1f%% above rolling avg ($%.4f). Expecting pullback. Volatility %.2f%%.",
			f.MeanReversion, f.Average, f.Volatility)
		out = append(out, c)
	}
	if f.MeanReversion < -cfg.ReversionThreshold && f.Volatility > cfg.ReversionMinVolatility {
		c := base
		c.Strategy = MeanReversion
		c.Direction = models.Long
		c.Confidence = min(70, 45+int(math.Floor(absMR))) - discount
		c.Target = f.Average
		if c.Target == 0 {
			c.Target = price * 1.03
		}
		c.Stop = price * (1 - math.Max(f.Volatility/100*2.5, 0.03))
		c.Horizon = 8 * time.Hour
		c.Score = absMR * 1.5
		c.Reasoning = fmt.Sprintf("Mean reversion: Price %.1f%% below rolling avg ($%.4f). Expecting bounce. Volatility %.2f%%.",
			absMR, f.Average, f.Volatility)
		out = append(out, c)
	}

	if f.Volatility < cfg.CompressionVolatility && f.DataPoints > cfg.CompressionMinPoints {
		c := base
		c.Strategy = VolatilityCompression
		c.Direction = models.Short
		c.Target, c.Stop = price*0.96, price*1.03
		if f.Momentum > 0 {
			c.Direction = models.Long
			c.Target, c.Stop = price*1.04, price*0.97
		}
		c.Confidence = 40 - discount
		c.Horizon = 24 * time.Hour
		c.Score = 5
		c.Reasoning = fmt.Sprintf("Volatility compression: %.3f%% vol with %d periods of data. Expecting breakout %s. Momentum bias: %.1f%%.",
			f.Volatility, f.DataPoints, c.Direction, f.Momentum)
		out = append(out, c)
	}
	return out
}

func (g *Generator) fallback(asset string, price float64, points []float64, past []models.Signal) Candidate {
	f := g.cfg.Analyze(points, price)
	c := Candidate{
		Asset:      asset,
		Direction:  models.Short,
		Confidence: g.calibrate(g.cfg.DefaultConfidence, asset, past),
		Entry:      price,
		Target:     price * 0.98,
		Stop:       price * 1.02,
		Horizon:    6 * time.Hour,
		Strategy:   LowConviction,
		Features:   f,
	}
	if f.Momentum >= 0 {
		c.Direction = models.Long
		c.Target, c.Stop = price*1.02, price*0.98
	}
	c.Reasoning = fmt.Sprintf("Low-conviction default signal. Momentum %.1f%%, direction %s. Minimal edge, keeping tight stops.",
		f.Momentum, c.Direction)
	return c
}
