package signalgen

import "math"

// Trend classifies momentum.
type Trend int

const (
	Neutral Trend = iota
	Bullish
	Bearish
)

func (t Trend) String() string {
	switch t {
	case Bullish:
		return "bullish"
	case Bearish:
		return "bearish"
	default:
		return "neutral"
	}
}

func (t Trend) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Features are the technical indicators computed for one asset. Percentages
// are expressed in percent (1.5 means 1.5%).
type Features struct {
	Momentum      float64 `json:"momentum"`
	ShortMomentum float64 `json:"shortMomentum"`
	MeanReversion float64 `json:"meanReversion"`
	Volatility    float64 `json:"volatility"`
	Average       float64 `json:"average"`
	Trend         Trend   `json:"trend"`
	DataPoints    int     `json:"dataPoints"`
}

// welford accumulates a running mean and sum of squared deviations.
type welford struct {
	count int
	mean  float64
	m2    float64
}

func (w *welford) add(x float64) {
	w.count++
	delta := x - w.mean
	w.mean += delta / float64(w.count)
	w.m2 += delta * (x - w.mean)
}

// stddev is the population standard deviation.
func (w *welford) stddev() float64 {
	if w.count == 0 {
		return 0
	}
	return math.Sqrt(w.m2 / float64(w.count))
}

// Analyze computes features from points (oldest first, already including the
// current observation) and current. Fewer than MinPoints samples yield zero
// features with a neutral trend.
func (c Config) Analyze(points []float64, current float64) Features {
	n := len(points)
	f := Features{DataPoints: n}
	if n < c.MinPoints {
		return f
	}

	f.Momentum = pctChange(points[n-min(n, c.MomentumLookback)], current)
	f.ShortMomentum = pctChange(points[n-min(n, c.ShortLookback)], current)

	window := points[n-min(n, c.AverageWindow):]
	var sum float64
	for _, p := range window {
		sum += p
	}
	f.Average = sum / float64(len(window))
	f.MeanReversion = pctChange(f.Average, current)

	var w welford
	for i := 1; i < n; i++ {
		if points[i-1] <= 0 {
			continue
		}
		w.add((points[i] - points[i-1]) / points[i-1])
	}
	f.Volatility = w.stddev() * 100

	switch {
	case f.Momentum > c.TrendThreshold:
		f.Trend = Bullish
	case f.Momentum < -c.TrendThreshold:
		f.Trend = Bearish
	}
	return f
}

func pctChange(from, to float64) float64 {
	if from == 0 {
		return 0
	}
	return (to - from) / from * 100
}
