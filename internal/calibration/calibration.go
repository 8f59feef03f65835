// Package calibration adjusts signal confidence from an agent's track record
// on the same asset.
package calibration

import (
	"github.com/rewired-gh/solsignal/internal/logger"
	"github.com/rewired-gh/solsignal/internal/models"
)

// Config holds the accuracy bands and the confidence clamp. Bands are checked
// from the worst accuracy upwards, then from the best downwards.
type Config struct {
	Floor   int `mapstructure:"floor"`
	Ceiling int `mapstructure:"ceiling"`

	SevereBelow    float64 `mapstructure:"severe_below"`
	SeverePenalty  int     `mapstructure:"severe_penalty"`
	PoorBelow      float64 `mapstructure:"poor_below"`
	PoorPenalty    int     `mapstructure:"poor_penalty"`
	WeakBelow      float64 `mapstructure:"weak_below"`
	WeakPenalty    int     `mapstructure:"weak_penalty"`
	ExcellentAbove float64 `mapstructure:"excellent_above"`
	ExcellentBonus int     `mapstructure:"excellent_bonus"`
	StrongAbove    float64 `mapstructure:"strong_above"`
	StrongBonus    int     `mapstructure:"strong_bonus"`
}

func DefaultConfig() Config {
	return Config{
		Floor:          20,
		Ceiling:        95,
		SevereBelow:    0.3,
		SeverePenalty:  25,
		PoorBelow:      0.5,
		PoorPenalty:    15,
		WeakBelow:      0.6,
		WeakPenalty:    5,
		ExcellentAbove: 0.85,
		ExcellentBonus: 10,
		StrongAbove:    0.75,
		StrongBonus:    5,
	}
}

// Accuracy is the scored record for one asset. Expired signals are excluded.
type Accuracy struct {
	Correct   int `json:"correct"`
	Incorrect int `json:"incorrect"`
}

func (a Accuracy) Scored() int {
	return a.Correct + a.Incorrect
}

// Rate returns correct/scored, or 0 with nothing scored.
func (a Accuracy) Rate() float64 {
	if a.Scored() == 0 {
		return 0
	}
	return float64(a.Correct) / float64(a.Scored())
}

// AssetAccuracy tallies the resolved signals in past that target asset.
func AssetAccuracy(asset string, past []models.Signal) Accuracy {
	var a Accuracy
	for _, s := range past {
		if s.Asset != asset || !s.Resolved {
			continue
		}
		switch s.Outcome {
		case models.Correct:
			a.Correct++
		case models.Incorrect:
			a.Incorrect++
		}
	}
	return a
}

type Calibrator struct {
	cfg Config
}

func New(cfg Config) *Calibrator {
	return &Calibrator{cfg: cfg}
}

// Adjustment maps an accuracy rate to a confidence delta.
func (c *Calibrator) Adjustment(rate float64) int {
	switch {
	case rate < c.cfg.SevereBelow:
		return -c.cfg.SeverePenalty
	case rate < c.cfg.PoorBelow:
		return -c.cfg.PoorPenalty
	case rate < c.cfg.WeakBelow:
		return -c.cfg.WeakPenalty
	case rate > c.cfg.ExcellentAbove:
		return c.cfg.ExcellentBonus
	case rate > c.cfg.StrongAbove:
		return c.cfg.StrongBonus
	}
	return 0
}

// Calibrate returns base adjusted by the agent's accuracy on asset and
// clamped to [Floor, Ceiling]. Without any scored history base is returned
// unchanged.
func (c *Calibrator) Calibrate(base int, asset string, past []models.Signal) int {
	acc := AssetAccuracy(asset, past)
	if acc.Scored() == 0 {
		return base
	}
	adj := c.Adjustment(acc.Rate())
	calibrated := c.clamp(base + adj)
	if adj != 0 {
		logger.Debug("calibration for %s: %d scored signals, %.0f%% accuracy, confidence %d -> %d (adj %+d)",
			asset, acc.Scored(), acc.Rate()*100, base, calibrated, adj)
	}
	return calibrated
}

func (c *Calibrator) clamp(v int) int {
	if v < c.cfg.Floor {
		return c.cfg.Floor
	}
	if v > c.cfg.Ceiling {
		return c.cfg.Ceiling
	}
	return v
}
