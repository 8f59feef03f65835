package registry

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/shopspring/decimal"

	"github.com/rewired-gh/solsignal/internal/lifecycle"
	"github.com/rewired-gh/solsignal/internal/models"
)

// MaxHorizonHours bounds how far ahead a signal may settle.
const MaxHorizonHours = 24 * 365

// PublishParams is the caller-facing publish input.
type PublishParams struct {
	Asset            string
	Direction        string
	Confidence       int
	EntryPrice       decimal.Decimal
	TargetPrice      decimal.Decimal
	StopLoss         decimal.Decimal
	TimeHorizonHours int
	Reasoning        string
}

// Draft validates p and converts it into ledger units relative to now.
func (p PublishParams) Draft(now time.Time) (lifecycle.Draft, error) {
	var d lifecycle.Draft

	asset := strings.TrimSpace(p.Asset)
	switch {
	case asset == "":
		return d, &ValidationError{Field: "asset", Reason: "must not be empty"}
	case len(asset) > models.MaxAssetLen:
		return d, &ValidationError{Field: "asset", Reason: fmt.Sprintf("must be at most %d bytes", models.MaxAssetLen)}
	case !utf8.ValidString(asset):
		return d, &ValidationError{Field: "asset", Reason: "must be valid UTF-8"}
	}

	direction, err := models.ParseDirection(p.Direction)
	if err != nil {
		return d, &ValidationError{Field: "direction", Reason: `must be "long" or "short"`}
	}
	if p.Confidence < 0 || p.Confidence > models.MaxConfidence {
		return d, &ValidationError{Field: "confidence", Reason: fmt.Sprintf("must be between 0 and %d", models.MaxConfidence)}
	}

	prices := []struct {
		field string
		value decimal.Decimal
		dst   *models.Price
	}{
		{"entryPrice", p.EntryPrice, &d.EntryPrice},
		{"targetPrice", p.TargetPrice, &d.TargetPrice},
		{"stopLoss", p.StopLoss, &d.StopLoss},
	}
	for _, pr := range prices {
		v, err := models.PriceFromDecimal(pr.value)
		if err != nil {
			return d, &ValidationError{Field: pr.field, Reason: err.Error()}
		}
		*pr.dst = v
	}

	if p.TimeHorizonHours <= 0 {
		return d, &ValidationError{Field: "timeHorizonHours", Reason: "must be a positive number of hours"}
	}
	if p.TimeHorizonHours > MaxHorizonHours {
		return d, &ValidationError{Field: "timeHorizonHours", Reason: fmt.Sprintf("must be at most %d", MaxHorizonHours)}
	}
	if len(p.Reasoning) > models.MaxReasoningLen {
		return d, &ValidationError{Field: "reasoning", Reason: fmt.Sprintf("must be at most %d bytes", models.MaxReasoningLen)}
	}

	d.Asset = asset
	d.Direction = direction
	d.Confidence = uint8(p.Confidence)
	d.TimeHorizon = now.Add(time.Duration(p.TimeHorizonHours) * time.Hour).Unix()
	d.ReasoningHash = models.ReasoningHash(p.Reasoning)
	return d, nil
}

// TruncateReasoning cuts s to the stored maximum without splitting a rune.
func TruncateReasoning(s string) string {
	if len(s) <= models.MaxReasoningLen {
		return s
	}
	cut := models.MaxReasoningLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
