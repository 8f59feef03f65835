package models

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// PriceDecimals is the number of fractional digits carried by a Price.
const PriceDecimals = 6

// PriceScale is 10^PriceDecimals.
const PriceScale = 1_000_000

var (
	ErrNonPositivePrice = errors.New("price must be positive")
	ErrPriceOverflow    = errors.New("price exceeds fixed-point range")
)

var maxPrice = decimal.NewFromBigInt(new(big.Int).SetUint64(math.MaxUint64), 0)

// Price is a fixed-point quote with six implied decimals (1.5 == 1_500_000).
type Price uint64

// PriceFromDecimal converts d to fixed point, rounding half away from zero.
// Values that round to zero are rejected.
func PriceFromDecimal(d decimal.Decimal) (Price, error) {
	if !d.IsPositive() {
		return 0, ErrNonPositivePrice
	}
	scaled := d.Shift(PriceDecimals).Round(0)
	if scaled.IsZero() {
		return 0, fmt.Errorf("%w: %s rounds to zero at %d decimals", ErrNonPositivePrice, d, PriceDecimals)
	}
	if scaled.GreaterThan(maxPrice) {
		return 0, fmt.Errorf("%w: %s", ErrPriceOverflow, d)
	}
	return Price(scaled.BigInt().Uint64()), nil
}

// PriceFromFloat converts a floating point quote, see PriceFromDecimal.
func PriceFromFloat(f float64) (Price, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%w: %v", ErrNonPositivePrice, f)
	}
	return PriceFromDecimal(decimal.NewFromFloat(f))
}

func (p Price) Decimal() decimal.Decimal {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(uint64(p)), -PriceDecimals)
}

func (p Price) Float64() float64 {
	f, _ := p.Decimal().Float64()
	return f
}

func (p Price) String() string {
	return p.Decimal().String()
}
