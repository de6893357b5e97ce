// Package fixmath provides overflow-checked integer arithmetic for fee and
// payout computation. Every operation that could wrap returns
// domain.ErrOverflow instead; silent wraparound in fund math is treated as a
// defect, never a recoverable condition.
package fixmath

import (
	"fmt"
	"math"
	"math/bits"

	"github.com/alanyoungcy/parimutuel/internal/domain"
)

// Add returns a+b or domain.ErrOverflow.
func Add(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, fmt.Errorf("fixmath: add %d + %d: %w", a, b, domain.ErrOverflow)
	}
	return sum, nil
}

// Sub returns a-b or domain.ErrOverflow when b > a.
func Sub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, fmt.Errorf("fixmath: sub %d - %d: %w", a, b, domain.ErrOverflow)
	}
	return diff, nil
}

// MulDiv computes floor(a * b / den) using 128-bit intermediate precision.
// It returns domain.ErrOverflow when den is zero or the quotient does not
// fit in 64 bits. Multiply-then-divide keeps rounding dust symmetric; never
// divide first.
func MulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, fmt.Errorf("fixmath: muldiv by zero: %w", domain.ErrOverflow)
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, fmt.Errorf("fixmath: muldiv %d * %d / %d: %w", a, b, den, domain.ErrOverflow)
	}
	quo, _ := bits.Div64(hi, lo, den)
	return quo, nil
}

// BpsShare computes floor(amount * bps / 10000).
func BpsShare(amount uint64, bps uint16) (uint64, error) {
	return MulDiv(amount, uint64(bps), domain.BpsDenominator)
}

// Sum returns the checked sum of vals.
func Sum(vals ...uint64) (uint64, error) {
	var total uint64
	for _, v := range vals {
		var err error
		total, err = Add(total, v)
		if err != nil {
			return 0, err
		}
	}
	return total, nil
}

// NormalizePrice converts a (mantissa, exponent) reading into the engine's
// fixed-point scale of domain.PriceScale units per whole unit. Negative
// prices are rejected; precision below the target scale truncates.
func NormalizePrice(price int64, expo int32) (uint64, error) {
	if price < 0 {
		return 0, fmt.Errorf("fixmath: negative price %d: %w", price, domain.ErrInvalidPriceFeed)
	}
	p := uint64(price)

	// Target scale is 1e6, i.e. exponent -6. Shift the mantissa by the
	// difference between the reading's exponent and -6.
	shift := int(expo) + 6
	switch {
	case shift == 0:
		return p, nil
	case shift > 0:
		for i := 0; i < shift; i++ {
			var err error
			p, err = MulDiv(p, 10, 1)
			if err != nil {
				return 0, fmt.Errorf("fixmath: normalize price %d e%d: %w", price, expo, domain.ErrOverflow)
			}
		}
		return p, nil
	default:
		div := uint64(1)
		for i := 0; i < -shift; i++ {
			if div > math.MaxUint64/10 {
				return 0, nil // reading precision far below target scale
			}
			div *= 10
		}
		return p / div, nil
	}
}
