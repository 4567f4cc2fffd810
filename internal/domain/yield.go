package domain

import "github.com/shopspring/decimal"

// DaysPerYear is the day-count basis used to pro-rate an annual rate.
const DaysPerYear = 365

// Rounding applied to the yield pipeline, in decimal places.
const (
	AveragePrecision  int32 = 2
	AdjustedPrecision int32 = 4
	YieldPrecision    int32 = 6
)

var hundred = decimal.NewFromInt(100)

// AverageAPR returns the arithmetic mean of the given APRs. An empty slice
// yields zero.
func AverageAPR(aprs []decimal.Decimal) decimal.Decimal {
	if len(aprs) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(decimal.Zero, aprs...).
		Div(decimal.NewFromInt(int64(len(aprs)))).
		Round(AveragePrecision)
}

// AdjustedAPR applies a signed duration adjustment to the pool average.
func AdjustedAPR(average, adjustment decimal.Decimal) decimal.Decimal {
	return average.Add(adjustment).Round(AdjustedPrecision)
}

// DailyYield is one day's share of capital at the given annual percentage.
// It is negative when the adjusted APR is negative.
func DailyYield(capital, adjustedAPR decimal.Decimal) decimal.Decimal {
	return capital.Mul(adjustedAPR).
		Div(hundred).
		Div(decimal.NewFromInt(DaysPerYear)).
		Round(YieldPrecision)
}

// ApplyDailyYield adds a day's yield to a fee balance. The result is floored
// at zero: a negative day can drain the balance but never push it below it.
func ApplyDailyYield(balance, dailyYield decimal.Decimal) decimal.Decimal {
	next := balance.Add(dailyYield)
	if next.IsNegative() {
		return decimal.Zero
	}
	return next
}
