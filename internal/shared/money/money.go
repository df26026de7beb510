package money

import "strings"

// Amounts are int64 in the currency's minor unit (cents for MXN/USD).

// FeePlan is a platform commission: basis points of the total plus a fixed amount.
type FeePlan struct {
	PercentBps int64 `json:"percent_bps"`
	FixedMinor int64 `json:"fixed_minor"`
}

var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"CLP": true,
	"PYG": true,
	"VND": true,
}

// Exponent returns the number of minor-unit digits for a currency.
func Exponent(currency string) int {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return 0
	}
	return 2
}

// NormalizeCurrency upper-cases an ISO 4217 code.
func NormalizeCurrency(currency string) string {
	return strings.ToUpper(strings.TrimSpace(currency))
}

// ComputeFees splits total into platform fee and organizer income.
// The percentage part rounds half up; the fee never exceeds the total.
func ComputeFees(total int64, plan FeePlan) (fee, income int64) {
	if total <= 0 {
		return 0, total
	}
	fee = (total*plan.PercentBps+5000)/10000 + plan.FixedMinor
	if fee < 0 {
		fee = 0
	}
	if fee > total {
		fee = total
	}
	return fee, total - fee
}

// ToMajor converts minor units to a float for provider APIs that expect decimals.
func ToMajor(amount int64, currency string) float64 {
	div := 1.0
	for i := 0; i < Exponent(currency); i++ {
		div *= 10
	}
	return float64(amount) / div
}

// FromMajor converts a provider decimal amount to minor units, rounding to nearest.
func FromMajor(amount float64, currency string) int64 {
	mul := 1.0
	for i := 0; i < Exponent(currency); i++ {
		mul *= 10
	}
	v := amount * mul
	if v < 0 {
		return int64(v - 0.5)
	}
	return int64(v + 0.5)
}
