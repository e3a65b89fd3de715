// README: Money value object; amounts are kept in minor units (cents) so fares compare exactly.
package types

import "math"

type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// MoneyFromUnits rounds a unit amount (e.g. 8.5 dollars) to the nearest cent.
func MoneyFromUnits(units float64, currency string) Money {
	return Money{Amount: int64(math.Round(units * 100)), Currency: currency}
}

// Units returns the amount in currency units with two-decimal precision.
func (m Money) Units() float64 {
	return float64(m.Amount) / 100
}
