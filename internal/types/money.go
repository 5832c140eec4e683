// README: Money helpers on top of exact decimals (CAD, two fraction digits).
package types

import (
	"github.com/shopspring/decimal"
)

const Currency = "CAD"

type Money = decimal.Decimal

// Round2 rounds half away from zero to cents for display and settlement.
func Round2(m Money) Money {
	return m.Round(2)
}

// SameAmount compares two amounts at cent precision.
func SameAmount(a, b Money) bool {
	return a.Round(2).Equal(b.Round(2))
}
