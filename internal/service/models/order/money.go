package order

import "github.com/shopspring/decimal"

// amountTolerance absorbs rounding differences between clients, gateways and
// the recomputed total. One cent of the major currency unit.
var amountTolerance = decimal.RequireFromString("0.01")

// AmountsMatch reports whether two amounts are equal within the accepted
// tolerance.
func AmountsMatch(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(amountTolerance)
}
