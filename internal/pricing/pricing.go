package pricing

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Calculator computes the service fee and total price from a base supplier
// cost. The fee is the greater of a percentage of the base cost and a
// configured minimum. Intermediate values keep full precision; rounding to
// the currency minor unit happens only at the point of charging.
type Calculator struct {
	feePercentage decimal.Decimal // e.g. 10 for 10%
	minimumFee    decimal.Decimal
}

func NewCalculator(feePercentage, minimumFee decimal.Decimal) *Calculator {
	return &Calculator{feePercentage: feePercentage, minimumFee: minimumFee}
}

type Quote struct {
	BaseCost   decimal.Decimal
	ServiceFee decimal.Decimal
	Total      decimal.Decimal
}

func (c *Calculator) Quote(baseCost decimal.Decimal) Quote {
	fee := baseCost.Mul(c.feePercentage).Div(decimal.NewFromInt(100))
	if fee.LessThan(c.minimumFee) {
		fee = c.minimumFee
	}
	return Quote{
		BaseCost:   baseCost,
		ServiceFee: fee,
		Total:      baseCost.Add(fee),
	}
}

// zeroDecimalCurrencies charge in whole units; everything else uses two
// minor digits, which covers the currencies the suppliers quote in.
var zeroDecimalCurrencies = map[string]bool{
	"JPY": true, "KRW": true, "VND": true, "CLP": true,
	"ISK": true, "UGX": true, "RWF": true, "XOF": true, "XAF": true,
}

// MinorUnits converts an amount to gateway minor units, rounding half-up
// at the currency's minor unit.
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	exp := int32(2)
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		exp = 0
	}
	return amount.Shift(exp).Round(0).IntPart()
}

// FromMinorUnits is the inverse of MinorUnits.
func FromMinorUnits(minor int64, currency string) decimal.Decimal {
	exp := int32(2)
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		exp = 0
	}
	return decimal.NewFromInt(minor).Shift(-exp)
}
