// Package calc provides the pure money and date primitives of the wheel engine.
//
// Every function is total: malformed input degrades to zero or a default
// instead of failing, so one bad stored record cannot break a whole summary.
package calc

import (
	"encoding/json"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	"wheel-ledger/internal/models"
)

// SharesPerContract is the notional share count of one option contract.
var SharesPerContract = decimal.NewFromInt(models.ContractMultiplier)

var (
	hundred     = decimal.NewFromInt(100)
	daysPerYear = decimal.NewFromInt(365)
)

// Round2 rounds half away from zero to two decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// RoundMoney rounds any numeric-looking value to two places. A nil input
// yields an invalid NullDecimal; anything unparseable yields 0.00.
func RoundMoney(v interface{}) decimal.NullDecimal {
	if isNil(v) {
		return decimal.NullDecimal{}
	}
	d, ok := ToDecimal(v)
	if !ok {
		return decimal.NullDecimal{Decimal: decimal.Zero, Valid: true}
	}
	return decimal.NullDecimal{Decimal: Round2(d), Valid: true}
}

// ParseDecimal parses a stored numeric string, degrading to zero.
func ParseDecimal(s string) decimal.Decimal {
	d, ok := ToDecimal(s)
	if !ok {
		return decimal.Zero
	}
	return d
}

// ToDecimal converts common numeric representations to a decimal.
func ToDecimal(v interface{}) (decimal.Decimal, bool) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, false
	case decimal.Decimal:
		return x, true
	case *decimal.Decimal:
		if x == nil {
			return decimal.Zero, false
		}
		return *x, true
	case decimal.NullDecimal:
		return x.Decimal, x.Valid
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat(x), true
	case float32:
		f := float64(x)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return decimal.Zero, false
		}
		return decimal.NewFromFloat32(x), true
	case int:
		return decimal.NewFromInt(int64(x)), true
	case int32:
		return decimal.NewFromInt32(x), true
	case int64:
		return decimal.NewFromInt(x), true
	case json.Number:
		return ToDecimal(string(x))
	case []byte:
		return ToDecimal(string(x))
	case string:
		s := strings.TrimSpace(x)
		if s == "" {
			return decimal.Zero, false
		}
		d, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, false
		}
		return d, true
	default:
		return decimal.Zero, false
	}
}

func isNil(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case *decimal.Decimal:
		return x == nil
	case decimal.NullDecimal:
		return !x.Valid
	}
	return false
}

// Breakeven returns the underlying price at which the position nets zero.
//
// For a put it is strike minus premium per share. For a call it is the cost
// basis per share minus premium per share when a positive cost basis is
// known, else strike plus premium per share.
func Breakeven(strike, premiums decimal.Decimal, contracts int, isPut bool, costBasisPerShare *decimal.Decimal) decimal.Decimal {
	if contracts <= 0 {
		return strike
	}
	perShare := premiums.Div(decimal.NewFromInt(int64(contracts)).Mul(SharesPerContract))
	if isPut {
		return strike.Sub(perShare)
	}
	if costBasisPerShare != nil && costBasisPerShare.IsPositive() {
		return costBasisPerShare.Sub(perShare)
	}
	return strike.Add(perShare)
}

// ReturnOnCapital returns returnUSD as a percentage of capitalUsed.
func ReturnOnCapital(returnUSD, capitalUsed decimal.Decimal) decimal.Decimal {
	if !capitalUsed.IsPositive() {
		return decimal.Zero
	}
	return returnUSD.Div(capitalUsed).Mul(hundred)
}

// AnnualizedReturn scales a period return over days to a 365-day year.
func AnnualizedReturn(rocPct decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return rocPct.Div(decimal.NewFromInt(int64(days))).Mul(daysPerYear)
}

// NetCostBasis returns purchase cost less premiums and dividends plus adjustments.
func NetCostBasis(purchasePrice decimal.Decimal, quantity int, premiums, dividends, adjustments decimal.Decimal) decimal.Decimal {
	return purchasePrice.Mul(decimal.NewFromInt(int64(quantity))).
		Sub(premiums).
		Sub(dividends).
		Add(adjustments)
}

// ClassifyMoneyness reports whether a short option is in the money at spot.
// An option exactly at the strike is OTM.
func ClassifyMoneyness(strike, spot decimal.Decimal, isPut bool) models.Moneyness {
	if isPut {
		if spot.LessThan(strike) {
			return models.ITM
		}
		return models.OTM
	}
	if spot.GreaterThan(strike) {
		return models.ITM
	}
	return models.OTM
}

// RealizedPnLBuyback returns the premium kept after paying to close.
func RealizedPnLBuyback(premiumTotal, buybackDebit decimal.Decimal) decimal.Decimal {
	return premiumTotal.Sub(buybackDebit)
}

// PutIntrinsic returns max(0, strike-spot) x 100 x contracts.
func PutIntrinsic(strike, spot decimal.Decimal, contracts int) decimal.Decimal {
	return intrinsic(strike.Sub(spot), contracts)
}

// CallIntrinsic returns max(0, spot-strike) x 100 x contracts.
func CallIntrinsic(strike, spot decimal.Decimal, contracts int) decimal.Decimal {
	return intrinsic(spot.Sub(strike), contracts)
}

func intrinsic(diff decimal.Decimal, contracts int) decimal.Decimal {
	if !diff.IsPositive() || contracts <= 0 {
		return decimal.Zero
	}
	return diff.Mul(SharesPerContract).Mul(decimal.NewFromInt(int64(contracts)))
}
