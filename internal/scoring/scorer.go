// Package scoring provides the risk/return favorability score of a wheel position.
//
// The score is a heuristic built from fixed additive weights around a neutral
// baseline of 50, not a probability model. Weights and breakpoints are
// constants and must not drift between releases.
package scoring

import (
	"math"
)

// Label is the three-state classification of a score.
type Label string

const (
	Favorable   Label = "Favorable"
	Evaluate    Label = "Evaluar"
	Unfavorable Label = "Desfavorable"
)

// Score weights and breakpoints.
const (
	Baseline = 50.0

	MoneynessWeight   = 25.0
	MoneynessClampPct = 40.0

	PnLWeight = 10.0

	ReturnWeight = 4.0

	EarningsClearBonus    = 3.0
	EarningsInsidePenalty = -7.0

	favorableAbove = 66
	evaluateAbove  = 33
)

// Input is a position snapshot.
type Input struct {
	PnL             float64 `json:"pnl_actual"`
	MarketPrice     float64 `json:"market_price"`
	Breakeven       float64 `json:"breakeven"`
	IsPut           bool    `json:"is_put"`
	DTE             int     `json:"dte"`
	PeriodReturnPct float64 `json:"period_return_pct"`
	EarningsClear   bool    `json:"earnings_clear"`
}

// Result is the score of one snapshot with the contribution of each component.
type Result struct {
	Score      int                `json:"score"`
	Label      Label              `json:"label"`
	Components map[string]float64 `json:"components"`
}

// Score computes the favorability score of in.
func Score(in Input) Result {
	components := map[string]float64{
		"moneyness": moneynessScore(in),
		"pnl":       pnlScore(in.PnL),
		"dte":       dteScore(in.DTE),
		"return":    returnScore(in.PeriodReturnPct),
		"earnings":  earningsScore(in.EarningsClear),
	}

	total := Baseline
	for _, name := range []string{"moneyness", "pnl", "dte", "return", "earnings"} {
		total += components[name]
	}

	score := int(math.RoundToEven(clamp(total, 0, 100)))
	return Result{
		Score:      score,
		Label:      LabelFor(score),
		Components: components,
	}
}

// LabelFor maps a score to its label.
func LabelFor(score int) Label {
	switch {
	case score > favorableAbove:
		return Favorable
	case score > evaluateAbove:
		return Evaluate
	default:
		return Unfavorable
	}
}

// moneynessScore rewards the market sitting on the profitable side of
// breakeven: above it for puts, below it for calls.
func moneynessScore(in Input) float64 {
	ref := in.Breakeven
	if ref == 0 {
		ref = in.MarketPrice
	}
	if ref == 0 {
		return 0
	}

	dist := in.MarketPrice - in.Breakeven
	if !in.IsPut {
		dist = in.Breakeven - in.MarketPrice
	}
	pct := clamp(100*dist/math.Max(math.Abs(ref), 1e-6), -MoneynessClampPct, MoneynessClampPct)
	if math.IsNaN(pct) {
		return 0
	}
	return pct / MoneynessClampPct * MoneynessWeight
}

func pnlScore(pnl float64) float64 {
	if pnl >= 0 {
		return PnLWeight
	}
	return -PnLWeight
}

// dteScore is a step function, non-decreasing in dte above 2 days.
func dteScore(dte int) float64 {
	switch {
	case dte >= 30:
		return 10
	case dte >= 14:
		return 7
	case dte >= 7:
		return 4
	case dte <= 2:
		return -8
	case dte <= 5:
		return -4
	default:
		return 0
	}
}

func returnScore(pct float64) float64 {
	switch {
	case pct > 0:
		return ReturnWeight
	case pct < 0:
		return -ReturnWeight
	default:
		return 0
	}
}

func earningsScore(clear bool) float64 {
	if clear {
		return EarningsClearBonus
	}
	return EarningsInsidePenalty
}

// clamp restricts a value to the given range.
func clamp(value, minVal, maxVal float64) float64 {
	if value < minVal {
		return minVal
	}
	if value > maxVal {
		return maxVal
	}
	return value
}
