package scoring

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
)

func TestScoreFavorablePut(t *testing.T) {
	res := Score(Input{
		PnL:             50,
		MarketPrice:     99,
		Breakeven:       97.5,
		IsPut:           true,
		DTE:             25,
		PeriodReturnPct: 2.5,
		EarningsClear:   true,
	})

	// 50 + 0.96 + 10 + 7 + 4 + 3
	assert.Equal(t, 75, res.Score)
	assert.Equal(t, Favorable, res.Label)
	assert.InDelta(t, 0.9615, res.Components["moneyness"], 0.0001)
	assert.Equal(t, 7.0, res.Components["dte"])
}

func TestScoreComponents(t *testing.T) {
	tests := []struct {
		name string
		in   Input
		want int
	}{
		{
			name: "call below breakeven",
			in:   Input{PnL: 10, MarketPrice: 90, Breakeven: 100, DTE: 30, EarningsClear: true},
			// 50 + 6.25 + 10 + 10 + 0 + 3
			want: 79,
		},
		{
			name: "deep itm put clamps moneyness",
			in:   Input{PnL: -500, MarketPrice: 40, Breakeven: 100, IsPut: true, DTE: 1, PeriodReturnPct: -3},
			// 50 - 25 - 10 - 8 - 4 - 7
			want: 0,
		},
		{
			name: "zero breakeven uses market as reference",
			in:   Input{PnL: 0, MarketPrice: 50, IsPut: true, DTE: 6, EarningsClear: true},
			// 50 + 25 + 10 + 0 + 0 + 3
			want: 88,
		},
		{
			name: "nothing known",
			in:   Input{DTE: 10},
			// 50 + 0 + 10 + 4 + 0 - 7
			want: 57,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Score(tt.in).Score)
		})
	}
}

func TestDTEBreakpoints(t *testing.T) {
	tests := []struct {
		dte  int
		want float64
	}{
		{0, -8}, {2, -8}, {3, -4}, {5, -4}, {6, 0},
		{7, 4}, {13, 4}, {14, 7}, {29, 7}, {30, 10}, {365, 10},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dteScore(tt.dte), "dte=%d", tt.dte)
	}
}

func TestLabelFor(t *testing.T) {
	assert.Equal(t, Favorable, LabelFor(67))
	assert.Equal(t, Evaluate, LabelFor(66))
	assert.Equal(t, Evaluate, LabelFor(34))
	assert.Equal(t, Unfavorable, LabelFor(33))
	assert.Equal(t, Unfavorable, LabelFor(0))
}

func TestScoreIgnoresNaN(t *testing.T) {
	res := Score(Input{MarketPrice: math.NaN(), Breakeven: 10, DTE: 30, EarningsClear: true})
	assert.Equal(t, 0.0, res.Components["moneyness"])
}

func inputGen() gopter.Gen {
	return gopter.CombineGens(
		gen.Float64Range(-10000, 10000),
		gen.Float64Range(0, 1000),
		gen.Float64Range(0, 1000),
		gen.Bool(),
		gen.IntRange(0, 400),
		gen.Float64Range(-100, 100),
		gen.Bool(),
	).Map(func(v []interface{}) Input {
		return Input{
			PnL:             v[0].(float64),
			MarketPrice:     v[1].(float64),
			Breakeven:       v[2].(float64),
			IsPut:           v[3].(bool),
			DTE:             v[4].(int),
			PeriodReturnPct: v[5].(float64),
			EarningsClear:   v[6].(bool),
		}
	})
}

func TestProperty_ScoreBounds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("score stays in [0,100] and matches its label", prop.ForAll(
		func(in Input) bool {
			res := Score(in)
			return res.Score >= 0 && res.Score <= 100 && res.Label == LabelFor(res.Score)
		},
		inputGen(),
	))

	properties.TestingRun(t)
}

func TestProperty_ScoreMonotonicInDTE(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("raising dte within [2,30] never lowers the score", prop.ForAll(
		func(in Input, a, b int) bool {
			if a > b {
				a, b = b, a
			}
			lo, hi := in, in
			lo.DTE, hi.DTE = a, b
			return Score(hi).Score >= Score(lo).Score
		},
		inputGen(),
		gen.IntRange(2, 30),
		gen.IntRange(2, 30),
	))

	properties.TestingRun(t)
}
