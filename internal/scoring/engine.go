// Package scoring implements the pure DISC scoring engine: it turns an
// ordered list of forced-choice answers into a raw signed vector, a
// normalized percentage vector and a dominant profile. No I/O, no clocks.
package scoring

import (
	"fmt"

	"github.com/quadrant-labs/assess/internal/model"
)

// Outcome is the full scoring output for one answer set. Computed once per
// submission and immutable afterwards.
type Outcome struct {
	MostTally  model.ScoreVector `json:"most_tally"`
	LeastTally model.ScoreVector `json:"least_tally"`
	Raw        model.ScoreVector `json:"raw"`
	Normalized model.ScoreVector `json:"normalized"`
	Profile    model.Factor      `json:"profile"`
}

// Compute scores an answer list. Callers are expected to have validated the
// answers already; an unmapped choice label still returns an error rather
// than being silently skipped.
//
// Raw per factor is mostTally minus leastTally. Normalization distributes
// 100 points proportionally to the absolute raw values, assigning the
// rounding remainder to the factor currently holding the maximum normalized
// value. An all-zero raw vector yields an even 25/25/25/25 split. The
// profile is the factor with the highest raw signed value, ties resolved by
// the fixed D > I > S > C precedence.
func Compute(answers []model.Answer) (Outcome, error) {
	var out Outcome

	for _, a := range answers {
		mf, ok := model.FactorForChoice(a.MostLikeMe)
		if !ok {
			return Outcome{}, fmt.Errorf("scoring: unknown choice label %q", a.MostLikeMe)
		}
		lf, ok := model.FactorForChoice(a.LeastLikeMe)
		if !ok {
			return Outcome{}, fmt.Errorf("scoring: unknown choice label %q", a.LeastLikeMe)
		}
		out.MostTally = out.MostTally.Add(mf, 1)
		out.LeastTally = out.LeastTally.Add(lf, 1)
	}

	for _, f := range model.Factors {
		out.Raw = out.Raw.Add(f, out.MostTally.Get(f)-out.LeastTally.Get(f))
	}

	out.Normalized = normalize(out.Raw)
	out.Profile = dominant(out.Raw)
	return out, nil
}

func normalize(raw model.ScoreVector) model.ScoreVector {
	total := abs(raw.D) + abs(raw.I) + abs(raw.S) + abs(raw.C)
	if total == 0 {
		return model.ScoreVector{D: 25, I: 25, S: 25, C: 25}
	}

	var norm model.ScoreVector
	for _, f := range model.Factors {
		norm = norm.Add(f, roundPct(abs(raw.Get(f)), total))
	}

	// Rounding can leave the sum a point or two off 100; the remainder
	// lands on the factor currently holding the maximum normalized value.
	if rem := 100 - norm.Sum(); rem != 0 {
		norm = norm.Add(dominant(norm), rem)
	}
	return norm
}

// roundPct computes round(100 * part / total) in integer arithmetic,
// rounding half up.
func roundPct(part, total int) int {
	return (100*part*2 + total) / (total * 2)
}

// dominant returns the factor with the maximum value in v, ties broken by
// the precedence order of model.Factors.
func dominant(v model.ScoreVector) model.Factor {
	best := model.Factors[0]
	for _, f := range model.Factors[1:] {
		if v.Get(f) > v.Get(best) {
			best = f
		}
	}
	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
