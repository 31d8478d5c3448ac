// Package model defines the domain entities shared across the assessment
// pipeline: answers, score vectors, results, payment intents and actors.
package model

// Factor is one of the four behavioral dimensions scored by the
// questionnaire.
type Factor string

const (
	FactorD Factor = "D"
	FactorI Factor = "I"
	FactorS Factor = "S"
	FactorC Factor = "C"
)

// Factors lists the four factors in precedence order. The order is load
// bearing: ties on raw scores resolve to the earliest factor in this slice.
var Factors = [4]Factor{FactorD, FactorI, FactorS, FactorC}

// choiceToFactor is the fixed, injective mapping from an answer's choice
// label to the factor it counts toward.
var choiceToFactor = map[string]Factor{
	"A": FactorD,
	"B": FactorI,
	"C": FactorS,
	"D": FactorC,
}

// FactorForChoice resolves a choice label to its factor. The second return
// is false for labels outside the known set.
func FactorForChoice(label string) (Factor, bool) {
	f, ok := choiceToFactor[label]
	return f, ok
}

// ScoreVector holds one integer score per factor. Field names are fixed at
// compile time; scores are never carried as a generic map.
type ScoreVector struct {
	D int `json:"d"`
	I int `json:"i"`
	S int `json:"s"`
	C int `json:"c"`
}

// Get returns the value for a factor.
func (v ScoreVector) Get(f Factor) int {
	switch f {
	case FactorD:
		return v.D
	case FactorI:
		return v.I
	case FactorS:
		return v.S
	default:
		return v.C
	}
}

// Add returns a copy of the vector with the factor incremented by delta.
func (v ScoreVector) Add(f Factor, delta int) ScoreVector {
	switch f {
	case FactorD:
		v.D += delta
	case FactorI:
		v.I += delta
	case FactorS:
		v.S += delta
	case FactorC:
		v.C += delta
	}
	return v
}

// Sum returns the total across the four factors.
func (v ScoreVector) Sum() int {
	return v.D + v.I + v.S + v.C
}
