package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quadrant-labs/assess/internal/model"
)

// uniformAnswers builds n answers all choosing most/least the same way.
func uniformAnswers(n int, most, least string) []model.Answer {
	answers := make([]model.Answer, 0, n)
	for i, id := range model.QuestionIDs() {
		if i >= n {
			break
		}
		answers = append(answers, model.Answer{QuestionID: id, MostLikeMe: most, LeastLikeMe: least})
	}
	return answers
}

func TestCompute_ExampleScenario(t *testing.T) {
	// 24 answers, every most = A (factor D), every least = B (factor I).
	out, err := Compute(uniformAnswers(24, "A", "B"))
	require.NoError(t, err)

	assert.Equal(t, model.ScoreVector{D: 24}, out.MostTally)
	assert.Equal(t, model.ScoreVector{I: 24}, out.LeastTally)
	assert.Equal(t, model.ScoreVector{D: 24, I: -24}, out.Raw)
	assert.Equal(t, model.ScoreVector{D: 50, I: 50}, out.Normalized)
	assert.Equal(t, model.FactorD, out.Profile)
}

func TestCompute_Deterministic(t *testing.T) {
	answers := []model.Answer{
		{QuestionID: "q1", MostLikeMe: "A", LeastLikeMe: "C"},
		{QuestionID: "q2", MostLikeMe: "B", LeastLikeMe: "D"},
		{QuestionID: "q3", MostLikeMe: "B", LeastLikeMe: "A"},
		{QuestionID: "q4", MostLikeMe: "D", LeastLikeMe: "C"},
	}

	first, err := Compute(answers)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Compute(answers)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestCompute_SumInvariant(t *testing.T) {
	cases := map[string][]model.Answer{
		"uniform":  uniformAnswers(24, "A", "B"),
		"single":   {{QuestionID: "q1", MostLikeMe: "C", LeastLikeMe: "D"}},
		"mixed": {
			{QuestionID: "q1", MostLikeMe: "A", LeastLikeMe: "B"},
			{QuestionID: "q2", MostLikeMe: "A", LeastLikeMe: "C"},
			{QuestionID: "q3", MostLikeMe: "B", LeastLikeMe: "D"},
			{QuestionID: "q4", MostLikeMe: "C", LeastLikeMe: "A"},
			{QuestionID: "q5", MostLikeMe: "D", LeastLikeMe: "A"},
			{QuestionID: "q6", MostLikeMe: "B", LeastLikeMe: "C"},
			{QuestionID: "q7", MostLikeMe: "D", LeastLikeMe: "B"},
		},
		"lopsided": {
			{QuestionID: "q1", MostLikeMe: "A", LeastLikeMe: "B"},
			{QuestionID: "q2", MostLikeMe: "A", LeastLikeMe: "B"},
			{QuestionID: "q3", MostLikeMe: "A", LeastLikeMe: "C"},
		},
	}

	for name, answers := range cases {
		t.Run(name, func(t *testing.T) {
			out, err := Compute(answers)
			require.NoError(t, err)
			assert.Equal(t, 100, out.Normalized.Sum(), "normalized scores must sum to 100")
			assert.GreaterOrEqual(t, out.Normalized.D, 0)
			assert.GreaterOrEqual(t, out.Normalized.I, 0)
			assert.GreaterOrEqual(t, out.Normalized.S, 0)
			assert.GreaterOrEqual(t, out.Normalized.C, 0)
		})
	}
}

func TestCompute_NeutralAnswerSet(t *testing.T) {
	// Most and least cancel across the set: raw vector is all zero.
	answers := []model.Answer{
		{QuestionID: "q1", MostLikeMe: "A", LeastLikeMe: "B"},
		{QuestionID: "q2", MostLikeMe: "B", LeastLikeMe: "A"},
		{QuestionID: "q3", MostLikeMe: "C", LeastLikeMe: "D"},
		{QuestionID: "q4", MostLikeMe: "D", LeastLikeMe: "C"},
	}

	out, err := Compute(answers)
	require.NoError(t, err)
	assert.Equal(t, model.ScoreVector{}, out.Raw)
	assert.Equal(t, model.ScoreVector{D: 25, I: 25, S: 25, C: 25}, out.Normalized)
}

func TestCompute_EmptyAnswers(t *testing.T) {
	out, err := Compute(nil)
	require.NoError(t, err)
	assert.Equal(t, model.ScoreVector{D: 25, I: 25, S: 25, C: 25}, out.Normalized)
	assert.Equal(t, model.FactorD, out.Profile, "all-zero raw ties resolve to D")
}

func TestCompute_ProfileUsesRawNotNormalized(t *testing.T) {
	// Raw: D=2, I=-3. |I| dominates the normalized split but the profile
	// must follow the signed raw maximum, which is D.
	answers := []model.Answer{
		{QuestionID: "q1", MostLikeMe: "A", LeastLikeMe: "B"},
		{QuestionID: "q2", MostLikeMe: "A", LeastLikeMe: "B"},
		{QuestionID: "q3", MostLikeMe: "C", LeastLikeMe: "B"},
	}

	out, err := Compute(answers)
	require.NoError(t, err)
	assert.Equal(t, model.ScoreVector{D: 2, I: -3, S: 1}, out.Raw)
	assert.Equal(t, model.FactorD, out.Profile)
}

func TestCompute_TieBreakPrecedence(t *testing.T) {
	// Raw: I=1, S=1, others negative. Tie between I and S resolves to I.
	answers := []model.Answer{
		{QuestionID: "q1", MostLikeMe: "B", LeastLikeMe: "A"},
		{QuestionID: "q2", MostLikeMe: "C", LeastLikeMe: "D"},
	}

	out, err := Compute(answers)
	require.NoError(t, err)
	assert.Equal(t, out.Raw.I, out.Raw.S)
	assert.Equal(t, model.FactorI, out.Profile)
}

func TestCompute_RoundingRemainderLandsOnLargest(t *testing.T) {
	// Raw: D=2, I=-1 (S=3): 67 + 33 = 100 exactly; and a case that
	// genuinely needs the remainder: D=1, I=1, S=1 (total 3) rounds to
	// 33+33+33=99, remainder goes to D by precedence.
	answers := []model.Answer{
		{QuestionID: "q1", MostLikeMe: "A", LeastLikeMe: "D"},
		{QuestionID: "q2", MostLikeMe: "B", LeastLikeMe: "D"},
		{QuestionID: "q3", MostLikeMe: "C", LeastLikeMe: "D"},
	}

	out, err := Compute(answers)
	require.NoError(t, err)
	assert.Equal(t, model.ScoreVector{D: 1, I: 1, S: 1, C: -3}, out.Raw)
	assert.Equal(t, 100, out.Normalized.Sum())
	// |C|=3 is the largest share: 50 + 17*3 = 101 before adjustment, so
	// the -1 remainder comes off C.
	assert.Equal(t, model.ScoreVector{D: 17, I: 17, S: 17, C: 49}, out.Normalized)
}

func TestCompute_UnknownLabelRejected(t *testing.T) {
	_, err := Compute([]model.Answer{{QuestionID: "q1", MostLikeMe: "Z", LeastLikeMe: "B"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown choice label")

	_, err = Compute([]model.Answer{{QuestionID: "q1", MostLikeMe: "A", LeastLikeMe: "x"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown choice label")
}
