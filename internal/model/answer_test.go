package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerValidate(t *testing.T) {
	cases := []struct {
		name    string
		answer  Answer
		wantErr string
	}{
		{
			name:   "valid",
			answer: Answer{QuestionID: "q1", MostLikeMe: "A", LeastLikeMe: "C"},
		},
		{
			name:    "missing question id",
			answer:  Answer{MostLikeMe: "A", LeastLikeMe: "B"},
			wantErr: "missing question id",
		},
		{
			name:    "unknown most label",
			answer:  Answer{QuestionID: "q1", MostLikeMe: "E", LeastLikeMe: "B"},
			wantErr: `unknown choice label "E"`,
		},
		{
			name:    "unknown least label",
			answer:  Answer{QuestionID: "q1", MostLikeMe: "A", LeastLikeMe: ""},
			wantErr: "unknown choice label",
		},
		{
			name:    "lowercase label rejected",
			answer:  Answer{QuestionID: "q1", MostLikeMe: "a", LeastLikeMe: "B"},
			wantErr: "unknown choice label",
		},
		{
			name:    "same choice for most and least",
			answer:  Answer{QuestionID: "q3", MostLikeMe: "B", LeastLikeMe: "B"},
			wantErr: "most and least choices",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.answer.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestFactorForChoice(t *testing.T) {
	for label, want := range map[string]Factor{"A": FactorD, "B": FactorI, "C": FactorS, "D": FactorC} {
		got, ok := FactorForChoice(label)
		require.True(t, ok, label)
		assert.Equal(t, want, got)
	}

	_, ok := FactorForChoice("E")
	assert.False(t, ok)
}

func TestQuestionIDs(t *testing.T) {
	ids := QuestionIDs()
	require.Len(t, ids, QuestionCount)
	assert.Equal(t, "q1", ids[0])
	assert.Equal(t, "q24", ids[len(ids)-1])
}

func TestScoreVector(t *testing.T) {
	v := ScoreVector{}
	v = v.Add(FactorD, 3)
	v = v.Add(FactorI, -2)
	v = v.Add(FactorD, 1)

	assert.Equal(t, 4, v.Get(FactorD))
	assert.Equal(t, -2, v.Get(FactorI))
	assert.Equal(t, 0, v.Get(FactorS))
	assert.Equal(t, 2, v.Sum())
}
