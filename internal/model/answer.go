package model

import "fmt"

// Answer is one forced-choice response to a single questionnaire item: the
// statement most like the respondent and the statement least like them.
type Answer struct {
	QuestionID  string `json:"question_id"`
	MostLikeMe  string `json:"most_like_me"`
	LeastLikeMe string `json:"least_like_me"`
}

// Validate checks the answer in isolation: both labels must be in the known
// choice set and must differ from each other.
func (a Answer) Validate() error {
	if a.QuestionID == "" {
		return fmt.Errorf("answer: missing question id")
	}
	if _, ok := FactorForChoice(a.MostLikeMe); !ok {
		return fmt.Errorf("answer %s: unknown choice label %q", a.QuestionID, a.MostLikeMe)
	}
	if _, ok := FactorForChoice(a.LeastLikeMe); !ok {
		return fmt.Errorf("answer %s: unknown choice label %q", a.QuestionID, a.LeastLikeMe)
	}
	if a.MostLikeMe == a.LeastLikeMe {
		return fmt.Errorf("answer %s: most and least choices are both %q", a.QuestionID, a.MostLikeMe)
	}
	return nil
}

// QuestionCount is the number of items in the questionnaire.
const QuestionCount = 24

// QuestionIDs returns the fixed ordered set of questionnaire item ids.
func QuestionIDs() []string {
	ids := make([]string, 0, QuestionCount)
	for i := 1; i <= QuestionCount; i++ {
		ids = append(ids, fmt.Sprintf("q%d", i))
	}
	return ids
}
