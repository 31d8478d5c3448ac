// Package assessment validates questionnaire submissions, scores them and
// persists the resulting profile.
package assessment

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quadrant-labs/assess/internal/model"
	"github.com/quadrant-labs/assess/internal/notify"
	"github.com/quadrant-labs/assess/internal/scoring"
	"github.com/quadrant-labs/assess/internal/store"
)

// ErrValidation marks terminal input errors: malformed answers, unknown
// labels, missing questions, bad identity. Never retried.
var ErrValidation = eris.New("invalid submission")

// SubmitRequest carries one submission: the answers plus exactly one
// identity, either a guest contact or an actor reference.
type SubmitRequest struct {
	Guest   *model.GuestContact
	ActorID string
	Answers []model.Answer
}

// Service turns submissions into persisted results.
type Service struct {
	store    store.Store
	notifier notify.Notifier
	now      func() time.Time
	newID    func() string
}

// New builds the service. notifier may be nil.
func New(st store.Store, notifier notify.Notifier) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		store:    st,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// Submit validates the request, scores the answers and persists a new
// non-premium result. Validation failures are terminal; storage failures
// surface as the gateway's retryable taxonomy.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*model.Result, error) {
	answers, err := validateAnswers(req.Answers)
	if err != nil {
		return nil, err
	}
	if err := validateIdentity(req); err != nil {
		return nil, err
	}

	outcome, err := scoring.Compute(answers)
	if err != nil {
		// Labels were validated above; reaching here means the engine and
		// the validator disagree on the label set.
		return nil, eris.Wrap(err, "assessment: score")
	}

	r := &model.Result{
		ID:        s.newID(),
		Answers:   answers,
		Raw:       outcome.Raw,
		Scores:    outcome.Normalized,
		Profile:   outcome.Profile,
		IsPremium: false,
		CreatedAt: s.now(),
	}
	if req.Guest != nil {
		r.GuestName = req.Guest.Name
		r.GuestEmail = req.Guest.Email
		r.GuestPhone = req.Guest.Phone
	} else {
		actorID := req.ActorID
		r.ActorID = &actorID
	}

	if err := s.store.CreateResult(ctx, r); err != nil {
		return nil, eris.Wrap(err, "assessment: persist result")
	}

	s.notifier.Submitted(ctx, r)
	zap.L().Info("assessment submitted",
		zap.String("result_id", r.ID),
		zap.String("profile", string(r.Profile)),
		zap.Bool("guest", r.ActorID == nil),
	)
	return r, nil
}

// validateAnswers checks every answer and requires exactly one answer per
// known question id. Duplicate answers for the same question overwrite the
// earlier one; a missing question is terminal.
func validateAnswers(answers []model.Answer) ([]model.Answer, error) {
	if len(answers) == 0 {
		return nil, eris.Wrap(ErrValidation, "no answers submitted")
	}

	byQuestion := make(map[string]model.Answer, len(answers))
	for _, a := range answers {
		if err := a.Validate(); err != nil {
			return nil, eris.Wrapf(ErrValidation, "%v", err)
		}
		byQuestion[a.QuestionID] = a
	}

	ids := model.QuestionIDs()
	final := make([]model.Answer, 0, len(ids))
	for _, id := range ids {
		a, ok := byQuestion[id]
		if !ok {
			return nil, eris.Wrapf(ErrValidation, "question %s is unanswered", id)
		}
		final = append(final, a)
		delete(byQuestion, id)
	}
	if len(byQuestion) > 0 {
		for id := range byQuestion {
			return nil, eris.Wrapf(ErrValidation, "unknown question id %q", id)
		}
	}
	return final, nil
}

func validateIdentity(req SubmitRequest) error {
	hasGuest := req.Guest != nil
	hasActor := req.ActorID != ""
	switch {
	case hasGuest && hasActor:
		return eris.Wrap(ErrValidation, "submission carries both guest contact and actor id")
	case !hasGuest && !hasActor:
		return eris.Wrap(ErrValidation, "submission carries no identity")
	case hasGuest:
		if req.Guest.Name == "" || req.Guest.Email == "" {
			return eris.Wrap(ErrValidation, "guest contact requires name and email")
		}
	}
	return nil
}
