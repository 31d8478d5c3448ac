// Package identity links previously anonymous guest results to an actor
// once that actor registers with the same contact email.
package identity

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quadrant-labs/assess/internal/model"
	"github.com/quadrant-labs/assess/internal/store"
)

// Service performs guest-result linking.
type Service struct {
	store store.Store
	now   func() time.Time
}

// New builds the service.
func New(st store.Store) *Service {
	return &Service{store: st, now: func() time.Time { return time.Now().UTC() }}
}

// LinkGuestResults assigns every unowned result with a matching guest email
// to the actor and returns the number of newly linked results. Idempotent:
// a repeat run links zero. Results already owned by any actor are never
// reassigned, matching email or not.
func (s *Service) LinkGuestResults(ctx context.Context, email, actorID string) (int, error) {
	if email == "" || actorID == "" {
		return 0, eris.New("identity: email and actor id are required")
	}

	if _, err := s.store.GetActor(ctx, actorID); err != nil {
		return 0, eris.Wrapf(err, "identity: actor %s", actorID)
	}

	n, err := s.store.LinkGuestResults(ctx, email, actorID)
	if err != nil {
		return 0, eris.Wrap(err, "identity: link guest results")
	}
	if n > 0 {
		zap.L().Info("linked guest results",
			zap.String("actor_id", actorID),
			zap.Int("count", n),
		)
	}
	return n, nil
}

// RegisterActor records a new actor and immediately links any guest results
// submitted earlier under the same email.
func (s *Service) RegisterActor(ctx context.Context, email, displayName string) (*model.Actor, int, error) {
	if email == "" {
		return nil, 0, eris.New("identity: email is required")
	}

	a := &model.Actor{
		ID:          uuid.New().String(),
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   s.now(),
	}
	if err := s.store.CreateActor(ctx, a); err != nil {
		return nil, 0, eris.Wrap(err, "identity: create actor")
	}

	linked, err := s.LinkGuestResults(ctx, email, a.ID)
	if err != nil {
		return nil, 0, err
	}
	return a, linked, nil
}
