package store

import (
	"context"
	"sync"
	"time"

	"github.com/rotisserie/eris"

	"github.com/quadrant-labs/assess/internal/model"
)

// MemoryStore is the in-memory stand-in used while the relational store is
// unavailable, and in tests. It satisfies the full Store contract with the
// same semantics, but nothing survives a process restart.
type MemoryStore struct {
	mu      sync.Mutex
	results map[string]*model.Result
	intents map[string]*model.PaymentIntent
	actors  map[string]*model.Actor
}

// NewMemory creates an empty in-memory store.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		results: make(map[string]*model.Result),
		intents: make(map[string]*model.PaymentIntent),
		actors:  make(map[string]*model.Actor),
	}
}

func (s *MemoryStore) Migrate(ctx context.Context) error { return nil }
func (s *MemoryStore) Ping(ctx context.Context) error    { return nil }
func (s *MemoryStore) Close() error                      { return nil }

func (s *MemoryStore) CreateResult(ctx context.Context, r *model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.results[r.ID]; exists {
		return eris.Errorf("memory: duplicate result %s", r.ID)
	}
	cp := *r
	s.results[r.ID] = &cp
	return nil
}

func (s *MemoryStore) GetResult(ctx context.Context, id string) (*model.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.results[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: result %s", id)
	}
	cp := *r
	return &cp, nil
}

func (s *MemoryStore) LinkGuestResults(ctx context.Context, email, actorID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	linked := 0
	for _, r := range s.results {
		if r.ActorID == nil && r.GuestEmail == email {
			id := actorID
			r.ActorID = &id
			linked++
		}
	}
	return linked, nil
}

func (s *MemoryStore) CreateIntent(ctx context.Context, intent *model.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range s.intents {
		if in.ResultID == intent.ResultID && in.ProviderRef == intent.ProviderRef {
			return eris.Errorf("memory: duplicate intent %s for result %s", intent.ProviderRef, intent.ResultID)
		}
	}
	cp := *intent
	s.intents[intent.ID] = &cp
	return nil
}

func (s *MemoryStore) GetIntentByRef(ctx context.Context, resultID, providerRef string) (*model.PaymentIntent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, in := range s.intents {
		if in.ResultID == resultID && in.ProviderRef == providerRef {
			cp := *in
			return &cp, nil
		}
	}
	return nil, eris.Wrapf(ErrNotFound, "memory: intent %s for result %s", providerRef, resultID)
}

func (s *MemoryStore) MarkIntentFailed(ctx context.Context, intentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in, ok := s.intents[intentID]
	if !ok || in.Status != model.IntentPending {
		return eris.Wrapf(ErrNotFound, "memory: pending intent %s", intentID)
	}
	in.Status = model.IntentFailed
	in.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) FailStaleIntents(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := 0
	for _, in := range s.intents {
		if in.Status == model.IntentPending && in.CreatedAt.Before(cutoff) {
			in.Status = model.IntentFailed
			in.UpdatedAt = time.Now().UTC()
			failed++
		}
	}
	return failed, nil
}

// GrantPremium holds the store mutex across the read-check-write, which
// serializes racing confirmations for the same result.
func (s *MemoryStore) GrantPremium(ctx context.Context, resultID, providerRef string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.results[resultID]
	if !ok {
		return false, eris.Wrapf(ErrNotFound, "memory: result %s", resultID)
	}
	if r.IsPremium {
		return false, nil
	}

	var matched *model.PaymentIntent
	for _, in := range s.intents {
		if in.ResultID == resultID && in.ProviderRef == providerRef && in.Status == model.IntentPending {
			matched = in
			break
		}
	}
	if matched == nil {
		return false, eris.Wrapf(ErrNotFound, "memory: pending intent %s for result %s", providerRef, resultID)
	}

	matched.Status = model.IntentCompleted
	matched.UpdatedAt = time.Now().UTC()
	ref := providerRef
	r.IsPremium = true
	r.PremiumPaymentRef = &ref
	return true, nil
}

func (s *MemoryStore) CreateActor(ctx context.Context, a *model.Actor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.actors[a.ID]; exists {
		return eris.Errorf("memory: duplicate actor %s", a.ID)
	}
	cp := *a
	s.actors[a.ID] = &cp
	return nil
}

func (s *MemoryStore) GetActor(ctx context.Context, id string) (*model.Actor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.actors[id]
	if !ok {
		return nil, eris.Wrapf(ErrNotFound, "memory: actor %s", id)
	}
	cp := *a
	return &cp, nil
}
