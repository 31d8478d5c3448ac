package identity

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quadrant-labs/assess/internal/model"
	"github.com/quadrant-labs/assess/internal/store"
)

func seedGuestResult(t *testing.T, st store.Store, email string) *model.Result {
	t.Helper()
	r := &model.Result{
		ID:         uuid.NewString(),
		GuestName:  "Jamie",
		GuestEmail: email,
		Answers:    []model.Answer{{QuestionID: "q1", MostLikeMe: "A", LeastLikeMe: "B"}},
		Profile:    model.FactorD,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, st.CreateResult(context.Background(), r))
	return r
}

func seedActor(t *testing.T, st store.Store, email string) *model.Actor {
	t.Helper()
	a := &model.Actor{ID: uuid.NewString(), Email: email, DisplayName: "Jamie", CreatedAt: time.Now().UTC()}
	require.NoError(t, st.CreateActor(context.Background(), a))
	return a
}

func TestLinkGuestResults(t *testing.T) {
	mem := store.NewMemory()
	s := New(mem)

	r1 := seedGuestResult(t, mem, "jamie@example.com")
	r2 := seedGuestResult(t, mem, "jamie@example.com")
	other := seedGuestResult(t, mem, "other@example.com")
	actor := seedActor(t, mem, "jamie@example.com")

	n, err := s.LinkGuestResults(context.Background(), "jamie@example.com", actor.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	for _, id := range []string{r1.ID, r2.ID} {
		got, err := mem.GetResult(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, got.ActorID)
		assert.Equal(t, actor.ID, *got.ActorID)
	}

	got, err := mem.GetResult(context.Background(), other.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ActorID)
}

func TestLinkGuestResults_Idempotent(t *testing.T) {
	mem := store.NewMemory()
	s := New(mem)

	seedGuestResult(t, mem, "jamie@example.com")
	actor := seedActor(t, mem, "jamie@example.com")

	n, err := s.LinkGuestResults(context.Background(), "jamie@example.com", actor.ID)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	n, err = s.LinkGuestResults(context.Background(), "jamie@example.com", actor.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestLinkGuestResults_NeverReassigns(t *testing.T) {
	mem := store.NewMemory()
	s := New(mem)

	first := seedActor(t, mem, "jamie@example.com")
	second := seedActor(t, mem, "second@example.com")
	r := seedGuestResult(t, mem, "jamie@example.com")

	_, err := s.LinkGuestResults(context.Background(), "jamie@example.com", first.ID)
	require.NoError(t, err)

	// A later claim on the same email links nothing.
	n, err := s.LinkGuestResults(context.Background(), "jamie@example.com", second.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	got, err := mem.GetResult(context.Background(), r.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ActorID)
	assert.Equal(t, first.ID, *got.ActorID)
}

func TestLinkGuestResults_UnknownActor(t *testing.T) {
	mem := store.NewMemory()
	s := New(mem)
	seedGuestResult(t, mem, "jamie@example.com")

	_, err := s.LinkGuestResults(context.Background(), "jamie@example.com", "nonexistent-id")
	require.Error(t, err)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLinkGuestResults_MissingArguments(t *testing.T) {
	s := New(store.NewMemory())

	_, err := s.LinkGuestResults(context.Background(), "", "actor-1")
	assert.Error(t, err)

	_, err = s.LinkGuestResults(context.Background(), "jamie@example.com", "")
	assert.Error(t, err)
}

func TestRegisterActor(t *testing.T) {
	mem := store.NewMemory()
	s := New(mem)

	seedGuestResult(t, mem, "jamie@example.com")
	seedGuestResult(t, mem, "jamie@example.com")

	actor, linked, err := s.RegisterActor(context.Background(), "jamie@example.com", "Jamie")
	require.NoError(t, err)
	assert.Equal(t, 2, linked)
	assert.Equal(t, "jamie@example.com", actor.Email)

	got, err := mem.GetActor(context.Background(), actor.ID)
	require.NoError(t, err)
	assert.Equal(t, "Jamie", got.DisplayName)
}

func TestRegisterActor_NoPriorResults(t *testing.T) {
	s := New(store.NewMemory())

	actor, linked, err := s.RegisterActor(context.Background(), "fresh@example.com", "Fresh")
	require.NoError(t, err)
	assert.Equal(t, 0, linked)
	assert.NotEmpty(t, actor.ID)
}
