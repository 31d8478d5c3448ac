// Package store provides persistence for results, payment intents and
// actors, with interchangeable Postgres, SQLite and in-memory backends and
// a resilient gateway façade in front of them.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/quadrant-labs/assess/internal/model"
)

// Sentinel errors shared by every backend. Callers branch on these with
// errors.Is; the concrete backend never leaks into caller logic.
var (
	// ErrNotFound reports an unknown result, intent or actor id.
	ErrNotFound = eris.New("not found")

	// ErrUnavailable reports exhausted retries or an open circuit. It is
	// distinguishable from both ErrNotFound and validation failures so
	// callers can show a retry prompt instead of a data-correction prompt.
	ErrUnavailable = eris.New("storage unavailable")
)

// Store is the persistence contract for the assessment pipeline. All
// backends, including the in-memory degraded-mode store, satisfy it with
// identical semantics; the in-memory backend only weakens durability.
type Store interface {
	// CreateResult persists a freshly scored result. The result arrives
	// with IsPremium false and is immutable afterwards except through
	// GrantPremium and LinkGuestResults.
	CreateResult(ctx context.Context, r *model.Result) error
	GetResult(ctx context.Context, id string) (*model.Result, error)

	// LinkGuestResults assigns actorID to every result whose guest email
	// matches and whose actor reference is still null. Returns the number
	// of newly linked rows; naturally idempotent.
	LinkGuestResults(ctx context.Context, email, actorID string) (int, error)

	// CreateIntent records a pending payment intent for a result.
	CreateIntent(ctx context.Context, intent *model.PaymentIntent) error
	// GetIntentByRef finds the intent for (resultID, providerRef),
	// regardless of status. ErrNotFound when no such intent exists.
	GetIntentByRef(ctx context.Context, resultID, providerRef string) (*model.PaymentIntent, error)
	// MarkIntentFailed terminates a pending intent after a gateway
	// decline. Completed intents are never touched.
	MarkIntentFailed(ctx context.Context, intentID string) error
	// FailStaleIntents fails every pending intent created before cutoff
	// and returns how many it touched.
	FailStaleIntents(ctx context.Context, cutoff time.Time) (int, error)

	// GrantPremium is the single permitted premium transition: in one
	// atomic unit it marks the matching pending intent completed and sets
	// is_premium plus the payment reference on the result. It returns
	// false (and no error) when the result is already premium, so racing
	// confirmations observe success without re-mutating. ErrNotFound
	// covers both an unknown result and a reference matching no intent.
	GrantPremium(ctx context.Context, resultID, providerRef string) (bool, error)

	CreateActor(ctx context.Context, a *model.Actor) error
	GetActor(ctx context.Context, id string) (*model.Actor, error)

	Ping(ctx context.Context) error
	Migrate(ctx context.Context) error
	Close() error
}
