package store

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quadrant-labs/assess/internal/model"
	"github.com/quadrant-labs/assess/internal/resilience"
)

// Gateway wraps a Store with bounded-backoff retry for transient errors and
// a single circuit breaker shared by every operation. Exhausted retries and
// an open circuit both surface as ErrUnavailable so callers get one fast,
// recognizable "service degraded" signal instead of stacked timeouts.
type Gateway struct {
	inner   Store
	retry   resilience.RetryConfig
	circuit *resilience.Circuit
}

// NewGateway builds the resilient façade around inner.
func NewGateway(inner Store, retryCfg resilience.RetryConfig, circuitCfg resilience.CircuitConfig) *Gateway {
	if circuitCfg.ShouldTrip == nil {
		// Only infrastructure failures count toward opening the circuit;
		// not-found and constraint errors say nothing about store health.
		circuitCfg.ShouldTrip = resilience.IsTransient
	}
	if circuitCfg.OnStateChange == nil {
		circuitCfg.OnStateChange = func(from, to resilience.CircuitState) {
			zap.L().Warn("storage circuit state changed",
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		}
	}
	return &Gateway{
		inner:   inner,
		retry:   retryCfg,
		circuit: resilience.NewCircuit(circuitCfg),
	}
}

// CircuitState exposes the breaker position for health reporting.
func (g *Gateway) CircuitState() resilience.CircuitState {
	return g.circuit.State()
}

// call runs one store operation through the breaker on every retry attempt.
// An opened circuit is not transient, so the retry loop stops immediately
// once the breaker trips.
func call[T any](ctx context.Context, g *Gateway, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	retryCfg := g.retry
	if retryCfg.OnRetry == nil {
		retryCfg.OnRetry = resilience.RetryLogger(op)
	}

	val, err := resilience.RetryVal(ctx, retryCfg, func(ctx context.Context) (T, error) {
		return resilience.CircuitVal(ctx, g.circuit, fn)
	})
	if err != nil {
		var zero T
		return zero, classify(op, err)
	}
	return val, nil
}

// classify maps an exhausted or rejected call onto the caller-facing error
// taxonomy. Terminal errors (not-found, constraint violations) pass through
// unchanged.
func classify(op string, err error) error {
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return eris.Wrapf(ErrUnavailable, "%s: %v", op, err)
	}
	if resilience.IsTransient(err) {
		return eris.Wrapf(ErrUnavailable, "%s: retries exhausted: %v", op, err)
	}
	return err
}

func (g *Gateway) CreateResult(ctx context.Context, r *model.Result) error {
	_, err := call(ctx, g, "create result", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.CreateResult(ctx, r)
	})
	return err
}

func (g *Gateway) GetResult(ctx context.Context, id string) (*model.Result, error) {
	return call(ctx, g, "get result", func(ctx context.Context) (*model.Result, error) {
		return g.inner.GetResult(ctx, id)
	})
}

func (g *Gateway) LinkGuestResults(ctx context.Context, email, actorID string) (int, error) {
	return call(ctx, g, "link guest results", func(ctx context.Context) (int, error) {
		return g.inner.LinkGuestResults(ctx, email, actorID)
	})
}

func (g *Gateway) CreateIntent(ctx context.Context, intent *model.PaymentIntent) error {
	_, err := call(ctx, g, "create intent", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.CreateIntent(ctx, intent)
	})
	return err
}

func (g *Gateway) GetIntentByRef(ctx context.Context, resultID, providerRef string) (*model.PaymentIntent, error) {
	return call(ctx, g, "get intent", func(ctx context.Context) (*model.PaymentIntent, error) {
		return g.inner.GetIntentByRef(ctx, resultID, providerRef)
	})
}

func (g *Gateway) MarkIntentFailed(ctx context.Context, intentID string) error {
	_, err := call(ctx, g, "fail intent", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.MarkIntentFailed(ctx, intentID)
	})
	return err
}

func (g *Gateway) FailStaleIntents(ctx context.Context, cutoff time.Time) (int, error) {
	return call(ctx, g, "fail stale intents", func(ctx context.Context) (int, error) {
		return g.inner.FailStaleIntents(ctx, cutoff)
	})
}

// GrantPremium retries are safe: the grant is conditional inside the
// backend, so a retried attempt that finds the flag already set reports
// granted=false rather than double-applying.
func (g *Gateway) GrantPremium(ctx context.Context, resultID, providerRef string) (bool, error) {
	return call(ctx, g, "grant premium", func(ctx context.Context) (bool, error) {
		return g.inner.GrantPremium(ctx, resultID, providerRef)
	})
}

func (g *Gateway) CreateActor(ctx context.Context, a *model.Actor) error {
	_, err := call(ctx, g, "create actor", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.CreateActor(ctx, a)
	})
	return err
}

func (g *Gateway) GetActor(ctx context.Context, id string) (*model.Actor, error) {
	return call(ctx, g, "get actor", func(ctx context.Context) (*model.Actor, error) {
		return g.inner.GetActor(ctx, id)
	})
}

func (g *Gateway) Ping(ctx context.Context) error {
	_, err := call(ctx, g, "ping", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.Ping(ctx)
	})
	return err
}

func (g *Gateway) Migrate(ctx context.Context) error {
	_, err := call(ctx, g, "migrate", func(ctx context.Context) (struct{}, error) {
		return struct{}{}, g.inner.Migrate(ctx)
	})
	return err
}

func (g *Gateway) Close() error {
	return g.inner.Close()
}
