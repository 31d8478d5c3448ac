// Package unlock implements the premium-unlock state machine: intent
// creation and the single idempotent grant every confirmation path funnels
// through.
package unlock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/quadrant-labs/assess/internal/model"
	"github.com/quadrant-labs/assess/internal/notify"
	"github.com/quadrant-labs/assess/internal/store"
)

// ErrPaymentNotRecognized reports a confirmation reference that matches no
// intent for the result. Terminal; never grants premium.
var ErrPaymentNotRecognized = eris.New("payment not recognized")

// IntentInfo is what a caller needs to drive the gateway's client-side
// component, or — for an already-premium result — the existing grant.
type IntentInfo struct {
	IntentRef       string `json:"intent_reference"`
	ClientToken     string `json:"provider_client_token,omitempty"`
	AlreadyPremium  bool   `json:"already_premium"`
	ExistingPayment string `json:"existing_payment_ref,omitempty"`
}

// Service is the premium-unlock state machine. Every confirmation entry
// point — synchronous client call, gateway webhook, gated fallback — runs
// through Confirm; there is no second grant path.
type Service struct {
	store    store.Store
	provider Provider
	notifier notify.Notifier
	currency string
	now      func() time.Time
	newID    func() string
}

// New builds the service. notifier may be nil.
func New(st store.Store, provider Provider, notifier notify.Notifier, currency string) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if currency == "" {
		currency = "EUR"
	}
	return &Service{
		store:    st,
		provider: provider,
		notifier: notifier,
		currency: currency,
		now:      func() time.Time { return time.Now().UTC() },
		newID:    func() string { return uuid.New().String() },
	}
}

// CreateIntent starts an unlock attempt for a result. Calling it for an
// already-premium result is an idempotent no-op that reports the existing
// grant, since a client may retry after a slow response.
func (s *Service) CreateIntent(ctx context.Context, resultID string, amountMinor int64) (*IntentInfo, error) {
	r, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return nil, eris.Wrap(err, "unlock: load result")
	}
	if r.IsPremium {
		info := &IntentInfo{AlreadyPremium: true}
		if r.PremiumPaymentRef != nil {
			info.ExistingPayment = *r.PremiumPaymentRef
		}
		return info, nil
	}

	providerRef, clientToken, err := s.provider.CreateIntent(ctx, amountMinor, s.currency)
	if err != nil {
		return nil, eris.Wrap(err, "unlock: provider create intent")
	}

	now := s.now()
	intent := &model.PaymentIntent{
		ID:          s.newID(),
		ResultID:    resultID,
		ProviderRef: providerRef,
		AmountMinor: amountMinor,
		Currency:    s.currency,
		Status:      model.IntentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateIntent(ctx, intent); err != nil {
		return nil, eris.Wrap(err, "unlock: persist intent")
	}

	zap.L().Info("unlock intent created",
		zap.String("result_id", resultID),
		zap.String("provider_ref", providerRef),
		zap.Int64("amount_minor", amountMinor),
	)
	return &IntentInfo{IntentRef: providerRef, ClientToken: clientToken}, nil
}

// Confirm performs the at-most-once premium grant. An already-premium
// result returns as success without mutation, whichever entry point and
// whatever reference the caller presents — premium status, not the
// specific reference, is the caller-visible contract. An unknown reference
// on a non-premium result is ErrPaymentNotRecognized.
func (s *Service) Confirm(ctx context.Context, resultID, paymentRef string) (*model.Result, error) {
	granted, err := s.store.GrantPremium(ctx, resultID, paymentRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Either the result does not exist or the reference matches
			// no intent. Disambiguate by loading the result.
			r, getErr := s.store.GetResult(ctx, resultID)
			if getErr != nil {
				return nil, eris.Wrap(getErr, "unlock: load result")
			}
			if r.IsPremium {
				return r, nil
			}
			zap.L().Warn("unlock confirmation rejected",
				zap.String("result_id", resultID),
				zap.String("payment_ref", paymentRef),
			)
			return nil, eris.Wrapf(ErrPaymentNotRecognized, "reference %q", paymentRef)
		}
		return nil, eris.Wrap(err, "unlock: grant premium")
	}

	r, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return nil, eris.Wrap(err, "unlock: reload result")
	}

	if granted {
		s.notifier.PremiumGranted(ctx, r)
		zap.L().Info("premium granted",
			zap.String("result_id", resultID),
			zap.String("payment_ref", paymentRef),
		)
	}
	return r, nil
}

// ConfirmFallback is the manual path used when the gateway's interactive
// component cannot load client-side: it records a synthetic pending intent
// and immediately confirms it through the same idempotent grant. It carries
// no extra guarantees and cannot bypass the idempotency check.
func (s *Service) ConfirmFallback(ctx context.Context, resultID string, amountMinor int64) (*model.Result, error) {
	r, err := s.store.GetResult(ctx, resultID)
	if err != nil {
		return nil, eris.Wrap(err, "unlock: load result")
	}
	if r.IsPremium {
		return r, nil
	}

	now := s.now()
	syntheticRef := "manual_" + s.newID()
	intent := &model.PaymentIntent{
		ID:          s.newID(),
		ResultID:    resultID,
		ProviderRef: syntheticRef,
		AmountMinor: amountMinor,
		Currency:    s.currency,
		Status:      model.IntentPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateIntent(ctx, intent); err != nil {
		return nil, eris.Wrap(err, "unlock: persist fallback intent")
	}

	zap.L().Info("fallback confirmation",
		zap.String("result_id", resultID),
		zap.String("payment_ref", syntheticRef),
	)
	return s.Confirm(ctx, resultID, syntheticRef)
}

// Fail terminates a pending intent after a gateway decline. The result is
// never touched.
func (s *Service) Fail(ctx context.Context, resultID, paymentRef string) error {
	intent, err := s.store.GetIntentByRef(ctx, resultID, paymentRef)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return eris.Wrapf(ErrPaymentNotRecognized, "reference %q", paymentRef)
		}
		return eris.Wrap(err, "unlock: load intent")
	}
	if intent.Status != model.IntentPending {
		// Decline for a settled intent is stale gateway noise.
		return nil
	}
	if err := s.store.MarkIntentFailed(ctx, intent.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
		return eris.Wrap(err, "unlock: mark intent failed")
	}
	zap.L().Info("unlock intent failed",
		zap.String("result_id", resultID),
		zap.String("payment_ref", paymentRef),
	)
	return nil
}

// ReapStaleIntents fails pending intents older than ttl. Run periodically
// from serve.
func (s *Service) ReapStaleIntents(ctx context.Context, ttl time.Duration) (int, error) {
	n, err := s.store.FailStaleIntents(ctx, s.now().Add(-ttl))
	if err != nil {
		return 0, eris.Wrap(err, "unlock: reap stale intents")
	}
	if n > 0 {
		zap.L().Info("reaped stale payment intents", zap.Int("count", n))
	}
	return n, nil
}
