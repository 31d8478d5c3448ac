// Package notify is the outbound notification collaborator: email delivery
// itself lives outside this service, so the shipped implementation records
// the events and hands off asynchronously.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/quadrant-labs/assess/internal/model"
)

// Notifier receives pipeline events. Implementations must not fail the
// pipeline: delivery problems are their own to log and absorb.
type Notifier interface {
	// Submitted fires once per completed assessment.
	Submitted(ctx context.Context, r *model.Result)
	// PremiumGranted fires exactly once per premium grant, from the
	// confirmation that won the race.
	PremiumGranted(ctx context.Context, r *model.Result)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Submitted(context.Context, *model.Result)      {}
func (Nop) PremiumGranted(context.Context, *model.Result) {}

// Logger records events through the global zap logger. It stands in for
// the external email service in deployments that have none wired.
type Logger struct{}

func (Logger) Submitted(_ context.Context, r *model.Result) {
	zap.L().Info("notify: assessment submitted",
		zap.String("result_id", r.ID),
		zap.String("profile", string(r.Profile)),
	)
}

func (Logger) PremiumGranted(_ context.Context, r *model.Result) {
	ref := ""
	if r.PremiumPaymentRef != nil {
		ref = *r.PremiumPaymentRef
	}
	zap.L().Info("notify: premium granted",
		zap.String("result_id", r.ID),
		zap.String("payment_ref", ref),
	)
}
