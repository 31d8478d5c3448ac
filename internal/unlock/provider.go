package unlock

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Provider is the payment-gateway SDK surface the unlock pipeline depends
// on. Card handling, 3-D-Secure and the rest of the gateway transport live
// behind it.
type Provider interface {
	// CreateIntent registers a payment with the gateway and returns the
	// gateway's transaction reference plus the client token the browser
	// needs to drive the interactive payment component.
	CreateIntent(ctx context.Context, amountMinor int64, currency string) (providerRef, clientToken string, err error)
}

// SandboxProvider issues locally generated references without contacting
// any gateway. It backs development, tests and the fallback confirmation
// path.
type SandboxProvider struct{}

func (SandboxProvider) CreateIntent(_ context.Context, amountMinor int64, currency string) (string, string, error) {
	ref := "sandbox_" + uuid.New().String()
	token := fmt.Sprintf("tok_%s_%d_%s", currency, amountMinor, uuid.New().String()[:8])
	return ref, token, nil
}
