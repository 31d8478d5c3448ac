package model

import "time"

// IntentStatus is the lifecycle state of a payment intent.
type IntentStatus string

const (
	IntentPending   IntentStatus = "pending"
	IntentCompleted IntentStatus = "completed"
	IntentFailed    IntentStatus = "failed"
)

// PaymentIntent ties one payment-gateway transaction to one result. A
// result may accumulate several intents across retried unlock attempts,
// but at most one ever reaches completed. Status is the only mutable
// field.
type PaymentIntent struct {
	ID          string       `json:"id"`
	ResultID    string       `json:"result_id"`
	ProviderRef string       `json:"provider_ref"`
	AmountMinor int64        `json:"amount_minor"`
	Currency    string       `json:"currency"`
	Status      IntentStatus `json:"status"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}
