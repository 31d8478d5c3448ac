package model

import "time"

// GuestContact identifies an unauthenticated submitter. Email is the key
// used later by identity linking; name and phone are display data.
type GuestContact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone,omitempty"`
}

// Result is the durable record of one completed assessment.
//
// IsPremium starts false and transitions to true at most once, and
// PremiumPaymentRef is set exactly when IsPremium is true. Only the store's
// grant operation may flip these fields; everything else treats a Result as
// immutable after creation (identity linking may fill in ActorID on guest
// rows).
type Result struct {
	ID      string  `json:"id"`
	ActorID *string `json:"actor_id,omitempty"`

	GuestName  string `json:"guest_name,omitempty"`
	GuestEmail string `json:"guest_email,omitempty"`
	GuestPhone string `json:"guest_phone,omitempty"`

	Answers []Answer    `json:"answers"`
	Raw     ScoreVector `json:"raw"`
	Scores  ScoreVector `json:"scores"`
	Profile Factor      `json:"profile"`

	IsPremium         bool    `json:"is_premium"`
	PremiumPaymentRef *string `json:"premium_payment_ref,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// OwnerDisplayName returns the guest name for guest results. Identified
// results resolve the display name through the actor record instead.
func (r *Result) OwnerDisplayName() string {
	if r.ActorID == nil {
		return r.GuestName
	}
	return ""
}

// Actor is an identified, registered user. An actor owns zero or more
// results, established at submission time or retroactively via linking.
type Actor struct {
	ID          string    `json:"id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	CreatedAt   time.Time `json:"created_at"`
}
