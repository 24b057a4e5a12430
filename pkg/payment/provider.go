package payment

import "context"

// Instrument is the tokenized payment instrument collected from the
// buyer. SourceID is the one-time token from the provider's web SDK.
type Instrument struct {
	SourceID       string
	CardholderName string
}

// MethodRef identifies a stored payment method at the provider.
type MethodRef string

// Provider completes the payment-setup handshake: given the client
// secret from a payment intent and a tokenized instrument, it confirms
// the setup and returns a reusable method reference.
//
// Confirmation is single-shot. A failed confirmation is never retried
// automatically; the buyer re-enters their details.
type Provider interface {
	ConfirmSetup(ctx context.Context, clientSecret string, inst Instrument) (MethodRef, error)
}
