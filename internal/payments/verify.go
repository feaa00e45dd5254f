package payments

import (
	"errors"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"
)

// SignatureVerifier checks the Stripe-Signature header with the endpoint secret.
type SignatureVerifier struct {
	secret string
}

func NewSignatureVerifier(secret string) (*SignatureVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("webhook signing secret required")
	}
	return &SignatureVerifier{secret: secret}, nil
}

// Verify rejects bodies whose signature or timestamp does not check out. The
// event API version is not pinned; only the fields the reconciler reads matter.
func (v *SignatureVerifier) Verify(payload []byte, signatureHeader string) (stripe.Event, error) {
	if strings.TrimSpace(signatureHeader) == "" {
		return stripe.Event{}, errors.New("signature header missing")
	}
	return webhook.ConstructEventWithOptions(payload, signatureHeader, v.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
}
