package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

// RefundInput is a refund against a captured payment intent.
type RefundInput struct {
	PaymentIntentID string
	AmountCents     int64
	OrderID         uuid.UUID
	Reason          string
	IdempotencyKey  string
}

// Refund is the provider's acknowledgement of a refund request.
type Refund struct {
	ID          string
	Status      string
	AmountCents int64
}

// IssueRefund asks the provider to return AmountCents to the buyer.
func (c *Client) IssueRefund(ctx context.Context, in RefundInput) (*Refund, error) {
	if c == nil || c.newRefund == nil {
		return nil, errors.New("stripe client not initialized")
	}
	if strings.TrimSpace(in.PaymentIntentID) == "" {
		return nil, errors.New("payment intent id is required")
	}
	if in.AmountCents <= 0 {
		return nil, errors.New("refund amount must be positive")
	}

	params := &stripe.RefundParams{
		PaymentIntent: stripe.String(in.PaymentIntentID),
		Amount:        stripe.Int64(in.AmountCents),
		Reason:        stripe.String(string(stripe.RefundReasonRequestedByCustomer)),
	}
	params.Context = ctx
	if in.OrderID != uuid.Nil {
		params.AddMetadata(MetadataOrderID, in.OrderID.String())
	}
	if reason := strings.TrimSpace(in.Reason); reason != "" {
		params.AddMetadata("reason", reason)
	}
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}

	refund, err := c.newRefund(params)
	if err != nil {
		return nil, fmt.Errorf("create refund: %w", err)
	}
	return &Refund{ID: refund.ID, Status: string(refund.Status), AmountCents: refund.Amount}, nil
}
