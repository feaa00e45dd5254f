package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
)

// MetadataOrderID is the metadata key webhooks use to find the order.
const MetadataOrderID = "order_id"

// LineItem is one priced line on the hosted checkout page.
type LineItem struct {
	Name            string
	UnitAmountCents int64
	Quantity        int64
}

// CheckoutSessionInput describes the order being paid for.
type CheckoutSessionInput struct {
	OrderID        uuid.UUID
	BuyerID        uuid.UUID
	Lines          []LineItem
	IdempotencyKey string
}

// CheckoutSession is the subset of the provider session the order keeps.
type CheckoutSession struct {
	ID              string
	URL             string
	PaymentIntentID string
}

// CreateCheckoutSession opens a hosted payment-mode session tagged with the
// order id on both the session and its payment intent.
func (c *Client) CreateCheckoutSession(ctx context.Context, in CheckoutSessionInput) (*CheckoutSession, error) {
	if c == nil || c.newSession == nil {
		return nil, errors.New("stripe client not initialized")
	}
	params, err := c.checkoutParams(in)
	if err != nil {
		return nil, err
	}
	params.Context = ctx

	session, err := c.newSession(params)
	if err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	out := &CheckoutSession{ID: session.ID, URL: session.URL}
	if session.PaymentIntent != nil {
		out.PaymentIntentID = session.PaymentIntent.ID
	}
	return out, nil
}

func (c *Client) checkoutParams(in CheckoutSessionInput) (*stripe.CheckoutSessionParams, error) {
	if in.OrderID == uuid.Nil {
		return nil, errors.New("order id is required")
	}
	if len(in.Lines) == 0 {
		return nil, errors.New("at least one line item is required")
	}
	if c.successURL == "" || c.cancelURL == "" {
		return nil, errors.New("stripe success and cancel urls are required")
	}

	orderID := in.OrderID.String()
	metadata := map[string]string{MetadataOrderID: orderID}
	if in.BuyerID != uuid.Nil {
		metadata["buyer_id"] = in.BuyerID.String()
	}

	lines := make([]*stripe.CheckoutSessionLineItemParams, 0, len(in.Lines))
	for _, line := range in.Lines {
		if line.Quantity <= 0 || line.UnitAmountCents < 0 {
			return nil, fmt.Errorf("invalid line item %q", line.Name)
		}
		lines = append(lines, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(c.currency),
				UnitAmount: stripe.Int64(line.UnitAmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(line.Name),
				},
			},
			Quantity: stripe.Int64(line.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(orderID),
		SuccessURL:        stripe.String(withOrderID(c.successURL, orderID)),
		CancelURL:         stripe.String(withOrderID(c.cancelURL, orderID)),
		LineItems:         lines,
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: metadata,
		},
	}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if key := strings.TrimSpace(in.IdempotencyKey); key != "" {
		params.SetIdempotencyKey(key)
	}
	return params, nil
}

func withOrderID(url, orderID string) string {
	return strings.ReplaceAll(url, "{ORDER_ID}", orderID)
}
