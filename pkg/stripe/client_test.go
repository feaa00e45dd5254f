package stripe

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/farmlane-backend/pkg/config"
)

type fakeSessions struct {
	params *stripe.CheckoutSessionParams
	err    error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{
		ID:            "cs_test_1",
		URL:           "https://checkout.stripe.test/cs_test_1",
		PaymentIntent: &stripe.PaymentIntent{ID: "pi_test_1"},
	}, nil
}

type fakeRefunds struct {
	params *stripe.RefundParams
}

func (f *fakeRefunds) New(params *stripe.RefundParams) (*stripe.Refund, error) {
	f.params = params
	return &stripe.Refund{ID: "re_1", Status: stripe.RefundStatusSucceeded, Amount: *params.Amount}, nil
}

func newTestClient(sessions sessionCreator, refunds refundCreator) *Client {
	return &Client{
		newSession: sessions,
		newRefund:  refunds,
		currency:   "usd",
		successURL: "https://farmlane.test/orders/{ORDER_ID}/paid",
		cancelURL:  "https://farmlane.test/orders/{ORDER_ID}",
	}
}

func TestNewClientValidatesKeysAgainstEnvironment(t *testing.T) {
	ctx := context.Background()

	_, err := NewClient(ctx, config.StripeConfig{Secret: "whsec"}, nil)
	require.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_123"}, nil)
	require.ErrorIs(t, err, errSecretRequired)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_live_123", Secret: "whsec", Env: "test"}, nil)
	require.ErrorContains(t, err, "sk_test_ or rk_test_")

	_, err = NewClient(ctx, config.StripeConfig{Env: "live"}, nil)
	require.ErrorIs(t, err, errAPIKeyRequired)
	require.ErrorIs(t, err, errSecretRequired)

	client, err := NewClient(ctx, config.StripeConfig{APIKey: "rk_live_9", Secret: "whsec", Env: " LIVE "}, nil)
	require.NoError(t, err)
	assert.Equal(t, "live", client.Environment())
	assert.Equal(t, "usd", client.currency)

	_, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec", Env: "staging"}, nil)
	require.ErrorIs(t, err, errInvalidStripeEnv)

	client, err = NewClient(ctx, config.StripeConfig{APIKey: "sk_test_123", Secret: " whsec ", Currency: "EUR"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "test", client.Environment())
	assert.Equal(t, "whsec", client.SigningSecret())
	assert.Equal(t, "eur", client.currency)
}

func TestCreateCheckoutSessionTagsOrder(t *testing.T) {
	sessions := &fakeSessions{}
	client := newTestClient(sessions.New, nil)
	orderID := uuid.New()

	session, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionInput{
		OrderID: orderID,
		BuyerID: uuid.New(),
		Lines: []LineItem{
			{Name: "Honeycrisp apples", UnitAmountCents: 500, Quantity: 4},
			{Name: "Platform fee", UnitAmountCents: 160, Quantity: 1},
		},
		IdempotencyKey: "checkout-" + orderID.String(),
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", session.ID)
	assert.Equal(t, "pi_test_1", session.PaymentIntentID)

	params := sessions.params
	require.NotNil(t, params)
	assert.Equal(t, orderID.String(), params.Metadata[MetadataOrderID])
	assert.Equal(t, orderID.String(), params.PaymentIntentData.Metadata[MetadataOrderID])
	assert.Equal(t, orderID.String(), *params.ClientReferenceID)
	assert.Equal(t, "https://farmlane.test/orders/"+orderID.String()+"/paid", *params.SuccessURL)
	require.Len(t, params.LineItems, 2)
	assert.Equal(t, int64(500), *params.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, int64(4), *params.LineItems[0].Quantity)
	assert.Equal(t, "usd", *params.LineItems[1].PriceData.Currency)
	assert.Equal(t, "checkout-"+orderID.String(), *params.IdempotencyKey)
}

func TestCreateCheckoutSessionRejectsBadInput(t *testing.T) {
	client := newTestClient((&fakeSessions{}).New, nil)
	ctx := context.Background()

	_, err := client.CreateCheckoutSession(ctx, CheckoutSessionInput{Lines: []LineItem{{Name: "x", Quantity: 1}}})
	require.Error(t, err)

	_, err = client.CreateCheckoutSession(ctx, CheckoutSessionInput{OrderID: uuid.New()})
	require.Error(t, err)

	_, err = client.CreateCheckoutSession(ctx, CheckoutSessionInput{OrderID: uuid.New(), Lines: []LineItem{{Name: "x", Quantity: 0}}})
	require.Error(t, err)

	client.successURL = ""
	_, err = client.CreateCheckoutSession(ctx, CheckoutSessionInput{OrderID: uuid.New(), Lines: []LineItem{{Name: "x", Quantity: 1}}})
	require.Error(t, err)
}

func TestCreateCheckoutSessionWrapsProviderErrors(t *testing.T) {
	client := newTestClient((&fakeSessions{err: errors.New("card_declined")}).New, nil)
	_, err := client.CreateCheckoutSession(context.Background(), CheckoutSessionInput{
		OrderID: uuid.New(),
		Lines:   []LineItem{{Name: "x", UnitAmountCents: 1, Quantity: 1}},
	})
	require.ErrorContains(t, err, "card_declined")
}

func TestIssueRefund(t *testing.T) {
	refunds := &fakeRefunds{}
	client := newTestClient(nil, refunds.New)
	orderID := uuid.New()

	refund, err := client.IssueRefund(context.Background(), RefundInput{
		PaymentIntentID: "pi_1",
		AmountCents:     750,
		OrderID:         orderID,
		Reason:          "bruised fruit",
	})
	require.NoError(t, err)
	assert.Equal(t, "re_1", refund.ID)
	assert.Equal(t, int64(750), refund.AmountCents)
	assert.Equal(t, "pi_1", *refunds.params.PaymentIntent)
	assert.Equal(t, orderID.String(), refunds.params.Metadata[MetadataOrderID])

	_, err = client.IssueRefund(context.Background(), RefundInput{PaymentIntentID: "pi_1"})
	require.Error(t, err)
	_, err = client.IssueRefund(context.Background(), RefundInput{AmountCents: 1})
	require.Error(t, err)
}
