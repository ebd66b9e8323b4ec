package checkoutstripe

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/services/stripeapi"
)

//go:generate mockgen -source=payer.go -package checkoutstripe -destination payer_mock.go Payer
type Payer interface {
	CreateCheckoutSession(c context.Context, params stripe.CheckoutSessionParams) (stripe.CheckoutSession, error)
	GetCheckoutSession(c context.Context, sessionID string) (stripeapi.CheckoutSession, error)
	FindOrCreateCustomer(c context.Context, email string) (string, error)
	CreatePaymentIntent(c context.Context, params stripe.PaymentIntentParams) (stripe.PaymentIntent, error)
	CancelPaymentIntent(c context.Context, paymentIntentID string) (stripe.PaymentIntent, error)
	GetPaymentIntent(c context.Context, paymentIntentID string) (stripeapi.PaymentIntent, error)
}

type stripePayer struct {
	client *client.API
}

func NewPayer(client *client.API) Payer {
	return &stripePayer{
		client: client,
	}
}

func (p *stripePayer) CreateCheckoutSession(c context.Context, params stripe.CheckoutSessionParams) (stripe.CheckoutSession, error) {
	params.Context = c
	session, err := p.client.CheckoutSessions.New(&params)
	if err != nil {
		return stripe.CheckoutSession{}, stripeapi.ProcessorError(err, "error creating checkout session")
	}

	return *session, nil
}

// GetCheckoutSession decodes the raw response into the same shape webhook payloads use, so
// that both paths share one snapshot conversion.
func (p *stripePayer) GetCheckoutSession(c context.Context, sessionID string) (stripeapi.CheckoutSession, error) {
	session, err := p.client.CheckoutSessions.Get(sessionID, &stripe.CheckoutSessionParams{
		Params: stripe.Params{Context: c},
	})
	if err != nil {
		return stripeapi.CheckoutSession{}, stripeapi.ProcessorError(err, "error fetching checkout session %s", sessionID)
	}

	result := stripeapi.CheckoutSession{}
	if session.LastResponse == nil {
		return result, myerrors.NewBadGatewayError(fmt.Errorf("empty response fetching checkout session %s", sessionID))
	}
	err = json.Unmarshal(session.LastResponse.RawJSON, &result)
	if err != nil {
		return result, myerrors.NewBadGatewayError(fmt.Errorf("error decoding checkout session %s: %s", sessionID, err))
	}

	return result, nil
}

// FindOrCreateCustomer returns the id of the customer registered with email, creating one
// when there is none yet.
func (p *stripePayer) FindOrCreateCustomer(c context.Context, email string) (string, error) {
	params := &stripe.CustomerListParams{
		Email: stripe.String(email),
	}
	params.Context = c
	params.Limit = stripe.Int64(1)

	iter := p.client.Customers.List(params)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", stripeapi.ProcessorError(err, "error looking up customer")
	}

	customer, err := p.client.Customers.New(&stripe.CustomerParams{
		Params: stripe.Params{Context: c},
		Email:  stripe.String(email),
	})
	if err != nil {
		return "", stripeapi.ProcessorError(err, "error creating customer")
	}

	return customer.ID, nil
}

func (p *stripePayer) CreatePaymentIntent(c context.Context, params stripe.PaymentIntentParams) (stripe.PaymentIntent, error) {
	params.Context = c
	intent, err := p.client.PaymentIntents.New(&params)
	if err != nil {
		return stripe.PaymentIntent{}, stripeapi.ProcessorError(err, "error creating payment intent")
	}

	return *intent, nil
}

func (p *stripePayer) CancelPaymentIntent(c context.Context, paymentIntentID string) (stripe.PaymentIntent, error) {
	intent, err := p.client.PaymentIntents.Cancel(paymentIntentID, &stripe.PaymentIntentCancelParams{
		Params: stripe.Params{Context: c},
	})
	if err != nil {
		return stripe.PaymentIntent{}, stripeapi.ProcessorError(err, "error cancelling payment intent %s", paymentIntentID)
	}

	return *intent, nil
}

// GetPaymentIntent fetches the intent with its latest charge expanded, decoded into the shape
// webhook payloads use.
func (p *stripePayer) GetPaymentIntent(c context.Context, paymentIntentID string) (stripeapi.PaymentIntent, error) {
	params := &stripe.PaymentIntentParams{
		Params: stripe.Params{Context: c},
	}
	params.AddExpand("latest_charge")

	intent, err := p.client.PaymentIntents.Get(paymentIntentID, params)
	if err != nil {
		return stripeapi.PaymentIntent{}, stripeapi.ProcessorError(err, "error fetching payment intent %s", paymentIntentID)
	}

	result := stripeapi.PaymentIntent{}
	if intent.LastResponse == nil {
		return result, myerrors.NewBadGatewayError(fmt.Errorf("empty response fetching payment intent %s", paymentIntentID))
	}
	err = json.Unmarshal(intent.LastResponse.RawJSON, &result)
	if err != nil {
		return result, myerrors.NewBadGatewayError(fmt.Errorf("error decoding payment intent %s: %s", paymentIntentID, err))
	}

	return result, nil
}
