package stripewebhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v74/webhook"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
)

// Event is a verified webhook delivery. Object holds the raw data.object payload.
type Event struct {
	ID         string
	Type       EventType
	APIVersion string
	Created    time.Time
	Object     json.RawMessage
}

// gate verifies that a delivery was signed with the endpoint secret before anything trusts it.
type gate struct {
	secret string
}

func newGate(secret string) gate {
	return gate{
		secret: secret,
	}
}

func (g gate) verify(payload []byte, signatureHeader string) (Event, error) {
	if signatureHeader == "" {
		return Event{}, myerrors.NewInvalidInputErrorf("Webhook Error: missing Stripe-Signature header")
	}

	event, err := webhook.ConstructEventWithOptions(payload, signatureHeader, g.secret, webhook.ConstructEventOptions{
		Tolerance:                webhook.DefaultTolerance,
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, myerrors.NewInvalidInputError(fmt.Errorf("Webhook Error: %s", err))
	}
	if event.ID == "" || event.Data == nil {
		return Event{}, myerrors.NewInvalidInputErrorf("Webhook Error: event without id or data")
	}

	return Event{
		ID:         event.ID,
		Type:       EventType(event.Type),
		APIVersion: event.APIVersion,
		Created:    time.Unix(event.Created, 0).UTC(),
		Object:     event.Data.Raw,
	}, nil
}
