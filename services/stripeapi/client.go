package stripeapi

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/client"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
)

// NewClient returns an api client bound to secretKey. Requests that fail on the network or
// with a retryable status are retried up to maxNetworkRetries times.
func NewClient(secretKey string, maxNetworkRetries int64) *client.API {
	backend := func(backendType stripe.SupportedBackend) stripe.Backend {
		return stripe.GetBackendWithConfig(backendType, &stripe.BackendConfig{
			MaxNetworkRetries: stripe.Int64(maxNetworkRetries),
		})
	}
	return client.New(secretKey, &stripe.Backends{
		API:     backend(stripe.APIBackend),
		Connect: backend(stripe.ConnectBackend),
		Uploads: backend(stripe.UploadsBackend),
	})
}

// ProcessorError maps a failed api call onto the error returned to our callers: objects the
// processor does not know become 404, everything else is a failing upstream.
func ProcessorError(err error, format string, args ...any) error {
	message := fmt.Sprintf(format, args...)

	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return myerrors.NewBadGatewayError(fmt.Errorf("%s: %s", message, err))
	}

	if stripeErr.HTTPStatusCode == http.StatusNotFound {
		return myerrors.NewNotFoundError(fmt.Errorf("%s: %s", message, stripeErr.Msg)).
			WithDetail("processorStatus", stripeErr.HTTPStatusCode)
	}
	return myerrors.NewBadGatewayError(fmt.Errorf("%s: %s", message, stripeErr.Msg)).
		WithDetail("processorCode", string(stripeErr.Code)).
		WithDetail("processorStatus", stripeErr.HTTPStatusCode).
		WithDetail("processorRequestId", stripeErr.RequestID)
}

// IsRejected reports whether the processor answered a request with a client error, which
// means the request had no effect. Network failures, server errors and idempotency
// conflicts leave the outcome unknown.
func IsRejected(err error) bool {
	status, ok := myerrors.GetDetails(err)["processorStatus"].(int)
	if !ok {
		return false
	}
	return status >= 400 && status < 500 && status != http.StatusConflict
}

// FromRefund converts the typed sdk refund into the wire shape shared with webhook payloads.
func FromRefund(r *stripe.Refund) Refund {
	refund := Refund{
		ID:       r.ID,
		Object:   r.Object,
		Amount:   r.Amount,
		Currency: string(r.Currency),
		Reason:   string(r.Reason),
		Status:   string(r.Status),
		Created:  r.Created,
		Metadata: r.Metadata,
	}
	if r.Charge != nil {
		refund.Charge = ExpandableID(r.Charge.ID)
	}
	if r.PaymentIntent != nil {
		refund.PaymentIntent = ExpandableID(r.PaymentIntent.ID)
	}
	return refund
}
