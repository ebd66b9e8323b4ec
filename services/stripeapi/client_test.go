package stripeapi

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v74"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
)

func TestProcessorError(t *testing.T) {
	testCases := []struct {
		name     string
		err      error
		status   int
		rejected bool
	}{
		{name: "Invalid request", err: &stripe.Error{HTTPStatusCode: 400, Msg: "amount too large"}, status: 502, rejected: true},
		{name: "Unknown object", err: &stripe.Error{HTTPStatusCode: 404, Msg: "no such payment_intent"}, status: 404, rejected: true},
		{name: "Rate limited", err: &stripe.Error{HTTPStatusCode: 429, Msg: "too many requests"}, status: 502, rejected: true},
		{name: "Idempotency conflict", err: &stripe.Error{HTTPStatusCode: 409, Msg: "key in use"}, status: 502, rejected: false},
		{name: "Server error", err: &stripe.Error{HTTPStatusCode: 500, Msg: "internal"}, status: 502, rejected: false},
		{name: "Network failure", err: fmt.Errorf("i/o timeout"), status: 502, rejected: false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// when
			err := ProcessorError(tc.err, "error creating refund for %s", "pi_1")

			// then
			assert.Equal(t, tc.status, myerrors.GetHTTPStatus(err))
			assert.Equal(t, tc.rejected, IsRejected(err))
			assert.Contains(t, err.Error(), "error creating refund for pi_1")
		})
	}
}
