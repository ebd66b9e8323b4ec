package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionPayment(t *testing.T) {
	testCases := []struct {
		from    PaymentStatus
		to      PaymentStatus
		allowed bool
	}{
		{from: PaymentPending, to: PaymentPaid, allowed: true},
		{from: PaymentPending, to: PaymentExpired, allowed: true},
		{from: PaymentProcessing, to: PaymentPaid, allowed: true},
		{from: PaymentFailed, to: PaymentPaid, allowed: true},
		{from: PaymentPaid, to: PaymentPartiallyRefunded, allowed: true},
		{from: PaymentPartiallyRefunded, to: PaymentRefunded, allowed: true},
		{from: PaymentPaid, to: PaymentPaid, allowed: true},
		{from: PaymentPaid, to: PaymentFailed, allowed: false},
		{from: PaymentPaid, to: PaymentPending, allowed: false},
		{from: PaymentPaid, to: PaymentExpired, allowed: false},
		{from: PaymentRefunded, to: PaymentPaid, allowed: false},
		{from: PaymentPartiallyRefunded, to: PaymentPaid, allowed: false},
		{from: PaymentCancelled, to: PaymentPaid, allowed: false},
		{from: PaymentExpired, to: PaymentPaid, allowed: false},
	}
	for _, tc := range testCases {
		t.Run(string(tc.from)+"->"+string(tc.to), func(t *testing.T) {
			assert.Equal(t, tc.allowed, CanTransitionPayment(tc.from, tc.to))
		})
	}
}

func TestApply(t *testing.T) {

	t.Run("Failure after success is refused", func(t *testing.T) {
		// given
		order := Order{UID: "cs_1", Status: StatusProcessing, PaymentStatus: PaymentPaid}

		// when
		outcome := order.Apply(Update{
			Status:        StatusPending,
			PaymentStatus: PaymentFailed,
			FailureReason: "card_declined",
		})

		// then
		assert.False(t, outcome.Changed)
		assert.True(t, outcome.Blocked)
		assert.Equal(t, StatusProcessing, order.Status)
		assert.Equal(t, PaymentPaid, order.PaymentStatus)
		assert.Empty(t, order.FailureReason)
	})

	t.Run("Success after failure is accepted", func(t *testing.T) {
		// given
		order := Order{UID: "cs_1", Status: StatusPending, PaymentStatus: PaymentFailed, FailureReason: "card_declined"}

		// when
		outcome := order.Apply(Update{
			Status:        StatusProcessing,
			PaymentStatus: PaymentPaid,
			ReceiptURL:    "https://pay.stripe.com/receipts/1",
		})

		// then
		assert.True(t, outcome.Changed)
		assert.False(t, outcome.Blocked)
		assert.Equal(t, StatusProcessing, order.Status)
		assert.Equal(t, PaymentPaid, order.PaymentStatus)
		assert.Equal(t, "https://pay.stripe.com/receipts/1", order.ReceiptURL)
	})

	t.Run("Annotations are applied on refused transition", func(t *testing.T) {
		// given
		order := Order{UID: "cs_1", Status: StatusRefunded, PaymentStatus: PaymentRefunded}

		// when
		outcome := order.Apply(Update{
			PaymentStatus: PaymentPaid,
			ReceiptURL:    "https://pay.stripe.com/receipts/1",
		})

		// then
		assert.True(t, outcome.Changed)
		assert.True(t, outcome.Blocked)
		assert.Equal(t, PaymentRefunded, order.PaymentStatus)
		assert.Equal(t, "https://pay.stripe.com/receipts/1", order.ReceiptURL)
	})

	t.Run("Shipped order does not go back to processing", func(t *testing.T) {
		// given
		order := Order{UID: "cs_1", Status: StatusShipped, PaymentStatus: PaymentPaid}

		// when
		outcome := order.Apply(Update{Status: StatusProcessing, PaymentStatus: PaymentPaid})

		// then
		assert.False(t, outcome.Changed)
		assert.True(t, outcome.Blocked)
		assert.Equal(t, StatusShipped, order.Status)
	})

	t.Run("Dispute on refunded order", func(t *testing.T) {
		// given
		order := Order{UID: "cs_1", Status: StatusRefunded, PaymentStatus: PaymentRefunded}

		// when
		outcome := order.Apply(Update{Status: StatusDisputed, DisputeID: "dp_1", DisputeReason: "fraudulent"})

		// then
		assert.True(t, outcome.Changed)
		assert.Equal(t, StatusDisputed, order.Status)
		assert.Equal(t, "dp_1", order.DisputeID)
	})

	t.Run("Correlation ids are write-once", func(t *testing.T) {
		// given
		order := Order{UID: "cs_1", PaymentIntentID: "pi_1"}

		// when
		outcome := order.Apply(Update{PaymentIntentID: "pi_2", InvoiceID: "in_1"})

		// then
		assert.True(t, outcome.Changed)
		assert.Equal(t, "pi_1", order.PaymentIntentID)
		assert.Equal(t, "in_1", order.InvoiceID)
	})

	t.Run("Cancelled order reopens when paid", func(t *testing.T) {
		// given
		order := Order{UID: "cs_1", Status: StatusCancelled, PaymentStatus: PaymentFailed}

		// when
		outcome := order.Apply(Update{PaymentStatus: PaymentPaid, ReopenCancelled: true})

		// then
		assert.True(t, outcome.Changed)
		assert.Equal(t, StatusProcessing, order.Status)
		assert.Equal(t, PaymentPaid, order.PaymentStatus)
	})

	t.Run("Repeated update is no change", func(t *testing.T) {
		// given
		order := Order{UID: "cs_1", Status: StatusProcessing, PaymentStatus: PaymentPaid, ReceiptURL: "r"}

		// when
		outcome := order.Apply(Update{Status: StatusProcessing, PaymentStatus: PaymentPaid, ReceiptURL: "r"})

		// then
		assert.Equal(t, Outcome{}, outcome)
	})
}
