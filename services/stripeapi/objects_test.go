package stripeapi

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/MarcGrol/stripeshop/services/orders"
)

func TestCheckoutSession(t *testing.T) {

	t.Run("Snapshot of completed session", func(t *testing.T) {
		// given
		session := CheckoutSession{}
		err := json.Unmarshal([]byte(`{
			"id": "cs_test_1",
			"object": "checkout.session",
			"payment_status": "paid",
			"payment_intent": "pi_test_1",
			"invoice": {"id": "in_test_1", "object": "invoice"},
			"customer_details": {"email": "marc@example.com", "name": "Marc Grol", "phone": "+31612345678",
				"address": {"line1": "Billing street 1", "city": "Utrecht", "postal_code": "1234AB", "country": "NL"}},
			"collected_information": {"shipping_details": {"name": "Marc Grol",
				"address": {"line1": "My street 79", "city": "Utrecht", "postal_code": "1234AB", "country": "NL"}}},
			"amount_total": 10999,
			"amount_subtotal": 10000,
			"total_details": {"amount_shipping": 999, "amount_tax": 0, "amount_discount": 0},
			"currency": "usd",
			"metadata": {"items": "[{\"productId\":\"p1\",\"name\":\"Tennis racket\",\"price\":100,\"quantity\":1}]"}
		}`), &session)
		assert.NoError(t, err)

		// when
		snapshot, err := session.Snapshot()

		// then
		assert.NoError(t, err)
		assert.Equal(t, orders.CheckoutSnapshot{
			SessionID:            "cs_test_1",
			PaymentIntentID:      "pi_test_1",
			InvoiceID:            "in_test_1",
			SessionPaymentStatus: "paid",
			CustomerEmail:        "marc@example.com",
			CustomerName:         "Marc Grol",
			CustomerPhone:        "+31612345678",
			Items:                []orders.Item{{ProductID: "p1", Name: "Tennis racket", PriceInCents: 10000, Quantity: 1}},
			TotalAmountInCents:   10999,
			SubtotalInCents:      10000,
			ShippingCostInCents:  999,
			Currency:             "usd",
			ShippingName:         "Marc Grol",
			ShippingAddress:      orders.Address{Line1: "My street 79", City: "Utrecht", PostalCode: "1234AB", Country: "NL"},
			BillingAddress:       orders.Address{Line1: "Billing street 1", City: "Utrecht", PostalCode: "1234AB", Country: "NL"},
		}, snapshot)
	})

	t.Run("Snapshot with corrupt items", func(t *testing.T) {
		// given
		session := CheckoutSession{ID: "cs_test_1", Metadata: map[string]string{"items": "not json"}}

		// when
		snapshot, err := session.Snapshot()

		// then
		assert.Error(t, err)
		assert.Equal(t, "cs_test_1", snapshot.SessionID)
		assert.True(t, snapshot.ItemsUnavailable)
		assert.Empty(t, snapshot.Items)
	})

	t.Run("Expired session defaults currency", func(t *testing.T) {
		// when
		snapshot, _ := CheckoutSession{ID: "cs_test_1"}.ExpiredSnapshot()

		// then
		assert.Equal(t, "usd", snapshot.Currency)
	})
}

func TestPaymentIntent(t *testing.T) {

	t.Run("Receipt from expanded latest charge", func(t *testing.T) {
		// given
		pi := PaymentIntent{}
		err := json.Unmarshal([]byte(`{
			"id": "pi_test_1",
			"latest_charge": {"id": "ch_1", "object": "charge", "receipt_url": "https://pay.stripe.com/receipts/1"}
		}`), &pi)
		assert.NoError(t, err)

		// then
		assert.Equal(t, "ch_1", pi.LatestCharge.ID)
		assert.Equal(t, "https://pay.stripe.com/receipts/1", pi.ReceiptURL())
	})

	t.Run("Receipt from legacy charges list", func(t *testing.T) {
		// given
		pi := PaymentIntent{}
		err := json.Unmarshal([]byte(`{
			"id": "pi_test_1",
			"latest_charge": "ch_1",
			"charges": {"data": [{"id": "ch_1", "receipt_url": "https://pay.stripe.com/receipts/2"}]}
		}`), &pi)
		assert.NoError(t, err)

		// then
		assert.Nil(t, pi.LatestCharge.Object)
		assert.Equal(t, "https://pay.stripe.com/receipts/2", pi.ReceiptURL())
	})

	t.Run("Snapshot from metadata", func(t *testing.T) {
		// given
		pi := PaymentIntent{
			ID:               "pi_test_1",
			Amount:           2500,
			ReceiptEmail:     "receipt@example.com",
			LastPaymentError: &PaymentError{Code: "card_declined", Message: "Your card was declined."},
			Metadata:         map[string]string{"customerEmail": "marc@example.com"},
		}

		// when
		snapshot, err := pi.Snapshot()

		// then
		assert.NoError(t, err)
		assert.Equal(t, "marc@example.com", snapshot.CustomerEmail)
		assert.Equal(t, "usd", snapshot.Currency)
		assert.Equal(t, int64(2500), snapshot.TotalAmountInCents)
		assert.True(t, snapshot.ItemsUnavailable)
		assert.Equal(t, "Your card was declined.", pi.FailureReason())
	})
}

func TestCharge(t *testing.T) {
	// given
	charge := Charge{}
	err := json.Unmarshal([]byte(`{
		"id": "ch_1",
		"payment_intent": {"id": "pi_test_1", "object": "payment_intent"},
		"amount": 10000,
		"amount_refunded": 3000,
		"refunds": {"data": [
			{"id": "re_2", "amount": 1000, "status": "pending", "reason": null, "created": 1677542400},
			{"id": "re_1", "amount": 2000, "status": "succeeded", "reason": "duplicate", "created": 1677542339}
		]}
	}`), &charge)
	assert.NoError(t, err)

	// when
	entries := charge.LedgerEntries()

	// then
	assert.Equal(t, "pi_test_1", charge.PaymentIntent.String())
	assert.Equal(t, []orders.Refund{
		{RefundID: "re_1", AmountInCents: 2000, Reason: orders.ReasonDuplicate, Status: orders.RefundSucceeded, CreatedAt: time.Unix(1677542339, 0).UTC()},
		{RefundID: "re_2", AmountInCents: 1000, Reason: orders.ReasonOther, Status: orders.RefundPending, CreatedAt: time.Unix(1677542400, 0).UTC()},
	}, entries)
}

func TestInvoicePaymentIntent(t *testing.T) {
	// given
	invoice := Invoice{}
	err := json.Unmarshal([]byte(`{
		"id": "in_1",
		"payments": {"data": [{"payment": {"type": "payment_intent", "payment_intent": "pi_test_1"}}]}
	}`), &invoice)
	assert.NoError(t, err)

	// then
	assert.Equal(t, "pi_test_1", invoice.PaymentIntentID())
}
