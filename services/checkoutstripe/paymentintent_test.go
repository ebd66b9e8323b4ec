package checkoutstripe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stripe/stripe-go/v74"
	"go.uber.org/mock/gomock"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/myhttp"
	"github.com/MarcGrol/stripeshop/lib/mytime"
	"github.com/MarcGrol/stripeshop/services/stripeapi"
)

func TestPaymentIntent(t *testing.T) {

	t.Run("Create payment intent for customer", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		_, router, _, payer := setup(t, ctrl)

		// given
		payer.EXPECT().FindOrCreateCustomer(gomock.Any(), "marc@example.com").Return("cus_1", nil)
		payer.EXPECT().CreatePaymentIntent(gomock.Any(), gomock.Any()).DoAndReturn(func(c context.Context, params stripe.PaymentIntentParams) (stripe.PaymentIntent, error) {
			assert.Equal(t, int64(4999), *params.Amount)
			assert.Equal(t, "usd", *params.Currency)
			assert.Equal(t, "cus_1", *params.Customer)
			assert.True(t, *params.AutomaticPaymentMethods.Enabled)
			assert.Equal(t, map[string]string{"orderRef": "A1", "customerEmail": "marc@example.com"}, params.Metadata)
			return stripe.PaymentIntent{ID: "pi_test_1", ClientSecret: "pi_test_1_secret_x"}, nil
		})

		// when
		response := postPaymentIntent(t, router, "/api/checkout/create-payment-intent", `{"amount":49.99,"customerEmail":"marc@example.com","metadata":{"orderRef":"A1"}}`, "10.0.0.1:1")

		// then
		assert.Equal(t, 200, response.Code)
		resp := createPaymentIntentResponse{}
		err := json.Unmarshal(response.Body.Bytes(), &resp)
		assert.NoError(t, err)
		assert.Equal(t, createPaymentIntentResponse{
			Success:         true,
			ClientSecret:    "pi_test_1_secret_x",
			PaymentIntentID: "pi_test_1",
		}, resp)
	})

	t.Run("Anonymous payment intent", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		_, router, _, payer := setup(t, ctrl)

		// given
		payer.EXPECT().CreatePaymentIntent(gomock.Any(), gomock.Any()).DoAndReturn(func(c context.Context, params stripe.PaymentIntentParams) (stripe.PaymentIntent, error) {
			assert.Nil(t, params.Customer)
			return stripe.PaymentIntent{ID: "pi_test_2", ClientSecret: "pi_test_2_secret_x"}, nil
		})

		// when
		response := postPaymentIntent(t, router, "/api/checkout/create-payment-intent", `{"amount":10}`, "10.0.0.1:1")

		// then
		assert.Equal(t, 200, response.Code)
	})

	t.Run("Invalid payment intent requests never reach the processor", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		_, router, _, _ := setup(t, ctrl)

		for i, tc := range []struct {
			name    string
			body    string
			message string
		}{
			{name: "malformed", body: `{"amount":`, message: "error parsing request"},
			{name: "missing amount", body: `{}`, message: "Valid amount is required"},
			{name: "negative amount", body: `{"amount":-5}`, message: "Valid amount is required"},
			{name: "amount beyond int64", body: `{"amount":1e17}`, message: "Valid amount is required"},
			{name: "below minimum", body: `{"amount":0.10}`, message: "Amount must be at least $0.50"},
			{name: "reserved metadata", body: `{"amount":10,"metadata":{"orderId":"cs_test_1"}}`, message: `Metadata key "orderId" is reserved`},
			{name: "items metadata", body: `{"amount":10,"metadata":{"items":"[]"}}`, message: `Metadata key "items" is reserved`},
		} {
			// when
			response := postPaymentIntent(t, router, "/api/checkout/create-payment-intent", tc.body, fmt.Sprintf("10.0.1.%d:1", i))

			// then
			assert.Equal(t, 400, response.Code, tc.name)
			errResp := myhttp.ErrorResponse{}
			err := json.Unmarshal(response.Body.Bytes(), &errResp)
			assert.NoError(t, err, tc.name)
			assert.Contains(t, errResp.Message, tc.message, tc.name)
		}
	})

	t.Run("Payment intent creation is rate limited", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		_, router, _, _ := setup(t, ctrl)

		// when
		first := postPaymentIntent(t, router, "/api/checkout/create-payment-intent", `{}`, "10.0.0.1:1")
		second := postPaymentIntent(t, router, "/api/checkout/create-payment-intent", `{}`, "10.0.0.1:2")
		third := postPaymentIntent(t, router, "/api/checkout/create-payment-intent", `{}`, "10.0.0.1:3")

		// then
		assert.Equal(t, 400, first.Code)
		assert.Equal(t, 400, second.Code)
		assert.Equal(t, 429, third.Code)
	})

	t.Run("Cancel payment intent", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		_, router, _, payer := setup(t, ctrl)

		// given
		payer.EXPECT().CancelPaymentIntent(gomock.Any(), "pi_test_1").Return(stripe.PaymentIntent{
			ID:     "pi_test_1",
			Status: stripe.PaymentIntentStatusCanceled,
		}, nil)

		// when
		response := postPaymentIntent(t, router, "/api/checkout/cancel-payment-intent", `{"paymentIntentId":"pi_test_1"}`, "10.0.0.1:1")

		// then
		assert.Equal(t, 200, response.Code)
		resp := struct {
			Success bool          `json:"success"`
			Message string        `json:"message"`
			Data    cancelledView `json:"data"`
		}{}
		err := json.Unmarshal(response.Body.Bytes(), &resp)
		assert.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, "Payment intent cancelled", resp.Message)
		assert.Equal(t, cancelledView{ID: "pi_test_1", Status: "canceled"}, resp.Data)
	})

	t.Run("Cancel requires a payment intent id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		_, router, _, _ := setup(t, ctrl)

		// when
		missing := postPaymentIntent(t, router, "/api/checkout/cancel-payment-intent", `{}`, "10.0.0.1:1")
		invalid := postPaymentIntent(t, router, "/api/checkout/cancel-payment-intent", `{"paymentIntentId":"cs_test_1"}`, "10.0.0.1:1")

		// then
		assert.Equal(t, 400, missing.Code)
		assert.Contains(t, missing.Body.String(), "Payment Intent ID is required")
		assert.Equal(t, 400, invalid.Code)
	})

	t.Run("Payment details", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		_, router, _, payer := setup(t, ctrl)

		// given
		payer.EXPECT().GetPaymentIntent(gomock.Any(), "pi_test_1").Return(stripeapi.PaymentIntent{
			ID:                 "pi_test_1",
			Status:             "succeeded",
			Amount:             4999,
			Currency:           "usd",
			Created:            mytime.ExampleTime.Unix(),
			PaymentMethodTypes: []string{"card"},
			LatestCharge: stripeapi.Expandable[stripeapi.Charge]{
				ID:     "ch_test_1",
				Object: &stripeapi.Charge{ID: "ch_test_1", ReceiptURL: "https://pay.stripe.com/receipts/ch_test_1"},
			},
		}, nil)

		// when
		response := get(t, router, "/api/checkout/payment/pi_test_1")

		// then
		assert.Equal(t, 200, response.Code)
		resp := struct {
			Data paymentView `json:"data"`
		}{}
		err := json.Unmarshal(response.Body.Bytes(), &resp)
		assert.NoError(t, err)
		assert.Equal(t, paymentView{
			ID:            "pi_test_1",
			Amount:        49.99,
			Status:        "succeeded",
			Currency:      "usd",
			PaymentMethod: []string{"card"},
			ChargeID:      "ch_test_1",
			ReceiptURL:    "https://pay.stripe.com/receipts/ch_test_1",
			CreatedAt:     mytime.ExampleTime.UTC().Truncate(time.Second),
		}, resp.Data)
	})

	t.Run("Payment details of unknown intent", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		_, router, _, payer := setup(t, ctrl)

		// given
		payer.EXPECT().GetPaymentIntent(gomock.Any(), "pi_unknown").Return(stripeapi.PaymentIntent{}, myerrors.NewNotFoundError(fmt.Errorf("no such payment_intent")))

		// when
		response := get(t, router, "/api/checkout/payment/pi_unknown")

		// then
		assert.Equal(t, 404, response.Code)
	})
}

func postPaymentIntent(t *testing.T, router *mux.Router, path string, body string, remoteAddr string) *httptest.ResponseRecorder {
	request, err := http.NewRequest(http.MethodPost, path, strings.NewReader(body))
	assert.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")
	request.RemoteAddr = remoteAddr
	response := httptest.NewRecorder()
	router.ServeHTTP(response, request)
	return response
}
