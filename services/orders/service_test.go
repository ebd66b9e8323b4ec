package orders

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/mock/gomock"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/mypublisher"
	"github.com/MarcGrol/stripeshop/lib/mystore"
	"github.com/MarcGrol/stripeshop/lib/mytime"
	"github.com/MarcGrol/stripeshop/services/orders/orderevents"
)

var exampleSnapshot = CheckoutSnapshot{
	SessionID:            "cs_test_1",
	PaymentIntentID:      "pi_test_1",
	SessionPaymentStatus: "paid",
	CustomerEmail:        "marc@example.com",
	CustomerName:         "Marc Grol",
	Items:                []Item{{ProductID: "p1", Name: "Tennis racket", PriceInCents: 10000, Quantity: 1}},
	TotalAmountInCents:   10999,
	SubtotalInCents:      10000,
	ShippingCostInCents:  999,
	Currency:             "usd",
	ShippingAddress:      Address{Line1: "My street 79", City: "Utrecht", PostalCode: "1234AB", Country: "NL"},
}

var completedCause = Cause{ID: "evt_1", Type: "checkout.session.completed"}

func TestMaterialize(t *testing.T) {

	t.Run("Creates order once", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, sut, nower, publisher := setupService(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).Times(2)
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, orderevents.OrderCreated{
			OrderUID:      "cs_test_1",
			SessionID:     "cs_test_1",
			Status:        "processing",
			PaymentStatus: "paid",
			AmountInCents: 10999,
			Currency:      "usd",
			Cause:         completedCause,
		}).Return(nil)

		// when
		order, created, err := sut.Materialize(c, exampleSnapshot, completedCause)

		// then
		assert.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, StatusProcessing, order.Status)
		assert.Equal(t, PaymentPaid, order.PaymentStatus)

		// when
		again, created, err := sut.Materialize(c, exampleSnapshot, Cause{ID: "evt_2", Type: "checkout.session.completed"})

		// then
		assert.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, order.UID, again.UID)
		assert.Equal(t, "evt_1", again.LastEventID)

		all, err := sut.List(c)
		assert.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("Concurrent deliveries create one order", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, sut, nower, publisher := setupService(t, ctrl)

		// given
		const deliveries = 10
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, gomock.AssignableToTypeOf(orderevents.OrderCreated{})).Return(nil).Times(1)

		// when
		created := atomic.Int64{}
		wg := sync.WaitGroup{}
		for i := 0; i < deliveries; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, isNew, err := sut.Materialize(c, exampleSnapshot, Cause{ID: fmt.Sprintf("evt_%d", i), Type: "checkout.session.completed"})
				assert.NoError(t, err)
				if isNew {
					created.Add(1)
				}
			}(i)
		}
		wg.Wait()

		// then
		assert.Equal(t, int64(1), created.Load())
		all, err := sut.List(c)
		assert.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("Unpaid session creates pending payment", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, sut, nower, publisher := setupService(t, ctrl)

		// given
		snapshot := exampleSnapshot
		snapshot.SessionPaymentStatus = "unpaid"
		nower.EXPECT().Now().Return(mytime.ExampleTime)
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, gomock.Any()).Return(nil)

		// when
		order, created, err := sut.Materialize(c, snapshot, completedCause)

		// then
		assert.NoError(t, err)
		assert.True(t, created)
		assert.Equal(t, PaymentPending, order.PaymentStatus)
	})

	t.Run("Adopts earlier failure placeholder", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, sut, nower, publisher := setupService(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).Times(2)
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, gomock.Any()).Return(nil)
		placeholder := Placeholder("pi_test_1", CheckoutSnapshot{PaymentIntentID: "pi_test_1", TotalAmountInCents: 10999, Currency: "usd"}, StatusPending, PaymentFailed, "card_declined")
		_, result, err := sut.Transition(c, PaymentIntentKey("pi_test_1"), Update{}, &placeholder, Cause{ID: "evt_0", Type: "payment_intent.payment_failed"})
		assert.NoError(t, err)
		assert.Equal(t, ResultCreated, result)

		// when
		order, created, err := sut.Materialize(c, exampleSnapshot, completedCause)

		// then
		assert.NoError(t, err)
		assert.False(t, created)
		assert.Equal(t, "pi_test_1", order.UID)
		assert.Equal(t, "cs_test_1", order.SessionID)
		assert.Equal(t, PaymentFailed, order.PaymentStatus)
		assert.Equal(t, "marc@example.com", order.CustomerEmail)
		assert.Len(t, order.Items, 1)

		bySession, found, err := sut.Find(c, SessionKey("cs_test_1"))
		assert.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, "pi_test_1", bySession.UID)
	})

	t.Run("Missing session id", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, sut, _, _ := setupService(t, ctrl)

		// when
		_, _, err := sut.Materialize(c, CheckoutSnapshot{}, completedCause)

		// then
		assert.Error(t, err)
		assert.Equal(t, 400, myerrors.GetHTTPStatus(err))
	})
}

func TestTransition(t *testing.T) {

	t.Run("Payment failure after success is ignored", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, sut, nower, publisher := setupService(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, gomock.Any()).Return(nil)
		_, _, err := sut.Materialize(c, exampleSnapshot, completedCause)
		assert.NoError(t, err)

		// when
		order, result, err := sut.Transition(c, PaymentIntentKey("pi_test_1"), Update{
			Status:        StatusPending,
			PaymentStatus: PaymentFailed,
			FailureReason: "card_declined",
		}, nil, Cause{ID: "evt_2", Type: "payment_intent.payment_failed"})

		// then
		assert.NoError(t, err)
		assert.Equal(t, ResultBlocked, result)
		assert.Equal(t, PaymentPaid, order.PaymentStatus)
		assert.Empty(t, order.FailureReason)
	})

	t.Run("Status change is published", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, sut, nower, publisher := setupService(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		snapshot := exampleSnapshot
		snapshot.SessionPaymentStatus = "unpaid"
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, gomock.Any()).Return(nil)
		_, _, err := sut.Materialize(c, snapshot, completedCause)
		assert.NoError(t, err)
		cause := Cause{ID: "evt_3", Type: "checkout.session.async_payment_succeeded"}
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, orderevents.OrderStatusChanged{
			OrderUID:         "cs_test_1",
			OldStatus:        "processing",
			NewStatus:        "processing",
			OldPaymentStatus: "pending",
			NewPaymentStatus: "paid",
			Cause:            cause,
		}).Return(nil)

		// when
		order, result, err := sut.Transition(c, SessionKey("cs_test_1"), Update{Status: StatusProcessing, PaymentStatus: PaymentPaid}, nil, cause)

		// then
		assert.NoError(t, err)
		assert.Equal(t, ResultApplied, result)
		assert.Equal(t, PaymentPaid, order.PaymentStatus)
		assert.Equal(t, "evt_3", order.LastEventID)
	})

	t.Run("Dispute is published", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, sut, nower, publisher := setupService(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, gomock.Any()).Return(nil).Times(2)
		_, _, err := sut.Materialize(c, exampleSnapshot, completedCause)
		assert.NoError(t, err)
		cause := Cause{ID: "evt_4", Type: "charge.dispute.created"}
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, orderevents.OrderDisputed{
			OrderUID:  "cs_test_1",
			DisputeID: "dp_1",
			Reason:    "fraudulent",
			Cause:     cause,
		}).Return(nil)

		// when
		order, result, err := sut.Transition(c, PaymentIntentKey("pi_test_1"), Update{Status: StatusDisputed, DisputeID: "dp_1", DisputeReason: "fraudulent"}, nil, cause)

		// then
		assert.NoError(t, err)
		assert.Equal(t, ResultApplied, result)
		assert.Equal(t, StatusDisputed, order.Status)
	})

	t.Run("Unknown order without placeholder", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, sut, nower, _ := setupService(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime)

		// when
		_, result, err := sut.Transition(c, PaymentIntentKey("pi_unknown"), Update{PaymentStatus: PaymentPaid}, nil, Cause{ID: "evt_5", Type: "payment_intent.succeeded"})

		// then
		assert.NoError(t, err)
		assert.Equal(t, ResultNotFound, result)
	})
}

func TestRefunding(t *testing.T) {

	t.Run("Reserve and confirm", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, sut, nower, publisher := setupService(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, gomock.Any()).Return(nil).AnyTimes()
		_, _, err := sut.Materialize(c, exampleSnapshot, completedCause)
		assert.NoError(t, err)

		// when
		order, reservation, err := sut.ReserveRefund(c, OrderKey("cs_test_1"), RefundPartial, 6000, "res_1")

		// then
		assert.NoError(t, err)
		assert.Equal(t, int64(6000), reservation.AmountInCents)
		assert.Equal(t, int64(4999), order.RemainingRefundableInCents())

		// when
		_, _, err = sut.ReserveRefund(c, OrderKey("cs_test_1"), RefundPartial, 5000, "res_2")

		// then
		assert.Error(t, err)
		assert.Equal(t, 400, myerrors.GetHTTPStatus(err))

		// when
		order, err = sut.ConfirmRefund(c, "cs_test_1", "res_1", Refund{
			RefundID:      "re_1",
			AmountInCents: 6000,
			Reason:        ReasonRequestedByCustomer,
			Status:        RefundSucceeded,
			CreatedAt:     mytime.ExampleTime,
		}, Cause{ID: "res_1", Type: "api.refund.partial"})

		// then
		assert.NoError(t, err)
		assert.Empty(t, order.PendingRefunds)
		assert.Equal(t, int64(6000), order.RefundedAmountInCents)
		assert.Equal(t, PaymentPartiallyRefunded, order.PaymentStatus)
		assert.Equal(t, int64(4999), order.RemainingRefundableInCents())
	})

	t.Run("Full refund reserves remaining total", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, sut, nower, publisher := setupService(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, gomock.Any()).Return(nil)
		_, _, err := sut.Materialize(c, exampleSnapshot, completedCause)
		assert.NoError(t, err)

		// when
		_, reservation, err := sut.ReserveRefund(c, PaymentIntentKey("pi_test_1"), RefundFull, 0, "res_1")

		// then
		assert.NoError(t, err)
		assert.Equal(t, int64(10999), reservation.AmountInCents)

		// when
		err = sut.ReleaseRefund(c, "cs_test_1", "res_1")

		// then
		assert.NoError(t, err)
		order, _, _ := sut.Find(c, OrderKey("cs_test_1"))
		assert.Empty(t, order.PendingRefunds)
		assert.Equal(t, int64(10999), order.RemainingRefundableInCents())
	})

	t.Run("Retried reservation is reused", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, sut, nower, publisher := setupService(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, gomock.Any()).Return(nil)
		_, _, err := sut.Materialize(c, exampleSnapshot, completedCause)
		assert.NoError(t, err)
		_, _, err = sut.ReserveRefund(c, OrderKey("cs_test_1"), RefundPartial, 6000, "res_1")
		assert.NoError(t, err)

		// when
		order, reservation, err := sut.ReserveRefund(c, OrderKey("cs_test_1"), RefundPartial, 6000, "res_1")

		// then
		assert.NoError(t, err)
		assert.Equal(t, "res_1", reservation.UID)
		assert.Len(t, order.PendingRefunds, 1)
		assert.Equal(t, int64(4999), order.RemainingRefundableInCents())

		// when
		_, _, err = sut.ReserveRefund(c, OrderKey("cs_test_1"), RefundPartial, 1000, "res_1")

		// then
		assert.Error(t, err)
		assert.Equal(t, 409, myerrors.GetHTTPStatus(err))
	})

	t.Run("Refund on unknown order", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, sut, nower, _ := setupService(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime)

		// when
		_, _, err := sut.ReserveRefund(c, OrderKey("cs_unknown"), RefundFull, 0, "res_1")

		// then
		assert.Error(t, err)
		assert.Equal(t, 404, myerrors.GetHTTPStatus(err))
	})

	t.Run("Charge refund reconciliation publishes refund", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		// setup
		c, sut, nower, publisher := setupService(t, ctrl)

		// given
		nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, gomock.Any()).Return(nil)
		_, _, err := sut.Materialize(c, exampleSnapshot, completedCause)
		assert.NoError(t, err)
		cause := Cause{ID: "evt_6", Type: "charge.refunded"}
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, orderevents.OrderRefunded{
			OrderUID:              "cs_test_1",
			RefundID:              "",
			AmountInCents:         10999,
			RefundedAmountInCents: 10999,
			TotalAmountInCents:    10999,
			PaymentStatus:         "refunded",
			Cause:                 cause,
		}).Return(nil)
		publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, gomock.AssignableToTypeOf(orderevents.OrderStatusChanged{})).Return(nil)

		// when
		order, result, err := sut.ReconcileChargeRefunds(c, PaymentIntentKey("pi_test_1"), "ch_1", 10999, nil, cause)

		// then
		assert.NoError(t, err)
		assert.Equal(t, ResultApplied, result)
		assert.Equal(t, StatusRefunded, order.Status)
		assert.Equal(t, "ch_1", order.ChargeID)

		// when
		_, result, err = sut.ReconcileChargeRefunds(c, PaymentIntentKey("pi_test_1"), "ch_1", 10999, nil, cause)

		// then
		assert.NoError(t, err)
		assert.Equal(t, ResultUnchanged, result)
	})
}

func TestUpdateFulfillment(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// setup
	c, sut, nower, publisher := setupService(t, ctrl)

	// given
	nower.EXPECT().Now().Return(mytime.ExampleTime).AnyTimes()
	publisher.EXPECT().Publish(gomock.Any(), orderevents.TopicName, gomock.Any()).Return(nil).AnyTimes()
	_, _, err := sut.Materialize(c, exampleSnapshot, completedCause)
	assert.NoError(t, err)
	cause := Cause{ID: "req_1", Type: "api.order.status"}

	t.Run("Ship paid order", func(t *testing.T) {
		order, err := sut.UpdateFulfillment(c, "cs_test_1", StatusShipped, cause)
		assert.NoError(t, err)
		assert.Equal(t, StatusShipped, order.Status)
	})

	t.Run("Shipped order cannot go back to processing", func(t *testing.T) {
		_, err := sut.UpdateFulfillment(c, "cs_test_1", StatusProcessing, cause)
		assert.Error(t, err)
		assert.Equal(t, 409, myerrors.GetHTTPStatus(err))
	})

	t.Run("Paid order cannot be cancelled", func(t *testing.T) {
		_, err := sut.UpdateFulfillment(c, "cs_test_1", StatusCancelled, cause)
		assert.Error(t, err)
		assert.Equal(t, 409, myerrors.GetHTTPStatus(err))
	})

	t.Run("Invalid status", func(t *testing.T) {
		_, err := sut.UpdateFulfillment(c, "cs_test_1", StatusRefunded, cause)
		assert.Error(t, err)
		assert.Equal(t, 400, myerrors.GetHTTPStatus(err))
	})

	t.Run("Unknown order", func(t *testing.T) {
		_, err := sut.UpdateFulfillment(c, "cs_unknown", StatusShipped, cause)
		assert.Error(t, err)
		assert.Equal(t, 404, myerrors.GetHTTPStatus(err))
	})
}

func setupService(t *testing.T, ctrl *gomock.Controller) (context.Context, *Service, *mytime.MockNower, *mypublisher.MockPublisher) {
	c := context.TODO()
	store, cleanup, err := mystore.NewInMemoryStore[Order](c)
	assert.NoError(t, err)
	t.Cleanup(cleanup)
	nower := mytime.NewMockNower(ctrl)
	publisher := mypublisher.NewMockPublisher(ctrl)

	return c, NewService(NewLedger(store), nower, publisher), nower, publisher
}
