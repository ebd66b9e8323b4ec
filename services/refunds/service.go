package refunds

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/lib/mymetrics"
	"github.com/MarcGrol/stripeshop/lib/myuuid"
	"github.com/MarcGrol/stripeshop/services/orders"
	"github.com/MarcGrol/stripeshop/services/stripeapi"
)

const paymentIntentPrefix = "pi_"

var allowedReasons = map[orders.RefundReason]bool{
	orders.ReasonDuplicate:           true,
	orders.ReasonFraudulent:          true,
	orders.ReasonRequestedByCustomer: true,
}

// ParseReason defaults an absent reason to requested_by_customer and rejects any reason
// the processor does not accept.
func ParseReason(reason string) (orders.RefundReason, error) {
	if reason == "" {
		return orders.ReasonRequestedByCustomer, nil
	}
	parsed := orders.RefundReason(reason)
	if !allowedReasons[parsed] {
		return "", myerrors.NewInvalidInputErrorf("Invalid refund reason %q: must be one of duplicate, fraudulent, requested_by_customer", reason)
	}
	return parsed, nil
}

type refundResult struct {
	Refund stripeapi.Refund
	Order  orders.Order
}

type service struct {
	logger mylog.Logger
	uuider myuuid.UUIDer
	payer  Payer
	orders *orders.Service
}

func newService(logger mylog.Logger, uuider myuuid.UUIDer, payer Payer, orderService *orders.Service) *service {
	return &service{
		logger: logger,
		uuider: uuider,
		payer:  payer,
		orders: orderService,
	}
}

// refundRequest carries what every refund flavour shares. IdempotencyKey is optional; when
// given, a retried request maps onto the reservation and processor refund of the first one.
type refundRequest struct {
	Reason         orders.RefundReason
	IdempotencyKey string
}

func (s *service) fullRefund(c context.Context, orderUID string, req refundRequest) (refundResult, error) {
	return s.refund(c, orders.OrderKey(orderUID), orders.RefundFull, 0, req, "api.refund.full")
}

func (s *service) partialRefund(c context.Context, orderUID string, amountInCents int64, req refundRequest) (refundResult, error) {
	return s.refund(c, orders.OrderKey(orderUID), orders.RefundPartial, amountInCents, req, "api.refund.partial")
}

// refundPaymentIntent refunds the order paid with paymentIntentID. Without an amount the
// remainder is refunded: in full when nothing was refunded yet, partially otherwise.
func (s *service) refundPaymentIntent(c context.Context, paymentIntentID string, amountInCents *int64, req refundRequest) (refundResult, error) {
	if !strings.HasPrefix(paymentIntentID, paymentIntentPrefix) {
		return refundResult{}, myerrors.NewInvalidInputErrorf("Valid payment intent id is required")
	}

	key := orders.PaymentIntentKey(paymentIntentID)
	order, found, err := s.orders.Find(c, key)
	if err != nil {
		return refundResult{}, err
	}
	if !found {
		return refundResult{}, myerrors.NewNotFoundError(fmt.Errorf("Order not found for this payment intent"))
	}

	if amountInCents != nil {
		return s.refund(c, key, orders.RefundPartial, *amountInCents, req, "api.refund.payment-intent")
	}
	if order.RemainingRefundableInCents() == 0 {
		return refundResult{}, myerrors.NewInvalidInputErrorf("Order is not eligible for refund").
			WithDetail("currentStatus", order.PaymentStatus).
			WithDetail("refundedAmount", orders.ToMajorUnits(order.RefundedAmountInCents))
	}
	if order.RefundedAmountInCents == 0 && order.ReservedInCents() == 0 {
		return s.refund(c, key, orders.RefundFull, 0, req, "api.refund.payment-intent")
	}
	return s.refund(c, key, orders.RefundPartial, order.RemainingRefundableInCents(), req, "api.refund.payment-intent")
}

// reservationUID is random unless the caller supplied an idempotency key: then it is derived
// from the key and the order it addresses.
func (s *service) reservationUID(key orders.Key, idempotencyKey string) string {
	if idempotencyKey == "" {
		return s.uuider.Create()
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("refund:"+key.String()+":"+idempotencyKey)).String()
}

func (s *service) refund(c context.Context, key orders.Key, kind orders.RefundKind, amountInCents int64, req refundRequest, causeType string) (refundResult, error) {
	reservationUID := s.reservationUID(key, req.IdempotencyKey)
	reason := req.Reason

	order, reservation, err := s.orders.ReserveRefund(c, key, kind, amountInCents, reservationUID)
	if err != nil {
		return refundResult{}, err
	}

	refund, err := s.payer.CreateRefund(c, CreateRefundRequest{
		PaymentIntentID: order.PaymentIntentID,
		AmountInCents:   reservation.AmountInCents,
		Reason:          reason,
		IdempotencyKey:  "refund-" + reservation.UID,
		Metadata: map[string]string{
			stripeapi.MetadataOrderUID:       order.UID,
			stripeapi.MetadataReservationUID: reservation.UID,
		},
	})
	if err != nil {
		mymetrics.RecordRefund(string(kind), false)

		if !stripeapi.IsRejected(err) {
			// The refund may exist at the processor: its webhook or a retry with the same key settles the reservation.
			s.logger.Log(c, order.UID, mylog.SeverityWarn, "Keeping reservation %s after inconclusive refund attempt: %s", reservation.UID, err)
			return refundResult{}, err
		}
		releaseErr := s.orders.ReleaseRefund(c, order.UID, reservation.UID)
		if releaseErr != nil {
			s.logger.Log(c, order.UID, mylog.SeverityError, "Error releasing reservation %s: %s", reservation.UID, releaseErr)
		}
		return refundResult{}, err
	}
	mymetrics.RecordRefund(string(kind), true)

	entry := refund.LedgerEntry()
	entry.Reason = reason
	entry.ReservationUID = reservation.UID

	order, err = s.orders.ConfirmRefund(c, order.UID, reservation.UID, entry, orders.Cause{
		ID:   reservation.UID,
		Type: causeType,
	})
	if err != nil {
		// The refund exists at the processor; its webhook settles the reservation later.
		return refundResult{}, myerrors.NewInternalError(fmt.Errorf("error recording refund %s: %s", refund.ID, err)).
			WithDetail("refundId", refund.ID)
	}

	s.logger.Log(c, order.UID, mylog.SeverityInfo, "Created %s refund %s of %d (%s)", kind, refund.ID, refund.Amount, refund.Status)

	return refundResult{Refund: refund, Order: order}, nil
}

func (s *service) getRefund(c context.Context, refundID string) (stripeapi.Refund, error) {
	if refundID == "" {
		return stripeapi.Refund{}, myerrors.NewInvalidInputErrorf("Refund id is required")
	}
	return s.payer.GetRefund(c, refundID)
}

type orderRefunds struct {
	Order                 orders.Order
	ProcessorRefunds      []stripeapi.Refund
	ProcessorRefundsError error
}

// orderRefunds combines the local ledger with what the processor lists. The processor part
// is optional: the ledger is returned even when listing fails.
func (s *service) orderRefunds(c context.Context, orderUID string) (orderRefunds, error) {
	order, found, err := s.orders.Find(c, orders.OrderKey(orderUID))
	if err != nil {
		return orderRefunds{}, err
	}
	if !found {
		return orderRefunds{}, myerrors.NewNotFoundError(fmt.Errorf("Order not found"))
	}

	result := orderRefunds{Order: order, ProcessorRefunds: []stripeapi.Refund{}}
	if order.PaymentIntentID == "" {
		return result, nil
	}

	refunds, err := s.payer.ListRefunds(c, order.PaymentIntentID)
	if err != nil {
		s.logger.Log(c, order.UID, mylog.SeverityWarn, "Error listing processor refunds: %s", err)
		result.ProcessorRefundsError = err
		return result, nil
	}
	result.ProcessorRefunds = refunds

	return result, nil
}
