package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/services/orders/orderevents"
)

// Reservations older than this no longer block refunds.
const reservationTTL = 24 * time.Hour

// ReserveRefund checks the refund preconditions and claims the amount, so that concurrent
// refund requests cannot together exceed what was paid. For a full refund the claimed
// amount is the order total. A reservationUID that is already known returns the earlier
// reservation, so that a retried request reaches the processor with the same amount.
func (s *Service) ReserveRefund(c context.Context, key Key, kind RefundKind, amountInCents int64, reservationUID string) (Order, Reservation, error) {
	now := s.nower.Now()
	order := Order{}
	reservation := Reservation{}
	retried := false

	err := s.ledger.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent
		found := false
		var err error
		order, found, err = s.ledger.Find(c, key)
		if err != nil {
			return err
		}
		if !found {
			return myerrors.NewNotFoundError(fmt.Errorf("Order not found"))
		}

		var existing Reservation
		existing, retried = order.FindReservation(reservationUID)
		if retried {
			if kind == RefundPartial && existing.AmountInCents != amountInCents {
				return myerrors.NewConflictError(fmt.Errorf("Refund %s was requested before with a different amount", reservationUID)).
					WithDetail("reservedAmount", ToMajorUnits(existing.AmountInCents))
			}
			reservation = existing
			return nil
		}

		order.ExpireReservations(now.Add(-reservationTTL))
		err = order.CheckRefundable(kind, amountInCents)
		if err != nil {
			return err
		}

		reservation = Reservation{
			UID:           reservationUID,
			AmountInCents: amountInCents,
			CreatedAt:     now,
		}
		if kind == RefundFull {
			reservation.AmountInCents = order.RemainingRefundableInCents()
		}
		order.Reserve(reservation)
		order.LastModified = now

		return s.ledger.Put(c, order)
	})
	if err != nil {
		return Order{}, Reservation{}, err
	}

	if retried {
		s.logger.Log(c, order.UID, mylog.SeverityInfo, "Reusing reservation %s of %d for %s refund of %s", reservation.UID, reservation.AmountInCents, kind, order)
		return order, reservation, nil
	}
	s.logger.Log(c, order.UID, mylog.SeverityInfo, "Reserved %d for %s refund of %s", reservation.AmountInCents, kind, order)

	return order, reservation, nil
}

// ConfirmRefund replaces the reservation with the refund the processor created.
func (s *Service) ConfirmRefund(c context.Context, orderUID string, reservationUID string, entry Refund, cause Cause) (Order, error) {
	now := s.nower.Now()
	order := Order{}

	err := s.ledger.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent
		found := false
		var err error
		order, found, err = s.ledger.Find(c, OrderKey(orderUID))
		if err != nil {
			return err
		}
		if !found {
			return myerrors.NewNotFoundError(fmt.Errorf("Order not found"))
		}

		before := order
		released := order.Release(reservationUID)
		recorded := order.RecordRefund(entry, now)
		if !released && !recorded {
			return nil
		}
		order.LastModified = now
		order.LastEventID = cause.ID

		err = s.ledger.Put(c, order)
		if err != nil {
			return err
		}
		return s.publishRefundChanges(c, before, order, entry.RefundID, cause)
	})
	if err != nil {
		return Order{}, err
	}

	s.logger.Log(c, order.UID, mylog.SeverityInfo, "Recorded refund %s of %d: %s", entry.RefundID, entry.AmountInCents, order)

	return order, nil
}

// ReleaseRefund drops a reservation whose refund could not be created.
func (s *Service) ReleaseRefund(c context.Context, orderUID string, reservationUID string) error {
	now := s.nower.Now()

	err := s.ledger.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent
		order, found, err := s.ledger.Find(c, OrderKey(orderUID))
		if err != nil {
			return err
		}
		if !found || !order.Release(reservationUID) {
			return nil
		}
		order.LastModified = now
		return s.ledger.Put(c, order)
	})
	if err != nil {
		return err
	}

	s.logger.Log(c, orderUID, mylog.SeverityInfo, "Released refund reservation %s", reservationUID)

	return nil
}

// RecordRefund merges a refund reported by the processor into the order's ledger.
func (s *Service) RecordRefund(c context.Context, key Key, entry Refund, cause Cause) (Order, TransitionResult, error) {
	return s.reconcile(c, key, cause, entry.RefundID, func(o *Order) bool {
		return o.RecordRefund(entry, s.nower.Now())
	})
}

// ReconcileChargeRefunds merges the cumulative refunded amount and the refunds a charge reports.
func (s *Service) ReconcileChargeRefunds(c context.Context, key Key, chargeID string, amountRefundedInCents int64, refunds []Refund, cause Cause) (Order, TransitionResult, error) {
	latestRefundID := ""
	if len(refunds) > 0 {
		latestRefundID = refunds[len(refunds)-1].RefundID
	}
	return s.reconcile(c, key, cause, latestRefundID, func(o *Order) bool {
		return o.ReconcileCharge(chargeID, amountRefundedInCents, refunds, s.nower.Now())
	})
}

func (s *Service) reconcile(c context.Context, key Key, cause Cause, refundID string, merge func(o *Order) bool) (Order, TransitionResult, error) {
	now := s.nower.Now()
	order := Order{}
	result := ResultNotFound

	err := s.ledger.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent
		result = ResultNotFound

		found := false
		var err error
		order, found, err = s.ledger.Find(c, key)
		if err != nil {
			return err
		}
		if !found {
			return nil
		}

		before := order
		if !merge(&order) {
			result = ResultUnchanged
			return nil
		}
		result = ResultApplied
		order.LastModified = now
		order.LastEventID = cause.ID

		err = s.ledger.Put(c, order)
		if err != nil {
			return err
		}
		return s.publishRefundChanges(c, before, order, refundID, cause)
	})
	if err != nil {
		return Order{}, result, err
	}

	s.logger.Log(c, key.String(), mylog.SeverityInfo, "%s on %s: %s", cause.Type, key, result)

	return order, result, nil
}

func (s *Service) publishRefundChanges(c context.Context, before Order, after Order, refundID string, cause Cause) error {
	if after.RefundedAmountInCents != before.RefundedAmountInCents {
		err := s.publish(c, orderevents.OrderRefunded{
			OrderUID:              after.UID,
			RefundID:              refundID,
			AmountInCents:         after.RefundedAmountInCents - before.RefundedAmountInCents,
			RefundedAmountInCents: after.RefundedAmountInCents,
			TotalAmountInCents:    after.TotalAmountInCents,
			PaymentStatus:         string(after.PaymentStatus),
			Cause:                 cause,
		})
		if err != nil {
			return err
		}
	}
	return s.publishChanges(c, before, after, cause)
}
