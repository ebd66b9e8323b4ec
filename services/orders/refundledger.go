package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
)

type RefundKind string

const (
	RefundFull    RefundKind = "full"
	RefundPartial RefundKind = "partial"
)

// unattributedRefundPrefix marks an entry that covers processor-reported refunds
// for which no individual refund is known yet.
const unattributedRefundPrefix = "unattributed:"

// LatestRefunds returns the most recent entry per refund id, in order of first appearance.
func LatestRefunds(refunds []Refund) []Refund {
	index := map[string]int{}
	latest := []Refund{}
	for _, r := range refunds {
		i, found := index[r.RefundID]
		if found {
			latest[i] = r
			continue
		}
		index[r.RefundID] = len(latest)
		latest = append(latest, r)
	}
	return latest
}

func (o Order) refundSums() (succeeded int64, pending int64, unattributed int64) {
	for _, r := range LatestRefunds(o.Refunds) {
		if strings.HasPrefix(r.RefundID, unattributedRefundPrefix) {
			unattributed += r.AmountInCents
			continue
		}
		switch r.Status {
		case RefundSucceeded:
			succeeded += r.AmountInCents
		case RefundPending:
			pending += r.AmountInCents
		}
	}
	return succeeded, pending, unattributed
}

func (o Order) ReservedInCents() int64 {
	reserved := int64(0)
	for _, r := range o.PendingRefunds {
		reserved += r.AmountInCents
	}
	return reserved
}

// RemainingRefundableInCents is what can still be refunded: the total minus settled,
// pending and in-flight refunds.
func (o Order) RemainingRefundableInCents() int64 {
	succeeded, pending, unattributed := o.refundSums()
	remaining := o.TotalAmountInCents - succeeded - pending - unattributed - o.ReservedInCents()
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CheckRefundable verifies the preconditions of a refund. For full refunds amountInCents is ignored.
func (o Order) CheckRefundable(kind RefundKind, amountInCents int64) error {
	if o.PaymentIntentID == "" {
		return myerrors.NewInvalidInputErrorf("Order has no payment intent associated")
	}

	switch kind {
	case RefundFull:
		if o.PaymentStatus != PaymentPaid || o.RefundedAmountInCents != 0 || o.ReservedInCents() != 0 || o.RemainingRefundableInCents() != o.TotalAmountInCents {
			return myerrors.NewInvalidInputErrorf("Order is not eligible for full refund").
				WithDetail("currentStatus", o.PaymentStatus).
				WithDetail("refundedAmount", ToMajorUnits(o.RefundedAmountInCents))
		}
		return nil
	case RefundPartial:
		if amountInCents <= 0 {
			return myerrors.NewInvalidInputErrorf("Valid refund amount is required")
		}
		if o.PaymentStatus != PaymentPaid && o.PaymentStatus != PaymentPartiallyRefunded {
			return myerrors.NewInvalidInputErrorf("Order is not eligible for partial refund").
				WithDetail("currentStatus", o.PaymentStatus).
				WithDetail("refundedAmount", ToMajorUnits(o.RefundedAmountInCents))
		}
		remaining := o.RemainingRefundableInCents()
		if amountInCents > remaining {
			return myerrors.NewInvalidInputErrorf("Refund amount exceeds maximum refundable amount. Maximum: $%.2f", ToMajorUnits(remaining)).
				WithDetail("maxRefundable", ToMajorUnits(remaining)).
				WithDetail("requestedAmount", ToMajorUnits(amountInCents))
		}
		return nil
	default:
		return myerrors.NewInvalidInputErrorf("unsupported refund kind %s", kind)
	}
}

func (o *Order) Reserve(reservation Reservation) {
	o.PendingRefunds = append(o.PendingRefunds, reservation)
}

// FindReservation returns the reservation with the given uid, whether still in flight or
// already settled by a recorded refund.
func (o Order) FindReservation(reservationUID string) (Reservation, bool) {
	for _, r := range o.PendingRefunds {
		if r.UID == reservationUID {
			return r, true
		}
	}
	for _, r := range LatestRefunds(o.Refunds) {
		if r.ReservationUID == reservationUID {
			return Reservation{UID: reservationUID, AmountInCents: r.AmountInCents, CreatedAt: r.CreatedAt}, true
		}
	}
	return Reservation{}, false
}

// ExpireReservations drops reservations created before cutoff. A refund created under such
// a reservation has been reported by its webhook long before.
func (o *Order) ExpireReservations(cutoff time.Time) bool {
	remaining := []Reservation{}
	for _, r := range o.PendingRefunds {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		remaining = append(remaining, r)
	}
	expired := len(remaining) != len(o.PendingRefunds)
	o.PendingRefunds = remaining
	return expired
}

func (o *Order) Release(reservationUID string) bool {
	remaining := []Reservation{}
	released := false
	for _, r := range o.PendingRefunds {
		if r.UID == reservationUID {
			released = true
			continue
		}
		remaining = append(remaining, r)
	}
	o.PendingRefunds = remaining
	return released
}

// RecordRefund appends the entry unless it repeats the latest entry for the same refund.
func (o *Order) RecordRefund(entry Refund, now time.Time) bool {
	released := o.settle(entry)
	appended := o.appendRefund(entry)
	recomputed := o.recomputeRefunds(now)
	return released || appended || recomputed
}

// ReconcileCharge merges what the processor reports for the charge: its cumulative
// refunded amount and the refunds it lists.
func (o *Order) ReconcileCharge(chargeID string, amountRefundedInCents int64, refunds []Refund, now time.Time) bool {
	changed := false
	if chargeID != "" && o.ChargeID == "" {
		o.ChargeID = chargeID
		changed = true
	}
	if amountRefundedInCents > o.ChargeRefundedInCents {
		o.ChargeRefundedInCents = amountRefundedInCents
		changed = true
	}
	for _, r := range refunds {
		if o.settle(r) {
			changed = true
		}
		if o.appendRefund(r) {
			changed = true
		}
	}
	if o.recomputeRefunds(now) {
		changed = true
	}
	return changed
}

// settle drops the reservation a reported refund was created under.
func (o *Order) settle(entry Refund) bool {
	if entry.ReservationUID == "" {
		return false
	}
	return o.Release(entry.ReservationUID)
}

func (o *Order) appendRefund(entry Refund) bool {
	for _, r := range LatestRefunds(o.Refunds) {
		if r.RefundID == entry.RefundID && r.AmountInCents == entry.AmountInCents && r.Status == entry.Status {
			return false
		}
	}
	o.Refunds = append(o.Refunds, entry)
	return true
}

func (o *Order) unattributedRefundID() string {
	if o.ChargeID != "" {
		return unattributedRefundPrefix + o.ChargeID
	}
	return unattributedRefundPrefix + o.UID
}

// recomputeRefunds derives the refunded amount and refund statuses from the ledger.
func (o *Order) recomputeRefunds(now time.Time) bool {
	changed := false

	succeeded, pending, unattributed := o.refundSums()
	unexplained := o.ChargeRefundedInCents - succeeded - pending - o.ReservedInCents()
	if unexplained < 0 {
		unexplained = 0
	}
	if unexplained != unattributed {
		o.Refunds = append(o.Refunds, Refund{
			RefundID:      o.unattributedRefundID(),
			AmountInCents: unexplained,
			Reason:        ReasonOther,
			Status:        RefundSucceeded,
			CreatedAt:     now,
		})
		unattributed = unexplained
		changed = true
	}

	refunded := succeeded + unattributed
	if refunded > o.TotalAmountInCents {
		refunded = o.TotalAmountInCents
	}
	if refunded != o.RefundedAmountInCents {
		o.RefundedAmountInCents = refunded
		changed = true
	}

	if refunded == 0 {
		// a reported refund failed after it had succeeded: the payment stands again
		if o.PaymentStatus == PaymentRefunded || o.PaymentStatus == PaymentPartiallyRefunded {
			o.PaymentStatus = PaymentPaid
			changed = true
		}
		if o.Status == StatusRefunded || o.Status == StatusPartiallyRefunded {
			o.Status = StatusProcessing
			changed = true
		}
		return changed
	}

	status, paymentStatus := StatusPartiallyRefunded, PaymentPartiallyRefunded
	if refunded >= o.TotalAmountInCents {
		status, paymentStatus = StatusRefunded, PaymentRefunded
	}
	if o.PaymentStatus != paymentStatus {
		o.PaymentStatus = paymentStatus
		changed = true
	}
	if o.Status != status && o.Status != StatusDisputed {
		o.Status = status
		changed = true
	}

	return changed
}

func (o Order) String() string {
	return fmt.Sprintf("order %s (%s/%s, refunded %d of %d %s)", o.UID, o.Status, o.PaymentStatus, o.RefundedAmountInCents, o.TotalAmountInCents, o.Currency)
}
