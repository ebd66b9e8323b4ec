package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/services/orders"
	"github.com/MarcGrol/stripeshop/services/stripeapi"
)

type handlerFunc func(c context.Context, event Event) error

// handlers applies one narrow mutation per event type. Each is safe to run repeatedly.
type handlers struct {
	logger mylog.Logger
	orders *orders.Service
}

func (h *handlers) table() map[EventType]handlerFunc {
	return map[EventType]handlerFunc{
		CheckoutSessionCompleted:             h.onCheckoutSessionCompleted,
		CheckoutSessionExpired:               h.onCheckoutSessionExpired,
		CheckoutSessionAsyncPaymentSucceeded: h.onAsyncPaymentSucceeded,
		CheckoutSessionAsyncPaymentFailed:    h.onAsyncPaymentFailed,
		PaymentIntentSucceeded:               h.onPaymentIntentSucceeded,
		PaymentIntentPaymentFailed:           h.onPaymentIntentFailed,
		PaymentIntentCanceled:                h.onPaymentIntentCanceled,
		PaymentIntentProcessing:              h.onPaymentIntentProcessing,
		ChargeSucceeded:                      h.onChargeSucceeded,
		ChargeFailed:                         h.onChargeFailed,
		ChargeRefunded:                       h.onChargeRefunded,
		ChargeRefundUpdated:                  h.onRefund,
		ChargeDisputeCreated:                 h.onDisputeCreated,
		RefundCreated:                        h.onRefund,
		RefundUpdated:                        h.onRefund,
		InvoicePaid:                          h.onInvoicePaid,
		InvoicePaymentFailed:                 h.onInvoicePaymentFailed,
	}
}

func decode[T any](event Event) (T, error) {
	var object T
	err := json.Unmarshal(event.Object, &object)
	if err != nil {
		return object, fmt.Errorf("error decoding %s payload of %s: %s", event.Type, event.ID, err)
	}
	return object, nil
}

func causeOf(event Event) orders.Cause {
	return orders.Cause{ID: event.ID, Type: string(event.Type)}
}

func (h *handlers) onCheckoutSessionCompleted(c context.Context, event Event) error {
	session, err := decode[stripeapi.CheckoutSession](event)
	if err != nil {
		return err
	}

	snapshot, err := session.Snapshot()
	if err != nil {
		h.logger.Log(c, session.ID, mylog.SeverityWarn, "Items of session %s unavailable: %s", session.ID, err)
	}

	_, _, err = h.orders.Materialize(c, snapshot, causeOf(event))
	return err
}

func (h *handlers) onCheckoutSessionExpired(c context.Context, event Event) error {
	session, err := decode[stripeapi.CheckoutSession](event)
	if err != nil {
		return err
	}

	snapshot, err := session.ExpiredSnapshot()
	if err != nil {
		h.logger.Log(c, session.ID, mylog.SeverityWarn, "Items of session %s unavailable: %s", session.ID, err)
	}
	placeholder := orders.Placeholder(session.ID, snapshot, orders.StatusCancelled, orders.PaymentExpired, "")

	_, _, err = h.orders.Transition(c, orders.SessionKey(session.ID), orders.Update{
		Status:        orders.StatusCancelled,
		PaymentStatus: orders.PaymentExpired,
	}, &placeholder, causeOf(event))
	return err
}

// onAsyncPaymentSucceeded also materializes the order, because a delayed payment method
// can settle before the completion event of its session is processed.
func (h *handlers) onAsyncPaymentSucceeded(c context.Context, event Event) error {
	session, err := decode[stripeapi.CheckoutSession](event)
	if err != nil {
		return err
	}

	snapshot, err := session.Snapshot()
	if err != nil {
		h.logger.Log(c, session.ID, mylog.SeverityWarn, "Items of session %s unavailable: %s", session.ID, err)
	}
	_, _, err = h.orders.Materialize(c, snapshot, causeOf(event))
	if err != nil {
		return err
	}

	_, _, err = h.orders.Transition(c, orders.SessionKey(session.ID), orders.Update{
		Status:          orders.StatusProcessing,
		PaymentStatus:   orders.PaymentPaid,
		PaymentIntentID: session.PaymentIntent.String(),
		InvoiceID:       session.Invoice.String(),
		ReopenCancelled: true,
	}, nil, causeOf(event))
	return err
}

func (h *handlers) onAsyncPaymentFailed(c context.Context, event Event) error {
	session, err := decode[stripeapi.CheckoutSession](event)
	if err != nil {
		return err
	}

	snapshot, err := session.ExpiredSnapshot()
	if err != nil {
		h.logger.Log(c, session.ID, mylog.SeverityWarn, "Items of session %s unavailable: %s", session.ID, err)
	}
	placeholder := orders.Placeholder(session.ID, snapshot, orders.StatusCancelled, orders.PaymentFailed, "")

	_, _, err = h.orders.Transition(c, orders.SessionKey(session.ID), orders.Update{
		Status:          orders.StatusCancelled,
		PaymentStatus:   orders.PaymentFailed,
		PaymentIntentID: session.PaymentIntent.String(),
	}, &placeholder, causeOf(event))
	return err
}

func (h *handlers) onPaymentIntentSucceeded(c context.Context, event Event) error {
	pi, err := decode[stripeapi.PaymentIntent](event)
	if err != nil {
		return err
	}

	_, _, err = h.orders.Transition(c, orders.PaymentIntentKey(pi.ID), orders.Update{
		PaymentStatus:   orders.PaymentPaid,
		ReceiptURL:      pi.ReceiptURL(),
		ChargeID:        pi.LatestCharge.ID,
		ReopenCancelled: true,
	}, nil, causeOf(event))
	return err
}

// onPaymentIntentFailed records a failed attempt even when no checkout completed, using
// what the intent's own metadata tells about the purchase.
func (h *handlers) onPaymentIntentFailed(c context.Context, event Event) error {
	pi, err := decode[stripeapi.PaymentIntent](event)
	if err != nil {
		return err
	}

	snapshot, err := pi.Snapshot()
	if err != nil {
		h.logger.Log(c, pi.ID, mylog.SeverityWarn, "Items of payment intent %s unavailable: %s", pi.ID, err)
	}
	placeholder := orders.Placeholder(pi.ID, snapshot, orders.StatusCancelled, orders.PaymentFailed, pi.FailureReason())

	_, _, err = h.orders.Transition(c, orders.PaymentIntentKey(pi.ID), orders.Update{
		Status:        orders.StatusCancelled,
		PaymentStatus: orders.PaymentFailed,
		FailureReason: pi.FailureReason(),
	}, &placeholder, causeOf(event))
	return err
}

func (h *handlers) onPaymentIntentCanceled(c context.Context, event Event) error {
	pi, err := decode[stripeapi.PaymentIntent](event)
	if err != nil {
		return err
	}

	_, _, err = h.orders.Transition(c, orders.PaymentIntentKey(pi.ID), orders.Update{
		Status:        orders.StatusCancelled,
		PaymentStatus: orders.PaymentCancelled,
	}, nil, causeOf(event))
	return err
}

func (h *handlers) onPaymentIntentProcessing(c context.Context, event Event) error {
	pi, err := decode[stripeapi.PaymentIntent](event)
	if err != nil {
		return err
	}

	_, _, err = h.orders.Transition(c, orders.PaymentIntentKey(pi.ID), orders.Update{
		PaymentStatus: orders.PaymentProcessing,
	}, nil, causeOf(event))
	return err
}

func (h *handlers) onChargeSucceeded(c context.Context, event Event) error {
	charge, err := decode[stripeapi.Charge](event)
	if err != nil {
		return err
	}
	if charge.PaymentIntent == "" {
		h.logger.Log(c, charge.ID, mylog.SeverityInfo, "Charge %s has no payment intent", charge.ID)
		return nil
	}

	_, _, err = h.orders.Transition(c, orders.PaymentIntentKey(charge.PaymentIntent.String()), orders.Update{
		ReceiptURL: charge.ReceiptURL,
		ChargeID:   charge.ID,
	}, nil, causeOf(event))
	return err
}

func (h *handlers) onChargeFailed(c context.Context, event Event) error {
	charge, err := decode[stripeapi.Charge](event)
	if err != nil {
		return err
	}
	if charge.PaymentIntent == "" {
		h.logger.Log(c, charge.ID, mylog.SeverityInfo, "Charge %s has no payment intent", charge.ID)
		return nil
	}

	_, _, err = h.orders.Transition(c, orders.PaymentIntentKey(charge.PaymentIntent.String()), orders.Update{
		PaymentStatus: orders.PaymentFailed,
		FailureReason: charge.FailureReason(),
	}, nil, causeOf(event))
	return err
}

// onChargeRefunded takes the cumulative refunded amount from the charge. Refunds the charge
// lists are merged into the ledger; the rest is recorded as not yet attributed.
func (h *handlers) onChargeRefunded(c context.Context, event Event) error {
	charge, err := decode[stripeapi.Charge](event)
	if err != nil {
		return err
	}
	if charge.PaymentIntent == "" {
		h.logger.Log(c, charge.ID, mylog.SeverityInfo, "Charge %s has no payment intent", charge.ID)
		return nil
	}

	_, _, err = h.orders.ReconcileChargeRefunds(c, orders.PaymentIntentKey(charge.PaymentIntent.String()),
		charge.ID, charge.AmountRefunded, charge.LedgerEntries(), causeOf(event))
	return err
}

func (h *handlers) onRefund(c context.Context, event Event) error {
	refund, err := decode[stripeapi.Refund](event)
	if err != nil {
		return err
	}
	if refund.PaymentIntent == "" {
		h.logger.Log(c, refund.ID, mylog.SeverityInfo, "Refund %s has no payment intent", refund.ID)
		return nil
	}

	_, _, err = h.orders.RecordRefund(c, orders.PaymentIntentKey(refund.PaymentIntent.String()), refund.LedgerEntry(), causeOf(event))
	return err
}

func (h *handlers) onDisputeCreated(c context.Context, event Event) error {
	dispute, err := decode[stripeapi.Dispute](event)
	if err != nil {
		return err
	}
	if dispute.PaymentIntent == "" {
		h.logger.Log(c, dispute.ID, mylog.SeverityWarn, "Dispute %s on charge %s has no payment intent", dispute.ID, dispute.Charge)
		return nil
	}

	_, _, err = h.orders.Transition(c, orders.PaymentIntentKey(dispute.PaymentIntent.String()), orders.Update{
		Status:        orders.StatusDisputed,
		DisputeID:     dispute.ID,
		DisputeReason: dispute.Reason,
	}, nil, causeOf(event))
	return err
}

func (h *handlers) onInvoicePaid(c context.Context, event Event) error {
	invoice, err := decode[stripeapi.Invoice](event)
	if err != nil {
		return err
	}

	return h.applyToInvoice(c, invoice, orders.Update{
		PaymentStatus:    orders.PaymentPaid,
		InvoicePDF:       invoice.InvoicePDF,
		HostedInvoiceURL: invoice.HostedInvoiceURL,
		InvoiceID:        invoice.ID,
	}, causeOf(event))
}

func (h *handlers) onInvoicePaymentFailed(c context.Context, event Event) error {
	invoice, err := decode[stripeapi.Invoice](event)
	if err != nil {
		return err
	}

	return h.applyToInvoice(c, invoice, orders.Update{
		PaymentStatus: orders.PaymentFailed,
		InvoiceID:     invoice.ID,
	}, causeOf(event))
}

// applyToInvoice falls back to the paying intent when no order knows the invoice yet.
func (h *handlers) applyToInvoice(c context.Context, invoice stripeapi.Invoice, update orders.Update, cause orders.Cause) error {
	_, result, err := h.orders.Transition(c, orders.InvoiceKey(invoice.ID), update, nil, cause)
	if err != nil || result != orders.ResultNotFound {
		return err
	}

	piID := invoice.PaymentIntentID()
	if piID == "" {
		return nil
	}
	_, _, err = h.orders.Transition(c, orders.PaymentIntentKey(piID), update, nil, cause)
	return err
}
