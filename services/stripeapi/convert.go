package stripeapi

import (
	"time"

	"github.com/MarcGrol/stripeshop/services/orders"
)

const defaultCurrency = "usd"

// Metadata keys this service writes on processor objects.
const (
	MetadataCustomerEmail  = "customerEmail"
	MetadataOrderUID       = "orderId"
	MetadataReservationUID = "reservationId"
)

// Snapshot extracts the purchase data of a session. The returned error reports an unusable
// items side channel only; the snapshot is complete otherwise and flags its items as unavailable.
func (s CheckoutSession) Snapshot() (orders.CheckoutSnapshot, error) {
	items, ok, err := orders.DecodeItemsMetadata(s.Metadata)

	snapshot := orders.CheckoutSnapshot{
		SessionID:            s.ID,
		PaymentIntentID:      s.PaymentIntent.String(),
		InvoiceID:            s.Invoice.String(),
		SessionPaymentStatus: s.PaymentStatus,
		CustomerEmail:        s.CustomerEmail,
		Items:                items,
		ItemsUnavailable:     !ok,
		TotalAmountInCents:   s.AmountTotal,
		SubtotalInCents:      s.AmountSubtotal,
		Currency:             s.Currency,
	}
	if s.CustomerDetails != nil {
		if snapshot.CustomerEmail == "" {
			snapshot.CustomerEmail = s.CustomerDetails.Email
		}
		snapshot.CustomerName = s.CustomerDetails.Name
		snapshot.CustomerPhone = s.CustomerDetails.Phone
		snapshot.BillingAddress = s.CustomerDetails.Address.toOrderAddress()
	}
	if snapshot.CustomerEmail == "" {
		snapshot.CustomerEmail = s.Metadata[MetadataCustomerEmail]
	}
	if s.TotalDetails != nil {
		snapshot.ShippingCostInCents = s.TotalDetails.AmountShipping
		snapshot.TaxInCents = s.TotalDetails.AmountTax
		snapshot.DiscountInCents = s.TotalDetails.AmountDiscount
	}

	shipping := s.ShippingDetails
	if shipping == nil && s.CollectedInformation != nil {
		shipping = s.CollectedInformation.ShippingDetails
	}
	if shipping != nil {
		snapshot.ShippingName = shipping.Name
		snapshot.ShippingAddress = shipping.Address.toOrderAddress()
	}

	return snapshot, err
}

// ExpiredSnapshot is the minimal snapshot recorded for a session that never completed.
func (s CheckoutSession) ExpiredSnapshot() (orders.CheckoutSnapshot, error) {
	snapshot, err := s.Snapshot()
	if snapshot.Currency == "" {
		snapshot.Currency = defaultCurrency
	}
	return snapshot, err
}

// Snapshot extracts what the intent's own metadata recorded about the purchase.
func (pi PaymentIntent) Snapshot() (orders.CheckoutSnapshot, error) {
	items, ok, err := orders.DecodeItemsMetadata(pi.Metadata)

	snapshot := orders.CheckoutSnapshot{
		PaymentIntentID:    pi.ID,
		InvoiceID:          pi.Invoice.String(),
		CustomerEmail:      pi.Metadata[MetadataCustomerEmail],
		Items:              items,
		ItemsUnavailable:   !ok,
		TotalAmountInCents: pi.Amount,
		Currency:           pi.Currency,
	}
	if snapshot.CustomerEmail == "" {
		snapshot.CustomerEmail = pi.ReceiptEmail
	}
	if snapshot.Currency == "" {
		snapshot.Currency = defaultCurrency
	}

	return snapshot, err
}

func (pi PaymentIntent) FailureReason() string {
	if pi.LastPaymentError == nil {
		return ""
	}
	if pi.LastPaymentError.Message != "" {
		return pi.LastPaymentError.Message
	}
	return pi.LastPaymentError.Code
}

// ReceiptURL returns the receipt of the charge that settled the intent, when rendered.
func (pi PaymentIntent) ReceiptURL() string {
	if pi.LatestCharge.Object != nil && pi.LatestCharge.Object.ReceiptURL != "" {
		return pi.LatestCharge.Object.ReceiptURL
	}
	if pi.Charges != nil && len(pi.Charges.Data) > 0 {
		return pi.Charges.Data[0].ReceiptURL
	}
	return ""
}

func (c Charge) FailureReason() string {
	if c.FailureMessage != "" {
		return c.FailureMessage
	}
	return c.FailureCode
}

// LedgerEntries lists the refunds the charge renders, oldest first.
func (c Charge) LedgerEntries() []orders.Refund {
	entries := []orders.Refund{}
	if c.Refunds == nil {
		return entries
	}
	for i := len(c.Refunds.Data) - 1; i >= 0; i-- {
		entries = append(entries, c.Refunds.Data[i].LedgerEntry())
	}
	return entries
}

func (r Refund) LedgerEntry() orders.Refund {
	return orders.Refund{
		RefundID:       r.ID,
		AmountInCents:  r.Amount,
		Reason:         ToRefundReason(r.Reason),
		Status:         ToRefundStatus(r.Status),
		CreatedAt:      time.Unix(r.Created, 0).UTC(),
		ReservationUID: r.Metadata[MetadataReservationUID],
	}
}

// PaymentIntentID returns the intent the invoice was paid with, in any api version.
func (i Invoice) PaymentIntentID() string {
	if i.PaymentIntent != "" {
		return i.PaymentIntent.String()
	}
	if i.Payments != nil {
		for _, p := range i.Payments.Data {
			if p.Payment.PaymentIntent != "" {
				return p.Payment.PaymentIntent.String()
			}
		}
	}
	return ""
}

func ToRefundReason(reason string) orders.RefundReason {
	switch orders.RefundReason(reason) {
	case orders.ReasonDuplicate, orders.ReasonFraudulent, orders.ReasonRequestedByCustomer:
		return orders.RefundReason(reason)
	default:
		return orders.ReasonOther
	}
}

func ToRefundStatus(status string) orders.RefundStatus {
	switch status {
	case "succeeded":
		return orders.RefundSucceeded
	case "failed":
		return orders.RefundFailed
	case "canceled":
		return orders.RefundCanceled
	default:
		// pending and requires_action
		return orders.RefundPending
	}
}

func (a *Address) toOrderAddress() orders.Address {
	if a == nil {
		return orders.Address{}
	}
	return orders.Address{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}
