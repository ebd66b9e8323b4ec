package stripewebhook

type EventType string

const (
	CheckoutSessionCompleted             EventType = "checkout.session.completed"
	CheckoutSessionExpired               EventType = "checkout.session.expired"
	CheckoutSessionAsyncPaymentSucceeded EventType = "checkout.session.async_payment_succeeded"
	CheckoutSessionAsyncPaymentFailed    EventType = "checkout.session.async_payment_failed"
	PaymentIntentSucceeded               EventType = "payment_intent.succeeded"
	PaymentIntentPaymentFailed           EventType = "payment_intent.payment_failed"
	PaymentIntentCanceled                EventType = "payment_intent.canceled"
	PaymentIntentProcessing              EventType = "payment_intent.processing"
	ChargeSucceeded                      EventType = "charge.succeeded"
	ChargeFailed                         EventType = "charge.failed"
	ChargeRefunded                       EventType = "charge.refunded"
	ChargeRefundUpdated                  EventType = "charge.refund.updated"
	ChargeDisputeCreated                 EventType = "charge.dispute.created"
	RefundCreated                        EventType = "refund.created"
	RefundUpdated                        EventType = "refund.updated"
	InvoicePaid                          EventType = "invoice.paid"
	InvoicePaymentFailed                 EventType = "invoice.payment_failed"
)
