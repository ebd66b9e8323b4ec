package orders

// Update is a narrow mutation. Empty fields leave the order untouched.
type Update struct {
	Status           OrderStatus
	PaymentStatus    PaymentStatus
	FailureReason    string
	ReceiptURL       string
	DisputeID        string
	DisputeReason    string
	InvoicePDF       string
	HostedInvoiceURL string
	PaymentIntentID  string
	InvoiceID        string
	ChargeID         string
	// ReopenCancelled moves a cancelled order back to processing once its payment is accepted.
	ReopenCancelled bool
}

// allowedPaymentTransitions lists the payment statuses reachable from each status.
// refunded and cancelled are terminal.
var allowedPaymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:           {PaymentProcessing, PaymentPaid, PaymentFailed, PaymentCancelled, PaymentExpired},
	PaymentProcessing:        {PaymentPaid, PaymentFailed, PaymentCancelled, PaymentExpired},
	PaymentFailed:            {PaymentProcessing, PaymentPaid, PaymentCancelled, PaymentExpired},
	PaymentExpired:           {PaymentCancelled},
	PaymentPaid:              {PaymentPartiallyRefunded, PaymentRefunded},
	PaymentPartiallyRefunded: {PaymentRefunded},
	PaymentRefunded:          {},
	PaymentCancelled:         {},
}

// fulfilledStatuses never move back to pending or processing.
var fulfilledStatuses = map[OrderStatus]bool{
	StatusShipped:   true,
	StatusDelivered: true,
	StatusCompleted: true,
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	if from == to || from == "" {
		return true
	}
	for _, allowed := range allowedPaymentTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func canTransitionStatus(from, to OrderStatus) bool {
	if from == to || from == "" {
		return true
	}
	if fulfilledStatuses[from] && (to == StatusPending || to == StatusProcessing) {
		return false
	}
	if from == StatusRefunded && to != StatusDisputed {
		return false
	}
	return true
}

// Outcome describes what applying an Update did to an order.
type Outcome struct {
	Changed bool
	// Blocked is set when a status change was refused to keep statuses monotonic.
	Blocked bool
}

// Apply mutates the order in place. A refused payment status change also suppresses the
// order status change and failure reason that travel with it; annotations are always applied.
func (o *Order) Apply(u Update) Outcome {
	outcome := Outcome{}

	statusAllowed := true
	if u.PaymentStatus != "" && u.PaymentStatus != o.PaymentStatus {
		if CanTransitionPayment(o.PaymentStatus, u.PaymentStatus) {
			o.PaymentStatus = u.PaymentStatus
			outcome.Changed = true
		} else {
			statusAllowed = false
			outcome.Blocked = true
		}
	}

	if u.ReopenCancelled && u.Status == "" && statusAllowed && o.Status == StatusCancelled && o.PaymentStatus == PaymentPaid {
		u.Status = StatusProcessing
	}

	if u.Status != "" && u.Status != o.Status && statusAllowed {
		if canTransitionStatus(o.Status, u.Status) {
			o.Status = u.Status
			outcome.Changed = true
		} else {
			outcome.Blocked = true
		}
	}

	if statusAllowed {
		setIfDifferent(&o.FailureReason, u.FailureReason, &outcome)
	}
	setIfDifferent(&o.ReceiptURL, u.ReceiptURL, &outcome)
	setIfDifferent(&o.DisputeID, u.DisputeID, &outcome)
	setIfDifferent(&o.DisputeReason, u.DisputeReason, &outcome)
	setIfDifferent(&o.InvoicePDF, u.InvoicePDF, &outcome)
	setIfDifferent(&o.HostedInvoiceURL, u.HostedInvoiceURL, &outcome)
	setIfEmpty(&o.PaymentIntentID, u.PaymentIntentID, &outcome)
	setIfEmpty(&o.InvoiceID, u.InvoiceID, &outcome)
	setIfEmpty(&o.ChargeID, u.ChargeID, &outcome)

	return outcome
}

func setIfDifferent(field *string, value string, outcome *Outcome) {
	if value != "" && *field != value {
		*field = value
		outcome.Changed = true
	}
}

// correlation ids are write-once
func setIfEmpty(field *string, value string, outcome *Outcome) {
	if value != "" && *field == "" {
		*field = value
		outcome.Changed = true
	}
}
