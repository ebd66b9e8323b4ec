package stripeapi

// Wire representations of the processor objects carried in webhook events. Only the fields
// the order ledger consumes are decoded; unknown fields are ignored so that payloads of
// other api versions decode as well.

type Address struct {
	Line1      string `json:"line1"`
	Line2      string `json:"line2"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type CustomerDetails struct {
	Email   string   `json:"email"`
	Name    string   `json:"name"`
	Phone   string   `json:"phone"`
	Address *Address `json:"address"`
}

type ShippingDetails struct {
	Name    string   `json:"name"`
	Address *Address `json:"address"`
}

type TotalDetails struct {
	AmountDiscount int64 `json:"amount_discount"`
	AmountShipping int64 `json:"amount_shipping"`
	AmountTax      int64 `json:"amount_tax"`
}

type CollectedInformation struct {
	ShippingDetails *ShippingDetails `json:"shipping_details"`
}

type CheckoutSession struct {
	ID                   string                `json:"id"`
	Object               string                `json:"object"`
	Status               string                `json:"status"`
	PaymentStatus        string                `json:"payment_status"`
	PaymentIntent        ExpandableID          `json:"payment_intent"`
	Invoice              ExpandableID          `json:"invoice"`
	CustomerEmail        string                `json:"customer_email"`
	CustomerDetails      *CustomerDetails      `json:"customer_details"`
	ShippingDetails      *ShippingDetails      `json:"shipping_details"`
	CollectedInformation *CollectedInformation `json:"collected_information"`
	AmountTotal          int64                 `json:"amount_total"`
	AmountSubtotal       int64                 `json:"amount_subtotal"`
	TotalDetails         *TotalDetails         `json:"total_details"`
	Currency             string                `json:"currency"`
	Metadata             map[string]string     `json:"metadata"`
	URL                  string                `json:"url"`
}

type PaymentError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ChargeList struct {
	Data []Charge `json:"data"`
}

type PaymentIntent struct {
	ID                 string             `json:"id"`
	Object             string             `json:"object"`
	Status             string             `json:"status"`
	Amount             int64              `json:"amount"`
	Currency           string             `json:"currency"`
	Created            int64              `json:"created"`
	PaymentMethodTypes []string           `json:"payment_method_types"`
	ReceiptEmail       string             `json:"receipt_email"`
	Invoice            ExpandableID       `json:"invoice"`
	LastPaymentError   *PaymentError      `json:"last_payment_error"`
	LatestCharge       Expandable[Charge] `json:"latest_charge"`
	// Charges is only rendered by api versions before 2022-11-15.
	Charges  *ChargeList       `json:"charges"`
	Metadata map[string]string `json:"metadata"`
}

type RefundList struct {
	Data []Refund `json:"data"`
}

type Charge struct {
	ID             string       `json:"id"`
	Object         string       `json:"object"`
	Status         string       `json:"status"`
	Amount         int64        `json:"amount"`
	AmountRefunded int64        `json:"amount_refunded"`
	Refunded       bool         `json:"refunded"`
	Currency       string       `json:"currency"`
	PaymentIntent  ExpandableID `json:"payment_intent"`
	ReceiptURL     string       `json:"receipt_url"`
	FailureCode    string       `json:"failure_code"`
	FailureMessage string       `json:"failure_message"`
	// Refunds is only rendered by api versions before 2022-11-15 or when expanded.
	Refunds *RefundList `json:"refunds"`
}

type Refund struct {
	ID            string            `json:"id"`
	Object        string            `json:"object"`
	Amount        int64             `json:"amount"`
	Currency      string            `json:"currency"`
	Reason        string            `json:"reason"`
	Status        string            `json:"status"`
	Created       int64             `json:"created"`
	Charge        ExpandableID      `json:"charge"`
	PaymentIntent ExpandableID      `json:"payment_intent"`
	Metadata      map[string]string `json:"metadata"`
}

type Dispute struct {
	ID            string       `json:"id"`
	Object        string       `json:"object"`
	Amount        int64        `json:"amount"`
	Reason        string       `json:"reason"`
	Status        string       `json:"status"`
	Charge        ExpandableID `json:"charge"`
	PaymentIntent ExpandableID `json:"payment_intent"`
}

// InvoicePayments links an invoice to its payment intents in api versions from 2025 on.
type InvoicePayments struct {
	Data []struct {
		Payment struct {
			PaymentIntent ExpandableID `json:"payment_intent"`
		} `json:"payment"`
	} `json:"data"`
}

type Invoice struct {
	ID               string           `json:"id"`
	Object           string           `json:"object"`
	Status           string           `json:"status"`
	InvoicePDF       string           `json:"invoice_pdf"`
	HostedInvoiceURL string           `json:"hosted_invoice_url"`
	PaymentIntent    ExpandableID     `json:"payment_intent"`
	Payments         *InvoicePayments `json:"payments"`
}
