package orders

import "time"

// OrderView is the json representation of an order. Amounts are in major units.
type OrderView struct {
	ID               string        `json:"id"`
	SessionID        string        `json:"sessionId,omitempty"`
	PaymentIntentID  string        `json:"paymentIntentId,omitempty"`
	InvoiceID        string        `json:"invoiceId,omitempty"`
	CustomerEmail    string        `json:"customerEmail"`
	CustomerName     string        `json:"customerName,omitempty"`
	CustomerPhone    string        `json:"customerPhone,omitempty"`
	Items            []ItemView    `json:"items"`
	ItemsUnavailable bool          `json:"itemsUnavailable,omitempty"`
	TotalAmount      float64       `json:"totalAmount"`
	Subtotal         float64       `json:"subtotal"`
	ShippingCost     float64       `json:"shippingCost"`
	Tax              float64       `json:"tax"`
	Discount         float64       `json:"discount"`
	Currency         string        `json:"currency"`
	Status           OrderStatus   `json:"status"`
	PaymentStatus    PaymentStatus `json:"paymentStatus"`
	Refunds          []RefundView  `json:"refunds"`
	RefundedAmount   float64       `json:"refundedAmount"`
	RefundableAmount float64       `json:"refundableAmount"`
	FailureReason    string        `json:"failureReason,omitempty"`
	DisputeID        string        `json:"disputeId,omitempty"`
	DisputeReason    string        `json:"disputeReason,omitempty"`
	ReceiptURL       string        `json:"receiptUrl,omitempty"`
	InvoicePDF       string        `json:"invoicePdf,omitempty"`
	HostedInvoiceURL string        `json:"hostedInvoiceUrl,omitempty"`
	ShippingName     string        `json:"shippingName,omitempty"`
	ShippingAddress  *AddressView  `json:"shippingAddress,omitempty"`
	BillingAddress   *AddressView  `json:"billingAddress,omitempty"`
	CreatedAt        time.Time     `json:"createdAt"`
	UpdatedAt        time.Time     `json:"updatedAt"`
}

type ItemView struct {
	ProductID string  `json:"productId,omitempty"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int64   `json:"quantity"`
	Image     string  `json:"image,omitempty"`
}

type RefundView struct {
	RefundID  string       `json:"refundId"`
	Amount    float64      `json:"amount"`
	Reason    RefundReason `json:"reason"`
	Status    RefundStatus `json:"status"`
	CreatedAt time.Time    `json:"createdAt"`
}

type AddressView struct {
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	State      string `json:"state,omitempty"`
	PostalCode string `json:"postalCode,omitempty"`
	Country    string `json:"country,omitempty"`
}

func NewOrderView(o Order) OrderView {
	items := make([]ItemView, 0, len(o.Items))
	for _, i := range o.Items {
		items = append(items, ItemView{
			ProductID: i.ProductID,
			Name:      i.Name,
			Price:     ToMajorUnits(i.PriceInCents),
			Quantity:  i.Quantity,
			Image:     i.Image,
		})
	}

	return OrderView{
		ID:               o.UID,
		SessionID:        o.SessionID,
		PaymentIntentID:  o.PaymentIntentID,
		InvoiceID:        o.InvoiceID,
		CustomerEmail:    o.CustomerEmail,
		CustomerName:     o.CustomerName,
		CustomerPhone:    o.CustomerPhone,
		Items:            items,
		ItemsUnavailable: o.ItemsUnavailable,
		TotalAmount:      ToMajorUnits(o.TotalAmountInCents),
		Subtotal:         ToMajorUnits(o.SubtotalInCents),
		ShippingCost:     ToMajorUnits(o.ShippingCostInCents),
		Tax:              ToMajorUnits(o.TaxInCents),
		Discount:         ToMajorUnits(o.DiscountInCents),
		Currency:         o.Currency,
		Status:           o.Status,
		PaymentStatus:    o.PaymentStatus,
		Refunds:          NewRefundViews(o.Refunds),
		RefundedAmount:   ToMajorUnits(o.RefundedAmountInCents),
		RefundableAmount: ToMajorUnits(o.RemainingRefundableInCents()),
		FailureReason:    o.FailureReason,
		DisputeID:        o.DisputeID,
		DisputeReason:    o.DisputeReason,
		ReceiptURL:       o.ReceiptURL,
		InvoicePDF:       o.InvoicePDF,
		HostedInvoiceURL: o.HostedInvoiceURL,
		ShippingName:     o.ShippingName,
		ShippingAddress:  NewAddressView(o.ShippingAddress),
		BillingAddress:   NewAddressView(o.BillingAddress),
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.LastModified,
	}
}

// NewRefundViews lists the current state of each refund. Empty placeholder entries are skipped.
func NewRefundViews(refunds []Refund) []RefundView {
	views := []RefundView{}
	for _, r := range LatestRefunds(refunds) {
		if r.AmountInCents == 0 {
			continue
		}
		views = append(views, RefundView{
			RefundID:  r.RefundID,
			Amount:    ToMajorUnits(r.AmountInCents),
			Reason:    r.Reason,
			Status:    r.Status,
			CreatedAt: r.CreatedAt,
		})
	}
	return views
}

func NewAddressView(a Address) *AddressView {
	if a == (Address{}) {
		return nil
	}
	return &AddressView{
		Line1:      a.Line1,
		Line2:      a.Line2,
		City:       a.City,
		State:      a.State,
		PostalCode: a.PostalCode,
		Country:    a.Country,
	}
}
