package orders

import (
	"errors"
	"math"
	"time"
)

type OrderStatus string

const (
	StatusPending           OrderStatus = "pending"
	StatusProcessing        OrderStatus = "processing"
	StatusShipped           OrderStatus = "shipped"
	StatusDelivered         OrderStatus = "delivered"
	StatusCompleted         OrderStatus = "completed"
	StatusCancelled         OrderStatus = "cancelled"
	StatusRefunded          OrderStatus = "refunded"
	StatusPartiallyRefunded OrderStatus = "partially_refunded"
	StatusDisputed          OrderStatus = "disputed"
)

type PaymentStatus string

const (
	PaymentPending           PaymentStatus = "pending"
	PaymentProcessing        PaymentStatus = "processing"
	PaymentPaid              PaymentStatus = "paid"
	PaymentFailed            PaymentStatus = "failed"
	PaymentRefunded          PaymentStatus = "refunded"
	PaymentPartiallyRefunded PaymentStatus = "partially_refunded"
	PaymentCancelled         PaymentStatus = "cancelled"
	PaymentExpired           PaymentStatus = "expired"
)

type RefundReason string

const (
	ReasonDuplicate           RefundReason = "duplicate"
	ReasonFraudulent          RefundReason = "fraudulent"
	ReasonRequestedByCustomer RefundReason = "requested_by_customer"
	ReasonOther               RefundReason = "other"
)

type RefundStatus string

const (
	RefundPending   RefundStatus = "pending"
	RefundSucceeded RefundStatus = "succeeded"
	RefundFailed    RefundStatus = "failed"
	RefundCanceled  RefundStatus = "canceled"
)

type Item struct {
	ProductID    string
	Name         string
	PriceInCents int64
	Quantity     int64
	Image        string `datastore:",noindex"`
}

type Address struct {
	Line1      string
	Line2      string
	City       string
	State      string
	PostalCode string
	Country    string
}

// Refund is an immutable ledger entry. A later entry with the same RefundID supersedes an earlier one.
// ReservationUID is set when the refund was created under a reservation of this service.
type Refund struct {
	RefundID       string
	AmountInCents  int64
	Reason         RefundReason
	Status         RefundStatus
	CreatedAt      time.Time
	ReservationUID string
}

// Reservation claims refundable amount while a refund is in flight at the processor.
type Reservation struct {
	UID           string
	AmountInCents int64
	CreatedAt     time.Time
}

type Order struct {
	UID             string
	SessionID       string
	PaymentIntentID string
	InvoiceID       string

	CustomerEmail string
	CustomerName  string
	CustomerPhone string

	Items            []Item
	ItemsUnavailable bool

	TotalAmountInCents  int64
	SubtotalInCents     int64
	ShippingCostInCents int64
	TaxInCents          int64
	DiscountInCents     int64
	Currency            string

	Status        OrderStatus
	PaymentStatus PaymentStatus

	Refunds               []Refund
	PendingRefunds        []Reservation
	RefundedAmountInCents int64
	// ChargeRefundedInCents is the cumulative refunded amount last reported by the processor.
	ChargeRefundedInCents int64
	ChargeID              string

	FailureReason    string `datastore:",noindex"`
	DisputeID        string
	DisputeReason    string
	ReceiptURL       string `datastore:",noindex"`
	InvoicePDF       string `datastore:",noindex"`
	HostedInvoiceURL string `datastore:",noindex"`

	ShippingName    string
	ShippingAddress Address
	BillingAddress  Address

	CreatedAt    time.Time
	LastModified time.Time
	LastEventID  string
}

func ToMajorUnits(amountInCents int64) float64 {
	return float64(amountInCents) / 100
}

// MaxAmount bounds amounts accepted from callers, so that their minor units fit in an int64.
const MaxAmount = 1e13

var ErrAmountOutOfRange = errors.New("amount out of range")

func ToMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

// ParseMinorUnits converts an amount given by a caller. Amounts that are not finite or
// exceed MaxAmount in either direction are rejected instead of wrapping around.
func ParseMinorUnits(amount float64) (int64, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || math.Abs(amount) > MaxAmount {
		return 0, ErrAmountOutOfRange
	}
	return ToMinorUnits(amount), nil
}
