package orders

import (
	"context"
	"fmt"
	"time"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/myevents"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/lib/mypublisher"
	"github.com/MarcGrol/stripeshop/lib/mytime"
	"github.com/MarcGrol/stripeshop/services/orders/orderevents"
)

type Cause = orderevents.Cause

// CheckoutSnapshot is the immutable purchase data a checkout session carries.
type CheckoutSnapshot struct {
	SessionID       string
	PaymentIntentID string
	InvoiceID       string
	// SessionPaymentStatus is the processor's view: paid, unpaid or no_payment_required.
	SessionPaymentStatus string

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

	ShippingName    string
	ShippingAddress Address
	BillingAddress  Address
}

type TransitionResult string

const (
	ResultCreated   TransitionResult = "created"
	ResultApplied   TransitionResult = "applied"
	ResultUnchanged TransitionResult = "unchanged"
	ResultBlocked   TransitionResult = "blocked"
	ResultNotFound  TransitionResult = "notFound"
)

type Service struct {
	logger    mylog.Logger
	nower     mytime.Nower
	ledger    *Ledger
	publisher mypublisher.Publisher
}

// Use dependency injection to isolate the infrastructure and ease testing
func NewService(ledger *Ledger, nower mytime.Nower, publisher mypublisher.Publisher) *Service {
	return &Service{
		logger:    mylog.New("orders"),
		nower:     nower,
		ledger:    ledger,
		publisher: publisher,
	}
}

func (s *Service) Find(c context.Context, key Key) (Order, bool, error) {
	return s.ledger.Find(c, key)
}

func (s *Service) List(c context.Context) ([]Order, error) {
	return s.ledger.List(c)
}

// Materialize creates the order for a completed checkout unless one already exists.
// An order created earlier from a failure event on the same payment intent is adopted:
// it receives the session id and any snapshot data it lacks, but keeps its statuses.
func (s *Service) Materialize(c context.Context, snapshot CheckoutSnapshot, cause Cause) (Order, bool, error) {
	if snapshot.SessionID == "" {
		return Order{}, false, myerrors.NewInvalidInputErrorf("checkout session without id")
	}

	now := s.nower.Now()
	created := false
	order := Order{}

	err := s.ledger.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent
		created = false

		existing, found, err := s.ledger.Find(c, SessionKey(snapshot.SessionID))
		if err != nil {
			return err
		}
		if found {
			order = existing
			return nil
		}

		placeholder, found, err := s.ledger.Find(c, PaymentIntentKey(snapshot.PaymentIntentID))
		if err != nil {
			return err
		}
		if found {
			adopt(&placeholder, snapshot)
			placeholder.LastModified = now
			placeholder.LastEventID = cause.ID
			order = placeholder
			return s.ledger.Put(c, placeholder)
		}

		order = newOrder(snapshot, now, cause)
		err = s.ledger.Put(c, order)
		if err != nil {
			return err
		}

		err = s.publish(c, orderCreated(order, cause))
		if err != nil {
			return err
		}

		created = true
		return nil
	})
	if err != nil {
		return Order{}, false, err
	}

	if created {
		s.logger.Log(c, order.UID, mylog.SeverityInfo, "Created %s from %s", order, cause.Type)
	} else {
		s.logger.Log(c, order.UID, mylog.SeverityDebug, "Order for session %s already exists", snapshot.SessionID)
	}

	return order, created, nil
}

func newOrder(snapshot CheckoutSnapshot, now time.Time, cause Cause) Order {
	paymentStatus := PaymentPending
	if snapshot.SessionPaymentStatus == "paid" {
		paymentStatus = PaymentPaid
	}
	order := Order{
		UID:           snapshot.SessionID,
		Status:        StatusProcessing,
		PaymentStatus: paymentStatus,
		CreatedAt:     now,
		LastModified:  now,
		LastEventID:   cause.ID,
	}
	adopt(&order, snapshot)
	return order
}

// adopt copies snapshot data into the fields the order does not have yet.
func adopt(order *Order, snapshot CheckoutSnapshot) {
	fill := func(field *string, value string) {
		if *field == "" {
			*field = value
		}
	}
	fillAmount := func(field *int64, value int64) {
		if *field == 0 {
			*field = value
		}
	}

	fill(&order.SessionID, snapshot.SessionID)
	fill(&order.PaymentIntentID, snapshot.PaymentIntentID)
	fill(&order.InvoiceID, snapshot.InvoiceID)
	if order.CustomerEmail == "" || order.CustomerEmail == unknownEmail {
		order.CustomerEmail = snapshot.CustomerEmail
	}
	fill(&order.CustomerName, snapshot.CustomerName)
	fill(&order.CustomerPhone, snapshot.CustomerPhone)
	if len(order.Items) == 0 {
		order.Items = snapshot.Items
		order.ItemsUnavailable = snapshot.ItemsUnavailable
	}
	fillAmount(&order.TotalAmountInCents, snapshot.TotalAmountInCents)
	fillAmount(&order.SubtotalInCents, snapshot.SubtotalInCents)
	fillAmount(&order.ShippingCostInCents, snapshot.ShippingCostInCents)
	fillAmount(&order.TaxInCents, snapshot.TaxInCents)
	fillAmount(&order.DiscountInCents, snapshot.DiscountInCents)
	fill(&order.Currency, snapshot.Currency)
	fill(&order.ShippingName, snapshot.ShippingName)
	if order.ShippingAddress == (Address{}) {
		order.ShippingAddress = snapshot.ShippingAddress
	}
	if order.BillingAddress == (Address{}) {
		order.BillingAddress = snapshot.BillingAddress
	}
	if order.CustomerEmail == "" {
		order.CustomerEmail = unknownEmail
	}
}

const unknownEmail = "unknown"

// Placeholder builds the minimal order a failure or expiry event creates when it arrives
// before the order exists.
func Placeholder(uid string, snapshot CheckoutSnapshot, status OrderStatus, paymentStatus PaymentStatus, failureReason string) Order {
	order := Order{
		UID:           uid,
		Status:        status,
		PaymentStatus: paymentStatus,
		FailureReason: failureReason,
	}
	adopt(&order, snapshot)
	return order
}

// Transition applies a narrow update to the order correlated by key. When no order
// matches and placeholder is given, the placeholder is stored instead.
func (s *Service) Transition(c context.Context, key Key, update Update, placeholder *Order, cause Cause) (Order, TransitionResult, error) {
	now := s.nower.Now()
	result := ResultNotFound
	order := Order{}

	err := s.ledger.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent
		result = ResultNotFound

		existing, found, err := s.ledger.Find(c, key)
		if err != nil {
			return err
		}

		if !found {
			if placeholder == nil {
				return nil
			}
			order = *placeholder
			order.CreatedAt = now
			order.LastModified = now
			order.LastEventID = cause.ID
			err = s.ledger.Put(c, order)
			if err != nil {
				return err
			}
			result = ResultCreated
			return s.publish(c, orderCreated(order, cause))
		}

		before := existing
		order = existing
		outcome := order.Apply(update)
		switch {
		case outcome.Changed:
			result = ResultApplied
		case outcome.Blocked:
			result = ResultBlocked
		default:
			result = ResultUnchanged
		}
		if !outcome.Changed {
			return nil
		}

		order.LastModified = now
		order.LastEventID = cause.ID
		err = s.ledger.Put(c, order)
		if err != nil {
			return err
		}
		return s.publishChanges(c, before, order, cause)
	})
	if err != nil {
		return Order{}, result, err
	}

	switch result {
	case ResultBlocked:
		s.logger.Log(c, key.String(), mylog.SeverityWarn, "Refused %s: %s would move payment status %s to %s", cause.Type, order.UID, order.PaymentStatus, update.PaymentStatus)
	case ResultNotFound:
		s.logger.Log(c, key.String(), mylog.SeverityInfo, "No order for %s on %s", key, cause.Type)
	default:
		s.logger.Log(c, key.String(), mylog.SeverityInfo, "%s on %s: %s", cause.Type, order, result)
	}

	return order, result, nil
}

func (s *Service) publishChanges(c context.Context, before Order, after Order, cause Cause) error {
	if before.Status != after.Status || before.PaymentStatus != after.PaymentStatus {
		err := s.publish(c, orderevents.OrderStatusChanged{
			OrderUID:         after.UID,
			OldStatus:        string(before.Status),
			NewStatus:        string(after.Status),
			OldPaymentStatus: string(before.PaymentStatus),
			NewPaymentStatus: string(after.PaymentStatus),
			Cause:            cause,
		})
		if err != nil {
			return err
		}
	}
	if before.DisputeID != after.DisputeID && after.DisputeID != "" {
		err := s.publish(c, orderevents.OrderDisputed{
			OrderUID:  after.UID,
			DisputeID: after.DisputeID,
			Reason:    after.DisputeReason,
			Cause:     cause,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) publish(c context.Context, event myevents.Event) error {
	err := s.publisher.Publish(c, orderevents.TopicName, event)
	if err != nil {
		return myerrors.NewInternalError(fmt.Errorf("error publishing %s: %s", event.GetEventTypeName(), err))
	}
	return nil
}

func orderCreated(order Order, cause Cause) orderevents.OrderCreated {
	return orderevents.OrderCreated{
		OrderUID:      order.UID,
		SessionID:     order.SessionID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		AmountInCents: order.TotalAmountInCents,
		Currency:      order.Currency,
		Cause:         cause,
	}
}

var fulfillmentStatuses = map[OrderStatus]bool{
	StatusProcessing: true,
	StatusShipped:    true,
	StatusDelivered:  true,
	StatusCompleted:  true,
	StatusCancelled:  true,
}

// UpdateFulfillment moves an order through the merchant-side lifecycle. Shipping requires
// an accepted payment, and a paid order cannot be cancelled before it is refunded.
func (s *Service) UpdateFulfillment(c context.Context, orderUID string, status OrderStatus, cause Cause) (Order, error) {
	if !fulfillmentStatuses[status] {
		return Order{}, myerrors.NewInvalidInputErrorf("Invalid order status %q", status)
	}

	order, found, err := s.ledger.Find(c, OrderKey(orderUID))
	if err != nil {
		return Order{}, err
	}
	if !found {
		return Order{}, myerrors.NewNotFoundError(fmt.Errorf("Order not found"))
	}

	paid := order.PaymentStatus == PaymentPaid || order.PaymentStatus == PaymentPartiallyRefunded
	if status != StatusCancelled && status != StatusProcessing && !paid {
		return Order{}, myerrors.NewConflictError(fmt.Errorf("Order payment is %s", order.PaymentStatus)).
			WithDetail("currentStatus", order.Status)
	}
	if status == StatusCancelled && paid {
		return Order{}, myerrors.NewConflictError(fmt.Errorf("Paid order must be refunded before cancelling")).
			WithDetail("currentStatus", order.Status)
	}

	order, result, err := s.Transition(c, OrderKey(orderUID), Update{Status: status}, nil, cause)
	if err != nil {
		return Order{}, err
	}
	if result == ResultBlocked {
		return Order{}, myerrors.NewConflictError(fmt.Errorf("Order cannot move from %s to %s", order.Status, status)).
			WithDetail("currentStatus", order.Status)
	}
	return order, nil
}
