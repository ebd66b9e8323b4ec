package orderevents

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/myevents"
)

const (
	TopicName              = "order"
	orderCreatedName       = TopicName + ".created"
	orderStatusChangedName = TopicName + ".statusChanged"
	orderRefundedName      = TopicName + ".refunded"
	orderDisputedName      = TopicName + ".disputed"
)

//go:generate mockgen -source=events.go -package orderevents -destination order_event_service_mock.go OrderEventService
type OrderEventService interface {
	OnOrderCreated(c context.Context, topic string, event OrderCreated) error
	OnOrderStatusChanged(c context.Context, topic string, event OrderStatusChanged) error
	OnOrderRefunded(c context.Context, topic string, event OrderRefunded) error
	OnOrderDisputed(c context.Context, topic string, event OrderDisputed) error
}

func DispatchEvent(c context.Context, reader io.Reader, service OrderEventService) error {
	envelope, err := myevents.ParseEventEnvelope(reader)
	if err != nil {
		return myerrors.NewInvalidInputError(err)
	}

	switch envelope.EventTypeName {
	case orderCreatedName:
		event := OrderCreated{}
		err := json.Unmarshal([]byte(envelope.EventPayload), &event)
		if err != nil {
			return myerrors.NewInvalidInputError(err)
		}
		return service.OnOrderCreated(c, envelope.Topic, event)
	case orderStatusChangedName:
		event := OrderStatusChanged{}
		err := json.Unmarshal([]byte(envelope.EventPayload), &event)
		if err != nil {
			return myerrors.NewInvalidInputError(err)
		}
		return service.OnOrderStatusChanged(c, envelope.Topic, event)
	case orderRefundedName:
		event := OrderRefunded{}
		err := json.Unmarshal([]byte(envelope.EventPayload), &event)
		if err != nil {
			return myerrors.NewInvalidInputError(err)
		}
		return service.OnOrderRefunded(c, envelope.Topic, event)
	case orderDisputedName:
		event := OrderDisputed{}
		err := json.Unmarshal([]byte(envelope.EventPayload), &event)
		if err != nil {
			return myerrors.NewInvalidInputError(err)
		}
		return service.OnOrderDisputed(c, envelope.Topic, event)
	default:
		return myerrors.NewNotImplementedError(fmt.Errorf("unsupported event type %s", envelope.EventTypeName))
	}
}

// Cause identifies what triggered a change: a webhook event id or an api request id.
type Cause struct {
	ID   string
	Type string
}

type OrderCreated struct {
	OrderUID      string
	SessionID     string
	Status        string
	PaymentStatus string
	AmountInCents int64
	Currency      string
	Cause         Cause
}

func (e OrderCreated) GetEventTypeName() string {
	return orderCreatedName
}

func (e OrderCreated) GetAggregateName() string {
	return e.OrderUID
}

type OrderStatusChanged struct {
	OrderUID         string
	OldStatus        string
	NewStatus        string
	OldPaymentStatus string
	NewPaymentStatus string
	Cause            Cause
}

func (e OrderStatusChanged) GetEventTypeName() string {
	return orderStatusChangedName
}

func (e OrderStatusChanged) GetAggregateName() string {
	return e.OrderUID
}

type OrderRefunded struct {
	OrderUID              string
	RefundID              string
	AmountInCents         int64
	RefundedAmountInCents int64
	TotalAmountInCents    int64
	PaymentStatus         string
	Cause                 Cause
}

func (e OrderRefunded) GetEventTypeName() string {
	return orderRefundedName
}

func (e OrderRefunded) GetAggregateName() string {
	return e.OrderUID
}

type OrderDisputed struct {
	OrderUID  string
	DisputeID string
	Reason    string
	Cause     Cause
}

func (e OrderDisputed) GetEventTypeName() string {
	return orderDisputedName
}

func (e OrderDisputed) GetAggregateName() string {
	return e.OrderUID
}
