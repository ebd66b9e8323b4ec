package orderhistory

import (
	"context"
	"fmt"

	"github.com/MarcGrol/stripeshop/lib/myerrors"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/lib/mypubsub"
	"github.com/MarcGrol/stripeshop/lib/mystore"
	"github.com/MarcGrol/stripeshop/lib/mytime"
	"github.com/MarcGrol/stripeshop/services/orders"
	"github.com/MarcGrol/stripeshop/services/orders/orderevents"
)

const eventPath = "/api/orders/history/event"

type service struct {
	logger        mylog.Logger
	nower         mytime.Nower
	subscriber    mypubsub.PubSub
	timelineStore mystore.Store[Timeline]
	baseURL       string
}

// Use dependency injection to isolate the infrastructure and ease testing
func newService(logger mylog.Logger, nower mytime.Nower, subscriber mypubsub.PubSub, timelineStore mystore.Store[Timeline], baseURL string) *service {
	return &service{
		logger:        logger,
		nower:         nower,
		subscriber:    subscriber,
		timelineStore: timelineStore,
		baseURL:       baseURL,
	}
}

func (s *service) Subscribe(c context.Context) error {
	err := s.subscriber.Subscribe(c, orderevents.TopicName, s.baseURL+eventPath)
	if err != nil {
		return fmt.Errorf("error subscribing to topic %s: %s", orderevents.TopicName, err)
	}
	return nil
}

func (s *service) OnOrderCreated(c context.Context, topic string, event orderevents.OrderCreated) error {
	return s.record(c, event.OrderUID, Entry{
		EventType:     event.GetEventTypeName(),
		Status:        event.Status,
		PaymentStatus: event.PaymentStatus,
		AmountInCents: event.AmountInCents,
		Description:   fmt.Sprintf("Order created for %.2f %s", orders.ToMajorUnits(event.AmountInCents), event.Currency),
		CauseID:       event.Cause.ID,
		CauseType:     event.Cause.Type,
	})
}

func (s *service) OnOrderStatusChanged(c context.Context, topic string, event orderevents.OrderStatusChanged) error {
	return s.record(c, event.OrderUID, Entry{
		EventType:     event.GetEventTypeName(),
		Status:        event.NewStatus,
		PaymentStatus: event.NewPaymentStatus,
		Description:   fmt.Sprintf("Status %s/%s -> %s/%s", event.OldStatus, event.OldPaymentStatus, event.NewStatus, event.NewPaymentStatus),
		CauseID:       event.Cause.ID,
		CauseType:     event.Cause.Type,
	})
}

func (s *service) OnOrderRefunded(c context.Context, topic string, event orderevents.OrderRefunded) error {
	verb, amount := "Refunded", event.AmountInCents
	if amount < 0 {
		verb, amount = "Refund reversed", -amount
	}
	description := fmt.Sprintf("%s %.2f, %.2f of %.2f in total", verb, orders.ToMajorUnits(amount),
		orders.ToMajorUnits(event.RefundedAmountInCents), orders.ToMajorUnits(event.TotalAmountInCents))
	return s.record(c, event.OrderUID, Entry{
		EventType:     event.GetEventTypeName(),
		PaymentStatus: event.PaymentStatus,
		AmountInCents: event.AmountInCents,
		RefundID:      event.RefundID,
		Description:   description,
		CauseID:       event.Cause.ID,
		CauseType:     event.Cause.Type,
	})
}

func (s *service) OnOrderDisputed(c context.Context, topic string, event orderevents.OrderDisputed) error {
	return s.record(c, event.OrderUID, Entry{
		EventType:   event.GetEventTypeName(),
		Status:      string(orders.StatusDisputed),
		DisputeID:   event.DisputeID,
		Description: fmt.Sprintf("Disputed: %s", event.Reason),
		CauseID:     event.Cause.ID,
		CauseType:   event.Cause.Type,
	})
}

func (s *service) record(c context.Context, orderUID string, entry Entry) error {
	now := s.nower.Now()
	entry.Timestamp = now

	appended := false
	err := s.timelineStore.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent
		timeline, found, err := s.timelineStore.Get(c, orderUID)
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error fetching history of %s: %s", orderUID, err))
		}
		if !found {
			timeline = Timeline{OrderUID: orderUID}
		}

		appended = timeline.append(entry)
		if !appended {
			return nil
		}
		timeline.LastModified = now

		err = s.timelineStore.Put(c, orderUID, timeline)
		if err != nil {
			return myerrors.NewInternalError(fmt.Errorf("error storing history of %s: %s", orderUID, err))
		}
		return nil
	})
	if err != nil {
		return err
	}

	if appended {
		s.logger.Log(c, orderUID, mylog.SeverityInfo, "History of %s: %s", orderUID, entry.Description)
	} else {
		s.logger.Log(c, orderUID, mylog.SeverityDebug, "History of %s: duplicate %s from %s ignored", orderUID, entry.EventType, entry.CauseID)
	}

	return nil
}

func (s *service) history(c context.Context, orderUID string) (Timeline, error) {
	timeline, found, err := s.timelineStore.Get(c, orderUID)
	if err != nil {
		return Timeline{}, myerrors.NewInternalError(fmt.Errorf("error fetching history of %s: %s", orderUID, err))
	}
	if !found {
		return Timeline{}, myerrors.NewNotFoundError(fmt.Errorf("No history found for order %s", orderUID))
	}
	return timeline, nil
}
