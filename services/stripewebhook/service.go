package stripewebhook

import (
	"context"
	"fmt"

	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/lib/mymetrics"
	"github.com/MarcGrol/stripeshop/lib/mytime"
	"github.com/MarcGrol/stripeshop/services/orders"
)

type service struct {
	logger   mylog.Logger
	nower    mytime.Nower
	gate     gate
	journal  Journal
	handlers map[EventType]handlerFunc
}

// Use dependency injection to isolate the infrastructure and ease testing
func newService(webhookSecret string, logger mylog.Logger, nower mytime.Nower, journal Journal, orderService *orders.Service) *service {
	h := &handlers{
		logger: logger,
		orders: orderService,
	}
	return &service{
		logger:   logger,
		nower:    nower,
		gate:     newGate(webhookSecret),
		journal:  journal,
		handlers: h.table(),
	}
}

// receive verifies and processes one delivery. Only an unverifiable delivery is reported
// as error; everything after verification is acknowledged.
func (s *service) receive(c context.Context, payload []byte, signatureHeader string) (Event, Outcome, error) {
	event, err := s.gate.verify(payload, signatureHeader)
	if err != nil {
		mymetrics.RecordWebhookEvent("unverified", "rejected")
		return Event{}, "", err
	}

	outcome := s.dispatch(c, event)
	mymetrics.RecordWebhookEvent(string(event.Type), string(outcome))

	return event, outcome, nil
}

func (s *service) dispatch(c context.Context, event Event) Outcome {
	handled, err := s.journal.IsHandled(c, event.ID)
	if err != nil {
		s.logger.Log(c, event.ID, mylog.SeverityWarn, "Error consulting journal for %s: %s", event.ID, err)
	}
	if handled {
		s.logger.Log(c, event.ID, mylog.SeverityInfo, "Event %s (%s) already handled", event.ID, event.Type)
		return OutcomeDuplicate
	}

	outcome, handlerErr := s.invoke(c, event)

	now := s.nower.Now()
	entry := WebhookEvent{
		EventID:    event.ID,
		EventType:  string(event.Type),
		Outcome:    outcome,
		Attempts:   1,
		ReceivedAt: now,
		UpdatedAt:  now,
	}
	if handlerErr != nil {
		entry.LastError = truncate(handlerErr.Error(), 1024)
	}
	err = s.journal.Record(c, entry)
	if err != nil {
		s.logger.Log(c, event.ID, mylog.SeverityWarn, "Error journaling %s: %s", event.ID, err)
	}

	return outcome
}

func (s *service) invoke(c context.Context, event Event) (outcome Outcome, err error) {
	handler, found := s.handlers[event.Type]
	if !found {
		s.logger.Log(c, event.ID, mylog.SeverityInfo, "Unhandled event type: %s", event.Type)
		return OutcomeUnhandled, nil
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic handling %s: %v", event.Type, r)
			s.logger.Log(c, event.ID, mylog.SeverityError, "Error processing %s (%s): %s", event.Type, event.ID, err)
			outcome = OutcomeFailed
		}
	}()

	err = handler(c, event)
	if err != nil {
		s.logger.Log(c, event.ID, mylog.SeverityError, "Error processing %s (%s): %s", event.Type, event.ID, err)
		return OutcomeFailed, err
	}

	s.logger.Log(c, event.ID, mylog.SeverityInfo, "Processed %s (%s)", event.Type, event.ID)
	return OutcomeHandled, nil
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
