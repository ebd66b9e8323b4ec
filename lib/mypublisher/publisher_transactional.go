package mypublisher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/MarcGrol/stripeshop/lib/mycontext"
	"github.com/MarcGrol/stripeshop/lib/myevents"
	"github.com/MarcGrol/stripeshop/lib/myhttp"
	"github.com/MarcGrol/stripeshop/lib/mylog"
	"github.com/MarcGrol/stripeshop/lib/mypubsub"
	"github.com/MarcGrol/stripeshop/lib/myqueue"
	"github.com/MarcGrol/stripeshop/lib/mystore"
	"github.com/MarcGrol/stripeshop/lib/mytime"
)

// transactionalPublisher writes events into an outbox within the caller's transaction.
// A queued task later moves unpublished envelopes to pubsub.
type transactionalPublisher struct {
	logger    mylog.Logger
	outbox    mystore.Store[myevents.EventEnvelope]
	queue     myqueue.TaskQueuer
	enveloper enveloper
	pubsub    mypubsub.PubSub
}

func New(c context.Context, outbox mystore.Store[myevents.EventEnvelope], pubsub mypubsub.PubSub, queue myqueue.TaskQueuer, nower mytime.Nower) *transactionalPublisher {
	return &transactionalPublisher{
		logger:    mylog.New("transactionalPublisher"),
		outbox:    outbox,
		queue:     queue,
		enveloper: newEnveloper(nower),
		pubsub:    pubsub,
	}
}

func (p *transactionalPublisher) RegisterEndpoints(c context.Context, router *mux.Router) {
	router.HandleFunc("/pubsub/{topic}/{uid}", p.processTriggerPage()).Methods("PUT")
}

func (p *transactionalPublisher) CreateTopic(c context.Context, topicName string) error {
	return p.pubsub.CreateTopic(c, topicName)
}

func (p *transactionalPublisher) Publish(c context.Context, topic string, event myevents.Event) error {
	envelope, err := p.enveloper.wrap(topic, event)
	if err != nil {
		return fmt.Errorf("error creating envelope: %s", err)
	}

	_, exists, err := p.outbox.Get(c, envelope.UID)
	if err != nil {
		return fmt.Errorf("error fetching envelope: %s", err)
	}
	if exists {
		// identical event already in outbox
		return nil
	}

	err = p.outbox.Put(c, envelope.UID, envelope)
	if err != nil {
		return fmt.Errorf("error storing envelope: %s", err)
	}

	err = p.queue.Enqueue(c, myqueue.Task{
		UID:            envelope.UID,
		WebhookURLPath: fmt.Sprintf("/pubsub/%s/%s", envelope.Topic, envelope.UID),
		Payload:        []byte{},
	})
	if err != nil {
		return fmt.Errorf("error queueing publication-trigger %s: %s", envelope.UID, err)
	}

	p.logger.Log(c, envelope.AggregateUID, mylog.SeverityDebug, "Enqueued event %s", envelope.String())

	return nil
}

func (p *transactionalPublisher) processTriggerPage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		c := mycontext.ContextFromHTTPRequest(r)
		errorWriter := myhttp.NewWriter(p.logger)

		topicName := mux.Vars(r)["topic"]
		eventUID := mux.Vars(r)["uid"]

		published, err := p.processTrigger(c, topicName, eventUID)
		if err != nil {
			attempts, maxAttempts := p.queue.IsLastAttempt(c, eventUID)
			if maxAttempts > 0 && attempts >= maxAttempts {
				p.logger.Log(c, eventUID, mylog.SeverityError, "Giving up on trigger %s/%s after %d attempts: %s", topicName, eventUID, attempts, err)
			}
			errorWriter.WriteError(c, w, 1, err)
			return
		}

		errorWriter.Write(c, w, http.StatusOK, myhttp.SuccessResponse{
			Message: fmt.Sprintf("Successfully processed trigger: published %d events", published),
		})
	}
}

func (p *transactionalPublisher) processTrigger(c context.Context, topicName string, uid string) (int, error) {
	published := 0
	err := p.outbox.RunInTransaction(c, func(c context.Context) error {
		// must be idempotent
		published = 0

		// fetch all envelopes that are not yet published
		envelopes, err := p.outbox.Query(c, []mystore.Filter{{Field: "Published", Compare: "=", Value: false}}, "CreatedAt")
		if err != nil {
			return fmt.Errorf("error fetching envelopes: %s", err)
		}
		p.logger.Log(c, uid, mylog.SeverityDebug, "Trigger for %s/%s found %d unpublished events", topicName, uid, len(envelopes))

		for _, envelope := range envelopes {
			jsonBytes, err := json.Marshal(envelope)
			if err != nil {
				return fmt.Errorf("error serializing event: %s", err)
			}

			err = p.pubsub.Publish(c, envelope.Topic, string(jsonBytes))
			if err != nil {
				return fmt.Errorf("error publishing event: %s", err)
			}

			// mark as published
			envelope.Published = true
			err = p.outbox.Put(c, envelope.UID, envelope)
			if err != nil {
				return fmt.Errorf("error store envelope: %s", err)
			}
			published++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	return published, nil
}
