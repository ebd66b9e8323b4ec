package mypublisher

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"

	"github.com/MarcGrol/stripeshop/lib/myevents"
	"github.com/MarcGrol/stripeshop/lib/mytime"
)

type enveloper struct {
	nower mytime.Nower
}

func newEnveloper(nower mytime.Nower) enveloper {
	return enveloper{
		nower: nower,
	}
}

// wrap derives the envelope uid from its content, so republishing the same event
// for the same cause yields the same outbox entry.
func (e enveloper) wrap(topic string, event myevents.Event) (myevents.EventEnvelope, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return myevents.EventEnvelope{}, fmt.Errorf("error marshalling %s payload: %s", event.GetEventTypeName(), err)
	}

	return myevents.EventEnvelope{
		UID:           envelopeUID(topic, event.GetAggregateName(), event.GetEventTypeName(), payload),
		CreatedAt:     e.nower.Now(),
		Topic:         topic,
		AggregateUID:  event.GetAggregateName(),
		EventTypeName: event.GetEventTypeName(),
		EventPayload:  string(payload),
	}, nil
}

func envelopeUID(topic string, aggregateUID string, eventTypeName string, payload []byte) string {
	h := sha256.New()
	for _, part := range []string{topic, aggregateUID, eventTypeName} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	h.Write(payload)
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}
