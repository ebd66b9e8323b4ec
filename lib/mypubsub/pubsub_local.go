package mypubsub

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/MarcGrol/stripeshop/lib/mylog"
)

type localSubscription struct {
	name        string
	urlToPostTo string
}

// localPubSub keeps topics in memory and pushes every message to the subscribers of its topic.
// Delivery is at most once: a failed push is logged and dropped.
type localPubSub struct {
	sync.Mutex
	logger        mylog.Logger
	httpClient    *http.Client
	subscriptions map[string][]localSubscription
	published     map[string][]string
	sequence      int
	inflight      sync.WaitGroup
}

func init() {
	if os.Getenv("GOOGLE_CLOUD_PROJECT") == "" && os.Getenv("RABBITMQ_URL") == "" {
		New = newLocalPubSub
	}
}

func newLocalPubSub(c context.Context) (PubSub, func(), error) {
	ps := newLocalPubSubWithClient(&http.Client{Timeout: 10 * time.Second})
	return ps, ps.inflight.Wait, nil
}

func newLocalPubSubWithClient(httpClient *http.Client) *localPubSub {
	return &localPubSub{
		logger:        mylog.New("pubsub"),
		httpClient:    httpClient,
		subscriptions: map[string][]localSubscription{},
		published:     map[string][]string{},
	}
}

func (ps *localPubSub) CreateTopic(c context.Context, topicName string) error {
	ps.Lock()
	defer ps.Unlock()

	_, exists := ps.published[topicName]
	if !exists {
		ps.published[topicName] = []string{}
	}
	return nil
}

func (ps *localPubSub) Subscribe(c context.Context, topicName string, urlToPostTo string) error {
	ps.Lock()
	defer ps.Unlock()

	for _, s := range ps.subscriptions[topicName] {
		if s.urlToPostTo == urlToPostTo {
			return nil
		}
	}
	name := fmt.Sprintf("%s-push-%d", topicName, len(ps.subscriptions[topicName])+1)
	ps.subscriptions[topicName] = append(ps.subscriptions[topicName], localSubscription{name: name, urlToPostTo: urlToPostTo})

	ps.logger.Log(c, topicName, mylog.SeverityInfo, "Subscribed %s to topic %s", urlToPostTo, topicName)

	return nil
}

func (ps *localPubSub) Publish(c context.Context, topicName string, data string) error {
	ps.Lock()
	ps.published[topicName] = append(ps.published[topicName], data)
	ps.sequence++
	messageID := fmt.Sprintf("%d", ps.sequence)
	subscriptions := append([]localSubscription{}, ps.subscriptions[topicName]...)
	ps.Unlock()

	for _, s := range subscriptions {
		ps.inflight.Add(1)
		go func(s localSubscription) {
			defer ps.inflight.Done()

			err := pushToSubscriber(context.WithoutCancel(c), ps.httpClient, s.name, s.urlToPostTo, messageID, []byte(data))
			if err != nil {
				ps.logger.Log(c, topicName, mylog.SeverityError, "Message %s on %s lost for %s: %s", messageID, topicName, s.name, err)
			}
		}(s)
	}

	return nil
}
