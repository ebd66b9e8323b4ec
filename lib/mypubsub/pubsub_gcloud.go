package mypubsub

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	grpcCodes "google.golang.org/grpc/codes"
	grpcStatus "google.golang.org/grpc/status"

	"github.com/MarcGrol/stripeshop/lib/mylog"
)

const pushAckDeadline = 30 * time.Second

var invalidSubscriptionChars = regexp.MustCompile(`[^A-Za-z0-9-]+`)

type gcloudPubSub struct {
	sync.Mutex
	logger mylog.Logger
	client *pubsub.Client
	topics map[string]*pubsub.Topic
}

func init() {
	if os.Getenv("GOOGLE_CLOUD_PROJECT") != "" {
		New = newGcloudPubSub
	}
}

func newGcloudPubSub(c context.Context) (PubSub, func(), error) {
	client, err := pubsub.NewClient(c, os.Getenv("GOOGLE_CLOUD_PROJECT"))
	if err != nil {
		return nil, func() {}, fmt.Errorf("error creating pubsub client: %s", err)
	}
	ps := &gcloudPubSub{
		logger: mylog.New("pubsub"),
		client: client,
		topics: map[string]*pubsub.Topic{},
	}
	return ps, ps.close, nil
}

func (ps *gcloudPubSub) close() {
	ps.Lock()
	defer ps.Unlock()

	for _, topic := range ps.topics {
		topic.Stop()
	}
	ps.client.Close()
}

func (ps *gcloudPubSub) topic(topicName string) *pubsub.Topic {
	ps.Lock()
	defer ps.Unlock()

	topic, found := ps.topics[topicName]
	if !found {
		topic = ps.client.Topic(topicName)
		ps.topics[topicName] = topic
	}
	return topic
}

func (ps *gcloudPubSub) CreateTopic(c context.Context, topicName string) error {
	_, err := ps.client.CreateTopic(c, topicName)
	if err != nil {
		if grpcStatus.Code(err) == grpcCodes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("error creating topic %s: %s", topicName, err)
	}

	ps.logger.Log(c, topicName, mylog.SeverityInfo, "Created topic %s", topicName)

	return nil
}

// Subscribe creates a push subscription per endpoint, so several services can listen on one topic.
func (ps *gcloudPubSub) Subscribe(c context.Context, topicName string, urlToPostTo string) error {
	err := ps.CreateTopic(c, topicName)
	if err != nil {
		return err
	}

	name, err := subscriptionName(topicName, urlToPostTo)
	if err != nil {
		return err
	}

	_, err = ps.client.CreateSubscription(c, name, pubsub.SubscriptionConfig{
		Topic:       ps.topic(topicName),
		AckDeadline: pushAckDeadline,
		PushConfig: pubsub.PushConfig{
			Endpoint: urlToPostTo,
		},
	})
	if err != nil {
		if grpcStatus.Code(err) == grpcCodes.AlreadyExists {
			return nil
		}
		return fmt.Errorf("error subscribing %s to topic %s: %s", urlToPostTo, topicName, err)
	}

	ps.logger.Log(c, topicName, mylog.SeverityInfo, "Subscribed %s to topic %s as %s", urlToPostTo, topicName, name)

	return nil
}

func subscriptionName(topicName string, urlToPostTo string) (string, error) {
	u, err := url.Parse(urlToPostTo)
	if err != nil {
		return "", fmt.Errorf("invalid push endpoint %s: %s", urlToPostTo, err)
	}
	path := strings.Trim(invalidSubscriptionChars.ReplaceAllString(u.Path, "-"), "-")
	return fmt.Sprintf("%s-%s-push", topicName, path), nil
}

func (ps *gcloudPubSub) Publish(c context.Context, topicName string, data string) error {
	_, err := ps.topic(topicName).Publish(c, &pubsub.Message{Data: []byte(data)}).Get(c)
	if err != nil {
		return fmt.Errorf("error publishing event on topic %s: %s", topicName, err)
	}

	return nil
}
