package mypubsub

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// amqpPubSub maps every topic on a durable fanout exchange.
// Subscriptions are durable queues whose deliveries are pushed to an http endpoint.
type amqpPubSub struct {
	sync.Mutex
	conn       *amqp.Connection
	channel    *amqp.Channel
	httpClient *http.Client
}

func init() {
	if os.Getenv("GOOGLE_CLOUD_PROJECT") == "" && os.Getenv("RABBITMQ_URL") != "" {
		New = newAMQPPubSub
	}
}

func newAMQPPubSub(c context.Context) (PubSub, func(), error) {
	conn, err := amqp.Dial(os.Getenv("RABBITMQ_URL"))
	if err != nil {
		return nil, func() {}, fmt.Errorf("error connecting to rabbitmq: %s", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, func() {}, fmt.Errorf("error opening rabbitmq channel: %s", err)
	}

	ps := &amqpPubSub{
		conn:       conn,
		channel:    ch,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	return ps, ps.close, nil
}

func (ps *amqpPubSub) close() {
	if ps.channel != nil {
		ps.channel.Close()
	}
	if ps.conn != nil {
		ps.conn.Close()
	}
}

func (ps *amqpPubSub) CreateTopic(c context.Context, topicName string) error {
	ps.Lock()
	defer ps.Unlock()

	err := ps.channel.ExchangeDeclare(
		topicName,
		"fanout",
		true,  // durable
		false, // auto-delete
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("error declaring exchange %s: %s", topicName, err)
	}
	return nil
}

func (ps *amqpPubSub) Publish(c context.Context, topicName string, data string) error {
	ps.Lock()
	defer ps.Unlock()

	err := ps.channel.PublishWithContext(c,
		topicName,
		"",
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now(),
			ContentType:  "application/json",
			Body:         []byte(data),
		})
	if err != nil {
		return fmt.Errorf("error publishing event on topic %s: %s", topicName, err)
	}
	return nil
}

func (ps *amqpPubSub) Subscribe(c context.Context, topicName string, urlToPostTo string) error {
	err := ps.CreateTopic(c, topicName)
	if err != nil {
		return err
	}

	queueName := topicName + ".push"

	ps.Lock()
	deliveries, err := ps.declareAndConsume(topicName, queueName)
	ps.Unlock()
	if err != nil {
		return err
	}

	go ps.forward(queueName, urlToPostTo, deliveries)

	log.Printf("Subscribed %s to topic %s", urlToPostTo, topicName)

	return nil
}

func (ps *amqpPubSub) declareAndConsume(topicName, queueName string) (<-chan amqp.Delivery, error) {
	_, err := ps.channel.QueueDeclare(
		queueName,
		true,  // durable
		false, // auto-delete
		false, // exclusive
		false, // no-wait
		amqp.Table{"x-queue-type": "classic"},
	)
	if err != nil {
		return nil, fmt.Errorf("error declaring queue %s: %s", queueName, err)
	}

	err = ps.channel.QueueBind(queueName, "", topicName, false, nil)
	if err != nil {
		return nil, fmt.Errorf("error binding queue %s to %s: %s", queueName, topicName, err)
	}

	deliveries, err := ps.channel.Consume(
		queueName,
		"",
		false, // auto-ack
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("error consuming queue %s: %s", queueName, err)
	}
	return deliveries, nil
}

func (ps *amqpPubSub) forward(subscription string, urlToPostTo string, deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		err := ps.push(subscription, urlToPostTo, d)
		if err != nil {
			log.Printf("Error pushing delivery %d of %s: %s", d.DeliveryTag, subscription, err)
			_ = d.Nack(false, !d.Redelivered)
			continue
		}
		_ = d.Ack(false)
	}
}

func (ps *amqpPubSub) push(subscription string, urlToPostTo string, d amqp.Delivery) error {
	return pushToSubscriber(context.Background(), ps.httpClient, subscription, urlToPostTo, d.MessageId, d.Body)
}
