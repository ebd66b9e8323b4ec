package mypubsub

import "context"

//go:generate mockgen -source=pubsub_api.go -package mypubsub -destination pubsub_mock.go PubSub
type PubSub interface {
	Publish(c context.Context, topic string, data string) error
	CreateTopic(c context.Context, topic string) error
	Subscribe(c context.Context, topic string, urlToPostTo string) error
}

// New is bound at init time: gcloud when GOOGLE_CLOUD_PROJECT is set,
// RabbitMQ when RABBITMQ_URL is set, an in-process fake otherwise.
var New func(c context.Context) (PubSub, func(), error)
