package myqueue

import (
	"context"
)

// Task asks the queue to PUT Payload to WebhookURLPath of this service. Tasks with the same
// UID are delivered once.
type Task struct {
	UID            string
	WebhookURLPath string
	Payload        []byte
}

var New func(c context.Context) (TaskQueuer, func(), error)

//go:generate mockgen -source=api.go -package myqueue -destination queuer_mock.go TaskQueuer
type TaskQueuer interface {
	Enqueue(c context.Context, task Task) error
	// IsLastAttempt returns the dispatch count of a task and the maximum the queue allows.
	IsLastAttempt(c context.Context, taskUID string) (int32, int32)
}
