package myqueue

import (
	"context"
	"fmt"
	"os"
	"time"

	cloudtasks "cloud.google.com/go/cloudtasks/apiv2"
	taskspb "cloud.google.com/go/cloudtasks/apiv2/cloudtaskspb"
	"github.com/caarlos0/env/v10"
	grpcCodes "google.golang.org/grpc/codes"
	grpcStatus "google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/MarcGrol/stripeshop/lib/mylog"
)

type gcloudQueueConfig struct {
	Project       string        `env:"GOOGLE_CLOUD_PROJECT,required"`
	Location      string        `env:"LOCATION_ID,required"`
	Queue         string        `env:"QUEUE_NAME" envDefault:"default"`
	DispatchDelay time.Duration `env:"QUEUE_DISPATCH_DELAY" envDefault:"5s"`
}

func (cfg gcloudQueueConfig) queuePath() string {
	return fmt.Sprintf("projects/%s/locations/%s/queues/%s", cfg.Project, cfg.Location, cfg.Queue)
}

func (cfg gcloudQueueConfig) taskPath(taskUID string) string {
	return fmt.Sprintf("%s/tasks/%s", cfg.queuePath(), taskUID)
}

// gcloudTaskQueue dispatches tasks as app engine requests. Tasks are named after their uid,
// so enqueueing the same task twice is a no-op.
type gcloudTaskQueue struct {
	logger mylog.Logger
	cfg    gcloudQueueConfig
	client *cloudtasks.Client
}

func init() {
	if os.Getenv("GOOGLE_CLOUD_PROJECT") != "" {
		New = newGcloudQueue
	}
}

func newGcloudQueue(c context.Context) (TaskQueuer, func(), error) {
	cfg := gcloudQueueConfig{}
	err := env.Parse(&cfg)
	if err != nil {
		return nil, func() {}, fmt.Errorf("error parsing queue config: %s", err)
	}

	client, err := cloudtasks.NewClient(c)
	if err != nil {
		return nil, func() {}, fmt.Errorf("error creating cloudtasks client: %s", err)
	}

	q := &gcloudTaskQueue{
		logger: mylog.New("queue"),
		cfg:    cfg,
		client: client,
	}
	return q, func() { client.Close() }, nil
}

func (q *gcloudTaskQueue) Enqueue(c context.Context, task Task) error {
	_, err := q.client.CreateTask(c, &taskspb.CreateTaskRequest{
		Parent: q.cfg.queuePath(),
		Task: &taskspb.Task{
			Name: q.cfg.taskPath(task.UID),
			// the enqueueing transaction must commit before the task runs
			ScheduleTime: timestamppb.New(time.Now().Add(q.cfg.DispatchDelay)),
			MessageType: &taskspb.Task_AppEngineHttpRequest{
				AppEngineHttpRequest: &taskspb.AppEngineHttpRequest{
					HttpMethod:  taskspb.HttpMethod_PUT,
					RelativeUri: task.WebhookURLPath,
					Body:        task.Payload,
				},
			},
		},
	})
	if err != nil {
		if grpcStatus.Code(err) == grpcCodes.AlreadyExists {
			q.logger.Log(c, task.UID, mylog.SeverityDebug, "Task %s already queued", task.UID)
			return nil
		}
		return fmt.Errorf("error enqueueing task %s on %s: %s", task.UID, q.cfg.Queue, err)
	}

	return nil
}

// IsLastAttempt returns how often the task was dispatched and how often the queue allows it.
// A max of -1 means unknown.
func (q *gcloudTaskQueue) IsLastAttempt(c context.Context, taskUID string) (int32, int32) {
	maxAttempts := int32(-1)

	queue, err := q.client.GetQueue(c, &taskspb.GetQueueRequest{Name: q.cfg.queuePath()})
	if err != nil {
		q.logger.Log(c, taskUID, mylog.SeverityWarn, "Error fetching queue %s: %s", q.cfg.Queue, err)
		return 0, maxAttempts
	}
	if queue.RetryConfig != nil {
		maxAttempts = queue.RetryConfig.MaxAttempts
	}

	task, err := q.client.GetTask(c, &taskspb.GetTaskRequest{Name: q.cfg.taskPath(taskUID)})
	if err != nil {
		q.logger.Log(c, taskUID, mylog.SeverityWarn, "Error fetching task %s: %s", taskUID, err)
		return 0, maxAttempts
	}

	return task.DispatchCount, maxAttempts
}
