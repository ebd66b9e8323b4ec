package myqueue

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v10"

	"github.com/MarcGrol/stripeshop/lib/mylog"
)

type localQueueConfig struct {
	BaseURL       string        `env:"BASE_URL" envDefault:"http://localhost:8080"`
	DispatchDelay time.Duration `env:"QUEUE_DISPATCH_DELAY" envDefault:"1s"`
	MaxAttempts   int32         `env:"QUEUE_MAX_ATTEMPTS" envDefault:"5"`
}

// localTaskQueue dispatches tasks to this process over http, retrying with a growing delay.
type localTaskQueue struct {
	sync.Mutex
	logger     mylog.Logger
	cfg        localQueueConfig
	httpClient *http.Client
	attempts   map[string]int32
	inflight   sync.WaitGroup
}

func init() {
	if os.Getenv("GOOGLE_CLOUD_PROJECT") == "" {
		New = newLocalQueue
	}
}

func newLocalQueue(c context.Context) (TaskQueuer, func(), error) {
	cfg := localQueueConfig{}
	err := env.Parse(&cfg)
	if err != nil {
		return nil, func() {}, fmt.Errorf("error parsing queue config: %s", err)
	}
	q := newLocalTaskQueue(cfg, &http.Client{Timeout: 10 * time.Second})
	return q, q.inflight.Wait, nil
}

func newLocalTaskQueue(cfg localQueueConfig, httpClient *http.Client) *localTaskQueue {
	return &localTaskQueue{
		logger:     mylog.New("queue"),
		cfg:        cfg,
		httpClient: httpClient,
		attempts:   map[string]int32{},
	}
}

func (q *localTaskQueue) Enqueue(c context.Context, task Task) error {
	q.Lock()
	_, exists := q.attempts[task.UID]
	if !exists {
		q.attempts[task.UID] = 0
	}
	q.Unlock()

	if exists {
		q.logger.Log(c, task.UID, mylog.SeverityDebug, "Task %s already queued", task.UID)
		return nil
	}

	q.inflight.Add(1)
	go func() {
		defer q.inflight.Done()
		q.dispatch(context.WithoutCancel(c), task)
	}()

	return nil
}

func (q *localTaskQueue) dispatch(c context.Context, task Task) {
	delay := q.cfg.DispatchDelay
	for {
		time.Sleep(delay)

		attempt := q.nextAttempt(task.UID)
		err := q.send(c, task)
		if err == nil {
			return
		}

		q.logger.Log(c, task.UID, mylog.SeverityWarn, "Attempt %d of task %s failed: %s", attempt, task.UID, err)
		if attempt >= q.cfg.MaxAttempts {
			q.logger.Log(c, task.UID, mylog.SeverityError, "Task %s abandoned after %d attempts", task.UID, attempt)
			return
		}
		delay = 2*delay + 100*time.Millisecond
	}
}

func (q *localTaskQueue) nextAttempt(taskUID string) int32 {
	q.Lock()
	defer q.Unlock()

	q.attempts[taskUID]++
	return q.attempts[taskUID]
}

func (q *localTaskQueue) send(c context.Context, task Task) error {
	url := strings.TrimSuffix(q.cfg.BaseURL, "/") + task.WebhookURLPath
	req, err := http.NewRequestWithContext(c, http.MethodPut, url, bytes.NewReader(task.Payload))
	if err != nil {
		return fmt.Errorf("error creating request for %s: %s", url, err)
	}

	resp, err := q.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("error sending %s: %s", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s responded with %d", url, resp.StatusCode)
	}
	return nil
}

func (q *localTaskQueue) IsLastAttempt(c context.Context, taskUID string) (int32, int32) {
	q.Lock()
	defer q.Unlock()

	return q.attempts[taskUID], q.cfg.MaxAttempts
}
