package service

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"ParableToVideo-server/logger"
)

type JobKind string

const (
	JobProcess          JobKind = "parable:process"
	JobRegenerateImages JobKind = "parable:regenerate_images"
	JobGenerateFinal    JobKind = "parable:generate_final"
	JobAssignMusic      JobKind = "parable:assign_music"
	JobSynthesizeAudio  JobKind = "parable:synthesize_audio"
)

var JobKinds = []JobKind{JobProcess, JobRegenerateImages, JobGenerateFinal, JobAssignMusic, JobSynthesizeAudio}

type Job struct {
	Kind      JobKind `json:"kind"`
	ParableID string  `json:"parable_id"`
}

// JobHandler executes one job to completion.
type JobHandler func(ctx context.Context, job Job) error

// Dispatcher hands a job to background execution and returns immediately.
type Dispatcher interface {
	Dispatch(ctx context.Context, job Job) error
}

// GoDispatcher runs each job on its own goroutine in this process.
type GoDispatcher struct {
	mu      sync.RWMutex
	handler JobHandler
	wg      sync.WaitGroup
	log     *logger.Logger
}

func NewGoDispatcher(log *logger.Logger) *GoDispatcher {
	return &GoDispatcher{log: log.With("service", "GoDispatcher")}
}

// Bind sets the handler jobs are run with. Dispatch fails until it is set.
func (d *GoDispatcher) Bind(h JobHandler) {
	d.mu.Lock()
	d.handler = h
	d.mu.Unlock()
}

func (d *GoDispatcher) Dispatch(_ context.Context, job Job) error {
	d.mu.RLock()
	h := d.handler
	d.mu.RUnlock()
	if h == nil {
		return fmt.Errorf("dispatcher has no handler bound")
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				d.log.Error("job panicked", "kind", job.Kind, "parable_id", job.ParableID, "panic", r, "stack", string(debug.Stack()))
			}
		}()
		// Jobs outlive the request that dispatched them.
		if err := h(context.Background(), job); err != nil {
			d.log.Warn("job failed", "kind", job.Kind, "parable_id", job.ParableID, "error", err)
			return
		}
		d.log.Debug("job done", "kind", job.Kind, "parable_id", job.ParableID)
	}()
	return nil
}

// Wait blocks until every dispatched job has returned.
func (d *GoDispatcher) Wait() {
	d.wg.Wait()
}

// QueueDispatcher enqueues jobs on Redis for a queue server to run.
type QueueDispatcher struct {
	client *asynq.Client
	log    *logger.Logger
}

func NewQueueDispatcher(addr, password string, log *logger.Logger) *QueueDispatcher {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     addr,
		Password: password,
	})
	return &QueueDispatcher{client: client, log: log.With("service", "QueueDispatcher")}
}

func (d *QueueDispatcher) Dispatch(ctx context.Context, job Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal payload failed: %w", err)
	}
	// No queue retries: a failed run is resumed through the process endpoint.
	task := asynq.NewTask(string(job.Kind), payload,
		asynq.MaxRetry(0),
		asynq.Timeout(30*time.Minute),
		asynq.Retention(24*time.Hour),
	)
	info, err := d.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("enqueue failed: %w", err)
	}
	d.log.Info("job enqueued", "kind", job.Kind, "parable_id", job.ParableID, "task_id", info.ID)
	return nil
}

func (d *QueueDispatcher) Close() error {
	return d.client.Close()
}
