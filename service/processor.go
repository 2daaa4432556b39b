package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"ParableToVideo-server/logger"
)

// Processor routes background jobs to the service that owns them.
type Processor struct {
	Pipeline  *Pipeline
	Finalizer *Finalizer
	Media     *MediaService
	Music     *MusicService
	log       *logger.Logger
}

func NewProcessor(pipeline *Pipeline, finalizer *Finalizer, media *MediaService, music *MusicService, log *logger.Logger) *Processor {
	return &Processor{
		Pipeline:  pipeline,
		Finalizer: finalizer,
		Media:     media,
		Music:     music,
		log:       log.With("service", "Processor"),
	}
}

// Handle runs one job. Failures of pipeline and final jobs are already
// persisted on the parable by the time they are returned here.
func (p *Processor) Handle(ctx context.Context, job Job) error {
	p.log.Info("processing job", "kind", job.Kind, "parable_id", job.ParableID)
	switch job.Kind {
	case JobProcess:
		return p.Pipeline.Run(ctx, job.ParableID)
	case JobRegenerateImages:
		return p.Pipeline.RegenerateAssets(ctx, job.ParableID)
	case JobGenerateFinal:
		return p.Finalizer.Run(ctx, job.ParableID)
	case JobAssignMusic:
		_, err := p.Music.AutoAssign(ctx, job.ParableID)
		return err
	case JobSynthesizeAudio:
		_, err := p.Media.SynthesizeAudio(ctx, job.ParableID)
		return err
	default:
		return fmt.Errorf("unknown job kind: %s", job.Kind)
	}
}

// HandleTask adapts Handle to the queue server.
func (p *Processor) HandleTask(ctx context.Context, t *asynq.Task) error {
	var job Job
	if err := json.Unmarshal(t.Payload(), &job); err != nil {
		return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}
	if job.Kind == "" {
		job.Kind = JobKind(t.Type())
	}
	if err := p.Handle(ctx, job); err != nil {
		p.log.Warn("job failed", "kind", job.Kind, "parable_id", job.ParableID, "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return nil
}

// StartQueueServer consumes jobs from Redis until the returned server is
// shut down.
func (p *Processor) StartQueueServer(addr, password string, concurrency int) *asynq.Server {
	srv := asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:     addr,
			Password: password,
		},
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				"default": 1,
			},
		},
	)
	mux := asynq.NewServeMux()
	for _, kind := range JobKinds {
		mux.HandleFunc(string(kind), p.HandleTask)
	}

	p.log.Info("starting queue server", "concurrency", concurrency)
	go func() {
		if err := srv.Run(mux); err != nil {
			p.log.Fatal("could not run queue server", "error", err)
		}
	}()
	return srv
}
