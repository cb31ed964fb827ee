package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/amqp"
	"ledger/internal/log"
	"ledger/internal/services"
)

const (
	defaultJobTimeout   = 10 * time.Minute
	maxReconnectBackoff = 30 * time.Second
)

// JobHandler executes one ledger job.
type JobHandler interface {
	HandleJob(ctx context.Context, msg *amqp.JobMessage) error
}

// JobConsumer delivers queued jobs until ctx ends or the connection drops.
type JobConsumer interface {
	ConsumeJobs(ctx context.Context, handler func(context.Context, *amqp.JobMessage) error) error
}

// JobWorker consumes ledger jobs from the queue and runs the periodic
// rebuild alongside. Either part may be absent.
type JobWorker struct {
	handler    JobHandler
	consumer   JobConsumer
	processor  *services.RebuildProcessor
	jobTimeout time.Duration
}

func NewJobWorker(handler JobHandler, consumer JobConsumer, processor *services.RebuildProcessor) *JobWorker {
	return &JobWorker{
		handler:    handler,
		consumer:   consumer,
		processor:  processor,
		jobTimeout: defaultJobTimeout,
	}
}

// HandleJob runs msg with a per-job deadline.
func (w *JobWorker) HandleJob(ctx context.Context, msg *amqp.JobMessage) error {
	ctx, cancel := context.WithTimeout(ctx, w.jobTimeout)
	defer cancel()

	started := time.Now()
	if err := w.handler.HandleJob(ctx, msg); err != nil {
		return fmt.Errorf("%s job %s for account %d: %w", msg.Kind, msg.ID, msg.AccountID, err)
	}

	slog.InfoContext(ctx, "Ledger job completed",
		log.FieldJobID, msg.ID,
		log.FieldJobKind, msg.Kind,
		log.FieldAccountID, msg.AccountID,
		log.FieldDuration, time.Since(started).Milliseconds())
	return nil
}

// Run blocks until ctx is cancelled.
func (w *JobWorker) Run(ctx context.Context) error {
	if w.processor != nil {
		if err := w.processor.Start(ctx); err != nil {
			return fmt.Errorf("start rebuild processor: %w", err)
		}
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := w.processor.Stop(stopCtx); err != nil {
				slog.Warn("Rebuild processor did not stop cleanly", log.FieldError, err)
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)
	if w.consumer != nil {
		g.Go(func() error { return w.consume(gctx) })
	} else {
		slog.InfoContext(ctx, "No job queue configured, running periodic rebuilds only")
		g.Go(func() error {
			<-gctx.Done()
			return nil
		})
	}
	return g.Wait()
}

// consume restarts the consumer with backoff after connection failures.
func (w *JobWorker) consume(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		err := w.consumer.ConsumeJobs(ctx, w.HandleJob)
		if ctx.Err() != nil {
			return nil
		}

		delay := reconnectBackoff(attempt)
		slog.WarnContext(ctx, "Job consumer stopped, reconnecting",
			log.FieldError, err,
			"attempt", attempt+1,
			"retry_in", delay)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

func reconnectBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxReconnectBackoff
	}
	return time.Second << attempt
}
