package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ledger/internal/amqp"
)

type fakeHandler struct {
	mu   sync.Mutex
	seen []*amqp.JobMessage
	err  error
}

func (h *fakeHandler) HandleJob(ctx context.Context, msg *amqp.JobMessage) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("job context has no deadline")
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.seen = append(h.seen, msg)
	return h.err
}

func (h *fakeHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.seen)
}

type fakeConsumer struct {
	jobs    []*amqp.JobMessage
	results chan error
}

func (c *fakeConsumer) ConsumeJobs(ctx context.Context, handler func(context.Context, *amqp.JobMessage) error) error {
	for _, job := range c.jobs {
		c.results <- handler(ctx, job)
	}
	<-ctx.Done()
	return ctx.Err()
}

func TestJobWorker_HandleJob(t *testing.T) {
	handler := &fakeHandler{}
	w := NewJobWorker(handler, nil, nil)

	if err := w.HandleJob(context.Background(), amqp.NewRecalculateJob(1, nil)); err != nil {
		t.Fatalf("HandleJob() error = %v", err)
	}
	if handler.count() != 1 {
		t.Errorf("expected 1 handled job, got %d", handler.count())
	}

	handler.err = errors.New("boom")
	err := w.HandleJob(context.Background(), amqp.NewRecategorizeJob(2, nil, nil, false))
	if !errors.Is(err, handler.err) {
		t.Errorf("HandleJob() error = %v, want wrapped boom", err)
	}
}

func TestJobWorker_RunConsumesUntilCancelled(t *testing.T) {
	handler := &fakeHandler{}
	consumer := &fakeConsumer{
		jobs: []*amqp.JobMessage{
			amqp.NewRecalculateJob(1, nil),
			amqp.NewRecategorizeJob(1, nil, nil, true),
		},
		results: make(chan error, 2),
	}
	w := NewJobWorker(handler, consumer, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case err := <-consumer.results:
			if err != nil {
				t.Errorf("job %d failed: %v", i, err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for jobs")
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if handler.count() != 2 {
		t.Errorf("expected 2 handled jobs, got %d", handler.count())
	}
}

func TestJobWorker_RunWithoutConsumer(t *testing.T) {
	w := NewJobWorker(&fakeHandler{}, nil, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := w.Run(ctx); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}

func TestReconnectBackoff(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second},
		{40, 30 * time.Second},
	}
	for _, tt := range tests {
		if got := reconnectBackoff(tt.attempt); got != tt.expected {
			t.Errorf("reconnectBackoff(%d) = %v, want %v", tt.attempt, got, tt.expected)
		}
	}
}
