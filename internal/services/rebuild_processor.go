package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ledger/internal/log"
)

// RebuildProcessorConfig holds configuration for the rebuild processor
type RebuildProcessorConfig struct {
	// Interval is how often every account is rebuilt (default: 6h)
	Interval time.Duration

	// RunOnStart rebuilds immediately when the processor starts (default: true)
	RunOnStart bool
}

func DefaultRebuildProcessorConfig() RebuildProcessorConfig {
	return RebuildProcessorConfig{
		Interval:   6 * time.Hour,
		RunOnStart: true,
	}
}

// Rebuilder is the part of LedgerService the processor drives.
type Rebuilder interface {
	RebuildAll(ctx context.Context) (int, error)
}

// RebuildProcessor periodically replays every account's history so the
// derived balances and snapshots converge even when no job was enqueued.
type RebuildProcessor struct {
	ledger Rebuilder
	config RebuildProcessorConfig

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	lastRun   time.Time
	lastError error
}

func NewRebuildProcessor(ledger Rebuilder, config RebuildProcessorConfig) *RebuildProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultRebuildProcessorConfig().Interval
	}
	return &RebuildProcessor{
		ledger: ledger,
		config: config,
	}
}

// Start begins the rebuild loop. Returns an error if already running.
func (p *RebuildProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("rebuild processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	p.mu.Unlock()

	go p.runLoop(ctx)

	slog.InfoContext(ctx, "Rebuild processor started",
		"interval", p.config.Interval,
		"run_on_start", p.config.RunOnStart)
	return nil
}

// Stop signals the loop and waits for an in-flight rebuild to finish.
func (p *RebuildProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Rebuild processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Rebuild processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *RebuildProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// LastRun reports when the last rebuild finished and how it ended.
func (p *RebuildProcessor) LastRun() (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRun, p.lastError
}

func (p *RebuildProcessor) runLoop(ctx context.Context) {
	defer close(p.doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	// stop must interrupt a rebuild in progress
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-p.stopCh:
			cancel()
		case <-runCtx.Done():
		}
	}()

	if p.config.RunOnStart {
		p.rebuild(runCtx)
	}

	for {
		select {
		case <-runCtx.Done():
			return
		case <-ticker.C:
			p.rebuild(runCtx)
		}
	}
}

func (p *RebuildProcessor) rebuild(ctx context.Context) {
	started := time.Now()
	n, err := p.ledger.RebuildAll(ctx)

	p.mu.Lock()
	p.lastRun = time.Now()
	p.lastError = err
	p.mu.Unlock()

	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.ErrorContext(ctx, "Periodic rebuild failed",
			log.FieldOperation, log.OpRebuild,
			log.FieldError, err)
		return
	}
	slog.InfoContext(ctx, "Periodic rebuild completed",
		log.FieldOperation, log.OpRebuild,
		"accounts", n,
		log.FieldDuration, time.Since(started).Milliseconds())
}
