package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Reconciler re-exports every owner's records.
type Reconciler interface {
	ReconcileAll(ctx context.Context) (int, error)
}

// SyncProcessorConfig holds configuration for the sync processor.
type SyncProcessorConfig struct {
	// Interval between full reconcile passes (default: 15m).
	Interval time.Duration
	// RunOnStart triggers a pass immediately after Start (default: true).
	RunOnStart bool
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		Interval:   15 * time.Minute,
		RunOnStart: true,
	}
}

// SyncProcessor periodically reconciles exports so that changes whose
// notification was lost still reach the spreadsheet.
type SyncProcessor struct {
	reconciler Reconciler
	config     SyncProcessorConfig

	mu      sync.Mutex
	running bool
	passes  int
	stopCh  chan struct{}
	doneCh  chan struct{}
}

func NewSyncProcessor(reconciler Reconciler, config SyncProcessorConfig) *SyncProcessor {
	if config.Interval <= 0 {
		config.Interval = DefaultSyncProcessorConfig().Interval
	}
	return &SyncProcessor{reconciler: reconciler, config: config}
}

// Start begins the reconcile loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	p.running = true
	p.stopCh = make(chan struct{})
	p.doneCh = make(chan struct{})
	stopCh, doneCh := p.stopCh, p.doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	slog.InfoContext(ctx, "Sync processor started", "interval", p.config.Interval)
	return nil
}

// Stop signals the loop and waits for the current pass to finish. After a
// timed out Stop the processor still counts as running; calling Stop again
// keeps waiting for the same pass.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	doneCh := p.doneCh
	p.mu.Unlock()

	select {
	case <-doneCh:
		slog.InfoContext(ctx, "Sync processor stopped gracefully")
	case <-ctx.Done():
		slog.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
	return nil
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Passes returns how many reconcile passes have completed.
func (p *SyncProcessor) Passes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.passes
}

func (p *SyncProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	ticker := time.NewTicker(p.config.Interval)
	defer ticker.Stop()

	if p.config.RunOnStart {
		p.reconcile(ctx)
	}

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.reconcile(ctx)
		}
	}
}

func (p *SyncProcessor) reconcile(ctx context.Context) {
	synced, err := p.reconciler.ReconcileAll(ctx)
	if err != nil {
		slog.WarnContext(ctx, "Reconcile pass finished with errors", "synced", synced, "error", err)
	} else {
		slog.DebugContext(ctx, "Reconcile pass finished", "synced", synced)
	}

	p.mu.Lock()
	p.passes++
	p.mu.Unlock()
}
