package recovery

import (
	"context"
	"sync"
	"time"

	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/internal/events"
	"github.com/maumercado/task-queue-go/internal/queue"
	"github.com/maumercado/task-queue-go/internal/store"
)

// Loop periodically checks system health and executes whatever Actions the
// check surfaces, generalizing AutoRecoveryManager.start.
type Loop struct {
	monitor  *HealthMonitor
	executor *Executor
	interval time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewLoop constructs a Loop ticking at cfg.Worker.HealthCheckInterval.
func NewLoop(cfg *config.Config, st store.Store, q *queue.Queue) *Loop {
	return &Loop{
		monitor:  NewHealthMonitor(cfg, st),
		executor: NewExecutor(cfg, st, q),
		interval: cfg.Worker.HealthCheckInterval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the check/execute cycle in a background goroutine until ctx is
// canceled or Stop is called.
func (l *Loop) Start(ctx context.Context) {
	l.wg.Add(1)
	go l.run(ctx)
}

// SetPublisher attaches an events.Publisher the Loop's Executor and
// HealthMonitor announce raised alerts and system snapshots on.
func (l *Loop) SetPublisher(pub events.Publisher) {
	l.executor.SetPublisher(pub)
	l.monitor.SetPublisher(pub)
}

// Stop signals the loop to exit and waits for it.
func (l *Loop) Stop() {
	close(l.stopCh)
	l.wg.Wait()
}

func (l *Loop) run(ctx context.Context) {
	defer l.wg.Done()

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-l.stopCh:
			return
		case <-ticker.C:
			l.tick(ctx)
		}
	}
}

func (l *Loop) tick(ctx context.Context) {
	for _, action := range l.monitor.Check(ctx) {
		l.executor.Execute(ctx, action)
	}
}
