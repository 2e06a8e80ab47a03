// Package supervisor wires together the on-disk Store, file Queue, dead
// letter Queue, worker Pool(s), RateLimit Coordinator, and recovery Loop
// into the single long-running process that owns THE CORE's unattended
// execution lifecycle. Grounded in the teacher's cmd/worker/main.go for the
// construct-start-signal-shutdown shape, generalized from one Redis-backed
// pool to the full component graph.
package supervisor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/internal/events"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/metrics"
	"github.com/maumercado/task-queue-go/internal/queue"
	"github.com/maumercado/task-queue-go/internal/ratelimit"
	"github.com/maumercado/task-queue-go/internal/recovery"
	"github.com/maumercado/task-queue-go/internal/statusapi"
	"github.com/maumercado/task-queue-go/internal/store"
	"github.com/maumercado/task-queue-go/internal/worker"
)

// Supervisor owns one process's worth of THE CORE: the shared Store and
// Queue, a fixed pool of worker.Pool instances, and the two background
// loops (RateLimit Coordinator, recovery Loop) that keep them healthy.
type Supervisor struct {
	cfg *config.Config

	st  store.Store
	q   *queue.Queue
	dlq *queue.DLQ

	events events.Publisher

	pools        []*worker.Pool
	coordinator  *ratelimit.Coordinator
	recoveryLoop *recovery.Loop
	statusAPI    *statusapi.Server
}

// New opens the Store and Queue and constructs the worker pools and
// background loops described by cfg. It does not start anything; call Run
// or Start to begin processing.
func New(cfg *config.Config) (*Supervisor, error) {
	st, err := store.Open(cfg.Paths.DBPath)
	if err != nil {
		return nil, fmt.Errorf("supervisor: open store: %w", err)
	}

	q, err := queue.New(cfg.Paths.BaseDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("supervisor: open queue: %w", err)
	}

	dlq, err := queue.NewDLQ(cfg.Paths.BaseDir)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("supervisor: open dlq: %w", err)
	}

	detector := worker.NewAIInteractionDetector(cfg)

	pub, err := events.New(&cfg.Redis)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("supervisor: open event bus: %w", err)
	}
	q.SetPublisher(pub)

	numWorkers := cfg.Worker.NumWorkers
	if numWorkers < 1 {
		numWorkers = 1
	}

	pools := make([]*worker.Pool, 0, numWorkers)
	for i := 0; i < numWorkers; i++ {
		id := fmt.Sprintf("worker-%d", i+1)
		p := worker.NewPool(id, cfg, q, st, dlq, detector)
		p.SetPublisher(pub)
		pools = append(pools, p)
	}

	recoveryLoop := recovery.NewLoop(cfg, st, q)
	recoveryLoop.SetPublisher(pub)

	coordinator := ratelimit.NewCoordinator(cfg, st, q)
	coordinator.SetPublisher(pub)
	for _, p := range pools {
		p.SetRateLimitRecorder(coordinator)
	}

	return &Supervisor{
		cfg:          cfg,
		st:           st,
		q:            q,
		dlq:          dlq,
		events:       pub,
		pools:        pools,
		coordinator:  coordinator,
		recoveryLoop: recoveryLoop,
		statusAPI:    statusapi.NewServer(cfg, st, q, pub),
	}, nil
}

// Start launches every worker pool, both background loops, and the
// read-only status API. It returns once everything is accepting work;
// components run on their own goroutines until Stop is called.
func (s *Supervisor) Start(ctx context.Context) error {
	logger.Info().Int("workers", len(s.pools)).Msg("starting supervisor")

	s.coordinator.Start(ctx)
	s.recoveryLoop.Start(ctx)

	for _, p := range s.pools {
		p.Start(ctx)
	}
	metrics.SetActiveWorkers(float64(len(s.pools)))

	if err := s.statusAPI.Start(ctx); err != nil {
		return fmt.Errorf("supervisor: start status api: %w", err)
	}

	return nil
}

// Stop gracefully shuts down every worker pool (allowing in-flight tasks up
// to timeout to finish) and then stops the background loops.
func (s *Supervisor) Stop(timeout time.Duration) {
	logger.Info().Dur("timeout", timeout).Msg("stopping supervisor")

	var wg sync.WaitGroup
	for _, p := range s.pools {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), timeout)
			defer cancel()
			p.Stop(ctx)
		}()
	}
	wg.Wait()
	metrics.SetActiveWorkers(0)

	s.statusAPI.Stop(timeout)
	s.recoveryLoop.Stop()
	s.coordinator.Stop()

	if err := s.events.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing event bus")
	}
	if err := s.st.Close(); err != nil {
		logger.Error().Err(err).Msg("error closing store")
	}
}

// Store exposes the shared Store, mainly for tests.
func (s *Supervisor) Store() store.Store { return s.st }

// Queue exposes the shared Queue, mainly for tests.
func (s *Supervisor) Queue() *queue.Queue { return s.q }

// Events exposes the shared event Publisher, mainly for tests that want to
// subscribe to live task/worker/alert events directly.
func (s *Supervisor) Events() events.Publisher { return s.events }
