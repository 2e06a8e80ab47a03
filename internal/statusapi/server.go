// Package statusapi exposes a read-only view of THE CORE's task ledger,
// worker fleet, and alert history over HTTP and a live event stream over
// websocket. It deliberately carries none of the teacher's admission or
// admin-mutation surface (task submission, cancellation, worker
// pause/resume, queue purge, DLQ retry): THE CORE has exactly one way a
// task enters the system (its config/ledger directory) and one execution
// path, so the only thing left to expose is observability.
//
// Grounded on the teacher's internal/api package: chi router, middleware
// stack, and websocket hub/client/handler shape are kept close to verbatim
// and generalized from *queue.RedisQueue/*events.RedisPubSub to the
// store.Store/queue.Queue/events.Publisher interfaces the rest of this
// module already depends on.
package statusapi

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/maumercado/task-queue-go/internal/config"
	"github.com/maumercado/task-queue-go/internal/events"
	"github.com/maumercado/task-queue-go/internal/logger"
	"github.com/maumercado/task-queue-go/internal/queue"
	"github.com/maumercado/task-queue-go/internal/statusapi/websocket"
	"github.com/maumercado/task-queue-go/internal/store"
)

// workerActiveWindow bounds how stale a worker heartbeat can be and still
// count as "active" in listWorkers. The worker package itself considers a
// worker hung well before this, so this is just a generous upper bound for
// what the status surface reports as present at all.
const workerActiveWindow = 10 * time.Minute

// Server is THE CORE's read-only HTTP + websocket status surface.
type Server struct {
	cfg *config.Config

	store store.Store
	queue *queue.Queue

	router    *chi.Mux
	wsHub     *websocket.Hub
	wsHandler *websocket.Handler

	workerMaxAge time.Duration

	httpServer *http.Server
}

// NewServer builds the status API against a running supervisor's shared
// Store, Queue, and event Publisher.
func NewServer(cfg *config.Config, st store.Store, q *queue.Queue, pub events.Publisher) *Server {
	hub := websocket.NewHub(pub)

	s := &Server{
		cfg:          cfg,
		store:        st,
		queue:        q,
		router:       chi.NewRouter(),
		wsHub:        hub,
		wsHandler:    websocket.NewHandler(hub),
		workerMaxAge: workerActiveWindow,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger())
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Heartbeat("/health"))
	s.router.Use(rateLimit(s.cfg.Server.RequestsPerSecond))
}

func (s *Server) setupRoutes() {
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(auth(&s.cfg.Auth))

		r.Route("/tasks", func(r chi.Router) {
			r.Get("/", s.listTasks)
			r.Get("/{taskID}", s.getTask)
		})

		r.Route("/workers", func(r chi.Router) {
			r.Get("/", s.listWorkers)
			r.Get("/{workerID}", s.getWorker)
		})

		r.Get("/alerts", s.listAlerts)
		r.Get("/queue", s.queueDepth)
	})

	s.router.Get("/events", s.wsHandler.ServeWS)
}

// Start launches the websocket hub's dispatch loop and the HTTP listener.
// It returns once the listener is accepting connections; serving happens on
// background goroutines until Stop is called.
func (s *Server) Start(ctx context.Context) error {
	go s.wsHub.Run(ctx)

	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			logger.Error().Err(err).Msg("status api server error")
		}
	}()

	logger.Info().Str("addr", addr).Msg("status api listening")
	return nil
}

// Stop drains in-flight requests up to the given timeout and stops the
// websocket hub.
func (s *Server) Stop(timeout time.Duration) {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if err := s.httpServer.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("error shutting down status api server")
		}
	}
	s.wsHub.Stop()
}

// Router exposes the chi router, primarily for tests that want to drive
// requests through httptest without a live listener.
func (s *Server) Router() *chi.Mux { return s.router }
