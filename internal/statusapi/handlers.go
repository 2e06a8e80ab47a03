package statusapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/maumercado/task-queue-go/internal/store"
	"github.com/maumercado/task-queue-go/internal/task"
)

// errorResponse mirrors the teacher's handlers.ErrorResponse shape.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, errName, message string) {
	respondJSON(w, status, errorResponse{Error: errName, Message: message})
}

// listTasks handles GET /api/v1/tasks. An optional ?state= query parameter
// narrows the result to a single task.State; otherwise every terminal and
// in-flight state is returned.
func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	states := []task.State{
		task.StatePending,
		task.StateProcessing,
		task.StatePaused,
		task.StateWaitingUnban,
		task.StateRetrying,
		task.StateCompleted,
		task.StateFailed,
		task.StateNeedsHumanReview,
		task.StateAwaitingConfirmation,
	}
	if q := r.URL.Query().Get("state"); q != "" {
		states = []task.State{task.State(q)}
	}

	tasks, err := s.store.GetTasksByState(ctx, states...)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if tasks == nil {
		tasks = []*task.Task{}
	}

	respondJSON(w, http.StatusOK, tasks)
}

// getTask handles GET /api/v1/tasks/{taskID}.
func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")

	t, err := s.store.GetTask(r.Context(), taskID)
	if err != nil {
		if err == task.ErrTaskNotFound || err == store.ErrNotFound {
			respondError(w, http.StatusNotFound, "not_found", "task not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, t)
}

// listAlerts handles GET /api/v1/alerts, returning every unresolved P1-P3
// alert the recovery loop has raised.
func (s *Server) listAlerts(w http.ResponseWriter, r *http.Request) {
	alerts, err := s.store.GetUnresolvedAlerts(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if alerts == nil {
		alerts = []*store.Alert{}
	}

	respondJSON(w, http.StatusOK, alerts)
}

// listWorkers handles GET /api/v1/workers, the read-only counterpart to the
// teacher's admin worker listing.
func (s *Server) listWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.store.GetActiveWorkers(r.Context(), s.workerMaxAge)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}
	if workers == nil {
		workers = []*store.WorkerStatus{}
	}

	respondJSON(w, http.StatusOK, workers)
}

// getWorker handles GET /api/v1/workers/{workerID}.
func (s *Server) getWorker(w http.ResponseWriter, r *http.Request) {
	workerID := chi.URLParam(r, "workerID")

	ws, err := s.store.GetWorkerStatus(r.Context(), workerID)
	if err != nil {
		if err == store.ErrNotFound {
			respondError(w, http.StatusNotFound, "not_found", "worker not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "store_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, ws)
}

// queueDepth handles GET /api/v1/queue, reporting how many tasks sit
// pending versus processing on disk right now.
func (s *Server) queueDepth(w http.ResponseWriter, r *http.Request) {
	pending, err := s.queue.ListPending()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "queue_error", err.Error())
		return
	}
	processing, err := s.queue.ListProcessing()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "queue_error", err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]int{
		"pending":    len(pending),
		"processing": len(processing),
	})
}
