package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/innovatewithkishlay/justlputhings/internal/worker"
)

// Health is the liveness endpoint used by load balancers.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// WorkerStatus exposes the aggregator's snapshot.
type WorkerStatus interface {
	Status() worker.Status
}

// QueueLen reports the live event-queue depth.
type QueueLen interface {
	Len(ctx context.Context) (int64, error)
}

// WorkerHealthHandler serves the aggregator's operational state. Purely
// observational; nothing here is authoritative.
type WorkerHealthHandler struct {
	Worker WorkerStatus
	Queue  QueueLen
}

func NewWorkerHealthHandler(w WorkerStatus, q QueueLen) *WorkerHealthHandler {
	return &WorkerHealthHandler{Worker: w, Queue: q}
}

func (h *WorkerHealthHandler) Get(c echo.Context) error {
	st := h.Worker.Status()
	qlen, err := h.Queue.Len(c.Request().Context())
	if err != nil {
		qlen = -1 // depth unknown, queue store unreachable
	}
	return c.JSON(http.StatusOK, echo.Map{
		"is_running":           st.IsRunning,
		"last_run_at":          st.LastRunAt,
		"last_duration_ms":     st.LastDurationMS,
		"last_processed_count": st.LastProcessedCount,
		"hit_deadline":         st.HitDeadline,
		"queue_length":         qlen,
	})
}
