package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/nocauto/noc-engine/pkg/model"
)

// SchedulerStore is the CRUD + ownership-registration surface the
// scheduler endpoints need, implemented by internal/store.SchedulerRepository.
type SchedulerStore interface {
	List(ctx context.Context) ([]model.ScheduledTask, error)
	Get(ctx context.Context, taskID string) (*model.ScheduledTask, error)
	Create(ctx context.Context, task *model.ScheduledTask, ownerUsername, ownerUserID string) error
	Update(ctx context.Context, task *model.ScheduledTask) error
	Delete(ctx context.Context, taskID string) error
}

// availableTasks is the registered task identifiers the scheduler and
// ad-hoc dispatch accept.
var availableTasks = []string{
	model.TaskDiscoverTopology,
	model.TaskDiscoverSingleDevice,
	model.TaskCreateBaseline,
	model.TaskCleanupOldData,
}

func (s *Server) handleAvailableTasks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, availableTasks)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.Scheduler.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.Scheduler.Get(r.Context(), chi.URLParam(r, "taskID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type scheduledTaskRequest struct {
	Name           string                 `json:"name"`
	TaskIdentifier string                 `json:"task_identifier"`
	ScheduleKind   model.ScheduleKind     `json:"schedule_kind"`
	IntervalSecs   int                    `json:"interval_secs"`
	CrontabExpr    string                 `json:"crontab_expr"`
	Kwargs         map[string]interface{} `json:"kwargs"`
	Enabled        bool                   `json:"enabled"`
	OneOff         bool                   `json:"one_off"`
	ExpiresAt      *time.Time             `json:"expires_at"`
}

// handleCreateTask injects the caller's username into kwargs and writes a
// TaskOwnership row alongside the task, per the anti-spoofing invariant
// that every task has exactly one owner from creation.
func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req scheduledTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	username := callerUsername(r)
	kwargs := req.Kwargs
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	kwargs["username"] = username

	task := &model.ScheduledTask{
		ID:             uuid.NewString(),
		Name:           req.Name,
		TaskIdentifier: req.TaskIdentifier,
		ScheduleKind:   req.ScheduleKind,
		IntervalSecs:   req.IntervalSecs,
		CrontabExpr:    req.CrontabExpr,
		Kwargs:         kwargs,
		Enabled:        req.Enabled,
		OneOff:         req.OneOff,
		ExpiresAt:      req.ExpiresAt,
	}

	if err := s.Scheduler.Create(r.Context(), task, username, username); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	var req scheduledTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	existing, err := s.Scheduler.Get(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}

	existing.Name = req.Name
	existing.TaskIdentifier = req.TaskIdentifier
	existing.ScheduleKind = req.ScheduleKind
	existing.IntervalSecs = req.IntervalSecs
	existing.CrontabExpr = req.CrontabExpr
	existing.Enabled = req.Enabled
	existing.OneOff = req.OneOff
	existing.ExpiresAt = req.ExpiresAt
	if req.Kwargs != nil {
		req.Kwargs["username"] = existing.Kwargs["username"]
		existing.Kwargs = req.Kwargs
	}

	if err := s.Scheduler.Update(r.Context(), existing); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, existing)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskID")
	if err := s.Scheduler.Delete(r.Context(), taskID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID, "status": "deleted"})
}
