package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lkrnac/manucap-sub004/internal/db"
	"github.com/lkrnac/manucap-sub004/internal/job"
)

type JobsHandler struct {
	database *db.Database
	queue    *job.JobQueue
}

func NewJobsHandler(database *db.Database, queue *job.JobQueue) *JobsHandler {
	return &JobsHandler{database: database, queue: queue}
}

// StartSpellCheck enqueues a whole-track spell check job.
func (h *JobsHandler) StartSpellCheck(w http.ResponseWriter, r *http.Request) {
	trackID := chi.URLParam(r, "trackID")
	if _, _, err := h.database.GetTrack(trackID); err != nil {
		jsonError(w, "track not found", http.StatusNotFound)
		return
	}
	j, err := h.queue.Enqueue(job.JobSpellCheckTrack, trackID)
	if err != nil {
		jsonError(w, "failed to enqueue job", http.StatusInternalServerError)
		return
	}
	jsonResponse(w, j, http.StatusAccepted)
}

// ListJobs returns a track's jobs, newest first.
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.queue.ListJobs(chi.URLParam(r, "trackID"))
	if err != nil {
		jsonError(w, "failed to list jobs", http.StatusInternalServerError)
		return
	}
	if jobs == nil {
		jobs = []*job.Job{}
	}
	jsonResponse(w, map[string]interface{}{"jobs": jobs}, http.StatusOK)
}

// GetJob returns one job's status and progress.
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request) {
	j, err := h.queue.GetJob(chi.URLParam(r, "jobID"))
	if err != nil {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	jsonResponse(w, j, http.StatusOK)
}

// CancelJob cancels a pending or running job.
func (h *JobsHandler) CancelJob(w http.ResponseWriter, r *http.Request) {
	if err := h.queue.CancelJob(chi.URLParam(r, "jobID")); err != nil {
		jsonError(w, "failed to cancel job", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
