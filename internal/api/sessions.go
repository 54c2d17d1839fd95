package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/worker"
)

// CreateSessionRequest registers a named sending session.
type CreateSessionRequest struct {
	Name  string  `json:"name"`
	SDRID *string `json:"sdr_id,omitempty"`
}

// HandleCreateSession creates a session in stopped state; a worker process
// starts it.
func (h *Handlers) HandleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req CreateSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Name == "" {
		respondError(w, http.StatusBadRequest, "name is required")
		return
	}

	s := &domain.DispatchSession{
		ID:     uuid.New().String(),
		Name:   req.Name,
		SDRID:  req.SDRID,
		Status: domain.SessionStopped,
	}
	if err := h.sessions.Create(r.Context(), s); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create session: "+err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, s)
}

// HandleGetSession returns one session by id.
func (h *Handlers) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Get(r.Context(), chi.URLParam(r, "sessionID"))
	if err != nil {
		if errors.Is(err, worker.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s)
}

// HandleStartSession flips the session to running so its worker's loop may
// proceed. The worker process itself is operated separately.
func (h *Handlers) HandleStartSession(w http.ResponseWriter, r *http.Request) {
	h.setSessionStatus(w, r, domain.SessionRunning, nil)
}

// HandleStopSession flips the session to stopped.
func (h *Handlers) HandleStopSession(w http.ResponseWriter, r *http.Request) {
	h.setSessionStatus(w, r, domain.SessionStopped, nil)
}

// PauseSessionRequest optionally bounds the pause.
type PauseSessionRequest struct {
	PausedUntil *time.Time `json:"paused_until,omitempty"`
	Minutes     int        `json:"minutes,omitempty"`
}

// HandlePauseSession pauses the session, optionally until a given time.
// Pausing does not touch the worker's in-process pacing counter.
func (h *Handlers) HandlePauseSession(w http.ResponseWriter, r *http.Request) {
	var req PauseSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	until := req.PausedUntil
	if until == nil && req.Minutes > 0 {
		t := time.Now().Add(time.Duration(req.Minutes) * time.Minute)
		until = &t
	}
	h.setSessionStatus(w, r, domain.SessionPaused, until)
}

// HandleResumeSession resumes a paused session.
func (h *Handlers) HandleResumeSession(w http.ResponseWriter, r *http.Request) {
	h.setSessionStatus(w, r, domain.SessionRunning, nil)
}

func (h *Handlers) setSessionStatus(w http.ResponseWriter, r *http.Request, status domain.SessionStatus, pausedUntil *time.Time) {
	id := chi.URLParam(r, "sessionID")
	if err := h.sessions.SetStatus(r.Context(), id, status, pausedUntil); err != nil {
		if errors.Is(err, worker.ErrNotFound) {
			respondError(w, http.StatusNotFound, "session not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{"id": id, "status": string(status)}
	if pausedUntil != nil {
		resp["paused_until"] = pausedUntil.UTC().Format(time.RFC3339)
	}
	respondJSON(w, http.StatusOK, resp)
}
