// Package api exposes the operator-facing HTTP surface: contact intake,
// enqueue, queue inspection, session controls, A/B tests, cadence settings
// and the on-demand outreach trigger.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/leadline/outreach-engine/internal/abtest"
	"github.com/leadline/outreach-engine/internal/cadence"
	"github.com/leadline/outreach-engine/internal/domain"
	"github.com/leadline/outreach-engine/internal/intake"
	"github.com/leadline/outreach-engine/internal/worker"
)

// ContactStore is the contact persistence the API needs beyond what the
// send paths use.
type ContactStore interface {
	worker.ContactStore
	Create(ctx context.Context, c *domain.Contact) error
}

// QueueStore adds the operator-only requeue to the worker-facing queue
// contract.
type QueueStore interface {
	worker.QueueStore
	Requeue(ctx context.Context, id string) error
}

// SettingsStore reads and writes persisted cadence settings.
type SettingsStore interface {
	cadence.SettingsSource
	Save(ctx context.Context, s *domain.CadenceSettings) error
}

// Handlers contains all HTTP handlers.
type Handlers struct {
	contacts ContactStore
	queue    QueueStore
	sessions worker.SessionStore
	settings SettingsStore
	tests    *abtest.Service
	builder  *intake.Builder
	pipeline *intake.Pipeline
	ondemand *worker.OnDemandProcessor
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	contacts ContactStore,
	queue QueueStore,
	sessions worker.SessionStore,
	settings SettingsStore,
	tests *abtest.Service,
	builder *intake.Builder,
	pipeline *intake.Pipeline,
	ondemand *worker.OnDemandProcessor,
) *Handlers {
	return &Handlers{
		contacts: contacts,
		queue:    queue,
		sessions: sessions,
		settings: settings,
		tests:    tests,
		builder:  builder,
		pipeline: pipeline,
		ondemand: ondemand,
	}
}

// HealthCheck reports liveness.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// Response helpers

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}
