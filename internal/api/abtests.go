package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/leadline/outreach-engine/internal/abtest"
	"github.com/leadline/outreach-engine/internal/domain"
)

// CreateTestRequest defines a new content experiment.
type CreateTestRequest struct {
	CampaignID string             `json:"campaign_id"`
	Name       string             `json:"name"`
	Variants   []domain.ABVariant `json:"variants"`
}

// HandleCreateTest creates a draft A/B test with its variants.
func (h *Handlers) HandleCreateTest(w http.ResponseWriter, r *http.Request) {
	var req CreateTestRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CampaignID == "" || req.Name == "" {
		respondError(w, http.StatusBadRequest, "campaign_id and name are required")
		return
	}
	if len(req.Variants) < 2 {
		respondError(w, http.StatusBadRequest, "a test needs at least two variants")
		return
	}

	t := &domain.ABTest{
		CampaignID: req.CampaignID,
		Name:       req.Name,
		Variants:   req.Variants,
	}
	if err := h.tests.CreateTest(r.Context(), t); err != nil {
		if errors.Is(err, abtest.ErrInvalidWeights) || errors.Is(err, abtest.ErrNoVariants) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to create test: "+err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, t)
}

// HandleGetTest returns one test with its variants.
func (h *Handlers) HandleGetTest(w http.ResponseWriter, r *http.Request) {
	t, err := h.tests.GetTest(r.Context(), chi.URLParam(r, "testID"))
	if err != nil {
		h.respondTestError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, t)
}

// HandleActivateTest opens the test for assignments.
func (h *Handlers) HandleActivateTest(w http.ResponseWriter, r *http.Request) {
	h.setTestStatus(w, r, domain.ABTestActive)
}

// HandlePauseTest pauses new assignments; existing assignments keep their
// variant content.
func (h *Handlers) HandlePauseTest(w http.ResponseWriter, r *http.Request) {
	h.setTestStatus(w, r, domain.ABTestPaused)
}

// HandleCompleteTest closes the test.
func (h *Handlers) HandleCompleteTest(w http.ResponseWriter, r *http.Request) {
	h.setTestStatus(w, r, domain.ABTestCompleted)
}

func (h *Handlers) setTestStatus(w http.ResponseWriter, r *http.Request, status domain.ABTestStatus) {
	id := chi.URLParam(r, "testID")
	if err := h.tests.UpdateTestStatus(r.Context(), id, status); err != nil {
		h.respondTestError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(status)})
}

// AssignVariantRequest pins a contact to a variant.
type AssignVariantRequest struct {
	ContactID string `json:"contact_id"`
}

// HandleAssignVariant resolves (or creates) the contact's assignment.
func (h *Handlers) HandleAssignVariant(w http.ResponseWriter, r *http.Request) {
	var req AssignVariantRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ContactID == "" {
		respondError(w, http.StatusBadRequest, "contact_id is required")
		return
	}

	a, err := h.tests.AssignVariant(r.Context(), chi.URLParam(r, "testID"), req.ContactID)
	if err != nil {
		h.respondTestError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, a)
}

// HandleTestResults returns per-variant rollups. Winner selection from the
// numbers happens outside this engine.
func (h *Handlers) HandleTestResults(w http.ResponseWriter, r *http.Request) {
	results, err := h.tests.Results(r.Context(), chi.URLParam(r, "testID"))
	if err != nil {
		h.respondTestError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

// RecordEventRequest appends one funnel event to an assignment.
type RecordEventRequest struct {
	AssignmentID string `json:"assignment_id"`
	EventType    string `json:"event_type"`
	Payload      string `json:"payload,omitempty"`
}

// HandleRecordEvent records a funnel event (sent, opened, clicked,
// responded, booked, bounced) against an assignment.
func (h *Handlers) HandleRecordEvent(w http.ResponseWriter, r *http.Request) {
	var req RecordEventRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.AssignmentID == "" || req.EventType == "" {
		respondError(w, http.StatusBadRequest, "assignment_id and event_type are required")
		return
	}

	err := h.tests.RecordEvent(r.Context(), req.AssignmentID, domain.ABEventType(req.EventType), req.Payload)
	if err != nil {
		if errors.Is(err, abtest.ErrInvalidEventType) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to record event: "+err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"status": "recorded"})
}

func (h *Handlers) respondTestError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, abtest.ErrNotFound):
		respondError(w, http.StatusNotFound, "ab test not found")
	case errors.Is(err, abtest.ErrNotActive):
		respondError(w, http.StatusConflict, "ab test is not active")
	case errors.Is(err, abtest.ErrNoVariants):
		respondError(w, http.StatusConflict, "ab test has no variants")
	case errors.Is(err, abtest.ErrInvalidTransition):
		respondError(w, http.StatusConflict, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
