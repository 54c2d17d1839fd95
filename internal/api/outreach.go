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

// CreateContactRequest is the intake payload.
type CreateContactRequest struct {
	CampaignID    string  `json:"campaign_id"`
	FirstName     string  `json:"first_name"`
	LastName      string  `json:"last_name"`
	Company       string  `json:"company"`
	Phone         string  `json:"phone"`
	Email         *string `json:"email,omitempty"`
	AssignedSDRID *string `json:"assigned_sdr_id,omitempty"`
}

// HandleCreateContact creates a contact and runs the enrichment pipeline.
// Enrichment step failures are reported in the response but never fail the
// intake itself.
func (h *Handlers) HandleCreateContact(w http.ResponseWriter, r *http.Request) {
	var req CreateContactRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.CampaignID == "" {
		respondError(w, http.StatusBadRequest, "campaign_id is required")
		return
	}
	if req.Phone == "" && (req.Email == nil || *req.Email == "") {
		respondError(w, http.StatusBadRequest, "contact needs a phone or an email")
		return
	}

	c := &domain.Contact{
		ID:            uuid.New().String(),
		CampaignID:    req.CampaignID,
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		Company:       req.Company,
		Phone:         req.Phone,
		Email:         req.Email,
		Status:        domain.ContactPending,
		AssignedSDRID: req.AssignedSDRID,
	}
	if err := h.contacts.Create(r.Context(), c); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to create contact: "+err.Error())
		return
	}

	var enrichment []intakeStepResult
	if h.pipeline != nil {
		for _, res := range h.pipeline.Enrich(r.Context(), c) {
			enrichment = append(enrichment, intakeStepResult{
				Step:   res.Step,
				Detail: res.Detail,
				Error:  res.Error,
			})
		}
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"contact":    c,
		"enrichment": enrichment,
	})
}

type intakeStepResult struct {
	Step   string `json:"step"`
	Detail string `json:"detail,omitempty"`
	Error  string `json:"error,omitempty"`
}

// HandleGetContact returns one contact by id.
func (h *Handlers) HandleGetContact(w http.ResponseWriter, r *http.Request) {
	c, err := h.contacts.Get(r.Context(), chi.URLParam(r, "contactID"))
	if err != nil {
		if errors.Is(err, worker.ErrNotFound) {
			respondError(w, http.StatusNotFound, "contact not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, c)
}

// EnqueueRequest asks for a message to be queued for the dispatch worker.
// Body is optional: when omitted, the message is rendered from the
// campaign's template (variant-aware) at enqueue time.
type EnqueueRequest struct {
	ContactID string  `json:"contact_id"`
	Body      string  `json:"body,omitempty"`
	SDRID     *string `json:"sdr_id,omitempty"`
}

// HandleEnqueue renders (if needed) and queues one outbound message.
func (h *Handlers) HandleEnqueue(w http.ResponseWriter, r *http.Request) {
	var req EnqueueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.ContactID == "" {
		respondError(w, http.StatusBadRequest, "contact_id is required")
		return
	}

	c, err := h.contacts.Get(r.Context(), req.ContactID)
	if err != nil {
		if errors.Is(err, worker.ErrNotFound) {
			respondError(w, http.StatusNotFound, "contact not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	item := &domain.SendQueueItem{
		ContactID:  c.ID,
		CampaignID: c.CampaignID,
		SDRID:      req.SDRID,
		Body:       req.Body,
	}
	if req.SDRID == nil {
		item.SDRID = c.AssignedSDRID
	}

	if item.Body == "" {
		msg, err := h.builder.Build(r.Context(), c)
		if err != nil {
			respondError(w, http.StatusUnprocessableEntity, "failed to render message: "+err.Error())
			return
		}
		item.Body = msg.Body
		item.Destination = msg.Destination
	} else if c.Phone != "" {
		item.Destination = c.Phone
	} else if c.Email != nil {
		item.Destination = *c.Email
	} else {
		respondError(w, http.StatusUnprocessableEntity, "contact has no deliverable destination")
		return
	}

	id, err := h.queue.Enqueue(r.Context(), item)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to enqueue: "+err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, map[string]string{"queue_id": id})
}

// HandleQueueStats reports the pending backlog size.
func (h *Handlers) HandleQueueStats(w http.ResponseWriter, r *http.Request) {
	n, err := h.queue.PendingCount(r.Context())
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"pending": n})
}

// HandleStuckItems lists items abandoned mid-send by a killed worker.
// Recovery is the operator's explicit requeue call, never automatic.
func (h *Handlers) HandleStuckItems(w http.ResponseWriter, r *http.Request) {
	olderThan := 10 * time.Minute
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid older_than duration")
			return
		}
		olderThan = d
	}

	items, err := h.queue.StuckSending(r.Context(), olderThan)
	if err != nil {
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(items),
		"items": items,
	})
}

// HandleGetQueueItem returns one queue item by id.
func (h *Handlers) HandleGetQueueItem(w http.ResponseWriter, r *http.Request) {
	item, err := h.queue.Get(r.Context(), chi.URLParam(r, "itemID"))
	if err != nil {
		if errors.Is(err, worker.ErrNotFound) {
			respondError(w, http.StatusNotFound, "queue item not found")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, item)
}

// HandleRequeue resets a failed or stuck item back to pending.
func (h *Handlers) HandleRequeue(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "itemID")
	if err := h.queue.Requeue(r.Context(), id); err != nil {
		if errors.Is(err, worker.ErrNotFound) {
			respondError(w, http.StatusConflict, "item is not failed or stuck")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "requeued", "id": id})
}

// RunOutreachRequest triggers one on-demand batch.
type RunOutreachRequest struct {
	SDRID       *string                 `json:"sdr_id,omitempty"`
	CampaignID  *string                 `json:"campaign_id,omitempty"`
	MaxMessages int                     `json:"max_messages,omitempty"`
	Settings    *domain.CadenceSettings `json:"settings,omitempty"`
}

// HandleRunOutreach runs the on-demand processor once. Policy skips come
// back as 200 with skipped=true; only infrastructure failures are errors.
func (h *Handlers) HandleRunOutreach(w http.ResponseWriter, r *http.Request) {
	var req RunOutreachRequest
	if !decodeBody(w, r, &req) {
		return
	}

	res, err := h.ondemand.Run(r.Context(), worker.OnDemandParams{
		SDRID:            req.SDRID,
		CampaignID:       req.CampaignID,
		MaxMessages:      req.MaxMessages,
		SettingsOverride: req.Settings,
	})
	if err != nil {
		respondError(w, http.StatusInternalServerError, "outreach run failed: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, res)
}
