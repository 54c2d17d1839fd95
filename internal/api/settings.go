package api

import (
	"net/http"

	"github.com/leadline/outreach-engine/internal/cadence"
	"github.com/leadline/outreach-engine/internal/domain"
)

// HandleGetSettings returns the effective cadence settings: the stored
// active record when one exists, fully backfilled, else the defaults.
func (h *Handlers) HandleGetSettings(w http.ResponseWriter, r *http.Request) {
	settings := cadence.ResolveSettings(r.Context(), nil, h.settings)
	respondJSON(w, http.StatusOK, settings)
}

// HandleSaveSettings stores a cadence settings record. Saving with
// is_active=true deactivates any previous active record.
func (h *Handlers) HandleSaveSettings(w http.ResponseWriter, r *http.Request) {
	var s domain.CadenceSettings
	if !decodeBody(w, r, &s) {
		return
	}

	if err := h.settings.Save(r.Context(), &s); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save settings: "+err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s)
}
