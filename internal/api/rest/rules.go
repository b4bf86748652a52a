package rest

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/kubilitics/kubilitics-backend/internal/errkind"
	"github.com/kubilitics/kubilitics-backend/internal/models"
	"github.com/kubilitics/kubilitics-backend/internal/pkg/validate"
)

// ListRules handles GET /rules: the live catalog snapshot.
func (h *Handler) ListRules(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.Catalog.Snapshot().List())
}

// GetRule handles GET /rules/{id}.
func (h *Handler) GetRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rule, ok := h.Catalog.Snapshot().Get(id)
	if !ok {
		respondError(w, r, http.StatusNotFound, string(errkind.KindNotFound), "rule not found")
		return
	}
	respondJSON(w, http.StatusOK, rule)
}

// CreateRule handles POST /rules: writes a new rule file and reloads the
// catalog (§4.A).
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	var rule models.Rule
	if err := decodeJSON(r, &rule); err != nil {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "invalid JSON body")
		return
	}
	if !validate.RuleID(rule.ID) {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "invalid rule id")
		return
	}
	if err := h.Catalog.Create(&rule); err != nil {
		respondError(w, r, http.StatusConflict, string(errkind.KindConflict), err.Error())
		return
	}
	respondJSON(w, http.StatusCreated, rule)
}

// UpdateRule handles PUT /rules/{id}: full metadata+body replacement,
// re-validated and reloaded atomically with every other rule (§4.A, §9
// "build the new catalog off to the side... then atomically swap").
func (h *Handler) UpdateRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var incoming models.Rule
	if err := decodeJSON(r, &incoming); err != nil {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindValidation), "invalid JSON body")
		return
	}
	err := h.Catalog.Update(id, func(rule *models.Rule) {
		incoming.ID = id
		*rule = incoming
	})
	if err != nil {
		respondError(w, r, http.StatusNotFound, string(errkind.KindNotFound), err.Error())
		return
	}
	updated, _ := h.Catalog.Snapshot().Get(id)
	respondJSON(w, http.StatusOK, updated)
}

// DeleteRule handles DELETE /rules/{id}.
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := h.Catalog.Delete(id); err != nil {
		respondError(w, r, http.StatusNotFound, string(errkind.KindNotFound), err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ReloadRules handles POST /rules/reload: forces a rebuild-and-swap outside
// the fsnotify watch (operator-triggered, e.g. after an out-of-band file
// drop).
func (h *Handler) ReloadRules(w http.ResponseWriter, r *http.Request) {
	if err := h.Catalog.Reload(); err != nil {
		respondError(w, r, http.StatusBadRequest, string(errkind.KindRuleSelectFailed), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "reloaded"})
}
