package httpapi

import (
	"net/http"

	"github.com/luckysitara/fluffy-succotash/internal/audit"
)

func (a *API) handleAuditLogs(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	entries, err := a.recorder.List(r.Context(), actor, audit.Filter{
		UserID:       q.Get("user_id"),
		Action:       q.Get("action"),
		ResourceType: q.Get("resource_type"),
		Skip:         queryInt(r, "skip", 0),
		Limit:        queryInt(r, "limit", 100),
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []*audit.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (a *API) handleAuditStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	stats, err := a.recorder.ListStats(r.Context(), actor)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
