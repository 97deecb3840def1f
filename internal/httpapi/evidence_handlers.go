package httpapi

import (
	"net/http"
	"strings"

	"github.com/luckysitara/fluffy-succotash/internal/audit"
	"github.com/luckysitara/fluffy-succotash/internal/auth"
	"github.com/luckysitara/fluffy-succotash/internal/cases"
)

type addEvidenceRequest struct {
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	EvidenceType string         `json:"evidence_type"`
	Content      string         `json:"content"`
	Metadata     map[string]any `json:"metadata"`
	Tags         string         `json:"tags"`
}

type updateEvidenceRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Content     *string `json:"content"`
	Tags        *string `json:"tags"`
	IsVerified  *bool   `json:"is_verified"`
}

func (a *API) handleCaseEvidence(w http.ResponseWriter, r *http.Request, actor *auth.Identity, caseID string) {
	switch r.Method {
	case http.MethodGet:
		list, err := a.cases.ListEvidence(r.Context(), actor, caseID, queryInt(r, "skip", 0), queryInt(r, "limit", 100))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if list == nil {
			list = []*cases.Evidence{}
		}
		a.audit(r.Context(), audit.ActionRead, "Evidence", "", map[string]any{
			"case_id": caseID,
			"count":   len(list),
		})
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req addEvidenceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		e, err := a.cases.AddEvidence(r.Context(), actor, cases.AddEvidenceInput{
			CaseID:      caseID,
			Title:       req.Title,
			Description: req.Description,
			Type:        req.EvidenceType,
			Content:     req.Content,
			Metadata:    req.Metadata,
			Tags:        req.Tags,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionCreate, "Evidence", e.ID, map[string]any{
			"case_id":       e.CaseID,
			"title":         e.Title,
			"evidence_type": e.Type,
		})
		writeJSON(w, http.StatusCreated, e)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleEvidenceUpload accepts a multipart form with a "file" part plus
// optional "title" and "description" fields.
func (a *API) handleEvidenceUpload(w http.ResponseWriter, r *http.Request, actor *auth.Identity, caseID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "an upload file is required")
		return
	}
	defer file.Close()

	e, err := a.cases.UploadEvidence(r.Context(), actor, cases.UploadEvidenceInput{
		CaseID:      caseID,
		Title:       r.FormValue("title"),
		Description: r.FormValue("description"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Tags:        r.FormValue("tags"),
		Body:        file,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.ActionCreate, "Evidence", e.ID, map[string]any{
		"case_id":   e.CaseID,
		"title":     e.Title,
		"file_size": e.FileSize,
		"file_hash": e.FileHash,
	})
	writeJSON(w, http.StatusCreated, e)
}

func (a *API) handleEvidenceResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	evidenceID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/evidence/"), "/")
	if evidenceID == "" || strings.Contains(evidenceID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		e, err := a.cases.GetEvidence(r.Context(), actor, evidenceID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, e)
	case http.MethodPut:
		var req updateEvidenceRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		e, err := a.cases.UpdateEvidence(r.Context(), actor, evidenceID, cases.UpdateEvidenceInput{
			Title:       req.Title,
			Description: req.Description,
			Content:     req.Content,
			Tags:        req.Tags,
			Verified:    req.IsVerified,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionUpdate, "Evidence", e.ID, map[string]any{
			"case_id": e.CaseID,
			"title":   e.Title,
		})
		writeJSON(w, http.StatusOK, e)
	case http.MethodDelete:
		e, err := a.cases.DeleteEvidence(r.Context(), actor, evidenceID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionDelete, "Evidence", e.ID, map[string]any{
			"case_id": e.CaseID,
			"title":   e.Title,
		})
		writeJSON(w, http.StatusOK, map[string]any{"message": "evidence deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}
