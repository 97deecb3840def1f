package httpapi

import (
	"net/http"
	"strings"

	"github.com/luckysitara/fluffy-succotash/internal/audit"
	"github.com/luckysitara/fluffy-succotash/internal/auth"
	"github.com/luckysitara/fluffy-succotash/internal/cases"
)

type createCaseRequest struct {
	Title          string `json:"title"`
	Description    string `json:"description"`
	Status         string `json:"status"`
	Priority       string `json:"priority"`
	AssignedTo     string `json:"assigned_to"`
	OrganizationID string `json:"organization_id"`
}

type updateCaseRequest struct {
	Title       *string `json:"title"`
	Description *string `json:"description"`
	Status      *string `json:"status"`
	Priority    *string `json:"priority"`
	AssignedTo  *string `json:"assigned_to"`
}

func (a *API) handleCases(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		list, err := a.cases.ListCases(r.Context(), actor, cases.ListFilter{
			Status:   r.URL.Query().Get("status"),
			Priority: r.URL.Query().Get("priority"),
			Skip:     queryInt(r, "skip", 0),
			Limit:    queryInt(r, "limit", 100),
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if list == nil {
			list = []*cases.Case{}
		}
		a.audit(r.Context(), audit.ActionRead, "Case", "", map[string]any{
			"count": len(list),
		})
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req createCaseRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		c, err := a.cases.CreateCase(r.Context(), actor, cases.CreateCaseInput{
			Title:          req.Title,
			Description:    req.Description,
			Status:         req.Status,
			Priority:       req.Priority,
			AssignedTo:     req.AssignedTo,
			OrganizationID: req.OrganizationID,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionCreate, "Case", c.ID, map[string]any{
			"title":           c.Title,
			"organization_id": c.OrganizationID,
		})
		writeJSON(w, http.StatusCreated, c)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCaseResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/cases/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	caseID := parts[0]

	switch {
	case len(parts) == 1:
		a.handleCaseByID(w, r, actor, caseID)
	case len(parts) == 2 && parts[1] == "assignments":
		a.handleCaseAssignments(w, r, actor, caseID)
	case len(parts) == 3 && parts[1] == "assignments":
		a.handleCaseAssignment(w, r, actor, caseID, parts[2])
	case len(parts) == 2 && parts[1] == "assignable-users":
		a.handleAssignableUsers(w, r, actor, caseID)
	case len(parts) == 2 && parts[1] == "evidence":
		a.handleCaseEvidence(w, r, actor, caseID)
	case len(parts) == 3 && parts[1] == "evidence" && parts[2] == "upload":
		a.handleEvidenceUpload(w, r, actor, caseID)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) handleCaseByID(w http.ResponseWriter, r *http.Request, actor *auth.Identity, caseID string) {
	switch r.Method {
	case http.MethodGet:
		c, err := a.cases.GetCase(r.Context(), actor, caseID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, c)
	case http.MethodPut:
		var req updateCaseRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		c, err := a.cases.UpdateCase(r.Context(), actor, caseID, cases.UpdateCaseInput{
			Title:       req.Title,
			Description: req.Description,
			Status:      req.Status,
			Priority:    req.Priority,
			AssignedTo:  req.AssignedTo,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionUpdate, "Case", c.ID, map[string]any{
			"title": c.Title,
		})
		writeJSON(w, http.StatusOK, c)
	case http.MethodDelete:
		c, evCount, asgCount, err := a.cases.DeleteCase(r.Context(), actor, caseID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionDelete, "Case", c.ID, map[string]any{
			"title":                     c.Title,
			"deleted_evidence_count":    evCount,
			"deleted_assignments_count": asgCount,
		})
		writeJSON(w, http.StatusOK, map[string]any{"message": "case deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

type assignUsersRequest struct {
	UserIDs []string `json:"user_ids"`
}

func (a *API) handleCaseAssignments(w http.ResponseWriter, r *http.Request, actor *auth.Identity, caseID string) {
	switch r.Method {
	case http.MethodGet:
		list, err := a.cases.ListAssignments(r.Context(), actor, caseID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if list == nil {
			list = []*cases.Assignment{}
		}
		a.audit(r.Context(), audit.ActionRead, "CaseAssignment", "", map[string]any{
			"case_id": caseID,
			"count":   len(list),
		})
		writeJSON(w, http.StatusOK, list)
	case http.MethodPost:
		var req assignUsersRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		created, err := a.cases.AssignUsers(r.Context(), actor, caseID, req.UserIDs)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		assigned := make([]string, 0, len(created))
		for _, asg := range created {
			assigned = append(assigned, asg.UserID)
		}
		a.audit(r.Context(), audit.ActionAssign, "Case", caseID, map[string]any{
			"case_id":        caseID,
			"assigned_users": assigned,
		})
		if created == nil {
			created = []*cases.Assignment{}
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleCaseAssignment(w http.ResponseWriter, r *http.Request, actor *auth.Identity, caseID, userID string) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}
	if err := a.cases.UnassignUser(r.Context(), actor, caseID, userID); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.ActionUnassign, "CaseAssignment", "", map[string]any{
		"case_id": caseID,
		"user_id": userID,
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "user unassigned"})
}

func (a *API) handleAssignableUsers(w http.ResponseWriter, r *http.Request, actor *auth.Identity, caseID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	users, err := a.cases.ListAssignableUsers(r.Context(), actor, caseID)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if users == nil {
		users = []*auth.Identity{}
	}
	writeJSON(w, http.StatusOK, users)
}
