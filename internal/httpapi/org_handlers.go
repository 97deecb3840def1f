package httpapi

import (
	"net/http"
	"strings"

	"github.com/luckysitara/fluffy-succotash/internal/audit"
	"github.com/luckysitara/fluffy-succotash/internal/auth"
)

type createOrganizationRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Plan        string `json:"plan"`
	MaxUsers    int    `json:"max_users"`
	MaxCases    int    `json:"max_cases"`
}

type updateOrganizationRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Plan        *string `json:"plan"`
	MaxUsers    *int    `json:"max_users"`
	MaxCases    *int    `json:"max_cases"`
	Active      *bool   `json:"is_active"`
}

func (a *API) handleOrganizations(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		orgs, err := a.auth.ListOrganizations(r.Context(), actor, queryInt(r, "skip", 0), queryInt(r, "limit", 100))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if orgs == nil {
			orgs = []*auth.Organization{}
		}
		a.audit(r.Context(), audit.ActionRead, "Organization", "", map[string]any{
			"count": len(orgs),
		})
		writeJSON(w, http.StatusOK, orgs)
	case http.MethodPost:
		var req createOrganizationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		org, err := a.auth.CreateOrganization(r.Context(), actor, auth.CreateOrganizationInput{
			Name:        req.Name,
			Description: req.Description,
			Plan:        req.Plan,
			MaxUsers:    req.MaxUsers,
			MaxCases:    req.MaxCases,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionCreate, "Organization", org.ID, map[string]any{
			"name": org.Name,
		})
		writeJSON(w, http.StatusCreated, org)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// handleOrganizationsSimple serves the trimmed-down active-tenant list
// used by admin user forms.
func (a *API) handleOrganizationsSimple(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orgs, err := a.auth.ListActiveOrganizations(r.Context(), actor)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	type simpleOrg struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	out := make([]simpleOrg, 0, len(orgs))
	for _, org := range orgs {
		out = append(out, simpleOrg{ID: org.ID, Name: org.Name})
	}
	writeJSON(w, http.StatusOK, out)
}

func (a *API) handleOrganizationResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	orgID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/organizations/"), "/")
	if orgID == "" || strings.Contains(orgID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		org, err := a.auth.GetOrganization(r.Context(), actor, orgID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, org)
	case http.MethodPut:
		var req updateOrganizationRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		res, err := a.auth.UpdateOrganization(r.Context(), actor, orgID, auth.UpdateOrganizationInput{
			Name:        req.Name,
			Description: req.Description,
			Plan:        req.Plan,
			MaxUsers:    req.MaxUsers,
			MaxCases:    req.MaxCases,
			Active:      req.Active,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionUpdate, "Organization", res.Organization.ID, map[string]any{
			"name": res.Organization.Name,
		})
		if res.Cascaded {
			// The member deactivation sweep gets its own trail entry.
			a.audit(r.Context(), audit.ActionUpdate, "User", "", map[string]any{
				"action":               "cascade_deactivate_users",
				"organization_id":      res.Organization.ID,
				"affected_users_count": res.Deactivated,
			})
		}
		writeJSON(w, http.StatusOK, res.Organization)
	case http.MethodDelete:
		org, deletedUsers, err := a.auth.DeleteOrganization(r.Context(), actor, orgID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionDelete, "Organization", org.ID, map[string]any{
			"name":                org.Name,
			"deleted_users_count": deletedUsers,
		})
		writeJSON(w, http.StatusOK, map[string]any{"message": "organization deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}
