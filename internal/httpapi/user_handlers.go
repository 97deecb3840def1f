package httpapi

import (
	"net/http"
	"strings"

	"github.com/luckysitara/fluffy-succotash/internal/audit"
	"github.com/luckysitara/fluffy-succotash/internal/auth"
)

type createUserRequest struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	FullName       string `json:"full_name"`
	Password       string `json:"password"`
	Role           string `json:"role"`
	OrganizationID string `json:"organization_id"`
	Active         *bool  `json:"is_active"`
}

type updateUserRequest struct {
	Username       *string `json:"username"`
	Email          *string `json:"email"`
	FullName       *string `json:"full_name"`
	Password       *string `json:"password"`
	Role           *string `json:"role"`
	OrganizationID *string `json:"organization_id"`
	Active         *bool   `json:"is_active"`
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, actor)
	case http.MethodPut:
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		a.updateUser(w, r, actor, actor.ID, req)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut)
	}
}

func (a *API) handleUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		users, err := a.auth.ListUsers(r.Context(), actor, queryInt(r, "skip", 0), queryInt(r, "limit", 100))
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		if users == nil {
			users = []*auth.Identity{}
		}
		a.audit(r.Context(), audit.ActionRead, "User", "", map[string]any{
			"count": len(users),
		})
		writeJSON(w, http.StatusOK, users)
	case http.MethodPost:
		var req createUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := auth.ParseRole(req.Role)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		user, err := a.auth.CreateUser(r.Context(), actor, auth.CreateUserInput{
			Username:       req.Username,
			Email:          req.Email,
			FullName:       req.FullName,
			Password:       req.Password,
			Role:           role,
			OrganizationID: req.OrganizationID,
			Active:         req.Active,
		})
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionCreate, "User", user.ID, map[string]any{
			"username":        user.Username,
			"role":            user.Role,
			"organization_id": user.OrganizationID,
		})
		writeJSON(w, http.StatusCreated, user)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/users/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	userID := parts[0]

	if len(parts) == 2 && parts[1] == "reset-password" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.adminResetPassword(w, r, actor, userID)
		return
	}
	if len(parts) != 1 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		user, err := a.auth.GetUser(r.Context(), actor, userID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	case http.MethodPut:
		var req updateUserRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		a.updateUser(w, r, actor, userID, req)
	case http.MethodDelete:
		user, err := a.auth.DeleteUser(r.Context(), actor, userID)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		a.audit(r.Context(), audit.ActionDelete, "User", user.ID, map[string]any{
			"username": user.Username,
		})
		writeJSON(w, http.StatusOK, map[string]any{"message": "user deleted"})
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) updateUser(w http.ResponseWriter, r *http.Request, actor *auth.Identity, userID string, req updateUserRequest) {
	in := auth.UpdateUserInput{
		Username:       req.Username,
		Email:          req.Email,
		FullName:       req.FullName,
		Password:       req.Password,
		OrganizationID: req.OrganizationID,
		Active:         req.Active,
	}
	if req.Role != nil {
		role, err := auth.ParseRole(*req.Role)
		if err != nil {
			handleServiceError(w, r, err)
			return
		}
		in.Role = &role
	}
	user, err := a.auth.UpdateUser(r.Context(), actor, userID, in)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.ActionUpdate, "User", user.ID, map[string]any{
		"username": user.Username,
	})
	writeJSON(w, http.StatusOK, user)
}

type adminResetPasswordUserRequest struct {
	AdminPassword string `json:"admin_password"`
	NewPassword   string `json:"new_password"`
}

func (a *API) adminResetPassword(w http.ResponseWriter, r *http.Request, actor *auth.Identity, userID string) {
	var req adminResetPasswordUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target, err := a.auth.AdminResetPassword(r.Context(), actor, req.AdminPassword, userID, req.NewPassword)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.ActionUpdate, "User", target.ID, map[string]any{
		"action":   "admin_reset_password",
		"username": target.Username,
	})
	writeJSON(w, http.StatusOK, map[string]any{"message": "password reset"})
}
