package httpapi

import (
	"net/http"

	"github.com/luckysitara/fluffy-succotash/internal/audit"
	"github.com/luckysitara/fluffy-succotash/internal/auth"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresIn   int64          `json:"expires_in"`
	User        *auth.Identity `json:"user"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token, user, err := a.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if a.recorder != nil {
		a.recorder.Record(r.Context(), user, audit.Event{
			Action:       audit.ActionLogin,
			ResourceType: "User",
			ResourceID:   user.ID,
			Details:      map[string]any{"username": user.Username},
		})
	}
	writeJSON(w, http.StatusOK, loginResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int64(a.auth.SessionTTL().Seconds()),
		User:        user,
	})
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

func (a *API) handleChangePassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req changePasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.ChangePassword(r.Context(), actor, req.CurrentPassword, req.NewPassword); err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.ActionUpdate, "User", actor.ID, map[string]any{
		"action": "change_password",
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "password updated, log in again",
	})
}

type verifyAdminPasswordRequest struct {
	Password string `json:"password"`
}

func (a *API) handleVerifyAdminPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req verifyAdminPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.auth.VerifyAdminPassword(r.Context(), actor, req.Password); err != nil {
		handleServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"verified": true})
}

type adminResetPasswordRequest struct {
	AdminPassword string `json:"admin_password"`
	UserID        string `json:"user_id"`
	NewPassword   string `json:"new_password"`
}

// handleAdminResetPassword lets an admin set a user's password after
// re-proving their own. The target's sessions are invalidated.
func (a *API) handleAdminResetPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req adminResetPasswordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.AdminResetPassword(r.Context(), actor, req.AdminPassword, req.UserID, req.NewPassword)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	a.audit(r.Context(), audit.ActionUpdate, "User", user.ID, map[string]any{
		"action":   "admin_reset_password",
		"username": user.Username,
	})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "password reset, the user must log in again",
	})
}

type passwordResetRequest struct {
	Email string `json:"email"`
}

func (a *API) handlePasswordResetRequest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req passwordResetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	token, err := a.auth.RequestPasswordReset(r.Context(), req.Email)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	// The response is identical for known and unknown addresses. Until a
	// mail sender is wired in, the token travels in the response body.
	resp := map[string]any{
		"message": "if the email is registered, a reset token has been issued",
	}
	if token != "" {
		resp["reset_token"] = token
	}
	writeJSON(w, http.StatusOK, resp)
}

type passwordResetConfirm struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (a *API) handlePasswordResetConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req passwordResetConfirm
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.auth.ConfirmPasswordReset(r.Context(), req.Token, req.NewPassword)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if a.recorder != nil {
		a.recorder.Record(r.Context(), user, audit.Event{
			Action:       audit.ActionUpdate,
			ResourceType: "User",
			ResourceID:   user.ID,
			Details:      map[string]any{"action": "password_reset"},
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "password updated, log in again",
	})
}
