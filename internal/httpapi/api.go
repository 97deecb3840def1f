// Package httpapi is the HTTP surface of the case-management service.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/luckysitara/fluffy-succotash/internal/audit"
	"github.com/luckysitara/fluffy-succotash/internal/auth"
	"github.com/luckysitara/fluffy-succotash/internal/cases"
	"github.com/luckysitara/fluffy-succotash/internal/obs"
)

// ReadyProbe checks service readiness (e.g. DB ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Config carries the tunables of the HTTP layer.
type Config struct {
	Version          string
	MaxBodyBytes     int64
	RateLimitBurst   int
	RateLimitPerSec  int
	DisableRateLimit bool
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe

	auth     *auth.Service
	cases    *cases.Service
	recorder *audit.Recorder

	cfg Config
}

// New wires the services into the route table.
func New(rp ReadyProbe, authSvc *auth.Service, caseSvc *cases.Service, recorder *audit.Recorder, cfg Config) *API {
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = 32 << 20 // room for evidence uploads
	}
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 20
	}
	if cfg.RateLimitPerSec <= 0 {
		cfg.RateLimitPerSec = 10
	}
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		auth:       authSvc,
		cases:      caseSvc,
		recorder:   recorder,
		cfg:        cfg,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	// auth
	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/password-reset/request", a.handlePasswordResetRequest)
	a.mux.HandleFunc("/v1/auth/password-reset/confirm", a.handlePasswordResetConfirm)
	a.mux.HandleFunc("/v1/auth/change-password", a.handleChangePassword)
	a.mux.HandleFunc("/v1/auth/verify-admin-password", a.handleVerifyAdminPassword)
	a.mux.HandleFunc("/v1/auth/admin-reset-password", a.handleAdminResetPassword)

	// users
	a.mux.HandleFunc("/v1/users/me", a.handleMe)
	a.mux.HandleFunc("/v1/users", a.handleUsers)
	a.mux.HandleFunc("/v1/users/", a.handleUserResource)

	// organizations
	a.mux.HandleFunc("/v1/organizations/simple", a.handleOrganizationsSimple)
	a.mux.HandleFunc("/v1/organizations", a.handleOrganizations)
	a.mux.HandleFunc("/v1/organizations/", a.handleOrganizationResource)

	// cases, assignments, evidence
	a.mux.HandleFunc("/v1/cases", a.handleCases)
	a.mux.HandleFunc("/v1/cases/", a.handleCaseResource)
	a.mux.HandleFunc("/v1/evidence/", a.handleEvidenceResource)

	// audit trail
	a.mux.HandleFunc("/v1/audit-logs/stats", a.handleAuditStats)
	a.mux.HandleFunc("/v1/audit-logs", a.handleAuditLogs)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler returns the fully wrapped http.Handler for the server.
func (a *API) Handler() http.Handler {
	h := a.withAuth(a.mux)
	h = MaxBodyBytes(h, a.cfg.MaxBodyBytes)
	if !a.cfg.DisableRateLimit {
		h = RateLimit(h, a.cfg.RateLimitBurst, a.cfg.RateLimitPerSec)
	}
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- health handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "casefile-api",
		"version": a.cfg.Version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "casefile-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.cfg.Version,
	})
}

// audit records an entry best-effort for the authenticated actor.
func (a *API) audit(ctx context.Context, action, resourceType, resourceID string, details map[string]any) {
	if a.recorder == nil {
		return
	}
	actor, _ := auth.IdentityFromContext(ctx)
	ev := audit.Event{
		Action:       action,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Details:      details,
	}
	// Case-scoped entries carry the case id as a first-class column.
	if resourceType == "Case" {
		ev.CaseID = resourceID
	} else if caseID, ok := details["case_id"].(string); ok {
		ev.CaseID = caseID
	}
	a.recorder.Record(ctx, actor, ev)
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// handleServiceError maps the service error taxonomy onto HTTP statuses.
func handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, auth.ErrForbidden):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, auth.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, auth.ErrInactive):
		writeError(w, r, http.StatusBadRequest, "inactive user")
	case errors.Is(err, auth.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrConflict):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		obs.LogError("request_failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"path":       r.URL.Path,
			"error":      err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

// queryInt reads a non-negative integer query parameter with a default.
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}

// requireIdentity returns the authenticated actor or writes 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	actor, ok := auth.IdentityFromContext(r.Context())
	if !ok || actor == nil {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return nil, false
	}
	return actor, true
}
