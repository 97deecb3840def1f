// Package audit records who did what to which resource. Recording is
// best-effort: a failed audit write is logged and counted, never
// surfaced to the caller.
package audit

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/luckysitara/fluffy-succotash/internal/auth"
	"github.com/luckysitara/fluffy-succotash/internal/obs"
)

// Actions recorded in the trail.
const (
	ActionCreate   = "CREATE"
	ActionRead     = "READ"
	ActionUpdate   = "UPDATE"
	ActionDelete   = "DELETE"
	ActionAssign   = "ASSIGN"
	ActionUnassign = "UNASSIGN"
	ActionLogin    = "LOGIN"
)

// Entry is one persisted audit record. OrganizationID is the actor's
// tenant at the time of the action; CaseID is set for case-scoped
// actions.
type Entry struct {
	ID             string         `json:"id"`
	UserID         string         `json:"user_id,omitempty"`
	Username       string         `json:"username"`
	OrganizationID string         `json:"organization_id,omitempty"`
	CaseID         string         `json:"case_id,omitempty"`
	Action         string         `json:"action"`
	ResourceType   string         `json:"resource_type"`
	ResourceID     string         `json:"resource_id,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	IPAddress      string         `json:"ip_address,omitempty"`
	UserAgent      string         `json:"user_agent,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// Event is what callers hand to the Recorder.
type Event struct {
	Action       string
	ResourceType string
	ResourceID   string
	CaseID       string
	Details      map[string]any
}

// Filter narrows List results.
type Filter struct {
	UserID         string
	OrganizationID string
	Action         string
	ResourceType   string
	Skip           int
	Limit          int
}

// Stats summarizes the trail.
type Stats struct {
	Total             int64            `json:"total_entries"`
	RecentActivity24h int64            `json:"recent_activity_24h"`
	ByAction          map[string]int64 `json:"actions"`
	ByResourceType    map[string]int64 `json:"resource_types"`
}

// Store persists audit entries.
type Store interface {
	Insert(ctx context.Context, e *Entry) error
	List(ctx context.Context, f Filter) ([]*Entry, error)
	// Stats aggregates over the whole trail.
	Stats(ctx context.Context) (*Stats, error)
}

type requestMetaKey struct{}

// RequestMeta is the caller context attached to recorded entries.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// WithRequestMeta attaches request metadata for the Recorder to pick up.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

// MetaFromContext returns the attached request metadata, if any.
func MetaFromContext(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}

// ClientIP picks the caller address: first hop of X-Forwarded-For, then
// X-Real-IP, then the peer address, then loopback.
func ClientIP(xff, xrip, remoteAddr string) string {
	if xff != "" {
		first := strings.TrimSpace(strings.SplitN(xff, ",", 2)[0])
		if first != "" {
			return first
		}
	}
	if xrip = strings.TrimSpace(xrip); xrip != "" {
		return xrip
	}
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil && host != "" {
		return host
	}
	if remoteAddr != "" {
		return remoteAddr
	}
	return "127.0.0.1"
}

// Recorder writes audit entries.
type Recorder struct {
	store Store
	now   func() time.Time
}

// NewRecorder constructs a Recorder.
func NewRecorder(store Store) (*Recorder, error) {
	if store == nil {
		return nil, errors.New("audit: store is required")
	}
	return &Recorder{store: store, now: time.Now}, nil
}

// Record persists one entry best-effort. On failure it logs, bumps the
// drop counter and returns nil; callers never see audit failures.
func (r *Recorder) Record(ctx context.Context, actor *auth.Identity, ev Event) *Entry {
	e := &Entry{
		Action:       ev.Action,
		ResourceType: ev.ResourceType,
		ResourceID:   ev.ResourceID,
		CaseID:       ev.CaseID,
		Details:      sanitizeDetails(ev.Details),
		Timestamp:    r.now().UTC(),
	}
	if actor != nil {
		e.UserID = actor.ID
		e.Username = actor.Username
		e.OrganizationID = actor.OrganizationID
	}
	if meta, ok := MetaFromContext(ctx); ok {
		e.IPAddress = meta.IP
		e.UserAgent = meta.UserAgent
	}
	if err := r.store.Insert(ctx, e); err != nil {
		obs.AuditDropped()
		obs.LogError("audit_write_failed", map[string]any{
			"action":        ev.Action,
			"resource_type": ev.ResourceType,
			"error":         err.Error(),
		})
		return nil
	}
	return e
}

// List returns trail entries visible to the actor: everything for a
// SuperAdmin, the own tenant's entries for an OrgAdmin.
func (r *Recorder) List(ctx context.Context, actor *auth.Identity, f Filter) ([]*Entry, error) {
	if err := r.scope(actor, &f); err != nil {
		return nil, err
	}
	return r.store.List(ctx, f)
}

// ListStats aggregates the whole trail. SuperAdmin only.
func (r *Recorder) ListStats(ctx context.Context, actor *auth.Identity) (*Stats, error) {
	if actor.Role != auth.RoleSuperAdmin {
		return nil, fmt.Errorf("%w: not enough permissions to view audit statistics", auth.ErrForbidden)
	}
	return r.store.Stats(ctx)
}

// scope narrows the filter to the actor's tenant. Entries carry the
// actor's organization at write time, so tenant reads filter on the
// entry column and survive member churn.
func (r *Recorder) scope(actor *auth.Identity, f *Filter) error {
	switch actor.Role {
	case auth.RoleSuperAdmin:
		return nil
	case auth.RoleOrgAdmin:
		if actor.OrganizationID == "" {
			return fmt.Errorf("%w: organization admin must belong to an organization", auth.ErrInvalidInput)
		}
		f.OrganizationID = actor.OrganizationID
		return nil
	}
	return fmt.Errorf("%w: not enough permissions to view audit logs", auth.ErrForbidden)
}

// sanitizeDetails converts detail values into JSON-safe shapes: times
// become RFC3339Nano strings, Stringers collapse to their String().
func sanitizeDetails(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = sanitizeValue(v)
	}
	return out
}

func sanitizeValue(v any) any {
	switch t := v.(type) {
	case nil, bool, string, int, int32, int64, float32, float64:
		return t
	case time.Time:
		return t.UTC().Format(time.RFC3339Nano)
	case map[string]any:
		return sanitizeDetails(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = sanitizeValue(item)
		}
		return out
	case []string:
		return t
	case fmt.Stringer:
		return t.String()
	case error:
		return t.Error()
	default:
		return fmt.Sprintf("%v", t)
	}
}
