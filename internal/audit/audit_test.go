package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/luckysitara/fluffy-succotash/internal/auth"
)

type fakeStore struct {
	entries    []*Entry
	insertErr  error
	lastList   Filter
	statsCalls int
}

func (s *fakeStore) Insert(_ context.Context, e *Entry) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *fakeStore) List(_ context.Context, f Filter) ([]*Entry, error) {
	s.lastList = f
	return s.entries, nil
}

func (s *fakeStore) Stats(_ context.Context) (*Stats, error) {
	s.statsCalls++
	return &Stats{Total: int64(len(s.entries))}, nil
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name            string
		xff, xrip, peer string
		want            string
	}{
		{"forwarded first hop", "203.0.113.9, 10.0.0.1", "198.51.100.2", "192.168.1.5:4431", "203.0.113.9"},
		{"real ip fallback", "", "198.51.100.2", "192.168.1.5:4431", "198.51.100.2"},
		{"peer host", "", "", "192.168.1.5:4431", "192.168.1.5"},
		{"peer without port", "", "", "192.168.1.5", "192.168.1.5"},
		{"nothing", "", "", "", "127.0.0.1"},
		{"blank forwarded entry", " , 10.0.0.1", "198.51.100.2", "", "198.51.100.2"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClientIP(tc.xff, tc.xrip, tc.peer); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestRecordCarriesMeta(t *testing.T) {
	store := &fakeStore{}
	rec, err := NewRecorder(store)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := WithRequestMeta(context.Background(), RequestMeta{IP: "203.0.113.9", UserAgent: "curl/8"})
	actor := &auth.Identity{ID: "u-1", Username: "alice", Role: auth.RoleOrgAdmin, OrganizationID: "org-1"}

	e := rec.Record(ctx, actor, Event{
		Action:       ActionCreate,
		ResourceType: "Case",
		ResourceID:   "case-1",
		CaseID:       "case-1",
		Details:      map[string]any{"title": "registrant sweep"},
	})
	if e == nil {
		t.Fatal("record returned nil entry")
	}
	if e.UserID != "u-1" || e.Username != "alice" || e.OrganizationID != "org-1" || e.CaseID != "case-1" {
		t.Fatalf("actor not captured: %+v", e)
	}
	if e.IPAddress != "203.0.113.9" || e.UserAgent != "curl/8" {
		t.Fatalf("request meta not captured: %+v", e)
	}
	if e.Timestamp.IsZero() || e.Timestamp.Location() != time.UTC {
		t.Fatalf("timestamp not UTC: %v", e.Timestamp)
	}
	if len(store.entries) != 1 {
		t.Fatalf("entry not stored: %d", len(store.entries))
	}
}

func TestRecordBestEffort(t *testing.T) {
	store := &fakeStore{insertErr: errors.New("db down")}
	rec, err := NewRecorder(store)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	// A failed write is swallowed, not surfaced.
	if e := rec.Record(context.Background(), nil, Event{Action: ActionDelete, ResourceType: "User"}); e != nil {
		t.Fatalf("expected nil entry on store failure, got %+v", e)
	}
}

func TestListScoping(t *testing.T) {
	store := &fakeStore{entries: []*Entry{{ID: "e-1"}}}
	rec, err := NewRecorder(store)
	if err != nil {
		t.Fatalf("new recorder: %v", err)
	}
	ctx := context.Background()

	// SuperAdmin reads the whole trail.
	sa := &auth.Identity{ID: "sa", Role: auth.RoleSuperAdmin}
	if _, err := rec.List(ctx, sa, Filter{}); err != nil {
		t.Fatalf("sa list: %v", err)
	}
	if store.lastList.OrganizationID != "" {
		t.Fatalf("sa list should be unscoped, got %q", store.lastList.OrganizationID)
	}
	stats, err := rec.ListStats(ctx, sa)
	if err != nil {
		t.Fatalf("sa stats: %v", err)
	}
	if stats.Total != 1 || store.statsCalls != 1 {
		t.Fatalf("sa stats not aggregated: %+v", stats)
	}

	// OrgAdmin is narrowed to the tenant column on the entries.
	oa := &auth.Identity{ID: "oa", Role: auth.RoleOrgAdmin, OrganizationID: "org-1"}
	if _, err := rec.List(ctx, oa, Filter{}); err != nil {
		t.Fatalf("oa list: %v", err)
	}
	if store.lastList.OrganizationID != "org-1" {
		t.Fatalf("oa list scoped to %q", store.lastList.OrganizationID)
	}

	// Statistics stay a SuperAdmin surface.
	if _, err := rec.ListStats(ctx, oa); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for oa stats, got %v", err)
	}

	// Everyone else is refused.
	staff := &auth.Identity{ID: "st", Role: auth.RoleStaffUser, OrganizationID: "org-1"}
	if _, err := rec.List(ctx, staff, Filter{}); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for staff, got %v", err)
	}
	if _, err := rec.ListStats(ctx, staff); !errors.Is(err, auth.ErrForbidden) {
		t.Fatalf("expected ErrForbidden for staff stats, got %v", err)
	}
}

func TestSanitizeDetails(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	in := map[string]any{
		"when":  ts,
		"who":   auth.RoleOrgAdmin,
		"cause": errors.New("boom"),
		"nested": map[string]any{
			"at": ts,
		},
		"items": []any{ts, "plain"},
		"count": 3,
	}
	out := sanitizeDetails(in)
	if out["when"] != ts.Format(time.RFC3339Nano) {
		t.Fatalf("time not formatted: %v", out["when"])
	}
	if out["who"] != "ORG_ADMIN" {
		t.Fatalf("stringer not collapsed: %v", out["who"])
	}
	if out["cause"] != "boom" {
		t.Fatalf("error not collapsed: %v", out["cause"])
	}
	nested := out["nested"].(map[string]any)
	if nested["at"] != ts.Format(time.RFC3339Nano) {
		t.Fatalf("nested time not formatted: %v", nested["at"])
	}
	items := out["items"].([]any)
	if items[0] != ts.Format(time.RFC3339Nano) || items[1] != "plain" {
		t.Fatalf("slice not sanitized: %v", items)
	}
	if out["count"] != 3 {
		t.Fatalf("scalar mangled: %v", out["count"])
	}
	if sanitizeDetails(nil) != nil {
		t.Fatal("nil details should stay nil")
	}
}
