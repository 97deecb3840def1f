package httpapi

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/luckysitara/fluffy-succotash/internal/audit"
	"github.com/luckysitara/fluffy-succotash/internal/auth"
	"github.com/luckysitara/fluffy-succotash/internal/cases"
)

// In-memory stores backing the handler tests. memUserStore doubles as
// the case engine's user directory and the audit recorder's tenant
// resolver.

type memUserStore struct {
	mu    sync.Mutex
	seq   int
	users map[string]*auth.Identity
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]*auth.Identity)}
}

func (s *memUserStore) Create(_ context.Context, u *auth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return fmt.Errorf("%w: duplicate user", auth.ErrConflict)
		}
	}
	if u.ID == "" {
		s.seq++
		u.ID = fmt.Sprintf("user-%d", s.seq)
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) Find(_ context.Context, id string) (*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *memUserStore) FindByUsername(_ context.Context, username string) (*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memUserStore) FindByEmail(_ context.Context, email string) (*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memUserStore) List(_ context.Context, f auth.UserFilter) ([]*auth.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.Identity
	for _, u := range s.users {
		if f.OrganizationID != "" && u.OrganizationID != f.OrganizationID {
			continue
		}
		if f.ActiveOnly && !u.Active {
			continue
		}
		if len(f.IDs) > 0 {
			found := false
			for _, id := range f.IDs {
				if id == u.ID {
					found = true
					break
				}
			}
			if !found {
				continue
			}
		}
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memUserStore) Update(_ context.Context, u *auth.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *memUserStore) UpdatePassword(_ context.Context, id, hash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return auth.ErrNotFound
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = changedAt
	return nil
}

func (s *memUserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.users, id)
	return nil
}

type memOrgStore struct {
	mu    sync.Mutex
	seq   int
	orgs  map[string]*auth.Organization
	users *memUserStore
}

func newMemOrgStore(users *memUserStore) *memOrgStore {
	return &memOrgStore{orgs: make(map[string]*auth.Organization), users: users}
}

func (s *memOrgStore) Create(_ context.Context, org *auth.Organization) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if org.ID == "" {
		s.seq++
		org.ID = fmt.Sprintf("org-%d", s.seq)
	}
	cp := *org
	s.orgs[org.ID] = &cp
	return nil
}

func (s *memOrgStore) Find(_ context.Context, id string) (*auth.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *memOrgStore) FindByName(_ context.Context, name string) (*auth.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, org := range s.orgs {
		if org.Name == name {
			cp := *org
			return &cp, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (s *memOrgStore) List(_ context.Context, activeOnly bool, _, _ int) ([]*auth.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*auth.Organization
	for _, org := range s.orgs {
		if activeOnly && !org.Active {
			continue
		}
		cp := *org
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memOrgStore) Update(_ context.Context, org *auth.Organization, cascadeDeactivate bool) (int64, error) {
	s.mu.Lock()
	if _, ok := s.orgs[org.ID]; !ok {
		s.mu.Unlock()
		return 0, auth.ErrNotFound
	}
	cp := *org
	s.orgs[org.ID] = &cp
	s.mu.Unlock()

	var affected int64
	if cascadeDeactivate {
		s.users.mu.Lock()
		for _, u := range s.users.users {
			if u.OrganizationID == org.ID && u.Active {
				u.Active = false
				affected++
			}
		}
		s.users.mu.Unlock()
	}
	return affected, nil
}

func (s *memOrgStore) Delete(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	if _, ok := s.orgs[id]; !ok {
		s.mu.Unlock()
		return 0, auth.ErrNotFound
	}
	delete(s.orgs, id)
	s.mu.Unlock()

	var deleted int64
	s.users.mu.Lock()
	for uid, u := range s.users.users {
		if u.OrganizationID == id {
			delete(s.users.users, uid)
			deleted++
		}
	}
	s.users.mu.Unlock()
	return deleted, nil
}

type memCaseStore struct {
	mu          sync.Mutex
	seq         int
	cases       map[string]*cases.Case
	evidence    *memEvidenceStore
	assignments *memAssignmentStore
}

func newMemCaseStore(ev *memEvidenceStore, asg *memAssignmentStore) *memCaseStore {
	return &memCaseStore{cases: make(map[string]*cases.Case), evidence: ev, assignments: asg}
}

func (s *memCaseStore) Create(_ context.Context, c *cases.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		s.seq++
		c.ID = fmt.Sprintf("case-%d", s.seq)
	}
	cp := *c
	s.cases[c.ID] = &cp
	return nil
}

func (s *memCaseStore) Find(_ context.Context, id string) (*cases.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *memCaseStore) List(ctx context.Context, f cases.CaseFilter) ([]*cases.Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*cases.Case
	for _, c := range s.cases {
		if f.OrganizationID != "" && c.OrganizationID != f.OrganizationID {
			continue
		}
		if f.Status != "" && c.Status != f.Status {
			continue
		}
		if f.Priority != "" && c.Priority != f.Priority {
			continue
		}
		if f.VisibleTo != "" {
			visible := c.CreatedBy == f.VisibleTo || c.AssignedTo == f.VisibleTo
			if !visible {
				ids, _ := s.assignments.UserIDsForCase(ctx, c.ID)
				for _, id := range ids {
					if id == f.VisibleTo {
						visible = true
						break
					}
				}
			}
			if !visible {
				continue
			}
		}
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memCaseStore) Update(_ context.Context, c *cases.Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[c.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *c
	s.cases[c.ID] = &cp
	return nil
}

func (s *memCaseStore) Delete(_ context.Context, id string) (int64, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[id]; !ok {
		return 0, 0, auth.ErrNotFound
	}
	delete(s.cases, id)
	return s.evidence.deleteForCase(id), s.assignments.deleteForCase(id), nil
}

type memAssignmentStore struct {
	mu    sync.Mutex
	seq   int
	links []*cases.Assignment
}

func (s *memAssignmentStore) Assign(_ context.Context, caseID, assignedBy string, userIDs []string) ([]*cases.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*cases.Assignment
	for _, userID := range userIDs {
		exists := false
		for _, a := range s.links {
			if a.CaseID == caseID && a.UserID == userID {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		s.seq++
		a := &cases.Assignment{
			ID:         fmt.Sprintf("asg-%d", s.seq),
			CaseID:     caseID,
			UserID:     userID,
			AssignedBy: assignedBy,
			AssignedAt: time.Now().UTC(),
		}
		s.links = append(s.links, a)
		out = append(out, a)
	}
	return out, nil
}

func (s *memAssignmentStore) Unassign(_ context.Context, caseID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.links {
		if a.CaseID == caseID && a.UserID == userID {
			s.links = append(s.links[:i], s.links[i+1:]...)
			return nil
		}
	}
	return auth.ErrNotFound
}

func (s *memAssignmentStore) ListForCase(_ context.Context, caseID string) ([]*cases.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*cases.Assignment
	for _, a := range s.links {
		if a.CaseID == caseID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *memAssignmentStore) UserIDsForCase(_ context.Context, caseID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.links {
		if a.CaseID == caseID {
			out = append(out, a.UserID)
		}
	}
	return out, nil
}

func (s *memAssignmentStore) deleteForCase(caseID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*cases.Assignment
	var removed int64
	for _, a := range s.links {
		if a.CaseID == caseID {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.links = kept
	return removed
}

type memEvidenceStore struct {
	mu    sync.Mutex
	seq   int
	items map[string]*cases.Evidence
}

func newMemEvidenceStore() *memEvidenceStore {
	return &memEvidenceStore{items: make(map[string]*cases.Evidence)}
}

func (s *memEvidenceStore) Create(_ context.Context, e *cases.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		s.seq++
		e.ID = fmt.Sprintf("ev-%d", s.seq)
	}
	cp := *e
	s.items[e.ID] = &cp
	return nil
}

func (s *memEvidenceStore) Find(_ context.Context, id string) (*cases.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *memEvidenceStore) ListForCase(_ context.Context, caseID string, _, _ int) ([]*cases.Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*cases.Evidence
	for _, e := range s.items {
		if e.CaseID == caseID {
			cp := *e
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *memEvidenceStore) Update(_ context.Context, e *cases.Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[e.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *e
	s.items[e.ID] = &cp
	return nil
}

func (s *memEvidenceStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *memEvidenceStore) deleteForCase(caseID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, e := range s.items {
		if e.CaseID == caseID {
			delete(s.items, id)
			removed++
		}
	}
	return removed
}

type memAuditStore struct {
	mu      sync.Mutex
	seq     int
	entries []*audit.Entry
}

func (s *memAuditStore) Insert(_ context.Context, e *audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.ID == "" {
		s.seq++
		e.ID = fmt.Sprintf("audit-%d", s.seq)
	}
	cp := *e
	s.entries = append(s.entries, &cp)
	return nil
}

func (s *memAuditStore) List(_ context.Context, f audit.Filter) ([]*audit.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*audit.Entry
	for _, e := range s.entries {
		if f.UserID != "" && e.UserID != f.UserID {
			continue
		}
		if f.OrganizationID != "" && e.OrganizationID != f.OrganizationID {
			continue
		}
		if f.Action != "" && e.Action != f.Action {
			continue
		}
		if f.ResourceType != "" && e.ResourceType != f.ResourceType {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	return out, nil
}

func (s *memAuditStore) Stats(_ context.Context) (*audit.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-24 * time.Hour)
	stats := &audit.Stats{
		ByAction:       map[string]int64{},
		ByResourceType: map[string]int64{},
	}
	for _, e := range s.entries {
		stats.Total++
		if e.Timestamp.After(cutoff) {
			stats.RecentActivity24h++
		}
		stats.ByAction[e.Action]++
		stats.ByResourceType[e.ResourceType]++
	}
	return stats, nil
}

// find returns the recorded entries matching action and resource type.
func (s *memAuditStore) find(action, resourceType string) []*audit.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*audit.Entry
	for _, e := range s.entries {
		if e.Action == action && e.ResourceType == resourceType {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out
}
