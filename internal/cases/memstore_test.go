package cases

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/luckysitara/fluffy-succotash/internal/auth"
)

// In-memory stores and directories for service tests.

type fakeCaseStore struct {
	mu    sync.Mutex
	seq   int
	cases map[string]*Case

	evidence    *fakeEvidenceStore
	assignments *fakeAssignmentStore
}

func newFakeCaseStore(ev *fakeEvidenceStore, asg *fakeAssignmentStore) *fakeCaseStore {
	return &fakeCaseStore{cases: make(map[string]*Case), evidence: ev, assignments: asg}
}

func (s *fakeCaseStore) Create(_ context.Context, c *Case) error {
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

func (s *fakeCaseStore) Find(_ context.Context, id string) (*Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakeCaseStore) List(_ context.Context, f CaseFilter) ([]*Case, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Case
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
			if !visible && s.assignments != nil {
				for _, a := range s.assignments.forCase(c.ID) {
					if a.UserID == f.VisibleTo {
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
	return out, nil
}

func (s *fakeCaseStore) Update(_ context.Context, c *Case) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.cases[c.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *c
	s.cases[c.ID] = &cp
	return nil
}

func (s *fakeCaseStore) Delete(_ context.Context, id string) (int64, int64, error) {
	s.mu.Lock()
	if _, ok := s.cases[id]; !ok {
		s.mu.Unlock()
		return 0, 0, auth.ErrNotFound
	}
	delete(s.cases, id)
	s.mu.Unlock()

	var evCount, asgCount int64
	if s.evidence != nil {
		evCount = s.evidence.deleteForCase(id)
	}
	if s.assignments != nil {
		asgCount = s.assignments.deleteForCase(id)
	}
	return evCount, asgCount, nil
}

type fakeAssignmentStore struct {
	mu   sync.Mutex
	seq  int
	rows []*Assignment
}

func newFakeAssignmentStore() *fakeAssignmentStore { return &fakeAssignmentStore{} }

func (s *fakeAssignmentStore) Assign(_ context.Context, caseID, assignedBy string, userIDs []string) ([]*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Assignment
	for _, userID := range userIDs {
		exists := false
		for _, a := range s.rows {
			if a.CaseID == caseID && a.UserID == userID {
				exists = true
				break
			}
		}
		if exists {
			continue
		}
		s.seq++
		a := &Assignment{
			ID:         fmt.Sprintf("asg-%d", s.seq),
			CaseID:     caseID,
			UserID:     userID,
			AssignedBy: assignedBy,
			AssignedAt: time.Now().UTC(),
		}
		s.rows = append(s.rows, a)
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeAssignmentStore) Unassign(_ context.Context, caseID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.rows {
		if a.CaseID == caseID && a.UserID == userID {
			s.rows = append(s.rows[:i], s.rows[i+1:]...)
			return nil
		}
	}
	return auth.ErrNotFound
}

func (s *fakeAssignmentStore) ListForCase(_ context.Context, caseID string) ([]*Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Assignment
	for _, a := range s.forCase(caseID) {
		cp := *a
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeAssignmentStore) UserIDsForCase(_ context.Context, caseID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.forCase(caseID) {
		out = append(out, a.UserID)
	}
	return out, nil
}

// forCase assumes the caller holds the lock or accepts a racy read.
func (s *fakeAssignmentStore) forCase(caseID string) []*Assignment {
	var out []*Assignment
	for _, a := range s.rows {
		if a.CaseID == caseID {
			out = append(out, a)
		}
	}
	return out
}

func (s *fakeAssignmentStore) deleteForCase(caseID string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	var kept []*Assignment
	var removed int64
	for _, a := range s.rows {
		if a.CaseID == caseID {
			removed++
			continue
		}
		kept = append(kept, a)
	}
	s.rows = kept
	return removed
}

type fakeEvidenceStore struct {
	mu    sync.Mutex
	seq   int
	items map[string]*Evidence
}

func newFakeEvidenceStore() *fakeEvidenceStore {
	return &fakeEvidenceStore{items: make(map[string]*Evidence)}
}

func (s *fakeEvidenceStore) Create(_ context.Context, e *Evidence) error {
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

func (s *fakeEvidenceStore) Find(_ context.Context, id string) (*Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (s *fakeEvidenceStore) ListForCase(_ context.Context, caseID string, _, _ int) ([]*Evidence, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Evidence
	for _, e := range s.items {
		if e.CaseID == caseID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *fakeEvidenceStore) Update(_ context.Context, e *Evidence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[e.ID]; !ok {
		return auth.ErrNotFound
	}
	cp := *e
	s.items[e.ID] = &cp
	return nil
}

func (s *fakeEvidenceStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.items, id)
	return nil
}

func (s *fakeEvidenceStore) deleteForCase(caseID string) int64 {
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

type fakeDirectory struct {
	mu    sync.Mutex
	users map[string]*auth.Identity
	orgs  map[string]*auth.Organization
}

func newFakeDirectory() *fakeDirectory {
	return &fakeDirectory{
		users: make(map[string]*auth.Identity),
		orgs:  make(map[string]*auth.Organization),
	}
}

func (d *fakeDirectory) addUser(id string, role auth.Role, orgID string) *auth.Identity {
	d.mu.Lock()
	defer d.mu.Unlock()
	u := &auth.Identity{ID: id, Username: id, Role: role, OrganizationID: orgID, Active: true}
	d.users[id] = u
	return u
}

func (d *fakeDirectory) addOrg(id, name string) *auth.Organization {
	d.mu.Lock()
	defer d.mu.Unlock()
	org := &auth.Organization{ID: id, Name: name, Active: true}
	d.orgs[id] = org
	return org
}

func (d *fakeDirectory) Find(_ context.Context, id string) (*auth.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (d *fakeDirectory) List(_ context.Context, f auth.UserFilter) ([]*auth.Identity, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*auth.Identity
	for _, u := range d.users {
		if f.OrganizationID != "" && u.OrganizationID != f.OrganizationID {
			continue
		}
		if f.ActiveOnly && !u.Active {
			continue
		}
		cp := *u
		out = append(out, &cp)
	}
	return out, nil
}

type fakeOrgDirectory struct{ d *fakeDirectory }

func (o fakeOrgDirectory) Find(_ context.Context, id string) (*auth.Organization, error) {
	o.d.mu.Lock()
	defer o.d.mu.Unlock()
	org, ok := o.d.orgs[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	cp := *org
	return &cp, nil
}
