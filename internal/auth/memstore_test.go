package auth

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// fakeUserStore and fakeOrgStore are in-memory stores for service tests.
type fakeUserStore struct {
	mu    sync.Mutex
	seq   int
	users map[string]*Identity
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*Identity)}
}

func (s *fakeUserStore) Create(_ context.Context, u *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return fmt.Errorf("%w: duplicate user", ErrConflict)
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

func (s *fakeUserStore) Find(_ context.Context, id string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) FindByUsername(_ context.Context, username string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeUserStore) FindByEmail(_ context.Context, email string) (*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeUserStore) List(_ context.Context, f UserFilter) ([]*Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Identity
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
	return out, nil
}

func (s *fakeUserStore) Update(_ context.Context, u *Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[u.ID]; !ok {
		return ErrNotFound
	}
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *fakeUserStore) UpdatePassword(_ context.Context, id, hash string, changedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = hash
	u.PasswordChangedAt = changedAt
	return nil
}

func (s *fakeUserStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)
	return nil
}

type fakeOrgStore struct {
	mu    sync.Mutex
	seq   int
	orgs  map[string]*Organization
	users *fakeUserStore
}

func newFakeOrgStore(users *fakeUserStore) *fakeOrgStore {
	return &fakeOrgStore{orgs: make(map[string]*Organization), users: users}
}

func (s *fakeOrgStore) Create(_ context.Context, org *Organization) error {
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

func (s *fakeOrgStore) Find(_ context.Context, id string) (*Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	org, ok := s.orgs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *org
	return &cp, nil
}

func (s *fakeOrgStore) FindByName(_ context.Context, name string) (*Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, org := range s.orgs {
		if org.Name == name {
			cp := *org
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *fakeOrgStore) List(_ context.Context, activeOnly bool, _, _ int) ([]*Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*Organization
	for _, org := range s.orgs {
		if activeOnly && !org.Active {
			continue
		}
		cp := *org
		out = append(out, &cp)
	}
	return out, nil
}

func (s *fakeOrgStore) Update(_ context.Context, org *Organization, cascadeDeactivate bool) (int64, error) {
	s.mu.Lock()
	if _, ok := s.orgs[org.ID]; !ok {
		s.mu.Unlock()
		return 0, ErrNotFound
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

func (s *fakeOrgStore) Delete(_ context.Context, id string) (int64, error) {
	s.mu.Lock()
	if _, ok := s.orgs[id]; !ok {
		s.mu.Unlock()
		return 0, ErrNotFound
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
