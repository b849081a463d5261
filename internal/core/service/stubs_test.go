package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/webapi-identity/identity-api/internal/core/domain"
)

// ---------------------------------------------------------------------------
// Stubs
// ---------------------------------------------------------------------------

type stubStore struct {
	mu        sync.Mutex
	users     map[string]*domain.Identity // id -> user
	passwords map[string]string           // id -> plaintext
	roles     map[string]*domain.Role     // normalized name -> role
	assigned  map[string]map[string]bool  // user id -> role name -> true
	nextID    int

	findErr     error
	createErr   error
	roleErr     error
	addRoleErr  error
	deleted     []string
	getRolesN   int
	minPassword int
}

func newStubStore() *stubStore {
	return &stubStore{
		users:       make(map[string]*domain.Identity),
		passwords:   make(map[string]string),
		roles:       make(map[string]*domain.Role),
		assigned:    make(map[string]map[string]bool),
		minPassword: 6,
	}
}

func cloneUser(u *domain.Identity) *domain.Identity {
	clone := *u
	return &clone
}

func (s *stubStore) FindByUsername(_ context.Context, username string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *stubStore) FindByEmail(_ context.Context, email string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findErr != nil {
		return nil, s.findErr
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Email, email) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *stubStore) FindByID(_ context.Context, id string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return cloneUser(u), nil
}

func (s *stubStore) VerifyPassword(_ context.Context, identity *domain.Identity, plaintext string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.passwords[identity.ID] == plaintext, nil
}

func (s *stubStore) CreateIdentity(_ context.Context, identity *domain.Identity, plaintext string) (*domain.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return nil, s.createErr
	}
	if len(plaintext) < s.minPassword {
		return nil, &domain.PolicyError{Reasons: []string{fmt.Sprintf("password must be at least %d characters", s.minPassword)}}
	}
	for _, u := range s.users {
		if strings.EqualFold(u.Username, identity.Username) || strings.EqualFold(u.Email, identity.Username) {
			return nil, domain.ErrUserExists
		}
		if identity.Email != "" && !strings.EqualFold(identity.Email, identity.Username) &&
			(strings.EqualFold(u.Email, identity.Email) || strings.EqualFold(u.Username, identity.Email)) {
			return nil, domain.ErrUserExists
		}
	}
	s.nextID++
	u := cloneUser(identity)
	u.ID = fmt.Sprintf("u%d", s.nextID)
	u.PasswordHash = "hashed:" + plaintext
	s.users[u.ID] = u
	s.passwords[u.ID] = plaintext
	s.assigned[u.ID] = make(map[string]bool)
	return cloneUser(u), nil
}

func (s *stubStore) DeleteIdentity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, id)
	delete(s.passwords, id)
	delete(s.assigned, id)
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubStore) GetRoles(_ context.Context, identity *domain.Identity) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.getRolesN++
	if s.roleErr != nil {
		return nil, s.roleErr
	}
	out := make([]string, 0)
	for name := range s.assigned[identity.ID] {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *stubStore) AddRole(_ context.Context, identity *domain.Identity, roleName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roleErr != nil {
		return false, s.roleErr
	}
	if s.addRoleErr != nil {
		return false, s.addRoleErr
	}
	role, ok := s.roles[domain.Normalize(roleName)]
	if !ok {
		return false, domain.ErrRoleNotFound
	}
	if s.assigned[identity.ID][role.Name] {
		return false, nil
	}
	s.assigned[identity.ID][role.Name] = true
	return true, nil
}

func (s *stubStore) RemoveRole(_ context.Context, identity *domain.Identity, roleName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roleErr != nil {
		return false, s.roleErr
	}
	role, ok := s.roles[domain.Normalize(roleName)]
	if !ok || !s.assigned[identity.ID][role.Name] {
		return false, nil
	}
	delete(s.assigned[identity.ID], role.Name)
	return true, nil
}

func (s *stubStore) CreateRole(_ context.Context, name string) (*domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roleErr != nil {
		return nil, s.roleErr
	}
	norm := domain.Normalize(name)
	if _, ok := s.roles[norm]; ok {
		return nil, domain.ErrRoleExists
	}
	r := &domain.Role{ID: "r-" + strings.ToLower(name), Name: name, NormalizedName: norm}
	s.roles[norm] = r
	clone := *r
	return &clone, nil
}

func (s *stubStore) FindRoleByID(_ context.Context, id string) (*domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.roles {
		if r.ID == id {
			clone := *r
			return &clone, nil
		}
	}
	return nil, domain.ErrRoleNotFound
}

func (s *stubStore) ListRoles(_ context.Context) ([]domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.roleErr != nil {
		return nil, s.roleErr
	}
	out := make([]domain.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *stubStore) roleCount(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.roles {
		if r.Name == name {
			n++
		}
	}
	return n
}

type stubCache struct {
	mu            sync.Mutex
	data          map[string][]string
	gens          map[string]uint64
	getErr        error
	invalidateErr error
	invalidated   []string
}

func newStubCache() *stubCache {
	return &stubCache{data: make(map[string][]string), gens: make(map[string]uint64)}
}

func (c *stubCache) Get(_ context.Context, userID string) ([]string, bool, uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, 0, c.getErr
	}
	roles, ok := c.data[userID]
	return roles, ok, c.gens[userID], nil
}

func (c *stubCache) Set(_ context.Context, userID string, roles []string, gen uint64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] == gen {
		c.data[userID] = roles
	}
	return nil
}

func (c *stubCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.invalidateErr != nil {
		return c.invalidateErr
	}
	c.gens[userID]++
	delete(c.data, userID)
	c.invalidated = append(c.invalidated, userID)
	return nil
}

func (c *stubCache) cached(userID string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	roles, ok := c.data[userID]
	return roles, ok
}

type stubAudit struct {
	err     error
	changes []domain.RoleChange
}

func (a *stubAudit) InsertRoleChange(_ context.Context, change *domain.RoleChange) error {
	if a.err != nil {
		return a.err
	}
	a.changes = append(a.changes, *change)
	return nil
}

var errStoreDown = errors.New("store unavailable")
