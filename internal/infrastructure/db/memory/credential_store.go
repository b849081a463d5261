// Package memory provides process-local implementations of the credential
// store, audit log and role cache. They back the "memory" store driver and
// the end-to-end tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/webapi-identity/identity-api/internal/core/domain"
	"github.com/webapi-identity/identity-api/internal/core/ports"
	"github.com/webapi-identity/identity-api/internal/infrastructure/password"
)

// CredentialStore implements ports.CredentialStore with maps guarded by a
// RWMutex. Uniqueness is enforced on the normalized username, email and role
// name. Usernames and emails share one namespace: an email may only equal
// its own identity's username.
type CredentialStore struct {
	mu         sync.RWMutex
	policy     password.Policy
	users      map[string]domain.Identity     // id -> identity
	byUsername map[string]string              // normalized username -> id
	byEmail    map[string]string              // normalized email -> id
	roles      map[string]domain.Role         // id -> role
	roleByName map[string]string              // normalized role name -> id
	userRoles  map[string]map[string]struct{} // user id -> role ids
}

var _ ports.CredentialStore = (*CredentialStore)(nil)

func NewCredentialStore(policy password.Policy) *CredentialStore {
	return &CredentialStore{
		policy:     policy,
		users:      make(map[string]domain.Identity),
		byUsername: make(map[string]string),
		byEmail:    make(map[string]string),
		roles:      make(map[string]domain.Role),
		roleByName: make(map[string]string),
		userRoles:  make(map[string]map[string]struct{}),
	}
}

func (s *CredentialStore) FindByUsername(_ context.Context, username string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[domain.Normalize(username)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *CredentialStore) FindByEmail(_ context.Context, email string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[domain.Normalize(email)]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *CredentialStore) FindByID(_ context.Context, id string) (*domain.Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (s *CredentialStore) VerifyPassword(_ context.Context, identity *domain.Identity, plaintext string) (bool, error) {
	s.mu.RLock()
	u, ok := s.users[identity.ID]
	s.mu.RUnlock()
	if !ok {
		return false, domain.ErrUserNotFound
	}
	return password.Compare(u.PasswordHash, plaintext)
}

func (s *CredentialStore) CreateIdentity(_ context.Context, identity *domain.Identity, plaintext string) (*domain.Identity, error) {
	if reasons := s.policy.Validate(plaintext); len(reasons) > 0 {
		return nil, &domain.PolicyError{Reasons: reasons}
	}
	hash, err := password.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	norm := domain.Normalize(identity.Username)
	normEmail := domain.Normalize(identity.Email)
	if s.taken(norm) || (normEmail != "" && normEmail != norm && s.taken(normEmail)) {
		return nil, domain.ErrUserExists
	}

	u := *identity
	u.ID = uuid.NewString()
	u.NormalizedUsername = norm
	u.PasswordHash = hash
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
		u.UpdatedAt = u.CreatedAt
	}
	s.users[u.ID] = u
	s.byUsername[norm] = u.ID
	if normEmail != "" {
		s.byEmail[normEmail] = u.ID
	}
	s.userRoles[u.ID] = make(map[string]struct{})
	return &u, nil
}

// DeleteIdentity removes an identity and its assignments. Unknown ids are
// ignored.
func (s *CredentialStore) DeleteIdentity(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil
	}
	delete(s.byUsername, u.NormalizedUsername)
	if norm := domain.Normalize(u.Email); s.byEmail[norm] == id {
		delete(s.byEmail, norm)
	}
	delete(s.userRoles, id)
	delete(s.users, id)
	return nil
}

// taken reports whether key is in use as a username or an email. Callers
// hold mu.
func (s *CredentialStore) taken(key string) bool {
	if _, ok := s.byUsername[key]; ok {
		return true
	}
	_, ok := s.byEmail[key]
	return ok
}

// GetRoles returns role names sorted for a stable claim order.
func (s *CredentialStore) GetRoles(_ context.Context, identity *domain.Identity) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	assigned, ok := s.userRoles[identity.ID]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	names := make([]string, 0, len(assigned))
	for roleID := range assigned {
		names = append(names, s.roles[roleID].Name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *CredentialStore) AddRole(_ context.Context, identity *domain.Identity, roleName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assigned, ok := s.userRoles[identity.ID]
	if !ok {
		return false, domain.ErrUserNotFound
	}
	roleID, ok := s.roleByName[domain.Normalize(roleName)]
	if !ok {
		return false, domain.ErrRoleNotFound
	}
	if _, has := assigned[roleID]; has {
		return false, nil
	}
	assigned[roleID] = struct{}{}
	return true, nil
}

func (s *CredentialStore) RemoveRole(_ context.Context, identity *domain.Identity, roleName string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	assigned, ok := s.userRoles[identity.ID]
	if !ok {
		return false, domain.ErrUserNotFound
	}
	roleID, ok := s.roleByName[domain.Normalize(roleName)]
	if !ok {
		return false, nil
	}
	if _, has := assigned[roleID]; !has {
		return false, nil
	}
	delete(assigned, roleID)
	return true, nil
}

func (s *CredentialStore) CreateRole(_ context.Context, name string) (*domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	norm := domain.Normalize(name)
	if _, exists := s.roleByName[norm]; exists {
		return nil, domain.ErrRoleExists
	}
	r := domain.Role{
		ID:             uuid.NewString(),
		Name:           name,
		NormalizedName: norm,
		CreatedAt:      time.Now().UTC(),
	}
	s.roles[r.ID] = r
	s.roleByName[norm] = r.ID
	return &r, nil
}

func (s *CredentialStore) FindRoleByID(_ context.Context, id string) (*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok {
		return nil, domain.ErrRoleNotFound
	}
	return &r, nil
}

func (s *CredentialStore) ListRoles(_ context.Context) ([]domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Role, 0, len(s.roles))
	for _, r := range s.roles {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
