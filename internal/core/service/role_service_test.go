package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/webapi-identity/identity-api/internal/core/domain"
	"github.com/webapi-identity/identity-api/internal/core/ports"
)

func newRoleSvc(store *stubStore, cache RoleCache, audit ports.AuditRepository) *RoleService {
	return NewRoleService(store, cache, audit, zerolog.Nop())
}

func seedUser(t *testing.T, store *stubStore, username, email string) *domain.Identity {
	t.Helper()
	u, err := store.CreateIdentity(context.Background(), &domain.Identity{Username: username, Email: email}, "Passw0rd!")
	if err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func TestRoleService_CreateRole(t *testing.T) {
	store := newStubStore()
	svc := newRoleSvc(store, nil, nil)

	role, err := svc.CreateRole(context.Background(), " Admin ")
	if err != nil {
		t.Fatalf("CreateRole returned error: %v", err)
	}
	if role.ID == "" || role.Name != "Admin" {
		t.Fatalf("unexpected role: %+v", role)
	}

	_, err = svc.CreateRole(context.Background(), "Admin")
	if !errors.Is(err, domain.ErrDuplicateRole) {
		t.Fatalf("expected DuplicateRole, got %v", err)
	}
	if n := store.roleCount("Admin"); n != 1 {
		t.Fatalf("expected exactly one Admin role, got %d", n)
	}
}

func TestRoleService_CreateRole_Validation(t *testing.T) {
	svc := newRoleSvc(newStubStore(), nil, nil)
	if _, err := svc.CreateRole(context.Background(), "   "); !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}

func TestRoleService_CreateRole_StoreFault(t *testing.T) {
	store := newStubStore()
	store.roleErr = errStoreDown
	svc := newRoleSvc(store, nil, nil)

	if _, err := svc.CreateRole(context.Background(), "Admin"); !errors.Is(err, domain.ErrUnexpected) {
		t.Fatalf("expected UnexpectedFault, got %v", err)
	}
}

func TestRoleService_UpdateUserRole_AddIdempotent(t *testing.T) {
	store := newStubStore()
	cache := newStubCache()
	audit := &stubAudit{}
	svc := newRoleSvc(store, cache, audit)
	user := seedUser(t, store, "alice", "alice@example.com")
	if _, err := svc.CreateRole(context.Background(), "Admin"); err != nil {
		t.Fatalf("create role: %v", err)
	}

	in := ports.UpdateUserRoleInput{Email: "alice@example.com", Role: "Admin"}
	first, err := svc.UpdateUserRole(context.Background(), in)
	if err != nil {
		t.Fatalf("first add failed: %v", err)
	}
	if !first.Found() || !first.Changed {
		t.Fatalf("expected applied change, got %+v", first)
	}

	second, err := svc.UpdateUserRole(context.Background(), in)
	if err != nil {
		t.Fatalf("second add failed: %v", err)
	}
	if !second.Found() || second.Changed {
		t.Fatalf("expected no-op on second add, got %+v", second)
	}

	roles, _ := store.GetRoles(context.Background(), user)
	if len(roles) != 1 || roles[0] != "Admin" {
		t.Fatalf("expected exactly one Admin assignment, got %v", roles)
	}
	if len(audit.changes) != 1 || audit.changes[0].Action != domain.RoleActionAdd {
		t.Fatalf("expected one audited add, got %+v", audit.changes)
	}
	if len(cache.invalidated) != 2 || cache.invalidated[0] != user.ID {
		t.Fatalf("expected both calls to invalidate %s, got %v", user.ID, cache.invalidated)
	}
}

func TestRoleService_UpdateUserRole_RemoveIdempotent(t *testing.T) {
	store := newStubStore()
	audit := &stubAudit{}
	svc := newRoleSvc(store, nil, audit)
	seedUser(t, store, "bob", "bob@example.com")
	if _, err := svc.CreateRole(context.Background(), "Admin"); err != nil {
		t.Fatalf("create role: %v", err)
	}

	res, err := svc.UpdateUserRole(context.Background(), ports.UpdateUserRoleInput{Email: "bob@example.com", Role: "Admin", Delete: true})
	if err != nil {
		t.Fatalf("remove of absent assignment must not fail: %v", err)
	}
	if !res.Found() || res.Changed {
		t.Fatalf("expected found no-op, got %+v", res)
	}

	res, err = svc.UpdateUserRole(context.Background(), ports.UpdateUserRoleInput{Email: "bob@example.com", Role: "Unknown", Delete: true})
	if err != nil || res.Changed {
		t.Fatalf("remove of unknown role should be a no-op, got %+v %v", res, err)
	}
	if len(audit.changes) != 0 {
		t.Fatalf("no-ops must not be audited, got %+v", audit.changes)
	}
}

func TestRoleService_UpdateUserRole_AddThenRemove(t *testing.T) {
	store := newStubStore()
	audit := &stubAudit{}
	svc := newRoleSvc(store, nil, audit)
	user := seedUser(t, store, "carol", "carol@example.com")
	_, _ = svc.CreateRole(context.Background(), "Gerente")

	if _, err := svc.UpdateUserRole(context.Background(), ports.UpdateUserRoleInput{Email: "carol@example.com", Role: "Gerente"}); err != nil {
		t.Fatalf("add failed: %v", err)
	}
	res, err := svc.UpdateUserRole(context.Background(), ports.UpdateUserRoleInput{Email: "carol@example.com", Role: "gerente", Delete: true})
	if err != nil || !res.Changed {
		t.Fatalf("expected removal, got %+v %v", res, err)
	}
	roles, _ := store.GetRoles(context.Background(), user)
	if len(roles) != 0 {
		t.Fatalf("expected no roles, got %v", roles)
	}
	if len(audit.changes) != 2 || audit.changes[1].Action != domain.RoleActionRemove {
		t.Fatalf("expected add and remove audited, got %+v", audit.changes)
	}
}

func TestRoleService_UpdateUserRole_UserNotFoundIsSoft(t *testing.T) {
	svc := newRoleSvc(newStubStore(), nil, nil)

	res, err := svc.UpdateUserRole(context.Background(), ports.UpdateUserRoleInput{Email: "ghost@example.com", Role: "Admin"})
	if err != nil {
		t.Fatalf("missing user must not be an error, got %v", err)
	}
	if res.Found() || res.Outcome != domain.RoleUpdateUserNotFound {
		t.Fatalf("expected user_not_found outcome, got %+v", res)
	}
}

func TestRoleService_UpdateUserRole_AcceptsUsername(t *testing.T) {
	store := newStubStore()
	svc := newRoleSvc(store, nil, nil)
	seedUser(t, store, "dave", "dave@example.com")
	_, _ = svc.CreateRole(context.Background(), "Admin")

	res, err := svc.UpdateUserRole(context.Background(), ports.UpdateUserRoleInput{Email: "dave", Role: "Admin"})
	if err != nil || !res.Changed {
		t.Fatalf("expected lookup by username to succeed, got %+v %v", res, err)
	}
}

func TestRoleService_UpdateUserRole_PrefersExactUsername(t *testing.T) {
	store := newStubStore()
	svc := newRoleSvc(store, nil, nil)
	victim := seedUser(t, store, "victim@example.com", "")
	_, _ = svc.CreateRole(context.Background(), "Admin")

	// A row written before emails shared the username namespace.
	store.mu.Lock()
	store.users["legacy"] = &domain.Identity{ID: "legacy", Username: "mallory", Email: "victim@example.com"}
	store.assigned["legacy"] = make(map[string]bool)
	store.mu.Unlock()

	for i := 0; i < 20; i++ {
		res, err := svc.UpdateUserRole(context.Background(), ports.UpdateUserRoleInput{Email: "victim@example.com", Role: "Admin"})
		if err != nil || !res.Found() {
			t.Fatalf("grant failed: %+v %v", res, err)
		}
	}

	roles, _ := store.GetRoles(context.Background(), victim)
	if len(roles) != 1 || roles[0] != "Admin" {
		t.Fatalf("expected the grant on the exact username match, got %v", roles)
	}
	legacy, _ := store.GetRoles(context.Background(), &domain.Identity{ID: "legacy"})
	if len(legacy) != 0 {
		t.Fatalf("email match must not receive the grant, got %v", legacy)
	}
}

func TestRoleService_UpdateUserRole_InvalidationFailureIsFault(t *testing.T) {
	store := newStubStore()
	cache := newStubCache()
	audit := &stubAudit{}
	svc := newRoleSvc(store, cache, audit)
	seedUser(t, store, "hank", "hank@example.com")
	_, _ = svc.CreateRole(context.Background(), "Admin")
	in := ports.UpdateUserRoleInput{Email: "hank", Role: "Admin"}

	cache.invalidateErr = errors.New("redis down")
	if _, err := svc.UpdateUserRole(context.Background(), in); !errors.Is(err, domain.ErrUnexpected) {
		t.Fatalf("expected UnexpectedFault, got %v", err)
	}
	if len(audit.changes) != 1 {
		t.Fatalf("applied change must still be audited, got %+v", audit.changes)
	}

	cache.invalidateErr = nil
	res, err := svc.UpdateUserRole(context.Background(), in)
	if err != nil || res.Changed {
		t.Fatalf("expected no-op retry, got %+v %v", res, err)
	}
	if len(cache.invalidated) != 1 {
		t.Fatalf("retry must invalidate, got %v", cache.invalidated)
	}
}

func TestRoleService_UpdateUserRole_UnknownRole(t *testing.T) {
	store := newStubStore()
	svc := newRoleSvc(store, nil, nil)
	seedUser(t, store, "erin", "erin@example.com")

	_, err := svc.UpdateUserRole(context.Background(), ports.UpdateUserRoleInput{Email: "erin@example.com", Role: "Nope"})
	if !errors.Is(err, domain.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestRoleService_UpdateUserRole_StoreFault(t *testing.T) {
	store := newStubStore()
	svc := newRoleSvc(store, nil, nil)
	seedUser(t, store, "frank", "frank@example.com")
	store.roleErr = errStoreDown

	_, err := svc.UpdateUserRole(context.Background(), ports.UpdateUserRoleInput{Email: "frank@example.com", Role: "Admin"})
	if !errors.Is(err, domain.ErrUnexpected) {
		t.Fatalf("expected UnexpectedFault, got %v", err)
	}
}

func TestRoleService_UpdateUserRole_AuditFailureIsNotFatal(t *testing.T) {
	store := newStubStore()
	svc := newRoleSvc(store, nil, &stubAudit{err: errors.New("audit down")})
	seedUser(t, store, "gina", "gina@example.com")
	_, _ = svc.CreateRole(context.Background(), "Admin")

	res, err := svc.UpdateUserRole(context.Background(), ports.UpdateUserRoleInput{Email: "gina@example.com", Role: "Admin"})
	if err != nil || !res.Changed {
		t.Fatalf("audit failure must not fail the update, got %+v %v", res, err)
	}
}

func TestRoleService_UpdateUserRole_Validation(t *testing.T) {
	svc := newRoleSvc(newStubStore(), nil, nil)
	if _, err := svc.UpdateUserRole(context.Background(), ports.UpdateUserRoleInput{Email: "", Role: "Admin"}); !errors.Is(err, domain.ErrValidationFailed) {
		t.Fatalf("expected ValidationFailed, got %v", err)
	}
}

func TestRoleService_GetAndList(t *testing.T) {
	store := newStubStore()
	svc := newRoleSvc(store, nil, nil)
	admin, _ := svc.CreateRole(context.Background(), "Admin")
	_, _ = svc.CreateRole(context.Background(), "Gerente")

	got, err := svc.GetRole(context.Background(), admin.ID)
	if err != nil || got.Name != "Admin" {
		t.Fatalf("GetRole: %+v %v", got, err)
	}
	if _, err := svc.GetRole(context.Background(), "missing"); !errors.Is(err, domain.ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}

	roles, err := svc.ListRoles(context.Background())
	if err != nil || len(roles) != 2 {
		t.Fatalf("ListRoles: %+v %v", roles, err)
	}
}

// gatedStore parks the first GetRoles call after it has read the store, so a
// revoke can land between the read and the cache fill.
type gatedStore struct {
	*stubStore
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (s *gatedStore) GetRoles(ctx context.Context, identity *domain.Identity) ([]string, error) {
	roles, err := s.stubStore.GetRoles(ctx, identity)
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return roles, err
}

func TestScenario_RevokeDuringLoginIsNotCached(t *testing.T) {
	store := newStubStore()
	cache := newStubCache()
	ctx := context.Background()
	auth, issuer := newAuthSvc(store, WithRoleCache(cache))
	roles := newRoleSvc(store, cache, nil)

	register(t, auth, "alice", "Passw0rd!")
	_, _ = roles.CreateRole(ctx, "Admin")
	if _, err := roles.UpdateUserRole(ctx, ports.UpdateUserRoleInput{Email: "alice", Role: "Admin"}); err != nil {
		t.Fatalf("grant: %v", err)
	}

	gated := &gatedStore{stubStore: store, read: make(chan struct{}), release: make(chan struct{})}
	racing := NewAuthService(gated, issuer, zerolog.Nop(), WithRoleCache(cache))

	done := make(chan error, 1)
	go func() {
		_, _, err := racing.Login(ctx, "alice", "Passw0rd!")
		done <- err
	}()

	<-gated.read
	if res, err := roles.UpdateUserRole(ctx, ports.UpdateUserRoleInput{Email: "alice", Role: "Admin", Delete: true}); err != nil || !res.Changed {
		t.Fatalf("revoke: %+v %v", res, err)
	}
	close(gated.release)
	if err := <-done; err != nil {
		t.Fatalf("racing login: %v", err)
	}

	user, _ := store.FindByUsername(ctx, "alice")
	if cached, ok := cache.cached(user.ID); ok {
		t.Fatalf("pre-revoke roles must not be cached, got %v", cached)
	}

	token, _, err := auth.Login(ctx, "alice", "Passw0rd!")
	if err != nil {
		t.Fatalf("login after revoke: %v", err)
	}
	claims, _ := issuer.ParseToken(token)
	if len(claims.Roles) != 0 {
		t.Fatalf("revoked role still issued: %v", claims.Roles)
	}
}

// The end-to-end flow: register, login, grant Admin, and see the claim in the
// next token.
func TestScenario_RegisterLoginGrantAdmin(t *testing.T) {
	store := newStubStore()
	cache := newStubCache()
	auth, issuer := newAuthSvc(store, WithRoleCache(cache))
	roles := newRoleSvc(store, cache, &stubAudit{})
	ctx := context.Background()

	if _, err := auth.Register(ctx, ports.RegisterInput{Username: "alice", Email: "alice@example.com", Password: "Passw0rd!"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, user, err := auth.Login(ctx, "alice", "Passw0rd!"); err != nil || user.Username != "alice" {
		t.Fatalf("login: %+v %v", user, err)
	}
	if _, _, err := auth.Login(ctx, "alice", "wrong"); !errors.Is(err, domain.ErrAuthenticationFailed) {
		t.Fatalf("expected AuthenticationFailed, got %v", err)
	}
	if _, err := roles.CreateRole(ctx, "Admin"); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if res, err := roles.UpdateUserRole(ctx, ports.UpdateUserRoleInput{Email: "alice@example.com", Role: "Admin"}); err != nil || !res.Changed {
		t.Fatalf("grant: %+v %v", res, err)
	}

	token, _, err := auth.Login(ctx, "alice", "Passw0rd!")
	if err != nil {
		t.Fatalf("login after grant: %v", err)
	}
	claims, err := issuer.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(claims.Roles) != 1 || claims.Roles[0] != "Admin" {
		t.Fatalf("expected Admin claim after grant, got %v", claims.Roles)
	}
}
