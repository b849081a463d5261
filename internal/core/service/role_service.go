package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/webapi-identity/identity-api/internal/metrics"
	"github.com/webapi-identity/identity-api/internal/core/domain"
	"github.com/webapi-identity/identity-api/internal/core/ports"
)

// RoleService manages roles and user-role assignments. Callers are assumed to
// be authorised already.
type RoleService struct {
	store ports.CredentialStore
	cache RoleCache
	audit ports.AuditRepository
	log   zerolog.Logger
}

var _ ports.RoleService = (*RoleService)(nil)

// NewRoleService returns a RoleService. cache and audit may be nil.
func NewRoleService(store ports.CredentialStore, cache RoleCache, audit ports.AuditRepository, log zerolog.Logger) *RoleService {
	if cache == nil {
		cache = noopRoleCache{}
	}
	return &RoleService{store: store, cache: cache, audit: audit, log: log}
}

// CreateRole creates a role; DuplicateRole when the name is already taken.
func (s *RoleService) CreateRole(ctx context.Context, name string) (*domain.Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ValidationFailed("role name is required")
	}

	role, err := s.store.CreateRole(ctx, name)
	if err != nil {
		if errors.Is(err, domain.ErrRoleExists) {
			metrics.RolesCreatedTotal.WithLabelValues("duplicate").Inc()
			return nil, domain.DuplicateRole(name)
		}
		metrics.RolesCreatedTotal.WithLabelValues("error").Inc()
		return nil, domain.Unexpected("create role", err)
	}

	metrics.RolesCreatedTotal.WithLabelValues("success").Inc()
	s.log.Info().Str("role_id", role.ID).Str("role", role.Name).Msg("role created")
	return role, nil
}

func (s *RoleService) GetRole(ctx context.Context, id string) (*domain.Role, error) {
	role, err := s.store.FindRoleByID(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, domain.Unexpected("find role", err)
	}
	return role, nil
}

func (s *RoleService) ListRoles(ctx context.Context) ([]domain.Role, error) {
	roles, err := s.store.ListRoles(ctx)
	if err != nil {
		return nil, domain.Unexpected("list roles", err)
	}
	return roles, nil
}

// UpdateUserRole adds or removes one assignment. Both directions are
// idempotent. A missing user yields RoleUpdateUserNotFound with a nil error.
func (s *RoleService) UpdateUserRole(ctx context.Context, in ports.UpdateUserRoleInput) (domain.RoleUpdateResult, error) {
	action := domain.RoleActionAdd
	if in.Delete {
		action = domain.RoleActionRemove
	}

	roleName := strings.TrimSpace(in.Role)
	if strings.TrimSpace(in.Email) == "" || roleName == "" {
		return domain.RoleUpdateResult{}, domain.ValidationFailed("email and role are required")
	}

	user, err := s.findUser(ctx, in.Email)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.RoleAssignmentChangesTotal.WithLabelValues(action, string(domain.RoleUpdateUserNotFound)).Inc()
			s.log.Info().Str("email", in.Email).Msg("role update skipped: user not found")
			return domain.RoleUpdateResult{Outcome: domain.RoleUpdateUserNotFound}, nil
		}
		return domain.RoleUpdateResult{}, s.updateFault(action, "find user", err)
	}

	var changed bool
	if in.Delete {
		changed, err = s.store.RemoveRole(ctx, user, roleName)
	} else {
		changed, err = s.store.AddRole(ctx, user, roleName)
	}
	if err != nil {
		if errors.Is(err, domain.ErrRoleNotFound) {
			metrics.RoleAssignmentChangesTotal.WithLabelValues(action, "error").Inc()
			return domain.RoleUpdateResult{}, domain.ErrRoleNotFound
		}
		return domain.RoleUpdateResult{}, s.updateFault(action, action+" role", err)
	}

	if changed && s.audit != nil {
		change := &domain.RoleChange{
			UserID:    user.ID,
			Username:  user.Username,
			Role:      roleName,
			Action:    action,
			Timestamp: time.Now().UTC(),
		}
		if err := s.audit.InsertRoleChange(ctx, change); err != nil {
			s.log.Warn().Err(err).Str("user_id", user.ID).Msg("failed to insert role audit entry")
		}
	}

	// Invalidate on no-ops too so a retry evicts a set a failed invalidation
	// left behind. No token issued after this returns may carry the old set.
	if err := s.cache.Invalidate(ctx, user.ID); err != nil {
		s.log.Error().Err(err).Str("user_id", user.ID).Bool("changed", changed).Msg("role cache invalidation failed")
		return domain.RoleUpdateResult{}, s.updateFault(action, "invalidate role cache", err)
	}

	if !changed {
		metrics.RoleAssignmentChangesTotal.WithLabelValues(action, "noop").Inc()
		return domain.RoleUpdateResult{Outcome: domain.RoleUpdateApplied}, nil
	}

	metrics.RoleAssignmentChangesTotal.WithLabelValues(action, "changed").Inc()
	s.log.Info().
		Str("user_id", user.ID).
		Str("role", roleName).
		Str("action", action).
		Msg("user role updated")

	return domain.RoleUpdateResult{Outcome: domain.RoleUpdateApplied, Changed: true}, nil
}

// findUser looks the identity up by exact username, then by email. Stores
// keep usernames and emails in one namespace, so at most one identity
// matches key.
func (s *RoleService) findUser(ctx context.Context, key string) (*domain.Identity, error) {
	user, err := s.store.FindByUsername(ctx, key)
	if err == nil || !errors.Is(err, domain.ErrUserNotFound) {
		return user, err
	}
	return s.store.FindByEmail(ctx, key)
}

func (s *RoleService) updateFault(action, op string, err error) error {
	metrics.RoleAssignmentChangesTotal.WithLabelValues(action, "error").Inc()
	return domain.Unexpected(op, err)
}
