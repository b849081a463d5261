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

var _ ports.AuthService = (*AuthService)(nil)

// AuthService implements registration and login on top of a CredentialStore.
type AuthService struct {
	store       ports.CredentialStore
	issuer      ports.TokenIssuer
	cache       RoleCache
	defaultRole string
	log         zerolog.Logger
}

// AuthOption customises an AuthService.
type AuthOption func(*AuthService)

// WithRoleCache reads role sets through cache.
func WithRoleCache(cache RoleCache) AuthOption {
	return func(s *AuthService) {
		if cache != nil {
			s.cache = cache
		}
	}
}

// WithDefaultRole assigns role to every newly registered identity.
func WithDefaultRole(role string) AuthOption {
	return func(s *AuthService) { s.defaultRole = strings.TrimSpace(role) }
}

func NewAuthService(store ports.CredentialStore, issuer ports.TokenIssuer, log zerolog.Logger, opts ...AuthOption) *AuthService {
	s := &AuthService{store: store, issuer: issuer, cache: noopRoleCache{}, log: log}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Login verifies credentials and returns a token plus the public view of the
// identity. Unknown user and bad password both surface as
// AuthenticationFailed.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *domain.PublicUser, error) {
	if strings.TrimSpace(username) == "" || password == "" {
		metrics.LoginAttemptsTotal.WithLabelValues(domain.ReasonMissingCredentials).Inc()
		return "", nil, domain.AuthFailed(domain.ReasonMissingCredentials)
	}

	user, err := s.store.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			metrics.LoginAttemptsTotal.WithLabelValues(domain.ReasonUnknownUser).Inc()
			s.log.Info().Str("username", username).Msg("login rejected: unknown user")
			return "", nil, domain.AuthFailed(domain.ReasonUnknownUser)
		}
		return "", nil, s.loginFault("find user", err)
	}

	// Lockout is never triggered here: a failed check does not count against
	// the account.
	ok, err := s.store.VerifyPassword(ctx, user, password)
	if err != nil {
		return "", nil, s.loginFault("verify password", err)
	}
	if !ok {
		metrics.LoginAttemptsTotal.WithLabelValues(domain.ReasonBadPassword).Inc()
		s.log.Info().Str("user_id", user.ID).Msg("login rejected: bad password")
		return "", nil, domain.AuthFailed(domain.ReasonBadPassword)
	}

	canonical, err := s.store.FindByID(ctx, user.ID)
	if err != nil {
		return "", nil, s.loginFault("reload user", err)
	}

	token, err := s.issueFor(ctx, canonical)
	if err != nil {
		metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
		return "", nil, err
	}

	metrics.LoginAttemptsTotal.WithLabelValues("success").Inc()
	s.log.Info().Str("user_id", canonical.ID).Msg("login succeeded")
	return token, canonical.Public(), nil
}

// Register creates an identity and returns a token for it. A taken username
// is reported as AuthenticationFailed, whether caught by the pre-check or by
// the store's uniqueness constraint.
func (s *AuthService) Register(ctx context.Context, in ports.RegisterInput) (string, error) {
	username := strings.TrimSpace(in.Username)
	if username == "" {
		metrics.RegistrationsTotal.WithLabelValues("validation_failed").Inc()
		return "", domain.ValidationFailed("username is required")
	}

	if _, err := s.store.FindByUsername(ctx, username); err == nil {
		return "", s.duplicateUsername(username)
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return "", s.registerFault("find user", err)
	}

	email := strings.TrimSpace(in.Email)
	if email == "" {
		email = username
	}
	now := time.Now().UTC()
	created, err := s.store.CreateIdentity(ctx, &domain.Identity{
		Username:  username,
		Email:     email,
		FullName:  strings.TrimSpace(in.FullName),
		CreatedAt: now,
		UpdatedAt: now,
	}, in.Password)
	if err != nil {
		var policy *domain.PolicyError
		switch {
		case errors.As(err, &policy):
			metrics.RegistrationsTotal.WithLabelValues("validation_failed").Inc()
			return "", domain.ValidationFailed(policy.Reasons...)
		case errors.Is(err, domain.ErrUserExists):
			return "", s.duplicateUsername(username)
		default:
			return "", s.registerFault("create user", err)
		}
	}

	if s.defaultRole != "" {
		if _, err := s.store.AddRole(ctx, created, s.defaultRole); err != nil {
			s.rollback(ctx, created)
			return "", s.registerFault("assign default role", err)
		}
	}

	canonical, err := s.store.FindByID(ctx, created.ID)
	if err != nil {
		return "", s.registerFault("reload user", err)
	}

	token, err := s.issueFor(ctx, canonical)
	if err != nil {
		metrics.RegistrationsTotal.WithLabelValues("error").Inc()
		return "", err
	}

	metrics.RegistrationsTotal.WithLabelValues("success").Inc()
	s.log.Info().Str("user_id", canonical.ID).Str("username", canonical.Username).Msg("user registered")
	return token, nil
}

func (s *AuthService) issueFor(ctx context.Context, identity *domain.Identity) (string, error) {
	roles, err := rolesFor(ctx, s.store, s.cache, s.log, identity)
	if err != nil {
		return "", domain.Unexpected("get roles", err)
	}
	token, err := s.issuer.IssueToken(identity, roles)
	if err != nil {
		if domain.KindOf(err) == domain.KindConfiguration {
			s.log.Error().Err(err).Bool("alert", true).Msg("token issuer misconfigured")
			return "", err
		}
		return "", domain.Unexpected("issue token", err)
	}
	return token, nil
}

// rollback deletes an identity whose registration could not complete so the
// username stays free for a retry.
func (s *AuthService) rollback(ctx context.Context, identity *domain.Identity) {
	if err := s.store.DeleteIdentity(ctx, identity.ID); err != nil {
		s.log.Error().Err(err).Str("user_id", identity.ID).Msg("failed to roll back partial registration")
		return
	}
	s.log.Warn().Str("user_id", identity.ID).Msg("partial registration rolled back")
}

func (s *AuthService) duplicateUsername(username string) error {
	metrics.RegistrationsTotal.WithLabelValues(domain.ReasonDuplicateUsername).Inc()
	s.log.Info().Str("username", username).Msg("registration rejected: username taken")
	return domain.AuthFailed(domain.ReasonDuplicateUsername)
}

func (s *AuthService) loginFault(op string, err error) error {
	metrics.LoginAttemptsTotal.WithLabelValues("error").Inc()
	return domain.Unexpected(op, err)
}

func (s *AuthService) registerFault(op string, err error) error {
	metrics.RegistrationsTotal.WithLabelValues("error").Inc()
	return domain.Unexpected(op, err)
}
