package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/webapi-identity/identity-api/internal/metrics"
	"github.com/webapi-identity/identity-api/internal/core/domain"
	"github.com/webapi-identity/identity-api/internal/core/ports"
)

const (
	// TokenTTL is the fixed lifetime of an issued token.
	TokenTTL = 24 * time.Hour
	// MinSecretLength is the HS512 key-size floor (512 bits).
	MinSecretLength = 64
)

var signingMethod = jwt.SigningMethodHS512

// Claims is the JWT payload. NameID and UniqueName carry the subject id and
// name; Roles holds one entry per assigned role.
type Claims struct {
	jwt.RegisteredClaims
	NameID     string   `json:"nameid"`
	UniqueName string   `json:"unique_name"`
	Roles      []string `json:"role,omitempty"`
}

// TokenIssuer signs and verifies HS512 bearer tokens with a symmetric secret
// injected at construction.
type TokenIssuer struct {
	secret []byte
	now    func() time.Time
}

var _ ports.TokenIssuer = (*TokenIssuer)(nil)

func NewTokenIssuer(secret string) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), now: time.Now}
}

// Validate checks the secret without signing anything. Callers use it to
// fail fast at startup.
func (t *TokenIssuer) Validate() error {
	if len(t.secret) == 0 {
		return domain.ConfigurationError("signing secret is not configured")
	}
	if len(t.secret) < MinSecretLength {
		return domain.ConfigurationError("signing secret must be at least %d bytes for %s, got %d",
			MinSecretLength, signingMethod.Alg(), len(t.secret))
	}
	return nil
}

// IssueToken builds and signs a claim set for identity holding roles.
func (t *TokenIssuer) IssueToken(identity *domain.Identity, roles []string) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	if identity == nil || identity.ID == "" || identity.Username == "" {
		return "", domain.ValidationFailed("identity id and username are required to issue a token")
	}

	now := t.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(TokenTTL)),
		},
		NameID:     identity.ID,
		UniqueName: identity.Username,
		Roles:      dedupe(roles),
	}

	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString(t.secret)
	if err != nil {
		return "", domain.Unexpected("sign token", err)
	}
	metrics.TokensIssuedTotal.Inc()
	return signed, nil
}

// ParseToken verifies signature, algorithm and expiry.
func (t *TokenIssuer) ParseToken(token string) (*ports.TokenClaims, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tk *jwt.Token) (interface{}, error) {
		return t.secret, nil
	},
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(t.now),
	)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("parse token: invalid token")
	}

	out := &ports.TokenClaims{
		UserID:   claims.NameID,
		Username: claims.UniqueName,
		Roles:    claims.Roles,
	}
	if out.UserID == "" {
		out.UserID = claims.Subject
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = claims.ExpiresAt.Time
	}
	return out, nil
}

// dedupe drops repeated role names, keeping first-seen order.
func dedupe(roles []string) []string {
	if len(roles) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(roles))
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		if r == "" {
			continue
		}
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}
