package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/webapi-identity/identity-api/internal/core/domain"
	"github.com/webapi-identity/identity-api/internal/core/ports"
	"github.com/webapi-identity/identity-api/internal/infrastructure/password"
)

const (
	usersCollection = "users"
	rolesCollection = "roles"
)

// CredentialStore implements ports.CredentialStore on MongoDB. Role
// assignments live on the user document as an array of role names, so
// $addToSet and $pull give idempotent add and remove.
type CredentialStore struct {
	users  *mongo.Collection
	roles  *mongo.Collection
	policy password.Policy
}

var _ ports.CredentialStore = (*CredentialStore)(nil)

func NewCredentialStore(db *mongo.Database, policy password.Policy) *CredentialStore {
	return &CredentialStore{
		users:  db.Collection(usersCollection),
		roles:  db.Collection(rolesCollection),
		policy: policy,
	}
}

type mongoUser struct {
	ID                 primitive.ObjectID `bson:"_id,omitempty"`
	Username           string             `bson:"username"`
	NormalizedUsername string             `bson:"normalized_username"`
	Email              string             `bson:"email"`
	NormalizedEmail    string             `bson:"normalized_email"`
	FullName           string             `bson:"full_name,omitempty"`
	PasswordHash       string             `bson:"password_hash"`
	Roles              []string           `bson:"roles"`
	CreatedAt          int64              `bson:"created_at"`
	UpdatedAt          int64              `bson:"updated_at"`
}

type mongoRole struct {
	ID             primitive.ObjectID `bson:"_id,omitempty"`
	Name           string             `bson:"name"`
	NormalizedName string             `bson:"normalized_name"`
	CreatedAt      int64              `bson:"created_at"`
}

// EnsureIndexes creates the unique indexes on normalized username, email and
// role name. Documents without an email are left out of the email index.
func (s *CredentialStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "normalized_username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys: bson.D{{Key: "normalized_email", Value: 1}},
			Options: options.Index().
				SetUnique(true).
				SetPartialFilterExpression(bson.M{"normalized_email": bson.M{"$gt": ""}}),
		},
	})
	if err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}
	_, err = s.roles.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "normalized_name", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create role indexes: %w", err)
	}
	return nil
}

func (s *CredentialStore) FindByUsername(ctx context.Context, username string) (*domain.Identity, error) {
	return s.findOne(ctx, bson.M{"normalized_username": domain.Normalize(username)})
}

func (s *CredentialStore) FindByEmail(ctx context.Context, email string) (*domain.Identity, error) {
	return s.findOne(ctx, bson.M{"normalized_email": domain.Normalize(email)})
}

func (s *CredentialStore) FindByID(ctx context.Context, id string) (*domain.Identity, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}
	return s.findOne(ctx, bson.M{"_id": oid})
}

func (s *CredentialStore) findOne(ctx context.Context, filter bson.M) (*domain.Identity, error) {
	var mu mongoUser
	if err := s.users.FindOne(ctx, filter).Decode(&mu); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return toIdentity(mu), nil
}

func (s *CredentialStore) VerifyPassword(ctx context.Context, identity *domain.Identity, plaintext string) (bool, error) {
	hash := identity.PasswordHash
	if hash == "" {
		stored, err := s.FindByID(ctx, identity.ID)
		if err != nil {
			return false, err
		}
		hash = stored.PasswordHash
	}
	return password.Compare(hash, plaintext)
}

func (s *CredentialStore) CreateIdentity(ctx context.Context, identity *domain.Identity, plaintext string) (*domain.Identity, error) {
	if reasons := s.policy.Validate(plaintext); len(reasons) > 0 {
		return nil, &domain.PolicyError{Reasons: reasons}
	}
	hash, err := password.Hash(plaintext)
	if err != nil {
		return nil, err
	}

	normUsername := domain.Normalize(identity.Username)
	normEmail := domain.Normalize(identity.Email)
	if err := s.checkCrossCollision(ctx, normUsername, normEmail); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	doc := mongoUser{
		Username:           identity.Username,
		NormalizedUsername: normUsername,
		Email:              identity.Email,
		NormalizedEmail:    normEmail,
		FullName:           identity.FullName,
		PasswordHash:       hash,
		Roles:              []string{},
		CreatedAt:          now.Unix(),
		UpdatedAt:          now.Unix(),
	}

	res, err := s.users.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrUserExists
		}
		return nil, fmt.Errorf("insert user: %w", err)
	}

	oid, ok := res.InsertedID.(primitive.ObjectID)
	if !ok {
		return nil, fmt.Errorf("insert user: unexpected id type %T", res.InsertedID)
	}
	doc.ID = oid
	return toIdentity(doc), nil
}

// checkCrossCollision rejects a username already used as someone's email and
// an email already used as someone's username. Same-field collisions are left
// to the unique indexes.
func (s *CredentialStore) checkCrossCollision(ctx context.Context, normUsername, normEmail string) error {
	clauses := bson.A{bson.M{"normalized_email": normUsername}}
	if normEmail != "" && normEmail != normUsername {
		clauses = append(clauses, bson.M{"normalized_username": normEmail})
	}
	n, err := s.users.CountDocuments(ctx, bson.M{"$or": clauses}, options.Count().SetLimit(1))
	if err != nil {
		return fmt.Errorf("check user collision: %w", err)
	}
	if n > 0 {
		return domain.ErrUserExists
	}
	return nil
}

// DeleteIdentity removes the identity document. A missing document is not an
// error.
func (s *CredentialStore) DeleteIdentity(ctx context.Context, id string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil
	}
	if _, err := s.users.DeleteOne(ctx, bson.M{"_id": oid}); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return nil
}

func (s *CredentialStore) GetRoles(ctx context.Context, identity *domain.Identity) ([]string, error) {
	oid, err := primitive.ObjectIDFromHex(identity.ID)
	if err != nil {
		return nil, domain.ErrUserNotFound
	}

	var doc struct {
		Roles []string `bson:"roles"`
	}
	opts := options.FindOne().SetProjection(bson.M{"roles": 1})
	if err := s.users.FindOne(ctx, bson.M{"_id": oid}, opts).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrUserNotFound
		}
		return nil, fmt.Errorf("get roles: %w", err)
	}
	return doc.Roles, nil
}

func (s *CredentialStore) AddRole(ctx context.Context, identity *domain.Identity, roleName string) (bool, error) {
	role, err := s.findRoleByName(ctx, roleName)
	if err != nil {
		return false, err
	}
	return s.updateRoles(ctx, identity,
		bson.M{"roles": bson.M{"$ne": role.Name}},
		bson.M{"$addToSet": bson.M{"roles": role.Name}})
}

func (s *CredentialStore) RemoveRole(ctx context.Context, identity *domain.Identity, roleName string) (bool, error) {
	name := roleName
	role, err := s.findRoleByName(ctx, roleName)
	switch {
	case err == nil:
		name = role.Name
	case !errors.Is(err, domain.ErrRoleNotFound):
		return false, err
	}
	return s.updateRoles(ctx, identity,
		bson.M{"roles": name},
		bson.M{"$pull": bson.M{"roles": name}})
}

// updateRoles applies update to the user only when cond holds, stamping
// updated_at in the same write. A non-matching filter means either an unknown
// user or an assignment already in the requested state.
func (s *CredentialStore) updateRoles(ctx context.Context, identity *domain.Identity, cond, update bson.M) (bool, error) {
	oid, err := primitive.ObjectIDFromHex(identity.ID)
	if err != nil {
		return false, domain.ErrUserNotFound
	}

	cond["_id"] = oid
	update["$set"] = bson.M{"updated_at": time.Now().UTC().Unix()}
	res, err := s.users.UpdateOne(ctx, cond, update)
	if err != nil {
		return false, fmt.Errorf("update roles: %w", err)
	}
	if res.MatchedCount > 0 {
		return true, nil
	}

	n, err := s.users.CountDocuments(ctx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("find user: %w", err)
	}
	if n == 0 {
		return false, domain.ErrUserNotFound
	}
	return false, nil
}

func (s *CredentialStore) CreateRole(ctx context.Context, name string) (*domain.Role, error) {
	doc := mongoRole{
		Name:           name,
		NormalizedName: domain.Normalize(name),
		CreatedAt:      time.Now().UTC().Unix(),
	}
	res, err := s.roles.InsertOne(ctx, doc)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, domain.ErrRoleExists
		}
		return nil, fmt.Errorf("insert role: %w", err)
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		doc.ID = oid
	}
	return toRole(doc), nil
}

func (s *CredentialStore) FindRoleByID(ctx context.Context, id string) (*domain.Role, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, domain.ErrRoleNotFound
	}
	return s.findRole(ctx, bson.M{"_id": oid})
}

func (s *CredentialStore) findRoleByName(ctx context.Context, name string) (*domain.Role, error) {
	return s.findRole(ctx, bson.M{"normalized_name": domain.Normalize(name)})
}

func (s *CredentialStore) findRole(ctx context.Context, filter bson.M) (*domain.Role, error) {
	var mr mongoRole
	if err := s.roles.FindOne(ctx, filter).Decode(&mr); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, fmt.Errorf("find role: %w", err)
	}
	return toRole(mr), nil
}

func (s *CredentialStore) ListRoles(ctx context.Context) ([]domain.Role, error) {
	cur, err := s.roles.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "name", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("list roles: %w", err)
	}
	defer cur.Close(ctx)

	var docs []mongoRole
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode roles: %w", err)
	}

	out := make([]domain.Role, 0, len(docs))
	for _, d := range docs {
		out = append(out, *toRole(d))
	}
	return out, nil
}

func toIdentity(mu mongoUser) *domain.Identity {
	return &domain.Identity{
		ID:                 mu.ID.Hex(),
		Username:           mu.Username,
		NormalizedUsername: mu.NormalizedUsername,
		Email:              mu.Email,
		FullName:           mu.FullName,
		PasswordHash:       mu.PasswordHash,
		CreatedAt:          unixToTime(mu.CreatedAt),
		UpdatedAt:          unixToTime(mu.UpdatedAt),
	}
}

func toRole(mr mongoRole) *domain.Role {
	return &domain.Role{
		ID:             mr.ID.Hex(),
		Name:           mr.Name,
		NormalizedName: mr.NormalizedName,
		CreatedAt:      unixToTime(mr.CreatedAt),
	}
}

func unixToTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}
