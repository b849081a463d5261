package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/webapi-identity/identity-api/internal/core/domain"
	"github.com/webapi-identity/identity-api/internal/core/ports"
)

const auditCollection = "role_audit"

// AuditRepository implements ports.AuditRepository using MongoDB.
type AuditRepository struct {
	coll *mongo.Collection
}

var _ ports.AuditRepository = (*AuditRepository)(nil)

func NewAuditRepository(db *mongo.Database) *AuditRepository {
	return &AuditRepository{coll: db.Collection(auditCollection)}
}

// InsertRoleChange persists an applied assignment change.
func (r *AuditRepository) InsertRoleChange(ctx context.Context, change *domain.RoleChange) error {
	doc := bson.M{
		"user_id":     change.UserID,
		"username":    change.Username,
		"role":        change.Role,
		"action":      change.Action,
		"timestamp":   change.Timestamp.UTC(),
		"recorded_at": time.Now().UTC(),
	}
	if _, err := r.coll.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("insert role change: %w", err)
	}
	return nil
}
