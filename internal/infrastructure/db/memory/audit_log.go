package memory

import (
	"context"
	"sync"

	"github.com/webapi-identity/identity-api/internal/core/domain"
	"github.com/webapi-identity/identity-api/internal/core/ports"
)

// AuditLog keeps role changes in memory.
type AuditLog struct {
	mu      sync.Mutex
	entries []domain.RoleChange
}

var _ ports.AuditRepository = (*AuditLog)(nil)

func NewAuditLog() *AuditLog { return &AuditLog{} }

func (a *AuditLog) InsertRoleChange(_ context.Context, change *domain.RoleChange) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, *change)
	return nil
}

// Entries returns a copy of the recorded changes, oldest first.
func (a *AuditLog) Entries() []domain.RoleChange {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]domain.RoleChange(nil), a.entries...)
}
