// Package mongo persists identities, roles and the role audit trail in
// MongoDB.
package mongo

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"github.com/webapi-identity/identity-api/internal/infrastructure/password"
)

const defaultTimeout = 10 * time.Second

// Config selects the identity database. AppName shows up in server logs and
// currentOp output.
type Config struct {
	URI      string
	Database string
	AppName  string
	Timeout  time.Duration
}

// Database is an open connection to the identity database.
type Database struct {
	client *mongo.Client
	db     *mongo.Database
}

// Open connects and pings the primary. Identity writes use majority write
// concern so an acknowledged registration or role change survives failover.
func Open(ctx context.Context, cfg Config) (*Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	opts := options.Client().
		ApplyURI(cfg.URI).
		SetServerSelectionTimeout(timeout).
		SetWriteConcern(writeconcern.Majority())
	if cfg.AppName != "" {
		opts.SetAppName(cfg.AppName)
	}

	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	d := &Database{client: client, db: client.Database(cfg.Database)}
	if err := d.Ping(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return d, nil
}

// CredentialStore returns the store over this database with its unique
// indexes in place.
func (d *Database) CredentialStore(ctx context.Context, policy password.Policy) (*CredentialStore, error) {
	store := NewCredentialStore(d.db, policy)
	if err := store.EnsureIndexes(ctx); err != nil {
		return nil, err
	}
	return store, nil
}

func (d *Database) AuditRepository() *AuditRepository {
	return NewAuditRepository(d.db)
}

// Ping checks that the primary is reachable. It backs the readiness check.
func (d *Database) Ping(ctx context.Context) error {
	if err := d.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongo ping: %w", err)
	}
	return nil
}

func (d *Database) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}
