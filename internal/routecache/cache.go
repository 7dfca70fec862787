// Package routecache persists the single-slot copy of the active route.
// The background context reads it to compose human-readable alert text
// after the foreground is gone, without network access. This is not a
// general cache: one slot keyed by the current trip, overwritten
// unconditionally, no TTL and no eviction policy.
package routecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"trainwatch/internal/types"
)

// DBTX is the minimal interface shared by *pgxpool.Pool and pgx.Tx, so the
// repository works inside or outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// slotID is the fixed primary key of the one cache row.
const slotID = 1

// Schema creates the cache table. Executed at worker cold start; the
// statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS route_cache (
    id             INT PRIMARY KEY,
    schema_version INT NOT NULL,
    payload        JSONB NOT NULL,
    cached_at      TIMESTAMPTZ NOT NULL
)`

// Repository is the pgx-backed RouteCache implementation.
type Repository struct {
	db DBTX
}

// Compile-time assertion that Repository implements types.RouteCache.
var _ types.RouteCache = (*Repository)(nil)

// NewRepository creates a Repository on the given connection or pool.
func NewRepository(db DBTX) *Repository {
	return &Repository{db: db}
}

// EnsureSchema creates the cache table if it does not exist.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, Schema); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "creating route_cache table", err)
	}
	return nil
}

// Put overwrites the slot unconditionally with the current schema version.
func (r *Repository) Put(ctx context.Context, route types.CachedRoute) error {
	route.SchemaVersion = types.CacheSchemaVersion
	if route.CachedAt.IsZero() {
		route.CachedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(route.Plan)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "marshaling cached route payload", err)
	}

	const q = `
		INSERT INTO route_cache (id, schema_version, payload, cached_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			payload        = EXCLUDED.payload,
			cached_at      = EXCLUDED.cached_at`

	if _, err := r.db.Exec(ctx, q, slotID, route.SchemaVersion, payload, route.CachedAt); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "writing route cache slot", err)
	}
	return nil
}

// Get returns the slot contents. An empty slot or an unknown schema
// version is a cache miss, reported as an AppError with code
// not_found_route_cache.
func (r *Repository) Get(ctx context.Context) (*types.CachedRoute, error) {
	const q = `SELECT schema_version, payload, cached_at FROM route_cache WHERE id = $1`

	var (
		version  int
		payload  []byte
		cachedAt time.Time
	)
	err := r.db.QueryRow(ctx, q, slotID).Scan(&version, &payload, &cachedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeNotFoundRouteCache, "route cache slot is empty", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "reading route cache slot", err)
	}

	if version != types.CacheSchemaVersion {
		// Forward compatibility: a newer writer's row is unreadable here,
		// treat it as a miss rather than guessing at the payload shape.
		return nil, types.NewAppError(types.ErrCodeNotFoundRouteCache,
			fmt.Sprintf("route cache slot has unknown schema version %d", version), nil)
	}

	var plan types.TripPlan
	if err := json.Unmarshal(payload, &plan); err != nil {
		return nil, types.NewAppError(types.ErrCodeNotFoundRouteCache, "route cache payload is corrupt", err)
	}

	return &types.CachedRoute{
		SchemaVersion: version,
		Plan:          plan,
		CachedAt:      cachedAt,
	}, nil
}
