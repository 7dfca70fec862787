package types

import (
	"context"
	"time"
)

// Validator is implemented by entities to self-validate.
type Validator interface {
	Validate() error
}

// Clock abstracts time for deterministic testing of time-dependent logic.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock backed by time.Now.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// Logger is the minimal logging interface used where components need a
// logger but must stay decoupled from a concrete implementation. slog
// satisfies the first three methods but With returns *slog.Logger, so the
// worker entrypoints wrap it in a small adapter.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
}

// RouteProvider is the boundary to the external route-data service. The
// core only distinguishes "route available" from "route unavailable with a
// reason"; transport details stay behind this interface.
type RouteProvider interface {
	// FetchRoute returns the ordered stations for a train number. The train
	// number must be a fixed-digit numeric string; implementations validate
	// it before any network call.
	FetchRoute(ctx context.Context, trainNumber string) (*Route, error)
}

// RouteCache is the single-slot persisted copy of the active trip, read by
// the background context when the foreground is gone.
type RouteCache interface {
	// Put overwrites the slot unconditionally.
	Put(ctx context.Context, route CachedRoute) error
	// Get returns the slot contents, or an AppError with code
	// not_found_route_cache when the slot is empty or holds an unknown
	// schema version.
	Get(ctx context.Context) (*CachedRoute, error)
}

// RenderedAlert is what the background context hands to the platform
// notification surface.
type RenderedAlert struct {
	Tag    AlertTag `json:"tag"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Sticky bool     `json:"sticky"`
}

// AlertRenderer renders alerts in the background context. Implementations
// must honor tag replacement: rendering a tag that is already shown
// replaces the previous alert instead of stacking a new one.
type AlertRenderer interface {
	Render(ctx context.Context, alert RenderedAlert) error
	// Clear removes the rendering for a tag, if any.
	Clear(ctx context.Context, tag AlertTag) error
}
