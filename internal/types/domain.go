package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"
)

// GeoPoint represents a geographic coordinate (WGS 84, degrees).
//
// A zero-value GeoPoint is "missing": upstream route data legitimately omits
// coordinates for some stations, and a missing coordinate is a first-class
// state, not an error. Callers must check Valid before using Lat/Lon.
type GeoPoint struct {
	Lat   float64
	Lon   float64
	Valid bool
}

// NewGeoPoint returns a valid GeoPoint at the given coordinates.
func NewGeoPoint(lat, lon float64) GeoPoint {
	return GeoPoint{Lat: lat, Lon: lon, Valid: true}
}

// InRange reports whether the coordinates fall within the WGS 84 domain.
// A missing point is never in range.
func (p GeoPoint) InRange() bool {
	return p.Valid && p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// geoPointJSON is the wire form of a GeoPoint. A missing point serializes
// as JSON null rather than a zero coordinate, so consumers cannot mistake
// "unknown" for a real position in the Gulf of Guinea.
type geoPointJSON struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// MarshalJSON encodes a missing point as null and a valid point as
// {"lat":..,"lon":..}.
func (p GeoPoint) MarshalJSON() ([]byte, error) {
	if !p.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(geoPointJSON{Lat: p.Lat, Lon: p.Lon})
}

// UnmarshalJSON decodes null (or a missing field) as an invalid point.
func (p *GeoPoint) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*p = GeoPoint{}
		return nil
	}
	var raw geoPointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*p = GeoPoint{Lat: raw.Lat, Lon: raw.Lon, Valid: true}
	return nil
}

// Station is a single stop on a route. Scheduled times are kept in the
// upstream "HH:MM" representation; the engine never does arithmetic on them.
type Station struct {
	Name               string   `json:"name"`
	Code               string   `json:"code"`
	SequenceIndex      int      `json:"sequence_index"`
	Position           GeoPoint `json:"position"`
	ScheduledArrival   string   `json:"scheduled_arrival,omitempty"`
	ScheduledDeparture string   `json:"scheduled_departure,omitempty"`
	DelayMinutes       int      `json:"delay_minutes,omitempty"`
}

// Route is the ordered sequence of stations for one trip. Insertion order is
// travel order, and a Route is immutable once a trip has started.
type Route struct {
	TrainNumber string    `json:"train_number"`
	TrainName   string    `json:"train_name,omitempty"`
	Stations    []Station `json:"stations"`
}

// Validate checks the Route invariants: at least two stations and strictly
// increasing sequence indexes.
func (r *Route) Validate() error {
	if len(r.Stations) < 2 {
		return NewAppError(ErrCodeValidationInvalidRoute,
			fmt.Sprintf("route must contain at least 2 stations, got %d", len(r.Stations)), nil)
	}
	for i := 1; i < len(r.Stations); i++ {
		if r.Stations[i].SequenceIndex <= r.Stations[i-1].SequenceIndex {
			return NewAppError(ErrCodeValidationInvalidRoute,
				fmt.Sprintf("station sequence must be strictly increasing: index %d (%d) follows %d",
					i, r.Stations[i].SequenceIndex, r.Stations[i-1].SequenceIndex), nil)
		}
	}
	return nil
}

// TripPlan pairs a Route with the traveler's chosen destination. The
// destination is an index into Route.Stations; the first station is not a
// valid destination because there is no previous stop to pre-alert on.
type TripPlan struct {
	Route            Route `json:"route"`
	DestinationIndex int   `json:"destination_index"`
}

// Validate checks the Route and the destination selection.
func (p *TripPlan) Validate() error {
	if err := p.Route.Validate(); err != nil {
		return err
	}
	if p.DestinationIndex <= 0 || p.DestinationIndex >= len(p.Route.Stations) {
		return NewAppError(ErrCodeValidationInvalidDestination,
			fmt.Sprintf("destination index %d out of range (1..%d)",
				p.DestinationIndex, len(p.Route.Stations)-1), nil)
	}
	return nil
}

// Destination returns the alarm target station.
func (p *TripPlan) Destination() Station {
	return p.Route.Stations[p.DestinationIndex]
}

// PreviousStation returns the stop immediately preceding the destination.
// Its proximity drives the pre-alert state.
func (p *TripPlan) PreviousStation() Station {
	return p.Route.Stations[p.DestinationIndex-1]
}

// PositionSample is one reading from a position source. Samples are
// ephemeral: each new sample supersedes the previous one and no history is
// retained.
type PositionSample struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	TimestampMs    int64   `json:"timestamp_ms"`
	AccuracyMeters float64 `json:"accuracy_meters"`
}

// Point returns the sample position as a GeoPoint.
func (s PositionSample) Point() GeoPoint {
	return NewGeoPoint(s.Lat, s.Lon)
}

// CacheSchemaVersion is the current schema version written to the route
// cache slot. Readers treat rows with an unknown version as a cache miss.
const CacheSchemaVersion = 1

// CachedRoute is the single persisted entity: the active trip plan, written
// proactively so the background context can compose alert text without
// network access. One slot, overwritten per trip, no TTL and no eviction.
type CachedRoute struct {
	SchemaVersion int       `json:"schema_version"`
	Plan          TripPlan  `json:"plan"`
	CachedAt      time.Time `json:"cached_at"`
}

// SensorError is a classified failure from a position source. Timeout is
// transient; the underlying watch keeps retrying, so it is reported but
// never fatal.
type SensorError struct {
	Kind    SensorErrorKind
	Message string
}

// Error implements the error interface.
func (e *SensorError) Error() string {
	return fmt.Sprintf("sensor %s: %s", e.Kind, e.Message)
}

// Fatal reports whether tracking cannot proceed until the condition is
// resolved externally.
func (e *SensorError) Fatal() bool {
	return e.Kind == SensorPermissionDenied || e.Kind == SensorUnavailable
}
