package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// AlertMessage is the transport envelope for foreground-to-background
// dispatches. The two contexts share no memory, so every message carries a
// complete payload rather than a reference to foreground-only state.
//
// Delivery is at-least-once and unordered-safe: every message type is
// idempotent-equivalent on re-delivery. Re-sending CACHE_ROUTE overwrites
// the same slot; re-sending TRIGGER_ALARM replaces the same tag.
type AlertMessage struct {
	MessageID string           `json:"message_id"`
	Type      AlertMessageType `json:"type"`
	Tag       AlertTag         `json:"tag,omitempty"`
	SentAt    time.Time        `json:"sent_at"`
	TraceID   string           `json:"trace_id,omitempty"`
	Payload   json.RawMessage  `json:"payload"`
}

// CacheRoutePayload carries the full trip plan for the single cache slot.
type CacheRoutePayload struct {
	Route CachedRoute `json:"route"`
}

// PreAlertPayload names the stations the transient alert text is built from.
type PreAlertPayload struct {
	PrevStationName  string  `json:"prev_station_name"`
	DestStationName  string  `json:"dest_station_name"`
	DistanceToPrevKm float64 `json:"distance_to_prev_km"`
}

// TriggerAlarmPayload carries the data for the persistent alarm alert.
type TriggerAlarmPayload struct {
	StationName string  `json:"station_name"`
	DistanceKm  float64 `json:"distance_km"`
}

// NewAlertMessage wraps a typed payload in an AlertMessage envelope.
func NewAlertMessage(id string, msgType AlertMessageType, tag AlertTag, payload any, now time.Time) (AlertMessage, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return AlertMessage{}, fmt.Errorf("marshaling %s payload: %w", msgType, err)
	}
	return AlertMessage{
		MessageID: id,
		Type:      msgType,
		Tag:       tag,
		SentAt:    now,
		Payload:   body,
	}, nil
}

// DecodeCacheRoute extracts the CACHE_ROUTE payload.
func (m AlertMessage) DecodeCacheRoute() (CacheRoutePayload, error) {
	var p CacheRoutePayload
	if m.Type != MsgCacheRoute {
		return p, fmt.Errorf("message type is %s, not %s", m.Type, MsgCacheRoute)
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("decoding CACHE_ROUTE payload: %w", err)
	}
	return p, nil
}

// DecodePreAlert extracts the PRE_ALERT payload.
func (m AlertMessage) DecodePreAlert() (PreAlertPayload, error) {
	var p PreAlertPayload
	if m.Type != MsgPreAlert {
		return p, fmt.Errorf("message type is %s, not %s", m.Type, MsgPreAlert)
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("decoding PRE_ALERT payload: %w", err)
	}
	return p, nil
}

// DecodeTriggerAlarm extracts the TRIGGER_ALARM payload.
func (m AlertMessage) DecodeTriggerAlarm() (TriggerAlarmPayload, error) {
	var p TriggerAlarmPayload
	if m.Type != MsgTriggerAlarm {
		return p, fmt.Errorf("message type is %s, not %s", m.Type, MsgTriggerAlarm)
	}
	if err := json.Unmarshal(m.Payload, &p); err != nil {
		return p, fmt.Errorf("decoding TRIGGER_ALARM payload: %w", err)
	}
	return p, nil
}

// ControlMessage is the background-to-foreground envelope. The background
// context cannot touch the state machine directly; user actions on a
// rendered alert travel back as control messages the foreground loop applies.
type ControlMessage struct {
	MessageID string             `json:"message_id"`
	Type      ControlMessageType `json:"type"`
	SentAt    time.Time          `json:"sent_at"`

	// DurationMs is set for SNOOZE_ALARM only.
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// SnoozeDuration returns the snooze duration, or the provided default when
// the message does not carry one.
func (m ControlMessage) SnoozeDuration(fallback time.Duration) time.Duration {
	if m.DurationMs <= 0 {
		return fallback
	}
	return time.Duration(m.DurationMs) * time.Millisecond
}
