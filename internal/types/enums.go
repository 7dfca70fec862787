package types

// AlarmState is the single alarm value owned by the state machine.
type AlarmState string

const (
	StateSafe        AlarmState = "safe"
	StateApproaching AlarmState = "approaching"
	StatePreAlert    AlarmState = "pre_alert"
	StateAlarm       AlarmState = "alarm"
	StateSnoozed     AlarmState = "snoozed"
)

// SensorErrorKind classifies position source failures.
type SensorErrorKind string

const (
	SensorPermissionDenied SensorErrorKind = "permission_denied"
	SensorUnavailable      SensorErrorKind = "unavailable"
	SensorTimeout          SensorErrorKind = "timeout"
	SensorUnknown          SensorErrorKind = "unknown"
)

// SourceMode selects which position source implementation drives a trip.
type SourceMode string

const (
	SourceLive      SourceMode = "live"
	SourceSimulated SourceMode = "simulated"
)

// AlertMessageType identifies a foreground-to-background alert message.
type AlertMessageType string

const (
	MsgCacheRoute   AlertMessageType = "CACHE_ROUTE"
	MsgPreAlert     AlertMessageType = "PRE_ALERT"
	MsgTriggerAlarm AlertMessageType = "TRIGGER_ALARM"
)

// ControlMessageType identifies a background-to-foreground control message.
type ControlMessageType string

const (
	MsgDismissAlarm ControlMessageType = "DISMISS_ALARM"
	MsgSnoozeAlarm  ControlMessageType = "SNOOZE_ALARM"
)

// AlertTag is the notification category key. At most one alert per tag is
// rendered at a time; a new dispatch with the same tag replaces the previous
// rendering rather than stacking.
type AlertTag string

const (
	TagDestinationAlarm AlertTag = "destination-alarm"
	TagPreAlert         AlertTag = "pre-alert"
)
