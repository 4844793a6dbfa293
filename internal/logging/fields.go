package logging

// Standardized attribute keys shared across components.
const (
	// FieldComponent identifies the subsystem emitting the record.
	FieldComponent = "component"
	// FieldStage names the recovery stage in progress.
	FieldStage = "stage"
	// FieldSessionID carries the recovery session identifier.
	FieldSessionID = "session_id"
	// FieldDevice is the source medium path.
	FieldDevice = "device"
	// FieldSector is a single sector index.
	FieldSector = "sector"
	// FieldStart and FieldLength describe a sector range.
	FieldStart  = "start"
	FieldLength = "length"
	// FieldEventType tags records for downstream filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests the next diagnostic step on failures.
	FieldErrorHint = "error_hint"
)
