package alarm

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Severity is the urgency of an alarm.
type Severity string

// Supported severities. Other values pass through untouched.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// DefaultSource identifies the emitting system in the wire payload.
const DefaultSource = "aeyetech-vision-engine"

// Known reports whether s belongs to the documented severity set.
func (s Severity) Known() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	default:
		return false
	}
}

var (
	// ErrEmptyType is returned when an alarm has no type.
	ErrEmptyType = errors.New("alarm type must be provided")
	// ErrInvalidMetadata is returned when metadata cannot be encoded as JSON.
	ErrInvalidMetadata = errors.New("alarm metadata is not JSON-encodable")
)

// Record is a single alarm event. It is never modified after NewRecord returns.
type Record struct {
	// ID correlates log lines for one record. It is not sent to the endpoint.
	ID uuid.UUID
	// Timestamp is the UTC instant the record was enqueued.
	Timestamp time.Time
	// Type is a short caller-defined category, e.g. "detection".
	Type string
	// Severity is one of the documented severities.
	Severity Severity
	// Message is human-readable text.
	Message string
	// Metadata holds JSON values only and is never nil.
	Metadata map[string]any
	// Source identifies the emitting system.
	Source string
}

// NewRecord validates the input and builds a Record stamped with now.
// Metadata is deep-copied through a JSON round trip, so the record shares no
// state with the caller and holds only JSON-native values. Numbers are kept
// as json.Number to preserve their exact text.
func NewRecord(now time.Time, alarmType, message string, severity Severity, metadata map[string]any, source string) (*Record, error) {
	if alarmType == "" {
		return nil, ErrEmptyType
	}

	if severity == "" {
		severity = SeverityInfo
	}

	if source == "" {
		source = DefaultSource
	}

	meta, err := normalizeMetadata(metadata)
	if err != nil {
		return nil, err
	}

	return &Record{
		ID:        uuid.New(),
		Timestamp: now.UTC(),
		Type:      alarmType,
		Severity:  severity,
		Message:   message,
		Metadata:  meta,
		Source:    source,
	}, nil
}

// Clone returns a deep copy whose metadata can be handed to callers.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}

	cloned := *r
	if r.Metadata != nil {
		cloned.Metadata = cloneObject(r.Metadata)
	}

	return &cloned
}

// Payload is the JSON object posted to the endpoint.
// Receivers must ignore fields they do not know.
type Payload struct {
	Timestamp string         `json:"timestamp"`
	Type      string         `json:"type"`
	Severity  Severity       `json:"severity"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata"`
	Source    string         `json:"source"`
}

// Payload renders the wire representation of the record.
func (r *Record) Payload() Payload {
	meta := r.Metadata
	if meta == nil {
		meta = map[string]any{}
	}

	return Payload{
		Timestamp: r.Timestamp.UTC().Format(time.RFC3339Nano),
		Type:      r.Type,
		Severity:  r.Severity,
		Message:   r.Message,
		Metadata:  meta,
		Source:    r.Source,
	}
}

// MarshalJSON encodes the record as its wire payload.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Payload())
}

func normalizeMetadata(metadata map[string]any) (map[string]any, error) {
	if len(metadata) == 0 {
		return map[string]any{}, nil
	}

	raw, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	normalized := make(map[string]any, len(metadata))
	if err := dec.Decode(&normalized); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidMetadata, err)
	}

	return normalized, nil
}

// cloneObject deep-copies a decoded JSON object.
func cloneObject(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}

	return dst
}

// cloneValue copies JSON containers; scalars are immutable and returned as is.
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return cloneObject(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = cloneValue(item)
		}

		return out
	default:
		return v
	}
}
