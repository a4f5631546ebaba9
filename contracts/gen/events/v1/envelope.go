package v1

import (
	"encoding/json"
	"time"
)

// Envelope is the canonical, versioned event envelope written to the outbox
// and published on the treasury stream. Contract-only package; fields must
// stay backward compatible for downstream consumers.
type Envelope struct {
	EventID          string          `json:"event_id"`
	EventType        string          `json:"event_type"`
	OccurredAt       time.Time       `json:"occurred_at"`
	SourceService    string          `json:"source_service"`
	TraceID          string          `json:"trace_id"`
	SchemaVersion    int             `json:"schema_version"`
	PartitionKeyPath string          `json:"partition_key_path"`
	PartitionKey     string          `json:"partition_key"`
	Data             json.RawMessage `json:"data"`
}
